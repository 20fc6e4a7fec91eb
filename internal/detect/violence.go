package detect

import (
	"math"

	"github.com/technosupport/cashvision/internal/model"
)

// ViolenceDetector finds close-combat interactions via pose proximity,
// raised-arm posture, and inter-frame motion, per spec.md §4.5.
type ViolenceDetector struct {
	gate *TemporalGate
}

// NewViolenceDetector builds a detector using the config's
// min_violence_frames and violence_cooldown_frames.
func NewViolenceDetector(cfg model.CameraConfig) *ViolenceDetector {
	return &ViolenceDetector{gate: NewTemporalGate(cfg.MinViolenceFrames, cfg.ViolenceCooldownFrames)}
}

// Process runs the violence algorithm for one frame. motionMagnitude is the
// pre-computed inter-frame pixel-diff magnitude over the union bbox of all
// detected people (see MotionMagnitude); it is one value per frame, not
// computed separately for each candidate pair.
func (v *ViolenceDetector) Process(frameIndex uint64, poses []model.PoseResult, motionMagnitude float64, cfg model.CameraConfig) *model.Detection {
	if !cfg.EnableViolence {
		return nil
	}
	// Single-person activity is never violence.
	if len(poses) < 2 {
		v.gate.Evaluate(frameIndex, false, 0, 0)
		return nil
	}

	bestScore := -1.0
	var bestPair [2]int
	anyCandidate := false

	for i := 0; i < len(poses); i++ {
		for j := i + 1; j < len(poses); j++ {
			a, b := poses[i], poses[j]

			// Ignore pairs where both centers are inside the cashier zone
			// (normal transaction motion).
			if a.InZone && b.InZone {
				continue
			}

			if !bboxesProximate(a.BBox, b.BBox) {
				continue
			}

			score := aggressionScore(a, b, motionMagnitude, cfg.MotionThreshold)
			if score >= cfg.ViolenceConfidence && motionMagnitude >= cfg.MotionThreshold {
				anyCandidate = true
				if score > bestScore {
					bestScore = score
					bestPair = [2]int{i, j}
				}
			}
		}
	}

	if !v.gate.Evaluate(frameIndex, anyCandidate, 1, 0) {
		return nil
	}

	closeCombat := bboxOverlapRatio(poses[bestPair[0]].BBox, poses[bestPair[1]].BBox) > 0
	return &model.Detection{
		Type:       model.DetectionViolence,
		Confidence: bestScore,
		BBox:       unionBBox(poses[bestPair[0]].BBox, poses[bestPair[1]].BBox),
		FrameIndex: frameIndex,
		Metadata: map[string]interface{}{
			"event_type":           "violence",
			"people_involved":      2,
			"motion_magnitude":     motionMagnitude,
			"close_combat_detected": closeCombat,
			"violence_detection": map[string]interface{}{
				"min_violence_frames": cfg.MinViolenceFrames,
				"violence_confidence": cfg.ViolenceConfidence,
				"motion_threshold":    cfg.MotionThreshold,
			},
		},
	}
}

// bboxesProximate reports whether two bboxes overlap, or their centers are
// within a proximity bound derived from the average bbox diagonal.
func bboxesProximate(a, b model.BBox) bool {
	if bboxOverlapRatio(a, b) > 0 {
		return true
	}
	ca := centerOf(a)
	cb := centerOf(b)
	dist := euclidean(ca.X, ca.Y, cb.X, cb.Y)
	diagA := math.Hypot(a.X2-a.X1, a.Y2-a.Y1)
	diagB := math.Hypot(b.X2-b.X1, b.Y2-b.Y1)
	bound := (diagA + diagB) / 2
	return dist < bound
}

// aggressionScore combines raised-arm posture, motion magnitude, and bbox
// overlap into a single [0,1]-ish score.
func aggressionScore(a, b model.PoseResult, motion, motionThreshold float64) float64 {
	raised := 0.0
	if armRaised(a) || armRaised(b) {
		raised = 1.0
	}

	motionComponent := 0.0
	if motionThreshold > 0 {
		motionComponent = math.Min(motion/motionThreshold, 2.0) / 2.0
	}

	overlap := bboxOverlapRatio(a.BBox, b.BBox)

	return 0.4*raised + 0.4*motionComponent + 0.2*overlap
}

// armRaised reports whether either wrist sits above its shoulder (lower Y is
// higher in image space).
func armRaised(p model.PoseResult) bool {
	ls, lw := p.Keypoints[model.KPLeftShoulder], p.Keypoints[model.KPLeftWrist]
	rs, rw := p.Keypoints[model.KPRightShoulder], p.Keypoints[model.KPRightWrist]
	if lw.Confidence > 0 && ls.Confidence > 0 && lw.Y < ls.Y {
		return true
	}
	if rw.Confidence > 0 && rs.Confidence > 0 && rw.Y < rs.Y {
		return true
	}
	return false
}

func centerOf(b model.BBox) model.Point {
	return model.Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

func bboxOverlapRatio(a, b model.BBox) float64 {
	ix1 := math.Max(a.X1, b.X1)
	iy1 := math.Max(a.Y1, b.Y1)
	ix2 := math.Min(a.X2, b.X2)
	iy2 := math.Min(a.Y2, b.Y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	interArea := (ix2 - ix1) * (iy2 - iy1)
	areaA := (a.X2 - a.X1) * (a.Y2 - a.Y1)
	areaB := (b.X2 - b.X1) * (b.Y2 - b.Y1)
	union := areaA + areaB - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}

func unionBBox(a, b model.BBox) model.BBox {
	return model.BBox{
		X1: math.Min(a.X1, b.X1), Y1: math.Min(a.Y1, b.Y1),
		X2: math.Max(a.X2, b.X2), Y2: math.Max(a.Y2, b.Y2),
	}
}
