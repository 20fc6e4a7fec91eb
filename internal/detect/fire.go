package detect

import (
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"gocv.io/x/gocv"

	"github.com/technosupport/cashvision/internal/metrics"
	"github.com/technosupport/cashvision/internal/model"
)

const (
	fireMinAreaPx     = 3000
	fireFlickerFloor  = 0.4
	fireFlickerWindow = 10

	smokeMinAreaPx       = 1500
	smokeBackgroundAlpha = 0.05
	smokeConfidenceBoost = 0.15
)

// FireObjectDetector is the subset of vision.FireObjectBackend the fire
// detector needs, so tests can substitute a fake.
type FireObjectDetector interface {
	Detect(frame gocv.Mat, minConfidence float64) ([]model.ObjectDetection, error)
}

// FireDetector runs the YOLO branch first and falls back to a color/flicker
// heuristic when YOLO returns no box above threshold, per spec.md §4.6.
type FireDetector struct {
	gate    *TemporalGate
	backend FireObjectDetector

	// flickerAreas is the recent masked-area window used to compute the
	// temporal-variance flicker score, adapted from the same LRU-with-TTL
	// shape used elsewhere for event dedup: here, keyed by a rolling
	// "recent" integer index rather than by dedup key, with no TTL
	// eviction since the window is bounded by LRU size alone.
	flickerAreas *lru.Cache[uint64, float64]

	// smokeBackground is a running-average grayscale background model
	// (gocv.AccumulateWeighted) used to isolate moving gray/white regions
	// for the auxiliary smoke signal. Owned by the detector; released by
	// Close.
	smokeBackground    gocv.Mat
	smokeBackgroundInit bool
	lastSmokeCentroidY  float64
	hasSmokeCentroid    bool
}

// NewFireDetector builds a detector using the config's min_fire_frames and
// fire_cooldown_frames. backend may be nil when the color-only fallback is
// exercised directly (tests, or a camera with no fire model configured).
func NewFireDetector(cfg model.CameraConfig, backend FireObjectDetector) *FireDetector {
	cache, _ := lru.New[uint64, float64](fireFlickerWindow)
	return &FireDetector{
		gate:            NewTemporalGate(cfg.MinFireFrames, cfg.FireCooldownFrames),
		backend:         backend,
		flickerAreas:    cache,
		smokeBackground: gocv.NewMat(),
	}
}

// Close releases native resources held by the detector.
func (f *FireDetector) Close() {
	f.smokeBackground.Close()
}

// Process runs the fire algorithm for one frame.
func (f *FireDetector) Process(frameIndex uint64, frame gocv.Mat, cfg model.CameraConfig) *model.Detection {
	if !cfg.EnableFire {
		return nil
	}

	if f.backend != nil {
		start := time.Now()
		boxes, err := f.backend.Detect(frame, cfg.FireConfidence)
		metrics.InferenceLatency.WithLabelValues("fire").Observe(float64(time.Since(start).Milliseconds()))
		if err == nil {
			if box, ok := bestFireBox(boxes, cfg.FireConfidence); ok {
				return f.promote(frameIndex, box.Confidence, map[string]interface{}{
					"event_type": "fire",
					"fire_detection": map[string]interface{}{
						"min_fire_frames":  cfg.MinFireFrames,
						"fire_confidence":  cfg.FireConfidence,
						"detection_method": "yolo",
					},
					"fire_area":        int(bboxArea(box.BBox)),
					"smoke_detected":   box.Class == model.ClassSmoke,
					"flickering_score": 0.0,
				}, box.BBox)
			}
		}
	}

	// Color-flicker fallback: runs exactly when the YOLO branch returns no
	// box above threshold for this frame (spec.md §9's resolved Open
	// Question).
	area, flickerScore := f.colorFlicker(frameIndex, frame)
	isCandidate := area >= fireMinAreaPx && flickerScore >= fireFlickerFloor

	// Smoke is auxiliary only (spec.md §4.6): a background-subtracted
	// gray/white mask moving upward never triggers fire on its own, it only
	// raises confidence on top of an already-qualifying color candidate.
	smokeDetected, smokeRising := f.smokeAuxiliary(frame)
	score := flickerScoreOrZero(isCandidate, flickerScore)
	if isCandidate && smokeDetected && smokeRising {
		score = math.Min(score+smokeConfidenceBoost, 1.0)
	}

	return f.promote(frameIndex, score, map[string]interface{}{
		"event_type": "fire",
		"fire_detection": map[string]interface{}{
			"min_fire_frames":  cfg.MinFireFrames,
			"fire_confidence":  cfg.FireConfidence,
			"detection_method": "color_based",
		},
		"fire_area":        area,
		"smoke_detected":   smokeDetected,
		"smoke_rising":     smokeRising,
		"flickering_score": flickerScore,
	}, model.BBox{})
}

func (f *FireDetector) promote(frameIndex uint64, score float64, metadata map[string]interface{}, bbox model.BBox) *model.Detection {
	isCandidate := score > 0
	if !f.gate.Evaluate(frameIndex, isCandidate, 1, 0) {
		return nil
	}
	return &model.Detection{
		Type:       model.DetectionFire,
		Confidence: score,
		BBox:       bbox,
		FrameIndex: frameIndex,
		Metadata:   metadata,
	}
}

func flickerScoreOrZero(isCandidate bool, score float64) float64 {
	if isCandidate {
		return score
	}
	return 0
}

// bestFireBox returns the highest-confidence box labelled fire or smoke at
// or above minConfidence, if any.
func bestFireBox(boxes []model.ObjectDetection, minConfidence float64) (model.ObjectDetection, bool) {
	var best model.ObjectDetection
	found := false
	for _, b := range boxes {
		if b.Class != model.ClassFire && b.Class != model.ClassSmoke {
			continue
		}
		if b.Confidence < minConfidence {
			continue
		}
		if !found || b.Confidence > best.Confidence {
			best = b
			found = true
		}
	}
	return best, found
}

func bboxArea(b model.BBox) float64 {
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

// colorFlicker computes the bright-orange-minus-skin masked area for this
// frame and the temporal variance of that area over the last
// fireFlickerWindow frames, normalized to roughly [0,1].
func (f *FireDetector) colorFlicker(frameIndex uint64, frame gocv.Mat) (area int, flickerScore float64) {
	if frame.Empty() {
		return 0, 0
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)

	maskA := gocv.NewMat()
	defer maskA.Close()
	gocv.InRangeWithScalar(hsv,
		gocv.NewScalar(5, 150, 200, 0), gocv.NewScalar(25, 255, 255, 0), &maskA)

	maskB := gocv.NewMat()
	defer maskB.Close()
	gocv.InRangeWithScalar(hsv,
		gocv.NewScalar(0, 200, 220, 0), gocv.NewScalar(5, 255, 255, 0), &maskB)

	fireMask := gocv.NewMat()
	defer fireMask.Close()
	gocv.BitwiseOr(maskA, maskB, &fireMask)

	skinMask := gocv.NewMat()
	defer skinMask.Close()
	gocv.InRangeWithScalar(hsv,
		gocv.NewScalar(0, 20, 70, 0), gocv.NewScalar(25, 170, 200, 0), &skinMask)

	skinInverted := gocv.NewMat()
	defer skinInverted.Close()
	gocv.BitwiseNot(skinMask, &skinInverted)

	finalMask := gocv.NewMat()
	defer finalMask.Close()
	gocv.BitwiseAnd(fireMask, skinInverted, &finalMask)

	contours := gocv.FindContours(finalMask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	total := 0.0
	for i := 0; i < contours.Size(); i++ {
		total += gocv.ContourArea(contours.At(i))
	}
	area = int(total)

	f.flickerAreas.Add(frameIndex, total)
	return area, f.temporalVariance()
}

// temporalVariance computes the coefficient of variation (stddev/mean) of
// the retained masked-area samples, clamped to at most 1.
func (f *FireDetector) temporalVariance() float64 {
	keys := f.flickerAreas.Keys()
	if len(keys) < 2 {
		return 0
	}

	var values []float64
	for _, k := range keys {
		if v, ok := f.flickerAreas.Peek(k); ok {
			values = append(values, v)
		}
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))

	stddev := math.Sqrt(variance)
	if mean == 0 {
		return 0
	}
	// Clamp the coefficient of variation to at most 1.
	cv := stddev / mean
	return math.Min(cv, 1.0)
}

// smokeAuxiliary implements spec.md §4.6's auxiliary smoke signal: a
// background-subtracted gray/white mask (gocv.AccumulateWeighted running
// average, thresholded against the current frame) whose masked area crosses
// smokeMinAreaPx, combined with whether that mask's centroid has risen
// (lower Y) since the previous frame. The caller (Process) only ever uses
// this as a confidence boost on top of an already-qualifying color-fire
// candidate; it never triggers a detection by itself.
func (f *FireDetector) smokeAuxiliary(frame gocv.Mat) (detected, rising bool) {
	if frame.Empty() {
		return false, false
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	grayFloat := gocv.NewMat()
	defer grayFloat.Close()
	gray.ConvertTo(&grayFloat, gocv.MatTypeCV32F)

	if !f.smokeBackgroundInit {
		grayFloat.CopyTo(&f.smokeBackground)
		f.smokeBackgroundInit = true
		return false, false
	}
	gocv.AccumulateWeighted(grayFloat, &f.smokeBackground, smokeBackgroundAlpha)

	backgroundU8 := gocv.NewMat()
	defer backgroundU8.Close()
	f.smokeBackground.ConvertTo(&backgroundU8, gocv.MatTypeCV8U)

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gray, backgroundU8, &diff)

	foreground := gocv.NewMat()
	defer foreground.Close()
	gocv.Threshold(diff, &foreground, 20, 255, gocv.ThresholdBinary)

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)

	grayWhiteMask := gocv.NewMat()
	defer grayWhiteMask.Close()
	gocv.InRangeWithScalar(hsv,
		gocv.NewScalar(0, 0, 120, 0), gocv.NewScalar(180, 60, 255, 0), &grayWhiteMask)

	smokeMask := gocv.NewMat()
	defer smokeMask.Close()
	gocv.BitwiseAnd(foreground, grayWhiteMask, &smokeMask)

	contours := gocv.FindContours(smokeMask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	area, sumY, weight := 0.0, 0.0, 0.0
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		a := gocv.ContourArea(c)
		area += a
		if a <= 0 {
			continue
		}
		rect := gocv.BoundingRect(c)
		sumY += float64(rect.Min.Y+rect.Max.Y) / 2 * a
		weight += a
	}

	detected = area >= smokeMinAreaPx
	if !detected || weight == 0 {
		return detected, false
	}

	centroidY := sumY / weight
	if f.hasSmokeCentroid {
		rising = centroidY < f.lastSmokeCentroidY
	}
	f.lastSmokeCentroidY = centroidY
	f.hasSmokeCentroid = true
	return detected, rising
}
