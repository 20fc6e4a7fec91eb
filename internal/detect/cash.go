package detect

import (
	"math"

	"github.com/technosupport/cashvision/internal/model"
)

// CashDetector finds a cashier-customer hand touch at the counter, per
// spec.md §4.4. Geometry is computed fresh every frame; only the temporal
// gate carries state across frames.
type CashDetector struct {
	gate *TemporalGate
}

// NewCashDetector builds a detector using the config's min_transaction_frames
// and cash_cooldown_frames.
func NewCashDetector(cfg model.CameraConfig) *CashDetector {
	return &CashDetector{gate: NewTemporalGate(cfg.MinTransactionFrames, cfg.CashCooldownFrames)}
}

type handPick struct {
	cashierIdx, customerIdx int
	cashierHand             string // "left" or "right"
	customerHand            string
	distance                float64
	minWristConfidence      float64
}

// Process runs the cash-touch algorithm for one frame's PoseResults, already
// annotated with InZone by the caller (classifyZone, run from Unified.Process), and returns at
// most one Detection.
func (d *CashDetector) Process(frameIndex uint64, poses []model.PoseResult, cfg model.CameraConfig) *model.Detection {
	if !cfg.EnableCash {
		return nil
	}

	best, found := bestHandPick(poses, cfg.PoseConfidenceFloor)
	isCandidate := found && best.distance < float64(cfg.HandTouchDistance)

	var distanceScore float64
	if isCandidate {
		distanceScore = 1 - best.distance/float64(cfg.HandTouchDistance)
	}

	if !d.gate.Evaluate(frameIndex, isCandidate, distanceScore, cfg.CashConfidence) {
		return nil
	}

	cashier := poses[best.cashierIdx]
	customer := poses[best.customerIdx]

	cashierCenter := cashier.Center(cfg.PoseConfidenceFloor)
	customerCenter := customer.Center(cfg.PoseConfidenceFloor)

	cashierWrist := wristKeypoint(cashier, best.cashierHand)
	customerWrist := wristKeypoint(customer, best.customerHand)

	return &model.Detection{
		Type:       model.DetectionCash,
		Confidence: distanceScore,
		BBox:       cashier.BBox,
		FrameIndex: frameIndex,
		Metadata: map[string]interface{}{
			"event_type": "cash",
			"cashier": map[string]interface{}{
				"center":     []float64{cashierCenter.X, cashierCenter.Y},
				"bbox":       []float64{cashier.BBox.X1, cashier.BBox.Y1, cashier.BBox.X2, cashier.BBox.Y2},
				"hands":      handsMap(cashier),
				"in_zone":    true,
				"hand_used":  best.cashierHand,
			},
			"customer": map[string]interface{}{
				"center":     []float64{customerCenter.X, customerCenter.Y},
				"bbox":       []float64{customer.BBox.X1, customer.BBox.Y1, customer.BBox.X2, customer.BBox.Y2},
				"hands":      handsMap(customer),
				"in_zone":    false,
				"hand_used":  best.customerHand,
			},
			"measured_hand_distance": best.distance,
			"distance_threshold":     cfg.HandTouchDistance,
			"interaction_point": []float64{
				(cashierWrist.X + customerWrist.X) / 2,
				(cashierWrist.Y + customerWrist.Y) / 2,
			},
			"people_count": len(poses),
			"cash_detection": map[string]interface{}{
				"hand_touch_distance_threshold": cfg.HandTouchDistance,
				"cashier_zone":                  cfg.CashierZone,
				"pose_confidence":                cfg.PoseConfidenceFloor,
			},
		},
	}
}

// bestHandPick implements steps 2-5: classify by zone (XOR), try all four
// hand combinations per accepted pair, and return the globally minimum
// accepted distance with the deterministic tie-break from spec.md §4.4's
// edge-case policy: higher min-wrist-confidence wins, then lower center-x.
func bestHandPick(poses []model.PoseResult, kappa float64) (handPick, bool) {
	var best handPick
	found := false

	for i := 0; i < len(poses); i++ {
		for j := 0; j < len(poses); j++ {
			if i == j {
				continue
			}
			// Exactly one of the pair must be CASHIER (XOR on in_zone).
			if poses[i].InZone == poses[j].InZone {
				continue
			}
			if !poses[i].InZone {
				continue // iterate with i=cashier, j=customer only
			}

			cashier, customer := poses[i], poses[j]
			for _, ch := range []string{"left", "right"} {
				cw := wristKeypoint(cashier, ch)
				if cw.Confidence < kappa {
					continue
				}
				for _, oh := range []string{"left", "right"} {
					ow := wristKeypoint(customer, oh)
					if ow.Confidence < kappa {
						continue
					}

					dist := euclidean(cw.X, cw.Y, ow.X, ow.Y)
					minConf := math.Min(cw.Confidence, ow.Confidence)

					candidate := handPick{
						cashierIdx: i, customerIdx: j,
						cashierHand: ch, customerHand: oh,
						distance:           dist,
						minWristConfidence: minConf,
					}

					if !found || betterPick(candidate, best, poses, kappa) {
						best = candidate
						found = true
					}
				}
			}
		}
	}

	return best, found
}

// betterPick applies the deterministic tie-break: lower distance wins; on an
// exact tie, higher min-wrist-confidence wins; remaining ties broken by
// lower customer center-x (left-first).
func betterPick(candidate, current handPick, poses []model.PoseResult, kappa float64) bool {
	if candidate.distance != current.distance {
		return candidate.distance < current.distance
	}
	if candidate.minWristConfidence != current.minWristConfidence {
		return candidate.minWristConfidence > current.minWristConfidence
	}
	candidateX := poses[candidate.customerIdx].Center(kappa).X
	currentX := poses[current.customerIdx].Center(kappa).X
	return candidateX < currentX
}

func wristKeypoint(p model.PoseResult, hand string) model.Keypoint {
	if hand == "left" {
		return p.Keypoints[model.KPLeftWrist]
	}
	return p.Keypoints[model.KPRightWrist]
}

func handsMap(p model.PoseResult) map[string]interface{} {
	lw := p.Keypoints[model.KPLeftWrist]
	rw := p.Keypoints[model.KPRightWrist]
	return map[string]interface{}{
		"left":  []float64{lw.X, lw.Y, lw.Confidence},
		"right": []float64{rw.X, rw.Y, rw.Confidence},
	}
}

func euclidean(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return math.Sqrt(dx*dx + dy*dy)
}
