package detect

import (
	"testing"

	"github.com/technosupport/cashvision/internal/model"
)

func baseCashConfig() model.CameraConfig {
	cfg := model.CameraConfig{
		EnableCash:           true,
		HandTouchDistance:    100,
		PoseConfidenceFloor:  0.3,
		MinTransactionFrames: 1,
		CashCooldownFrames:   45,
		CashConfidence:       0.1,
		CashierZone: model.Zone{
			Rectangle: &model.Rectangle{X1: 500, Y1: 300, X2: 900, Y2: 700},
		},
	}
	return cfg
}

func poseWithWrists(inZone bool, leftWristX, leftWristY, conf float64) model.PoseResult {
	p := model.PoseResult{InZone: inZone}
	p.Keypoints[model.KPLeftWrist] = model.Keypoint{X: leftWristX, Y: leftWristY, Confidence: conf}
	p.Keypoints[model.KPRightWrist] = model.Keypoint{X: leftWristX + 500, Y: leftWristY, Confidence: 0} // far, low conf
	p.BBox = model.BBox{X1: leftWristX - 50, Y1: leftWristY - 100, X2: leftWristX + 50, Y2: leftWristY + 100}
	return p
}

// Scenario 1: cashier at (600,450), customer at (680,455), D=100.
func TestCashDetector_Scenario1(t *testing.T) {
	cfg := baseCashConfig()
	d := NewCashDetector(cfg)

	cashier := poseWithWrists(true, 600, 450, 0.9)
	customer := poseWithWrists(false, 680, 455, 0.9)
	poses := []model.PoseResult{cashier, customer}

	det := d.Process(0, poses, cfg)
	if det == nil {
		t.Fatal("expected cash event at frame 0")
	}

	// No further event until frame >= 45.
	for f := uint64(1); f < 45; f++ {
		if got := d.Process(f, poses, cfg); got != nil {
			t.Fatalf("unexpected cash event at frame %d before cooldown elapsed", f)
		}
	}
	if got := d.Process(45, poses, cfg); got == nil {
		t.Fatal("expected cash event at frame 45 once cooldown elapsed")
	}
}

// Scenario 2: both people inside zone -> zero cash events.
func TestCashDetector_Scenario2_BothInZone(t *testing.T) {
	cfg := baseCashConfig()
	d := NewCashDetector(cfg)

	p1 := poseWithWrists(true, 600, 450, 0.9)
	p2 := poseWithWrists(true, 680, 455, 0.9)
	poses := []model.PoseResult{p1, p2}

	if got := d.Process(0, poses, cfg); got != nil {
		t.Fatal("expected no cash event when both people are in zone")
	}
}

// Scenario 3: wrist confidences below kappa -> zero cash events.
func TestCashDetector_Scenario3_LowConfidence(t *testing.T) {
	cfg := baseCashConfig()
	cfg.PoseConfidenceFloor = 0.3
	d := NewCashDetector(cfg)

	cashier := poseWithWrists(true, 600, 450, 0.25)
	customer := poseWithWrists(false, 680, 455, 0.25)
	poses := []model.PoseResult{cashier, customer}

	if got := d.Process(0, poses, cfg); got != nil {
		t.Fatal("expected no cash event with wrist confidence below kappa")
	}
}

// Boundary: wrist confidence exactly kappa is accepted (>=).
func TestCashDetector_WristConfidenceExactlyKappa(t *testing.T) {
	cfg := baseCashConfig()
	cfg.PoseConfidenceFloor = 0.3
	d := NewCashDetector(cfg)

	cashier := poseWithWrists(true, 600, 450, 0.3)
	customer := poseWithWrists(false, 680, 455, 0.3)
	poses := []model.PoseResult{cashier, customer}

	if got := d.Process(0, poses, cfg); got == nil {
		t.Fatal("expected cash event accepted with wrist confidence exactly kappa")
	}
}

// Boundary: d* == D must not be a candidate (strict <).
func TestCashDetector_DistanceEqualsThreshold(t *testing.T) {
	cfg := baseCashConfig()
	cfg.HandTouchDistance = 100
	d := NewCashDetector(cfg)

	cashier := poseWithWrists(true, 500, 400, 0.9)
	customer := poseWithWrists(false, 600, 400, 0.9) // exactly 100px apart
	poses := []model.PoseResult{cashier, customer}

	if got := d.Process(0, poses, cfg); got != nil {
		t.Fatal("expected no cash event when distance exactly equals threshold")
	}
}

func TestCashDetector_Disabled(t *testing.T) {
	cfg := baseCashConfig()
	cfg.EnableCash = false
	d := NewCashDetector(cfg)

	cashier := poseWithWrists(true, 600, 450, 0.9)
	customer := poseWithWrists(false, 680, 455, 0.9)
	poses := []model.PoseResult{cashier, customer}

	if got := d.Process(0, poses, cfg); got != nil {
		t.Fatal("expected no cash event when cash detector disabled")
	}
}
