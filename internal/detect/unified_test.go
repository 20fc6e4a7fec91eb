package detect

import (
	"testing"

	"gocv.io/x/gocv"

	"github.com/technosupport/cashvision/internal/model"
)

func TestUnified_DispatchesCashOnly(t *testing.T) {
	cfg := baseCashConfig()
	cfg.EnableViolence = false
	cfg.EnableFire = false
	cfg.MinFireFrames = 10
	cfg.FireCooldownFrames = 150
	// Narrow the zone so real zone classification (run by Unified.Process)
	// keeps the cashier in and the customer out, matching the hand-touch
	// geometry below.
	cfg.CashierZone = model.Zone{Rectangle: &model.Rectangle{X1: 550, Y1: 350, X2: 650, Y2: 550}}

	u := NewUnified(cfg, nil)
	defer u.Close()

	cashier := poseWithWrists(true, 600, 450, 0.9)
	customer := poseWithWrists(false, 680, 455, 0.9)
	poses := []model.PoseResult{cashier, customer}

	frame := gocv.NewMatWithSize(720, 1280, gocv.MatTypeCV8UC3)
	defer frame.Close()

	detections := u.Process(0, frame, poses, 0, cfg)
	if len(detections) != 1 || detections[0].Type != model.DetectionCash {
		t.Fatalf("expected exactly one cash detection, got %v", detections)
	}
}

func TestUnified_DrawOverlayDoesNotPanicOnEmptyInput(t *testing.T) {
	frame := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer frame.Close()

	zone := model.Zone{Rectangle: &model.Rectangle{X1: 10, Y1: 10, X2: 50, Y2: 50}}
	DrawOverlay(&frame, zone, nil, nil)
}

func TestUnified_DrawOverlayWithPolygonZone(t *testing.T) {
	frame := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer frame.Close()

	zone := model.Zone{Polygon: []model.Point{{X: 0, Y: 0}, {X: 50, Y: 0}, {X: 25, Y: 50}}}
	poses := []model.PoseResult{poseWithWrists(true, 20, 20, 0.9)}
	detections := []model.Detection{{Type: model.DetectionFire, Confidence: 0.9, BBox: model.BBox{X1: 10, Y1: 10, X2: 30, Y2: 30}}}

	DrawOverlay(&frame, zone, poses, detections)
}
