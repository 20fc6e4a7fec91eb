package detect

import (
	"testing"

	"github.com/technosupport/cashvision/internal/model"
)

func overlappingPosesWithRaisedArms() []model.PoseResult {
	a := model.PoseResult{BBox: model.BBox{X1: 100, Y1: 100, X2: 300, Y2: 400}}
	a.Keypoints[model.KPLeftShoulder] = model.Keypoint{X: 150, Y: 200, Confidence: 0.9}
	a.Keypoints[model.KPLeftWrist] = model.Keypoint{X: 150, Y: 150, Confidence: 0.9} // above shoulder

	b := model.PoseResult{BBox: model.BBox{X1: 200, Y1: 100, X2: 400, Y2: 400}}
	b.Keypoints[model.KPLeftShoulder] = model.Keypoint{X: 350, Y: 200, Confidence: 0.9}
	b.Keypoints[model.KPLeftWrist] = model.Keypoint{X: 350, Y: 160, Confidence: 0.9}

	return []model.PoseResult{a, b}
}

// Scenario 4: two overlapping bboxes, raised arms, motion magnitude 150 for
// 20 consecutive frames, mu=100, thetav=0.6, Mv=15, Cv=90. Expected: exactly
// one violence event at frame 14, no further event until frame >= 104.
func TestViolenceDetector_Scenario4(t *testing.T) {
	cfg := model.CameraConfig{
		EnableViolence:      true,
		MinViolenceFrames:   15,
		ViolenceCooldownFrames: 90,
		ViolenceConfidence:  0.6,
		MotionThreshold:     100,
	}
	d := NewViolenceDetector(cfg)
	poses := overlappingPosesWithRaisedArms()

	var fired []uint64
	for f := uint64(0); f < 20; f++ {
		if det := d.Process(f, poses, 150, cfg); det != nil {
			fired = append(fired, f)
		}
	}

	if len(fired) != 1 || fired[0] != 14 {
		t.Fatalf("expected exactly one event at frame 14, got %v", fired)
	}

	// No further event until frame >= frame14+90 = 104.
	for f := uint64(15); f < 104; f++ {
		if det := d.Process(f, poses, 150, cfg); det != nil {
			t.Fatalf("unexpected violence event at frame %d during cooldown", f)
		}
	}
	if det := d.Process(104, poses, 150, cfg); det == nil {
		t.Fatal("expected violence event at frame 104 once cooldown elapsed")
	}
}

// Single-person activity is never violence.
func TestViolenceDetector_SinglePersonNeverFires(t *testing.T) {
	cfg := model.CameraConfig{
		EnableViolence:      true,
		MinViolenceFrames:   1,
		ViolenceCooldownFrames: 10,
		MotionThreshold:     10,
	}
	d := NewViolenceDetector(cfg)
	poses := overlappingPosesWithRaisedArms()[:1]

	for f := uint64(0); f < 5; f++ {
		if det := d.Process(f, poses, 1000, cfg); det != nil {
			t.Fatal("single-person frame must never produce a violence detection")
		}
	}
}

func TestViolenceDetector_BothInZoneIgnored(t *testing.T) {
	cfg := model.CameraConfig{
		EnableViolence:      true,
		MinViolenceFrames:   1,
		ViolenceCooldownFrames: 10,
		MotionThreshold:     10,
	}
	d := NewViolenceDetector(cfg)
	poses := overlappingPosesWithRaisedArms()
	poses[0].InZone = true
	poses[1].InZone = true

	if det := d.Process(0, poses, 1000, cfg); det != nil {
		t.Fatal("expected no violence event when both people are inside the cashier zone")
	}
}
