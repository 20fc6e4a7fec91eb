package detect

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/technosupport/cashvision/internal/model"
)

var (
	colorCashier  = color.RGBA{0, 255, 0, 255}
	colorCustomer = color.RGBA{255, 200, 0, 255}
	colorOther    = color.RGBA{200, 200, 200, 255}
	colorZone     = color.RGBA{0, 128, 255, 255}
	colorAlert    = color.RGBA{0, 0, 255, 255}
)

// coco pose skeleton connections, same layout as the teacher's pose viewer.
var skeletonConnections = [][2]int{
	{model.KPLeftShoulder, model.KPRightShoulder}, {model.KPLeftShoulder, model.KPLeftElbow},
	{model.KPLeftElbow, model.KPLeftWrist}, {model.KPRightShoulder, model.KPRightElbow},
	{model.KPRightElbow, model.KPRightWrist},
	{model.KPLeftShoulder, model.KPLeftHip}, {model.KPRightShoulder, model.KPRightHip}, {model.KPLeftHip, model.KPRightHip},
	{model.KPLeftHip, model.KPLeftKnee}, {model.KPLeftKnee, model.KPLeftAnkle},
	{model.KPRightHip, model.KPRightKnee}, {model.KPRightKnee, model.KPRightAnkle},
}

// Unified runs the three capability detectors in a fixed order — cash,
// violence, fire — against a single decoded frame, per spec.md §4.7. A
// camera with a capability disabled in its CameraConfig simply never
// produces a detection of that type; the dispatch order stays the same so
// overlays and event logs read consistently across cameras.
type Unified struct {
	Cash     *CashDetector
	Violence *ViolenceDetector
	Fire     *FireDetector
}

// NewUnified wires the three detectors for one camera. fireBackend may be
// nil when no fire model is configured, in which case FireDetector falls
// back to the color/flicker heuristic only.
func NewUnified(cfg model.CameraConfig, fireBackend FireObjectDetector) *Unified {
	return &Unified{
		Cash:     NewCashDetector(cfg),
		Violence: NewViolenceDetector(cfg),
		Fire:     NewFireDetector(cfg, fireBackend),
	}
}

// Close releases native resources held by the unified detector's
// capabilities (currently just the fire detector's background model).
func (u *Unified) Close() {
	u.Fire.Close()
}

// Process runs all enabled capabilities for one decoded frame and returns
// every detection that fired this frame (zero, one, or more — the three
// detectors are independent and may all fire on the same frame).
func (u *Unified) Process(frameIndex uint64, frame gocv.Mat, poses []model.PoseResult, motionMagnitude float64, cfg model.CameraConfig) []model.Detection {
	classifyZone(poses, cfg)

	var out []model.Detection

	if det := u.Cash.Process(frameIndex, poses, cfg); det != nil {
		out = append(out, *det)
	}
	if det := u.Violence.Process(frameIndex, poses, motionMagnitude, cfg); det != nil {
		out = append(out, *det)
	}
	if det := u.Fire.Process(frameIndex, frame, cfg); det != nil {
		out = append(out, *det)
	}

	return out
}

// DrawOverlay annotates a frame with zone outline, person boxes, pose
// skeletons, and any fired detections. It runs every frame regardless of
// whether a detector fired, so the rolling buffer's annotated stream stays
// continuous (spec.md §4.2's Raw/Annotated pair).
func DrawOverlay(frame *gocv.Mat, zone model.Zone, poses []model.PoseResult, detections []model.Detection) {
	drawZone(frame, zone)

	for _, p := range poses {
		boxColor := colorOther
		if p.InZone {
			boxColor = colorCashier
		} else {
			boxColor = colorCustomer
		}
		drawPersonBox(frame, p, boxColor)
	}

	for _, det := range detections {
		drawDetectionAlert(frame, det)
	}
}

// classifyZone stamps each pose's InZone flag against the camera's cashier
// zone, using the person's reference point (hip midpoint, falling back to
// shoulders or bbox center) per spec.md §3. Mutates poses in place since
// every detector downstream of Unified.Process expects InZone already set.
func classifyZone(poses []model.PoseResult, cfg model.CameraConfig) {
	for i := range poses {
		poses[i].InZone = cfg.CashierZone.Contains(poses[i].Center(cfg.PoseConfidenceFloor))
	}
}

func drawZone(frame *gocv.Mat, zone model.Zone) {
	if zone.Rectangle != nil {
		r := zone.Rectangle
		gocv.Rectangle(frame, image.Rect(int(r.X1), int(r.Y1), int(r.X2), int(r.Y2)), colorZone, 2)
		return
	}
	for i := range zone.Polygon {
		a := zone.Polygon[i]
		b := zone.Polygon[(i+1)%len(zone.Polygon)]
		gocv.Line(frame, image.Pt(int(a.X), int(a.Y)), image.Pt(int(b.X), int(b.Y)), colorZone, 2)
	}
}

func drawPersonBox(frame *gocv.Mat, p model.PoseResult, boxColor color.RGBA) {
	box := image.Rect(int(p.BBox.X1), int(p.BBox.Y1), int(p.BBox.X2), int(p.BBox.Y2))
	gocv.Rectangle(frame, box, boxColor, 2)

	for _, kp := range p.Keypoints {
		if kp.Confidence > 0.3 {
			gocv.Circle(frame, image.Pt(int(kp.X), int(kp.Y)), 3, boxColor, -1)
		}
	}
	for _, conn := range skeletonConnections {
		kp1, kp2 := p.Keypoints[conn[0]], p.Keypoints[conn[1]]
		if kp1.Confidence > 0.3 && kp2.Confidence > 0.3 {
			gocv.Line(frame, image.Pt(int(kp1.X), int(kp1.Y)), image.Pt(int(kp2.X), int(kp2.Y)), boxColor, 1)
		}
	}
}

func drawDetectionAlert(frame *gocv.Mat, det model.Detection) {
	center := image.Pt(int((det.BBox.X1+det.BBox.X2)/2), int((det.BBox.Y1+det.BBox.Y2)/2))
	gocv.Circle(frame, center, 30, colorAlert, 3)

	label := fmt.Sprintf("%s (%.0f%%)", det.Type, det.Confidence*100)
	gocv.PutText(frame, label, image.Pt(center.X-50, center.Y-40), gocv.FontHersheySimplex, 0.6, colorAlert, 2)
}
