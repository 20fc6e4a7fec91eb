package model

// COCO 17-keypoint ordering, shared by the pose backend decoder and every
// detector that reads keypoints by name.
const (
	KPNose = iota
	KPLeftEye
	KPRightEye
	KPLeftEar
	KPRightEar
	KPLeftShoulder
	KPRightShoulder
	KPLeftElbow
	KPRightElbow
	KPLeftWrist
	KPRightWrist
	KPLeftHip
	KPRightHip
	KPLeftKnee
	KPRightKnee
	KPLeftAnkle
	KPRightAnkle
	NumKeypoints
)

// Keypoint is one COCO-ordered body point with its detection confidence.
type Keypoint struct {
	X          float64
	Y          float64
	Confidence float64
}

// BBox is an axis-aligned bounding box in image-pixel space.
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// PoseResult is one detected person, ephemeral per-frame output of
// PoseBackend.
type PoseResult struct {
	BBox       BBox
	Keypoints  [NumKeypoints]Keypoint
	Confidence float64

	// InZone is computed by the caller against CameraConfig.CashierZone; it
	// is not intrinsic to the pose itself.
	InZone bool
}

// Center computes the person's reference point per spec.md §3: hip midpoint
// if both hip confidences are at or above kappa, else shoulder midpoint if
// both shoulder confidences are at or above kappa, else the bbox center.
func (p PoseResult) Center(kappa float64) Point {
	lh, rh := p.Keypoints[KPLeftHip], p.Keypoints[KPRightHip]
	if lh.Confidence >= kappa && rh.Confidence >= kappa {
		return Point{X: (lh.X + rh.X) / 2, Y: (lh.Y + rh.Y) / 2}
	}
	ls, rs := p.Keypoints[KPLeftShoulder], p.Keypoints[KPRightShoulder]
	if ls.Confidence >= kappa && rs.Confidence >= kappa {
		return Point{X: (ls.X + rs.X) / 2, Y: (ls.Y + rs.Y) / 2}
	}
	return Point{X: (p.BBox.X1 + p.BBox.X2) / 2, Y: (p.BBox.Y1 + p.BBox.Y2) / 2}
}

// ObjectClass is the label vocabulary FireObjectBackend emits.
type ObjectClass string

const (
	ClassFire  ObjectClass = "fire"
	ClassSmoke ObjectClass = "smoke"
	ClassOther ObjectClass = "other"
)

// ObjectDetection is one bounding box from FireObjectBackend.
type ObjectDetection struct {
	Class      ObjectClass
	Confidence float64
	BBox       BBox
}
