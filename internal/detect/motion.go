package detect

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/technosupport/cashvision/internal/model"
)

// MotionMagnitude computes a lightweight inter-frame motion proxy over the
// union of two bboxes: a thresholded grayscale AbsDiff between the previous
// and current frame, counted in non-zero pixels. This stands in for optical
// flow, as spec.md §4.5 permits.
func MotionMagnitude(prev, curr gocv.Mat, union model.BBox) float64 {
	if prev.Empty() || curr.Empty() {
		return 0
	}

	region := image.Rect(
		clampInt(int(union.X1), 0, curr.Cols()),
		clampInt(int(union.Y1), 0, curr.Rows()),
		clampInt(int(union.X2), 0, curr.Cols()),
		clampInt(int(union.Y2), 0, curr.Rows()),
	)
	if region.Dx() <= 0 || region.Dy() <= 0 {
		return 0
	}

	prevROI := prev.Region(region)
	defer prevROI.Close()
	currROI := curr.Region(region)
	defer currROI.Close()

	prevGray := gocv.NewMat()
	defer prevGray.Close()
	currGray := gocv.NewMat()
	defer currGray.Close()
	gocv.CvtColor(prevROI, &prevGray, gocv.ColorBGRToGray)
	gocv.CvtColor(currROI, &currGray, gocv.ColorBGRToGray)

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(prevGray, currGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, 25, 255, gocv.ThresholdBinary)

	return float64(gocv.CountNonZero(thresh))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
