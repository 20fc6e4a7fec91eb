// Package vision wraps the two ONNX models the pipeline depends on: a COCO
// 17-keypoint pose estimator and a fire/smoke/object detector. Both are
// stateless per call and safe to invoke repeatedly from the single worker
// goroutine that owns them; neither is safe to share across workers.
package vision

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/technosupport/cashvision/internal/model"
)

const (
	poseInputSize  = 640
	poseAttrCount  = 56 // 4 bbox + 1 obj-conf + 17*3 keypoints
	poseMaxDetects = 8400
)

// PoseBackend runs a YOLO-pose-family ONNX model and decodes its fixed
// [1, 56, 8400] output layout into PoseResults. Models load once at worker
// start; a load failure is a fatal ConfigError per spec.md §4.3.
type PoseBackend struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewPoseBackend loads the pose model from modelPath. Call Close when the
// owning worker shuts down.
func NewPoseBackend(modelPath string) (*PoseBackend, error) {
	inputShape := ort.NewShape(1, 3, poseInputSize, poseInputSize)
	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocating pose input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, poseAttrCount, poseMaxDetects)
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocating pose output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"images"}, []string{"output0"},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("loading pose model %s: %w", modelPath, err)
	}

	return &PoseBackend{session: session, input: input, output: output}, nil
}

// Close releases the underlying ONNX Runtime session and tensors.
func (p *PoseBackend) Close() {
	if p.session != nil {
		p.session.Destroy()
	}
	if p.input != nil {
		p.input.Destroy()
	}
	if p.output != nil {
		p.output.Destroy()
	}
}

// Detect runs pose inference over frame and returns every person above
// minConfidence, COCO-ordered keypoints in frame-pixel coordinates.
func (p *PoseBackend) Detect(frame gocv.Mat, minConfidence float64) ([]model.PoseResult, error) {
	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(poseInputSize, poseInputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("reading pose input blob: %w", err)
	}
	copy(p.input.GetData(), data)

	if err := p.session.Run(); err != nil {
		return nil, fmt.Errorf("pose inference: %w", err)
	}

	return decodePoseOutput(p.output.GetData(), frame.Cols(), frame.Rows(), minConfidence), nil
}

// decodePoseOutput decodes the [1, 56, 8400] tensor layout: attribute i,
// detection j lives at data[i*8400 + j]. Attributes 0-3 are the box
// (center-x, center-y, w, h), 4 is the objectness confidence, and 5+3k/
// 5+3k+1/5+3k+2 are keypoint k's x/y/visibility, scaled from the model's
// fixed input size back to the source frame.
func decodePoseOutput(data []float32, frameW, frameH int, minConfidence float64) []model.PoseResult {
	var results []model.PoseResult

	for j := 0; j < poseMaxDetects; j++ {
		objConf := float64(data[4*poseMaxDetects+j])
		if objConf < minConfidence {
			continue
		}

		cx := float64(data[0*poseMaxDetects+j]) * float64(frameW) / poseInputSize
		cy := float64(data[1*poseMaxDetects+j]) * float64(frameH) / poseInputSize
		w := float64(data[2*poseMaxDetects+j]) * float64(frameW) / poseInputSize
		h := float64(data[3*poseMaxDetects+j]) * float64(frameH) / poseInputSize

		pr := model.PoseResult{
			BBox: model.BBox{
				X1: cx - w/2, Y1: cy - h/2,
				X2: cx + w/2, Y2: cy + h/2,
			},
			Confidence: objConf,
		}

		for k := 0; k < model.NumKeypoints; k++ {
			xIdx := (5 + k*3) * poseMaxDetects
			yIdx := (5 + k*3 + 1) * poseMaxDetects
			visIdx := (5 + k*3 + 2) * poseMaxDetects

			x := float64(data[xIdx+j]) * float64(frameW) / poseInputSize
			y := float64(data[yIdx+j]) * float64(frameH) / poseInputSize
			vis := float64(data[visIdx+j])

			pr.Keypoints[k] = model.Keypoint{X: x, Y: y, Confidence: vis}
		}

		results = append(results, pr)
	}

	return results
}
