package vision

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/technosupport/cashvision/internal/model"
)

const (
	fireInputSize  = 640
	fireAttrCount  = 8 // 4 bbox + 1 obj-conf + 3 classes (fire, smoke, other)
	fireMaxDetects = 8400
)

var fireClasses = []model.ObjectClass{model.ClassFire, model.ClassSmoke, model.ClassOther}

// FireObjectBackend runs a YOLO-style detector producing bounding boxes
// labelled {fire, smoke, other}, per spec.md §4.3. Models load once at
// worker start; a load failure is a fatal ConfigError.
type FireObjectBackend struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewFireObjectBackend loads the fire/smoke model from modelPath.
func NewFireObjectBackend(modelPath string) (*FireObjectBackend, error) {
	inputShape := ort.NewShape(1, 3, fireInputSize, fireInputSize)
	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocating fire input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, fireAttrCount, fireMaxDetects)
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocating fire output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"images"}, []string{"output0"},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("loading fire/object model %s: %w", modelPath, err)
	}

	return &FireObjectBackend{session: session, input: input, output: output}, nil
}

// Close releases the underlying ONNX Runtime session and tensors.
func (f *FireObjectBackend) Close() {
	if f.session != nil {
		f.session.Destroy()
	}
	if f.input != nil {
		f.input.Destroy()
	}
	if f.output != nil {
		f.output.Destroy()
	}
}

// Detect runs fire/smoke/object inference over frame, returning every box
// whose objectness is at least minConfidence; each box's Confidence is
// objectness times its best class score.
func (f *FireObjectBackend) Detect(frame gocv.Mat, minConfidence float64) ([]model.ObjectDetection, error) {
	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(fireInputSize, fireInputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("reading fire input blob: %w", err)
	}
	copy(f.input.GetData(), data)

	if err := f.session.Run(); err != nil {
		return nil, fmt.Errorf("fire/object inference: %w", err)
	}

	return decodeFireOutput(f.output.GetData(), frame.Cols(), frame.Rows(), minConfidence), nil
}

func decodeFireOutput(data []float32, frameW, frameH int, minConfidence float64) []model.ObjectDetection {
	var results []model.ObjectDetection

	for j := 0; j < fireMaxDetects; j++ {
		objConf := float64(data[4*fireMaxDetects+j])
		if objConf < minConfidence {
			continue
		}

		bestClass := 0
		bestScore := float64(-1)
		for c := 0; c < len(fireClasses); c++ {
			score := float64(data[(5+c)*fireMaxDetects+j])
			if score > bestScore {
				bestScore = score
				bestClass = c
			}
		}

		cx := float64(data[0*fireMaxDetects+j]) * float64(frameW) / fireInputSize
		cy := float64(data[1*fireMaxDetects+j]) * float64(frameH) / fireInputSize
		w := float64(data[2*fireMaxDetects+j]) * float64(frameW) / fireInputSize
		h := float64(data[3*fireMaxDetects+j]) * float64(frameH) / fireInputSize

		results = append(results, model.ObjectDetection{
			Class:      fireClasses[bestClass],
			Confidence: objConf * bestScore,
			BBox: model.BBox{
				X1: cx - w/2, Y1: cy - h/2,
				X2: cx + w/2, Y2: cy + h/2,
			},
		})
	}

	return results
}
