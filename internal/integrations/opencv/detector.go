package opencv

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"face-attendance-go/internal/recognition"

	"gocv.io/x/gocv"
)

// Detector wraps OpenCV's FaceDetectorYN (YuNet).
type Detector struct {
	detector gocv.FaceDetectorYN
	mu       sync.Mutex // inference is not concurrency safe
}

// NewDetector loads a YuNet ONNX model. scoreFloor is the detector's own
// threshold; the recognition pipeline applies its stricter gates afterwards.
func NewDetector(model string, scoreFloor, nms float32, topK int, backend gocv.NetBackendType, target gocv.NetTargetType) (*Detector, error) {
	if err := checkModel(model); err != nil {
		return nil, err
	}
	det := gocv.NewFaceDetectorYNWithParams(
		model,
		"",
		image.Pt(320, 320), // replaced per image
		scoreFloor,
		nms,
		topK,
		int(backend),
		int(target),
	)
	return &Detector{detector: det}, nil
}

// DetectFaces runs YuNet on img. Rows of the output hold x, y, w, h, five
// landmark pairs and the score in column 14.
func (d *Detector) DetectFaces(ctx context.Context, img image.Image) ([]recognition.FaceRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.detector.SetInputSize(image.Pt(mat.Cols(), mat.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(mat, &faces)

	out := make([]recognition.FaceRegion, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		out = append(out, recognition.FaceRegion{
			Box: recognition.Box{
				X: int(math.Round(float64(faces.GetFloatAt(r, 0)))),
				Y: int(math.Round(float64(faces.GetFloatAt(r, 1)))),
				W: int(math.Round(float64(faces.GetFloatAt(r, 2)))),
				H: int(math.Round(float64(faces.GetFloatAt(r, 3)))),
			},
			Confidence: float64(faces.GetFloatAt(r, 14)),
		})
	}
	return out, nil
}

// Close releases the model.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
