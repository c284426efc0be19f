package opencv

import (
	"errors"
	"fmt"
	"image"
	"io"

	"face-attendance-go/internal/video"

	"gocv.io/x/gocv"
)

var errEmptyFrame = errors.New("empty frame")

// Capture reads frames from a video file through OpenCV's VideoCapture.
type Capture struct {
	vc    *gocv.VideoCapture
	mat   gocv.Mat
	total int
}

// OpenCapture opens a video file.
func OpenCapture(path string) (*Capture, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", video.ErrOpen, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", video.ErrOpen, path)
	}
	return &Capture{
		vc:    vc,
		mat:   gocv.NewMat(),
		total: int(vc.Get(gocv.VideoCaptureFrameCount)),
	}, nil
}

// TotalFrames returns the container's frame count; 0 when unknown.
func (c *Capture) TotalFrames() int {
	if c.total < 0 {
		return 0
	}
	return c.total
}

// Read decodes the next frame into an RGBA image.
func (c *Capture) Read() (image.Image, error) {
	if ok := c.vc.Read(&c.mat); !ok {
		return nil, io.EOF
	}
	if c.mat.Empty() {
		return nil, errEmptyFrame
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

// Close releases the capture.
func (c *Capture) Close() error {
	c.mat.Close()
	return c.vc.Close()
}
