// Package opencv provides the face detector, embedding matcher and video frame
// source on top of gocv.
package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"face-attendance-go/config"
	"face-attendance-go/internal/recognition"
	"face-attendance-go/internal/video"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ErrDisabled is returned when OpenCV is switched off in the configuration.
var ErrDisabled = errors.New("opencv is disabled")

// Service owns the YuNet detector and SFace embedder. Models are loaded on
// first use.
type Service struct {
	cfg         *config.OpenCVConfig
	detector    *Detector
	embedder    *Embedder
	mutex       sync.Mutex
	initialized bool
}

// NewService creates the service. Models are loaded eagerly when enabled so
// that a missing model file fails at startup.
func NewService(cfg *config.OpenCVConfig) (*Service, error) {
	service := &Service{cfg: cfg}

	if cfg.Enabled {
		if err := service.initialize(); err != nil {
			return nil, fmt.Errorf("failed to initialize OpenCV service: %w", err)
		}
	} else {
		log.Info("OpenCV service is disabled in the configuration")
	}
	return service, nil
}

func (s *Service) initialize() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.initialized {
		return nil
	}
	if !s.cfg.Enabled {
		return ErrDisabled
	}

	backend, target := parseBackend(s.cfg.Backend), parseTarget(s.cfg.Target)

	det, err := NewDetector(s.cfg.DetectorModel, float32(s.cfg.DetectorScoreFloor), float32(s.cfg.NMSThreshold), s.cfg.TopK, backend, target)
	if err != nil {
		return fmt.Errorf("could not load face detector: %w", err)
	}
	emb, err := NewEmbedder(s.cfg.RecognizerModel, s.cfg.FeatureCacheSize, backend, target)
	if err != nil {
		det.Close()
		return fmt.Errorf("could not load face recognizer: %w", err)
	}

	s.detector = det
	s.embedder = emb
	s.initialized = true
	log.WithFields(log.Fields{
		"detector":   s.cfg.DetectorModel,
		"recognizer": s.cfg.RecognizerModel,
		"backend":    s.cfg.Backend,
		"target":     s.cfg.Target,
	}).Info("OpenCV models loaded")
	return nil
}

// DetectFaces implements recognition.FaceDetector.
func (s *Service) DetectFaces(ctx context.Context, img image.Image) ([]recognition.FaceRegion, error) {
	if err := s.initialize(); err != nil {
		return nil, err
	}
	return s.detector.DetectFaces(ctx, img)
}

// Distance implements recognition.EmbeddingMatcher.
func (s *Service) Distance(ctx context.Context, face, reference image.Image) (float64, error) {
	if err := s.initialize(); err != nil {
		return 0, err
	}
	return s.embedder.Distance(ctx, face, reference)
}

// Open implements video.Opener.
func (s *Service) Open(path string) (video.FrameSource, error) {
	return OpenCapture(path)
}

// Ready reports whether the models are loaded.
func (s *Service) Ready() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.initialized
}

// Close releases the models.
func (s *Service) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.initialized {
		return nil
	}
	var errs []error
	if s.detector != nil {
		errs = append(errs, s.detector.Close())
	}
	if s.embedder != nil {
		errs = append(errs, s.embedder.Close())
	}
	s.initialized = false
	return errors.Join(errs...)
}

func checkModel(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", path)
	}
	return nil
}

func parseBackend(s string) gocv.NetBackendType {
	switch strings.ToLower(s) {
	case "cuda":
		return gocv.NetBackendCUDA
	case "opencv":
		return gocv.NetBackendOpenCV
	case "openvino":
		return gocv.NetBackendOpenVINO
	default:
		return gocv.NetBackendDefault
	}
}

func parseTarget(s string) gocv.NetTargetType {
	switch strings.ToLower(s) {
	case "cuda":
		return gocv.NetTargetCUDA
	case "opencl":
		return gocv.NetTargetFP32
	default:
		return gocv.NetTargetCPU
	}
}
