// Package enrollment registers reference faces for roster members.
package enrollment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"face-attendance-go/internal/core/models"
	"face-attendance-go/internal/recognition"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

var (
	ErrPersonNotFound = errors.New("person not found")
	ErrNoFace         = errors.New("no face found in photo")
	ErrLowConfidence  = errors.New("face detection confidence too low")
)

// Store is the persistence enrollment needs.
type Store interface {
	GetPerson(ctx context.Context, id uint) (*models.Person, error)
	SaveReferenceFace(ctx context.Context, face *models.ReferenceFace) error
}

// Gallery receives the cropped reference sample.
type Gallery interface {
	Add(person string, id uint, img image.Image) (string, error)
}

// Registration is the outcome of a successful enrollment.
type Registration struct {
	PersonID   uint            `json:"person_id"`
	Name       string          `json:"name"`
	FilePath   string          `json:"file_path"`
	Confidence float64         `json:"confidence"`
	Box        recognition.Box `json:"box"`
}

// Enroller detects the dominant face of a photo and stores it as reference.
type Enroller struct {
	detector      recognition.FaceDetector
	gallery       Gallery
	store         Store
	minConfidence float64
	cropSize      int
}

// New creates an enroller. Faces detected below minConfidence are rejected.
func New(detector recognition.FaceDetector, gallery Gallery, store Store, minConfidence float64, cropSize int) *Enroller {
	return &Enroller{
		detector:      detector,
		gallery:       gallery,
		store:         store,
		minConfidence: minConfidence,
		cropSize:      cropSize,
	}
}

// Enroll registers the largest face in data for personID. The crop has no
// margin and is scaled to the embedding input size.
func (e *Enroller) Enroll(ctx context.Context, personID uint, data []byte) (*Registration, error) {
	person, err := e.store.GetPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to load person: %w", err)
	}
	if person == nil {
		return nil, ErrPersonNotFound
	}

	img, err := recognition.Decode(data)
	if err != nil {
		return nil, err
	}
	return e.EnrollImage(ctx, person, img)
}

// EnrollImage is Enroll for an already decoded image and loaded person.
func (e *Enroller) EnrollImage(ctx context.Context, person *models.Person, img image.Image) (*Registration, error) {
	frame := recognition.Normalize(img)
	faces, err := e.detector.DetectFaces(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}
	if len(faces) == 0 {
		return nil, ErrNoFace
	}

	face := Largest(faces)
	if face.Confidence < e.minConfidence {
		return nil, fmt.Errorf("%w: %.3f < %.3f", ErrLowConfidence, face.Confidence, e.minConfidence)
	}

	rect := face.Box.Rect().Intersect(frame.Bounds())
	if rect.Empty() {
		return nil, ErrNoFace
	}
	crop := recognition.CropResize(frame, rect, e.cropSize)

	path, err := e.gallery.Add(person.Name, person.ID, crop)
	if err != nil {
		return nil, fmt.Errorf("failed to store reference sample: %w", err)
	}

	box, _ := json.Marshal(face.Box)
	ref := &models.ReferenceFace{
		PersonID:    person.ID,
		FilePath:    path,
		Confidence:  face.Confidence,
		BoundingBox: datatypes.JSON(box),
	}
	if err := e.store.SaveReferenceFace(ctx, ref); err != nil {
		return nil, fmt.Errorf("failed to save reference face: %w", err)
	}

	log.WithFields(log.Fields{
		"person_id":  person.ID,
		"name":       person.Name,
		"confidence": face.Confidence,
		"path":       path,
	}).Info("Reference face registered")

	return &Registration{
		PersonID:   person.ID,
		Name:       person.Name,
		FilePath:   path,
		Confidence: face.Confidence,
		Box:        face.Box,
	}, nil
}

// Largest returns the face with the biggest box area; the first wins ties.
func Largest(faces []recognition.FaceRegion) recognition.FaceRegion {
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Box.Area() > best.Box.Area() {
			best = f
		}
	}
	return best
}
