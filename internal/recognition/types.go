// Package recognition turns images into identity candidates: it detects faces,
// filters them by detection confidence, crops them with a margin and resolves
// each crop against the reference gallery.
package recognition

import (
	"context"
	"image"
)

// Box is a face bounding box in pixel coordinates.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect returns the box as an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Area returns the box area in pixels.
func (b Box) Area() int {
	return b.W * b.H
}

// FaceRegion is one detector hit.
type FaceRegion struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// IdentityCandidate is a resolved identity with its similarity score in [0,1].
type IdentityCandidate struct {
	Name  string  `json:"name"`
	Score float64 `json:"confidence"`
}

// ScoreFromDistance converts an embedding distance to a similarity score.
func ScoreFromDistance(distance float64) float64 {
	return 1 - distance
}

// FaceDetector finds faces in an RGB image.
type FaceDetector interface {
	DetectFaces(ctx context.Context, img image.Image) ([]FaceRegion, error)
}

// EmbeddingMatcher returns the embedding distance between two face crops.
// Lower is more similar.
type EmbeddingMatcher interface {
	Distance(ctx context.Context, face, reference image.Image) (float64, error)
}

// Reference is one reference sample of a known person. Load may fail for a
// corrupt sample; callers skip such samples.
type Reference struct {
	Person string
	Source string
	Load   func() (image.Image, error)
}

// Gallery exposes the known persons and their reference samples.
type Gallery interface {
	Persons(ctx context.Context) ([]string, error)
	SamplesFor(ctx context.Context, person string) ([]Reference, error)
}
