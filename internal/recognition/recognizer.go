package recognition

import (
	"context"
	"image"

	log "github.com/sirupsen/logrus"
)

// Profile is the operating point of one recognition call.
type Profile struct {
	DetectThreshold float64 // minimum detector confidence
	Margin          float64 // box expansion as a fraction of min(w, h)
	MaxDimension    int     // downscale larger inputs first; 0 disables
}

// Analysis is the full outcome of recognizing one image.
type Analysis struct {
	FacesDetected int
	FacesAccepted int
	Candidates    []IdentityCandidate
}

// ImageRecognizer detects and identifies the faces in a single image.
type ImageRecognizer struct {
	detector FaceDetector
	selector *MatchSelector
	cropSize int
}

// NewImageRecognizer wires a detector and selector. cropSize is the input edge
// length of the embedding model.
func NewImageRecognizer(detector FaceDetector, selector *MatchSelector, cropSize int) *ImageRecognizer {
	return &ImageRecognizer{detector: detector, selector: selector, cropSize: cropSize}
}

// Recognize returns the identities found in img. An image without usable faces
// yields an empty list.
func (r *ImageRecognizer) Recognize(ctx context.Context, img image.Image, p Profile) []IdentityCandidate {
	return r.Analyze(ctx, img, p).Candidates
}

// Analyze is Recognize with detection counts.
func (r *ImageRecognizer) Analyze(ctx context.Context, img image.Image, p Profile) Analysis {
	var out Analysis
	if img == nil || img.Bounds().Empty() {
		return out
	}

	frame := Normalize(Downscale(img, p.MaxDimension))

	faces, err := r.detector.DetectFaces(ctx, frame)
	if err != nil {
		log.Warnf("Face detection failed: %v", err)
		return out
	}
	out.FacesDetected = len(faces)

	for _, face := range faces {
		if face.Confidence < p.DetectThreshold {
			continue
		}
		rect := ExpandBox(face.Box, p.Margin, frame.Bounds())
		if rect.Empty() {
			continue
		}
		out.FacesAccepted++

		crop := CropResize(frame, rect, r.cropSize)
		if cand, ok := r.selector.Match(ctx, crop); ok {
			out.Candidates = append(out.Candidates, cand)
		}
	}
	return out
}
