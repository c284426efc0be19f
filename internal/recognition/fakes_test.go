package recognition

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
)

type fakeDetector struct {
	faces []FaceRegion
	err   error
	calls int
}

func (d *fakeDetector) DetectFaces(ctx context.Context, img image.Image) ([]FaceRegion, error) {
	d.calls++
	return d.faces, d.err
}

// fakeMatcher returns a fixed distance per reference image.
type fakeMatcher struct {
	mu        sync.Mutex
	distances map[image.Image]float64
	failing   map[image.Image]bool
	calls     int
}

func (m *fakeMatcher) Distance(ctx context.Context, face, ref image.Image) (float64, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.failing[ref] {
		return 0, errors.New("comparison failed")
	}
	d, ok := m.distances[ref]
	if !ok {
		return 0, errors.New("unknown reference")
	}
	return d, nil
}

type fakeGallery struct {
	order   []string
	samples map[string][]Reference
	err     error
}

func (g *fakeGallery) Persons(ctx context.Context) ([]string, error) {
	return g.order, g.err
}

func (g *fakeGallery) SamplesFor(ctx context.Context, person string) ([]Reference, error) {
	return g.samples[person], nil
}

func solid(c uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{c, c, c, 255})
		}
	}
	return img
}

func ref(person, source string, img image.Image) Reference {
	return Reference{Person: person, Source: source, Load: func() (image.Image, error) { return img, nil }}
}

func brokenRef(person, source string) Reference {
	return Reference{Person: person, Source: source, Load: func() (image.Image, error) {
		return nil, errors.New("corrupt file")
	}}
}
