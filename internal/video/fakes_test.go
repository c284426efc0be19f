package video

import (
	"context"
	"errors"
	"image"
	"io"
	"time"

	"face-attendance-go/internal/recognition"
)

// fakeSource serves n blank frames. Frames listed in bad fail to decode.
type fakeSource struct {
	n        int
	reported int
	bad      map[int]bool
	read     int
	closed   bool
}

func newSource(n int) *fakeSource {
	return &fakeSource{n: n, reported: n}
}

func (s *fakeSource) TotalFrames() int { return s.reported }

func (s *fakeSource) Read() (image.Image, error) {
	if s.read >= s.n {
		return nil, io.EOF
	}
	s.read++
	if s.bad[s.read] {
		return nil, errors.New("corrupt frame")
	}
	// encode the frame index in the width so recognizers can tell frames apart
	return image.NewRGBA(image.Rect(0, 0, s.read, 1)), nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

// fakeClock advances only when told to.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// scriptedFrames returns candidates keyed by frame index.
type scriptedFrames struct {
	byFrame map[int][]recognition.IdentityCandidate
	seen    []int
}

func (f *scriptedFrames) Recognize(ctx context.Context, img image.Image, p recognition.Profile) []recognition.IdentityCandidate {
	idx := img.Bounds().Dx()
	f.seen = append(f.seen, idx)
	return f.byFrame[idx]
}

func cand(name string, score float64) recognition.IdentityCandidate {
	return recognition.IdentityCandidate{Name: name, Score: score}
}
