// Package video samples frames from a clip under a frame and wall-clock budget
// and aggregates per-frame identities into presence decisions.
package video

import (
	"context"
	"errors"
	"image"
	"io"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrOpen is returned by openers that cannot open a clip.
var ErrOpen = errors.New("video cannot be opened")

// FrameSource yields decoded frames sequentially. Read returns io.EOF after
// the last frame.
type FrameSource interface {
	TotalFrames() int
	Read() (image.Image, error)
	Close() error
}

// Opener opens a clip stored at path.
type Opener interface {
	Open(path string) (FrameSource, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (FrameSource, error)

// Open calls f(path).
func (f OpenerFunc) Open(path string) (FrameSource, error) {
	return f(path)
}

// StopReason tells why sampling ended.
type StopReason string

const (
	StopEndOfStream StopReason = "end_of_stream"
	StopTimeout     StopReason = "timeout"
	StopMaxFrames   StopReason = "max_frames"
	StopEarlyExit   StopReason = "early_exit"
	StopCancelled   StopReason = "cancelled"
	StopOpenFailed  StopReason = "open_failed"
	StopReadError   StopReason = "read_error"
)

// maxConsecutiveReadErrors ends sampling of a clip that keeps failing to decode.
const maxConsecutiveReadErrors = 5

// Budget bounds one sampling run.
type Budget struct {
	MaxFrames     int
	FrameInterval int
	Timeout       time.Duration
}

// Stride spreads MaxFrames over a clip of total frames:
// max(1, min(FrameInterval, total/MaxFrames)).
func (b Budget) Stride(total int) int {
	per := 0
	if b.MaxFrames > 0 && total > 0 {
		per = total / b.MaxFrames
	}
	return max(1, min(b.FrameInterval, per))
}

// Stopper is the early-exit signal from a frame consumer to the sampler.
type Stopper struct {
	stopped atomic.Bool
}

// Stop requests the sampler to end before the next frame read.
func (s *Stopper) Stop() {
	s.stopped.Store(true)
}

// Stopped reports whether Stop was called.
func (s *Stopper) Stopped() bool {
	return s.stopped.Load()
}

// Frame is a sampled frame. Index is the 1-based position in the clip.
type Frame struct {
	Index int
	Image image.Image
}

// Stats describes a finished sampling run.
type Stats struct {
	ProcessedFrames int           `json:"processed_frames"`
	ReadFrames      int           `json:"read_frames"`
	TotalFrames     int           `json:"total_frames"`
	Stride          int           `json:"stride"`
	Reason          StopReason    `json:"stop_reason"`
	Elapsed         time.Duration `json:"-"`
}

// Sampler walks a FrameSource and hands every stride-aligned frame to a visitor.
type Sampler struct {
	now func() time.Time
}

// NewSampler returns a sampler on the wall clock.
func NewSampler() *Sampler {
	return &Sampler{now: time.Now}
}

// Run reads src until a stop condition holds. Stop conditions are checked
// before each read, so the timeout is exceeded by at most one frame's work.
// Frames off the stride are read but not visited.
func (s *Sampler) Run(ctx context.Context, src FrameSource, budget Budget, stop *Stopper, visit func(Frame)) Stats {
	total := src.TotalFrames()
	stats := Stats{TotalFrames: total, Stride: budget.Stride(total)}
	start := s.now()
	failures := 0

	defer func() {
		stats.Elapsed = s.now().Sub(start)
	}()

	for {
		switch {
		case ctx.Err() != nil:
			stats.Reason = StopCancelled
			return stats
		case stop != nil && stop.Stopped():
			stats.Reason = StopEarlyExit
			return stats
		case budget.Timeout > 0 && s.now().Sub(start) > budget.Timeout:
			log.WithField("processed", stats.ProcessedFrames).Warn("Video processing timed out")
			stats.Reason = StopTimeout
			return stats
		case stats.ProcessedFrames >= budget.MaxFrames:
			stats.Reason = StopMaxFrames
			return stats
		case total > 0 && stats.ReadFrames >= total:
			stats.Reason = StopEndOfStream
			return stats
		}

		img, err := src.Read()
		if errors.Is(err, io.EOF) {
			stats.Reason = StopEndOfStream
			return stats
		}
		stats.ReadFrames++
		if err != nil {
			failures++
			log.Debugf("Skipping undecodable frame %d: %v", stats.ReadFrames, err)
			if failures >= maxConsecutiveReadErrors {
				stats.Reason = StopReadError
				return stats
			}
			continue
		}
		failures = 0

		if stats.ReadFrames%stats.Stride != 0 {
			continue
		}
		stats.ProcessedFrames++
		visit(Frame{Index: stats.ReadFrames, Image: img})
	}
}
