package video

import (
	"context"
	"errors"
	"fmt"
	"image"

	"face-attendance-go/internal/recognition"

	log "github.com/sirupsen/logrus"
)

// Policy selects how per-frame evidence becomes a result.
type Policy string

const (
	// PolicyFirstMatch stops at the first candidate meeting MinConfidence and
	// returns only that candidate.
	PolicyFirstMatch Policy = "first_match"
	// PolicyExhaustive samples the whole budget and applies Gate; MinConfidence
	// is not consulted.
	PolicyExhaustive Policy = "exhaustive"
)

// ParsePolicy validates a policy name. Empty selects PolicyFirstMatch.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFirstMatch:
		return PolicyFirstMatch, nil
	case PolicyExhaustive:
		return PolicyExhaustive, nil
	}
	return "", fmt.Errorf("unknown video policy %q", s)
}

// FrameRecognizer identifies the faces of one frame.
type FrameRecognizer interface {
	Recognize(ctx context.Context, img image.Image, p recognition.Profile) []recognition.IdentityCandidate
}

// Options configures one clip recognition.
type Options struct {
	Budget
	MinConfidence float64
	Policy        Policy
	Gate          Gate
	Profile       recognition.Profile
}

// Result is the outcome of recognizing a clip.
type Result struct {
	Candidates []recognition.IdentityCandidate
	Stats      Stats
	Policy     Policy
}

// Recognizer runs a FrameRecognizer over sampled frames of a clip.
type Recognizer struct {
	opener  Opener
	frames  FrameRecognizer
	sampler *Sampler
}

// NewRecognizer wires the clip opener and per-frame recognizer.
func NewRecognizer(opener Opener, frames FrameRecognizer) *Recognizer {
	return &Recognizer{opener: opener, frames: frames, sampler: NewSampler()}
}

// RecognizePath opens path and recognizes it. A clip that cannot be opened
// yields an empty result with StopOpenFailed.
func (r *Recognizer) RecognizePath(ctx context.Context, path string, opts Options) Result {
	src, err := r.opener.Open(path)
	if err != nil {
		if !errors.Is(err, ErrOpen) {
			err = fmt.Errorf("%w: %v", ErrOpen, err)
		}
		log.WithField("path", path).Warnf("Video open failed: %v", err)
		return Result{Policy: opts.Policy, Stats: Stats{Reason: StopOpenFailed}}
	}
	defer src.Close()
	return r.Recognize(ctx, src, opts)
}

// Recognize samples src under opts.
func (r *Recognizer) Recognize(ctx context.Context, src FrameSource, opts Options) Result {
	if opts.Policy == "" {
		opts.Policy = PolicyFirstMatch
	}

	agg := NewAggregator()
	stop := &Stopper{}
	var first *recognition.IdentityCandidate

	visit := func(f Frame) {
		cands := r.frames.Recognize(ctx, f.Image, opts.Profile)
		agg.Observe(cands)
		if opts.Policy != PolicyFirstMatch {
			return
		}
		for _, c := range cands {
			if c.Score >= opts.MinConfidence {
				c := c
				first = &c
				log.WithFields(log.Fields{"frame": f.Index, "name": c.Name, "confidence": c.Score}).Info("Face recognized in video")
				stop.Stop()
				return
			}
		}
	}

	stats := r.sampler.Run(ctx, src, opts.Budget, stop, visit)
	res := Result{Stats: stats, Policy: opts.Policy}

	switch opts.Policy {
	case PolicyFirstMatch:
		if first != nil {
			res.Candidates = []recognition.IdentityCandidate{*first}
		}
	case PolicyExhaustive:
		for _, p := range agg.Finalize(stats.ProcessedFrames, opts.Gate) {
			res.Candidates = append(res.Candidates, recognition.IdentityCandidate{Name: p.Name, Score: p.Best})
		}
	}

	log.WithFields(log.Fields{
		"policy":     res.Policy,
		"processed":  stats.ProcessedFrames,
		"total":      stats.TotalFrames,
		"stride":     stats.Stride,
		"reason":     stats.Reason,
		"identities": len(res.Candidates),
	}).Info("Video recognition finished")
	return res
}
