package video

import (
	"context"
	"errors"
	"testing"
	"time"

	"face-attendance-go/internal/recognition"
)

func newTestRecognizer(src *fakeSource, frames FrameRecognizer) *Recognizer {
	r := NewRecognizer(OpenerFunc(func(string) (FrameSource, error) { return src, nil }), frames)
	r.sampler = &Sampler{now: (&fakeClock{t: time.Unix(0, 0)}).now}
	return r
}

func TestFirstMatchStopsAtFirstQualifyingCandidate(t *testing.T) {
	frames := &scriptedFrames{byFrame: map[int][]recognition.IdentityCandidate{
		2: {cand("bob", 0.55)},
		4: {cand("alice", 0.58), cand("carol", 0.72), cand("dave", 0.90)},
		5: {cand("erin", 0.99)},
	}}
	src := newSource(300)
	r := newTestRecognizer(src, frames)

	res := r.RecognizePath(context.Background(), "clip.mp4", Options{
		Budget:        Budget{MaxFrames: 30, FrameInterval: 1, Timeout: 10 * time.Second},
		MinConfidence: 0.60,
		Policy:        PolicyFirstMatch,
	})

	if len(res.Candidates) != 1 || res.Candidates[0].Name != "carol" {
		t.Fatalf("candidates = %+v, want carol only", res.Candidates)
	}
	if res.Stats.Reason != StopEarlyExit || res.Stats.ProcessedFrames != 4 || res.Stats.TotalFrames != 300 {
		t.Errorf("stats = %+v", res.Stats)
	}
	if len(frames.seen) != 4 {
		t.Errorf("frames analyzed after early exit: %v", frames.seen)
	}
	if !src.closed {
		t.Error("source not closed")
	}
}

func TestFirstMatchWithoutQualifyingCandidate(t *testing.T) {
	frames := &scriptedFrames{byFrame: map[int][]recognition.IdentityCandidate{
		1: {cand("bob", 0.55)},
	}}
	res := newTestRecognizer(newSource(10), frames).RecognizePath(context.Background(), "clip.mp4", Options{
		Budget:        Budget{MaxFrames: 30, FrameInterval: 1},
		MinConfidence: 0.60,
	})
	if len(res.Candidates) != 0 || res.Policy != PolicyFirstMatch || res.Stats.ProcessedFrames != 10 {
		t.Errorf("result = %+v", res)
	}
}

func TestExhaustiveAppliesGate(t *testing.T) {
	byFrame := map[int][]recognition.IdentityCandidate{}
	for i := 1; i <= 40; i++ {
		switch {
		case i%10 == 0:
			byFrame[i] = []recognition.IdentityCandidate{cand("alice", 0.50)}
		case i == 7:
			byFrame[i] = []recognition.IdentityCandidate{cand("bob", 0.95)}
		case i%13 == 0:
			byFrame[i] = []recognition.IdentityCandidate{cand("carol", 0.40)}
		}
	}
	frames := &scriptedFrames{byFrame: byFrame}

	res := newTestRecognizer(newSource(40), frames).Recognize(context.Background(), newSource(40), Options{
		Budget:        Budget{MaxFrames: 40, FrameInterval: 1},
		MinConfidence: 0.60,
		Policy:        PolicyExhaustive,
		Gate:          defaultGate,
	})

	if len(res.Candidates) != 1 || res.Candidates[0].Name != "alice" || res.Candidates[0].Score != 0.50 {
		t.Fatalf("candidates = %+v, want alice@0.50", res.Candidates)
	}
	if res.Stats.ProcessedFrames != 40 || len(frames.seen) != 40 {
		t.Errorf("processed = %d, analyzed = %d", res.Stats.ProcessedFrames, len(frames.seen))
	}
}

func TestOpenFailureIsEmptyResult(t *testing.T) {
	r := NewRecognizer(OpenerFunc(func(string) (FrameSource, error) {
		return nil, errors.New("codec missing")
	}), &scriptedFrames{})

	res := r.RecognizePath(context.Background(), "broken.mp4", Options{Budget: Budget{MaxFrames: 30, FrameInterval: 1}})
	if len(res.Candidates) != 0 || res.Stats.Reason != StopOpenFailed || res.Stats.ProcessedFrames != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": PolicyFirstMatch, "first_match": PolicyFirstMatch, "exhaustive": PolicyExhaustive} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("majority"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
