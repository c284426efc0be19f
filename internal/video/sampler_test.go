package video

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestBudgetStride(t *testing.T) {
	tests := []struct {
		name     string
		budget   Budget
		total    int
		want     int
	}{
		{"scenario c", Budget{MaxFrames: 30, FrameInterval: 1}, 300, 1},
		{"interval below spread", Budget{MaxFrames: 30, FrameInterval: 5}, 300, 5},
		{"spread below interval", Budget{MaxFrames: 30, FrameInterval: 20}, 300, 10},
		{"short clip", Budget{MaxFrames: 30, FrameInterval: 4}, 20, 1},
		{"unknown length", Budget{MaxFrames: 30, FrameInterval: 4}, 0, 1},
		{"zero interval", Budget{MaxFrames: 30, FrameInterval: 0}, 300, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.budget.Stride(tt.total); got != tt.want {
				t.Errorf("Stride(%d) = %d, want %d", tt.total, got, tt.want)
			}
		})
	}
}

func runSampler(t *testing.T, src FrameSource, b Budget, stop *Stopper, clock *fakeClock, visit func(Frame)) Stats {
	t.Helper()
	if clock == nil {
		clock = &fakeClock{t: time.Unix(0, 0)}
	}
	s := &Sampler{now: clock.now}
	return s.Run(context.Background(), src, b, stop, visit)
}

func TestSamplerScenarioC(t *testing.T) {
	var visited []int
	stats := runSampler(t, newSource(300), Budget{MaxFrames: 30, FrameInterval: 1, Timeout: 10 * time.Second}, nil, nil,
		func(f Frame) { visited = append(visited, f.Index) })

	if stats.Reason != StopMaxFrames || stats.ProcessedFrames != 30 || stats.ReadFrames != 30 {
		t.Fatalf("stats = %+v", stats)
	}
	for i, idx := range visited {
		if idx != i+1 {
			t.Fatalf("visited[%d] = %d, want %d", i, idx, i+1)
		}
	}
}

func TestSamplerStrideReadsSkippedFrames(t *testing.T) {
	var visited []int
	stats := runSampler(t, newSource(300), Budget{MaxFrames: 30, FrameInterval: 20}, nil, nil,
		func(f Frame) { visited = append(visited, f.Index) })

	if stats.Stride != 10 || stats.ProcessedFrames != 30 || stats.ReadFrames != 300 {
		t.Fatalf("stats = %+v", stats)
	}
	if visited[0] != 10 || visited[29] != 300 {
		t.Errorf("visited = %v", visited)
	}
}

func TestSamplerEndOfStream(t *testing.T) {
	tests := []struct {
		name     string
		src      *fakeSource
		wantRead int
	}{
		{"known length", newSource(7), 7},
		{"unknown length", &fakeSource{n: 4}, 4},
		{"length overstated", &fakeSource{n: 3, reported: 10}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := runSampler(t, tt.src, Budget{MaxFrames: 30, FrameInterval: 1}, nil, nil, func(Frame) {})
			if stats.Reason != StopEndOfStream || stats.ReadFrames != tt.wantRead || stats.ProcessedFrames != tt.wantRead {
				t.Errorf("stats = %+v", stats)
			}
		})
	}
}

func TestSamplerTimeout(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	stats := runSampler(t, newSource(100), Budget{MaxFrames: 30, FrameInterval: 1, Timeout: 2 * time.Second}, nil, clock,
		func(Frame) { clock.advance(1500 * time.Millisecond) })

	// checks happen before each read: 0s, 1.5s pass; 3s fails
	if stats.Reason != StopTimeout || stats.ProcessedFrames != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSamplerEarlyExit(t *testing.T) {
	stop := &Stopper{}
	var visited []int
	stats := runSampler(t, newSource(100), Budget{MaxFrames: 30, FrameInterval: 1}, stop, nil, func(f Frame) {
		visited = append(visited, f.Index)
		if f.Index == 3 {
			stop.Stop()
		}
	})
	if stats.Reason != StopEarlyExit || !reflect.DeepEqual(visited, []int{1, 2, 3}) {
		t.Errorf("stats = %+v, visited = %v", stats, visited)
	}
}

func TestSamplerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Sampler{now: (&fakeClock{}).now}
	stats := s.Run(ctx, newSource(10), Budget{MaxFrames: 5, FrameInterval: 1}, nil, func(Frame) {
		t.Fatal("no frame should be visited")
	})
	if stats.Reason != StopCancelled {
		t.Errorf("reason = %s", stats.Reason)
	}
}

func TestSamplerReadErrors(t *testing.T) {
	src := newSource(10)
	src.bad = map[int]bool{2: true, 3: true}
	var visited []int
	stats := runSampler(t, src, Budget{MaxFrames: 30, FrameInterval: 1}, nil, nil, func(f Frame) {
		visited = append(visited, f.Index)
	})
	if stats.Reason != StopEndOfStream || len(visited) != 8 || visited[1] != 4 {
		t.Errorf("stats = %+v, visited = %v", stats, visited)
	}

	broken := newSource(10)
	broken.bad = map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true}
	stats = runSampler(t, broken, Budget{MaxFrames: 30, FrameInterval: 1}, nil, nil, func(Frame) {})
	if stats.Reason != StopReadError || stats.ProcessedFrames != 0 {
		t.Errorf("stats = %+v", stats)
	}
}
