package video

import (
	"sort"

	"face-attendance-go/internal/recognition"
)

// Observation is the running evidence for one identity within a clip.
// Best only increases and Count only grows.
type Observation struct {
	Best  float64
	Count int
}

// Gate is the exhaustive-mode acceptance rule.
type Gate struct {
	MinScore      float64
	MinDetections int
	DetectionRate float64
}

// RequiredDetections returns max(MinDetections, processed*DetectionRate).
func (g Gate) RequiredDetections(processed int) float64 {
	return max(float64(g.MinDetections), float64(processed)*g.DetectionRate)
}

// Presence is an identity that passed the gate.
type Presence struct {
	Name          string  `json:"name"`
	Best          float64 `json:"confidence"`
	Count         int     `json:"detections"`
	DetectionRate float64 `json:"detection_rate"`
}

// Aggregator accumulates per-identity observations for one clip. It is not
// safe for concurrent use and must not outlive the call that created it.
type Aggregator struct {
	obs map[string]*Observation
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{obs: make(map[string]*Observation)}
}

// Observe folds one frame's candidates into the running state.
func (a *Aggregator) Observe(candidates []recognition.IdentityCandidate) {
	for _, c := range candidates {
		if c.Score < 0 {
			continue
		}
		o, ok := a.obs[c.Name]
		if !ok {
			a.obs[c.Name] = &Observation{Best: c.Score, Count: 1}
			continue
		}
		o.Best = max(o.Best, c.Score)
		o.Count++
	}
}

// Get returns the observation for name.
func (a *Aggregator) Get(name string) (Observation, bool) {
	o, ok := a.obs[name]
	if !ok {
		return Observation{}, false
	}
	return *o, true
}

// Len returns the number of distinct identities seen.
func (a *Aggregator) Len() int {
	return len(a.obs)
}

// Finalize keeps identities with Count >= gate.RequiredDetections(processed)
// and Best >= gate.MinScore, sorted by Best descending then name. With no
// processed frames nothing qualifies.
func (a *Aggregator) Finalize(processed int, gate Gate) []Presence {
	if processed <= 0 {
		return nil
	}
	need := gate.RequiredDetections(processed)

	var out []Presence
	for name, o := range a.obs {
		if float64(o.Count) < need || o.Best < gate.MinScore {
			continue
		}
		out = append(out, Presence{
			Name:          name,
			Best:          o.Best,
			Count:         o.Count,
			DetectionRate: float64(o.Count) / float64(processed),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Best != out[j].Best {
			return out[i].Best > out[j].Best
		}
		return out[i].Name < out[j].Name
	})
	return out
}
