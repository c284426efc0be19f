package recognition

import (
	"context"
	"image"
	"sync"

	log "github.com/sirupsen/logrus"
)

// MatchSelector resolves a face crop to the closest reference in the gallery.
type MatchSelector struct {
	gallery   Gallery
	matcher   EmbeddingMatcher
	threshold float64
	parallel  int
}

// NewMatchSelector creates a selector accepting matches with distance <= threshold.
// parallel bounds the concurrent reference comparisons; values below 1 mean 1.
func NewMatchSelector(gallery Gallery, matcher EmbeddingMatcher, threshold float64, parallel int) *MatchSelector {
	if parallel < 1 {
		parallel = 1
	}
	return &MatchSelector{
		gallery:   gallery,
		matcher:   matcher,
		threshold: threshold,
		parallel:  parallel,
	}
}

type comparison struct {
	distance float64
	ok       bool
}

// Match compares crop against every reference sample and returns the one with
// the minimum distance. Ties go to the earlier sample in gallery order. It
// reports false when the gallery is empty, every comparison failed, or the best
// distance exceeds the threshold.
func (s *MatchSelector) Match(ctx context.Context, crop image.Image) (IdentityCandidate, bool) {
	refs := s.references(ctx)
	if len(refs) == 0 {
		return IdentityCandidate{}, false
	}

	results := make([]comparison, len(refs))
	sem := make(chan struct{}, s.parallel)
	var wg sync.WaitGroup

	for i, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, ref Reference) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = s.compare(ctx, crop, ref)
		}(i, ref)
	}
	wg.Wait()

	best := -1
	for i, r := range results {
		if !r.ok {
			continue
		}
		if best < 0 || r.distance < results[best].distance {
			best = i
		}
	}
	if best < 0 {
		return IdentityCandidate{}, false
	}

	d := results[best].distance
	if d > s.threshold {
		log.WithFields(log.Fields{
			"closest":  refs[best].Person,
			"distance": d,
		}).Debug("Closest reference above distance threshold")
		return IdentityCandidate{}, false
	}
	return IdentityCandidate{Name: refs[best].Person, Score: ScoreFromDistance(d)}, true
}

func (s *MatchSelector) references(ctx context.Context) []Reference {
	persons, err := s.gallery.Persons(ctx)
	if err != nil {
		log.Warnf("Failed to list gallery persons: %v", err)
		return nil
	}
	var refs []Reference
	for _, p := range persons {
		samples, err := s.gallery.SamplesFor(ctx, p)
		if err != nil {
			log.Warnf("Skipping gallery person %s: %v", p, err)
			continue
		}
		refs = append(refs, samples...)
	}
	return refs
}

func (s *MatchSelector) compare(ctx context.Context, crop image.Image, ref Reference) comparison {
	img, err := ref.Load()
	if err != nil {
		log.Warnf("Skipping unreadable reference %s: %v", ref.Source, err)
		return comparison{}
	}
	d, err := s.matcher.Distance(ctx, crop, img)
	if err != nil {
		log.Debugf("Comparison against %s failed: %v", ref.Source, err)
		return comparison{}
	}
	return comparison{distance: d, ok: true}
}
