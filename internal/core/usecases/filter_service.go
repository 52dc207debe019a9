package usecases

import (
	"sync"

	"github.com/samirrijal/patrolscan/internal/core/domain"
)

// FacetCounts maps facet -> value -> number of detections with that value.
type FacetCounts map[domain.Facet]map[string]int

// FilterService keeps the session's active filter over a DetectionStore.
type FilterService struct {
	store *DetectionStore

	mu    sync.RWMutex
	query domain.FilterQuery
}

// NewFilterService creates a FilterService with every facet empty.
func NewFilterService(store *DetectionStore) *FilterService {
	return &FilterService{store: store, query: domain.NewFilterQuery()}
}

// Toggle flips a single value within a facet.
func (s *FilterService) Toggle(facet domain.Facet, value string) (domain.FilterQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.query.Toggle(facet, value); err != nil {
		return s.query.Clone(), err
	}
	return s.query.Clone(), nil
}

// Reset clears every facet.
func (s *FilterService) Reset() domain.FilterQuery {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.query.Reset()
	return s.query.Clone()
}

// Current returns a copy of the active query.
func (s *FilterService) Current() domain.FilterQuery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query.Clone()
}

// Filtered returns the detections matching the active query.
func (s *FilterService) Filtered() []domain.Detection {
	return s.store.Query(s.Current())
}

// Query runs an ad-hoc query without touching the active filter.
func (s *FilterService) Query(q domain.FilterQuery) []domain.Detection {
	return s.store.Query(q)
}

// Counts tallies every facet value over the unfiltered store.
func (s *FilterService) Counts() FacetCounts {
	counts := FacetCounts{}
	for _, f := range domain.AllFacets {
		counts[f] = map[string]int{}
	}
	for _, d := range s.store.All() {
		counts[domain.FacetKind][string(d.Kind)]++
		counts[domain.FacetHazardLevel][string(d.HazardLevel)]++
		counts[domain.FacetImpactArea][string(d.ImpactArea)]++
		counts[domain.FacetConfidence][string(d.ConfidenceBucket())]++
	}
	return counts
}
