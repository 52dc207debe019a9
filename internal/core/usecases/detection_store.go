package usecases

import (
	"sync"
	"time"

	"github.com/samirrijal/patrolscan/internal/core/domain"
)

// DetectionStore holds accepted detections in insertion order. Detections
// are only ever appended; with a non-zero horizon, entries older than the
// horizon are pruned when new ones arrive.
type DetectionStore struct {
	mu         sync.RWMutex
	detections []domain.Detection
	horizon    time.Duration
	now        func() time.Time
}

// NewDetectionStore creates a store. A zero horizon keeps everything for the session.
func NewDetectionStore(horizon time.Duration) *DetectionStore {
	return &DetectionStore{horizon: horizon, now: time.Now}
}

// Append adds copies of detections to the end of the store.
func (s *DetectionStore) Append(detections []domain.Detection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.horizon > 0 {
		cutoff := s.now().Add(-s.horizon)
		kept := s.detections[:0:0]
		for _, d := range s.detections {
			if !d.ObservedAt.Before(cutoff) {
				kept = append(kept, d)
			}
		}
		s.detections = kept
	}

	for _, d := range detections {
		s.detections = append(s.detections, d.Clone())
	}
}

// Query returns the detections matching q, in insertion order.
func (s *DetectionStore) Query(q domain.FilterQuery) []domain.Detection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Detection, 0, len(s.detections))
	for _, d := range s.detections {
		if q.Matches(d) {
			out = append(out, d.Clone())
		}
	}
	return out
}

// All returns a deep copy of every stored detection.
func (s *DetectionStore) All() []domain.Detection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Detection, len(s.detections))
	for i, d := range s.detections {
		out[i] = d.Clone()
	}
	return out
}

// Len returns the number of stored detections.
func (s *DetectionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.detections)
}
