package ports

import (
	"context"

	"github.com/samirrijal/patrolscan/internal/core/domain"
)

// Classifier turns an imagery reference into candidate detections.
// Implementations return classifier.ErrTransientRateLimit or a
// *classifier.FatalError on failure.
type Classifier interface {
	Analyze(ctx context.Context, imageRef string) ([]domain.CandidateDetection, error)
}

// ImageryRefs builds the imagery reference for a footprint.
type ImageryRefs interface {
	RefFor(footprint domain.Bounds) string
}

// EventPublisher publishes patrol events to a message broker.
type EventPublisher interface {
	PublishSnapshot(ctx context.Context, snap *domain.Snapshot) error
	PublishDetections(ctx context.Context, detections []domain.Detection) error
	PublishLog(ctx context.Context, entry *domain.LogEntry) error
}

// SnapshotCache keeps the latest snapshot for out-of-process readers.
type SnapshotCache interface {
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
}

// LogSink receives operator log entries.
type LogSink interface {
	Append(entry domain.LogEntry)
	Entries() []domain.LogEntry
}
