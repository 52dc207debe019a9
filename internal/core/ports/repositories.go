package ports

import (
	"context"

	"github.com/samirrijal/patrolscan/internal/core/domain"
)

// DetectionArchive receives accepted detections for offline analysis.
// It is write-only: nothing is ever loaded back into a running patrol.
type DetectionArchive interface {
	InsertBatch(ctx context.Context, detections []domain.Detection) error
}
