package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/patrolscan/internal/core/domain"
	"github.com/samirrijal/patrolscan/internal/core/ports"
	"github.com/samirrijal/patrolscan/internal/pkg/backoff"
	"github.com/samirrijal/patrolscan/internal/pkg/metrics"
)

// Retrying retries rate-limited calls of the wrapped classifier with
// exponential backoff. Every error it returns is a *FatalError.
type Retrying struct {
	next   ports.Classifier
	policy backoff.Policy
}

// NewRetrying wraps next with policy.
func NewRetrying(next ports.Classifier, policy backoff.Policy) *Retrying {
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			slog.Warn("classification rate limited, backing off",
				"attempt", attempt, "delay", delay.Round(time.Millisecond), "error", err)
		}
	}
	return &Retrying{next: next, policy: policy}
}

// Analyze implements ports.Classifier.
func (r *Retrying) Analyze(ctx context.Context, imageRef string) ([]domain.CandidateDetection, error) {
	start := time.Now()
	defer func() { metrics.ClassificationDuration.Observe(time.Since(start).Seconds()) }()

	var out []domain.CandidateDetection
	attempts, err := r.policy.Do(ctx, IsTransient, func(ctx context.Context) error {
		metrics.ClassificationAttempts.Inc()
		res, err := r.next.Analyze(ctx, imageRef)
		out = res
		return err
	})

	switch {
	case err == nil:
		metrics.ClassificationRequests.WithLabelValues("success").Inc()
		return out, nil
	case IsTransient(err):
		metrics.ClassificationRequests.WithLabelValues("rate_limited").Inc()
		return nil, Fatal(fmt.Sprintf("rate limit persisted after %d attempts", attempts), err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		metrics.ClassificationRequests.WithLabelValues("cancelled").Inc()
		return nil, Fatal("classification cancelled", err)
	case IsFatal(err):
		metrics.ClassificationRequests.WithLabelValues("failed").Inc()
		return nil, err
	default:
		metrics.ClassificationRequests.WithLabelValues("failed").Inc()
		return nil, Fatal("classification failed", err)
	}
}
