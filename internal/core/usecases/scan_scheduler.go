package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/patrolscan/internal/core/domain"
	"github.com/samirrijal/patrolscan/internal/core/patrol"
	"github.com/samirrijal/patrolscan/internal/core/ports"
	"github.com/samirrijal/patrolscan/internal/pkg/metrics"
)

// SnapshotKey is the cache key holding the latest patrol snapshot.
const SnapshotKey = "patrol:snapshot"

var (
	ErrAlreadyRunning = errors.New("patrol already running")
	ErrNotRunning     = errors.New("patrol not running")
)

var stateLabels = func() []string {
	out := make([]string, len(domain.AllScanStates))
	for i, s := range domain.AllScanStates {
		out[i] = string(s)
	}
	return out
}()

// SchedulerConfig holds the scheduler's cadences.
type SchedulerConfig struct {
	TickInterval       time.Duration
	AnalysisPeriod     int // ticks between classification calls
	ImageRefreshPeriod int // ticks between imagery reference updates
}

// SchedulerDeps are the scheduler's collaborators. Publisher, Snapshots and
// Archive are optional.
type SchedulerDeps struct {
	Engine     *patrol.Engine
	Classifier ports.Classifier
	Store      *DetectionStore
	Logs       ports.LogSink
	Imagery    ports.ImageryRefs
	Publisher  ports.EventPublisher
	Snapshots  ports.SnapshotCache
	Archive    ports.DetectionArchive
}

// ScanScheduler drives the patrol: each tick advances the engine and, every
// AnalysisPeriod ticks, hands the current imagery to the classifier. At most
// one classification is in flight; results that complete after Stop (or a
// restart) are discarded.
type ScanScheduler struct {
	deps  SchedulerDeps
	cfg   SchedulerConfig
	now   func() time.Time
	newID func() string

	mu         sync.Mutex
	state      domain.ScanState
	running    bool
	generation uint64
	scanCount  uint64
	position   domain.Position
	footprint  domain.Bounds
	imageRef   string
	inFlight   bool
	stopTicker chan struct{}

	wg sync.WaitGroup
}

// NewScanScheduler creates a stopped scheduler.
func NewScanScheduler(deps SchedulerDeps, cfg SchedulerConfig) (*ScanScheduler, error) {
	var errs []string
	if deps.Engine == nil {
		errs = append(errs, "engine is required")
	}
	if deps.Classifier == nil {
		errs = append(errs, "classifier is required")
	}
	if deps.Store == nil {
		errs = append(errs, "detection store is required")
	}
	if deps.Logs == nil {
		errs = append(errs, "log sink is required")
	}
	if deps.Imagery == nil {
		errs = append(errs, "imagery refs are required")
	}
	if cfg.TickInterval <= 0 {
		errs = append(errs, "tick interval must be positive")
	}
	if cfg.AnalysisPeriod <= 0 {
		errs = append(errs, "analysis period must be positive")
	}
	if cfg.ImageRefreshPeriod <= 0 {
		errs = append(errs, "image refresh period must be positive")
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("scan scheduler: %s", strings.Join(errs, "; "))
	}

	s := &ScanScheduler{
		deps:     deps,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
		state:    domain.StateStopped,
		position: deps.Engine.Initial(),
	}
	s.footprint = deps.Engine.Footprint(s.position)
	metrics.SetState(string(s.state), stateLabels)
	return s, nil
}

// Start resets the patrol to the beginning of the corridor and arms the
// tick timer. Classification calls run under ctx; Stop does not cancel them.
func (s *ScanScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	s.running = true
	s.generation++
	s.scanCount = 0
	s.inFlight = false
	s.position = s.deps.Engine.Initial()
	s.footprint = s.deps.Engine.Footprint(s.position)
	s.imageRef = s.deps.Imagery.RefFor(s.footprint)
	s.setState(domain.StateIdle)

	stop := make(chan struct{})
	s.stopTicker = stop
	gen := s.generation
	snap := s.snapshotLocked()
	s.mu.Unlock()

	route := s.deps.Engine.Route()
	s.emit(ctx, s.entry(domain.SeverityInfo, fmt.Sprintf(
		"Patrol started: %.4f,%.4f -> %.4f,%.4f at %.0f km/h",
		route.Start.Lat, route.Start.Lng, route.End.Lat, route.End.Lng, route.SpeedKmh)))
	s.publishSnapshot(ctx, snap)

	go s.run(ctx, gen, stop)
	return nil
}

// Stop disarms the timer and forces the Stopped state. An in-flight
// classification keeps running but its result will be ignored.
func (s *ScanScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}

	s.running = false
	s.generation++
	s.inFlight = false
	if s.stopTicker != nil {
		close(s.stopTicker)
		s.stopTicker = nil
	}
	s.setState(domain.StateStopped)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(ctx, s.entry(domain.SeverityInfo, fmt.Sprintf("Patrol stopped after %d scans", snap.ScanCount)))
	s.publishSnapshot(ctx, snap)
	return nil
}

// Tick runs one scheduler step for the current session. The timer armed by
// Start calls it every TickInterval.
func (s *ScanScheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	s.tick(ctx, gen)
}

// Snapshot returns the current read-only state.
func (s *ScanScheduler) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State returns the current scan state.
func (s *ScanScheduler) State() domain.ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Wait blocks until every classification goroutine has returned.
func (s *ScanScheduler) Wait() {
	s.wg.Wait()
}

func (s *ScanScheduler) run(ctx context.Context, gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx, gen)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *ScanScheduler) tick(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if !s.running || gen != s.generation {
		s.mu.Unlock()
		return
	}

	s.scanCount++
	s.position, s.footprint = s.deps.Engine.Step(s.position)
	if s.scanCount%uint64(s.cfg.ImageRefreshPeriod) == 0 {
		s.imageRef = s.deps.Imagery.RefFor(s.footprint)
	}
	due := s.scanCount%uint64(s.cfg.AnalysisPeriod) == 0

	var (
		launch  bool
		entries []domain.LogEntry
	)
	switch {
	case due && !s.inFlight:
		s.setState(domain.StateScanning)
		entries = append(entries, s.entry(domain.SeverityInfo, fmt.Sprintf(
			"Scan #%d: acquiring footprint at %.4f, %.4f", s.scanCount, s.position.Lat, s.position.Lng)))
		s.inFlight = true
		s.wg.Add(1)
		launch = true
	case due:
		metrics.AnalysesSkipped.Inc()
	case !s.inFlight:
		s.setState(domain.StateIdle)
	}

	scan, ref := s.scanCount, s.imageRef
	snap := s.snapshotLocked()
	s.mu.Unlock()

	metrics.PatrolTicks.Inc()
	s.emit(ctx, entries...)
	s.publishSnapshot(ctx, snap)

	if launch {
		go s.analyze(ctx, gen, scan, ref)
	}
}

func (s *ScanScheduler) analyze(ctx context.Context, gen, scan uint64, ref string) {
	defer s.wg.Done()

	// The tick published Scanning; move on once the call is about to go out.
	s.mu.Lock()
	if s.running && gen == s.generation {
		s.setState(domain.StateAnalyzing)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.publishSnapshot(ctx, snap)
	} else {
		s.mu.Unlock()
	}

	candidates, err := s.deps.Classifier.Analyze(ctx, ref)

	s.mu.Lock()
	if !s.running || gen != s.generation {
		s.mu.Unlock()
		metrics.StaleResults.Inc()
		slog.Debug("discarding stale classification result", "scan", scan, "error", err)
		return
	}

	s.inFlight = false
	s.setState(domain.StateIdle)

	if err != nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.emit(ctx, s.entry(domain.SeverityError, fmt.Sprintf("Scan #%d: analysis failed: %v", scan, err)))
		s.publishSnapshot(ctx, snap)
		return
	}

	detections := s.stamp(candidates, scan)
	if len(detections) > 0 {
		s.deps.Store.Append(detections)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if len(detections) == 0 {
		s.emit(ctx, s.entry(domain.SeverityInfo, fmt.Sprintf("Scan #%d: no usable detections", scan)))
		s.publishSnapshot(ctx, snap)
		return
	}

	for _, d := range detections {
		metrics.DetectionsAccepted.WithLabelValues(string(d.Kind)).Inc()
	}
	s.emit(ctx, s.entry(domain.SeveritySuccess, fmt.Sprintf(
		"Scan #%d: %d pollution event(s) detected (%s)", scan, len(detections), summarize(detections))))
	s.publishSnapshot(ctx, snap)
	s.publishDetections(ctx, detections)
}

func (s *ScanScheduler) stamp(candidates []domain.CandidateDetection, scan uint64) []domain.Detection {
	if len(candidates) == 0 {
		return nil
	}
	observed := s.now()
	out := make([]domain.Detection, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, domain.Detection{
			ID:          s.newID(),
			Kind:        c.Kind,
			Confidence:  c.Confidence,
			Boundary:    c.Boundary.Clone(),
			ObservedAt:  observed,
			ImpactArea:  c.ImpactArea,
			HazardLevel: c.HazardLevel,
			ScanCount:   scan,
		})
	}
	return out
}

// setState must be called with mu held.
func (s *ScanScheduler) setState(st domain.ScanState) {
	s.state = st
	metrics.SetState(string(st), stateLabels)
}

// snapshotLocked must be called with mu held.
func (s *ScanScheduler) snapshotLocked() domain.Snapshot {
	return domain.Snapshot{
		State:          s.state,
		Running:        s.running,
		ScanCount:      s.scanCount,
		Position:       s.position,
		Footprint:      s.footprint,
		ImageRef:       s.imageRef,
		InFlight:       s.inFlight,
		DetectionCount: s.deps.Store.Len(),
		At:             s.now(),
	}
}

func (s *ScanScheduler) entry(sev domain.Severity, msg string) domain.LogEntry {
	return domain.LogEntry{Timestamp: s.now(), Message: msg, Severity: sev}
}

func (s *ScanScheduler) emit(ctx context.Context, entries ...domain.LogEntry) {
	for i := range entries {
		e := entries[i]
		s.deps.Logs.Append(e)

		level := slog.LevelInfo
		if e.Severity == domain.SeverityError {
			level = slog.LevelError
		}
		slog.Log(ctx, level, e.Message, "severity", string(e.Severity))

		if s.deps.Publisher != nil {
			if err := s.deps.Publisher.PublishLog(ctx, &e); err != nil {
				slog.Debug("publish log entry", "error", err)
			}
		}
	}
}

func (s *ScanScheduler) publishSnapshot(ctx context.Context, snap domain.Snapshot) {
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishSnapshot(ctx, &snap); err != nil {
			slog.Debug("publish snapshot", "error", err)
		}
	}

	if s.deps.Snapshots != nil {
		data, err := json.Marshal(snap)
		if err != nil {
			return
		}
		ttl := int(3 * s.cfg.TickInterval / time.Second)
		if ttl < 10 {
			ttl = 10
		}
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.deps.Snapshots.Set(cctx, SnapshotKey, data, ttl); err != nil {
			slog.Debug("cache snapshot", "error", err)
		}
	}
}

func (s *ScanScheduler) publishDetections(ctx context.Context, detections []domain.Detection) {
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishDetections(ctx, detections); err != nil {
			slog.Warn("publish detections", "error", err)
		}
	}

	if s.deps.Archive != nil {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.deps.Archive.InsertBatch(cctx, detections); err != nil {
			slog.Warn("archive detections", "count", len(detections), "error", err)
		}
	}
}

func summarize(detections []domain.Detection) string {
	counts := map[domain.DetectionKind]int{}
	for _, d := range detections {
		counts[d.Kind]++
	}
	var parts []string
	for _, k := range domain.AllKinds {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, k))
		}
	}
	return strings.Join(parts, ", ")
}
