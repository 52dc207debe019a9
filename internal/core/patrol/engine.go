// Package patrol computes the agent's position along a fixed corridor.
package patrol

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/samirrijal/patrolscan/internal/core/domain"
	"github.com/samirrijal/patrolscan/internal/pkg/geospatial"
)

// Options configures the sensor footprint and cosmetic telemetry.
type Options struct {
	FootprintHalfWidthKm float64
	Region               domain.Bounds
	DataRateBaseline     float64
	DataRateJitter       float64
	Rand                 *rand.Rand // nil uses a randomly seeded source
}

// Engine advances the agent back and forth along a two-endpoint corridor.
// Step is a pure function of the previous position apart from the data-rate
// jitter. An Engine is not safe for concurrent use.
type Engine struct {
	route      domain.PatrolRoute
	opts       Options
	totalSteps int
	dLat       float64
	dLng       float64
	rnd        *rand.Rand
}

// NewEngine validates the route and precomputes the per-leg step count.
func NewEngine(route domain.PatrolRoute, opts Options) (*Engine, error) {
	var errs []string
	if route.SpeedKmh <= 0 {
		errs = append(errs, fmt.Sprintf("speed must be positive, got %v", route.SpeedKmh))
	}
	if route.TickInterval <= 0 {
		errs = append(errs, fmt.Sprintf("tick interval must be positive, got %v", route.TickInterval))
	}
	if opts.FootprintHalfWidthKm <= 0 {
		errs = append(errs, fmt.Sprintf("footprint half-width must be positive, got %v", opts.FootprintHalfWidthKm))
	}
	if opts.Region.Empty() {
		errs = append(errs, "monitored region is empty")
	}
	if len(errs) > 0 {
		return nil, errors.New("patrol engine: " + strings.Join(errs, "; "))
	}

	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	e := &Engine{
		route: route,
		opts:  opts,
		dLat:  route.End.Lat - route.Start.Lat,
		dLng:  geospatial.NormalizeDelta(route.End.Lng - route.Start.Lng),
		rnd:   rnd,
	}

	distance := geospatial.FlatDistanceKm(route.Start.Lat, route.Start.Lng, route.End.Lat, route.End.Lng)
	kmPerTick := route.SpeedKmh * float64(route.TickInterval.Milliseconds()) / 3_600_000
	e.totalSteps = int(math.Ceil(distance / kmPerTick))
	if e.totalSteps < 1 {
		e.totalSteps = 1
	}
	return e, nil
}

// Route returns the configured corridor.
func (e *Engine) Route() domain.PatrolRoute { return e.route }

// TotalSteps returns the number of ticks needed to fly one leg.
func (e *Engine) TotalSteps() int { return e.totalSteps }

// Initial returns the position at the start of the forward leg.
func (e *Engine) Initial() domain.Position {
	return e.positionAt(domain.Forward, 0)
}

// Step advances prev by one tick. When the leg is complete the direction
// flips and the step index resets, so the patrol never terminates.
func (e *Engine) Step(prev domain.Position) (domain.Position, domain.Bounds) {
	dir := prev.Direction
	if dir == "" {
		dir = domain.Forward
	}

	step := prev.StepIndex + 1
	if step >= e.totalSteps {
		dir = dir.Flip()
		step = 0
	}

	next := e.positionAt(dir, step)
	return next, e.Footprint(next)
}

// Footprint returns the sensor's ground box around pos, clamped to the
// monitored region.
func (e *Engine) Footprint(pos domain.Position) domain.Bounds {
	minLat, minLng, maxLat, maxLng := geospatial.BoundingBox(pos.Lat, pos.Lng, e.opts.FootprintHalfWidthKm)
	r := e.opts.Region
	return domain.Bounds{
		MinLat: clamp(minLat, r.MinLat, r.MaxLat),
		MinLng: clamp(minLng, r.MinLng, r.MaxLng),
		MaxLat: clamp(maxLat, r.MinLat, r.MaxLat),
		MaxLng: clamp(maxLng, r.MinLng, r.MaxLng),
	}
}

// Heading returns the constant heading flown in dir.
func (e *Engine) Heading(dir domain.Direction) float64 {
	if dir == domain.Backward {
		return geospatial.NormalizeHeading(e.route.ForwardHeading + 180)
	}
	return geospatial.NormalizeHeading(e.route.ForwardHeading)
}

func (e *Engine) positionAt(dir domain.Direction, step int) domain.Position {
	from, dLat, dLng := e.route.Start, e.dLat, e.dLng
	if dir == domain.Backward {
		from, dLat, dLng = e.route.End, -dLat, -dLng
	}
	t := float64(step) / float64(e.totalSteps)

	return domain.Position{
		Lat:       geospatial.ClampLat(from.Lat + dLat*t),
		Lng:       geospatial.NormalizeLng(from.Lng + dLng*t),
		Heading:   e.Heading(dir),
		DataRate:  e.dataRate(),
		StepIndex: step,
		Direction: dir,
	}
}

func (e *Engine) dataRate() float64 {
	if e.opts.DataRateJitter <= 0 {
		return e.opts.DataRateBaseline
	}
	return e.opts.DataRateBaseline + (e.rnd.Float64()*2-1)*e.opts.DataRateJitter
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
