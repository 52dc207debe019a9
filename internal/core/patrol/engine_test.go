package patrol_test

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/samirrijal/patrolscan/internal/core/domain"
	"github.com/samirrijal/patrolscan/internal/core/patrol"
)

func arcticRoute() domain.PatrolRoute {
	return domain.PatrolRoute{
		Start:          domain.LatLng{Lat: 83.0, Lng: -70.0},
		End:            domain.LatLng{Lat: 70.0, Lng: -20.0},
		ForwardHeading: 135,
		SpeedKmh:       700,
		TickInterval:   1000 * time.Millisecond,
	}
}

func arcticOptions() patrol.Options {
	return patrol.Options{
		FootprintHalfWidthKm: 25,
		Region:               domain.Bounds{MinLat: 60, MinLng: -80, MaxLat: 84, MaxLng: -10},
		DataRateBaseline:     120,
		DataRateJitter:       5,
		Rand:                 rand.New(rand.NewPCG(1, 2)),
	}
}

func newEngine(t *testing.T) *patrol.Engine {
	t.Helper()
	e, err := patrol.NewEngine(arcticRoute(), arcticOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return e
}

func TestNewEngine_TotalSteps(t *testing.T) {
	e := newEngine(t)

	// hypot(13*111.32, 50*111.32*cos(76.5°)) ≈ 1945 km at 0.1944 km per tick.
	dLat := -13.0 * 111.32
	dLng := 50.0 * 111.32 * math.Cos(76.5*math.Pi/180)
	want := int(math.Ceil(math.Hypot(dLat, dLng) / (700.0 * 1000 / 3_600_000)))

	if e.TotalSteps() != want {
		t.Fatalf("expected %d total steps, got %d", want, e.TotalSteps())
	}
	if want < 9900 || want > 10100 {
		t.Fatalf("sanity: expected roughly 10000 steps, got %d", want)
	}
}

func TestNewEngine_Validation(t *testing.T) {
	route := arcticRoute()
	route.SpeedKmh = 0
	if _, err := patrol.NewEngine(route, arcticOptions()); err == nil {
		t.Error("expected error for zero speed")
	}

	route = arcticRoute()
	route.TickInterval = 0
	if _, err := patrol.NewEngine(route, arcticOptions()); err == nil {
		t.Error("expected error for zero tick interval")
	}

	opts := arcticOptions()
	opts.Region = domain.Bounds{}
	if _, err := patrol.NewEngine(arcticRoute(), opts); err == nil {
		t.Error("expected error for empty region")
	}
}

func TestStep_ReversesAfterTotalSteps(t *testing.T) {
	e := newEngine(t)
	pos := e.Initial()

	if pos.Heading != 135 {
		t.Fatalf("expected initial heading 135, got %v", pos.Heading)
	}
	if pos.Direction != domain.Forward || pos.StepIndex != 0 {
		t.Fatalf("unexpected initial position %+v", pos)
	}

	total := e.TotalSteps()
	for i := 1; i < total; i++ {
		next, _ := e.Step(pos)
		if next.StepIndex != pos.StepIndex+1 {
			t.Fatalf("tick %d: step index went %d -> %d", i, pos.StepIndex, next.StepIndex)
		}
		if next.Direction != domain.Forward || next.Heading != 135 {
			t.Fatalf("tick %d: reversed too early (%s, %v)", i, next.Direction, next.Heading)
		}
		pos = next
	}

	flipped, _ := e.Step(pos)
	if flipped.Direction != domain.Backward {
		t.Fatalf("expected direction to flip after %d steps", total)
	}
	if flipped.StepIndex != 0 {
		t.Errorf("expected step index reset to 0, got %d", flipped.StepIndex)
	}
	if flipped.Heading != 315 {
		t.Errorf("expected heading 315 on return leg, got %v", flipped.Heading)
	}
	if math.Abs(flipped.Lat-70.0) > 1e-9 || math.Abs(flipped.Lng+20.0) > 1e-9 {
		t.Errorf("expected return leg to start at the corridor end, got %.6f,%.6f", flipped.Lat, flipped.Lng)
	}
}

func TestStep_FullCycleReturnsForward(t *testing.T) {
	e := newEngine(t)
	pos := e.Initial()

	for i := 0; i < 2*e.TotalSteps(); i++ {
		pos, _ = e.Step(pos)
	}
	if pos.Direction != domain.Forward || pos.StepIndex != 0 {
		t.Fatalf("expected to be back at start of forward leg, got %+v", pos)
	}
	if math.Abs(pos.Lat-83.0) > 1e-9 || math.Abs(pos.Lng+70.0) > 1e-9 {
		t.Errorf("expected start coordinates, got %.6f,%.6f", pos.Lat, pos.Lng)
	}
}

func TestStep_PositionInvariants(t *testing.T) {
	e := newEngine(t)
	pos := e.Initial()
	region := arcticOptions().Region

	for i := 0; i < 3*e.TotalSteps(); i += 97 {
		pos.StepIndex = i % e.TotalSteps()
		next, box := e.Step(pos)

		if next.Lat < -90 || next.Lat > 90 {
			t.Fatalf("lat out of range: %v", next.Lat)
		}
		if next.Lng <= -180 || next.Lng > 180 {
			t.Fatalf("lng out of range: %v", next.Lng)
		}
		if next.Heading < 0 || next.Heading >= 360 {
			t.Fatalf("heading out of range: %v", next.Heading)
		}
		if next.DataRate < 115 || next.DataRate > 125 {
			t.Fatalf("data rate outside jitter band: %v", next.DataRate)
		}
		if box.MinLat < region.MinLat || box.MaxLat > region.MaxLat ||
			box.MinLng < region.MinLng || box.MaxLng > region.MaxLng {
			t.Fatalf("footprint %+v escapes region", box)
		}
		if box.MinLat > next.Lat || box.MaxLat < next.Lat {
			t.Fatalf("footprint %+v does not cover position %v", box, next.Lat)
		}
	}
}

func TestFootprint_ClampedToRegion(t *testing.T) {
	e := newEngine(t)

	// The start sits one degree below the region's northern edge; a 200 km
	// half-width would reach past it.
	opts := arcticOptions()
	opts.FootprintHalfWidthKm = 200
	wide, err := patrol.NewEngine(arcticRoute(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	box := wide.Footprint(wide.Initial())
	if box.MaxLat != 84 {
		t.Errorf("expected max lat clamped to 84, got %v", box.MaxLat)
	}

	narrow := e.Footprint(e.Initial())
	if narrow.MaxLat >= 84 {
		t.Errorf("25 km footprint should not touch the region edge, got %v", narrow.MaxLat)
	}
}

func TestStep_CrossesAntimeridian(t *testing.T) {
	route := domain.PatrolRoute{
		Start:          domain.LatLng{Lat: 0, Lng: 179},
		End:            domain.LatLng{Lat: 0, Lng: -179},
		ForwardHeading: 90,
		SpeedKmh:       111.32 * 3600 * 1.5, // 1.5 degrees per second at the equator
		TickInterval:   time.Second,
	}
	opts := patrol.Options{
		FootprintHalfWidthKm: 10,
		Region:               domain.Bounds{MinLat: -10, MinLng: -180, MaxLat: 10, MaxLng: 180},
	}
	e, err := patrol.NewEngine(route, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.TotalSteps() != 2 {
		t.Fatalf("expected the short way (2 steps), got %d", e.TotalSteps())
	}

	mid, _ := e.Step(e.Initial())
	if math.Abs(mid.Lng-180) > 1e-9 {
		t.Errorf("expected midpoint on the antimeridian (180), got %v", mid.Lng)
	}
	if mid.Heading != 90 {
		t.Errorf("expected heading 90, got %v", mid.Heading)
	}
}
