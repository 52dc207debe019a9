package geospatial_test

import (
	"math"
	"testing"

	"github.com/samirrijal/patrolscan/internal/pkg/geospatial"
)

func TestNormalizeDelta(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{180, 180},
		{-180, 180},
		{190, -170},
		{-190, 170},
		{540, 180},
	}
	for _, c := range cases {
		if got := geospatial.NormalizeDelta(c.in); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("NormalizeDelta(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestNormalizeHeading(t *testing.T) {
	if got := geospatial.NormalizeHeading(135 + 180); got != 315 {
		t.Errorf("expected 315, got %v", got)
	}
	if got := geospatial.NormalizeHeading(300 + 180); got != 120 {
		t.Errorf("expected 120, got %v", got)
	}
	if got := geospatial.NormalizeHeading(-90); got != 270 {
		t.Errorf("expected 270, got %v", got)
	}
}

func TestFlatDistanceKm_Equator(t *testing.T) {
	d := geospatial.FlatDistanceKm(0, 0, 0, 1)
	if math.Abs(d-111.32) > 1e-9 {
		t.Errorf("expected 111.32 km, got %v", d)
	}
}

func TestFlatDistanceKm_Antimeridian(t *testing.T) {
	// 179.5 -> -179.5 is one degree east, not 359 west.
	d := geospatial.FlatDistanceKm(0, 179.5, 0, -179.5)
	if math.Abs(d-111.32) > 1e-6 {
		t.Errorf("expected shortest path of 111.32 km, got %v", d)
	}
}

func TestBoundingBox(t *testing.T) {
	minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(0, 0, 111.32)
	if math.Abs(minLat+1) > 1e-9 || math.Abs(maxLat-1) > 1e-9 {
		t.Errorf("unexpected lat range %v..%v", minLat, maxLat)
	}
	if math.Abs(minLon+1) > 1e-9 || math.Abs(maxLon-1) > 1e-9 {
		t.Errorf("unexpected lon range %v..%v", minLon, maxLon)
	}
}

func TestPointInPolygon(t *testing.T) {
	square := [][2]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}

	if !geospatial.PointInPolygon(5, 5, square) {
		t.Error("expected centre to be inside")
	}
	if geospatial.PointInPolygon(15, 5, square) {
		t.Error("expected point north of square to be outside")
	}
	if geospatial.PointInPolygon(5, -1, square) {
		t.Error("expected point west of square to be outside")
	}
	if geospatial.PointInPolygon(1, 1, square[:2]) {
		t.Error("degenerate ring must contain nothing")
	}
}

func TestCloseRing(t *testing.T) {
	open := [][2]float64{{0, 0}, {1, 0}, {1, 1}}
	closed := geospatial.CloseRing(open)
	if len(closed) != 4 || closed[3] != closed[0] {
		t.Fatalf("expected closed ring of 4 points, got %v", closed)
	}
	if len(open) != 3 {
		t.Error("input ring was modified")
	}
	if again := geospatial.CloseRing(closed); len(again) != 4 {
		t.Errorf("closing a closed ring should be a no-op, got %d points", len(again))
	}
}
