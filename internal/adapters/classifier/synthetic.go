package classifier

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/samirrijal/patrolscan/internal/adapters/imagery"
	"github.com/samirrijal/patrolscan/internal/core/domain"
	"github.com/samirrijal/patrolscan/internal/pkg/geospatial"
)

// DefaultLand is a coarse outline of Greenland, enough to tell soil from
// water along the default Arctic corridor.
var DefaultLand = []domain.Ring{{
	{-73, 78}, {-66, 81.5}, {-45, 83.6}, {-20, 82}, {-12, 81.5}, {-18, 77},
	{-22, 72}, {-22, 70}, {-32, 68}, {-40, 65}, {-43, 60}, {-50, 63},
	{-53, 67}, {-55, 70}, {-58, 75.5}, {-68, 76.5}, {-73, 78},
}}

// SyntheticConfig tunes the generated detections.
type SyntheticConfig struct {
	// EmptyProbability is the chance that a scan finds nothing.
	EmptyProbability float64
	// MaxPerScan bounds the number of detections per scan.
	MaxPerScan int
	// Land polygons mark where detections affect soil rather than water.
	Land []domain.Ring
	Rand *rand.Rand
}

// Synthetic fabricates plausible detections inside the footprint encoded in
// the imagery reference. It never calls out and never rate-limits.
type Synthetic struct {
	cfg SyntheticConfig

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSynthetic returns a Synthetic classifier.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	if cfg.MaxPerScan <= 0 {
		cfg.MaxPerScan = 3
	}
	cfg.EmptyProbability = min(max(cfg.EmptyProbability, 0), 1)
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Synthetic{cfg: cfg, rnd: rnd}
}

// Analyze implements ports.Classifier.
func (s *Synthetic) Analyze(ctx context.Context, imageRef string) ([]domain.CandidateDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, Fatal("classification cancelled", err)
	}
	box, err := imagery.ParseRef(imageRef)
	if err != nil {
		return nil, Fatal("parse imagery ref", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rnd.Float64() < s.cfg.EmptyProbability {
		return nil, nil
	}

	n := 1 + s.rnd.IntN(s.cfg.MaxPerScan)
	out := make([]domain.CandidateDetection, 0, n)
	for range n {
		center := domain.LatLng{
			Lat: box.MinLat + s.rnd.Float64()*(box.MaxLat-box.MinLat),
			Lng: box.MinLng + s.rnd.Float64()*(box.MaxLng-box.MinLng),
		}
		out = append(out, domain.CandidateDetection{
			Kind:        domain.AllKinds[s.rnd.IntN(len(domain.AllKinds))],
			Confidence:  0.6 + s.rnd.Float64()*0.4,
			Boundary:    s.blob(center, box),
			ImpactArea:  s.impactAt(center),
			HazardLevel: domain.AllHazardLevels[s.rnd.IntN(len(domain.AllHazardLevels))],
		})
	}
	return out, nil
}

// blob returns an irregular closed ring around center sized relative to box.
func (s *Synthetic) blob(center domain.LatLng, box domain.Bounds) domain.Ring {
	rLat := (box.MaxLat - box.MinLat) * (0.03 + s.rnd.Float64()*0.07)
	rLng := (box.MaxLng - box.MinLng) * (0.03 + s.rnd.Float64()*0.07)
	vertices := 5 + s.rnd.IntN(4)

	ring := make(domain.Ring, 0, vertices+1)
	for i := range vertices {
		theta := 2 * math.Pi * float64(i) / float64(vertices)
		k := 0.6 + s.rnd.Float64()*0.4
		ring = append(ring, [2]float64{
			geospatial.NormalizeLng(center.Lng + rLng*k*math.Cos(theta)),
			geospatial.ClampLat(center.Lat + rLat*k*math.Sin(theta)),
		})
	}
	return append(ring, ring[0])
}

func (s *Synthetic) impactAt(p domain.LatLng) domain.ImpactArea {
	for _, land := range s.cfg.Land {
		if geospatial.PointInPolygon(p.Lat, p.Lng, land) {
			return domain.ImpactSoil
		}
	}
	return domain.ImpactWater
}
