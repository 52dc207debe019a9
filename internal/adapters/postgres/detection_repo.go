package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/patrolscan/internal/core/domain"
)

const insertDetection = `
	INSERT INTO detections (id, observed_at, scan_count, kind, confidence, impact_area, hazard_level, boundary)
	VALUES ($1, $2, $3, $4, $5, $6, $7, ST_GeomFromGeoJSON($8)::geography)
	ON CONFLICT (id) DO NOTHING`

// DetectionArchive implements ports.DetectionArchive. Rows are only ever
// inserted; nothing reads them back into a running patrol.
type DetectionArchive struct {
	db *DB
}

func NewDetectionArchive(db *DB) *DetectionArchive {
	return &DetectionArchive{db: db}
}

// InsertBatch writes detections in one round trip. Replayed IDs are ignored.
func (r *DetectionArchive) InsertBatch(ctx context.Context, detections []domain.Detection) error {
	if len(detections) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, d := range detections {
		geom, err := polygonGeoJSON(d.Boundary)
		if err != nil {
			return fmt.Errorf("detection %s: %w", d.ID, err)
		}
		batch.Queue(insertDetection,
			d.ID, d.ObservedAt, int64(d.ScanCount), string(d.Kind), d.Confidence,
			string(d.ImpactArea), string(d.HazardLevel), geom)
	}

	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()

	for range detections {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert detection: %w", err)
		}
	}
	return br.Close()
}

// polygonGeoJSON renders a closed ring as a GeoJSON Polygon geometry.
func polygonGeoJSON(ring domain.Ring) (string, error) {
	if !ring.Closed() {
		return "", fmt.Errorf("boundary ring is not closed")
	}
	b, err := json.Marshal(map[string]any{
		"type":        "Polygon",
		"coordinates": [][][2]float64{ring},
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
