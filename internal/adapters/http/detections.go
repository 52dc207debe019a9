package http

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/patrolscan/internal/core/domain"
)

// parseFilterQuery builds a FilterQuery from the facet query params. Each
// facet may be repeated (?kind=Oil&kind=Chemical) or comma-separated.
func parseFilterQuery(c *fiber.Ctx) (domain.FilterQuery, error) {
	q := domain.NewFilterQuery()
	args := c.Context().QueryArgs()

	for _, facet := range domain.AllFacets {
		for _, raw := range args.PeekMulti(string(facet)) {
			for _, v := range strings.Split(string(raw), ",") {
				v = strings.TrimSpace(v)
				if v == "" {
					continue
				}
				if err := q.Add(facet, v); err != nil {
					return q, err
				}
			}
		}
	}
	return q, nil
}

// ListDetectionsHandler runs an ad-hoc facet query over the detection store.
// It does not change the session's active filter.
func ListDetectionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := parseFilterQuery(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		page, p := paginate(c, deps.Filters.Query(q))
		SetLinkHeaders(c, p)
		return c.JSON(PaginatedResponse{Data: page, Pagination: p})
	}
}

type geoJSONGeometry struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

type geoJSONFeature struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Geometry   geoJSONGeometry `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

type geoJSONCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

func toFeature(d domain.Detection) geoJSONFeature {
	return geoJSONFeature{
		Type: "Feature",
		ID:   d.ID,
		Geometry: geoJSONGeometry{
			Type:        "Polygon",
			Coordinates: [][][2]float64{d.Boundary},
		},
		Properties: map[string]any{
			"kind":              d.Kind,
			"confidence":        d.Confidence,
			"confidence_bucket": d.ConfidenceBucket(),
			"hazard_level":      d.HazardLevel,
			"impact_area":       d.ImpactArea,
			"observed_at":       d.ObservedAt,
			"scan_count":        d.ScanCount,
		},
	}
}

// DetectionsGeoJSONHandler renders matching detections as a GeoJSON
// FeatureCollection for map overlays. Accepts the same facet params as
// ListDetectionsHandler; without any, the session's active filter applies.
func DetectionsGeoJSONHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := parseFilterQuery(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		var detections []domain.Detection
		if q.IsEmpty() {
			detections = deps.Filters.Filtered()
		} else {
			detections = deps.Filters.Query(q)
		}

		fc := geoJSONCollection{Type: "FeatureCollection", Features: make([]geoJSONFeature, 0, len(detections))}
		for _, d := range detections {
			fc.Features = append(fc.Features, toFeature(d))
		}

		if err := c.JSON(fc); err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		c.Set("X-Feature-Count", fmt.Sprint(len(fc.Features)))
		return nil
	}
}
