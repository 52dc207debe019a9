package http

import (
	"maps"
	"slices"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/patrolscan/internal/core/domain"
)

func detectionMap(d domain.Detection) map[string]interface{} {
	boundary := make([][]float64, len(d.Boundary))
	for i, p := range d.Boundary {
		boundary[i] = []float64{p[0], p[1]}
	}
	centroid := d.Boundary.Centroid()
	return map[string]interface{}{
		"id":               d.ID,
		"kind":             string(d.Kind),
		"confidence":       d.Confidence,
		"confidenceBucket": string(d.ConfidenceBucket()),
		"hazardLevel":      string(d.HazardLevel),
		"impactArea":       string(d.ImpactArea),
		"observedAt":       d.ObservedAt.Format(time.RFC3339Nano),
		"scanCount":        int(d.ScanCount),
		"boundary":         boundary,
		"centroid":         map[string]interface{}{"lat": centroid.Lat, "lng": centroid.Lng},
	}
}

func detectionMaps(ds []domain.Detection, limit int) []map[string]interface{} {
	if limit > 0 && limit < len(ds) {
		ds = ds[len(ds)-limit:]
	}
	out := make([]map[string]interface{}, 0, len(ds))
	for _, d := range ds {
		out = append(out, detectionMap(d))
	}
	return out
}

// filterFromArgs builds a FilterQuery from the list-valued facet arguments.
func filterFromArgs(args map[string]interface{}) (domain.FilterQuery, error) {
	q := domain.NewFilterQuery()
	for _, facet := range domain.AllFacets {
		values, _ := args[string(facet)].([]interface{})
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if err := q.Add(facet, s); err != nil {
				return q, err
			}
		}
	}
	return q, nil
}

func countsMap(deps *Dependencies) []map[string]interface{} {
	counts := deps.Filters.Counts()
	var out []map[string]interface{}
	for _, facet := range domain.AllFacets {
		for _, value := range slices.Sorted(maps.Keys(counts[facet])) {
			out = append(out, map[string]interface{}{
				"facet": string(facet),
				"value": value,
				"count": counts[facet][value],
			})
		}
	}
	return out
}

// buildSchema creates the GraphQL schema wired to the patrol services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	detectionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Detection",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.String},
			"kind":             &graphql.Field{Type: graphql.String},
			"confidence":       &graphql.Field{Type: graphql.Float},
			"confidenceBucket": &graphql.Field{Type: graphql.String},
			"hazardLevel":      &graphql.Field{Type: graphql.String},
			"impactArea":       &graphql.Field{Type: graphql.String},
			"observedAt":       &graphql.Field{Type: graphql.String},
			"scanCount":        &graphql.Field{Type: graphql.Int},
			"boundary":         &graphql.Field{Type: graphql.NewList(graphql.NewList(graphql.Float)), Description: "Closed ring of [lng, lat] pairs"},
			"centroid":         &graphql.Field{Type: geoPointType},
		},
	})

	statusType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PatrolStatus",
		Fields: graphql.Fields{
			"state":          &graphql.Field{Type: graphql.String},
			"running":        &graphql.Field{Type: graphql.Boolean},
			"scanCount":      &graphql.Field{Type: graphql.Int},
			"position":       &graphql.Field{Type: geoPointType},
			"heading":        &graphql.Field{Type: graphql.Float},
			"direction":      &graphql.Field{Type: graphql.String},
			"inFlight":       &graphql.Field{Type: graphql.Boolean},
			"imageRef":       &graphql.Field{Type: graphql.String},
			"detectionCount": &graphql.Field{Type: graphql.Int},
		},
	})

	logEntryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LogEntry",
		Fields: graphql.Fields{
			"timestamp": &graphql.Field{Type: graphql.String},
			"message":   &graphql.Field{Type: graphql.String},
			"severity":  &graphql.Field{Type: graphql.String},
		},
	})

	facetCountType := graphql.NewObject(graphql.ObjectConfig{
		Name: "FacetCount",
		Fields: graphql.Fields{
			"facet": &graphql.Field{Type: graphql.String},
			"value": &graphql.Field{Type: graphql.String},
			"count": &graphql.Field{Type: graphql.Int},
		},
	})

	activeFilterType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ActiveFilter",
		Fields: graphql.Fields{
			"kind":        &graphql.Field{Type: graphql.NewList(graphql.String)},
			"hazardLevel": &graphql.Field{Type: graphql.NewList(graphql.String)},
			"impactArea":  &graphql.Field{Type: graphql.NewList(graphql.String)},
			"confidence":  &graphql.Field{Type: graphql.NewList(graphql.String)},
			"matched":     &graphql.Field{Type: graphql.Int},
			"counts":      &graphql.Field{Type: graphql.NewList(facetCountType)},
		},
	})

	stringList := graphql.NewList(graphql.String)

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"detections": &graphql.Field{
				Type:        graphql.NewList(detectionType),
				Description: "Detections matching the given facets; omitted facets are unconstrained",
				Args: graphql.FieldConfigArgument{
					"kind":        &graphql.ArgumentConfig{Type: stringList},
					"hazardLevel": &graphql.ArgumentConfig{Type: stringList},
					"impactArea":  &graphql.ArgumentConfig{Type: stringList},
					"confidence":  &graphql.ArgumentConfig{Type: stringList},
					"limit":       &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q, err := filterFromArgs(p.Args)
					if err != nil {
						return nil, err
					}
					limit, _ := p.Args["limit"].(int)
					return detectionMaps(deps.Filters.Query(q), limit), nil
				},
			},
			"filteredDetections": &graphql.Field{
				Type:        graphql.NewList(detectionType),
				Description: "Detections matching the session's active filter",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return detectionMaps(deps.Filters.Filtered(), 0), nil
				},
			},
			"activeFilter": &graphql.Field{
				Type:        activeFilterType,
				Description: "The active filter with per-facet counts",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q := deps.Filters.Current()
					return map[string]interface{}{
						"kind":        q.Values(domain.FacetKind),
						"hazardLevel": q.Values(domain.FacetHazardLevel),
						"impactArea":  q.Values(domain.FacetImpactArea),
						"confidence":  q.Values(domain.FacetConfidence),
						"matched":     len(deps.Filters.Query(q)),
						"counts":      countsMap(deps),
					}, nil
				},
			},
			"status": &graphql.Field{
				Type:        statusType,
				Description: "Current patrol snapshot",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s := deps.Scheduler.Snapshot()
					return map[string]interface{}{
						"state":          string(s.State),
						"running":        s.Running,
						"scanCount":      int(s.ScanCount),
						"position":       map[string]interface{}{"lat": s.Position.Lat, "lng": s.Position.Lng},
						"heading":        s.Position.Heading,
						"direction":      string(s.Position.Direction),
						"inFlight":       s.InFlight,
						"imageRef":       s.ImageRef,
						"detectionCount": s.DetectionCount,
					}, nil
				},
			},
			"logs": &graphql.Field{
				Type:        graphql.NewList(logEntryType),
				Description: "Operator log, oldest first",
				Args: graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					entries := deps.Logs.Entries()
					if limit, _ := p.Args["limit"].(int); limit > 0 && limit < len(entries) {
						entries = entries[len(entries)-limit:]
					}
					var result []map[string]interface{}
					for _, e := range entries {
						result = append(result, map[string]interface{}{
							"timestamp": e.Timestamp.Format(time.RFC3339Nano),
							"message":   e.Message,
							"severity":  string(e.Severity),
						})
					}
					return result, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Query == "" {
			return errBadRequest(c, "query is required")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
