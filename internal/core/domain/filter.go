package domain

import (
	"encoding/json"
	"fmt"
)

// Facet names one dimension of a FilterQuery.
type Facet string

const (
	FacetKind        Facet = "kind"
	FacetHazardLevel Facet = "hazardLevel"
	FacetImpactArea  Facet = "impactArea"
	FacetConfidence  Facet = "confidence"
)

// AllFacets lists the facets in display order.
var AllFacets = []Facet{FacetKind, FacetHazardLevel, FacetImpactArea, FacetConfidence}

// ParseFacet resolves a facet name. "hazard" and "impact" are accepted as
// short forms.
func ParseFacet(s string) (Facet, error) {
	switch s {
	case "kind":
		return FacetKind, nil
	case "hazardLevel", "hazard_level", "hazard":
		return FacetHazardLevel, nil
	case "impactArea", "impact_area", "impact":
		return FacetImpactArea, nil
	case "confidence", "confidenceBucket", "confidence_bucket":
		return FacetConfidence, nil
	}
	return "", fmt.Errorf("unknown facet %q", s)
}

// FilterQuery selects detections by facet. An empty facet imposes no
// constraint; values within a facet are OR-ed and facets are AND-ed.
type FilterQuery struct {
	Kinds             map[DetectionKind]struct{}
	HazardLevels      map[HazardLevel]struct{}
	ImpactAreas       map[ImpactArea]struct{}
	ConfidenceBuckets map[ConfidenceBucket]struct{}
}

// NewFilterQuery returns a query with every facet empty.
func NewFilterQuery() FilterQuery {
	return FilterQuery{
		Kinds:             map[DetectionKind]struct{}{},
		HazardLevels:      map[HazardLevel]struct{}{},
		ImpactAreas:       map[ImpactArea]struct{}{},
		ConfidenceBuckets: map[ConfidenceBucket]struct{}{},
	}
}

// Toggle adds value to the facet if absent and removes it otherwise.
func (q *FilterQuery) Toggle(facet Facet, value string) error {
	return q.apply(facet, value, true)
}

// Add puts value into the facet; adding a present value is a no-op.
func (q *FilterQuery) Add(facet Facet, value string) error {
	return q.apply(facet, value, false)
}

func (q *FilterQuery) apply(facet Facet, value string, flip bool) error {
	q.ensure()
	switch facet {
	case FacetKind:
		v, err := ParseKind(value)
		if err != nil {
			return err
		}
		set(q.Kinds, v, flip)
	case FacetHazardLevel:
		v, err := ParseHazardLevel(value)
		if err != nil {
			return err
		}
		set(q.HazardLevels, v, flip)
	case FacetImpactArea:
		v, err := ParseImpactArea(value)
		if err != nil {
			return err
		}
		set(q.ImpactAreas, v, flip)
	case FacetConfidence:
		v, err := ParseConfidenceBucket(value)
		if err != nil {
			return err
		}
		set(q.ConfidenceBuckets, v, flip)
	default:
		return fmt.Errorf("unknown facet %q", facet)
	}
	return nil
}

// Reset clears every facet.
func (q *FilterQuery) Reset() {
	*q = NewFilterQuery()
}

// IsEmpty reports whether no facet constrains the query.
func (q FilterQuery) IsEmpty() bool {
	return len(q.Kinds) == 0 && len(q.HazardLevels) == 0 &&
		len(q.ImpactAreas) == 0 && len(q.ConfidenceBuckets) == 0
}

// Matches reports whether d passes every non-empty facet.
func (q FilterQuery) Matches(d Detection) bool {
	return in(q.Kinds, d.Kind) &&
		in(q.HazardLevels, d.HazardLevel) &&
		in(q.ImpactAreas, d.ImpactArea) &&
		in(q.ConfidenceBuckets, d.ConfidenceBucket())
}

// Clone returns a deep copy.
func (q FilterQuery) Clone() FilterQuery {
	c := NewFilterQuery()
	for k := range q.Kinds {
		c.Kinds[k] = struct{}{}
	}
	for k := range q.HazardLevels {
		c.HazardLevels[k] = struct{}{}
	}
	for k := range q.ImpactAreas {
		c.ImpactAreas[k] = struct{}{}
	}
	for k := range q.ConfidenceBuckets {
		c.ConfidenceBuckets[k] = struct{}{}
	}
	return c
}

// Values lists the selected values of one facet in canonical order.
func (q FilterQuery) Values(facet Facet) []string {
	switch facet {
	case FacetKind:
		return names(ordered(AllKinds, q.Kinds))
	case FacetHazardLevel:
		return names(ordered(AllHazardLevels, q.HazardLevels))
	case FacetImpactArea:
		return names(ordered(AllImpactAreas, q.ImpactAreas))
	case FacetConfidence:
		return names(ordered(AllConfidenceBuckets, q.ConfidenceBuckets))
	}
	return nil
}

type filterQueryJSON struct {
	Kind        []DetectionKind    `json:"kind"`
	HazardLevel []HazardLevel      `json:"hazardLevel"`
	ImpactArea  []ImpactArea       `json:"impactArea"`
	Confidence  []ConfidenceBucket `json:"confidence"`
}

// MarshalJSON renders each facet as a list in canonical value order.
func (q FilterQuery) MarshalJSON() ([]byte, error) {
	out := filterQueryJSON{
		Kind:        ordered(AllKinds, q.Kinds),
		HazardLevel: ordered(AllHazardLevels, q.HazardLevels),
		ImpactArea:  ordered(AllImpactAreas, q.ImpactAreas),
		Confidence:  ordered(AllConfidenceBuckets, q.ConfidenceBuckets),
	}
	return json.Marshal(out)
}

func (q *FilterQuery) ensure() {
	if q.Kinds == nil {
		q.Kinds = map[DetectionKind]struct{}{}
	}
	if q.HazardLevels == nil {
		q.HazardLevels = map[HazardLevel]struct{}{}
	}
	if q.ImpactAreas == nil {
		q.ImpactAreas = map[ImpactArea]struct{}{}
	}
	if q.ConfidenceBuckets == nil {
		q.ConfidenceBuckets = map[ConfidenceBucket]struct{}{}
	}
}

func set[T comparable](m map[T]struct{}, v T, flip bool) {
	if _, ok := m[v]; ok {
		if flip {
			delete(m, v)
		}
		return
	}
	m[v] = struct{}{}
}

func in[T comparable](set map[T]struct{}, v T) bool {
	if len(set) == 0 {
		return true
	}
	_, ok := set[v]
	return ok
}

func ordered[T comparable](all []T, set map[T]struct{}) []T {
	out := make([]T, 0, len(set))
	for _, v := range all {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func names[T ~string](vs []T) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}
