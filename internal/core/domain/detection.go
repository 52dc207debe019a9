package domain

import (
	"fmt"
	"strings"
	"time"
)

// DetectionKind is the pollution category reported by the classifier.
type DetectionKind string

const (
	KindChemical DetectionKind = "Chemical"
	KindOil      DetectionKind = "Oil"
	KindPhysical DetectionKind = "Physical"
)

// ImpactArea is the medium affected by a detection.
type ImpactArea string

const (
	ImpactWater ImpactArea = "Water"
	ImpactSoil  ImpactArea = "Soil"
)

// HazardLevel grades how dangerous a detection is.
type HazardLevel string

const (
	HazardLow    HazardLevel = "Low"
	HazardMedium HazardLevel = "Medium"
	HazardHigh   HazardLevel = "High"
)

// ConfidenceBucket is the coarse grade of a detection's confidence score.
type ConfidenceBucket string

const (
	ConfidenceLow    ConfidenceBucket = "Low"
	ConfidenceMedium ConfidenceBucket = "Medium"
	ConfidenceHigh   ConfidenceBucket = "High"
)

var (
	AllKinds             = []DetectionKind{KindChemical, KindOil, KindPhysical}
	AllImpactAreas       = []ImpactArea{ImpactWater, ImpactSoil}
	AllHazardLevels      = []HazardLevel{HazardLow, HazardMedium, HazardHigh}
	AllConfidenceBuckets = []ConfidenceBucket{ConfidenceLow, ConfidenceMedium, ConfidenceHigh}
)

// ConfidenceBucketOf maps a confidence score to its bucket:
// below 0.75 is Low, 0.75 to 0.90 inclusive is Medium, above 0.90 is High.
func ConfidenceBucketOf(confidence float64) ConfidenceBucket {
	switch {
	case confidence < 0.75:
		return ConfidenceLow
	case confidence <= 0.90:
		return ConfidenceMedium
	default:
		return ConfidenceHigh
	}
}

// ParseKind parses a detection kind case-insensitively.
func ParseKind(s string) (DetectionKind, error) {
	for _, k := range AllKinds {
		if strings.EqualFold(string(k), strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown detection kind %q", s)
}

// ParseImpactArea parses an impact area case-insensitively.
func ParseImpactArea(s string) (ImpactArea, error) {
	for _, a := range AllImpactAreas {
		if strings.EqualFold(string(a), strings.TrimSpace(s)) {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown impact area %q", s)
}

// ParseHazardLevel parses a hazard level case-insensitively.
func ParseHazardLevel(s string) (HazardLevel, error) {
	for _, h := range AllHazardLevels {
		if strings.EqualFold(string(h), strings.TrimSpace(s)) {
			return h, nil
		}
	}
	return "", fmt.Errorf("unknown hazard level %q", s)
}

// ParseConfidenceBucket parses a confidence bucket case-insensitively.
func ParseConfidenceBucket(s string) (ConfidenceBucket, error) {
	for _, b := range AllConfidenceBuckets {
		if strings.EqualFold(string(b), strings.TrimSpace(s)) {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown confidence bucket %q", s)
}

// CandidateDetection is a classifier result that passed geometry validation
// but has not been stamped and stored yet.
type CandidateDetection struct {
	Kind        DetectionKind `json:"kind"`
	Confidence  float64       `json:"confidence"`
	Boundary    Ring          `json:"boundary"`
	ImpactArea  ImpactArea    `json:"impact_area"`
	HazardLevel HazardLevel   `json:"hazard_level"`
}

// Detection is a geo-tagged pollution event. Stored detections are never mutated.
type Detection struct {
	ID          string        `json:"id"`
	Kind        DetectionKind `json:"kind"`
	Confidence  float64       `json:"confidence"`
	Boundary    Ring          `json:"boundary"`
	ObservedAt  time.Time     `json:"observed_at"`
	ImpactArea  ImpactArea    `json:"impact_area"`
	HazardLevel HazardLevel   `json:"hazard_level"`
	ScanCount   uint64        `json:"scan_count"`
}

// Clone returns a copy of d with its own boundary ring.
func (d Detection) Clone() Detection {
	d.Boundary = d.Boundary.Clone()
	return d
}

// ConfidenceBucket returns the bucket of the detection's confidence.
func (d Detection) ConfidenceBucket() ConfidenceBucket {
	return ConfidenceBucketOf(d.Confidence)
}
