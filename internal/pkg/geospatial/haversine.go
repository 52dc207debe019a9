package geospatial

import "math"

// KmPerDegree is the flat-earth scaling used for patrol distances and
// footprints: one degree of latitude, or of longitude at the equator.
const KmPerDegree = 111.32

// FlatDistanceKm approximates the distance between two points by scaling the
// degree deltas: hypot(dLat*111.32, dLng*111.32*cos(avgLat)). The longitude
// delta takes the shortest way around the antimeridian.
func FlatDistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := lat2 - lat1
	dLng := NormalizeDelta(lon2 - lon1)
	avgLat := (lat1 + lat2) / 2
	return math.Hypot(dLat*KmPerDegree, dLng*KmPerDegree*math.Cos(toRad(avgLat)))
}

// BoundingBox returns a box around a point with the given half-width in kilometres.
func BoundingBox(lat, lon, halfWidthKm float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := halfWidthKm / KmPerDegree
	cos := math.Cos(toRad(lat))
	if cos < 1e-6 {
		cos = 1e-6
	}
	lonDelta := halfWidthKm / (KmPerDegree * cos)

	return lat - latDelta, lon - lonDelta, lat + latDelta, lon + lonDelta
}

// NormalizeDelta maps a longitude difference into (-180, 180].
func NormalizeDelta(d float64) float64 {
	d = math.Mod(d, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

// NormalizeLng maps a longitude into (-180, 180].
func NormalizeLng(lng float64) float64 {
	return NormalizeDelta(lng)
}

// NormalizeHeading maps a heading into [0, 360).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// ClampLat limits a latitude to [-90, 90].
func ClampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
