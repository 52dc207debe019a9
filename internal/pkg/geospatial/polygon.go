package geospatial

// PointInPolygon reports whether (lat, lng) lies inside ring, a list of
// [lng, lat] vertices. The ring may be open or closed. Uses even-odd ray casting.
func PointInPolygon(lat, lng float64, ring [][2]float64) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > lat) != (yj > lat) &&
			lng < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// CloseRing returns ring with its first point appended when it is not
// already closed. The input is not modified.
func CloseRing(ring [][2]float64) [][2]float64 {
	if len(ring) == 0 {
		return nil
	}
	out := make([][2]float64, len(ring), len(ring)+1)
	copy(out, ring)
	if out[0] != out[len(out)-1] {
		out = append(out, out[0])
	}
	return out
}
