package domain

// LatLng is a WGS 84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// Empty reports whether the box has no area.
func (b Bounds) Empty() bool {
	return b.MaxLat <= b.MinLat || b.MaxLng <= b.MinLng
}

// Contains reports whether p lies inside the box (edges included).
func (b Bounds) Contains(p LatLng) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// Ring is a closed polygon ring of [lng, lat] pairs.
type Ring [][2]float64

// Closed reports whether the first and last points coincide and the ring
// has at least four points.
func (r Ring) Closed() bool {
	if len(r) < 4 {
		return false
	}
	return r[0] == r[len(r)-1]
}

// Clone returns a copy that shares no backing array with r.
func (r Ring) Clone() Ring {
	if r == nil {
		return nil
	}
	out := make(Ring, len(r))
	copy(out, r)
	return out
}

// Centroid returns the vertex average of the ring, ignoring the closing point.
func (r Ring) Centroid() LatLng {
	n := len(r)
	if n == 0 {
		return LatLng{}
	}
	if r.Closed() {
		n--
	}
	var lat, lng float64
	for _, p := range r[:n] {
		lng += p[0]
		lat += p[1]
	}
	return LatLng{Lat: lat / float64(n), Lng: lng / float64(n)}
}
