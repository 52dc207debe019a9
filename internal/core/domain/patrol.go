package domain

import "time"

// Direction is the leg of the corridor currently being flown.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d == Backward {
		return Forward
	}
	return Backward
}

// Position is the agent's state after a patrol step.
type Position struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Heading   float64   `json:"heading"`
	DataRate  float64   `json:"data_rate"` // Mbps, cosmetic
	StepIndex int       `json:"step_index"`
	Direction Direction `json:"direction"`
}

// LatLng returns the coordinate part of the position.
func (p Position) LatLng() LatLng {
	return LatLng{Lat: p.Lat, Lng: p.Lng}
}

// PatrolRoute is the fixed corridor the agent flies back and forth.
type PatrolRoute struct {
	Start          LatLng        `json:"start"`
	End            LatLng        `json:"end"`
	ForwardHeading float64       `json:"forward_heading"`
	SpeedKmh       float64       `json:"speed_kmh"`
	TickInterval   time.Duration `json:"tick_interval"`
}
