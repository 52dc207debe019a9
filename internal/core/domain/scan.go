package domain

import "time"

// ScanState is the scheduler's single authoritative state.
type ScanState string

const (
	StateStopped   ScanState = "Stopped"
	StateIdle      ScanState = "Idle"
	StateScanning  ScanState = "Scanning"
	StateAnalyzing ScanState = "Analyzing"
)

// AllScanStates lists every state.
var AllScanStates = []ScanState{StateStopped, StateIdle, StateScanning, StateAnalyzing}

// Severity grades a log entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// LogEntry is one line of the patrol's operator log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
}

// Snapshot is the read-only view of the scheduler published once per tick.
type Snapshot struct {
	State          ScanState `json:"state"`
	Running        bool      `json:"running"`
	ScanCount      uint64    `json:"scan_count"`
	Position       Position  `json:"position"`
	Footprint      Bounds    `json:"footprint"`
	ImageRef       string    `json:"image_ref,omitempty"`
	InFlight       bool      `json:"in_flight"`
	DetectionCount int       `json:"detection_count"`
	At             time.Time `json:"at"`
}
