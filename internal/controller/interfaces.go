package controller

import (
	"github.com/yegors/autovector/internal/approach"
	"github.com/yegors/autovector/internal/geo"
)

// AircraftSnapshot is the per-tick view of one aircraft, as reported by
// the flight-dynamics collaborator. The controller never moves aircraft
// itself; it only reads snapshots and issues commands.
type AircraftSnapshot struct {
	ID             string    `json:"id"`
	Position       geo.Point `json:"position"`
	HeadingDeg     float64   `json:"heading_deg"`
	AltitudeFt     float64   `json:"altitude_ft"`
	Category       string    `json:"category"`
	InsideAirspace bool      `json:"inside_airspace"`
	Controllable   bool      `json:"controllable"`
}

// AircraftProvider supplies current aircraft snapshots by id
type AircraftProvider interface {
	AircraftByID(id string) (*AircraftSnapshot, bool)
}

// CommandResult reports whether a flight-control command was accepted
type CommandResult struct {
	Accepted bool
	Message  string
}

// FlightControl is the collaborator that executes heading changes and
// approach clearances on the simulated (or real) autopilot
type FlightControl interface {
	IssueHeading(aircraftID string, headingDeg float64) CommandResult
	IssueApproachClearance(aircraftID string, rwy *approach.Runway) CommandResult
}

// RunwayProvider supplies the active landing runway
type RunwayProvider interface {
	ActiveRunway() *approach.Runway
}
