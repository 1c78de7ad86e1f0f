package controller

import (
	"time"

	"github.com/yegors/autovector/internal/airspace"
)

// Event types published by the controller as agents move through their
// lifecycle. Shapes mirror what UI clients consume over the websocket.
const (
	EventAgentAdded   = "agent_added"
	EventAgentUpdated = "agent_updated"
	EventAgentRemoved = "agent_removed"
	EventHandoff      = "handoff"
	EventAirspaceExit = "airspace_exit"
)

// Event is one agent lifecycle notification
type Event struct {
	Type      string         `json:"type"`
	AgentID   string         `json:"agent_id"`
	Cell      *airspace.Cell `json:"cell,omitempty"`
	Runway    string         `json:"runway,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventSink receives controller events. Publish must not block: the
// controller calls it from inside the tick loop.
type EventSink interface {
	Publish(Event)
}

// NopSink discards events, for callers that do not need them
type NopSink struct{}

// Publish implements EventSink
func (NopSink) Publish(Event) {}
