package sqlite

import "time"

// SnapshotInfo describes one persisted value-table snapshot
type SnapshotInfo struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	States    int       `json:"states"`
	CreatedAt time.Time `json:"created_at"`
}

// TrainingRun records one run of the tick loop for bookkeeping
type TrainingRun struct {
	ID        int64      `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Ticks     int64      `json:"ticks"`
	Handoffs  int64      `json:"handoffs"`
	Exits     int64      `json:"exits"`
}
