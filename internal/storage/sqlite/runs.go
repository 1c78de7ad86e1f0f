package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/yegors/autovector/pkg/logger"
)

// RunStorage records training runs for bookkeeping
type RunStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewRunStorage creates a new SQLite training-run storage
func NewRunStorage(db *sql.DB, log *logger.Logger) (*RunStorage, error) {
	storage := &RunStorage{
		db:     db,
		logger: log.Named("sqlite-runs"),
	}
	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize run storage: %w", err)
	}
	return storage, nil
}

func (s *RunStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS training_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			ticks INTEGER NOT NULL DEFAULT 0,
			handoffs INTEGER NOT NULL DEFAULT 0,
			exits INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create training_runs table: %w", err)
	}
	return nil
}

// StartRun records the beginning of a run and returns its id
func (s *RunStorage) StartRun() (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO training_runs (started_at) VALUES (?)`,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}
	return id, nil
}

// FinishRun closes a run with its final counters
func (s *RunStorage) FinishRun(id, ticks, handoffs, exits int64) error {
	_, err := s.db.Exec(
		`UPDATE training_runs SET ended_at = ?, ticks = ?, handoffs = ?, exits = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), ticks, handoffs, exits, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first
func (s *RunStorage) RecentRuns(limit int) ([]TrainingRun, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, ended_at, ticks, handoffs, exits
		FROM training_runs
		ORDER BY id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []TrainingRun
	for rows.Next() {
		var run TrainingRun
		var startedAt string
		var endedAt sql.NullString
		if err := rows.Scan(&run.ID, &startedAt, &endedAt, &run.Ticks, &run.Handoffs, &run.Exits); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt, err = time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		if endedAt.Valid {
			ended, err := time.Parse(time.RFC3339, endedAt.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse ended_at: %w", err)
			}
			run.EndedAt = &ended
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
