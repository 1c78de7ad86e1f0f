package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/yegors/autovector/internal/learning"
	"github.com/yegors/autovector/pkg/logger"
)

// ValueTableStorage persists value-table snapshots. The persisted shape is
// the same one loadValueTable/dumpValueTable exchange: one row per
// (state, action), all four actions present for every populated state.
type ValueTableStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewValueTableStorage creates a new SQLite value-table storage
func NewValueTableStorage(db *sql.DB, log *logger.Logger) (*ValueTableStorage, error) {
	storage := &ValueTableStorage{
		db:     db,
		logger: log.Named("sqlite-qtable"),
	}
	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize value table storage: %w", err)
	}
	return storage, nil
}

// initDB initializes the database tables
func (s *ValueTableStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS qtable_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			states INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create qtable_snapshots table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS qtable_values (
			snapshot_id INTEGER NOT NULL,
			state_id INTEGER NOT NULL,
			action TEXT NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (snapshot_id, state_id, action),
			FOREIGN KEY (snapshot_id) REFERENCES qtable_snapshots(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create qtable_values table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_qtable_snapshots_name ON qtable_snapshots(name)`,
		`CREATE INDEX IF NOT EXISTS idx_qtable_values_snapshot ON qtable_values(snapshot_id)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create qtable index: %w", err)
		}
	}

	return nil
}

// SaveSnapshot stores a named snapshot of the value table and returns its id
func (s *ValueTableStorage) SaveSnapshot(name string, snap learning.Snapshot) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO qtable_snapshots (name, states, created_at) VALUES (?, ?, ?)`,
		name, len(snap), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get snapshot id: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO qtable_values (snapshot_id, state_id, action, value) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare value insert: %w", err)
	}
	defer stmt.Close()

	for stateID, row := range snap {
		for action, value := range row {
			if _, err := stmt.Exec(id, stateID, action, value); err != nil {
				return 0, fmt.Errorf("failed to insert value for state %d: %w", stateID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	s.logger.Info("Value table snapshot saved",
		logger.Int64("snapshot_id", id),
		logger.String("name", name),
		logger.Int("states", len(snap)),
	)
	return id, nil
}

// LoadSnapshot returns the most recent snapshot with the given name
func (s *ValueTableStorage) LoadSnapshot(name string) (learning.Snapshot, error) {
	var id int64
	err := s.db.QueryRow(
		`SELECT id FROM qtable_snapshots WHERE name = ? ORDER BY id DESC LIMIT 1`,
		name,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no snapshot named %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up snapshot: %w", err)
	}
	return s.loadValues(id)
}

// LoadLatest returns the most recently saved snapshot regardless of name
func (s *ValueTableStorage) LoadLatest() (learning.Snapshot, error) {
	var id int64
	err := s.db.QueryRow(
		`SELECT id FROM qtable_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no snapshots saved")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up latest snapshot: %w", err)
	}
	return s.loadValues(id)
}

// loadValues reads all rows of one snapshot back into the exchange shape
func (s *ValueTableStorage) loadValues(snapshotID int64) (learning.Snapshot, error) {
	rows, err := s.db.Query(
		`SELECT state_id, action, value FROM qtable_values WHERE snapshot_id = ?`,
		snapshotID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot values: %w", err)
	}
	defer rows.Close()

	snap := make(learning.Snapshot)
	for rows.Next() {
		var stateID int
		var action string
		var value float64
		if err := rows.Scan(&stateID, &action, &value); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot value: %w", err)
		}
		if snap[stateID] == nil {
			snap[stateID] = make(map[string]float64, 4)
		}
		snap[stateID][action] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot values: %w", err)
	}

	return snap, nil
}

// ListSnapshots returns metadata for the stored snapshots, newest first
func (s *ValueTableStorage) ListSnapshots(limit int) ([]SnapshotInfo, error) {
	rows, err := s.db.Query(
		`SELECT id, name, states, created_at FROM qtable_snapshots ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var createdAt string
		if err := rows.Scan(&info.ID, &info.Name, &info.States, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot info: %w", err)
		}
		info.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
