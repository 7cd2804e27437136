// Package state keeps the history of merge runs in a local sqlite database.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DBFileName is the history database inside the data directory
const DBFileName = "history.db"

// Run statuses
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Manager handles run history persistence
type Manager struct {
	db *sql.DB
}

// RunRecord represents one finished merge run
type RunRecord struct {
	ID               int64
	RunID            string
	Root             string
	Strategy         string
	Status           string // "success", "failed", "cancelled"
	Archives         int
	Documents        int
	Conflicts        int
	Presets          int
	ContributingMods []string
	InputFingerprint string
	OutputChecksum   string
	Error            string
	StartTime        time.Time
	EndTime          time.Time
}

// Duration returns how long the run took
func (r RunRecord) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// NewManager opens (or creates) the history database in dataDir
func NewManager(dataDir string) (*Manager, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dataDir, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 單一連線避免 "database is locked"
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	m := &Manager{db: db}
	if err := m.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return m, nil
}

func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		root TEXT NOT NULL,
		strategy TEXT NOT NULL,
		status TEXT NOT NULL,
		archives INTEGER DEFAULT 0,
		documents INTEGER DEFAULT 0,
		conflicts INTEGER DEFAULT 0,
		presets INTEGER DEFAULT 0,
		contributing_mods TEXT DEFAULT '',
		input_fingerprint TEXT DEFAULT '',
		output_checksum TEXT DEFAULT '',
		error TEXT DEFAULT '',
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_root_time ON runs(root, start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`
	_, err := m.db.Exec(schema)
	return err
}

// SaveRun records a finished run
func (m *Manager) SaveRun(r RunRecord) error {
	switch r.Status {
	case StatusSuccess, StatusFailed, StatusCancelled:
	default:
		return fmt.Errorf("invalid status: %s (must be 'success', 'failed', or 'cancelled')", r.Status)
	}
	if r.RunID == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	query := `
		INSERT INTO runs (run_id, root, strategy, status, archives, documents, conflicts, presets,
			contributing_mods, input_fingerprint, output_checksum, error, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := m.db.Exec(query,
		r.RunID,
		r.Root,
		r.Strategy,
		r.Status,
		r.Archives,
		r.Documents,
		r.Conflicts,
		r.Presets,
		strings.Join(r.ContributingMods, ","),
		r.InputFingerprint,
		r.OutputChecksum,
		r.Error,
		r.StartTime,
		r.EndTime,
	)
	if err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, run_id, root, strategy, status, archives, documents, conflicts, presets,
		contributing_mods, input_fingerprint, output_checksum, error, start_time, end_time
	FROM runs`

// GetHistory retrieves the latest runs for a mods root
func (m *Manager) GetHistory(root string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	return m.query(selectColumns+` WHERE root = ? ORDER BY start_time DESC LIMIT ?`, root, limit)
}

// GetAllHistory retrieves the latest runs for every root
func (m *Manager) GetAllHistory(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	return m.query(selectColumns+` ORDER BY start_time DESC LIMIT ?`, limit)
}

// GetLastSuccess retrieves the last successful run for a root, nil when there is none
func (m *Manager) GetLastSuccess(root string) (*RunRecord, error) {
	records, err := m.query(selectColumns+` WHERE root = ? AND status = 'success' ORDER BY start_time DESC LIMIT 1`, root)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (m *Manager) query(query string, args ...any) ([]RunRecord, error) {
	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		var mods string
		err := rows.Scan(
			&r.ID,
			&r.RunID,
			&r.Root,
			&r.Strategy,
			&r.Status,
			&r.Archives,
			&r.Documents,
			&r.Conflicts,
			&r.Presets,
			&mods,
			&r.InputFingerprint,
			&r.OutputChecksum,
			&r.Error,
			&r.StartTime,
			&r.EndTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if mods != "" {
			r.ContributingMods = strings.Split(mods, ",")
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
