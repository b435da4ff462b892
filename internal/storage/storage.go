// Package storage persists lines, machines, and derived reports in SQLite.
// Reports are stored as JSON payloads keyed by kind and scope, and are
// rotated so each scope keeps only its most recent reports.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rewired-gh/oeewatch/internal/models"
)

// ErrNotFound is returned when no report exists for a scope.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS lines (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS machines (
	id      TEXT PRIMARY KEY,
	name    TEXT NOT NULL,
	line_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_machines_line ON machines(line_id);
CREATE TABLE IF NOT EXISTS reports (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	scope      TEXT NOT NULL,
	period     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_scope ON reports(kind, scope, created_at);
`

// Storage provides SQLite-backed persistence
type Storage struct {
	db *sql.DB

	// Configuration
	maxReportsPerScope int
	dbPath             string
}

// New opens (or creates) the database at dbPath. Use ":memory:" for a
// throwaway database.
func New(maxReportsPerScope int, dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{
		db:                 db,
		maxReportsPerScope: maxReportsPerScope,
		dbPath:             dbPath,
	}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// UpsertLine inserts or renames a line
func (s *Storage) UpsertLine(line *models.Line) error {
	if err := line.Validate(); err != nil {
		return fmt.Errorf("invalid line: %w", err)
	}
	_, err := s.db.Exec(
		`INSERT INTO lines (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		line.ID, line.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert line %s: %w", line.ID, err)
	}
	return nil
}

// UpsertMachine inserts or updates a machine
func (s *Storage) UpsertMachine(machine *models.Machine) error {
	if err := machine.Validate(); err != nil {
		return fmt.Errorf("invalid machine: %w", err)
	}
	_, err := s.db.Exec(
		`INSERT INTO machines (id, name, line_id) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, line_id = excluded.line_id`,
		machine.ID, machine.Name, machine.LineID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert machine %s: %w", machine.ID, err)
	}
	return nil
}

// GetLines returns all lines ordered by ID
func (s *Storage) GetLines() ([]models.Line, error) {
	rows, err := s.db.Query(`SELECT id, name FROM lines ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	lines := []models.Line{}
	for rows.Next() {
		var l models.Line
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// GetMachines returns the machines of a line, or of every line when lineID is empty
func (s *Storage) GetMachines(lineID string) ([]models.Machine, error) {
	query := `SELECT id, name, line_id FROM machines`
	var args []interface{}
	if lineID != "" {
		query += ` WHERE line_id = ?`
		args = append(args, lineID)
	}
	query += ` ORDER BY line_id, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query machines: %w", err)
	}
	defer rows.Close()

	machines := []models.Machine{}
	for rows.Next() {
		var m models.Machine
		if err := rows.Scan(&m.ID, &m.Name, &m.LineID); err != nil {
			return nil, fmt.Errorf("failed to scan machine: %w", err)
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

// AddParetoReport stores a Pareto report
func (s *Storage) AddParetoReport(report *models.ParetoReport) error {
	if err := report.Validate(); err != nil {
		return fmt.Errorf("invalid pareto report: %w", err)
	}
	return s.addReport(models.ReportKindPareto, report.ID, report.Scope, report.Period, report.CreatedAt, report)
}

// LatestParetoReport returns the most recent Pareto report of a scope
func (s *Storage) LatestParetoReport(scope string) (*models.ParetoReport, error) {
	var report models.ParetoReport
	if err := s.latestReport(models.ReportKindPareto, scope, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// AddDowntimeReport stores a downtime report
func (s *Storage) AddDowntimeReport(report *models.DowntimeReport) error {
	if err := report.Validate(); err != nil {
		return fmt.Errorf("invalid downtime report: %w", err)
	}
	return s.addReport(models.ReportKindDowntime, report.ID, report.Scope, report.Period, report.CreatedAt, report)
}

// LatestDowntimeReport returns the most recent downtime report of a scope
func (s *Storage) LatestDowntimeReport(scope string) (*models.DowntimeReport, error) {
	var report models.DowntimeReport
	if err := s.latestReport(models.ReportKindDowntime, scope, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ListScopes returns every scope that has at least one report of the given kind
func (s *Storage) ListScopes(kind models.ReportKind) ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT scope FROM reports WHERE kind = ? ORDER BY scope`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query scopes: %w", err)
	}
	defer rows.Close()

	scopes := []string{}
	for rows.Next() {
		var scope string
		if err := rows.Scan(&scope); err != nil {
			return nil, fmt.Errorf("failed to scan scope: %w", err)
		}
		scopes = append(scopes, scope)
	}
	return scopes, rows.Err()
}

// RotateReports removes old reports exceeding the per-scope limit.
// It returns the number of reports removed.
func (s *Storage) RotateReports() (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM reports WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY kind, scope ORDER BY created_at DESC, rowid DESC
				) AS rn FROM reports
			) WHERE rn > ?
		)`, s.maxReportsPerScope)
	if err != nil {
		return 0, fmt.Errorf("failed to rotate reports: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count rotated reports: %w", err)
	}
	return n, nil
}

func (s *Storage) addReport(kind models.ReportKind, id, scope, period string, createdAt time.Time, report interface{}) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO reports (id, kind, scope, period, created_at, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(kind), scope, period, createdAt.UnixNano(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s report %s: %w", kind, id, err)
	}
	return nil
}

func (s *Storage) latestReport(kind models.ReportKind, scope string, out interface{}) error {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM reports WHERE kind = ? AND scope = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		string(kind), scope,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s report for %s: %w", kind, scope, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to query %s report for %s: %w", kind, scope, err)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return nil
}
