// Package sqlite stores the population table and cleaned sightings in a local
// SQLite database for ad hoc querying.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/sighting-density-etl/internal/domain"
)

// Store wraps a SQLite connection. It implements pipeline.PopulationStore
// (write side) and pipeline.SightingLoader. Each run's rows are tagged with
// the run ID; reloading a source within the same run replaces its rows.
type Store struct {
	db    *sql.DB
	runID string
}

// busyTimeoutMS bounds how long a connection waits on another writer's lock.
const busyTimeoutMS = 5000

// Open opens or creates the database at path and ensures the schema exists.
// The store is shared by concurrently running steps, so writes go through a
// single connection and queue on the pool instead of failing with SQLITE_BUSY.
func Open(path, runID string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", path, busyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, runID: runID}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS population (
		name TEXT NOT NULL,
		state TEXT NOT NULL,
		decade INTEGER NOT NULL,
		population INTEGER NOT NULL,
		PRIMARY KEY (state, decade)
	);

	CREATE TABLE IF NOT EXISTS sightings (
		id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		source TEXT NOT NULL,
		row_num INTEGER NOT NULL,
		state TEXT NOT NULL,
		date TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		day INTEGER NOT NULL,
		decade INTEGER NOT NULL,
		norm_population REAL,
		fields_json TEXT NOT NULL,
		PRIMARY KEY (run_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_sightings_source ON sightings(source);
	CREATE INDEX IF NOT EXISTS idx_sightings_state_decade ON sightings(state, decade);
	`
	_, err := db.Exec(schema)
	return err
}

// SavePopulation replaces the stored population table.
func (s *Store) SavePopulation(ctx context.Context, t *domain.PopulationTable) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin population tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM population"); err != nil {
		return fmt.Errorf("clear population: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO population (name, state, decade, population) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare population insert: %w", err)
	}
	defer stmt.Close()

	decades := t.Decades()
	for _, r := range t.Rows() {
		for _, d := range decades {
			if _, err := stmt.ExecContext(ctx, r.State.Name, r.State.Abbreviation, d, r.Counts[d]); err != nil {
				return fmt.Errorf("insert population %s %d: %w", r.State.Abbreviation, d, err)
			}
		}
	}
	return tx.Commit()
}

// LoadSightings inserts one cleaned source table.
func (s *Store) LoadSightings(ctx context.Context, t domain.SightingTable) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sightings tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM sightings WHERE run_id = ? AND source = ?", s.runID, t.Source); err != nil {
		return fmt.Errorf("clear %s sightings: %w", t.Source, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sightings (id, run_id, source, row_num, state, date, year, month, day, decade, norm_population, fields_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sightings insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range t.Rows {
		fields, err := json.Marshal(row.Fields)
		if err != nil {
			return fmt.Errorf("marshal fields: %w", err)
		}
		var density sql.NullFloat64
		if f, ok := row.NormPopulationFloat(); ok {
			density = sql.NullFloat64{Float64: f, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			row.ID(), s.runID, row.Source, row.Row, row.State,
			row.Date.Format(domain.DateOutputLayout), row.Year, row.Month, row.Day, row.Decade,
			density, string(fields),
		); err != nil {
			return fmt.Errorf("insert %s row %d: %w", row.Source, row.Row, err)
		}
	}
	return tx.Commit()
}

// CountSightings returns the number of stored rows for a source in this run.
func (s *Store) CountSightings(ctx context.Context, source string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sightings WHERE run_id = ? AND source = ?", s.runID, source).Scan(&n)
	return n, err
}

// Population reads one stored population cell.
func (s *Store) Population(ctx context.Context, state string, decade int) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT population FROM population WHERE state = ? AND decade = ?", state, decade).Scan(&n)
	return n, err
}
