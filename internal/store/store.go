// Package store handles SQLite persistence of allocation runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klavio/keyfit/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY,
			created_at TEXT NOT NULL,
			profile TEXT NOT NULL,
			strategy TEXT NOT NULL,
			seed INTEGER NOT NULL,
			friction REAL NOT NULL,
			assigned INTEGER NOT NULL,
			unassigned INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS run_bindings (
			run_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			action TEXT NOT NULL,
			key TEXT NOT NULL,
			fingers TEXT NOT NULL,
			PRIMARY KEY (run_id, position)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_run_bindings_action ON run_bindings(action);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun stores a completed run and its bindings.
func (s *Store) InsertRun(ctx context.Context, rec model.RunRecord, bindings []model.Binding) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (created_at, profile, strategy, seed, friction, assigned, unassigned)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.CreatedAt.Format(time.RFC3339Nano),
		rec.Profile,
		rec.Strategy,
		rec.Seed,
		rec.Friction,
		rec.Assigned,
		rec.Unassigned,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if len(bindings) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO run_bindings (run_id, position, action, key, fingers)
			 VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for i, b := range bindings {
			if _, err := stmt.ExecContext(ctx, id, i, b.Action, b.Key, joinFingers(b.Fingers)); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// ListRuns returns the most recent runs, newest first. A non-empty profile
// filters by profile name; limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, profile string, limit int) ([]model.RunRecord, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if profile != "" {
		clauses = append(clauses, "profile = ?")
		args = append(args, profile)
	}
	query := fmt.Sprintf(`SELECT id, created_at, profile, strategy, seed, friction, assigned, unassigned
		FROM runs
		WHERE %s
		ORDER BY created_at DESC, id DESC`, strings.Join(clauses, " AND "))
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []model.RunRecord
	for rows.Next() {
		var rec model.RunRecord
		var createdAt string
		if err := rows.Scan(&rec.ID, &createdAt, &rec.Profile, &rec.Strategy, &rec.Seed, &rec.Friction, &rec.Assigned, &rec.Unassigned); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		rec.CreatedAt = parsed
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// ListBindings returns the bindings of one run in their stored order.
func (s *Store) ListBindings(ctx context.Context, runID int64) ([]model.Binding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action, key, fingers FROM run_bindings WHERE run_id = ? ORDER BY position ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var bindings []model.Binding
	for rows.Next() {
		var b model.Binding
		var fingers string
		if err := rows.Scan(&b.Action, &b.Key, &fingers); err != nil {
			return nil, err
		}
		b.Fingers, err = splitFingers(fingers)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bindings, nil
}

func joinFingers(fingers []model.Finger) string {
	names := make([]string, len(fingers))
	for i, f := range fingers {
		names[i] = f.String()
	}
	return strings.Join(names, ",")
}

func splitFingers(s string) ([]model.Finger, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	fingers := make([]model.Finger, len(parts))
	for i, p := range parts {
		f, err := model.ParseFinger(p)
		if err != nil {
			return nil, err
		}
		fingers[i] = f
	}
	return fingers, nil
}
