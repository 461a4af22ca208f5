// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package journal records finished pipeline runs in SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ManuGH/mediarun/internal/log"
	"github.com/ManuGH/mediarun/internal/persistence/sqlite"
	"github.com/ManuGH/mediarun/internal/pipeline/lifecycle"
	"github.com/ManuGH/mediarun/internal/pipeline/model"
)

const schemaVersion = 1

// timeLayout is fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	backend TEXT NOT NULL,
	started_at TEXT NOT NULL,
	ended_at TEXT NOT NULL,
	outcome TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	forced_stop BOOLEAN NOT NULL DEFAULT 0,
	started_count INTEGER NOT NULL DEFAULT 0,
	ended_count INTEGER NOT NULL DEFAULT 0,
	eos_count INTEGER NOT NULL DEFAULT 0,
	error_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// ErrInvalidLimit is returned by Recent for a non-positive limit.
var ErrInvalidLimit = errors.New("journal: limit must be positive")

// Run is one journal row.
type Run struct {
	ID         string
	Backend    string
	StartedAt  time.Time
	EndedAt    time.Time
	Outcome    model.Outcome
	Error      string
	ForcedStop bool
	// Commands counts dispatched commands by type.
	Commands map[model.Command]int
}

// FromReport converts a coordinator report into a journal row.
func FromReport(rep lifecycle.Report) Run {
	r := Run{
		ID:         rep.RunID,
		Backend:    rep.Backend,
		StartedAt:  rep.StartedAt,
		EndedAt:    rep.EndedAt,
		Outcome:    rep.Outcome,
		ForcedStop: rep.ForcedStop,
		Commands:   make(map[model.Command]int),
	}
	if rep.Err != nil {
		r.Error = rep.Err.Error()
	}
	for _, c := range rep.Commands {
		r.Commands[c]++
	}
	return r
}

// Store is the SQLite run journal.
type Store struct {
	DB *sql.DB
}

// Open opens or creates the journal at path. An existing file is checked for
// corruption first; problems are logged and do not prevent opening.
func Open(ctx context.Context, path string) (*Store, error) {
	logger := log.WithComponent("journal")
	if _, err := os.Stat(path); err == nil {
		issues, verr := sqlite.VerifyIntegrity(path, sqlite.CheckQuick)
		switch {
		case verr != nil:
			logger.Warn().Err(verr).Str(log.FieldPath, path).Msg("journal integrity check failed to run")
		case issues != nil:
			logger.Warn().Strs("issues", issues).Str(log.FieldPath, path).Msg("journal integrity check reported problems")
		}
	}

	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, schemaVersion, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migration failed: %w", err)
	}
	return &Store{DB: db}, nil
}

// Record inserts r. Recording the same run id twice is an error.
func (s *Store) Record(ctx context.Context, r Run) error {
	const query = `
	INSERT INTO runs (id, backend, started_at, ended_at, outcome, error, forced_stop,
		started_count, ended_count, eos_count, error_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.DB.ExecContext(ctx, query,
		r.ID, r.Backend,
		r.StartedAt.UTC().Format(timeLayout), r.EndedAt.UTC().Format(timeLayout),
		string(r.Outcome), r.Error, r.ForcedStop,
		r.Commands[model.CommandStarted], r.Commands[model.CommandEnded],
		r.Commands[model.CommandEOS], r.Commands[model.CommandError],
	)
	if err != nil {
		return fmt.Errorf("journal: record run %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to n runs, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Run, error) {
	if n <= 0 {
		return nil, ErrInvalidLimit
	}
	const query = `
	SELECT id, backend, started_at, ended_at, outcome, error, forced_stop,
		started_count, ended_count, eos_count, error_count
	FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`
	rows, err := s.DB.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("journal: query recent: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                              Run
			startedAt, endedAt, outcome    string
			startedN, endedN, eosN, errorN int
		)
		if err := rows.Scan(&r.ID, &r.Backend, &startedAt, &endedAt, &outcome, &r.Error, &r.ForcedStop,
			&startedN, &endedN, &eosN, &errorN); err != nil {
			return nil, fmt.Errorf("journal: scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, startedAt)
		r.EndedAt, _ = time.Parse(timeLayout, endedAt)
		r.Outcome = model.Outcome(outcome)
		r.Commands = map[model.Command]int{
			model.CommandStarted: startedN,
			model.CommandEnded:   endedN,
			model.CommandEOS:     eosN,
			model.CommandError:   errorN,
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.DB.Close()
}
