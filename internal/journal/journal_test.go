// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/mediarun/internal/pipeline/lifecycle"
	"github.com/ManuGH/mediarun/internal/pipeline/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestFromReport(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rep := lifecycle.Report{
		RunID:     "run-1",
		Backend:   "process",
		Outcome:   model.OutcomeFaulted,
		Err:       errors.New("pipeline force-stopped after stop timeout"),
		StartedAt: start,
		EndedAt:   start.Add(time.Minute),
		Commands: []model.Command{
			model.CommandStarted, model.CommandError, model.CommandError,
		},
		ForcedStop: true,
	}

	r := FromReport(rep)
	assert.Equal(t, "run-1", r.ID)
	assert.Equal(t, model.OutcomeFaulted, r.Outcome)
	assert.Equal(t, "pipeline force-stopped after stop timeout", r.Error)
	assert.True(t, r.ForcedStop)
	assert.Equal(t, 1, r.Commands[model.CommandStarted])
	assert.Equal(t, 2, r.Commands[model.CommandError])
	assert.Zero(t, r.Commands[model.CommandEOS])
}

func TestStore_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, outcome := range []model.Outcome{
		model.OutcomeFinishedNaturally,
		model.OutcomeFinishedByCancellation,
		model.OutcomeFaulted,
	} {
		r := Run{
			ID:        string(rune('a' + i)),
			Backend:   "process",
			StartedAt: base.Add(time.Duration(i) * time.Second),
			EndedAt:   base.Add(time.Duration(i)*time.Second + 500*time.Millisecond),
			Outcome:   outcome,
			Commands:  map[model.Command]int{model.CommandStarted: 1, model.CommandEOS: 1, model.CommandEnded: 1},
		}
		require.NoError(t, s.Record(ctx, r))
	}

	runs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Equal(t, model.OutcomeFaulted, runs[0].Outcome)
	assert.True(t, runs[0].StartedAt.Equal(base.Add(2*time.Second)))
	assert.Equal(t, 500*time.Millisecond, runs[0].EndedAt.Sub(runs[0].StartedAt))
	assert.Equal(t, 1, runs[1].Commands[model.CommandEnded])
	assert.Equal(t, 0, runs[1].Commands[model.CommandError])
}

func TestStore_SubSecondOrdering(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)

	base := time.Date(2025, 3, 1, 12, 0, 5, 0, time.UTC)
	require.NoError(t, s.Record(ctx, Run{ID: "whole", StartedAt: base, EndedAt: base}))
	later := base.Add(500 * time.Millisecond)
	require.NoError(t, s.Record(ctx, Run{ID: "fraction", StartedAt: later, EndedAt: later}))

	runs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "fraction", runs[0].ID)
}

func TestStore_DuplicateRunRejected(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)

	r := Run{ID: "dup", Backend: "gst", StartedAt: time.Now(), EndedAt: time.Now()}
	require.NoError(t, s.Record(ctx, r))
	assert.Error(t, s.Record(ctx, r))
}

func TestStore_InvalidLimit(t *testing.T) {
	s, _ := openStore(t)
	_, err := s.Recent(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	s, path := openStore(t)
	require.NoError(t, s.Record(ctx, Run{ID: "persisted", StartedAt: time.Now(), EndedAt: time.Now()}))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	runs, err := reopened.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "persisted", runs[0].ID)
}
