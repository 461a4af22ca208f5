// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package diagnostics writes pipeline snapshots on state changes.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ManuGH/mediarun/internal/metrics"
	"github.com/ManuGH/mediarun/internal/pipeline/handle"
	"github.com/ManuGH/mediarun/internal/pipeline/model"
	"github.com/google/renameio/v2"
	"golang.org/x/time/rate"
)

// DefaultMaxPerSecond bounds snapshot writes when no limit is configured.
const DefaultMaxPerSecond = 5.0

// Sink writes one file per pipeline state change into Dir.
type Sink struct {
	dir     string
	limiter *rate.Limiter
	seq     atomic.Uint64
	now     func() time.Time
}

// snapshot is the JSON form used when the backend cannot describe its graph.
type snapshot struct {
	Time    time.Time   `json:"time"`
	Source  string      `json:"source"`
	Old     model.State `json:"old_state"`
	Current model.State `json:"new_state"`
}

// New creates dir if needed and returns a sink writing at most maxPerSecond
// snapshots per second (burst of the same size).
func New(dir string, maxPerSecond float64) (*Sink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("diagnostics: empty directory")
	}
	// #nosec G301 -- operator-facing debug output
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("diagnostics: create %s: %w", dir, err)
	}
	if maxPerSecond <= 0 {
		maxPerSecond = DefaultMaxPerSecond
	}
	burst := int(maxPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Sink{
		dir:     dir,
		limiter: rate.NewLimiter(rate.Limit(maxPerSecond), burst),
		now:     time.Now,
	}, nil
}

// Dir returns the output directory.
func (s *Sink) Dir() string {
	return s.dir
}

// Snapshot records st. A snapshot dropped by the rate limiter is not an error.
func (s *Sink) Snapshot(h handle.Handle, st model.Status) error {
	if !s.limiter.Allow() {
		metrics.IncDiagnosticsSnapshot("suppressed")
		return nil
	}

	data, ext, err := s.render(h, st)
	if err != nil {
		metrics.IncDiagnosticsSnapshot("error")
		return err
	}

	name := fmt.Sprintf("%04d-%s-%s%s", s.seq.Add(1),
		strings.ToLower(string(st.Old)), strings.ToLower(string(st.Current)), ext)
	if err := writeAtomic(filepath.Join(s.dir, name), data); err != nil {
		metrics.IncDiagnosticsSnapshot("error")
		return err
	}
	metrics.IncDiagnosticsSnapshot("written")
	return nil
}

func (s *Sink) render(h handle.Handle, st model.Status) ([]byte, string, error) {
	if d, ok := h.(graphSource); ok {
		h = d.Unwrap()
	}
	if gd, ok := h.(handle.GraphDumper); ok {
		data, err := gd.DumpGraph()
		if err != nil {
			return nil, "", fmt.Errorf("diagnostics: dump graph: %w", err)
		}
		return data, ".dot", nil
	}
	data, err := json.MarshalIndent(snapshot{
		Time:    s.now().UTC(),
		Source:  st.Source,
		Old:     st.Old,
		Current: st.Current,
	}, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("diagnostics: encode snapshot: %w", err)
	}
	return data, ".json", nil
}

// graphSource lets wrappers such as handle.Serialized expose the backend.
type graphSource interface {
	Unwrap() handle.Handle
}

// writeAtomic writes data with fsync + rename so a crash never leaves a torn file.
func writeAtomic(path string, data []byte) error {
	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending snapshot file: %w", err)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write snapshot data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace snapshot file: %w", err)
	}
	return nil
}
