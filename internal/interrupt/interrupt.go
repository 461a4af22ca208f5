// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package interrupt turns operator requests to stop into a single-shot
// context cancellation.
package interrupt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/ManuGH/mediarun/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Source identifies what triggered an interrupt.
type Source string

const (
	SourceSignal   Source = "signal"
	SourceStopFile Source = "stop_file"
)

// Interrupted is the cancellation cause of a context returned by Listen.
type Interrupted struct {
	Source Source
	Detail string
}

func (e *Interrupted) Error() string {
	return fmt.Sprintf("interrupted by %s (%s)", e.Source, e.Detail)
}

// Options configures Listen.
type Options struct {
	// Signals defaults to SIGINT and SIGTERM.
	Signals []os.Signal
	// StopFile, when set, interrupts as soon as the file exists.
	StopFile string
	Logger   *zerolog.Logger
}

// Listen returns a context that is cancelled on the first interrupt. Later
// interrupts are logged and ignored; the signal handler stays installed until
// release is called, so a repeated Ctrl-C does not kill the process while the
// pipeline drains. release cancels the context and waits for the listeners.
func Listen(parent context.Context, opts Options) (ctx context.Context, release func(), err error) {
	logger := log.WithComponent("interrupt")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	sigs := opts.Signals
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	ctx, cancel := context.WithCancelCause(parent)
	done := make(chan struct{})
	l := &listener{logger: logger, cancel: cancel}

	var watcher *fsnotify.Watcher
	if opts.StopFile != "" {
		watcher, err = watchStopFile(opts.StopFile)
		if err != nil {
			cancel(err)
			return nil, nil, err
		}
	}

	var wg sync.WaitGroup
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sigs...)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer signal.Stop(sigCh)
		for {
			select {
			case <-done:
				return
			case sig := <-sigCh:
				l.trigger(SourceSignal, sig.String())
			}
		}
	}()

	if watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.watch(done, watcher, opts.StopFile)
		}()
		// The file may have been created before the watch was established.
		if _, statErr := os.Stat(opts.StopFile); statErr == nil {
			l.trigger(SourceStopFile, opts.StopFile)
		}
	}

	var once sync.Once
	release = func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			cancel(context.Canceled)
		})
	}
	return ctx, release, nil
}

// Cause returns the interrupt that cancelled ctx, if any.
func Cause(ctx context.Context) (*Interrupted, bool) {
	var in *Interrupted
	if errors.As(context.Cause(ctx), &in) {
		return in, true
	}
	return nil, false
}

type listener struct {
	mu        sync.Mutex
	triggered bool
	logger    zerolog.Logger
	cancel    context.CancelCauseFunc
}

func (l *listener) trigger(src Source, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.triggered {
		l.logger.Info().
			Str(log.FieldSource, string(src)).
			Str("detail", detail).
			Msg("interrupt already requested, ignoring")
		return
	}
	l.triggered = true
	l.logger.Info().
		Str(log.FieldEvent, "interrupt.received").
		Str(log.FieldSource, string(src)).
		Str("detail", detail).
		Msg("interrupt received")
	l.cancel(&Interrupted{Source: src, Detail: detail})
}

func (l *listener) watch(done <-chan struct{}, watcher *fsnotify.Watcher, path string) {
	defer func() {
		_ = watcher.Close()
	}()
	target := filepath.Base(path)
	for {
		select {
		case <-done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				l.trigger(SourceStopFile, path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn().Err(err).Msg("fsnotify watcher error")
		}
	}
}

func watchStopFile(path string) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch directory %s: %w", dir, err)
	}
	return watcher, nil
}
