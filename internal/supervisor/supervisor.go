// Package supervisor runs one tickloop.Worker per configured market and
// fans their tick events into a single channel for the status host. It is
// adapted from the engine's New/Start/Stop lifecycle, trimmed to what a
// fleet of independent ladder workers needs: no shared book/feed routing,
// since each worker owns its own gateway calls.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"ladder-mm/internal/config"
	"ladder-mm/internal/tickloop"
)

// Supervisor owns the lifecycle of every configured worker.
type Supervisor struct {
	workers []*tickloop.Worker
	events  chan tickloop.TickEvent
	logger  *slog.Logger

	wg sync.WaitGroup
}

// New constructs one worker per entry in cfg.Workers, all sharing gw.
func New(cfg *config.AppConfig, gw tickloop.Gateway, logger *slog.Logger) *Supervisor {
	events := make(chan tickloop.TickEvent, 256)

	workers := make([]*tickloop.Worker, 0, len(cfg.Workers))
	for _, wc := range cfg.Workers {
		workers = append(workers, tickloop.New(wc, gw, logger, events))
	}

	return &Supervisor{
		workers: workers,
		events:  events,
		logger:  logger.With("component", "supervisor"),
	}
}

// Events returns the fanned-in tick event stream for the status host to
// consume. Closed once every worker has stopped.
func (s *Supervisor) Events() <-chan tickloop.TickEvent {
	return s.events
}

// Start initializes and launches every worker concurrently, returning once
// every worker has finished initializing, successfully or not. Workers that
// fail to initialize are logged and skipped rather than aborting the whole
// fleet; an error is returned only if no worker initialized.
func (s *Supervisor) Start(ctx context.Context) error {
	var mu sync.Mutex
	var initErrs []error

	var initWG sync.WaitGroup
	runnable := make([]*tickloop.Worker, 0, len(s.workers))

	for _, w := range s.workers {
		initWG.Add(1)
		go func(w *tickloop.Worker) {
			defer initWG.Done()
			if err := w.Initialize(ctx); err != nil {
				mu.Lock()
				initErrs = append(initErrs, err)
				mu.Unlock()
				s.logger.Error("worker failed to initialize", "error", err)
				return
			}
			mu.Lock()
			runnable = append(runnable, w)
			mu.Unlock()
		}(w)
	}
	initWG.Wait()

	if len(runnable) == 0 && len(s.workers) > 0 {
		return fmt.Errorf("no worker initialized successfully: %d failure(s)", len(initErrs))
	}

	for _, w := range runnable {
		s.wg.Add(1)
		go func(w *tickloop.Worker) {
			defer s.wg.Done()
			if err := w.Start(ctx); err != nil {
				s.logger.Error("worker exited with error", "error", err)
			}
		}(w)
	}

	go func() {
		s.wg.Wait()
		close(s.events)
	}()

	s.logger.Info("supervisor started", "workers", len(runnable))
	return nil
}

// Stop stops every worker and waits for them to finish.
func (s *Supervisor) Stop(ctx context.Context) {
	s.logger.Info("stopping all workers")

	var wg sync.WaitGroup
	for _, w := range s.workers {
		wg.Add(1)
		go func(w *tickloop.Worker) {
			defer wg.Done()
			w.Stop(ctx)
		}(w)
	}
	wg.Wait()

	s.logger.Info("all workers stopped")
}
