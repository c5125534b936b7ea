// Package worker runs the background loops that keep the call queue moving:
// draining deferred calls into free budget, clearing window-scoped pauses on
// rollover, recovering stale claims, and pruning old rows.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ErGaurav155/ainspiretech-api/internal/constants"
	"github.com/ErGaurav155/ainspiretech-api/internal/service"
	"github.com/ErGaurav155/ainspiretech-api/internal/window"
)

// staleRecoveryEvery is how many drain ticks pass between stale-claim sweeps.
const staleRecoveryEvery = 20

// Worker drives the drain and maintenance loops.
type Worker struct {
	drainSvc   *service.DrainService
	pauseSvc   *service.PauseService
	cleanupSvc *service.CleanupService
	cfg        Config
	stop       chan struct{}
	wg         sync.WaitGroup
	logger     *slog.Logger
	nowFunc    func() time.Time
}

// Config holds worker configuration.
type Config struct {
	PollInterval    time.Duration
	CleanupInterval time.Duration
	QueueMaxAge     time.Duration
	UsageMaxAge     time.Duration
}

// New creates a new worker.
func New(
	drainSvc *service.DrainService,
	pauseSvc *service.PauseService,
	cleanupSvc *service.CleanupService,
	cfg Config,
	logger *slog.Logger,
) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 24 * time.Hour
	}
	if cfg.QueueMaxAge == 0 {
		cfg.QueueMaxAge = constants.QueueRetentionPeriod
	}
	if cfg.UsageMaxAge == 0 {
		cfg.UsageMaxAge = constants.UsageRetentionPeriod
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		drainSvc:   drainSvc,
		pauseSvc:   pauseSvc,
		cleanupSvc: cleanupSvc,
		cfg:        cfg,
		stop:       make(chan struct{}),
		logger:     logger.With("component", "worker"),
		nowFunc:    time.Now,
	}
}

// Start begins the background loops.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting", "poll_interval", w.cfg.PollInterval)

	w.wg.Add(1)
	go w.runDrainLoop(ctx)

	if w.cleanupSvc != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.cleanupSvc.RunScheduled(ctx,
				w.cfg.QueueMaxAge,
				w.cfg.UsageMaxAge,
				w.cfg.CleanupInterval)
		}()
	}
}

// Stop gracefully stops the worker and waits for in-flight passes.
func (w *Worker) Stop() {
	w.logger.Info("stopping")
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("stopped")
}

func (w *Worker) runDrainLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	lastWindow := window.CurrentStart(w.nowFunc())
	tick := 0

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			lastWindow = w.checkRollover(ctx, lastWindow)
			w.drainPass(ctx)
			if tick%staleRecoveryEvery == 0 {
				w.recoverStale(ctx)
			}
		}
	}
}

// checkRollover clears window-scoped pauses when a new hourly window starts.
func (w *Worker) checkRollover(ctx context.Context, lastWindow time.Time) time.Time {
	current := window.CurrentStart(w.nowFunc())
	if current.Equal(lastWindow) {
		return lastWindow
	}

	cleared, err := w.pauseSvc.HandleRollover(ctx)
	if err != nil {
		w.logger.Error("rollover handling failed", "window", window.Key(current), "error", err)
		// Retry on the next tick rather than skipping the rollover.
		return lastWindow
	}

	w.logger.Info("window rolled over", "window", window.Key(current), "pauses_cleared", cleared)
	return current
}

func (w *Worker) drainPass(ctx context.Context) {
	result, err := w.drainSvc.DrainCurrentWindow(ctx)
	if err != nil {
		w.logger.Error("drain pass failed", "error", err)
		return
	}
	if !result.LeaseAcquired || result.Claimed == 0 {
		return
	}

	w.logger.Info("drain pass finished",
		"claimed", result.Claimed,
		"completed", result.Completed,
		"requeued", result.Requeued,
		"failed", result.Failed,
	)
}

func (w *Worker) recoverStale(ctx context.Context) {
	recovered, err := w.drainSvc.RecoverStale(ctx)
	if err != nil {
		w.logger.Error("stale recovery failed", "error", err)
		return
	}
	if recovered > 0 {
		w.logger.Warn("recovered stale queue claims", "count", recovered)
	}
}
