package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ErGaurav155/ainspiretech-api/internal/constants"
	"github.com/ErGaurav155/ainspiretech-api/internal/instagram"
	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/repository"
	"github.com/ErGaurav155/ainspiretech-api/internal/window"
)

// DrainService replays deferred calls when window budget is available.
// Draining is explicit and scheduled: each pass takes a short lease on the
// current window so overlapping workers never double-send an action.
type DrainService struct {
	repos     *repository.Repositories
	gate      *GateService
	pauseSvc  *PauseService
	executor  ActionExecutor
	holderID  string
	batchSize int
	leaseTTL  time.Duration
	logger    *slog.Logger
	nowFunc   func() time.Time
}

// NewDrainService creates a new drain service. holderID identifies this
// process in the lease table; each instance gets a unique one.
func NewDrainService(repos *repository.Repositories, gate *GateService, pauseSvc *PauseService, executor ActionExecutor, batchSize int, leaseTTL time.Duration, logger *slog.Logger) *DrainService {
	if batchSize <= 0 {
		batchSize = constants.DefaultDrainBatchSize
	}
	if leaseTTL <= 0 {
		leaseTTL = constants.DrainLeaseTTL
	}
	return &DrainService{
		repos:     repos,
		gate:      gate,
		pauseSvc:  pauseSvc,
		executor:  executor,
		holderID:  ulid.Make().String(),
		batchSize: batchSize,
		leaseTTL:  leaseTTL,
		logger:    logger.With("component", "drain"),
		nowFunc:   time.Now,
	}
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	LeaseAcquired bool
	Claimed       int
	Completed     int
	Requeued      int
	Failed        int
}

// DrainCurrentWindow claims pending items and replays them against the
// current window's budget. Returns immediately when another holder owns
// the window lease.
func (s *DrainService) DrainCurrentWindow(ctx context.Context) (*DrainResult, error) {
	result := &DrainResult{}

	now := s.nowFunc()
	win := window.CurrentStart(now)
	key := window.Key(win)

	acquired, err := s.repos.Lease.Acquire(ctx, key, s.holderID, s.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire drain lease: %w", err)
	}
	if !acquired {
		return result, nil
	}
	result.LeaseAcquired = true
	defer func() {
		if err := s.repos.Lease.Release(context.WithoutCancel(ctx), key, s.holderID); err != nil {
			s.logger.Error("failed to release drain lease", "error", err)
		}
	}()

	// A paused platform drains nothing; items wait for the next window.
	paused, _, _, err := s.pauseSvc.IsPausedFor(ctx, "")
	if err != nil {
		return nil, err
	}
	if paused {
		return result, nil
	}

	items, err := s.repos.Queue.ClaimBatch(ctx, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to claim queue batch: %w", err)
	}
	result.Claimed = len(items)

	for _, item := range items {
		if ctx.Err() != nil {
			// Shutdown mid-batch: put unprocessed items back.
			if err := s.repos.Queue.ReleaseToPending(context.WithoutCancel(ctx), item.ID, "drain interrupted"); err != nil {
				s.logger.Error("failed to requeue interrupted item", "item_id", item.ID, "error", err)
			}
			result.Requeued++
			continue
		}
		s.drainItem(ctx, item, win, result)
	}

	if result.Claimed > 0 {
		s.logger.Info("drain pass finished",
			"window", key,
			"claimed", result.Claimed,
			"completed", result.Completed,
			"requeued", result.Requeued,
			"failed", result.Failed,
		)
	}
	return result, nil
}

// drainItem admits one claimed item against the window budget, executes it
// and settles its queue status.
func (s *DrainService) drainItem(ctx context.Context, item *models.QueueItem, win time.Time, result *DrainResult) {
	// Items belonging to a paused user wait without burning an attempt.
	paused, _, _, err := s.pauseSvc.IsPausedFor(ctx, item.UserID)
	if err != nil {
		s.requeueOrFail(ctx, item, err.Error(), result)
		return
	}
	if paused {
		if err := s.repos.Queue.ReleaseToPending(ctx, item.ID, "automation paused"); err != nil {
			s.logger.Error("failed to requeue item", "item_id", item.ID, "error", err)
		}
		result.Requeued++
		return
	}

	_, limits, err := s.gate.limitsFor(ctx, item.UserID)
	if err != nil {
		s.requeueOrFail(ctx, item, err.Error(), result)
		return
	}

	gateResult, err := s.repos.Usage.RecordGated(ctx, item.UserID, item.AccountID, item.ActionType, win, 1, limits)
	if err != nil {
		s.requeueOrFail(ctx, item, err.Error(), result)
		return
	}
	if !gateResult.Allowed {
		// No budget in this window; the item waits for the next one. Budget
		// rejections do not count against the item's attempt limit.
		if gateResult.LimitHit == models.DeferReasonAppLimit {
			if perr := s.pauseSvc.PauseApp(ctx, "", win); perr != nil {
				s.logger.Error("failed to raise app limit pause", "error", perr)
			}
		}
		if err := s.repos.Queue.ReleaseToPending(ctx, item.ID, string(gateResult.LimitHit)); err != nil {
			s.logger.Error("failed to requeue item", "item_id", item.ID, "error", err)
		}
		result.Requeued++
		return
	}

	if err := s.executor.Execute(ctx, item); err != nil {
		// Budget was spent on the attempt; Meta counts failed calls too.
		var apiErr *instagram.Error
		if errors.As(err, &apiErr) {
			// Upstream verdicts are final for auth and not-found; throttling
			// and server errors earn another attempt.
			if apiErr.Retryable() && item.Attempts+1 < constants.MaxQueueAttempts {
				if qerr := s.repos.Queue.Requeue(ctx, item.ID, err.Error()); qerr != nil {
					s.logger.Error("failed to requeue item", "item_id", item.ID, "error", qerr)
				}
				result.Requeued++
			} else {
				if ferr := s.repos.Queue.MarkFailed(ctx, item.ID, err.Error()); ferr != nil {
					s.logger.Error("failed to mark item failed", "item_id", item.ID, "error", ferr)
				}
				result.Failed++
			}
			return
		}
		// Anything else is our infrastructure failing, not the call itself;
		// retry up to the attempt cap.
		s.requeueOrFail(ctx, item, err.Error(), result)
		return
	}

	if err := s.repos.Queue.MarkCompleted(ctx, item.ID); err != nil {
		s.logger.Error("failed to mark item completed", "item_id", item.ID, "error", err)
	}
	result.Completed++
}

// requeueOrFail handles infrastructure errors during a drain attempt.
func (s *DrainService) requeueOrFail(ctx context.Context, item *models.QueueItem, errMsg string, result *DrainResult) {
	if item.Attempts+1 >= constants.MaxQueueAttempts {
		if err := s.repos.Queue.MarkFailed(ctx, item.ID, errMsg); err != nil {
			s.logger.Error("failed to mark item failed", "item_id", item.ID, "error", err)
		}
		result.Failed++
		return
	}
	if err := s.repos.Queue.Requeue(ctx, item.ID, errMsg); err != nil {
		s.logger.Error("failed to requeue item", "item_id", item.ID, "error", err)
	}
	result.Requeued++
}

// RecoverStale returns items stuck in processing (e.g. after a crash) to
// the pending state so the next drain pass can pick them up.
func (s *DrainService) RecoverStale(ctx context.Context) (int64, error) {
	count, err := s.repos.Queue.ResetStaleProcessing(ctx, constants.StaleProcessingAge)
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale items: %w", err)
	}
	if count > 0 {
		s.logger.Warn("recovered stale processing items", "count", count)
	}
	return count, nil
}
