package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErGaurav155/ainspiretech-api/internal/repository"
)

// CleanupService prunes settled queue items, old usage counters and
// expired drain leases.
type CleanupService struct {
	repos  *repository.Repositories
	logger *slog.Logger
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(repos *repository.Repositories, logger *slog.Logger) *CleanupService {
	return &CleanupService{
		repos:  repos,
		logger: logger.With("component", "cleanup"),
	}
}

// CleanupResult contains the results of a cleanup pass.
type CleanupResult struct {
	QueueItemsDeleted   int64
	UsageRecordsDeleted int64
	LeasesDeleted       int64
	Errors              []error
}

// Run removes settled queue items older than maxAgeQueue, usage counters
// for windows older than maxAgeUsage, and leases past their expiry.
// Pending and processing queue items are never touched regardless of age.
func (s *CleanupService) Run(ctx context.Context, maxAgeQueue, maxAgeUsage time.Duration) (*CleanupResult, error) {
	result := &CleanupResult{}
	now := time.Now()

	queueCutoff := now.Add(-maxAgeQueue)
	deleted, err := s.repos.Queue.DeleteOlderThan(ctx, queueCutoff)
	if err != nil {
		s.logger.Error("failed to delete old queue items", "error", err)
		result.Errors = append(result.Errors, err)
	} else {
		result.QueueItemsDeleted = deleted
	}

	usageCutoff := now.Add(-maxAgeUsage)
	deleted, err = s.repos.Usage.DeleteOlderThan(ctx, usageCutoff)
	if err != nil {
		s.logger.Error("failed to delete old usage records", "error", err)
		result.Errors = append(result.Errors, err)
	} else {
		result.UsageRecordsDeleted = deleted
	}

	deleted, err = s.repos.Lease.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error("failed to delete expired leases", "error", err)
		result.Errors = append(result.Errors, err)
	} else {
		result.LeasesDeleted = deleted
	}

	s.logger.Info("cleanup completed",
		"queue_items_deleted", result.QueueItemsDeleted,
		"usage_records_deleted", result.UsageRecordsDeleted,
		"leases_deleted", result.LeasesDeleted,
		"errors", len(result.Errors),
	)
	return result, nil
}

// RunScheduled runs cleanup immediately and then at the given interval
// until the context is cancelled.
func (s *CleanupService) RunScheduled(ctx context.Context, maxAgeQueue, maxAgeUsage, interval time.Duration) {
	s.logger.Info("starting scheduled cleanup",
		"max_age_queue", maxAgeQueue.String(),
		"max_age_usage", maxAgeUsage.String(),
		"interval", interval.String(),
	)

	if _, err := s.Run(ctx, maxAgeQueue, maxAgeUsage); err != nil {
		s.logger.Error("initial cleanup failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduled cleanup stopped")
			return
		case <-ticker.C:
			if _, err := s.Run(ctx, maxAgeQueue, maxAgeUsage); err != nil {
				s.logger.Error("scheduled cleanup failed", "error", err)
			}
		}
	}
}
