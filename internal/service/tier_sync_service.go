package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ErGaurav155/ainspiretech-api/internal/auth"
	"github.com/ErGaurav155/ainspiretech-api/internal/constants"
)

// TierSyncService pulls plan metadata from Clerk Commerce and applies it to
// the tier table, so display names and visibility follow the dashboard
// without a deploy. Call limits stay in code (or S3 overrides).
type TierSyncService struct {
	client *auth.ClerkBackendClient
	logger *slog.Logger
}

// NewTierSyncService creates a new tier sync service.
func NewTierSyncService(client *auth.ClerkBackendClient, logger *slog.Logger) *TierSyncService {
	return &TierSyncService{
		client: client,
		logger: logger.With("component", "tier-sync"),
	}
}

// SyncFromClerk fetches billing plans from Clerk and updates tier display
// names and visibility. Plans whose slug doesn't match a known tier are
// ignored.
func (s *TierSyncService) SyncFromClerk(ctx context.Context) error {
	products, err := s.client.ListSubscriptionProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list Clerk plans: %w", err)
	}

	metadata := make([]constants.TierMetadata, 0, len(products))
	for _, p := range products {
		metadata = append(metadata, constants.TierMetadata{
			Slug:        p.Slug,
			DisplayName: p.Name,
			Visible:     p.PubliclyVisible,
		})
	}
	constants.UpdateTierMetadata(metadata)

	s.logger.Info("tier metadata synced from Clerk", "plans", len(products))
	return nil
}
