// Package service contains the business logic layer.
// Note: User management, OAuth, sessions and billing are handled by Clerk.
// The UserID in services references Clerk user IDs (e.g., "user_xxx").
package service

import (
	"fmt"
	"log/slog"

	"github.com/ErGaurav155/ainspiretech-api/internal/auth"
	"github.com/ErGaurav155/ainspiretech-api/internal/config"
	"github.com/ErGaurav155/ainspiretech-api/internal/constants"
	"github.com/ErGaurav155/ainspiretech-api/internal/crypto"
	"github.com/ErGaurav155/ainspiretech-api/internal/instagram"
	"github.com/ErGaurav155/ainspiretech-api/internal/repository"
)

// Services holds all service instances.
type Services struct {
	Gate         *GateService
	Pause        *PauseService
	Stats        *StatsService
	Drain        *DrainService
	Account      *AccountService
	Subscription *SubscriptionService
	Cleanup      *CleanupService
	Storage      *StorageService
	TierSync     *TierSyncService
	Instagram    *instagram.Client
}

// NewServices creates all service instances.
func NewServices(cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) (*Services, error) {
	// Token encryption is mandatory: accounts cannot be connected without it.
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	igClient := instagram.NewClient(cfg.InstagramGraphURL, constants.GraphRequestTimeout, logger)

	pauseSvc := NewPauseService(repos, logger)
	gateSvc := NewGateService(repos, pauseSvc, cfg.AppHourlyCallLimit, logger)
	statsSvc := NewStatsService(repos, pauseSvc, cfg.AppHourlyCallLimit, logger)
	accountSvc := NewAccountService(repos, encryptor, logger)
	subscriptionSvc := NewSubscriptionService(repos, logger)

	// Clerk Backend API access is optional; without it, subscriptions come
	// only from webhooks and tier metadata stays as compiled.
	var tierSyncSvc *TierSyncService
	if cfg.ClerkSecretKey != "" {
		backend := auth.NewClerkBackendClient(cfg.ClerkSecretKey)
		subscriptionSvc.SetClerkFallback(auth.NewSubscriptionCache(backend, 0, logger))
		tierSyncSvc = NewTierSyncService(backend, logger)
	}
	cleanupSvc := NewCleanupService(repos, logger)

	storageSvc, err := NewStorageService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	executor := NewInstagramExecutor(igClient, repos.Account, encryptor, logger)
	drainSvc := NewDrainService(repos, gateSvc, pauseSvc, executor,
		cfg.DrainBatchSize, constants.DrainLeaseTTL, logger)

	return &Services{
		Gate:         gateSvc,
		Pause:        pauseSvc,
		Stats:        statsSvc,
		Drain:        drainSvc,
		Account:      accountSvc,
		Subscription: subscriptionSvc,
		Cleanup:      cleanupSvc,
		Storage:      storageSvc,
		TierSync:     tierSyncSvc,
		Instagram:    igClient,
	}, nil
}
