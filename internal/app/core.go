// Package app builds the service graph shared by the API server and the admin CLI.
package app

import (
	"context"
	"fmt"
	"log"

	"ledgersync/internal/domain/account"
	"ledgersync/internal/domain/connection"
	"ledgersync/internal/domain/notification"
	"ledgersync/internal/domain/openfinance"
	"ledgersync/internal/domain/snapshot"
	"ledgersync/internal/domain/user"
	"ledgersync/internal/infrastructure/crypto"
	"ledgersync/internal/infrastructure/firebase"
	ofclient "ledgersync/internal/infrastructure/openfinance"
	"ledgersync/internal/infrastructure/postgres"
	"ledgersync/internal/shared/config"
	"ledgersync/internal/shared/messages"
)

// Core holds the storage handle and domain services.
type Core struct {
	DB *postgres.DB

	Connections   *postgres.ConnectionRepository
	Notifications *postgres.NotificationRepository

	Users               *user.Service
	Accounts            *account.Service
	Snapshots           *snapshot.Service
	ConnectionService   *connection.Service
	NotificationService *notification.Service
	Sync                *openfinance.SyncService
}

// NewCore connects to the database, optionally migrates it, and wires every service.
// migrate forces the schema bootstrap regardless of configuration.
func NewCore(ctx context.Context, cfg *config.Config, migrate bool) (*Core, error) {
	db, err := postgres.New(cfg.Database.ConnectionString(), postgres.DefaultPool)
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	if migrate || cfg.Database.MigrateOnStartup {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	vault, err := crypto.NewVault(cfg.Vault.MasterKey, crypto.WithIterations(cfg.Vault.Iterations))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize vault: %w", err)
	}

	provider := ofclient.NewClient(ofclient.Config{
		BaseURL:   cfg.Provider.BaseURL,
		ClientID:  cfg.Provider.ClientID,
		Secret:    cfg.Provider.Secret,
		Timeout:   cfg.Provider.Timeout,
		RateLimit: cfg.Provider.RateLimit,
		Burst:     cfg.Provider.Burst,
	})

	userRepo := postgres.NewUserRepository(db)
	connRepo := postgres.NewConnectionRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	snapshotRepo := postgres.NewSnapshotRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
	ledgerStore := postgres.NewLedgerStore(db)

	accountService := account.NewService(accountRepo)
	snapshotService := snapshot.NewService(snapshotRepo, accountRepo)

	var messenger notification.Messenger
	if cfg.Firebase.CredentialsFile != "" {
		fcm, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, notificationRepo.DeactivateToken)
		if err != nil {
			log.Printf("Warning: push notifications disabled: %v", err)
		} else {
			messenger = fcm
		}
	}
	notificationService := notification.NewService(notificationRepo, messenger)

	msgs, err := messages.Load(cfg.Firebase.MessagesFile)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load notification messages: %w", err)
	}

	syncService := openfinance.NewSyncService(openfinance.SyncDeps{
		Connections: connRepo,
		Vault:       vault,
		Provider:    provider,
		Source:      openfinance.NewSource(provider, cfg.Provider.MaxPages),
		Reconciler:  openfinance.NewReconciler(ledgerStore),
		Snapshots:   snapshotService,
		Notifier:    notification.NewSyncNotifier(notificationService, msgs),
	}, openfinance.RetryPolicy{
		MaxAttempts:     uint(cfg.Sync.MaxAttempts),
		InitialInterval: cfg.Sync.InitialInterval,
		MaxInterval:     cfg.Sync.MaxInterval,
	}, cfg.Sync.OwnerParallel)

	return &Core{
		DB:                  db,
		Connections:         connRepo,
		Notifications:       notificationRepo,
		Users:               user.NewService(userRepo),
		Accounts:            accountService,
		Snapshots:           snapshotService,
		ConnectionService:   connection.NewService(connRepo, connRepo, provider, vault, cfg.Exchange.TTL),
		NotificationService: notificationService,
		Sync:                syncService,
	}, nil
}

// Close releases the database pool.
func (c *Core) Close() {
	if c.DB != nil {
		c.DB.Close()
	}
}
