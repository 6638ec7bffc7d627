package main

import (
	"context"

	"ledgersync/internal/app"
	httphandlers "ledgersync/internal/interfaces/http"
	"ledgersync/internal/interfaces/scheduler"
	"ledgersync/internal/shared/auth"
	"ledgersync/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	*app.Core

	Signer *auth.SessionSigner
	Pool   *scheduler.WorkerPool

	// Handlers
	HealthHandler       *httphandlers.HealthHandler
	AuthHandler         *httphandlers.AuthHandler
	UserHandler         *httphandlers.UserHandler
	AccountHandler      *httphandlers.AccountHandler
	ConnectionHandler   *httphandlers.ConnectionHandler
	SnapshotHandler     *httphandlers.SnapshotHandler
	NotificationHandler *httphandlers.NotificationHandler
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	core, err := app.NewCore(ctx, cfg, false)
	if err != nil {
		return nil, err
	}

	signer := auth.NewSessionSigner(cfg.Session.Secret, cfg.Session.TTL)
	pool := scheduler.NewWorkerPool(cfg.Scheduler.WorkerCount, cfg.Scheduler.JobDelay, cfg.Scheduler.QueueSize)

	return &Dependencies{
		Core:                core,
		Signer:              signer,
		Pool:                pool,
		HealthHandler:       httphandlers.NewHealthHandler(core.DB),
		AuthHandler:         httphandlers.NewAuthHandler(core.Users, signer, cfg.Session.TTL),
		UserHandler:         httphandlers.NewUserHandler(core.Users),
		AccountHandler:      httphandlers.NewAccountHandler(core.Accounts),
		ConnectionHandler:   httphandlers.NewConnectionHandler(core.ConnectionService, core.Sync, pool),
		SnapshotHandler:     httphandlers.NewSnapshotHandler(core.Snapshots),
		NotificationHandler: httphandlers.NewNotificationHandler(core.NotificationService),
	}, nil
}
