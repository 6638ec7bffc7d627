package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ledgersync/internal/infrastructure/postgres/listener"
	"ledgersync/internal/interfaces/scheduler"
	"ledgersync/internal/shared/config"
	"ledgersync/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bg Background

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		})
		if err != nil {
			return err
		}
		bg.Telemetry = shutdown
	}

	deps, err := NewDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	deps.Pool.Start()
	bg.Pool = deps.Pool

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.NewScheduler(deps.Pool, scheduler.Config{
			ScheduleTimes: cfg.Scheduler.ScheduleTimes,
			RunOnStartup:  cfg.Scheduler.RunOnStartup,
			JobProvider:   scheduler.OwnerSyncJobs(deps.Connections, deps.Sync),
		})
		if err != nil {
			return err
		}
		sched.Start()
		bg.Scheduler = sched
	} else {
		log.Println("Scheduler is disabled")
	}

	if cfg.Listener.Enabled {
		l := listener.NewLedgerListener(cfg.Database.ConnectionString(), deps.Snapshots)
		l.Start(ctx)
		bg.Listener = l
	}

	handler := SetupRoutes(deps, cfg)
	srv, redirectSrv, serveErr := StartServers(NewServerConfigFromConfig(handler, cfg))

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		log.Printf("Server error: %v", err)
	}

	GracefulShutdown(srv, redirectSrv, bg, shutdownTimeout)
	return err
}
