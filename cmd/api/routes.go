package main

import (
	"log"
	"net/http"

	"ledgersync/internal/shared/config"
	"ledgersync/internal/shared/middleware"
	"ledgersync/internal/shared/telemetry"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", deps.HealthHandler.HandleHealth)
	mux.Handle("GET /metrics", telemetry.MetricsHandler())

	// Public auth routes
	mux.HandleFunc("/api/auth/login", deps.AuthHandler.HandleLogin)
	mux.HandleFunc("/api/auth/logout", deps.AuthHandler.HandleLogout)

	// Protected routes
	protect := func(h http.HandlerFunc) http.Handler {
		return middleware.Auth(deps.Signer)(h)
	}

	mux.Handle("/api/users/me", protect(deps.UserHandler.HandleMe))
	mux.Handle("GET /api/accounts", protect(deps.AccountHandler.HandleListAccounts))

	mux.Handle("GET /api/connections", protect(deps.ConnectionHandler.HandleListConnections))
	mux.Handle("POST /api/connections/exchange", protect(deps.ConnectionHandler.HandleBeginExchange))
	mux.Handle("POST /api/connections/exchange/{id}/complete", protect(deps.ConnectionHandler.HandleCompleteExchange))
	mux.Handle("DELETE /api/connections/{id}", protect(deps.ConnectionHandler.HandleDeleteConnection))
	mux.Handle("POST /api/connections/{id}/sync", protect(deps.ConnectionHandler.HandleSyncConnection))

	mux.Handle("GET /api/snapshots", protect(deps.SnapshotHandler.HandleList))
	mux.Handle("GET /api/snapshots/current", protect(deps.SnapshotHandler.HandleCurrent))
	mux.Handle("POST /api/snapshots/recompute", protect(deps.SnapshotHandler.HandleRecompute))

	mux.Handle("GET /api/notifications", protect(deps.NotificationHandler.HandleNotifications))
	mux.Handle("POST /api/notifications/devices", protect(deps.NotificationHandler.HandleRegisterDevice))

	// Apply global middleware. Tracing sits directly on the mux so it sees the
	// matched pattern; Logging runs first so the request id is in context.
	var handler http.Handler = middleware.Tracing(mux)
	handler = middleware.CORS(cfg.Server.AllowedHosts)(handler)
	handler = middleware.Logging(handler)
	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(handler)
	}

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(middleware.SecureCookies(handler))
		log.Println("TLS security middleware enabled (HSTS + SecureCookies)")
	}

	return handler
}
