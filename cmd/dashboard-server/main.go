package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm-dashboard/internal/apiclient"
	"crm-dashboard/internal/config"
	"crm-dashboard/internal/handler"
	"crm-dashboard/internal/middleware"
	"crm-dashboard/internal/observability"
	"crm-dashboard/internal/security"
	"crm-dashboard/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting dashboard server",
		slog.String("environment", cfg.Environment),
		slog.String("api_base_url", cfg.APIBaseURL))

	// One breaker for every request so an outage is noticed across sessions
	breaker := apiclient.NewBreaker("crm-api", nil, apiclient.BreakerSettings{})
	verifier := middleware.NewTokenVerifier(cfg.JWTAccessSecret)
	sessions := handler.NewSessions(cfg.APIClient("crm-dashboard"), cfg.CookieOptions(), breaker, verifier)

	hub := websocket.NewHub()

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() {
		if err := hub.Run(hubCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	openapi, err := middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig(cfg.OpenAPIValidation, cfg.OpenAPISpecPath))
	if err != nil {
		slog.Error("failed to load API contract", slog.String("error", err.Error()))
		os.Exit(1)
	}

	loginLimiter := middleware.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateBurst)
	defer loginLimiter.Stop()

	router := handler.NewRouter(handler.RouterConfig{
		Sessions:       sessions,
		Hub:            hub,
		Upstream:       breaker,
		Gatekeeper:     middleware.DefaultGatekeeperConfig(verifier, cfg.CookieOptions()),
		CSRF:           security.NewTokenManager(cfg.IsProduction()),
		AllowedOrigins: middleware.ParseOrigins(cfg.AllowedOrigins),
		LoginLimiter:   loginLimiter,
		OpenAPI:        openapi,
		PagesDir:       "./static",
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("dashboard server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	hubCancel()

	slog.Info("server stopped gracefully")
}
