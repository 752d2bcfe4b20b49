package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FIipFIop/perp-prediction/internal/bootstrap"
	"github.com/FIipFIop/perp-prediction/internal/shared/config"
	"github.com/FIipFIop/perp-prediction/internal/shared/server"
	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.SetLevel(cfg.LogLevel)

	shutdownTracing, err := telemetry.InitTracing(context.Background(), cfg.OTelExporter)
	if err != nil {
		telemetry.Warn("tracing.disabled", map[string]any{"error": err.Error()})
	}

	app, err := bootstrap.Build(cfg)
	if err != nil {
		telemetry.Error("bootstrap.failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer app.Close()

	addr := server.Addr(cfg.Port)
	// Analyses wait on the model, so the write timeout outlives LLM_TIMEOUT_SECONDS.
	writeTimeout := time.Duration(cfg.LLMTimeoutSeconds+30) * time.Second
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		telemetry.Info("server.start", map[string]any{
			"addr":           addr,
			"env":            cfg.Env,
			"api_configured": cfg.APIConfigured(),
			"auth_provider":  cfg.AuthProvider,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			telemetry.Error("server.failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	telemetry.Info("server.shutdown", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Error("server.shutdown_failed", map[string]any{"error": err.Error()})
	}
	if err := shutdownTracing(ctx); err != nil {
		telemetry.Error("tracing.shutdown_failed", map[string]any{"error": err.Error()})
	}
}
