package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/Gerardo1909/hn-analytical-platform/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run the pipeline on the daily schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signalContext()
	defer stop()

	handler := api.NewHandler(api.Deps{Runner: app.pipeline, Track: app.track})
	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Schedule, func() {
		date := time.Now().UTC().Format("2006-01-02")
		slog.Info("scheduled pipeline run starting", "date", date)
		if err := app.pipeline.RunAll(ctx, date); err != nil {
			slog.Error("scheduled pipeline run failed", "date", date, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("scheduler started", "schedule", cfg.Schedule)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("hnpipe listening", "addr", cfg.HTTP.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
