package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Gerardo1909/hn-analytical-platform/internal/config"
	"github.com/Gerardo1909/hn-analytical-platform/internal/fetch"
	"github.com/Gerardo1909/hn-analytical-platform/internal/hn"
	"github.com/Gerardo1909/hn-analytical-platform/internal/lake"
	"github.com/Gerardo1909/hn-analytical-platform/internal/pipeline"
	"github.com/Gerardo1909/hn-analytical-platform/internal/report"
	"github.com/Gerardo1909/hn-analytical-platform/internal/tracking"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch stories and comment trees into the raw layer",
	RunE:  stageRunE(pipeline.StageIngest),
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Promote raw partitions to the processed layer",
	RunE:  stageRunE(pipeline.StageProcess),
}

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Derive the enriched output layer",
	RunE:  stageRunE(pipeline.StageTransform),
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Materialize the analytical reports",
	RunE:  stageRunE(pipeline.StageReport),
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline for one date",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *app) error {
			return app.pipeline.RunAll(ctx, resolveDate())
		})
	},
}

func stageRunE(stage string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *app) error {
			return app.pipeline.RunStage(ctx, stage, resolveDate())
		})
	}
}

func resolveDate() string {
	if flagDate != "" {
		return flagDate
	}
	return time.Now().UTC().Format("2006-01-02")
}

// app bundles the wired components behind the commands.
type app struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	track    *tracking.Store
}

// buildApp wires the client, lake, tracking store, reporter and
// pipeline from the configuration.
func buildApp(cfg *config.Config) (*app, error) {
	client := hn.NewClient(hn.Config{
		BaseURL:     cfg.HN.BaseURL,
		MaxRetries:  cfg.HN.MaxRetries,
		Timeout:     cfg.HN.Timeout,
		MinInterval: cfg.HN.MinInterval,
	})

	lakeStore, err := lake.NewStore(cfg.LakeDir())
	if err != nil {
		return nil, err
	}
	track, err := tracking.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	reporter := report.NewGenerator(lakeStore, cfg.ReportsDir())
	p := pipeline.New(client, lakeStore, track, reporter, pipeline.Config{
		TopStories:   cfg.Pipeline.TopStories,
		TrackingDays: cfg.Pipeline.TrackingDays,
		Fetch: fetch.Config{
			Workers:          cfg.Fetch.Workers,
			CheckpointEvery:  cfg.Fetch.CheckpointEvery,
			MaxStoryAttempts: cfg.Fetch.MaxStoryAttempts,
		},
	})
	return &app{cfg: cfg, pipeline: p, track: track}, nil
}

func (a *app) close() {
	if err := a.track.Close(); err != nil {
		fmt.Printf("closing tracking store: %v\n", err)
	}
}

// withApp loads config, wires the app, runs fn with a signal-aware
// context and tears down.
func withApp(fn func(context.Context, *app) error) error {
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
	return fn(ctx, app)
}
