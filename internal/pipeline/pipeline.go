// Package pipeline orchestrates the daily batch: ingest pulls stories
// and comment trees into the raw layer, process promotes them to the
// processed layer behind quality gates, transform derives the enriched
// output layer, and report materializes analytical summaries. Every
// stage run is recorded in the tracking store, and each stage requires
// its upstream stage to have succeeded for the date.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Gerardo1909/hn-analytical-platform/internal/fetch"
	"github.com/Gerardo1909/hn-analytical-platform/internal/hn"
	"github.com/Gerardo1909/hn-analytical-platform/internal/lake"
	"github.com/Gerardo1909/hn-analytical-platform/internal/tracking"
)

// Stage names as recorded in the tracking store.
const (
	StageIngest    = "ingest"
	StageProcess   = "process"
	StageTransform = "transform"
	StageReport    = "report"
)

// Stages lists the pipeline stages in execution order.
var Stages = []string{StageIngest, StageProcess, StageTransform, StageReport}

// ErrUpstreamNotReady is returned when a stage is started before its
// upstream stage succeeded for the date.
var ErrUpstreamNotReady = errors.New("pipeline: upstream stage has not succeeded")

// ErrUnknownStage is returned for stage names outside Stages.
var ErrUnknownStage = errors.New("pipeline: unknown stage")

// HNClient is the slice of the API client the pipeline needs.
type HNClient interface {
	TopStories(ctx context.Context) ([]int, error)
	Item(ctx context.Context, id int) (*hn.Item, error)
}

// Reporter materializes analytical reports from the output layer. It
// returns per-report row counts for the stage stats.
type Reporter interface {
	Generate(ctx context.Context, date string) (map[string]int, error)
}

// Config tunes the pipeline. Zero values fall back to defaults.
type Config struct {
	TopStories   int // front-page stories considered per day (default 30)
	TrackingDays int // interest, recency and velocity window in days (default 7)
	Fetch        fetch.Config
}

func (c Config) withDefaults() Config {
	if c.TopStories <= 0 {
		c.TopStories = 30
	}
	if c.TrackingDays <= 0 {
		c.TrackingDays = 7
	}
	return c
}

// Pipeline wires the client, lake, tracking store and reporter into the
// four batch stages.
type Pipeline struct {
	client  HNClient
	lake    *lake.Store
	track   *tracking.Store
	reports Reporter
	cfg     Config
}

// New creates a Pipeline. reports may be nil when the report stage is
// not used (tests, partial deployments).
func New(client HNClient, lakeStore *lake.Store, track *tracking.Store, reports Reporter, cfg Config) *Pipeline {
	return &Pipeline{
		client:  client,
		lake:    lakeStore,
		track:   track,
		reports: reports,
		cfg:     cfg.withDefaults(),
	}
}

// RunStage executes one named stage for the date.
func (p *Pipeline) RunStage(ctx context.Context, stage, date string) error {
	switch stage {
	case StageIngest:
		return p.Ingest(ctx, date)
	case StageProcess:
		return p.Process(ctx, date)
	case StageTransform:
		return p.Transform(ctx, date)
	case StageReport:
		return p.Report(ctx, date)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
}

// RunAll executes the full stage chain for the date, stopping at the
// first failed stage.
func (p *Pipeline) RunAll(ctx context.Context, date string) error {
	for _, stage := range Stages {
		if err := p.RunStage(ctx, stage, date); err != nil {
			return fmt.Errorf("stage %s: %w", stage, err)
		}
	}
	return nil
}

// Report runs the report stage: analytical summaries over the output
// layer for the date.
func (p *Pipeline) Report(ctx context.Context, date string) error {
	return p.runStage(ctx, StageReport, date, func(ctx context.Context) (any, error) {
		if err := p.requireSucceeded(StageTransform, date); err != nil {
			return nil, err
		}
		if p.reports == nil {
			return nil, errors.New("no reporter configured")
		}
		counts, err := p.reports.Generate(ctx, date)
		if err != nil {
			return nil, err
		}
		return map[string]any{"reports": counts}, nil
	})
}

// runStage wraps a stage body with tracking bookkeeping: a run row is
// opened before the body and closed with its terminal status, stats and
// error text after.
func (p *Pipeline) runStage(ctx context.Context, stage, date string, body func(context.Context) (any, error)) error {
	runID, err := p.track.BeginStage(stage, date)
	if err != nil {
		return fmt.Errorf("starting %s for %s: %w", stage, date, err)
	}
	started := time.Now()
	slog.Info("stage started", "stage", stage, "date", date, "run_id", runID)

	stats, stageErr := body(ctx)

	statsJSON := "{}"
	if stats != nil {
		if raw, err := json.Marshal(stats); err == nil {
			statsJSON = string(raw)
		}
	}

	status := tracking.StageSucceeded
	errText := ""
	if stageErr != nil {
		status = tracking.StageFailed
		errText = stageErr.Error()
	}
	if err := p.track.FinishStage(runID, status, statsJSON, errText); err != nil {
		slog.Error("failed to record stage completion",
			"stage", stage, "date", date, "run_id", runID, "error", err)
		if stageErr == nil {
			return err
		}
	}

	if stageErr != nil {
		slog.Error("stage failed", "stage", stage, "date", date,
			"run_id", runID, "elapsed", time.Since(started), "error", stageErr)
		return stageErr
	}
	slog.Info("stage succeeded", "stage", stage, "date", date,
		"run_id", runID, "elapsed", time.Since(started), "stats", statsJSON)
	return nil
}

// requireSucceeded enforces the stage ordering contract.
func (p *Pipeline) requireSucceeded(stage, date string) error {
	latest, err := p.track.LatestStage(stage, date)
	if errors.Is(err, tracking.ErrNotFound) {
		return fmt.Errorf("%w: %s never ran for %s", ErrUpstreamNotReady, stage, date)
	}
	if err != nil {
		return err
	}
	if latest.Status != tracking.StageSucceeded {
		return fmt.Errorf("%w: %s is %s for %s", ErrUpstreamNotReady, stage, latest.Status, date)
	}
	return nil
}

// prevDate returns date shifted back by days, in ISO form.
func prevDate(date string, days int) (string, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", fmt.Errorf("parsing date %q: %w", date, err)
	}
	return t.AddDate(0, 0, -days).Format("2006-01-02"), nil
}
