// Package api exposes the pipeline over HTTP: stage triggers, stage
// status, per-date tracking state and a health probe.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Gerardo1909/hn-analytical-platform/internal/pipeline"
	"github.com/Gerardo1909/hn-analytical-platform/internal/quality"
	"github.com/Gerardo1909/hn-analytical-platform/internal/tracking"
)

// StageRunner abstracts the pipeline for the API layer.
type StageRunner interface {
	RunStage(ctx context.Context, stage, date string) error
}

// Deps wires the handlers to the pipeline and the tracking store.
type Deps struct {
	Runner StageRunner
	Track  *tracking.Store
}

// NewHandler builds the HTTP routing tree.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/stages/{stage}/run", handleRunStage(deps))
		r.Get("/stages/{stage}/status", handleStageStatus(deps))
		r.Get("/tracking/{date}", handleTracking(deps))
	})
	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRunStage triggers one stage synchronously for the requested
// date (today UTC when the date parameter is absent).
func handleRunStage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stage := chi.URLParam(r, "stage")
		if !validStage(stage) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown stage %q", stage)
			return
		}
		date, err := dateParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		if err := deps.Runner.RunStage(r.Context(), stage, date); err != nil {
			var gateErr *quality.GateError
			switch {
			case errors.Is(err, tracking.ErrStageRunning):
				httpError(w, http.StatusConflict, "stage_running", "%v", err)
			case errors.Is(err, pipeline.ErrUpstreamNotReady):
				httpError(w, http.StatusConflict, "upstream_not_ready", "%v", err)
			case errors.As(err, &gateErr):
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
					"error": map[string]any{
						"type":    "quality_gate_blocked",
						"message": gateErr.Error(),
						"report":  gateErr.Report,
					},
				})
			default:
				httpError(w, http.StatusInternalServerError, "api_error", "stage failed: %v", err)
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"stage":  stage,
			"date":   date,
			"status": "succeeded",
		})
	}
}

func handleStageStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stage := chi.URLParam(r, "stage")
		if !validStage(stage) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown stage %q", stage)
			return
		}
		date, err := dateParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		run, err := deps.Track.LatestStage(stage, date)
		if errors.Is(err, tracking.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "stage %s never ran for %s", stage, date)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading stage status: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

// trackingResponse is the per-date fetch state summary.
type trackingResponse struct {
	Date    string                 `json:"date"`
	Counts  map[string]int         `json:"counts"`
	Stories []tracking.StoryRecord `json:"stories"`
}

func handleTracking(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := chi.URLParam(r, "date")
		if _, err := time.Parse("2006-01-02", date); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid date %q", date)
			return
		}

		resp := trackingResponse{
			Date:    date,
			Counts:  make(map[string]int),
			Stories: []tracking.StoryRecord{},
		}
		for _, status := range []tracking.FetchStatus{
			tracking.StatusPending, tracking.StatusPartial,
			tracking.StatusComplete, tracking.StatusFailed,
		} {
			records, err := deps.Track.ListByStatus(date, status)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "listing stories: %v", err)
				return
			}
			resp.Counts[string(status)] = len(records)
			resp.Stories = append(resp.Stories, records...)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func validStage(stage string) bool {
	for _, s := range pipeline.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// dateParam reads the date query parameter, defaulting to today UTC.
func dateParam(r *http.Request) (string, error) {
	date := r.URL.Query().Get("date")
	if date == "" {
		return time.Now().UTC().Format("2006-01-02"), nil
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
	}
	return date, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, errType, format string, args ...any) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"type":    errType,
			"message": fmt.Sprintf(format, args...),
		},
	})
}
