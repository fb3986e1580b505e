package tracking

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// runningLease bounds how long a running row blocks new runs. A process
// killed without finishing leaves its row running forever; once the lease
// expires the row is treated as abandoned and taken over.
const runningLease = time.Hour

// BeginStage opens a stage run for (stage, date) and returns its run id.
// It refuses to start while a previous run for the same key is still
// marked running and within its lease: the tracking store is
// single-writer per date. A running row older than the lease is marked
// failed and the new run proceeds.
func (s *Store) BeginStage(stage, date string) (string, error) {
	latest, err := s.LatestStage(stage, date)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if latest != nil && latest.Status == StageRunning {
		if time.Since(latest.StartedAt) < runningLease {
			return "", fmt.Errorf("%w: %s for %s (run %s)", ErrStageRunning, stage, date, latest.RunID)
		}
		if err := s.FinishStage(latest.RunID, StageFailed, "", "abandoned: lease expired without a finish"); err != nil {
			return "", fmt.Errorf("retiring abandoned run %s: %w", latest.RunID, err)
		}
		slog.Warn("took over abandoned stage run",
			"stage", stage, "date", date, "run_id", latest.RunID)
	}

	runID := uuid.NewString()
	_, err = s.db.Exec(`
		INSERT INTO stage_runs (run_id, stage, ingestion_date, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		runID, stage, date, string(StageRunning), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("beginning stage %s: %w", stage, err)
	}
	return runID, nil
}

// FinishStage closes a run with its terminal status, stats JSON and
// optional error text.
func (s *Store) FinishStage(runID string, status StageStatus, stats, errText string) error {
	if stats == "" {
		stats = "{}"
	}
	res, err := s.db.Exec(`
		UPDATE stage_runs SET status = ?, finished_at = ?, stats = ?, error = ?
		WHERE run_id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339), stats, errText, runID)
	if err != nil {
		return fmt.Errorf("finishing stage run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: stage run %s", ErrNotFound, runID)
	}
	return nil
}

// LatestStage returns the most recent run for (stage, date), or
// ErrNotFound when the stage never ran for that date.
func (s *Store) LatestStage(stage, date string) (*StageRun, error) {
	row := s.db.QueryRow(`
		SELECT run_id, stage, ingestion_date, status, started_at, finished_at, stats, error
		FROM stage_runs
		WHERE stage = ? AND ingestion_date = ?
		ORDER BY started_at DESC, run_id DESC LIMIT 1`, stage, date)

	var run StageRun
	var status, startedAt string
	var finishedAt sql.NullString
	err := row.Scan(&run.RunID, &run.Stage, &run.IngestionDate, &status,
		&startedAt, &finishedAt, &run.Stats, &run.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning stage run: %w", err)
	}
	run.Status = StageStatus(status)
	if run.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if finishedAt.Valid && finishedAt.String != "" {
		if run.FinishedAt, err = time.Parse(time.RFC3339, finishedAt.String); err != nil {
			return nil, fmt.Errorf("parsing finished_at: %w", err)
		}
	}
	return &run, nil
}
