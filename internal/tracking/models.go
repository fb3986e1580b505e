package tracking

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("tracking: not found")

// ErrUnavailable wraps store open/IO failures. The pipeline treats it as
// fatal: without tracking it cannot tell what has already been fetched.
var ErrUnavailable = errors.New("tracking: store unavailable")

// ErrStageRunning is returned by BeginStage when a run for the same
// (stage, date) is still marked running. Concurrent runs per date are not
// supported; the external scheduler must serialize them.
var ErrStageRunning = errors.New("tracking: stage already running")

// FetchStatus is the lifecycle state of one story's comment-tree fetch.
type FetchStatus string

const (
	StatusPending  FetchStatus = "pending"
	StatusPartial  FetchStatus = "partial"
	StatusComplete FetchStatus = "complete"
	StatusFailed   FetchStatus = "failed"
)

// StoryRecord tracks fetch progress for one story on one ingestion date.
// FetchedIDs is the high-water mark: comment ids already persisted to the
// raw layer, letting a restarted fetch skip completed work.
type StoryRecord struct {
	StoryID         int64       `json:"story_id"`
	IngestionDate   string      `json:"ingestion_date"`
	Status          FetchStatus `json:"status"`
	CommentsFetched int         `json:"comments_fetched"`
	FetchedIDs      []int64     `json:"fetched_ids,omitempty"`
	Attempts        int         `json:"attempts"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// FetchedSet returns the fetched comment ids as a set.
func (r *StoryRecord) FetchedSet() map[int64]struct{} {
	set := make(map[int64]struct{}, len(r.FetchedIDs))
	for _, id := range r.FetchedIDs {
		set[id] = struct{}{}
	}
	return set
}

// StageStatus is the state-machine state of one pipeline stage run.
type StageStatus string

const (
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
)

// StageRun records one invocation of a pipeline stage for a date. Rows
// are append-only; the latest row per (stage, date) is authoritative.
type StageRun struct {
	RunID         string      `json:"run_id"`
	Stage         string      `json:"stage"`
	IngestionDate string      `json:"ingestion_date"`
	Status        StageStatus `json:"status"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    time.Time   `json:"finished_at,omitempty"`
	Stats         string      `json:"stats,omitempty"` // JSON
	Error         string      `json:"error,omitempty"`
}

// Interest is the cross-date tracking entry deciding whether a story is
// still worth re-ingesting.
type Interest struct {
	FirstSeen       string // YYYY-MM-DD
	LastUpdated     string // YYYY-MM-DD
	LastScore       int
	LastDescendants int
}
