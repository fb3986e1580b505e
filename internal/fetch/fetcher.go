// Package fetch implements the resumable comment-tree fetcher. A story's
// comment tree is traversed breadth-first with an explicit frontier queue
// (bounded stack regardless of thread depth), item fetches run on a
// bounded worker pool, and progress is checkpointed to the tracking store
// so a crash loses at most the last unflushed batch.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Gerardo1909/hn-analytical-platform/internal/hn"
	"github.com/Gerardo1909/hn-analytical-platform/internal/tracking"
)

// ItemClient is the slice of the HN client the fetcher needs.
type ItemClient interface {
	Item(ctx context.Context, id int) (*hn.Item, error)
}

// Tracker is the slice of the tracking store the fetcher needs.
type Tracker interface {
	GetStory(storyID int64, date string) (*tracking.StoryRecord, error)
	UpsertStory(rec *tracking.StoryRecord) error
}

// Sink receives fetched comments for durable raw-layer storage.
// AppendComments must deduplicate by id (raw append semantics) and
// CommentKids must expose the kids arrays of comments already persisted
// for the date, so a resumed fetch can expand known comments without
// re-fetching them.
type Sink interface {
	AppendComments(date string, comments []*hn.Item) (int, error)
	CommentKids(date string) (map[int64][]int64, error)
}

// Config tunes the fetcher. Zero values fall back to defaults.
type Config struct {
	Workers          int // bounded pool size (default 4)
	CheckpointEvery  int // comments persisted between checkpoints (default 25)
	MaxStoryAttempts int // runs before a non-complete story is abandoned (default 5)
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = 25
	}
	if c.MaxStoryAttempts <= 0 {
		c.MaxStoryAttempts = 5
	}
	return c
}

// StoryResult summarizes one story's fetch.
type StoryResult struct {
	StoryID      int64
	Status       tracking.FetchStatus
	NewComments  int // persisted this run
	TotalFetched int // persisted across all runs for the date
	Dropped      int // malformed, deleted or dead items
	Lost         int // subtree roots pruned after retry exhaustion
	Skipped      bool
}

// Fetcher pulls full comment trees for stories, resuming from tracking
// checkpoints across restarts.
type Fetcher struct {
	client  ItemClient
	tracker Tracker
	sink    Sink
	cfg     Config
}

// New creates a Fetcher.
func New(client ItemClient, tracker Tracker, sink Sink, cfg Config) *Fetcher {
	return &Fetcher{client: client, tracker: tracker, sink: sink, cfg: cfg.withDefaults()}
}

// FetchStory retrieves every comment reachable from story for the given
// date. Already-complete stories are a no-op; partial stories resume
// from the checkpointed id set. A single comment exhausting its retry
// budget prunes only that branch and demotes the story to partial.
func (f *Fetcher) FetchStory(ctx context.Context, story *hn.Item, date string) (*StoryResult, error) {
	res := &StoryResult{StoryID: int64(story.ID)}

	rec, err := f.tracker.GetStory(int64(story.ID), date)
	if errors.Is(err, tracking.ErrNotFound) {
		rec = &tracking.StoryRecord{
			StoryID:       int64(story.ID),
			IngestionDate: date,
			Status:        tracking.StatusPending,
		}
	} else if err != nil {
		return nil, fmt.Errorf("reading tracking for story %d: %w", story.ID, err)
	}

	switch rec.Status {
	case tracking.StatusComplete:
		res.Status = tracking.StatusComplete
		res.TotalFetched = rec.CommentsFetched
		res.Skipped = true
		return res, nil
	case tracking.StatusFailed:
		res.Status = tracking.StatusFailed
		res.Skipped = true
		return res, nil
	}

	if rec.Attempts >= f.cfg.MaxStoryAttempts {
		rec.Status = tracking.StatusFailed
		if err := f.tracker.UpsertStory(rec); err != nil {
			return nil, fmt.Errorf("demoting story %d: %w", story.ID, err)
		}
		slog.Warn("story abandoned after retry ceiling",
			"story_id", story.ID, "attempts", rec.Attempts)
		res.Status = tracking.StatusFailed
		res.Skipped = true
		return res, nil
	}
	rec.Attempts++

	knownKids, err := f.sink.CommentKids(date)
	if err != nil {
		return nil, fmt.Errorf("loading persisted comment index: %w", err)
	}

	walk := &treeWalk{
		fetcher:   f,
		date:      date,
		rec:       rec,
		fetched:   rec.FetchedSet(),
		knownKids: knownKids,
		result:    res,
	}
	walkErr := walk.run(ctx, story.Kids)

	// Terminal status: complete only when every reachable branch was
	// attempted and none was lost; interrupted or lossy runs stay
	// partial so a rerun resumes from the checkpoint.
	switch {
	case walkErr != nil:
		rec.Status = tracking.StatusPartial
	case res.Lost > 0:
		rec.Status = tracking.StatusPartial
	default:
		rec.Status = tracking.StatusComplete
	}
	res.Status = rec.Status
	res.TotalFetched = len(walk.fetched)
	rec.CommentsFetched = len(walk.fetched)
	rec.FetchedIDs = setToSlice(walk.fetched)

	if err := f.tracker.UpsertStory(rec); err != nil {
		return nil, fmt.Errorf("finalizing tracking for story %d: %w", story.ID, err)
	}
	if walkErr != nil {
		return res, walkErr
	}
	slog.Info("story subtree fetched",
		"story_id", story.ID, "status", rec.Status,
		"new", res.NewComments, "total", res.TotalFetched,
		"dropped", res.Dropped, "lost", res.Lost)
	return res, nil
}

// treeWalk holds the mutable state of one story traversal.
type treeWalk struct {
	fetcher   *Fetcher
	date      string
	rec       *tracking.StoryRecord
	fetched   map[int64]struct{}
	knownKids map[int64][]int64
	result    *StoryResult

	sinceCheckpoint int
}

// run walks the comment tree level by level from the root kid ids.
func (w *treeWalk) run(ctx context.Context, rootKids []int) error {
	frontier := make([]int64, 0, len(rootKids))
	for _, id := range rootKids {
		frontier = append(frontier, int64(id))
	}

	for len(frontier) > 0 {
		next, err := w.expandLevel(ctx, frontier)
		if err != nil {
			return err
		}
		frontier = next
	}
	return nil
}

// fetchOutcome is one frontier slot after the worker pool pass.
type fetchOutcome struct {
	id   int64
	item *hn.Item
	err  error
}

// expandLevel fetches one frontier level on the bounded pool, persists
// the new comments, checkpoints, and returns the next frontier.
func (w *treeWalk) expandLevel(ctx context.Context, frontier []int64) ([]int64, error) {
	outcomes := make([]fetchOutcome, len(frontier))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(w.fetcher.cfg.Workers)
	for i, id := range frontier {
		if _, done := w.fetched[id]; done {
			// Already persisted in a previous run: expand from the raw
			// index instead of re-fetching.
			outcomes[i] = fetchOutcome{id: id}
			continue
		}
		i, id := i, id
		g.Go(func() error {
			item, err := w.fetcher.client.Item(gCtx, int(id))
			outcomes[i] = fetchOutcome{id: id, item: item, err: err}
			// Individual failures prune branches, never abort the walk;
			// only cancellation stops the group.
			return gCtx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		// Persist whatever completed before cancellation so the
		// checkpoint reflects it.
		w.absorb(outcomes, nil)
		if cpErr := w.checkpoint(); cpErr != nil {
			slog.Error("checkpoint after cancellation failed", "error", cpErr)
		}
		return nil, err
	}

	var next []int64
	if err := w.absorb(outcomes, &next); err != nil {
		return nil, err
	}
	if w.sinceCheckpoint >= w.fetcher.cfg.CheckpointEvery {
		if err := w.checkpoint(); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// absorb persists the level's successful fetches and classifies the
// rest. When next is non-nil it collects the ids of the following level.
func (w *treeWalk) absorb(outcomes []fetchOutcome, next *[]int64) error {
	var batch []*hn.Item
	batchKids := make(map[int64][]int64)

	for _, out := range outcomes {
		switch {
		case out.item == nil && out.err == nil:
			// Previously fetched: kids come from the persisted index.
			if next != nil {
				*next = append(*next, w.knownKids[out.id]...)
			}
		case out.err != nil:
			w.classifyError(out)
		case !out.item.IsComment() || out.item.Dead:
			w.result.Dropped++
		default:
			batch = append(batch, out.item)
			kids := make([]int64, 0, len(out.item.Kids))
			for _, kid := range out.item.Kids {
				kids = append(kids, int64(kid))
			}
			batchKids[int64(out.item.ID)] = kids
		}
	}

	if len(batch) > 0 {
		if _, err := w.fetcher.sink.AppendComments(w.date, batch); err != nil {
			return fmt.Errorf("persisting comment batch: %w", err)
		}
		// Only ids that reached the sink enter the checkpoint set.
		for _, c := range batch {
			id := int64(c.ID)
			w.fetched[id] = struct{}{}
			w.knownKids[id] = batchKids[id]
			w.result.NewComments++
			w.sinceCheckpoint++
			if next != nil {
				*next = append(*next, batchKids[id]...)
			}
		}
	}
	return nil
}

func (w *treeWalk) classifyError(out fetchOutcome) {
	var te *hn.TransientError
	switch {
	case errors.As(out.err, &te):
		// Retry budget exhausted: prune this branch, keep the story.
		w.result.Lost++
		slog.Warn("comment subtree lost", "comment_id", out.id, "error", out.err)
	case errors.Is(out.err, hn.ErrNotFound), errors.Is(out.err, hn.ErrMalformed):
		w.result.Dropped++
	case errors.Is(out.err, context.Canceled), errors.Is(out.err, context.DeadlineExceeded):
		// Counted by the caller via the group error.
	default:
		w.result.Lost++
		slog.Warn("comment fetch failed", "comment_id", out.id, "error", out.err)
	}
}

// checkpoint flushes the fetched-id high-water mark as a partial record.
func (w *treeWalk) checkpoint() error {
	w.rec.Status = tracking.StatusPartial
	w.rec.CommentsFetched = len(w.fetched)
	w.rec.FetchedIDs = setToSlice(w.fetched)
	if err := w.fetcher.tracker.UpsertStory(w.rec); err != nil {
		return fmt.Errorf("checkpointing story %d: %w", w.rec.StoryID, err)
	}
	w.sinceCheckpoint = 0
	return nil
}

func setToSlice(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
