package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Gerardo1909/hn-analytical-platform/internal/fetch"
	"github.com/Gerardo1909/hn-analytical-platform/internal/hn"
	"github.com/Gerardo1909/hn-analytical-platform/internal/lake"
	"github.com/Gerardo1909/hn-analytical-platform/internal/tracking"
)

// ingestStats is the stage summary persisted with the run record.
type ingestStats struct {
	TopStories      int `json:"top_stories"`
	TrackedRevisits int `json:"tracked_revisits"`
	StoriesIngested int `json:"stories_ingested"`
	StoriesComplete int `json:"stories_complete"`
	StoriesPartial  int `json:"stories_partial"`
	StoriesFailed   int `json:"stories_failed"`
	NewComments     int `json:"new_comments"`
	TrackedAfter    int `json:"tracked_after"`
}

// Ingest runs the ingest stage for the date: today's front page plus
// previously tracked stories are fetched, their comment trees pulled
// into the raw layer, and the interest map rolled forward.
func (p *Pipeline) Ingest(ctx context.Context, date string) error {
	return p.runStage(ctx, StageIngest, date, func(ctx context.Context) (any, error) {
		return p.ingest(ctx, date)
	})
}

func (p *Pipeline) ingest(ctx context.Context, date string) (*ingestStats, error) {
	interest, err := p.track.LoadInterest()
	if err != nil {
		return nil, fmt.Errorf("loading interest map: %w", err)
	}

	topIDs, err := p.client.TopStories(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching top stories: %w", err)
	}
	if len(topIDs) > p.cfg.TopStories {
		topIDs = topIDs[:p.cfg.TopStories]
	}

	stats := &ingestStats{TopStories: len(topIDs)}

	// Candidate set: today's front page plus everything still tracked.
	candidates := make([]int64, 0, len(topIDs)+len(interest))
	inTop := make(map[int64]struct{}, len(topIDs))
	for _, id := range topIDs {
		candidates = append(candidates, int64(id))
		inTop[int64(id)] = struct{}{}
	}
	for id := range interest {
		if _, dup := inTop[id]; !dup {
			candidates = append(candidates, id)
			stats.TrackedRevisits++
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	cutoff, err := recencyCutoff(date, p.cfg.TrackingDays)
	if err != nil {
		return stats, err
	}
	stories, metrics, newIDs, err := p.fetchStoryItems(ctx, candidates, interest, cutoff)
	if err != nil {
		return stats, err
	}

	// Roll the interest map forward before the heavy comment fetch so a
	// crash mid-fetch does not lose today's observations.
	interest = tracking.UpdateInterest(interest, newIDs, metrics, date, p.cfg.TrackingDays)
	if err := p.track.ReplaceInterest(interest); err != nil {
		return stats, fmt.Errorf("persisting interest map: %w", err)
	}
	stats.TrackedAfter = len(interest)

	// Today's ingest set: every story still tracked after the roll.
	var records []lake.Record
	var ingestSet []*hn.Item
	for _, story := range stories {
		if _, tracked := interest[int64(story.ID)]; !tracked {
			continue
		}
		records = append(records, itemRecord(story, date))
		ingestSet = append(ingestSet, story)
	}
	if _, err := p.lake.AppendRaw("stories", date, records); err != nil {
		return stats, fmt.Errorf("persisting raw stories: %w", err)
	}
	stats.StoriesIngested = len(ingestSet)

	fetcher := fetch.New(p.client, p.track, &rawSink{store: p.lake}, p.cfg.Fetch)
	for _, story := range ingestSet {
		res, err := fetcher.FetchStory(ctx, story, date)
		if err != nil {
			return stats, fmt.Errorf("fetching tree for story %d: %w", story.ID, err)
		}
		stats.NewComments += res.NewComments
		switch res.Status {
		case tracking.StatusComplete:
			stats.StoriesComplete++
		case tracking.StatusPartial:
			stats.StoriesPartial++
		case tracking.StatusFailed:
			stats.StoriesFailed++
		}
	}
	return stats, nil
}

// fetchStoryItems pulls the story items for the candidate ids on the
// bounded worker pool, dropping deleted, dead and non-story items.
// Untracked stories older than the recency cutoff are ignored: an old
// story resurfacing on the front page is outside the analysis window.
// It returns the surviving items in candidate order, their activity
// metrics, and the ids seen for the first time.
func (p *Pipeline) fetchStoryItems(ctx context.Context, ids []int64, interest map[int64]tracking.Interest, cutoff int64) ([]*hn.Item, map[int64]tracking.Metrics, map[int64]struct{}, error) {
	items := make([]*hn.Item, len(ids))

	workers := p.cfg.Fetch.Workers
	if workers <= 0 {
		workers = 4
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			item, err := p.client.Item(gCtx, int(id))
			switch {
			case errors.Is(err, hn.ErrNotFound), errors.Is(err, hn.ErrMalformed):
				slog.Warn("story unavailable, skipping", "story_id", id, "error", err)
				return nil
			case err != nil:
				var te *hn.TransientError
				if errors.As(err, &te) {
					slog.Warn("story fetch exhausted retries, skipping", "story_id", id, "error", err)
					return nil
				}
				return err
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	stories := make([]*hn.Item, 0, len(ids))
	metrics := make(map[int64]tracking.Metrics, len(ids))
	newIDs := make(map[int64]struct{})
	for i, id := range ids {
		item := items[i]
		if item == nil || !item.IsStory() || item.Dead || item.Deleted {
			continue
		}
		if _, tracked := interest[id]; !tracked {
			if item.Time < cutoff {
				continue
			}
			newIDs[id] = struct{}{}
		}
		stories = append(stories, item)
		metrics[id] = tracking.Metrics{Score: item.Score, Descendants: item.Descendants}
	}
	return stories, metrics, newIDs, nil
}

// recencyCutoff is the oldest creation time a newly discovered story may
// have: the start of the window days before the ingestion date.
func recencyCutoff(date string, days int) (int64, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, fmt.Errorf("parsing date %q: %w", date, err)
	}
	return t.AddDate(0, 0, -days).Unix(), nil
}
