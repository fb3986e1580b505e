package pipeline

import (
	"context"
	"fmt"

	"github.com/Gerardo1909/hn-analytical-platform/internal/enrich"
	"github.com/Gerardo1909/hn-analytical-platform/internal/lake"
	"github.com/Gerardo1909/hn-analytical-platform/internal/quality"
)

// transformStats is the stage summary persisted with the run record.
type transformStats struct {
	Stories        int `json:"stories"`
	Comments       int `json:"comments"`
	LongTail       int `json:"long_tail_stories"`
	HistoryDays    int `json:"history_days_loaded"`
	AdvisoryFailed int `json:"advisory_checks_failed"`
}

// Transform promotes the date's processed partitions to the output
// layer: stories gain temporal engagement metrics and topic keywords,
// comments gain sentiment scores over cleaned text. Both entities pass
// quality gates before the partitions are replaced.
func (p *Pipeline) Transform(ctx context.Context, date string) error {
	return p.runStage(ctx, StageTransform, date, func(ctx context.Context) (any, error) {
		return p.transform(ctx, date)
	})
}

func (p *Pipeline) transform(_ context.Context, date string) (*transformStats, error) {
	if err := p.requireSucceeded(StageProcess, date); err != nil {
		return nil, err
	}

	stories, err := p.lake.Load(lake.LayerProcessed, "stories", date)
	if err != nil {
		return nil, fmt.Errorf("loading processed stories: %w", err)
	}
	comments, err := p.lake.Load(lake.LayerProcessed, "comments", date)
	if err != nil {
		return nil, fmt.Errorf("loading processed comments: %w", err)
	}

	stats := &transformStats{}
	history, daysLoaded, err := p.loadStoryHistory(date)
	if err != nil {
		return nil, err
	}
	stats.HistoryDays = daysLoaded

	outStories := p.enrichStories(stories, history, date, stats)
	outComments := p.enrichComments(comments, date)

	storyIDs := make(map[int64]struct{}, len(outStories))
	for _, rec := range outStories {
		if id, ok := lake.RecordID(rec); ok {
			storyIDs[id] = struct{}{}
		}
	}
	validParents := make(map[int64]struct{}, len(storyIDs)+len(outComments))
	for id := range storyIDs {
		validParents[id] = struct{}{}
	}
	for _, rec := range outComments {
		if id, ok := lake.RecordID(rec); ok {
			validParents[id] = struct{}{}
		}
	}

	storyReport, storyErr := quality.Gate("stories", date, outStories, quality.OutputStoryRules())
	if err := p.lake.WriteReport("quality_output_stories", date, storyReport); err != nil {
		return stats, err
	}
	commentReport, commentErr := quality.Gate("comments", date, outComments, quality.OutputCommentRules(validParents))
	if err := p.lake.WriteReport("quality_output_comments", date, commentReport); err != nil {
		return stats, err
	}
	stats.AdvisoryFailed = advisoryFailures(storyReport) + advisoryFailures(commentReport)
	if storyErr != nil {
		return stats, storyErr
	}
	if commentErr != nil {
		return stats, commentErr
	}

	if err := p.lake.Replace(lake.LayerOutput, "stories", date, outStories); err != nil {
		return stats, fmt.Errorf("publishing output stories: %w", err)
	}
	if err := p.lake.Replace(lake.LayerOutput, "comments", date, outComments); err != nil {
		return stats, fmt.Errorf("publishing output comments: %w", err)
	}
	stats.Stories = len(outStories)
	stats.Comments = len(outComments)
	return stats, nil
}

// loadStoryHistory collects the previous tracking window's processed
// story observations keyed by story id.
func (p *Pipeline) loadStoryHistory(date string) (map[int64][]enrich.StoryObservation, int, error) {
	history := make(map[int64][]enrich.StoryObservation)
	daysLoaded := 0
	for back := 1; back <= p.cfg.TrackingDays; back++ {
		day, err := prevDate(date, back)
		if err != nil {
			return nil, 0, err
		}
		records, err := p.lake.Load(lake.LayerProcessed, "stories", day)
		if err != nil {
			return nil, 0, fmt.Errorf("loading story history for %s: %w", day, err)
		}
		if len(records) == 0 {
			continue
		}
		daysLoaded++
		for _, rec := range records {
			obs, ok := observation(rec)
			if !ok {
				continue
			}
			history[obs.ID] = append(history[obs.ID], obs)
		}
	}
	return history, daysLoaded, nil
}

// enrichStories derives the output story records: processed fields plus
// temporal metrics and topic keywords.
func (p *Pipeline) enrichStories(stories []lake.Record, history map[int64][]enrich.StoryObservation, date string, stats *transformStats) []lake.Record {
	titles := make(map[int64]string, len(stories))
	for _, rec := range stories {
		if id, ok := lake.RecordID(rec); ok {
			if title, ok := rec["title"].(string); ok {
				titles[id] = title
			}
		}
	}
	topics := enrich.NewTopicExtractor().Topics(titles)

	out := make([]lake.Record, 0, len(stories))
	for _, rec := range stories {
		obs, ok := observation(rec)
		if !ok {
			continue
		}
		m := enrich.StoryMetricsFor(obs, history[obs.ID])

		enriched := lake.Record{
			"id":                     obs.ID,
			"type":                   "story",
			"time":                   obs.TimeUnix,
			"score":                  obs.Score,
			"descendants":            obs.Descendants,
			"ingestion_date":         date,
			"score_velocity":         m.ScoreVelocity,
			"comment_velocity":       m.CommentVelocity,
			"observations_in_window": m.ObservationsInWindow,
			"hours_to_peak":          m.HoursToPeak,
			"is_long_tail":           m.IsLongTail,
		}
		copyString(enriched, rec, "by")
		copyString(enriched, rec, "title")
		copyString(enriched, rec, "url")
		if topic := topics[obs.ID]; topic != "" {
			enriched["topics"] = topic
		}
		if m.IsLongTail {
			stats.LongTail++
		}
		out = append(out, enriched)
	}
	return out
}

// enrichComments derives the output comment records: cleaned text and
// lexicon sentiment over it.
func (p *Pipeline) enrichComments(comments []lake.Record, date string) []lake.Record {
	out := make([]lake.Record, 0, len(comments))
	for _, rec := range comments {
		id, ok := lake.RecordID(rec)
		if !ok {
			continue
		}
		text, _ := rec["text"].(string)
		clean := enrich.CleanText(text)
		sentiment := enrich.Analyze(clean)

		enriched := lake.Record{
			"id":              id,
			"type":            "comment",
			"time":            intOr(rec, "time", 0),
			"parent":          intOr(rec, "parent", 0),
			"story_id":        intOr(rec, "story_id", 0),
			"ingestion_date":  date,
			"text_clean":      clean,
			"text_length":     len(clean),
			"sentiment_score": sentiment.Compound,
			"sentiment_label": sentiment.Label,
		}
		copyString(enriched, rec, "by")
		out = append(out, enriched)
	}
	return out
}

// observation converts a processed story record into an enrichment
// observation. Records without an id are skipped by the caller.
func observation(rec lake.Record) (enrich.StoryObservation, bool) {
	id, ok := lake.RecordID(rec)
	if !ok {
		return enrich.StoryObservation{}, false
	}
	dateField, _ := rec["ingestion_date"].(string)
	return enrich.StoryObservation{
		ID:            id,
		IngestionDate: dateField,
		Score:         int(intOr(rec, "score", 0)),
		Descendants:   int(intOr(rec, "descendants", 0)),
		TimeUnix:      intOr(rec, "time", 0),
	}, true
}
