package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/Gerardo1909/hn-analytical-platform/internal/lake"
	"github.com/Gerardo1909/hn-analytical-platform/internal/quality"
)

// processStats is the stage summary persisted with the run record.
type processStats struct {
	RawStories      int `json:"raw_stories"`
	RawComments     int `json:"raw_comments"`
	Stories         int `json:"stories"`
	Comments        int `json:"comments"`
	Duplicates      int `json:"duplicates_dropped"`
	Tombstones      int `json:"tombstones_dropped"`
	Orphans         int `json:"orphans_dropped"`
	AdvisoryFailed  int `json:"advisory_checks_failed"`
}

// Process promotes the date's raw partitions to the processed layer:
// records are normalized, deduplicated by id, orphaned comments dropped,
// and both entities pass their quality gates before the partitions are
// replaced. A blocking gate failure leaves the processed layer untouched.
func (p *Pipeline) Process(ctx context.Context, date string) error {
	return p.runStage(ctx, StageProcess, date, func(ctx context.Context) (any, error) {
		return p.process(ctx, date)
	})
}

func (p *Pipeline) process(_ context.Context, date string) (*processStats, error) {
	if err := p.requireSucceeded(StageIngest, date); err != nil {
		return nil, err
	}

	rawStories, err := p.lake.Load(lake.LayerRaw, "stories", date)
	if err != nil {
		return nil, fmt.Errorf("loading raw stories: %w", err)
	}
	rawComments, err := p.lake.Load(lake.LayerRaw, "comments", date)
	if err != nil {
		return nil, fmt.Errorf("loading raw comments: %w", err)
	}
	stats := &processStats{RawStories: len(rawStories), RawComments: len(rawComments)}

	stories := p.normalizeStories(rawStories, date, stats)
	storyIDs := make(map[int64]struct{}, len(stories))
	for _, rec := range stories {
		if id, ok := lake.RecordID(rec); ok {
			storyIDs[id] = struct{}{}
		}
	}
	comments := p.normalizeComments(rawComments, storyIDs, date, stats)

	validParents := make(map[int64]struct{}, len(storyIDs)+len(comments))
	for id := range storyIDs {
		validParents[id] = struct{}{}
	}
	for _, rec := range comments {
		if id, ok := lake.RecordID(rec); ok {
			validParents[id] = struct{}{}
		}
	}

	storyReport, storyErr := quality.Gate("stories", date, stories, quality.ProcessedStoryRules())
	if err := p.lake.WriteReport("quality_processed_stories", date, storyReport); err != nil {
		return stats, err
	}
	commentReport, commentErr := quality.Gate("comments", date, comments, quality.ProcessedCommentRules(validParents))
	if err := p.lake.WriteReport("quality_processed_comments", date, commentReport); err != nil {
		return stats, err
	}
	stats.AdvisoryFailed = advisoryFailures(storyReport) + advisoryFailures(commentReport)
	if storyErr != nil {
		return stats, storyErr
	}
	if commentErr != nil {
		return stats, commentErr
	}

	if err := p.lake.Replace(lake.LayerProcessed, "stories", date, stories); err != nil {
		return stats, fmt.Errorf("publishing processed stories: %w", err)
	}
	if err := p.lake.Replace(lake.LayerProcessed, "comments", date, comments); err != nil {
		return stats, fmt.Errorf("publishing processed comments: %w", err)
	}
	stats.Stories = len(stories)
	stats.Comments = len(comments)
	return stats, nil
}

// normalizeStories projects raw story records onto the processed schema,
// dropping tombstones and duplicate ids.
func (p *Pipeline) normalizeStories(raw []lake.Record, date string, stats *processStats) []lake.Record {
	seen := make(map[int64]struct{}, len(raw))
	out := make([]lake.Record, 0, len(raw))
	for _, rec := range raw {
		id, ok := lake.RecordID(rec)
		if !ok || isTombstone(rec) {
			stats.Tombstones++
			continue
		}
		if _, dup := seen[id]; dup {
			stats.Duplicates++
			continue
		}
		seen[id] = struct{}{}

		norm := lake.Record{
			"id":             id,
			"type":           "story",
			"score":          intOr(rec, "score", 0),
			"descendants":    intOr(rec, "descendants", 0),
			"ingestion_date": date,
		}
		// No timestamp default: a record without one must trip the
		// not_null gate, not slip through as epoch zero.
		copyInt(norm, rec, "time")
		copyString(norm, rec, "by")
		copyString(norm, rec, "title")
		copyString(norm, rec, "url")
		out = append(out, norm)
	}
	return out
}

// normalizeComments projects raw comments onto the processed schema and
// drops orphans: a comment is kept only when its parent chain resolves
// to one of the day's stories. The resolved root is recorded as story_id.
func (p *Pipeline) normalizeComments(raw []lake.Record, storyIDs map[int64]struct{}, date string, stats *processStats) []lake.Record {
	parents := make(map[int64]int64, len(raw))
	kept := make(map[int64]lake.Record, len(raw))
	for _, rec := range raw {
		id, ok := lake.RecordID(rec)
		if !ok || isTombstone(rec) {
			stats.Tombstones++
			continue
		}
		if _, dup := kept[id]; dup {
			stats.Duplicates++
			continue
		}
		parent, ok := lake.IntField(rec, "parent")
		if !ok {
			stats.Orphans++
			continue
		}
		parents[id] = parent
		kept[id] = rec
	}

	out := make([]lake.Record, 0, len(kept))
	for _, rec := range sortByID(kept) {
		id, _ := lake.RecordID(rec)
		storyID, ok := resolveRoot(id, parents, storyIDs)
		if !ok {
			stats.Orphans++
			continue
		}
		norm := lake.Record{
			"id":             id,
			"type":           "comment",
			"parent":         parents[id],
			"story_id":       storyID,
			"ingestion_date": date,
		}
		copyInt(norm, rec, "time")
		copyString(norm, rec, "by")
		copyString(norm, rec, "text")
		out = append(out, norm)
	}
	return out
}

// resolveRoot walks the parent chain until it hits a known story. The
// visited set guards against cycles in corrupt data.
func resolveRoot(id int64, parents map[int64]int64, storyIDs map[int64]struct{}) (int64, bool) {
	visited := make(map[int64]struct{})
	cur := id
	for {
		if _, seen := visited[cur]; seen {
			return 0, false
		}
		visited[cur] = struct{}{}
		parent, ok := parents[cur]
		if !ok {
			return 0, false
		}
		if _, isStory := storyIDs[parent]; isStory {
			return parent, true
		}
		cur = parent
	}
}

func isTombstone(rec lake.Record) bool {
	if dead, ok := rec["dead"].(bool); ok && dead {
		return true
	}
	if deleted, ok := rec["deleted"].(bool); ok && deleted {
		return true
	}
	return false
}

func intOr(rec lake.Record, field string, fallback int64) int64 {
	if v, ok := lake.IntField(rec, field); ok {
		return v
	}
	return fallback
}

func copyInt(dst, src lake.Record, field string) {
	if v, ok := lake.IntField(src, field); ok {
		dst[field] = v
	}
}

func copyString(dst, src lake.Record, field string) {
	if s, ok := src[field].(string); ok && s != "" {
		dst[field] = s
	}
}

func sortByID(records map[int64]lake.Record) []lake.Record {
	ids := make([]int64, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]lake.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, records[id])
	}
	return out
}

func advisoryFailures(report quality.Report) int {
	n := 0
	for _, check := range report.Checks {
		if !check.Passed && check.Severity == quality.Advisory {
			n++
		}
	}
	return n
}
