package report

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/Gerardo1909/hn-analytical-platform/internal/lake"
)

func seedLake(t *testing.T) (*lake.Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := lake.NewStore(root)
	if err != nil {
		t.Fatalf("creating lake: %v", err)
	}

	stories := []lake.Record{
		{
			"id": int64(1), "title": "Fast riser", "score": 300,
			"score_velocity": 150.0, "comment_velocity": 40.0,
			"observations_in_window": 2, "hours_to_peak": 4.0,
			"is_long_tail": false, "topics": "rust,compiler",
		},
		{
			"id": int64(2), "title": "Slow burner", "score": 120,
			"score_velocity": 10.0, "comment_velocity": 5.0,
			"observations_in_window": 3, "hours_to_peak": 60.0,
			"is_long_tail": true, "topics": "rust,database",
		},
		{
			"id": int64(3), "title": "Midfield", "score": 80,
			"score_velocity": 30.0, "comment_velocity": 0.0,
			"observations_in_window": 1, "hours_to_peak": 12.0,
			"is_long_tail": false,
		},
	}
	comments := []lake.Record{
		{"id": int64(11), "story_id": int64(1), "sentiment_score": 0.6, "sentiment_label": "positive"},
		{"id": int64(12), "story_id": int64(1), "sentiment_score": -0.4, "sentiment_label": "negative"},
		{"id": int64(13), "story_id": int64(2), "sentiment_score": 0.0, "sentiment_label": "neutral"},
		{"id": int64(14), "story_id": int64(2), "sentiment_score": 0.3, "sentiment_label": "positive"},
	}
	if err := store.Replace(lake.LayerOutput, "stories", "2026-08-30", stories); err != nil {
		t.Fatalf("seeding stories: %v", err)
	}
	if err := store.Replace(lake.LayerOutput, "comments", "2026-08-30", comments); err != nil {
		t.Fatalf("seeding comments: %v", err)
	}
	return store, root
}

func readReport(t *testing.T, dir, name string) [][]string {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, name+".csv"))
	if err != nil {
		t.Fatalf("opening report %s: %v", name, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading report %s: %v", name, err)
	}
	return rows
}

func TestGenerate(t *testing.T) {
	store, root := seedLake(t)
	reportsDir := filepath.Join(root, "output", "reports")
	g := NewGenerator(store, reportsDir)

	counts, err := g.Generate(context.Background(), "2026-08-30")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(counts) != 5 {
		t.Fatalf("got %d reports, want 5: %v", len(counts), counts)
	}

	dir := filepath.Join(reportsDir, "ingestion_date=2026-08-30")

	top := readReport(t, dir, "top_stories_by_velocity")
	if len(top) != 4 { // header + 3 stories
		t.Fatalf("top report has %d rows, want 4", len(top))
	}
	if top[1][0] != "1" {
		t.Errorf("fastest riser should lead: %v", top[1])
	}
	if top[0][0] != "id" || top[0][3] != "score_velocity" {
		t.Errorf("unexpected header: %v", top[0])
	}

	longTail := readReport(t, dir, "long_tail_stories")
	if len(longTail) != 2 || longTail[1][0] != "2" {
		t.Errorf("long tail report wrong: %v", longTail)
	}

	sentiment := readReport(t, dir, "sentiment_by_story")
	if counts["sentiment_by_story"] != 2 { // story 3 has no comments
		t.Errorf("got %d sentiment rows, want 2 stories", counts["sentiment_by_story"])
	}
	// Both stories have two comments; the id tie-break puts story 1 first.
	if sentiment[1][0] != "1" || sentiment[1][2] != "2" {
		t.Errorf("story 1 should lead: %v", sentiment[1])
	}
	if sentiment[1][4] != "1" || sentiment[1][5] != "1" || sentiment[1][6] != "0" {
		t.Errorf("story 1 label counts wrong: %v", sentiment[1])
	}
	if sentiment[2][0] != "2" || sentiment[2][6] != "1" {
		t.Errorf("story 2 row wrong: %v", sentiment[2])
	}

	topics := readReport(t, dir, "topic_frequency")
	if topics[1][0] != "rust" || topics[1][1] != "2" {
		t.Errorf("rust should be the top topic: %v", topics[1])
	}

	speed := readReport(t, dir, "engagement_speed")
	if counts["engagement_speed"] != 3 { // fast, medium, slow all present
		t.Errorf("got %d speed buckets: %v", counts["engagement_speed"], speed)
	}
}

func TestGenerate_ReplacesPreviousRun(t *testing.T) {
	store, root := seedLake(t)
	reportsDir := filepath.Join(root, "output", "reports")
	g := NewGenerator(store, reportsDir)

	if _, err := g.Generate(context.Background(), "2026-08-30"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// Plant a stale file; a rerun must not keep it.
	dir := filepath.Join(reportsDir, "ingestion_date=2026-08-30")
	stale := filepath.Join(dir, "stale.csv")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatalf("planting stale file: %v", err)
	}

	if _, err := g.Generate(context.Background(), "2026-08-30"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale report survived the rerun")
	}
	if len(readReport(t, dir, "top_stories_by_velocity")) != 4 {
		t.Error("rerun lost report content")
	}
	if _, err := os.Stat(dir + ".retired"); !os.IsNotExist(err) {
		t.Error("retired report set left behind after publish")
	}
}

func TestGenerate_EmptyDay(t *testing.T) {
	root := t.TempDir()
	store, err := lake.NewStore(root)
	if err != nil {
		t.Fatalf("creating lake: %v", err)
	}
	g := NewGenerator(store, filepath.Join(root, "output", "reports"))

	counts, err := g.Generate(context.Background(), "2026-08-30")
	if err != nil {
		t.Fatalf("generate on empty day: %v", err)
	}
	for name, n := range counts {
		if n != 0 {
			t.Errorf("report %s has %d rows on an empty day", name, n)
		}
	}
}
