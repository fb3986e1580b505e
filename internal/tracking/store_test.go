package tracking

import (
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoryRecord_UpsertAndGet(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetStory(100, "2026-08-30")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	rec := &StoryRecord{
		StoryID:         100,
		IngestionDate:   "2026-08-30",
		Status:          StatusPartial,
		CommentsFetched: 2,
		FetchedIDs:      []int64{201, 202},
		Attempts:        1,
	}
	if err := s.UpsertStory(rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetStory(100, "2026-08-30")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPartial || got.CommentsFetched != 2 {
		t.Errorf("unexpected record: %+v", got)
	}
	set := got.FetchedSet()
	if _, ok := set[202]; !ok {
		t.Errorf("fetched set missing 202: %v", got.FetchedIDs)
	}

	// Overwrite-by-key: same (story, date) transitions to complete.
	rec.Status = StatusComplete
	rec.CommentsFetched = 3
	rec.FetchedIDs = append(rec.FetchedIDs, 203)
	if err := s.UpsertStory(rec); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err = s.GetStory(100, "2026-08-30")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Status != StatusComplete || len(got.FetchedIDs) != 3 {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestStoryRecord_DateScoping(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpsertStory(&StoryRecord{StoryID: 100, IngestionDate: "2026-08-29", Status: StatusComplete}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Yesterday's completion must not hide today's record absence.
	if _, err := s.GetStory(100, "2026-08-30"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound for other date", err)
	}
}

func TestListByStatus(t *testing.T) {
	s := newTestStore(t)
	date := "2026-08-30"
	for _, rec := range []*StoryRecord{
		{StoryID: 1, IngestionDate: date, Status: StatusComplete},
		{StoryID: 2, IngestionDate: date, Status: StatusPartial},
		{StoryID: 3, IngestionDate: date, Status: StatusPartial},
		{StoryID: 4, IngestionDate: "2026-08-29", Status: StatusPartial},
	} {
		if err := s.UpsertStory(rec); err != nil {
			t.Fatalf("upsert %d: %v", rec.StoryID, err)
		}
	}

	partial, err := s.ListByStatus(date, StatusPartial)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(partial) != 2 || partial[0].StoryID != 2 || partial[1].StoryID != 3 {
		t.Errorf("unexpected partial list: %+v", partial)
	}
}

func TestStageRuns_StateMachine(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.LatestStage("ingest", "2026-08-30"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound before first run", err)
	}

	runID, err := s.BeginStage("ingest", "2026-08-30")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	// Second concurrent begin for the same (stage, date) is rejected.
	if _, err := s.BeginStage("ingest", "2026-08-30"); !errors.Is(err, ErrStageRunning) {
		t.Fatalf("got %v, want ErrStageRunning", err)
	}
	// Other dates and stages are unaffected.
	if _, err := s.BeginStage("ingest", "2026-08-29"); err != nil {
		t.Fatalf("other date blocked: %v", err)
	}
	if _, err := s.BeginStage("process", "2026-08-30"); err != nil {
		t.Fatalf("other stage blocked: %v", err)
	}

	if err := s.FinishStage(runID, StageFailed, `{"stories":0}`, "boom"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	latest, err := s.LatestStage("ingest", "2026-08-30")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Status != StageFailed || latest.Error != "boom" {
		t.Errorf("unexpected latest run: %+v", latest)
	}

	// A failed run may be retried; the new run becomes authoritative.
	runID2, err := s.BeginStage("ingest", "2026-08-30")
	if err != nil {
		t.Fatalf("retry begin: %v", err)
	}
	if err := s.FinishStage(runID2, StageSucceeded, "", ""); err != nil {
		t.Fatalf("retry finish: %v", err)
	}
	latest, err = s.LatestStage("ingest", "2026-08-30")
	if err != nil {
		t.Fatalf("latest after retry: %v", err)
	}
	if latest.RunID != runID2 || latest.Status != StageSucceeded {
		t.Errorf("latest run not the retry: %+v", latest)
	}
}

func TestBeginStage_TakesOverAbandonedRun(t *testing.T) {
	s := newTestStore(t)
	date := "2026-08-30"

	runID, err := s.BeginStage("ingest", date)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	// A freshly started run blocks.
	if _, err := s.BeginStage("ingest", date); !errors.Is(err, ErrStageRunning) {
		t.Fatalf("got %v, want ErrStageRunning within lease", err)
	}

	// Simulate a hard crash: the row stays running and its lease expires.
	stale := time.Now().UTC().Add(-2 * runningLease).Format(time.RFC3339)
	if _, err := s.db.Exec(`UPDATE stage_runs SET started_at = ? WHERE run_id = ?`, stale, runID); err != nil {
		t.Fatalf("backdating run: %v", err)
	}

	runID2, err := s.BeginStage("ingest", date)
	if err != nil {
		t.Fatalf("takeover begin: %v", err)
	}
	if runID2 == runID {
		t.Fatal("takeover reused the abandoned run id")
	}

	var status string
	if err := s.db.QueryRow(`SELECT status FROM stage_runs WHERE run_id = ?`, runID).Scan(&status); err != nil {
		t.Fatalf("reading abandoned run: %v", err)
	}
	if status != string(StageFailed) {
		t.Errorf("abandoned run status %s, want failed", status)
	}

	latest, err := s.LatestStage("ingest", date)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.RunID != runID2 || latest.Status != StageRunning {
		t.Errorf("takeover run not authoritative: %+v", latest)
	}
}

func TestFinishStage_UnknownRun(t *testing.T) {
	s := newTestStore(t)
	if err := s.FinishStage("no-such-run", StageSucceeded, "", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestInterest_ReplaceAndLoad(t *testing.T) {
	s := newTestStore(t)
	in := map[int64]Interest{
		100: {FirstSeen: "2026-08-28", LastUpdated: "2026-08-30", LastScore: 50, LastDescendants: 12},
		101: {FirstSeen: "2026-08-30", LastUpdated: "2026-08-30", LastScore: 10, LastDescendants: 0},
	}
	if err := s.ReplaceInterest(in); err != nil {
		t.Fatalf("replace: %v", err)
	}

	out, err := s.LoadInterest()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != 2 || out[100].LastScore != 50 {
		t.Errorf("unexpected interest map: %+v", out)
	}

	ids, err := s.ActiveStories()
	if err != nil {
		t.Fatalf("active stories: %v", err)
	}
	if len(ids) != 2 || ids[0] != 100 || ids[1] != 101 {
		t.Errorf("unexpected active story ids: %v", ids)
	}

	// Full replace drops absent entries.
	if err := s.ReplaceInterest(map[int64]Interest{101: in[101]}); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	out, err = s.LoadInterest()
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if _, present := out[100]; present {
		t.Error("story 100 should have been dropped by replace")
	}
}

func TestUpdateInterest(t *testing.T) {
	existing := map[int64]Interest{
		1: {FirstSeen: "2026-08-20", LastUpdated: "2026-08-29", LastScore: 100, LastDescendants: 40},
		2: {FirstSeen: "2026-08-20", LastUpdated: "2026-08-25", LastScore: 10, LastDescendants: 3},
		3: {FirstSeen: "2026-08-20", LastUpdated: "2026-08-29", LastScore: 10, LastDescendants: 3},
	}
	metrics := map[int64]Metrics{
		1: {Score: 120, Descendants: 41}, // score moved: refresh
		2: {Score: 10, Descendants: 3},   // quiet for 5 days: age out
		3: {Score: 10, Descendants: 3},   // quiet but recent: keep as-is
		9: {Score: 7, Descendants: 0},    // newly discovered
	}
	newIDs := map[int64]struct{}{9: {}}

	got := UpdateInterest(existing, newIDs, metrics, "2026-08-30", 3)

	if entry := got[1]; entry.LastUpdated != "2026-08-30" || entry.LastScore != 120 {
		t.Errorf("story 1 not refreshed: %+v", entry)
	}
	if _, present := got[2]; present {
		t.Error("story 2 should have aged out")
	}
	if entry := got[3]; entry.LastUpdated != "2026-08-29" {
		t.Errorf("story 3 should be kept unchanged: %+v", entry)
	}
	if entry := got[9]; entry.FirstSeen != "2026-08-30" || entry.LastScore != 7 {
		t.Errorf("story 9 not added: %+v", entry)
	}
}

func TestUpdateInterest_CommentGrowthCountsAsChange(t *testing.T) {
	existing := map[int64]Interest{
		1: {FirstSeen: "2026-08-20", LastUpdated: "2026-08-25", LastScore: 10, LastDescendants: 3},
	}
	metrics := map[int64]Metrics{1: {Score: 10, Descendants: 8}} // +5 comments
	got := UpdateInterest(existing, nil, metrics, "2026-08-30", 3)
	if entry := got[1]; entry.LastUpdated != "2026-08-30" || entry.LastDescendants != 8 {
		t.Errorf("comment growth should refresh tracking: %+v", entry)
	}
}
