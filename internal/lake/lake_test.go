package lake

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return s
}

func rec(id int, extra map[string]any) Record {
	r := Record{"id": id}
	for k, v := range extra {
		r[k] = v
	}
	return r
}

func TestAppendRaw_DeduplicatesByID(t *testing.T) {
	s := newTestStore(t)

	n, err := s.AppendRaw("stories", "2026-08-30", []Record{rec(1, nil), rec(2, nil)})
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	if n != 2 {
		t.Fatalf("got %d written, want 2", n)
	}

	// Second append overlaps: only id 3 is new.
	n, err = s.AppendRaw("stories", "2026-08-30", []Record{rec(2, nil), rec(3, nil)})
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if n != 1 {
		t.Errorf("got %d written, want 1", n)
	}

	records, err := s.Load(LayerRaw, "stories", "2026-08-30")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("got %d records, want 3", len(records))
	}
}

func TestAppendRaw_NoopIsZeroWrites(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AppendRaw("stories", "2026-08-30", []Record{rec(1, nil)}); err != nil {
		t.Fatalf("append: %v", err)
	}

	dir := s.partitionDir(LayerRaw, "stories", "2026-08-30")
	before, _ := os.ReadDir(dir)

	n, err := s.AppendRaw("stories", "2026-08-30", []Record{rec(1, nil)})
	if err != nil {
		t.Fatalf("duplicate append: %v", err)
	}
	if n != 0 {
		t.Errorf("got %d written, want 0", n)
	}

	after, _ := os.ReadDir(dir)
	if len(after) != len(before) {
		t.Errorf("duplicate append created a segment: %d -> %d files", len(before), len(after))
	}
}

func TestReplace_OverwritesWholePartition(t *testing.T) {
	s := newTestStore(t)
	date := "2026-08-30"

	if err := s.Replace(LayerProcessed, "stories", date, []Record{rec(1, nil), rec(2, nil)}); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if err := s.Replace(LayerProcessed, "stories", date, []Record{rec(9, nil)}); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	records, err := s.Load(LayerProcessed, "stories", date)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if id, _ := RecordID(records[0]); id != 9 {
		t.Errorf("got id %d, want 9", id)
	}
}

func TestReplace_RawLayerRejected(t *testing.T) {
	s := newTestStore(t)
	err := s.Replace(LayerRaw, "stories", "2026-08-30", []Record{rec(1, nil)})
	if !errors.Is(err, ErrImmutableLayer) {
		t.Fatalf("got %v, want ErrImmutableLayer", err)
	}
}

func TestLoad_MissingPartitionIsEmpty(t *testing.T) {
	s := newTestStore(t)
	records, err := s.Load(LayerProcessed, "stories", "1999-01-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}

func TestLoad_RoundTripsIntegerIDs(t *testing.T) {
	s := newTestStore(t)
	big := 9007199254740993 // beyond float64 integer precision
	if _, err := s.AppendRaw("comments", "2026-08-30", []Record{rec(big, map[string]any{"text": "hi"})}); err != nil {
		t.Fatalf("append: %v", err)
	}

	records, err := s.Load(LayerRaw, "comments", "2026-08-30")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	id, ok := RecordID(records[0])
	if !ok || id != int64(big) {
		t.Errorf("got id %d (ok=%v), want %d", id, ok, big)
	}
}

func TestWriteReport(t *testing.T) {
	s := newTestStore(t)
	report := map[string]any{"total_checks": 4, "passed_checks": 4}
	if err := s.WriteReport("quality_reports_stories", "2026-08-30", report); err != nil {
		t.Fatalf("write report: %v", err)
	}

	records, err := s.Load(LayerOutput, "quality_reports_stories", "2026-08-30")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if n, ok := IntField(records[0], "total_checks"); !ok || n != 4 {
		t.Errorf("total_checks = %d (ok=%v), want 4", n, ok)
	}
}

func TestAppendRaw_AbandonedStagingFileIsInvisible(t *testing.T) {
	s := newTestStore(t)
	date := "2026-08-30"
	if _, err := s.AppendRaw("comments", date, []Record{rec(201, map[string]any{"type": "comment"})}); err != nil {
		t.Fatalf("append: %v", err)
	}

	// A crash mid-write leaves a half-written staging file behind; the
	// published segments must stay readable around it.
	dir := s.partitionDir(LayerRaw, "comments", date)
	torn := filepath.Join(dir, "comments_20260830_000000_000000001.jsonl.tmp")
	if err := os.WriteFile(torn, []byte(`{"id":202,"type":"com`), 0o644); err != nil {
		t.Fatalf("planting staging file: %v", err)
	}

	records, err := s.Load(LayerRaw, "comments", date)
	if err != nil {
		t.Fatalf("load with staging debris: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	// Dedup on the resume path still sees the published record only.
	n, err := s.AppendRaw("comments", date, []Record{
		rec(201, map[string]any{"type": "comment"}),
		rec(202, map[string]any{"type": "comment"}),
	})
	if err != nil {
		t.Fatalf("resumed append: %v", err)
	}
	if n != 1 {
		t.Errorf("got %d written, want 1", n)
	}
}

func TestAppendRaw_PublishesOnlyCompleteSegments(t *testing.T) {
	s := newTestStore(t)
	date := "2026-08-30"
	if _, err := s.AppendRaw("stories", date, []Record{rec(1, nil), rec(2, nil)}); err != nil {
		t.Fatalf("append: %v", err)
	}

	dir := s.partitionDir(LayerRaw, "stories", date)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read partition: %v", err)
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".jsonl") {
			t.Errorf("staging debris left in partition: %s", e.Name())
		}
	}
}

func TestIntField(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  int64
		ok    bool
	}{
		{"json number", json.Number("42"), 42, true},
		{"int", 42, 42, true},
		{"int64", int64(42), 42, true},
		{"whole float", 42.0, 42, true},
		{"fractional float", 42.5, 0, false},
		{"string", "42", 0, false},
		{"missing", nil, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Record{}
			if tc.value != nil {
				r["f"] = tc.value
			}
			got, ok := IntField(r, "f")
			if ok != tc.ok || got != tc.want {
				t.Errorf("IntField = %d, %v; want %d, %v", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestReplace_LeavesNoStagingDebris(t *testing.T) {
	s := newTestStore(t)
	if err := s.Replace(LayerOutput, "stories", "2026-08-30", []Record{rec(1, nil)}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	entityDir := filepath.Join(s.root, "output", "stories")
	entries, err := os.ReadDir(entityDir)
	if err != nil {
		t.Fatalf("read entity dir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "ingestion_date=2026-08-30" {
			t.Errorf("unexpected entry %s in entity dir", e.Name())
		}
	}
}
