// Package lake implements the partitioned layer storage underneath the
// pipeline: raw, processed and output layers on a local filesystem, laid
// out as <root>/<layer>/<entity>/ingestion_date=<date>/*.jsonl.
package lake

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Layer identifies one stage of the medallion layout.
type Layer string

const (
	LayerRaw       Layer = "raw"
	LayerProcessed Layer = "processed"
	LayerOutput    Layer = "output"
)

// Record is one row of a partition. JSON numbers are decoded as
// json.Number so integer IDs survive a round trip unchanged.
type Record = map[string]any

// ErrImmutableLayer is returned when a whole-partition replace is
// attempted on the raw layer.
var ErrImmutableLayer = errors.New("lake: raw partitions cannot be replaced")

// Store reads and writes partitions under a root directory.
//
// Raw partitions are append-only and deduplicated by record id.
// Processed and output partitions are replaced wholesale: content is
// staged into a temporary directory and published with a rename, so a
// failed write never disturbs the previous partition.
type Store struct {
	root string
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lake root: %w", err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) partitionDir(layer Layer, entity, date string) string {
	return filepath.Join(s.root, string(layer), entity, "ingestion_date="+date)
}

// Replace atomically substitutes the full content of a processed or
// output partition with records. The previous content stays authoritative
// until the final rename; on any earlier failure it is left untouched.
func (s *Store) Replace(layer Layer, entity, date string, records []Record) error {
	if layer == LayerRaw {
		return ErrImmutableLayer
	}

	final := s.partitionDir(layer, entity, date)
	parent := filepath.Dir(final)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("creating entity directory: %w", err)
	}

	staging, err := os.MkdirTemp(parent, ".staging-")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := writeSegment(filepath.Join(staging, segmentName(entity)), records); err != nil {
		return err
	}

	// Retire the old partition, publish the new one, then discard the
	// old content. If the publish rename fails the retired directory is
	// moved back.
	retired := final + ".retired"
	hadPrevious := false
	if _, err := os.Stat(final); err == nil {
		os.RemoveAll(retired)
		if err := os.Rename(final, retired); err != nil {
			return fmt.Errorf("retiring previous partition: %w", err)
		}
		hadPrevious = true
	}

	if err := os.Rename(staging, final); err != nil {
		if hadPrevious {
			if restoreErr := os.Rename(retired, final); restoreErr != nil {
				slog.Error("failed to restore retired partition",
					"partition", final, "error", restoreErr)
			}
		}
		return fmt.Errorf("publishing partition: %w", err)
	}
	if hadPrevious {
		os.RemoveAll(retired)
	}

	slog.Info("partition replaced",
		"layer", layer, "entity", entity, "date", date, "records", len(records))
	return nil
}

// AppendRaw appends records to a raw partition, skipping any whose id is
// already present. Existing segments are never rewritten. Returns the
// number of records actually written.
func (s *Store) AppendRaw(entity, date string, records []Record) (int, error) {
	dir := s.partitionDir(LayerRaw, entity, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating raw partition: %w", err)
	}

	seen, err := s.rawIDs(entity, date)
	if err != nil {
		return 0, err
	}

	var fresh []Record
	for _, rec := range records {
		id, ok := RecordID(rec)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		fresh = append(fresh, rec)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	if err := writeSegment(filepath.Join(dir, segmentName(entity)), fresh); err != nil {
		return 0, err
	}
	slog.Info("raw records appended",
		"entity", entity, "date", date, "written", len(fresh), "skipped", len(records)-len(fresh))
	return len(fresh), nil
}

// rawIDs returns the set of record ids already present in a raw partition.
func (s *Store) rawIDs(entity, date string) (map[int64]struct{}, error) {
	existing, err := s.Load(LayerRaw, entity, date)
	if err != nil {
		return nil, err
	}
	ids := make(map[int64]struct{}, len(existing))
	for _, rec := range existing {
		if id, ok := RecordID(rec); ok {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}

// Load reads every JSONL segment of a partition in filename order.
// A missing partition yields an empty slice, not an error.
func (s *Store) Load(layer Layer, entity, date string) ([]Record, error) {
	dir := s.partitionDir(layer, entity, date)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing partition %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var records []Record
	for _, name := range names {
		segment, err := readSegment(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		records = append(records, segment...)
	}
	return records, nil
}

// WriteReport persists a quality report (or any single JSON document) as
// an output-layer partition with replace semantics.
func (s *Store) WriteReport(entity, date string, report any) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	var rec Record
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return fmt.Errorf("round-tripping report: %w", err)
	}
	return s.Replace(LayerOutput, entity, date, []Record{rec})
}

// RecordID extracts the integer "id" field from a record. The bool is
// false when the field is missing or not an integer.
func RecordID(rec Record) (int64, bool) {
	return IntField(rec, "id")
}

// IntField extracts a named integer field, tolerating the numeric types
// JSON decoding and in-process construction produce.
func IntField(rec Record, field string) (int64, bool) {
	switch v := rec[field].(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), v == float64(int64(v))
	default:
		return 0, false
	}
}

func segmentName(entity string) string {
	return fmt.Sprintf("%s_%s_%09d.jsonl",
		entity, time.Now().UTC().Format("20060102_150405"), time.Now().UTC().Nanosecond())
}

// writeSegment stages the records into a temporary file and renames it
// into place. A crash mid-write leaves only the staging file, which Load
// ignores, never a segment with a torn final line.
func writeSegment(path string, records []Record) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating segment: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			f.Close()
			return fmt.Errorf("encoding record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing segment: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing segment: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing segment: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing segment: %w", err)
	}
	return nil
}

func readSegment(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decoding line in %s: %w", path, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading segment %s: %w", path, err)
	}
	return records, nil
}
