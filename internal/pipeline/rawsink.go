package pipeline

import (
	"encoding/json"

	"github.com/Gerardo1909/hn-analytical-platform/internal/hn"
	"github.com/Gerardo1909/hn-analytical-platform/internal/lake"
)

// rawSink adapts the lake's raw comment partition to the fetcher's sink
// interface: appends are deduplicated by the lake, and the kids index is
// rebuilt from the persisted records so resumed fetches can expand
// known comments without touching the API.
type rawSink struct {
	store *lake.Store
}

func (s *rawSink) AppendComments(date string, comments []*hn.Item) (int, error) {
	records := make([]lake.Record, 0, len(comments))
	for _, c := range comments {
		records = append(records, itemRecord(c, date))
	}
	return s.store.AppendRaw("comments", date, records)
}

func (s *rawSink) CommentKids(date string) (map[int64][]int64, error) {
	records, err := s.store.Load(lake.LayerRaw, "comments", date)
	if err != nil {
		return nil, err
	}
	index := make(map[int64][]int64, len(records))
	for _, rec := range records {
		id, ok := lake.RecordID(rec)
		if !ok {
			continue
		}
		index[id] = kidIDs(rec)
	}
	return index, nil
}

// itemRecord converts an API item into a raw-layer record. All fields
// are kept, including kids, which the resume index depends on.
func itemRecord(it *hn.Item, date string) lake.Record {
	rec := lake.Record{
		"id":             int64(it.ID),
		"type":           it.Type,
		"time":           it.Time,
		"ingestion_date": date,
	}
	if it.By != "" {
		rec["by"] = it.By
	}
	if it.Title != "" {
		rec["title"] = it.Title
	}
	if it.URL != "" {
		rec["url"] = it.URL
	}
	if it.Text != "" {
		rec["text"] = it.Text
	}
	if it.Score != 0 {
		rec["score"] = it.Score
	}
	if it.Descendants != 0 {
		rec["descendants"] = it.Descendants
	}
	if it.Parent != 0 {
		rec["parent"] = int64(it.Parent)
	}
	if len(it.Kids) > 0 {
		kids := make([]int64, 0, len(it.Kids))
		for _, k := range it.Kids {
			kids = append(kids, int64(k))
		}
		rec["kids"] = kids
	}
	if it.Dead {
		rec["dead"] = true
	}
	if it.Deleted {
		rec["deleted"] = true
	}
	return rec
}

// kidIDs reads the kids array of a record, tolerating both the freshly
// built []int64 form and the []any of json.Number a JSONL reload yields.
func kidIDs(rec lake.Record) []int64 {
	switch kids := rec["kids"].(type) {
	case []int64:
		return kids
	case []any:
		out := make([]int64, 0, len(kids))
		for _, k := range kids {
			if n, ok := k.(json.Number); ok {
				if id, err := n.Int64(); err == nil {
					out = append(out, id)
				}
			}
		}
		return out
	default:
		return nil
	}
}
