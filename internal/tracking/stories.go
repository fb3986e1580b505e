package tracking

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GetStory returns the fetch record for (storyID, date), or ErrNotFound.
func (s *Store) GetStory(storyID int64, date string) (*StoryRecord, error) {
	row := s.db.QueryRow(`
		SELECT story_id, ingestion_date, status, comments_fetched, fetched_ids, attempts, created_at, updated_at
		FROM story_fetch WHERE story_id = ? AND ingestion_date = ?`, storyID, date)
	return scanStory(row)
}

// UpsertStory writes the fetch record, overwriting by (story_id, date).
// UpdatedAt is stamped here; CreatedAt is preserved on conflict.
func (s *Store) UpsertStory(rec *StoryRecord) error {
	ids, err := json.Marshal(rec.FetchedIDs)
	if err != nil {
		return fmt.Errorf("marshaling fetched ids: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO story_fetch (story_id, ingestion_date, status, comments_fetched, fetched_ids, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (story_id, ingestion_date) DO UPDATE SET
			status = excluded.status,
			comments_fetched = excluded.comments_fetched,
			fetched_ids = excluded.fetched_ids,
			attempts = excluded.attempts,
			updated_at = excluded.updated_at`,
		rec.StoryID, rec.IngestionDate, string(rec.Status), rec.CommentsFetched,
		string(ids), rec.Attempts, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting story %d: %w", rec.StoryID, err)
	}
	return nil
}

// ListByStatus returns all fetch records for a date with the given status.
func (s *Store) ListByStatus(date string, status FetchStatus) ([]StoryRecord, error) {
	rows, err := s.db.Query(`
		SELECT story_id, ingestion_date, status, comments_fetched, fetched_ids, attempts, created_at, updated_at
		FROM story_fetch WHERE ingestion_date = ? AND status = ?
		ORDER BY story_id ASC`, date, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing %s stories: %w", status, err)
	}
	defer rows.Close()

	var records []StoryRecord
	for rows.Next() {
		rec, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row rowScanner) (*StoryRecord, error) {
	var rec StoryRecord
	var status, ids, createdAt, updatedAt string
	err := row.Scan(&rec.StoryID, &rec.IngestionDate, &status, &rec.CommentsFetched,
		&ids, &rec.Attempts, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning story record: %w", err)
	}
	rec.Status = FetchStatus(status)
	if err := json.Unmarshal([]byte(ids), &rec.FetchedIDs); err != nil {
		return nil, fmt.Errorf("decoding fetched ids: %w", err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &rec, nil
}

// ActiveStories returns the ids currently under interest tracking, in
// ascending order.
func (s *Store) ActiveStories() ([]int64, error) {
	rows, err := s.db.Query("SELECT story_id FROM story_interest ORDER BY story_id ASC")
	if err != nil {
		return nil, fmt.Errorf("listing active stories: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning active story id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadInterest returns the full interest-tracking map.
func (s *Store) LoadInterest() (map[int64]Interest, error) {
	rows, err := s.db.Query(`
		SELECT story_id, first_seen, last_updated, last_score, last_descendants
		FROM story_interest`)
	if err != nil {
		return nil, fmt.Errorf("loading interest tracking: %w", err)
	}
	defer rows.Close()

	interest := make(map[int64]Interest)
	for rows.Next() {
		var id int64
		var entry Interest
		if err := rows.Scan(&id, &entry.FirstSeen, &entry.LastUpdated,
			&entry.LastScore, &entry.LastDescendants); err != nil {
			return nil, fmt.Errorf("scanning interest row: %w", err)
		}
		interest[id] = entry
	}
	return interest, rows.Err()
}

// ReplaceInterest swaps the whole interest map in one transaction. The
// ingest stage computes the new map from scratch each run, so a full
// replace keeps the table and the in-memory view trivially consistent.
func (s *Store) ReplaceInterest(interest map[int64]Interest) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning interest transaction: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM story_interest"); err != nil {
		tx.Rollback()
		return fmt.Errorf("clearing interest tracking: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO story_interest (story_id, first_seen, last_updated, last_score, last_descendants)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing interest insert: %w", err)
	}
	defer stmt.Close()

	for id, entry := range interest {
		if _, err := stmt.Exec(id, entry.FirstSeen, entry.LastUpdated,
			entry.LastScore, entry.LastDescendants); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting interest for story %d: %w", id, err)
		}
	}
	return tx.Commit()
}
