// Package report materializes the analytical summaries for a date: the
// output-layer partitions are loaded into an in-memory SQLite database,
// the report queries run as SQL, and the results land as CSV files in
// the lake's output area with replace semantics.
package report

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/Gerardo1909/hn-analytical-platform/internal/lake"
)

// Generator builds the per-date report set.
type Generator struct {
	lake *lake.Store
	dir  string // reports root, one ingestion_date=<date> directory per day
}

// NewGenerator creates a Generator writing under dir.
func NewGenerator(lakeStore *lake.Store, dir string) *Generator {
	return &Generator{lake: lakeStore, dir: dir}
}

// reportQuery is one named report backed by a SQL statement.
type reportQuery struct {
	name  string
	query string
}

var reportQueries = []reportQuery{
	{
		name: "top_stories_by_velocity",
		query: `
			SELECT id, title, score, score_velocity, comment_velocity
			FROM stories
			ORDER BY score_velocity DESC, id ASC
			LIMIT 10`,
	},
	{
		name: "engagement_speed",
		query: `
			SELECT
				CASE
					WHEN hours_to_peak <= 6 THEN 'fast'
					WHEN hours_to_peak <= 24 THEN 'medium'
					ELSE 'slow'
				END AS speed,
				COUNT(*) AS stories,
				ROUND(AVG(score), 2) AS avg_score,
				ROUND(AVG(comment_velocity), 2) AS avg_comment_velocity
			FROM stories
			GROUP BY speed
			ORDER BY stories DESC, speed ASC`,
	},
	{
		name: "long_tail_stories",
		query: `
			SELECT id, title, score, comment_velocity, observations_in_window
			FROM stories
			WHERE is_long_tail = 1
			ORDER BY comment_velocity DESC, id ASC`,
	},
	{
		name: "sentiment_by_story",
		query: `
			SELECT s.id, s.title,
				COUNT(c.id) AS total_comments,
				ROUND(AVG(c.sentiment_score), 4) AS avg_sentiment,
				SUM(CASE WHEN c.sentiment_label = 'positive' THEN 1 ELSE 0 END) AS positive,
				SUM(CASE WHEN c.sentiment_label = 'negative' THEN 1 ELSE 0 END) AS negative,
				SUM(CASE WHEN c.sentiment_label = 'neutral' THEN 1 ELSE 0 END) AS neutral
			FROM stories s
			JOIN comments c ON c.story_id = s.id
			GROUP BY s.id, s.title
			ORDER BY total_comments DESC, s.id ASC`,
	},
	{
		name: "topic_frequency",
		query: `
			SELECT topic, COUNT(*) AS stories
			FROM story_topics
			GROUP BY topic
			ORDER BY stories DESC, topic ASC`,
	},
}

// Generate builds every report for the date and returns row counts per
// report name. The report directory is replaced wholesale: results are
// staged and published with a rename so a failed run never leaves a
// half-written report set.
func (g *Generator) Generate(ctx context.Context, date string) (map[string]int, error) {
	stories, err := g.lake.Load(lake.LayerOutput, "stories", date)
	if err != nil {
		return nil, fmt.Errorf("loading output stories: %w", err)
	}
	comments, err := g.lake.Load(lake.LayerOutput, "comments", date)
	if err != nil {
		return nil, fmt.Errorf("loading output comments: %w", err)
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening report database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := loadTables(ctx, db, stories, comments); err != nil {
		return nil, err
	}

	final := filepath.Join(g.dir, "ingestion_date="+date)
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating reports root: %w", err)
	}
	staging, err := os.MkdirTemp(g.dir, ".staging-")
	if err != nil {
		return nil, fmt.Errorf("creating report staging: %w", err)
	}
	defer os.RemoveAll(staging)

	counts := make(map[string]int, len(reportQueries))
	for _, rq := range reportQueries {
		n, err := writeCSV(ctx, db, rq, filepath.Join(staging, rq.name+".csv"))
		if err != nil {
			return nil, fmt.Errorf("report %s: %w", rq.name, err)
		}
		counts[rq.name] = n
	}

	// Retire the previous report set, publish the new one, then discard
	// the retired copy; a failed publish rename restores it.
	retired := final + ".retired"
	hadPrevious := false
	if _, err := os.Stat(final); err == nil {
		os.RemoveAll(retired)
		if err := os.Rename(final, retired); err != nil {
			return nil, fmt.Errorf("retiring previous reports: %w", err)
		}
		hadPrevious = true
	}
	if err := os.Rename(staging, final); err != nil {
		if hadPrevious {
			if restoreErr := os.Rename(retired, final); restoreErr != nil {
				slog.Error("failed to restore retired reports",
					"dir", final, "error", restoreErr)
			}
		}
		return nil, fmt.Errorf("publishing reports: %w", err)
	}
	if hadPrevious {
		os.RemoveAll(retired)
	}
	slog.Info("reports generated", "date", date, "dir", final, "reports", len(counts))
	return counts, nil
}

// loadTables creates the report schema and bulk-inserts the partitions.
// Topics are exploded into one row per (story, topic) so frequency is a
// plain GROUP BY.
func loadTables(ctx context.Context, db *sql.DB, stories, comments []lake.Record) error {
	const schema = `
		CREATE TABLE stories (
			id INTEGER PRIMARY KEY,
			title TEXT,
			score INTEGER,
			score_velocity REAL,
			comment_velocity REAL,
			observations_in_window INTEGER,
			hours_to_peak REAL,
			is_long_tail INTEGER
		);
		CREATE TABLE comments (
			id INTEGER PRIMARY KEY,
			story_id INTEGER,
			sentiment_score REAL,
			sentiment_label TEXT
		);
		CREATE TABLE story_topics (
			story_id INTEGER,
			topic TEXT
		);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating report schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning report load: %w", err)
	}
	defer tx.Rollback()

	storyStmt, err := tx.Prepare(`
		INSERT INTO stories (id, title, score, score_velocity, comment_velocity,
			observations_in_window, hours_to_peak, is_long_tail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer storyStmt.Close()
	topicStmt, err := tx.Prepare(`INSERT INTO story_topics (story_id, topic) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer topicStmt.Close()

	for _, rec := range stories {
		id, ok := lake.RecordID(rec)
		if !ok {
			continue
		}
		title, _ := rec["title"].(string)
		longTail := 0
		if lt, ok := rec["is_long_tail"].(bool); ok && lt {
			longTail = 1
		}
		if _, err := storyStmt.Exec(id, title,
			intField(rec, "score"), floatField(rec, "score_velocity"),
			floatField(rec, "comment_velocity"), intField(rec, "observations_in_window"),
			floatField(rec, "hours_to_peak"), longTail); err != nil {
			return fmt.Errorf("inserting story %d: %w", id, err)
		}
		if topics, ok := rec["topics"].(string); ok && topics != "" {
			for _, topic := range splitTopics(topics) {
				if _, err := topicStmt.Exec(id, topic); err != nil {
					return fmt.Errorf("inserting topic for story %d: %w", id, err)
				}
			}
		}
	}

	commentStmt, err := tx.Prepare(`
		INSERT INTO comments (id, story_id, sentiment_score, sentiment_label)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer commentStmt.Close()
	for _, rec := range comments {
		id, ok := lake.RecordID(rec)
		if !ok {
			continue
		}
		label, _ := rec["sentiment_label"].(string)
		if _, err := commentStmt.Exec(id, intField(rec, "story_id"),
			floatField(rec, "sentiment_score"), label); err != nil {
			return fmt.Errorf("inserting comment %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// writeCSV runs one report query and streams the result set, header
// included, into a CSV file. Returns the data row count.
func writeCSV(ctx context.Context, db *sql.DB, rq reportQuery, path string) (int, error) {
	rows, err := db.QueryContext(ctx, rq.query)
	if err != nil {
		return 0, fmt.Errorf("querying: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating csv: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)

	if err := w.Write(cols); err != nil {
		return 0, err
	}
	count := 0
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return 0, fmt.Errorf("scanning row: %w", err)
		}
		record := make([]string, len(cols))
		for i, v := range values {
			record[i] = cell(v)
		}
		if err := w.Write(record); err != nil {
			return 0, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, err
	}
	return count, f.Sync()
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return fmt.Sprintf("%d", x)
	case float64:
		return trimFloat(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// trimFloat renders whole floats without a trailing ".0" noise.
func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

func splitTopics(topics string) []string {
	parts := strings.Split(topics, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intField(rec lake.Record, field string) int64 {
	v, _ := lake.IntField(rec, field)
	return v
}

func floatField(rec lake.Record, field string) float64 {
	switch v := rec[field].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}
