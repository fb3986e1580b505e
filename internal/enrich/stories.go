// Package enrich derives analytical signals from processed records:
// temporal engagement metrics for stories, title topics via TF-IDF, and
// lexicon-based sentiment for comments.
package enrich

import (
	"math"
	"sort"
	"time"
)

// longTailAgeHours is the story age beyond which continued comment
// activity counts as long-tail engagement.
const longTailAgeHours = 48

// StoryObservation is one day's snapshot of a story, as recorded in the
// processed layer.
type StoryObservation struct {
	ID            int64
	IngestionDate string
	Score         int
	Descendants   int
	TimeUnix      int64 // story creation time
}

// StoryMetrics is the derived engagement profile for one observation.
type StoryMetrics struct {
	ScoreVelocity        float64 // points per day since the previous observation
	CommentVelocity      float64 // comments per day since the previous observation
	ObservationsInWindow int
	HoursToPeak          float64 // hours from creation to the highest-score observation
	IsLongTail           bool
}

// StoryMetricsFor computes the metrics for the current observation given
// the story's earlier observations in the tracking window. A story seen
// for the first time measures velocity against a zero baseline over one
// day.
func StoryMetricsFor(current StoryObservation, history []StoryObservation) StoryMetrics {
	prior := sortedBefore(current.IngestionDate, history)

	var m StoryMetrics
	m.ObservationsInWindow = len(prior) + 1

	if len(prior) == 0 {
		m.ScoreVelocity = round2(float64(current.Score))
		m.CommentVelocity = round2(float64(current.Descendants))
	} else {
		prev := prior[len(prior)-1]
		days := daysBetween(prev.IngestionDate, current.IngestionDate)
		m.ScoreVelocity = round2(float64(current.Score-prev.Score) / days)
		m.CommentVelocity = round2(float64(current.Descendants-prev.Descendants) / days)
	}

	peak := current
	for _, obs := range prior {
		if obs.Score > peak.Score {
			peak = obs
		}
	}
	m.HoursToPeak = hoursToPeak(current.TimeUnix, peak.IngestionDate)

	ageHours := observationAgeHours(current.TimeUnix, current.IngestionDate)
	m.IsLongTail = ageHours > longTailAgeHours && m.CommentVelocity > 0
	return m
}

// sortedBefore returns the observations strictly older than date, in
// chronological order.
func sortedBefore(date string, history []StoryObservation) []StoryObservation {
	prior := make([]StoryObservation, 0, len(history))
	for _, obs := range history {
		if obs.IngestionDate < date {
			prior = append(prior, obs)
		}
	}
	sort.Slice(prior, func(i, j int) bool {
		return prior[i].IngestionDate < prior[j].IngestionDate
	})
	return prior
}

// daysBetween returns the day distance between two ISO dates, never
// less than one so velocities stay bounded.
func daysBetween(from, to string) float64 {
	a, errA := time.Parse("2006-01-02", from)
	b, errB := time.Parse("2006-01-02", to)
	if errA != nil || errB != nil {
		return 1
	}
	days := b.Sub(a).Hours() / 24
	if days < 1 {
		return 1
	}
	return days
}

// hoursToPeak measures creation to end of the peak observation's day,
// clamped at zero for clock skew between the API and the pipeline.
func hoursToPeak(createdUnix int64, peakDate string) float64 {
	day, err := time.Parse("2006-01-02", peakDate)
	if err != nil || createdUnix <= 0 {
		return 0
	}
	hours := day.Add(24 * time.Hour).Sub(time.Unix(createdUnix, 0).UTC()).Hours()
	if hours < 0 {
		return 0
	}
	return round2(hours)
}

func observationAgeHours(createdUnix int64, date string) float64 {
	day, err := time.Parse("2006-01-02", date)
	if err != nil || createdUnix <= 0 {
		return 0
	}
	hours := day.Add(24 * time.Hour).Sub(time.Unix(createdUnix, 0).UTC()).Hours()
	if hours < 0 {
		return 0
	}
	return hours
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
