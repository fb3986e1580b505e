package tracking

import (
	"log/slog"
	"time"
)

// significantCommentDelta is the minimum descendant growth that counts as
// renewed activity for interest tracking.
const significantCommentDelta = 5

// Metrics is the per-story activity snapshot used to refresh interest.
type Metrics struct {
	Score       int
	Descendants int
}

// UpdateInterest merges today's observations into the interest map:
// stories with renewed activity get refreshed, quiet stories age out
// after trackingDays without change, and newly discovered stories enter
// with today's metrics. Pure function; persistence is ReplaceInterest.
func UpdateInterest(
	existing map[int64]Interest,
	newIDs map[int64]struct{},
	metrics map[int64]Metrics,
	today string,
	trackingDays int,
) map[int64]Interest {
	updated := make(map[int64]Interest, len(existing)+len(newIDs))

	for id, entry := range existing {
		m, observed := metrics[id]
		if observed && hasSignificantChange(entry, m) {
			updated[id] = Interest{
				FirstSeen:       entry.FirstSeen,
				LastUpdated:     today,
				LastScore:       m.Score,
				LastDescendants: m.Descendants,
			}
			continue
		}
		if shouldKeep(entry, today, trackingDays) {
			updated[id] = entry
		} else {
			slog.Info("story aged out of tracking",
				"story_id", id, "last_updated", entry.LastUpdated)
		}
	}

	for id := range newIDs {
		if _, present := updated[id]; present {
			continue
		}
		m := metrics[id]
		updated[id] = Interest{
			FirstSeen:       today,
			LastUpdated:     today,
			LastScore:       m.Score,
			LastDescendants: m.Descendants,
		}
	}

	return updated
}

// hasSignificantChange reports renewed activity: any score movement, or
// at least significantCommentDelta new comments.
func hasSignificantChange(entry Interest, m Metrics) bool {
	return m.Score != entry.LastScore ||
		m.Descendants-entry.LastDescendants >= significantCommentDelta
}

// shouldKeep retains quiet stories until trackingDays have passed since
// the last observed change.
func shouldKeep(entry Interest, today string, trackingDays int) bool {
	if entry.LastUpdated == "" {
		return true
	}
	last, err := time.Parse("2006-01-02", entry.LastUpdated)
	if err != nil {
		return true
	}
	now, err := time.Parse("2006-01-02", today)
	if err != nil {
		return true
	}
	return int(now.Sub(last).Hours()/24) < trackingDays
}
