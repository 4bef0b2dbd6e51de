// Package aggregate derives counters and bounded previews from a merged view.
// Everything here is recomputed from the full view on each change; nothing is
// patched incrementally.
package aggregate

import (
	"sort"
	"time"

	"carecircle/internal/models"
	"carecircle/internal/status"
)

// Counters are the tallies shown on dashboards
type Counters struct {
	Completed    int `json:"completed"`
	Pending      int `json:"pending"`
	Missed       int `json:"missed"`
	ActiveAlerts int `json:"active_alerts"`
}

// Count tallies a full (untruncated) view. Non-alert items land in exactly
// one of completed, pending or missed; alerts only ever add to ActiveAlerts.
func Count(items []models.Item) Counters {
	var c Counters
	for _, item := range items {
		c.add(item)
	}
	return c
}

func (c *Counters) add(item models.Item) {
	if item.Kind == models.KindAlert {
		if status.IsActiveAlert(item) {
			c.ActiveAlerts++
		}
		return
	}
	switch status.Of(item) {
	case status.BucketCompleted:
		c.Completed++
	case status.BucketMissed:
		c.Missed++
	default:
		c.Pending++
	}
}

// Total is the number of non-alert items counted
func (c Counters) Total() int {
	return c.Completed + c.Pending + c.Missed
}

// Preview returns the first n items of an already sorted view.
// n <= 0 means no bound.
func Preview(items []models.Item, n int) []models.Item {
	if n <= 0 || n >= len(items) {
		out := make([]models.Item, len(items))
		copy(out, items)
		return out
	}
	out := make([]models.Item, n)
	copy(out, items[:n])
	return out
}

// Upcoming returns pending items scheduled at or after now, soonest first,
// bounded to n.
func Upcoming(items []models.Item, now time.Time, n int) []models.Item {
	var out []models.Item
	for _, item := range items {
		if item.Kind == models.KindAlert || item.ScheduledAt == nil {
			continue
		}
		if status.Of(item) != status.BucketPending || item.ScheduledAt.Before(now) {
			continue
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScheduledAt.Before(*out[j].ScheduledAt)
	})
	return Preview(out, n)
}

// FilterKind keeps items of the given kinds, preserving order
func FilterKind(items []models.Item, kinds ...models.Kind) []models.Item {
	want := make(map[models.Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []models.Item
	for _, item := range items {
		if want[item.Kind] {
			out = append(out, item)
		}
	}
	return out
}

// FilterSenior keeps items owned by one senior, preserving order
func FilterSenior(items []models.Item, seniorID string) []models.Item {
	var out []models.Item
	for _, item := range items {
		if item.SeniorID == seniorID {
			out = append(out, item)
		}
	}
	return out
}

// BySenior computes counters per owning senior
func BySenior(items []models.Item) map[string]Counters {
	out := make(map[string]Counters)
	for _, item := range items {
		c := out[item.SeniorID]
		c.add(item)
		out[item.SeniorID] = c
	}
	return out
}

// GroupByBucket splits items by classified bucket, preserving order within
// each bucket.
func GroupByBucket(items []models.Item) map[status.Bucket][]models.Item {
	out := make(map[status.Bucket][]models.Item)
	for _, item := range items {
		b := status.Of(item)
		out[b] = append(out[b], item)
	}
	return out
}
