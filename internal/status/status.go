// Package status maps each source's raw status vocabulary onto the small set
// of buckets screens and counters work with. Every place that needs a bucket
// goes through this table; a new raw status is one edit here.
package status

import (
	"strings"

	"carecircle/internal/models"
)

// Bucket is a classified status
type Bucket string

const (
	BucketPending   Bucket = "pending"
	BucketCompleted Bucket = "completed"
	BucketMissed    Bucket = "missed"

	// Alerts use their own buckets
	BucketActive   Bucket = "active"
	BucketResolved Bucket = "resolved"
)

var itemBuckets = map[string]Bucket{
	"":                      BucketPending,
	models.StatusPending:    BucketPending,
	models.StatusInProgress: BucketPending,
	models.StatusCompleted:  BucketCompleted,
	models.StatusMissed:     BucketMissed,
	models.StatusCancelled:  BucketMissed,
	"done":                  BucketCompleted,
	"skipped":               BucketMissed,
}

var alertBuckets = map[string]Bucket{
	"":                   BucketActive,
	models.StatusActive:  BucketActive,
	models.StatusPending: BucketActive,
}

// Classify returns the bucket for a raw status of the given kind.
// Unknown non-alert statuses count as pending so that every non-alert item
// lands in exactly one of pending, completed or missed.
func Classify(kind models.Kind, raw string) Bucket {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if kind == models.KindAlert {
		if b, ok := alertBuckets[raw]; ok {
			return b
		}
		return BucketResolved
	}
	if b, ok := itemBuckets[raw]; ok {
		return b
	}
	return BucketPending
}

// Of classifies an item by its own kind and status
func Of(item models.Item) Bucket {
	return Classify(item.Kind, item.Status)
}

// IsActiveAlert reports whether the item is an alert still needing attention
func IsActiveAlert(item models.Item) bool {
	return item.Kind == models.KindAlert && Of(item) == BucketActive
}

// ParseBucket validates a bucket name coming from a request
func ParseBucket(s string) (Bucket, bool) {
	b := Bucket(strings.ToLower(strings.TrimSpace(s)))
	switch b {
	case BucketPending, BucketCompleted, BucketMissed, BucketActive, BucketResolved:
		return b, true
	}
	return "", false
}
