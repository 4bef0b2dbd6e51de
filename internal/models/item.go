package models

import "time"

// Kind identifies one category of live care data
type Kind string

const (
	KindTask      Kind = "task"
	KindReminder  Kind = "reminder"
	KindRoutine   Kind = "routine"
	KindAlert     Kind = "alert"
	KindCheckIn   Kind = "checkin"
	KindHealthLog Kind = "healthlog"
)

// AllKinds lists every source kind in merge order. Snapshots are
// concatenated in this order before sorting, so ties resolve the same way
// no matter which source delivered first.
var AllKinds = []Kind{KindTask, KindReminder, KindRoutine, KindAlert, KindCheckIn, KindHealthLog}

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Raw status vocabulary as stored by the sources. An empty status means the
// field was absent on the record.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusMissed     = "missed"
	StatusCancelled  = "cancelled"
	StatusActive     = "active"
	StatusResolved   = "resolved"
)

// RawRecord is one record exactly as a source delivered it. Field names vary
// per kind and per backend, the normalizer absorbs the differences.
type RawRecord map[string]any

// Item is the normalized shape shared by every source kind
type Item struct {
	ID          string     `json:"id"`
	SeniorID    string     `json:"senior_id"`
	Kind        Kind       `json:"kind"`
	Description string     `json:"description"`
	Status      string     `json:"status,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// DisplayTime returns the time a screen should show for the item:
// the scheduled time when present, the creation time otherwise.
func (i Item) DisplayTime() *time.Time {
	if i.ScheduledAt != nil {
		return i.ScheduledAt
	}
	return i.CreatedAt
}
