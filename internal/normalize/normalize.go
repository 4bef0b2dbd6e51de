// Package normalize turns raw source records into models.Item.
//
// Each source names the same concept differently (tasks keep their owner in
// senior_id, reminders and routines in user_id, and so on). Instead of
// probing fields at every call site, each kind gets one entry in the rules
// table below listing the candidate fields in priority order.
package normalize

import (
	"strings"

	"carecircle/internal/models"
)

type rule struct {
	id          []string
	owner       []string
	description []string
	// prefix labels the description so merged views read on their own
	prefix      string
	placeholder string
	created     []string
	scheduled   []string
	// describe overrides the description chain when set
	describe func(models.RawRecord) string
}

var (
	ownerSenior = []string{"senior_id", "seniorId", "user_id", "userId"}
	ownerUser   = []string{"user_id", "userId", "senior_id", "seniorId"}
)

var rules = map[models.Kind]rule{
	models.KindTask: {
		id:          []string{"id", "task_id", "taskId"},
		owner:       ownerSenior,
		description: []string{"title", "description", "name"},
		placeholder: "Task",
		created:     []string{"created_at", "createdAt"},
		scheduled:   []string{"due_date", "dueDate", "scheduled_time", "scheduledTime"},
	},
	models.KindReminder: {
		id:          []string{"id", "reminder_id", "reminderId"},
		owner:       ownerUser,
		description: []string{"title", "description", "message"},
		prefix:      "Reminder: ",
		placeholder: "Reminder",
		created:     []string{"created_at", "createdAt"},
		scheduled:   []string{"scheduled_time", "scheduledTime", "time", "date"},
	},
	models.KindRoutine: {
		id:          []string{"id", "routine_id", "routineId"},
		owner:       ownerUser,
		description: []string{"name", "title", "description"},
		prefix:      "Routine: ",
		placeholder: "Routine",
		created:     []string{"created_at", "createdAt"},
		scheduled:   []string{"time", "scheduled_time", "scheduledTime"},
	},
	models.KindAlert: {
		id:          []string{"id", "alert_id", "alertId"},
		owner:       ownerSenior,
		description: []string{"message", "title", "type"},
		placeholder: "Alert",
		created:     []string{"created_at", "createdAt", "timestamp"},
	},
	models.KindCheckIn: {
		id:          []string{"id", "check_in_id", "checkInId"},
		owner:       ownerSenior,
		placeholder: "Check-in",
		created:     []string{"created_at", "createdAt", "timestamp"},
		describe:    describeCheckIn,
	},
	models.KindHealthLog: {
		id:          []string{"id", "log_id", "logId"},
		owner:       ownerSenior,
		placeholder: "Health log",
		created:     []string{"logged_at", "loggedAt", "created_at", "createdAt"},
		describe:    describeHealthLog,
	},
}

// Normalize maps a raw record of the given kind onto the common Item shape.
// Missing fields fall back along the kind's chain and finally to a
// placeholder; a record is never dropped.
func Normalize(kind models.Kind, raw models.RawRecord) models.Item {
	r, ok := rules[kind]
	if !ok {
		r = rule{
			id:          []string{"id"},
			owner:       ownerSenior,
			description: []string{"title", "description"},
			placeholder: "Item",
			created:     []string{"created_at", "createdAt"},
		}
	}

	item := models.Item{
		ID:       first(raw, r.id),
		SeniorID: first(raw, r.owner),
		Kind:     kind,
		Status:   strings.ToLower(strings.TrimSpace(first(raw, []string{"status"}))),
	}

	var text string
	if r.describe != nil {
		text = r.describe(raw)
	} else {
		text = first(raw, r.description)
	}
	if text == "" {
		item.Description = r.placeholder
	} else {
		item.Description = r.prefix + text
	}

	if kind == models.KindTask && item.Status == models.StatusInProgress {
		item.Status = models.StatusPending
	}

	item.CreatedAt = firstTime(raw, r.created)
	item.ScheduledAt = firstTime(raw, r.scheduled)
	return item
}

// All normalizes a whole delivery, preserving source order
func All(kind models.Kind, records []models.RawRecord) []models.Item {
	items := make([]models.Item, 0, len(records))
	for _, rec := range records {
		items = append(items, Normalize(kind, rec))
	}
	return items
}

func describeCheckIn(raw models.RawRecord) string {
	mood := first(raw, []string{"mood"})
	notes := first(raw, []string{"notes", "note", "message"})
	switch {
	case mood != "" && notes != "":
		return "Check-in: " + mood + " - " + notes
	case mood != "":
		return "Check-in: " + mood
	case notes != "":
		return "Check-in: " + notes
	}
	return ""
}

func describeHealthLog(raw models.RawRecord) string {
	typ := first(raw, []string{"type", "metric"})
	value := first(raw, []string{"value", "reading"})
	unit := first(raw, []string{"unit"})
	if value != "" && unit != "" {
		value += " " + unit
	}
	switch {
	case typ != "" && value != "":
		return typ + ": " + value
	case typ != "":
		return typ
	case value != "":
		return value
	}
	return first(raw, []string{"notes"})
}
