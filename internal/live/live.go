// Package live connects external live queries to a reconciliation store.
//
// A Controller follows one user's assignment feed. Every time the set of
// assigned seniors changes it tears down the running Adapters, starts a new
// store generation and subscribes one Adapter per source kind against the
// new set. Adapters normalize each full delivery and replace their kind's
// snapshot; deliveries from a torn-down generation are dropped.
package live

import (
	"context"
	"errors"

	"carecircle/internal/models"
)

// ErrAssignmentsUnavailable means no senior list could be obtained at all.
// It is the only failure that surfaces as "unable to load".
var ErrAssignmentsUnavailable = errors.New("assigned seniors unavailable")

// Delivery is one push from a record source: the complete matching result
// set, or an error.
type Delivery struct {
	Records []models.RawRecord
	Err     error
}

// AssignmentDelivery is one push from the assignment feed: the complete
// current list of assigned senior ids, or an error.
type AssignmentDelivery struct {
	SeniorIDs []string
	Err       error
}

// RecordSource establishes live queries for records of one kind whose owner
// is in seniorIDs. Implementations deliver the full current result set on
// subscribe and after every change, and close the channel once ctx is done.
type RecordSource interface {
	Subscribe(ctx context.Context, kind models.Kind, seniorIDs []string) (<-chan Delivery, error)
}

// AssignmentFeed streams the senior ids assigned to a user. Implementations
// deliver the current list on subscribe and after every change, and close
// the channel once ctx is done.
type AssignmentFeed interface {
	SubscribeAssignedSeniorIDs(ctx context.Context, userID string) (<-chan AssignmentDelivery, error)
}

// ErrorPolicy decides what a failing source leaves behind
type ErrorPolicy int

const (
	// DegradeToEmpty empties the kind's snapshot and labels it degraded
	DegradeToEmpty ErrorPolicy = iota
	// RetainLastGood keeps the previous snapshot and labels it stale
	RetainLastGood
)
