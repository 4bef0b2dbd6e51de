// Package feed turns SQL tables into live queries by polling.
//
// Every subscription loads its full result set once up front, then again on
// each tick of the poll interval. A result is delivered only when its
// fingerprint differs from the last delivered one, so subscribers see the
// same "full snapshot on change" stream a push database would give them.
package feed

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"carecircle/internal/live"
	"carecircle/internal/models"
	"carecircle/internal/repository"
)

// Options tunes polling
type Options struct {
	// Interval is the polling frequency. Default: 2s.
	Interval time.Duration
	// ChunkSize bounds the number of ids in one IN list. Default: 30.
	ChunkSize int
	Logger    *zap.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = 2 * time.Second
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = 30
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// RecordLister is the read side of the record tables
type RecordLister interface {
	ListByOwners(ctx context.Context, kind models.Kind, ownerIDs []string) ([]models.RawRecord, error)
}

// AssignmentLister is the read side of the assignments table
type AssignmentLister interface {
	ListSeniorIDs(ctx context.Context, careManagerID int64) ([]string, error)
}

// Stats are point-in-time counters
type Stats struct {
	Subscriptions int64 `json:"subscriptions"`
	Polls         int64 `json:"polls"`
	Deliveries    int64 `json:"deliveries"`
	Errors        int64 `json:"errors"`
}

// SQLFeed implements live.RecordSource and live.AssignmentFeed over the
// repositories.
type SQLFeed struct {
	records     RecordLister
	assignments AssignmentLister
	opts        Options

	active     atomic.Int64
	polls      atomic.Int64
	deliveries atomic.Int64
	errors     atomic.Int64
}

var (
	_ live.RecordSource   = (*SQLFeed)(nil)
	_ live.AssignmentFeed = (*SQLFeed)(nil)
)

// New creates a feed. Nothing is polled until something subscribes.
func New(records RecordLister, assignments AssignmentLister, opts Options) *SQLFeed {
	opts.defaults()
	return &SQLFeed{records: records, assignments: assignments, opts: opts}
}

// Stats returns the current counters
func (f *SQLFeed) Stats() Stats {
	return Stats{
		Subscriptions: f.active.Load(),
		Polls:         f.polls.Load(),
		Deliveries:    f.deliveries.Load(),
		Errors:        f.errors.Load(),
	}
}

// Subscribe implements live.RecordSource. The first load runs before it
// returns; its failure is returned as the subscription error.
func (f *SQLFeed) Subscribe(ctx context.Context, kind models.Kind, seniorIDs []string) (<-chan live.Delivery, error) {
	if _, err := repository.OwnerColumn(kind); err != nil {
		return nil, err
	}
	ids := append([]string(nil), seniorIDs...)
	load := func(ctx context.Context) ([]models.RawRecord, error) {
		return f.loadRecords(ctx, kind, ids)
	}

	first, err := load(ctx)
	if err != nil {
		f.errors.Add(1)
		return nil, fmt.Errorf("failed to load %s records: %w", kind, err)
	}

	out := make(chan live.Delivery)
	log := f.opts.Logger.With(zap.String("kind", string(kind)), zap.Int("seniors", len(ids)))
	go func() {
		defer close(out)
		run(ctx, f, log, first, load, fingerprintRecords, func(recs []models.RawRecord, err error) live.Delivery {
			return live.Delivery{Records: recs, Err: err}
		}, out)
	}()
	return out, nil
}

// SubscribeAssignedSeniorIDs implements live.AssignmentFeed. userID must be
// a numeric user id.
func (f *SQLFeed) SubscribeAssignedSeniorIDs(ctx context.Context, userID string) (<-chan live.AssignmentDelivery, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	load := func(ctx context.Context) ([]string, error) {
		return f.assignments.ListSeniorIDs(ctx, id)
	}

	first, err := load(ctx)
	if err != nil {
		f.errors.Add(1)
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}

	out := make(chan live.AssignmentDelivery)
	log := f.opts.Logger.With(zap.String("user_id", userID))
	go func() {
		defer close(out)
		run(ctx, f, log, first, load, fingerprintIDs, func(ids []string, err error) live.AssignmentDelivery {
			return live.AssignmentDelivery{SeniorIDs: ids, Err: err}
		}, out)
	}()
	return out, nil
}

// loadRecords queries ids in chunks and concatenates the results in chunk
// order.
func (f *SQLFeed) loadRecords(ctx context.Context, kind models.Kind, ids []string) ([]models.RawRecord, error) {
	out := []models.RawRecord{}
	for _, chunk := range Chunk(ids, f.opts.ChunkSize) {
		recs, err := f.records.ListByOwners(ctx, kind, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// run delivers first, then polls until ctx is done. An error is delivered
// once per failure streak; the next success is always delivered.
func run[T any, D any](ctx context.Context, f *SQLFeed, log *zap.Logger, first T,
	load func(context.Context) (T, error), fingerprint func(T) uint64,
	wrap func(T, error) D, out chan<- D) {
	f.active.Add(1)
	defer f.active.Add(-1)

	send := func(d D) bool {
		select {
		case <-ctx.Done():
			return false
		case out <- d:
			f.deliveries.Add(1)
			return true
		}
	}

	last := fingerprint(first)
	if !send(wrap(first, nil)) {
		return
	}

	ticker := time.NewTicker(f.opts.Interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		f.polls.Add(1)
		cur, err := load(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.errors.Add(1)
			log.Warn("poll failed", zap.Error(err))
			if !failing {
				failing = true
				var zero T
				if !send(wrap(zero, err)) {
					return
				}
			}
			continue
		}

		fp := fingerprint(cur)
		if fp == last && !failing {
			continue
		}
		failing = false
		last = fp
		log.Debug("result set changed")
		if !send(wrap(cur, nil)) {
			return
		}
	}
}

// Chunk splits ids into consecutive slices of at most size ids
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func fingerprintIDs(ids []string) uint64 {
	h := fnv.New64a()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func fingerprintRecords(recs []models.RawRecord) uint64 {
	h := fnv.New64a()
	keys := make([]string, 0, 8)
	for _, rec := range recs {
		keys = keys[:0]
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(h, "%s=%v\x1f", k, formatValue(rec[k]))
		}
		h.Write([]byte{0x1e})
	}
	return h.Sum64()
}

func formatValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}
