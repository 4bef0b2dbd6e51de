// Package reconcile holds the latest snapshot of every source kind and the
// merged view derived from them.
//
// Snapshots are replaced wholesale per kind, never appended to or patched.
// The merged view and its counters are recomputed together under the store
// lock on every replace, so a reader never sees one without the other.
package reconcile

import (
	"sort"
	"sync"
	"time"

	"carecircle/internal/aggregate"
	"carecircle/internal/models"
)

// Health labels a kind whose snapshot is not a fresh delivery
type Health string

const (
	// HealthDegraded: the source failed and its snapshot was emptied
	HealthDegraded Health = "degraded"
	// HealthStale: the source failed and the last good snapshot was kept
	HealthStale Health = "stale"
)

// SourceState describes a kind that is not healthy
type SourceState struct {
	Health Health    `json:"health"`
	Error  string    `json:"error"`
	Since  time.Time `json:"since"`
}

// View is a consistent read of the store
type View struct {
	Items      []models.Item               `json:"items"`
	Counters   aggregate.Counters          `json:"counters"`
	Version    uint64                      `json:"version"`
	Generation uint64                      `json:"generation"`
	Sources    map[models.Kind]SourceState `json:"sources,omitempty"`
}

// Store is the single piece of mutable shared state of a session
type Store struct {
	mu         sync.RWMutex
	snapshots  map[models.Kind][]models.Item
	sources    map[models.Kind]SourceState
	merged     []models.Item
	counters   aggregate.Counters
	version    uint64
	generation uint64

	subMu sync.Mutex
	subs  map[int]chan struct{}
	next  int
}

// NewStore creates an empty store at generation zero
func NewStore() *Store {
	return &Store{
		snapshots: make(map[models.Kind][]models.Item),
		sources:   make(map[models.Kind]SourceState),
		subs:      make(map[int]chan struct{}),
	}
}

// Replace installs items as the complete snapshot for kind, regardless of
// generation. Calling it twice with the same arguments is the same as
// calling it once. Only the kinds in models.AllKinds take part in the
// merged view.
func (s *Store) Replace(kind models.Kind, items []models.Item) {
	s.mu.Lock()
	s.replaceLocked(kind, items)
	s.mu.Unlock()
	s.notify()
}

// ReplaceAt installs a snapshot delivered by a subscription of generation
// gen. Deliveries from any other generation are discarded and false is
// returned.
func (s *Store) ReplaceAt(gen uint64, kind models.Kind, items []models.Item) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}
	s.replaceLocked(kind, items)
	s.mu.Unlock()
	s.notify()
	return true
}

// FailAt records a source failure for kind. With retain false the snapshot
// is emptied and the kind labelled degraded; with retain true the previous
// items stay and the kind is labelled stale. Stale generations are ignored.
func (s *Store) FailAt(gen uint64, kind models.Kind, err error, retain bool) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}
	state := SourceState{Health: HealthDegraded, Since: time.Now()}
	if err != nil {
		state.Error = err.Error()
	}
	if retain {
		state.Health = HealthStale
	} else {
		delete(s.snapshots, kind)
	}
	s.sources[kind] = state
	s.recomputeLocked()
	s.mu.Unlock()
	s.notify()
	return true
}

// Rebase starts a new subscription generation. Items whose senior is not
// accepted by keep are dropped from every snapshot in the same step, so a
// senior that left the watch set disappears before new subscriptions
// deliver. A nil keep clears everything.
func (s *Store) Rebase(keep func(seniorID string) bool) uint64 {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	for kind, items := range s.snapshots {
		if keep == nil {
			delete(s.snapshots, kind)
			continue
		}
		kept := items[:0:0]
		for _, item := range items {
			if keep(item.SeniorID) {
				kept = append(kept, item)
			}
		}
		s.snapshots[kind] = kept
	}
	s.sources = make(map[models.Kind]SourceState)
	s.recomputeLocked()
	s.mu.Unlock()
	s.notify()
	return gen
}

// Clear empties every snapshot and starts a new generation
func (s *Store) Clear() uint64 {
	return s.Rebase(nil)
}

// Generation returns the current subscription generation
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// MergedView returns the sorted union of all snapshots, truncated to limit
// items when limit > 0.
func (s *Store) MergedView(limit int) []models.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return aggregate.Preview(s.merged, limit)
}

// Counters returns counters computed over the full merged view
func (s *Store) Counters() aggregate.Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters
}

// SnapshotOf returns the current items of one kind
func (s *Store) SnapshotOf(kind models.Kind) []models.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return aggregate.Preview(s.snapshots[kind], 0)
}

// Snapshot returns items, counters and labels from the same recompute
func (s *Store) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := View{
		Items:      aggregate.Preview(s.merged, 0),
		Counters:   s.counters,
		Version:    s.version,
		Generation: s.generation,
	}
	if len(s.sources) > 0 {
		v.Sources = make(map[models.Kind]SourceState, len(s.sources))
		for k, st := range s.sources {
			v.Sources[k] = st
		}
	}
	return v
}

// Subscribe returns a channel that receives a signal after every change.
// Signals coalesce: a slow reader sees at most one pending signal and should
// read Snapshot for the latest state. The returned func unsubscribes.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) replaceLocked(kind models.Kind, items []models.Item) {
	s.snapshots[kind] = dedupe(items)
	delete(s.sources, kind)
	s.recomputeLocked()
}

// recomputeLocked rebuilds the merged view and counters in one pass
func (s *Store) recomputeLocked() {
	var total int
	for _, items := range s.snapshots {
		total += len(items)
	}
	merged := make([]models.Item, 0, total)
	for _, kind := range models.AllKinds {
		merged = append(merged, s.snapshots[kind]...)
	}
	SortByRecency(merged)

	s.merged = merged
	s.counters = aggregate.Count(merged)
	s.version++
}

// SortByRecency orders items newest first by creation time. Items without a
// creation time go last. The sort is stable so equal keys keep their
// relative order across recomputes.
func SortByRecency(items []models.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].CreatedAt, items[j].CreatedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
}

// dedupe keeps the first occurrence of each id within one delivery. Items
// without an id cannot be told apart and are all kept.
func dedupe(items []models.Item) []models.Item {
	seen := make(map[string]bool, len(items))
	out := make([]models.Item, 0, len(items))
	for _, item := range items {
		if item.ID != "" {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
		}
		out = append(out, item)
	}
	return out
}
