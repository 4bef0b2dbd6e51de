package live

import (
	"context"
	"sync"

	"carecircle/internal/models"
	"carecircle/internal/normalize"
)

// MemorySource is an in-process RecordSource and AssignmentFeed. Records and
// assignments are published as complete sets; every matching subscriber
// receives the new full result. A slow subscriber only sees the latest set.
type MemorySource struct {
	mu          sync.Mutex
	records     map[models.Kind][]models.RawRecord
	assignments map[string][]string
	recordSubs  map[*mailbox[Delivery]]recordFilter
	assignSubs  map[*mailbox[AssignmentDelivery]]string

	subscribeErr map[models.Kind]error
	assignErr    error
}

type recordFilter struct {
	kind    models.Kind
	seniors map[string]bool
}

// NewMemorySource creates an empty source
func NewMemorySource() *MemorySource {
	return &MemorySource{
		records:      make(map[models.Kind][]models.RawRecord),
		assignments:  make(map[string][]string),
		recordSubs:   make(map[*mailbox[Delivery]]recordFilter),
		assignSubs:   make(map[*mailbox[AssignmentDelivery]]string),
		subscribeErr: make(map[models.Kind]error),
	}
}

// Subscribe implements RecordSource
func (m *MemorySource) Subscribe(ctx context.Context, kind models.Kind, seniorIDs []string) (<-chan Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.subscribeErr[kind]; err != nil {
		return nil, err
	}

	f := recordFilter{kind: kind, seniors: make(map[string]bool, len(seniorIDs))}
	for _, id := range seniorIDs {
		f.seniors[id] = true
	}
	box := newMailbox[Delivery]()
	m.recordSubs[box] = f
	box.put(Delivery{Records: m.matchLocked(f)})

	go func() {
		box.forward(ctx)
		m.mu.Lock()
		delete(m.recordSubs, box)
		m.mu.Unlock()
	}()
	return box.out, nil
}

// SubscribeAssignedSeniorIDs implements AssignmentFeed
func (m *MemorySource) SubscribeAssignedSeniorIDs(ctx context.Context, userID string) (<-chan AssignmentDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assignErr != nil {
		return nil, m.assignErr
	}

	box := newMailbox[AssignmentDelivery]()
	m.assignSubs[box] = userID
	box.put(AssignmentDelivery{SeniorIDs: append([]string(nil), m.assignments[userID]...)})

	go func() {
		box.forward(ctx)
		m.mu.Lock()
		delete(m.assignSubs, box)
		m.mu.Unlock()
	}()
	return box.out, nil
}

// SetRecords replaces every record of kind and pushes the new results
func (m *MemorySource) SetRecords(kind models.Kind, records []models.RawRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[kind] = append([]models.RawRecord(nil), records...)
	for box, f := range m.recordSubs {
		if f.kind == kind {
			box.put(Delivery{Records: m.matchLocked(f)})
		}
	}
}

// FailRecords pushes err to every subscriber of kind
func (m *MemorySource) FailRecords(kind models.Kind, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for box, f := range m.recordSubs {
		if f.kind == kind {
			box.put(Delivery{Err: err})
		}
	}
}

// SetAssignments replaces the senior ids assigned to userID
func (m *MemorySource) SetAssignments(userID string, seniorIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[userID] = append([]string(nil), seniorIDs...)
	for box, uid := range m.assignSubs {
		if uid == userID {
			box.put(AssignmentDelivery{SeniorIDs: append([]string(nil), seniorIDs...)})
		}
	}
}

// FailAssignments pushes err to every assignment subscriber of userID
func (m *MemorySource) FailAssignments(userID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for box, uid := range m.assignSubs {
		if uid == userID {
			box.put(AssignmentDelivery{Err: err})
		}
	}
}

// SetSubscribeError makes future subscriptions to kind fail with err.
// A nil err clears it.
func (m *MemorySource) SetSubscribeError(kind models.Kind, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.subscribeErr, kind)
		return
	}
	m.subscribeErr[kind] = err
}

// SetAssignmentsError makes future assignment subscriptions fail with err
func (m *MemorySource) SetAssignmentsError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignErr = err
}

// Subscribers returns how many record subscriptions are open
func (m *MemorySource) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recordSubs)
}

func (m *MemorySource) matchLocked(f recordFilter) []models.RawRecord {
	var out []models.RawRecord
	for _, rec := range m.records[f.kind] {
		if f.seniors[normalize.Normalize(f.kind, rec).SeniorID] {
			out = append(out, rec)
		}
	}
	return out
}

// mailbox holds the latest undelivered value and forwards it to out
type mailbox[T any] struct {
	mu      sync.Mutex
	latest  T
	pending bool
	wake    chan struct{}
	out     chan T
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{
		wake: make(chan struct{}, 1),
		out:  make(chan T),
	}
}

func (b *mailbox[T]) put(v T) {
	b.mu.Lock()
	b.latest = v
	b.pending = true
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *mailbox[T]) take() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.latest, b.pending
	var zero T
	b.latest = zero
	b.pending = false
	return v, ok
}

// forward delivers values until ctx is done, then closes out
func (b *mailbox[T]) forward(ctx context.Context) {
	defer close(b.out)
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.wake:
		}
		v, ok := b.take()
		if !ok {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case b.out <- v:
		}
	}
}
