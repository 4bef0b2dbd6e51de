package feed

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"carecircle/internal/database"
	"carecircle/internal/live"
	"carecircle/internal/models"
	"carecircle/internal/reconcile"
	"carecircle/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 2 * time.Second

type fakeRecords struct {
	mu      sync.Mutex
	records map[models.Kind][]models.RawRecord
	err     error
	calls   [][]string
}

func (f *fakeRecords) ListByOwners(_ context.Context, kind models.Kind, ids []string) ([]models.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), ids...))
	if f.err != nil {
		return nil, f.err
	}
	in := map[string]bool{}
	for _, id := range ids {
		in[id] = true
	}
	var out []models.RawRecord
	for _, rec := range f.records[kind] {
		if in[rec["senior_id"].(string)] {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRecords) set(kind models.Kind, recs []models.RawRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[kind] = recs
}

func (f *fakeRecords) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeAssignments struct {
	mu  sync.Mutex
	ids map[int64][]string
}

func (f *fakeAssignments) ListSeniorIDs(_ context.Context, id int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.ids[id]...), nil
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for delivery")
	}
	var zero T
	return zero
}

func TestSubscribeDeliversInitialAndChanges(t *testing.T) {
	recs := &fakeRecords{records: map[models.Kind][]models.RawRecord{
		models.KindTask: {{"id": "t1", "senior_id": "a"}},
	}}
	f := New(recs, &fakeAssignments{}, Options{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := f.Subscribe(ctx, models.KindTask, []string{"a"})
	require.NoError(t, err)

	d := receive(t, ch)
	require.NoError(t, d.Err)
	assert.Len(t, d.Records, 1)

	recs.set(models.KindTask, []models.RawRecord{
		{"id": "t1", "senior_id": "a", "status": "completed"},
		{"id": "t2", "senior_id": "a"},
	})
	d = receive(t, ch)
	require.NoError(t, d.Err)
	assert.Len(t, d.Records, 2)

	select {
	case <-ch:
		t.Fatal("unchanged result set must not be delivered again")
	case <-time.After(30 * time.Millisecond):
	}

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, waitFor, time.Millisecond)
}

func TestSubscribeErrorsOncePerStreak(t *testing.T) {
	recs := &fakeRecords{records: map[models.Kind][]models.RawRecord{
		models.KindAlert: {{"id": "al", "senior_id": "a"}},
	}}
	f := New(recs, &fakeAssignments{}, Options{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := f.Subscribe(ctx, models.KindAlert, []string{"a"})
	require.NoError(t, err)
	receive(t, ch)

	recs.fail(errors.New("database is locked"))
	d := receive(t, ch)
	assert.EqualError(t, d.Err, "database is locked")

	select {
	case <-ch:
		t.Fatal("a failure streak reports once")
	case <-time.After(30 * time.Millisecond):
	}

	recs.fail(nil)
	d = receive(t, ch)
	require.NoError(t, d.Err)
	assert.Len(t, d.Records, 1, "recovery redelivers even an unchanged set")
	assert.Positive(t, f.Stats().Errors)
}

func TestSubscribeFailsToEstablish(t *testing.T) {
	recs := &fakeRecords{err: errors.New("no such table")}
	f := New(recs, &fakeAssignments{}, Options{})

	_, err := f.Subscribe(context.Background(), models.KindTask, []string{"a"})
	assert.ErrorContains(t, err, "no such table")

	_, err = f.Subscribe(context.Background(), models.Kind("bogus"), []string{"a"})
	assert.Error(t, err)
}

func TestSubscribeChunksLargeWatchSets(t *testing.T) {
	recs := &fakeRecords{records: map[models.Kind][]models.RawRecord{}}
	f := New(recs, &fakeAssignments{}, Options{Interval: time.Hour, ChunkSize: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := f.Subscribe(ctx, models.KindTask, []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	receive(t, ch)

	recs.mu.Lock()
	defer recs.mu.Unlock()
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, recs.calls)
}

func TestAssignmentFeed(t *testing.T) {
	assignments := &fakeAssignments{ids: map[int64][]string{7: {"a", "b"}}}
	f := New(&fakeRecords{}, assignments, Options{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := f.SubscribeAssignedSeniorIDs(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, receive(t, ch).SeniorIDs)

	assignments.mu.Lock()
	assignments.ids[7] = []string{"b"}
	assignments.mu.Unlock()
	assert.Equal(t, []string{"b"}, receive(t, ch).SeniorIDs)

	_, err = f.SubscribeAssignedSeniorIDs(ctx, "not-a-number")
	assert.Error(t, err)
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		size int
		want [][]string
	}{
		{"empty", nil, 3, nil},
		{"exact", []string{"a", "b"}, 2, [][]string{{"a", "b"}}},
		{"remainder", []string{"a", "b", "c"}, 2, [][]string{{"a", "b"}, {"c"}}},
		{"unbounded", []string{"a", "b", "c"}, 0, [][]string{{"a", "b", "c"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Chunk(tt.ids, tt.size))
		})
	}
}

func TestFingerprintRecords(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := []models.RawRecord{{"id": "1", "status": "pending", "created_at": at}}
	b := []models.RawRecord{{"created_at": at.In(time.FixedZone("x", 3600)), "status": "pending", "id": "1"}}
	c := []models.RawRecord{{"id": "1", "status": "completed", "created_at": at}}

	assert.Equal(t, fingerprintRecords(a), fingerprintRecords(b))
	assert.NotEqual(t, fingerprintRecords(a), fingerprintRecords(c))
	assert.NotEqual(t, fingerprintIDs([]string{"ab"}), fingerprintIDs([]string{"a", "b"}))
}

// TestLiveControllerOverSQL runs the whole pipeline against SQLite.
func TestLiveControllerOverSQL(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := database.Initialize(filepath.Join(t.TempDir(), "care.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	require.NoError(t, db.RunMigrations(ctx, "../../migrations", nil))

	users := repository.NewUserRepository(db)
	seniors := repository.NewSeniorRepository(db)
	assignments := repository.NewAssignmentRepository(db)
	records := repository.NewRecordRepository(db)

	user, err := users.CreateUser(ctx, "manager@example.com", "hash", "Morgan")
	require.NoError(t, err)
	for _, id := range []string{"A", "B"} {
		require.NoError(t, seniors.CreateSenior(ctx, &models.Senior{ID: id, Name: id}))
		require.NoError(t, assignments.Assign(ctx, user.ID, id))
	}
	require.NoError(t, records.InsertRecord(ctx, models.KindTask, models.RawRecord{"id": "1", "senior_id": "A", "title": "A's task"}))
	require.NoError(t, records.InsertRecord(ctx, models.KindTask, models.RawRecord{"id": "2", "senior_id": "B", "title": "B's task"}))
	require.NoError(t, records.InsertRecord(ctx, models.KindAlert, models.RawRecord{"id": "3", "senior_id": "B", "message": "Fall"}))

	f := New(records, assignments, Options{Interval: 10 * time.Millisecond})
	store := reconcile.NewStore()
	c := live.NewController(strconv.FormatInt(user.ID, 10), f, f, store, live.Options{})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- c.Run(runCtx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	require.Eventually(t, func() bool { return len(store.MergedView(0)) == 3 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, store.Counters().ActiveAlerts)

	_, err = assignments.Unassign(ctx, user.ID, "A")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		for _, item := range store.MergedView(0) {
			if item.SeniorID == "A" {
				return false
			}
		}
		return len(store.MergedView(0)) == 2
	}, waitFor, 5*time.Millisecond)

	_, err = records.UpdateStatus(ctx, models.KindAlert, "3", models.StatusResolved)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return store.Counters().ActiveAlerts == 0 }, waitFor, 5*time.Millisecond)
}
