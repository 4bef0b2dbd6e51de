package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"carecircle/internal/aggregate"
	"carecircle/internal/live"
	"carecircle/internal/models"
	"carecircle/internal/profile"
	"carecircle/internal/status"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	waitFor   = 2 * time.Second
	pollEvery = 5 * time.Millisecond
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var seniorNames = profile.LookupFunc(func(_ context.Context, id string) (*models.Senior, error) {
	names := map[string]string{"A": "Rose", "B": "Walter"}
	if name, ok := names[id]; ok {
		return &models.Senior{ID: id, Name: name}, nil
	}
	return nil, nil
})

func demoSource() *live.MemorySource {
	src := live.NewMemorySource()
	src.SetAssignments("7", []string{"A", "B"})
	src.SetRecords(models.KindTask, []models.RawRecord{
		{"id": "t1", "senior_id": "A", "title": "Walk", "status": "completed", "created_at": "2026-03-01T09:00:00Z"},
		{"id": "t2", "senior_id": "B", "title": "Lunch", "status": "in_progress", "created_at": "2026-03-01T10:00:00Z", "due_date": "2026-03-01T13:00:00Z"},
		{"id": "t3", "senior_id": "A", "title": "Doctor", "status": "missed", "created_at": "2026-03-01T07:00:00Z"},
		{"id": "t4", "senior_id": "Z", "title": "Not assigned", "created_at": "2026-03-01T11:30:00Z"},
	})
	src.SetRecords(models.KindRoutine, []models.RawRecord{
		{"id": "r1", "user_id": "B", "name": "Stretch", "created_at": "2026-03-01T06:00:00Z", "time": "2026-03-01T18:00:00Z"},
	})
	src.SetRecords(models.KindAlert, []models.RawRecord{
		{"id": "a1", "senior_id": "B", "message": "Fall detected", "created_at": "2026-03-01T11:00:00Z"},
	})
	return src
}

func newTestDashboard(src *live.MemorySource, opts DashboardOptions) *DashboardService {
	if opts.Now == nil {
		opts.Now = func() time.Time { return t0 }
	}
	return NewDashboardService(src, src, seniorNames, opts)
}

func TestDashboardBuildsViews(t *testing.T) {
	s := newTestDashboard(demoSource(), DashboardOptions{})
	defer s.Close()
	ctx := context.Background()

	var view *DashboardView
	require.Eventually(t, func() bool {
		v, err := s.Dashboard(ctx, 7, 2)
		require.NoError(t, err)
		view = v
		return v.Counters.ActiveAlerts == 1 && v.Counters.Total() == 4 && v.Seniors["B"] == "Walter"
	}, waitFor, pollEvery)

	assert.Equal(t, aggregate.Counters{Completed: 1, Pending: 2, Missed: 1, ActiveAlerts: 1}, view.Counters)
	require.Len(t, view.Recent, 2, "preview is bounded, counters are not")
	assert.Equal(t, "a1", view.Recent[0].ID)
	assert.Equal(t, "Walter", view.Recent[0].SeniorName)
	assert.Equal(t, status.BucketActive, view.Recent[0].Bucket)
	assert.Equal(t, map[string]string{"A": "Rose", "B": "Walter"}, view.Seniors)

	var upcoming []string
	for _, item := range view.Upcoming {
		upcoming = append(upcoming, item.ID)
	}
	assert.Equal(t, []string{"t2", "r1"}, upcoming)
	assert.Equal(t, 1, s.ActiveSessions())
}

func TestSeniorsAndDetail(t *testing.T) {
	s := newTestDashboard(demoSource(), DashboardOptions{})
	defer s.Close()
	ctx := context.Background()

	require.Eventually(t, func() bool {
		seniors, err := s.Seniors(ctx, 7)
		require.NoError(t, err)
		return len(seniors) == 2 && seniors[0].Name == "Rose" && seniors[1].Counters.ActiveAlerts == 1
	}, waitFor, pollEvery)

	seniors, err := s.Seniors(ctx, 7)
	require.NoError(t, err)
	want := []SeniorSummary{
		{ID: "A", Name: "Rose", Counters: aggregate.Counters{Completed: 1, Missed: 1}},
		{ID: "B", Name: "Walter", Counters: aggregate.Counters{Pending: 2, ActiveAlerts: 1}},
	}
	if diff := cmp.Diff(want, seniors); diff != "" {
		t.Errorf("Seniors() mismatch (-want +got):\n%s", diff)
	}

	detail, err := s.Senior(ctx, 7, "A")
	require.NoError(t, err)
	assert.Equal(t, "Rose", detail.Name)
	assert.Len(t, detail.Items, 2)
	assert.Equal(t, aggregate.Counters{Completed: 1, Missed: 1}, detail.Counters)

	_, err = s.Senior(ctx, 7, "Z")
	assert.ErrorIs(t, err, ErrSeniorNotAssigned)
}

func TestTasksGroupedByBucket(t *testing.T) {
	s := newTestDashboard(demoSource(), DashboardOptions{})
	defer s.Close()
	ctx := context.Background()

	require.Eventually(t, func() bool {
		v, err := s.Tasks(ctx, 7, "")
		require.NoError(t, err)
		return v.Total == 3
	}, waitFor, pollEvery)

	all, err := s.Tasks(ctx, 7, "")
	require.NoError(t, err)
	assert.Len(t, all.Buckets[status.BucketPending], 1)
	assert.Len(t, all.Buckets[status.BucketCompleted], 1)
	assert.Len(t, all.Buckets[status.BucketMissed], 1)

	missed, err := s.Tasks(ctx, 7, "missed")
	require.NoError(t, err)
	assert.Len(t, missed.Buckets, 1)
	assert.Equal(t, "t3", missed.Buckets[status.BucketMissed][0].ID)

	for _, bad := range []string{"active", "later"} {
		_, err = s.Tasks(ctx, 7, bad)
		assert.ErrorIs(t, err, ErrInvalidBucket, bad)
	}

	routines, err := s.Routines(ctx, 7)
	require.NoError(t, err)
	require.Len(t, routines, 1)
	assert.Equal(t, "Routine: Stretch", routines[0].Description)
}

func TestSessionAssignmentsUnavailable(t *testing.T) {
	src := demoSource()
	src.SetAssignmentsError(errors.New("permission denied"))
	s := newTestDashboard(src, DashboardOptions{})
	defer s.Close()

	_, err := s.Dashboard(context.Background(), 7, 0)
	require.ErrorIs(t, err, ErrAssignmentsUnavailable)
	assert.ErrorContains(t, err, "permission denied")
	assert.Zero(t, s.ActiveSessions(), "a failed session is not kept")

	src.SetAssignmentsError(nil)
	_, err = s.Dashboard(context.Background(), 7, 0)
	assert.NoError(t, err, "the next request retries")
}

func TestSessionWithoutAssignmentsIsEmpty(t *testing.T) {
	s := newTestDashboard(demoSource(), DashboardOptions{})
	defer s.Close()

	view, err := s.Dashboard(context.Background(), 99, 0)
	require.NoError(t, err)
	assert.Empty(t, view.Recent)
	assert.Equal(t, aggregate.Counters{}, view.Counters)
	assert.Empty(t, view.Seniors)
}

func TestSessionFollowsAssignmentChanges(t *testing.T) {
	src := demoSource()
	s := newTestDashboard(src, DashboardOptions{})
	defer s.Close()
	ctx := context.Background()

	require.Eventually(t, func() bool {
		v, _ := s.Dashboard(ctx, 7, 0)
		return v != nil && v.Counters.ActiveAlerts == 1
	}, waitFor, pollEvery)

	src.SetAssignments("7", []string{"A"})
	require.Eventually(t, func() bool {
		v, _ := s.Dashboard(ctx, 7, 0)
		return v != nil && v.Counters.ActiveAlerts == 0 && v.Counters.Total() == 2
	}, waitFor, pollEvery)
}

func TestChangesSignalled(t *testing.T) {
	src := demoSource()
	s := newTestDashboard(src, DashboardOptions{})
	defer s.Close()

	sess, err := s.Session(context.Background(), 7)
	require.NoError(t, err)
	changes, unsubscribe := sess.Changes()
	defer unsubscribe()

	src.SetRecords(models.KindCheckIn, []models.RawRecord{{"id": "c1", "senior_id": "A", "mood": "happy"}})
	select {
	case <-changes:
	case <-time.After(waitFor):
		t.Fatal("no change signal")
	}
}

func TestReapIdleSessions(t *testing.T) {
	var now atomic.Int64
	now.Store(t0.UnixNano())
	s := newTestDashboard(demoSource(), DashboardOptions{
		IdleTTL: time.Minute,
		Now:     func() time.Time { return time.Unix(0, now.Load()) },
	})
	defer s.Close()
	ctx := context.Background()

	_, err := s.Session(ctx, 7)
	require.NoError(t, err)
	streaming, err := s.Session(ctx, 8)
	require.NoError(t, err)
	_, unsubscribe := streaming.Changes()

	assert.Zero(t, s.reap(t0.Add(30*time.Second)))
	assert.Equal(t, 1, s.reap(t0.Add(2*time.Minute)), "only the session without a stream is idle")
	assert.Equal(t, 1, s.ActiveSessions())

	unsubscribe()
	assert.Equal(t, 1, s.reap(t0.Add(2*time.Minute)))
	assert.Zero(t, s.ActiveSessions())
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]string
}

func (n *recordingNotifier) NotifyAlerts(_ context.Context, userID int64, alerts []ItemView) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var ids []string
	for _, a := range alerts {
		ids = append(ids, a.ID)
	}
	n.calls = append(n.calls, ids)
	return nil
}

func (n *recordingNotifier) snapshot() [][]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]string(nil), n.calls...)
}

func TestNotifiesNewActiveAlerts(t *testing.T) {
	src := demoSource()
	notifier := &recordingNotifier{}
	s := newTestDashboard(src, DashboardOptions{Notifier: notifier})
	defer s.Close()
	ctx := context.Background()

	require.Eventually(t, func() bool {
		v, _ := s.Dashboard(ctx, 7, 0)
		return v != nil && v.Counters.ActiveAlerts == 1
	}, waitFor, pollEvery)

	alerts := []models.RawRecord{
		{"id": "a1", "senior_id": "B", "message": "Fall detected", "created_at": "2026-03-01T11:00:00Z"},
		{"id": "a2", "senior_id": "A", "message": "Door open", "created_at": "2026-03-01T12:30:00Z"},
		{"id": "a3", "senior_id": "A", "message": "Handled", "status": "resolved", "created_at": "2026-03-01T12:31:00Z"},
	}
	src.SetRecords(models.KindAlert, alerts)
	require.Eventually(t, func() bool { return len(notifier.snapshot()) == 1 }, waitFor, pollEvery)
	assert.Equal(t, [][]string{{"a2"}}, notifier.snapshot())

	// redelivering the same alerts is not news
	src.SetRecords(models.KindCheckIn, []models.RawRecord{{"id": "c1", "senior_id": "A"}})
	src.SetRecords(models.KindAlert, alerts)
	require.Eventually(t, func() bool {
		v, _ := s.Dashboard(ctx, 7, 0)
		return v != nil && v.Counters.Total() == 5
	}, waitFor, pollEvery)
	assert.Len(t, notifier.snapshot(), 1)
}

func TestCloseSession(t *testing.T) {
	src := demoSource()
	s := newTestDashboard(src, DashboardOptions{})
	defer s.Close()

	_, err := s.Session(context.Background(), 7)
	require.NoError(t, err)
	s.CloseSession(7)
	assert.Zero(t, s.ActiveSessions())
	require.Eventually(t, func() bool { return src.Subscribers() == 0 }, waitFor, pollEvery)
}
