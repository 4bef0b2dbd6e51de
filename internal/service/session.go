package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"carecircle/internal/aggregate"
	"carecircle/internal/live"
	"carecircle/internal/models"
	"carecircle/internal/profile"
	"carecircle/internal/reconcile"
	"carecircle/internal/status"
)

// upcomingLimit is how many upcoming items a dashboard shows
const upcomingLimit = 3

// ItemView is a merged item decorated for display
type ItemView struct {
	models.Item
	SeniorName string        `json:"senior_name"`
	Bucket     status.Bucket `json:"bucket"`
}

// DashboardView is the main screen of a care manager
type DashboardView struct {
	Counters aggregate.Counters                    `json:"counters"`
	Recent   []ItemView                            `json:"recent"`
	Upcoming []ItemView                            `json:"upcoming"`
	Sources  map[models.Kind]reconcile.SourceState `json:"sources,omitempty"`
	Seniors  map[string]string                     `json:"seniors"`
	Version  uint64                                `json:"version"`
}

// SeniorSummary is one row of the seniors screen
type SeniorSummary struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Counters aggregate.Counters `json:"counters"`
}

// SeniorDetail is everything known about one assigned senior
type SeniorDetail struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Counters aggregate.Counters `json:"counters"`
	Items    []ItemView         `json:"items"`
}

// TasksView groups task items by bucket
type TasksView struct {
	Buckets map[status.Bucket][]ItemView `json:"buckets"`
	Total   int                          `json:"total"`
}

// AlertNotifier is told about active alerts that appeared while a session
// was running
type AlertNotifier interface {
	NotifyAlerts(ctx context.Context, userID int64, alerts []ItemView) error
}

// Session is one user's live dashboard: a store kept current by a watch-set
// controller, plus the senior names resolved for it.
type Session struct {
	userID  int64
	store   *reconcile.Store
	ctrl    *live.Controller
	names   *profile.Resolver
	started time.Time
	logger  *zap.Logger

	cancel    context.CancelFunc
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	watching  chan struct{}
	closeOnce sync.Once

	lastSeen atomic.Int64
	streams  atomic.Int32

	subMu sync.Mutex
	subs  map[int]chan struct{}
	next  int
}

func (sess *Session) markReady() {
	sess.readyOnce.Do(func() { close(sess.ready) })
}

func (sess *Session) touch(now time.Time) {
	sess.lastSeen.Store(now.UnixNano())
}

func (sess *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, sess.lastSeen.Load()))
}

// running reports whether the controller is still following the feed
func (sess *Session) running() bool {
	select {
	case <-sess.done:
		return false
	default:
		return true
	}
}

// UserID returns the owner of the session
func (sess *Session) UserID() int64 { return sess.userID }

// State reports the controller state
func (sess *Session) State() (live.State, error) { return sess.ctrl.State() }

// Version returns the store version the views are computed from
func (sess *Session) Version() uint64 { return sess.store.Snapshot().Version }

// Changes returns a channel signalled after every store change or newly
// resolved name. Signals coalesce. While a subscription is open the session
// is never reaped for idleness. The returned func unsubscribes.
func (sess *Session) Changes() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	sess.subMu.Lock()
	id := sess.next
	sess.next++
	sess.subs[id] = ch
	sess.subMu.Unlock()
	sess.streams.Add(1)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sess.subMu.Lock()
			delete(sess.subs, id)
			sess.subMu.Unlock()
			sess.streams.Add(-1)
		})
	}
}

func (sess *Session) broadcast() {
	sess.subMu.Lock()
	defer sess.subMu.Unlock()
	for _, ch := range sess.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// watch forwards store changes to subscribers and reports new active alerts
func (sess *Session) watch(ctx context.Context, updates <-chan struct{}, unsubscribe func(), notifier AlertNotifier) {
	defer close(sess.watching)
	defer unsubscribe()

	seen := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
		}
		sess.broadcast()
		if notifier == nil {
			continue
		}

		var fresh []models.Item
		for _, item := range sess.store.SnapshotOf(models.KindAlert) {
			if !status.IsActiveAlert(item) || seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			// alerts present when the session opened are not news
			if item.CreatedAt != nil && item.CreatedAt.After(sess.started) {
				fresh = append(fresh, item)
			}
		}
		if len(fresh) == 0 {
			continue
		}
		if err := notifier.NotifyAlerts(ctx, sess.userID, sess.decorate(fresh)); err != nil {
			sess.logger.Warn("failed to send alert notification",
				zap.Int64("user_id", sess.userID), zap.Int("alerts", len(fresh)), zap.Error(err))
		}
	}
}

// close stops the controller, its adapters and the resolver. Safe to call
// more than once.
func (sess *Session) close() {
	sess.closeOnce.Do(func() {
		sess.cancel()
		<-sess.done
		<-sess.watching
		sess.names.Close()
	})
}

func (sess *Session) decorate(items []models.Item) []ItemView {
	out := make([]ItemView, len(items))
	for i, item := range items {
		out[i] = ItemView{
			Item:       item,
			SeniorName: sess.names.Name(item.SeniorID),
			Bucket:     status.Of(item),
		}
	}
	return out
}

// Dashboard builds the main screen. limit bounds the recent preview; the
// counters always cover the full merged view.
func (sess *Session) Dashboard(limit int, now time.Time) *DashboardView {
	v := sess.store.Snapshot()
	return &DashboardView{
		Counters: v.Counters,
		Recent:   sess.decorate(aggregate.Preview(v.Items, limit)),
		Upcoming: sess.decorate(aggregate.Upcoming(v.Items, now, upcomingLimit)),
		Sources:  v.Sources,
		Seniors:  sess.names.Names(sess.ctrl.WatchSet()),
		Version:  v.Version,
	}
}

// Seniors summarizes every assigned senior, ordered by name
func (sess *Session) Seniors() []SeniorSummary {
	counts := aggregate.BySenior(sess.store.MergedView(0))
	ids := sess.ctrl.WatchSet()

	out := make([]SeniorSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, SeniorSummary{ID: id, Name: sess.names.Name(id), Counters: counts[id]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Senior returns the detail of one senior in the watch set
func (sess *Session) Senior(seniorID string) (*SeniorDetail, error) {
	if !sess.watches(seniorID) {
		return nil, ErrSeniorNotAssigned
	}
	items := aggregate.FilterSenior(sess.store.MergedView(0), seniorID)
	return &SeniorDetail{
		ID:       seniorID,
		Name:     sess.names.Name(seniorID),
		Counters: aggregate.Count(items),
		Items:    sess.decorate(items),
	}, nil
}

// Tasks groups task items by bucket. A non-empty bucket keeps only that
// bucket.
func (sess *Session) Tasks(bucket string) (*TasksView, error) {
	tasks := aggregate.FilterKind(sess.store.MergedView(0), models.KindTask)
	groups := aggregate.GroupByBucket(tasks)

	view := &TasksView{Buckets: map[status.Bucket][]ItemView{}}
	want := []status.Bucket{status.BucketPending, status.BucketCompleted, status.BucketMissed}
	if bucket != "" {
		b, ok := status.ParseBucket(bucket)
		if !ok || b == status.BucketActive || b == status.BucketResolved {
			return nil, ErrInvalidBucket
		}
		want = []status.Bucket{b}
	}
	for _, b := range want {
		view.Buckets[b] = sess.decorate(groups[b])
		view.Total += len(groups[b])
	}
	return view, nil
}

// Routines returns routine items newest first
func (sess *Session) Routines() []ItemView {
	return sess.decorate(aggregate.FilterKind(sess.store.MergedView(0), models.KindRoutine))
}

func (sess *Session) watches(seniorID string) bool {
	for _, id := range sess.ctrl.WatchSet() {
		if id == seniorID {
			return true
		}
	}
	return false
}
