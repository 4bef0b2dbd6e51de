package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"carecircle/internal/live"
	"carecircle/internal/models"
	"carecircle/internal/profile"
	"carecircle/internal/reconcile"
)

var (
	// ErrAssignmentsUnavailable is returned when a user's senior list
	// cannot be loaded at all
	ErrAssignmentsUnavailable = live.ErrAssignmentsUnavailable
	ErrSeniorNotAssigned      = errors.New("senior not assigned to user")
	ErrInvalidBucket          = errors.New("invalid status bucket")
)

// DashboardOptions configures a DashboardService
type DashboardOptions struct {
	// PreviewLimit is the default size of the recent preview. Default: 5.
	PreviewLimit int
	// IdleTTL closes sessions nobody read for this long. Zero disables
	// reaping.
	IdleTTL time.Duration
	Policy  live.ErrorPolicy
	// Kinds restricts the subscribed sources. Defaults to all kinds.
	Kinds    []models.Kind
	Notifier AlertNotifier
	Logger   *zap.Logger
	Now      func() time.Time
}

// DashboardService keeps one live session per user and builds the screens
// from it
type DashboardService struct {
	feed     live.AssignmentFeed
	source   live.RecordSource
	profiles profile.Lookup
	opts     DashboardOptions

	mu       sync.Mutex
	sessions map[int64]*Session
	closed   bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewDashboardService creates the service. With a positive IdleTTL a
// background reaper runs until Close.
func NewDashboardService(feed live.AssignmentFeed, source live.RecordSource, profiles profile.Lookup, opts DashboardOptions) *DashboardService {
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = 5
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &DashboardService{
		feed:     feed,
		source:   source,
		profiles: profiles,
		opts:     opts,
		sessions: make(map[int64]*Session),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if opts.IdleTTL > 0 {
		go s.reapIdleSessions(opts.IdleTTL / 2)
	} else {
		close(s.done)
	}
	return s
}

// Session returns the running session of userID, starting one if needed.
// It waits until the first watch set is in effect, and fails with
// ErrAssignmentsUnavailable when the user's assignments cannot be loaded.
func (s *DashboardService) Session(ctx context.Context, userID int64) (*Session, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("dashboard service closed")
	}
	sess, ok := s.sessions[userID]
	var stale *Session
	if ok && !sess.running() {
		stale, ok = sess, false
	}
	if !ok {
		sess = s.startSession(userID)
		s.sessions[userID] = sess
	}
	s.mu.Unlock()

	if stale != nil {
		stale.close()
	}

	select {
	case <-sess.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	sess.touch(s.opts.Now())
	if state, err := sess.ctrl.State(); state == live.StateUnavailable {
		s.drop(sess)
		return nil, fmt.Errorf("%w: %v", ErrAssignmentsUnavailable, err)
	}
	return sess, nil
}

func (s *DashboardService) startSession(userID int64) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	logger := s.opts.Logger.With(zap.Int64("user_id", userID))

	sess := &Session{
		userID:   userID,
		store:    reconcile.NewStore(),
		started:  s.opts.Now(),
		logger:   logger,
		cancel:   cancel,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		watching: make(chan struct{}),
		subs:     make(map[int]chan struct{}),
	}
	sess.touch(s.opts.Now())
	sess.names = profile.NewResolver(s.profiles, profile.Options{
		Logger:     logger,
		OnResolved: sess.broadcast,
	})
	sess.ctrl = live.NewController(strconv.FormatInt(userID, 10), s.feed, s.source, sess.store, live.Options{
		Kinds:  s.opts.Kinds,
		Policy: s.opts.Policy,
		Logger: logger,
		OnError: func(kind models.Kind, err error) {
			logger.Warn("source subscription failed", zap.String("kind", string(kind)), zap.Error(err))
		},
		OnWatchSet: sess.names.Resolve,
		OnState: func(st live.State) {
			if st != live.StateLoading {
				sess.markReady()
			}
		},
	})

	updates, unsubscribe := sess.store.Subscribe()
	go sess.watch(ctx, updates, unsubscribe, s.opts.Notifier)
	go func() {
		defer close(sess.done)
		defer sess.markReady()
		if err := sess.ctrl.Run(ctx); err != nil {
			logger.Error("dashboard session failed", zap.Error(err))
		}
	}()

	logger.Info("dashboard session started")
	return sess
}

// drop removes sess from the registry if it is still registered and closes
// it
func (s *DashboardService) drop(sess *Session) {
	s.mu.Lock()
	if s.sessions[sess.userID] == sess {
		delete(s.sessions, sess.userID)
	}
	s.mu.Unlock()
	sess.close()
}

// Dashboard returns the main screen of userID. limit <= 0 uses the
// configured preview limit.
func (s *DashboardService) Dashboard(ctx context.Context, userID int64, limit int) (*DashboardView, error) {
	sess, err := s.Session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.DashboardOf(sess, limit), nil
}

// DashboardOf builds the main screen from an open session
func (s *DashboardService) DashboardOf(sess *Session, limit int) *DashboardView {
	if limit <= 0 {
		limit = s.opts.PreviewLimit
	}
	sess.touch(s.opts.Now())
	return sess.Dashboard(limit, s.opts.Now())
}

// Seniors returns per-senior summaries for userID
func (s *DashboardService) Seniors(ctx context.Context, userID int64) ([]SeniorSummary, error) {
	sess, err := s.Session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Seniors(), nil
}

// Senior returns one assigned senior of userID
func (s *DashboardService) Senior(ctx context.Context, userID int64, seniorID string) (*SeniorDetail, error) {
	sess, err := s.Session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Senior(seniorID)
}

// Tasks returns userID's tasks grouped by bucket
func (s *DashboardService) Tasks(ctx context.Context, userID int64, bucket string) (*TasksView, error) {
	sess, err := s.Session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Tasks(bucket)
}

// Routines returns userID's routines
func (s *DashboardService) Routines(ctx context.Context, userID int64) ([]ItemView, error) {
	sess, err := s.Session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Routines(), nil
}

// ActiveSessions returns how many sessions are open
func (s *DashboardService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CloseSession ends userID's session if one is open
func (s *DashboardService) CloseSession(userID int64) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	s.mu.Unlock()
	if ok {
		s.drop(sess)
	}
}

// reapIdleSessions periodically closes sessions nobody reads
func (s *DashboardService) reapIdleSessions(every time.Duration) {
	defer close(s.done)
	if every < time.Second {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.reap(s.opts.Now())
		}
	}
}

// reap closes every session idle for longer than IdleTTL without an open
// stream
func (s *DashboardService) reap(now time.Time) int {
	s.mu.Lock()
	var idle []*Session
	for id, sess := range s.sessions {
		if sess.streams.Load() > 0 || sess.idleSince(now) < s.opts.IdleTTL {
			continue
		}
		idle = append(idle, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sess := range idle {
		sess.close()
		s.opts.Logger.Info("closed idle dashboard session", zap.Int64("user_id", sess.userID))
	}
	return len(idle)
}

// Close stops the reaper and every session
func (s *DashboardService) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done

	s.mu.Lock()
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[int64]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}
