package live

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"carecircle/internal/models"
	"carecircle/internal/reconcile"
)

// State is the controller's view of the assignment feed
type State int

const (
	// StateLoading: no assignment list has arrived yet
	StateLoading State = iota
	// StateReady: a watch set is in effect
	StateReady
	// StateUnavailable: the feed failed before producing any list
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Options configures a Controller
type Options struct {
	// Kinds lists the sources to subscribe per watch set. Defaults to
	// models.AllKinds.
	Kinds  []models.Kind
	Policy ErrorPolicy
	Logger *zap.Logger
	// OnError is told about every source subscription failure
	OnError func(kind models.Kind, err error)
	// OnWatchSet is called after every effective watch set change, with
	// the controller lock released.
	OnWatchSet func(seniorIDs []string)
	// OnState is called on every state transition, lock released
	OnState func(s State)
}

// Controller keeps one adapter per kind subscribed to the current watch set
type Controller struct {
	userID string
	feed   AssignmentFeed
	source RecordSource
	store  *reconcile.Store
	opts   Options

	mu       sync.Mutex
	watch    []string
	started  bool
	state    State
	err      error
	adapters []*Adapter

	rebuilds atomic.Int64
}

// NewController creates a controller for userID. Nothing is subscribed until
// Run or Apply is called.
func NewController(userID string, feed AssignmentFeed, source RecordSource, store *reconcile.Store, opts Options) *Controller {
	if len(opts.Kinds) == 0 {
		opts.Kinds = models.AllKinds
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller{
		userID: userID,
		feed:   feed,
		source: source,
		store:  store,
		opts:   opts,
	}
}

// Run follows the assignment feed until ctx is done or the feed closes.
// Every adapter it created is stopped before it returns. It fails with
// ErrAssignmentsUnavailable only when the feed cannot be established.
func (c *Controller) Run(ctx context.Context) error {
	ch, err := c.feed.SubscribeAssignedSeniorIDs(ctx, c.userID)
	if err != nil {
		c.setState(StateUnavailable, err)
		return fmt.Errorf("%w: %v", ErrAssignmentsUnavailable, err)
	}
	defer c.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-ch:
			if !ok {
				return nil
			}
			if d.Err != nil {
				c.assignmentError(d.Err)
				continue
			}
			c.Apply(ctx, d.SeniorIDs)
		}
	}
}

func (c *Controller) assignmentError(err error) {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	if !started {
		c.setState(StateUnavailable, err)
		c.opts.Logger.Error("assignment feed failed before first delivery",
			zap.String("user_id", c.userID), zap.Error(err))
		return
	}
	// keep the last good watch set
	c.opts.Logger.Warn("assignment feed error",
		zap.String("user_id", c.userID), zap.Error(err))
}

// Apply makes seniorIDs the watch set. If it equals the current set nothing
// happens. Otherwise all adapters are stopped before any new one starts.
func (c *Controller) Apply(ctx context.Context, seniorIDs []string) {
	set := uniqueIDs(seniorIDs)

	c.mu.Lock()
	if c.started && sameSet(c.watch, set) {
		c.mu.Unlock()
		return
	}
	c.stopAdaptersLocked()
	c.watch = set
	c.started = true
	becameReady := c.state != StateReady
	c.state = StateReady
	c.err = nil
	c.rebuilds.Add(1)

	if len(set) == 0 {
		c.store.Clear()
	} else {
		member := make(map[string]bool, len(set))
		for _, id := range set {
			member[id] = true
		}
		gen := c.store.Rebase(func(id string) bool { return member[id] })
		for _, kind := range c.opts.Kinds {
			c.adapters = append(c.adapters, StartAdapter(ctx, c.source, c.store, gen, kind, set, AdapterOptions{
				Policy:  c.opts.Policy,
				Logger:  c.opts.Logger,
				OnError: c.opts.OnError,
			}))
		}
	}
	c.mu.Unlock()

	c.opts.Logger.Debug("watch set changed",
		zap.String("user_id", c.userID),
		zap.Strings("senior_ids", set))
	if becameReady && c.opts.OnState != nil {
		c.opts.OnState(StateReady)
	}
	if c.opts.OnWatchSet != nil {
		c.opts.OnWatchSet(append([]string(nil), set...))
	}
}

// Stop tears down every adapter. It is safe to call more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopAdaptersLocked()
}

func (c *Controller) stopAdaptersLocked() {
	for _, a := range c.adapters {
		a.Stop()
	}
	c.adapters = nil
}

func (c *Controller) setState(s State, err error) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.err = err
	c.mu.Unlock()
	if changed && c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}

// State reports whether a watch set is in effect and the feed error if the
// feed never produced one.
func (c *Controller) State() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.err
}

// WatchSet returns the current senior ids
func (c *Controller) WatchSet() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.watch...)
}

// ActiveAdapters returns how many adapters are subscribed
func (c *Controller) ActiveAdapters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.adapters)
}

// Rebuilds returns how many watch set changes took effect
func (c *Controller) Rebuilds() int64 { return c.rebuilds.Load() }

// uniqueIDs drops empty and repeated ids, keeping first-seen order
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	in := make(map[string]bool, len(a))
	for _, id := range a {
		in[id] = true
	}
	for _, id := range b {
		if !in[id] {
			return false
		}
	}
	return true
}
