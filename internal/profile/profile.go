// Package profile resolves senior display names in the background.
package profile

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"carecircle/internal/models"
)

// UnknownSenior is shown for a senior whose profile is missing or failed
const UnknownSenior = "Unknown Senior"

// Lookup fetches one senior profile. A nil profile with a nil error means
// the senior does not exist.
type Lookup interface {
	GetProfile(ctx context.Context, seniorID string) (*models.Senior, error)
}

// LookupFunc adapts a function to Lookup
type LookupFunc func(ctx context.Context, seniorID string) (*models.Senior, error)

// GetProfile implements Lookup
func (f LookupFunc) GetProfile(ctx context.Context, seniorID string) (*models.Senior, error) {
	return f(ctx, seniorID)
}

// Options configures a Resolver
type Options struct {
	// Concurrency bounds in-flight lookups. Default: 4.
	Concurrency int
	Logger      *zap.Logger
	// OnResolved is called after new names were cached
	OnResolved func()
}

// Resolver caches senior names. Lookups never block readers: an id that is
// not resolved yet reads as UnknownSenior.
type Resolver struct {
	lookup Lookup
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	names    map[string]string
	inflight map[string]bool
	closed   bool
}

// NewResolver creates a resolver backed by lookup
func NewResolver(lookup Lookup, opts Options) *Resolver {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{
		lookup:   lookup,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		names:    make(map[string]string),
		inflight: make(map[string]bool),
	}
}

// Resolve starts lookups for every id not cached or in flight and returns
// immediately.
func (r *Resolver) Resolve(ids []string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	var todo []string
	for _, id := range ids {
		if id == "" || r.inflight[id] {
			continue
		}
		if _, ok := r.names[id]; ok {
			continue
		}
		r.inflight[id] = true
		todo = append(todo, id)
	}
	if len(todo) == 0 {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		g, ctx := errgroup.WithContext(r.ctx)
		g.SetLimit(r.opts.Concurrency)
		for _, id := range todo {
			g.Go(func() error {
				r.resolveOne(ctx, id)
				return nil
			})
		}
		g.Wait()
	}()
}

func (r *Resolver) resolveOne(ctx context.Context, id string) {
	senior, err := r.lookup.GetProfile(ctx, id)

	r.mu.Lock()
	delete(r.inflight, id)
	if r.closed {
		r.mu.Unlock()
		return
	}
	if err != nil {
		r.mu.Unlock()
		// not cached, the next Resolve retries
		r.opts.Logger.Warn("failed to resolve senior profile",
			zap.String("senior_id", id), zap.Error(err))
		return
	}
	name := UnknownSenior
	if senior != nil && senior.Name != "" {
		name = senior.Name
	}
	r.names[id] = name
	r.mu.Unlock()

	if r.opts.OnResolved != nil {
		r.opts.OnResolved()
	}
}

// Name returns the cached name of id or UnknownSenior
func (r *Resolver) Name(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.names[id]; ok {
		return name
	}
	return UnknownSenior
}

// Names returns the display name of every id
func (r *Resolver) Names(ids []string) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if name, ok := r.names[id]; ok {
			out[id] = name
		} else {
			out[id] = UnknownSenior
		}
	}
	return out
}

// Wait blocks until every started lookup finished
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// Close cancels in-flight lookups and waits for them. Results that arrive
// afterwards are dropped. Close is safe to call more than once.
func (r *Resolver) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}
