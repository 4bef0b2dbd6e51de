package live

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"carecircle/internal/models"
	"carecircle/internal/normalize"
	"carecircle/internal/reconcile"
)

// AdapterOptions tunes a single source subscription
type AdapterOptions struct {
	Policy ErrorPolicy
	Logger *zap.Logger
	// OnError is told about every subscription failure
	OnError func(kind models.Kind, err error)
}

// Adapter owns one live subscription for one kind and one generation
type Adapter struct {
	kind  models.Kind
	gen   uint64
	store *reconcile.Store
	opts  AdapterOptions

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	applied   atomic.Int64
	discarded atomic.Int64
}

// StartAdapter subscribes to kind for seniorIDs and begins applying
// deliveries to store under generation gen. A failure to subscribe is
// handled like a mid-stream error: reported, and applied per policy.
func StartAdapter(ctx context.Context, source RecordSource, store *reconcile.Store, gen uint64, kind models.Kind, seniorIDs []string, opts AdapterOptions) *Adapter {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	a := &Adapter{
		kind:   kind,
		gen:    gen,
		store:  store,
		opts:   opts,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	ch, err := source.Subscribe(ctx, kind, seniorIDs)
	if err != nil {
		a.fail(err)
		cancel()
		close(a.done)
		return a
	}

	go a.pump(ctx, ch)
	return a
}

func (a *Adapter) pump(ctx context.Context, ch <-chan Delivery) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-ch:
			if !ok {
				return
			}
			// teardown may race with a delivery already in hand
			if ctx.Err() != nil {
				a.discarded.Add(1)
				return
			}
			a.apply(d)
		}
	}
}

func (a *Adapter) apply(d Delivery) {
	if d.Err != nil {
		a.fail(d.Err)
		return
	}
	items := normalize.All(a.kind, d.Records)
	if !a.store.ReplaceAt(a.gen, a.kind, items) {
		a.discarded.Add(1)
		a.opts.Logger.Debug("discarded delivery from stale generation",
			zap.String("kind", string(a.kind)),
			zap.Uint64("generation", a.gen))
		return
	}
	a.applied.Add(1)
}

func (a *Adapter) fail(err error) {
	a.opts.Logger.Warn("source subscription failed",
		zap.String("kind", string(a.kind)),
		zap.Uint64("generation", a.gen),
		zap.Error(err))
	a.store.FailAt(a.gen, a.kind, err, a.opts.Policy == RetainLastGood)
	if a.opts.OnError != nil {
		a.opts.OnError(a.kind, err)
	}
}

// Stop ends the subscription and waits until no further delivery can be
// applied. It is safe to call more than once and after the stream ended.
func (a *Adapter) Stop() {
	a.stopOnce.Do(a.cancel)
	<-a.done
}

// Kind returns the source kind this adapter follows
func (a *Adapter) Kind() models.Kind { return a.kind }

// Generation returns the store generation deliveries are tagged with
func (a *Adapter) Generation() uint64 { return a.gen }

// Applied returns how many deliveries reached the store
func (a *Adapter) Applied() int64 { return a.applied.Load() }

// Discarded returns how many deliveries were dropped as stale
func (a *Adapter) Discarded() int64 { return a.discarded.Load() }
