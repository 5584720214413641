// Package cartstore holds the shopping cart: an ordered list of line items
// kept in memory, mirrored to a key-value record after every change and
// broadcast to subscribers.
package cartstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/norun9/gomarketplace-cart/kvstore"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultKey is the key the cart record is stored under.
const DefaultKey = "@GoMarketplace:products"

const defaultWriteTimeout = 5 * time.Second

// A mutator that returns ErrPersist has still applied its change; only the
// write of the record failed.
var (
	ErrLoad           = errors.New("cartstore: loading cart record")
	ErrPersist        = errors.New("cartstore: persisting cart record")
	ErrInvalidProduct = errors.New("cartstore: product id is required")
	ErrClosed         = errors.New("cartstore: store is closed")
)

// PersistMode selects whether mutators wait for their write.
type PersistMode int

const (
	// PersistSync makes every mutator wait for the write that carries its
	// state and return that write's error.
	PersistSync PersistMode = iota
	// PersistAsync returns from mutators immediately; write failures are
	// only logged and counted.
	PersistAsync
)

func (m PersistMode) String() string {
	switch m {
	case PersistSync:
		return "sync"
	case PersistAsync:
		return "async"
	default:
		return fmt.Sprintf("PersistMode(%d)", int(m))
	}
}

// ParsePersistMode parses "sync" or "async".
func ParsePersistMode(s string) (PersistMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sync":
		return PersistSync, nil
	case "async":
		return PersistAsync, nil
	default:
		return PersistSync, fmt.Errorf("unknown persist mode %q", s)
	}
}

// Cart is the capability handed to the rest of the application.
type Cart interface {
	Products() []Product
	AddToCart(ctx context.Context, p Product) error
	Increment(ctx context.Context, id string) error
	Decrement(ctx context.Context, id string) error
}

// Options configure a Store. The zero value is usable.
type Options struct {
	Key            string
	Mode           PersistMode
	WriteTimeout   time.Duration
	Logger         logrus.FieldLogger
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Store is the cart state container. It is safe for concurrent use.
type Store struct {
	kv           kvstore.KVStore
	key          string
	mode         PersistMode
	writeTimeout time.Duration
	log          logrus.FieldLogger
	tracer       trace.Tracer
	metrics      *storeMetrics

	initOnce sync.Once
	initErr  error

	// mu guards the state, the subscribers and the write queue together so
	// that writes are enqueued in mutation order.
	mu       sync.Mutex
	products []Product
	subs     map[int]chan []Product
	nextSub  int
	closed   bool
	pending  *pendingWrite

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

var _ Cart = (*Store)(nil)

// New returns an empty Store persisting to kv and starts its writer.
func New(kv kvstore.KVStore, opts Options) *Store {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	log := opts.Logger.WithField("cart.key", opts.Key)

	s := &Store{
		kv:           kv,
		key:          opts.Key,
		mode:         opts.Mode,
		writeTimeout: opts.WriteTimeout,
		log:          log,
		tracer:       opts.TracerProvider.Tracer("cartstore"),
		metrics:      newStoreMetrics(opts.MeterProvider, log),
		products:     []Product{},
		subs:         make(map[int]chan []Product),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	go s.run()
	return s
}

// Initialize restores the cart from its persisted record. Only the first
// call does anything. A missing record leaves the cart empty. A record that
// cannot be read or decoded also leaves the cart empty; the failure is
// logged and returned wrapped in ErrLoad.
//
// Mutators and Flush run Initialize themselves before their first change,
// so the record is always read before anything is written over it.
func (s *Store) Initialize(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.load(ctx)
	})
	return s.initErr
}

func (s *Store) load(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "cartstore.load")
	defer span.End()

	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, kvstore.ErrNotFound) {
		s.log.Info("cartstore: no persisted cart, starting empty")
		return nil
	}
	if err != nil {
		return s.loadFailed(ctx, span, err)
	}

	products, dropped, err := DecodeProducts(raw)
	if err != nil {
		return s.loadFailed(ctx, span, err)
	}
	if dropped > 0 {
		s.log.WithField("dropped", dropped).Warn("cartstore: dropped invalid entries from persisted cart")
	}

	s.mu.Lock()
	s.products = products
	s.broadcastLocked()
	s.mu.Unlock()

	s.log.WithField("products", len(products)).Info("cartstore: restored persisted cart")
	return nil
}

func (s *Store) loadFailed(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	s.metrics.loadFailures.Add(ctx, 1)
	s.log.WithError(err).Warn("cartstore: cannot restore persisted cart, starting empty")
	return fmt.Errorf("%w: %w", ErrLoad, err)
}

// Products returns a copy of the cart in insertion order.
func (s *Store) Products() []Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneProducts(s.products)
}

// AddToCart adds one unit of p. The quantity carried by p is ignored.
func (s *Store) AddToCart(ctx context.Context, p Product) error {
	if p.ID == "" {
		return ErrInvalidProduct
	}
	return s.mutate(ctx, false, func(products []Product) ([]Product, bool) {
		return addProduct(products, p), true
	})
}

// Increment adds one unit of the product with the given id. It does nothing
// if the product is not in the cart.
func (s *Store) Increment(ctx context.Context, id string) error {
	return s.mutate(ctx, false, func(products []Product) ([]Product, bool) {
		next, ok := incrementProduct(products, id)
		if !ok {
			s.log.WithField("product_id", id).Debug("cartstore: increment of product not in cart ignored")
		}
		return next, ok
	})
}

// Decrement removes one unit of the product with the given id, dropping the
// line item when its last unit goes. It does nothing if the product is not
// in the cart.
func (s *Store) Decrement(ctx context.Context, id string) error {
	return s.mutate(ctx, false, func(products []Product) ([]Product, bool) {
		next, ok := decrementProduct(products, id)
		if !ok {
			s.log.WithField("product_id", id).Debug("cartstore: decrement of product not in cart ignored")
		}
		return next, ok
	})
}

// Clear empties the cart and removes its persisted record.
func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, true, func([]Product) ([]Product, bool) {
		return []Product{}, true
	})
}

// mutate applies fn to the current state. fn must not modify its argument.
// Once the new state is installed the mutation has happened: a caller that
// stops waiting for the write gets nil, and the write carries on.
func (s *Store) mutate(ctx context.Context, remove bool, fn func([]Product) ([]Product, bool)) error {
	s.ensureLoaded(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	next, changed := fn(s.products)
	if !changed {
		s.mu.Unlock()
		return nil
	}
	s.products = next
	s.broadcastLocked()

	var wait chan error
	if s.mode == PersistSync {
		wait = make(chan error, 1)
	}
	s.enqueueLocked(next, remove, wait)
	s.mu.Unlock()

	if wait == nil {
		return nil
	}
	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		s.log.Debug("cartstore: caller stopped waiting, write continues")
		return nil
	}
}

func (s *Store) ensureLoaded(ctx context.Context) {
	// The load failure is already logged and counted by Initialize.
	_ = s.Initialize(context.WithoutCancel(ctx))
}

// Flush persists the current state and waits for the write.
func (s *Store) Flush(ctx context.Context) error {
	s.ensureLoaded(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	wait := make(chan error, 1)
	if s.pending != nil {
		s.pending.waiters = append(s.pending.waiters, wait)
	} else {
		s.enqueueLocked(s.products, false, wait)
	}
	s.mu.Unlock()

	return s.await(ctx, wait)
}

func (s *Store) await(ctx context.Context, wait chan error) error {
	if wait == nil {
		return nil
	}
	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel that receives the current cart immediately and
// again after every change. The channel holds only the latest state, so a
// slow reader skips intermediate states instead of blocking writers. cancel
// stops delivery and closes the channel; Close also closes it.
func (s *Store) Subscribe() (<-chan []Product, func()) {
	ch := make(chan []Product, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- cloneProducts(s.products)

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

func (s *Store) broadcastLocked() {
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- cloneProducts(s.products)
	}
}

// Close rejects further mutations, waits for queued writes to finish and
// closes every subscription.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
		close(s.done)
	}
	s.mu.Unlock()

	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
