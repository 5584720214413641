package cartstore

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// pendingWrite is the next record the writer will store. Later mutations
// overwrite products in place, so only the latest state is ever written,
// and every waiter whose state was folded in is answered by that write.
type pendingWrite struct {
	products []Product
	remove   bool
	waiters  []chan error
}

func (s *Store) enqueueLocked(products []Product, remove bool, wait chan error) {
	if s.pending == nil {
		s.pending = &pendingWrite{}
	}
	s.pending.products = products
	s.pending.remove = remove
	if wait != nil {
		s.pending.waiters = append(s.pending.waiters, wait)
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run is the single writer. It exits after draining the queue once done is
// closed.
func (s *Store) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.wake:
			s.writePending()
		case <-s.done:
			s.writePending()
			return
		}
	}
}

func (s *Store) writePending() {
	s.mu.Lock()
	w := s.pending
	s.pending = nil
	s.mu.Unlock()

	if w == nil {
		return
	}
	err := s.write(w)
	for _, ch := range w.waiters {
		ch <- err
	}
}

func (s *Store) write(w *pendingWrite) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "cartstore.persist", trace.WithAttributes(
		attribute.String("cart.key", s.key),
		attribute.Int("cart.products", len(w.products)),
		attribute.Bool("cart.remove", w.remove),
	))
	defer span.End()

	var err error
	if w.remove {
		err = s.kv.Remove(ctx, s.key)
	} else {
		var raw string
		if raw, err = EncodeProducts(w.products); err == nil {
			err = s.kv.Set(ctx, s.key, raw)
		}
	}
	s.metrics.recordWrite(ctx, s.key, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.WithError(err).Error("cartstore: persisting cart failed")
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}
