package concurrency

import (
	"context"
	"net"
	"net/http"
	"sync"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/semaphore"
)

// Backend runs work according to a scheduling model
type Backend interface {
	Kind() Kind
	// Wrap applies the scheduling model to an HTTP handler
	Wrap(h http.Handler) http.Handler
	// Listener bounds accepted connections
	Listener(l net.Listener) net.Listener
	// Go runs fn; blocking backends run it inline
	Go(ctx context.Context, fn func(context.Context)) error
	// Wait blocks until all work started with Go has finished
	Wait()
}

// New returns the backend selected by sub. maxInFlight bounds the
// cooperative backend and is ignored by the blocking one.
func New(sub Substrate, maxInFlight int) Backend {
	if sub.Backend == Cooperative {
		return newCooperative(maxInFlight)
	}
	return &blocking{}
}

type blocking struct {
	mu sync.Mutex
}

func (b *blocking) Kind() Kind { return Blocking }

func (b *blocking) Wrap(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		h.ServeHTTP(w, r)
	})
}

func (b *blocking) Listener(l net.Listener) net.Listener { return l }

func (b *blocking) Go(ctx context.Context, fn func(context.Context)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(ctx)
	return nil
}

func (b *blocking) Wait() {}

// connsPerSlot allows idle keep-alive connections beyond the in-flight limit
const connsPerSlot = 4

type cooperative struct {
	sem   *semaphore.Weighted
	limit int
	wg    sync.WaitGroup
}

func newCooperative(maxInFlight int) *cooperative {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &cooperative{
		sem:   semaphore.NewWeighted(int64(maxInFlight)),
		limit: maxInFlight,
	}
}

func (c *cooperative) Kind() Kind { return Cooperative }

func (c *cooperative) Wrap(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := c.sem.Acquire(r.Context(), 1); err != nil {
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		defer c.sem.Release(1)
		h.ServeHTTP(w, r)
	})
}

func (c *cooperative) Listener(l net.Listener) net.Listener {
	return netutil.LimitListener(l, c.limit*connsPerSlot)
}

func (c *cooperative) Go(ctx context.Context, fn func(context.Context)) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.sem.Release(1)
		fn(ctx)
	}()
	return nil
}

func (c *cooperative) Wait() {
	c.wg.Wait()
}
