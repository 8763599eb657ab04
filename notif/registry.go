package notif

import (
	"context"
	"sync"
	"sync/atomic"

	"chat-server/domain"
)

// backlogCap bounds how many undelivered events a single receive handle may
// buffer before it starts losing its oldest ones.
const backlogCap = 1024

// endpoint is one user's broadcast point: a single publisher, any number of
// concurrently attached receive handles, each with an independent backlog.
type endpoint struct {
	mu   sync.Mutex
	subs map[*Receiver]struct{}
}

func newEndpoint() *endpoint {
	return &endpoint{subs: make(map[*Receiver]struct{})}
}

func (e *endpoint) subscribe(capacity int) *Receiver {
	r := &Receiver{ep: e, ch: make(chan domain.AppEvent, capacity)}
	e.mu.Lock()
	e.subs[r] = struct{}{}
	e.mu.Unlock()
	return r
}

func (e *endpoint) send(ev domain.AppEvent) {
	e.mu.Lock()
	for r := range e.subs {
		r.push(ev)
	}
	e.mu.Unlock()
}

// Receiver is one live subscription's receive handle. Handles on the same
// endpoint each see every published event; a handle that stops reading loses
// its oldest buffered events rather than slowing anyone else down.
type Receiver struct {
	ep     *endpoint
	ch     chan domain.AppEvent
	missed atomic.Uint64
	once   sync.Once
}

// push enqueues ev without ever blocking the publisher: when the backlog is
// full the oldest buffered event is dropped and counted against this handle.
func (r *Receiver) push(ev domain.AppEvent) {
	for {
		select {
		case r.ch <- ev:
			return
		default:
		}
		select {
		case <-r.ch:
			r.missed.Add(1)
		default:
			// reader drained the backlog between the two selects; retry
		}
	}
}

// Recv blocks until the next event arrives or ctx is done. missed reports
// how many events were dropped for this handle since the previous Recv.
func (r *Receiver) Recv(ctx context.Context) (ev domain.AppEvent, missed uint64, err error) {
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case ev = <-r.ch:
		return ev, r.missed.Swap(0), nil
	}
}

// Close detaches this handle from its endpoint. Other handles for the same
// user keep receiving; the endpoint itself is never torn down.
func (r *Receiver) Close() {
	r.once.Do(func() {
		r.ep.mu.Lock()
		delete(r.ep.subs, r)
		r.ep.mu.Unlock()
	})
}
