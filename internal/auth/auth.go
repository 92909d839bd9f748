// Package auth implements the token sources the reconciliation engine can
// be configured with. The interface is deliberately small — a string token
// plus change notification — mirroring how the teacher corpus threads a
// bearer token through its clients (internal/coop.Client's token field and
// WithToken option), generalized here from a fixed value into something
// that can also proactively refresh.
package auth

import (
	"context"
	"sync"
	"time"
)

// TokenProvider supplies the credential the transport presents to the
// server, and notifies interested parties when it changes so the engine
// can call ServerActions.RefreshAuthToken.
type TokenProvider interface {
	// Token returns the current token, or "" if unauthenticated.
	Token() string
	// AddTokenChangeListener registers fn to be called, with the new
	// token, every time it changes. The returned func removes it.
	AddTokenChangeListener(fn func(token string)) (remove func())
}

// Static is a TokenProvider for a token that never changes — or that only
// changes when SetToken is called explicitly (e.g. after the caller's own
// sign-in flow completes).
type Static struct {
	mu        sync.Mutex
	token     string
	listeners map[int]func(string)
	nextID    int
}

// NewStatic returns a Static provider holding token (which may be "").
func NewStatic(token string) *Static {
	return &Static{token: token, listeners: make(map[int]func(string))}
}

func (s *Static) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Static) AddTokenChangeListener(fn func(string)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// SetToken updates the held token and notifies every listener.
func (s *Static) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	listeners := make([]func(string), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(token)
	}
}

// RefreshFunc mints a fresh token. It is called with a context bound to
// the Refreshing provider's lifetime; a non-nil error leaves the
// previously held token in place.
type RefreshFunc func(ctx context.Context) (token string, ttl time.Duration, err error)

// Refreshing is a TokenProvider that proactively re-mints its token shortly
// before it would expire, using RefreshFunc.
type Refreshing struct {
	refresh RefreshFunc

	mu        sync.Mutex
	token     string
	listeners map[int]func(string)
	nextID    int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRefreshing starts a background refresh loop immediately: it calls
// refresh once synchronously to obtain the initial token, then schedules
// subsequent refreshes at ttl*0.9 via the given context.
func NewRefreshing(ctx context.Context, refresh RefreshFunc) (*Refreshing, error) {
	token, ttl, err := refresh(ctx)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &Refreshing{
		refresh:   refresh,
		token:     token,
		listeners: make(map[int]func(string)),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go r.loop(runCtx, ttl)
	return r, nil
}

func (r *Refreshing) loop(ctx context.Context, ttl time.Duration) {
	defer close(r.done)
	for {
		wait := ttl - ttl/10
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		token, nextTTL, err := r.refresh(ctx)
		if err != nil {
			// Keep the stale token; try again on the same cadence rather
			// than tightening into a retry storm.
			continue
		}
		ttl = nextTTL

		r.mu.Lock()
		r.token = token
		listeners := make([]func(string), 0, len(r.listeners))
		for _, fn := range r.listeners {
			listeners = append(listeners, fn)
		}
		r.mu.Unlock()
		for _, fn := range listeners {
			fn(token)
		}
	}
}

func (r *Refreshing) Token() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

func (r *Refreshing) AddTokenChangeListener(fn func(string)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// Close stops the refresh loop.
func (r *Refreshing) Close() {
	r.cancel()
	<-r.done
}
