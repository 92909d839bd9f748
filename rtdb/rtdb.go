// Package rtdb is the public client surface: Database and Ref wrap
// internal/repo.Repo's scheduler-serialised engine behind the small,
// path-addressed API the rest of the ecosystem expects from a realtime
// database client. Grounded on the teacher's own cmd/bd-facing public
// packages (e.g. the way internal/rpc's client type is a thin wrapper
// callers construct once and then address by path/id), generalized here
// to a hierarchical path instead of a flat id.
package rtdb

import (
	"context"
	"fmt"
	"time"

	"github.com/Cutii/firebase-go-sdk/internal/auth"
	"github.com/Cutii/firebase-go-sdk/internal/metrics"
	"github.com/Cutii/firebase-go-sdk/internal/repo"
	"github.com/Cutii/firebase-go-sdk/internal/treepath"
)

// Database is a single connection to a realtime database endpoint. Callers
// obtain Refs from it; the Database itself owns the engine and must be
// closed when no longer needed.
type Database struct {
	r *repo.Repo
}

// Config configures a Database. It mirrors internal/repo.Config; kept as a
// distinct type so the internal package layout can change without
// disturbing callers.
type Config struct {
	URL          string
	AuthOverride map[string]any
	Tokens       auth.TokenProvider
	ForceREST    bool
	UserAgent    string
	Reporter     metrics.Reporter
}

// NewDatabase connects to the database at cfg.URL and starts its engine.
func NewDatabase(cfg Config) (*Database, error) {
	r, err := repo.New(repo.Config{
		URL:          cfg.URL,
		AuthOverride: cfg.AuthOverride,
		Tokens:       cfg.Tokens,
		ForceREST:    cfg.ForceREST,
		UserAgent:    cfg.UserAgent,
		Reporter:     cfg.Reporter,
	})
	if err != nil {
		return nil, err
	}
	return &Database{r: r}, nil
}

// Ref returns a reference to the location named by the slash-separated
// path, relative to the database root.
func (d *Database) Ref(path string) *Ref {
	return &Ref{db: d, path: treepath.New(path)}
}

// Close stops the database's engine. In-flight writes are not awaited.
func (d *Database) Close() {
	d.r.Close()
}

// Stats returns a snapshot of the engine's counters.
func (d *Database) Stats() metrics.Stats {
	return d.r.Stats()
}

// StartStatsReporting launches periodic stats export via the Reporter
// supplied at construction, until ctx is cancelled.
func (d *Database) StartStatsReporting(ctx context.Context, interval time.Duration) {
	d.r.StartStatsReporting(ctx, interval)
}

// Ref addresses one location in the tree. A Ref is a cheap value; callers
// may derive a child Ref with Child without touching the network.
type Ref struct {
	db   *Database
	path treepath.Path
}

// Child returns a Ref to a location nested under this one.
func (ref *Ref) Child(name string) *Ref {
	return &Ref{db: ref.db, path: ref.path.Child(name)}
}

// Path returns this ref's absolute path as a slash-separated string.
func (ref *Ref) Path() string {
	return ref.path.String()
}

// Set replaces the value at this location wholesale, dropping any
// existing priority.
func (ref *Ref) Set(value any, onComplete func(err error)) {
	ref.db.r.Set(ref.path, value, onComplete)
}

// SetWithPriority replaces the value and priority at this location
// wholesale.
func (ref *Ref) SetWithPriority(value, priority any, onComplete func(err error)) {
	ref.db.r.SetWithPriority(ref.path, value, priority, onComplete)
}

// Update patches only the given children, leaving the rest of this
// location untouched.
func (ref *Ref) Update(children map[string]any, onComplete func(err error)) {
	ref.db.r.Update(ref.path, children, onComplete)
}

// ValueCallback receives a location's current value and every subsequent
// change. err is non-nil only if the underlying listen could not be
// established.
type ValueCallback func(value any, err error)

// On subscribes cb to this location's value, until the returned function
// is called.
func (ref *Ref) On(cb ValueCallback) (off func()) {
	return ref.db.r.On(ref.path, repo.ValueCallback(cb))
}

// OnDisconnect returns a handle for registering actions the server should
// run if this connection is lost before they are cancelled.
func (ref *Ref) OnDisconnect() *OnDisconnect {
	return &OnDisconnect{ref: ref}
}

// OnDisconnect is the builder for a single location's disconnect-time
// action. Registering a new action replaces whatever was previously
// registered at this location.
type OnDisconnect struct {
	ref *Ref
}

// Set arranges for value to be written at this location if the connection
// is lost before Cancel is called.
func (o *OnDisconnect) Set(value any, onComplete func(err error)) {
	o.ref.db.r.OnDisconnectSet(o.ref.path, value, onComplete)
}

// SetWithPriority is Set with an explicit priority.
func (o *OnDisconnect) SetWithPriority(value, priority any, onComplete func(err error)) {
	o.ref.db.r.OnDisconnectSetWithPriority(o.ref.path, value, priority, onComplete)
}

// Update arranges for only the given children to be written at this
// location if the connection is lost.
func (o *OnDisconnect) Update(children map[string]any, onComplete func(err error)) {
	o.ref.db.r.OnDisconnectUpdate(o.ref.path, children, onComplete)
}

// Cancel removes any on-disconnect action previously registered at this
// location.
func (o *OnDisconnect) Cancel(onComplete func(err error)) {
	o.ref.db.r.OnDisconnectCancel(o.ref.path, onComplete)
}

// Get fetches the current value at this location once, by registering and
// immediately tearing down a listener. It blocks until the value arrives
// or ctx is done.
func (ref *Ref) Get(ctx context.Context) (any, error) {
	type result struct {
		value any
		err   error
	}
	results := make(chan result, 1)
	var off func()
	off = ref.On(func(value any, err error) {
		select {
		case results <- result{value, err}:
		default:
		}
	})
	defer off()

	select {
	case res := <-results:
		return res.value, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("rtdb: Get canceled: %w", ctx.Err())
	}
}
