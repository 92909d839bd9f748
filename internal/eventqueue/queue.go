// Package eventqueue implements the serialised, path-scoped notification
// dispatcher (component G of the reconciliation engine). Its delivery loop
// is modeled directly on the teacher corpus's event bus
// (internal/eventbus.Bus.Dispatch): handlers run sequentially, one at a
// time, and a handler's panic is caught and logged rather than allowed to
// abort the drain. Unlike the bus, which dispatches a single event to many
// handlers, the queue dispatches many event batches — each already bound
// to the registrations that should see them — in strict FIFO order.
package eventqueue

import (
	"fmt"
	"log"

	"github.com/Cutii/firebase-go-sdk/internal/treepath"
)

// Event is one notification ready for delivery: a snapshot-changed,
// child-changed, or cancel event, already bound to the registration that
// should receive it.
type Event struct {
	Path         treepath.Path
	Registration Registration
	Type         string // "value", "child_added", "child_changed", "child_removed", "child_moved", "cancel"
	ChildKey     string
	Snapshot     any // the node's plain value (Val(false), no priority) delivered to the listener
	Err          error
}

// Registration is anything the sync tree can deliver an Event to. Event
// registrations (user listeners) and synthetic completion callbacks both
// implement it.
type Registration interface {
	// ID uniquely identifies this registration within its owning query, so
	// addEventRegistration/removeEventRegistration can find it again.
	ID() string
	// Fire delivers one event. It must not block and must not itself
	// enqueue onto the same Queue synchronously in a way that would
	// re-enter Drain — the queue detects and defers such reentrancy (see
	// Queue.draining).
	Fire(Event)
}

// batch is one changed-path's worth of events, queued together so they are
// always delivered as a contiguous run.
type batch struct {
	path   treepath.Path
	events []Event
}

// Queue is a FIFO of event batches. It has no internal lock: the
// reconciliation engine runs its single scheduler goroutine (see
// internal/repo/scheduler.go) as the only caller, matching the
// single-threaded cooperative model in the spec's concurrency section.
type Queue struct {
	batches  []batch
	draining bool
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// QueueEvents appends a batch without draining. Used when the caller needs
// to defer delivery until after some other side effect (e.g. sending a
// write to the transport) has happened — see the ordering rule in
// spec.md §4.H.2.
func (q *Queue) QueueEvents(path treepath.Path, events []Event) {
	if len(events) == 0 {
		return
	}
	q.batches = append(q.batches, batch{path: path, events: events})
}

// RaiseEventsForChangedPath appends a batch (if any events are given) and
// then drains the whole queue, delivering every pending batch — including
// ones queued earlier by QueueEvents — in FIFO order.
func (q *Queue) RaiseEventsForChangedPath(path treepath.Path, events []Event) {
	q.QueueEvents(path, events)
	q.drain()
}

// RaiseEventsAtPath delivers events immediately, bypassing the queue. It is
// for registration install/uninstall, where the initial or cancel event
// must reach the caller synchronously rather than interleave with whatever
// else is mid-drain.
func (q *Queue) RaiseEventsAtPath(path treepath.Path, events []Event) {
	for _, evt := range events {
		deliver(evt)
	}
}

// drain delivers every queued batch in order. Reentrant calls (a
// registration callback that itself calls QueueEvents/RaiseEventsForChangedPath)
// are safe: the nested call's batches are appended to the same slice and
// picked up by the outer drain loop rather than starting a second,
// concurrent drain.
func (q *Queue) drain() {
	if q.draining {
		return
	}
	q.draining = true
	defer func() { q.draining = false }()

	for len(q.batches) > 0 {
		b := q.batches[0]
		q.batches = q.batches[1:]
		for _, evt := range b.events {
			deliver(evt)
		}
	}
}

// deliver fires one event under an exception guard: a panicking
// registration callback is logged and does not abort the drain, matching
// the CallbackFault handling policy in spec.md §7.
func deliver(evt Event) {
	if evt.Registration == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("eventqueue: registration %s panicked delivering %s %s: %v",
				evt.Registration.ID(), evt.Type, evt.Path, fmt.Sprint(r))
		}
	}()
	evt.Registration.Fire(evt)
}
