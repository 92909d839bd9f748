package repo

import (
	"sync/atomic"

	"github.com/Cutii/firebase-go-sdk/internal/eventqueue"
	"github.com/Cutii/firebase-go-sdk/internal/synctree"
	"github.com/Cutii/firebase-go-sdk/internal/transport"
	"github.com/Cutii/firebase-go-sdk/internal/treenode"
	"github.com/Cutii/firebase-go-sdk/internal/treepath"
)

// ValueCallback receives a listener's current value, exported as a plain
// Go value (maps, slices, and scalars). err is non-nil only if the
// underlying listen could not be established.
type ValueCallback func(value any, err error)

// valueRegistration adapts a ValueCallback into an eventqueue.Registration.
type valueRegistration struct {
	id      string
	metrics callbackMetrics
	onValue ValueCallback
}

// callbackMetrics is the subset of *metrics.Collector a registration needs,
// kept narrow so tests can fake it without constructing a real collector.
type callbackMetrics interface {
	IncEventDelivered()
	IncCallbackPanic()
}

func (v *valueRegistration) ID() string { return v.id }

func (v *valueRegistration) Fire(evt eventqueue.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			v.metrics.IncCallbackPanic()
		}
	}()
	v.metrics.IncEventDelivered()
	v.onValue(evt.Snapshot, evt.Err)
}

// On registers cb to receive the current value at path and every
// subsequent change, until the returned cancel func is called. Matches
// spec.md's addEventCallbackForQuery for an unfiltered, untagged listener.
func (r *Repo) On(path treepath.Path, cb ValueCallback) (cancel func()) {
	query := synctree.Query{Path: path}
	reg := &valueRegistration{
		id:      newRegistrationID(path, atomic.AddInt64(&r.regCounter, 1)),
		metrics: r.metrics,
		onValue: cb,
	}

	done := make(chan struct{})
	r.sched.schedule(func() {
		tree := r.treeFor(path)
		events := tree.AddEventRegistration(query, reg)
		r.eventQueue.RaiseEventsAtPath(path, events)
		close(done)
	})
	<-done

	return func() {
		r.sched.schedule(func() {
			tree := r.treeFor(path)
			events := tree.RemoveEventRegistration(query, reg)
			r.eventQueue.RaiseEventsAtPath(path, events)
		})
	}
}

// infoStartListening implements synctree.StartListeningFunc for the
// synthetic .info tree (spec.md §4.H.1 step 6): since .info has no real
// server behind it, establishing a listen just means reporting back, on a
// later scheduler turn, whatever is already cached there.
func (r *Repo) infoStartListening(q synctree.Query, _ func() string, onComplete func(string, any)) []eventqueue.Event {
	view := r.infoTree.ViewAt(q.Path)
	if !view.IsEmpty() {
		data := view.Val(true)
		r.sched.schedule(func() { onComplete("ok", data) })
	}
	return nil
}

// serverStartListening implements synctree.StartListeningFunc for the
// real server tree: it forwards to the transport and re-enters the
// scheduler before touching engine state from the transport's callback.
func (r *Repo) serverStartListening(q synctree.Query, _ func() string, onComplete func(string, any)) []eventqueue.Event {
	tq := transport.Query{Path: q.Path, Tag: q.Tag}
	r.transport.Listen(tq,
		func(status string, data any) {
			r.sched.schedule(func() {
				if status == "ok" {
					r.metrics.IncListenEstablished()
				} else {
					r.metrics.IncListenFailed()
				}
				if status == "ok" && data != nil {
					// The tree's own onComplete discards the events of the
					// initial overwrite, so apply it here and raise them.
					r.onDataUpdate(q.Tag, false, q.Path, data)
					return
				}
				onComplete(status, data)
			})
		},
		func(isMerge bool, path treepath.Path, data any) {
			r.sched.schedule(func() { r.onDataUpdate(q.Tag, isMerge, path, data) })
		},
	)
	return nil
}

func (r *Repo) serverStopListening(q synctree.Query) {
	r.transport.Unlisten(transport.Query{Path: q.Path, Tag: q.Tag})
}

// onDataUpdate applies a pushed server overwrite or merge to the server
// tree and raises the resulting events. tag 0 means an ordinary,
// untagged listen.
func (r *Repo) onDataUpdate(tag int64, isMerge bool, path treepath.Path, data any) {
	var events []eventqueue.Event
	if isMerge {
		childrenRaw, _ := data.(map[string]any)
		children := make(map[string]*treenode.Node, len(childrenRaw))
		for k, v := range childrenRaw {
			children[k] = treenode.FromJSON(v)
		}
		if tag != 0 {
			events = r.serverTree.ApplyTaggedQueryMerge(path, children, tag)
		} else {
			events = r.serverTree.ApplyServerMerge(path, children)
		}
	} else {
		node := treenode.FromJSON(data)
		if tag != 0 {
			events = r.serverTree.ApplyTaggedQueryOverwrite(path, node, tag)
		} else {
			events = r.serverTree.ApplyServerOverwrite(path, node)
		}
	}
	affectedPath := path
	if len(events) > 0 {
		affectedPath = r.rerunTransactions(path)
	}
	r.eventQueue.RaiseEventsForChangedPath(affectedPath, events)
}
