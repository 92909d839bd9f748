package repo

import (
	"sync/atomic"

	"github.com/Cutii/firebase-go-sdk/internal/servervalues"
	"github.com/Cutii/firebase-go-sdk/internal/treenode"
	"github.com/Cutii/firebase-go-sdk/internal/treepath"
)

// CompletionCallback reports the outcome of a write. err is nil on
// success.
type CompletionCallback func(err error)

// Set writes value at path wholesale, dropping any existing priority.
func (r *Repo) Set(path treepath.Path, value any, onComplete CompletionCallback) {
	r.SetWithPriority(path, value, nil, onComplete)
}

// SetWithPriority writes value and priority at path wholesale.
//
// The write is applied to the sync tree and its resulting events are
// queued (not raised) before the transport call is made; only after the
// transport has been asked to send the write are the queued events
// flushed. This ordering — queue, send, flush — lets any synchronous
// transaction abort/rerun hooks layered on top compose correctly before
// the optimistic change becomes visible to listeners (spec.md §4.H.2).
func (r *Repo) SetWithPriority(path treepath.Path, value any, priority any, onComplete CompletionCallback) {
	r.sched.schedule(func() {
		unresolved := treenode.FromJSON(value)
		if priority != nil {
			unresolved = unresolved.WithPriority(treenode.FromJSON(priority))
		}

		ctx := r.generateServerValues()
		resolved := treenode.FromJSON(servervalues.Resolve(value, ctx))
		if priority != nil {
			resolved = resolved.WithPriority(treenode.FromJSON(servervalues.Resolve(priority, ctx)))
		}

		writeID := atomic.AddInt64(&r.nextWriteID, 1)
		events := r.serverTree.ApplyUserOverwrite(path, resolved, writeID, true)
		r.eventQueue.QueueEvents(path, events)

		// The server, not the client, is the authority on a deferred
		// value's final resolution, so the wire payload keeps the
		// unresolved sentinel; only the local optimistic view uses the
		// client-side resolution.
		r.metrics.IncWriteSent()
		r.transport.Put(path, unresolved.Val(true), func(status, errMsg string) {
			r.sched.schedule(func() { r.onWriteAck(writeID, path, status, errMsg, onComplete) })
		})

		affectedPath := r.rerunTransactions(r.abortTransactions(path))
		r.eventQueue.RaiseEventsForChangedPath(affectedPath, nil)
	})
}

// Update performs a multi-location patch: only the given children are
// replaced, everything else at path is left untouched. Follows the same
// queue/send/flush ordering as SetWithPriority.
func (r *Repo) Update(path treepath.Path, children map[string]any, onComplete CompletionCallback) {
	if len(children) == 0 {
		r.sched.schedule(func() {
			r.callOnCompleteCallback(func() {
				if onComplete != nil {
					onComplete(nil)
				}
			})
		})
		return
	}

	r.sched.schedule(func() {
		ctx := r.generateServerValues()
		resolvedChildren := make(map[string]*treenode.Node, len(children))
		wireChildren := make(map[string]any, len(children))
		for key, value := range children {
			resolvedChildren[key] = treenode.FromJSON(servervalues.Resolve(value, ctx))
			wireChildren[key] = treenode.FromJSON(value).Val(true)
		}

		writeID := atomic.AddInt64(&r.nextWriteID, 1)
		events := r.serverTree.ApplyUserMerge(path, resolvedChildren, writeID)
		r.eventQueue.QueueEvents(path, events)

		// As with SetWithPriority, the wire payload carries unresolved
		// deferred-value sentinels; only the local view is pre-resolved.
		r.metrics.IncWriteSent()
		r.transport.Merge(path, wireChildren, func(status, errMsg string) {
			r.sched.schedule(func() { r.onWriteAck(writeID, path, status, errMsg, onComplete) })
		})

		for key := range children {
			r.rerunTransactions(r.abortTransactions(path.Child(key)))
		}
		r.eventQueue.RaiseEventsForChangedPath(path, nil)
	})
}

// onWriteAck settles a pending write once the transport reports its
// outcome: a non-"ok" status reverts it (see synctree.Tree.AckUserWrite),
// otherwise its value is folded into the server cache.
func (r *Repo) onWriteAck(writeID int64, path treepath.Path, status, errMsg string, onComplete CompletionCallback) {
	success := status == "ok"
	if success {
		r.metrics.IncWriteAcked()
	} else {
		r.metrics.IncWriteReverted()
	}

	events := r.serverTree.AckUserWrite(writeID, !success)
	affectedPath := path
	if len(events) > 0 {
		affectedPath = r.rerunTransactions(path)
	}
	r.eventQueue.RaiseEventsForChangedPath(affectedPath, events)

	if onComplete == nil {
		return
	}
	var err error
	if !success {
		err = newCallbackError(status, errMsg)
	}
	r.callOnCompleteCallback(func() { onComplete(err) })
}
