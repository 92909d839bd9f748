package repo

import (
	"sync/atomic"

	"github.com/Cutii/firebase-go-sdk/internal/eventqueue"
	"github.com/Cutii/firebase-go-sdk/internal/servervalues"
	"github.com/Cutii/firebase-go-sdk/internal/sparsetree"
	"github.com/Cutii/firebase-go-sdk/internal/transport"
	"github.com/Cutii/firebase-go-sdk/internal/treenode"
	"github.com/Cutii/firebase-go-sdk/internal/treepath"
)

var infoRoot = treepath.New("/.info")

// Repo implements transport.ConnectionObserver: PersistentTransport calls
// these from whatever internal goroutine detects the event, so each one
// re-enters the scheduler before touching engine state (spec.md §4.H.4).
var _ transport.ConnectionObserver = (*Repo)(nil)

func (r *Repo) OnConnect(timestampOffsetMillis int64) {
	r.sched.schedule(func() {
		atomic.StoreInt64(&r.serverTimeOffsetMs, timestampOffsetMillis)
		r.updateInfo("serverTimeOffset", float64(timestampOffsetMillis))
		r.updateInfo("connected", true)
		r.metrics.IncReconnect()
	})
}

func (r *Repo) OnDisconnect() {
	r.sched.schedule(func() {
		r.updateInfo("connected", false)
		r.runOnDisconnectEvents()
	})
}

func (r *Repo) OnServerInfoUpdate(updates map[string]any) {
	r.sched.schedule(func() {
		for key, value := range updates {
			r.updateInfo(key, value)
		}
	})
}

// updateInfo writes a value into the synthetic .info subtree and raises
// the resulting events. It is the only writer of that tree (see
// internal/snapshot's single-writer note, which synctree.Tree's embedded
// holder inherits for the .info instance).
func (r *Repo) updateInfo(key string, value any) {
	path := infoRoot.Child(key)
	node := treenode.FromJSON(value)
	events := r.infoTree.ApplyServerOverwrite(path, node)
	r.eventQueue.RaiseEventsForChangedPath(path, events)
}

// runOnDisconnectEvents applies every remembered on-disconnect action
// locally, as though the server had just executed it, then clears the
// tree. The server runs these actions itself once the connection drops —
// the client cannot observe that directly — so this keeps the local cache
// consistent with what the server is assumed to now hold, using server
// values captured at the moment of disconnect rather than whenever the
// tree happens to be walked.
func (r *Repo) runOnDisconnectEvents() {
	ctx := r.generateServerValues()
	var events []eventqueue.Event
	r.onDisconnectTree.ForEachTree(treepath.Empty, func(path treepath.Path, node *treenode.Node) {
		resolved := treenode.FromJSON(servervalues.Resolve(node.Val(true), ctx))
		events = append(events, r.serverTree.ApplyServerOverwrite(path, resolved)...)
		r.rerunTransactions(r.abortTransactions(path))
	})
	r.onDisconnectTree = sparsetree.New()
	r.eventQueue.RaiseEventsForChangedPath(treepath.Empty, events)
}

// OnDisconnectSet arranges for value to be written at path if this
// connection is lost.
func (r *Repo) OnDisconnectSet(path treepath.Path, value any, onComplete CompletionCallback) {
	r.OnDisconnectSetWithPriority(path, value, nil, onComplete)
}

// OnDisconnectSetWithPriority is OnDisconnectSet with an explicit priority.
// The on-disconnect tree is only updated once the server has acknowledged
// the registration, matching the teacher's write-ack-before-local-commit
// discipline used for ordinary writes.
func (r *Repo) OnDisconnectSetWithPriority(path treepath.Path, value any, priority any, onComplete CompletionCallback) {
	r.sched.schedule(func() {
		node := treenode.FromJSON(value)
		if priority != nil {
			node = node.WithPriority(treenode.FromJSON(priority))
		}
		r.transport.OnDisconnect(transport.OnDisconnectPut, path, node.Val(true), func(status, errMsg string) {
			r.sched.schedule(func() {
				if status == "ok" {
					r.onDisconnectTree.Remember(path, node)
				}
				r.finishOnDisconnect(status, errMsg, onComplete)
			})
		})
	})
}

// OnDisconnectUpdate arranges for only the given children to be written at
// path if this connection is lost.
func (r *Repo) OnDisconnectUpdate(path treepath.Path, children map[string]any, onComplete CompletionCallback) {
	if len(children) == 0 {
		r.sched.schedule(func() { r.finishOnDisconnect("ok", "", onComplete) })
		return
	}

	r.sched.schedule(func() {
		nodes := make(map[string]*treenode.Node, len(children))
		wireChildren := make(map[string]any, len(children))
		for key, value := range children {
			child := treenode.FromJSON(value)
			nodes[key] = child
			wireChildren[key] = child.Val(true)
		}
		r.transport.OnDisconnect(transport.OnDisconnectMerge, path, wireChildren, func(status, errMsg string) {
			r.sched.schedule(func() {
				if status == "ok" {
					for key, child := range nodes {
						r.onDisconnectTree.Remember(path.Child(key), child)
					}
				}
				r.finishOnDisconnect(status, errMsg, onComplete)
			})
		})
	})
}

// OnDisconnectCancel removes any on-disconnect action previously
// registered at path.
func (r *Repo) OnDisconnectCancel(path treepath.Path, onComplete CompletionCallback) {
	r.sched.schedule(func() {
		r.transport.OnDisconnect(transport.OnDisconnectCancel, path, nil, func(status, errMsg string) {
			r.sched.schedule(func() {
				if status == "ok" {
					r.onDisconnectTree.Forget(path)
				}
				r.finishOnDisconnect(status, errMsg, onComplete)
			})
		})
	})
}

func (r *Repo) finishOnDisconnect(status, errMsg string, onComplete CompletionCallback) {
	if onComplete == nil {
		return
	}
	var err error
	if status != "ok" {
		err = newCallbackError(status, errMsg)
	}
	r.callOnCompleteCallback(func() { onComplete(err) })
}
