// Package synctree implements the overlay that fuses the server's
// authoritative cache with the client's pending optimistic writes and
// emits the event deltas that result from any mutation. It is the
// persistent-cache-plus-ordered-write-list model described in spec.md's
// design notes, and is modeled structurally on the teacher corpus's
// query cache (internal/rpc.QueryCache): a keyed view over an
// invalidate-on-write store, except here "invalidate" is replaced by a
// precise diff against each active registration so only genuinely
// changed listeners are notified.
package synctree

import (
	"github.com/Cutii/firebase-go-sdk/internal/eventqueue"
	"github.com/Cutii/firebase-go-sdk/internal/snapshot"
	"github.com/Cutii/firebase-go-sdk/internal/treenode"
	"github.com/Cutii/firebase-go-sdk/internal/treepath"
)

// Query identifies a listener's scope: a path, optionally narrowed to a
// tagged (filtered) listen. Tag 0 means "the default, untagged listener".
type Query struct {
	Path treepath.Path
	Tag  int64
}

func (q Query) key() string {
	if q.Tag == 0 {
		return q.Path.String()
	}
	return q.Path.String() + "#" + int64key(q.Tag)
}

func int64key(v int64) string {
	// Small deterministic formatter, kept local so Query.key needs no
	// strconv import.
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// WriteKind distinguishes a full overwrite from a child merge.
type WriteKind int

const (
	// Overwrite replaces the node at Path wholesale.
	Overwrite WriteKind = iota
	// Merge replaces only the named children at Path.
	Merge
)

type pendingWrite struct {
	id         int64
	path       treepath.Path
	kind       WriteKind
	node       *treenode.Node
	children   map[string]*treenode.Node
	visible    bool
	superseded bool // a server update has since landed at, above, or below this path
}

// StartListeningFunc is invoked when the aggregate listener set at a query
// transitions from zero to one. currentHash reports the caller's best
// current view of that path's data, for change-detection on the wire.
type StartListeningFunc func(q Query, currentHash func() string, onComplete func(status string, data any)) []eventqueue.Event

// StopListeningFunc is invoked when the aggregate listener set at a query
// drops back to zero.
type StopListeningFunc func(q Query)

// Tree is the server-cache-plus-pending-writes overlay described in
// spec.md §3/§4.F. It has no lock: like eventqueue.Queue, it is only ever
// touched from the engine's single scheduler goroutine.
type Tree struct {
	server *snapshot.Holder
	writes []*pendingWrite

	regs           []*registrationState
	listenerCounts map[string]int

	startListening StartListeningFunc
	stopListening  StopListeningFunc
}

type registrationState struct {
	query     Query
	reg       eventqueue.Registration
	lastValue *treenode.Node
	primed    bool
}

// New builds a Tree with the given listen-aggregation hooks. Either hook
// may be nil (a no-op), matching e.g. the info tree's stopListening.
func New(startListening StartListeningFunc, stopListening StopListeningFunc) *Tree {
	return &Tree{
		server:         snapshot.NewHolder(),
		listenerCounts: make(map[string]int),
		startListening: startListening,
		stopListening:  stopListening,
	}
}

// ApplyServerOverwrite replaces the server cache at path and returns the
// events this produces for active registrations.
func (t *Tree) ApplyServerOverwrite(path treepath.Path, node *treenode.Node) []eventqueue.Event {
	t.server.UpdateSnapshot(path, node)
	t.markSuperseded(path)
	return t.reconcile(path)
}

// ApplyServerMerge merges children into the server cache at path.
func (t *Tree) ApplyServerMerge(path treepath.Path, children map[string]*treenode.Node) []eventqueue.Event {
	base := t.server.GetNode(path)
	for key, child := range children {
		base = base.UpdateChild(key, child)
	}
	t.server.UpdateSnapshot(path, base)
	t.markSuperseded(path)
	return t.reconcile(path)
}

// ApplyTaggedQueryOverwrite is the tagged-listen counterpart of
// ApplyServerOverwrite: it updates the same underlying server cache (this
// engine does not model distinct per-tag server caches) but only
// reconciles registrations belonging to that tag's query.
func (t *Tree) ApplyTaggedQueryOverwrite(path treepath.Path, node *treenode.Node, tag int64) []eventqueue.Event {
	t.server.UpdateSnapshot(path, node)
	t.markSuperseded(path)
	return t.reconcileTag(path, tag)
}

// ApplyTaggedQueryMerge is the tagged-listen counterpart of ApplyServerMerge.
func (t *Tree) ApplyTaggedQueryMerge(path treepath.Path, children map[string]*treenode.Node, tag int64) []eventqueue.Event {
	base := t.server.GetNode(path)
	for key, child := range children {
		base = base.UpdateChild(key, child)
	}
	t.server.UpdateSnapshot(path, base)
	t.markSuperseded(path)
	return t.reconcileTag(path, tag)
}

// ApplyUserOverwrite records a pending optimistic overwrite on top of the
// server cache.
func (t *Tree) ApplyUserOverwrite(path treepath.Path, node *treenode.Node, writeID int64, visible bool) []eventqueue.Event {
	t.writes = append(t.writes, &pendingWrite{id: writeID, path: path, kind: Overwrite, node: node, visible: visible})
	return t.reconcile(path)
}

// ApplyUserMerge records a pending optimistic merge on top of the server
// cache. User merges are always visible.
func (t *Tree) ApplyUserMerge(path treepath.Path, children map[string]*treenode.Node, writeID int64) []eventqueue.Event {
	t.writes = append(t.writes, &pendingWrite{id: writeID, path: path, kind: Merge, children: children, visible: true})
	return t.reconcile(path)
}

// AckUserWrite drops the pending write identified by writeID.
//
// If revert is true, the write is simply discarded and the view falls back
// to the server cache (and any still-pending writes below it) — the
// compensating event this produces is the undo of the original optimistic
// change.
//
// If revert is false, and no server update has landed at, above, or below
// the write's path since it was applied (see markSuperseded), the write's
// value is folded into the server cache before being discarded: the ack
// stands in for "the server cache will catch up via a subsequent server
// update" (spec.md §9) for the common case where that update has not yet
// separately arrived. If a fresher server value already arrived while the
// write was pending, folding is skipped so that fresher value is what the
// view falls back to.
func (t *Tree) AckUserWrite(writeID int64, revert bool) []eventqueue.Event {
	idx := -1
	var w *pendingWrite
	for i, candidate := range t.writes {
		if candidate.id == writeID {
			idx, w = i, candidate
			break
		}
	}
	if w == nil {
		return nil
	}
	if !revert && !w.superseded {
		switch w.kind {
		case Overwrite:
			t.server.UpdateSnapshot(w.path, w.node)
		case Merge:
			base := t.server.GetNode(w.path)
			for key, child := range w.children {
				base = base.UpdateChild(key, child)
			}
			t.server.UpdateSnapshot(w.path, base)
		}
	}
	t.writes = append(t.writes[:idx], t.writes[idx+1:]...)
	return t.reconcile(w.path)
}

// AddEventRegistration attaches reg to query, delivering its initial value
// synchronously (as part of the returned event list) and invoking
// startListening if this is the first registration at query.
func (t *Tree) AddEventRegistration(query Query, reg eventqueue.Registration) []eventqueue.Event {
	state := &registrationState{query: query, reg: reg}
	t.regs = append(t.regs, state)

	var events []eventqueue.Event
	key := query.key()
	t.listenerCounts[key]++
	if t.listenerCounts[key] == 1 && t.startListening != nil {
		view := t.ViewAt(query.Path)
		events = append(events, t.startListening(query, func() string { return view.Hash() }, t.onListenComplete(query))...)
	}

	view := t.ViewAt(query.Path)
	state.lastValue = view
	state.primed = true
	events = append(events, eventqueue.Event{
		Path:         query.Path,
		Registration: reg,
		Type:         "value",
		Snapshot:     view.Val(false),
	})
	return events
}

// RemoveEventRegistration detaches reg from query. No cancel event is
// synthesized (matching spec.md §4.H.7), and the returned list is always
// nil.
func (t *Tree) RemoveEventRegistration(query Query, reg eventqueue.Registration) []eventqueue.Event {
	for i, state := range t.regs {
		if state.reg == reg && state.query.key() == query.key() {
			t.regs = append(t.regs[:i], t.regs[i+1:]...)
			break
		}
	}
	key := query.key()
	if t.listenerCounts[key] > 0 {
		t.listenerCounts[key]--
		if t.listenerCounts[key] == 0 {
			delete(t.listenerCounts, key)
			if t.stopListening != nil {
				t.stopListening(query)
			}
		}
	}
	return nil
}

// onListenComplete builds the callback passed to startListening: on a
// successful listen ack carrying initial data, it applies that data as a
// server (or tagged-query) overwrite. The events that overwrite produces
// are neither returned nor raised here; a caller that needs them delivered
// (internal/repo's server listen) applies the initial data itself through
// ApplyServerOverwrite/ApplyTaggedQueryOverwrite and raises the result on
// its own event queue.
func (t *Tree) onListenComplete(query Query) func(status string, data any) {
	return func(status string, data any) {
		if status != "ok" || data == nil {
			return
		}
		node := treenode.FromJSON(data)
		if query.Tag != 0 {
			t.ApplyTaggedQueryOverwrite(query.Path, node, query.Tag)
			return
		}
		t.ApplyServerOverwrite(query.Path, node)
	}
}

// ViewAt computes the effective node at path: the server cache overlaid by
// every currently pending (visible) write at, above, or below path,
// applied in the order they were recorded.
func (t *Tree) ViewAt(path treepath.Path) *treenode.Node {
	node := t.server.GetNode(path)
	for _, w := range t.writes {
		if !w.visible {
			continue
		}
		node = applyWriteToView(node, w, path)
	}
	return node
}

// applyWriteToView folds one pending write into node, which is assumed to
// already be the value at viewPath.
func applyWriteToView(node *treenode.Node, w *pendingWrite, viewPath treepath.Path) *treenode.Node {
	switch {
	case w.path.Equal(viewPath):
		return foldWrite(node, w)
	case w.path.Contains(viewPath):
		// viewPath is a descendant of the write's path: carve the
		// sub-node for viewPath out of the write's own value. A merge
		// only covers viewPath when viewPath lies under one of its
		// children; otherwise node is left as it is.
		rel := relativeSegments(w.path, viewPath)
		written := w.node
		if w.kind == Merge {
			child, ok := w.children[rel[0]]
			if !ok {
				return node
			}
			written, rel = child, rel[1:]
		}
		for _, seg := range rel {
			written = written.Child(seg)
		}
		return written
	case viewPath.Contains(w.path):
		// The write lands somewhere below viewPath: graft it into the
		// subtree at the relative key.
		rel := relativeSegments(viewPath, w.path)
		return graft(node, rel, w)
	default:
		return node
	}
}

func foldWrite(base *treenode.Node, w *pendingWrite) *treenode.Node {
	if w.kind == Overwrite {
		return w.node
	}
	for key, child := range w.children {
		base = base.UpdateChild(key, child)
	}
	return base
}

func graft(node *treenode.Node, rel []string, w *pendingWrite) *treenode.Node {
	if len(rel) == 0 {
		return foldWrite(node, w)
	}
	key := rel[0]
	child := graft(node.Child(key), rel[1:], w)
	return node.UpdateChild(key, child)
}

func relativeSegments(ancestor, descendant treepath.Path) []string {
	full := descendant.Segments()
	return full[ancestor.Len():]
}

// markSuperseded flags any pending write whose path overlaps path (at,
// above, or below it) as superseded by a fresher server update, so a later
// successful ack for that write will not clobber the fresher value (see
// AckUserWrite).
func (t *Tree) markSuperseded(path treepath.Path) {
	for _, w := range t.writes {
		if path.Contains(w.path) || w.path.Contains(path) {
			w.superseded = true
		}
	}
}

// reconcile recomputes every registration whose view could have changed
// because of a mutation at path, and returns the resulting events.
func (t *Tree) reconcile(changed treepath.Path) []eventqueue.Event {
	return t.reconcileFiltered(changed, func(Query) bool { return true })
}

func (t *Tree) reconcileTag(changed treepath.Path, tag int64) []eventqueue.Event {
	return t.reconcileFiltered(changed, func(q Query) bool { return q.Tag == tag })
}

func (t *Tree) reconcileFiltered(changed treepath.Path, include func(Query) bool) []eventqueue.Event {
	var events []eventqueue.Event
	for _, state := range t.regs {
		if !include(state.query) {
			continue
		}
		if !overlaps(state.query.Path, changed) {
			continue
		}
		view := t.ViewAt(state.query.Path)
		if state.primed && view.Equal(state.lastValue) {
			continue
		}
		state.lastValue = view
		state.primed = true
		events = append(events, eventqueue.Event{
			Path:         state.query.Path,
			Registration: state.reg,
			Type:         "value",
			Snapshot:     view.Val(false),
		})
	}
	return events
}

func overlaps(a, b treepath.Path) bool {
	return a.Contains(b) || b.Contains(a)
}
