// Package transport implements the two wire connections the reconciliation
// engine can be driven by: a persistent, bidirectional WebSocket and a
// read-only REST+SSE fallback. Both satisfy ServerActions, the boundary
// internal/repo uses to talk to "the server" without knowing which kind of
// connection is underneath — grounded on the teacher corpus's own
// client/transport split (internal/coop.Watcher for the WebSocket half,
// internal/rpc's SSE client/server pair for the push half).
package transport

import (
	"github.com/Cutii/firebase-go-sdk/internal/treepath"
)

// CompletionFunc reports the result of a write-shaped call: status is "ok"
// or a lowercase server status code (e.g. "permission_denied"); errMsg is a
// human-readable detail, empty on success.
type CompletionFunc func(status string, errMsg string)

// ListenCompleteFunc reports the result of establishing a listen. data, when
// status is "ok", is the initial value at the query's path in the decoded
// JSON shape treenode.FromJSON accepts.
type ListenCompleteFunc func(status string, data any)

// OnDisconnectKind distinguishes the three on-disconnect actions a server
// can be asked to run when the connection drops.
type OnDisconnectKind int

const (
	OnDisconnectPut OnDisconnectKind = iota
	OnDisconnectMerge
	OnDisconnectCancel
)

// Query is the listen scope: a path plus the (possibly empty) query
// parameters that narrow it, and the tag the engine uses to correlate
// pushed updates back to the listener that requested them.
type Query struct {
	Path   treepath.Path
	Params map[string]any
	Tag    int64
}

// ServerActions is the boundary between the reconciliation engine and
// whatever is carrying its bytes. Every method is expected to return
// immediately; results arrive later through the supplied callback, invoked
// from whatever goroutine the transport uses internally — callers must
// re-enter the engine's single scheduler goroutine rather than act on
// engine state directly from inside the callback (see internal/repo/scheduler.go).
type ServerActions interface {
	// Listen starts a listen at query. onComplete fires once, when the
	// listen is established (or fails); onUpdate fires for every
	// subsequent push targeting query.Tag.
	Listen(query Query, onComplete ListenCompleteFunc, onUpdate func(isMerge bool, path treepath.Path, data any))
	// Unlisten tears down a previously established listen.
	Unlisten(query Query)

	// Put writes data at path wholesale.
	Put(path treepath.Path, data any, onComplete CompletionFunc)
	// Merge writes only the given children at path.
	Merge(path treepath.Path, data any, onComplete CompletionFunc)

	// OnDisconnect registers (or cancels) a server-side action to run when
	// this connection is detected as lost.
	OnDisconnect(kind OnDisconnectKind, path treepath.Path, data any, onComplete CompletionFunc)

	// RefreshAuthToken re-authenticates the active connection with token
	// (which may be empty to de-authenticate).
	RefreshAuthToken(token string)

	// SetAuthOverride installs the auth.uid-style override object sent
	// alongside the auth token. A nil override clears it.
	SetAuthOverride(override map[string]any)

	// Interrupt suspends the transport for the named reason; Resume lifts
	// a suspension previously installed under that same reason. Multiple
	// reasons can be active at once; the transport stays suspended until
	// every reason has been resumed.
	Interrupt(reason string)
	Resume(reason string)
}

// ConnectionObserver receives connection lifecycle notifications. A
// transport calls these on whatever internal goroutine detects the event;
// internal/repo's implementation re-enters the scheduler before touching
// engine state.
type ConnectionObserver interface {
	OnConnect(timestampOffsetMillis int64)
	OnDisconnect()
	OnServerInfoUpdate(updates map[string]any)
}
