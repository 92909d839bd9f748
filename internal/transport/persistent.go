package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Cutii/firebase-go-sdk/internal/treepath"
)

// wireFrame is the envelope every message, request or push, travels in.
// Grounded on the teacher's coop.Watcher envelope-peek pattern
// (internal/coop/watcher.go's anonymous `{Type string}` struct), generalized
// from a single event type to a small request/response/push protocol.
type wireFrame struct {
	Action string          `json:"a"`
	ReqID  int64           `json:"r,omitempty"`
	Body   json.RawMessage `json:"b,omitempty"`
}

type requestBody struct {
	Path   string         `json:"p,omitempty"`
	Data   any            `json:"d,omitempty"`
	Hash   string         `json:"h,omitempty"`
	Tag    int64          `json:"t,omitempty"`
	Cred   string         `json:"cred,omitempty"`
	ODKind string         `json:"odtype,omitempty"`
	Auth   map[string]any `json:"auth,omitempty"`
}

type responseBody struct {
	Status string `json:"s"`
	Data   any    `json:"d,omitempty"`
}

type pushBody struct {
	Path  string `json:"p"`
	Data  any    `json:"d"`
	Tag   int64  `json:"t,omitempty"`
	Merge bool   `json:"m,omitempty"`
}

type infoBody struct {
	TimeOffsetMillis int64          `json:"serverTimeOffset,omitempty"`
	Updates          map[string]any `json:"updates,omitempty"`
}

// PersistentTransport is the WebSocket-backed ServerActions implementation:
// it keeps one connection alive for the process's lifetime, replaying
// active listens and re-sending the current auth token after every
// reconnect. Reconnection backs off exponentially via
// github.com/cenkalti/backoff/v4, the same library the teacher repo
// vendors for its own retry paths.
type PersistentTransport struct {
	wsURL string

	mu           sync.Mutex
	conn         *websocket.Conn
	nextReqID    int64
	pending      map[int64]func(responseBody)
	listens      map[string]*listenState
	authToken    string
	authOverride map[string]any
	interrupted  map[string]bool

	observer ConnectionObserver

	cancel context.CancelFunc
	done   chan struct{}
}

type listenState struct {
	query      Query
	onComplete ListenCompleteFunc
	onUpdate   func(isMerge bool, path treepath.Path, data any)
	cancel     context.CancelFunc // set by RESTTransport; unused by PersistentTransport
}

// NewPersistentTransport builds a transport pointed at baseURL (an http(s)
// URL, converted to ws(s) the way coop.NewWatcher does).
func NewPersistentTransport(baseURL string, observer ConnectionObserver) *PersistentTransport {
	u := strings.TrimRight(baseURL, "/")
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)

	return &PersistentTransport{
		wsURL:       u + "/.ws",
		pending:     make(map[int64]func(responseBody)),
		listens:     make(map[string]*listenState),
		interrupted: make(map[string]bool),
		observer:    observer,
	}
}

// Run connects and maintains the connection until ctx is cancelled,
// reconnecting with exponential backoff on any failure. Call it once, in
// its own goroutine, before issuing any ServerActions calls.
func (t *PersistentTransport) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.done = make(chan struct{})
	t.mu.Unlock()
	defer close(t.done)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry forever; ctx cancellation is the only way out

	for {
		if ctx.Err() != nil {
			return
		}
		if t.suspended() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		err := t.connectAndServe(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("transport: connection lost: %v", err)
		}
		if t.observer != nil {
			t.observer.OnDisconnect()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.NextBackOff()):
		}
	}
}

func (t *PersistentTransport) suspended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.interrupted) > 0
}

func (t *PersistentTransport) connectAndServe(ctx context.Context) error {
	u, err := url.Parse(t.wsURL)
	if err != nil {
		return fmt.Errorf("transport: parse ws url: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("transport: ws dial: %w", err)
	}
	defer conn.Close()

	t.mu.Lock()
	t.conn = conn
	token := t.authToken
	override := t.authOverride
	listensSnapshot := make([]*listenState, 0, len(t.listens))
	for _, ls := range t.listens {
		listensSnapshot = append(listensSnapshot, ls)
	}
	t.mu.Unlock()

	if token != "" || len(override) > 0 {
		t.sendAsync("auth", requestBody{Cred: token, Auth: override}, nil)
	}
	for _, ls := range listensSnapshot {
		t.sendListenFrame(ls)
	}

	if t.observer != nil {
		t.observer.OnConnect(0)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return t.readLoop(conn) })
	group.Go(func() error {
		<-gctx.Done()
		conn.Close()
		return nil
	})

	err = group.Wait()

	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()
	return err
}

func (t *PersistentTransport) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("transport: ws read: %w", err)
		}
		t.handleFrame(data)
	}
}

func (t *PersistentTransport) handleFrame(data []byte) {
	var frame wireFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return
	}

	switch frame.Action {
	case "r": // response to a pending request
		var body responseBody
		if err := json.Unmarshal(frame.Body, &body); err != nil {
			return
		}
		t.mu.Lock()
		cb, ok := t.pending[frame.ReqID]
		if ok {
			delete(t.pending, frame.ReqID)
		}
		t.mu.Unlock()
		if ok && cb != nil {
			cb(body)
		}

	case "d", "m": // data push (overwrite or merge), correlated by tag
		var body pushBody
		if err := json.Unmarshal(frame.Body, &body); err != nil {
			return
		}
		t.mu.Lock()
		var ls *listenState
		for _, candidate := range t.listens {
			if candidate.query.Tag == body.Tag {
				ls = candidate
				break
			}
		}
		t.mu.Unlock()
		if ls != nil && ls.onUpdate != nil {
			ls.onUpdate(frame.Action == "m", treepath.New(body.Path), body.Data)
		}

	case "i": // server info update (.info/* pushes, including connected)
		var body infoBody
		if err := json.Unmarshal(frame.Body, &body); err != nil {
			return
		}
		if t.observer != nil && body.Updates != nil {
			t.observer.OnServerInfoUpdate(body.Updates)
		}
	}
}

func (t *PersistentTransport) sendListenFrame(ls *listenState) {
	t.sendAsync("listen", requestBody{Path: ls.query.Path.String(), Tag: ls.query.Tag}, func(resp responseBody) {
		if ls.onComplete != nil {
			ls.onComplete(resp.Status, resp.Data)
		}
	})
}

// sendAsync writes a frame and, if cb is non-nil, records it to be invoked
// when the matching "r" response arrives. It is a no-op (cb is never
// invoked) if there is no live connection; callers needing an eventual
// result rely on reconnect-replay instead.
func (t *PersistentTransport) sendAsync(action string, body requestBody, cb func(responseBody)) {
	t.mu.Lock()
	conn := t.conn
	var reqID int64
	if cb != nil {
		t.nextReqID++
		reqID = t.nextReqID
		t.pending[reqID] = cb
	}
	t.mu.Unlock()

	if conn == nil {
		return
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return
	}
	frame := wireFrame{Action: action, ReqID: reqID, Body: payload}
	raw, err := json.Marshal(frame)
	if err != nil {
		return
	}

	t.mu.Lock()
	writeErr := conn.WriteMessage(websocket.TextMessage, raw)
	t.mu.Unlock()
	if writeErr != nil {
		log.Printf("transport: write failed: %v", writeErr)
	}
}

func (t *PersistentTransport) Listen(query Query, onComplete ListenCompleteFunc, onUpdate func(bool, treepath.Path, any)) {
	ls := &listenState{query: query, onComplete: onComplete, onUpdate: onUpdate}
	t.mu.Lock()
	t.listens[query.Path.String()+"#"+formatTag(query.Tag)] = ls
	t.mu.Unlock()
	t.sendListenFrame(ls)
}

func (t *PersistentTransport) Unlisten(query Query) {
	t.mu.Lock()
	delete(t.listens, query.Path.String()+"#"+formatTag(query.Tag))
	t.mu.Unlock()
	t.sendAsync("unlisten", requestBody{Path: query.Path.String(), Tag: query.Tag}, nil)
}

func (t *PersistentTransport) Put(path treepath.Path, data any, onComplete CompletionFunc) {
	t.sendAsync("put", requestBody{Path: path.String(), Data: data}, completionAdapter(onComplete))
}

func (t *PersistentTransport) Merge(path treepath.Path, data any, onComplete CompletionFunc) {
	t.sendAsync("merge", requestBody{Path: path.String(), Data: data}, completionAdapter(onComplete))
}

func (t *PersistentTransport) OnDisconnect(kind OnDisconnectKind, path treepath.Path, data any, onComplete CompletionFunc) {
	kindName := map[OnDisconnectKind]string{OnDisconnectPut: "put", OnDisconnectMerge: "merge", OnDisconnectCancel: "cancel"}[kind]
	t.sendAsync("onDisconnect", requestBody{Path: path.String(), Data: data, ODKind: kindName}, completionAdapter(onComplete))
}

func (t *PersistentTransport) RefreshAuthToken(token string) {
	t.mu.Lock()
	t.authToken = token
	override := t.authOverride
	t.mu.Unlock()
	t.sendAsync("auth", requestBody{Cred: token, Auth: override}, nil)
}

// SetAuthOverride installs override and re-sends the auth message with the
// current token so the server picks it up immediately.
func (t *PersistentTransport) SetAuthOverride(override map[string]any) {
	t.mu.Lock()
	t.authOverride = override
	token := t.authToken
	t.mu.Unlock()
	t.sendAsync("auth", requestBody{Cred: token, Auth: override}, nil)
}

func (t *PersistentTransport) Interrupt(reason string) {
	t.mu.Lock()
	t.interrupted[reason] = true
	conn := t.conn
	t.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (t *PersistentTransport) Resume(reason string) {
	t.mu.Lock()
	delete(t.interrupted, reason)
	t.mu.Unlock()
}

func completionAdapter(onComplete CompletionFunc) func(responseBody) {
	if onComplete == nil {
		return nil
	}
	return func(resp responseBody) {
		errMsg := ""
		if resp.Status != "ok" {
			if s, ok := resp.Data.(string); ok {
				errMsg = s
			}
		}
		onComplete(resp.Status, errMsg)
	}
}

func formatTag(tag int64) string {
	return fmt.Sprintf("%d", tag)
}
