package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/Cutii/firebase-go-sdk/internal/treepath"
)

// RESTTransport is the read-only fallback ServerActions implementation: it
// fetches the initial value over HTTP GET and then streams subsequent
// changes as Server-Sent Events. The engine selects it instead of the
// WebSocket when configured with ForceREST or when the user agent looks
// like a crawler — see spec.md §4.H.1.
// Grounded on the teacher's SSE pair: internal/rpc/http_client_sse.go's
// bufio.Scanner-based event parser for the read side, and
// internal/rpc/http_sse.go's header/keepalive shape for what a server on
// the other end of this client is expected to emit.
type RESTTransport struct {
	baseURL string
	token   string
	client  *http.Client

	mu      sync.Mutex
	listens map[string]*listenState
}

// NewRESTTransport builds a transport against baseURL (an http(s) origin).
func NewRESTTransport(baseURL string) *RESTTransport {
	return &RESTTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		listens: make(map[string]*listenState),
	}
}

const writeNotSupported = "write_not_supported"

func (r *RESTTransport) Put(path treepath.Path, data any, onComplete CompletionFunc) {
	if onComplete != nil {
		onComplete(writeNotSupported, "REST transport is read-only")
	}
}

func (r *RESTTransport) Merge(path treepath.Path, data any, onComplete CompletionFunc) {
	if onComplete != nil {
		onComplete(writeNotSupported, "REST transport is read-only")
	}
}

func (r *RESTTransport) OnDisconnect(kind OnDisconnectKind, path treepath.Path, data any, onComplete CompletionFunc) {
	if onComplete != nil {
		onComplete(writeNotSupported, "REST transport is read-only")
	}
}

func (r *RESTTransport) RefreshAuthToken(token string) {
	r.mu.Lock()
	r.token = token
	r.mu.Unlock()
}

// SetAuthOverride is a no-op: REST requests authenticate with the bearer
// token alone, and this transport never establishes the kind of
// long-lived, rule-evaluating session the override object modifies.
func (r *RESTTransport) SetAuthOverride(override map[string]any) {}

// Interrupt and Resume are no-ops: each listen owns its own HTTP request
// with no shared connection state to suspend.
func (r *RESTTransport) Interrupt(reason string) {}
func (r *RESTTransport) Resume(reason string)    {}

// Listen performs an initial GET for path's current value, then opens an
// SSE stream for subsequent pushes. Both run in a goroutine owned by this
// call; it returns immediately.
func (r *RESTTransport) Listen(query Query, onComplete ListenCompleteFunc, onUpdate func(bool, treepath.Path, any)) {
	ls := &listenState{query: query, onComplete: onComplete, onUpdate: onUpdate}
	r.mu.Lock()
	r.listens[query.Path.String()] = ls
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	ls.cancel = cancel

	go r.fetchInitial(ctx, ls)
}

func (r *RESTTransport) Unlisten(query Query) {
	r.mu.Lock()
	ls, ok := r.listens[query.Path.String()]
	delete(r.listens, query.Path.String())
	r.mu.Unlock()
	if ok && ls.cancel != nil {
		ls.cancel()
	}
}

func (r *RESTTransport) fetchInitial(ctx context.Context, ls *listenState) {
	url := fmt.Sprintf("%s%s.json", r.baseURL, ls.query.Path.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		if ls.onComplete != nil {
			ls.onComplete("error", nil)
		}
		return
	}
	r.mu.Lock()
	token := r.token
	r.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ls.onComplete != nil {
			ls.onComplete("error", nil)
		}
		return
	}
	defer resp.Body.Close()

	var data any
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			data = nil
		}
	}
	status := "ok"
	if resp.StatusCode != http.StatusOK {
		status = "error"
	}
	if ls.onComplete != nil {
		ls.onComplete(status, data)
	}

	r.streamEvents(ctx, ls)
}

// streamEvents opens the SSE connection for ls and decodes events until ctx
// is cancelled, following the same event:/data: line-accumulation parser
// as the teacher's ConnectSSE. id: lines are ignored.
func (r *RESTTransport) streamEvents(ctx context.Context, ls *listenState) {
	url := fmt.Sprintf("%s%s.json", r.baseURL, ls.query.Path.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	r.mu.Lock()
	token := r.token
	r.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data != "" {
				r.dispatchSSE(ls, eventType, data)
			}
			eventType, data = "", ""
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			chunk := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data != "" {
				data += "\n" + chunk
			} else {
				data = chunk
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("transport: rest sse stream error: %v", err)
	}
}

func (r *RESTTransport) dispatchSSE(ls *listenState, eventType, data string) {
	var payload struct {
		Path string `json:"path"`
		Data any    `json:"data"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return
	}
	isMerge := eventType == "patch"
	if ls.onUpdate != nil {
		ls.onUpdate(isMerge, ls.query.Path.Append(treepath.New(payload.Path)), payload.Data)
	}
}
