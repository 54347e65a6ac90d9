package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"quol-input/internal/workerutil"
)

// writeDeadline is the maximum time allowed for a single WebSocket write to
// complete. If the GUI freezes longer than this, the connection is dead.
const writeDeadline = 5 * time.Second

// readDeadline is the maximum time the server waits for any read activity
// (including pong responses) before considering the connection dead.
// 90 seconds allows for ~3 missed pings (pingInterval=30s) before timeout.
const readDeadline = 90 * time.Second

// pingInterval is the interval between server-initiated WebSocket pings.
const pingInterval = 30 * time.Second

// maxReadMessageSize limits incoming subscribe/unsubscribe payloads.
const maxReadMessageSize = 32 * 1024

const defaultQueueSize = 1024

var wsUpgrader = websocket.Upgrader{
	// The listener is loopback-only; the GUI's embedded browser sends a
	// varying Origin.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4 * 1024,
}

// HubOptions configures the WebSocket server.
type HubOptions struct {
	// Addr is the listen address. Use "127.0.0.1:0" for OS-assigned port.
	Addr string
	// QueueSize bounds events waiting for the pump. Zero uses 1024.
	QueueSize int
}

// Hub streams events to a single WebSocket client. A new connection replaces
// the existing one, so a GUI reload simply reconnects.
//
// Publish never blocks: events go into a bounded queue drained by a pump
// goroutine, and are dropped when the queue is full. This makes it safe to
// publish from hook callbacks.
//
// Lock ordering (never acquire in reverse):
//
//	writeMu -> mu
//
// Write failure policy: any write failure disconnects the client via
// clearIfCurrent+closeConn. The client must reconnect.
type Hub struct {
	opts HubOptions

	// mu protects conn.
	mu   sync.RWMutex
	conn *websocket.Conn
	// topics is the subscription mask of the current connection, zero when
	// nobody is connected. Read lock-free on the publish path.
	topics atomic.Uint32

	// writeMu serializes WriteMessage calls. gorilla/websocket does not support
	// concurrent writes; all callers of WriteMessage must hold this lock.
	writeMu sync.Mutex

	queue   chan Event
	dropped atomic.Uint64

	listener net.Listener
	server   *http.Server
	url      string

	cancel  context.CancelFunc
	workers sync.WaitGroup

	// closeOnce ensures Stop is idempotent. A stopped Hub cannot be reused.
	closeOnce sync.Once
}

// NewHub creates a Hub with the given options.
// The hub is not started until Start is called.
func NewHub(opts HubOptions) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Hub{
		opts:  opts,
		queue: make(chan Event, opts.QueueSize),
	}
}

// Start listens on the configured address, serves WebSocket connections and
// starts the pump. Start must be called once, before any concurrent use.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return fmt.Errorf("feed: already started")
	}

	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("feed: listen: %w", err)
	}
	h.listener = ln

	h.url = wsURL(ln.Addr())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)

	h.server = &http.Server{
		Handler: mux,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if serveErr := h.server.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("[DEBUG-FEED] server error", "error", serveErr)
		}
	}()

	pumpCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	workerutil.RunWithPanicRecovery(pumpCtx, "feed-pump", &h.workers, h.pump, workerutil.RecoveryOptions{})

	slog.Info("[DEBUG-FEED] server started", "url", h.url)
	return nil
}

// Stop shuts down the HTTP server, closes the active connection and stops
// the pump. Safe to call multiple times.
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}

		h.mu.Lock()
		conn := h.conn
		h.conn = nil
		h.topics.Store(0)
		h.mu.Unlock()

		if conn != nil {
			h.closeConn(conn, "hub stop")
		}

		if h.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("feed: shutdown: %w", err)
			}
		}
		h.workers.Wait()

		slog.Info("[DEBUG-FEED] server stopped", "dropped", h.dropped.Load())
	})
	return stopErr
}

// wsURL builds the client URL for a listener address. An unspecified
// address is reached over loopback of the same family.
func wsURL(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return "ws://" + addr.String() + "/ws"
	}
	ip := tcp.IP
	switch {
	case ip == nil || ip.To4() != nil && ip.IsUnspecified():
		ip = net.IPv4(127, 0, 0, 1)
	case ip.IsUnspecified():
		ip = net.IPv6loopback
	}
	return "ws://" + net.JoinHostPort(ip.String(), strconv.Itoa(tcp.Port)) + "/ws"
}

// URL returns the WebSocket URL (e.g. "ws://127.0.0.1:47115/ws"), or "" before
// Start.
func (h *Hub) URL() string {
	return h.url
}

// HasActiveConnection reports whether a client is currently connected.
func (h *Hub) HasActiveConnection() bool {
	h.mu.RLock()
	active := h.conn != nil
	h.mu.RUnlock()
	return active
}

// Subscribed reports whether the current client receives events of topic.
func (h *Hub) Subscribed(topic Topic) bool {
	return h.topics.Load()&topicBits[topic] != 0
}

// Dropped returns the number of events discarded because the queue was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Publish queues ev for the connected client. It returns false when the
// event was not queued: nobody is subscribed to its topic or the queue is
// full.
func (h *Hub) Publish(ev Event) bool {
	if h.topics.Load()&topicBits[ev.Topic()] == 0 {
		return false
	}
	select {
	case h.queue <- ev:
		return true
	default:
		if h.dropped.Add(1)%256 == 1 {
			slog.Debug("[DEBUG-FEED] queue full, dropping events", "dropped", h.dropped.Load())
		}
		return false
	}
}

func (h *Hub) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.queue:
			h.write(ev)
		}
	}
}

// write sends one event if the client is still subscribed to its topic.
func (h *Hub) write(ev Event) {
	h.mu.RLock()
	conn := h.conn
	h.mu.RUnlock()
	if conn == nil || !h.Subscribed(ev.Topic()) {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("[DEBUG-FEED] failed to encode event", "type", ev.Type, "error", err)
		return
	}

	h.writeMu.Lock()
	if !h.setWriteDeadlineOrClose(conn, writeDeadline) {
		h.writeMu.Unlock()
		return
	}
	err = conn.WriteMessage(websocket.TextMessage, payload)
	h.clearWriteDeadline(conn)
	h.writeMu.Unlock()

	if err != nil {
		slog.Warn("[DEBUG-FEED] write failed, closing connection", "type", ev.Type, "error", err)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "write error")
	}
}

// clearIfCurrent clears the hub's connection state only if conn is still the
// current connection. Caller must NOT hold h.mu.
func (h *Hub) clearIfCurrent(conn *websocket.Conn) bool {
	h.mu.Lock()
	isCurrent := h.conn == conn
	if isCurrent {
		h.conn = nil
		h.topics.Store(0)
	}
	h.mu.Unlock()
	return isCurrent
}

// closeConn closes a connection that may already be closed by another
// goroutine; the resulting error is expected and logged at Debug.
func (h *Hub) closeConn(conn *websocket.Conn, reason string) {
	if closeErr := conn.Close(); closeErr != nil {
		slog.Debug("[DEBUG-FEED] connection close", "reason", reason, "error", closeErr)
	}
}

// setWriteDeadlineOrClose sets a write deadline on the connection, closing it
// when that fails. Returns false if the connection was closed.
func (h *Hub) setWriteDeadlineOrClose(conn *websocket.Conn, d time.Duration) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(d)); err != nil {
		slog.Warn("[DEBUG-FEED] SetWriteDeadline failed, closing connection", "error", err)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "SetWriteDeadline failure")
		return false
	}
	return true
}

func (h *Hub) clearWriteDeadline(conn *websocket.Conn) {
	if err := conn.SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("[DEBUG-FEED] clearWriteDeadline failed (non-fatal)", "error", err)
	}
}

// handleWS upgrades HTTP to WebSocket and runs the read pump for the
// connection.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[DEBUG-FEED] upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		slog.Warn("[DEBUG-FEED] SetReadDeadline failed on new connection", "error", err)
		h.closeConn(conn, "initial SetReadDeadline failure")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	defaultMask, _ := maskOf(defaultTopics)
	h.mu.Lock()
	oldConn := h.conn
	h.conn = conn
	h.topics.Store(defaultMask)
	h.mu.Unlock()

	if oldConn != nil {
		h.closeConn(oldConn, "replaced by new connection")
	}

	slog.Info("[DEBUG-FEED] client connected", "remoteAddr", conn.RemoteAddr())

	pingDone := make(chan struct{})
	go h.pingLoop(conn, pingDone)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] feed handleWS recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
		close(pingDone)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "read pump exit")
		slog.Info("[DEBUG-FEED] client disconnected")
	}()

	for {
		msgType, msg, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("[DEBUG-FEED] read error", "error", readErr)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var subMsg subscribeMsg
		if jsonErr := json.Unmarshal(msg, &subMsg); jsonErr != nil {
			slog.Debug("[DEBUG-FEED] invalid JSON from client", "error", jsonErr)
			h.sendError(conn, fmt.Sprintf("invalid JSON: %s", jsonErr))
			continue
		}
		if problem := h.handleSubscription(conn, subMsg); problem != "" {
			h.sendError(conn, problem)
		}
	}
}

// pingLoop sends periodic pings to detect dead connections. Exits when done
// is closed or a ping fails.
func (h *Hub) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] feed pingLoop recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			h.clearIfCurrent(conn)
			h.closeConn(conn, "pingLoop panic recovery")
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.writeMu.Lock()
			if !h.setWriteDeadlineOrClose(conn, writeDeadline) {
				h.writeMu.Unlock()
				return
			}
			pingErr := conn.WriteMessage(websocket.PingMessage, nil)
			h.clearWriteDeadline(conn)
			h.writeMu.Unlock()

			if pingErr != nil {
				slog.Debug("[DEBUG-FEED] ping failed, connection likely dead", "error", pingErr)
				h.clearIfCurrent(conn)
				h.closeConn(conn, "ping failure")
				return
			}
		}
	}
}

// handleSubscription applies a subscribe or unsubscribe action and returns a
// message for the client when the request was (partly) invalid. It must not
// write to conn itself: the caller does that after mu is released.
func (h *Hub) handleSubscription(conn *websocket.Conn, msg subscribeMsg) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn != conn {
		slog.Debug("[DEBUG-FEED] subscription from stale connection, skipping")
		return ""
	}

	mask, unknown := maskOf(msg.Topics)
	switch msg.Action {
	case subscribeAction:
		h.topics.Store(h.topics.Load() | mask)
	case unsubscribeAction:
		h.topics.Store(h.topics.Load() &^ mask)
	default:
		slog.Debug("[DEBUG-FEED] unknown action", "action", msg.Action)
		return fmt.Sprintf("unknown action: %q", msg.Action)
	}
	slog.Debug("[DEBUG-FEED] subscription updated", "action", msg.Action, "topics", msg.Topics)

	if len(unknown) > 0 {
		names := make([]string, len(unknown))
		for i, t := range unknown {
			names[i] = string(t)
		}
		return "unknown topics: " + strings.Join(names, ", ")
	}
	return ""
}

// sendError sends a JSON error message to the client. On write failure the
// connection is cleaned up per the write failure policy.
func (h *Hub) sendError(conn *websocket.Conn, message string) {
	payload, err := json.Marshal(errorMsg{Type: "error", Message: message})
	if err != nil {
		slog.Debug("[DEBUG-FEED] failed to marshal error message", "error", err)
		return
	}

	h.writeMu.Lock()
	if !h.setWriteDeadlineOrClose(conn, writeDeadline) {
		h.writeMu.Unlock()
		return
	}
	writeErr := conn.WriteMessage(websocket.TextMessage, payload)
	h.clearWriteDeadline(conn)
	h.writeMu.Unlock()

	if writeErr != nil {
		slog.Debug("[DEBUG-FEED] failed to send error to client", "error", writeErr)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "write error in sendError")
	}
}
