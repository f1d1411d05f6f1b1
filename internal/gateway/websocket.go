package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var ErrNotConnected = errors.New("iris websocket not connected")

type MessageCallback func(message *Message)

type StateCallback func(state WebSocketState)

// WebSocket is the Iris ingress connection. It reconnects with backoff and fans each
// decoded Message out to the registered callbacks.
type WebSocket struct {
	wsURL   string
	headers HeaderProvider
	logger  *zap.Logger

	mu    sync.RWMutex
	conn  *websocket.Conn
	state WebSocketState

	writeMu sync.Mutex

	cbMu     sync.RWMutex
	msgCbs   []MessageCallback
	stateCbs []StateCallback

	maxReconnectAttempts int
	pingInterval         time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type WSOption func(*WebSocket)

func WithWSHeaders(h HeaderProvider) WSOption {
	return func(ws *WebSocket) { ws.headers = h }
}

func WithWSLogger(l *zap.Logger) WSOption {
	return func(ws *WebSocket) {
		if l != nil {
			ws.logger = l
		}
	}
}

func WithReconnectAttempts(n int) WSOption {
	return func(ws *WebSocket) { ws.maxReconnectAttempts = n }
}

func WithPingInterval(d time.Duration) WSOption {
	return func(ws *WebSocket) {
		if d > 0 {
			ws.pingInterval = d
		}
	}
}

func NewWebSocket(wsURL string, opts ...WSOption) *WebSocket {
	ctx, cancel := context.WithCancel(context.Background())
	ws := &WebSocket{
		wsURL:                wsURL,
		logger:               zap.NewNop(),
		state:                WSStateDisconnected,
		maxReconnectAttempts: 5,
		pingInterval:         30 * time.Second,
		ctx:                  ctx,
		cancel:               cancel,
	}
	for _, opt := range opts {
		opt(ws)
	}
	return ws
}

func (ws *WebSocket) OnMessage(cb MessageCallback) {
	ws.cbMu.Lock()
	ws.msgCbs = append(ws.msgCbs, cb)
	ws.cbMu.Unlock()
}

func (ws *WebSocket) OnStateChange(cb StateCallback) {
	ws.cbMu.Lock()
	ws.stateCbs = append(ws.stateCbs, cb)
	ws.cbMu.Unlock()
}

func (ws *WebSocket) State() WebSocketState {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.state
}

func (ws *WebSocket) Connected() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.conn != nil && ws.state == WSStateConnected
}

// Connect dials once. On failure a background reconnect loop is started as well.
func (ws *WebSocket) Connect(ctx context.Context) error {
	switch ws.State() {
	case WSStateConnected, WSStateConnecting:
		return nil
	}
	ws.setState(WSStateConnecting)
	if err := ws.dial(ctx); err != nil {
		ws.setState(WSStateFailed)
		ws.reconnect()
		return err
	}
	return nil
}

func (ws *WebSocket) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, ws.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      ws.handshakeHeaders(),
	})
	if err != nil {
		return err
	}
	conn.SetReadLimit(1 << 20)

	ws.mu.Lock()
	ws.conn = conn
	ws.mu.Unlock()
	ws.setState(WSStateConnected)

	ws.wg.Add(2)
	go ws.listen(conn)
	go ws.pingLoop(conn)
	return nil
}

func (ws *WebSocket) listen(conn *websocket.Conn) {
	defer ws.wg.Done()
	for {
		var msg Message
		if err := wsjson.Read(ws.ctx, conn, &msg); err != nil {
			if ws.ctx.Err() != nil {
				return
			}
			ws.logger.Warn("ws_read_failed", zap.Error(err))
			ws.drop(conn, "reconnect")
			ws.reconnect()
			return
		}
		ws.cbMu.RLock()
		callbacks := append([]MessageCallback(nil), ws.msgCbs...)
		ws.cbMu.RUnlock()
		for _, cb := range callbacks {
			cb(&msg)
		}
	}
}

func (ws *WebSocket) pingLoop(conn *websocket.Conn) {
	defer ws.wg.Done()
	t := time.NewTicker(ws.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ws.ctx.Done():
			return
		case <-t.C:
		}
		if !ws.current(conn) {
			return
		}
		ctx, cancel := context.WithTimeout(ws.ctx, 3*time.Second)
		err := conn.Ping(ctx)
		cancel()
		if err == nil {
			failures = 0
			continue
		}
		// 두 번 연속 실패하면 끊긴 것으로 본다.
		if failures++; failures >= 2 {
			ws.drop(conn, "ping failure")
			return
		}
	}
}

func (ws *WebSocket) current(conn *websocket.Conn) bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.conn == conn
}

// drop closes conn if it is still the active connection.
func (ws *WebSocket) drop(conn *websocket.Conn, reason string) {
	ws.mu.Lock()
	active := ws.conn == conn
	if active {
		ws.conn = nil
	}
	ws.mu.Unlock()
	if !active {
		return
	}
	_ = conn.Close(websocket.StatusGoingAway, reason)
	ws.setState(WSStateDisconnected)
}

func (ws *WebSocket) reconnect() {
	if ws.maxReconnectAttempts <= 0 || ws.ctx.Err() != nil {
		return
	}
	ws.setState(WSStateReconnecting)
	ws.wg.Add(1)
	go func() {
		defer ws.wg.Done()
		for attempt := 1; attempt <= ws.maxReconnectAttempts; attempt++ {
			if err := sleepWithContext(ws.ctx, backoffDuration(attempt)); err != nil {
				return
			}
			if err := ws.dial(ws.ctx); err != nil {
				ws.logger.Warn("ws_reconnect_failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			return
		}
		ws.setState(WSStateFailed)
	}()
}

// WriteJSON sends one frame. Writes are serialised because the connection allows a
// single concurrent writer.
func (ws *WebSocket) WriteJSON(ctx context.Context, v any) error {
	ws.mu.RLock()
	conn := ws.conn
	connected := ws.state == WSStateConnected
	ws.mu.RUnlock()
	if conn == nil || !connected {
		return ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	return wsjson.Write(ctx, conn, v)
}

func (ws *WebSocket) setState(state WebSocketState) {
	ws.mu.Lock()
	changed := ws.state != state
	ws.state = state
	ws.mu.Unlock()
	if !changed {
		return
	}
	ws.cbMu.RLock()
	callbacks := append([]StateCallback(nil), ws.stateCbs...)
	ws.cbMu.RUnlock()
	for _, cb := range callbacks {
		cb(state)
	}
}

// Close stops reconnects, closes the connection and waits for the loops to exit.
func (ws *WebSocket) Close(ctx context.Context) error {
	ws.cancel()
	ws.mu.Lock()
	conn := ws.conn
	ws.conn = nil
	ws.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}
	ws.setState(WSStateDisconnected)

	done := make(chan struct{})
	go func() {
		ws.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (ws *WebSocket) handshakeHeaders() http.Header {
	hdr := http.Header{}
	if ws.headers == nil {
		return hdr
	}
	for k, v := range ws.headers() {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			hdr.Set(k, v)
		}
	}
	return hdr
}
