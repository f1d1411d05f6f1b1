package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func newTestClient(t *testing.T, handler fasthttp.RequestHandler, opts ...Option) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	t.Cleanup(func() { _ = ln.Close() })
	go func() { _ = fasthttp.Serve(ln, handler) }()
	hc := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	return NewClient("http://iris.test/", append([]Option{WithHTTPClient(hc)}, opts...)...)
}

func TestClientSendMessage(t *testing.T) {
	var got ReplyRequest
	var path, userHeader string
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		path = string(ctx.Path())
		userHeader = string(ctx.Request.Header.Peek("X-User-Id"))
		_ = json.Unmarshal(ctx.PostBody(), &got)
	}, WithHeaderProvider(StaticHeaders("bot-1", "", " ")))

	if err := c.SendMessage(context.Background(), "room-1", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if path != "/reply" || userHeader != "bot-1" {
		t.Fatalf("path=%q header=%q", path, userHeader)
	}
	if got != (ReplyRequest{Type: "text", Room: "room-1", Data: "hello"}) {
		t.Fatalf("body = %+v", got)
	}
}

func TestClientRepliesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	})
	if err := c.SendImage(context.Background(), "room", "aGk="); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestClientGetConfigRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) == 1 {
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
			return
		}
		ctx.SetBodyString(`{"bot_name":"iris","bot_http_port":3000}`)
	}, WithRetry(2))
	cfg, err := c.GetConfig(context.Background())
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if cfg.Port != 3000 || calls.Load() != 2 {
		t.Fatalf("cfg=%+v calls=%d", cfg, calls.Load())
	}
}

func TestMessageUserID(t *testing.T) {
	name := " Kim "
	m := &Message{Sender: &name}
	if m.UserID() != "Kim" || m.SenderName() != "Kim" {
		t.Fatalf("sender fallback: %q %q", m.UserID(), m.SenderName())
	}
	m.JSON = &MessageJSON{UserID: "12345"}
	if m.UserID() != "12345" {
		t.Fatalf("json user id = %q", m.UserID())
	}
	if (&Message{}).SenderName() != "Player" {
		t.Fatalf("default sender name")
	}
}

// irisServer pushes one chat message on connect and records reply frames.
type irisServer struct {
	mu      sync.Mutex
	replies []ReplyRequest
	got     chan struct{}
}

func (s *irisServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		sender := "Kim"
		push := Message{Msg: "!chess status", Room: "room-1", Sender: &sender, JSON: &MessageJSON{UserID: r.Header.Get("X-User-Id")}}
		if err := wsjson.Write(r.Context(), conn, push); err != nil {
			return
		}
		for {
			var reply ReplyRequest
			if err := wsjson.Read(r.Context(), conn, &reply); err != nil {
				return
			}
			s.mu.Lock()
			s.replies = append(s.replies, reply)
			s.mu.Unlock()
			s.got <- struct{}{}
		}
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	srv := &irisServer{got: make(chan struct{}, 4)}
	hs := httptest.NewServer(srv.handler(t))
	defer hs.Close()

	ws := NewWebSocket("ws"+strings.TrimPrefix(hs.URL, "http"),
		WithWSHeaders(StaticHeaders("u-77", "", "")),
		WithReconnectAttempts(0),
	)
	received := make(chan *Message, 1)
	ws.OnMessage(func(m *Message) { received <- m })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ws.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() { _ = ws.Close(context.Background()) }()

	select {
	case m := <-received:
		if m.Msg != "!chess status" || m.UserID() != "u-77" {
			t.Fatalf("message = %+v", m)
		}
	case <-ctx.Done():
		t.Fatalf("no message received")
	}

	eg := NewEgress(EgressAuto, NewClient("http://unused.invalid"), ws, nil)
	if err := eg.SendText(ctx, "room-1", "board"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	select {
	case <-srv.got:
	case <-ctx.Done():
		t.Fatalf("no reply frame")
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.replies) != 1 || srv.replies[0] != (ReplyRequest{Type: "text", Room: "room-1", Data: "board"}) {
		t.Fatalf("replies = %+v", srv.replies)
	}
}

func TestAutoEgressFallsBackToHTTP(t *testing.T) {
	var got ReplyRequest
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) { _ = json.Unmarshal(ctx.PostBody(), &got) })
	ws := NewWebSocket("ws://never.invalid", WithReconnectAttempts(0))
	eg := NewEgress(EgressAuto, c, ws, nil)
	if err := eg.SendImage(context.Background(), "r", "aW1n"); err != nil {
		t.Fatalf("SendImage: %v", err)
	}
	if got.Type != "image" || got.Data != "aW1n" {
		t.Fatalf("got = %+v", got)
	}
	if err := NewEgress(EgressWS, c, ws, nil).SendText(context.Background(), "r", "x"); err != ErrNotConnected {
		t.Fatalf("ws egress err = %v", err)
	}
}
