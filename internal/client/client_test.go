package client

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"keyroute/internal/protocol"

	"github.com/gorilla/websocket"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type received struct {
	conn int32
	msg  protocol.Message
	auth string
}

// testServer records every message it reads and greets each connection
// with a key_down event. When dropFirst is set, the first connection is
// closed after its first message.
func testServer(t *testing.T, dropFirst bool) (*httptest.Server, <-chan received) {
	t.Helper()
	var conns atomic.Int32
	got := make(chan received, 32)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := conns.Add(1)

		conn.WriteJSON(protocol.Message{Type: protocol.TypeKeyDown, Payload: protocol.KeyPayload{Key: "F1", Code: 0x70}})
		for {
			var m protocol.Message
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			got <- received{conn: n, msg: m, auth: r.Header.Get("Authorization")}
			if dropFirst && n == 1 {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func next(t *testing.T, ch <-chan received) received {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for message")
		return received{}
	}
}

func addr(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestSubscriptionsSentOnConnect(t *testing.T) {
	srv, got := testServer(t, false)

	c := New(addr(srv), "secret", quietLogger())
	events := make(chan protocol.Message, 4)
	c.OnMessage = func(m protocol.Message) { events <- m }
	if err := c.Subscribe(0x10, "F1", "down"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	c.Start()
	defer c.Close()

	r := next(t, got)
	if r.msg.Type != protocol.TypeSubscribe || r.auth != "Bearer secret" {
		t.Errorf("Expected authorized subscribe, got %+v", r)
	}
	var p protocol.SubscribePayload
	if err := protocol.DecodePayload(r.msg, &p); err != nil {
		t.Fatal(err)
	}
	if p.Window != 0x10 || p.Key != "F1" || p.Direction != "down" {
		t.Errorf("Unexpected payload %+v", p)
	}

	select {
	case m := <-events:
		if m.Type != protocol.TypeKeyDown {
			t.Errorf("Expected key_down, got %s", m.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for server event")
	}
}

func TestReconnectReplaysSubscriptions(t *testing.T) {
	srv, got := testServer(t, true)

	c := New(addr(srv), "", quietLogger())
	c.ReconnectDelay = 10 * time.Millisecond
	c.Subscribe(0, "MOUSE4", "up")
	c.Start()
	defer c.Close()

	first := next(t, got)
	second := next(t, got)
	if first.conn != 1 || second.conn != 2 {
		t.Errorf("Expected messages from two connections, got %d and %d", first.conn, second.conn)
	}
	if second.msg.Type != protocol.TypeSubscribe {
		t.Errorf("Expected subscribe replayed, got %s", second.msg.Type)
	}
	if first.msg.ID == second.msg.ID {
		t.Errorf("Expected fresh request ids, got %s twice", first.msg.ID)
	}
}

func TestSendKeyWhileConnected(t *testing.T) {
	srv, got := testServer(t, false)

	c := New(addr(srv), "", quietLogger())
	c.Start()
	defer c.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !c.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !c.IsConnected() {
		t.Fatal("Expected client to connect")
	}

	if !c.SendKey(0x20, "A", 30*time.Millisecond) {
		t.Fatal("Expected SendKey to queue")
	}
	r := next(t, got)
	var p protocol.SendKeyPayload
	if err := protocol.DecodePayload(r.msg, &p); err != nil {
		t.Fatal(err)
	}
	if r.msg.Type != protocol.TypeSendKey || p.Window != 0x20 || p.Key != "A" || p.HoldMs != 30 {
		t.Errorf("Unexpected send_key %+v", p)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New("127.0.0.1:1", "", quietLogger())
	c.Close()
	c.Close()
}

func TestQueuedSubscribeNotSentTwiceAfterReconnect(t *testing.T) {
	srv, got := testServer(t, false)

	c := New(addr(srv), "", quietLogger())
	// Queue a subscribe as if the previous connection dropped before writing it.
	c.mu.Lock()
	c.isConnected = true
	c.mu.Unlock()
	if err := c.Subscribe(0x10, "F2", "down"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	c.mu.Lock()
	c.isConnected = false
	c.mu.Unlock()
	c.SendKey(0x10, "A", 0)

	c.Start()
	defer c.Close()

	first := next(t, got)
	second := next(t, got)
	if first.msg.Type != protocol.TypeSubscribe {
		t.Errorf("Expected replayed subscribe first, got %s", first.msg.Type)
	}
	if second.msg.Type != protocol.TypeSendKey {
		t.Errorf("Expected send_key next without a duplicate subscribe, got %s", second.msg.Type)
	}
}
