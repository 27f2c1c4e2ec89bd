// Package client connects to a running keyroute event stream.
package client

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"keyroute/internal/protocol"
	"keyroute/internal/window"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1 << 16

	// DefaultReconnectDelay is the pause between connection attempts.
	DefaultReconnectDelay = 5 * time.Second
)

// Client keeps a WebSocket connection to a keyroute server open,
// reconnecting on failure and replaying its subscriptions each time.
type Client struct {
	addr   string
	token  string
	logger *slog.Logger

	send      chan protocol.Message
	done      chan struct{}
	closeOnce sync.Once
	nextID    atomic.Uint64

	// OnMessage receives every message from the server. It runs on the read goroutine.
	OnMessage func(protocol.Message)

	// ReconnectDelay overrides DefaultReconnectDelay when positive.
	ReconnectDelay time.Duration

	mu          sync.Mutex
	isConnected bool
	subs        []protocol.SubscribePayload

	// queued holds ids of subscribe requests sitting in send. A reconnect
	// replays subs, so those requests are skipped there.
	queued map[string]struct{}
}

// New creates a client for the server at addr (host:port).
func New(addr, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		addr:   addr,
		token:  token,
		logger: logger.With(slog.String("component", "client"), slog.String("addr", addr)),
		send:   make(chan protocol.Message, 100),
		done:   make(chan struct{}),
		queued: make(map[string]struct{}),
	}
}

// Start begins the client loop (connect & process)
func (c *Client) Start() {
	go c.loop()
}

func (c *Client) loop() {
	delay := c.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	for {
		c.connect()

		// If connect returns, it means we disconnected. Wait a bit and retry.
		select {
		case <-c.done:
			return
		case <-time.After(delay):
			c.logger.Debug("Attempting reconnection")
		}
	}
}

func (c *Client) connect() {
	u := url.URL{Scheme: "ws", Host: c.addr, Path: "/ws"}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		c.logger.Warn("Connection failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	c.mu.Lock()
	c.isConnected = true
	subs := append([]protocol.SubscribePayload(nil), c.subs...)
	replayed := c.queued
	c.queued = make(map[string]struct{})
	c.mu.Unlock()

	c.logger.Info("Connected")

	connDone := make(chan struct{})
	go func() {
		defer close(connDone)
		c.writePump(conn, subs, replayed)
	}()

	c.readPump(conn)

	// Cleanup
	c.mu.Lock()
	c.isConnected = false
	c.mu.Unlock()

	// Ensure write pump stops
	conn.Close()
	<-connDone
}

func (c *Client) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Read error", slog.String("error", err.Error()))
			}
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("Invalid message", slog.String("error", err.Error()))
			continue
		}
		if c.OnMessage != nil {
			c.OnMessage(msg)
		}
	}
}

// writePump replays subs on the fresh connection, then forwards queued
// messages. Subscribe requests listed in replayed were queued before this
// connection and are already covered by the replay.
func (c *Client) writePump(conn *websocket.Conn, subs []protocol.SubscribePayload, replayed map[string]struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(msg protocol.Message) bool {
		data, err := protocol.Encode(msg)
		if err != nil {
			c.logger.Error("Marshal error", slog.String("error", err.Error()))
			return true
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.logger.Debug("Write error", slog.String("error", err.Error()))
			return false
		}
		return true
	}

	for _, s := range subs {
		if !write(c.request(protocol.TypeSubscribe, s)) {
			return
		}
	}

	for {
		select {
		case msg := <-c.send:
			if msg.Type == protocol.TypeSubscribe {
				if _, ok := replayed[msg.ID]; ok {
					delete(replayed, msg.ID)
					continue
				}
				c.mu.Lock()
				delete(c.queued, msg.ID)
				c.mu.Unlock()
			}
			if !write(msg) {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) request(t protocol.MessageType, payload any) protocol.Message {
	return protocol.Message{Type: t, ID: strconv.FormatUint(c.nextID.Add(1), 10), Payload: payload}
}

// Send queues msg for the server. It returns false when the queue is full.
func (c *Client) Send(msg protocol.Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Subscribe asks for triggered messages for key on target (zero for any
// target) and remembers the subscription for later reconnects.
func (c *Client) Subscribe(target window.Handle, key, direction string) error {
	p := protocol.SubscribePayload{Window: target, Key: key, Direction: direction}

	c.mu.Lock()
	c.subs = append(c.subs, p)
	if !c.isConnected {
		// Offline subscriptions go out with the next connection.
		c.mu.Unlock()
		return nil
	}
	msg := c.request(protocol.TypeSubscribe, p)
	c.queued[msg.ID] = struct{}{}
	c.mu.Unlock()

	if !c.Send(msg) {
		c.mu.Lock()
		delete(c.queued, msg.ID)
		c.mu.Unlock()
		return fmt.Errorf("send queue full")
	}
	return nil
}

// SendKey asks the server to post a key into target (zero for the focused target).
func (c *Client) SendKey(target window.Handle, key string, hold time.Duration) bool {
	return c.Send(c.request(protocol.TypeSendKey, protocol.SendKeyPayload{
		Window: target,
		Key:    key,
		HoldMs: int(hold / time.Millisecond),
	}))
}

// IsConnected returns true if client is connected to the server
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}

// Close stops the client
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
