package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"keyroute/internal/engine"
	"keyroute/internal/input"
	"keyroute/internal/protocol"
	"keyroute/internal/router"
	"keyroute/internal/window"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 4096

	sendQueueSize  = 256
	eventQueueSize = 1024
	sendKeyTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// subscription selects the window key transitions a client wants as
// triggered messages. A zero window matches every target.
type subscription struct {
	window window.Handle
	key    input.KeyCode
	dir    input.Direction
}

type event struct {
	msg protocol.Message
	key *router.KeyEvent
}

// Hub fans engine notifications out to WebSocket clients.
type Hub struct {
	engine *engine.Engine
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}

	events     chan event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	closeOnce  sync.Once
	detach     []func()
}

// Client is a connected WebSocket peer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	addr string

	mu     sync.Mutex
	send   chan []byte
	closed bool
	subs   map[subscription]struct{}
}

func newHub(eng *engine.Engine, logger *slog.Logger) *Hub {
	return &Hub{
		engine:     eng,
		logger:     logger.With(slog.String("component", "api.ws")),
		clients:    make(map[*Client]struct{}),
		events:     make(chan event, eventQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) run() {
	h.attach()
	defer h.detachAll()

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Client registered", slog.String("remote", c.addr), slog.Int("clients", n))

		case c := <-h.unregister:
			h.remove(c)

		case ev := <-h.events:
			h.dispatch(ev)

		case <-h.done:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()
			for _, c := range clients {
				h.remove(c)
			}
			return
		}
	}
}

func (h *Hub) close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// attach subscribes the hub to every engine notification.
func (h *Hub) attach() {
	e := h.engine

	down := e.OnKeyDown(func(k input.KeyCode) { h.publish(keyMessage(protocol.TypeKeyDown, k), nil) })
	up := e.OnKeyUp(func(k input.KeyCode) { h.publish(keyMessage(protocol.TypeKeyUp, k), nil) })
	winDown := e.OnWindowKeyDown(func(ev router.KeyEvent) {
		h.publish(protocol.Message{Type: protocol.TypeWindowKeyDown, Payload: windowKeyPayload(ev)}, &ev)
	})
	winUp := e.OnWindowKeyUp(func(ev router.KeyEvent) {
		h.publish(protocol.Message{Type: protocol.TypeWindowKeyUp, Payload: windowKeyPayload(ev)}, &ev)
	})
	focused := e.OnWindowFocused(func(hwnd window.Handle) {
		p := protocol.FocusPayload{Handle: hwnd}
		if t, ok := e.FocusedWindow(); ok && t.Handle == hwnd {
			p.Target = &t
		}
		h.publish(protocol.Message{Type: protocol.TypeFocus, Payload: p}, nil)
	})

	h.detach = []func(){
		func() { e.RemoveKeyDown(down) },
		func() { e.RemoveKeyUp(up) },
		func() { e.RemoveWindowKeyDown(winDown) },
		func() { e.RemoveWindowKeyUp(winUp) },
		func() { e.RemoveWindowFocused(focused) },
	}
}

func (h *Hub) detachAll() {
	for _, fn := range h.detach {
		fn()
	}
	h.detach = nil
}

// publish runs on hook threads and must not block.
func (h *Hub) publish(msg protocol.Message, key *router.KeyEvent) {
	select {
	case h.events <- event{msg: msg, key: key}:
	default:
		h.logger.Warn("Event queue full, dropping message", slog.String("type", string(msg.Type)))
	}
}

func (h *Hub) dispatch(ev event) {
	data, err := protocol.Encode(ev.msg)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.queue(data)
	}

	if ev.key == nil {
		return
	}
	var triggered []byte
	for _, c := range clients {
		if !c.matches(*ev.key) {
			continue
		}
		if triggered == nil {
			triggered, err = protocol.Encode(protocol.Message{Type: protocol.TypeTriggered, Payload: windowKeyPayload(*ev.key)})
			if err != nil {
				return
			}
		}
		c.queue(triggered)
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}

	c.shutdown()
	h.logger.Info("Client unregistered", slog.String("remote", c.addr), slog.Int("clients", n))
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", slog.String("error", err.Error()))
		return
	}

	c := &Client{
		hub:  h,
		conn: conn,
		addr: r.RemoteAddr,
		send: make(chan []byte, sendQueueSize),
		subs: make(map[subscription]struct{}),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// queue hands data to the write pump. A client that cannot keep up is disconnected.
func (c *Client) queue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("Client too slow, disconnecting", slog.String("remote", c.addr))
		c.conn.Close()
	}
}

func (c *Client) reply(msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		c.hub.logger.Error("Failed to marshal reply", slog.String("error", err.Error()))
		return
	}
	c.queue(data)
}

// shutdown closes the send queue and releases every watched key the client held.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	for s := range c.subs {
		c.hub.engine.UnwatchKey(s.key)
	}
	clear(c.subs)
}

func (c *Client) subscribe(s subscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	if _, ok := c.subs[s]; ok {
		return fmt.Errorf("already subscribed to %s %s on %s", s.key, s.dir, s.window)
	}
	c.subs[s] = struct{}{}
	c.hub.engine.WatchKey(s.key)
	return nil
}

func (c *Client) unsubscribe(s subscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[s]; !ok {
		return fmt.Errorf("not subscribed to %s %s on %s", s.key, s.dir, s.window)
	}
	delete(c.subs, s)
	c.hub.engine.UnwatchKey(s.key)
	return nil
}

func (c *Client) matches(ev router.KeyEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[subscription{window: ev.Window.Handle, key: ev.Key, dir: ev.Dir}]; ok {
		return true
	}
	_, ok := c.subs[subscription{key: ev.Key, dir: ev.Dir}]
	return ok
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("Read error", slog.String("remote", c.addr), slog.String("error", err.Error()))
			}
			return
		}
		c.handleMessage(data)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		c.hub.logger.Warn("Invalid message format", slog.String("remote", c.addr), slog.String("error", err.Error()))
		c.reply(protocol.Error(msg, err))
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		c.reply(protocol.Message{Type: protocol.TypePong, ID: msg.ID})

	case protocol.TypeSubscribe, protocol.TypeUnsubscribe:
		s, err := parseSubscription(msg)
		if err == nil {
			if msg.Type == protocol.TypeSubscribe {
				err = c.subscribe(s)
			} else {
				err = c.unsubscribe(s)
			}
		}
		c.respond(msg, err)

	case protocol.TypeSendKey:
		// Runs inline so the reply never outlives the read pump.
		c.respond(msg, c.sendKey(msg))

	default:
		c.respond(msg, fmt.Errorf("unsupported message type %q", msg.Type))
	}
}

func (c *Client) respond(req protocol.Message, err error) {
	if err != nil {
		c.reply(protocol.Error(req, err))
		return
	}
	c.reply(protocol.Ack(req))
}

func parseSubscription(msg protocol.Message) (subscription, error) {
	var p protocol.SubscribePayload
	if err := protocol.DecodePayload(msg, &p); err != nil {
		return subscription{}, err
	}
	key, err := input.ParseKey(p.Key)
	if err != nil {
		return subscription{}, err
	}
	dir, err := input.ParseDirection(p.Direction)
	if err != nil {
		return subscription{}, err
	}
	return subscription{window: p.Window, key: key, dir: dir}, nil
}

func (c *Client) sendKey(msg protocol.Message) error {
	var p protocol.SendKeyPayload
	if err := protocol.DecodePayload(msg, &p); err != nil {
		return err
	}

	e := c.hub.engine
	target := p.Window
	if target == 0 {
		t, ok := e.FocusedWindow()
		if !ok {
			return errors.New("no target window has focus")
		}
		target = t.Handle
	} else if _, ok := e.Windows().Lookup(target); !ok {
		return fmt.Errorf("unknown window %s", target)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendKeyTimeout)
	defer cancel()

	hold := time.Duration(p.HoldMs) * time.Millisecond
	sender := e.Sender()
	switch {
	case p.Text != "":
		return sender.Text(ctx, target, p.Text, hold)
	case p.Key != "":
		code, err := input.ParseKey(p.Key)
		if err != nil {
			return err
		}
		if hold <= 0 {
			hold = input.DefaultHold
		}
		if code.IsMouse() {
			return sender.Click(ctx, target, input.Click{X: p.X, Y: p.Y, Button: code}, hold)
		}
		return sender.Key(ctx, target, code, hold)
	}
	return errors.New("send_key needs a key or text")
}

func keyMessage(t protocol.MessageType, k input.KeyCode) protocol.Message {
	return protocol.Message{Type: t, Payload: protocol.KeyPayload{Key: k.String(), Code: int32(k)}}
}

func windowKeyPayload(ev router.KeyEvent) protocol.WindowKeyPayload {
	return protocol.WindowKeyPayload{
		Window:    ev.Window,
		Key:       ev.Key.String(),
		Code:      int32(ev.Key),
		Direction: ev.Dir.String(),
	}
}
