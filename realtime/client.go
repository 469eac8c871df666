// Package realtime is the client SDK for the StudyCircle realtime backend.
// It owns one websocket connection per authenticated session and exposes
// room membership and named-event publish/subscribe on top of it.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/studycircle/studycircle/wire"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Session is the authenticated identity the connection is established for.
type Session struct {
	UserID string
	Name   string
	// Token is presented to the backend at connect time.
	Token string
}

// Client manages the websocket connection, room membership and event
// dispatch. All methods are safe for concurrent use; inbound handlers run
// on the connection's single read goroutine.
type Client struct {
	cfg  Config
	log  *slog.Logger
	bus  *bus
	roms *roomTracker

	state atomic.Int32

	mu      sync.Mutex // guards conn, session, running, cancel
	writeMu sync.Mutex // serialises all conn writes (ping, login, frames)
	conn    *websocket.Conn
	session Session
	running bool
	cancel  context.CancelFunc

	cbMu       sync.Mutex
	nextCb     int
	statusSubs map[int]func(State)
	presSubs   map[int]func(wire.MsgServerPres)
	errSubs    map[int]func(error)
}

// New creates a client for the given endpoint configuration. A nil logger
// falls back to slog.Default.
func New(cfg Config, log *slog.Logger) *Client {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		log:        log,
		bus:        newBus(log),
		roms:       newRoomTracker(),
		statusSubs: make(map[int]func(State)),
		presSubs:   make(map[int]func(wire.MsgServerPres)),
		errSubs:    make(map[int]func(error)),
	}
}

// Connect establishes the transport for the session. It returns immediately;
// connectivity is reported through Status/OnStatus and failures through
// OnError. Calling Connect again for the same session while the connection
// loop is running is a no-op. After the retry budget is exhausted the loop
// stops and an explicit Connect is required to try again.
func (c *Client) Connect(session Session) {
	c.mu.Lock()
	if c.running && c.session.UserID == session.UserID {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.session = session
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	go c.run(ctx, session)
}

// Disconnect releases the transport. Safe to call when already disconnected.
// Join intents and subscriptions are kept; a later Connect re-issues joins.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.running = false
	c.mu.Unlock()
	c.setState(StateDisconnected)
}

// Status returns the current connection state.
func (c *Client) Status() State {
	return State(c.state.Load())
}

// OnStatus registers a state-change observer and returns its removal func.
func (c *Client) OnStatus(fn func(State)) func() {
	c.cbMu.Lock()
	id := c.nextCb
	c.nextCb++
	c.statusSubs[id] = fn
	c.cbMu.Unlock()
	return func() {
		c.cbMu.Lock()
		delete(c.statusSubs, id)
		c.cbMu.Unlock()
	}
}

// OnPresence registers a room occupancy observer and returns its removal func.
func (c *Client) OnPresence(fn func(wire.MsgServerPres)) func() {
	c.cbMu.Lock()
	id := c.nextCb
	c.nextCb++
	c.presSubs[id] = fn
	c.cbMu.Unlock()
	return func() {
		c.cbMu.Lock()
		delete(c.presSubs, id)
		c.cbMu.Unlock()
	}
}

// OnError registers a transport error observer and returns its removal func.
// Connect errors are reported here, never returned synchronously.
func (c *Client) OnError(fn func(error)) func() {
	c.cbMu.Lock()
	id := c.nextCb
	c.nextCb++
	c.errSubs[id] = fn
	c.cbMu.Unlock()
	return func() {
		c.cbMu.Lock()
		delete(c.errSubs, id)
		c.cbMu.Unlock()
	}
}

// Join records intent to be a member of the room and, if connected, sends
// the join frame. Intents are reference-counted: only the first holder of a
// room triggers a frame, and repeated joins by the same holder are the
// holder's responsibility to pair with leaves.
func (c *Client) Join(kind, id string) {
	k := roomKey{kind: kind, id: id}
	if c.roms.join(k) && c.Status() == StateConnected {
		c.sendJoin(k)
	}
}

// Leave drops intent for the room and, if this was the last holder and the
// connection is up, sends the leave frame.
func (c *Client) Leave(kind, id string) {
	k := roomKey{kind: kind, id: id}
	if c.roms.leave(k) && c.Status() == StateConnected {
		c.sendLeave(k)
	}
}

// Emit sends a fire-and-forget event. If the connection is not up the event
// is dropped, a warning is logged, and false is returned; it is never queued
// or retried. Callers needing delivery guarantees must build them above
// this layer.
func (c *Client) Emit(event EventName, payload any) bool {
	if c.Status() != StateConnected {
		c.log.Warn("not connected, dropping emit", "event", string(event))
		return false
	}
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Warn("emit payload not serialisable", "event", string(event), "err", err)
		return false
	}
	frame := wire.ClientMessage{
		Pub: &wire.MsgClientPub{
			Event: string(event),
			Room:  event.Room(),
			Data:  data,
		},
	}
	if err := c.write(&frame); err != nil {
		c.log.Warn("emit write failed", "event", string(event), "err", err)
		return false
	}
	return true
}

// Subscribe registers a handler for the event. Handlers for the same event
// are invoked in registration order, in the order events arrive.
func (c *Client) Subscribe(event EventName, fn Handler) *Subscription {
	return c.bus.subscribe(event, fn)
}

// Unsubscribe removes one handler. The handler is never invoked again, even
// for an event already read off the wire but not yet dispatched.
func (c *Client) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub)
}

// UnsubscribeAll removes every handler registered for the event.
func (c *Client) UnsubscribeAll(event EventName) {
	c.bus.unsubscribeAll(event)
}

// run is the connection loop: dial, authenticate, pump, and retry with
// bounded exponential backoff until the context is cancelled or the attempt
// budget runs out.
func (c *Client) run(ctx context.Context, session Session) {
	delay := c.cfg.ReconnectBase
	attempts := 0
	first := true

	for {
		if ctx.Err() != nil {
			c.stop(StateDisconnected)
			return
		}
		if first {
			c.setState(StateConnecting)
		} else {
			c.setState(StateReconnecting)
		}

		conn, err := c.dial(ctx, session)
		if err != nil {
			c.log.Warn("connect failed", "err", err, "attempt", attempts+1, "retry_in", delay)
			c.reportError(err)
			attempts++
			if attempts >= c.cfg.ReconnectAttempts {
				c.log.Warn("retry budget exhausted, giving up", "attempts", attempts)
				c.stop(StateFailed)
				return
			}
			select {
			case <-ctx.Done():
				c.stop(StateDisconnected)
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, c.cfg.ReconnectMax)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		attempts = 0
		delay = c.cfg.ReconnectBase
		first = false

		c.log.Info("connected", "url", c.cfg.URL)
		c.setState(StateConnected)
		c.rejoinRooms()

		pingCtx, pingCancel := context.WithCancel(ctx)
		go c.pingLoop(pingCtx, conn)

		err = c.readLoop(conn)
		pingCancel()

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			c.stop(StateDisconnected)
			return
		}
		c.log.Warn("connection lost", "err", err)
		c.reportError(err)
	}
}

// dial establishes the websocket and sends the login frame. The connection
// is not shared until dial returns, so no write lock is needed here.
func (c *Client) dial(ctx context.Context, session Session) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	if session.Token != "" {
		login := wire.ClientMessage{
			Login: &wire.MsgClientLogin{Scheme: "token", Secret: session.Token},
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(&login); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// readLoop pumps inbound frames until the connection errors. Dispatch runs
// on this single goroutine, which is what preserves arrival order per event.
func (c *Client) readLoop(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg wire.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("malformed server frame", "err", err)
			continue
		}

		switch {
		case msg.Event != nil:
			c.bus.dispatch(EventName(msg.Event.Event), msg.Event.Data)
		case msg.Pres != nil:
			c.dispatchPresence(*msg.Pres)
		case msg.Ctrl != nil:
			if msg.Ctrl.Code >= 400 {
				c.log.Warn("server ctrl error", "code", msg.Ctrl.Code, "text", msg.Ctrl.Text)
			}
		}
	}
}

// pingLoop keeps the connection alive. It exits when the context is
// cancelled or the connection is replaced.
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			current := c.conn
			c.mu.Unlock()
			if current != conn {
				return
			}
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// rejoinRooms re-sends a join frame for every held intent. The backend
// forgets per-connection membership on disconnect, so this runs on every
// connected transition.
func (c *Client) rejoinRooms() {
	for _, k := range c.roms.held() {
		c.sendJoin(k)
	}
}

func (c *Client) sendJoin(k roomKey) {
	c.mu.Lock()
	userID := c.session.UserID
	c.mu.Unlock()
	frame := wire.ClientMessage{
		Join: &wire.MsgClientJoin{Room: wire.RoomName(k.kind, k.id), UserID: userID},
	}
	if err := c.write(&frame); err != nil {
		c.log.Warn("join write failed", "room", wire.RoomName(k.kind, k.id), "err", err)
	}
}

func (c *Client) sendLeave(k roomKey) {
	c.mu.Lock()
	userID := c.session.UserID
	c.mu.Unlock()
	frame := wire.ClientMessage{
		Leave: &wire.MsgClientLeave{Room: wire.RoomName(k.kind, k.id), UserID: userID},
	}
	if err := c.write(&frame); err != nil {
		c.log.Warn("leave write failed", "room", wire.RoomName(k.kind, k.id), "err", err)
	}
}

func (c *Client) write(frame *wire.ClientMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.cbMu.Lock()
	subs := make([]func(State), 0, len(c.statusSubs))
	for _, fn := range c.statusSubs {
		subs = append(subs, fn)
	}
	c.cbMu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

func (c *Client) dispatchPresence(pres wire.MsgServerPres) {
	c.cbMu.Lock()
	subs := make([]func(wire.MsgServerPres), 0, len(c.presSubs))
	for _, fn := range c.presSubs {
		subs = append(subs, fn)
	}
	c.cbMu.Unlock()
	for _, fn := range subs {
		fn(pres)
	}
}

func (c *Client) reportError(err error) {
	c.cbMu.Lock()
	subs := make([]func(error), 0, len(c.errSubs))
	for _, fn := range c.errSubs {
		subs = append(subs, fn)
	}
	c.cbMu.Unlock()
	for _, fn := range subs {
		fn(err)
	}
}

// stop marks the connection loop finished so a later Connect starts fresh.
func (c *Client) stop(s State) {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.setState(s)
}
