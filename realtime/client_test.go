package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/studycircle/studycircle/wire"
)

// testBroker is a minimal broadcast backend: it records join/leave/pub
// frames and fans out published events to the other members of the room.
type testBroker struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*websocket.Conn]map[string]bool
	joins  []wire.MsgClientJoin
	leaves []wire.MsgClientLeave
	pubs   []wire.MsgClientPub
	logins []wire.MsgClientLogin
}

func newTestBroker(t *testing.T) *testBroker {
	t.Helper()
	b := &testBroker{conns: make(map[*websocket.Conn]map[string]bool)}
	b.srv = httptest.NewServer(http.HandlerFunc(b.handleWS))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *testBroker) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *testBroker) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.conns[conn] = make(map[string]bool)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
		conn.Close()
	}()

	for {
		var msg wire.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		b.mu.Lock()
		switch {
		case msg.Login != nil:
			b.logins = append(b.logins, *msg.Login)
		case msg.Join != nil:
			b.joins = append(b.joins, *msg.Join)
			b.conns[conn][msg.Join.Room] = true
		case msg.Leave != nil:
			b.leaves = append(b.leaves, *msg.Leave)
			delete(b.conns[conn], msg.Leave.Room)
		case msg.Pub != nil:
			b.pubs = append(b.pubs, *msg.Pub)
			out := wire.ServerMessage{Event: &wire.MsgServerEvent{
				Event: msg.Pub.Event,
				Room:  msg.Pub.Room,
				Data:  msg.Pub.Data,
				Ts:    time.Now().UTC(),
			}}
			for other, rooms := range b.conns {
				if other != conn && rooms[msg.Pub.Room] {
					other.WriteJSON(&out)
				}
			}
		}
		b.mu.Unlock()
	}
}

func (b *testBroker) joinCount(room string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, j := range b.joins {
		if j.Room == room {
			n++
		}
	}
	return n
}

func (b *testBroker) leaveCount(room string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, l := range b.leaves {
		if l.Room == room {
			n++
		}
	}
	return n
}

func (b *testBroker) pubCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pubs)
}

func (b *testBroker) loginCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.logins)
}

// dropConnections severs every active connection to simulate a transport
// failure.
func (b *testBroker) dropConnections() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.conns {
		conn.Close()
	}
}

func testConfig(url string) Config {
	return Config{
		URL:               url,
		ReconnectBase:     10 * time.Millisecond,
		ReconnectMax:      50 * time.Millisecond,
		ReconnectAttempts: 5,
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestJoinSendsOneFramePerRoom(t *testing.T) {
	b := newTestBroker(t)
	c := New(testConfig(b.url()), discardLogger())
	defer c.Disconnect()

	c.Connect(Session{UserID: "u1"})
	waitFor(t, 2*time.Second, "connected", func() bool { return c.Status() == StateConnected })

	// Two holders of the same room: one join frame on the wire.
	c.Join(KindStudyRoom, "r1")
	c.Join(KindStudyRoom, "r1")
	c.Join(KindCommunity, "42")

	waitFor(t, time.Second, "joins", func() bool {
		return b.joinCount("studyroom_r1") >= 1 && b.joinCount("community_42") >= 1
	})
	if n := b.joinCount("studyroom_r1"); n != 1 {
		t.Errorf("expected 1 join for studyroom_r1, got %d", n)
	}

	// First leave keeps membership (refcount 2 -> 1), second releases it.
	c.Leave(KindStudyRoom, "r1")
	time.Sleep(20 * time.Millisecond)
	if n := b.leaveCount("studyroom_r1"); n != 0 {
		t.Errorf("expected no leave while another holder remains, got %d", n)
	}
	c.Leave(KindStudyRoom, "r1")
	waitFor(t, time.Second, "leave", func() bool { return b.leaveCount("studyroom_r1") == 1 })
}

func TestRejoinAfterReconnect(t *testing.T) {
	b := newTestBroker(t)
	c := New(testConfig(b.url()), discardLogger())
	defer c.Disconnect()

	c.Connect(Session{UserID: "u1"})
	waitFor(t, 2*time.Second, "connected", func() bool { return c.Status() == StateConnected })

	c.Join(KindStudyRoom, "r1")
	c.Join(KindCommunity, "42")
	waitFor(t, time.Second, "initial joins", func() bool {
		return b.joinCount("studyroom_r1") == 1 && b.joinCount("community_42") == 1
	})

	b.dropConnections()
	waitFor(t, 2*time.Second, "rejoin", func() bool {
		return b.joinCount("studyroom_r1") == 2 && b.joinCount("community_42") == 2
	})
	waitFor(t, 2*time.Second, "reconnected", func() bool { return c.Status() == StateConnected })

	// Exactly one re-sent join per held room, no extras.
	time.Sleep(50 * time.Millisecond)
	if n := b.joinCount("studyroom_r1"); n != 2 {
		t.Errorf("expected 2 joins for studyroom_r1 after reconnect, got %d", n)
	}
}

func TestEmitWhileDisconnectedIsDropped(t *testing.T) {
	b := newTestBroker(t)
	c := New(testConfig(b.url()), discardLogger())
	defer c.Disconnect()

	if ok := c.Emit(RoomMessage("r1"), map[string]string{"message": "hi"}); ok {
		t.Error("emit while disconnected should report dropped")
	}

	// A later connect must not retroactively deliver the dropped emit.
	c.Connect(Session{UserID: "u1"})
	waitFor(t, 2*time.Second, "connected", func() bool { return c.Status() == StateConnected })
	time.Sleep(50 * time.Millisecond)
	if n := b.pubCount(); n != 0 {
		t.Errorf("dropped emit was delivered after connect: %d pubs", n)
	}
}

func TestEmitFanOutBetweenSessions(t *testing.T) {
	b := newTestBroker(t)

	c1 := New(testConfig(b.url()), discardLogger())
	defer c1.Disconnect()
	c2 := New(testConfig(b.url()), discardLogger())
	defer c2.Disconnect()

	c1.Connect(Session{UserID: "alice"})
	c2.Connect(Session{UserID: "bob"})
	waitFor(t, 2*time.Second, "both connected", func() bool {
		return c1.Status() == StateConnected && c2.Status() == StateConnected
	})

	c1.Join(KindStudyRoom, "r1")
	c2.Join(KindStudyRoom, "r1")
	waitFor(t, time.Second, "both joined", func() bool { return b.joinCount("studyroom_r1") == 2 })

	received := make(chan json.RawMessage, 4)
	c2.Subscribe(RoomMessage("r1"), func(data json.RawMessage) { received <- data })

	echoed := 0
	c1.Subscribe(RoomMessage("r1"), func(json.RawMessage) { echoed++ })

	if ok := c1.Emit(RoomMessage("r1"), map[string]string{"author": "A", "message": "hi"}); !ok {
		t.Fatal("emit failed while connected")
	}

	select {
	case data := <-received:
		var got map[string]string
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if got["author"] != "A" || got["message"] != "hi" {
			t.Errorf("payload = %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received the event")
	}

	select {
	case <-received:
		t.Error("subscriber invoked more than once for a single emit")
	case <-time.After(100 * time.Millisecond):
	}
	if echoed != 0 {
		t.Errorf("publisher received its own event %d times", echoed)
	}
}

func TestConnectIdempotentForSameSession(t *testing.T) {
	b := newTestBroker(t)
	c := New(testConfig(b.url()), discardLogger())
	defer c.Disconnect()

	sess := Session{UserID: "u1", Token: "tok"}
	c.Connect(sess)
	waitFor(t, 2*time.Second, "connected", func() bool { return c.Status() == StateConnected })

	c.Connect(sess)
	c.Connect(sess)
	time.Sleep(50 * time.Millisecond)

	if n := b.loginCount(); n != 1 {
		t.Errorf("expected a single login frame, got %d", n)
	}
	if c.Status() != StateConnected {
		t.Errorf("state = %v after repeated Connect", c.Status())
	}
}

func TestFailedAfterRetryBudget(t *testing.T) {
	// A broker that is already gone: every dial fails.
	b := newTestBroker(t)
	url := b.url()
	b.srv.Close()

	cfg := testConfig(url)
	cfg.ReconnectAttempts = 3
	c := New(cfg, discardLogger())

	var errs int
	var mu sync.Mutex
	c.OnError(func(error) { mu.Lock(); errs++; mu.Unlock() })

	c.Connect(Session{UserID: "u1"})
	waitFor(t, 2*time.Second, "failed", func() bool { return c.Status() == StateFailed })

	mu.Lock()
	defer mu.Unlock()
	if errs != 3 {
		t.Errorf("expected 3 reported errors, got %d", errs)
	}
}

func TestDisconnectReleasesTransport(t *testing.T) {
	b := newTestBroker(t)
	c := New(testConfig(b.url()), discardLogger())

	c.Connect(Session{UserID: "u1"})
	waitFor(t, 2*time.Second, "connected", func() bool { return c.Status() == StateConnected })

	c.Disconnect()
	if c.Status() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", c.Status())
	}
	// Safe to call again.
	c.Disconnect()

	// No reconnect attempts after an explicit disconnect.
	time.Sleep(100 * time.Millisecond)
	if c.Status() != StateDisconnected {
		t.Errorf("client reconnected after Disconnect: %v", c.Status())
	}
}

func TestStatusObserver(t *testing.T) {
	b := newTestBroker(t)
	c := New(testConfig(b.url()), discardLogger())
	defer c.Disconnect()

	var mu sync.Mutex
	var seen []State
	cancel := c.OnStatus(func(s State) { mu.Lock(); seen = append(seen, s); mu.Unlock() })

	c.Connect(Session{UserID: "u1"})
	waitFor(t, 2*time.Second, "connected", func() bool { return c.Status() == StateConnected })

	mu.Lock()
	gotConnected := false
	for _, s := range seen {
		if s == StateConnected {
			gotConnected = true
		}
	}
	mu.Unlock()
	if !gotConnected {
		t.Error("status observer never saw connected")
	}

	cancel()
	c.Disconnect()
	mu.Lock()
	n := len(seen)
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	if len(seen) != n {
		t.Error("observer invoked after cancel")
	}
	mu.Unlock()
}
