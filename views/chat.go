// Package views holds the page-level consumers of the realtime layer: the
// study-room chat, the community feed and the notification inbox. Each view
// owns an append-only, unbounded sequence of received items, optionally
// seeded from the document store at mount time. Outbound actions append
// optimistically and emit; there is no reconciliation if the emit is dropped
// or the backend's canonical state diverges.
package views

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studycircle/studycircle/realtime"
	"github.com/studycircle/studycircle/wire"
)

// MaxTextGraphemes bounds user-entered text, counted in grapheme clusters.
const MaxTextGraphemes = 2000

// Message is one study-room chat entry.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Author    string    `json:"author"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomChat is the study-room page's view of one room's chat.
type RoomChat struct {
	client *realtime.Client
	roomID string
	author string

	mu       sync.Mutex
	messages []Message
	closed   bool

	sub *realtime.Subscription
}

// NewRoomChat joins the study room and starts appending inbound messages.
// seed is the locally fetched history, kept as-is at the head of the
// sequence. Close must be called when the page unmounts.
func NewRoomChat(client *realtime.Client, roomID, author string, seed []Message) *RoomChat {
	c := &RoomChat{
		client:   client,
		roomID:   roomID,
		author:   author,
		messages: append([]Message(nil), seed...),
	}
	client.Join(realtime.KindStudyRoom, roomID)
	c.sub = client.Subscribe(realtime.RoomMessage(roomID), c.onMessage)
	return c
}

func (c *RoomChat) onMessage(data json.RawMessage) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	c.mu.Lock()
	if !c.closed {
		c.messages = append(c.messages, msg)
	}
	c.mu.Unlock()
}

// Send appends the message locally and emits it to the room. The local
// append happens even when the emit is dropped; the returned bool reports
// only whether the emit went out.
func (c *RoomChat) Send(text string) bool {
	text = wire.TruncateGraphemes(text, MaxTextGraphemes)
	msg := Message{
		ID:        uuid.New().String(),
		Author:    c.author,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	return c.client.Emit(realtime.RoomMessage(c.roomID), msg)
}

// Messages returns a copy of the current sequence.
func (c *RoomChat) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Close leaves the room and deactivates the message handler. Idempotent.
func (c *RoomChat) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.client.Unsubscribe(c.sub)
	c.client.Leave(realtime.KindStudyRoom, c.roomID)
}
