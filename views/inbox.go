package views

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/studycircle/studycircle/realtime"
)

// Notification is one inbox entry.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // "join_request", "comment", "approval", "message"
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	Timestamp time.Time `json:"timestamp"`
}

// Inbox is the notifications page's view of one user's notifications.
type Inbox struct {
	client *realtime.Client
	userID string

	mu            sync.Mutex
	notifications []Notification
	closed        bool

	sub *realtime.Subscription
}

// NewInbox joins the user's personal room and starts appending inbound
// notifications. Close must be called when the page unmounts.
func NewInbox(client *realtime.Client, userID string, seed []Notification) *Inbox {
	in := &Inbox{
		client:        client,
		userID:        userID,
		notifications: append([]Notification(nil), seed...),
	}
	client.Join(realtime.KindUser, userID)
	in.sub = client.Subscribe(realtime.UserNotify(userID), in.onNotify)
	return in
}

func (in *Inbox) onNotify(data json.RawMessage) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return
	}
	in.mu.Lock()
	if !in.closed {
		in.notifications = append(in.notifications, n)
	}
	in.mu.Unlock()
}

// MarkRead marks one notification as read. Unknown ids are ignored.
func (in *Inbox) MarkRead(id string) {
	in.mu.Lock()
	for i := range in.notifications {
		if in.notifications[i].ID == id {
			in.notifications[i].Read = true
			break
		}
	}
	in.mu.Unlock()
}

// Delete removes one notification. Unknown ids are ignored.
func (in *Inbox) Delete(id string) {
	in.mu.Lock()
	for i := range in.notifications {
		if in.notifications[i].ID == id {
			in.notifications = append(in.notifications[:i], in.notifications[i+1:]...)
			break
		}
	}
	in.mu.Unlock()
}

// Unread returns the number of unread notifications.
func (in *Inbox) Unread() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := 0
	for _, notif := range in.notifications {
		if !notif.Read {
			n++
		}
	}
	return n
}

// Notifications returns a copy of the current sequence.
func (in *Inbox) Notifications() []Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]Notification(nil), in.notifications...)
}

// Close leaves the user room and deactivates the handler. Idempotent.
func (in *Inbox) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	in.mu.Unlock()

	in.client.Unsubscribe(in.sub)
	in.client.Leave(realtime.KindUser, in.userID)
}
