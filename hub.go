package main

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studycircle/studycircle/redis"
	"github.com/studycircle/studycircle/wire"
)

// Hub maintains active sessions, room membership and event routing.
type Hub struct {
	// Sessions indexed by session ID
	sessions map[string]SessionInterface
	// Sessions indexed by user ID (a user can have multiple sessions)
	userSessions map[uuid.UUID][]SessionInterface
	// Room membership: room name -> session ID -> session
	rooms map[string]map[string]SessionInterface
	// Online status by user ID
	online map[uuid.UUID]bool

	mu sync.RWMutex

	// Channels for session management
	register   chan SessionInterface
	unregister chan SessionInterface
	shutdown   chan struct{}

	// Presence manager (set after initialization)
	presence *PresenceManager

	// Redis client for cross-node fan-out (optional, nil if not enabled)
	redis *redis.Client
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		sessions:     make(map[string]SessionInterface),
		userSessions: make(map[uuid.UUID][]SessionInterface),
		rooms:        make(map[string]map[string]SessionInterface),
		online:       make(map[uuid.UUID]bool),
		register:     make(chan SessionInterface, 256),
		unregister:   make(chan SessionInterface, 256),
		shutdown:     make(chan struct{}),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case sess := <-h.register:
			h.addSession(sess)

		case sess := <-h.unregister:
			h.removeSession(sess)

		case <-h.shutdown:
			h.closeAllSessions()
			return
		}
	}
}

// Shutdown gracefully shuts down the hub.
func (h *Hub) Shutdown() {
	close(h.shutdown)
}

// SetPresence sets the presence manager.
func (h *Hub) SetPresence(p *PresenceManager) {
	h.presence = p
}

// SetRedis sets the Redis client for cross-node fan-out.
func (h *Hub) SetRedis(r *redis.Client) {
	h.redis = r
}

// PubSubPayload wraps a room event with routing info for pub/sub.
type PubSubPayload struct {
	Room    string              `json:"room"`
	Message *wire.ServerMessage `json:"message"`
}

// UserPayload wraps a user-directed message relayed between nodes.
type UserPayload struct {
	UserID  string              `json:"user"`
	Message *wire.ServerMessage `json:"message"`
}

// HandlePubSubMessage handles room events received from Redis pub/sub.
// Events published by this node are filtered out by the subscriber, so a
// local re-broadcast cannot loop.
func (h *Hub) HandlePubSubMessage(msg *redis.Message) {
	var payload PubSubPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("hub: failed to unmarshal pub/sub message: %v", err)
		return
	}
	h.broadcastLocal(payload.Room, payload.Message, "")
}

// HandleNodeMessage handles messages addressed to this node's channel,
// currently only user-directed relays from SendToUser on another node.
func (h *Hub) HandleNodeMessage(msg *redis.Message) {
	if msg.Type != "user" {
		return
	}
	var payload UserPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("hub: failed to unmarshal node message: %v", err)
		return
	}
	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		log.Printf("hub: node message with bad user id %q: %v", payload.UserID, err)
		return
	}
	h.sendToLocalUser(userID, payload.Message)
}

// Register adds a session to the hub.
// Non-blocking: if buffer is full, spawns goroutine to retry.
func (h *Hub) Register(sess SessionInterface) {
	select {
	case h.register <- sess:
	default:
		// Buffer full - spawn goroutine to avoid blocking caller
		go func() { h.register <- sess }()
	}
}

// Unregister removes a session from the hub.
// Non-blocking: if buffer is full, spawns goroutine to retry.
// This prevents connection leaks when sessions can't unregister.
func (h *Hub) Unregister(sess SessionInterface) {
	select {
	case h.unregister <- sess:
	default:
		// Buffer full - spawn goroutine to avoid blocking caller
		go func() { h.unregister <- sess }()
	}
}

func (h *Hub) addSession(sess SessionInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions[sess.ID()] = sess

	// If authenticated, add to user sessions
	userID := sess.UserID()
	if userID != uuid.Nil {
		h.userSessions[userID] = append(h.userSessions[userID], sess)
		h.online[userID] = true
	}
}

func (h *Hub) removeSession(sess SessionInterface) {
	h.mu.Lock()

	delete(h.sessions, sess.ID())

	// Drop the session from every room it joined; collect the rooms so
	// presence can fan out a leave for each one.
	var left []string
	for room, members := range h.rooms {
		if _, ok := members[sess.ID()]; ok {
			delete(members, sess.ID())
			if len(members) == 0 {
				delete(h.rooms, room)
			}
			left = append(left, room)
		}
	}

	// Remove from user sessions if authenticated
	userID := sess.UserID()
	lastSession := false
	if userID != uuid.Nil {
		sessions := h.userSessions[userID]
		for i, s := range sessions {
			if s.ID() == sess.ID() {
				h.userSessions[userID] = append(sessions[:i], sessions[i+1:]...)
				break
			}
		}
		// If no more sessions for this user, mark offline
		if len(h.userSessions[userID]) == 0 {
			delete(h.userSessions, userID)
			delete(h.online, userID)
			lastSession = true
		}
	}
	h.mu.Unlock()

	if h.presence != nil && userID != uuid.Nil {
		for _, room := range left {
			go h.presence.RoomLeft(room, userID)
		}
		if lastSession {
			go h.presence.UserOffline(userID)
		}
	}
}

func (h *Hub) closeAllSessions() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sess := range h.sessions {
		sess.Close()
	}
	h.sessions = make(map[string]SessionInterface)
	h.userSessions = make(map[uuid.UUID][]SessionInterface)
	h.rooms = make(map[string]map[string]SessionInterface)
	h.online = make(map[uuid.UUID]bool)
}

// JoinRoom adds a session to a room. Reports whether the session was not
// already a member, so callers can suppress duplicate presence fan-out.
func (h *Hub) JoinRoom(sess SessionInterface, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]SessionInterface)
		h.rooms[room] = members
	}
	if _, ok := members[sess.ID()]; ok {
		return false
	}
	members[sess.ID()] = sess
	return true
}

// LeaveRoom removes a session from a room. Reports whether the session was
// a member.
func (h *Hub) LeaveRoom(sess SessionInterface, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return false
	}
	if _, ok := members[sess.ID()]; !ok {
		return false
	}
	delete(members, sess.ID())
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	return true
}

// InRoom checks if a session is a member of a room.
func (h *Hub) InRoom(sess SessionInterface, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][sess.ID()]
	return ok
}

// RoomCount returns the number of local members of a room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// BroadcastToRoom fans an event out to the room's local members, excluding
// skipSession, and publishes it for members on other nodes when Redis is
// enabled. The publisher's own session is skipped: clients append their own
// events locally before emitting.
func (h *Hub) BroadcastToRoom(room string, msg *wire.ServerMessage, skipSession string) {
	h.broadcastLocal(room, msg, skipSession)

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		payload := PubSubPayload{Room: room, Message: msg}
		if err := h.redis.PublishRoom(ctx, room, payload); err != nil {
			log.Printf("hub: failed to publish to room %s: %v", room, err)
		}
	}
}

func (h *Hub) broadcastLocal(room string, msg *wire.ServerMessage, skipSession string) {
	h.mu.RLock()
	members := make([]SessionInterface, 0, len(h.rooms[room]))
	for id, sess := range h.rooms[room] {
		if id != skipSession {
			members = append(members, sess)
		}
	}
	h.mu.RUnlock()

	for _, sess := range members {
		sess.Send(msg)
	}
}

// SendToUser sends a message to all of a user's sessions on this node. When
// the user has no local sessions and Redis is enabled, the message is handed
// to the node the online cache says the user is connected to.
func (h *Hub) SendToUser(userID uuid.UUID, msg *wire.ServerMessage) {
	if h.sendToLocalUser(userID, msg) {
		return
	}
	if h.redis == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	online, err := h.redis.IsOnline(ctx, userID.String())
	if err != nil || !online {
		return
	}
	node, err := h.redis.GetOnlineNode(ctx, userID.String())
	if err != nil || node == "" || node == h.redis.NodeID() {
		return
	}
	payload := UserPayload{UserID: userID.String(), Message: msg}
	if err := h.redis.PublishToNode(ctx, node, "user", payload); err != nil {
		log.Printf("hub: failed to relay to node %s: %v", node, err)
	}
}

// sendToLocalUser delivers to the user's sessions on this node and reports
// whether any were found.
func (h *Hub) sendToLocalUser(userID uuid.UUID, msg *wire.ServerMessage) bool {
	h.mu.RLock()
	sessions := make([]SessionInterface, len(h.userSessions[userID]))
	copy(sessions, h.userSessions[userID])
	h.mu.RUnlock()

	for _, sess := range sessions {
		sess.Send(msg)
	}
	return len(sessions) > 0
}

// IsOnline checks if a user has any active sessions on this node.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.online[userID]
}

// OnlineUsers returns the IDs of all users with active sessions on this node.
func (h *Hub) OnlineUsers() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]uuid.UUID, 0, len(h.online))
	for userID := range h.online {
		users = append(users, userID)
	}
	return users
}

// SessionCount returns the total number of active sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// OnlineCount returns the number of online users.
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.online)
}

// AuthenticateSession associates a session with a user ID.
func (h *Hub) AuthenticateSession(sess SessionInterface, userID uuid.UUID) {
	h.mu.Lock()

	// Check if this is the first session for this user
	wasOnline := h.online[userID]

	// Remove from old user if re-authenticating
	oldUserID := sess.UserID()
	if oldUserID != uuid.Nil && oldUserID != userID {
		sessions := h.userSessions[oldUserID]
		for i, s := range sessions {
			if s.ID() == sess.ID() {
				h.userSessions[oldUserID] = append(sessions[:i], sessions[i+1:]...)
				break
			}
		}
		if len(h.userSessions[oldUserID]) == 0 {
			delete(h.userSessions, oldUserID)
			delete(h.online, oldUserID)
		}
	}

	sess.SetUserID(userID)
	h.userSessions[userID] = append(h.userSessions[userID], sess)
	h.online[userID] = true

	h.mu.Unlock()

	// Broadcast online presence if this is the first session
	if !wasOnline && h.presence != nil {
		go h.presence.UserOnline(userID)
	}
}
