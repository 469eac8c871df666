package main

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
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
	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64KB
	// Send buffer size
	sendBufferSize = 128
)

// Session represents a WebSocket connection.
type Session struct {
	id         string
	hub        *Hub
	conn       *websocket.Conn
	send       chan *wire.ServerMessage
	handlers   *Handlers
	remoteAddr string

	// Protected by mu - accessed from multiple goroutines
	mu        sync.RWMutex
	userID    uuid.UUID
	userAgent string

	// Last activity timestamp (atomic access)
	lastAction int64

	// Closing state
	closing int32
	once    sync.Once
}

// NewSession creates a new session.
func NewSession(hub *Hub, conn *websocket.Conn, remoteAddr string, handlers *Handlers) *Session {
	return &Session{
		id:         uuid.New().String(),
		hub:        hub,
		conn:       conn,
		send:       make(chan *wire.ServerMessage, sendBufferSize),
		handlers:   handlers,
		remoteAddr: remoteAddr,
		lastAction: time.Now().UnixNano(),
	}
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// UserID returns the authenticated user ID.
func (s *Session) UserID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// SetUserID sets the authenticated user ID.
// This should be called from Hub.AuthenticateSession.
func (s *Session) SetUserID(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = id
}

// IsAuthenticated returns true if the session is authenticated.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID != uuid.Nil
}

// RequireAuth sends an error and returns false if the session is not
// authenticated.
func (s *Session) RequireAuth(msgID string) bool {
	if !s.IsAuthenticated() {
		s.Send(wire.CtrlError(msgID, wire.CodeUnauthorized, "authentication required"))
		return false
	}
	return true
}

// UserAgent returns the session's user agent.
func (s *Session) UserAgent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userAgent
}

// Send queues a message to be sent to the client.
// Safe to call from multiple goroutines.
func (s *Session) Send(msg *wire.ServerMessage) {
	// Use a simple recover to handle the race condition where Close()
	// may close the channel between our check and the send operation.
	// This is more efficient than using a mutex for every send.
	defer func() {
		if r := recover(); r != nil {
			// Channel was closed, session is closing - ignore
		}
	}()

	if atomic.LoadInt32(&s.closing) == 1 {
		return
	}
	select {
	case s.send <- msg:
	default:
		// Buffer full, close the session
		go s.Close() // Close in goroutine to avoid deadlock
	}
}

// Close closes the session.
// Safe to call multiple times - only first call takes effect.
func (s *Session) Close() {
	s.once.Do(func() {
		atomic.StoreInt32(&s.closing, 1)
		close(s.send)
		s.conn.Close()
	})
}

// Run starts the session's read and write pumps.
func (s *Session) Run() {
	go s.writePump()
	s.readPump()
}

// readPump pumps messages from the WebSocket connection to the handlers.
func (s *Session) readPump() {
	defer func() {
		s.hub.Unregister(s)
		s.handlers.SessionClosed(s)
		s.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			break
		}

		atomic.StoreInt64(&s.lastAction, time.Now().UnixNano())

		var msg wire.ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.Send(wire.CtrlError("", wire.CodeBadRequest, "malformed message"))
			continue
		}

		s.dispatch(&msg)
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes a client message to the appropriate handler.
func (s *Session) dispatch(msg *wire.ClientMessage) {
	switch {
	case msg.Hi != nil:
		s.handleHi(msg)
	case msg.Login != nil:
		s.handlers.HandleLogin(s, msg)
	case msg.Join != nil:
		s.handlers.HandleJoin(s, msg)
	case msg.Leave != nil:
		s.handlers.HandleLeave(s, msg)
	case msg.Pub != nil:
		s.handlers.HandlePub(s, msg)
	default:
		s.Send(wire.CtrlError(msg.ID, wire.CodeBadRequest, "unknown message type"))
	}
}

func (s *Session) handleHi(msg *wire.ClientMessage) {
	hi := msg.Hi

	s.mu.Lock()
	s.userAgent = hi.UserAgent
	s.mu.Unlock()

	s.Send(wire.CtrlSuccess(msg.ID, wire.CodeOK, map[string]any{
		"ver":   currentVersion,
		"build": buildstamp,
		"sid":   s.id,
	}))
}
