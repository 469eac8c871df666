package main

import (
	"context"
	"encoding/base64"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/studycircle/studycircle/auth"
	"github.com/studycircle/studycircle/config"
	"github.com/studycircle/studycircle/ratelimit"
	"github.com/studycircle/studycircle/store"
	"github.com/studycircle/studycircle/wire"
)

// Handlers holds dependencies for request handlers.
type Handlers struct {
	db       store.Store
	auth     *auth.Auth
	hub      *Hub
	presence *PresenceManager
	limiter  *ratelimit.Limiter
	limits   config.LimitsConfig
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db store.Store, a *auth.Auth, hub *Hub, presence *PresenceManager, limits config.LimitsConfig) *Handlers {
	return &Handlers{
		db:       db,
		auth:     a,
		hub:      hub,
		presence: presence,
		limiter:  ratelimit.New(limits.PublishRate, time.Duration(limits.PublishWindowSec)*time.Second),
		limits:   limits,
	}
}

// SessionClosed releases per-session state. Called from the read pump when
// the connection drops.
func (h *Handlers) SessionClosed(s SessionInterface) {
	h.limiter.Forget(s.ID())
}

// HandleLogin processes login requests.
func (h *Handlers) HandleLogin(s SessionInterface, msg *wire.ClientMessage) {
	login := msg.Login
	if login == nil {
		s.Send(wire.CtrlError(msg.ID, wire.CodeBadRequest, "missing login data"))
		return
	}

	ctx := context.Background()

	switch login.Scheme {
	case "basic":
		h.handleBasicLogin(ctx, s, msg, login.Secret)
	case "token":
		h.handleTokenLogin(ctx, s, msg, login.Secret)
	default:
		s.Send(wire.CtrlError(msg.ID, wire.CodeBadRequest, "unknown auth scheme"))
	}
}

func (h *Handlers) handleBasicLogin(ctx context.Context, s SessionInterface, msg *wire.ClientMessage, secret string) {
	// Decode base64 secret (username:password)
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		s.Send(wire.CtrlError(msg.ID, wire.CodeBadRequest, "invalid secret encoding"))
		return
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		s.Send(wire.CtrlError(msg.ID, wire.CodeBadRequest, "invalid secret format"))
		return
	}
	username, password := parts[0], parts[1]

	// Look up auth record
	authRec, err := h.db.GetAuthByUsername(ctx, username)
	if err != nil {
		s.Send(wire.CtrlError(msg.ID, wire.CodeInternalError, "database error"))
		return
	}
	if authRec == nil {
		s.Send(wire.CtrlError(msg.ID, wire.CodeUnauthorized, "invalid credentials"))
		return
	}

	// Verify password
	if !h.auth.VerifyPassword(password, authRec.Secret) {
		s.Send(wire.CtrlError(msg.ID, wire.CodeUnauthorized, "invalid credentials"))
		return
	}

	h.finishLogin(ctx, s, msg, authRec.UserID)
}

func (h *Handlers) handleTokenLogin(ctx context.Context, s SessionInterface, msg *wire.ClientMessage, secret string) {
	claims, err := h.auth.ValidateToken(secret)
	if err != nil {
		if err == auth.ErrTokenExpired {
			s.Send(wire.CtrlError(msg.ID, wire.CodeUnauthorized, "token expired"))
		} else {
			s.Send(wire.CtrlError(msg.ID, wire.CodeUnauthorized, "invalid token"))
		}
		return
	}

	h.finishLogin(ctx, s, msg, claims.UserID)
}

// finishLogin resolves the user, binds the session and sends a fresh token.
func (h *Handlers) finishLogin(ctx context.Context, s SessionInterface, msg *wire.ClientMessage, userID uuid.UUID) {
	user, err := h.db.GetUserByID(ctx, userID)
	if err != nil {
		s.Send(wire.CtrlError(msg.ID, wire.CodeInternalError, "database error"))
		return
	}
	if user == nil {
		s.Send(wire.CtrlError(msg.ID, wire.CodeUnauthorized, "user not found"))
		return
	}

	// Authenticate session
	h.hub.AuthenticateSession(s, user.ID)
	log.Printf("handlers: user %s logged in (ua=%q)", shortID(user.ID), s.UserAgent())

	// Update last seen
	h.db.UpdateUserLastSeen(ctx, user.ID)

	// Generate token (refresh on token login)
	token, expiresAt, err := h.auth.GenerateToken(user.ID)
	if err != nil {
		s.Send(wire.CtrlError(msg.ID, wire.CodeInternalError, "failed to generate token"))
		return
	}

	s.Send(wire.CtrlSuccess(msg.ID, wire.CodeOK, map[string]any{
		"user":    user.ID.String(),
		"token":   token,
		"expires": expiresAt,
		"desc": map[string]any{
			"public": user.Public,
		},
	}))
}

// HandleJoin adds the session to a room and notifies its members.
func (h *Handlers) HandleJoin(s SessionInterface, msg *wire.ClientMessage) {
	if !s.RequireAuth(msg.ID) {
		return
	}

	join := msg.Join
	if join == nil {
		s.Send(wire.CtrlError(msg.ID, wire.CodeBadRequest, "missing join data"))
		return
	}
	if join.Room == "" {
		s.Send(wire.CtrlError(msg.ID, wire.CodeBadRequest, "missing room"))
		return
	}

	// Joining twice is a no-op; the client sends one join per room intent.
	if h.hub.JoinRoom(s, join.Room) && h.presence != nil {
		h.presence.RoomJoined(join.Room, s.UserID(), s.ID())
	}

	s.Send(wire.CtrlSuccess(msg.ID, wire.CodeOK, map[string]any{
		"room": join.Room,
	}))
}

// HandleLeave removes the session from a room and notifies its members.
func (h *Handlers) HandleLeave(s SessionInterface, msg *wire.ClientMessage) {
	if !s.RequireAuth(msg.ID) {
		return
	}

	leave := msg.Leave
	if leave == nil {
		s.Send(wire.CtrlError(msg.ID, wire.CodeBadRequest, "missing leave data"))
		return
	}
	if leave.Room == "" {
		s.Send(wire.CtrlError(msg.ID, wire.CodeBadRequest, "missing room"))
		return
	}

	if h.hub.LeaveRoom(s, leave.Room) && h.presence != nil {
		h.presence.RoomLeft(leave.Room, s.UserID())
	}

	s.Send(wire.CtrlSuccess(msg.ID, wire.CodeOK, map[string]any{
		"room": leave.Room,
	}))
}

// HandlePub fans a published event out to the other members of its room.
// The publishing session is excluded: the client appends its own events
// locally before emitting.
func (h *Handlers) HandlePub(s SessionInterface, msg *wire.ClientMessage) {
	if !s.RequireAuth(msg.ID) {
		return
	}

	pub := msg.Pub
	if pub == nil {
		s.Send(wire.CtrlError(msg.ID, wire.CodeBadRequest, "missing pub data"))
		return
	}
	if pub.Room == "" || pub.Event == "" {
		s.Send(wire.CtrlError(msg.ID, wire.CodeBadRequest, "missing room or event"))
		return
	}
	if len(pub.Data) > h.limits.MaxEventBytes {
		s.Send(wire.CtrlError(msg.ID, wire.CodeBadRequest, "event too large"))
		return
	}
	if !h.hub.InRoom(s, pub.Room) {
		s.Send(wire.CtrlError(msg.ID, wire.CodeForbidden, "not a member of room"))
		return
	}
	if !h.limiter.Allow(s.ID()) {
		s.Send(wire.CtrlError(msg.ID, wire.CodeTooManyRequests, "publish rate exceeded"))
		return
	}

	event := &wire.ServerMessage{
		Event: &wire.MsgServerEvent{
			Event: pub.Event,
			Room:  pub.Room,
			From:  s.UserID().String(),
			Data:  pub.Data,
			Ts:    time.Now().UTC(),
		},
	}
	h.hub.BroadcastToRoom(pub.Room, event, s.ID())

	s.Send(wire.CtrlSuccess(msg.ID, wire.CodeOK, nil))
}
