package main

import (
	"github.com/google/uuid"

	"github.com/studycircle/studycircle/wire"
)

// SessionInterface defines the methods the hub and handlers need from a
// session. This interface enables mocking sessions in tests.
type SessionInterface interface {
	ID() string
	UserID() uuid.UUID
	SetUserID(id uuid.UUID)
	UserAgent() string
	IsAuthenticated() bool
	RequireAuth(msgID string) bool
	Send(msg *wire.ServerMessage)
	Close()
}

// Compile-time check that Session implements SessionInterface.
var _ SessionInterface = (*Session)(nil)
