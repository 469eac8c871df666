// Package store provides document-store access for StudyCircle.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Store defines the interface for all persistence operations. The backend
// is an eventually-consistent document store: callers must treat errors as
// non-fatal and never assume transactional guarantees across calls.
// This interface enables mocking for unit tests.
type Store interface {
	// Close closes the database connection.
	Close()

	// Users
	CreateUser(ctx context.Context, public json.RawMessage) (uuid.UUID, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	UpdateUserLastSeen(ctx context.Context, userID uuid.UUID) error
	UpdateUserPublic(ctx context.Context, userID uuid.UUID, public json.RawMessage) error

	// Auth
	CreateAuthRecord(ctx context.Context, userID uuid.UUID, scheme, secret, username string) error
	GetAuthByUsername(ctx context.Context, username string) (*AuthRecord, error)

	// Documents
	GetDocument(ctx context.Context, collection, id string) (*Document, error)
	SetDocument(ctx context.Context, collection, id string, data json.RawMessage) error
	DeleteDocument(ctx context.Context, collection, id string) error
	QueryByField(ctx context.Context, collection, field, value string) ([]Document, error)
}

// User is a registered account.
type User struct {
	ID        uuid.UUID
	Public    json.RawMessage
	LastSeen  *time.Time
	CreatedAt time.Time
}

// AuthRecord holds one authentication scheme's secret for a user.
type AuthRecord struct {
	UserID   uuid.UUID
	Scheme   string
	Secret   string
	Username string
}

// Document is one record in a named collection. Data is opaque JSON; the
// shape is owned by whichever feature writes the collection.
type Document struct {
	Collection string
	ID         string
	Data       json.RawMessage
	UpdatedAt  time.Time
}
