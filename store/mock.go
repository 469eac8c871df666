package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// MockStore is a mock implementation of Store for testing.
// Each method field can be set to a custom function to control behavior.
type MockStore struct {
	CloseFn func()

	// Users
	CreateUserFn         func(ctx context.Context, public json.RawMessage) (uuid.UUID, error)
	GetUserByIDFn        func(ctx context.Context, id uuid.UUID) (*User, error)
	UpdateUserLastSeenFn func(ctx context.Context, userID uuid.UUID) error
	UpdateUserPublicFn   func(ctx context.Context, userID uuid.UUID, public json.RawMessage) error

	// Auth
	CreateAuthRecordFn  func(ctx context.Context, userID uuid.UUID, scheme, secret, username string) error
	GetAuthByUsernameFn func(ctx context.Context, username string) (*AuthRecord, error)

	// Documents
	GetDocumentFn    func(ctx context.Context, collection, id string) (*Document, error)
	SetDocumentFn    func(ctx context.Context, collection, id string, data json.RawMessage) error
	DeleteDocumentFn func(ctx context.Context, collection, id string) error
	QueryByFieldFn   func(ctx context.Context, collection, field, value string) ([]Document, error)
}

var _ Store = (*MockStore)(nil)

func (m *MockStore) Close() {
	if m.CloseFn != nil {
		m.CloseFn()
	}
}

func (m *MockStore) CreateUser(ctx context.Context, public json.RawMessage) (uuid.UUID, error) {
	if m.CreateUserFn != nil {
		return m.CreateUserFn(ctx, public)
	}
	return uuid.New(), nil
}

func (m *MockStore) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	if m.GetUserByIDFn != nil {
		return m.GetUserByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *MockStore) UpdateUserLastSeen(ctx context.Context, userID uuid.UUID) error {
	if m.UpdateUserLastSeenFn != nil {
		return m.UpdateUserLastSeenFn(ctx, userID)
	}
	return nil
}

func (m *MockStore) UpdateUserPublic(ctx context.Context, userID uuid.UUID, public json.RawMessage) error {
	if m.UpdateUserPublicFn != nil {
		return m.UpdateUserPublicFn(ctx, userID, public)
	}
	return nil
}

func (m *MockStore) CreateAuthRecord(ctx context.Context, userID uuid.UUID, scheme, secret, username string) error {
	if m.CreateAuthRecordFn != nil {
		return m.CreateAuthRecordFn(ctx, userID, scheme, secret, username)
	}
	return nil
}

func (m *MockStore) GetAuthByUsername(ctx context.Context, username string) (*AuthRecord, error) {
	if m.GetAuthByUsernameFn != nil {
		return m.GetAuthByUsernameFn(ctx, username)
	}
	return nil, nil
}

func (m *MockStore) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	if m.GetDocumentFn != nil {
		return m.GetDocumentFn(ctx, collection, id)
	}
	return nil, nil
}

func (m *MockStore) SetDocument(ctx context.Context, collection, id string, data json.RawMessage) error {
	if m.SetDocumentFn != nil {
		return m.SetDocumentFn(ctx, collection, id, data)
	}
	return nil
}

func (m *MockStore) DeleteDocument(ctx context.Context, collection, id string) error {
	if m.DeleteDocumentFn != nil {
		return m.DeleteDocumentFn(ctx, collection, id)
	}
	return nil
}

func (m *MockStore) QueryByField(ctx context.Context, collection, field, value string) ([]Document, error) {
	if m.QueryByFieldFn != nil {
		return m.QueryByFieldFn(ctx, collection, field, value)
	}
	return nil, nil
}
