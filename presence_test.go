package main

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/studycircle/studycircle/store"
)

func TestStartHeartbeat_WithoutRedis(t *testing.T) {
	hub := NewHub()
	hub.addSession(newTestSession(uuid.New()))

	p := NewPresenceManager(hub, &store.MockStore{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Single-node setup has no shared cache to refresh; the heartbeat must
	// come up as a no-op instead of ticking against a nil client.
	p.StartHeartbeat(ctx)
}

func TestUserOffline_PersistsLastSeen(t *testing.T) {
	userID := uuid.New()
	var persisted uuid.UUID
	mock := &store.MockStore{
		UpdateUserLastSeenFn: func(ctx context.Context, id uuid.UUID) error {
			persisted = id
			return nil
		},
	}

	p := NewPresenceManager(NewHub(), mock, nil)
	p.UserOffline(userID)

	if persisted != userID {
		t.Errorf("expected last seen persisted for %s, got %s", userID, persisted)
	}
}
