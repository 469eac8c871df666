package main

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/studycircle/studycircle/redis"
	"github.com/studycircle/studycircle/store"
	"github.com/studycircle/studycircle/wire"
)

// How often the shared online cache is refreshed for connected users.
const heartbeatInterval = 2 * time.Minute

// PresenceManager handles room occupancy notifications, last-seen
// persistence and the shared online cache.
type PresenceManager struct {
	hub   *Hub
	db    store.Store
	redis *redis.Client
}

// NewPresenceManager creates a new presence manager. redis may be nil when
// running single-node.
func NewPresenceManager(hub *Hub, db store.Store, r *redis.Client) *PresenceManager {
	return &PresenceManager{
		hub:   hub,
		db:    db,
		redis: r,
	}
}

// RoomJoined notifies a room's members that a user joined it. The joining
// session is skipped.
func (p *PresenceManager) RoomJoined(room string, userID uuid.UUID, skipSession string) {
	p.hub.BroadcastToRoom(room, &wire.ServerMessage{
		Pres: &wire.MsgServerPres{
			Room:   room,
			UserID: userID.String(),
			What:   "join",
		},
	}, skipSession)
}

// RoomLeft notifies a room's remaining members that a user left it.
func (p *PresenceManager) RoomLeft(room string, userID uuid.UUID) {
	p.hub.BroadcastToRoom(room, &wire.ServerMessage{
		Pres: &wire.MsgServerPres{
			Room:   room,
			UserID: userID.String(),
			What:   "leave",
		},
	}, "")
}

// UserOnline is called when a user comes online (first session connects).
func (p *PresenceManager) UserOnline(userID uuid.UUID) {
	if p.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.redis.SetOnline(ctx, userID.String())
}

// UserOffline is called when a user goes offline (last session disconnects).
func (p *PresenceManager) UserOffline(userID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Persist last_seen so clients can render "last seen" after disconnect
	p.db.UpdateUserLastSeen(ctx, userID)

	if p.redis != nil {
		p.redis.SetOffline(ctx, userID.String())
	}
}

// StartHeartbeat periodically refreshes the online cache TTL for every user
// connected to this node. No-op without Redis.
func (p *PresenceManager) StartHeartbeat(ctx context.Context) {
	if p.redis == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				for _, userID := range p.hub.OnlineUsers() {
					p.redis.RefreshOnline(refreshCtx, userID.String())
				}
				cancel()
			}
		}
	}()
}
