// Package redis provides the Redis client and pub/sub used for
// multi-instance room fan-out and the shared online-presence cache.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis client with StudyCircle-specific operations.
type Client struct {
	rdb    *redis.Client
	nodeID string // Unique identifier for this server instance
	prefix string // Key prefix for namespacing
}

// Config holds Redis connection settings.
type Config struct {
	Addr     string // host:port
	Password string
	DB       int
	NodeID   string // Unique ID for this instance (hostname, UUID, etc.)
	Prefix   string // Key prefix (default: "studycircle:")
}

// New creates a new Redis client.
func New(cfg Config) (*Client, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "studycircle:"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:    rdb,
		nodeID: cfg.NodeID,
		prefix: cfg.Prefix,
	}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// NodeID returns this instance's node ID.
func (c *Client) NodeID() string {
	return c.nodeID
}

// key prefixes a key with the namespace.
func (c *Client) key(k string) string {
	return c.prefix + k
}

// ============================================================================
// Presence Cache
// ============================================================================

// SetOnline marks a user as online on this node.
func (c *Client) SetOnline(ctx context.Context, userID string) error {
	key := c.key("online:" + userID)
	// Store node ID with 5 minute TTL (refreshed periodically)
	return c.rdb.Set(ctx, key, c.nodeID, 5*time.Minute).Err()
}

// SetOffline removes a user's online status.
func (c *Client) SetOffline(ctx context.Context, userID string) error {
	key := c.key("online:" + userID)
	return c.rdb.Del(ctx, key).Err()
}

// IsOnline checks if a user is online (on any node).
func (c *Client) IsOnline(ctx context.Context, userID string) (bool, error) {
	key := c.key("online:" + userID)
	exists, err := c.rdb.Exists(ctx, key).Result()
	return exists > 0, err
}

// GetOnlineNode returns which node a user is connected to (empty if offline).
func (c *Client) GetOnlineNode(ctx context.Context, userID string) (string, error) {
	key := c.key("online:" + userID)
	node, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return node, err
}

// RefreshOnline extends the TTL for a user's online status.
func (c *Client) RefreshOnline(ctx context.Context, userID string) error {
	key := c.key("online:" + userID)
	return c.rdb.Expire(ctx, key, 5*time.Minute).Err()
}

// ============================================================================
// Pub/Sub
// ============================================================================

// Message represents a pub/sub message.
type Message struct {
	Type     string          `json:"type"`    // "event", "pres"
	FromNode string          `json:"from"`    // Originating node ID
	Payload  json.RawMessage `json:"payload"` // The actual message
}

// PubSub handles pub/sub operations.
type PubSub struct {
	client  *Client
	pubsub  *redis.PubSub
	handler func(msg *Message)
}

// NewPubSub creates a new pub/sub handler.
func (c *Client) NewPubSub(handler func(msg *Message)) *PubSub {
	return &PubSub{
		client:  c,
		handler: handler,
	}
}

// SubscribeToRooms pattern-subscribes to every room channel. Each node
// receives every room event and delivers it to its own local members.
func (ps *PubSub) SubscribeToRooms(ctx context.Context) error {
	pattern := ps.client.key("room:*")
	ps.pubsub = ps.client.rdb.PSubscribe(ctx, pattern)
	return nil
}

// SubscribeToNode subscribes to this node's direct channel.
func (ps *PubSub) SubscribeToNode(ctx context.Context) error {
	channel := ps.client.key("node:" + ps.client.nodeID)
	ps.pubsub = ps.client.rdb.Subscribe(ctx, channel)
	return nil
}

// Listen starts listening for messages (blocking).
func (ps *PubSub) Listen(ctx context.Context) {
	if ps.pubsub == nil {
		return
	}

	ch := ps.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(redisMsg.Payload), &msg); err != nil {
				continue
			}
			// Skip messages from self: local members were already served
			if msg.FromNode == ps.client.nodeID {
				continue
			}
			if ps.handler != nil {
				ps.handler(&msg)
			}
		}
	}
}

// Close closes the pub/sub connection.
func (ps *PubSub) Close() error {
	if ps.pubsub != nil {
		return ps.pubsub.Close()
	}
	return nil
}

// PublishRoom publishes a room event for delivery to members on other nodes.
func (c *Client) PublishRoom(ctx context.Context, room string, payload any) error {
	return c.publish(ctx, "room:"+room, "event", payload)
}

// PublishToNode publishes a message directly to a specific node.
func (c *Client) PublishToNode(ctx context.Context, nodeID string, msgType string, payload any) error {
	return c.publish(ctx, "node:"+nodeID, msgType, payload)
}

func (c *Client) publish(ctx context.Context, channel string, msgType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := Message{
		Type:     msgType,
		FromNode: c.nodeID,
		Payload:  data,
	}

	msgData, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return c.rdb.Publish(ctx, c.key(channel), msgData).Err()
}
