package views

import (
	"context"
	"encoding/json"

	"github.com/studycircle/studycircle/store"
)

// Document collections written by the backend and read here to seed views
// at mount time. Seeding is best-effort: a store error yields an empty seed
// and a user-visible message upstream, never a crash of the realtime layer.
const (
	CollectionMessages      = "messages"
	CollectionPosts         = "posts"
	CollectionNotifications = "notifications"
)

// SeedMessages fetches the persisted chat history for a study room.
func SeedMessages(ctx context.Context, st store.Store, roomID string) ([]Message, error) {
	docs, err := st.QueryByField(ctx, CollectionMessages, "roomId", roomID)
	if err != nil {
		return nil, err
	}
	messages := make([]Message, 0, len(docs))
	for _, doc := range docs {
		var msg Message
		if json.Unmarshal(doc.Data, &msg) != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// SeedPosts fetches the persisted posts for a community, newest first.
func SeedPosts(ctx context.Context, st store.Store, communityID string) ([]Post, error) {
	docs, err := st.QueryByField(ctx, CollectionPosts, "communityId", communityID)
	if err != nil {
		return nil, err
	}
	posts := make([]Post, 0, len(docs))
	for i := len(docs) - 1; i >= 0; i-- {
		var post Post
		if json.Unmarshal(docs[i].Data, &post) != nil {
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// SeedNotifications fetches the persisted notifications for a user.
func SeedNotifications(ctx context.Context, st store.Store, userID string) ([]Notification, error) {
	docs, err := st.QueryByField(ctx, CollectionNotifications, "userId", userID)
	if err != nil {
		return nil, err
	}
	notifications := make([]Notification, 0, len(docs))
	for _, doc := range docs {
		var n Notification
		if json.Unmarshal(doc.Data, &n) != nil {
			continue
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}
