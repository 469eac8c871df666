package views

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studycircle/studycircle/realtime"
	"github.com/studycircle/studycircle/wire"
)

// Post is one community feed entry.
type Post struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Likes     int       `json:"likes"`
	Liked     bool      `json:"liked,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// likePayload is the body of a community like event.
type likePayload struct {
	PostID string `json:"postId"`
}

// CommunityFeed is the community page's view of one community's posts.
// New posts go to the head of the sequence, newest first.
type CommunityFeed struct {
	client      *realtime.Client
	communityID string
	author      string

	mu     sync.Mutex
	posts  []Post
	closed bool

	postSub *realtime.Subscription
	likeSub *realtime.Subscription
}

// NewCommunityFeed joins the community room and starts appending inbound
// posts and likes. Close must be called when the page unmounts.
func NewCommunityFeed(client *realtime.Client, communityID, author string, seed []Post) *CommunityFeed {
	f := &CommunityFeed{
		client:      client,
		communityID: communityID,
		author:      author,
		posts:       append([]Post(nil), seed...),
	}
	client.Join(realtime.KindCommunity, communityID)
	f.postSub = client.Subscribe(realtime.CommunityPost(communityID), f.onPost)
	f.likeSub = client.Subscribe(realtime.CommunityLike(communityID), f.onLike)
	return f
}

func (f *CommunityFeed) onPost(data json.RawMessage) {
	var post Post
	if err := json.Unmarshal(data, &post); err != nil {
		return
	}
	f.mu.Lock()
	if !f.closed {
		f.posts = append([]Post{post}, f.posts...)
	}
	f.mu.Unlock()
}

func (f *CommunityFeed) onLike(data json.RawMessage) {
	var like likePayload
	if err := json.Unmarshal(data, &like); err != nil {
		return
	}
	f.mu.Lock()
	for i := range f.posts {
		if f.posts[i].ID == like.PostID {
			f.posts[i].Likes++
			break
		}
	}
	f.mu.Unlock()
}

// Post prepends the post locally and emits it to the community. The local
// prepend happens even when the emit is dropped.
func (f *CommunityFeed) Post(content string) bool {
	content = wire.TruncateGraphemes(content, MaxTextGraphemes)
	post := Post{
		ID:        uuid.New().String(),
		Author:    f.author,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	f.mu.Lock()
	f.posts = append([]Post{post}, f.posts...)
	f.mu.Unlock()
	return f.client.Emit(realtime.CommunityPost(f.communityID), post)
}

// Like toggles the local like state of a post and emits the like event.
func (f *CommunityFeed) Like(postID string) bool {
	f.mu.Lock()
	for i := range f.posts {
		if f.posts[i].ID == postID {
			if f.posts[i].Liked {
				f.posts[i].Likes--
			} else {
				f.posts[i].Likes++
			}
			f.posts[i].Liked = !f.posts[i].Liked
			break
		}
	}
	f.mu.Unlock()
	return f.client.Emit(realtime.CommunityLike(f.communityID), likePayload{PostID: postID})
}

// Posts returns a copy of the current sequence, newest first.
func (f *CommunityFeed) Posts() []Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Post(nil), f.posts...)
}

// Close leaves the community room and deactivates both handlers. Idempotent.
func (f *CommunityFeed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	f.client.Unsubscribe(f.postSub)
	f.client.Unsubscribe(f.likeSub)
	f.client.Leave(realtime.KindCommunity, f.communityID)
}
