package realtime

import (
	"strings"

	"github.com/studycircle/studycircle/wire"
)

// Room kind tags. A room identifier on the wire is "<kind>_<entityID>".
const (
	KindCommunity = "community"
	KindStudyRoom = "studyroom"
	KindUser      = "user"
)

// EventName identifies a named room event. Use the constructors below rather
// than string literals so event-name typos fail at compile time.
type EventName string

// CommunityPost names the post-created event for a community feed.
func CommunityPost(communityID string) EventName {
	return EventName("community:" + communityID + ":post")
}

// CommunityLike names the like event for a community feed.
func CommunityLike(communityID string) EventName {
	return EventName("community:" + communityID + ":like")
}

// RoomMessage names the chat message event for a study room.
func RoomMessage(roomID string) EventName {
	return EventName("room:" + roomID + ":message")
}

// UserNotify names the personal notification event for a user.
func UserNotify(userID string) EventName {
	return EventName("notify:" + userID)
}

// Room returns the room identifier an event belongs to, or "" if the event
// name does not follow the <scope>:<id>[:<action>] convention.
func (e EventName) Room() string {
	parts := strings.SplitN(string(e), ":", 3)
	if len(parts) < 2 {
		return ""
	}
	switch parts[0] {
	case "community":
		return wire.RoomName(KindCommunity, parts[1])
	case "room":
		return wire.RoomName(KindStudyRoom, parts[1])
	case "notify":
		return wire.RoomName(KindUser, parts[1])
	}
	return ""
}
