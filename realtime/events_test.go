package realtime

import "testing"

func TestEventNameConstructors(t *testing.T) {
	tests := []struct {
		got  EventName
		want string
	}{
		{CommunityPost("42"), "community:42:post"},
		{CommunityLike("42"), "community:42:like"},
		{RoomMessage("r1"), "room:r1:message"},
		{UserNotify("u1"), "notify:u1"},
	}
	for _, tt := range tests {
		if string(tt.got) != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestEventNameRoom(t *testing.T) {
	tests := []struct {
		event EventName
		want  string
	}{
		{CommunityPost("42"), "community_42"},
		{CommunityLike("42"), "community_42"},
		{RoomMessage("r1"), "studyroom_r1"},
		{UserNotify("u1"), "user_u1"},
		{EventName("garbage"), ""},
	}
	for _, tt := range tests {
		if got := tt.event.Room(); got != tt.want {
			t.Errorf("%q.Room() = %q, want %q", tt.event, got, tt.want)
		}
	}
}
