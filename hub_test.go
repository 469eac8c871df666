package main

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/studycircle/studycircle/redis"
	"github.com/studycircle/studycircle/wire"
)

func testEvent(room string) *wire.ServerMessage {
	return &wire.ServerMessage{
		Event: &wire.MsgServerEvent{
			Event: "room:r1:message",
			Room:  room,
			Data:  json.RawMessage(`{"message":"hello"}`),
		},
	}
}

func TestHub_JoinLeaveRoom(t *testing.T) {
	hub := NewHub()
	room := "studyroom_r1"
	sess := newTestSession(uuid.New())

	if !hub.JoinRoom(sess, room) {
		t.Error("first join should report a new member")
	}
	if hub.JoinRoom(sess, room) {
		t.Error("second join should be a no-op")
	}
	if !hub.InRoom(sess, room) {
		t.Error("session should be in the room")
	}
	if hub.RoomCount(room) != 1 {
		t.Errorf("expected 1 member, got %d", hub.RoomCount(room))
	}

	if !hub.LeaveRoom(sess, room) {
		t.Error("leave should report the member was removed")
	}
	if hub.LeaveRoom(sess, room) {
		t.Error("leaving twice should be a no-op")
	}
	if hub.RoomCount(room) != 0 {
		t.Errorf("expected empty room, got %d members", hub.RoomCount(room))
	}
}

func TestHub_BroadcastSkipsSession(t *testing.T) {
	hub := NewHub()
	room := "studyroom_r1"

	sender := newTestSession(uuid.New())
	receiver := newTestSession(uuid.New())
	outsider := newTestSession(uuid.New())

	hub.JoinRoom(sender, room)
	hub.JoinRoom(receiver, room)

	hub.BroadcastToRoom(room, testEvent(room), sender.ID())

	if sender.MessageCount() != 0 {
		t.Error("skipped session should not receive the broadcast")
	}
	if receiver.MessageCount() != 1 {
		t.Errorf("expected 1 message for receiver, got %d", receiver.MessageCount())
	}
	if outsider.MessageCount() != 0 {
		t.Error("non-member should not receive the broadcast")
	}
}

func TestHub_RemoveSessionLeavesRooms(t *testing.T) {
	hub := NewHub()
	sess := newTestSession(uuid.New())

	hub.addSession(sess)
	hub.JoinRoom(sess, "studyroom_r1")
	hub.JoinRoom(sess, "community_c1")

	hub.removeSession(sess)

	if hub.RoomCount("studyroom_r1") != 0 || hub.RoomCount("community_c1") != 0 {
		t.Error("removed session should be dropped from every room")
	}
	if hub.SessionCount() != 0 {
		t.Errorf("expected 0 sessions, got %d", hub.SessionCount())
	}
	if hub.IsOnline(sess.UserID()) {
		t.Error("user should be offline after last session is removed")
	}
}

func TestHub_MultipleSessionsPerUser(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()

	laptop := newTestSession(userID)
	phone := newTestSession(userID)

	hub.addSession(laptop)
	hub.addSession(phone)

	if !hub.IsOnline(userID) {
		t.Fatal("user should be online")
	}

	hub.SendToUser(userID, testEvent("user_"+userID.String()))
	if laptop.MessageCount() != 1 || phone.MessageCount() != 1 {
		t.Error("both sessions should receive user-directed messages")
	}

	// One session dropping keeps the user online.
	hub.removeSession(phone)
	if !hub.IsOnline(userID) {
		t.Error("user should stay online while a session remains")
	}

	hub.removeSession(laptop)
	if hub.IsOnline(userID) {
		t.Error("user should be offline after all sessions are gone")
	}
}

func TestHub_AuthenticateSession(t *testing.T) {
	hub := NewHub()
	sess := newTestSession(uuid.Nil)
	hub.addSession(sess)

	userID := uuid.New()
	hub.AuthenticateSession(sess, userID)

	if sess.UserID() != userID {
		t.Error("session should carry the authenticated user ID")
	}
	if !hub.IsOnline(userID) {
		t.Error("user should be online after authentication")
	}
	if hub.OnlineCount() != 1 {
		t.Errorf("expected 1 online user, got %d", hub.OnlineCount())
	}
}

func TestHub_HandlePubSubMessage(t *testing.T) {
	hub := NewHub()
	room := "community_c9"

	memberA := newTestSession(uuid.New())
	memberB := newTestSession(uuid.New())
	hub.JoinRoom(memberA, room)
	hub.JoinRoom(memberB, room)

	// Simulate a room event arriving from another node.
	payload, _ := json.Marshal(PubSubPayload{
		Room:    room,
		Message: testEvent(room),
	})
	hub.HandlePubSubMessage(&redis.Message{
		Type:     "event",
		FromNode: "other-node",
		Payload:  payload,
	})

	if memberA.MessageCount() != 1 || memberB.MessageCount() != 1 {
		t.Error("all local members should receive events from other nodes")
	}
}

func TestHub_OnlineUsers(t *testing.T) {
	hub := NewHub()

	alice := uuid.New()
	bob := uuid.New()
	hub.addSession(newTestSession(alice))
	hub.addSession(newTestSession(bob))
	// Two sessions for the same user count once.
	hub.addSession(newTestSession(alice))

	users := hub.OnlineUsers()
	if len(users) != 2 {
		t.Fatalf("expected 2 online users, got %d", len(users))
	}
	seen := map[uuid.UUID]bool{}
	for _, id := range users {
		seen[id] = true
	}
	if !seen[alice] || !seen[bob] {
		t.Errorf("expected %s and %s, got %v", alice, bob, users)
	}
}

func TestHub_HandleNodeMessage(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()

	local := newTestSession(userID)
	other := newTestSession(uuid.New())
	hub.addSession(local)
	hub.addSession(other)

	// Simulate a user-directed relay arriving from another node.
	payload, _ := json.Marshal(UserPayload{
		UserID:  userID.String(),
		Message: testEvent("user_" + userID.String()),
	})
	hub.HandleNodeMessage(&redis.Message{
		Type:     "user",
		FromNode: "other-node",
		Payload:  payload,
	})

	if local.MessageCount() != 1 {
		t.Errorf("expected 1 message for the addressed user, got %d", local.MessageCount())
	}
	if other.MessageCount() != 0 {
		t.Error("other users should not receive the relay")
	}

	// Non-user node messages are ignored.
	hub.HandleNodeMessage(&redis.Message{Type: "event", Payload: payload})
	if local.MessageCount() != 1 {
		t.Error("non-user node messages should be ignored")
	}
}

func TestHub_SendToUserWithoutSessions(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()

	// No local sessions and no Redis: the message is dropped, not relayed.
	hub.SendToUser(userID, testEvent("user_"+userID.String()))

	sess := newTestSession(userID)
	hub.addSession(sess)
	hub.SendToUser(userID, testEvent("user_"+userID.String()))
	if sess.MessageCount() != 1 {
		t.Errorf("expected 1 message after the session connected, got %d", sess.MessageCount())
	}
}
