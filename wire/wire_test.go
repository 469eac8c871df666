package wire

import (
	"encoding/json"
	"testing"
)

func TestRoomName(t *testing.T) {
	tests := []struct {
		kind, id, want string
	}{
		{"community", "42", "community_42"},
		{"studyroom", "r1", "studyroom_r1"},
	}
	for _, tt := range tests {
		if got := RoomName(tt.kind, tt.id); got != tt.want {
			t.Errorf("RoomName(%q, %q) = %q, want %q", tt.kind, tt.id, got, tt.want)
		}
	}
}

func TestClientMessageomitsUnsetFields(t *testing.T) {
	msg := ClientMessage{
		ID:   "1",
		Join: &MsgClientJoin{Room: "studyroom_r1", UserID: "u1"},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if len(m) != 2 {
		t.Errorf("expected only id and join fields, got %v", m)
	}
	if _, ok := m["join"]; !ok {
		t.Error("join field missing")
	}
}

func TestCtrlError(t *testing.T) {
	msg := CtrlError("req-1", CodeBadRequest, "malformed message")
	if msg.Ctrl == nil {
		t.Fatal("expected ctrl message")
	}
	if msg.Ctrl.Code != CodeBadRequest {
		t.Errorf("expected code %d, got %d", CodeBadRequest, msg.Ctrl.Code)
	}
	if msg.Ctrl.ID != "req-1" {
		t.Errorf("expected id req-1, got %q", msg.Ctrl.ID)
	}
}

func TestGraphemeCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"hello", 5},
		{"héllo", 5},
		{"👍🏽ok", 3}, // emoji + skin tone modifier is one cluster
	}
	for _, tt := range tests {
		if got := GraphemeCount(tt.in); got != tt.want {
			t.Errorf("GraphemeCount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTruncateGraphemes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 3, "hel"},
		{"hello", 10, "hello"},
		{"hello", 0, ""},
		{"👍🏽ok", 1, "👍🏽"},
	}
	for _, tt := range tests {
		if got := TruncateGraphemes(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateGraphemes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
