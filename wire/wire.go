// Package wire defines the JSON message envelope shared by the StudyCircle
// realtime server and client SDK.
package wire

import (
	"encoding/json"
	"time"
)

// ClientMessage is a message from client to server.
type ClientMessage struct {
	ID string `json:"id,omitempty"`

	// Only one of these should be set
	Hi    *MsgClientHi    `json:"hi,omitempty"`
	Login *MsgClientLogin `json:"login,omitempty"`
	Join  *MsgClientJoin  `json:"join,omitempty"`
	Leave *MsgClientLeave `json:"leave,omitempty"`
	Pub   *MsgClientPub   `json:"pub,omitempty"`
}

// ServerMessage is a message from server to client.
type ServerMessage struct {
	// Control message (response to client request)
	Ctrl *MsgServerCtrl `json:"ctrl,omitempty"`
	// Event message (fan-out from another session in the room)
	Event *MsgServerEvent `json:"event,omitempty"`
	// Presence message (room occupancy change)
	Pres *MsgServerPres `json:"pres,omitempty"`
}

// MsgClientHi is the handshake message.
type MsgClientHi struct {
	Version   string `json:"ver"`
	UserAgent string `json:"ua,omitempty"`
	Lang      string `json:"lang,omitempty"`
}

// MsgClientLogin is the authentication message.
type MsgClientLogin struct {
	Scheme string `json:"scheme"` // "basic" or "token"
	Secret string `json:"secret"` // base64 for basic, raw JWT for token
}

// MsgClientJoin declares room membership for this session.
type MsgClientJoin struct {
	Room   string `json:"room"`
	UserID string `json:"userId,omitempty"`
}

// MsgClientLeave drops room membership for this session.
type MsgClientLeave struct {
	Room   string `json:"room"`
	UserID string `json:"userId,omitempty"`
}

// MsgClientPub publishes a named event into a room. The payload is opaque to
// the realtime layer; only field names matter for compatibility.
type MsgClientPub struct {
	Event string          `json:"event"`
	Room  string          `json:"room"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MsgServerCtrl is a control/response message.
type MsgServerCtrl struct {
	ID     string         `json:"id,omitempty"`
	Code   int            `json:"code"`
	Text   string         `json:"text,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	Ts     time.Time      `json:"ts"`
}

// MsgServerEvent is a fanned-out room event.
type MsgServerEvent struct {
	Event string          `json:"event"`
	Room  string          `json:"room"`
	From  string          `json:"from,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ts    time.Time       `json:"ts"`
}

// MsgServerPres is a room occupancy notification.
type MsgServerPres struct {
	Room     string     `json:"room"`
	UserID   string     `json:"user"`
	What     string     `json:"what"` // "join", "leave"
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// RoomName builds the canonical room identifier from a kind tag and an
// entity id, e.g. ("studyroom", "r1") -> "studyroom_r1".
func RoomName(kind, id string) string {
	return kind + "_" + id
}

// CtrlSuccess creates a success response.
func CtrlSuccess(id string, code int, params map[string]any) *ServerMessage {
	return &ServerMessage{
		Ctrl: &MsgServerCtrl{
			ID:     id,
			Code:   code,
			Text:   "ok",
			Params: params,
			Ts:     time.Now().UTC(),
		},
	}
}

// CtrlError creates an error response.
func CtrlError(id string, code int, text string) *ServerMessage {
	return &ServerMessage{
		Ctrl: &MsgServerCtrl{
			ID:   id,
			Code: code,
			Text: text,
			Ts:   time.Now().UTC(),
		},
	}
}

// Common error codes
const (
	CodeOK              = 200
	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeForbidden       = 403
	CodeNotFound        = 404
	CodeTooManyRequests = 429
	CodeInternalError   = 500
)
