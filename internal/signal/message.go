// Package signal implements the client side of the coordinator link: a
// persistent WebSocket carrying tagged JSON envelopes for WebRTC signaling,
// presence, and room traffic.
package signal

import (
	"encoding/json"
	"fmt"

	"github.com/nullexa/nullexa/internal/chat"
)

// Kind identifies the envelope variant. Every envelope carries exactly one.
type Kind string

// Outbound kinds (client → coordinator).
const (
	KindOffer          Kind = "offer"
	KindAnswer         Kind = "answer"
	KindCandidate      Kind = "candidate"
	KindCreateRoom     Kind = "create_room"
	KindJoinRoom       Kind = "join_room"
	KindLeaveRoom      Kind = "leave_room"
	KindRoomMessage    Kind = "room_message"
	KindRoomFile       Kind = "room_file_message"
	KindFileMessage    Kind = "file_message"
	KindUpdateUsername Kind = "update_username"
	KindGetUsers       Kind = "get_users"
)

// Inbound kinds (coordinator → client). Offer, answer, candidate, room and
// file messages appear in both directions.
const (
	KindConnected       Kind = "connected"
	KindUserList        Kind = "user_list"
	KindUserConnected   Kind = "user_connected"
	KindUserDisconnect  Kind = "user_disconnected"
	KindUsernameUpdated Kind = "username_updated"
	KindRoomCreated     Kind = "room_created"
	KindRoomAvailable   Kind = "room_available"
	KindRoomJoined      Kind = "room_joined"
	KindRoomLeft        Kind = "room_left"
	KindUserJoinedRoom  Kind = "user_joined_room"
	KindUserLeftRoom    Kind = "user_left_room"
	KindRoomJoinError   Kind = "room_join_error"
)

// User is one entry of a user_list envelope.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Envelope is the single wire structure exchanged with the coordinator.
// Fields are populated per Kind; everything else stays empty. The kind is
// validated at the boundary before dispatch.
type Envelope struct {
	Kind Kind `json:"type"`

	// Peer signaling. Target addresses outbound envelopes; the coordinator
	// rewrites it to From on delivery. Candidate holds a JSON-encoded
	// ICECandidateInit, opaque to the coordinator.
	Target    string          `json:"target,omitempty"`
	From      string          `json:"from,omitempty"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`

	// Presence and identity.
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Users    []User `json:"users,omitempty"`

	// Rooms.
	RoomID       string   `json:"roomId,omitempty"`
	Name         string   `json:"name,omitempty"`
	Password     string   `json:"password,omitempty"`
	Participants []string `json:"participants,omitempty"`
	Protected    bool     `json:"is_protected,omitempty"`
	Admin        bool     `json:"isAdmin,omitempty"`
	Creator      string   `json:"creator,omitempty"`
	JoinLink     string   `json:"joinLink,omitempty"`

	// Chat payloads (room relay and coordinator file fallback). Message
	// doubles as the reason text of a room_join_error.
	Message   string         `json:"message,omitempty"`
	FileInfo  *chat.FileInfo `json:"fileInfo,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

var knownKinds = map[Kind]struct{}{
	KindOffer: {}, KindAnswer: {}, KindCandidate: {},
	KindCreateRoom: {}, KindJoinRoom: {}, KindLeaveRoom: {},
	KindRoomMessage: {}, KindRoomFile: {}, KindFileMessage: {},
	KindUpdateUsername: {}, KindGetUsers: {},
	KindConnected: {}, KindUserList: {}, KindUserConnected: {},
	KindUserDisconnect: {}, KindUsernameUpdated: {},
	KindRoomCreated: {}, KindRoomAvailable: {}, KindRoomJoined: {},
	KindRoomLeft: {}, KindUserJoinedRoom: {}, KindUserLeftRoom: {},
	KindRoomJoinError: {},
}

// validate rejects envelopes whose kind is unknown. Unknown kinds are dropped
// at the boundary so a newer coordinator cannot confuse the dispatcher.
func (e *Envelope) validate() error {
	if _, ok := knownKinds[e.Kind]; !ok {
		return fmt.Errorf("unknown envelope kind %q", e.Kind)
	}
	return nil
}
