package client

import (
	"github.com/nullexa/nullexa/internal/chat"
	"github.com/nullexa/nullexa/internal/peer"
	"github.com/nullexa/nullexa/internal/room"
	"github.com/nullexa/nullexa/internal/signal"
)

// Events are the notifications the core feeds to its consumer (the UI
// layer). Any nil handler is skipped. Handlers run on the transport's
// dispatch goroutine and must not block.
type Events struct {
	// OnReady fires once the coordinator assigned the local identity.
	OnReady func(userID, username string)

	// OnDirectMessage delivers a chat envelope from a peer, regardless of
	// whether it travelled the data channel or the coordinator fallback.
	OnDirectMessage func(peerID string, env *chat.Envelope)
	// OnRoomMessage delivers a room broadcast (never the local user's own).
	OnRoomMessage func(roomID string, env *chat.Envelope)

	// OnPeerStatus reports connectivity status changes for a peer session.
	OnPeerStatus func(peerID string, status peer.Status)

	// Presence.
	OnUserList         func(users []signal.User)
	OnUserConnected    func(userID, username string)
	OnUserDisconnected func(userID string)
	OnUsernameUpdated  func(userID, username string)

	// Rooms.
	OnRoomCreated    func(r room.Room)
	OnRoomAvailable  func(r room.Room)
	OnRoomJoined     func(r room.Room)
	OnRoomLeft       func(roomID string)
	OnUserJoinedRoom func(roomID, userID, username string)
	OnUserLeftRoom   func(roomID, userID string)
	// OnRoomJoinError surfaces the coordinator's rejection reason verbatim.
	OnRoomJoinError func(roomID, reason string)

	// OnTransportLost fires once when the coordinator link drops, after all
	// peer sessions have been torn down and the relay marked offline.
	OnTransportLost func(err error)
}
