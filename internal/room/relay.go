package room

import (
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/nullexa/nullexa/internal/chat"
	"github.com/nullexa/nullexa/internal/signal"
)

var (
	// ErrRelayOffline reports that the coordinator link is down; no room
	// traffic can move until it is re-established.
	ErrRelayOffline = errors.New("room relay offline")
	// ErrNotInRoom reports a send into a room the local user has not joined.
	ErrNotInRoom = errors.New("not a member of room")
)

// Sender is the outbound half of the signaling transport.
type Sender interface {
	Send(*signal.Envelope) error
}

// Relay is the coordinator-mediated fan-out for rooms. It is a stateless
// pass-through around the transport with one policy of its own: the
// coordinator echoes room broadcasts back to their sender, so the relay
// drops the local user's own broadcasts. The sender already applied its
// message optimistically at send time.
type Relay struct {
	logger  zerolog.Logger
	out     Sender
	rooms   *Registry
	localID func() string

	online atomic.Bool
}

// NewRelay builds a relay over the given transport and room registry.
// localID resolves the local user id lazily; the coordinator assigns it
// after connect.
func NewRelay(logger *zerolog.Logger, out Sender, rooms *Registry, localID func() string) *Relay {
	r := &Relay{
		logger:  logger.With().Str("component", "room-relay").Logger(),
		out:     out,
		rooms:   rooms,
		localID: localID,
	}
	r.online.Store(true)
	return r
}

// SetOnline flips relay availability; transport loss marks it offline.
func (r *Relay) SetOnline(online bool) {
	r.online.Store(online)
	if !online {
		r.logger.Warn().Msg("relay offline")
	}
}

// Online reports current relay availability.
func (r *Relay) Online() bool { return r.online.Load() }

// SendText relays a text envelope into a room. The returned envelope is the
// one the caller should apply optimistically; no echo will come back.
func (r *Relay) SendText(roomID, username, text string) (*chat.Envelope, error) {
	env := chat.NewText(r.localID(), username, text)
	if err := r.send(roomID, &signal.Envelope{
		Kind:      signal.KindRoomMessage,
		RoomID:    roomID,
		Message:   text,
		Timestamp: env.Timestamp,
	}); err != nil {
		return nil, err
	}
	return env, nil
}

// SendFile relays a file-reference envelope into a room, same contract as
// SendText.
func (r *Relay) SendFile(roomID, username string, file chat.FileInfo) (*chat.Envelope, error) {
	env := chat.NewFile(r.localID(), username, file)
	if err := r.send(roomID, &signal.Envelope{
		Kind:      signal.KindRoomFile,
		RoomID:    roomID,
		FileInfo:  env.File,
		Timestamp: env.Timestamp,
	}); err != nil {
		return nil, err
	}
	return env, nil
}

func (r *Relay) send(roomID string, env *signal.Envelope) error {
	if !r.online.Load() {
		return ErrRelayOffline
	}
	if !r.rooms.Joined(roomID) {
		return ErrNotInRoom
	}
	return r.out.Send(env)
}

// Inbound converts a coordinator room broadcast into a chat envelope.
// Broadcasts originating from the local user are suppressed (ok=false): the
// sender already rendered its copy, and a coordinator that echoes to the
// sender must not produce a duplicate.
func (r *Relay) Inbound(env *signal.Envelope) (*chat.Envelope, bool) {
	if env.From == r.localID() {
		return nil, false
	}

	switch env.Kind {
	case signal.KindRoomMessage:
		return &chat.Envelope{
			Kind:      chat.KindText,
			From:      env.From,
			Username:  env.Username,
			Text:      env.Message,
			Timestamp: env.Timestamp,
		}, true
	case signal.KindRoomFile:
		if env.FileInfo == nil {
			r.logger.Warn().Str("room", env.RoomID).Msg("room file broadcast without fileInfo")
			return nil, false
		}
		return &chat.Envelope{
			Kind:      chat.KindFile,
			From:      env.From,
			Username:  env.Username,
			File:      env.FileInfo,
			Timestamp: env.Timestamp,
		}, true
	default:
		return nil, false
	}
}
