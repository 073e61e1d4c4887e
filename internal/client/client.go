// Package client binds the signaling transport, peer-session registry, room
// relay, and upload boundary into one process-wide session context. It owns
// the routing policy: direct messages ride the peer data channel and fail
// fast when none is open; room messages always ride the coordinator.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/nullexa/nullexa/internal/chat"
	"github.com/nullexa/nullexa/internal/peer"
	"github.com/nullexa/nullexa/internal/room"
	"github.com/nullexa/nullexa/internal/signal"
	"github.com/nullexa/nullexa/internal/upload"
)

// ErrNotConnected reports an operation that needs the coordinator link before
// Run has established it.
var ErrNotConnected = errors.New("not connected to coordinator")

// Config carries Client construction parameters.
type Config struct {
	// ServerURL is the coordinator WebSocket endpoint.
	ServerURL string
	// UploadURL is the coordinator HTTP base for file uploads.
	UploadURL string
	// Username is requested once the coordinator assigns an identity; empty
	// keeps the coordinator-generated name.
	Username string
	Logger   *zerolog.Logger
}

// Client is the connection-orchestration core.
type Client struct {
	cfg    Config
	logger zerolog.Logger
	events Events

	sessions *peer.Registry
	rooms    *room.Registry
	uploader *upload.Client

	mu       sync.RWMutex
	tr       *signal.Transport // nil until Run connects
	relay    *room.Relay       // nil until Run connects
	runCtx   context.Context   // nil until Run connects
	userID   string
	username string
	roster   map[string]string // peer id → username, local user excluded
}

// New assembles a Client. Nothing connects until Run.
func New(cfg Config, events Events) *Client {
	logger := cfg.Logger.With().Str("component", "client").Logger()

	c := &Client{
		cfg:    cfg,
		logger: logger,
		events: events,
		roster: make(map[string]string),
	}
	c.rooms = room.NewRegistry(cfg.Logger)
	c.sessions = peer.NewRegistry(cfg.Logger, c.newSession)
	c.uploader = upload.New(cfg.UploadURL, cfg.Logger)
	return c
}

// Run connects to the coordinator and drives dispatch until the link drops
// or ctx is cancelled. All live peer sessions are children of ctx.
func (c *Client) Run(ctx context.Context) error {
	tr, err := signal.Dial(ctx, signal.Config{URL: c.cfg.ServerURL, Logger: c.cfg.Logger})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.runCtx = ctx
	c.tr = tr
	c.relay = room.NewRelay(c.cfg.Logger, tr, c.rooms, c.UserID)
	c.mu.Unlock()

	tr.OnReceive(c.dispatch)
	tr.OnLoss(c.onLoss)

	return tr.Run(ctx)
}

// Close tears down the coordinator link, which cascades into full teardown
// through the loss path.
func (c *Client) Close() error {
	c.mu.RLock()
	tr := c.tr
	c.mu.RUnlock()
	if tr == nil {
		return nil
	}
	return tr.Close()
}

// send pushes one envelope onto the coordinator link. Commands issued before
// Run has connected fail with ErrNotConnected instead of dereferencing a
// transport that does not exist yet.
func (c *Client) send(env *signal.Envelope) error {
	c.mu.RLock()
	tr := c.tr
	c.mu.RUnlock()
	if tr == nil {
		return ErrNotConnected
	}
	return tr.Send(env)
}

// ---------------------------------------------------------------------------
// Identity and presence
// ---------------------------------------------------------------------------

// UserID returns the coordinator-assigned local user id (empty until ready).
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Username returns the current local display name.
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// Roster returns a copy of the known peers (id → username).
func (c *Client) Roster() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.roster))
	for id, name := range c.roster {
		out[id] = name
	}
	return out
}

// SetUsername requests a rename and applies it optimistically.
func (c *Client) SetUsername(name string) error {
	if err := c.send(&signal.Envelope{Kind: signal.KindUpdateUsername, Username: name}); err != nil {
		return err
	}
	c.mu.Lock()
	c.username = name
	c.mu.Unlock()
	return nil
}

// RefreshUsers asks the coordinator for a fresh user list.
func (c *Client) RefreshUsers() error {
	return c.send(&signal.Envelope{Kind: signal.KindGetUsers})
}

// ---------------------------------------------------------------------------
// Direct messaging
// ---------------------------------------------------------------------------

// StartChat ensures a peer session exists for peerID and starts negotiation
// if it is fresh. Safe to call repeatedly.
func (c *Client) StartChat(peerID string) error {
	s, err := c.sessions.GetOrCreate(peerID)
	if err != nil {
		return err
	}
	if s.State() != peer.StateIdle {
		return nil
	}
	return s.Initiate()
}

// PeerStatus reports the connectivity status toward peerID.
func (c *Client) PeerStatus(peerID string) peer.Status {
	if s, ok := c.sessions.Get(peerID); ok {
		return s.Status()
	}
	return peer.StatusNotConnected
}

// CloseChat tears down the peer session for peerID. Idempotent.
func (c *Client) CloseChat(peerID string) {
	c.sessions.Remove(peerID)
}

// SendDirect sends a text message over the peer's data channel. Fails with
// peer.ErrChannelUnavailable when no channel is open; the caller decides
// whether to alert or fall back.
func (c *Client) SendDirect(ctx context.Context, peerID, text string) (*chat.Envelope, error) {
	env := chat.NewText(c.UserID(), c.Username(), text)
	if err := c.sendEnvelope(ctx, peerID, env); err != nil {
		return nil, err
	}
	return env, nil
}

// SendDirectFile sends a file reference over the peer's data channel.
func (c *Client) SendDirectFile(ctx context.Context, peerID string, file chat.FileInfo) (*chat.Envelope, error) {
	env := chat.NewFile(c.UserID(), c.Username(), file)
	if err := c.sendEnvelope(ctx, peerID, env); err != nil {
		return nil, err
	}
	return env, nil
}

// SendDirectFileFallback sends a file reference through the coordinator,
// for use after SendDirectFile failed with peer.ErrChannelUnavailable.
func (c *Client) SendDirectFileFallback(peerID string, file chat.FileInfo) (*chat.Envelope, error) {
	env := chat.NewFile(c.UserID(), c.Username(), file)
	err := c.send(&signal.Envelope{
		Kind:      signal.KindFileMessage,
		Target:    peerID,
		FileInfo:  env.File,
		Timestamp: env.Timestamp,
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

func (c *Client) sendEnvelope(ctx context.Context, peerID string, env *chat.Envelope) error {
	s, ok := c.sessions.Get(peerID)
	if !ok {
		return peer.ErrChannelUnavailable
	}
	return s.Send(ctx, env)
}

// ---------------------------------------------------------------------------
// Rooms
// ---------------------------------------------------------------------------

// CreateRoom asks the coordinator to create (and join) a room. Password may
// be empty for an unprotected room.
func (c *Client) CreateRoom(name, password string) error {
	return c.send(&signal.Envelope{Kind: signal.KindCreateRoom, Name: name, Password: password})
}

// JoinRoom asks the coordinator to join a room. Rejections come back through
// Events.OnRoomJoinError.
func (c *Client) JoinRoom(roomID, password string) error {
	return c.send(&signal.Envelope{Kind: signal.KindJoinRoom, RoomID: roomID, Password: password})
}

// LeaveRoom asks the coordinator to leave a room.
func (c *Client) LeaveRoom(roomID string) error {
	return c.send(&signal.Envelope{Kind: signal.KindLeaveRoom, RoomID: roomID})
}

// Rooms lists all known rooms (joined and available).
func (c *Client) Rooms() []room.Room {
	return c.rooms.List()
}

// SendRoomText relays a text message into a room and returns the envelope to
// apply optimistically; the coordinator will not echo it back.
func (c *Client) SendRoomText(roomID, text string) (*chat.Envelope, error) {
	relay, err := c.getRelay()
	if err != nil {
		return nil, err
	}
	return relay.SendText(roomID, c.Username(), text)
}

// SendRoomFile relays a file reference into a room, same contract as
// SendRoomText.
func (c *Client) SendRoomFile(roomID string, file chat.FileInfo) (*chat.Envelope, error) {
	relay, err := c.getRelay()
	if err != nil {
		return nil, err
	}
	return relay.SendFile(roomID, c.Username(), file)
}

func (c *Client) getRelay() (*room.Relay, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.relay == nil {
		return nil, ErrNotConnected
	}
	return c.relay, nil
}

// Upload pushes a file through the upload boundary and returns its
// reference. The 1 GiB cap is enforced before any byte is sent.
func (c *Client) Upload(ctx context.Context, path string) (*chat.FileInfo, error) {
	return c.uploader.Upload(ctx, path)
}

// ---------------------------------------------------------------------------
// Inbound dispatch
// ---------------------------------------------------------------------------

func (c *Client) dispatch(env *signal.Envelope) {
	switch env.Kind {
	case signal.KindConnected:
		c.handleWelcome(env)

	case signal.KindUserList:
		c.handleUserList(env)

	case signal.KindUserConnected:
		c.mu.Lock()
		c.roster[env.UserID] = env.Username
		c.mu.Unlock()
		if c.events.OnUserConnected != nil {
			c.events.OnUserConnected(env.UserID, env.Username)
		}

	case signal.KindUserDisconnect:
		c.mu.Lock()
		delete(c.roster, env.UserID)
		c.mu.Unlock()
		// A vanished peer takes its session with it.
		c.sessions.Remove(env.UserID)
		if c.events.OnUserDisconnected != nil {
			c.events.OnUserDisconnected(env.UserID)
		}

	case signal.KindUsernameUpdated:
		c.mu.Lock()
		if _, ok := c.roster[env.UserID]; ok {
			c.roster[env.UserID] = env.Username
		}
		c.mu.Unlock()
		if c.events.OnUsernameUpdated != nil {
			c.events.OnUsernameUpdated(env.UserID, env.Username)
		}

	case signal.KindOffer:
		s, err := c.sessions.GetOrCreate(env.From)
		if err != nil {
			c.logger.Error().Err(err).Str("peer", env.From).Msg("cannot create session for offer")
			return
		}
		s.HandleOffer(env.SDP)

	case signal.KindAnswer:
		if s, ok := c.sessions.Get(env.From); ok {
			s.HandleAnswer(env.SDP)
		} else {
			c.logger.Warn().Str("peer", env.From).Msg("answer for unknown session")
		}

	case signal.KindCandidate:
		// Candidates may arrive before the offer (the transport does not
		// order across kinds); a fresh Idle session queues them.
		s, err := c.sessions.GetOrCreate(env.From)
		if err != nil {
			c.logger.Error().Err(err).Str("peer", env.From).Msg("cannot create session for candidate")
			return
		}
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal(env.Candidate, &init); err != nil {
			c.logger.Warn().Err(err).Str("peer", env.From).Msg("malformed candidate")
			return
		}
		s.HandleCandidate(init)

	case signal.KindRoomCreated:
		r := c.rooms.ApplyCreated(env.RoomID, env.Name, env.Participants, env.Protected, env.Admin, env.Creator)
		if c.events.OnRoomCreated != nil {
			c.events.OnRoomCreated(*r)
		}

	case signal.KindRoomAvailable:
		r := c.rooms.ApplyAvailable(env.RoomID, env.Name, env.Creator, env.Protected, env.JoinLink)
		if c.events.OnRoomAvailable != nil {
			c.events.OnRoomAvailable(*r)
		}

	case signal.KindRoomJoined:
		r := c.rooms.ApplyJoined(env.RoomID, env.Name, env.Participants, env.Protected, env.Admin, env.Creator, env.JoinLink)
		if c.events.OnRoomJoined != nil {
			c.events.OnRoomJoined(*r)
		}

	case signal.KindRoomLeft:
		c.rooms.ApplyLeft(env.RoomID)
		if c.events.OnRoomLeft != nil {
			c.events.OnRoomLeft(env.RoomID)
		}

	case signal.KindUserJoinedRoom:
		c.rooms.ApplyUserJoined(env.RoomID, env.UserID)
		if c.events.OnUserJoinedRoom != nil {
			c.events.OnUserJoinedRoom(env.RoomID, env.UserID, env.Username)
		}

	case signal.KindUserLeftRoom:
		c.rooms.ApplyUserLeft(env.RoomID, env.UserID)
		if c.events.OnUserLeftRoom != nil {
			c.events.OnUserLeftRoom(env.RoomID, env.UserID)
		}

	case signal.KindRoomJoinError:
		c.logger.Warn().Str("room", env.RoomID).Str("reason", env.Message).Msg("room join rejected")
		if c.events.OnRoomJoinError != nil {
			c.events.OnRoomJoinError(env.RoomID, env.Message)
		}

	case signal.KindRoomMessage, signal.KindRoomFile:
		relay, err := c.getRelay()
		if err != nil {
			return
		}
		if msg, ok := relay.Inbound(env); ok && c.events.OnRoomMessage != nil {
			c.events.OnRoomMessage(env.RoomID, msg)
		}

	case signal.KindFileMessage:
		// Coordinator fallback path for direct files.
		if env.FileInfo == nil {
			c.logger.Warn().Str("peer", env.From).Msg("file message without fileInfo")
			return
		}
		if c.events.OnDirectMessage != nil {
			c.events.OnDirectMessage(env.From, &chat.Envelope{
				Kind:      chat.KindFile,
				From:      env.From,
				Username:  env.Username,
				File:      env.FileInfo,
				Timestamp: env.Timestamp,
			})
		}

	default:
		c.logger.Debug().Str("kind", string(env.Kind)).Msg("unhandled envelope")
	}
}

func (c *Client) handleWelcome(env *signal.Envelope) {
	c.mu.Lock()
	c.userID = env.UserID
	c.username = env.Username
	c.mu.Unlock()

	c.logger.Info().Str("user", env.UserID).Str("username", env.Username).Msg("identity assigned")

	if c.cfg.Username != "" && c.cfg.Username != env.Username {
		if err := c.SetUsername(c.cfg.Username); err != nil {
			c.logger.Warn().Err(err).Msg("failed to set username")
		}
	}
	if c.events.OnReady != nil {
		c.events.OnReady(env.UserID, c.Username())
	}
}

func (c *Client) handleUserList(env *signal.Envelope) {
	localID := c.UserID()

	c.mu.Lock()
	c.roster = make(map[string]string, len(env.Users))
	for _, u := range env.Users {
		if u.ID != localID {
			c.roster[u.ID] = u.Username
		}
	}
	c.mu.Unlock()

	if c.events.OnUserList != nil {
		c.events.OnUserList(env.Users)
	}
}

// onLoss is the single teardown path for a lost coordinator link: every peer
// session closes, the relay flips offline, and the rooms are forgotten.
func (c *Client) onLoss(err error) {
	c.logger.Warn().Err(err).Msg("coordinator link lost, tearing down sessions")
	c.sessions.CloseAll()
	if relay, rerr := c.getRelay(); rerr == nil {
		relay.SetOnline(false)
	}
	c.rooms.Clear()
	if c.events.OnTransportLost != nil {
		c.events.OnTransportLost(err)
	}
}

// ---------------------------------------------------------------------------
// peer.Signaler
// ---------------------------------------------------------------------------

// SendOffer implements peer.Signaler.
func (c *Client) SendOffer(target, sdp string) error {
	return c.send(&signal.Envelope{Kind: signal.KindOffer, Target: target, SDP: sdp})
}

// SendAnswer implements peer.Signaler.
func (c *Client) SendAnswer(target, sdp string) error {
	return c.send(&signal.Envelope{Kind: signal.KindAnswer, Target: target, SDP: sdp})
}

// SendCandidate implements peer.Signaler.
func (c *Client) SendCandidate(target string, candidate webrtc.ICECandidateInit) error {
	data, err := json.Marshal(candidate)
	if err != nil {
		return err
	}
	return c.send(&signal.Envelope{Kind: signal.KindCandidate, Target: target, Candidate: data})
}

// newSession is the registry factory: sessions inherit the run context, the
// local identity, and the event sinks.
func (c *Client) newSession(peerID string) (*peer.Session, error) {
	c.mu.RLock()
	runCtx := c.runCtx
	c.mu.RUnlock()
	if runCtx == nil {
		return nil, ErrNotConnected
	}
	return peer.NewSession(runCtx, peer.SessionConfig{
		LocalID:  c.UserID(),
		PeerID:   peerID,
		Signaler: c,
		Logger:   c.cfg.Logger,
		OnStatus: c.events.OnPeerStatus,
		OnEnvelope: func(peerID string, env *chat.Envelope) {
			if c.events.OnDirectMessage != nil {
				c.events.OnDirectMessage(peerID, env)
			}
		},
	})
}
