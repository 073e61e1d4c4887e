package peer

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/nullexa/nullexa/internal/chat"
)

// inboxSize is the per-session event channel capacity.
const inboxSize = 64

// Signaler sends outbound negotiation envelopes to a remote peer through the
// coordinator. The client session context implements it; tests substitute a
// linked in-process pair.
type Signaler interface {
	SendOffer(target, sdp string) error
	SendAnswer(target, sdp string) error
	SendCandidate(target string, candidate webrtc.ICECandidateInit) error
}

type eventKind int

const (
	evInitiate eventKind = iota
	evRemoteOffer
	evRemoteAnswer
	evRemoteCandidate
	evICEState
	evChannelOpen
	evChannelClosed
	evClose
)

type event struct {
	kind      eventKind
	sdp       string
	candidate webrtc.ICECandidateInit
	ice       webrtc.ICEConnectionState
	reply     chan error
}

// SessionConfig carries Session construction parameters.
type SessionConfig struct {
	LocalID  string
	PeerID   string
	Signaler Signaler
	Logger   *zerolog.Logger

	// OnStatus receives deduplicated connectivity status changes.
	OnStatus func(peerID string, status Status)
	// OnEnvelope receives inbound chat envelopes from the data channel.
	OnEnvelope func(peerID string, env *chat.Envelope)
}

// Session is the per-peer actor. All negotiation and channel callbacks for
// the peer are folded into a single event inbox and applied in arrival order
// by one goroutine, so no two callbacks ever mutate the session concurrently
// and unrelated peers never block each other.
type Session struct {
	peerID    string
	createdAt time.Time
	logger    zerolog.Logger

	pc     *webrtc.PeerConnection
	router *Router
	out    Signaler

	inbox  chan event
	ctx    context.Context
	cancel context.CancelFunc

	onStatus func(string, Status)

	// snapshot mirrors machine state for cross-goroutine reads.
	snapshot atomicState
}

// NewSession creates the pion PeerConnection, wires its callbacks into the
// event inbox, and starts the actor goroutine.
func NewSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	pc, err := newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	sCtx, sCancel := context.WithCancel(ctx)
	logger := cfg.Logger.With().Str("component", "peer-session").Str("peer", cfg.PeerID).Logger()

	s := &Session{
		peerID:    cfg.PeerID,
		createdAt: time.Now(),
		logger:    logger,
		pc:        pc,
		router:    NewRouter(logger),
		out:       cfg.Signaler,
		inbox:     make(chan event, inboxSize),
		ctx:       sCtx,
		cancel:    sCancel,
		onStatus:  cfg.OnStatus,
	}
	s.snapshot.store(StateIdle, webrtc.ICEConnectionStateNew, false)

	if cfg.OnEnvelope != nil {
		onEnvelope := cfg.OnEnvelope
		s.router.OnEnvelope(func(env *chat.Envelope) {
			onEnvelope(cfg.PeerID, env)
		})
	}

	s.wire(pc)

	go s.run(NewMachine(cfg.LocalID, cfg.PeerID))

	return s, nil
}

// wire hooks a PeerConnection's callbacks into the session.
func (s *Session) wire(pc *webrtc.PeerConnection) {
	// Trickle local candidates straight out; they carry no state transition.
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := s.out.SendCandidate(s.peerID, c.ToJSON()); err != nil {
			s.logger.Warn().Err(err).Msg("failed to send local candidate")
		}
	})

	pc.OnICEConnectionStateChange(func(ice webrtc.ICEConnectionState) {
		s.post(event{kind: evICEState, ice: ice})
	})

	// Remote-initiated channel (we answered their offer).
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		s.adoptChannel(dc)
	})
}

// resetPeerConnection discards the current PeerConnection and builds a fresh
// one in its place. The old connection's callbacks are detached first so its
// teardown cannot post events against the new one.
func (s *Session) resetPeerConnection() error {
	old := s.pc
	old.OnICECandidate(func(*webrtc.ICECandidate) {})
	old.OnICEConnectionStateChange(func(webrtc.ICEConnectionState) {})
	old.OnDataChannel(func(*webrtc.DataChannel) {})
	if err := old.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("discarded peer connection close")
	}

	pc, err := newPeerConnection()
	if err != nil {
		return fmt.Errorf("failed to recreate peer connection: %w", err)
	}
	s.pc = pc
	s.wire(pc)
	return nil
}

func (s *Session) PeerID() string       { return s.peerID }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Done is closed once the session has fully terminated.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// State returns the last published negotiation state.
func (s *Session) State() State {
	st, _, _ := s.snapshot.load()
	return st
}

// Status derives the user-visible connectivity status from the last
// published snapshot.
func (s *Session) Status() Status {
	st, ice, open := s.snapshot.load()
	return DeriveStatus(st, ice, open)
}

// Initiate starts negotiation toward the peer. Valid only from StateIdle.
func (s *Session) Initiate() error {
	reply := make(chan error, 1)
	if !s.post(event{kind: evInitiate, reply: reply}) {
		return fmt.Errorf("%w: session closed", ErrInvalidTransition)
	}
	select {
	case err := <-reply:
		return err
	case <-s.ctx.Done():
		return fmt.Errorf("%w: session closed", ErrInvalidTransition)
	}
}

// HandleOffer feeds an inbound remote offer into the session.
func (s *Session) HandleOffer(sdp string) {
	s.post(event{kind: evRemoteOffer, sdp: sdp})
}

// HandleAnswer feeds an inbound remote answer into the session.
func (s *Session) HandleAnswer(sdp string) {
	s.post(event{kind: evRemoteAnswer, sdp: sdp})
}

// HandleCandidate feeds an inbound remote candidate into the session.
func (s *Session) HandleCandidate(c webrtc.ICECandidateInit) {
	s.post(event{kind: evRemoteCandidate, candidate: c})
}

// Send transmits a chat envelope over the session's data channel. Fails with
// ErrChannelUnavailable when the channel is not open.
func (s *Session) Send(ctx context.Context, env *chat.Envelope) error {
	return s.router.Send(ctx, env)
}

// Close tears the session down from any state. Idempotent.
func (s *Session) Close() {
	s.post(event{kind: evClose})
}

// post delivers an event to the actor, dropping it once the session is done.
// Reports whether the event was accepted.
func (s *Session) post(ev event) bool {
	select {
	case s.inbox <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// adoptChannel binds a data channel (locally created or remote-announced) to
// the router and forwards its lifecycle into the inbox.
func (s *Session) adoptChannel(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		s.post(event{kind: evChannelOpen})
	})
	dc.OnClose(func() {
		s.post(event{kind: evChannelClosed})
	})
	dc.OnError(func(err error) {
		s.logger.Warn().Err(err).Msg("data channel error")
	})
	s.router.Attach(dc)
}

// run is the actor loop. It owns the machine exclusively: events are applied
// in arrival order and their actions executed before the next event is read.
func (s *Session) run(m *Machine) {
	defer func() {
		s.cancel()
		if err := s.pc.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("peer connection close")
		}
	}()

	last := s.Status()

	for {
		var ev event
		select {
		case ev = <-s.inbox:
		case <-s.ctx.Done():
			m.Close()
			s.publish(m, &last)
			return
		}

		terminal := s.apply(m, ev)
		s.publish(m, &last)
		if terminal {
			return
		}
	}
}

// apply folds one event into the machine and executes the resulting actions.
// Returns true once the session reached a terminal state.
func (s *Session) apply(m *Machine, ev event) bool {
	switch ev.kind {
	case evInitiate:
		actions, err := m.Initiate()
		if err == nil {
			err = s.exec(m, actions)
		}
		if ev.reply != nil {
			ev.reply <- err
		}

	case evRemoteOffer:
		actions, err := m.RemoteOffer(ev.sdp)
		if err != nil {
			s.logger.Warn().Err(err).Msg("dropping remote offer")
			break
		}
		if err := s.exec(m, actions); err != nil {
			s.logger.Error().Err(err).Msg("negotiation failed")
		}

	case evRemoteAnswer:
		actions, err := m.RemoteAnswer(ev.sdp)
		if err != nil {
			s.logger.Warn().Err(err).Msg("dropping remote answer")
			break
		}
		if err := s.exec(m, actions); err != nil {
			s.logger.Error().Err(err).Msg("negotiation failed")
		}

	case evRemoteCandidate:
		if err := s.exec(m, m.RemoteCandidate(ev.candidate)); err != nil {
			s.logger.Error().Err(err).Msg("negotiation failed")
		}

	case evICEState:
		s.logger.Debug().Str("ice", ev.ice.String()).Msg("ice state change")
		m.ICEStateChange(ev.ice)

	case evChannelOpen:
		s.logger.Debug().Msg("data channel open")
		m.ChannelOpened()

	case evChannelClosed:
		s.logger.Debug().Msg("data channel closed")
		m.ChannelClosed()

	case evClose:
		m.Close()
	}

	return m.State().Terminal()
}

// exec performs the machine's requested side effects against pion and the
// signaler. Any offer/answer failure is terminal for the session.
func (s *Session) exec(m *Machine, actions []Action) error {
	for _, a := range actions {
		var err error
		switch a.Kind {
		case ActionSendOffer:
			err = s.sendOffer(m)
		case ActionAcceptOffer:
			err = s.acceptOffer(a.SDP)
		case ActionAcceptAnswer:
			err = s.pc.SetRemoteDescription(webrtc.SessionDescription{
				Type: webrtc.SDPTypeAnswer, SDP: a.SDP,
			})
		case ActionAddCandidates:
			// A bad candidate is logged and skipped; it must not abort
			// the flush of the ones queued behind it.
			for _, c := range a.Candidates {
				if addErr := s.pc.AddICECandidate(c); addErr != nil {
					s.logger.Warn().Err(addErr).Msg("failed to apply candidate")
				}
			}
		case ActionRollback:
			// pion rejects SetLocalDescription(rollback); discarding the
			// connection that carries the pending offer is the rollback.
			s.logger.Info().Msg("offer glare: discarding local offer")
			err = s.resetPeerConnection()
		}
		if err != nil {
			m.Fail()
			return err
		}
	}
	return nil
}

func (s *Session) sendOffer(m *Machine) error {
	dc, err := newChatChannel(s.pc)
	if err != nil {
		return fmt.Errorf("failed to create chat channel: %w", err)
	}
	s.adoptChannel(dc)

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("CreateOffer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("SetLocalDescription: %w", err)
	}
	if err := s.out.SendOffer(s.peerID, offer.SDP); err != nil {
		return fmt.Errorf("failed to send offer: %w", err)
	}
	m.OfferSent()
	return nil
}

func (s *Session) acceptOffer(sdp string) error {
	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer, SDP: sdp,
	}); err != nil {
		return fmt.Errorf("SetRemoteDescription: %w", err)
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("CreateAnswer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("SetLocalDescription: %w", err)
	}
	if err := s.out.SendAnswer(s.peerID, answer.SDP); err != nil {
		return fmt.Errorf("failed to send answer: %w", err)
	}
	return nil
}

// publish refreshes the snapshot and emits a status notification when the
// derived status changed.
func (s *Session) publish(m *Machine, last *Status) {
	s.snapshot.store(m.State(), m.ICE(), m.ChannelOpen())
	status := DeriveStatus(m.State(), m.ICE(), m.ChannelOpen())
	if status != *last {
		*last = status
		s.logger.Info().Str("status", string(status)).Msg("connectivity status")
		if s.onStatus != nil {
			s.onStatus(s.peerID, status)
		}
	}
}
