package peer

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// ErrInvalidTransition reports a negotiation event arriving in a state that
// does not accept it.
var ErrInvalidTransition = errors.New("invalid negotiation transition")

// ActionKind identifies a side effect the session must perform after the
// machine consumed an event.
type ActionKind int

const (
	// ActionSendOffer: create the chat data channel, generate a local offer,
	// and send it to the peer.
	ActionSendOffer ActionKind = iota
	// ActionAcceptOffer: apply the remote offer, generate and send an answer.
	ActionAcceptOffer
	// ActionAcceptAnswer: apply the remote answer.
	ActionAcceptAnswer
	// ActionAddCandidates: apply remote candidates in the given order.
	ActionAddCandidates
	// ActionRollback: discard the pending local offer and the connection
	// carrying it (glare loser).
	ActionRollback
)

// Action is one side effect, with the data it needs.
type Action struct {
	Kind       ActionKind
	SDP        string
	Candidates []webrtc.ICECandidateInit
}

// Machine is the pure per-peer negotiation state machine. It consumes events
// and returns the actions to perform; it does no I/O and touches no pion
// object, which keeps every transition testable in isolation. Candidates that
// arrive before the remote description are queued here and released, in
// arrival order, by the first action that follows the description.
//
// Glare (both sides offer at once) is resolved deterministically: the side
// with the lexicographically smaller user ID stays the offerer, the other
// side rolls its own offer back and answers.
type Machine struct {
	localID string
	peerID  string

	state         State
	remoteApplied bool
	queued        []webrtc.ICECandidateInit
	channelOpen   bool
	ice           webrtc.ICEConnectionState
}

// NewMachine returns a machine in StateIdle for the given peer.
func NewMachine(localID, peerID string) *Machine {
	return &Machine{
		localID: localID,
		peerID:  peerID,
		state:   StateIdle,
		ice:     webrtc.ICEConnectionStateNew,
	}
}

func (m *Machine) State() State      { return m.state }
func (m *Machine) ChannelOpen() bool { return m.channelOpen }

// ICE returns the last observed ICE connection state.
func (m *Machine) ICE() webrtc.ICEConnectionState { return m.ice }

// Initiate starts the local-initiated path. Valid only from StateIdle.
func (m *Machine) Initiate() ([]Action, error) {
	if m.state != StateIdle {
		return nil, fmt.Errorf("%w: initiate in state %s", ErrInvalidTransition, m.state)
	}
	m.state = StateOffering
	return []Action{{Kind: ActionSendOffer}}, nil
}

// OfferSent records that the local offer went out: Offering → AwaitingAnswer.
func (m *Machine) OfferSent() {
	if m.state == StateOffering {
		m.state = StateAwaitingAnswer
	}
}

// RemoteOffer consumes an inbound offer. On the remote-initiated path
// (StateIdle) it is accepted and answered. If a local offer is already in
// flight, the glare tie-break decides: the smaller ID keeps its offer and
// ignores the remote one, the larger ID rolls back and answers.
func (m *Machine) RemoteOffer(sdp string) ([]Action, error) {
	switch m.state {
	case StateIdle:
		m.state = StateNegotiating
		return m.afterRemoteDescription(Action{Kind: ActionAcceptOffer, SDP: sdp}), nil

	case StateOffering, StateAwaitingAnswer:
		if m.localID < m.peerID {
			// We win the tie-break: the peer rolls back and answers our offer.
			return nil, nil
		}
		// Losing side: the rollback discards the connection along with the
		// offer, so the connectivity snapshot starts over too.
		m.state = StateNegotiating
		m.ice = webrtc.ICEConnectionStateNew
		m.channelOpen = false
		actions := []Action{{Kind: ActionRollback}}
		return append(actions, m.afterRemoteDescription(Action{Kind: ActionAcceptOffer, SDP: sdp})...), nil

	case StateClosed, StateFailed:
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: offer in state %s", ErrInvalidTransition, m.state)
	}
}

// RemoteAnswer consumes an inbound answer. Valid only from AwaitingAnswer.
func (m *Machine) RemoteAnswer(sdp string) ([]Action, error) {
	if m.state.Terminal() {
		return nil, nil
	}
	if m.state != StateAwaitingAnswer {
		return nil, fmt.Errorf("%w: answer in state %s", ErrInvalidTransition, m.state)
	}
	m.state = StateNegotiating
	return m.afterRemoteDescription(Action{Kind: ActionAcceptAnswer, SDP: sdp}), nil
}

// RemoteCandidate consumes an inbound connectivity candidate. Candidates
// arriving before the remote description are queued, never discarded.
func (m *Machine) RemoteCandidate(c webrtc.ICECandidateInit) []Action {
	if m.state.Terminal() {
		return nil
	}
	if !m.remoteApplied {
		m.queued = append(m.queued, c)
		return nil
	}
	return []Action{{Kind: ActionAddCandidates, Candidates: []webrtc.ICECandidateInit{c}}}
}

// afterRemoteDescription marks the remote description applied and appends the
// flush of any queued candidates, preserving their arrival order.
func (m *Machine) afterRemoteDescription(accept Action) []Action {
	m.remoteApplied = true
	actions := []Action{accept}
	if len(m.queued) > 0 {
		actions = append(actions, Action{Kind: ActionAddCandidates, Candidates: m.queued})
		m.queued = nil
	}
	return actions
}

// ICEStateChange folds an ICE connectivity transition into the session state.
// Connectivity alone never reaches StateConnected: an open data channel is
// also required. A reconnect observed while Disconnected resumes Negotiating;
// in every other non-terminal state a reconnect changes nothing, because only
// ChannelOpened completes the transition (mirroring ChannelClosed's fallback
// to Disconnected).
func (m *Machine) ICEStateChange(ice webrtc.ICEConnectionState) State {
	if m.state.Terminal() {
		return m.state
	}
	m.ice = ice

	switch ice {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		if m.channelOpen {
			m.state = StateConnected
		} else if m.state == StateDisconnected {
			m.state = StateNegotiating
		}
	case webrtc.ICEConnectionStateDisconnected:
		m.state = StateDisconnected
	case webrtc.ICEConnectionStateFailed:
		m.state = StateFailed
	case webrtc.ICEConnectionStateClosed:
		m.state = StateClosed
	}
	return m.state
}

// ChannelOpened records the data channel opening; with connectivity already
// established this completes the transition to StateConnected.
func (m *Machine) ChannelOpened() State {
	if m.state.Terminal() {
		return m.state
	}
	m.channelOpen = true
	if m.ice == webrtc.ICEConnectionStateConnected || m.ice == webrtc.ICEConnectionStateCompleted {
		m.state = StateConnected
	}
	return m.state
}

// ChannelClosed records the data channel closing. A connected session drops
// back to StateDisconnected; negotiation may resume.
func (m *Machine) ChannelClosed() State {
	if m.state.Terminal() {
		return m.state
	}
	m.channelOpen = false
	if m.state == StateConnected {
		m.state = StateDisconnected
	}
	return m.state
}

// Fail moves the session to the terminal StateFailed.
func (m *Machine) Fail() State {
	if !m.state.Terminal() {
		m.state = StateFailed
	}
	return m.state
}

// Close moves the session to the terminal StateClosed. A session already in
// StateFailed stays failed.
func (m *Machine) Close() State {
	if !m.state.Terminal() {
		m.state = StateClosed
	}
	return m.state
}
