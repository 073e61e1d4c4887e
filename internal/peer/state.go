// Package peer owns the per-peer connection life: the negotiation state
// machine, the session actor driving a pion PeerConnection, the data-channel
// router, and the registry that holds one session per remote peer.
package peer

// State is the negotiation state of one peer session.
type State int

const (
	StateIdle State = iota
	StateOffering
	StateAwaitingAnswer
	StateNegotiating
	StateConnected
	StateDisconnected
	StateClosed
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:           "idle",
	StateOffering:       "offering",
	StateAwaitingAnswer: "awaiting_answer",
	StateNegotiating:    "negotiating",
	StateConnected:      "connected",
	StateDisconnected:   "disconnected",
	StateClosed:         "closed",
	StateFailed:         "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Terminal reports whether the state accepts no further transitions.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}
