package peer

import (
	"github.com/pion/webrtc/v4"
)

// Status is the coarse, user-visible connectivity status derived from the
// pair (negotiation/ICE state, channel readiness). ConnectedNoChannel is
// distinct from Connected: connectivity succeeded but no reliable channel is
// open yet, so sends must still be rejected.
type Status string

const (
	StatusNotConnected       Status = "not_connected"
	StatusConnecting         Status = "connecting"
	StatusConnected          Status = "connected"
	StatusConnectedNoChannel Status = "connected_no_channel"
	StatusDisconnected       Status = "disconnected"
	StatusFailed             Status = "failed"
	StatusClosed             Status = "closed"
)

// DeriveStatus maps session state, ICE state, and channel readiness onto a
// Status. It is a pure derivation and owns no state of its own.
func DeriveStatus(state State, ice webrtc.ICEConnectionState, channelOpen bool) Status {
	switch state {
	case StateClosed:
		return StatusClosed
	case StateFailed:
		return StatusFailed
	case StateIdle:
		return StatusNotConnected
	}

	switch ice {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		if channelOpen {
			return StatusConnected
		}
		return StatusConnectedNoChannel
	case webrtc.ICEConnectionStateDisconnected:
		return StatusDisconnected
	case webrtc.ICEConnectionStateFailed:
		return StatusFailed
	case webrtc.ICEConnectionStateClosed:
		return StatusClosed
	default:
		// new, checking, or not yet started.
		return StatusConnecting
	}
}
