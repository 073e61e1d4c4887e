package peer

import (
	"github.com/pion/webrtc/v4"
)

// STUN servers for ICE candidate gathering. No TURN: peers that cannot
// punch through do not get a media relay path.
var stunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// chatChannelLabel names the single data channel carried by every session.
const chatChannelLabel = "chat"

// newPeerConnection creates a PeerConnection configured with Google STUN servers.
func newPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
	return webrtc.NewPeerConnection(config)
}

// newChatChannel creates the ordered, reliable chat channel on the initiator
// side. The responder receives its end through OnDataChannel. Messages must
// arrive exactly once and in send order.
func newChatChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := true
	return pc.CreateDataChannel(chatChannelLabel, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
}
