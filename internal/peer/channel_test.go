package peer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/nullexa/nullexa/internal/chat"
	"github.com/nullexa/nullexa/internal/peer"
)

// TestSendWithoutChannel verifies that a send with no channel attached fails
// with ErrChannelUnavailable instead of being dropped.
func TestSendWithoutChannel(t *testing.T) {
	r := peer.NewRouter(zerolog.Nop())

	err := r.Send(context.Background(), chat.NewText("u1", "alice", "hello"))
	if !errors.Is(err, peer.ErrChannelUnavailable) {
		t.Fatalf("Expected ErrChannelUnavailable, got %v", err)
	}
	if r.Open() {
		t.Error("Open reported true with no channel attached")
	}
}

// TestSendChannelNotOpen verifies that an attached but not yet open channel
// still rejects sends with ErrChannelUnavailable.
func TestSendChannelNotOpen(t *testing.T) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection failed: %v", err)
	}
	defer pc.Close()

	dc, err := pc.CreateDataChannel("chat", nil)
	if err != nil {
		t.Fatalf("CreateDataChannel failed: %v", err)
	}

	r := peer.NewRouter(zerolog.Nop())
	r.Attach(dc)

	if r.Open() {
		t.Error("Open reported true before the channel opened")
	}
	sendErr := r.Send(context.Background(), chat.NewText("u1", "alice", "hello"))
	if !errors.Is(sendErr, peer.ErrChannelUnavailable) {
		t.Fatalf("Expected ErrChannelUnavailable, got %v", sendErr)
	}
}
