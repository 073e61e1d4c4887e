package peer

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/nullexa/nullexa/internal/chat"
)

const (
	highWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this
)

// ErrChannelUnavailable reports a send attempted while no data channel is
// open. It is recoverable: the caller falls back to the coordinator or alerts
// the user. Sends are never silently dropped.
var ErrChannelUnavailable = errors.New("data channel unavailable")

// Router frames chat envelopes over one reliable, ordered data channel and
// dispatches inbound frames. It outlives any individual channel: Attach
// rebinds it when a session renegotiates.
type Router struct {
	logger    zerolog.Logger
	sendReady chan struct{}

	mu         sync.RWMutex
	dc         *webrtc.DataChannel
	onEnvelope func(*chat.Envelope)
}

// NewRouter creates a Router with no channel attached. Sends fail with
// ErrChannelUnavailable until a channel is attached and open.
func NewRouter(logger zerolog.Logger) *Router {
	return &Router{
		logger:    logger,
		sendReady: make(chan struct{}, 1),
	}
}

// OnEnvelope registers the inbound message consumer.
func (r *Router) OnEnvelope(fn func(*chat.Envelope)) {
	r.mu.Lock()
	r.onEnvelope = fn
	r.mu.Unlock()
}

// Attach binds a data channel to the router and wires inbound dispatch and
// backpressure. A previously attached channel is replaced, not closed; its
// lifecycle belongs to the PeerConnection.
func (r *Router) Attach(dc *webrtc.DataChannel) {
	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case r.sendReady <- struct{}{}:
		default:
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		env, err := chat.Decode(msg.Data)
		if err != nil {
			// Logged and discarded: one bad frame must not take the
			// session down.
			r.logger.Warn().Err(err).Msg("discarding inbound frame")
			return
		}
		r.mu.RLock()
		fn := r.onEnvelope
		r.mu.RUnlock()
		if fn != nil {
			fn(env)
		}
	})

	r.mu.Lock()
	r.dc = dc
	r.mu.Unlock()
}

// Open reports whether an attached channel is currently open.
func (r *Router) Open() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dc != nil && r.dc.ReadyState() == webrtc.DataChannelStateOpen
}

// Send encodes and transmits one envelope. It fails with
// ErrChannelUnavailable when no open channel exists, and blocks under
// backpressure until the buffer drains below the low watermark or ctx is
// cancelled.
func (r *Router) Send(ctx context.Context, env *chat.Envelope) error {
	r.mu.RLock()
	dc := r.dc
	r.mu.RUnlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelUnavailable
	}

	if dc.BufferedAmount() > uint64(highWaterMark) {
		select {
		case <-r.sendReady:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	data, err := chat.Encode(env)
	if err != nil {
		return err
	}
	if err := dc.Send(data); err != nil {
		return errors.Join(ErrChannelUnavailable, err)
	}
	return nil
}
