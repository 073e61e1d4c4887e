package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	pingInterval  = 5 * time.Second
	pongWait      = 7 * time.Second
	writeDeadline = 5 * time.Second
)

// Config carries Transport construction parameters.
type Config struct {
	// URL is the coordinator WebSocket endpoint, e.g. ws://host:3000/ws.
	URL    string
	Logger *zerolog.Logger
}

// Transport is the persistent coordinator link. It is a thin message bus:
// Send is fire-and-forget, OnReceive registers the dispatcher, and every
// envelope actually read off the socket is handed to the dispatcher before
// the next read. Losing the link fires the loss callback exactly once.
type Transport struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex

	mu      sync.RWMutex
	handler func(*Envelope)
	onLoss  func(error)

	lossOnce sync.Once
	done     chan struct{}
}

// Dial connects to the coordinator and returns a Transport ready to run.
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to coordinator: %w", err)
	}
	return &Transport{
		conn:   conn,
		logger: cfg.Logger.With().Str("component", "signal-transport").Logger(),
		done:   make(chan struct{}),
	}, nil
}

// OnReceive registers the inbound dispatcher. Must be set before Run.
func (t *Transport) OnReceive(fn func(*Envelope)) {
	t.mu.Lock()
	t.handler = fn
	t.mu.Unlock()
}

// OnLoss registers the connection-loss callback. It fires at most once, for
// any terminal read/write failure or remote close.
func (t *Transport) OnLoss(fn func(error)) {
	t.mu.Lock()
	t.onLoss = fn
	t.mu.Unlock()
}

// Send writes one envelope to the coordinator, guarded by a mutex so
// concurrent senders never interleave frames.
func (t *Transport) Send(env *Envelope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return err
	}
	return t.conn.WriteJSON(env)
}

// Run drives the read loop until the connection drops or ctx is cancelled.
// Envelopes are validated at the boundary and dispatched in arrival order on
// the loop goroutine; a malformed envelope is logged and skipped.
func (t *Transport) Run(ctx context.Context) error {
	stopPing := t.startPing(ctx)
	defer stopPing()

	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))

	go func() {
		select {
		case <-ctx.Done():
			t.conn.Close()
		case <-t.done:
		}
	}()

	for {
		var env Envelope
		if err := t.conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				t.fail(ctx.Err())
				return ctx.Err()
			}
			t.fail(err)
			return fmt.Errorf("coordinator link lost: %w", err)
		}

		if err := env.validate(); err != nil {
			t.logger.Warn().Err(err).Msg("dropping invalid envelope")
			continue
		}

		t.mu.RLock()
		handler := t.handler
		t.mu.RUnlock()
		if handler != nil {
			handler(&env)
		}
	}
}

// Done is closed once the transport has terminally failed or been closed.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Close tears the link down. The loss callback still fires so session
// teardown follows the same path as an unexpected disconnect.
func (t *Transport) Close() error {
	err := t.conn.Close()
	t.fail(ErrTransportLost)
	return err
}

func (t *Transport) fail(err error) {
	t.lossOnce.Do(func() {
		close(t.done)
		t.mu.RLock()
		onLoss := t.onLoss
		t.mu.RUnlock()
		if onLoss != nil {
			onLoss(err)
		}
	})
}

// startPing keeps the link alive; the coordinator treats a silent client as
// gone. Returns a stop function.
func (t *Transport) startPing(ctx context.Context) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.writeMu.Lock()
				_ = t.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				err := t.conn.WriteMessage(websocket.PingMessage, nil)
				t.writeMu.Unlock()
				if err != nil {
					t.logger.Debug().Err(err).Msg("ping failed")
					return
				}
			case <-ctx.Done():
				return
			case <-t.done:
				return
			case <-stop:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}
