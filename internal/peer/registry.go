package peer

import (
	"iter"
	"sync"

	"github.com/rs/zerolog"
)

// Registry is the exclusive owner of the peer-id → Session map. All session
// creation and teardown goes through it, which is what upholds the invariant
// of at most one live session per peer id.
type Registry struct {
	logger  zerolog.Logger
	factory func(peerID string) (*Session, error)

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. The factory builds a fresh session
// for a peer id; the registry decides when to call it.
func NewRegistry(logger *zerolog.Logger, factory func(peerID string) (*Session, error)) *Registry {
	return &Registry{
		logger:   logger.With().Str("component", "peer-registry").Logger(),
		factory:  factory,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the live session for peerID, creating one in StateIdle
// if none exists. A session that already terminated is replaced atomically:
// the map never holds two live sessions, nor a dead one, for the same id.
func (r *Registry) GetOrCreate(peerID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[peerID]; ok {
		select {
		case <-s.Done():
			// Terminated but not yet reaped; fall through and replace.
		default:
			return s, nil
		}
	}
	return r.createLocked(peerID)
}

// Replace closes any existing session for peerID and creates a fresh one in
// a single critical section.
func (r *Registry) Replace(peerID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sessions[peerID]; ok {
		delete(r.sessions, peerID)
		old.Close()
	}
	return r.createLocked(peerID)
}

func (r *Registry) createLocked(peerID string) (*Session, error) {
	s, err := r.factory(peerID)
	if err != nil {
		return nil, err
	}
	r.sessions[peerID] = s
	r.logger.Debug().Str("peer", peerID).Msg("session created")

	// Reap the entry once the session terminates on its own (failure,
	// remote close). Guarded so a replacement session is never removed.
	go func() {
		<-s.Done()
		r.mu.Lock()
		if cur, ok := r.sessions[peerID]; ok && cur == s {
			delete(r.sessions, peerID)
		}
		r.mu.Unlock()
		r.logger.Debug().Str("peer", peerID).Msg("session reaped")
	}()

	return s, nil
}

// Get returns the session for peerID, if any.
func (r *Registry) Get(peerID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[peerID]
	return s, ok
}

// Remove tears down and discards the session for peerID. Idempotent.
func (r *Registry) Remove(peerID string) {
	r.mu.Lock()
	s, ok := r.sessions[peerID]
	delete(r.sessions, peerID)
	r.mu.Unlock()

	if ok {
		s.Close()
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// All returns a restartable sequence over a snapshot of the current
// sessions, taken once per iteration. Used for bulk teardown on transport
// loss.
func (r *Registry) All() iter.Seq[*Session] {
	return func(yield func(*Session) bool) {
		r.mu.Lock()
		snapshot := make([]*Session, 0, len(r.sessions))
		for _, s := range r.sessions {
			snapshot = append(snapshot, s)
		}
		r.mu.Unlock()

		for _, s := range snapshot {
			if !yield(s) {
				return
			}
		}
	}
}

// CloseAll tears down every live session. No orphaned negotiation survives a
// lost signaling path.
func (r *Registry) CloseAll() {
	for s := range r.All() {
		r.Remove(s.PeerID())
	}
}
