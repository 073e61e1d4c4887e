package peer

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// atomicState is the cross-goroutine mirror of the actor-owned machine state.
// Only the actor writes it; anyone may read it.
type atomicState struct {
	mu   sync.RWMutex
	st   State
	ice  webrtc.ICEConnectionState
	open bool
}

func (a *atomicState) store(st State, ice webrtc.ICEConnectionState, open bool) {
	a.mu.Lock()
	a.st, a.ice, a.open = st, ice, open
	a.mu.Unlock()
}

func (a *atomicState) load() (State, webrtc.ICEConnectionState, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.st, a.ice, a.open
}
