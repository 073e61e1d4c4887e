// Package room tracks coordinator-mediated rooms and relays their traffic.
// Rooms never have a peer-to-peer path: every room message goes through the
// coordinator.
package room

import (
	"sync"

	"github.com/rs/zerolog"
)

// Room is one multi-party room as the coordinator last described it.
type Room struct {
	ID           string
	Name         string
	Participants map[string]struct{}
	Protected    bool
	Admin        bool
	Creator      string
	JoinLink     string
	Joined       bool
}

// Registry owns the room-id → Room map: joined rooms plus the catalogue of
// rooms announced as available. Mutation happens only through the Apply*
// methods fed by coordinator events, and each of them is idempotent.
type Registry struct {
	logger zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRegistry creates an empty room registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		logger: logger.With().Str("component", "room-registry").Logger(),
		rooms:  make(map[string]*Room),
	}
}

// ApplyCreated records a room the local user just created (and implicitly
// joined, per coordinator semantics).
func (r *Registry) ApplyCreated(id, name string, participants []string, protected, admin bool, creator string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := &Room{
		ID:           id,
		Name:         name,
		Participants: participantSet(participants),
		Protected:    protected,
		Admin:        admin,
		Creator:      creator,
		Joined:       true,
	}
	r.rooms[id] = room
	r.logger.Info().Str("room", id).Str("name", name).Msg("room created")
	return room
}

// ApplyAvailable records a room announced by the coordinator as joinable.
// Re-announcing a room the registry already tracks only refreshes metadata.
func (r *Registry) ApplyAvailable(id, name, creator string, protected bool, joinLink string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		room = &Room{ID: id, Participants: make(map[string]struct{})}
		r.rooms[id] = room
	}
	room.Name = name
	room.Creator = creator
	room.Protected = protected
	room.JoinLink = joinLink
	return room
}

// ApplyJoined records a confirmed local join with the authoritative
// participant list from the coordinator.
func (r *Registry) ApplyJoined(id, name string, participants []string, protected, admin bool, creator, joinLink string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		room = &Room{ID: id}
		r.rooms[id] = room
	}
	room.Name = name
	room.Participants = participantSet(participants)
	room.Protected = protected
	room.Admin = admin
	room.Creator = creator
	room.JoinLink = joinLink
	room.Joined = true
	r.logger.Info().Str("room", id).Str("name", name).Msg("joined room")
	return room
}

// ApplyUserJoined adds a participant. A join for a user already accounted
// for is a no-op.
func (r *Registry) ApplyUserJoined(roomID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[roomID]; ok {
		room.Participants[userID] = struct{}{}
	}
}

// ApplyUserLeft removes a participant. Idempotent.
func (r *Registry) ApplyUserLeft(roomID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[roomID]; ok {
		delete(room.Participants, userID)
	}
}

// ApplyLeft discards local membership after a confirmed leave. The room
// stays in the catalogue; it just is not joined anymore.
func (r *Registry) ApplyLeft(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[roomID]; ok {
		room.Joined = false
		r.logger.Info().Str("room", roomID).Msg("left room")
	}
}

// Remove discards a room entirely (e.g. the coordinator deleted it).
func (r *Registry) Remove(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, roomID)
}

// Get returns a copy of the room, so callers never mutate registry state.
func (r *Registry) Get(roomID string) (Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return Room{}, false
	}
	return snapshotRoom(room), true
}

// Joined reports whether the local user is currently in the room.
func (r *Registry) Joined(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	return ok && room.Joined
}

// List returns copies of all known rooms.
func (r *Registry) List() []Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, snapshotRoom(room))
	}
	return out
}

// Clear drops every room; used when the coordinator link is lost.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = make(map[string]*Room)
}

func participantSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func snapshotRoom(room *Room) Room {
	cp := *room
	cp.Participants = make(map[string]struct{}, len(room.Participants))
	for id := range room.Participants {
		cp.Participants[id] = struct{}{}
	}
	return cp
}
