package room_test

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nullexa/nullexa/internal/chat"
	"github.com/nullexa/nullexa/internal/room"
	"github.com/nullexa/nullexa/internal/signal"
)

func newTestRegistry() *room.Registry {
	logger := zerolog.Nop()
	return room.NewRegistry(&logger)
}

// TestApplyCreated verifies that creating a room records the local user as a
// joined admin with the given participants.
func TestApplyCreated(t *testing.T) {
	reg := newTestRegistry()

	reg.ApplyCreated("room-1", "general", []string{"u1"}, false, true, "u1")

	got, ok := reg.Get("room-1")
	if !ok {
		t.Fatal("Created room not found")
	}
	if !got.Joined || !got.Admin {
		t.Errorf("Expected joined admin room, got %+v", got)
	}
	if len(got.Participants) != 1 {
		t.Errorf("Participants mismatch: got %d, want 1", len(got.Participants))
	}
	if !reg.Joined("room-1") {
		t.Error("Joined reported false for a created room")
	}
}

// TestApplyAvailable verifies that announced rooms enter the catalogue
// without membership, and that re-announcing only refreshes metadata.
func TestApplyAvailable(t *testing.T) {
	reg := newTestRegistry()

	reg.ApplyAvailable("room-1", "general", "u2", false, "link-1")
	if reg.Joined("room-1") {
		t.Error("Available room reported as joined")
	}

	// The creator renames the room and protects it.
	reg.ApplyAvailable("room-1", "general-2", "u2", true, "link-1")

	got, ok := reg.Get("room-1")
	if !ok {
		t.Fatal("Announced room not found")
	}
	if got.Name != "general-2" || !got.Protected {
		t.Errorf("Metadata refresh mismatch: %+v", got)
	}
	if len(reg.List()) != 1 {
		t.Errorf("Re-announce duplicated the room: %d entries", len(reg.List()))
	}
}

// TestApplyJoinedAuthoritative verifies that a confirmed join replaces the
// participant list with the coordinator's authoritative one.
func TestApplyJoinedAuthoritative(t *testing.T) {
	reg := newTestRegistry()
	reg.ApplyAvailable("room-1", "general", "u2", false, "")

	reg.ApplyJoined("room-1", "general", []string{"u1", "u2", "u3"}, false, false, "u2", "link-1")

	got, _ := reg.Get("room-1")
	if !got.Joined {
		t.Error("Joined flag not set after confirmed join")
	}
	if len(got.Participants) != 3 {
		t.Errorf("Participants mismatch: got %d, want 3", len(got.Participants))
	}
}

// TestMembershipIdempotent verifies that duplicate join and leave events for
// the same participant never skew the participant count.
func TestMembershipIdempotent(t *testing.T) {
	reg := newTestRegistry()
	reg.ApplyJoined("room-1", "general", []string{"u1"}, false, false, "u1", "")

	reg.ApplyUserJoined("room-1", "u2")
	reg.ApplyUserJoined("room-1", "u2")
	got, _ := reg.Get("room-1")
	if len(got.Participants) != 2 {
		t.Errorf("Participants after duplicate join: got %d, want 2", len(got.Participants))
	}

	reg.ApplyUserLeft("room-1", "u2")
	reg.ApplyUserLeft("room-1", "u2")
	reg.ApplyUserLeft("room-1", "never-joined")
	got, _ = reg.Get("room-1")
	if len(got.Participants) != 1 {
		t.Errorf("Participants after duplicate leave: got %d, want 1", len(got.Participants))
	}

	// Events for unknown rooms are dropped silently.
	reg.ApplyUserJoined("no-such-room", "u9")
	reg.ApplyUserLeft("no-such-room", "u9")
}

// TestApplyLeft verifies that leaving clears membership but keeps the room in
// the catalogue.
func TestApplyLeft(t *testing.T) {
	reg := newTestRegistry()
	reg.ApplyJoined("room-1", "general", []string{"u1"}, false, false, "u1", "")

	reg.ApplyLeft("room-1")

	if reg.Joined("room-1") {
		t.Error("Joined reported true after leave")
	}
	if _, ok := reg.Get("room-1"); !ok {
		t.Error("Room dropped from catalogue on leave")
	}
}

// TestGetReturnsCopy verifies that mutating a returned room never reaches
// registry state.
func TestGetReturnsCopy(t *testing.T) {
	reg := newTestRegistry()
	reg.ApplyJoined("room-1", "general", []string{"u1"}, false, false, "u1", "")

	got, _ := reg.Get("room-1")
	got.Participants["intruder"] = struct{}{}

	fresh, _ := reg.Get("room-1")
	if len(fresh.Participants) != 1 {
		t.Error("Mutation of a returned copy reached the registry")
	}
}

// TestClear verifies that Clear drops every room.
func TestClear(t *testing.T) {
	reg := newTestRegistry()
	reg.ApplyJoined("room-1", "general", []string{"u1"}, false, false, "u1", "")
	reg.ApplyAvailable("room-2", "random", "u2", false, "")

	reg.Clear()
	if len(reg.List()) != 0 {
		t.Errorf("Rooms remain after Clear: %d", len(reg.List()))
	}
}

// captureSender records the signaling envelopes a relay sends.
type captureSender struct {
	sent []*signal.Envelope
	err  error
}

func (c *captureSender) Send(env *signal.Envelope) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, env)
	return nil
}

func newTestRelay(out *captureSender) (*room.Relay, *room.Registry) {
	logger := zerolog.Nop()
	reg := room.NewRegistry(&logger)
	relay := room.NewRelay(&logger, out, reg, func() string { return "local-user" })
	return relay, reg
}

// TestRelaySendText verifies that a room text send produces both the wire
// envelope and the optimistic local copy with matching timestamps.
func TestRelaySendText(t *testing.T) {
	out := &captureSender{}
	relay, reg := newTestRelay(out)
	reg.ApplyJoined("room-1", "general", []string{"local-user"}, false, false, "local-user", "")

	env, err := relay.SendText("room-1", "alice", "hello room")
	if err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if env.Kind != chat.KindText || env.Text != "hello room" || env.From != "local-user" {
		t.Errorf("Optimistic envelope mismatch: %+v", env)
	}

	if len(out.sent) != 1 {
		t.Fatalf("Sent count mismatch: got %d, want 1", len(out.sent))
	}
	wire := out.sent[0]
	if wire.Kind != signal.KindRoomMessage || wire.RoomID != "room-1" || wire.Message != "hello room" {
		t.Errorf("Wire envelope mismatch: %+v", wire)
	}
	if wire.Timestamp != env.Timestamp {
		t.Error("Wire and optimistic timestamps differ")
	}
}

// TestRelaySendFile verifies the file-reference variant of a room send.
func TestRelaySendFile(t *testing.T) {
	out := &captureSender{}
	relay, reg := newTestRelay(out)
	reg.ApplyJoined("room-1", "general", []string{"local-user"}, false, false, "local-user", "")

	file := chat.FileInfo{Name: "notes.txt", Size: 42, URL: "http://localhost:3000/files/notes.txt"}
	env, err := relay.SendFile("room-1", "alice", file)
	if err != nil {
		t.Fatalf("SendFile failed: %v", err)
	}
	if env.Kind != chat.KindFile || env.File == nil || *env.File != file {
		t.Errorf("Optimistic envelope mismatch: %+v", env)
	}
	if len(out.sent) != 1 || out.sent[0].Kind != signal.KindRoomFile {
		t.Fatalf("Wire envelope mismatch: %+v", out.sent)
	}
}

// TestRelaySendGuards verifies the two send preconditions: the relay must be
// online and the local user must be a member of the room.
func TestRelaySendGuards(t *testing.T) {
	out := &captureSender{}
	relay, reg := newTestRelay(out)

	if _, err := relay.SendText("room-1", "alice", "hi"); !errors.Is(err, room.ErrNotInRoom) {
		t.Errorf("Expected ErrNotInRoom, got %v", err)
	}

	reg.ApplyJoined("room-1", "general", []string{"local-user"}, false, false, "local-user", "")
	relay.SetOnline(false)
	if _, err := relay.SendText("room-1", "alice", "hi"); !errors.Is(err, room.ErrRelayOffline) {
		t.Errorf("Expected ErrRelayOffline, got %v", err)
	}
	if len(out.sent) != 0 {
		t.Errorf("Guarded send still hit the transport: %+v", out.sent)
	}
}

// TestRelayInbound verifies conversion of room broadcasts into chat
// envelopes, including echo suppression for the local user's own messages.
func TestRelayInbound(t *testing.T) {
	relay, _ := newTestRelay(&captureSender{})

	testCases := []struct {
		name   string
		env    *signal.Envelope
		wantOK bool
		want   chat.Kind
	}{
		{
			name: "remote text broadcast",
			env: &signal.Envelope{
				Kind: signal.KindRoomMessage, RoomID: "room-1",
				From: "u2", Username: "bob", Message: "hi", Timestamp: "t",
			},
			wantOK: true,
			want:   chat.KindText,
		},
		{
			name: "remote file broadcast",
			env: &signal.Envelope{
				Kind: signal.KindRoomFile, RoomID: "room-1",
				From: "u2", Username: "bob", Timestamp: "t",
				FileInfo: &chat.FileInfo{Name: "a.txt", Size: 1, URL: "u"},
			},
			wantOK: true,
			want:   chat.KindFile,
		},
		{
			name: "own echo suppressed",
			env: &signal.Envelope{
				Kind: signal.KindRoomMessage, RoomID: "room-1",
				From: "local-user", Username: "alice", Message: "hi",
			},
			wantOK: false,
		},
		{
			name: "file broadcast without fileInfo dropped",
			env: &signal.Envelope{
				Kind: signal.KindRoomFile, RoomID: "room-1",
				From: "u2", Username: "bob",
			},
			wantOK: false,
		},
		{
			name:   "non-room kind ignored",
			env:    &signal.Envelope{Kind: signal.KindOffer, From: "u2"},
			wantOK: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env, ok := relay.Inbound(tc.env)
			if ok != tc.wantOK {
				t.Fatalf("ok mismatch: got %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if env.Kind != tc.want {
				t.Errorf("Kind mismatch: got %q, want %q", env.Kind, tc.want)
			}
			if env.From != tc.env.From || env.Username != tc.env.Username {
				t.Errorf("Sender identity mismatch: %+v", env)
			}
		})
	}
}
