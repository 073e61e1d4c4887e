package chat_test

import (
	"errors"
	"testing"

	"github.com/nullexa/nullexa/internal/chat"
)

// TestEncodeDecodeRoundTrip verifies that encoding and decoding are inverse
// operations for both envelope kinds.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		env  *chat.Envelope
	}{
		{
			name: "text message",
			env:  chat.NewText("user-1", "alice", "hello there"),
		},
		{
			name: "empty text",
			env:  chat.NewText("user-1", "alice", ""),
		},
		{
			name: "unicode text",
			env:  chat.NewText("user-2", "bob", "héllo 世界 👋"),
		},
		{
			name: "file reference",
			env: chat.NewFile("user-1", "alice", chat.FileInfo{
				Name: "report.pdf",
				Size: 1 << 20,
				URL:  "http://localhost:3000/files/report.pdf",
			}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := chat.Encode(tc.env)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			decoded, err := chat.Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if decoded.Kind != tc.env.Kind {
				t.Errorf("Kind mismatch: got %q, want %q", decoded.Kind, tc.env.Kind)
			}
			if decoded.ID != tc.env.ID {
				t.Errorf("ID mismatch: got %q, want %q", decoded.ID, tc.env.ID)
			}
			if decoded.From != tc.env.From {
				t.Errorf("From mismatch: got %q, want %q", decoded.From, tc.env.From)
			}
			if decoded.Username != tc.env.Username {
				t.Errorf("Username mismatch: got %q, want %q", decoded.Username, tc.env.Username)
			}
			if decoded.Text != tc.env.Text {
				t.Errorf("Text mismatch: got %q, want %q", decoded.Text, tc.env.Text)
			}
			if decoded.Timestamp != tc.env.Timestamp {
				t.Errorf("Timestamp mismatch: got %q, want %q", decoded.Timestamp, tc.env.Timestamp)
			}
			if tc.env.File != nil {
				if decoded.File == nil {
					t.Fatal("File reference lost in round trip")
				}
				if *decoded.File != *tc.env.File {
					t.Errorf("FileInfo mismatch: got %+v, want %+v", *decoded.File, *tc.env.File)
				}
			}
		})
	}
}

// TestDecodeMalformed verifies that unparseable or invalid frames fail with
// ErrMalformedFrame rather than producing a partial envelope.
func TestDecodeMalformed(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{"not JSON", `{{{`},
		{"empty object", `{}`},
		{"unknown type", `{"type":"video","from":"u1","username":"alice","timestamp":"t"}`},
		{"file without fileInfo", `{"type":"file","from":"u1","username":"alice","timestamp":"t"}`},
		{"missing sender", `{"type":"message","username":"alice","message":"hi","timestamp":"t"}`},
		{"JSON array", `[1,2,3]`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := chat.Decode([]byte(tc.data))
			if !errors.Is(err, chat.ErrMalformedFrame) {
				t.Fatalf("Expected ErrMalformedFrame, got %v", err)
			}
		})
	}
}

// TestNewEnvelopeIdentity verifies that the constructors stamp each envelope
// with a distinct ID and a timestamp.
func TestNewEnvelopeIdentity(t *testing.T) {
	a := chat.NewText("u1", "alice", "first")
	b := chat.NewText("u1", "alice", "second")

	if a.ID == "" || b.ID == "" {
		t.Fatal("Envelope created without an ID")
	}
	if a.ID == b.ID {
		t.Error("Two envelopes share an ID")
	}
	if a.Timestamp == "" {
		t.Error("Envelope created without a timestamp")
	}
}
