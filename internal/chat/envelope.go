// Package chat defines the application-level message envelope carried over
// peer data channels and the coordinator room relay. Both transports use the
// same shape so downstream consumers never need to know which path delivered
// a message.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the envelope payload.
type Kind string

const (
	KindText Kind = "message"
	KindFile Kind = "file"
)

// FileInfo is a reference to an uploaded file. The bytes themselves travel
// through the upload boundary, never through an envelope.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// Envelope is one chat message: a text body or a file reference, plus sender
// identity and a client-side timestamp.
type Envelope struct {
	Kind      Kind      `json:"type"`
	ID        string    `json:"id,omitempty"`
	From      string    `json:"from"`
	Username  string    `json:"username"`
	Text      string    `json:"message,omitempty"`
	File      *FileInfo `json:"fileInfo,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// NewText builds a text envelope stamped with a fresh ID and the current time.
func NewText(from, username, text string) *Envelope {
	return &Envelope{
		Kind:      KindText,
		ID:        uuid.NewString(),
		From:      from,
		Username:  username,
		Text:      text,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// NewFile builds a file-reference envelope stamped with a fresh ID and the
// current time.
func NewFile(from, username string, file FileInfo) *Envelope {
	return &Envelope{
		Kind:      KindFile,
		ID:        uuid.NewString(),
		From:      from,
		Username:  username,
		File:      &file,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}
