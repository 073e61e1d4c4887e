package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedFrame reports an inbound frame that could not be parsed or
// validated as an Envelope. Callers log and discard: one bad frame must not
// terminate an otherwise healthy session.
var ErrMalformedFrame = errors.New("malformed frame")

// Encode serializes an Envelope for data-channel transmission.
func Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Decode deserializes and validates a data-channel frame.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch env.Kind {
	case KindText:
	case KindFile:
		if env.File == nil {
			return nil, fmt.Errorf("%w: file envelope without fileInfo", ErrMalformedFrame)
		}
	default:
		return nil, fmt.Errorf("%w: unknown envelope type %q", ErrMalformedFrame, env.Kind)
	}

	if env.From == "" {
		return nil, fmt.Errorf("%w: missing sender id", ErrMalformedFrame)
	}
	return &env, nil
}
