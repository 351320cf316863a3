package protocol

import (
	"fmt"

	kvErr "github.com/sajjad-MoBe/kvserver/node/src/internal/errors"
)

// MaxKeyLength bounds the size of a single key in bytes
const MaxKeyLength = 1024

// Codec decodes request frames and encodes responses for one wire format.
// Decode never panics on malformed input; it returns an INVALID_INPUT
// KVError which the caller turns into exactly one error response.
type Codec interface {
	Name() string
	Decode(frame []byte) (*Request, error)
	Encode(resp *Response) []byte
}

const (
	ProtocolText = "text"
	ProtocolJSON = "json"
)

// NewCodec returns the codec registered under name
func NewCodec(name string) (Codec, error) {
	switch name {
	case ProtocolText, "":
		return TextCodec{}, nil
	case ProtocolJSON:
		return JSONCodec{}, nil
	}
	return nil, fmt.Errorf("unknown protocol %q (want %q or %q)", name, ProtocolText, ProtocolJSON)
}

func invalid(format string, args ...any) error {
	return kvErr.New(kvErr.ErrorTypeInvalidInput, fmt.Sprintf(format, args...), nil)
}

// validateKey validates a key
func validateKey(key string) error {
	if key == "" {
		return invalid("key cannot be empty")
	}
	if len(key) > MaxKeyLength {
		return invalid("key too long")
	}
	return nil
}
