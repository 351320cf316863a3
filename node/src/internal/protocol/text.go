package protocol

import (
	"strings"

	kvErr "github.com/sajjad-MoBe/kvserver/node/src/internal/errors"
)

// Text protocol replies
const (
	TextSetOK       = "Value set successfully\n"
	TextDeleteOK    = "Key deleted\n"
	TextBatchOK     = "Batch applied successfully\n"
	TextNotFound    = "Key not found\n"
	TextUnsupported = "Unsupported command\n"
)

// TextCodec speaks the line protocol: one request per line made of
// whitespace-separated tokens.
//
//	SET <key> <value>
//	GET <key>
//	DELETE <key>
//
// Verbs are case-insensitive. Anything else, including a wrong number of
// tokens, is answered with "Unsupported command". Invalid UTF-8 is replaced
// with U+FFFD before tokenising, the same substitution a JSON snapshot makes,
// so a stored key reads back unchanged after a restart.
type TextCodec struct{}

func (TextCodec) Name() string { return ProtocolText }

func (TextCodec) Decode(frame []byte) (*Request, error) {
	parts := strings.Fields(strings.ToValidUTF8(string(frame), "\uFFFD"))
	if len(parts) == 0 {
		return nil, invalid("empty command")
	}

	var req *Request
	switch strings.ToUpper(parts[0]) {
	case "SET":
		if len(parts) != 3 {
			return nil, invalid("SET takes a key and a value")
		}
		req = &Request{Op: OpSet, Key: parts[1], Value: parts[2]}
	case "GET":
		if len(parts) != 2 {
			return nil, invalid("GET takes a key")
		}
		req = &Request{Op: OpGet, Key: parts[1]}
	case "DELETE":
		if len(parts) != 2 {
			return nil, invalid("DELETE takes a key")
		}
		req = &Request{Op: OpDelete, Key: parts[1]}
	default:
		return nil, invalid("unknown command %q", parts[0])
	}

	if err := validateKey(req.Key); err != nil {
		return nil, err
	}
	return req, nil
}

// errUnrepresentable answers a GET whose value was stored through the JSON
// protocol and would break the line framing or read as "Key not found".
const errUnrepresentable = "value cannot be sent over the text protocol"

func textSafe(value string) bool {
	return !strings.ContainsAny(value, "\r\n") && value+"\n" != TextNotFound
}

func (TextCodec) Encode(resp *Response) []byte {
	switch resp.Kind {
	case KindValue:
		if !resp.Found {
			return []byte(TextNotFound)
		}
		if !textSafe(resp.Value) {
			return []byte("Error: " + errUnrepresentable + "\n")
		}
		return []byte(resp.Value + "\n")
	case KindAck:
		switch resp.Op {
		case OpDelete:
			return []byte(TextDeleteOK)
		case OpBatchPut:
			return []byte(TextBatchOK)
		default:
			return []byte(TextSetOK)
		}
	}

	if resp.Err == nil || kvErr.IsInvalidInput(resp.Err) {
		return []byte(TextUnsupported)
	}
	msg := strings.ReplaceAll(resp.Err.Error(), "\n", " ")
	return []byte("Error: " + msg + "\n")
}
