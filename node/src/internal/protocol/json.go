package protocol

import (
	"encoding/json"
	"errors"
	"strings"

	kvErr "github.com/sajjad-MoBe/kvserver/node/src/internal/errors"
)

// JSON message discriminants
const (
	TypePut      = "put"
	TypeBatchPut = "batch_put"
	TypeFetch    = "fetch"
	TypeDelete   = "delete"
	TypeReply    = "reply"
	TypeOK       = "ok"
	TypeError    = "error"
)

// JSONRequest is the structured request, one object per line, tagged by Type:
//
//	{"type":"put","key":"k","value":"v"}
//	{"type":"batch_put","pairs":[["k1","v1"],["k2","v2"]]}
//	{"type":"fetch","key":"k"}
//	{"type":"delete","key":"k"}
type JSONRequest struct {
	Type  string     `json:"type"`
	Key   *string    `json:"key,omitempty"`
	Value *string    `json:"value,omitempty"`
	Pairs [][]string `json:"pairs,omitempty"`
}

// JSONResponse is the structured response. A reply to fetch carries the key
// and, when the key exists, the value.
type JSONResponse struct {
	Type  string  `json:"type"`
	Key   *string `json:"key,omitempty"`
	Value *string `json:"value,omitempty"`
	Error string  `json:"error,omitempty"`
}

// JSONCodec speaks the structured protocol. Malformed input yields a single
// {"type":"error"} reply and the connection stays usable.
type JSONCodec struct{}

func (JSONCodec) Name() string { return ProtocolJSON }

func (JSONCodec) Decode(frame []byte) (*Request, error) {
	var msg JSONRequest
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, kvErr.New(kvErr.ErrorTypeInvalidInput, "malformed request", err)
	}

	// "set"/"get" and the CamelCase variant names are accepted as aliases
	switch strings.ReplaceAll(strings.ToLower(msg.Type), "_", "") {
	case "put", "set":
		if msg.Key == nil || msg.Value == nil {
			return nil, invalid("put requires key and value")
		}
		if err := validateKey(*msg.Key); err != nil {
			return nil, err
		}
		return &Request{Op: OpSet, Key: *msg.Key, Value: *msg.Value}, nil

	case "batchput":
		pairs := make([]Pair, 0, len(msg.Pairs))
		for i, p := range msg.Pairs {
			if len(p) != 2 {
				return nil, invalid("pair %d must be [key, value]", i)
			}
			if err := validateKey(p[0]); err != nil {
				return nil, err
			}
			pairs = append(pairs, Pair{Key: p[0], Value: p[1]})
		}
		return &Request{Op: OpBatchPut, Pairs: pairs}, nil

	case "fetch", "get":
		if msg.Key == nil {
			return nil, invalid("fetch requires key")
		}
		if err := validateKey(*msg.Key); err != nil {
			return nil, err
		}
		return &Request{Op: OpGet, Key: *msg.Key}, nil

	case "delete":
		if msg.Key == nil {
			return nil, invalid("delete requires key")
		}
		if err := validateKey(*msg.Key); err != nil {
			return nil, err
		}
		return &Request{Op: OpDelete, Key: *msg.Key}, nil
	}

	return nil, invalid("unknown request type %q", msg.Type)
}

func (JSONCodec) Encode(resp *Response) []byte {
	var out JSONResponse
	switch resp.Kind {
	case KindValue:
		key := resp.Key
		out = JSONResponse{Type: TypeReply, Key: &key}
		if resp.Found {
			value := resp.Value
			out.Value = &value
		}
	case KindAck:
		out = JSONResponse{Type: TypeOK}
	default:
		out = JSONResponse{Type: TypeError, Error: errorMessage(resp.Err)}
	}

	// JSONResponse only holds strings, Marshal cannot fail
	data, _ := json.Marshal(out)
	return append(data, '\n')
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	var e *kvErr.KVError
	if errors.As(err, &e) && e.Type == kvErr.ErrorTypeInvalidInput {
		return e.Message
	}
	return err.Error()
}
