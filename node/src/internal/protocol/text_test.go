package protocol

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kvErr "github.com/sajjad-MoBe/kvserver/node/src/internal/errors"
)

func TestTextDecode(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected *Request
		hasError bool
	}{
		{
			name:     "set",
			input:    "SET chiave valore",
			expected: &Request{Op: OpSet, Key: "chiave", Value: "valore"},
		},
		{
			name:     "get lowercase verb",
			input:    "get chiave",
			expected: &Request{Op: OpGet, Key: "chiave"},
		},
		{
			name:     "delete with extra whitespace",
			input:    "  DELETE \t chiave  ",
			expected: &Request{Op: OpDelete, Key: "chiave"},
		},
		{
			name:     "invalid utf-8 key",
			input:    "SET k\xff v\xfe",
			expected: &Request{Op: OpSet, Key: "k\uFFFD", Value: "v\uFFFD"},
		},
		{name: "set without key", input: "SET", hasError: true},
		{name: "set without value", input: "SET k", hasError: true},
		{name: "set with spaces in value", input: "SET k v1 v2", hasError: true},
		{name: "get without key", input: "GET", hasError: true},
		{name: "unknown verb", input: "PING", hasError: true},
		{name: "empty line", input: "", hasError: true},
		{name: "key too long", input: "GET " + strings.Repeat("k", MaxKeyLength+1), hasError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := TextCodec{}.Decode([]byte(tc.input))
			if tc.hasError {
				require.Error(t, err)
				assert.True(t, kvErr.IsInvalidInput(err))
				assert.Nil(t, req)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, req)
		})
	}
}

func TestTextEncode(t *testing.T) {
	testCases := []struct {
		name string
		resp *Response
		want string
	}{
		{"set ack", Ack(OpSet), "Value set successfully\n"},
		{"delete ack", Ack(OpDelete), "Key deleted\n"},
		{"batch ack", Ack(OpBatchPut), "Batch applied successfully\n"},
		{"found", Value("k", "v", true), "v\n"},
		{"found empty value", Value("k", "", true), "\n"},
		{"not found", Value("k", "", false), "Key not found\n"},
		{"value with newline", Value("k", "a\nb", true), "Error: value cannot be sent over the text protocol\n"},
		{"value with carriage return", Value("k", "a\rb", true), "Error: value cannot be sent over the text protocol\n"},
		{"value reading as not found", Value("k", "Key not found", true), "Error: value cannot be sent over the text protocol\n"},
		{"value with spaces", Value("k", "two words", true), "two words\n"},
		{"protocol error", Failure("", kvErr.New(kvErr.ErrorTypeInvalidInput, "bad", nil)), "Unsupported command\n"},
		{
			"storage error",
			Failure(OpSet, kvErr.New(kvErr.ErrorTypeStorage, "failed to write snapshot file", errors.New("disk\nfull"))),
			"Error: STORAGE: failed to write snapshot file (disk full)\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, string(TextCodec{}.Encode(tc.resp)))
		})
	}
}

func TestTextRepliesAreDistinct(t *testing.T) {
	replies := []string{TextSetOK, TextDeleteOK, TextBatchOK, TextNotFound, TextUnsupported}
	seen := map[string]bool{}
	for _, r := range replies {
		assert.False(t, seen[r], "duplicate reply %q", r)
		assert.True(t, strings.HasSuffix(r, "\n"))
		seen[r] = true
	}
}

func TestNewCodec(t *testing.T) {
	c, err := NewCodec("text")
	require.NoError(t, err)
	assert.Equal(t, ProtocolText, c.Name())

	c, err = NewCodec("json")
	require.NoError(t, err)
	assert.Equal(t, ProtocolJSON, c.Name())

	_, err = NewCodec("resp")
	assert.Error(t, err)
}
