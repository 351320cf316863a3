package protocol

import (
	"bytes"
	"io"

	kvErr "github.com/sajjad-MoBe/kvserver/node/src/internal/errors"
)

const (
	DefaultReadBufferSize = 1024
	DefaultMaxFrameSize   = 1024 * 1024
)

// ErrFrameTooLarge is returned by FrameReader.Next when a line grows past the
// configured maximum. The connection cannot be resynchronised after it.
var ErrFrameTooLarge = &kvErr.KVError{
	Type:    kvErr.ErrorTypeTransport,
	Message: "frame exceeds maximum size",
}

// FrameReader splits a byte stream into newline-terminated frames. Every read
// uses the same fixed-size chunk; bytes accumulate in a growable buffer which
// is compacted once a frame has been consumed.
type FrameReader struct {
	reader       io.Reader
	chunk        []byte
	pending      []byte
	maxFrameSize int
	err          error
}

// NewFrameReader creates a FrameReader. Non-positive sizes select defaults.
func NewFrameReader(r io.Reader, readBufferSize, maxFrameSize int) *FrameReader {
	if readBufferSize <= 0 {
		readBufferSize = DefaultReadBufferSize
	}
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &FrameReader{
		reader:       r,
		chunk:        make([]byte, readBufferSize),
		maxFrameSize: maxFrameSize,
	}
}

// Next blocks until a full frame is available and returns it without the
// line terminator ("\n" or "\r\n"). When the peer closes the stream with a
// partial line pending, that line is returned first and io.EOF after it.
func (f *FrameReader) Next() ([]byte, error) {
	for {
		if idx := bytes.IndexByte(f.pending, '\n'); idx >= 0 {
			if idx > f.maxFrameSize {
				return nil, ErrFrameTooLarge
			}
			return f.consume(idx, idx+1), nil
		}
		if len(f.pending) > f.maxFrameSize {
			return nil, ErrFrameTooLarge
		}

		if f.err != nil {
			if f.err == io.EOF && len(f.pending) > 0 {
				return f.consume(len(f.pending), len(f.pending)), nil
			}
			return nil, f.err
		}

		n, err := f.reader.Read(f.chunk)
		if n > 0 {
			f.pending = append(f.pending, f.chunk[:n]...)
		}
		if err != nil {
			f.err = err
		}
	}
}

// Buffered reports how many bytes are held without forming a frame yet
func (f *FrameReader) Buffered() int {
	return len(f.pending)
}

func (f *FrameReader) consume(end, skip int) []byte {
	frame := make([]byte, end)
	copy(frame, f.pending[:end])
	frame = bytes.TrimSuffix(frame, []byte{'\r'})

	remaining := copy(f.pending, f.pending[skip:])
	f.pending = f.pending[:remaining]
	return frame
}
