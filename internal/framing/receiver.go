// Package framing extracts terminator-delimited frames from a byte stream.
//
// The receiver is hardened against hostile peers: a maximum frame length
// bounds memory, and an incremental scan cursor bounds total terminator-search
// work to O(n) in the bytes received, even when a peer drip-feeds one byte at
// a time.
package framing

import (
	"bytes"
	"errors"
	"io"
)

// readChunkSize is the upper bound on a single read from the underlying stream.
const readChunkSize = 4096

// DefaultMaxFrameLength is the frame size bound used when the caller passes a
// non-positive limit.
const DefaultMaxFrameLength = 16384

var (
	// ErrFrameTooLong reports that buffered data exceeded the maximum frame
	// length without a terminator. Fatal to the stream.
	ErrFrameTooLong = errors.New("framing: frame too long")

	// ErrIncompleteFrame reports that the stream ended with a partial frame
	// buffered. Fatal to the stream.
	ErrIncompleteFrame = errors.New("framing: incomplete frame")
)

// Receiver parses frames out of an io.Reader, where each frame is terminated
// by a fixed byte sequence. A Receiver is tied to one stream and is not safe
// for concurrent use.
type Receiver struct {
	r              io.Reader
	terminator     []byte
	maxFrameLength int

	buf []byte
	// searchFrom is the lowest buffer offset the next terminator search must
	// examine. Bytes below it are already known terminator-free, except for
	// the trailing len(terminator)-1 bytes kept in range so a terminator
	// straddling two reads is still found.
	searchFrom int

	chunk [readChunkSize]byte
}

// NewReceiver returns a Receiver reading frames from r. An empty terminator
// defaults to "\n"; a non-positive maxFrameLength defaults to
// DefaultMaxFrameLength.
func NewReceiver(r io.Reader, terminator []byte, maxFrameLength int) *Receiver {
	if len(terminator) == 0 {
		terminator = []byte{'\n'}
	}
	if maxFrameLength <= 0 {
		maxFrameLength = DefaultMaxFrameLength
	}
	return &Receiver{
		r:              r,
		terminator:     terminator,
		maxFrameLength: maxFrameLength,
	}
}

// Receive returns the next frame, excluding the terminator. The returned
// slice is owned by the caller.
//
// A clean end of stream between frames returns io.EOF. A stream ending with
// buffered partial data returns ErrIncompleteFrame. Buffering more than the
// maximum frame length without seeing a terminator returns ErrFrameTooLong.
// After any non-nil error the Receiver is dead.
func (r *Receiver) Receive() ([]byte, error) {
	for {
		if i := bytes.Index(r.buf[r.searchFrom:], r.terminator); i >= 0 {
			end := r.searchFrom + i
			frame := make([]byte, end)
			copy(frame, r.buf[:end])
			// Trim the frame and terminator off the front in place so the
			// backing array is reused across frames.
			n := copy(r.buf, r.buf[end+len(r.terminator):])
			r.buf = r.buf[:n]
			r.searchFrom = 0
			return frame, nil
		}

		if len(r.buf) > r.maxFrameLength {
			return nil, ErrFrameTooLong
		}

		// Resume the next search where this one left off, minus enough slack
		// to catch a terminator split across reads.
		if from := len(r.buf) - len(r.terminator) + 1; from > 0 {
			r.searchFrom = from
		} else {
			r.searchFrom = 0
		}

		n, err := r.r.Read(r.chunk[:])
		if n > 0 {
			r.buf = append(r.buf, r.chunk[:n]...)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(r.buf) > 0 {
					return nil, ErrIncompleteFrame
				}
				return nil, io.EOF
			}
			return nil, err
		}
	}
}

// Buffered reports how many bytes are held without a complete frame.
func (r *Receiver) Buffered() int {
	return len(r.buf)
}
