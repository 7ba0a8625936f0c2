package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameBytes bounds a single frame when the caller does not
// configure a ceiling. The protocol itself is length-unbounded.
const DefaultMaxFrameBytes = 64 << 20

const readChunkSize = 1024

// ErrPeerClosed reports that the peer went away before a full frame
// arrived. Callers treat it as session death, not a protocol fault.
var ErrPeerClosed = errors.New("wire: peer closed")

// ErrFrameTooLarge reports a frame exceeding the configured ceiling.
// The session cannot be resynchronised afterwards and must be dropped.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// Reader decodes sentinel-terminated frames from a byte stream.
//
// Bytes received past the first sentinel are retained and served on the
// next ReadFrame call, so a reply and an early-arriving probe response
// cannot be fused. A Reader must only be used by one goroutine at a time;
// sessions enforce that with their exclusive lock.
type Reader struct {
	r    io.Reader
	rest []byte
	max  int
}

// NewReader wraps r. A max of 0 selects DefaultMaxFrameBytes.
func NewReader(r io.Reader, max int) *Reader {
	if max <= 0 {
		max = DefaultMaxFrameBytes
	}
	return &Reader{r: r, max: max}
}

// ReadFrame returns the next frame payload with the sentinel stripped.
// It returns ErrPeerClosed when the stream ends or errors mid-frame, and
// ErrFrameTooLarge when the accumulated payload passes the ceiling.
func (r *Reader) ReadFrame() ([]byte, error) {
	acc := r.rest
	r.rest = nil
	for {
		if i := bytes.Index(acc, []byte(Sentinel)); i >= 0 {
			r.rest = acc[i+len(Sentinel):]
			return acc[:i], nil
		}
		if len(acc) > r.max {
			return nil, fmt.Errorf("%w: %d buffered", ErrFrameTooLarge, len(acc))
		}
		chunk := make([]byte, readChunkSize)
		n, err := r.r.Read(chunk)
		if n > 0 {
			acc = append(acc, chunk[:n]...)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrPeerClosed
			}
			return nil, fmt.Errorf("%w: %w", ErrPeerClosed, err)
		}
	}
}

// WriteFrame appends the sentinel and writes the whole record in a single
// Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, 0, len(payload)+len(Sentinel))
	buf = append(buf, payload...)
	buf = append(buf, Sentinel...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: %w", ErrPeerClosed, err)
	}
	return nil
}

// WriteMessage encodes m and writes it as one frame.
func WriteMessage(w io.Writer, m Message) error {
	return WriteFrame(w, m.Encode())
}
