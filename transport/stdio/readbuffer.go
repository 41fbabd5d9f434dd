package stdio

import (
	"bytes"
	"errors"
)

// ErrFrameTooLarge is reported when a single document exceeds the maximum
// message size. The framing cannot recover from it.
var ErrFrameTooLarge = errors.New("stdio: message exceeds maximum size")

// ReadBuffer accumulates raw chunks and splits them into newline-terminated
// documents.
type ReadBuffer struct {
	buf []byte
	max int
}

// NewReadBuffer returns a buffer rejecting documents longer than maxSize bytes.
// A maxSize of zero or less disables the limit.
func NewReadBuffer(maxSize int) *ReadBuffer {
	return &ReadBuffer{max: maxSize}
}

// Append adds chunk and returns every document it completed, in order.
// Trailing carriage returns are stripped and blank lines skipped. The
// returned slices do not alias the buffer.
func (b *ReadBuffer) Append(chunk []byte) ([][]byte, error) {
	b.buf = append(b.buf, chunk...)

	var out [][]byte
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(b.buf[:i], []byte{'\r'})
		if b.max > 0 && len(line) > b.max {
			b.buf = nil
			return out, ErrFrameTooLarge
		}
		if len(bytes.TrimSpace(line)) > 0 {
			out = append(out, bytes.Clone(line))
		}
		b.buf = b.buf[i+1:]
	}

	if b.max > 0 && len(b.buf) > b.max {
		b.buf = nil
		return out, ErrFrameTooLarge
	}
	// Reclaim the consumed prefix once nothing is pending.
	if len(b.buf) == 0 {
		b.buf = nil
	}
	return out, nil
}

// Pending reports how many bytes of an incomplete document are buffered.
func (b *ReadBuffer) Pending() int { return len(b.buf) }

// Reset discards any buffered partial document.
func (b *ReadBuffer) Reset() { b.buf = nil }
