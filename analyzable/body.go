package analyzable

import "sync"

// DefaultMaxBodySize is the number of bytes stored by a body component
// when no other limit is configured.
const DefaultMaxBodySize = 8 << 20

// Body accumulates streamed bytes up to a hard cap. The bytes above the
// cap are counted but not stored.
type Body struct {
	mu         sync.Mutex
	prefix     string
	max        int
	data       []byte
	realLength int64
	truncated  bool
}

// NewBody creates a body component. The fields exported by the body are
// prefixed with prefix. A max value less than zero means
// DefaultMaxBodySize.
func NewBody(prefix string, max int) *Body {
	if max < 0 {
		max = DefaultMaxBodySize
	}

	return &Body{prefix: prefix, max: max}
}

// Write stores as much of p as the cap allows. It always reports the full
// length of p as written, so it can be used as the target of an
// io.TeeReader without causing short writes.
func (b *Body) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.max - len(b.data)
	if n < 0 {
		n = 0
	}

	if n > len(p) {
		n = len(p)
	}

	b.data = append(b.data, p[:n]...)
	b.realLength += int64(len(p))
	if n < len(p) {
		b.truncated = true
	}

	return len(p), nil
}

// SetDecoded replaces the stored bytes with the decoded form of the
// body. The real length keeps counting the bytes received on the wire.
// The body is marked truncated when the decoded form didn't fit the cap.
func (b *Body) SetDecoded(p []byte, truncated bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(p) > b.max {
		p, truncated = p[:b.max], true
	}

	b.data = append([]byte(nil), p...)
	b.truncated = b.truncated || truncated
}

// Mask replaces the stored bytes with the result of f. The real length
// and the truncation mark are kept.
func (b *Body) Mask(f func([]byte) []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = f(b.data)
	if len(b.data) > b.max {
		b.data = b.data[:b.max]
	}
}

// Reset drops the stored bytes and clears the truncation mark.
func (b *Body) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = nil
	b.realLength = 0
	b.truncated = false
}

// Bytes returns a copy of the stored bytes.
func (b *Body) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil
	}

	c := make([]byte, len(b.data))
	copy(c, b.data)
	return c
}

func (b *Body) String() string { return string(b.Bytes()) }

// Len returns the number of stored bytes.
func (b *Body) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// RealLength returns the number of bytes written, including the ones that
// were not stored.
func (b *Body) RealLength() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.realLength
}

// Cap returns the maximum number of stored bytes.
func (b *Body) Cap() int { return b.max }

// IsAnalyzable tells whether the stored bytes are the complete body.
func (b *Body) IsAnalyzable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.truncated
}

func (b *Body) ComponentName() string { return "Body" }
func (b *Body) Children() []Component { return nil }

func (b *Body) DataToLog() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]interface{}{
		b.prefix + "_body":            string(b.data),
		b.prefix + "_body_length":     b.realLength,
		b.prefix + "_body_analyzable": !b.truncated,
	}
}
