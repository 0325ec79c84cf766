package rd03d

// DefaultBufferCapacity holds roughly ten target reports.
const DefaultBufferCapacity = 300

// FrameBuffer accumulates bytes read from the sensor. Its length never
// exceeds its capacity once Append returns: on overflow only the most recent
// half of the capacity is kept, even if that drops a partial frame.
type FrameBuffer struct {
	buf      []byte
	capacity int
}

// NewFrameBuffer returns an empty buffer. A non-positive capacity selects
// DefaultBufferCapacity.
func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &FrameBuffer{
		buf:      make([]byte, 0, capacity*2),
		capacity: capacity,
	}
}

// Append adds p to the tail and enforces the capacity. It returns the number
// of bytes evicted from the head.
func (b *FrameBuffer) Append(p []byte) (evicted int) {
	b.buf = append(b.buf, p...)
	return b.enforceCapacity()
}

func (b *FrameBuffer) enforceCapacity() int {
	if len(b.buf) <= b.capacity {
		return 0
	}
	keep := b.capacity / 2
	evicted := len(b.buf) - keep
	b.buf = append(b.buf[:0], b.buf[evicted:]...)
	return evicted
}

// Consume drops the first n bytes.
func (b *FrameBuffer) Consume(n int) {
	if n <= 0 {
		return
	}
	if n >= len(b.buf) {
		b.buf = b.buf[:0]
		return
	}
	b.buf = append(b.buf[:0], b.buf[n:]...)
}

// Reset empties the buffer.
func (b *FrameBuffer) Reset() {
	b.buf = b.buf[:0]
}

// Bytes returns the buffered bytes. The slice is only valid until the next
// call that modifies the buffer.
func (b *FrameBuffer) Bytes() []byte {
	return b.buf
}

// Len returns the number of buffered bytes.
func (b *FrameBuffer) Len() int {
	return len(b.buf)
}

// Cap returns the capacity bound.
func (b *FrameBuffer) Cap() int {
	return b.capacity
}
