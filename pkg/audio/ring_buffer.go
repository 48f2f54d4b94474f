package audio

import (
	"sync"
)

// RingBuffer is a fixed-capacity circular byte buffer used to smooth paced
// network audio into device playout. Writers append decoded PCM as frames
// arrive; the playback callback consumes whatever is buffered and pads the
// rest with silence. When the buffer overflows, the oldest audio is dropped
// so playout latency stays bounded.
type RingBuffer struct {
	mu       sync.Mutex
	data     []byte
	capacity int
	readPos  int
	size     int
}

// NewRingBuffer creates a ring buffer sized for durationMs of 16-bit mono
// PCM at sampleRate.
func NewRingBuffer(sampleRate, durationMs int) *RingBuffer {
	samples := sampleRate * durationMs / 1000
	capacity := samples * 2 // 16-bit samples
	return &RingBuffer{
		data:     make([]byte, capacity),
		capacity: capacity,
	}
}

// Write appends audio to the buffer, discarding the oldest bytes when the
// incoming data does not fit.
func (rb *RingBuffer) Write(p []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(p) == 0 {
		return
	}

	// Oversized writes keep only the newest capacity bytes.
	if len(p) >= rb.capacity {
		copy(rb.data, p[len(p)-rb.capacity:])
		rb.readPos = 0
		rb.size = rb.capacity
		return
	}

	// Drop the oldest audio to make room.
	if overflow := rb.size + len(p) - rb.capacity; overflow > 0 {
		rb.readPos = (rb.readPos + overflow) % rb.capacity
		rb.size -= overflow
	}

	writePos := (rb.readPos + rb.size) % rb.capacity
	n := copy(rb.data[writePos:], p)
	if n < len(p) {
		copy(rb.data, p[n:])
	}
	rb.size += len(p)
}

// Read consumes up to len(p) buffered bytes and returns how many were
// copied. It never blocks; callers fill the remainder with silence.
func (rb *RingBuffer) Read(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	if n > rb.size {
		n = rb.size
	}
	if n == 0 {
		return 0
	}

	first := copy(p[:n], rb.data[rb.readPos:])
	if first < n {
		copy(p[first:n], rb.data)
	}
	rb.readPos = (rb.readPos + n) % rb.capacity
	rb.size -= n
	return n
}

// Buffered reports the number of unread bytes.
func (rb *RingBuffer) Buffered() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size
}

// Capacity returns the total capacity in bytes.
func (rb *RingBuffer) Capacity() int {
	return rb.capacity
}

// Clear drops all buffered audio.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readPos = 0
	rb.size = 0
}
