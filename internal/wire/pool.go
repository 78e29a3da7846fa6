// Package wire implements the MQTT v5 control packet codec: framing,
// property tables, topic validation, and a pooled buffer abstraction
// used by the session state machine to parse and build packets without
// per-packet allocation on the hot path.
package wire

import "sync"

const pooledBufferSize = 4096

var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, pooledBufferSize)
		return &buf
	},
}

// Buffer is an owned or pool-backed byte buffer. Zero value is usable;
// Release returns pool-backed storage, a no-op for buffers that grew
// past the pooled size or were constructed directly from a slice.
type Buffer struct {
	b     []byte
	owned bool
}

// GetBuffer leases a buffer with at least the requested capacity from
// the pool, allocating directly when size exceeds the pooled slab.
func GetBuffer(size int) *Buffer {
	if size > pooledBufferSize {
		return &Buffer{b: make([]byte, 0, size)}
	}
	ptr := bufferPool.Get().(*[]byte)
	return &Buffer{b: (*ptr)[:0], owned: true}
}

// Bytes returns the buffer's current contents.
func (buf *Buffer) Bytes() []byte { return buf.b }

// Append grows the buffer by appending p, reallocating as needed.
func (buf *Buffer) Append(p []byte) {
	buf.b = append(buf.b, p...)
}

// Reset empties the buffer without releasing its storage.
func (buf *Buffer) Reset() { buf.b = buf.b[:0] }

// Release returns pool-backed storage to the shared pool. The buffer
// must not be used afterward.
func (buf *Buffer) Release() {
	if !buf.owned || cap(buf.b) != pooledBufferSize {
		return
	}
	b := buf.b[:pooledBufferSize]
	bufferPool.Put(&b)
	buf.b = nil
	buf.owned = false
}
