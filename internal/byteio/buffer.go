package byteio

// Buffer is a growable, random-access, in-memory byte store used as the
// target/output backing for both decoders. BPS's TargetCopy action
// needs read-after-write access to bytes it has already produced (it
// may legitimately read bytes written earlier in the very same action),
// and IPS hunks may land at offsets beyond what has been written so
// far; an in-memory buffer sized to the expected output (recommended by
// the spec for ROM-scale files, typically under a few tens of MiB)
// gives both decoders one simple, consistent backing store.
type Buffer struct {
	data []byte
}

// NewBuffer returns a buffer pre-sized to n zero bytes.
func NewBuffer(n int) *Buffer {
	return &Buffer{data: make([]byte, n)}
}

// NewBufferFromBytes wraps an existing slice (e.g. the source file
// contents, copied verbatim as IPS's initial target image) as a Buffer.
func NewBufferFromBytes(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Len reports the buffer's current size.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Bytes returns the buffer's contents. The returned slice aliases the
// buffer's internal storage; callers must not retain it across a call
// that might grow the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// grow extends the buffer with zero bytes until it is at least n bytes
// long. Growth past the end of file on an IPS write is the documented
// zero-fill-extension policy (see SPEC_FULL.md open question
// resolution): rather than relying on filesystem hole semantics, the
// in-memory buffer is explicitly zero-extended before the write lands.
func (b *Buffer) grow(n int) {
	if len(b.data) >= n {
		return
	}
	grown := make([]byte, n)
	copy(grown, b.data)
	b.data = grown
}

// WriteAt copies p into the buffer starting at offset off, zero-filling
// and growing the buffer first if off+len(p) exceeds its current size.
func (b *Buffer) WriteAt(p []byte, off int) {
	end := off + len(p)
	b.grow(end)
	copy(b.data[off:end], p)
}

// ReadByteAt returns the byte at the given offset. The caller is
// responsible for ensuring off is within bounds (BPS's TargetCopy
// rejects a cursor outside the bytes already written before it reads,
// and then advances the cursor alongside out_pos).
func (b *Buffer) ReadByteAt(off int) byte {
	return b.data[off]
}
