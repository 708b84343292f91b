package imagecodec

import "fmt"

// bitReader provides bit-level reading from a byte buffer.
// Bits are read in LSB-first order within each byte, the order used by
// DEFLATE (RFC 1951 §3.1.1).
//
// Reading past the end of the buffer is a bounds violation, not a
// recoverable condition: the reader aborts the decode via fault, and
// the decompressor boundary converts that into an error return.
type bitReader struct {
	data   []byte
	pos    int  // byte position
	bitPos uint // bit position within current byte (0-7), reads LSB first
}

// newBitReader creates a new bit reader over data.
func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

// ReadBit reads a single bit (LSB first). Returns 0 or 1.
func (r *bitReader) ReadBit() uint32 {
	if r.pos >= len(r.data) {
		fault(ErrTruncatedData)
	}

	bit := uint32(r.data[r.pos]>>r.bitPos) & 1

	r.bitPos++
	if r.bitPos == 8 {
		r.bitPos = 0
		r.pos++
	}

	return bit
}

// ReadBits reads n bits (1 <= n <= 32), LSB first: the first bit read
// becomes bit 0 of the result.
func (r *bitReader) ReadBits(n int) uint32 {
	if n < 1 || n > 32 {
		fault(fmt.Errorf("imagecodec: invalid bit count %d", n))
	}

	var result uint32
	for i := 0; i < n; i++ {
		result |= r.ReadBit() << i
	}
	return result
}

// ReadBitsReversed reads n bits and returns them bit-reversed, so the
// first bit read becomes the most significant. Huffman codes are packed
// MSB-of-code first, so code construction contexts read this way.
func (r *bitReader) ReadBitsReversed(n int) uint32 {
	if n < 1 || n > 32 {
		fault(fmt.Errorf("imagecodec: invalid bit count %d", n))
	}

	var result uint32
	for j := 0; j < n; j++ {
		result = (result << 1) | r.ReadBit()
	}
	return result
}

// AlignToByte discards any remaining bits of the current byte.
// If already byte-aligned, this is a no-op.
func (r *bitReader) AlignToByte() {
	if r.bitPos != 0 {
		r.bitPos = 0
		r.pos++
	}
}

// ReadBytes fills dst with the next len(dst) bytes. The reader must be
// byte-aligned; stored DEFLATE blocks align before calling this.
func (r *bitReader) ReadBytes(dst []byte) {
	if r.bitPos != 0 {
		fault(fmt.Errorf("imagecodec: byte read on unaligned bit reader"))
	}
	if r.pos+len(dst) > len(r.data) {
		fault(ErrTruncatedData)
	}
	copy(dst, r.data[r.pos:])
	r.pos += len(dst)
}

// Remaining returns the number of whole bytes left from the current
// position, not counting a partially consumed byte.
func (r *bitReader) Remaining() int {
	rem := len(r.data) - r.pos
	if r.bitPos != 0 {
		rem--
	}
	if rem < 0 {
		return 0
	}
	return rem
}
