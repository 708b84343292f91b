package imagecodec

import (
	"encoding/binary"
	"fmt"
)

// ZLIB container (RFC 1950): a 2-byte header, a DEFLATE body, and a
// trailing big-endian Adler-32 of the decompressed bytes.

const adlerModulus = 65521

// updateAdler32 folds data into a running Adler-32 state. Start with
// a=1, b=0; the final checksum is b<<16 | a.
func updateAdler32(a, b uint32, data []byte) (uint32, uint32) {
	for _, c := range data {
		a = (a + uint32(c)) % adlerModulus
		b = (b + a) % adlerModulus
	}
	return a, b
}

func adler32Checksum(data []byte) uint32 {
	a, b := updateAdler32(1, 0, data)
	return b<<16 | a
}

// zlibDecompress validates the container, inflates the body, and
// verifies the trailing checksum.
func zlibDecompress(data []byte) ([]byte, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("zlib stream: %w", ErrTruncatedData)
	}

	cmf, flg := data[0], data[1]
	if cmf&0x0F != 8 {
		return nil, fmt.Errorf("%w: zlib compression method %d", ErrInvalidHeader, cmf&0x0F)
	}
	if (uint16(cmf)<<8|uint16(flg))%31 != 0 {
		return nil, fmt.Errorf("%w: zlib header check bits", ErrInvalidHeader)
	}
	if flg&0x20 != 0 {
		return nil, fmt.Errorf("%w: zlib preset dictionary", ErrUnsupportedFormat)
	}

	expected := binary.BigEndian.Uint32(data[len(data)-4:])

	out, err := inflate(data[2 : len(data)-4])
	if err != nil {
		return nil, err
	}

	if got := adler32Checksum(out); got != expected {
		return nil, fmt.Errorf("%w: adler-32 %#08x, want %#08x", ErrChecksumMismatch, got, expected)
	}
	return out, nil
}
