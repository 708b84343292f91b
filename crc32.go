package imagecodec

import "sync"

// CRC-32 with the reflected IEEE polynomial, as used by PNG chunks.
// The lookup table is built once on first use and read-only afterwards,
// so concurrent decodes may share it.

const crcPolynomial = 0xEDB88320

var (
	crcOnce  sync.Once
	crcTable [256]uint32
)

func crc32Update(crc uint32, data []byte) uint32 {
	crcOnce.Do(func() {
		for i := range crcTable {
			c := uint32(i)
			for k := 0; k < 8; k++ {
				if c&1 != 0 {
					c = crcPolynomial ^ (c >> 1)
				} else {
					c >>= 1
				}
			}
			crcTable[i] = c
		}
	})

	crc = ^crc
	for _, b := range data {
		crc = crcTable[byte(crc)^b] ^ (crc >> 8)
	}
	return ^crc
}

func crc32Checksum(data []byte) uint32 {
	return crc32Update(0, data)
}
