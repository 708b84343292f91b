package imagecodec

import "fmt"

// JPEG entropy decoding: a JPEG-flavored canonical Huffman decoder and
// the DC/AC coefficient layer on top of it.
//
// JPEG's code construction differs from DEFLATE's: there are 16 length
// buckets (1..16, never 0), and the symbol for each code comes from an
// explicit symbol table transmitted alongside the counts, assigned in
// length-then-table order rather than implied by symbol index.

const jpegMaxCodeBits = 16

// jpegBitReader reads MSB-first from entropy-coded scan data, removing
// the 0x00 stuffing byte that follows a literal 0xFF. Any other marker
// ends the usable data; reading past it is a fault, same as running off
// the buffer.
type jpegBitReader struct {
	data   []byte
	pos    int
	bitBuf uint32
	bitLen int
	atEnd  bool // a non-stuffed marker was reached
}

func newJPEGBitReader(data []byte, pos int) *jpegBitReader {
	return &jpegBitReader{data: data, pos: pos}
}

func (r *jpegBitReader) fill() {
	for r.bitLen <= 24 && !r.atEnd {
		if r.pos >= len(r.data) {
			return
		}
		b := r.data[r.pos]
		if b == 0xFF {
			if r.pos+1 >= len(r.data) {
				return
			}
			next := r.data[r.pos+1]
			if next != 0x00 {
				// Marker: end of entropy-coded segment.
				r.atEnd = true
				return
			}
			r.pos += 2 // consume 0xFF and its stuffing byte
		} else {
			r.pos++
		}
		r.bitBuf = r.bitBuf<<8 | uint32(b)
		r.bitLen += 8
	}
}

// ReadBit returns the next bit, MSB first.
func (r *jpegBitReader) ReadBit() uint32 {
	if r.bitLen == 0 {
		r.fill()
		if r.bitLen == 0 {
			fault(ErrTruncatedData)
		}
	}
	r.bitLen--
	return (r.bitBuf >> r.bitLen) & 1
}

// ReadBits reads n bits (1..16) MSB first.
func (r *jpegBitReader) ReadBits(n int) uint32 {
	var v uint32
	for j := 0; j < n; j++ {
		v = v<<1 | r.ReadBit()
	}
	return v
}

// AlignToByte discards bits up to the next byte boundary, used at
// restart-marker boundaries.
func (r *jpegBitReader) AlignToByte() {
	r.bitLen -= r.bitLen % 8
}

// ConsumeMarker reads a two-byte marker at the current position and
// returns its second byte. Pad bits of the final partial byte are
// discarded first; whole unconsumed bytes mean the entropy data and the
// decoder disagree about where the segment ends.
func (r *jpegBitReader) ConsumeMarker() (byte, error) {
	r.AlignToByte()
	if r.bitLen != 0 {
		return 0, fmt.Errorf("%w: %d unconsumed bits at marker boundary", ErrInvalidMarker, r.bitLen)
	}
	r.atEnd = false
	if r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("restart marker: %w", ErrTruncatedData)
	}
	if r.data[r.pos] != 0xFF {
		return 0, fmt.Errorf("%w: expected marker, got %#02x", ErrInvalidMarker, r.data[r.pos])
	}
	m := r.data[r.pos+1]
	r.pos += 2
	return m, nil
}

// Finish discards the final pad bits and returns the byte position at
// which marker parsing resumes after the entropy-coded segment.
func (r *jpegBitReader) Finish() (int, error) {
	r.AlignToByte()
	if r.bitLen != 0 {
		return 0, fmt.Errorf("%w: %d unconsumed bits after scan", ErrInvalidMarker, r.bitLen)
	}
	return r.pos, nil
}

// jpegHuffmanTable is a canonical Huffman decode tree built from the
// DHT wire form: 16 per-length symbol counts followed by the symbols.
type jpegHuffmanTable struct {
	nodes []huffmanNode
}

// buildJPEGHuffmanTable assigns consecutive codes within each length,
// shortest lengths first, symbols in table order.
func buildJPEGHuffmanTable(counts *[jpegMaxCodeBits]int, symbols []byte) (*jpegHuffmanTable, error) {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 || total > 256 || total != len(symbols) {
		return nil, fmt.Errorf("%w: %d huffman codes for %d symbols", ErrInvalidTable, total, len(symbols))
	}

	t := &jpegHuffmanTable{nodes: make([]huffmanNode, 1, 2*total)}
	t.nodes[0] = huffmanNode{symbol: -1}

	code := uint32(0)
	si := 0
	for length := 1; length <= jpegMaxCodeBits; length++ {
		for k := 0; k < counts[length-1]; k++ {
			if code>>length != 0 {
				return nil, fmt.Errorf("%w: huffman code overflow at length %d", ErrInvalidTable, length)
			}
			if err := t.insert(code, length, int32(symbols[si])); err != nil {
				return nil, err
			}
			code++
			si++
		}
		code <<= 1
	}

	return t, nil
}

func (t *jpegHuffmanTable) insert(code uint32, length int, symbol int32) error {
	node := int32(0)
	for i := length - 1; i >= 0; i-- {
		bit := (code >> i) & 1
		next := t.nodes[node].children[bit]
		if next == 0 {
			t.nodes = append(t.nodes, huffmanNode{symbol: -1})
			next = int32(len(t.nodes) - 1)
			t.nodes[node].children[bit] = next
		}
		node = next
	}
	if t.nodes[node].symbol != -1 {
		return fmt.Errorf("%w: duplicate huffman code", ErrInvalidTable)
	}
	t.nodes[node].symbol = symbol
	return nil
}

// DecodeSymbol walks the tree bit by bit until a leaf.
func (t *jpegHuffmanTable) DecodeSymbol(r *jpegBitReader) (int, error) {
	node := int32(0)
	for t.nodes[node].symbol == -1 {
		next := t.nodes[node].children[r.ReadBit()]
		if next == 0 {
			return 0, ErrInvalidCode
		}
		node = next
	}
	return int(t.nodes[node].symbol), nil
}

// extend applies the JPEG sign convention: a category-c magnitude whose
// top bit is 0 encodes a negative value equal to magnitude-(2^c - 1).
func extend(magnitude uint32, category int) int32 {
	if category == 0 {
		return 0
	}
	if magnitude>>(category-1) == 0 {
		return int32(magnitude) - int32(1<<category) + 1
	}
	return int32(magnitude)
}

// decodeDC decodes one DC coefficient: a category symbol (0..11), that
// many magnitude bits, and the per-component differential predictor.
func decodeDC(r *jpegBitReader, table *jpegHuffmanTable, pred *int32) (int32, error) {
	category, err := table.DecodeSymbol(r)
	if err != nil {
		return 0, fmt.Errorf("dc category: %w", err)
	}
	if category > 11 {
		return 0, fmt.Errorf("%w: dc category %d", ErrInvalidCode, category)
	}

	var diff int32
	if category > 0 {
		diff = extend(r.ReadBits(category), category)
	}
	*pred += diff
	return *pred, nil
}

// decodeAC fills positions 1..63 of the zigzag-ordered block from
// run/size symbols: 0x00 ends the block, 0xF0 skips 16 zeros, and any
// other symbol skips its high-nibble run then stores a low-nibble
// category coefficient.
func decodeAC(r *jpegBitReader, table *jpegHuffmanTable, block *[64]int32) error {
	for pos := 1; pos <= 63; {
		symbol, err := table.DecodeSymbol(r)
		if err != nil {
			return fmt.Errorf("ac symbol: %w", err)
		}

		switch {
		case symbol == 0x00: // EOB: remaining positions stay zero
			return nil
		case symbol == 0xF0: // ZRL
			pos += 16
		default:
			run := symbol >> 4
			category := symbol & 0x0F
			pos += run
			if pos > 63 {
				return fmt.Errorf("%w: ac run past position 63", ErrInvalidCode)
			}
			block[pos] = extend(r.ReadBits(category), category)
			pos++
		}
	}
	return nil
}
