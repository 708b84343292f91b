package imagecodec

import "fmt"

// DEFLATE decompression (RFC 1951).

// windowSize is the LZ77 history window: back-references may reach at
// most this many bytes behind the write cursor.
const windowSize = 32768

// slidingWindow is a fixed-capacity ring buffer over the most recently
// produced bytes. Index wraparound stays behind the accessors so a
// back-reference copy can never be expressed with a raw out-of-range
// index.
type slidingWindow struct {
	buf  [windowSize]byte
	pos  int // next write position
	size int // bytes written so far, capped at windowSize
}

func (w *slidingWindow) Put(b byte) {
	w.buf[w.pos] = b
	w.pos = (w.pos + 1) % windowSize
	if w.size < windowSize {
		w.size++
	}
}

// At returns the byte distance positions behind the write cursor.
// Distance must satisfy 1 <= distance <= min(windowSize, size).
func (w *slidingWindow) At(distance int) (byte, error) {
	if distance < 1 || distance > w.size {
		return 0, fmt.Errorf("%w: distance %d with %d bytes produced", ErrInvalidBackref, distance, w.size)
	}
	return w.buf[(w.pos-distance+windowSize)%windowSize], nil
}

// Length codes 257-285: base lengths and extra bit counts
// (RFC 1951 §3.2.5).
var lengthBase = [29]int{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
	35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258,
}

var lengthExtra = [29]int{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
	3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0,
}

// Distance codes 0-29.
var distBase = [30]int{
	1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
	257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577,
}

var distExtra = [30]int{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
	7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
}

// Order in which code lengths for the code-length alphabet are
// transmitted in a dynamic block (RFC 1951 §3.2.7).
var codeLengthOrder = [19]int{
	16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15,
}

// inflate decompresses a complete DEFLATE stream. The decode runs block
// by block until a block marked final has been consumed; any fault from
// the bit reader surfaces as an ordinary error.
func inflate(data []byte) (out []byte, err error) {
	defer recoverFault(&err)

	r := newBitReader(data)
	var window slidingWindow
	out = make([]byte, 0, len(data)*4)

	for {
		final := r.ReadBit() == 1
		blockType := r.ReadBits(2)

		switch blockType {
		case 0: // stored
			out, err = inflateStored(r, &window, out)
		case 1: // fixed Huffman
			lit, dist := fixedTrees()
			out, err = inflateCompressed(r, lit, dist, &window, out)
		case 2: // dynamic Huffman
			var lit, dist *huffmanTree
			lit, dist, err = readDynamicTrees(r)
			if err == nil {
				out, err = inflateCompressed(r, lit, dist, &window, out)
			}
		default:
			err = fmt.Errorf("%w: reserved block type 3", ErrInvalidHeader)
		}
		if err != nil {
			return nil, err
		}

		if final {
			return out, nil
		}
	}
}

// inflateStored handles a type-0 block: byte-align, then a 16-bit
// length and its one's complement precede the literal bytes.
func inflateStored(r *bitReader, window *slidingWindow, out []byte) ([]byte, error) {
	r.AlignToByte()

	length := r.ReadBits(16)
	nlength := r.ReadBits(16)
	if length != ^nlength&0xFFFF {
		return nil, fmt.Errorf("%w: stored block length %#04x does not match complement %#04x",
			ErrInvalidHeader, length, nlength)
	}

	chunk := make([]byte, length)
	r.ReadBytes(chunk)
	for _, b := range chunk {
		window.Put(b)
	}
	return append(out, chunk...), nil
}

// readDynamicTrees reads the dynamic block header: the code-length code,
// then the run-length-encoded length arrays for the literal/length and
// distance alphabets (RFC 1951 §3.2.7).
func readDynamicTrees(r *bitReader) (*huffmanTree, *huffmanTree, error) {
	hlit := int(r.ReadBits(5)) + 257
	hdist := int(r.ReadBits(5)) + 1
	hclen := int(r.ReadBits(4)) + 4

	clLengths := make([]int, 19)
	for i := 0; i < hclen; i++ {
		clLengths[codeLengthOrder[i]] = int(r.ReadBits(3))
	}

	clTree, err := buildHuffmanTree(clLengths)
	if err != nil {
		return nil, nil, fmt.Errorf("code-length code: %w", err)
	}

	// The literal/length and distance length arrays share one RLE
	// stream: repeats may even cross the boundary between them.
	lengths := make([]int, hlit+hdist)
	for i := 0; i < len(lengths); {
		sym, err := clTree.DecodeSymbol(r)
		if err != nil {
			return nil, nil, fmt.Errorf("code-length symbol: %w", err)
		}

		switch {
		case sym < 16:
			lengths[i] = sym
			i++
		case sym == 16:
			if i == 0 {
				return nil, nil, fmt.Errorf("%w: repeat with no previous length", ErrInvalidTable)
			}
			repeat := int(r.ReadBits(2)) + 3
			prev := lengths[i-1]
			for ; repeat > 0 && i < len(lengths); repeat-- {
				lengths[i] = prev
				i++
			}
			if repeat > 0 {
				return nil, nil, fmt.Errorf("%w: length repeat overruns alphabet", ErrInvalidTable)
			}
		case sym == 17, sym == 18:
			var repeat int
			if sym == 17 {
				repeat = int(r.ReadBits(3)) + 3
			} else {
				repeat = int(r.ReadBits(7)) + 11
			}
			if i+repeat > len(lengths) {
				return nil, nil, fmt.Errorf("%w: zero repeat overruns alphabet", ErrInvalidTable)
			}
			i += repeat
		default:
			return nil, nil, fmt.Errorf("%w: code-length symbol %d", ErrInvalidTable, sym)
		}
	}

	lit, err := buildHuffmanTree(lengths[:hlit])
	if err != nil {
		return nil, nil, fmt.Errorf("literal/length code: %w", err)
	}
	dist, err := buildHuffmanTree(lengths[hlit:])
	if err != nil {
		return nil, nil, fmt.Errorf("distance code: %w", err)
	}
	return lit, dist, nil
}

// inflateCompressed runs the shared symbol loop for fixed and dynamic
// blocks: literals below 256, end-of-block at 256, and length codes
// above it followed by a distance code. Back-reference copies go byte
// by byte so overlapping copies replicate correctly.
func inflateCompressed(r *bitReader, lit, dist *huffmanTree, window *slidingWindow, out []byte) ([]byte, error) {
	for {
		sym, err := lit.DecodeSymbol(r)
		if err != nil {
			return nil, fmt.Errorf("literal/length: %w", err)
		}

		switch {
		case sym < 256:
			b := byte(sym)
			window.Put(b)
			out = append(out, b)

		case sym == 256:
			return out, nil

		default:
			if sym > 285 {
				return nil, fmt.Errorf("%w: literal/length symbol %d", ErrInvalidCode, sym)
			}
			length := lengthBase[sym-257]
			if extra := lengthExtra[sym-257]; extra > 0 {
				length += int(r.ReadBits(extra))
			}

			dsym, err := dist.DecodeSymbol(r)
			if err != nil {
				return nil, fmt.Errorf("distance: %w", err)
			}
			if dsym > 29 {
				return nil, fmt.Errorf("%w: distance symbol %d", ErrInvalidCode, dsym)
			}
			distance := distBase[dsym]
			if extra := distExtra[dsym]; extra > 0 {
				distance += int(r.ReadBits(extra))
			}

			for j := 0; j < length; j++ {
				b, err := window.At(distance)
				if err != nil {
					return nil, err
				}
				window.Put(b)
				out = append(out, b)
			}
		}
	}
}
