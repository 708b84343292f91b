package imagecodec

import (
	"fmt"
	"sync"
)

// Canonical Huffman decoding for the DEFLATE alphabets (RFC 1951
// §3.2.2). Codes are fully determined by the per-symbol code lengths:
// count symbols per length, derive the first code of each length by
// cumulative sum and left shift, then assign codes to symbols in
// symbol-index order.

const maxCodeBits = 15

// huffmanTree is a binary decode tree stored as an arena of nodes
// addressed by index. Node 0 is the root; child index 0 means the child
// is absent. Prefix-freeness is enforced by the canonical construction,
// not checked at decode time.
type huffmanTree struct {
	nodes []huffmanNode
}

type huffmanNode struct {
	children [2]int32 // arena indices; 0 = missing
	symbol   int32    // leaf symbol, -1 for internal nodes
}

// buildHuffmanTree constructs a decode tree from per-symbol code
// lengths. A length of 0 marks an unused symbol. At least one symbol
// must be used.
func buildHuffmanTree(lengths []int) (*huffmanTree, error) {
	var countPerLength [maxCodeBits + 1]int
	used := 0
	for sym, l := range lengths {
		if l < 0 || l > maxCodeBits {
			return nil, fmt.Errorf("%w: code length %d for symbol %d", ErrInvalidTable, l, sym)
		}
		if l > 0 {
			countPerLength[l]++
			used++
		}
	}
	if used == 0 {
		return nil, fmt.Errorf("%w: no symbols in code", ErrInvalidTable)
	}

	// First numeric code for each length (RFC 1951 §3.2.2).
	var nextCode [maxCodeBits + 1]uint32
	code := uint32(0)
	for l := 1; l <= maxCodeBits; l++ {
		code = (code + uint32(countPerLength[l-1])) << 1
		nextCode[l] = code
	}

	t := &huffmanTree{nodes: make([]huffmanNode, 1, 2*used)}
	t.nodes[0] = huffmanNode{symbol: -1}

	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		c := nextCode[l]
		nextCode[l]++
		if err := t.insert(c, l, int32(sym)); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// insert places symbol at the leaf addressed by the top length bits of
// code, MSB first.
func (t *huffmanTree) insert(code uint32, length int, symbol int32) error {
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
		return fmt.Errorf("%w: duplicate code %0*b", ErrInvalidTable, length, code)
	}
	t.nodes[node].symbol = symbol
	return nil
}

// DecodeSymbol walks the tree one bit at a time (0 = left, 1 = right)
// until it reaches a leaf and returns its symbol. A missing child means
// the bitstream holds a code outside the canonical assignment.
func (t *huffmanTree) DecodeSymbol(r *bitReader) (int, error) {
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

// Fixed trees per RFC 1951 §3.2.6. Built once on first use; read-only
// afterwards, safe for concurrent decodes.
var (
	fixedOnce     sync.Once
	fixedLiteral  *huffmanTree
	fixedDistance *huffmanTree
)

func fixedTrees() (*huffmanTree, *huffmanTree) {
	fixedOnce.Do(func() {
		litLengths := make([]int, 288)
		for i := range litLengths {
			switch {
			case i < 144:
				litLengths[i] = 8
			case i < 256:
				litLengths[i] = 9
			case i < 280:
				litLengths[i] = 7
			default:
				litLengths[i] = 8
			}
		}

		distLengths := make([]int, 32)
		for i := range distLengths {
			distLengths[i] = 5
		}

		// The fixed length tables cannot fail construction.
		fixedLiteral, _ = buildHuffmanTree(litLengths)
		fixedDistance, _ = buildHuffmanTree(distLengths)
	})
	return fixedLiteral, fixedDistance
}
