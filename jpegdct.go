package imagecodec

import (
	"fmt"
	"math"
	"sync"
)

// Dequantization and the inverse DCT for 8x8 JPEG blocks.

// zigzag maps the stream order of coefficients to their natural
// row-major position in the 8x8 block.
var zigzag = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

// quantTable holds 64 quantization coefficients in zigzag order.
// Entries must be non-zero, checked at table-load time.
type quantTable struct {
	precision int // 0 = 8-bit entries, 1 = 16-bit
	values    [64]int32
	defined   bool
}

// dequantize multiplies each zigzag coefficient by the matching table
// entry, clamping products to the signed 16-bit range rather than
// letting them wrap.
func dequantize(block *[64]int32, table *quantTable) error {
	if !table.defined {
		return fmt.Errorf("%w: quantization table not defined", ErrInvalidTable)
	}
	for i := range block {
		v := block[i] * table.values[i]
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		block[i] = v
	}
	return nil
}

// Cosine basis for the 1D IDCT: idctBasis[x][u] = c(u)/2 *
// cos((2x+1)u*pi/16), built once and read-only afterwards.
var (
	idctOnce  sync.Once
	idctBasis [8][8]float64
)

func idctInit() {
	idctOnce.Do(func() {
		for x := 0; x < 8; x++ {
			for u := 0; u < 8; u++ {
				c := 1.0
				if u == 0 {
					c = math.Sqrt2 / 2
				}
				idctBasis[x][u] = c / 2 * math.Cos(float64(2*x+1)*float64(u)*math.Pi/16)
			}
		}
	})
}

// idctBlock un-zigzags the 64 dequantized coefficients, applies the
// separable 2D inverse DCT (rows then columns), adds the +128 level
// shift, and writes round-to-nearest clamped samples into out at
// outOffset with the given row stride. This is the only place values
// leave signed DCT space.
func idctBlock(block *[64]int32, out []byte, outOffset, stride int) {
	idctInit()

	var m [8][8]float64
	for i, v := range block {
		pos := zigzag[i]
		m[pos/8][pos%8] = float64(v)
	}

	// 1D IDCT over each row.
	var tmp [8][8]float64
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			var sum float64
			for u := 0; u < 8; u++ {
				sum += idctBasis[x][u] * m[y][u]
			}
			tmp[y][x] = sum
		}
	}

	// 1D IDCT over each column of the row result.
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			var sum float64
			for v := 0; v < 8; v++ {
				sum += idctBasis[y][v] * tmp[v][x]
			}
			out[outOffset+y*stride+x] = clampRound(sum + 128)
		}
	}
}

// clampRound converts a reconstructed sample to an unsigned pixel
// intensity, rounding to nearest and clamping to [0, 255].
func clampRound(v float64) byte {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v + 0.5)
}
