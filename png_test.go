package imagecodec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngChunkBytes serializes one chunk with a correct CRC.
func pngChunkBytes(kind string, data []byte) []byte {
	out := make([]byte, 4, 12+len(data))
	binary.BigEndian.PutUint32(out, uint32(len(data)))
	out = append(out, kind...)
	out = append(out, data...)
	var crc [4]byte
	binary.BigEndian.PutUint32(crc[:], crc32Checksum(out[4:]))
	return append(out, crc[:]...)
}

func pngIHDR(width, height, bitDepth, colorType int) []byte {
	data := make([]byte, 13)
	binary.BigEndian.PutUint32(data[0:4], uint32(width))
	binary.BigEndian.PutUint32(data[4:8], uint32(height))
	data[8] = byte(bitDepth)
	data[9] = byte(colorType)
	return pngChunkBytes("IHDR", data)
}

// buildPNG assembles a complete file around raw (unfiltered-with-
// filter-bytes) scanline data, compressed as a stored zlib stream.
func buildPNG(ihdr []byte, extra []byte, raw []byte) []byte {
	out := append([]byte{}, pngSignature[:]...)
	out = append(out, ihdr...)
	out = append(out, extra...)
	idat := zlibStream(storedBlock(raw, 1), raw)
	out = append(out, pngChunkBytes("IDAT", idat)...)
	out = append(out, pngChunkBytes("IEND", nil)...)
	return out
}

func TestDecodePNG_OnePixelTruecolor(t *testing.T) {
	data := buildPNG(pngIHDR(1, 1, 8, pngTruecolor), nil, []byte{0, 255, 0, 0})

	img, err := decodePNG(data, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, img.Width)
	assert.Equal(t, 1, img.Height)
	assert.Equal(t, 3, img.Channels)
	assert.Equal(t, []byte{255, 0, 0}, img.Pix)
}

func TestDecodePNG_TruecolorAlpha(t *testing.T) {
	raw := []byte{
		0, 10, 20, 30, 40, 50, 60, 70, 80, // row 0, filter None
		0, 1, 2, 3, 4, 5, 6, 7, 8, // row 1
	}
	data := buildPNG(pngIHDR(2, 2, 8, pngTruecolorAlpha), nil, raw)

	img, err := decodePNG(data, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Channels)
	assert.Equal(t, []byte{10, 20, 30, 40, 50, 60, 70, 80, 1, 2, 3, 4, 5, 6, 7, 8}, img.Pix)
}

func TestDecodePNG_GrayscaleReplication(t *testing.T) {
	// 1-bit grayscale, 8 pixels in one byte: 10110001.
	data := buildPNG(pngIHDR(8, 1, 1, pngGrayscale), nil, []byte{0, 0xB1})

	img, err := decodePNG(data, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Channels)

	want := []byte{}
	for _, bit := range []byte{1, 0, 1, 1, 0, 0, 0, 1} {
		g := byte(0)
		if bit == 1 {
			g = 255
		}
		want = append(want, g, g, g)
	}
	assert.Equal(t, want, img.Pix)
}

func TestDecodePNG_Indexed(t *testing.T) {
	palette := pngChunkBytes("PLTE", []byte{
		1, 2, 3,
		250, 251, 252,
	})
	// 4-bit indices: pixels 1, 0 packed MSB-first into one byte.
	data := buildPNG(pngIHDR(2, 1, 4, pngIndexed), palette, []byte{0, 0x10})

	img, err := decodePNG(data, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{250, 251, 252, 1, 2, 3}, img.Pix)
}

func TestDecodePNG_IndexOutOfRange(t *testing.T) {
	palette := pngChunkBytes("PLTE", []byte{1, 2, 3})
	data := buildPNG(pngIHDR(1, 1, 8, pngIndexed), palette, []byte{0, 5})

	_, err := decodePNG(data, nil)
	assert.ErrorIs(t, err, ErrInvalidPalette)
}

func TestDecodePNG_Rejections(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{
			name: "bad signature",
			data: []byte("not a png file at all"),
			want: ErrInvalidSignature,
		},
		{
			name: "sixteen bit depth",
			data: buildPNG(pngIHDR(1, 1, 16, pngTruecolor), nil, []byte{0, 0, 255, 0, 0, 0, 0}),
			want: ErrUnsupportedFormat,
		},
		{
			name: "illegal depth for truecolor",
			data: buildPNG(pngIHDR(1, 1, 4, pngTruecolor), nil, []byte{0, 0}),
			want: ErrInvalidHeader,
		},
		{
			name: "missing palette",
			data: buildPNG(pngIHDR(1, 1, 8, pngIndexed), nil, []byte{0, 0}),
			want: ErrInvalidHeader,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodePNG(tt.data, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodePNG_Interlaced(t *testing.T) {
	ihdrData := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdrData[0:4], 1)
	binary.BigEndian.PutUint32(ihdrData[4:8], 1)
	ihdrData[8] = 8
	ihdrData[9] = pngTruecolor
	ihdrData[12] = 1 // Adam7
	data := buildPNG(pngChunkBytes("IHDR", ihdrData), nil, []byte{0, 255, 0, 0})

	_, err := decodePNG(data, nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecodePNG_ChunkCRCMismatch(t *testing.T) {
	data := buildPNG(pngIHDR(1, 1, 8, pngTruecolor), nil, []byte{0, 255, 0, 0})
	data[len(data)-1] ^= 0xFF // corrupt the IEND CRC

	_, err := decodePNG(data, nil)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

// applyFilter is the encoder-side transform, used to verify that
// reconstruction inverts every filter type.
func applyFilter(filter int, row, prev []byte, unit int) []byte {
	out := make([]byte, len(row))
	for x := range row {
		var a, b, c int
		if x >= unit {
			a = int(row[x-unit])
		}
		if prev != nil {
			b = int(prev[x])
			if x >= unit {
				c = int(prev[x-unit])
			}
		}
		switch filter {
		case pngFilterNone:
			out[x] = row[x]
		case pngFilterSub:
			out[x] = row[x] - byte(a)
		case pngFilterUp:
			out[x] = row[x] - byte(b)
		case pngFilterAverage:
			out[x] = row[x] - byte((a+b)/2)
		case pngFilterPaeth:
			out[x] = row[x] - byte(paethPredictor(a, b, c))
		}
	}
	return out
}

func TestReconstructScanlines_FilterRoundTrip(t *testing.T) {
	h := &pngHeader{width: 4, height: 3, bitDepth: 8, colorType: pngTruecolor}
	unit := h.filterUnit()
	require.Equal(t, 3, unit)

	rows := [][]byte{
		{12, 250, 3, 80, 200, 1, 9, 33, 150, 7, 254, 66},
		{0, 0, 0, 255, 255, 255, 128, 64, 32, 16, 8, 4},
		{90, 91, 92, 93, 94, 95, 96, 97, 98, 99, 100, 101},
	}

	for filter := pngFilterNone; filter <= pngFilterPaeth; filter++ {
		t.Run([]string{"None", "Sub", "Up", "Average", "Paeth"}[filter], func(t *testing.T) {
			var raw []byte
			var prev []byte
			for _, row := range rows {
				raw = append(raw, byte(filter))
				raw = append(raw, applyFilter(filter, row, prev, unit)...)
				prev = row
			}

			got, err := reconstructScanlines(raw, h)
			require.NoError(t, err)
			for i, row := range rows {
				assert.Equal(t, row, got[i], "row %d", i)
			}
		})
	}
}

func TestReconstructScanlines_BadFilterType(t *testing.T) {
	h := &pngHeader{width: 1, height: 1, bitDepth: 8, colorType: pngGrayscale}
	_, err := reconstructScanlines([]byte{9, 0}, h)
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestPaethPredictor(t *testing.T) {
	tests := []struct {
		a, b, c, want int
	}{
		{0, 0, 0, 0},
		{10, 0, 0, 10}, // p=10, closest to a
		{0, 10, 0, 10}, // p=10, closest to b
		{10, 10, 10, 10},
		{100, 50, 75, 75},  // pc is smallest, c wins
		{50, 100, 75, 75},  // symmetric case
		{100, 50, 150, 50}, // p underflows to 0, b is nearest
		{255, 255, 0, 255}, // p overflows byte range; arithmetic is int
	}
	for _, tt := range tests {
		got := paethPredictor(tt.a, tt.b, tt.c)
		assert.Equal(t, tt.want, got, "paeth(%d,%d,%d)", tt.a, tt.b, tt.c)
	}
}
