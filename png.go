package imagecodec

import (
	"encoding/binary"
	"fmt"
)

// PNG container decoding: chunk stream, IHDR validation, zlib-wrapped
// IDAT, per-scanline filter reconstruction, and conversion to
// interleaved 8-bit output.

var pngSignature = [8]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// PNG color types.
const (
	pngGrayscale      = 0
	pngTruecolor      = 2
	pngIndexed        = 3
	pngGrayscaleAlpha = 4
	pngTruecolorAlpha = 6
)

// PNG filter types (one byte preceding each scanline).
const (
	pngFilterNone = iota
	pngFilterSub
	pngFilterUp
	pngFilterAverage
	pngFilterPaeth
)

type pngHeader struct {
	width       int
	height      int
	bitDepth    int
	colorType   int
	compression int
	filter      int
	interlace   int
}

type pngChunk struct {
	length int
	kind   string
	data   []byte
}

// channels returns the number of samples per pixel in the raw stream.
func (h *pngHeader) channels() int {
	switch h.colorType {
	case pngTruecolor:
		return 3
	case pngGrayscaleAlpha:
		return 2
	case pngTruecolorAlpha:
		return 4
	default: // grayscale, indexed
		return 1
	}
}

func decodePNG(data []byte, opts *DecodeOptions) (*ImageBuffer, error) {
	log := opts.logger()

	if len(data) < len(pngSignature) || [8]byte(data[:8]) != pngSignature {
		return nil, fmt.Errorf("png: %w", ErrInvalidSignature)
	}
	pos := 8

	var (
		header    *pngHeader
		palette   []byte // 3 bytes per entry
		idat      []byte
		sawIEND   bool
		chunkSeen int
	)

	for pos < len(data) && !sawIEND {
		chunk, next, err := readPNGChunk(data, pos)
		if err != nil {
			return nil, err
		}
		pos = next
		chunkSeen++

		log.Debug().Str("chunk", chunk.kind).Int("length", chunk.length).Msg("png chunk")

		switch chunk.kind {
		case "IHDR":
			if header != nil {
				return nil, fmt.Errorf("%w: duplicate IHDR", ErrInvalidHeader)
			}
			if chunkSeen != 1 {
				return nil, fmt.Errorf("%w: IHDR is not the first chunk", ErrInvalidHeader)
			}
			header, err = parseIHDR(chunk.data)
			if err != nil {
				return nil, err
			}
		case "PLTE":
			if len(chunk.data) == 0 || len(chunk.data)%3 != 0 || len(chunk.data) > 3*256 {
				return nil, fmt.Errorf("%w: PLTE length %d", ErrInvalidHeader, len(chunk.data))
			}
			palette = chunk.data
		case "IDAT":
			if header == nil {
				return nil, fmt.Errorf("%w: IDAT before IHDR", ErrInvalidHeader)
			}
			idat = append(idat, chunk.data...)
		case "IEND":
			sawIEND = true
		default:
			// Ancillary chunks (tEXt, tRNS, gAMA, ...) are skipped.
		}
	}

	if header == nil {
		return nil, fmt.Errorf("%w: missing IHDR", ErrInvalidHeader)
	}
	if len(idat) == 0 {
		return nil, fmt.Errorf("%w: missing IDAT", ErrInvalidHeader)
	}
	if header.colorType == pngIndexed && palette == nil {
		return nil, fmt.Errorf("%w: indexed image without PLTE", ErrInvalidHeader)
	}

	raw, err := zlibDecompress(idat)
	if err != nil {
		return nil, fmt.Errorf("png IDAT: %w", err)
	}

	rows, err := reconstructScanlines(raw, header)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("width", header.width).Int("height", header.height).
		Int("bitDepth", header.bitDepth).Int("colorType", header.colorType).
		Msg("png scanlines reconstructed")

	return convertPNGPixels(rows, header, palette)
}

// readPNGChunk parses one chunk at pos and verifies its CRC-32, which
// covers the type and data fields.
func readPNGChunk(data []byte, pos int) (*pngChunk, int, error) {
	if pos+8 > len(data) {
		return nil, 0, fmt.Errorf("png chunk header: %w", ErrTruncatedData)
	}
	length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	if length < 0 || pos+12+length > len(data) {
		return nil, 0, fmt.Errorf("png chunk body: %w", ErrTruncatedData)
	}

	kind := string(data[pos+4 : pos+8])
	body := data[pos+8 : pos+8+length]
	want := binary.BigEndian.Uint32(data[pos+8+length : pos+12+length])

	if got := crc32Checksum(data[pos+4 : pos+8+length]); got != want {
		return nil, 0, fmt.Errorf("%w: chunk %q crc %#08x, want %#08x", ErrChecksumMismatch, kind, got, want)
	}

	return &pngChunk{length: length, kind: kind, data: body}, pos + 12 + length, nil
}

func parseIHDR(data []byte) (*pngHeader, error) {
	if len(data) != 13 {
		return nil, fmt.Errorf("%w: IHDR length %d", ErrInvalidHeader, len(data))
	}

	h := &pngHeader{
		width:       int(binary.BigEndian.Uint32(data[0:4])),
		height:      int(binary.BigEndian.Uint32(data[4:8])),
		bitDepth:    int(data[8]),
		colorType:   int(data[9]),
		compression: int(data[10]),
		filter:      int(data[11]),
		interlace:   int(data[12]),
	}

	if h.width <= 0 || h.height <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidHeader, h.width, h.height)
	}
	if h.compression != 0 {
		return nil, fmt.Errorf("%w: compression method %d", ErrInvalidHeader, h.compression)
	}
	if h.filter != 0 {
		return nil, fmt.Errorf("%w: filter method %d", ErrInvalidHeader, h.filter)
	}
	if h.interlace != 0 {
		return nil, fmt.Errorf("%w: interlaced PNG", ErrUnsupportedFormat)
	}

	// Legal depth per color type. 16-bit channels are legal PNG but not
	// supported here.
	legal := map[int][]int{
		pngGrayscale:      {1, 2, 4, 8, 16},
		pngTruecolor:      {8, 16},
		pngIndexed:        {1, 2, 4, 8},
		pngGrayscaleAlpha: {8, 16},
		pngTruecolorAlpha: {8, 16},
	}
	depths, ok := legal[h.colorType]
	if !ok {
		return nil, fmt.Errorf("%w: color type %d", ErrInvalidHeader, h.colorType)
	}
	found := false
	for _, d := range depths {
		if d == h.bitDepth {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: bit depth %d for color type %d", ErrInvalidHeader, h.bitDepth, h.colorType)
	}
	if h.bitDepth == 16 {
		return nil, fmt.Errorf("%w: 16-bit channels", ErrUnsupportedFormat)
	}

	return h, nil
}

// rowBytes is the raw byte length of one scanline, excluding the
// leading filter byte.
func (h *pngHeader) rowBytes() int {
	return (h.width*h.channels()*h.bitDepth + 7) / 8
}

// filterUnit is the byte distance to the "left" sample used by the
// Sub, Average, and Paeth filters. For sub-byte depths it is 1.
func (h *pngHeader) filterUnit() int {
	unit := h.channels() * h.bitDepth / 8
	if unit < 1 {
		unit = 1
	}
	return unit
}

// paethPredictor picks whichever of a (left), b (above), c (above-left)
// is closest to a+b-c, breaking ties in the order a, b, c.
func paethPredictor(a, b, c int) int {
	p := a + b - c
	pa := abs(p - a)
	pb := abs(p - b)
	pc := abs(p - c)
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// reconstructScanlines undoes the per-row predictive filters in place
// and returns one slice per row.
func reconstructScanlines(raw []byte, h *pngHeader) ([][]byte, error) {
	rowBytes := h.rowBytes()
	unit := h.filterUnit()

	if len(raw) != h.height*(rowBytes+1) {
		return nil, fmt.Errorf("%w: %d bytes of scanline data, want %d",
			ErrTruncatedData, len(raw), h.height*(rowBytes+1))
	}

	rows := make([][]byte, h.height)
	var prev []byte

	for y := 0; y < h.height; y++ {
		line := raw[y*(rowBytes+1) : (y+1)*(rowBytes+1)]
		filter := line[0]
		row := line[1:]

		switch filter {
		case pngFilterNone:
		case pngFilterSub:
			for x := unit; x < rowBytes; x++ {
				row[x] += row[x-unit]
			}
		case pngFilterUp:
			if prev != nil {
				for x := 0; x < rowBytes; x++ {
					row[x] += prev[x]
				}
			}
		case pngFilterAverage:
			for x := 0; x < rowBytes; x++ {
				var a, b int
				if x >= unit {
					a = int(row[x-unit])
				}
				if prev != nil {
					b = int(prev[x])
				}
				row[x] += byte((a + b) / 2)
			}
		case pngFilterPaeth:
			for x := 0; x < rowBytes; x++ {
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
				row[x] += byte(paethPredictor(a, b, c))
			}
		default:
			return nil, fmt.Errorf("%w: scanline filter type %d", ErrInvalidHeader, filter)
		}

		rows[y] = row
		prev = row
	}

	return rows, nil
}

// unpackSamples expands a reconstructed row into one int per sample,
// MSB-first packing for depths below 8.
func unpackSamples(row []byte, h *pngHeader) []int {
	n := h.width * h.channels()
	samples := make([]int, n)

	switch h.bitDepth {
	case 8:
		for i := 0; i < n; i++ {
			samples[i] = int(row[i])
		}
	default: // 1, 2, 4
		perByte := 8 / h.bitDepth
		mask := (1 << h.bitDepth) - 1
		for i := 0; i < n; i++ {
			b := row[i/perByte]
			shift := 8 - h.bitDepth*(i%perByte+1)
			samples[i] = int(b>>shift) & mask
		}
	}
	return samples
}

// scaleSample maps an n-bit sample to 8 bits.
func scaleSample(v, bitDepth int) byte {
	if bitDepth == 8 {
		return byte(v)
	}
	maxVal := (1 << bitDepth) - 1
	return byte((v*255 + maxVal/2) / maxVal)
}

// convertPNGPixels produces the interleaved output buffer: truecolor
// passes through, grayscale replicates into R,G,B, indexed resolves
// through the palette, and alpha variants keep their alpha channel.
func convertPNGPixels(rows [][]byte, h *pngHeader, palette []byte) (*ImageBuffer, error) {
	var outChannels int
	switch h.colorType {
	case pngTruecolor, pngGrayscale, pngIndexed:
		outChannels = 3
	case pngTruecolorAlpha, pngGrayscaleAlpha:
		outChannels = 4
	}

	img := &ImageBuffer{
		Width:    h.width,
		Height:   h.height,
		Channels: outChannels,
		Pix:      make([]byte, h.width*h.height*outChannels),
	}

	paletteEntries := len(palette) / 3

	for y, row := range rows {
		samples := unpackSamples(row, h)
		out := img.Pix[y*h.width*outChannels:]

		for x := 0; x < h.width; x++ {
			dst := out[x*outChannels:]

			switch h.colorType {
			case pngTruecolor:
				dst[0] = row[x*3]
				dst[1] = row[x*3+1]
				dst[2] = row[x*3+2]
			case pngTruecolorAlpha:
				dst[0] = row[x*4]
				dst[1] = row[x*4+1]
				dst[2] = row[x*4+2]
				dst[3] = row[x*4+3]
			case pngGrayscale:
				g := scaleSample(samples[x], h.bitDepth)
				dst[0], dst[1], dst[2] = g, g, g
			case pngGrayscaleAlpha:
				g := row[x*2]
				dst[0], dst[1], dst[2] = g, g, g
				dst[3] = row[x*2+1]
			case pngIndexed:
				idx := samples[x]
				if idx >= paletteEntries {
					return nil, fmt.Errorf("%w: index %d with %d palette entries",
						ErrInvalidPalette, idx, paletteEntries)
				}
				dst[0] = palette[idx*3]
				dst[1] = palette[idx*3+1]
				dst[2] = palette[idx*3+2]
			}
		}
	}

	return img, nil
}
