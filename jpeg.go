package imagecodec

import (
	"encoding/binary"
	"fmt"
)

// Baseline JPEG decoding: marker loop, table loading, and the
// entropy-coded scan across the MCU grid.

// JPEG markers (second byte; all markers are 0xFF followed by these).
const (
	markerSOF0 = 0xC0 // baseline DCT
	markerSOF1 = 0xC1 // extended sequential (unsupported)
	markerSOF2 = 0xC2 // progressive (unsupported)
	markerDHT  = 0xC4
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerDQT  = 0xDB
	markerDRI  = 0xDD
	markerRST0 = 0xD0
	markerRST7 = 0xD7
	markerAPP0 = 0xE0
	markerCOM  = 0xFE
)

const maxJPEGComponents = 3

type jpegComponent struct {
	id      int
	ssx     int // horizontal sampling factor
	ssy     int // vertical sampling factor
	quantID int
	dcTab   int
	acTab   int

	width  int // plane dimensions (component resolution)
	height int
	stride int
	pixels []byte // decoded plane, one byte per sample

	dcPred int32
}

type jpegDecoder struct {
	data []byte
	pos  int
	opts *DecodeOptions

	width  int
	height int
	ncomp  int
	comp   [maxJPEGComponents]jpegComponent

	quant  [4]quantTable
	dcHuff [4]*jpegHuffmanTable
	acHuff [4]*jpegHuffmanTable

	restartInterval int

	// MCU geometry, derived from the frame header.
	hMax, vMax   int
	mcuW, mcuH   int
	mcusX, mcusY int

	frameSeen bool
	scanDone  bool
}

func decodeJPEG(data []byte, opts *DecodeOptions) (*ImageBuffer, error) {
	d := &jpegDecoder{data: data, opts: opts}
	if err := d.parse(); err != nil {
		return nil, err
	}
	return d.assemble()
}

// parse runs the marker loop from SOI to EOI.
func (d *jpegDecoder) parse() error {
	log := d.opts.logger()

	marker, err := d.nextMarker()
	if err != nil {
		return err
	}
	if marker != markerSOI {
		return fmt.Errorf("jpeg: %w", ErrInvalidSignature)
	}

	for {
		marker, err = d.nextMarker()
		if err != nil {
			return err
		}

		log.Debug().Uint8("marker", marker).Int("pos", d.pos).Msg("jpeg marker")

		switch marker {
		case markerEOI:
			if !d.scanDone {
				return fmt.Errorf("%w: EOI before scan data", ErrInvalidHeader)
			}
			return nil

		case markerSOF0:
			if err := d.parseSOF(); err != nil {
				return err
			}

		case markerSOF1, markerSOF2:
			return fmt.Errorf("%w: progressive or extended sequential JPEG", ErrUnsupportedFormat)

		case markerDHT:
			if err := d.parseDHT(); err != nil {
				return err
			}

		case markerDQT:
			if err := d.parseDQT(); err != nil {
				return err
			}

		case markerDRI:
			seg, err := d.segment()
			if err != nil {
				return err
			}
			if len(seg) != 2 {
				return fmt.Errorf("%w: DRI length", ErrInvalidHeader)
			}
			d.restartInterval = int(binary.BigEndian.Uint16(seg))
			log.Debug().Int("interval", d.restartInterval).Msg("restart interval")

		case markerSOS:
			if err := d.parseSOS(); err != nil {
				return err
			}
			if err := d.decodeScan(); err != nil {
				return err
			}
			d.scanDone = true

		default:
			switch {
			case marker == markerSOI || (marker >= markerRST0 && marker <= markerRST7):
				return fmt.Errorf("%w: unexpected marker %#02x", ErrInvalidMarker, marker)
			case marker >= 0xC1 && marker <= 0xCF && marker != markerDHT:
				// Any other SOFn (arithmetic, lossless, ...) is a frame
				// type this decoder does not handle.
				return fmt.Errorf("%w: SOF marker %#02x", ErrUnsupportedFormat, marker)
			default:
				// APPn, COM, and anything unknown: skip by declared length.
				if _, err := d.segment(); err != nil {
					return err
				}
			}
		}
	}
}

// nextMarker reads the next 0xFF-prefixed marker, tolerating fill bytes.
func (d *jpegDecoder) nextMarker() (byte, error) {
	if d.pos+2 > len(d.data) {
		return 0, fmt.Errorf("jpeg marker: %w", ErrTruncatedData)
	}
	if d.data[d.pos] != 0xFF {
		return 0, fmt.Errorf("%w: byte %#02x where marker expected", ErrInvalidMarker, d.data[d.pos])
	}
	d.pos++
	// 0xFF fill bytes may pad before the marker code.
	for d.pos < len(d.data) && d.data[d.pos] == 0xFF {
		d.pos++
	}
	if d.pos >= len(d.data) {
		return 0, fmt.Errorf("jpeg marker: %w", ErrTruncatedData)
	}
	m := d.data[d.pos]
	d.pos++
	return m, nil
}

// segment reads a length-prefixed marker payload. The 2-byte length
// field counts itself.
func (d *jpegDecoder) segment() ([]byte, error) {
	if d.pos+2 > len(d.data) {
		return nil, fmt.Errorf("jpeg segment: %w", ErrTruncatedData)
	}
	length := int(binary.BigEndian.Uint16(d.data[d.pos:]))
	if length < 2 || d.pos+length > len(d.data) {
		return nil, fmt.Errorf("jpeg segment: %w", ErrTruncatedData)
	}
	seg := d.data[d.pos+2 : d.pos+length]
	d.pos += length
	return seg, nil
}

func (d *jpegDecoder) parseSOF() error {
	seg, err := d.segment()
	if err != nil {
		return err
	}
	if d.frameSeen {
		return fmt.Errorf("%w: multiple frame headers", ErrInvalidHeader)
	}
	if len(seg) < 6 {
		return fmt.Errorf("%w: SOF length", ErrInvalidHeader)
	}

	precision := int(seg[0])
	if precision != 8 {
		return fmt.Errorf("%w: %d-bit sample precision", ErrUnsupportedFormat, precision)
	}
	d.height = int(binary.BigEndian.Uint16(seg[1:3]))
	d.width = int(binary.BigEndian.Uint16(seg[3:5]))
	d.ncomp = int(seg[5])

	if d.width == 0 || d.height == 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidHeader, d.width, d.height)
	}
	if d.ncomp != 1 && d.ncomp != 3 {
		return fmt.Errorf("%w: %d components", ErrUnsupportedFormat, d.ncomp)
	}
	if len(seg) != 6+3*d.ncomp {
		return fmt.Errorf("%w: SOF length", ErrInvalidHeader)
	}

	d.hMax, d.vMax = 1, 1
	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]
		c.id = int(seg[6+3*i])
		c.ssx = int(seg[7+3*i] >> 4)
		c.ssy = int(seg[7+3*i] & 0x0F)
		c.quantID = int(seg[8+3*i])

		if d.ncomp == 1 {
			// A single-component scan is never interleaved; sampling
			// factors do not apply.
			c.ssx, c.ssy = 1, 1
		}
		if c.ssx < 1 || c.ssx > 2 || c.ssy < 1 || c.ssy > 2 {
			return fmt.Errorf("%w: sampling factors %dx%d", ErrUnsupportedFormat, c.ssx, c.ssy)
		}
		if c.quantID > 3 {
			return fmt.Errorf("%w: quantization table id %d", ErrInvalidHeader, c.quantID)
		}
		if c.ssx > d.hMax {
			d.hMax = c.ssx
		}
		if c.ssy > d.vMax {
			d.vMax = c.ssy
		}
	}

	d.mcuW = 8 * d.hMax
	d.mcuH = 8 * d.vMax
	d.mcusX = (d.width + d.mcuW - 1) / d.mcuW
	d.mcusY = (d.height + d.mcuH - 1) / d.mcuH

	// Allocate component planes padded to whole MCUs.
	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]
		c.width = (d.width*c.ssx + d.hMax - 1) / d.hMax
		c.height = (d.height*c.ssy + d.vMax - 1) / d.vMax
		c.stride = d.mcusX * 8 * c.ssx
		c.pixels = make([]byte, c.stride*d.mcusY*8*c.ssy)
	}

	d.frameSeen = true

	d.opts.logger().Debug().
		Int("width", d.width).Int("height", d.height).
		Int("components", d.ncomp).
		Int("mcusX", d.mcusX).Int("mcusY", d.mcusY).
		Msg("jpeg frame header")

	return nil
}

func (d *jpegDecoder) parseDQT() error {
	seg, err := d.segment()
	if err != nil {
		return err
	}

	for len(seg) > 0 {
		precision := int(seg[0] >> 4)
		id := int(seg[0] & 0x0F)
		if id > 3 || precision > 1 {
			return fmt.Errorf("%w: DQT id %d precision %d", ErrInvalidHeader, id, precision)
		}

		entrySize := 1 + precision
		need := 1 + 64*entrySize
		if len(seg) < need {
			return fmt.Errorf("DQT: %w", ErrTruncatedData)
		}

		t := &d.quant[id]
		t.precision = precision
		for i := 0; i < 64; i++ {
			var v int32
			if precision == 0 {
				v = int32(seg[1+i])
			} else {
				v = int32(binary.BigEndian.Uint16(seg[1+2*i:]))
			}
			if v == 0 {
				return fmt.Errorf("%w: zero quantization value in table %d", ErrInvalidTable, id)
			}
			t.values[i] = v
		}
		t.defined = true
		seg = seg[need:]

		d.opts.logger().Debug().Int("table", id).Int("precision", precision).Msg("quantization table")
	}
	return nil
}

func (d *jpegDecoder) parseDHT() error {
	seg, err := d.segment()
	if err != nil {
		return err
	}

	for len(seg) > 0 {
		class := int(seg[0] >> 4) // 0 = DC, 1 = AC
		id := int(seg[0] & 0x0F)
		if class > 1 || id > 3 {
			return fmt.Errorf("%w: DHT class %d id %d", ErrInvalidHeader, class, id)
		}
		if len(seg) < 17 {
			return fmt.Errorf("DHT: %w", ErrTruncatedData)
		}

		var counts [jpegMaxCodeBits]int
		total := 0
		for i := 0; i < jpegMaxCodeBits; i++ {
			counts[i] = int(seg[1+i])
			total += counts[i]
		}
		if len(seg) < 17+total {
			return fmt.Errorf("DHT: %w", ErrTruncatedData)
		}

		table, err := buildJPEGHuffmanTable(&counts, seg[17:17+total])
		if err != nil {
			return fmt.Errorf("DHT class %d id %d: %w", class, id, err)
		}
		if class == 0 {
			d.dcHuff[id] = table
		} else {
			d.acHuff[id] = table
		}
		seg = seg[17+total:]

		d.opts.logger().Debug().Int("class", class).Int("table", id).Int("codes", total).Msg("huffman table")
	}
	return nil
}

// parseSOS reads the scan header and checks every referenced table was
// defined, so the scan loop never dereferences a missing table.
func (d *jpegDecoder) parseSOS() error {
	seg, err := d.segment()
	if err != nil {
		return err
	}
	if !d.frameSeen {
		return fmt.Errorf("%w: SOS before SOF", ErrInvalidHeader)
	}
	if len(seg) < 1 {
		return fmt.Errorf("SOS: %w", ErrTruncatedData)
	}

	n := int(seg[0])
	if n != d.ncomp {
		return fmt.Errorf("%w: scan has %d components, frame has %d", ErrUnsupportedFormat, n, d.ncomp)
	}
	if len(seg) != 1+2*n+3 {
		return fmt.Errorf("%w: SOS length", ErrInvalidHeader)
	}

	for i := 0; i < n; i++ {
		id := int(seg[1+2*i])
		sel := seg[2+2*i]

		c := d.componentByID(id)
		if c == nil {
			return fmt.Errorf("%w: scan component id %d not in frame", ErrInvalidHeader, id)
		}
		c.dcTab = int(sel >> 4)
		c.acTab = int(sel & 0x0F)
		if c.dcTab > 3 || c.acTab > 3 {
			return fmt.Errorf("%w: huffman table selector", ErrInvalidHeader)
		}

		if !d.quant[c.quantID].defined {
			return fmt.Errorf("%w: quantization table %d not defined", ErrInvalidTable, c.quantID)
		}
		if d.dcHuff[c.dcTab] == nil {
			return fmt.Errorf("%w: dc huffman table %d not defined", ErrInvalidTable, c.dcTab)
		}
		if d.acHuff[c.acTab] == nil {
			return fmt.Errorf("%w: ac huffman table %d not defined", ErrInvalidTable, c.acTab)
		}
	}

	// Spectral selection and successive approximation are fixed for
	// baseline: 0..63, Ah=Al=0.
	ss, se, a := seg[1+2*n], seg[2+2*n], seg[3+2*n]
	if ss != 0 || se != 63 || a != 0 {
		return fmt.Errorf("%w: spectral selection %d..%d/%d", ErrUnsupportedFormat, ss, se, a)
	}

	return nil
}

func (d *jpegDecoder) componentByID(id int) *jpegComponent {
	for i := 0; i < d.ncomp; i++ {
		if d.comp[i].id == id {
			return &d.comp[i]
		}
	}
	return nil
}

// decodeScan walks the MCU grid, entropy-decoding each component's
// blocks per its sampling factors and running dequantize + IDCT into
// the component planes. Faults from the bit reader surface here.
func (d *jpegDecoder) decodeScan() (err error) {
	defer recoverFault(&err)

	r := newJPEGBitReader(d.data, d.pos)

	for i := 0; i < d.ncomp; i++ {
		d.comp[i].dcPred = 0
	}

	mcu := 0
	nextRestart := byte(markerRST0)

	for my := 0; my < d.mcusY; my++ {
		for mx := 0; mx < d.mcusX; mx++ {
			if d.restartInterval > 0 && mcu > 0 && mcu%d.restartInterval == 0 {
				m, err := r.ConsumeMarker()
				if err != nil {
					return err
				}
				if m != nextRestart {
					return fmt.Errorf("%w: restart marker %#02x, want %#02x", ErrInvalidMarker, m, nextRestart)
				}
				nextRestart = markerRST0 + (nextRestart-markerRST0+1)%8

				// Predictors reset at every restart interval.
				for i := 0; i < d.ncomp; i++ {
					d.comp[i].dcPred = 0
				}
			}

			for i := 0; i < d.ncomp; i++ {
				c := &d.comp[i]
				for by := 0; by < c.ssy; by++ {
					for bx := 0; bx < c.ssx; bx++ {
						px := (mx*c.ssx + bx) * 8
						py := (my*c.ssy + by) * 8
						if err := d.decodeBlock(r, c, py*c.stride+px); err != nil {
							return err
						}
					}
				}
			}
			mcu++
		}
	}

	pos, err := r.Finish()
	if err != nil {
		return err
	}
	d.pos = pos
	return nil
}

// decodeBlock runs one 8x8 block through the whole per-block pipeline:
// Huffman decode, dequantize, IDCT into the component plane.
func (d *jpegDecoder) decodeBlock(r *jpegBitReader, c *jpegComponent, outOffset int) error {
	var block [64]int32

	dc, err := decodeDC(r, d.dcHuff[c.dcTab], &c.dcPred)
	if err != nil {
		return err
	}
	block[0] = dc

	if err := decodeAC(r, d.acHuff[c.acTab], &block); err != nil {
		return err
	}

	if err := dequantize(&block, &d.quant[c.quantID]); err != nil {
		return err
	}

	idctBlock(&block, c.pixels, outOffset, c.stride)
	return nil
}

// sampleAt reads a plane sample for an output pixel, upsampling
// subsampled chroma planes by nearest neighbor.
func (c *jpegComponent) sampleAt(x, y, imgW, imgH int) byte {
	sx := x
	sy := y
	if c.width < imgW {
		sx = x * c.width / imgW
	}
	if c.height < imgH {
		sy = y * c.height / imgH
	}
	if sx >= c.width {
		sx = c.width - 1
	}
	if sy >= c.height {
		sy = c.height - 1
	}
	return c.pixels[sy*c.stride+sx]
}

// assemble converts the decoded planes into interleaved RGB output.
// Grayscale replicates Y into all three channels.
func (d *jpegDecoder) assemble() (*ImageBuffer, error) {
	if !d.scanDone {
		return nil, fmt.Errorf("%w: no scan data", ErrInvalidHeader)
	}

	img := &ImageBuffer{
		Width:    d.width,
		Height:   d.height,
		Channels: 3,
		Pix:      make([]byte, d.width*d.height*3),
	}

	if d.ncomp == 1 {
		c := &d.comp[0]
		for y := 0; y < d.height; y++ {
			for x := 0; x < d.width; x++ {
				g := c.pixels[y*c.stride+x]
				i := (y*d.width + x) * 3
				img.Pix[i], img.Pix[i+1], img.Pix[i+2] = g, g, g
			}
		}
		return img, nil
	}

	convert := ycbcrToRGBFixed
	if d.opts != nil && d.opts.PreciseColor {
		convert = ycbcrToRGBFloat
	}

	yc, cb, cr := &d.comp[0], &d.comp[1], &d.comp[2]
	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			r, g, b := convert(
				yc.sampleAt(x, y, d.width, d.height),
				cb.sampleAt(x, y, d.width, d.height),
				cr.sampleAt(x, y, d.width, d.height),
			)
			i := (y*d.width + x) * 3
			img.Pix[i], img.Pix[i+1], img.Pix[i+2] = r, g, b
		}
	}
	return img, nil
}
