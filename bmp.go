package imagecodec

import (
	"encoding/binary"
	"fmt"
)

// BMP loading: uncompressed (BI_RGB) 24- and 32-bit Windows bitmaps.
// Rows are stored bottom-up and padded to 4-byte boundaries.

func decodeBMP(data []byte, opts *DecodeOptions) (*ImageBuffer, error) {
	if len(data) < 54 {
		return nil, fmt.Errorf("bmp header: %w", ErrTruncatedData)
	}
	if data[0] != 'B' || data[1] != 'M' {
		return nil, fmt.Errorf("bmp: %w", ErrInvalidSignature)
	}

	pixelOffset := int(binary.LittleEndian.Uint32(data[10:14]))
	headerSize := int(binary.LittleEndian.Uint32(data[14:18]))
	if headerSize < 40 {
		return nil, fmt.Errorf("%w: bmp info header size %d", ErrUnsupportedFormat, headerSize)
	}

	width := int(int32(binary.LittleEndian.Uint32(data[18:22])))
	height := int(int32(binary.LittleEndian.Uint32(data[22:26])))
	planes := int(binary.LittleEndian.Uint16(data[26:28]))
	depth := int(binary.LittleEndian.Uint16(data[28:30]))
	compression := int(binary.LittleEndian.Uint32(data[30:34]))

	topDown := false
	if height < 0 {
		topDown = true
		height = -height
	}

	if planes != 1 || compression != 0 {
		return nil, fmt.Errorf("%w: bmp compression %d", ErrUnsupportedFormat, compression)
	}
	if depth != 24 && depth != 32 {
		return nil, fmt.Errorf("%w: bmp depth %d", ErrUnsupportedFormat, depth)
	}
	if width <= 0 || height == 0 {
		return nil, fmt.Errorf("%w: bmp dimensions %dx%d", ErrInvalidHeader, width, height)
	}

	channels := depth / 8
	srcStride := (width*channels + 3) &^ 3
	if pixelOffset < 0 || pixelOffset+srcStride*height > len(data) {
		return nil, fmt.Errorf("bmp pixel data: %w", ErrTruncatedData)
	}

	img := &ImageBuffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]byte, width*height*channels),
	}

	for y := 0; y < height; y++ {
		srcRow := height - 1 - y
		if topDown {
			srcRow = y
		}
		src := data[pixelOffset+srcRow*srcStride:]
		dst := img.Pix[y*width*channels:]
		for x := 0; x < width; x++ {
			// BMP stores BGR(A).
			dst[x*channels+0] = src[x*channels+2]
			dst[x*channels+1] = src[x*channels+1]
			dst[x*channels+2] = src[x*channels+0]
			if channels == 4 {
				dst[x*channels+3] = src[x*channels+3]
			}
		}
	}

	opts.logger().Debug().Int("width", width).Int("height", height).Int("depth", depth).Msg("bmp decoded")

	return img, nil
}
