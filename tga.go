package imagecodec

import (
	"encoding/binary"
	"fmt"
)

// TGA loading: uncompressed true-color only (image type 2). Rows are
// copied straight out of the file with BGR(A) reordered to RGB(A).

const tgaHeaderSize = 18

func decodeTGA(data []byte, opts *DecodeOptions) (*ImageBuffer, error) {
	if len(data) < tgaHeaderSize {
		return nil, fmt.Errorf("tga header: %w", ErrTruncatedData)
	}

	idLength := int(data[0])
	colorMapType := int(data[1])
	imageType := int(data[2])
	width := int(binary.LittleEndian.Uint16(data[12:14]))
	height := int(binary.LittleEndian.Uint16(data[14:16]))
	depth := int(data[16])
	descriptor := data[17]

	if imageType != 2 || colorMapType != 0 {
		return nil, fmt.Errorf("%w: tga image type %d", ErrUnsupportedFormat, imageType)
	}
	if depth != 24 && depth != 32 {
		return nil, fmt.Errorf("%w: tga depth %d", ErrUnsupportedFormat, depth)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: tga dimensions %dx%d", ErrInvalidHeader, width, height)
	}

	channels := depth / 8
	pixelStart := tgaHeaderSize + idLength
	if pixelStart+width*height*channels > len(data) {
		return nil, fmt.Errorf("tga pixel data: %w", ErrTruncatedData)
	}

	// Bit 5 of the descriptor: origin at top-left; otherwise bottom-up.
	topDown := descriptor&0x20 != 0

	img := &ImageBuffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]byte, width*height*channels),
	}

	for y := 0; y < height; y++ {
		srcRow := y
		if !topDown {
			srcRow = height - 1 - y
		}
		src := data[pixelStart+srcRow*width*channels:]
		dst := img.Pix[y*width*channels:]
		for x := 0; x < width; x++ {
			// TGA stores BGR(A).
			dst[x*channels+0] = src[x*channels+2]
			dst[x*channels+1] = src[x*channels+1]
			dst[x*channels+2] = src[x*channels+0]
			if channels == 4 {
				dst[x*channels+3] = src[x*channels+3]
			}
		}
	}

	opts.logger().Debug().Int("width", width).Int("height", height).Int("depth", depth).Msg("tga decoded")

	return img, nil
}
