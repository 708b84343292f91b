package imagecodec

import (
	"fmt"
	"image"
	"image/color"
	"io"
)

// Adapters exposing the PNG and JPEG decoders through the standard
// image package. Decoding still happens entirely in this module; these
// wrappers only translate the result.

// toImage converts an ImageBuffer to a stdlib image value.
func (b *ImageBuffer) toImage() image.Image {
	rect := image.Rect(0, 0, b.Width, b.Height)

	switch b.Channels {
	case 4:
		img := image.NewNRGBA(rect)
		copy(img.Pix, b.Pix)
		return img
	default:
		img := image.NewNRGBA(rect)
		for i := 0; i < b.Width*b.Height; i++ {
			img.Pix[i*4+0] = b.Pix[i*b.Channels+0]
			img.Pix[i*4+1] = b.Pix[i*b.Channels+1]
			img.Pix[i*4+2] = b.Pix[i*b.Channels+2]
			img.Pix[i*4+3] = 255
		}
		return img
	}
}

// DecodePNG decodes a PNG stream into a stdlib image.
func DecodePNG(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	buf, err := decodePNG(data, nil)
	if err != nil {
		return nil, err
	}
	return buf.toImage(), nil
}

// DecodePNGConfig returns PNG dimensions and color model without a full
// decode.
func DecodePNGConfig(r io.Reader) (image.Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return image.Config{}, err
	}
	if len(data) < 8 || [8]byte(data[:8]) != pngSignature {
		return image.Config{}, fmt.Errorf("png: %w", ErrInvalidSignature)
	}
	chunk, _, err := readPNGChunk(data, 8)
	if err != nil {
		return image.Config{}, err
	}
	if chunk.kind != "IHDR" {
		return image.Config{}, fmt.Errorf("%w: first chunk %q", ErrInvalidHeader, chunk.kind)
	}
	h, err := parseIHDR(chunk.data)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{Width: h.width, Height: h.height, ColorModel: color.NRGBAModel}, nil
}

// DecodeJPEG decodes a baseline JPEG stream into a stdlib image.
func DecodeJPEG(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	buf, err := decodeJPEG(data, nil)
	if err != nil {
		return nil, err
	}
	return buf.toImage(), nil
}

// DecodeJPEGConfig parses markers up to the frame header and returns
// the image dimensions.
func DecodeJPEGConfig(r io.Reader) (image.Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return image.Config{}, err
	}

	d := &jpegDecoder{data: data}
	marker, err := d.nextMarker()
	if err != nil {
		return image.Config{}, err
	}
	if marker != markerSOI {
		return image.Config{}, fmt.Errorf("jpeg: %w", ErrInvalidSignature)
	}
	for {
		marker, err = d.nextMarker()
		if err != nil {
			return image.Config{}, err
		}
		switch marker {
		case markerSOF0:
			if err := d.parseSOF(); err != nil {
				return image.Config{}, err
			}
			return image.Config{Width: d.width, Height: d.height, ColorModel: color.NRGBAModel}, nil
		case markerSOF1, markerSOF2:
			return image.Config{}, fmt.Errorf("%w: progressive or extended sequential JPEG", ErrUnsupportedFormat)
		case markerEOI, markerSOS:
			return image.Config{}, fmt.Errorf("%w: missing frame header", ErrInvalidHeader)
		default:
			if _, err := d.segment(); err != nil {
				return image.Config{}, err
			}
		}
	}
}

// Register with the image package so image.Decode handles both formats.
func init() {
	image.RegisterFormat("png", "\x89PNG\r\n\x1a\n", DecodePNG, DecodePNGConfig)
	image.RegisterFormat("jpeg", "\xff\xd8", DecodeJPEG, DecodeJPEGConfig)
}
