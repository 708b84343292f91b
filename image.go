package imagecodec

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ImageBuffer is the decoded result handed to the caller: interleaved
// 8-bit samples, Channels per pixel, rows top to bottom. The buffer is
// owned by the caller; its lifetime follows normal scope rules.
type ImageBuffer struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// Load reads and decodes an image file, dispatching on the file
// extension (.png, .jpg/.jpeg, .tga, .bmp).
func Load(path string) (*ImageBuffer, error) {
	return LoadWithOptions(path, nil)
}

// LoadWithOptions is Load with explicit decode options.
func LoadWithOptions(path string, opts *DecodeOptions) (*ImageBuffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("imagecodec: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return decodePNG(data, opts)
	case ".jpg", ".jpeg":
		return decodeJPEG(data, opts)
	case ".tga":
		return decodeTGA(data, opts)
	case ".bmp":
		return decodeBMP(data, opts)
	default:
		return nil, fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// LoadFromMemory decodes an in-memory file, sniffing the format from
// its magic bytes. TGA has no magic and is reachable only through Load.
func LoadFromMemory(data []byte) (*ImageBuffer, error) {
	return LoadFromMemoryWithOptions(data, nil)
}

// LoadFromMemoryWithOptions is LoadFromMemory with explicit options.
func LoadFromMemoryWithOptions(data []byte, opts *DecodeOptions) (*ImageBuffer, error) {
	switch {
	case len(data) >= 8 && [8]byte(data[:8]) == pngSignature:
		return decodePNG(data, opts)
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8:
		return decodeJPEG(data, opts)
	case len(data) >= 2 && data[0] == 'B' && data[1] == 'M':
		return decodeBMP(data, opts)
	default:
		return nil, fmt.Errorf("%w: unrecognized magic bytes", ErrUnsupportedFormat)
	}
}
