package imagecodec

import "errors"

var (
	ErrInvalidSignature  = errors.New("imagecodec: invalid signature")
	ErrInvalidMarker     = errors.New("imagecodec: invalid marker")
	ErrInvalidHeader     = errors.New("imagecodec: invalid header")
	ErrUnsupportedFormat = errors.New("imagecodec: unsupported format")
	ErrTruncatedData     = errors.New("imagecodec: truncated data")
	ErrChecksumMismatch  = errors.New("imagecodec: checksum mismatch")
	ErrInvalidCode       = errors.New("imagecodec: invalid huffman code")
	ErrInvalidBackref    = errors.New("imagecodec: invalid back-reference")
	ErrInvalidTable      = errors.New("imagecodec: invalid table")
	ErrInvalidPalette    = errors.New("imagecodec: palette index out of range")
	ErrDecodeFailed      = errors.New("imagecodec: decode failed")
)

// errFault wraps an error for the internal panic used by the bit-level
// readers. Running off the end of the input is a bounds violation that
// invalidates the whole decode, so the readers abort via panic and the
// component boundary (Inflate, the JPEG scan loop) recovers it and
// converts it into an ordinary error return.
type errFault struct{ error }

// fault aborts the current decode from a hot path.
func fault(err error) {
	panic(errFault{err})
}

// recoverFault converts a fault panic into an error return. Call from a
// defer with a pointer to the enclosing function's named error result.
func recoverFault(err *error) {
	if r := recover(); r != nil {
		f, ok := r.(errFault)
		if !ok {
			panic(r)
		}
		*err = f.error
	}
}
