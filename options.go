package imagecodec

import "github.com/rs/zerolog"

// DecodeOptions controls decoding behavior shared by all formats.
type DecodeOptions struct {
	// Logger receives debug events for chunks, markers, and tables as
	// they are parsed. Nil discards everything.
	Logger *zerolog.Logger

	// PreciseColor selects the floating-point YCbCr converter for JPEG
	// output instead of the fixed-point one. The two agree within one
	// intensity level; the float path is the reference.
	PreciseColor bool
}

func (o *DecodeOptions) logger() *zerolog.Logger {
	if o == nil || o.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return o.Logger
}
