// Package imagecodec implements from-scratch decoders for the binary
// image formats used by the engine's asset pipeline: PNG (including a
// full RFC 1950/1951 zlib+DEFLATE decompressor) and baseline JPEG, plus
// the trivial uncompressed TGA and BMP paths.
//
// Nothing is delegated to an external compression or imaging library:
// canonical Huffman code assignment, the 32 KiB LZ77 sliding window,
// per-scanline PNG filters, JPEG entropy decoding, dequantization, the
// inverse DCT and YCbCr conversion are all implemented here against the
// public specifications.
//
// The high-level entry points are Load and LoadFromMemory, which return
// an ImageBuffer of interleaved 8-bit pixels. The PNG and JPEG decoders
// also register with the standard image package, so image.Decode works
// on streams of either format.
//
// Decoding is synchronous and single-call: one invocation decodes one
// image to completion or fails with a descriptive error. Decoders share
// no mutable state, so independent decodes may run concurrently.
//
// Unsupported by design: progressive and arithmetic JPEG, interlaced
// (Adam7) PNG, 16-bit PNG channels, zlib preset dictionaries, and
// streaming or partial decode.
package imagecodec
