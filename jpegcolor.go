package imagecodec

// YCbCr to RGB conversion per ITU-R BT.601:
//
//	R = Y + 1.402*(Cr-128)
//	G = Y - 0.344136*(Cb-128) - 0.714136*(Cr-128)
//	B = Y + 1.772*(Cb-128)
//
// Two interchangeable implementations: a fixed-point one using 16-bit
// scaled integer coefficients, and a floating-point reference. They
// agree within one intensity level.

// Fixed-point coefficients, scaled by 2^16.
const (
	fxCrToR = 91881  // 1.402
	fxCbToG = 22554  // 0.344136
	fxCrToG = 46802  // 0.714136
	fxCbToB = 116130 // 1.772
)

// ycbcrToRGBFixed converts one sample triple with integer arithmetic.
func ycbcrToRGBFixed(y, cb, cr byte) (byte, byte, byte) {
	yy := int32(y)
	cbc := int32(cb) - 128
	crc := int32(cr) - 128

	r := yy + (fxCrToR*crc+32768)>>16
	g := yy - (fxCbToG*cbc+fxCrToG*crc+32768)>>16
	b := yy + (fxCbToB*cbc+32768)>>16

	return clampToUint8(r), clampToUint8(g), clampToUint8(b)
}

// ycbcrToRGBFloat is the floating-point reference conversion.
func ycbcrToRGBFloat(y, cb, cr byte) (byte, byte, byte) {
	yy := float64(y)
	cbc := float64(cb) - 128
	crc := float64(cr) - 128

	r := yy + 1.402*crc
	g := yy - 0.344136*cbc - 0.714136*crc
	b := yy + 1.772*cbc

	return clampFloat(r), clampFloat(g), clampFloat(b)
}

// clampToUint8 clamps a value to [0, 255].
func clampToUint8(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// clampFloat clamps a float to [0, 255] and rounds to nearest.
func clampFloat(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
