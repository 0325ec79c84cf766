package rd03d

// The sensor encodes signed 16-bit fields as sign and magnitude with the sign
// bit inverted: bit 15 set means positive, clear means negative.
const (
	signBit       = 0x8000
	magnitudeMask = 0x7FFF
)

// DecodeSignMagnitude decodes a signed field sent low byte first on the wire.
// A zero magnitude with the sign bit clear decodes to 0.
func DecodeSignMagnitude(high, low byte) int {
	raw := int(high)<<8 | int(low)
	magnitude := raw & magnitudeMask
	if raw&signBit != 0 {
		return magnitude
	}
	return -magnitude
}

// EncodeSignMagnitude is the inverse of DecodeSignMagnitude. Values outside
// the representable range are clamped to ±0x7FFF.
func EncodeSignMagnitude(v int) (high, low byte) {
	raw := 0
	if v >= 0 {
		raw = signBit
	} else {
		v = -v
	}
	if v > magnitudeMask {
		v = magnitudeMask
	}
	raw |= v
	return byte(raw >> 8), byte(raw)
}
