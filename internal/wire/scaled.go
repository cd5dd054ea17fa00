package wire

import (
	"math"
)

// ScaledType enumerates the seven integer widths the JAUS wire format uses to
// carry a bounded real number: one unsigned 8-bit width, and signed/unsigned
// pairs at 16, 32 and 64 bits.
type ScaledType int

const (
	ScaledByte ScaledType = iota
	ScaledShort
	ScaledUShort
	ScaledInt
	ScaledUInt
	ScaledLong
	ScaledULong
)

func (t ScaledType) String() string {
	switch t {
	case ScaledByte:
		return "Byte"
	case ScaledShort:
		return "Short"
	case ScaledUShort:
		return "UShort"
	case ScaledInt:
		return "Int"
	case ScaledUInt:
		return "UInt"
	case ScaledLong:
		return "Long"
	case ScaledULong:
		return "ULong"
	default:
		return "Unknown"
	}
}

// bits reports the integer width in bits used to represent t.
func (t ScaledType) bits() uint {
	switch t {
	case ScaledByte:
		return 8
	case ScaledShort, ScaledUShort:
		return 16
	case ScaledInt, ScaledUInt:
		return 32
	case ScaledLong, ScaledULong:
		return 64
	default:
		return 0
	}
}

// signed reports whether t is transmitted using the signed scaling formula.
func (t ScaledType) signed() bool {
	switch t {
	case ScaledShort, ScaledInt, ScaledLong:
		return true
	default:
		return false
	}
}

// ByteWidth reports how many wire bytes t occupies.
func (t ScaledType) ByteWidth() int {
	return int(t.bits() / 8)
}

// EncodeScaled converts real, bounded to [lower, upper], into the raw
// bit pattern for t. Values outside the bound saturate to the nearest
// representable integer rather than error: this is a lossy quantization by
// design, not a validated transfer.
//
// Unsigned widths use scaled = round((real-lower)*(2^n-1)/(upper-lower)).
// Signed widths use scaled = round((real-midpoint)*2^n/(upper-lower)), where
// midpoint = (upper+lower)/2.
func EncodeScaled(real, lower, upper float64, t ScaledType) uint64 {
	n := t.bits()
	span := upper - lower

	if t.signed() {
		half := math.Ldexp(1, int(n-1)) // 2^(n-1)
		full := math.Ldexp(1, int(n))   // 2^n
		mid := (upper + lower) / 2
		v := math.Round((real - mid) * full / span)
		v = clamp(v, -half, half-1)
		if v >= half {
			// At 64 bits half-1 rounds up to half as a float64.
			return (uint64(1)<<(n-1) - 1) & widthMask(n)
		}
		return uint64(int64(v)) & widthMask(n)
	}

	max := math.Ldexp(1, int(n)) - 1 // 2^n - 1
	v := math.Round((real - lower) * max / span)
	v = clamp(v, 0, max)
	if v >= max {
		return widthMask(n)
	}
	return uint64(v)
}

// DecodeScaled recovers the real number represented by the raw bit pattern
// scaled for width/sign t over [lower, upper].
func DecodeScaled(scaled uint64, lower, upper float64, t ScaledType) float64 {
	n := t.bits()
	span := upper - lower

	if t.signed() {
		full := math.Ldexp(1, int(n))
		mid := (upper + lower) / 2
		signedVal := float64(signExtend(scaled, n))
		return signedVal*span/full + mid
	}

	max := math.Ldexp(1, int(n)) - 1
	return float64(scaled)*span/max + lower
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

func widthMask(n uint) uint64 {
	if n >= 64 {
		return math.MaxUint64
	}
	return (uint64(1) << n) - 1
}

func signExtend(v uint64, n uint) int64 {
	if n >= 64 {
		return int64(v)
	}
	shift := 64 - n
	return int64(v<<shift) >> shift
}

// PutScaled writes the raw bit pattern for real over [lower, upper] into the
// leading t.ByteWidth() bytes of buf, little-endian. buf must be at least
// t.ByteWidth() bytes long.
func PutScaled(buf []byte, real, lower, upper float64, t ScaledType) {
	raw := EncodeScaled(real, lower, upper, t)
	switch t.ByteWidth() {
	case 1:
		buf[0] = byte(raw)
	case 2:
		putUint16(buf, uint16(raw))
	case 4:
		buf[0] = byte(raw)
		buf[1] = byte(raw >> 8)
		buf[2] = byte(raw >> 16)
		buf[3] = byte(raw >> 24)
	case 8:
		for i := 0; i < 8; i++ {
			buf[i] = byte(raw >> (8 * i))
		}
	}
}

// ReadScaled decodes the leading t.ByteWidth() bytes of buf as a real number
// over [lower, upper].
func ReadScaled(buf []byte, lower, upper float64, t ScaledType) float64 {
	var raw uint64
	switch t.ByteWidth() {
	case 1:
		raw = uint64(buf[0])
	case 2:
		raw = uint64(readUint16(buf))
	case 4:
		raw = uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24
	case 8:
		for i := 0; i < 8; i++ {
			raw |= uint64(buf[i]) << (8 * i)
		}
	}
	return DecodeScaled(raw, lower, upper, t)
}
