package wire

import "testing"

func TestScaledRoundTripWithinTolerance(t *testing.T) {
	types := []ScaledType{ScaledByte, ScaledShort, ScaledUShort, ScaledInt, ScaledUInt, ScaledLong, ScaledULong}
	lower, upper := -100.0, 100.0

	for _, typ := range types {
		n := float64(typ.bits())
		tolerance := (upper - lower) / twoPow(n+1)

		for _, real := range []float64{-100, -57.5, -1, 0, 1, 42.25, 99.999, 100} {
			raw := EncodeScaled(real, lower, upper, typ)
			got := DecodeScaled(raw, lower, upper, typ)
			diff := got - real
			if diff < 0 {
				diff = -diff
			}
			if diff > tolerance {
				t.Errorf("%s: round trip of %v = %v, diff %v exceeds tolerance %v", typ, real, got, diff, tolerance)
			}
		}
	}
}

func twoPow(n float64) float64 {
	v := 1.0
	for i := 0.0; i < n; i++ {
		v *= 2
	}
	return v
}

func TestScaledSaturatesOutOfRange(t *testing.T) {
	lower, upper := 0.0, 10.0

	belowRaw := EncodeScaled(-50, lower, upper, ScaledUShort)
	below := DecodeScaled(belowRaw, lower, upper, ScaledUShort)
	if below != lower {
		t.Fatalf("expected saturation to lower bound, got %v", below)
	}

	aboveRaw := EncodeScaled(500, lower, upper, ScaledUShort)
	above := DecodeScaled(aboveRaw, lower, upper, ScaledUShort)
	if above != upper {
		t.Fatalf("expected saturation to upper bound, got %v", above)
	}
}

func TestScaledSignedSaturatesOutOfRange(t *testing.T) {
	lower, upper := -10.0, 10.0

	belowRaw := EncodeScaled(-1000, lower, upper, ScaledShort)
	below := DecodeScaled(belowRaw, lower, upper, ScaledShort)
	if below != lower {
		t.Fatalf("expected saturation to lower bound, got %v", below)
	}

	// The largest signed code, 2^15-1, decodes one step below upper.
	aboveRaw := EncodeScaled(1000, lower, upper, ScaledShort)
	above := DecodeScaled(aboveRaw, lower, upper, ScaledShort)
	if want := upper - (upper-lower)/65536; above != want {
		t.Fatalf("expected saturation to the largest representable value %v, got %v", want, above)
	}
}

func TestScaledByteWidth(t *testing.T) {
	cases := map[ScaledType]int{
		ScaledByte:   1,
		ScaledShort:  2,
		ScaledUShort: 2,
		ScaledInt:    4,
		ScaledUInt:   4,
		ScaledLong:   8,
		ScaledULong:  8,
	}
	for typ, want := range cases {
		if got := typ.ByteWidth(); got != want {
			t.Errorf("%s: ByteWidth() = %d, want %d", typ, got, want)
		}
	}
}

func TestPutReadScaledRoundTrip(t *testing.T) {
	types := []ScaledType{ScaledByte, ScaledShort, ScaledUShort, ScaledInt, ScaledUInt, ScaledLong, ScaledULong}
	lower, upper := 0.0, 1000.0

	for _, typ := range types {
		buf := make([]byte, typ.ByteWidth())
		PutScaled(buf, 250.5, lower, upper, typ)
		got := ReadScaled(buf, lower, upper, typ)

		tolerance := (upper - lower) / twoPow(float64(typ.bits())+1)
		diff := got - 250.5
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			t.Errorf("%s: PutScaled/ReadScaled round trip = %v, diff %v exceeds tolerance %v", typ, got, diff, tolerance)
		}
	}
}

func TestEncodeScaledMidpointIsZeroForSignedTypes(t *testing.T) {
	lower, upper := -50.0, 50.0
	raw := EncodeScaled(0, lower, upper, ScaledInt)
	if raw != 0 {
		t.Fatalf("expected midpoint to encode as 0, got %d", raw)
	}
}
