// Package mathx holds the small numeric helpers shared by the sensor drivers.
package mathx

// SignExtend16 interprets v as a 16-bit two's-complement value: anything
// above 32767 has 65536 subtracted.
func SignExtend16(v int) int {
	if v > 32767 {
		v -= 65536
	}
	return v
}

// SignExtend13 does the same for the 13-bit extended-mode temperature format.
func SignExtend13(v int) int {
	if v > 4095 {
		v -= 8192
	}
	return v
}

// Uint16BE joins a big-endian register pair.
func Uint16BE(msb, lsb byte) int {
	return int(lsb) | int(msb)<<8
}

// Int16BE joins a big-endian register pair and sign extends it.
func Int16BE(msb, lsb byte) int {
	return SignExtend16(Uint16BE(msb, lsb))
}

// Uint16LE joins a little-endian register pair.
func Uint16LE(lsb, msb byte) int {
	return int(lsb) | int(msb)<<8
}

// Int16LE joins a little-endian register pair and sign extends it.
func Int16LE(lsb, msb byte) int {
	return SignExtend16(Uint16LE(lsb, msb))
}

// Mean returns the arithmetic mean of a, or 0 for an empty slice.
func Mean(a []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	var s float64
	for _, v := range a {
		s += v
	}
	return s / float64(len(a))
}

// MinMax returns the smallest and largest element of a. Both are 0 when a is empty.
func MinMax(a []float64) (lo, hi float64) {
	if len(a) == 0 {
		return 0, 0
	}
	lo, hi = a[0], a[0]
	for _, v := range a[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
