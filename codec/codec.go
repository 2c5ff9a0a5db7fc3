// Package codec reads and writes integer fields packed into the 8-byte payload
// of a classical CAN frame.
//
// Fields occupy a contiguous byte range start..end (inclusive) and are little
// endian: byte start holds the least significant byte. This is the layout used
// by the inverter (CM200DZ) and every board on the vehicle bus.
//
// Accessors never panic. An invalid range (start > end, start < 0 or end > 7)
// reads as zero and writes nothing, because they run inside the control loop
// where losing one field is preferable to stopping.
package codec

import "math"

// Integer is any fixed-width integer a field can be decoded into.
type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// ValidRange reports whether start..end lies within an 8-byte payload.
func ValidRange(start, end int) bool {
	return start >= 0 && start <= end && end <= 7
}

// ReadBytes returns bytes start..end of data as an unsigned little-endian
// value. It returns 0 for an invalid range.
func ReadBytes(data *[8]byte, start, end int) uint64 {
	if data == nil || !ValidRange(start, end) {
		return 0
	}
	var v uint64
	for i := start; i <= end; i++ {
		v |= uint64(data[i]) << (8 * (i - start))
	}
	return v
}

// WriteBytes stores v into bytes start..end of data, little endian, dropping
// bits that do not fit the range. An invalid range leaves data untouched.
func WriteBytes(data *[8]byte, start, end int, v uint64) {
	if data == nil || !ValidRange(start, end) {
		return
	}
	for i := start; i <= end; i++ {
		data[i] = byte(v >> (8 * (i - start)))
	}
}

// Read decodes bytes start..end as T. The raw value is converted with Go's
// integer conversion rules, so a 2-byte field read as int16 is sign-correct
// while the same field read as int32 is not sign-extended.
func Read[T Integer](data *[8]byte, start, end int) T {
	return T(ReadBytes(data, start, end))
}

// Write encodes v into bytes start..end. Negative values are stored in two's
// complement truncated to the range width.
func Write[T Integer](data *[8]byte, start, end int, v T) {
	WriteBytes(data, start, end, uint64(v))
}

// ReadFloat decodes a fixed-point field: the raw T value multiplied by
// precision (e.g. 0.1 for one decimal place). A zero or NaN precision reads 0.
func ReadFloat[T Integer](data *[8]byte, start, end int, precision float64) float64 {
	if !usablePrecision(precision) {
		return 0
	}
	return float64(Read[T](data, start, end)) * precision
}

// WriteFloat encodes value as the raw integer round(value / precision). A zero
// or NaN precision writes nothing. Negative results are stored in two's
// complement like Write, whatever the signedness of T; results beyond the
// 64-bit range saturate.
func WriteFloat[T Integer](data *[8]byte, start, end int, value, precision float64) {
	if !usablePrecision(precision) || math.IsNaN(value) {
		return
	}
	Write(data, start, end, T(rawFixed(math.Round(value/precision))))
}

const (
	minInt64Float  = -(1 << 63)
	maxUint64Float = 1 << 64
)

// rawFixed converts a rounded fixed-point value to its 64-bit pattern.
// Float to integer conversion of an out-of-range value is platform dependent
// in Go, so negatives go through int64 and only in-range values are converted.
func rawFixed(r float64) uint64 {
	switch {
	case r < minInt64Float:
		return 1 << 63
	case r < 0:
		return uint64(int64(r))
	case r >= maxUint64Float:
		return math.MaxUint64
	default:
		return uint64(r)
	}
}

func usablePrecision(p float64) bool {
	return p != 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// Bit reports bit index (0..63, bit 0 is the LSB of byte 0) of data.
// Out-of-range indexes read false.
func Bit(data *[8]byte, index int) bool {
	if data == nil || index < 0 || index > 63 {
		return false
	}
	return data[index/8]&(1<<(index%8)) != 0
}

// SetBit sets or clears bit index of data. Out-of-range indexes are ignored.
func SetBit(data *[8]byte, index int, on bool) {
	if data == nil || index < 0 || index > 63 {
		return
	}
	mask := byte(1 << (index % 8))
	if on {
		data[index/8] |= mask
	} else {
		data[index/8] &^= mask
	}
}
