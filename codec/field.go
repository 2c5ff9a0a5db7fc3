package codec

// Field describes one signal inside a payload: its byte range and, for
// physical quantities, the fixed-point precision. Declare fields once and
// reuse them:
//
//	var packVoltage = codec.Field[uint16]{Start: 0, End: 1, Precision: 0.1}
//	volts := packVoltage.GetFloat(&inbox.Data)
type Field[T Integer] struct {
	Start, End int
	// Precision scales the raw integer in GetFloat/SetFloat. Zero means the
	// field is not fixed-point; GetFloat then returns the raw value.
	Precision float64
}

// Valid reports whether the field lies within an 8-byte payload.
func (f Field[T]) Valid() bool { return ValidRange(f.Start, f.End) }

// Width is the field size in bytes, or 0 when invalid.
func (f Field[T]) Width() int {
	if !f.Valid() {
		return 0
	}
	return f.End - f.Start + 1
}

// Get decodes the raw value.
func (f Field[T]) Get(data *[8]byte) T { return Read[T](data, f.Start, f.End) }

// Set encodes the raw value.
func (f Field[T]) Set(data *[8]byte, v T) { Write(data, f.Start, f.End, v) }

// GetFloat decodes the physical value.
func (f Field[T]) GetFloat(data *[8]byte) float64 {
	if f.Precision == 0 {
		return float64(f.Get(data))
	}
	return ReadFloat[T](data, f.Start, f.End, f.Precision)
}

// SetFloat encodes the physical value, rounding to the nearest step.
func (f Field[T]) SetFloat(data *[8]byte, v float64) {
	p := f.Precision
	if p == 0 {
		p = 1
	}
	WriteFloat[T](data, f.Start, f.End, v, p)
}
