// Fixed-width record layouts shared by the telemetry and command codecs
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedRecord is returned when a buffer cannot be decoded as a record of the selected layout.
var ErrMalformedRecord = errors.New("malformed record")

// Field is one fixed-width entry of a record layout. Ref returns a pointer to the
// backing struct field: *float64, *float32 or *int32.
type Field[T any] struct {
	Name string
	Ref  func(*T) any
}

// Layout describes a versioned, packed little-endian record. Length may exceed the
// sum of the field widths; trailing bytes are reserved (zero on encode, ignored on decode).
type Layout[T any] struct {
	Name     string
	Version  int
	Length   int
	Fields   []Field[T]
	validate func(*T) error
}

func fieldSize(ref any) int {
	switch ref.(type) {
	case *float64:
		return 8
	case *float32, *int32:
		return 4
	}
	panic(fmt.Sprintf("wire: unsupported field type %T", ref))
}

// DataLength returns the number of bytes covered by the field table.
func (l *Layout[T]) DataLength() int {
	var zero T
	n := 0
	for _, f := range l.Fields {
		n += fieldSize(f.Ref(&zero))
	}
	return n
}

// Offset returns the byte offset of the named field, or -1 if the layout has no such field.
func (l *Layout[T]) Offset(name string) int {
	var zero T
	off := 0
	for _, f := range l.Fields {
		if f.Name == name {
			return off
		}
		off += fieldSize(f.Ref(&zero))
	}
	return -1
}

// Encode packs v into a buffer of exactly l.Length bytes.
func (l *Layout[T]) Encode(v *T) []byte {
	buf := make([]byte, l.Length)
	off := 0
	for _, f := range l.Fields {
		switch p := f.Ref(v).(type) {
		case *float64:
			binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(*p))
			off += 8
		case *float32:
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(*p))
			off += 4
		case *int32:
			binary.LittleEndian.PutUint32(buf[off:], uint32(*p))
			off += 4
		}
	}
	return buf
}

// Decode unpacks buf. The buffer length must equal l.Length; on any failure the
// zero value is returned together with an error wrapping ErrMalformedRecord.
func (l *Layout[T]) Decode(buf []byte) (T, error) {
	var out T
	if len(buf) != l.Length {
		return out, fmt.Errorf("%w: %s v%d got %d bytes, want %d", ErrMalformedRecord, l.Name, l.Version, len(buf), l.Length)
	}
	var v T
	off := 0
	for _, f := range l.Fields {
		switch p := f.Ref(&v).(type) {
		case *float64:
			*p = math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
			off += 8
		case *float32:
			*p = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
			off += 4
		case *int32:
			*p = int32(binary.LittleEndian.Uint32(buf[off:]))
			off += 4
		}
	}
	if l.validate != nil {
		if err := l.validate(&v); err != nil {
			return out, fmt.Errorf("%w: %s v%d: %v", ErrMalformedRecord, l.Name, l.Version, err)
		}
	}
	return v, nil
}

func f64[T any](name string, ref func(*T) *float64) Field[T] {
	return Field[T]{Name: name, Ref: func(v *T) any { return ref(v) }}
}

func f32[T any](name string, ref func(*T) *float32) Field[T] {
	return Field[T]{Name: name, Ref: func(v *T) any { return ref(v) }}
}

func i32[T any](name string, ref func(*T) *int32) Field[T] {
	return Field[T]{Name: name, Ref: func(v *T) any { return ref(v) }}
}
