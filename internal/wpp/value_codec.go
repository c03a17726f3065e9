package wpp

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unicode/utf8"
)

const (
	// ValueHeaderLen is the size of the type id and length prefix of a value.
	ValueHeaderLen = 4

	maxShortLen = 255
)

// EncodeValue serialises v as type id, body length and body.
func (r *Registry) EncodeValue(v *Value) ([]byte, error) {
	return r.appendValue(nil, v)
}

func (r *Registry) appendValue(dst []byte, v *Value) ([]byte, error) {
	if v == nil {
		return nil, &EncodeError{Reason: "nil value"}
	}
	ts, ok := r.types[v.Type]
	if !ok {
		return nil, &EncodeError{Type: v.Type, Reason: "type is not registered"}
	}
	for name := range v.Fields {
		if _, ok := ts.Field(name); !ok {
			return nil, &EncodeError{Type: v.Type, Field: name, Reason: "no such field in " + ts.Name}
		}
	}

	start := len(dst)
	dst = append(dst, 0, 0, 0, 0)
	for _, f := range ts.Fields {
		x, present := v.Fields[f.Name]
		if !present {
			continue
		}
		var err error
		dst, err = r.appendField(dst, ts, f, x)
		if err != nil {
			return nil, err
		}
	}

	bodyLen := len(dst) - start - ValueHeaderLen
	if bodyLen > math.MaxUint16 {
		return nil, &EncodeError{Type: v.Type, Reason: fmt.Sprintf("body of %d bytes exceeds 65535", bodyLen)}
	}
	binary.BigEndian.PutUint16(dst[start:], uint16(v.Type))
	binary.BigEndian.PutUint16(dst[start+2:], uint16(bodyLen))
	return dst, nil
}

func (r *Registry) appendField(dst []byte, ts *TypeSchema, f FieldDesc, x any) ([]byte, error) {
	fail := func(format string, args ...any) error {
		return &EncodeError{Type: ts.ID, Field: f.Name, Reason: fmt.Sprintf(format, args...)}
	}

	switch f.Kind {
	case KindInt:
		n, ok := toInt64(x)
		if !ok {
			if b, isBool := x.(bool); isBool {
				n, ok = boolToInt(b), true
			}
		}
		if !ok {
			return nil, fail("want integer, got %T", x)
		}
		if n < f.Min || n > f.Max {
			return nil, fail("%d outside declared range [%d,%d]", n, f.Min, f.Max)
		}
		return appendInt(dst, uint64(n), f.Width()), nil

	case KindBytes:
		b, ok := x.([]byte)
		if !ok {
			return nil, fail("want []byte, got %T", x)
		}
		if f.Size > 0 && len(b) != f.Size {
			return nil, fail("want exactly %d bytes, got %d", f.Size, len(b))
		}
		if len(b) > maxShortLen {
			return nil, fail("%d bytes exceeds 255", len(b))
		}
		dst = append(dst, byte(len(b)))
		return append(dst, b...), nil

	case KindText:
		s, ok := x.(string)
		if !ok {
			return nil, fail("want string, got %T", x)
		}
		if len(s) > maxShortLen {
			return nil, fail("%d bytes of text exceeds 255", len(s))
		}
		dst = append(dst, byte(len(s)))
		return append(dst, s...), nil

	case KindTimestamp:
		t, ok := x.(time.Time)
		if !ok {
			return nil, fail("want time.Time, got %T", x)
		}
		sec := t.Unix()
		if sec < 0 || sec > math.MaxUint32 {
			return nil, fail("%s does not fit an unsigned 32-bit unix time", t.UTC().Format(time.RFC3339))
		}
		return binary.BigEndian.AppendUint32(dst, uint32(sec)), nil

	case KindNested:
		nv, ok := x.(*Value)
		if !ok || nv == nil {
			return nil, fail("want *Value, got %T", x)
		}
		if nv.Type != f.Nested {
			return nil, fail("nested value has type %d, want %d", nv.Type, f.Nested)
		}
		return r.appendValue(dst, nv)
	}
	return nil, fail("invalid kind %d", f.Kind)
}

// DecodeValue parses the body of a value of the given type. Every declared
// field must be present and the body must be consumed exactly.
func (r *Registry) DecodeValue(id TypeID, body []byte) (*Value, error) {
	ts, ok := r.types[id]
	if !ok {
		return nil, &UnknownTypeError{Type: id}
	}

	v := NewValue(id)
	rest := body
	for _, f := range ts.Fields {
		x, n, err := r.decodeField(ts, f, rest)
		if err != nil {
			return nil, err
		}
		v.Fields[f.Name] = x
		rest = rest[n:]
	}
	if len(rest) > 0 {
		return nil, &TrailingDataError{Type: id, Extra: len(rest)}
	}
	return v, nil
}

func (r *Registry) decodeField(ts *TypeSchema, f FieldDesc, b []byte) (any, int, error) {
	need := func(n int) error {
		if len(b) < n {
			return &TruncatedDataError{Type: ts.ID, Field: f.Name, Need: n, Have: len(b)}
		}
		return nil
	}
	bad := func(format string, args ...any) error {
		return &DecodeError{Type: ts.ID, Reason: fmt.Sprintf("field %q: ", f.Name) + fmt.Sprintf(format, args...)}
	}

	switch f.Kind {
	case KindInt:
		w := f.Width()
		if err := need(w); err != nil {
			return nil, 0, err
		}
		n := readInt(b[:w], f.Signed())
		if n < f.Min || n > f.Max {
			return nil, 0, bad("%d outside declared range [%d,%d]", n, f.Min, f.Max)
		}
		return n, w, nil

	case KindBytes, KindText:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		l := int(b[0])
		if err := need(1 + l); err != nil {
			return nil, 0, err
		}
		raw := b[1 : 1+l]
		if f.Kind == KindText {
			if !utf8.Valid(raw) {
				return nil, 0, bad("text is not valid UTF-8")
			}
			return string(raw), 1 + l, nil
		}
		if f.Size > 0 && l != f.Size {
			return nil, 0, bad("want exactly %d bytes, got %d", f.Size, l)
		}
		return append([]byte(nil), raw...), 1 + l, nil

	case KindTimestamp:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		sec := binary.BigEndian.Uint32(b)
		return time.Unix(int64(sec), 0).UTC(), 4, nil

	case KindNested:
		if err := need(ValueHeaderLen); err != nil {
			return nil, 0, err
		}
		id := TypeID(binary.BigEndian.Uint16(b))
		l := int(binary.BigEndian.Uint16(b[2:]))
		if id != f.Nested {
			return nil, 0, bad("nested value has type %d, want %d", id, f.Nested)
		}
		if err := need(ValueHeaderLen + l); err != nil {
			return nil, 0, err
		}
		nv, err := r.DecodeValue(id, b[ValueHeaderLen:ValueHeaderLen+l])
		if err != nil {
			return nil, 0, err
		}
		return nv, ValueHeaderLen + l, nil
	}
	return nil, 0, bad("invalid kind %d", f.Kind)
}

// readEntry splits one value off the front of a value stream.
func (r *Registry) readEntry(b []byte) (*Value, int, error) {
	if len(b) < ValueHeaderLen {
		return nil, 0, &TruncatedDataError{Need: ValueHeaderLen, Have: len(b)}
	}
	id := TypeID(binary.BigEndian.Uint16(b))
	l := int(binary.BigEndian.Uint16(b[2:]))
	if len(b) < ValueHeaderLen+l {
		return nil, 0, &TruncatedDataError{Type: id, Need: ValueHeaderLen + l, Have: len(b)}
	}
	v, err := r.DecodeValue(id, b[ValueHeaderLen:ValueHeaderLen+l])
	if err != nil {
		return nil, 0, err
	}
	return v, ValueHeaderLen + l, nil
}

func appendInt(dst []byte, u uint64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		dst = append(dst, byte(u>>(8*uint(i))))
	}
	return dst
}

func readInt(b []byte, signed bool) int64 {
	var u uint64
	for _, c := range b {
		u = u<<8 | uint64(c)
	}
	if signed && len(b) < 8 {
		shift := uint(64 - 8*len(b))
		return int64(u<<shift) >> shift
	}
	return int64(u)
}

// fitsWidth reports whether every value of the declared range is
// representable in the field's wire width.
func fitsWidth(f FieldDesc) bool {
	bits := 8 * f.Width()
	if bits >= 64 {
		return true
	}
	if f.Signed() {
		lo, hi := -(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1
		return f.Min >= lo && f.Max <= hi
	}
	return f.Max < int64(1)<<bits
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
