// Package wpp implements the WPP wire format: typed TLV values, the command
// frame envelope, and the static schema tables that drive both.
package wpp

import (
	"math"
	"math/bits"
)

// TypeID identifies a value schema on the wire.
type TypeID uint16

// CommandID identifies a command schema. Only the low 14 bits are significant.
type CommandID uint16

// Kind tags how a field is laid out on the wire.
type Kind uint8

const (
	KindInt Kind = iota + 1
	KindBytes
	KindText
	KindTimestamp
	KindNested
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBytes:
		return "bytes"
	case KindText:
		return "text"
	case KindTimestamp:
		return "timestamp"
	case KindNested:
		return "nested"
	default:
		return "invalid"
	}
}

// FieldDesc describes one field of a value schema.
//
// Integer fields (including enumerations and bitmasks) declare an inclusive
// range; the wire width is the smallest number of bytes that can hold
// Max-Min, and the encoding is two's complement when Min is negative.
type FieldDesc struct {
	Name   string
	Kind   Kind
	Min    int64
	Max    int64
	Size   int // exact length for KindBytes; 0 accepts any length up to 255
	Nested TypeID
}

// Width returns the encoded size of an integer field in bytes.
func (f FieldDesc) Width() int {
	if f.Kind != KindInt || f.Max <= f.Min {
		return 0
	}
	span := uint64(f.Max) - uint64(f.Min)
	return (bits.Len64(span) + 7) / 8
}

// Signed reports whether an integer field uses two's complement.
func (f FieldDesc) Signed() bool {
	return f.Kind == KindInt && f.Min < 0
}

func Range(name string, lo, hi int64) FieldDesc {
	return FieldDesc{Name: name, Kind: KindInt, Min: lo, Max: hi}
}

func Uint8(name string) FieldDesc  { return Range(name, 0, math.MaxUint8) }
func Uint16(name string) FieldDesc { return Range(name, 0, math.MaxUint16) }
func Uint32(name string) FieldDesc { return Range(name, 0, math.MaxUint32) }
func Int8(name string) FieldDesc   { return Range(name, math.MinInt8, math.MaxInt8) }
func Int32(name string) FieldDesc  { return Range(name, math.MinInt32, math.MaxInt32) }
func Bool(name string) FieldDesc   { return Range(name, 0, 1) }

func Bytes(name string) FieldDesc { return FieldDesc{Name: name, Kind: KindBytes} }

func FixedBytes(name string, size int) FieldDesc {
	return FieldDesc{Name: name, Kind: KindBytes, Size: size}
}

func Text(name string) FieldDesc      { return FieldDesc{Name: name, Kind: KindText} }
func Timestamp(name string) FieldDesc { return FieldDesc{Name: name, Kind: KindTimestamp} }

func Nested(name string, id TypeID) FieldDesc {
	return FieldDesc{Name: name, Kind: KindNested, Nested: id}
}

// TypeSchema is the ordered field list of one value type. A schema without
// fields is a marker.
type TypeSchema struct {
	ID     TypeID
	Name   string
	Fields []FieldDesc
}

// Field returns the descriptor with the given name.
func (s *TypeSchema) Field(name string) (FieldDesc, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDesc{}, false
}

// IsMarker reports whether the schema carries no fields.
func (s *TypeSchema) IsMarker() bool {
	return len(s.Fields) == 0
}

// Cardinality controls how many values a command slot accepts.
type Cardinality uint8

const (
	Optional Cardinality = iota
	Required
	Repeated
)

func (c Cardinality) String() string {
	switch c {
	case Optional:
		return "optional"
	case Required:
		return "required"
	case Repeated:
		return "repeated"
	default:
		return "invalid"
	}
}

// Slot is one named field of a command.
type Slot struct {
	Name string
	Type TypeID
	Card Cardinality
}

func Opt(name string, id TypeID) Slot  { return Slot{Name: name, Type: id, Card: Optional} }
func Req(name string, id TypeID) Slot  { return Slot{Name: name, Type: id, Card: Required} }
func List(name string, id TypeID) Slot { return Slot{Name: name, Type: id, Card: Repeated} }

// CommandSchema is the ordered slot list of one command. Indexes are filled
// in by NewRegistry and must not be modified afterwards.
type CommandSchema struct {
	ID    CommandID
	Name  string
	Slots []Slot

	byType   map[TypeID]int
	byName   map[string]int
	sentinel int
}

// SlotForType returns the slot index that owns values of the given type.
func (s *CommandSchema) SlotForType(id TypeID) (int, bool) {
	i, ok := s.byType[id]
	return i, ok
}

// SlotIndex returns the index of the named slot.
func (s *CommandSchema) SlotIndex(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// Sentinel returns the name of the marker slot that terminates multi-frame
// responses of this command.
func (s *CommandSchema) Sentinel() (string, bool) {
	if s.sentinel < 0 {
		return "", false
	}
	return s.Slots[s.sentinel].Name, true
}
