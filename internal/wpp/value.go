package wpp

import (
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Value is one instance of a value schema. Field values are held as int64,
// []byte, string, time.Time or *Value depending on the field kind; absent
// fields are simply missing from the map.
type Value struct {
	Type   TypeID
	Fields map[string]any
}

func NewValue(id TypeID) *Value {
	return &Value{Type: id, Fields: make(map[string]any)}
}

// Set stores a field value and returns v for chaining. Integers of any Go
// width and booleans are normalised to int64; times to whole UTC seconds.
func (v *Value) Set(name string, x any) *Value {
	if v.Fields == nil {
		v.Fields = make(map[string]any)
	}
	switch t := x.(type) {
	case bool:
		if t {
			x = int64(1)
		} else {
			x = int64(0)
		}
	case time.Time:
		x = t.UTC().Truncate(time.Second)
	default:
		if n, ok := toInt64(x); ok {
			x = n
		}
	}
	v.Fields[name] = x
	return v
}

func (v *Value) Has(name string) bool {
	if v == nil {
		return false
	}
	_, ok := v.Fields[name]
	return ok
}

func (v *Value) Int(name string) int64 {
	if v == nil {
		return 0
	}
	n, _ := toInt64(v.Fields[name])
	return n
}

func (v *Value) Uint32(name string) uint32 {
	n := v.Int(name)
	if n < 0 || n > math.MaxUint32 {
		return 0
	}
	return uint32(n)
}

func (v *Value) Bytes(name string) []byte {
	if v == nil {
		return nil
	}
	b, _ := v.Fields[name].([]byte)
	return b
}

func (v *Value) Text(name string) string {
	if v == nil {
		return ""
	}
	s, _ := v.Fields[name].(string)
	return s
}

func (v *Value) Time(name string) time.Time {
	if v == nil {
		return time.Time{}
	}
	t, _ := v.Fields[name].(time.Time)
	return t
}

// Nested returns a nested value field.
func (v *Value) Nested(name string) *Value {
	if v == nil {
		return nil
	}
	n, _ := v.Fields[name].(*Value)
	return n
}

func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	names := make([]string, 0, len(v.Fields))
	for name := range v.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "type%d{", v.Type)
	for i, name := range names {
		if i > 0 {
			b.WriteString(" ")
		}
		switch x := v.Fields[name].(type) {
		case []byte:
			fmt.Fprintf(&b, "%s=%s", name, hex.EncodeToString(x))
		case time.Time:
			fmt.Fprintf(&b, "%s=%s", name, x.Format(time.RFC3339))
		default:
			fmt.Fprintf(&b, "%s=%v", name, x)
		}
	}
	b.WriteString("}")
	return b.String()
}

func toInt64(x any) (int64, bool) {
	switch n := x.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case DebugMask:
		return int64(n), true
	case DumpType:
		return int64(n), true
	case ReadMode:
		return int64(n), true
	case ErrorCode:
		return int64(n), true
	default:
		return 0, false
	}
}
