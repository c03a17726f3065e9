package wpp

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func valuesEqual(t *testing.T, want, got *Value) {
	t.Helper()
	if want.Type != got.Type {
		t.Fatalf("expected type %d, got %d", want.Type, got.Type)
	}
	if len(want.Fields) != len(got.Fields) {
		t.Fatalf("expected %d fields, got %d: %s", len(want.Fields), len(got.Fields), got)
	}
	for name, w := range want.Fields {
		g, ok := got.Fields[name]
		if !ok {
			t.Fatalf("field %q missing from %s", name, got)
		}
		switch wv := w.(type) {
		case []byte:
			if !bytes.Equal(wv, g.([]byte)) {
				t.Fatalf("field %q: expected %x, got %x", name, wv, g)
			}
		case time.Time:
			if !wv.Equal(g.(time.Time)) {
				t.Fatalf("field %q: expected %s, got %s", name, wv, g)
			}
		case *Value:
			valuesEqual(t, wv, g.(*Value))
		default:
			if w != g {
				t.Fatalf("field %q: expected %v (%T), got %v (%T)", name, w, w, g, g)
			}
		}
	}
}

func TestIntegerWidthFromDeclaredRange(t *testing.T) {
	tests := []struct {
		field  FieldDesc
		width  int
		signed bool
	}{
		{Range("u8", 0, 255), 1, false},
		{Range("u16", 0, 65535), 2, false},
		{Range("i8", -128, 127), 1, true},
		{Range("flag", 0, 1), 1, false},
		{Range("mode", 0, 7), 1, false},
		{Range("wide", 0, 256), 2, false},
		{Uint32("u32"), 4, false},
		{Int32("i32"), 4, true},
	}
	for _, tt := range tests {
		if got := tt.field.Width(); got != tt.width {
			t.Fatalf("%s: expected width %d, got %d", tt.field.Name, tt.width, got)
		}
		if got := tt.field.Signed(); got != tt.signed {
			t.Fatalf("%s: expected signed=%v, got %v", tt.field.Name, tt.signed, got)
		}
	}
}

func TestEncodeValueWireBytes(t *testing.T) {
	reg := DefaultRegistry()

	status := NewValue(TypeBatteryStatus).
		Set("percent", 80).
		Set("state", 1).
		Set("mv", 3900).
		Set("reserved", 0)
	got, err := reg.EncodeValue(status)
	if err != nil {
		t.Fatalf("encode battery status: %v", err)
	}
	want := []byte{0x05, 0x04, 0x00, 0x0A, 0x50, 0x01, 0x00, 0x00, 0x0F, 0x3C, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected %x, got %x", want, got)
	}

	devErr := NewValue(TypeCmdError).Set("cmd", uint16(CmdProbe)).Set("err", ErrCodeNotAuth)
	got, err = reg.EncodeValue(devErr)
	if err != nil {
		t.Fatalf("encode cmd error: %v", err)
	}
	want = []byte{0x01, 0x10, 0x00, 0x06, 0x01, 0x01, 0xFF, 0xFF, 0xFF, 0xFB}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected %x, got %x", want, got)
	}

	got, err = reg.EncodeValue(NewValue(TypeNull))
	if err != nil {
		t.Fatalf("encode null: %v", err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x00, 0x00, 0x00}) {
		t.Fatalf("expected empty null marker, got %x", got)
	}
}

func TestEncodeValueSkipsAbsentFields(t *testing.T) {
	reg := DefaultRegistry()
	got, err := reg.EncodeValue(NewValue(TypeSpiFlashCmd).Set("addr", 0x2000))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{0x09, 0x44, 0x00, 0x04, 0x00, 0x00, 0x20, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected %x, got %x", want, got)
	}
}

func TestValueRoundTrip(t *testing.T) {
	reg := DefaultRegistry()
	tests := []*Value{
		NewValue(TypeTrackerUser).
			Set("uid", 12345678).
			Set("weight_g", 72500).
			Set("height_cm", 181).
			Set("gender", 0).
			Set("birth", time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)).
			Set("first_name", "Zoë"),
		NewValue(TypeProbeChallenge).
			Set("mac", "00:24:e4:11:22:33").
			Set("challenge", bytes.Repeat([]byte{0xA5}, NonceSize)),
		NewValue(TypeGpio).
			Set("cmd", 1).Set("bank", 0).Set("pin", 1).
			Set("gpio_mode", 6).Set("value", true).Set("err", -3),
		NewValue(TypeCmdError).Set("cmd", 0xFFFF).Set("err", int32(-2147483648)),
		NewValue(TypeDebugDumpMask).Set("mask", DebugMaskDblibDump|DebugMaskRawPPGBackground),
		NewValue(TypeDebugDumpData).Set("buf", []byte{}),
		NewValue(TypeNull),
	}
	for _, v := range tests {
		raw, err := reg.EncodeValue(v)
		if err != nil {
			t.Fatalf("encode %s: %v", v, err)
		}
		got, err := reg.DecodeValue(v.Type, raw[ValueHeaderLen:])
		if err != nil {
			t.Fatalf("decode %s: %v", v, err)
		}
		valuesEqual(t, v, got)
	}
}

func TestShortLengthLimit(t *testing.T) {
	reg, err := NewRegistry([]TypeSchema{
		{ID: 1, Name: "Blob", Fields: []FieldDesc{Bytes("b")}},
		{ID: 2, Name: "Label", Fields: []FieldDesc{Text("s")}},
	}, nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	if _, err := reg.EncodeValue(NewValue(1).Set("b", make([]byte, 255))); err != nil {
		t.Fatalf("expected 255 bytes to encode, got %v", err)
	}
	if _, err := reg.EncodeValue(NewValue(1).Set("b", make([]byte, 256))); !errors.Is(err, ErrEncode) {
		t.Fatalf("expected encode error for 256 bytes, got %v", err)
	}
	if _, err := reg.EncodeValue(NewValue(2).Set("s", strings.Repeat("x", 255))); err != nil {
		t.Fatalf("expected 255 bytes of text to encode, got %v", err)
	}
	if _, err := reg.EncodeValue(NewValue(2).Set("s", strings.Repeat("x", 256))); !errors.Is(err, ErrEncode) {
		t.Fatalf("expected encode error for 256 bytes of text, got %v", err)
	}
}

func TestEncodeValueRejectsSchemaViolations(t *testing.T) {
	reg := DefaultRegistry()
	tests := []struct {
		name string
		v    *Value
	}{
		{"above range", NewValue(TypeBatteryStatus).Set("percent", 256)},
		{"below range", NewValue(TypeBatteryStatus).Set("percent", -1)},
		{"wrong go type", NewValue(TypeBatteryStatus).Set("percent", "80")},
		{"unknown field", NewValue(TypeBatteryStatus).Set("charge", 1)},
		{"short nonce", NewValue(TypeProbeChallenge).Set("challenge", make([]byte, NonceSize-1))},
		{"negative timestamp", NewValue(TypeTrackerUser).Set("birth", time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC))},
		{"unregistered type", NewValue(0x7777)},
	}
	for _, tt := range tests {
		_, err := reg.EncodeValue(tt.v)
		var encErr *EncodeError
		if !errors.As(err, &encErr) {
			t.Fatalf("%s: expected *EncodeError, got %v", tt.name, err)
		}
	}
}

func TestDecodeValueErrors(t *testing.T) {
	reg := DefaultRegistry()
	body := []byte{0x50, 0x01, 0x00, 0x00, 0x0F, 0x3C, 0x00, 0x00, 0x00, 0x00}

	_, err := reg.DecodeValue(TypeBatteryStatus, body[:5])
	var truncated *TruncatedDataError
	if !errors.As(err, &truncated) {
		t.Fatalf("expected truncated data error, got %v", err)
	}
	if truncated.Field != "mv" {
		t.Fatalf("expected truncation in mv, got %q", truncated.Field)
	}

	_, err = reg.DecodeValue(TypeBatteryStatus, append(append([]byte(nil), body...), 0xEE))
	var trailing *TrailingDataError
	if !errors.As(err, &trailing) || trailing.Extra != 1 {
		t.Fatalf("expected one trailing byte, got %v", err)
	}

	_, err = reg.DecodeValue(0x7777, nil)
	var unknown *UnknownTypeError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected unknown type error, got %v", err)
	}

	_, err = reg.DecodeValue(TypeSpiFlashChunk, append([]byte{15}, make([]byte, 15)...))
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected decode error for short chunk, got %v", err)
	}

	_, err = reg.DecodeValue(TypeDebugDumpAnchor, []byte{0x00, 0x01})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected decode family error, got %v", err)
	}

	_, err = reg.DecodeValue(TypeProbeChallenge, []byte{0x02, 0xC3, 0x28})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected invalid utf-8 to fail, got %v", err)
	}
}

func TestNestedValues(t *testing.T) {
	reg, err := NewRegistry([]TypeSchema{
		{ID: 10, Name: "Inner", Fields: []FieldDesc{Uint8("a")}},
		{ID: 11, Name: "Outer", Fields: []FieldDesc{Nested("inner", 10), Int8("b")}},
	}, nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	outer := NewValue(11).Set("inner", NewValue(10).Set("a", 7)).Set("b", -1)
	raw, err := reg.EncodeValue(outer)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{0x00, 0x0B, 0x00, 0x06, 0x00, 0x0A, 0x00, 0x01, 0x07, 0xFF}
	if !bytes.Equal(raw, want) {
		t.Fatalf("expected %x, got %x", want, raw)
	}

	got, err := reg.DecodeValue(11, raw[ValueHeaderLen:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	valuesEqual(t, outer, got)
	if got.Nested("inner").Int("a") != 7 {
		t.Fatalf("expected nested a=7, got %s", got)
	}

	bad := []byte{0x00, 0x0C, 0x00, 0x01, 0x07, 0xFF}
	if _, err := reg.DecodeValue(11, bad); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected nested id mismatch to fail, got %v", err)
	}

	wrong := NewValue(11).Set("inner", NewValue(11)).Set("b", 0)
	if _, err := reg.EncodeValue(wrong); !errors.Is(err, ErrEncode) {
		t.Fatalf("expected nested type mismatch to fail encode, got %v", err)
	}
}
