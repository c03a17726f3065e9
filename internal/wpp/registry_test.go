package wpp

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultRegistryBuilds(t *testing.T) {
	reg := DefaultRegistry()
	if reg != DefaultRegistry() {
		t.Fatalf("expected default registry to be shared")
	}
	if got := len(reg.Commands()); got != len(BuiltinCommands()) {
		t.Fatalf("expected %d commands, got %d", len(BuiltinCommands()), got)
	}

	sentinels := map[CommandID]string{
		CmdDisconnect:    "null",
		CmdDebugSet:      "null",
		CmdDebugDump:     "null",
		CmdDebugDumpAck:  "null",
		CmdSwimStatusSet: "null",
		CmdFlashRead:     "null",
	}
	for _, id := range reg.Commands() {
		cs, err := reg.Command(id)
		if err != nil {
			t.Fatalf("lookup %d: %v", id, err)
		}
		name, ok := cs.Sentinel()
		want, expected := sentinels[id]
		if ok != expected || name != want {
			t.Fatalf("%s: expected sentinel %q (%v), got %q (%v)", cs.Name, want, expected, name, ok)
		}
	}
}

func TestRegistryLookups(t *testing.T) {
	reg := DefaultRegistry()

	cs, err := reg.CommandByName("FlashRead")
	if err != nil || cs.ID != CmdFlashRead {
		t.Fatalf("expected FlashRead lookup, got %v, %v", cs, err)
	}
	i, ok := cs.SlotForType(TypeSpiFlashChunk)
	if !ok || cs.Slots[i].Name != "chunks" {
		t.Fatalf("expected chunk type to map to chunks slot, got %d %v", i, ok)
	}
	if _, ok := cs.SlotForType(TypeProbeReply); ok {
		t.Fatalf("expected probe reply to be foreign to FlashRead")
	}

	ts, err := reg.TypeByName("TrackerUser")
	if err != nil || ts.ID != TypeTrackerUser {
		t.Fatalf("expected TrackerUser lookup, got %v, %v", ts, err)
	}

	var unknown *UnknownCommandError
	if _, err := reg.Command(0x1234); !errors.As(err, &unknown) {
		t.Fatalf("expected unknown command error, got %v", err)
	}
	if _, err := reg.NewFrame(0x1234); !errors.As(err, &unknown) {
		t.Fatalf("expected unknown command error from NewFrame, got %v", err)
	}
	if got := reg.CommandName(0x1234); got != "cmd4660" {
		t.Fatalf("unexpected fallback name %q", got)
	}
	if got := reg.CommandName(CmdProbe); got != "Probe" {
		t.Fatalf("unexpected name %q", got)
	}
}

func TestNewRegistryValidation(t *testing.T) {
	marker := TypeSchema{ID: 1, Name: "Marker"}
	num := TypeSchema{ID: 2, Name: "Num", Fields: []FieldDesc{Uint8("n")}}

	tests := []struct {
		name     string
		types    []TypeSchema
		commands []CommandSchema
		want     string
	}{
		{
			name:  "duplicate type id",
			types: []TypeSchema{marker, {ID: 1, Name: "Other"}},
			want:  "duplicate type id",
		},
		{
			name:  "duplicate type name",
			types: []TypeSchema{marker, {ID: 3, Name: "Marker"}},
			want:  "duplicate type name",
		},
		{
			name:  "duplicate field",
			types: []TypeSchema{{ID: 3, Name: "Twice", Fields: []FieldDesc{Uint8("a"), Uint16("a")}}},
			want:  "duplicate field",
		},
		{
			name:  "empty range",
			types: []TypeSchema{{ID: 3, Name: "Empty", Fields: []FieldDesc{Range("a", 5, 5)}}},
			want:  "empty range",
		},
		{
			name:  "range wider than width",
			types: []TypeSchema{{ID: 3, Name: "Offset", Fields: []FieldDesc{Range("a", 100, 300)}}},
			want:  "does not fit",
		},
		{
			name:  "unregistered nested type",
			types: []TypeSchema{{ID: 3, Name: "Outer", Fields: []FieldDesc{Nested("in", 99)}}},
			want:  "not registered",
		},
		{
			name:     "reserved command bits",
			types:    []TypeSchema{marker},
			commands: []CommandSchema{{ID: 0x4001, Name: "Flagged"}},
			want:     "reserved bits",
		},
		{
			name:     "duplicate command id",
			types:    []TypeSchema{marker},
			commands: []CommandSchema{{ID: 5, Name: "A"}, {ID: 5, Name: "B"}},
			want:     "duplicate command id",
		},
		{
			name:     "slot type missing",
			types:    []TypeSchema{marker},
			commands: []CommandSchema{{ID: 5, Name: "A", Slots: []Slot{Opt("x", 42)}}},
			want:     "not registered",
		},
		{
			name:  "slots sharing a type",
			types: []TypeSchema{marker, num},
			commands: []CommandSchema{{ID: 5, Name: "A", Slots: []Slot{
				Opt("first", 2), Opt("second", 2),
			}}},
			want: "share type",
		},
	}
	for _, tt := range tests {
		_, err := NewRegistry(tt.types, tt.commands)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tt.name, tt.want, err)
		}
	}
}

func TestSentinelIsFirstSingleMarkerSlot(t *testing.T) {
	reg, err := NewRegistry(
		[]TypeSchema{{ID: 1, Name: "End"}, {ID: 2, Name: "Item", Fields: []FieldDesc{Uint8("n")}}},
		[]CommandSchema{
			{ID: 7, Name: "Stream", Slots: []Slot{List("items", 2), Opt("end", 1)}},
			{ID: 8, Name: "Plain", Slots: []Slot{Opt("item", 2)}},
		},
	)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	stream, _ := reg.Command(7)
	if name, ok := stream.Sentinel(); !ok || name != "end" {
		t.Fatalf("expected sentinel end, got %q %v", name, ok)
	}
	plain, _ := reg.Command(8)
	if _, ok := plain.Sentinel(); ok {
		t.Fatalf("expected no sentinel for Plain")
	}
}
