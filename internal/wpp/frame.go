package wpp

import (
	"fmt"
	"strings"
)

// Frame is one command with its values grouped by slot. Frames are created
// per call by Registry.NewFrame or DecodeFrame and owned by the caller.
type Frame struct {
	Command     CommandID
	Unsolicited bool

	schema *CommandSchema
	slots  [][]*Value
}

func newFrame(cs *CommandSchema) *Frame {
	return &Frame{
		Command: cs.ID,
		schema:  cs,
		slots:   make([][]*Value, len(cs.Slots)),
	}
}

func (f *Frame) Schema() *CommandSchema { return f.schema }

func (f *Frame) Name() string {
	if f.schema == nil {
		return fmt.Sprintf("command%d", f.Command)
	}
	return f.schema.Name
}

func (f *Frame) slot(name string, v *Value) (int, error) {
	i, ok := f.schema.SlotIndex(name)
	if !ok {
		return 0, &EncodeError{Command: f.Command, Field: name, Reason: "no such field in " + f.schema.Name}
	}
	if v == nil {
		return 0, &EncodeError{Command: f.Command, Field: name, Reason: "nil value"}
	}
	if want := f.schema.Slots[i].Type; v.Type != want {
		return 0, &EncodeError{Command: f.Command, Field: name, Reason: fmt.Sprintf("value has type %d, want %d", v.Type, want)}
	}
	return i, nil
}

// Set assigns a single-valued slot, replacing any previous value. For
// repeated slots it replaces the whole list with v.
func (f *Frame) Set(name string, v *Value) error {
	i, err := f.slot(name, v)
	if err != nil {
		return err
	}
	f.slots[i] = []*Value{v}
	return nil
}

// Append adds v to a repeated slot.
func (f *Frame) Append(name string, v *Value) error {
	i, err := f.slot(name, v)
	if err != nil {
		return err
	}
	if f.schema.Slots[i].Card != Repeated {
		return &EncodeError{Command: f.Command, Field: name, Reason: "field is not repeated"}
	}
	f.slots[i] = append(f.slots[i], v)
	return nil
}

// Get returns the value of a single-valued slot, or nil.
func (f *Frame) Get(name string) *Value {
	i, ok := f.schema.SlotIndex(name)
	if !ok || len(f.slots[i]) == 0 {
		return nil
	}
	return f.slots[i][0]
}

// List returns every value of a slot in arrival order.
func (f *Frame) List(name string) []*Value {
	i, ok := f.schema.SlotIndex(name)
	if !ok {
		return nil
	}
	return f.slots[i]
}

func (f *Frame) Has(name string) bool {
	i, ok := f.schema.SlotIndex(name)
	return ok && len(f.slots[i]) > 0
}

// Complete reports whether the frame carries its command's sentinel marker.
func (f *Frame) Complete() bool {
	name, ok := f.schema.Sentinel()
	return ok && f.Has(name)
}

// Merge folds a later frame of the same command into f. Repeated slots
// append in arrival order; a single slot already populated in f is a
// DuplicateFieldError. On error f is left unchanged.
func (f *Frame) Merge(other *Frame) error {
	if other.Command != f.Command {
		return &DecodeError{
			Command: f.Command,
			Reason:  fmt.Sprintf("cannot merge %s into %s", other.Name(), f.Name()),
		}
	}
	for i, vals := range other.slots {
		if len(vals) == 0 || f.schema.Slots[i].Card == Repeated {
			continue
		}
		if len(f.slots[i]) > 0 {
			return &DuplicateFieldError{Command: f.Command, Field: f.schema.Slots[i].Name}
		}
	}
	for i, vals := range other.slots {
		f.slots[i] = append(f.slots[i], vals...)
	}
	return nil
}

func (f *Frame) String() string {
	var b strings.Builder
	b.WriteString(f.Name())
	if f.Unsolicited {
		b.WriteString("(unsolicited)")
	}
	b.WriteString("{")
	first := true
	for i, vals := range f.slots {
		for _, v := range vals {
			if !first {
				b.WriteString(" ")
			}
			first = false
			fmt.Fprintf(&b, "%s=%s", f.schema.Slots[i].Name, v)
		}
	}
	b.WriteString("}")
	return b.String()
}
