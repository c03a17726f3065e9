package wpp

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the immutable id-to-schema table for values and commands.
// Build it once with NewRegistry and share it; lookups never mutate it.
type Registry struct {
	types     map[TypeID]*TypeSchema
	typeNames map[string]TypeID
	cmds      map[CommandID]*CommandSchema
	cmdNames  map[string]CommandID
}

// NewRegistry validates the schema tables and builds the lookup indexes,
// including the per-command reverse index from value type to slot.
func NewRegistry(types []TypeSchema, commands []CommandSchema) (*Registry, error) {
	r := &Registry{
		types:     make(map[TypeID]*TypeSchema, len(types)),
		typeNames: make(map[string]TypeID, len(types)),
		cmds:      make(map[CommandID]*CommandSchema, len(commands)),
		cmdNames:  make(map[string]CommandID, len(commands)),
	}

	for i := range types {
		ts := types[i]
		ts.Fields = append([]FieldDesc(nil), ts.Fields...)
		if _, dup := r.types[ts.ID]; dup {
			return nil, fmt.Errorf("wpp: duplicate type id %d", ts.ID)
		}
		if ts.Name == "" {
			return nil, fmt.Errorf("wpp: type %d has no name", ts.ID)
		}
		if _, dup := r.typeNames[ts.Name]; dup {
			return nil, fmt.Errorf("wpp: duplicate type name %q", ts.Name)
		}
		r.types[ts.ID] = &ts
		r.typeNames[ts.Name] = ts.ID
	}
	for _, ts := range r.types {
		if err := r.validateType(ts); err != nil {
			return nil, err
		}
	}

	for i := range commands {
		cs := commands[i]
		cs.Slots = append([]Slot(nil), cs.Slots...)
		if uint16(cs.ID)&^commandIDMask != 0 {
			return nil, fmt.Errorf("wpp: command %q id 0x%04x uses reserved bits", cs.Name, uint16(cs.ID))
		}
		if _, dup := r.cmds[cs.ID]; dup {
			return nil, fmt.Errorf("wpp: duplicate command id %d", cs.ID)
		}
		if cs.Name == "" {
			return nil, fmt.Errorf("wpp: command %d has no name", cs.ID)
		}
		if _, dup := r.cmdNames[cs.Name]; dup {
			return nil, fmt.Errorf("wpp: duplicate command name %q", cs.Name)
		}
		if err := r.indexCommand(&cs); err != nil {
			return nil, err
		}
		r.cmds[cs.ID] = &cs
		r.cmdNames[cs.Name] = cs.ID
	}

	return r, nil
}

func (r *Registry) validateType(ts *TypeSchema) error {
	seen := make(map[string]struct{}, len(ts.Fields))
	for _, f := range ts.Fields {
		if f.Name == "" {
			return fmt.Errorf("wpp: type %q has an unnamed field", ts.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("wpp: type %q: duplicate field %q", ts.Name, f.Name)
		}
		seen[f.Name] = struct{}{}

		switch f.Kind {
		case KindInt:
			if f.Max <= f.Min {
				return fmt.Errorf("wpp: type %q field %q: empty range [%d,%d]", ts.Name, f.Name, f.Min, f.Max)
			}
			if !fitsWidth(f) {
				return fmt.Errorf("wpp: type %q field %q: range [%d,%d] does not fit %d bytes", ts.Name, f.Name, f.Min, f.Max, f.Width())
			}
		case KindBytes:
			if f.Size < 0 || f.Size > maxShortLen {
				return fmt.Errorf("wpp: type %q field %q: invalid size %d", ts.Name, f.Name, f.Size)
			}
		case KindText, KindTimestamp:
		case KindNested:
			if _, ok := r.types[f.Nested]; !ok {
				return fmt.Errorf("wpp: type %q field %q: nested type %d is not registered", ts.Name, f.Name, f.Nested)
			}
			if f.Nested == ts.ID {
				return fmt.Errorf("wpp: type %q field %q: type nests itself", ts.Name, f.Name)
			}
		default:
			return fmt.Errorf("wpp: type %q field %q: invalid kind %d", ts.Name, f.Name, f.Kind)
		}
	}
	return nil
}

func (r *Registry) indexCommand(cs *CommandSchema) error {
	cs.byType = make(map[TypeID]int, len(cs.Slots))
	cs.byName = make(map[string]int, len(cs.Slots))
	cs.sentinel = -1
	for i, slot := range cs.Slots {
		ts, ok := r.types[slot.Type]
		if !ok {
			return fmt.Errorf("wpp: command %q slot %q: type %d is not registered", cs.Name, slot.Name, slot.Type)
		}
		if _, dup := cs.byName[slot.Name]; dup {
			return fmt.Errorf("wpp: command %q: duplicate slot %q", cs.Name, slot.Name)
		}
		if other, dup := cs.byType[slot.Type]; dup {
			return fmt.Errorf("wpp: command %q: slots %q and %q share type %d", cs.Name, cs.Slots[other].Name, slot.Name, slot.Type)
		}
		if slot.Card > Repeated {
			return fmt.Errorf("wpp: command %q slot %q: invalid cardinality %d", cs.Name, slot.Name, slot.Card)
		}
		cs.byType[slot.Type] = i
		cs.byName[slot.Name] = i
		if ts.IsMarker() && slot.Card != Repeated && cs.sentinel < 0 {
			cs.sentinel = i
		}
	}
	return nil
}

// Type looks up a value schema.
func (r *Registry) Type(id TypeID) (*TypeSchema, error) {
	ts, ok := r.types[id]
	if !ok {
		return nil, &UnknownTypeError{Type: id}
	}
	return ts, nil
}

func (r *Registry) TypeByName(name string) (*TypeSchema, error) {
	id, ok := r.typeNames[name]
	if !ok {
		return nil, fmt.Errorf("wpp: unknown value type %q", name)
	}
	return r.types[id], nil
}

// Command looks up a command schema.
func (r *Registry) Command(id CommandID) (*CommandSchema, error) {
	cs, ok := r.cmds[id]
	if !ok {
		return nil, &UnknownCommandError{Command: id}
	}
	return cs, nil
}

func (r *Registry) CommandByName(name string) (*CommandSchema, error) {
	id, ok := r.cmdNames[name]
	if !ok {
		return nil, fmt.Errorf("wpp: unknown command %q", name)
	}
	return r.cmds[id], nil
}

// CommandName is a logging helper; unknown ids render as their number.
func (r *Registry) CommandName(id CommandID) string {
	if cs, ok := r.cmds[id]; ok {
		return cs.Name
	}
	return fmt.Sprintf("cmd%d", uint16(id))
}

// Commands returns the registered command ids in ascending order.
func (r *Registry) Commands() []CommandID {
	out := make([]CommandID, 0, len(r.cmds))
	for id := range r.cmds {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NewFrame returns an empty frame for the given command.
func (r *Registry) NewFrame(id CommandID) (*Frame, error) {
	cs, err := r.Command(id)
	if err != nil {
		return nil, err
	}
	return newFrame(cs), nil
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	reg, err := NewRegistry(BuiltinTypes(), BuiltinCommands())
	if err != nil {
		panic(fmt.Sprintf("wpp: builtin schema table is invalid: %v", err))
	}
	return reg
})

// DefaultRegistry returns the registry built from the builtin tables. It is
// constructed on first use and shared afterwards.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}
