package wpp

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// HeaderLen is the size of the frame envelope before the body.
	HeaderLen = 5
	// MaxBodyLen is the largest body the length field can describe.
	MaxBodyLen = math.MaxUint16

	frameFlag      = 1
	unsolicitedBit = 0x4000
	commandIDMask  = 0x3FFF // bit 0x8000 is reserved and ignored
)

// Header is the decoded frame envelope.
type Header struct {
	Command     CommandID
	Length      int // total frame length including the header
	Unsolicited bool
}

// DecodeHeader peeks at the envelope so callers can tell whether a whole
// frame has been buffered.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, &TruncatedDataError{Need: HeaderLen, Have: len(b)}
	}
	if b[0] != frameFlag {
		return Header{}, &BadFrameError{Reason: fmt.Sprintf("flag byte is 0x%02x, want 0x01", b[0])}
	}
	raw := binary.BigEndian.Uint16(b[1:])
	return Header{
		Command:     CommandID(raw & commandIDMask),
		Length:      int(binary.BigEndian.Uint16(b[3:])) + HeaderLen,
		Unsolicited: raw&unsolicitedBit != 0,
	}, nil
}

// EncodeFrame serialises f. Values are emitted in slot order, repeated slots
// one value per element.
func (r *Registry) EncodeFrame(f *Frame) ([]byte, error) {
	cs, err := r.Command(f.Command)
	if err != nil {
		return nil, &EncodeError{Command: f.Command, Reason: "command is not registered"}
	}
	if f.schema != nil && f.schema != cs {
		return nil, &EncodeError{Command: f.Command, Reason: "frame was built from another registry"}
	}

	raw := uint16(cs.ID)
	if f.Unsolicited {
		raw |= unsolicitedBit
	}
	out := make([]byte, HeaderLen, 64)
	out[0] = frameFlag
	binary.BigEndian.PutUint16(out[1:], raw)

	for i, slot := range cs.Slots {
		var vals []*Value
		if i < len(f.slots) {
			vals = f.slots[i]
		}
		if len(vals) == 0 && slot.Card == Required {
			return nil, &EncodeError{Command: cs.ID, Field: slot.Name, Reason: "required field is missing"}
		}
		if len(vals) > 1 && slot.Card != Repeated {
			return nil, &EncodeError{Command: cs.ID, Field: slot.Name, Reason: "field is not repeated"}
		}
		for _, v := range vals {
			if v == nil || v.Type != slot.Type {
				return nil, &EncodeError{Command: cs.ID, Field: slot.Name, Reason: "value does not match the field type"}
			}
			out, err = r.appendValue(out, v)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", cs.Name, slot.Name, err)
			}
		}
	}

	bodyLen := len(out) - HeaderLen
	if bodyLen > MaxBodyLen {
		return nil, &EncodeError{Command: cs.ID, Reason: fmt.Sprintf("body of %d bytes exceeds %d", bodyLen, MaxBodyLen)}
	}
	binary.BigEndian.PutUint16(out[3:], uint16(bodyLen))
	return out, nil
}

// DecodeFrame parses exactly one frame. Each value is routed to its slot by
// type id; a frame with any violation is rejected as a whole.
func (r *Registry) DecodeFrame(b []byte) (*Frame, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return nil, err
	}
	if len(b) < h.Length {
		return nil, &TruncatedDataError{Need: h.Length, Have: len(b)}
	}
	if len(b) > h.Length {
		return nil, &TrailingDataError{Command: h.Command, Extra: len(b) - h.Length}
	}
	cs, err := r.Command(h.Command)
	if err != nil {
		return nil, err
	}

	f := newFrame(cs)
	f.Unsolicited = h.Unsolicited
	body := b[HeaderLen:h.Length]
	for len(body) > 0 {
		v, n, err := r.readEntry(body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cs.Name, err)
		}
		i, ok := cs.SlotForType(v.Type)
		if !ok {
			return nil, &DecodeError{Command: cs.ID, Type: v.Type, Reason: "value type is not part of " + cs.Name}
		}
		slot := cs.Slots[i]
		if slot.Card != Repeated && len(f.slots[i]) > 0 {
			return nil, &DuplicateFieldError{Command: cs.ID, Field: slot.Name}
		}
		f.slots[i] = append(f.slots[i], v)
		body = body[n:]
	}

	for i, slot := range cs.Slots {
		if slot.Card == Required && len(f.slots[i]) == 0 {
			return nil, &DecodeError{Command: cs.ID, Reason: fmt.Sprintf("required field %q is missing", slot.Name)}
		}
	}
	return f, nil
}
