package wpp

import (
	"errors"
	"fmt"
)

var (
	// ErrEncode matches every *EncodeError via errors.Is.
	ErrEncode = errors.New("wpp: encode failed")
	// ErrDecode matches every decode-family error via errors.Is.
	ErrDecode = errors.New("wpp: decode failed")
)

// EncodeError reports a value or frame that violates its schema.
type EncodeError struct {
	Command CommandID
	Type    TypeID
	Field   string
	Reason  string
}

func (e *EncodeError) Error() string {
	switch {
	case e.Field != "" && e.Command != 0:
		return fmt.Sprintf("wpp: encode command=%d field=%q: %s", e.Command, e.Field, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("wpp: encode type=%d field=%q: %s", e.Type, e.Field, e.Reason)
	case e.Command != 0:
		return fmt.Sprintf("wpp: encode command=%d: %s", e.Command, e.Reason)
	default:
		return fmt.Sprintf("wpp: encode type=%d: %s", e.Type, e.Reason)
	}
}

func (e *EncodeError) Is(target error) bool { return target == ErrEncode }

// UnknownTypeError reports a value type id missing from the registry.
type UnknownTypeError struct {
	Type TypeID
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("wpp: unknown value type %d (0x%04x)", e.Type, uint16(e.Type))
}

func (e *UnknownTypeError) Is(target error) bool { return target == ErrDecode }

// UnknownCommandError reports a command id missing from the registry.
type UnknownCommandError struct {
	Command CommandID
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("wpp: unknown command %d (0x%04x)", e.Command, uint16(e.Command))
}

func (e *UnknownCommandError) Is(target error) bool { return target == ErrDecode }

// TruncatedDataError reports input that ends before a declared field or header.
type TruncatedDataError struct {
	Type  TypeID
	Field string
	Need  int
	Have  int
}

func (e *TruncatedDataError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("wpp: truncated type=%d field=%q: need %d bytes, have %d", e.Type, e.Field, e.Need, e.Have)
	}
	return fmt.Sprintf("wpp: truncated data: need %d bytes, have %d", e.Need, e.Have)
}

func (e *TruncatedDataError) Is(target error) bool { return target == ErrDecode }

// TrailingDataError reports bytes left over after every declared field was read.
type TrailingDataError struct {
	Type    TypeID
	Command CommandID
	Extra   int
}

func (e *TrailingDataError) Error() string {
	if e.Command != 0 {
		return fmt.Sprintf("wpp: %d trailing bytes after command %d", e.Extra, e.Command)
	}
	return fmt.Sprintf("wpp: %d trailing bytes after value type %d", e.Extra, e.Type)
}

func (e *TrailingDataError) Is(target error) bool { return target == ErrDecode }

// DuplicateFieldError reports a second value for a single-cardinality slot.
type DuplicateFieldError struct {
	Command CommandID
	Field   string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("wpp: command %d: field %q is not repeated but already assigned", e.Command, e.Field)
}

func (e *DuplicateFieldError) Is(target error) bool { return target == ErrDecode }

// BadFrameError reports an envelope that cannot be a WPP frame.
type BadFrameError struct {
	Reason string
}

func (e *BadFrameError) Error() string {
	return "wpp: bad frame: " + e.Reason
}

func (e *BadFrameError) Is(target error) bool { return target == ErrDecode }

// DecodeError reports schema drift: data that parses but does not fit the schema.
type DecodeError struct {
	Command CommandID
	Type    TypeID
	Reason  string
}

func (e *DecodeError) Error() string {
	switch {
	case e.Command != 0 && e.Type != 0:
		return fmt.Sprintf("wpp: decode command=%d type=%d: %s", e.Command, e.Type, e.Reason)
	case e.Command != 0:
		return fmt.Sprintf("wpp: decode command=%d: %s", e.Command, e.Reason)
	default:
		return fmt.Sprintf("wpp: decode type=%d: %s", e.Type, e.Reason)
	}
}

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
