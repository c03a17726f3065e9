package session

import (
	"errors"
	"fmt"

	"wpplink/internal/wpp"
)

// ErrBusy is returned when a transaction is started while another one on
// the same engine has not resolved yet.
var ErrBusy = errors.New("session: another transaction is in progress")

// ErrNoSentinel is returned by TransactUntilSentinel for commands whose
// schema has no marker slot to end the exchange.
var ErrNoSentinel = errors.New("session: command has no sentinel field")

// DeviceError is a failure reported by the device through the generic error
// command. Retrying the whole transaction may succeed.
type DeviceError struct {
	Command wpp.CommandID
	Code    wpp.ErrorCode
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device rejected command %d: %s (%d)", e.Command, e.Code, int32(e.Code))
}

// ConnectionLostError is returned by every receive pending at, or issued
// after, the moment the transport dropped.
type ConnectionLostError struct {
	Err error
}

func (e *ConnectionLostError) Error() string {
	if e.Err == nil {
		return "session: connection lost"
	}
	return "session: connection lost: " + e.Err.Error()
}

func (e *ConnectionLostError) Unwrap() error { return e.Err }
