package connectors

import "time"

// ConnectionState describes the connector lifecycle state.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateLost         ConnectionState = "lost"
)

// ConnectionStatus is a bus event snapshot of current connector status.
type ConnectionStatus struct {
	State         ConnectionState
	Err           string
	TransportName string
	Target        string
	SessionID     string
	Timestamp     time.Time
}

// RawFrame carries frame diagnostics for debug/log views.
type RawFrame struct {
	SessionID string
	Hex       string
	Len       int
}

// UnsolicitedFrame is a device-initiated frame that was dropped instead of
// being matched to a request.
type UnsolicitedFrame struct {
	SessionID string
	Command   uint16
	Hex       string
}

// TransactionEvent summarises one finished request/response exchange.
type TransactionEvent struct {
	SessionID string
	Command   string
	Frames    int
	Duration  time.Duration
	Err       string
}

// AuthEvent reports the outcome of a probe handshake.
type AuthEvent struct {
	SessionID  string
	Address    string
	Challenged bool
	Err        string
	Timestamp  time.Time
}
