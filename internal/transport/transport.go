// Package transport moves raw WPP bytes between the host and a device. It
// does not know about frames: whatever arrives is pushed to the Receiver in
// arrival order.
package transport

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by Write before Connect or after Close.
var ErrNotConnected = errors.New("transport is not connected")

// Receiver consumes inbound bytes. OnNotify may be called from a transport
// goroutine; OnDisconnect is called at most once per connection, with a nil
// error when the host closed the link itself.
type Receiver interface {
	OnNotify(chunk []byte)
	OnDisconnect(err error)
}

type Transport interface {
	Name() string
	Connect(ctx context.Context, rx Receiver) error
	Write(ctx context.Context, p []byte) error
	Close() error
}

type StatusTargetResolver interface {
	StatusTarget() string
}
