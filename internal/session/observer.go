package session

import (
	"time"

	"wpplink/internal/wpp"
)

// Observer receives engine events for metrics. Methods are called without
// engine locks held and must not block.
type Observer interface {
	FrameSent(cmd wpp.CommandID, size int)
	FrameReceived(cmd wpp.CommandID, size int)
	UnsolicitedDropped(cmd wpp.CommandID)
	DecodeFailed(err error)
	TransactionDone(cmd wpp.CommandID, frames int, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) FrameSent(wpp.CommandID, int)                             {}
func (nopObserver) FrameReceived(wpp.CommandID, int)                         {}
func (nopObserver) UnsolicitedDropped(wpp.CommandID)                         {}
func (nopObserver) DecodeFailed(error)                                       {}
func (nopObserver) TransactionDone(wpp.CommandID, int, time.Duration, error) {}
