// Package session runs request/response exchanges over one device
// connection. The transport pushes bytes into the engine; the engine cuts
// them into frames and hands them to the single outstanding transaction.
package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"wpplink/internal/bus"
	"wpplink/internal/connectors"
	"wpplink/internal/wpp"
)

// Writer accepts encoded frames. Write returns once the transport has
// accepted the bytes.
type Writer interface {
	Write(ctx context.Context, p []byte) error
}

type Options struct {
	Logger   *slog.Logger
	Bus      bus.MessageBus
	Observer Observer
}

// rxFrame is what OnNotify reports about a frame after handing it over.
type rxFrame struct {
	command wpp.CommandID
	text    string
	raw     []byte
}

type received struct {
	frame *wpp.Frame
	err   error
}

// Engine owns one connection's receive buffer and decoded-frame queue. It
// implements the transport receiver callbacks (OnNotify, OnDisconnect).
type Engine struct {
	id     string
	reg    *wpp.Registry
	w      Writer
	logger *slog.Logger
	bus    bus.MessageBus
	obs    Observer

	busy atomic.Bool

	mu      sync.Mutex
	buf     []byte
	queue   []received
	lostErr error
	isLost  bool

	ready    chan struct{}
	lost     chan struct{}
	lostOnce sync.Once
}

func NewEngine(reg *wpp.Registry, w Writer, opts Options) *Engine {
	if reg == nil {
		reg = wpp.DefaultRegistry()
	}
	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}

	return &Engine{
		id:     id,
		reg:    reg,
		w:      w,
		logger: logger.With("component", "session", "session_id", id),
		bus:    opts.Bus,
		obs:    obs,
		ready:  make(chan struct{}, 1),
		lost:   make(chan struct{}),
	}
}

// ID is the random session id used to correlate logs and bus events.
func (e *Engine) ID() string { return e.id }

func (e *Engine) Registry() *wpp.Registry { return e.reg }

// Lost is closed once the connection is reported gone.
func (e *Engine) Lost() <-chan struct{} { return e.lost }

// OnNotify appends a notified chunk to the receive buffer and queues every
// frame that became complete.
func (e *Engine) OnNotify(chunk []byte) {
	var (
		frames      []rxFrame
		unsolicited []wpp.Header
		unsolRaw    [][]byte
		failures    []error
		failedRaw   [][]byte
	)

	debug := e.logger.Enabled(context.Background(), slog.LevelDebug)

	e.mu.Lock()
	if e.isLost {
		e.mu.Unlock()
		e.logger.Debug("ignoring data after connection loss", "len", len(chunk))
		return
	}
	e.buf = append(e.buf, chunk...)

	off := 0
	for {
		rest := e.buf[off:]
		h, err := wpp.DecodeHeader(rest)
		if err != nil {
			var truncated *wpp.TruncatedDataError
			if errors.As(err, &truncated) {
				break
			}
			// no way to find the next frame start; drop everything buffered
			failures = append(failures, err)
			failedRaw = append(failedRaw, append([]byte(nil), rest...))
			e.queue = append(e.queue, received{err: err})
			off = len(e.buf)
			break
		}
		if len(rest) < h.Length {
			break
		}
		raw := append([]byte(nil), rest[:h.Length]...)
		off += h.Length

		if h.Unsolicited {
			unsolicited = append(unsolicited, h)
			unsolRaw = append(unsolRaw, raw)
			continue
		}
		f, err := e.reg.DecodeFrame(raw)
		if err != nil {
			failures = append(failures, err)
			failedRaw = append(failedRaw, raw)
			e.queue = append(e.queue, received{err: err})
			continue
		}
		// the consumer owns f once it is queued
		rx := rxFrame{command: f.Command, raw: raw}
		if debug {
			rx.text = f.String()
		}
		frames = append(frames, rx)
		e.queue = append(e.queue, received{frame: f})
	}
	if off > 0 {
		e.buf = append([]byte(nil), e.buf[off:]...)
	}
	queued := len(frames) + len(failures)
	e.mu.Unlock()

	if queued > 0 {
		select {
		case e.ready <- struct{}{}:
		default:
		}
	}

	for i, h := range unsolicited {
		e.logger.Debug("dropping unsolicited frame", "command", e.reg.CommandName(h.Command), "hex", hex.EncodeToString(unsolRaw[i]))
		e.obs.UnsolicitedDropped(h.Command)
		e.publish(connectors.TopicUnsolicited, connectors.UnsolicitedFrame{
			SessionID: e.id,
			Command:   uint16(h.Command),
			Hex:       hex.EncodeToString(unsolRaw[i]),
		})
	}
	for i, err := range failures {
		e.logger.Warn("failed to decode frame", "len", len(failedRaw[i]), "hex", hex.EncodeToString(failedRaw[i]), "error", err)
		e.obs.DecodeFailed(err)
	}
	for _, rx := range frames {
		if debug {
			e.logger.Debug("rx", "frame", rx.text, "len", len(rx.raw))
		}
		e.obs.FrameReceived(rx.command, len(rx.raw))
		e.publish(connectors.TopicRawFrameIn, connectors.RawFrame{SessionID: e.id, Hex: hex.EncodeToString(rx.raw), Len: len(rx.raw)})
	}
}

// OnDisconnect marks the connection lost. Every pending and future receive
// fails with ConnectionLostError; later notifications are ignored.
func (e *Engine) OnDisconnect(err error) {
	e.lostOnce.Do(func() {
		e.mu.Lock()
		e.isLost = true
		e.lostErr = err
		e.buf = nil
		e.queue = nil
		e.mu.Unlock()
		close(e.lost)

		status := connectors.ConnectionStatus{
			State:     connectors.ConnectionStateLost,
			SessionID: e.id,
			Timestamp: time.Now(),
		}
		if err != nil {
			status.Err = err.Error()
			e.logger.Warn("connection lost", "error", err)
		} else {
			e.logger.Info("connection closed")
		}
		e.publish(connectors.TopicConnStatus, status)
	})
}

func (e *Engine) lostError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isLost {
		return nil
	}
	return &ConnectionLostError{Err: e.lostErr}
}

// Send encodes f and writes it to the transport. It fails with ErrBusy
// while a transaction is outstanding.
func (e *Engine) Send(ctx context.Context, f *wpp.Frame) error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer e.busy.Store(false)
	return e.send(ctx, f)
}

func (e *Engine) send(ctx context.Context, f *wpp.Frame) error {
	if err := e.lostError(); err != nil {
		return err
	}
	raw, err := e.reg.EncodeFrame(f)
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.Name(), err)
	}
	e.logger.Debug("tx", "frame", f.String(), "len", len(raw))
	if err := e.w.Write(ctx, raw); err != nil {
		return fmt.Errorf("write %s: %w", f.Name(), err)
	}
	e.obs.FrameSent(f.Command, len(raw))
	e.publish(connectors.TopicRawFrameOut, connectors.RawFrame{SessionID: e.id, Hex: hex.EncodeToString(raw), Len: len(raw)})
	return nil
}

// Receive returns the next queued frame, or the decode error recorded for a
// frame that could not be parsed. It blocks until a frame is queued, the
// connection is lost or ctx is done.
func (e *Engine) Receive(ctx context.Context) (*wpp.Frame, error) {
	for {
		e.mu.Lock()
		if e.isLost {
			err := e.lostErr
			e.mu.Unlock()
			return nil, &ConnectionLostError{Err: err}
		}
		if len(e.queue) > 0 {
			r := e.queue[0]
			e.queue[0] = received{}
			e.queue = e.queue[1:]
			e.mu.Unlock()
			return r.frame, r.err
		}
		e.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-e.lost:
		case <-e.ready:
		}
	}
}

// Transact sends f and returns the first reply. A generic error reply is
// returned as *DeviceError.
func (e *Engine) Transact(ctx context.Context, f *wpp.Frame) (*wpp.Frame, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.busy.Store(false)

	start := time.Now()
	reply, err := e.exchange(ctx, f)
	e.done(f.Command, 1, start, err)
	return reply, err
}

// TransactUntilSentinel sends f and merges replies of the same command until
// one carries the sentinel marker. Repeated slots accumulate in arrival
// order; a single slot seen twice fails with *wpp.DuplicateFieldError.
func (e *Engine) TransactUntilSentinel(ctx context.Context, f *wpp.Frame) (*wpp.Frame, error) {
	if f.Schema() == nil {
		return nil, &wpp.EncodeError{Command: f.Command, Reason: "frame has no command schema"}
	}
	if _, ok := f.Schema().Sentinel(); !ok {
		return nil, fmt.Errorf("%s: %w", f.Name(), ErrNoSentinel)
	}
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.busy.Store(false)

	start := time.Now()
	frames := 0
	acc, err := e.exchange(ctx, f)
	if err == nil {
		frames = 1
		for !acc.Complete() {
			var next *wpp.Frame
			next, err = e.receive(ctx)
			if err != nil {
				break
			}
			frames++
			if err = acc.Merge(next); err != nil {
				break
			}
		}
	}
	e.done(f.Command, frames, start, err)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (e *Engine) exchange(ctx context.Context, f *wpp.Frame) (*wpp.Frame, error) {
	e.drainStale()
	if err := e.send(ctx, f); err != nil {
		return nil, err
	}
	return e.receive(ctx)
}

func (e *Engine) receive(ctx context.Context) (*wpp.Frame, error) {
	reply, err := e.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if reply.Command == wpp.CmdError {
		v := reply.Get("error")
		return nil, &DeviceError{Command: wpp.CommandID(v.Int("cmd")), Code: wpp.ErrorCode(v.Int("err"))}
	}
	return reply, nil
}

// drainStale drops frames queued while no transaction was pending; they
// cannot be replies to the request about to be sent.
func (e *Engine) drainStale() {
	e.mu.Lock()
	stale := e.queue
	e.queue = nil
	e.mu.Unlock()

	for _, r := range stale {
		if r.frame != nil {
			e.logger.Warn("discarding stale frame", "frame", r.frame.String())
		} else {
			e.logger.Warn("discarding stale decode error", "error", r.err)
		}
	}
}

func (e *Engine) done(cmd wpp.CommandID, frames int, start time.Time, err error) {
	elapsed := time.Since(start)
	e.obs.TransactionDone(cmd, frames, elapsed, err)

	ev := connectors.TransactionEvent{
		SessionID: e.id,
		Command:   e.reg.CommandName(cmd),
		Frames:    frames,
		Duration:  elapsed,
	}
	if err != nil {
		ev.Err = err.Error()
		e.logger.Debug("transaction failed", "command", ev.Command, "frames", frames, "elapsed", elapsed, "error", err)
	} else {
		e.logger.Debug("transaction done", "command", ev.Command, "frames", frames, "elapsed", elapsed)
	}
	e.publish(connectors.TopicTransaction, ev)
}

func (e *Engine) publish(topic string, msg any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(topic, msg)
}
