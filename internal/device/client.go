// Package device implements the host side of the watch and scale commands
// on top of a session engine.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wpplink/internal/auth"
	"wpplink/internal/wpp"
)

// DefaultDumpMask is what DebugDump enables when the caller passes 0.
const DefaultDumpMask = wpp.DebugMaskDblibDump | wpp.DebugMaskDblibForceDumpAll | wpp.DebugMaskWlog

// maxDumpRounds stops a device that keeps handing out anchors.
const maxDumpRounds = 1024

// restoreMaskGrace bounds the best-effort mask restore after a failed dump.
var restoreMaskGrace = 3 * time.Second

// ErrShortRead is returned when a flash read ends before the requested
// length arrived.
var ErrShortRead = errors.New("device: flash read returned fewer bytes than requested")

// Transactor is the engine surface the client needs. *session.Engine
// satisfies it.
type Transactor interface {
	Transact(ctx context.Context, f *wpp.Frame) (*wpp.Frame, error)
	TransactUntilSentinel(ctx context.Context, f *wpp.Frame) (*wpp.Frame, error)
}

// UnexpectedReplyError reports a reply that does not answer the request.
type UnexpectedReplyError struct {
	Request wpp.CommandID
	Reply   string
	Missing string
}

func (e *UnexpectedReplyError) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("device: %s reply carries no %s", e.Reply, e.Missing)
	}
	return fmt.Sprintf("device: unexpected %s reply to command %d", e.Reply, e.Request)
}

type Options struct {
	Logger *slog.Logger
	// Timeout bounds every single transaction. Zero leaves it to ctx.
	Timeout time.Duration
}

type Client struct {
	reg     *wpp.Registry
	tx      Transactor
	logger  *slog.Logger
	timeout time.Duration
}

func NewClient(reg *wpp.Registry, tx Transactor, opts Options) *Client {
	if reg == nil {
		reg = wpp.DefaultRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		reg:     reg,
		tx:      tx,
		logger:  logger.With("component", "device"),
		timeout: opts.Timeout,
	}
}

// AuthResult is the outcome of a successful handshake.
type AuthResult struct {
	Info        Info
	Challenged  bool
	PeerAddress string
}

// Authenticate runs a fresh probe handshake with secret.
func (c *Client) Authenticate(ctx context.Context, secret []byte, opts ...auth.Option) (AuthResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	opts = append([]auth.Option{auth.WithLogger(c.logger)}, opts...)
	h := auth.New(c.reg, c.tx, secret, opts...)
	final, err := h.Run(ctx)
	if err != nil {
		return AuthResult{}, err
	}
	res := AuthResult{
		Info:        infoFromProbe(final),
		Challenged:  h.Challenged(),
		PeerAddress: h.PeerAddress(),
	}
	if res.PeerAddress == "" {
		res.PeerAddress = res.Info.MAC
	}
	return res, nil
}

func (c *Client) TrackerUser(ctx context.Context) (User, error) {
	reply, err := c.call(ctx, wpp.CmdTrackerUserGet, nil)
	if err != nil {
		return User{}, err
	}
	v, err := require(reply, "user")
	if err != nil {
		return User{}, err
	}
	return User{
		UID:         v.Uint32("uid"),
		WeightGrams: v.Uint32("weight_g"),
		HeightCm:    v.Uint32("height_cm"),
		Gender:      uint8(v.Int("gender")),
		Birth:       v.Time("birth"),
		FirstName:   v.Text("first_name"),
	}, nil
}

func (c *Client) BatteryStatus(ctx context.Context) (BatteryStatus, error) {
	reply, err := c.call(ctx, wpp.CmdBatteryStatus, nil)
	if err != nil {
		return BatteryStatus{}, err
	}
	v, err := require(reply, "status")
	if err != nil {
		return BatteryStatus{}, err
	}
	return BatteryStatus{
		Percent:    uint8(v.Int("percent")),
		State:      uint8(v.Int("state")),
		MilliVolts: v.Uint32("mv"),
	}, nil
}

// BatteryPercent returns the charge level and, when the device reports it,
// the battery voltage.
func (c *Client) BatteryPercent(ctx context.Context) (BatteryLevel, error) {
	reply, err := c.call(ctx, wpp.CmdBatteryPercent, nil)
	if err != nil {
		return BatteryLevel{}, err
	}
	if !reply.Has("percent") && !reply.Has("voltage") {
		return BatteryLevel{}, &UnexpectedReplyError{Request: wpp.CmdBatteryPercent, Reply: reply.Name(), Missing: "percent"}
	}
	return BatteryLevel{
		Percent:    uint16(reply.Get("percent").Int("percent")),
		MilliVolts: uint16(reply.Get("voltage").Int("mv")),
		HasPercent: reply.Has("percent"),
		HasVoltage: reply.Has("voltage"),
	}, nil
}

// SetSwimTracking toggles swim detection. The device does not persist it
// across reboots.
func (c *Client) SetSwimTracking(ctx context.Context, enabled bool) error {
	_, err := c.call(ctx, wpp.CmdSwimStatusSet, func(f *wpp.Frame) error {
		return f.Set("status", wpp.NewValue(wpp.TypeSwimStatus).Set("enabled", enabled))
	})
	return err
}

func (c *Client) SetDebugMask(ctx context.Context, mask wpp.DebugMask) error {
	_, err := c.call(ctx, wpp.CmdDebugSet, func(f *wpp.Frame) error {
		return f.Set("mask", wpp.NewValue(wpp.TypeDebugDumpMask).Set("mask", uint32(mask)))
	})
	if err == nil {
		c.logger.Debug("debug mask set", "mask", mask)
	}
	return err
}

// ReadFlash reads length bytes of SPI flash starting at addr. The device
// streams 16-byte chunks and ends with a marker; the tail of the last chunk
// beyond length is dropped.
func (c *Client) ReadFlash(ctx context.Context, addr, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, errors.New("device: flash read length must be positive")
	}
	reply, err := c.callAll(ctx, wpp.CmdFlashRead, func(f *wpp.Frame) error {
		return f.Set("cmd", wpp.NewValue(wpp.TypeSpiFlashCmd).
			Set("sbz", 0).
			Set("addr", addr).
			Set("len", length).
			Set("unused", 0))
	})
	if err != nil {
		return nil, fmt.Errorf("read flash 0x%x+0x%x: %w", addr, length, err)
	}

	chunks := reply.List("chunks")
	out := make([]byte, 0, len(chunks)*wpp.FlashChunkSize)
	for _, ch := range chunks {
		out = append(out, ch.Bytes("data")...)
	}
	if uint64(len(out)) < uint64(length) {
		return out, fmt.Errorf("read flash 0x%x+0x%x: got %d bytes: %w", addr, length, len(out), ErrShortRead)
	}
	c.logger.Debug("flash read", "addr", addr, "len", length, "chunks", len(chunks))
	return out[:length], nil
}

// DebugDump drains the device debug buffers selected by mask (DefaultDumpMask
// when 0). fn is called once per dump that carries a type header. Afterwards
// the dump is acknowledged and the default mask is restored. It returns the
// number of dump rounds.
func (c *Client) DebugDump(ctx context.Context, mask wpp.DebugMask, fn func(Dump) error) (int, error) {
	if mask == 0 {
		mask = DefaultDumpMask
	}

	rounds, err := c.dumpRounds(ctx, mask, fn)
	if err != nil {
		c.restoreDebugMask(ctx)
		return rounds, err
	}
	if _, err := c.call(ctx, wpp.CmdDebugDumpAck, nil); err != nil {
		c.restoreDebugMask(ctx)
		return rounds, fmt.Errorf("acknowledge debug dump: %w", err)
	}
	if err := c.SetDebugMask(ctx, wpp.DebugMaskDefault); err != nil {
		return rounds, fmt.Errorf("restore debug mask: %w", err)
	}
	return rounds, nil
}

func (c *Client) dumpRounds(ctx context.Context, mask wpp.DebugMask, fn func(Dump) error) (int, error) {
	anchor := uint32(0)
	for round := 0; ; round++ {
		if round >= maxDumpRounds {
			return round, fmt.Errorf("device: debug dump did not finish after %d rounds", maxDumpRounds)
		}
		if err := c.SetDebugMask(ctx, mask); err != nil {
			return round, fmt.Errorf("set debug mask: %w", err)
		}
		reply, err := c.callAll(ctx, wpp.CmdDebugDump, func(f *wpp.Frame) error {
			return f.Set("anchor", wpp.NewValue(wpp.TypeDebugDumpAnchor).Set("value", anchor))
		})
		if err != nil {
			return round, fmt.Errorf("debug dump round %d: %w", round, err)
		}

		if t := reply.Get("type"); t != nil {
			d := Dump{
				Anchor: anchor,
				Type:   wpp.DumpType(t.Uint32("type")),
				Size:   t.Uint32("size"),
			}
			for _, data := range reply.List("data") {
				d.Data = append(d.Data, data.Bytes("buf")...)
			}
			c.logger.Debug("debug dump received", "type", d.Type, "size", d.Size, "bytes", len(d.Data))
			if fn != nil {
				if err := fn(d); err != nil {
					return round + 1, err
				}
			}
		}

		next := reply.Get("anchor")
		if next == nil {
			return round + 1, nil
		}
		anchor = next.Uint32("value")
	}
}

// restoreDebugMask is best effort; the caller is already failing.
func (c *Client) restoreDebugMask(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreMaskGrace)
	defer cancel()
	if err := c.SetDebugMask(ctx, wpp.DebugMaskDefault); err != nil {
		c.logger.Warn("failed to restore default debug mask", "error", err)
	}
}

// Disconnect asks the device to end the session. The device answers before
// it drops the link.
func (c *Client) Disconnect(ctx context.Context) error {
	_, err := c.call(ctx, wpp.CmdDisconnect, nil)
	return err
}

func (c *Client) call(ctx context.Context, id wpp.CommandID, fill func(*wpp.Frame) error) (*wpp.Frame, error) {
	req, err := c.build(id, fill)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	reply, err := c.tx.Transact(ctx, req)
	if err != nil {
		return nil, err
	}
	return reply, expectReply(id, reply)
}

func (c *Client) callAll(ctx context.Context, id wpp.CommandID, fill func(*wpp.Frame) error) (*wpp.Frame, error) {
	req, err := c.build(id, fill)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	reply, err := c.tx.TransactUntilSentinel(ctx, req)
	if err != nil {
		return nil, err
	}
	return reply, expectReply(id, reply)
}

func (c *Client) build(id wpp.CommandID, fill func(*wpp.Frame) error) (*wpp.Frame, error) {
	f, err := c.reg.NewFrame(id)
	if err != nil {
		return nil, err
	}
	if fill != nil {
		if err := fill(f); err != nil {
			return nil, fmt.Errorf("build %s: %w", f.Name(), err)
		}
	}
	return f, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func expectReply(id wpp.CommandID, reply *wpp.Frame) error {
	if reply.Command != id {
		return &UnexpectedReplyError{Request: id, Reply: reply.Name()}
	}
	return nil
}

func require(reply *wpp.Frame, slot string) (*wpp.Value, error) {
	v := reply.Get(slot)
	if v == nil {
		return nil, &UnexpectedReplyError{Request: reply.Command, Reply: reply.Name(), Missing: slot}
	}
	return v, nil
}
