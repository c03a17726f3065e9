// Package auth implements the probe challenge-response handshake. Both
// sides prove knowledge of a shared secret by hashing the other side's
// nonce with the device address; the secret itself never crosses the link.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"wpplink/internal/wpp"
)

// NonceSize is the length of the random challenge each side generates.
const NonceSize = wpp.NonceSize

// ErrHandshakeFinished is returned by Run on a handshake that already
// reached a terminal state. Build a new Handshake to get fresh nonces.
var ErrHandshakeFinished = errors.New("auth: handshake already finished")

// Transactor runs one request/response exchange.
type Transactor interface {
	Transact(ctx context.Context, f *wpp.Frame) (*wpp.Frame, error)
}

type State int

const (
	StateInit State = iota
	StateAwaitProbeResponse
	StateChallenged
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitProbeResponse:
		return "await_probe_response"
	case StateChallenged:
		return "challenged"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state%d", int(s))
	}
}

// AuthenticationError ends a handshake. The nonce pair it used must not be
// reused.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return "auth: " + e.Reason + ": " + e.Err.Error()
	}
	return "auth: " + e.Reason
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

type Option func(*Handshake)

// WithRand replaces the nonce source.
func WithRand(r io.Reader) Option {
	return func(h *Handshake) { h.rand = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handshake) {
		if l != nil {
			h.logger = l.With("component", "auth")
		}
	}
}

// WithExpectedAddress makes the handshake fail when the device challenges
// with a different hardware address.
func WithExpectedAddress(addr string) Option {
	return func(h *Handshake) { h.expectAddr = addr }
}

// Handshake is a single-use authentication conversation.
type Handshake struct {
	reg        *wpp.Registry
	tx         Transactor
	secret     []byte
	rand       io.Reader
	logger     *slog.Logger
	expectAddr string

	state       State
	challenged  bool
	peerAddress string
	peerNonce   []byte
	localNonce  []byte
}

func New(reg *wpp.Registry, tx Transactor, secret []byte, opts ...Option) *Handshake {
	if reg == nil {
		reg = wpp.DefaultRegistry()
	}
	h := &Handshake{
		reg:    reg,
		tx:     tx,
		secret: append([]byte(nil), secret...),
		rand:   rand.Reader,
		logger: slog.Default().With("component", "auth"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handshake) State() State { return h.state }

// Challenged reports whether the device asked for a challenge response.
func (h *Handshake) Challenged() bool { return h.challenged }

// PeerAddress is the hardware address the device challenged with.
func (h *Handshake) PeerAddress() string { return h.peerAddress }

// Run probes the device and answers its challenge if it sends one. On
// success it returns the final probe reply, which carries the device
// identity when available.
func (h *Handshake) Run(ctx context.Context) (*wpp.Frame, error) {
	if h.state != StateInit {
		return nil, ErrHandshakeFinished
	}
	h.state = StateAwaitProbeResponse

	probe, err := h.reg.NewFrame(wpp.CmdProbe)
	if err != nil {
		return nil, h.fail("build probe", err)
	}
	reply, err := h.tx.Transact(ctx, probe)
	if err != nil {
		return nil, h.fail("probe", err)
	}

	switch reply.Command {
	case wpp.CmdProbe:
		h.state = StateAuthenticated
		h.logger.Info("device accepted probe without challenge")
		return reply, nil
	case wpp.CmdProbeChallenge:
	default:
		return nil, h.fail(fmt.Sprintf("unexpected %s reply to probe", reply.Name()), nil)
	}

	challenge := reply.Get("challenge")
	h.state = StateChallenged
	h.challenged = true
	h.peerAddress = challenge.Text("mac")
	h.peerNonce = challenge.Bytes("challenge")
	h.logger.Debug("device challenged", "address", h.peerAddress)

	if h.expectAddr != "" && !strings.EqualFold(h.expectAddr, h.peerAddress) {
		return nil, h.fail(fmt.Sprintf("device address %q does not match %q", h.peerAddress, h.expectAddr), nil)
	}

	h.localNonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(h.rand, h.localNonce); err != nil {
		return nil, h.fail("generate nonce", err)
	}

	answer, err := h.reg.NewFrame(wpp.CmdProbeChallenge)
	if err != nil {
		return nil, h.fail("build challenge answer", err)
	}
	err = errors.Join(
		answer.Set("response", wpp.NewValue(wpp.TypeProbeChallengeResponse).
			Set("answer", ComputeResponse(h.peerNonce, h.peerAddress, h.secret))),
		answer.Set("challenge", wpp.NewValue(wpp.TypeProbeChallenge).
			Set("mac", h.peerAddress).
			Set("challenge", h.localNonce)),
	)
	if err != nil {
		return nil, h.fail("build challenge answer", err)
	}

	final, err := h.tx.Transact(ctx, answer)
	if err != nil {
		return nil, h.fail("challenge answer", err)
	}
	if final.Command != wpp.CmdProbe {
		return nil, h.fail(fmt.Sprintf("unexpected %s reply to challenge answer", final.Name()), nil)
	}
	resp := final.Get("response")
	if resp == nil {
		return nil, h.fail("device did not answer our challenge", nil)
	}
	want := ComputeResponse(h.localNonce, h.peerAddress, h.secret)
	if subtle.ConstantTimeCompare(want, resp.Bytes("answer")) != 1 {
		return nil, h.fail("device answer does not match the shared secret", nil)
	}

	h.state = StateAuthenticated
	h.logger.Info("device authenticated", "address", h.peerAddress)
	return final, nil
}

func (h *Handshake) fail(reason string, err error) error {
	h.state = StateFailed
	h.logger.Warn("handshake failed", "reason", reason, "error", err)
	return &AuthenticationError{Reason: reason, Err: err}
}

// ComputeResponse is the challenge answer: SHA-1 over nonce, the address
// text and the secret.
func ComputeResponse(nonce []byte, address string, secret []byte) []byte {
	h := sha1.New()
	h.Write(nonce)
	h.Write([]byte(address))
	h.Write(secret)
	return h.Sum(nil)
}
