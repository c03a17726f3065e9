package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

const defaultIPPort = 7000

const defaultIPDialTimeout = 6 * time.Second

// IPTransport talks to a TCP bridge that relays the device byte stream.
type IPTransport struct {
	host string
	port int

	mu   sync.Mutex
	conn *streamConn
	tcp  net.Conn
}

// NewIPTransport accepts "host" or "host:port"; a bare host uses port.
func NewIPTransport(host string, port int) *IPTransport {
	if h, p, err := net.SplitHostPort(host); err == nil {
		if n, err := strconv.Atoi(p); err == nil {
			host, port = h, n
		}
	}
	if port == 0 {
		port = defaultIPPort
	}

	return &IPTransport{host: host, port: port}
}

func (t *IPTransport) Name() string {
	return "ip"
}

func (t *IPTransport) StatusTarget() string {
	if t.host == "" {
		return ""
	}

	return net.JoinHostPort(t.host, strconv.Itoa(t.port))
}

func (t *IPTransport) Connect(ctx context.Context, rx Receiver) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	target := t.StatusTarget()
	logger := transportLogger("ip", target, rx)

	if t.conn != nil {
		logger.Debug("connect skipped: already connected")

		return nil
	}

	if t.host == "" {
		logger.Warn("connect failed: host is empty")

		return errors.New("ip host is empty")
	}

	dialer := net.Dialer{Timeout: defaultIPDialTimeout}
	logger.Info("connecting")
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		logger.Warn("connect failed", "error", err)

		return fmt.Errorf("dial tcp: %w", err)
	}
	t.tcp = conn
	t.conn = newStreamConn(conn, rx, logger)
	logger.Info("connected", "remote", conn.RemoteAddr().String())

	return nil
}

func (t *IPTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.tcp = nil
	t.mu.Unlock()

	logger := transportLogger("ip", t.StatusTarget(), nil)
	if conn == nil {
		logger.Debug("close skipped: not connected")

		return nil
	}
	if err := conn.close(); err != nil {
		logger.Warn("close failed", "error", err)

		return err
	}
	logger.Info("closed")

	return nil
}

func (t *IPTransport) Write(ctx context.Context, p []byte) error {
	t.mu.Lock()
	conn, tcp := t.conn, t.tcp
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = tcp.SetWriteDeadline(deadline)
	} else {
		_ = tcp.SetWriteDeadline(time.Time{})
	}
	if err := conn.write(ctx, p); err != nil {
		return fmt.Errorf("write tcp: %w", err)
	}

	return nil
}
