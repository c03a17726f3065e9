package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

const streamReadBufferSize = 4096

// streamConn pumps a byte stream (TCP socket, serial port) into a Receiver.
type streamConn struct {
	rw     io.ReadWriteCloser
	rx     Receiver
	logger *slog.Logger

	writeMu   sync.Mutex
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

func newStreamConn(rw io.ReadWriteCloser, rx Receiver, logger *slog.Logger) *streamConn {
	c := &streamConn{
		rw:      rw,
		rx:      rx,
		logger:  logger,
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *streamConn) readLoop() {
	defer close(c.done)
	buf := make([]byte, streamReadBufferSize)
	for {
		n, err := c.rw.Read(buf)
		if n > 0 {
			c.logger.Debug("read", "len", n)
			c.rx.OnNotify(append([]byte(nil), buf[:n]...))
		}
		if err == nil {
			// serial reads return (0, nil) on timeout
			select {
			case <-c.closing:
				c.rx.OnDisconnect(nil)
				return
			default:
			}
			continue
		}

		select {
		case <-c.closing:
			c.rx.OnDisconnect(nil)
		default:
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			c.logger.Warn("read failed, connection lost", "error", err)
			c.rx.OnDisconnect(err)
		}
		return
	}
}

func (c *streamConn) write(ctx context.Context, p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closing:
		return ErrNotConnected
	default:
	}
	if err := writeFull(ctx, c.rw, p); err != nil {
		return err
	}
	c.logger.Debug("write", "len", len(p))
	return nil
}

// close stops the pump and waits for it to report the disconnect.
func (c *streamConn) close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		err = c.rw.Close()
	})
	<-c.done
	return err
}

func writeFull(ctx context.Context, w io.Writer, buf []byte) error {
	written := 0
	for written < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		written += n
	}
	return nil
}
