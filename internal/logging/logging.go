package logging

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"wpplink/internal/config"
)

// Manager owns the process logger and the optional log file. Records go to
// stderr so command output on stdout stays machine readable.
type Manager struct {
	mu     sync.RWMutex
	logger *slog.Logger
	file   *os.File
	out    io.Writer
}

func NewManager() *Manager {
	m := &Manager{out: os.Stderr}
	m.logger = slog.New(newHandler(m.out, formatText, slog.LevelInfo))

	return m
}

type format int

const (
	formatText format = iota
	formatJSON
)

func parseFormat(raw string) (format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "text":
		return formatText, nil
	case "json":
		return formatJSON, nil
	default:
		return formatText, fmt.Errorf("unsupported log format: %q", raw)
	}
}

func newHandler(w io.Writer, f format, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: frameBytesAsHex}
	if f == formatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// frameBytesAsHex renders raw frame bytes the way they appear on the wire.
func frameBytesAsHex(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}
	if b, ok := a.Value.Any().([]byte); ok {
		return slog.String(a.Key, hex.EncodeToString(b))
	}
	return a
}

// Configure applies cfg and makes the result the slog default. A previous
// log file is closed; filePath is only opened when cfg.LogToFile is set.
func (m *Manager) Configure(cfg config.LoggingConfig, filePath string) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}
	f, err := parseFormat(cfg.Format)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file != nil {
		_ = m.file.Close()
		m.file = nil
	}

	dst := m.out
	if cfg.LogToFile {
		// #nosec G304 -- path is resolved by app runtime and points to user config dir.
		file, err := os.OpenFile(filepath.Clean(filePath), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		m.file = file
		dst = newFanoutWriter(m.out, file)
	}

	m.logger = slog.New(newHandler(dst, f, level))
	slog.SetDefault(m.logger)

	return nil
}

// Logger returns the current logger tagged with component.
func (m *Manager) Logger(component string) *slog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.logger.With("component", component)
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	if err != nil {
		return fmt.Errorf("close log file: %w", err)
	}

	return nil
}

func parseLevel(raw string) (slog.Leveler, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return nil, fmt.Errorf("unsupported log level: %q", raw)
	}
}

// fanoutWriter copies every record to all destinations. It only fails when
// none of them took the whole record.
type fanoutWriter struct {
	writers []io.Writer
}

func newFanoutWriter(writers ...io.Writer) io.Writer {
	fw := &fanoutWriter{}
	for _, w := range writers {
		if w != nil {
			fw.writers = append(fw.writers, w)
		}
	}

	return fw
}

func (w *fanoutWriter) Write(p []byte) (int, error) {
	var firstErr error
	delivered := false
	for _, dst := range w.writers {
		n, err := dst.Write(p)
		switch {
		case err != nil:
		case n != len(p):
			err = io.ErrShortWrite
		default:
			delivered = true
			continue
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if delivered {
		return len(p), nil
	}
	if firstErr == nil {
		// no destinations at all
		return len(p), nil
	}

	return 0, firstErr
}
