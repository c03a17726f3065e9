package transport

import "log/slog"

// sessionIdentifier is implemented by receivers bound to a session, such as
// the session engine.
type sessionIdentifier interface {
	ID() string
}

// transportLogger tags records with the transport name, its target when
// known and the session id of rx when it has one. rx may be nil.
func transportLogger(name, target string, rx Receiver, attrs ...any) *slog.Logger {
	args := []any{"component", "transport", "transport", name}
	if target != "" {
		args = append(args, "target", target)
	}
	if s, ok := rx.(sessionIdentifier); ok {
		args = append(args, "session_id", s.ID())
	}

	return slog.With(append(args, attrs...)...)
}
