package guard

import (
	"fmt"
	"log/slog"

	"todo-cli/internal/session"
)

// RedirectError is returned when a guarded command may not run. To is where
// the guard would send the user after following every redirect.
type RedirectError struct {
	Route  Route
	To     Route
	Reason string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("%s (%s -> %s)", e.Reason, e.Route, e.To)
}

// Enforce runs a fresh Machine for route after verification has finished and
// follows redirects until a route is allowed. It returns nil when route
// itself is allowed.
func Enforce(routes Routes, route Route, snap session.Snapshot, log *slog.Logger) error {
	m := NewMachine(routes, route, log)
	st, err := m.VerifyCompleted(snap)
	if err != nil {
		return err
	}
	if st == Allowed {
		return nil
	}
	reason := m.Reason()
	for st == Redirecting {
		if st, err = m.RedirectHandled(); err != nil {
			return err
		}
	}
	return &RedirectError{Route: route, To: m.Route(), Reason: reason}
}
