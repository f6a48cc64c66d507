package cli

import (
	"errors"
	"fmt"

	"todo-cli/internal/api"
	"todo-cli/internal/guard"
)

// redirectError is a guard refusal phrased for the command line.
type redirectError struct {
	err  *guard.RedirectError
	hint string
}

func (e redirectError) Error() string {
	if e.hint == "" {
		return e.err.Reason
	}
	return fmt.Sprintf("%s; %s", e.err.Reason, e.hint)
}

func (e redirectError) Unwrap() error { return e.err }

func guardError(err error) error {
	var rerr *guard.RedirectError
	if !errors.As(err, &rerr) {
		return err
	}
	hint := ""
	switch rerr.To {
	case guard.Login, guard.Register:
		hint = "run `todo login` first"
	case guard.Dashboard:
		if rerr.Route == guard.Admin {
			hint = "use `todo todos list` for your own list"
		} else {
			hint = "run `todo logout` to switch accounts"
		}
	case guard.Admin:
		hint = "run `todo logout` to switch accounts"
	}
	return redirectError{err: rerr, hint: hint}
}

// userError replaces API and transport failures with the text a user should
// see; other errors pass through.
func userError(err error, fallback string) error {
	var apiErr *api.Error
	var tErr *api.TransportError
	if errors.As(err, &apiErr) || errors.As(err, &tErr) {
		return errors.New(api.UserMessage(err, fallback))
	}
	return err
}
