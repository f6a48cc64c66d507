package mutate

import (
	"errors"

	"todo-cli/internal/api"
)

// ErrInFlight is returned when the same site already has a mutation running.
var ErrInFlight = errors.New("mutation already in progress")

const (
	CreateFailed = "Failed to create todo"
	UpdateFailed = "Failed to update todo"
	DeleteFailed = "Failed to delete todo"
)

// Error is a failed mutation. Error() is the text shown to the user: the
// server's message when there is one, Fallback otherwise.
type Error struct {
	Op       string
	ID       string
	Fallback string
	Err      error
}

func (e *Error) Error() string {
	return api.UserMessage(e.Err, e.Fallback)
}

func (e *Error) Unwrap() error { return e.Err }
