package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a failure reported by the API, either through a non-empty errors[]
// in the response envelope or through a non-2xx status.
type Error struct {
	Status   int
	Message  string
	Messages []string
}

func (e *Error) Error() string {
	if len(e.Messages) > 0 {
		return strings.Join(e.Messages, ", ")
	}
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	return fmt.Sprintf("api error: HTTP %d", e.Status)
}

// Unauthorized reports whether the server rejected the credentials.
func (e *Error) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// TransportError wraps failures that happened before a response envelope was
// available (dial, TLS, timeout, undecodable body).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrNoContent is returned by callers that require a payload the server omitted.
var ErrNoContent = errors.New("api: empty content")

// IsUnauthorized reports whether err is an API 401.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}

// UserMessage picks the text shown to a user for err: the server's message,
// then the joined error list, then the transport cause, then fallback.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if m := strings.TrimSpace(apiErr.Message); m != "" {
			return m
		}
		if len(apiErr.Messages) > 0 {
			return strings.Join(apiErr.Messages, ", ")
		}
		return fallback
	}
	var tErr *TransportError
	if errors.As(err, &tErr) && tErr.Err != nil {
		if m := strings.TrimSpace(tErr.Err.Error()); m != "" {
			return m
		}
	}
	return fallback
}
