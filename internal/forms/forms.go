// Package forms validates user input before it is submitted to the API.
package forms

import (
	"net/mail"
	"sort"
	"strings"
	"unicode/utf8"

	"todo-cli/internal/model"
)

const (
	MinPasswordLen = 6
	MinNameLen     = 2
)

// Errors maps a field name to its validation message.
type Errors map[string]string

func (e Errors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return strings.Join(parts, "; ")
}

// Field returns the message for name, or "".
func (e Errors) Field(name string) string {
	if e == nil {
		return ""
	}
	return e[name]
}

func (e Errors) orNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s, ".")
}

func ValidateLogin(in model.Credentials) error {
	errs := Errors{}
	if !validEmail(strings.TrimSpace(in.Email)) {
		errs["email"] = "Invalid email address"
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLen {
		errs["password"] = "Password must be at least 6 characters"
	}
	return errs.orNil()
}

func ValidateRegister(in model.Registration) error {
	errs := Errors{}
	if utf8.RuneCountInString(strings.TrimSpace(in.FullName)) < MinNameLen {
		errs["fullName"] = "Name must be at least 2 characters"
	}
	if !validEmail(strings.TrimSpace(in.Email)) {
		errs["email"] = "Invalid email address"
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLen {
		errs["password"] = "Password must be at least 6 characters"
	}
	return errs.orNil()
}

func ValidateTodo(in model.NewTodo) error {
	if strings.TrimSpace(in.Item) == "" {
		return Errors{"item": "Item is required"}
	}
	return nil
}
