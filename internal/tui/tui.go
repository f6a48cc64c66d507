// Package tui is the interactive terminal client.
package tui

import (
	"context"
	"log/slog"

	"todo-cli/internal/guard"
	"todo-cli/internal/liststate"
	"todo-cli/internal/model"
	"todo-cli/internal/mutate"
	"todo-cli/internal/query"
	"todo-cli/internal/session"

	tea "github.com/charmbracelet/bubbletea"
)

type AuthClient interface {
	Login(ctx context.Context, in model.Credentials) (model.AuthResponse, error)
	Register(ctx context.Context, in model.Registration) (model.AuthResponse, error)
}

// Deps is everything the TUI drives. The caller owns construction so the
// CLI and the TUI share one composition.
type Deps struct {
	Session  *session.Store
	Verifier *session.Verifier
	Auth     AuthClient
	Engine   *query.Engine
	Ops      *mutate.Ops
	Personal *liststate.Store
	Admin    *liststate.Store
	Routes   guard.Routes
	Log      *slog.Logger

	// Theme is "light", "dark" or "" to follow the terminal.
	Theme string
	// MarkdownStyle is a glamour standard style; "" follows the theme.
	MarkdownStyle string
}

func Run(ctx context.Context, d Deps) error {
	applyColorProfilePreference()
	applyThemePreference(d.Theme)

	m := newAppModel(ctx, d)
	defer m.close()
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
