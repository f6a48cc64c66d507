package tui

import (
	"time"

	"todo-cli/internal/guard"
	"todo-cli/internal/model"
	"todo-cli/internal/query"
	"todo-cli/internal/session"
)

type view int

const (
	viewChecking view = iota
	viewHome
	viewLogin
	viewRegister
	viewDashboard
	viewAdmin
)

func viewFor(r guard.Route) view {
	switch r {
	case guard.Login:
		return viewLogin
	case guard.Register:
		return viewRegister
	case guard.Dashboard:
		return viewDashboard
	case guard.Admin:
		return viewAdmin
	default:
		return viewHome
	}
}

func viewToString(v view) string {
	switch v {
	case viewChecking:
		return "checking"
	case viewLogin:
		return "login"
	case viewRegister:
		return "register"
	case viewDashboard:
		return "dashboard"
	case viewAdmin:
		return "admin"
	default:
		return "home"
	}
}

const flashDuration = 3 * time.Second

type verifyDoneMsg struct{ res session.Result }

type sessionChangedMsg struct{ snap session.Snapshot }

type listLoadedMsg struct{ res query.Result }

type authDoneMsg struct {
	register bool
	seq      int
	err      error
}

type mutationDoneMsg struct {
	op   string
	todo model.Todo
	err  error
}

type flashDoneMsg struct{ seq int }

type flashKind int

const (
	flashInfo flashKind = iota
	flashError
)
