// Package guard decides whether a screen or command may run for the current
// session, and where to send the user when it may not.
package guard

import "todo-cli/internal/session"

type Route string

const (
	Home      Route = "/"
	Login     Route = "/auth/login"
	Register  Route = "/auth/register"
	Dashboard Route = "/dashboard"
	Admin     Route = "/admin"
)

// Rule is the single guard primitive. RequireAuth=false means the route is
// for guests only.
type Rule struct {
	RequireAuth  bool
	RequireAdmin bool
	// RedirectTo is where unauthenticated users go; empty means Login.
	RedirectTo Route
}

func Protected() Rule {
	return Rule{RequireAuth: true}
}

// ProtectedTo is Protected with a custom redirect for unauthenticated users.
func ProtectedTo(r Route) Rule {
	return Rule{RequireAuth: true, RedirectTo: r}
}

func AdminOnly() Rule {
	return Rule{RequireAuth: true, RequireAdmin: true}
}

func GuestOnly() Rule {
	return Rule{}
}

type Decision struct {
	Allow      bool
	RedirectTo Route
	Reason     string
}

// Evaluate applies r to snap. It reads nothing but its arguments.
func Evaluate(r Rule, snap session.Snapshot) Decision {
	authed := snap.IsAuthenticated()
	switch {
	case r.RequireAdmin && !snap.IsAdmin():
		return Decision{RedirectTo: Dashboard, Reason: "admin access required"}
	case r.RequireAuth && !authed:
		to := r.RedirectTo
		if to == "" {
			to = Login
		}
		return Decision{RedirectTo: to, Reason: "login required"}
	case !r.RequireAuth && authed:
		if snap.IsAdmin() {
			return Decision{RedirectTo: Admin, Reason: "already logged in"}
		}
		return Decision{RedirectTo: Dashboard, Reason: "already logged in"}
	}
	return Decision{Allow: true}
}

// Routes binds each guarded route to its rule. Routes missing from the table
// are open to everyone.
type Routes map[Route]Rule

func DefaultRoutes() Routes {
	return Routes{
		Login:     GuestOnly(),
		Register:  GuestOnly(),
		Dashboard: Protected(),
		Admin:     AdminOnly(),
	}
}

// Check evaluates the rule bound to route.
func (rs Routes) Check(route Route, snap session.Snapshot) Decision {
	r, ok := rs[route]
	if !ok {
		return Decision{Allow: true}
	}
	return Evaluate(r, snap)
}
