package guard

import (
	"errors"
	"fmt"
	"log/slog"

	"todo-cli/internal/session"
)

type State int

const (
	Checking State = iota
	Redirecting
	Allowed
)

func (s State) String() string {
	switch s {
	case Redirecting:
		return "redirecting"
	case Allowed:
		return "allowed"
	default:
		return "checking"
	}
}

type Event int

const (
	VerifyCompleted Event = iota
	SessionChanged
	RedirectHandled
	Navigate
)

func (e Event) String() string {
	switch e {
	case VerifyCompleted:
		return "verify_completed"
	case SessionChanged:
		return "session_changed"
	case RedirectHandled:
		return "redirect_handled"
	default:
		return "navigate"
	}
}

// MaxRedirects bounds consecutive RedirectHandled events without an Allowed
// state in between.
const MaxRedirects = 4

var (
	ErrInvalidTransition = errors.New("guard: invalid transition")
	ErrRedirectLoop      = errors.New("guard: too many redirects")
)

type handler func(m *Machine, in input) (State, error)

type input struct {
	snap  session.Snapshot
	route Route
}

type transitionKey struct {
	from State
	ev   Event
}

// transitions is the whole behavior of the machine. Pairs that are missing
// are rejected with ErrInvalidTransition.
var transitions = map[transitionKey]handler{
	{Checking, VerifyCompleted}: func(m *Machine, in input) (State, error) {
		m.verified = true
		m.snap = in.snap
		return m.evaluate(), nil
	},
	{Checking, SessionChanged}: func(m *Machine, in input) (State, error) {
		m.snap = in.snap
		return Checking, nil
	},
	{Checking, Navigate}: func(m *Machine, in input) (State, error) {
		m.route = in.route
		return Checking, nil
	},

	{Redirecting, SessionChanged}: func(m *Machine, in input) (State, error) {
		m.snap = in.snap
		return m.evaluate(), nil
	},
	{Redirecting, RedirectHandled}: func(m *Machine, in input) (State, error) {
		if m.hops >= MaxRedirects {
			return Redirecting, fmt.Errorf("%w: stuck at %s -> %s", ErrRedirectLoop, m.route, m.target)
		}
		m.hops++
		m.route = m.target
		m.target = ""
		return m.evaluate(), nil
	},
	{Redirecting, Navigate}: func(m *Machine, in input) (State, error) {
		m.route = in.route
		m.hops = 0
		return m.evaluate(), nil
	},

	{Allowed, SessionChanged}: func(m *Machine, in input) (State, error) {
		m.snap = in.snap
		return m.evaluate(), nil
	},
	{Allowed, Navigate}: func(m *Machine, in input) (State, error) {
		m.route = in.route
		m.hops = 0
		return m.evaluate(), nil
	},
}

// Machine tracks whether the current route may be shown. It starts in
// Checking and stays there until VerifyCompleted; while Checking or
// Redirecting the route's content must not be shown or run.
type Machine struct {
	routes Routes
	log    *slog.Logger

	state    State
	route    Route
	target   Route
	reason   string
	verified bool
	hops     int
	snap     session.Snapshot
}

func NewMachine(routes Routes, start Route, log *slog.Logger) *Machine {
	if routes == nil {
		routes = DefaultRoutes()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Machine{routes: routes, log: log, route: start}
}

func (m *Machine) State() State { return m.state }

// Route is the route being guarded.
func (m *Machine) Route() Route { return m.route }

// Target is the pending redirect while Redirecting.
func (m *Machine) Target() Route { return m.target }

// Reason explains the pending redirect.
func (m *Machine) Reason() string { return m.reason }

// Visible reports whether the current route may render.
func (m *Machine) Visible() bool { return m.state == Allowed }

func (m *Machine) VerifyCompleted(snap session.Snapshot) (State, error) {
	return m.fire(VerifyCompleted, input{snap: snap})
}

func (m *Machine) SessionChanged(snap session.Snapshot) (State, error) {
	return m.fire(SessionChanged, input{snap: snap})
}

func (m *Machine) RedirectHandled() (State, error) {
	return m.fire(RedirectHandled, input{})
}

func (m *Machine) Navigate(r Route) (State, error) {
	return m.fire(Navigate, input{route: r})
}

func (m *Machine) fire(ev Event, in input) (State, error) {
	h, ok := transitions[transitionKey{m.state, ev}]
	if !ok {
		return m.state, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, m.state)
	}
	from := m.state
	next, err := h(m, in)
	if err != nil {
		return m.state, err
	}
	m.state = next
	if next == Allowed {
		m.hops = 0
	}
	m.log.Debug("guard transition",
		slog.String("event", ev.String()),
		slog.String("from", from.String()),
		slog.String("to", next.String()),
		slog.String("route", string(m.route)),
		slog.String("target", string(m.target)),
	)
	return next, nil
}

func (m *Machine) evaluate() State {
	if !m.verified {
		return Checking
	}
	d := m.routes.Check(m.route, m.snap)
	if d.Allow {
		m.target = ""
		m.reason = ""
		return Allowed
	}
	m.target = d.RedirectTo
	m.reason = d.Reason
	return Redirecting
}
