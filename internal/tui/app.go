package tui

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"todo-cli/internal/api"
	"todo-cli/internal/guard"
	"todo-cli/internal/liststate"
	"todo-cli/internal/model"
	"todo-cli/internal/mutate"
	"todo-cli/internal/query"
	"todo-cli/internal/session"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// sessionFeed forwards session changes from any goroutine into the program.
type sessionFeed struct {
	ch          chan session.Snapshot
	unsubscribe func()
}

func (f *sessionFeed) wait() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-f.ch
		if !ok {
			return nil
		}
		return sessionChangedMsg{snap: snap}
	}
}

type appModel struct {
	ctx  context.Context
	deps Deps
	log  *slog.Logger

	width  int
	height int

	view    view
	machine *guard.Machine
	spinner spinner.Model
	feed    *sessionFeed

	login    authForm
	register authForm
	personal listPane
	admin    listPane

	// lastUser is the user whose data the query cache holds.
	lastUser string

	flash     string
	flashKind flashKind
	flashSeq  int
}

func newAppModel(ctx context.Context, d Deps) appModel {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Routes == nil {
		d.Routes = guard.DefaultRoutes()
	}
	if d.Personal == nil {
		d.Personal = liststate.New(liststate.PersonalDefaults())
	}
	if d.Admin == nil {
		d.Admin = liststate.New(liststate.AdminDefaults())
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	feed := &sessionFeed{ch: make(chan session.Snapshot, 8)}
	feed.unsubscribe = d.Session.Subscribe(func(snap session.Snapshot) {
		select {
		case feed.ch <- snap:
		default:
			// A message is already pending; it reads the latest snapshot.
		}
	})

	return appModel{
		ctx:      ctx,
		deps:     d,
		log:      d.Log,
		view:     viewChecking,
		machine:  guard.NewMachine(d.Routes, guard.Home, d.Log),
		spinner:  sp,
		feed:     feed,
		login:    newLoginForm(),
		register: newRegisterForm(),
		personal: newListPane(query.Personal, d.Personal),
		admin:    newListPane(query.Admin, d.Admin),
		lastUser: userKey(d.Session.Snapshot()),
	}
}

func (m appModel) close() {
	if m.feed != nil && m.feed.unsubscribe != nil {
		m.feed.unsubscribe()
	}
}

func userKey(snap session.Snapshot) string {
	if !snap.IsAuthenticated() || snap.User == nil {
		return ""
	}
	return snap.User.ID
}

func (m appModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.verify(), m.feed.wait())
}

func (m appModel) verify() tea.Cmd {
	v := m.deps.Verifier
	ctx := m.ctx
	return func() tea.Msg {
		return verifyDoneMsg{res: v.Run(ctx)}
	}
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case verifyDoneMsg:
		if msg.res.Err != nil {
			m.log.Info("stored session rejected", slog.Any("err", msg.res.Err))
		}
		if _, err := m.machine.VerifyCompleted(m.deps.Session.Snapshot()); err != nil {
			m.log.Warn("guard", slog.Any("err", err))
		}
		cmd := m.settle()
		if msg.res.Outcome == session.Cleared {
			return m, tea.Batch(cmd, m.setFlash(flashInfo, "Your session has ended. Please sign in again."))
		}
		return m, cmd

	case sessionChangedMsg:
		// Always act on the current state; queued snapshots may be stale.
		snap := m.deps.Session.Snapshot()
		var cmds []tea.Cmd
		if id := userKey(snap); id != m.lastUser {
			m.lastUser = id
			if err := m.deps.Engine.Reset(m.ctx); err != nil {
				m.log.Warn("reset query cache", slog.Any("err", err))
			}
			m.personal.setResult(query.Result{})
			m.admin.setResult(query.Result{})
		}
		if _, err := m.machine.SessionChanged(snap); err != nil {
			m.log.Warn("guard", slog.Any("err", err))
		}
		cmds = append(cmds, m.settle(), m.feed.wait())
		return m, tea.Batch(cmds...)

	case authDoneMsg:
		// The session change may already have moved the view on.
		form := &m.login
		if msg.register {
			form = &m.register
		}
		if msg.seq != form.seq {
			return m, nil
		}
		form.submitting = false
		if msg.err != nil {
			fallback := "Login failed"
			if form.register {
				fallback = "Registration failed"
			}
			return m, m.setFlash(flashError, api.UserMessage(msg.err, fallback))
		}
		form.setValue("password", "")
		return m, m.setFlash(flashInfo, "Welcome!")

	case listLoadedMsg:
		if !m.deps.Engine.Complete(msg.res) {
			return m, nil
		}
		p := m.pane(msg.res.Key.List)
		p.setResult(msg.res)
		return m, nil

	case mutationDoneMsg:
		m.personal.setBusy(msg.todo.ID, false)
		if msg.err != nil {
			if errors.Is(msg.err, mutate.ErrInFlight) {
				return m, nil
			}
			return m, m.setFlash(flashError, msg.err.Error())
		}
		text := map[string]string{
			"create": "Todo created",
			"toggle": "Todo updated",
			"delete": "Todo deleted",
		}[msg.op]
		return m, tea.Batch(m.setFlash(flashInfo, text), m.load(query.Personal, false))

	case flashDoneMsg:
		if msg.seq == m.flashSeq {
			m.flash = ""
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.view {
		case viewChecking:
			return m, nil
		case viewHome:
			return m.updateHome(msg)
		case viewLogin, viewRegister:
			return m.updateAuthForm(msg)
		case viewDashboard, viewAdmin:
			return m.updateList(msg)
		}
	}

	// Forward everything else (cursor blink etc.) to the focused input.
	switch m.view {
	case viewLogin:
		return m, m.login.update(msg)
	case viewRegister:
		return m, m.register.update(msg)
	case viewDashboard:
		if m.personal.creating {
			var cmd tea.Cmd
			m.personal.input, cmd = m.personal.input.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m *appModel) pane(l query.List) *listPane {
	if l == query.Admin {
		return &m.admin
	}
	return &m.personal
}

// navigate asks the guard for r and follows any redirects.
func (m *appModel) navigate(r guard.Route) tea.Cmd {
	if _, err := m.machine.Navigate(r); err != nil {
		m.log.Warn("guard", slog.Any("err", err))
	}
	return m.settle()
}

// settle follows redirects until the guard allows a route, then shows it.
// Nothing guarded is shown while the machine is checking or redirecting.
func (m *appModel) settle() tea.Cmd {
	var flash tea.Cmd
	if err := m.followRedirects(); err != nil {
		m.log.Error("guard", slog.Any("err", err))
		flash = m.setFlash(flashError, "Could not open that page.")
		// Fall back to the home screen.
		if _, err := m.machine.Navigate(guard.Home); err != nil {
			m.log.Error("guard", slog.Any("err", err))
		} else if err := m.followRedirects(); err != nil {
			m.log.Error("guard", slog.Any("err", err))
		}
	}
	if !m.machine.Visible() {
		m.view = viewChecking
		return flash
	}
	return tea.Batch(flash, m.show())
}

func (m *appModel) followRedirects() error {
	for m.machine.State() == guard.Redirecting {
		m.log.Debug("redirect", slog.String("from", string(m.machine.Route())), slog.String("to", string(m.machine.Target())), slog.String("reason", m.machine.Reason()))
		if _, err := m.machine.RedirectHandled(); err != nil {
			return err
		}
	}
	return nil
}

// show switches to the allowed route's screen.
func (m *appModel) show() tea.Cmd {
	prev := m.view
	m.view = viewFor(m.machine.Route())
	if prev == m.view {
		return nil
	}
	switch m.view {
	case viewLogin:
		m.login.setFocus(0)
		m.login.errs = nil
	case viewRegister:
		m.register.setFocus(0)
		m.register.errs = nil
	case viewDashboard:
		return m.load(query.Personal, false)
	case viewAdmin:
		return m.load(query.Admin, false)
	}
	return nil
}

// load starts a fetch for the list's current key. The result is applied only
// if no newer fetch was started meanwhile.
func (m *appModel) load(l query.List, force bool) tea.Cmd {
	p := m.pane(l)
	t := m.deps.Engine.Begin(p.key(), force)
	p.result = m.deps.Engine.State(l)
	engine, ctx := m.deps.Engine, m.ctx
	return func() tea.Msg {
		return listLoadedMsg{res: engine.Load(ctx, t)}
	}
}

func (m *appModel) setFlash(kind flashKind, text string) tea.Cmd {
	m.flashSeq++
	m.flash = text
	m.flashKind = kind
	seq := m.flashSeq
	return tea.Tick(flashDuration, func(time.Time) tea.Msg { return flashDoneMsg{seq: seq} })
}

func (m *appModel) logout() tea.Cmd {
	sess, ctx := m.deps.Session, m.ctx
	return func() tea.Msg {
		_ = sess.Logout(ctx)
		return nil
	}
}

func (m appModel) updateHome(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	authed := m.deps.Session.IsAuthenticated()
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "l":
		return m, m.navigate(guard.Login)
	case "r":
		return m, m.navigate(guard.Register)
	case "d":
		return m, m.navigate(guard.Dashboard)
	case "enter":
		if authed {
			return m, m.navigate(guard.Dashboard)
		}
		return m, m.navigate(guard.Login)
	case "a":
		return m, m.navigate(guard.Admin)
	case "L":
		if authed {
			return m, m.logout()
		}
	}
	return m, nil
}

func (m appModel) updateAuthForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	form := &m.login
	if m.view == viewRegister {
		form = &m.register
	}
	if form.submitting {
		return m, nil
	}
	switch msg.String() {
	case "esc":
		return m, m.navigate(guard.Home)
	case "ctrl+r":
		return m, m.navigate(guard.Register)
	case "ctrl+l":
		return m, m.navigate(guard.Login)
	case "tab", "down":
		form.setFocus(form.focus + 1)
		return m, nil
	case "shift+tab", "up":
		form.setFocus(form.focus - 1)
		return m, nil
	case "enter":
		if form.focus < len(form.fields)-1 {
			form.setFocus(form.focus + 1)
			return m, nil
		}
		return m, m.submitAuth(form)
	}
	return m, form.update(msg)
}

func (m *appModel) submitAuth(form *authForm) tea.Cmd {
	if !form.validate() {
		return nil
	}
	form.submitting = true
	form.seq++
	seq := form.seq
	ctx, auth, sess := m.ctx, m.deps.Auth, m.deps.Session
	register := form.register
	cred, reg := form.credentials(), form.registration()
	return func() tea.Msg {
		var (
			res model.AuthResponse
			err error
		)
		if register {
			res, err = auth.Register(ctx, reg)
		} else {
			res, err = auth.Login(ctx, cred)
		}
		if err == nil && strings.TrimSpace(res.Token) == "" {
			err = api.ErrNoContent
		}
		if err == nil {
			err = sess.SetAuth(ctx, res.User, res.Token)
		}
		return authDoneMsg{register: register, seq: seq, err: err}
	}
}

func (m appModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.pane(query.Personal)
	if m.view == viewAdmin {
		p = m.pane(query.Admin)
	}
	snap := m.deps.Session.Snapshot()

	if p.creating {
		switch msg.String() {
		case "esc":
			p.creating = false
			p.input.Blur()
			p.input.SetValue("")
			return m, nil
		case "enter":
			item := strings.TrimSpace(p.input.Value())
			if item == "" {
				return m, m.setFlash(flashError, "Item is required")
			}
			p.creating = false
			p.input.Blur()
			p.input.SetValue("")
			return m, m.mutate("create", func(ctx context.Context, ops *mutate.Ops) (string, error) {
				t, err := ops.Create(ctx, item)
				return t.ID, err
			}, "")
		}
		var cmd tea.Cmd
		p.input, cmd = p.input.Update(msg)
		return m, cmd
	}

	if p.confirmDelete != "" {
		id := p.confirmDelete
		p.confirmDelete = ""
		if msg.String() == "y" {
			p.setBusy(id, true)
			return m, m.mutate("delete", func(ctx context.Context, ops *mutate.Ops) (string, error) {
				return id, ops.Delete(ctx, id)
			}, id)
		}
		return m, nil
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "esc":
		return m, m.navigate(guard.Home)
	case "L":
		return m, m.logout()
	case "r":
		return m, m.load(p.which, true)
	case "f":
		p.state.CycleStatus()
		return m, m.load(p.which, false)
	case "l":
		p.state.CycleLimit()
		return m, m.load(p.which, false)
	case "o":
		p.state.ToggleOrder()
		return m, m.load(p.which, false)
	case "R":
		p.state.ResetFilters()
		return m, m.load(p.which, false)
	case "right", "]", "pgdown":
		if p.state.NextPage(p.result.Data.TotalPage) {
			return m, m.load(p.which, false)
		}
		return m, nil
	case "left", "[", "pgup":
		if p.state.PrevPage() {
			return m, m.load(p.which, false)
		}
		return m, nil
	case "a":
		if p.which == query.Personal && snap.IsAdmin() {
			return m, m.navigate(guard.Admin)
		}
	case "b":
		if p.which == query.Admin {
			return m, m.navigate(guard.Dashboard)
		}
	}

	if p.which == query.Personal {
		switch msg.String() {
		case "n":
			p.creating = true
			return m, p.input.Focus()
		case " ", "enter", "x":
			t, ok := p.selected()
			if !ok {
				return m, nil
			}
			p.setBusy(t.ID, true)
			return m, m.mutate("toggle", func(ctx context.Context, ops *mutate.Ops) (string, error) {
				_, err := ops.Toggle(ctx, t)
				return t.ID, err
			}, t.ID)
		case "d", "delete":
			if t, ok := p.selected(); ok {
				p.confirmDelete = t.ID
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	p.list, cmd = p.list.Update(msg)
	return m, cmd
}

func (m *appModel) mutate(op string, run func(context.Context, *mutate.Ops) (string, error), id string) tea.Cmd {
	ops, ctx := m.deps.Ops, m.ctx
	return func() tea.Msg {
		gotID, err := run(ctx, ops)
		if gotID == "" {
			gotID = id
		}
		msg := mutationDoneMsg{op: op, err: err}
		msg.todo.ID = gotID
		return msg
	}
}

func (m *appModel) resize() {
	// header, filter bar, blank, footer, flash
	listH := m.height - 6
	listW := m.width
	if m.width >= 100 {
		listW = m.width * 3 / 5
	}
	m.personal.resize(listW, listH)
	m.admin.resize(listW, listH)
}

func (m appModel) View() string {
	header := m.header()
	var body string
	switch m.view {
	case viewChecking:
		body = m.spinner.View() + " Verifying authentication..."
	case viewHome:
		body = m.viewHome()
	case viewLogin:
		body = m.login.view(m.width)
	case viewRegister:
		body = m.register.view(m.width)
	case viewDashboard:
		body = m.viewList(&m.personal)
	case viewAdmin:
		body = m.viewList(&m.admin)
	}

	parts := []string{header, body}
	if m.flash != "" {
		st := lipgloss.NewStyle()
		if m.flashKind == flashError {
			st = st.Foreground(colorAccentFg).Background(colorErrorBg).Padding(0, 1)
		} else {
			st = st.Foreground(colorDone)
		}
		parts = append(parts, st.Render(m.flash))
	}
	return strings.Join(parts, "\n\n")
}

func (m appModel) header() string {
	left := styleTitle().Render("todo")
	snap := m.deps.Session.Snapshot()
	right := ""
	if snap.IsAuthenticated() && snap.User != nil {
		name := snap.User.FullName
		if name == "" {
			name = snap.User.Email
		}
		right = name
		if snap.IsAdmin() {
			right += " " + styleBadge().Render("ADMIN")
		}
	}
	if right == "" {
		return left + "  " + styleMuted().Render(viewToString(m.view))
	}
	return left + "  " + styleMuted().Render(viewToString(m.view)) + "  " + right
}

func (m appModel) viewHome() string {
	var b strings.Builder
	b.WriteString(styleTitle().Render("Welcome to TodoApp"))
	b.WriteString("\n\n")
	b.WriteString("Stay organized: keep a personal todo list, filter it, page through it.\n\n")
	if m.deps.Session.IsAuthenticated() {
		keys := "d: dashboard  L: logout  q: quit"
		if m.deps.Session.Snapshot().IsAdmin() {
			keys = "d: dashboard  a: admin  L: logout  q: quit"
		}
		b.WriteString(styleMuted().Render(keys))
	} else {
		b.WriteString(styleMuted().Render("l: sign in  r: get started  q: quit"))
	}
	return b.String()
}

func (m appModel) viewList(p *listPane) string {
	title := "My todos"
	if p.which == query.Admin {
		title = "All todos"
	}
	top := styleTitle().Render(title) + "  " + p.filterBar()
	body := p.body(m.spinner.View())
	if m.width >= 100 {
		if d := p.detail(m.width-m.width*3/5-2, markdownStyle(m.deps.MarkdownStyle)); d != "" {
			body = lipgloss.JoinHorizontal(lipgloss.Top, body, "  ", d)
		}
	}
	return strings.Join([]string{top, body, p.footer(m.deps.Session.Snapshot().IsAdmin())}, "\n")
}
