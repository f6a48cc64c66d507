package tui

import (
	"fmt"
	"strings"

	"todo-cli/internal/liststate"
	"todo-cli/internal/model"
	"todo-cli/internal/query"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
)

// listPane is the dashboard or admin list with its filter bar.
type listPane struct {
	which  query.List
	state  *liststate.Store
	list   list.Model
	result query.Result

	creating      bool
	input         textinput.Model
	confirmDelete string
	busy          map[string]bool
}

func newListPane(which query.List, state *liststate.Store) listPane {
	l := list.New(nil, newTodoDelegate(), 0, 0)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowPagination(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	in := textinput.New()
	in.Placeholder = "What needs doing?"
	in.Prompt = "new: "
	in.CharLimit = 500

	return listPane{which: which, state: state, list: l, input: in, busy: map[string]bool{}}
}

func (p *listPane) key() query.Key {
	st := p.state.Snapshot()
	return query.Key{List: p.which, Filters: st.Filters, Pagination: st.Pagination}
}

func (p *listPane) setResult(r query.Result) {
	p.result = r
	p.refreshItems()
}

func (p *listPane) refreshItems() {
	items := make([]list.Item, 0, len(p.result.Data.Entries))
	for _, t := range p.result.Data.Entries {
		items = append(items, todoItem{todo: t, showOwner: p.which == query.Admin, busy: p.busy[t.ID]})
	}
	idx := p.list.Index()
	p.list.SetItems(items)
	if idx >= len(items) {
		idx = len(items) - 1
	}
	if idx >= 0 {
		p.list.Select(idx)
	}
}

func (p *listPane) setBusy(id string, busy bool) {
	if busy {
		p.busy[id] = true
	} else {
		delete(p.busy, id)
	}
	p.refreshItems()
}

func (p listPane) selected() (model.Todo, bool) {
	it, ok := p.list.SelectedItem().(todoItem)
	if !ok {
		return model.Todo{}, false
	}
	return it.todo, true
}

func (p *listPane) resize(w, h int) {
	p.list.SetSize(w, max(h, 1))
	p.input.Width = max(w-len(p.input.Prompt)-1, 10)
}

func (p listPane) filterBar() string {
	st := p.state.Snapshot()
	total := p.result.Data.TotalPage
	if total < 1 {
		total = 1
	}
	return styleMuted().Render(fmt.Sprintf("status: %s  limit: %d  order: %s  page %d/%d  (%d total)",
		model.StatusLabel(st.Filters),
		st.Pagination.Limit,
		st.Pagination.OrderRule,
		st.Pagination.Page,
		total,
		p.result.Data.TotalData,
	))
}

func (p listPane) body(spin string) string {
	switch p.result.Status {
	case query.Idle:
		return ""
	case query.Loading:
		if len(p.result.Data.Entries) == 0 {
			return spin + " Loading todos..."
		}
	case query.Failed:
		return styleError().Render(query.LoadFailedMessage) + "\n" + styleMuted().Render("press r to retry")
	}
	if len(p.list.Items()) == 0 {
		return styleMuted().Render("No todos here yet.")
	}
	return p.list.View()
}

// detail renders the selected todo's description, if any.
func (p listPane) detail(width int, mdStyle string) string {
	t, ok := p.selected()
	if !ok || strings.TrimSpace(t.Description) == "" || width < 20 {
		return ""
	}
	return renderMarkdown(t.Description, mdStyle, width)
}

func (p listPane) footer(admin bool) string {
	switch {
	case p.creating:
		return p.input.View()
	case p.confirmDelete != "":
		return lipgloss.NewStyle().Foreground(colorError).Render("Delete this todo? y/n")
	}
	keys := "f: status  l: limit  o: order  R: reset  ←/→: page  r: refresh  L: logout  q: quit"
	if p.which == query.Personal {
		keys = "n: new  space: toggle  d: delete  " + keys
		if admin {
			keys += "  a: admin"
		}
	} else {
		keys += "  b: my list"
	}
	return styleMuted().Render(keys)
}
