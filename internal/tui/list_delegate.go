package tui

import (
	"fmt"
	"io"
	"strings"

	"todo-cli/internal/model"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
)

type todoItem struct {
	todo      model.Todo
	showOwner bool
	busy      bool
}

func (i todoItem) FilterValue() string { return i.todo.Item }

func (i todoItem) Title() string {
	box := "[ ]"
	if i.todo.IsDone {
		box = "[x]"
	}
	if i.busy {
		box = "[…]"
	}
	s := box + " " + i.todo.Item
	if i.showOwner && i.todo.User != nil {
		owner := i.todo.User.FullName
		if owner == "" {
			owner = i.todo.User.Email
		}
		s += "  · " + owner
	}
	return s
}

// todoDelegate renders one todo per line, padded or cut to the list width.
type todoDelegate struct {
	normal   lipgloss.Style
	done     lipgloss.Style
	selected lipgloss.Style
}

func newTodoDelegate() todoDelegate {
	return todoDelegate{
		normal: lipgloss.NewStyle(),
		done:   faintIfDark(lipgloss.NewStyle().Foreground(colorDone)),
		selected: lipgloss.NewStyle().
			Foreground(colorSelectedFg).
			Background(colorSelectedBg).
			Bold(true),
	}
}

func (d todoDelegate) Height() int                             { return 1 }
func (d todoDelegate) Spacing() int                            { return 0 }
func (d todoDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d todoDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	contentW := m.Width()
	if contentW < 4 {
		return
	}
	it, ok := item.(todoItem)
	if !ok {
		return
	}

	style := d.normal
	if it.todo.IsDone {
		style = d.done
	}
	if index == m.Index() {
		style = d.selected
	}

	line := it.Title()
	if lineW := xansi.StringWidth(line); lineW < contentW {
		line += strings.Repeat(" ", contentW-lineW)
	} else if lineW > contentW {
		line = xansi.Truncate(line, contentW, "…")
	}
	fmt.Fprint(w, style.Render(line))
}
