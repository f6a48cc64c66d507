package tui

import (
	"errors"
	"strings"

	"todo-cli/internal/forms"
	"todo-cli/internal/model"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type formField struct {
	key   string
	label string
	input textinput.Model
}

// authForm is the login or register screen.
type authForm struct {
	register   bool
	fields     []formField
	focus      int
	errs       forms.Errors
	submitting bool
	seq        int
}

func newField(key, label, placeholder string, secret bool) formField {
	in := textinput.New()
	in.Placeholder = placeholder
	in.Prompt = ""
	in.CharLimit = 200
	in.Width = 40
	if secret {
		in.EchoMode = textinput.EchoPassword
		in.EchoCharacter = '•'
	}
	return formField{key: key, label: label, input: in}
}

func newLoginForm() authForm {
	f := authForm{fields: []formField{
		newField("email", "Email", "you@example.com", false),
		newField("password", "Password", "at least 6 characters", true),
	}}
	f.setFocus(0)
	return f
}

func newRegisterForm() authForm {
	f := authForm{register: true, fields: []formField{
		newField("fullName", "Full name", "Ada Lovelace", false),
		newField("email", "Email", "you@example.com", false),
		newField("password", "Password", "at least 6 characters", true),
	}}
	f.setFocus(0)
	return f
}

func (f *authForm) setFocus(i int) {
	n := len(f.fields)
	f.focus = ((i % n) + n) % n
	for j := range f.fields {
		if j == f.focus {
			f.fields[j].input.Focus()
		} else {
			f.fields[j].input.Blur()
		}
	}
}

func (f authForm) value(key string) string {
	for _, fl := range f.fields {
		if fl.key == key {
			return fl.input.Value()
		}
	}
	return ""
}

func (f *authForm) setValue(key, v string) {
	for i := range f.fields {
		if f.fields[i].key == key {
			f.fields[i].input.SetValue(v)
		}
	}
}

func (f authForm) credentials() model.Credentials {
	return model.Credentials{Email: strings.TrimSpace(f.value("email")), Password: f.value("password")}
}

func (f authForm) registration() model.Registration {
	return model.Registration{
		FullName: strings.TrimSpace(f.value("fullName")),
		Email:    strings.TrimSpace(f.value("email")),
		Password: f.value("password"),
	}
}

// validate records per-field errors and reports whether the form may be
// submitted.
func (f *authForm) validate() bool {
	var err error
	if f.register {
		err = forms.ValidateRegister(f.registration())
	} else {
		err = forms.ValidateLogin(f.credentials())
	}
	f.errs = nil
	var ferrs forms.Errors
	if errors.As(err, &ferrs) {
		f.errs = ferrs
		return false
	}
	return err == nil
}

func (f *authForm) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.fields[f.focus].input, cmd = f.fields[f.focus].input.Update(msg)
	return cmd
}

func (f authForm) view(width int) string {
	title := "Sign in"
	alt := "ctrl+r: create an account"
	if f.register {
		title = "Create an account"
		alt = "ctrl+l: sign in instead"
	}

	labelW := 0
	for _, fl := range f.fields {
		labelW = max(labelW, lipgloss.Width(fl.label))
	}
	label := lipgloss.NewStyle().Width(labelW + 2)

	var b strings.Builder
	b.WriteString(styleTitle().Render(title))
	b.WriteString("\n\n")
	for i, fl := range f.fields {
		marker := "  "
		if i == f.focus {
			marker = "> "
		}
		b.WriteString(marker + label.Render(fl.label) + fl.input.View() + "\n")
		if msg := f.errs.Field(fl.key); msg != "" {
			b.WriteString("  " + label.Render("") + styleError().Render(msg) + "\n")
		}
	}
	b.WriteString("\n")
	if f.submitting {
		b.WriteString(styleMuted().Render("Submitting..."))
	} else {
		b.WriteString(styleMuted().Render("tab: next field  enter: submit  " + alt + "  esc: home"))
	}
	return lipgloss.NewStyle().MaxWidth(max(width, 20)).Render(b.String())
}
