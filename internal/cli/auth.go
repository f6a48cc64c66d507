package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"todo-cli/internal/api"
	"todo-cli/internal/forms"
	"todo-cli/internal/guard"
	"todo-cli/internal/model"
	"todo-cli/internal/session"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd(app *App) *cobra.Command {
	var in model.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := guarded(cmd, app, guard.Login)
			if err != nil {
				return writeErr(cmd, err)
			}
			p := newPrompter(cmd)
			if in.Email, err = p.valueOr(in.Email, "Email: "); err != nil {
				return writeErr(cmd, err)
			}
			if in.Password, err = p.secretOr(in.Password, "Password: "); err != nil {
				return writeErr(cmd, err)
			}
			in.Email = strings.TrimSpace(in.Email)
			if err := forms.ValidateLogin(in); err != nil {
				return writeErr(cmd, err)
			}

			res, err := rt.client.Login(cmd.Context(), in)
			if err != nil {
				return writeErr(cmd, userError(err, "Login failed"))
			}
			return finishAuth(cmd, app, rt, res)
		},
	}

	cmd.Flags().StringVar(&in.Email, "email", "", "Account email (prompted when omitted)")
	cmd.Flags().StringVar(&in.Password, "password", envOr("TODO_PASSWORD", ""), "Password (prompted when omitted)")
	return cmd
}

func newRegisterCmd(app *App) *cobra.Command {
	var in model.Registration

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := guarded(cmd, app, guard.Register)
			if err != nil {
				return writeErr(cmd, err)
			}
			p := newPrompter(cmd)
			if in.FullName, err = p.valueOr(in.FullName, "Full name: "); err != nil {
				return writeErr(cmd, err)
			}
			if in.Email, err = p.valueOr(in.Email, "Email: "); err != nil {
				return writeErr(cmd, err)
			}
			if in.Password, err = p.secretOr(in.Password, "Password: "); err != nil {
				return writeErr(cmd, err)
			}
			in.FullName = strings.TrimSpace(in.FullName)
			in.Email = strings.TrimSpace(in.Email)
			if err := forms.ValidateRegister(in); err != nil {
				return writeErr(cmd, err)
			}

			res, err := rt.client.Register(cmd.Context(), in)
			if err != nil {
				return writeErr(cmd, userError(err, "Registration failed"))
			}
			return finishAuth(cmd, app, rt, res)
		},
	}

	cmd.Flags().StringVar(&in.FullName, "name", "", "Full name (prompted when omitted)")
	cmd.Flags().StringVar(&in.Email, "email", "", "Account email (prompted when omitted)")
	cmd.Flags().StringVar(&in.Password, "password", envOr("TODO_PASSWORD", ""), "Password (prompted when omitted)")
	return cmd
}

func finishAuth(cmd *cobra.Command, app *App, rt *runtime, res model.AuthResponse) error {
	if strings.TrimSpace(res.Token) == "" {
		return writeErr(cmd, fmt.Errorf("sign-in response without token: %w", api.ErrNoContent))
	}
	if err := rt.session.SetAuth(cmd.Context(), res.User, res.Token); err != nil {
		return writeErr(cmd, err)
	}
	next := guard.Dashboard
	if res.User.IsAdmin() {
		next = guard.Admin
	}
	return writeOut(cmd, app, map[string]any{
		"data": map[string]any{
			"user": res.User,
			"next": next,
		},
	})
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFor(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			was := rt.session.IsAuthenticated()
			if err := rt.session.Logout(cmd.Context()); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": map[string]any{"loggedOut": true, "hadSession": was},
			})
		},
	}
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := guarded(cmd, app, guard.Dashboard)
			if err != nil {
				return writeErr(cmd, err)
			}
			snap := rt.session.Snapshot()
			out := map[string]any{"user": snap.User}
			if c, err := session.InspectToken(snap.Token); err == nil {
				tok := map[string]any{"subject": c.Subject}
				if c.HasExpiry() {
					tok["expiresAt"] = c.ExpiresAt.UTC().Format(time.RFC3339)
					tok["expired"] = c.Expired(time.Now())
				}
				out["token"] = tok
			}
			return writeOut(cmd, app, map[string]any{"data": out})
		},
	}
}

func newVerifyCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the stored session against the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFor(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			res := rt.verifier.Run(cmd.Context())
			snap := rt.session.Snapshot()
			out := map[string]any{
				"outcome":       res.Outcome.String(),
				"authenticated": snap.IsAuthenticated(),
			}
			if snap.User != nil {
				out["user"] = snap.User
			}
			if res.Err != nil {
				out["error"] = api.UserMessage(res.Err, "Token verification failed")
			}
			return writeOut(cmd, app, map[string]any{"data": out})
		},
	}
}

// prompter reads missing credentials from the command's input. Secrets are
// read without echo when input is a terminal.
type prompter struct {
	cmd *cobra.Command
	in  *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{cmd: cmd, in: bufio.NewReader(cmd.InOrStdin())}
}

func (p *prompter) valueOr(v, label string) (string, error) {
	if strings.TrimSpace(v) != "" {
		return v, nil
	}
	fmt.Fprint(p.cmd.ErrOrStderr(), label)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *prompter) secretOr(v, label string) (string, error) {
	if v != "" {
		return v, nil
	}
	if f, ok := p.cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(p.cmd.ErrOrStderr(), label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return p.valueOr("", label)
}
