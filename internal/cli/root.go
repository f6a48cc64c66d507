package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"todo-cli/internal/api"
	"todo-cli/internal/format"
	"todo-cli/internal/store"

	"github.com/spf13/cobra"
)

type App struct {
	APIURL   string
	Format   string
	Pretty   bool
	LogLevel string
	Timeout  time.Duration

	cfg *store.GlobalConfig
	log *slog.Logger
	rt  *runtime
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "todo",
		Short:        "Terminal client for the to-do service (CLI + TUI)",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive TUI
  todo

  # Sign in, then page through your list
  todo login --email ann@example.com
  todo todos list --status pending
  todo todos list --next

  # Admins see everyone's todos
  todo admin todos list --limit 20
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if cmd.HasSubCommands() && len(args) == 0 {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.configure(cmd)
	}
	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		app.close()
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.APIURL, "api-url", envOr("TODO_API_URL", ""), "Base URL of the to-do API (default "+api.DefaultBaseURL+")")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("TODO_FORMAT", ""), "Output format (json|edn|yaml)")
	cmd.PersistentFlags().BoolVar(&app.Pretty, "pretty", false, "Pretty-print output")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", envOr("TODO_LOG_LEVEL", ""), "Log level on stderr (debug|info|warn|error)")
	cmd.PersistentFlags().DurationVar(&app.Timeout, "timeout", 0, "HTTP request timeout (default 30s)")

	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newRegisterCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newWhoamiCmd(app))
	cmd.AddCommand(newVerifyCmd(app))
	cmd.AddCommand(newTodosCmd(app))
	cmd.AddCommand(newAdminCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newDoctorCmd(app))

	return cmd
}

// configure applies config.json under flags and env: flag > env > config >
// built-in default.
func (app *App) configure(cmd *cobra.Command) error {
	cfg, err := store.LoadConfig()
	if err != nil {
		return writeErr(cmd, err)
	}
	app.cfg = cfg

	if app.APIURL == "" {
		app.APIURL = cfg.APIURL
	}
	if app.APIURL == "" {
		app.APIURL = api.DefaultBaseURL
	}
	if app.Format == "" {
		app.Format = cfg.Format
	}
	f, err := format.Normalize(app.Format)
	if err != nil {
		return writeErr(cmd, err)
	}
	app.Format = f
	if app.LogLevel == "" {
		app.LogLevel = cfg.LogLevel
	}
	if app.Timeout <= 0 && cfg.TimeoutSeconds > 0 {
		app.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	app.log, err = newLogger(cmd.ErrOrStderr(), app.LogLevel)
	if err != nil {
		return writeErr(cmd, err)
	}
	return nil
}

func (app *App) close() {
	if app.rt != nil {
		app.rt.close()
		app.rt = nil
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", s)
	}
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.Pretty)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
