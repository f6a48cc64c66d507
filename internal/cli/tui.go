package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"todo-cli/internal/liststate"
	"todo-cli/internal/mutate"
	"todo-cli/internal/query"
	"todo-cli/internal/store"
	"todo-cli/internal/tui"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const tuiLogFile = "todo.log"

// runTUI starts the interactive client. Logs go to a file under the config
// dir since the terminal belongs to the TUI.
func runTUI(cmd *cobra.Command, app *App) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return writeErr(cmd, fmt.Errorf("the interactive client needs a terminal; see `todo --help` for commands"))
	}

	dir, err := store.ConfigDir()
	if err != nil {
		return writeErr(cmd, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return writeErr(cmd, err)
	}
	lf, err := os.OpenFile(filepath.Join(dir, tuiLogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer lf.Close()
	log, err := newLogger(lf, app.LogLevel)
	if err != nil {
		return writeErr(cmd, err)
	}
	app.log = log

	rt, err := runtimeFor(cmd, app)
	if err != nil {
		return writeErr(cmd, err)
	}

	personal := liststate.New(liststate.PersonalDefaults())
	admin := liststate.New(liststate.AdminDefaults())
	saved, err := rt.store.LoadListState()
	if err != nil {
		log.Warn("load list state", slog.Any("err", err))
	}
	saved.RestoreList(string(query.Personal), personal)
	saved.RestoreList(string(query.Admin), admin)

	engine, ops := tuiBackend(rt, log)

	theme, mdStyle := "", ""
	if app.cfg != nil && app.cfg.TUI != nil {
		theme, mdStyle = app.cfg.TUI.Theme, app.cfg.TUI.MarkdownStyle
	}

	log.Info("tui start", slog.String("api", rt.client.BaseURL()))
	runErr := tui.Run(cmd.Context(), tui.Deps{
		Session:       rt.session,
		Verifier:      rt.verifier,
		Auth:          rt.client,
		Engine:        engine,
		Ops:           ops,
		Personal:      personal,
		Admin:         admin,
		Routes:        rt.routes,
		Log:           log,
		Theme:         theme,
		MarkdownStyle: mdStyle,
	})

	if saved == nil {
		saved = &store.ListStateFile{}
	}
	saved.CaptureList(string(query.Personal), personal)
	saved.CaptureList(string(query.Admin), admin)
	if err := rt.store.SaveListState(saved); err != nil {
		log.Warn("save list state", slog.Any("err", err))
	}
	if runErr != nil {
		return writeErr(cmd, runErr)
	}
	return nil
}

// tuiBackend keeps pages in memory for the length of the session. Mutations
// also invalidate the on-disk cache that later CLI runs read.
func tuiBackend(rt *runtime, log *slog.Logger) (*query.Engine, *mutate.Ops) {
	engine := query.NewEngine(rt.client, query.NewMemoryCache(), query.WithLogger(log))
	return engine, mutate.New(rt.client, mutate.Invalidators{engine, rt.engine}, log)
}
