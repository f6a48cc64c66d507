package cli

import (
	"context"
	"log/slog"

	"todo-cli/internal/api"
	"todo-cli/internal/guard"
	"todo-cli/internal/mutate"
	"todo-cli/internal/query"
	"todo-cli/internal/session"
	"todo-cli/internal/store"

	"github.com/spf13/cobra"
)

// runtime is everything a command needs to talk to the service, wired
// together once per process.
type runtime struct {
	store    store.Store
	session  *session.Store
	verifier *session.Verifier
	client   *api.Client
	engine   *query.Engine
	ops      *mutate.Ops
	routes   guard.Routes
	log      *slog.Logger

	unsubscribe func()
}

func openRuntime(ctx context.Context, app *App, log *slog.Logger) (*runtime, error) {
	st, err := store.Default()
	if err != nil {
		return nil, err
	}
	if err := st.Ensure(); err != nil {
		return nil, err
	}
	repo := store.SessionRepo{Store: st}
	sess, err := session.Open(ctx, repo, log)
	if err != nil {
		return nil, err
	}

	rt := &runtime{store: st, session: sess, routes: guard.DefaultRoutes(), log: log}
	rt.client = api.New(app.APIURL,
		api.WithTimeout(app.Timeout),
		api.WithTokenSource(sess),
		api.WithLogger(log),
		api.WithUnauthorizedHook(func() {
			log.Info("token rejected by server, clearing session")
			_ = sess.Logout(context.Background())
		}),
	)
	rt.engine = query.NewEngine(rt.client, store.QueryCache{Store: st}, query.WithLogger(log))
	rt.ops = mutate.New(rt.client, rt.engine, log)
	rt.verifier = session.NewVerifier(sess, repo, rt.client, log)

	// Cached pages belong to the user who fetched them.
	lastUser := userID(sess.Snapshot())
	rt.unsubscribe = sess.Subscribe(func(snap session.Snapshot) {
		if id := userID(snap); id != lastUser {
			lastUser = id
			if err := rt.engine.Reset(context.Background()); err != nil {
				log.Warn("reset query cache", slog.Any("err", err))
			}
		}
	})
	return rt, nil
}

func userID(snap session.Snapshot) string {
	if !snap.IsAuthenticated() || snap.User == nil {
		return ""
	}
	return snap.User.ID
}

func (rt *runtime) close() {
	if rt.unsubscribe != nil {
		rt.unsubscribe()
	}
}

// enter verifies the persisted session (once per process) and applies the
// guard of route. A *guard.RedirectError means the command must not run.
func (rt *runtime) enter(ctx context.Context, route guard.Route) error {
	rt.verifier.Run(ctx)
	return guard.Enforce(rt.routes, route, rt.session.Snapshot(), rt.log)
}

// runtimeFor returns the process runtime, opening it on first use.
func runtimeFor(cmd *cobra.Command, app *App) (*runtime, error) {
	if app.rt != nil {
		return app.rt, nil
	}
	log := app.log
	if log == nil {
		log = slog.Default()
	}
	rt, err := openRuntime(cmd.Context(), app, log)
	if err != nil {
		return nil, err
	}
	app.rt = rt
	return rt, nil
}

// guarded opens the runtime and enforces route's guard.
func guarded(cmd *cobra.Command, app *App, route guard.Route) (*runtime, error) {
	rt, err := runtimeFor(cmd, app)
	if err != nil {
		return nil, err
	}
	if err := rt.enter(cmd.Context(), route); err != nil {
		return nil, guardError(err)
	}
	return rt, nil
}
