package cli

import (
	"errors"
	"fmt"
	"strings"

	"todo-cli/internal/guard"
	"todo-cli/internal/liststate"
	"todo-cli/internal/model"
	"todo-cli/internal/query"

	"github.com/spf13/cobra"
)

func newTodosCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "todos",
		Aliases: []string{"todo"},
		Short:   "Your todo list",
	}
	cmd.AddCommand(newListCmd(app, query.Personal, guard.Dashboard))
	cmd.AddCommand(newTodosCreateCmd(app))
	cmd.AddCommand(newTodosToggleCmd(app))
	cmd.AddCommand(newTodosMarkCmd(app, "done", true))
	cmd.AddCommand(newTodosMarkCmd(app, "undone", false))
	cmd.AddCommand(newTodosDeleteCmd(app))
	return cmd
}

func newAdminCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administration (admin role required)",
	}
	todos := &cobra.Command{
		Use:   "todos",
		Short: "Every user's todos",
	}
	todos.AddCommand(newListCmd(app, query.Admin, guard.Admin))
	cmd.AddCommand(todos)
	return cmd
}

type listFlags struct {
	status  string
	page    int
	limit   int
	order   string
	next    bool
	prev    bool
	reset   bool
	refresh bool
}

func defaultsFor(list query.List) liststate.State {
	if list == query.Admin {
		return liststate.AdminDefaults()
	}
	return liststate.PersonalDefaults()
}

func newListCmd(app *App, list query.List, route guard.Route) *cobra.Command {
	var f listFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List todos (filters and page position are remembered between runs)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := guarded(cmd, app, route)
			if err != nil {
				return writeErr(cmd, err)
			}
			if f.next && f.prev {
				return writeErr(cmd, errors.New("--next and --prev are mutually exclusive"))
			}

			saved, err := rt.store.LoadListState()
			if err != nil {
				return writeErr(cmd, err)
			}
			ls := liststate.New(defaultsFor(list))
			saved.RestoreList(string(list), ls)

			if err := applyListFlags(cmd, ls, f); err != nil {
				return writeErr(cmd, err)
			}

			ctx := cmd.Context()
			key := keyFor(list, ls.Snapshot())
			res := rt.engine.Fetch(ctx, key, f.refresh)
			if res.Status == query.Success && (f.next || f.prev) {
				var moved bool
				if f.next {
					moved = ls.NextPage(res.Data.TotalPage)
				} else {
					moved = ls.PrevPage()
				}
				if moved {
					res = rt.engine.Fetch(ctx, keyFor(list, ls.Snapshot()), f.refresh)
				}
			}
			if res.Status != query.Success {
				return writeErr(cmd, res.Err)
			}

			saved.CaptureList(string(list), ls)
			if err := rt.store.SaveListState(saved); err != nil {
				rt.log.Warn("save list state", "err", err)
			}

			st := ls.Snapshot()
			return writeOut(cmd, app, map[string]any{
				"data": res.Data.Entries,
				"meta": map[string]any{
					"list":      string(list),
					"status":    model.StatusLabel(st.Filters),
					"page":      st.Pagination.Page,
					"limit":     st.Pagination.Limit,
					"order":     string(st.Pagination.OrderRule),
					"totalPage": res.Data.TotalPage,
					"totalData": res.Data.TotalData,
					"cached":    res.FromCache,
				},
			})
		},
	}

	cmd.Flags().StringVar(&f.status, "status", "", "Filter by status (all|pending|completed)")
	cmd.Flags().IntVar(&f.page, "page", 0, "Page number (1-based)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Page size")
	cmd.Flags().StringVar(&f.order, "order", "", "Creation order (asc|desc)")
	cmd.Flags().BoolVar(&f.next, "next", false, "Go to the next page")
	cmd.Flags().BoolVar(&f.prev, "prev", false, "Go to the previous page")
	cmd.Flags().BoolVar(&f.reset, "reset", false, "Reset filters and pagination to defaults")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "Bypass the local cache")
	return cmd
}

// applyListFlags applies flags in a fixed order: reset, filters, page size,
// order, then explicit page. A filter or page size change lands on page 1
// unless --page says otherwise.
func applyListFlags(cmd *cobra.Command, ls *liststate.Store, f listFlags) error {
	if f.reset {
		ls.ResetFilters()
	}
	if cmd.Flags().Changed("status") {
		isDone, ok := model.ParseStatus(strings.ToLower(strings.TrimSpace(f.status)))
		if !ok {
			return fmt.Errorf("unknown status %q (want all|pending|completed)", f.status)
		}
		ls.SetFilters(liststate.FilterPatch{IsDone: liststate.Some(isDone)})
	}
	if cmd.Flags().Changed("limit") {
		if f.limit < 1 {
			return fmt.Errorf("--limit must be positive")
		}
		ls.SetPagination(liststate.PaginationPatch{Limit: liststate.Some(f.limit)})
	}
	if cmd.Flags().Changed("order") {
		rule := model.OrderRule(strings.ToLower(strings.TrimSpace(f.order)))
		if rule != model.OrderAsc && rule != model.OrderDesc {
			return fmt.Errorf("unknown order %q (want asc|desc)", f.order)
		}
		ls.SetPagination(liststate.PaginationPatch{OrderRule: liststate.Some(rule)})
	}
	if cmd.Flags().Changed("page") {
		if f.page < 1 {
			return fmt.Errorf("--page must be positive")
		}
		ls.SetPagination(liststate.PaginationPatch{Page: liststate.Some(f.page)})
	}
	return nil
}

func keyFor(list query.List, st liststate.State) query.Key {
	return query.Key{List: list, Filters: st.Filters, Pagination: st.Pagination}
}

func newTodosCreateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "create <item...>",
		Short: "Create a todo",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := guarded(cmd, app, guard.Dashboard)
			if err != nil {
				return writeErr(cmd, err)
			}
			t, err := rt.ops.Create(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": t})
		},
	}
}

func newTodosToggleCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Flip a todo on your current page between done and pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := guarded(cmd, app, guard.Dashboard)
			if err != nil {
				return writeErr(cmd, err)
			}
			id := strings.TrimSpace(args[0])

			// The toggle direction comes from the last known state, which is
			// the current page of the list.
			saved, err := rt.store.LoadListState()
			if err != nil {
				return writeErr(cmd, err)
			}
			ls := liststate.New(liststate.PersonalDefaults())
			saved.RestoreList(string(query.Personal), ls)
			res := rt.engine.Fetch(cmd.Context(), keyFor(query.Personal, ls.Snapshot()), false)
			if res.Status != query.Success {
				return writeErr(cmd, res.Err)
			}
			var known *model.Todo
			for i := range res.Data.Entries {
				if res.Data.Entries[i].ID == id {
					known = &res.Data.Entries[i]
					break
				}
			}
			if known == nil {
				return writeErr(cmd, fmt.Errorf("todo %s is not on your current page; use `todo todos done|undone %s`", id, id))
			}

			t, err := rt.ops.Toggle(cmd.Context(), *known)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": t})
		},
	}
}

func newTodosMarkCmd(app *App, use string, done bool) *cobra.Command {
	short := "Mark a todo as done"
	if !done {
		short = "Mark a todo as not done"
	}
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := guarded(cmd, app, guard.Dashboard)
			if err != nil {
				return writeErr(cmd, err)
			}
			t, err := rt.ops.SetDone(cmd.Context(), args[0], done)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": t})
		},
	}
}

func newTodosDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a todo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := guarded(cmd, app, guard.Dashboard)
			if err != nil {
				return writeErr(cmd, err)
			}
			id := strings.TrimSpace(args[0])
			if err := rt.ops.Delete(cmd.Context(), id); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"id": id, "deleted": true}})
		},
	}
}
