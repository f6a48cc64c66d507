// Package mutate creates, marks and deletes todos on the server and
// invalidates cached list pages once the server has confirmed the change.
package mutate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"todo-cli/internal/forms"
	"todo-cli/internal/model"
	"todo-cli/internal/query"
)

type Client interface {
	CreateTodo(ctx context.Context, in model.NewTodo) (model.Todo, error)
	MarkTodo(ctx context.Context, id string, action model.MarkAction) (model.Todo, error)
	DeleteTodo(ctx context.Context, id string) error
}

type Invalidator interface {
	Invalidate(ctx context.Context, lists ...query.List) error
}

// Invalidators fans an invalidation out to several caches, e.g. an
// in-memory one and the one shared with other processes.
type Invalidators []Invalidator

func (is Invalidators) Invalidate(ctx context.Context, lists ...query.List) error {
	var errs []error
	for _, inv := range is {
		if err := inv.Invalidate(ctx, lists...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ops runs mutations. Each site (the create form, or one todo's toggle or
// delete control) runs at most one mutation at a time.
type Ops struct {
	client Client
	inv    Invalidator
	log    *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(client Client, inv Invalidator, log *slog.Logger) *Ops {
	if log == nil {
		log = slog.Default()
	}
	return &Ops{client: client, inv: inv, log: log, inflight: map[string]struct{}{}}
}

// Busy reports whether site has a mutation running.
func (o *Ops) Busy(site string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[site]
	return ok
}

func CreateSite() string          { return "create" }
func ToggleSite(id string) string { return "toggle/" + id }
func DeleteSite(id string) string { return "delete/" + id }

func (o *Ops) acquire(site string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.inflight[site]; ok {
		return false
	}
	o.inflight[site] = struct{}{}
	return true
}

func (o *Ops) release(site string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, site)
}

// Create validates and submits a new item.
func (o *Ops) Create(ctx context.Context, item string) (model.Todo, error) {
	in := model.NewTodo{Item: strings.TrimSpace(item)}
	if err := forms.ValidateTodo(in); err != nil {
		return model.Todo{}, err
	}
	site := CreateSite()
	if !o.acquire(site) {
		return model.Todo{}, ErrInFlight
	}
	defer o.release(site)

	t, err := o.client.CreateTodo(ctx, in)
	if err != nil {
		return model.Todo{}, &Error{Op: "create", Fallback: CreateFailed, Err: err}
	}
	o.invalidate(ctx, "create", t.ID)
	return t, nil
}

// Toggle sends the inverse of the todo's known state.
func (o *Ops) Toggle(ctx context.Context, t model.Todo) (model.Todo, error) {
	return o.mark(ctx, t.ID, t.ToggleAction())
}

// SetDone marks id done or undone regardless of its current state.
func (o *Ops) SetDone(ctx context.Context, id string, done bool) (model.Todo, error) {
	action := model.MarkUndone
	if done {
		action = model.MarkDone
	}
	return o.mark(ctx, id, action)
}

func (o *Ops) mark(ctx context.Context, id string, action model.MarkAction) (model.Todo, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Todo{}, forms.Errors{"id": "Todo id is required"}
	}
	site := ToggleSite(id)
	if !o.acquire(site) {
		return model.Todo{}, ErrInFlight
	}
	defer o.release(site)

	t, err := o.client.MarkTodo(ctx, id, action)
	if err != nil {
		return model.Todo{}, &Error{Op: "mark", ID: id, Fallback: UpdateFailed, Err: err}
	}
	o.invalidate(ctx, "mark", id)
	return t, nil
}

func (o *Ops) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return forms.Errors{"id": "Todo id is required"}
	}
	site := DeleteSite(id)
	if !o.acquire(site) {
		return ErrInFlight
	}
	defer o.release(site)

	if err := o.client.DeleteTodo(ctx, id); err != nil {
		return &Error{Op: "delete", ID: id, Fallback: DeleteFailed, Err: err}
	}
	o.invalidate(ctx, "delete", id)
	return nil
}

// invalidate drops both lists: an admin sees everyone's todos, so a personal
// change shows up there too.
func (o *Ops) invalidate(ctx context.Context, op, id string) {
	o.log.Info("todo mutated", slog.String("op", op), slog.String("id", id))
	if o.inv == nil {
		return
	}
	if err := o.inv.Invalidate(ctx, query.Personal, query.Admin); err != nil {
		o.log.Warn("invalidate lists", slog.String("op", op), slog.Any("err", err))
	}
}
