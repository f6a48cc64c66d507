package mutate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"todo-cli/internal/api"
	"todo-cli/internal/api/apitest"
	"todo-cli/internal/forms"
	"todo-cli/internal/model"
	"todo-cli/internal/query"
)

type fixture struct {
	srv    *apitest.Server
	engine *query.Engine
	ops    *Ops
	key    query.Key
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	srv := apitest.New(t)
	tok := srv.AddUser(model.User{ID: "u1", Email: "ann@example.com", FullName: "Ann", Role: model.RoleUser}, "secret1")
	srv.AddTodos("u1", 2, nil)
	client := api.New(srv.URL, api.WithTokenSource(api.TokenFunc(func() string { return tok })))
	engine := query.NewEngine(client, query.NewMemoryCache())
	return fixture{
		srv:    srv,
		engine: engine,
		ops:    New(client, engine, nil),
		key: query.Key{List: query.Personal, Pagination: model.PaginationParams{
			Page: 1, Limit: 10, OrderKey: model.OrderKeyCreatedAt, OrderRule: model.OrderAsc,
		}},
	}
}

func (f fixture) read(t *testing.T) model.TodosResponse {
	t.Helper()
	r := f.engine.Fetch(context.Background(), f.key, false)
	if r.Status != query.Success {
		t.Fatalf("list failed: %v", r.Err)
	}
	return r.Data
}

func TestCreate_NextReadReflectsChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if got := f.read(t).TotalData; got != 2 {
		t.Fatalf("expected 2 todos; got %d", got)
	}

	td, err := f.ops.Create(ctx, "  buy milk  ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if td.Item != "buy milk" {
		t.Fatalf("expected trimmed item; got %q", td.Item)
	}
	data := f.read(t)
	if data.TotalData != 3 || data.Entries[2].Item != "buy milk" {
		t.Fatalf("cached page served after create: %+v", data)
	}
	if n := f.srv.Requests("GET /todos"); n != 2 {
		t.Fatalf("expected one refetch after create; got %d list requests", n)
	}
}

func TestToggle_SendsInverseAndInvalidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.read(t).Entries[0]

	updated, err := f.ops.Toggle(ctx, first)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if !updated.IsDone {
		t.Fatalf("expected done after toggling a pending todo")
	}
	if !f.read(t).Entries[0].IsDone {
		t.Fatalf("stale page served after toggle")
	}

	updated, err = f.ops.Toggle(ctx, updated)
	if err != nil || updated.IsDone {
		t.Fatalf("expected undone after second toggle; got %+v err=%v", updated, err)
	}
}

func TestDelete_NextReadReflectsChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.read(t).Entries[0]

	if err := f.ops.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	data := f.read(t)
	if data.TotalData != 1 || data.Entries[0].ID == first.ID {
		t.Fatalf("deleted todo still listed: %+v", data)
	}
}

func TestCreate_ValidationSkipsNetwork(t *testing.T) {
	f := newFixture(t)
	_, err := f.ops.Create(context.Background(), "   ")
	var ferr forms.Errors
	if !errors.As(err, &ferr) || ferr.Field("item") != "Item is required" {
		t.Fatalf("expected item validation error; got %v", err)
	}
	if n := f.srv.Requests("POST /todos"); n != 0 {
		t.Fatalf("expected no create request; got %d", n)
	}
}

func TestFailures_UseServerMessageOrFallback(t *testing.T) {
	f := newFixture(t)
	err := f.ops.Delete(context.Background(), "missing")
	var merr *Error
	if !errors.As(err, &merr) || err.Error() != "Todo not found" {
		t.Fatalf("expected server message; got %v", err)
	}

	bare := &Error{Fallback: UpdateFailed, Err: &api.Error{Status: 500}}
	if bare.Error() != UpdateFailed {
		t.Fatalf("expected fallback; got %q", bare.Error())
	}
}

type blockingClient struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingClient) CreateTodo(context.Context, model.NewTodo) (model.Todo, error) {
	close(b.started)
	<-b.release
	return model.Todo{ID: "t1"}, nil
}

func (b *blockingClient) MarkTodo(context.Context, string, model.MarkAction) (model.Todo, error) {
	return model.Todo{}, nil
}

func (b *blockingClient) DeleteTodo(context.Context, string) error { return nil }

func TestCreate_RejectsSecondWhileInFlight(t *testing.T) {
	bc := &blockingClient{started: make(chan struct{}), release: make(chan struct{})}
	ops := New(bc, nil, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := ops.Create(context.Background(), "first"); err != nil {
			t.Errorf("first create: %v", err)
		}
	}()
	<-bc.started

	if !ops.Busy(CreateSite()) {
		t.Fatalf("expected create site to be busy")
	}
	if _, err := ops.Create(context.Background(), "second"); !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight; got %v", err)
	}
	// Other sites are independent.
	if err := ops.Delete(context.Background(), "t9"); err != nil {
		t.Fatalf("delete on another site: %v", err)
	}

	close(bc.release)
	wg.Wait()
	if ops.Busy(CreateSite()) {
		t.Fatalf("site still busy after completion")
	}
}

func TestInvalidators_ReachEveryCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := api.New(f.srv.URL, api.WithTokenSource(api.TokenFunc(func() string { return "tok-u1" })))
	other := query.NewEngine(client, query.NewMemoryCache())
	ops := New(client, Invalidators{f.engine, other}, nil)

	f.read(t)
	if r := other.Fetch(ctx, f.key, false); r.Data.TotalData != 2 {
		t.Fatalf("expected 2 todos; got %+v", r)
	}

	if _, err := ops.Create(ctx, "buy milk"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := f.read(t).TotalData; got != 3 {
		t.Fatalf("first cache served stale page: %d", got)
	}
	if r := other.Fetch(ctx, f.key, false); r.FromCache || r.Data.TotalData != 3 {
		t.Fatalf("second cache served stale page: fromCache=%v total=%d", r.FromCache, r.Data.TotalData)
	}
}
