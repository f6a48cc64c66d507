package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"todo-cli/internal/api"
	"todo-cli/internal/model"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
	total int
}

func (f *fakeFetcher) ListTodos(_ context.Context, filters model.Filters, p model.PaginationParams) (model.TodosResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return model.TodosResponse{}, f.err
	}
	return model.TodosResponse{
		Entries:   []model.Todo{{ID: "t", Item: fmt.Sprintf("page %d", p.Page)}},
		TotalData: f.total,
		TotalPage: model.TotalPages(f.total, p.Limit),
	}, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func personalKey(page int) Key {
	return Key{List: Personal, Pagination: model.PaginationParams{Page: page, Limit: 5, OrderKey: model.OrderKeyCreatedAt, OrderRule: model.OrderAsc}}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestFetch_CachesWithinFreshnessWindow(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{total: 23}
	c := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	e := NewEngine(f, nil, WithClock(c.now))

	r := e.Fetch(ctx, personalKey(1), false)
	if r.Status != Success || r.FromCache || r.Data.TotalPage != 5 {
		t.Fatalf("unexpected first result: %+v", r)
	}
	r = e.Fetch(ctx, personalKey(1), false)
	if !r.FromCache || f.Calls() != 1 {
		t.Fatalf("expected cache hit; calls=%d result=%+v", f.Calls(), r)
	}

	// A different key is a different entry.
	e.Fetch(ctx, personalKey(2), false)
	if f.Calls() != 2 {
		t.Fatalf("expected fetch for new key; calls=%d", f.Calls())
	}

	c.t = c.t.Add(DefaultStaleTime)
	r = e.Fetch(ctx, personalKey(1), false)
	if r.FromCache || f.Calls() != 3 {
		t.Fatalf("expected stale entry to refetch; calls=%d", f.Calls())
	}

	e.Fetch(ctx, personalKey(1), true)
	if f.Calls() != 4 {
		t.Fatalf("expected forced refetch; calls=%d", f.Calls())
	}
}

func TestInvalidate_NextReadRefetches(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{total: 3}
	e := NewEngine(f, nil)

	e.Fetch(ctx, personalKey(1), false)
	adminKey := Key{List: Admin, Pagination: model.PaginationParams{Page: 1, Limit: 10}}
	e.Fetch(ctx, adminKey, false)

	if err := e.Invalidate(ctx, Personal); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	e.Fetch(ctx, personalKey(1), false)
	e.Fetch(ctx, adminKey, false)
	if f.Calls() != 3 {
		t.Fatalf("expected only the personal list to refetch; calls=%d", f.Calls())
	}
}

func TestInvalidate_InFlightResponseIsNotCached(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{total: 1}
	cache := NewMemoryCache()
	e := NewEngine(f, cache)

	tk := e.Begin(personalKey(1), false)
	_ = e.Invalidate(ctx, Personal)
	r := e.Load(ctx, tk)
	if !e.Complete(r) || r.Status != Success {
		t.Fatalf("expected in-flight result to be delivered; got %+v", r)
	}
	if cache.Len() != 0 {
		t.Fatalf("response started before invalidation was cached")
	}
}

// invalidatingCache runs an invalidation while a page is being written.
type invalidatingCache struct {
	*MemoryCache
	during func()
}

func (c *invalidatingCache) Put(ctx context.Context, key, tag string, ent Entry) error {
	err := c.MemoryCache.Put(ctx, key, tag, ent)
	if c.during != nil {
		during := c.during
		c.during = nil
		during()
	}
	return err
}

func TestInvalidate_DuringCacheWriteIsNotLost(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{total: 1}
	cache := &invalidatingCache{MemoryCache: NewMemoryCache()}
	e := NewEngine(f, cache)
	cache.during = func() {
		f.mu.Lock()
		f.total = 2
		f.mu.Unlock()
		_ = e.Invalidate(ctx, Personal, Admin)
	}

	e.Fetch(ctx, personalKey(1), false)
	r := e.Fetch(ctx, personalKey(1), false)
	if r.FromCache || r.Data.TotalData != 2 {
		t.Fatalf("stale page served after invalidation: fromCache=%v total=%d", r.FromCache, r.Data.TotalData)
	}
	if f.Calls() != 2 {
		t.Fatalf("expected refetch; calls=%d", f.Calls())
	}
}

func TestComplete_DiscardsStaleSequence(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(&fakeFetcher{total: 10}, nil)

	older := e.Begin(personalKey(1), false)
	newer := e.Begin(personalKey(2), false)

	newRes := e.Load(ctx, newer)
	oldRes := e.Load(ctx, older)

	if !e.Complete(newRes) {
		t.Fatalf("newest result rejected")
	}
	if e.Complete(oldRes) {
		t.Fatalf("stale result accepted")
	}
	if got := e.State(Personal); got.Key.Pagination.Page != 2 || got.Status != Success {
		t.Fatalf("state overwritten by stale response: %+v", got)
	}
}

func TestBegin_MarksLoadingPerList(t *testing.T) {
	e := NewEngine(&fakeFetcher{}, nil)
	e.Begin(personalKey(1), false)
	if e.State(Personal).Status != Loading {
		t.Fatalf("expected loading")
	}
	if e.State(Admin).Status != Idle {
		t.Fatalf("admin list should be unaffected")
	}
}

func TestFetch_ErrorHasNoData(t *testing.T) {
	boom := &api.Error{Status: 500, Message: "internal"}
	e := NewEngine(&fakeFetcher{err: boom}, nil)
	r := e.Fetch(context.Background(), personalKey(1), false)
	if r.Status != Failed || len(r.Data.Entries) != 0 {
		t.Fatalf("unexpected failure result: %+v", r)
	}
	if r.Err.Error() != LoadFailedMessage {
		t.Fatalf("expected generic message; got %q", r.Err.Error())
	}
	if !errors.Is(r.Err, ErrLoadFailed) {
		t.Fatalf("expected ErrLoadFailed")
	}
	var apiErr *api.Error
	if !errors.As(r.Err, &apiErr) {
		t.Fatalf("expected cause to be reachable")
	}
}

func TestReset_ClearsCacheAndDropsInFlight(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{total: 1}
	e := NewEngine(f, nil)
	e.Fetch(ctx, personalKey(1), false)

	tk := e.Begin(personalKey(1), true)
	if err := e.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if e.Complete(e.Load(ctx, tk)) {
		t.Fatalf("in-flight result accepted after reset")
	}
	if e.State(Personal).Status != Idle {
		t.Fatalf("expected idle state after reset")
	}
	e.Fetch(ctx, personalKey(1), false)
	if f.Calls() != 3 {
		t.Fatalf("expected refetch after reset; calls=%d", f.Calls())
	}
}

func TestKeyString_EncodesListAndParams(t *testing.T) {
	done := true
	k := Key{List: Admin, Filters: model.Filters{IsDone: &done}, Pagination: model.PaginationParams{Page: 2, Limit: 10}}
	s := k.String()
	if !strings.HasPrefix(s, "admin-todos?") || !strings.Contains(s, "page=2") || !strings.Contains(s, "rows=10") {
		t.Fatalf("unexpected key string %q", s)
	}
	if personalKey(1).String() == (Key{List: Admin, Pagination: personalKey(1).Pagination}).String() {
		t.Fatalf("lists must not share keys")
	}
}
