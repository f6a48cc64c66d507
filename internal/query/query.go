// Package query fetches pages of todos and tracks their loading state.
//
// Results are cached per Key for a freshness window. Each list keeps a
// monotonically increasing sequence number; a response that arrives after a
// newer request was issued for the same list is dropped instead of replacing
// the newer state.
package query

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"todo-cli/internal/api"
	"todo-cli/internal/model"
)

const DefaultStaleTime = 5 * time.Minute

// List names a todo list. It doubles as the cache tag of the list.
type List string

const (
	Personal List = "todos"
	Admin    List = "admin-todos"
)

// Key identifies one cached page.
type Key struct {
	List       List
	Filters    model.Filters
	Pagination model.PaginationParams
}

func (k Key) String() string {
	return string(k.List) + "?" + api.ListParams(k.Filters, k.Pagination).Encode()
}

type Status int

const (
	Idle Status = iota
	Loading
	Failed
	Success
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Failed:
		return "error"
	case Success:
		return "success"
	default:
		return "idle"
	}
}

// Result is the observable state of a list.
type Result struct {
	Key       Key
	Seq       uint64
	Status    Status
	Data      model.TodosResponse
	Err       error
	FetchedAt time.Time
	FromCache bool
}

const LoadFailedMessage = "Failed to load todos. Please try again."

var ErrLoadFailed = errors.New("load todos failed")

// LoadError is the failure state of a list. It never carries partial data.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return LoadFailedMessage }

func (e *LoadError) Unwrap() []error { return []error{ErrLoadFailed, e.Err} }

type Fetcher interface {
	ListTodos(ctx context.Context, filters model.Filters, pagination model.PaginationParams) (model.TodosResponse, error)
}

// Ticket is handed out by Begin and identifies one fetch.
type Ticket struct {
	Key   Key
	Seq   uint64
	Force bool

	gen uint64
}

type Option func(*Engine)

func WithStaleTime(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.stale = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

type Engine struct {
	fetch Fetcher
	cache Cache
	stale time.Duration
	now   func() time.Time
	log   *slog.Logger

	mu     sync.Mutex
	seq    map[List]uint64
	gen    map[List]uint64
	states map[List]Result
}

func NewEngine(f Fetcher, c Cache, opts ...Option) *Engine {
	if c == nil {
		c = NewMemoryCache()
	}
	e := &Engine{
		fetch:  f,
		cache:  c,
		stale:  DefaultStaleTime,
		now:    time.Now,
		log:    slog.Default(),
		seq:    map[List]uint64{},
		gen:    map[List]uint64{},
		states: map[List]Result{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Begin issues a new sequence number for key's list and marks it loading.
// Force skips the cache.
func (e *Engine) Begin(key Key, force bool) Ticket {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq[key.List]++
	t := Ticket{Key: key, Seq: e.seq[key.List], Force: force, gen: e.gen[key.List]}
	prev := e.states[key.List]
	e.states[key.List] = Result{Key: key, Seq: t.Seq, Status: Loading, Data: keepData(prev, key)}
	return t
}

// keepData lets a view keep showing the previous page of the same key while a
// refetch is in flight.
func keepData(prev Result, key Key) model.TodosResponse {
	if prev.Status == Success && prev.Key.String() == key.String() {
		return prev.Data
	}
	return model.TodosResponse{}
}

// Load resolves t from the cache or the network. It does not change the
// engine's observable state; pass the result to Complete.
func (e *Engine) Load(ctx context.Context, t Ticket) Result {
	k := t.Key.String()
	if !t.Force {
		if ent, ok, err := e.cache.Get(ctx, k); err != nil {
			e.log.Warn("query cache read", slog.String("key", k), slog.Any("err", err))
		} else if ok && e.fresh(ent) {
			e.log.Debug("query cache hit", slog.String("key", k))
			return Result{Key: t.Key, Seq: t.Seq, Status: Success, Data: ent.Data, FetchedAt: ent.FetchedAt, FromCache: true}
		}
	}

	data, err := e.fetch.ListTodos(ctx, t.Key.Filters, t.Key.Pagination)
	if err != nil {
		e.log.Info("query failed", slog.String("key", k), slog.Any("err", err))
		return Result{Key: t.Key, Seq: t.Seq, Status: Failed, Err: &LoadError{Err: err}}
	}
	if data.Entries == nil {
		data.Entries = []model.Todo{}
	}
	ent := Entry{Data: data, FetchedAt: e.now()}

	// A response started before an invalidation of its list is not cached.
	if e.generation(t.Key.List) == t.gen {
		if err := e.cache.Put(ctx, k, string(t.Key.List), ent); err != nil {
			e.log.Warn("query cache write", slog.String("key", k), slog.Any("err", err))
		}
		// An invalidation that ran while the page was being written may have
		// missed it.
		if e.generation(t.Key.List) != t.gen {
			if err := e.cache.InvalidateTag(ctx, string(t.Key.List)); err != nil {
				e.log.Warn("query cache invalidate", slog.String("key", k), slog.Any("err", err))
			}
		}
	}
	return Result{Key: t.Key, Seq: t.Seq, Status: Success, Data: data, FetchedAt: ent.FetchedAt}
}

// Complete records r as the state of its list unless a newer request has been
// issued since. It reports whether r was accepted.
func (e *Engine) Complete(r Result) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r.Seq != e.seq[r.Key.List] {
		e.log.Debug("query result discarded", slog.String("list", string(r.Key.List)), slog.Uint64("seq", r.Seq))
		return false
	}
	e.states[r.Key.List] = r
	return true
}

// Fetch runs Begin, Load and Complete in one call.
func (e *Engine) Fetch(ctx context.Context, key Key, force bool) Result {
	t := e.Begin(key, force)
	r := e.Load(ctx, t)
	e.Complete(r)
	return r
}

func (e *Engine) State(list List) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[list]
}

// Invalidate drops every cached page of the given lists. Pages already being
// fetched are delivered but not cached.
func (e *Engine) Invalidate(ctx context.Context, lists ...List) error {
	e.mu.Lock()
	for _, l := range lists {
		e.gen[l]++
	}
	e.mu.Unlock()

	var errs []error
	for _, l := range lists {
		if err := e.cache.InvalidateTag(ctx, string(l)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reset forgets all state and cached pages, e.g. when the signed-in user
// changes. In-flight results are discarded.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	for l := range e.seq {
		e.seq[l]++
	}
	for _, l := range []List{Personal, Admin} {
		e.gen[l]++
	}
	e.states = map[List]Result{}
	e.mu.Unlock()
	return e.cache.Clear(ctx)
}

func (e *Engine) generation(l List) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen[l]
}

func (e *Engine) fresh(ent Entry) bool {
	return e.now().Sub(ent.FetchedAt) < e.stale
}
