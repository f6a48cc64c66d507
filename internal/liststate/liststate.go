// Package liststate holds the filter and pagination selection of one todo list.
//
// Each list (personal, admin) gets its own Store. Filters and page position
// never disagree: any filter change, and any page size change, resets the page
// to 1.
package liststate

import (
	"sync"

	"todo-cli/internal/model"
)

type State struct {
	Filters    model.Filters          `json:"filters"`
	Pagination model.PaginationParams `json:"pagination"`
}

// Field is an optional patch value; Set distinguishes "clear" from "leave as is".
type Field[T any] struct {
	Set   bool
	Value T
}

func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

type FilterPatch struct {
	IsDone Field[*bool]
}

type PaginationPatch struct {
	Page      Field[int]
	Limit     Field[int]
	OrderKey  Field[string]
	OrderRule Field[model.OrderRule]
}

func PersonalDefaults() State {
	return State{
		Pagination: model.PaginationParams{
			Page:      1,
			Limit:     5,
			OrderKey:  model.OrderKeyCreatedAt,
			OrderRule: model.OrderAsc,
		},
	}
}

func AdminDefaults() State {
	return State{
		Pagination: model.PaginationParams{
			Page:      1,
			Limit:     10,
			OrderKey:  model.OrderKeyCreatedAt,
			OrderRule: model.OrderAsc,
		},
	}
}

// LimitChoices are the page sizes offered by list views.
var LimitChoices = []int{5, 10, 20, 50}

type Store struct {
	mu       sync.Mutex
	defaults State
	cur      State
}

func New(defaults State) *Store {
	defaults = sanitize(defaults, defaults)
	return &Store{defaults: defaults, cur: cloneState(defaults)}
}

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(s.cur)
}

func (s *Store) Defaults() State {
	return cloneState(s.defaults)
}

// SetFilters merges p into the current filters and moves to page 1.
func (s *Store) SetFilters(p FilterPatch) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.IsDone.Set {
		s.cur.Filters.IsDone = cloneBool(p.IsDone.Value)
	}
	s.cur.Pagination.Page = 1
	return cloneState(s.cur)
}

// SetPagination merges p into the current pagination. A changed limit moves
// to page 1 regardless of any page in p.
func (s *Store) SetPagination(p PaginationPatch) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cur.Pagination
	if p.Page.Set {
		next.Page = p.Page.Value
	}
	if p.OrderKey.Set {
		next.OrderKey = p.OrderKey.Value
	}
	if p.OrderRule.Set {
		next.OrderRule = p.OrderRule.Value
	}
	if p.Limit.Set && p.Limit.Value > 0 && p.Limit.Value != s.cur.Pagination.Limit {
		next.Limit = p.Limit.Value
		next.Page = 1
	}
	if next.Page < 1 {
		next.Page = 1
	}
	s.cur.Pagination = next
	return cloneState(s.cur)
}

// ResetFilters restores filters and pagination to the store's defaults.
func (s *Store) ResetFilters() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = cloneState(s.defaults)
	return cloneState(s.cur)
}

// NextPage advances one page if totalPage allows it.
func (s *Store) NextPage(totalPage int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur.Pagination.Page >= totalPage {
		return false
	}
	s.cur.Pagination.Page++
	return true
}

func (s *Store) PrevPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur.Pagination.Page <= 1 {
		return false
	}
	s.cur.Pagination.Page--
	return true
}

// Restore replaces the current state with a saved one, falling back to the
// defaults for missing or invalid fields.
func (s *Store) Restore(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = sanitize(st, s.defaults)
}

// CycleLimit moves to the next entry of LimitChoices.
func (s *Store) CycleLimit() State {
	cur := s.Snapshot().Pagination.Limit
	next := LimitChoices[0]
	for i, n := range LimitChoices {
		if n == cur {
			next = LimitChoices[(i+1)%len(LimitChoices)]
			break
		}
	}
	return s.SetPagination(PaginationPatch{Limit: Some(next)})
}

// CycleStatus rotates the done filter: all -> pending -> completed -> all.
func (s *Store) CycleStatus() State {
	cur := s.Snapshot().Filters.IsDone
	var next *bool
	switch {
	case cur == nil:
		f := false
		next = &f
	case !*cur:
		t := true
		next = &t
	}
	return s.SetFilters(FilterPatch{IsDone: Some(next)})
}

// ToggleOrder flips between ascending and descending creation order.
func (s *Store) ToggleOrder() State {
	rule := model.OrderDesc
	if s.Snapshot().Pagination.OrderRule == model.OrderDesc {
		rule = model.OrderAsc
	}
	return s.SetPagination(PaginationPatch{OrderRule: Some(rule)})
}

func sanitize(st, defaults State) State {
	out := cloneState(st)
	if out.Pagination.Page < 1 {
		out.Pagination.Page = 1
	}
	if out.Pagination.Limit < 1 {
		out.Pagination.Limit = defaults.Pagination.Limit
	}
	if out.Pagination.OrderKey == "" {
		out.Pagination.OrderKey = defaults.Pagination.OrderKey
	}
	switch out.Pagination.OrderRule {
	case model.OrderAsc, model.OrderDesc:
	default:
		out.Pagination.OrderRule = defaults.Pagination.OrderRule
	}
	return out
}

func cloneState(st State) State {
	st.Filters.IsDone = cloneBool(st.Filters.IsDone)
	return st
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
