// Package apitest provides an in-process fake of the to-do API for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"todo-cli/internal/model"
)

type account struct {
	user     model.User
	password string
}

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]account // by email
	tokens   map[string]string  // token -> user id
	todos    []model.Todo
	nextID   int
	requests map[string]int
	queries  []string

	// FailVerify makes /verify-token answer with an error envelope.
	FailVerify bool
	// FailList makes GET /todos answer with HTTP 500.
	FailList bool
	// ListDelay delays GET /todos responses.
	ListDelay time.Duration
}

// New starts a fake API server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		accounts: map[string]account{},
		tokens:   map[string]string{},
		requests: map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /verify-token", s.handleVerify)
	mux.HandleFunc("GET /todos", s.handleList)
	mux.HandleFunc("POST /todos", s.handleCreate)
	mux.HandleFunc("PUT /todos/{id}/mark", s.handleMark)
	mux.HandleFunc("DELETE /todos/{id}", s.handleDelete)
	s.Server = httptest.NewServer(s.count(mux))
	t.Cleanup(s.Close)
	return s
}

// AddUser registers an account and returns a valid token for it.
func (s *Server) AddUser(u model.User, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		s.nextID++
		u.ID = fmt.Sprintf("user-%d", s.nextID)
	}
	s.accounts[strings.ToLower(u.Email)] = account{user: u, password: password}
	tok := "tok-" + u.ID
	s.tokens[tok] = u.ID
	return tok
}

// AddTodos seeds n todos owned by userID, created one minute apart.
func (s *Server) AddTodos(userID string, n int, done func(i int) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		s.nextID++
		ts := base.Add(time.Duration(len(s.todos)) * time.Minute)
		s.todos = append(s.todos, model.Todo{
			ID:        fmt.Sprintf("todo-%d", s.nextID),
			Item:      fmt.Sprintf("Todo %d", i+1),
			IsDone:    done != nil && done(i),
			UserID:    userID,
			CreatedAt: ts,
			UpdatedAt: ts,
		})
	}
}

// Requests returns how many requests hit "METHOD /path".
func (s *Server) Requests(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[key]
}

// ListQueries returns the raw query strings of every GET /todos.
func (s *Server) ListQueries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		if strings.HasPrefix(r.URL.Path, "/todos/") {
			key = r.Method + " /todos/:id"
			if strings.HasSuffix(r.URL.Path, "/mark") {
				key += "/mark"
			}
		}
		s.mu.Lock()
		s.requests[key]++
		if r.Method == http.MethodGet && r.URL.Path == "/todos" {
			s.queries = append(s.queries, r.URL.RawQuery)
		}
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func writeEnvelope(w http.ResponseWriter, status int, content any, message string, errs []string) {
	if errs == nil {
		errs = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"content": content,
		"message": message,
		"errors":  errs,
	})
}

func (s *Server) authUser(r *http.Request) (model.User, bool) {
	h := r.Header.Get("Authorization")
	tok, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return model.User{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[tok]
	if !ok {
		return model.User{}, false
	}
	for _, a := range s.accounts {
		if a.user.ID == id {
			return a.user, true
		}
	}
	return model.User{}, false
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in model.Credentials
	_ = json.NewDecoder(r.Body).Decode(&in)
	s.mu.Lock()
	a, ok := s.accounts[strings.ToLower(in.Email)]
	s.mu.Unlock()
	if !ok || a.password != in.Password {
		writeEnvelope(w, http.StatusOK, nil, "Invalid credentials", []string{"Invalid email or password"})
		return
	}
	writeEnvelope(w, http.StatusOK, model.AuthResponse{User: a.user, Token: "tok-" + a.user.ID}, "ok", nil)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in model.Registration
	_ = json.NewDecoder(r.Body).Decode(&in)
	s.mu.Lock()
	_, exists := s.accounts[strings.ToLower(in.Email)]
	s.mu.Unlock()
	if exists {
		writeEnvelope(w, http.StatusOK, nil, "", []string{"Email already registered"})
		return
	}
	u := model.User{Email: in.Email, FullName: in.FullName, Role: model.RoleUser}
	tok := s.AddUser(u, in.Password)
	s.mu.Lock()
	u = s.accounts[strings.ToLower(in.Email)].user
	s.mu.Unlock()
	writeEnvelope(w, http.StatusOK, model.AuthResponse{User: u, Token: tok}, "ok", nil)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	s.mu.Lock()
	_, ok := s.tokens[in.Token]
	fail := s.FailVerify
	s.mu.Unlock()
	if fail || !ok {
		writeEnvelope(w, http.StatusOK, nil, "", []string{"Invalid token"})
		return
	}
	writeEnvelope(w, http.StatusOK, "valid", "ok", nil)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delay, fail := s.ListDelay, s.FailList
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if fail {
		writeEnvelope(w, http.StatusInternalServerError, nil, "boom", nil)
		return
	}
	u, ok := s.authUser(r)
	if !ok {
		writeEnvelope(w, http.StatusUnauthorized, nil, "Unauthorized", nil)
		return
	}

	q := r.URL.Query()
	var filters struct {
		IsDone *bool `json:"isDone"`
	}
	if f := q.Get("filters"); f != "" {
		_ = json.Unmarshal([]byte(f), &filters)
	}
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	rows, _ := strconv.Atoi(q.Get("rows"))
	if rows < 1 {
		rows = 10
	}

	s.mu.Lock()
	var matched []model.Todo
	for _, td := range s.todos {
		if u.Role != model.RoleAdmin && td.UserID != u.ID {
			continue
		}
		if filters.IsDone != nil && td.IsDone != *filters.IsDone {
			continue
		}
		if u.Role == model.RoleAdmin {
			for _, a := range s.accounts {
				if a.user.ID == td.UserID {
					owner := a.user
					td.User = &owner
				}
			}
		}
		matched = append(matched, td)
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if q.Get("orderRule") == "desc" {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (page - 1) * rows
	end := start + rows
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	entries := matched[start:end]
	if entries == nil {
		entries = []model.Todo{}
	}
	writeEnvelope(w, http.StatusOK, model.TodosResponse{
		Entries:   entries,
		TotalData: total,
		TotalPage: model.TotalPages(total, rows),
	}, "ok", nil)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authUser(r)
	if !ok {
		writeEnvelope(w, http.StatusUnauthorized, nil, "Unauthorized", nil)
		return
	}
	var in model.NewTodo
	_ = json.NewDecoder(r.Body).Decode(&in)
	if strings.TrimSpace(in.Item) == "" {
		writeEnvelope(w, http.StatusBadRequest, nil, "Item is required", []string{"item is required"})
		return
	}
	s.mu.Lock()
	s.nextID++
	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.nextID) * time.Minute)
	td := model.Todo{ID: fmt.Sprintf("todo-%d", s.nextID), Item: in.Item, UserID: u.ID, CreatedAt: now, UpdatedAt: now}
	s.todos = append(s.todos, td)
	s.mu.Unlock()
	writeEnvelope(w, http.StatusOK, td, "ok", nil)
}

func (s *Server) handleMark(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authUser(r); !ok {
		writeEnvelope(w, http.StatusUnauthorized, nil, "Unauthorized", nil)
		return
	}
	var in struct {
		Action model.MarkAction `json:"action"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.todos {
		if s.todos[i].ID == id {
			s.todos[i].IsDone = in.Action == model.MarkDone
			writeEnvelope(w, http.StatusOK, s.todos[i], "ok", nil)
			return
		}
	}
	writeEnvelope(w, http.StatusNotFound, nil, "Todo not found", []string{"Todo not found"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authUser(r); !ok {
		writeEnvelope(w, http.StatusUnauthorized, nil, "Unauthorized", nil)
		return
	}
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.todos {
		if s.todos[i].ID == id {
			s.todos = append(s.todos[:i], s.todos[i+1:]...)
			writeEnvelope(w, http.StatusOK, map[string]any{}, "ok", nil)
			return
		}
	}
	writeEnvelope(w, http.StatusNotFound, nil, "Todo not found", []string{"Todo not found"})
}
