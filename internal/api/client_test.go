package api_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"todo-cli/internal/api"
	"todo-cli/internal/api/apitest"
	"todo-cli/internal/model"
)

func boolPtr(b bool) *bool { return &b }

func TestListParams_OmitsUnsetFilters(t *testing.T) {
	got := api.ListParams(model.Filters{IsDone: nil}, model.PaginationParams{})
	if _, ok := got["filters"]; ok {
		t.Fatalf("expected no filters param; got %q", got.Encode())
	}
	if len(got) != 0 {
		t.Fatalf("expected empty params for zero pagination; got %q", got.Encode())
	}
}

func TestListParams_NeverSendsSearch(t *testing.T) {
	got := api.ListParams(model.Filters{Search: "milk"}, model.PaginationParams{})
	if _, ok := got["filters"]; ok {
		t.Fatalf("search must not be sent as a filter; got %q", got.Encode())
	}
}

func TestListParams_SerializesFiltersAndPagination(t *testing.T) {
	got := api.ListParams(
		model.Filters{IsDone: boolPtr(false)},
		model.PaginationParams{Page: 2, Limit: 5, OrderKey: model.OrderKeyCreatedAt, OrderRule: model.OrderDesc},
	)
	want := url.Values{
		"filters":   {`{"isDone":false}`},
		"orderRule": {"desc"},
		"orderKey":  {"createdAt"},
		"page":      {"2"},
		"rows":      {"5"},
	}
	if got.Encode() != want.Encode() {
		t.Fatalf("params mismatch:\n got: %s\nwant: %s", got.Encode(), want.Encode())
	}
}

func TestClient_LoginAttachesNoTokenAndUnwraps(t *testing.T) {
	srv := apitest.New(t)
	srv.AddUser(model.User{ID: "u1", Email: "a@example.com", FullName: "Ann", Role: model.RoleUser}, "secret1")

	c := api.New(srv.URL)
	res, err := c.Login(context.Background(), model.Credentials{Email: "a@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token != "tok-u1" || res.User.FullName != "Ann" {
		t.Fatalf("unexpected auth response: %+v", res)
	}

	_, err = c.Login(context.Background(), model.Credentials{Email: "a@example.com", Password: "wrong"})
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.Error; got %T %v", err, err)
	}
	if got := apiErr.Error(); got != "Invalid email or password" {
		t.Fatalf("unexpected joined message: %q", got)
	}
	if got := api.UserMessage(err, "Login failed"); got != "Invalid credentials" {
		t.Fatalf("expected server message; got %q", got)
	}
}

func TestClient_JoinsMultipleErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":null,"message":"","errors":["a","b"]}`))
	}))
	defer ts.Close()

	_, err := api.New(ts.URL).CreateTodo(context.Background(), model.NewTodo{Item: "x"})
	if err == nil || err.Error() != "a, b" {
		t.Fatalf("expected joined errors; got %v", err)
	}
	if got := api.UserMessage(err, "Failed to create todo"); got != "a, b" {
		t.Fatalf("unexpected user message: %q", got)
	}
}

func TestClient_BearerTokenAndUnauthorizedHook(t *testing.T) {
	var gotAuth, gotReqID string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"content":null,"message":"Token expired","errors":[]}`))
	}))
	defer ts.Close()

	hooked := 0
	c := api.New(ts.URL,
		api.WithTokenSource(api.TokenFunc(func() string { return "abc" })),
		api.WithUnauthorizedHook(func() { hooked++ }),
	)
	_, err := c.ListTodos(context.Background(), model.Filters{}, model.PaginationParams{Page: 1, Limit: 5})
	if !api.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized; got %v", err)
	}
	if gotAuth != "Bearer abc" {
		t.Fatalf("expected bearer header; got %q", gotAuth)
	}
	if strings.TrimSpace(gotReqID) == "" {
		t.Fatalf("expected X-Request-ID header")
	}
	if hooked != 1 {
		t.Fatalf("expected unauthorized hook once; got %d", hooked)
	}
}

func TestClient_TransportErrorUsesUnderlyingMessage(t *testing.T) {
	c := api.New("http://127.0.0.1:1")
	err := c.DeleteTodo(context.Background(), "todo-1")
	var tErr *api.TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected *api.TransportError; got %T %v", err, err)
	}
	if got := api.UserMessage(err, "Failed to delete todo"); got == "Failed to delete todo" || got == "" {
		t.Fatalf("expected underlying transport message; got %q", got)
	}
}

func TestClient_ListReportsTotalPage(t *testing.T) {
	srv := apitest.New(t)
	tok := srv.AddUser(model.User{ID: "u1", Email: "a@example.com", Role: model.RoleUser}, "secret1")
	srv.AddTodos("u1", 23, nil)

	c := api.New(srv.URL, api.WithTokenSource(api.TokenFunc(func() string { return tok })))
	res, err := c.ListTodos(context.Background(), model.Filters{}, model.PaginationParams{Page: 5, Limit: 5, OrderRule: model.OrderAsc})
	if err != nil {
		t.Fatalf("ListTodos: %v", err)
	}
	if res.TotalData != 23 || res.TotalPage != 5 {
		t.Fatalf("expected totalData=23 totalPage=5; got %d/%d", res.TotalData, res.TotalPage)
	}
	if len(res.Entries) != 3 {
		t.Fatalf("expected 3 entries on last page; got %d", len(res.Entries))
	}
	if res.TotalPage != model.TotalPages(res.TotalData, 5) {
		t.Fatalf("totalPage disagrees with ceil(totalData/limit)")
	}
}

func TestClient_MarkAndDelete(t *testing.T) {
	srv := apitest.New(t)
	tok := srv.AddUser(model.User{ID: "u1", Email: "a@example.com"}, "secret1")
	srv.AddTodos("u1", 1, nil)
	c := api.New(srv.URL, api.WithTokenSource(api.TokenFunc(func() string { return tok })))

	td, err := c.MarkTodo(context.Background(), "todo-1", model.MarkDone)
	if err != nil {
		t.Fatalf("MarkTodo: %v", err)
	}
	if !td.IsDone {
		t.Fatalf("expected todo marked done")
	}
	if err := c.DeleteTodo(context.Background(), "todo-1"); err != nil {
		t.Fatalf("DeleteTodo: %v", err)
	}
	if err := c.DeleteTodo(context.Background(), "todo-1"); err == nil {
		t.Fatalf("expected error deleting missing todo")
	}
}

func TestUserMessage_NoContentUsesFallback(t *testing.T) {
	err := fmt.Errorf("sign-in response without token: %w", api.ErrNoContent)
	if !errors.Is(err, api.ErrNoContent) {
		t.Fatalf("expected wrapped ErrNoContent")
	}
	if got := api.UserMessage(err, "Login failed"); got != "Login failed" {
		t.Fatalf("expected fallback; got %q", got)
	}
}
