package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"todo-cli/internal/api/apitest"
	"todo-cli/internal/model"

	"gopkg.in/yaml.v3"
)

var (
	ann  = model.User{ID: "u1", Email: "ann@example.com", FullName: "Ann", Role: model.RoleUser}
	root = model.User{ID: "a1", Email: "root@example.com", FullName: "Root", Role: model.RoleAdmin}
)

func runCLI(t *testing.T, args []string) (stdout []byte, stderr []byte, err error) {
	t.Helper()

	cmd := NewRootCmd()

	var outBuf bytes.Buffer
	var errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)

	e := cmd.Execute()
	return outBuf.Bytes(), errBuf.Bytes(), e
}

// newEnv isolates the config dir and points the client at a fake server.
func newEnv(t *testing.T) *apitest.Server {
	t.Helper()
	srv := apitest.New(t)
	t.Setenv("TODO_CONFIG_DIR", t.TempDir())
	t.Setenv("TODO_API_URL", srv.URL)
	t.Setenv("TODO_FORMAT", "")
	t.Setenv("TODO_LOG_LEVEL", "")
	t.Setenv("TODO_PASSWORD", "")
	return srv
}

func mustRun(t *testing.T, args ...string) map[string]any {
	t.Helper()
	stdout, stderr, err := runCLI(t, args)
	if err != nil {
		t.Fatalf("command failed: todo %v\nerr: %v\nstderr:\n%s\nstdout:\n%s", args, err, stderr, stdout)
	}
	var env map[string]any
	if err := json.Unmarshal(stdout, &env); err != nil {
		t.Fatalf("unmarshal stdout as json envelope: %v\nstdout:\n%s\nargs: %v", err, stdout, args)
	}
	if _, ok := env["data"]; !ok {
		t.Fatalf("expected JSON envelope to contain data key; got: %v", env)
	}
	return env
}

func mustFail(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := runCLI(t, args)
	if err == nil {
		t.Fatalf("expected todo %v to fail; stdout:\n%s", args, stdout)
	}
	return string(stderr)
}

func login(t *testing.T, u model.User) {
	t.Helper()
	mustRun(t, "login", "--email", u.Email, "--password", "secret1")
}

func data(env map[string]any) map[string]any {
	m, _ := env["data"].(map[string]any)
	return m
}

func meta(env map[string]any) map[string]any {
	m, _ := env["meta"].(map[string]any)
	return m
}

func entries(env map[string]any) []any {
	xs, _ := env["data"].([]any)
	return xs
}

func TestLoginWhoamiLogout(t *testing.T) {
	srv := newEnv(t)
	srv.AddUser(ann, "secret1")

	env := mustRun(t, "login", "--email", "ann@example.com", "--password", "secret1")
	if next, _ := data(env)["next"].(string); next != "/dashboard" {
		t.Fatalf("expected next=/dashboard; got %v", data(env))
	}

	who := mustRun(t, "whoami")
	user, _ := data(who)["user"].(map[string]any)
	if user["email"] != "ann@example.com" {
		t.Fatalf("unexpected whoami: %v", who)
	}

	out := mustRun(t, "logout")
	if data(out)["hadSession"] != true {
		t.Fatalf("expected hadSession=true; got %v", out)
	}
	if stderr := mustFail(t, "whoami"); !strings.Contains(stderr, "login required") {
		t.Fatalf("expected login required after logout; got %q", stderr)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	srv := newEnv(t)
	srv.AddUser(ann, "secret1")

	stderr := mustFail(t, "login", "--email", "ann@example.com", "--password", "nope-nope")
	if !strings.Contains(stderr, "Invalid credentials") {
		t.Fatalf("expected server message; got %q", stderr)
	}
}

func TestLogin_ValidatesBeforeCallingServer(t *testing.T) {
	srv := newEnv(t)

	mustFail(t, "login", "--email", "not-an-email", "--password", "123")
	if n := srv.Requests("POST /login"); n != 0 {
		t.Fatalf("expected no login request; got %d", n)
	}
}

func TestLogin_RefusedWhenSignedIn(t *testing.T) {
	srv := newEnv(t)
	srv.AddUser(ann, "secret1")
	login(t, ann)

	if stderr := mustFail(t, "login", "--email", "ann@example.com", "--password", "secret1"); !strings.Contains(stderr, "already logged in") {
		t.Fatalf("expected guest-only refusal; got %q", stderr)
	}
}

func TestRegister_SignsIn(t *testing.T) {
	newEnv(t)

	env := mustRun(t, "register", "--name", "Bea", "--email", "bea@example.com", "--password", "secret1")
	user, _ := data(env)["user"].(map[string]any)
	if user["fullName"] != "Bea" {
		t.Fatalf("unexpected register output: %v", env)
	}
	mustRun(t, "whoami")
}

func TestTodosList_RequiresLogin(t *testing.T) {
	srv := newEnv(t)

	stderr := mustFail(t, "todos", "list")
	if !strings.Contains(stderr, "login required") || !strings.Contains(stderr, "todo login") {
		t.Fatalf("expected login hint; got %q", stderr)
	}
	if n := srv.Requests("GET /todos"); n != 0 {
		t.Fatalf("expected no list request; got %d", n)
	}
}

func TestTodosList_PagesAndRemembersPosition(t *testing.T) {
	srv := newEnv(t)
	srv.AddUser(ann, "secret1")
	srv.AddTodos(ann.ID, 7, nil)
	login(t, ann)

	first := mustRun(t, "todos", "list")
	if m := meta(first); m["page"] != float64(1) || m["totalPage"] != float64(2) || m["limit"] != float64(5) {
		t.Fatalf("unexpected meta: %v", m)
	}
	if got := len(entries(first)); got != 5 {
		t.Fatalf("expected 5 entries; got %d", got)
	}
	for _, q := range srv.ListQueries() {
		if strings.Contains(q, "filters") {
			t.Fatalf("unfiltered list must not send filters: %q", q)
		}
	}

	second := mustRun(t, "todos", "list", "--next")
	if meta(second)["page"] != float64(2) || len(entries(second)) != 2 {
		t.Fatalf("expected page 2 with 2 entries; got %v", meta(second))
	}

	// The position survives between runs and stops at the last page.
	again := mustRun(t, "todos", "list", "--next")
	if meta(again)["page"] != float64(2) {
		t.Fatalf("expected to stay on page 2; got %v", meta(again))
	}

	// A filter change lands on page 1.
	pending := mustRun(t, "todos", "list", "--status", "pending")
	if m := meta(pending); m["page"] != float64(1) || m["status"] != "pending" {
		t.Fatalf("unexpected meta after filter: %v", m)
	}
	qs := srv.ListQueries()
	if last := qs[len(qs)-1]; !strings.Contains(last, "filters=") {
		t.Fatalf("expected filters in query; got %q", last)
	}

	reset := mustRun(t, "todos", "list", "--reset")
	if m := meta(reset); m["status"] != "all" || m["page"] != float64(1) {
		t.Fatalf("unexpected meta after reset: %v", m)
	}
}

func TestTodos_CreateToggleDelete(t *testing.T) {
	srv := newEnv(t)
	srv.AddUser(ann, "secret1")
	login(t, ann)

	created := data(mustRun(t, "todos", "create", "buy", "milk"))
	id, _ := created["id"].(string)
	if id == "" || created["item"] != "buy milk" {
		t.Fatalf("unexpected create output: %v", created)
	}

	list := mustRun(t, "todos", "list")
	if meta(list)["totalData"] != float64(1) {
		t.Fatalf("expected the new todo in the list; got %v", meta(list))
	}

	toggled := data(mustRun(t, "todos", "toggle", id))
	if toggled["isDone"] != true {
		t.Fatalf("expected todo done after toggle; got %v", toggled)
	}
	undone := data(mustRun(t, "todos", "undone", id))
	if undone["isDone"] != false {
		t.Fatalf("expected todo pending; got %v", undone)
	}

	mustRun(t, "todos", "delete", id)
	list = mustRun(t, "todos", "list")
	if meta(list)["totalData"] != float64(0) {
		t.Fatalf("expected empty list after delete; got %v", meta(list))
	}

	if stderr := mustFail(t, "todos", "delete", id); !strings.Contains(stderr, "Todo not found") {
		t.Fatalf("expected server message for missing todo; got %q", stderr)
	}
}

func TestTodos_CreateRejectsBlankItem(t *testing.T) {
	srv := newEnv(t)
	srv.AddUser(ann, "secret1")
	login(t, ann)

	mustFail(t, "todos", "create", "   ")
	if n := srv.Requests("POST /todos"); n != 0 {
		t.Fatalf("expected no create request; got %d", n)
	}
}

func TestAdminList_RequiresAdmin(t *testing.T) {
	srv := newEnv(t)
	srv.AddUser(ann, "secret1")
	login(t, ann)

	stderr := mustFail(t, "admin", "todos", "list")
	if !strings.Contains(stderr, "admin access required") {
		t.Fatalf("expected admin refusal; got %q", stderr)
	}
}

func TestAdminList_ShowsEveryOwner(t *testing.T) {
	srv := newEnv(t)
	srv.AddUser(ann, "secret1")
	srv.AddUser(root, "secret1")
	srv.AddTodos(ann.ID, 2, nil)
	srv.AddTodos(root.ID, 1, nil)
	login(t, root)

	env := mustRun(t, "admin", "todos", "list")
	if m := meta(env); m["list"] != "admin-todos" || m["limit"] != float64(10) || m["totalData"] != float64(3) {
		t.Fatalf("unexpected admin meta: %v", m)
	}
	first, _ := entries(env)[0].(map[string]any)
	owner, _ := first["user"].(map[string]any)
	if owner["fullName"] != "Ann" {
		t.Fatalf("expected owner on admin entries; got %v", first)
	}
}

func TestVerify_ClearsRejectedSession(t *testing.T) {
	srv := newEnv(t)
	srv.AddUser(ann, "secret1")
	login(t, ann)

	srv.FailVerify = true
	out := data(mustRun(t, "verify"))
	if out["outcome"] != "cleared" || out["authenticated"] != false {
		t.Fatalf("expected cleared session; got %v", out)
	}
	mustFail(t, "whoami")
}

func TestConfigSetAndShow(t *testing.T) {
	newEnv(t)

	mustRun(t, "config", "set", "timeoutSeconds", "7")
	mustRun(t, "config", "set", "tui.theme", "dark")
	show := data(mustRun(t, "config", "show"))
	eff, _ := show["effective"].(map[string]any)
	if eff["timeout"] != "7s" {
		t.Fatalf("expected timeout from config; got %v", eff)
	}
	cfg, _ := show["config"].(map[string]any)
	tuiCfg, _ := cfg["tui"].(map[string]any)
	if tuiCfg["theme"] != "dark" {
		t.Fatalf("expected tui.theme stored; got %v", cfg)
	}

	if stderr := mustFail(t, "config", "set", "nope", "x"); !strings.Contains(stderr, "unknown config key") {
		t.Fatalf("unexpected error: %q", stderr)
	}
}

func TestFormatYAML(t *testing.T) {
	newEnv(t)

	stdout, stderr, err := runCLI(t, []string{"--format", "yaml", "config", "show"})
	if err != nil {
		t.Fatalf("config show: %v\n%s", err, stderr)
	}
	var out map[string]any
	if err := yaml.Unmarshal(stdout, &out); err != nil {
		t.Fatalf("expected yaml output: %v\n%s", err, stdout)
	}
	if _, ok := out["data"]; !ok {
		t.Fatalf("expected data key; got %v", out)
	}
}

func TestDoctor_ReportsRejectedTokenWithoutClearing(t *testing.T) {
	srv := newEnv(t)
	srv.AddUser(ann, "secret1")

	clean := mustRun(t, "doctor")
	if m := meta(clean); m["hasErrors"] != false || m["authenticated"] != false {
		t.Fatalf("unexpected doctor meta: %v", m)
	}

	login(t, ann)
	ok := mustRun(t, "doctor")
	if meta(ok)["authenticated"] != true {
		t.Fatalf("expected verified session; got %v", meta(ok))
	}

	srv.FailVerify = true
	bad := mustRun(t, "doctor")
	issues, _ := data(bad)["issues"].([]any)
	found := false
	for _, it := range issues {
		if m, _ := it.(map[string]any); m["code"] == "token_rejected" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected token_rejected issue; got %v", issues)
	}

	// doctor only reports; the session is still there.
	srv.FailVerify = false
	mustRun(t, "whoami")
}

func TestTUIMutations_InvalidateSharedCache(t *testing.T) {
	srv := newEnv(t)
	srv.AddUser(ann, "secret1")
	srv.AddTodos(ann.ID, 2, nil)
	login(t, ann)

	before := mustRun(t, "todos", "list")
	if meta(before)["totalData"] != float64(2) {
		t.Fatalf("unexpected meta: %v", meta(before))
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, &App{APIURL: srv.URL, Timeout: 5 * time.Second}, slog.Default())
	if err != nil {
		t.Fatalf("openRuntime: %v", err)
	}
	defer rt.close()
	_, ops := tuiBackend(rt, rt.log)
	if _, err := ops.Create(ctx, "from the tui"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	after := mustRun(t, "todos", "list")
	if meta(after)["totalData"] != float64(3) {
		t.Fatalf("list served a stale page after a TUI change: %v", meta(after))
	}
}
