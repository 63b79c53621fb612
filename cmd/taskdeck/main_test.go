package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"

	serveradapter "github.com/hylla/taskdeck/internal/adapters/server"
	servercommon "github.com/hylla/taskdeck/internal/adapters/server/common"
	"github.com/hylla/taskdeck/internal/config"
)

// TestMain sets deterministic environment defaults for CLI tests.
func TestMain(m *testing.M) {
	_ = os.Setenv("TASKDECK_DEV_MODE", "false")
	for _, key := range []string{config.EnvBaseURL, config.EnvAudience, config.EnvToken, "TASKDECK_CONFIG", "TASKDECK_DB_PATH", "TASKDECK_HOME"} {
		_ = os.Unsetenv(key)
	}
	os.Exit(m.Run())
}

// fakeProgram records that the board was started.
type fakeProgram struct {
	runErr error
}

// Run runs the requested command flow.
func (f fakeProgram) Run() (tea.Model, error) {
	return nil, f.runErr
}

// fakeAPI is a scripted task backend.
type fakeAPI struct {
	mu       sync.Mutex
	routes   map[string]string
	requests []string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	fa := &fakeAPI{routes: map[string]string{}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		fa.mu.Lock()
		fa.requests = append(fa.requests, route)
		body, ok := fa.routes[route]
		fa.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return fa, server
}

func (fa *fakeAPI) seen(route string) bool {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	for _, r := range fa.requests {
		if r == route {
			return true
		}
	}
	return false
}

const tasksJSON = `[
	{"id":"1","title":"Write report","priority":2,"status":"pending","effort":4,"percent_completed":0.5},
	{"id":"2","title":"Fix login bug","priority":4,"status":"pending","effort":2,"due_date":"2020-01-01"}
]`

// isolate points every path and credential lookup at a fresh temp tree.
func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Chdir(tmp)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmp, "data"))
	return tmp
}

// signIn points the client at server with a static token.
func signIn(t *testing.T, server *httptest.Server) {
	t.Helper()
	t.Setenv(config.EnvBaseURL, server.URL)
	t.Setenv(config.EnvToken, "tok-1")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out, io.Discard)
	return out.String(), err
}

// TestRunVersion verifies the version flag prints the build version.
func TestRunVersion(t *testing.T) {
	isolate(t)
	out, err := runCLI(t, "--version")
	if err != nil {
		t.Fatalf("run(version) error = %v", err)
	}
	if !strings.Contains(out, version) {
		t.Fatalf("expected version output, got %q", out)
	}
}

// TestRunStartsProgram verifies the bare command opens the board.
func TestRunStartsProgram(t *testing.T) {
	tmp := isolate(t)
	origFactory := programFactory
	t.Cleanup(func() { programFactory = origFactory })
	started := false
	programFactory = func(_ context.Context, m tea.Model) program {
		started = m != nil
		return fakeProgram{}
	}

	dbPath := filepath.Join(tmp, "taskdeck.db")
	if _, err := runCLI(t, "--db", dbPath, "--config", filepath.Join(tmp, "missing.toml")); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !started {
		t.Fatal("expected tui program to start")
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected sqlite database at %s: %v", dbPath, err)
	}
}

// TestRunTUIModeWritesRuntimeLogsToFileOnly verifies the console stays quiet while the board runs.
func TestRunTUIModeWritesRuntimeLogsToFileOnly(t *testing.T) {
	tmp := isolate(t)
	origFactory := programFactory
	t.Cleanup(func() { programFactory = origFactory })
	programFactory = func(context.Context, tea.Model) program { return fakeProgram{} }

	logDir := filepath.Join(tmp, "logs")
	cfgPath := filepath.Join(tmp, "taskdeck.toml")
	content := "[logging]\nlevel = \"debug\"\n\n[logging.dev_file]\nenabled = true\ndir = \"" + filepath.ToSlash(logDir) + "\"\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var stderr bytes.Buffer
	err := run(context.Background(), []string{"--db", filepath.Join(tmp, "t.db"), "--config", cfgPath}, io.Discard, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if strings.Contains(stderr.String(), "starting tui program loop") {
		t.Fatalf("expected console to stay quiet, got %q", stderr.String())
	}
	entries, err := os.ReadDir(logDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one dev log file, err=%v entries=%d", err, len(entries))
	}
	logged, err := os.ReadFile(filepath.Join(logDir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(logged), "starting tui program loop") {
		t.Fatalf("expected file log entries, got %q", string(logged))
	}
}

// TestRunInvalidFlag verifies unknown flags fail.
func TestRunInvalidFlag(t *testing.T) {
	isolate(t)
	if _, err := runCLI(t, "--definitely-not-a-flag"); err == nil {
		t.Fatal("expected invalid flag error")
	}
}

// TestRunUnknownCommand verifies unknown subcommands fail.
func TestRunUnknownCommand(t *testing.T) {
	isolate(t)
	if _, err := runCLI(t, "bogus"); err == nil {
		t.Fatal("expected unknown command error")
	}
}

// TestRunPathsCommand verifies resolved paths are printed without opening storage.
func TestRunPathsCommand(t *testing.T) {
	tmp := isolate(t)
	out, err := runCLI(t, "--app", "deckx", "paths")
	if err != nil {
		t.Fatalf("run(paths) error = %v", err)
	}
	for _, want := range []string{"app: deckx", "config: ", "db: ", "log_dir: "} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in paths output\n%s", want, out)
		}
	}
	if !strings.Contains(out, filepath.Join(tmp, "config")) {
		t.Fatalf("expected config under XDG_CONFIG_HOME\n%s", out)
	}
}

// TestRunTasksCommandRendersTable verifies the tasks table carries derived columns.
func TestRunTasksCommandRendersTable(t *testing.T) {
	tmp := isolate(t)
	fa, server := newFakeAPI(t)
	fa.routes["GET /tasks"] = tasksJSON
	signIn(t, server)

	out, err := runCLI(t, "--db", filepath.Join(tmp, "t.db"), "tasks")
	if err != nil {
		t.Fatalf("run(tasks) error = %v", err)
	}
	for _, want := range []string{"Write report", "Fix login bug", "Urgent", "2.0", "OVERDUE 2020-01-01"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in tasks output\n%s", want, out)
		}
	}
}

// TestRunTasksCommandJSON verifies the JSON output shares the bridge task view.
func TestRunTasksCommandJSON(t *testing.T) {
	tmp := isolate(t)
	fa, server := newFakeAPI(t)
	fa.routes["GET /tasks"] = tasksJSON
	signIn(t, server)

	out, err := runCLI(t, "--db", filepath.Join(tmp, "t.db"), "tasks", "--json")
	if err != nil {
		t.Fatalf("run(tasks --json) error = %v", err)
	}
	var tasks []servercommon.TaskView
	if err := json.Unmarshal([]byte(out), &tasks); err != nil {
		t.Fatalf("Unmarshal() error = %v\n%s", err, out)
	}
	if len(tasks) != 2 || tasks[0].RemainingEffort != 2 || !tasks[1].Overdue {
		t.Fatalf("unexpected task views %#v", tasks)
	}
}

// TestRunTasksWithoutCredentialFails verifies a missing token is reported, not an empty list.
func TestRunTasksWithoutCredentialFails(t *testing.T) {
	tmp := isolate(t)
	fa, server := newFakeAPI(t)
	fa.routes["GET /tasks"] = tasksJSON
	t.Setenv(config.EnvBaseURL, server.URL)

	_, err := runCLI(t, "--db", filepath.Join(tmp, "t.db"), "tasks")
	if err == nil || !strings.Contains(err.Error(), "not signed in") {
		t.Fatalf("expected sign-in error, got %v", err)
	}
	if fa.seen("GET /tasks") {
		t.Fatal("expected no request without a credential")
	}
}

// TestRunCompleteRecordsActivity verifies mutations are journaled in sqlite.
func TestRunCompleteRecordsActivity(t *testing.T) {
	tmp := isolate(t)
	fa, server := newFakeAPI(t)
	fa.routes["PUT /tasks/7/complete"] = `{"ok":true}`
	signIn(t, server)
	dbPath := filepath.Join(tmp, "t.db")

	out, err := runCLI(t, "--db", dbPath, "complete", "7")
	if err != nil {
		t.Fatalf("run(complete) error = %v", err)
	}
	if !strings.Contains(out, "completed task 7") {
		t.Fatalf("unexpected complete output %q", out)
	}

	// A failing delete is journaled with its error.
	if _, err := runCLI(t, "--db", dbPath, "delete", "8"); err == nil {
		t.Fatal("expected delete of unknown task to fail")
	}

	out, err = runCLI(t, "--db", dbPath, "activity")
	if err != nil {
		t.Fatalf("run(activity) error = %v", err)
	}
	for _, want := range []string{"complete task", "delete task", "Failed to delete task"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in activity output\n%s", want, out)
		}
	}
}

// TestRunReopenUsesCompletedList verifies reopen reads the completed list first.
func TestRunReopenUsesCompletedList(t *testing.T) {
	tmp := isolate(t)
	fa, server := newFakeAPI(t)
	fa.routes["GET /tasks/completed"] = `[["9","u1","Old chore","","task",null,2,"completed",1,1,"2026-02-01T10:00:00Z",null]]`
	fa.routes["PUT /tasks/9"] = `{"id":"9","title":"Old chore","priority":2,"status":"pending","effort":1}`
	signIn(t, server)

	out, err := runCLI(t, "--db", filepath.Join(tmp, "t.db"), "reopen", "9")
	if err != nil {
		t.Fatalf("run(reopen) error = %v", err)
	}
	if !strings.Contains(out, "reopened task 9") {
		t.Fatalf("unexpected reopen output %q", out)
	}
	if !fa.seen("GET /tasks/completed") || !fa.seen("PUT /tasks/9") {
		t.Fatal("expected completed fetch before update")
	}
}

// TestRunLayoutJSONStaysInCanvas verifies the layout command honors canvas flags.
func TestRunLayoutJSONStaysInCanvas(t *testing.T) {
	tmp := isolate(t)
	fa, server := newFakeAPI(t)
	fa.routes["GET /tasks"] = tasksJSON
	signIn(t, server)

	out, err := runCLI(t, "--db", filepath.Join(tmp, "t.db"), "layout", "--json", "--width", "400", "--height", "300")
	if err != nil {
		t.Fatalf("run(layout) error = %v", err)
	}
	var nodes []servercommon.LayoutNode
	if err := json.Unmarshal([]byte(out), &nodes); err != nil {
		t.Fatalf("Unmarshal() error = %v\n%s", err, out)
	}
	if len(nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(nodes))
	}
	for _, n := range nodes {
		if n.X-n.Radius < -1e-6 || n.X+n.Radius > 400+1e-6 || n.Y-n.Radius < -1e-6 || n.Y+n.Radius > 300+1e-6 {
			t.Fatalf("node out of canvas %#v", n)
		}
	}
}

// TestRunServeUsesConfigAndFlags verifies serve wiring from [server] plus overrides.
func TestRunServeUsesConfigAndFlags(t *testing.T) {
	tmp := isolate(t)
	origRunner := serveCommandRunner
	t.Cleanup(func() { serveCommandRunner = origRunner })
	var got serveradapter.Config
	var deps serveradapter.Dependencies
	serveCommandRunner = func(_ context.Context, cfg serveradapter.Config, d serveradapter.Dependencies) error {
		got, deps = cfg, d
		return nil
	}

	cfgPath := filepath.Join(tmp, "taskdeck.toml")
	if err := os.WriteFile(cfgPath, []byte("[server]\nbind = \"127.0.0.1:9999\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := runCLI(t, "--db", filepath.Join(tmp, "t.db"), "--config", cfgPath, "serve", "--mcp-endpoint", "/bridge"); err != nil {
		t.Fatalf("run(serve) error = %v", err)
	}
	if got.HTTPBind != "127.0.0.1:9999" || got.MCPEndpoint != "/bridge" || got.APIEndpoint != "/api/v1" {
		t.Fatalf("unexpected serve config %#v", got)
	}
	if got.ServerVersion != version || deps.Tasks == nil {
		t.Fatalf("unexpected serve deps %#v %#v", got, deps)
	}
}

// TestRunRejectsInvalidLoggingLevelFromConfig verifies config validation errors surface.
func TestRunRejectsInvalidLoggingLevelFromConfig(t *testing.T) {
	tmp := isolate(t)
	cfgPath := filepath.Join(tmp, "taskdeck.toml")
	if err := os.WriteFile(cfgPath, []byte("[logging]\nlevel = \"verbose\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err := runCLI(t, "--db", filepath.Join(tmp, "t.db"), "--config", cfgPath, "tasks")
	if err == nil || !strings.Contains(err.Error(), "invalid logging.level") {
		t.Fatalf("expected logging level validation error, got %v", err)
	}
}

// TestRunLoadsDotEnv verifies a .env file supplies the credential.
func TestRunLoadsDotEnv(t *testing.T) {
	tmp := isolate(t)
	fa, server := newFakeAPI(t)
	fa.routes["GET /entity"] = "entity ok"
	for _, key := range []string{config.EnvBaseURL, config.EnvToken} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	dotenv := config.EnvBaseURL + "=" + server.URL + "\n" + config.EnvToken + "=from-dotenv\n"
	if err := os.WriteFile(filepath.Join(tmp, ".env"), []byte(dotenv), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	out, err := runCLI(t, "--db", filepath.Join(tmp, "t.db"), "entity")
	if err != nil {
		t.Fatalf("run(entity) error = %v", err)
	}
	if strings.TrimSpace(out) != "entity ok" {
		t.Fatalf("unexpected entity output %q", out)
	}
}

// TestLoadEnvFilesSkipsMissing verifies absent env files are not an error.
func TestLoadEnvFilesSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	if err := loadEnvFiles(filepath.Join(dir, "nope.env"), ""); err != nil {
		t.Fatalf("loadEnvFiles() error = %v", err)
	}
}

// TestTokenSourceSelection verifies static and client-credentials selection.
func TestTokenSourceSelection(t *testing.T) {
	cfg := config.Default("/tmp/t.db", "/tmp/log")
	ts, err := tokenSource(context.Background(), cfg)
	if err != nil || ts != nil {
		t.Fatalf("expected nil source without credential, got %v %v", ts, err)
	}

	cfg.Auth.Token = "tok-1"
	ts, err = tokenSource(context.Background(), cfg)
	if err != nil || ts == nil {
		t.Fatalf("tokenSource(static) = %v, %v", ts, err)
	}
	tok, err := ts.Token()
	if err != nil || tok.AccessToken != "tok-1" {
		t.Fatalf("Token() = %v, %v", tok, err)
	}

	cfg.Auth.ClientID = "cli"
	cfg.Auth.TokenURL = "https://auth.example.com/oauth/token"
	ts, err = tokenSource(context.Background(), cfg)
	if err != nil || ts == nil {
		t.Fatalf("tokenSource(client credentials) = %v, %v", ts, err)
	}
}

// TestLayoutOptionsMapsConfig verifies [layout] tunables reach the simulation.
func TestLayoutOptionsMapsConfig(t *testing.T) {
	cfg := config.Default("/tmp/t.db", "/tmp/log").Layout
	cfg.Budget = config.Duration{Duration: 500 * time.Millisecond}
	cfg.Padding = 4
	cfg.Charge = -50
	opts := layoutOptions(cfg)
	if opts.Budget != 500*time.Millisecond || opts.Padding != 4 || opts.Charge != -50 || opts.MinMotion != cfg.MinMotion {
		t.Fatalf("unexpected layout options %#v", opts)
	}
	if opts.AlphaDecay == 0 || opts.CollideIterations == 0 {
		t.Fatalf("expected defaults kept for untouched fields %#v", opts)
	}
}

// TestDevLogFilePathResolvesRelativeDir verifies relative dirs anchor at the working directory.
func TestDevLogFilePathResolvesRelativeDir(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)
	got, err := devLogFilePath("logs", "task deck", time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("devLogFilePath() error = %v", err)
	}
	want := filepath.Join(tmp, "logs", "task-deck-20260223.log")
	if resolved, err := filepath.EvalSymlinks(filepath.Dir(got)); err == nil {
		got = filepath.Join(resolved, filepath.Base(got))
	}
	if resolved, err := filepath.EvalSymlinks(filepath.Dir(want)); err == nil {
		want = filepath.Join(resolved, filepath.Base(want))
	}
	if got != want {
		t.Fatalf("devLogFilePath() = %q, want %q", got, want)
	}
}

// TestRuntimeLoggerCanMuteConsoleSink verifies console output can be suppressed while other sinks remain active.
func TestRuntimeLoggerCanMuteConsoleSink(t *testing.T) {
	var console bytes.Buffer
	cfg := config.Default("/tmp/taskdeck.db", "/tmp/log").Logging

	logger, err := newRuntimeLogger(&console, "taskdeck", false, cfg, func() time.Time {
		return time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC)
	})
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}

	logger.Info("before")
	logger.SetConsoleEnabled(false)
	logger.Info("during")
	logger.SetConsoleEnabled(true)
	logger.Info("after")

	out := console.String()
	if !strings.Contains(out, "before") || !strings.Contains(out, "after") {
		t.Fatalf("expected console log to include before and after, got %q", out)
	}
	if strings.Contains(out, "during") {
		t.Fatalf("expected muted console log to omit 'during', got %q", out)
	}
}
