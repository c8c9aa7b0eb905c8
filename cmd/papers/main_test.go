package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"github.com/cwygoda/papers/internal/adapter/sqlite"
	"github.com/cwygoda/papers/internal/domain"
)

const (
	testUser = "abc123"
	testPass = "hunter2"
)

type cliTestEnv struct {
	dbPath string
	dest   string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(base, "cache"))
	for _, key := range []string{"PAPERS_INDEX_URL", "PAPERS_DB", "PAPERS_LOG_LEVEL", "PAPERS_TIMEOUT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("DOC_USERNAME", testUser)
	t.Setenv("DOC_PASSWORD", testPass)
	t.Chdir(base)

	return &cliTestEnv{
		dbPath: filepath.Join(base, "history.db"),
		dest:   filepath.Join(base, "papers"),
	}
}

func (e *cliTestEnv) run(args ...string) (string, string, error) {
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--db", e.dbPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// newIndexServer serves the 2020-21 index with two COMP4 papers and one
// unrelated file. Papers listed in missing answer 404.
func newIndexServer(t *testing.T, missing ...string) *httptest.Server {
	t.Helper()

	papers := map[string]string{
		"COMP40001.pdf": strings.Repeat("a", 1500),
		"COMP40002.pdf": strings.Repeat("b", 700),
	}
	for _, name := range missing {
		delete(papers, name)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /papers.20-21/{$}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<p><a href="COMP40001.pdf">Paper one</a></p>
<p><a href="COMP40002.pdf">Paper two</a> <a href="COMP50001.pdf">Other group</a></p>
</body></html>`)
	})
	mux.HandleFunc("GET /papers.20-21/{name}", func(w http.ResponseWriter, r *http.Request) {
		body, ok := papers[r.PathValue("name")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != testUser || pass != testPass {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func latestRun(t *testing.T, dbPath string) domain.Run {
	t.Helper()
	repo, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	defer repo.Close()
	runs, err := repo.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	return runs[0]
}

func TestFetch_DownloadsIntoLabelDirectory(t *testing.T) {
	env := setupCLITestEnv(t)
	srv := newIndexServer(t)

	_, stderr, err := env.run("fetch", env.dest, "--from", "2021", "--group", "y1", "--index-url", srv.URL+"/")
	if err != nil {
		t.Fatalf("fetch error = %v\n%s", err, stderr)
	}

	for name, size := range map[string]int64{"COMP40001.pdf": 1500, "COMP40002.pdf": 700} {
		info, err := os.Stat(filepath.Join(env.dest, "20-21", name))
		if err != nil {
			t.Errorf("stat %s: %v", name, err)
			continue
		}
		if info.Size() != size {
			t.Errorf("%s size = %d, want %d", name, info.Size(), size)
		}
	}
	if _, err := os.Stat(filepath.Join(env.dest, "20-21", "COMP50001.pdf")); !os.IsNotExist(err) {
		t.Errorf("other group paper downloaded, stat error = %v", err)
	}
	if !strings.Contains(stderr, "fetch finished") {
		t.Errorf("stderr missing summary:\n%s", stderr)
	}

	run := latestRun(t, env.dbPath)
	if run.Status != domain.RunSucceeded {
		t.Errorf("run status = %q, want %q", run.Status, domain.RunSucceeded)
	}

	out, _, err := env.run("history")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	if !strings.Contains(out, run.ID) || !strings.Contains(out, "succeeded") {
		t.Errorf("history output missing run:\n%s", out)
	}

	out, _, err = env.run("show", run.ID)
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	for _, want := range []string{"20-21", "done", "2 file(s)", "Group:       y1"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}
}

func TestFetch_FailureReturnsYearError(t *testing.T) {
	env := setupCLITestEnv(t)
	srv := newIndexServer(t, "COMP40002.pdf")

	_, _, err := env.run("fetch", env.dest, "--from", "2021", "--group", "y1", "--index-url", srv.URL+"/")
	if err == nil {
		t.Fatal("fetch expected error")
	}

	var yearErr *domain.YearError
	if !errors.As(err, &yearErr) {
		t.Fatalf("error %v is not a YearError", err)
	}
	if yearErr.Year != 2021 || !strings.HasSuffix(yearErr.URL, "COMP40002.pdf") {
		t.Errorf("YearError = %+v", yearErr)
	}

	run := latestRun(t, env.dbPath)
	if run.Status != domain.RunFailed {
		t.Errorf("run status = %q, want %q", run.Status, domain.RunFailed)
	}
}

func TestFetch_NoHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	srv := newIndexServer(t)

	if _, _, err := env.run("fetch", env.dest, "--from", "2021", "-g", "y1", "--index-url", srv.URL+"/", "--no-history"); err != nil {
		t.Fatalf("fetch error = %v", err)
	}

	out, _, err := env.run("history")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	if !strings.Contains(out, "No runs recorded") {
		t.Errorf("history output = %q, want no runs", out)
	}
}

func TestFetch_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
		wantMsg string
	}{
		{"missing group", []string{"--from", "2021"}, nil, "group is required"},
		{"bad group", []string{"--group", "y3"}, domain.ErrInvalidCategory, ""},
		{"year too early", []string{"--group", "y1", "--from", "1999"}, domain.ErrYearOutOfRange, "2000 to 2021"},
		{"year not numeric", []string{"--group", "y1", "--from", "soon"}, domain.ErrInvalidYear, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupCLITestEnv(t)
			_, _, err := env.run(append([]string{"fetch", env.dest}, tt.args...)...)
			if err == nil {
				t.Fatal("fetch expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestFetch_MissingCredentials(t *testing.T) {
	env := setupCLITestEnv(t)
	os.Unsetenv("DOC_PASSWORD")

	_, _, err := env.run("fetch", env.dest, "--group", "y1")
	if err == nil || !strings.Contains(err.Error(), "DOC_PASSWORD") {
		t.Errorf("error = %v, want credentials error", err)
	}
}

func TestFetch_DestinationLocked(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.MkdirAll(env.dest, 0o755); err != nil {
		t.Fatal(err)
	}
	held := flock.New(filepath.Join(env.dest, lockFileName))
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer held.Unlock()

	_, _, err := env.run("fetch", env.dest, "--group", "y1", "--from", "2021")
	if err == nil || !strings.Contains(err.Error(), "already writing") {
		t.Errorf("error = %v, want lock error", err)
	}
}

func TestFetch_ConfigFile(t *testing.T) {
	env := setupCLITestEnv(t)
	srv := newIndexServer(t)

	cfgPath := filepath.Join(t.TempDir(), "papers.yaml")
	cfg := fmt.Sprintf("fetch:\n  index_url: %s/\n  group: y1\n  from: 2021\n", srv.URL)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, stderr, err := env.run("--config", cfgPath, "fetch", env.dest); err != nil {
		t.Fatalf("fetch error = %v\n%s", err, stderr)
	}
	if _, err := os.Stat(filepath.Join(env.dest, "20-21", "COMP40001.pdf")); err != nil {
		t.Errorf("paper missing: %v", err)
	}
}

func TestShow_NotFound(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := env.run("show", "does-not-exist")
	if !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("error = %v, want %v", err, domain.ErrRunNotFound)
	}
}

func TestRootCommand_InvalidLogFormat(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := env.run("--log-format", "xml", "history"); err == nil {
		t.Error("expected error for unsupported log format")
	}
}

func TestFetch_RecoverStaleKeepsRunsOfLockedDestinations(t *testing.T) {
	env := setupCLITestEnv(t)
	srv := newIndexServer(t)
	ctx := context.Background()

	busyDest := filepath.Join(t.TempDir(), "busy")
	crashedDest := filepath.Join(t.TempDir(), "crashed")
	for _, dir := range []string{busyDest, crashedDest} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	held := flock.New(filepath.Join(busyDest, lockFileName))
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer held.Unlock()

	repo, err := sqlite.New(env.dbPath)
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	svc := domain.NewHistoryService(repo)
	busy, err := svc.Begin(ctx, domain.CategorySecondYear, 2020, domain.EndYear, busyDest)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	crashed, _ := svc.Begin(ctx, domain.CategorySecondYear, 2020, domain.EndYear, crashedDest)
	sameDest, _ := svc.Begin(ctx, domain.CategoryFirstYear, 2021, domain.EndYear, env.dest)
	repo.Close()

	if _, stderr, err := env.run("fetch", env.dest, "--from", "2021", "--group", "y1", "--index-url", srv.URL+"/"); err != nil {
		t.Fatalf("fetch error = %v\n%s", err, stderr)
	}

	repo, err = sqlite.New(env.dbPath)
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	defer repo.Close()

	tests := []struct {
		name string
		id   string
		want domain.RunStatus
	}{
		{"destination locked by another process", busy.ID, domain.RunRunning},
		{"unlocked destination", crashed.ID, domain.RunInterrupted},
		{"destination of this run", sameDest.ID, domain.RunInterrupted},
	}
	for _, tt := range tests {
		got, err := repo.Get(ctx, tt.id)
		if err != nil {
			t.Fatalf("%s: Get: %v", tt.name, err)
		}
		if got.Status != tt.want {
			t.Errorf("%s: status = %q, want %q", tt.name, got.Status, tt.want)
		}
	}
}
