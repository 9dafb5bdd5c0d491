package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"gopkg.in/yaml.v3"

	"github.com/stoq/stoqserver/src/bootstrap"
	"github.com/stoq/stoqserver/src/common/version"
	"github.com/stoq/stoqserver/src/concurrency"
	"github.com/stoq/stoqserver/src/config"
	"github.com/stoq/stoqserver/src/environ"
	"github.com/stoq/stoqserver/src/mode"
	"github.com/stoq/stoqserver/src/paths"
	"github.com/stoq/stoqserver/src/plugin"
	"github.com/stoq/stoqserver/src/worker"
)

// TestMain lets the test binary act as the verify worker child
func TestMain(m *testing.M) {
	if ran, code, err := worker.Dispatch(context.Background(), environ.FromOS(), os.Args[1:]); ran {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(code)
	}
	os.Exit(m.Run())
}

func writeBundle(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for member, body := range files {
		w, err := zw.Create(member)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, body); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

func run(t *testing.T, bc bootstrap.Context, args ...string) (int, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := &App{Stdout: &out, Stderr: &errOut, Paths: &paths.Paths{PIDFile: filepath.Join(t.TempDir(), "stoqserver.pid")}}
	code, err := a.Main(context.Background(), bc, args)
	return code, out.String(), err
}

func TestConfigPath(t *testing.T) {
	layout := &paths.Paths{ConfigDir: "/etc/stoqserver"}
	def := filepath.Join("/etc/stoqserver", config.FileName)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"default", []string{"run"}, def},
		{"long", []string{"--config", "/tmp/a.yml", "run"}, "/tmp/a.yml"},
		{"short", []string{"run", "-c", "/tmp/b.yml"}, "/tmp/b.yml"},
		{"equals", []string{"--config=/tmp/c.yml"}, "/tmp/c.yml"},
		{"missing value", []string{"--config"}, def},
		{"after terminator", []string{"--", "--config", "/tmp/d.yml"}, def},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConfigPath(tt.args, layout); got != tt.want {
				t.Errorf("ConfigPath(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	code, out, err := run(t, bootstrap.Context{}, "version", "--short")
	if code != 0 || err != nil {
		t.Fatalf("Main() = %d, %v", code, err)
	}
	if out != version.Get().Short()+"\n" {
		t.Errorf("output = %q", out)
	}

	_, out, _ = run(t, bootstrap.Context{}, "version")
	if !strings.Contains(out, "Frozen") {
		t.Errorf("full version output missing frozen line: %q", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	code, _, err := run(t, bootstrap.Context{}, "no-such-command")
	if code != 1 || err == nil {
		t.Errorf("Main() = %d, %v; want 1 and an error", code, err)
	}
}

func TestExitErrorCode(t *testing.T) {
	err := fail(3, "missing %s", "thing")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 3 {
		t.Fatalf("fail() = %#v", err)
	}
	if err.Error() != "missing thing" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestEnvYAML(t *testing.T) {
	bc := bootstrap.Context{
		RunID:       "01TESTRUN",
		Mode:        mode.Runtime{Server: true, MultiClient: true},
		Substrate:   concurrency.Substrate{Backend: concurrency.Cooperative, Database: concurrency.Cooperative, Driver: "postgres", Patches: []string{"runtime", "database:postgres"}},
		Frozen:      true,
		DataDir:     "/shared/stoq",
		ResourceDir: "/usr/share/stoqserver/extensions",
		SearchPath:  plugin.NewSearchPath("/b.egg", "/a.egg"),
		Env:         environ.FromList([]string{"PATH=/opt/stoq:/usr/bin", "PGPASSFILE=/shared/stoq/pgpass.conf", "HOME=/root"}),
		Timings:     []bootstrap.Timing{{Phase: bootstrap.PhaseMode}, {Phase: bootstrap.PhaseFrozen, Skipped: true}},
	}
	mode.SetDebug(true)
	defer mode.SetDebug(false)

	code, out, err := run(t, bc, "env", "--output", "yaml")
	if code != 0 || err != nil {
		t.Fatalf("Main() = %d, %v", code, err)
	}

	var got map[string]any
	if err := yaml.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out)
	}
	if got["run_id"] != "01TESTRUN" || got["frozen"] != true {
		t.Errorf("run_id/frozen = %v/%v", got["run_id"], got["frozen"])
	}
	if got["mode"] != "production [debugging]" {
		t.Errorf("mode = %v", got["mode"])
	}
	sub := got["substrate"].(map[string]any)
	if sub["backend"] != "cooperative" || sub["database"] != "cooperative" {
		t.Errorf("substrate = %v", sub)
	}
	sp := got["search_path"].([]any)
	if len(sp) != 2 || sp[0] != "/b.egg" {
		t.Errorf("search_path = %v", sp)
	}
	vars := got["variables"].(map[string]any)
	if vars["PGPASSFILE"] != "/shared/stoq/pgpass.conf" {
		t.Errorf("variables = %v", vars)
	}
	if _, ok := vars["HOME"]; ok {
		t.Error("unrelated variables should not be reported")
	}
	timings := got["timings"].(map[string]any)
	if timings[bootstrap.PhaseFrozen] != "skipped" {
		t.Errorf("timings = %v", timings)
	}
}

func TestEnvTable(t *testing.T) {
	bc := bootstrap.Context{SearchPath: plugin.NewSearchPath("/a.egg")}
	code, out, err := run(t, bc, "env", "--no-color")
	if code != 0 || err != nil {
		t.Fatalf("Main() = %d, %v", code, err)
	}
	for _, want := range []string{"stoqserver environment", "runtime:", "command", "/a.egg"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEnvUnknownFormat(t *testing.T) {
	code, _, err := run(t, bootstrap.Context{}, "env", "-o", "xml")
	if code != 1 || err == nil || !strings.Contains(err.Error(), "xml") {
		t.Errorf("Main() = %d, %v", code, err)
	}
}

func TestExtensionsList(t *testing.T) {
	loader := plugin.NewLoader()
	loader.InstallArchiveSupport()
	bc := bootstrap.Context{
		SearchPath: plugin.NewSearchPath("/app/stoq.egg", "/app"),
		Bundles:    []string{"/app/stoq.egg"},
		Loader:     loader,
	}

	code, out, err := run(t, bc, "extensions")
	if code != 0 || err != nil {
		t.Fatalf("Main() = %d, %v", code, err)
	}
	for _, want := range []string{" 1. /app/stoq.egg", " 2. /app", "bundles:", "extensions:", "(none)", "true"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestExtensionsResolve(t *testing.T) {
	dir := t.TempDir()
	whl := writeBundle(t, dir, "native.whl", map[string]string{"lib/_native.so": "ELF"})
	loader := plugin.NewLoader()
	loader.InstallArchiveSupport()
	bc := bootstrap.Context{
		SearchPath: plugin.NewSearchPath(whl),
		Loader:     loader,
		CacheDir:   t.TempDir(),
	}

	code, out, err := run(t, bc, "extensions", "resolve", "lib/_native.so", "--extract")
	if code != 0 || err != nil {
		t.Fatalf("Main() = %d, %v", code, err)
	}
	for _, want := range []string{"origin:", whl, "member:", "blake3:", "extracted:", bc.CacheDir} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	code, _, err = run(t, bc, "extensions", "resolve", "absent.so")
	if code != 3 || !strings.Contains(fmt.Sprint(err), "not found") {
		t.Errorf("Main(absent) = %d, %v; want 3", code, err)
	}
}

func testLauncher(t *testing.T) worker.Launcher {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	return worker.Launcher{Executable: exe, Env: environ.FromOS()}
}

func TestExtensionsVerify(t *testing.T) {
	dir := t.TempDir()
	good := writeBundle(t, dir, "stoq.egg", map[string]string{"stoq/a": "a", "stoq/b": "b"})
	other := writeBundle(t, dir, "kiwi.egg", map[string]string{"kiwi/a": "a"})

	for _, parallel := range []string{"1", "4"} {
		t.Run("parallel="+parallel, func(t *testing.T) {
			bc := bootstrap.Context{
				Bundles:    []string{good},
				Extensions: []string{other},
				Workers:    testLauncher(t),
			}
			code, out, err := run(t, bc, "extensions", "verify", "--parallel", parallel)
			if code != 0 || err != nil {
				t.Fatalf("Main() = %d, %v\n%s", code, err, out)
			}
			if !strings.Contains(out, good+" (2 files") || !strings.Contains(out, other+" (1 files") {
				t.Errorf("output = %q", out)
			}
		})
	}

	bc := bootstrap.Context{Bundles: []string{good}, Workers: testLauncher(t)}
	if code, _, err := run(t, bc, "extensions", "verify", "--parallel", "0"); code != 1 || err == nil {
		t.Errorf("--parallel 0: Main() = %d, %v", code, err)
	}
}

func TestVerifyBackend(t *testing.T) {
	tests := []struct {
		parallel int
		want     concurrency.Kind
	}{
		{1, concurrency.Blocking},
		{2, concurrency.Cooperative},
		{8, concurrency.Cooperative},
	}
	for _, tt := range tests {
		if got := verifyBackend(tt.parallel).Kind(); got != tt.want {
			t.Errorf("verifyBackend(%d) = %v, want %v", tt.parallel, got, tt.want)
		}
	}
}

func TestExtensionsVerifyFailure(t *testing.T) {
	dir := t.TempDir()
	good := writeBundle(t, dir, "stoq.egg", map[string]string{"stoq/a": "a"})
	broken := filepath.Join(dir, "broken.whl")
	if err := os.WriteFile(broken, []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}

	bc := bootstrap.Context{Bundles: []string{good, broken}, Workers: testLauncher(t)}
	code, out, err := run(t, bc, "extensions", "verify")
	if code != 1 || err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("Main() = %d, %v", code, err)
	}
	if !strings.Contains(out, "ok "+good) || !strings.Contains(out, "FAIL "+broken) {
		t.Errorf("output = %q", out)
	}
}

func TestExtensionsVerifyReentry(t *testing.T) {
	dir := t.TempDir()
	onPath := writeBundle(t, dir, "stoq.egg", map[string]string{"stoq/a": "a"})
	offPath := writeBundle(t, dir, "stray.egg", map[string]string{"stray/a": "a"})

	launcher := testLauncher(t)
	launcher.Reentry = true
	launcher.SearchPath = plugin.NewSearchPath(onPath)

	results := verifyAll(context.Background(), launcher, concurrency.New(concurrency.Substrate{}, 1), []string{onPath, offPath})
	if results[0].Err != nil {
		t.Errorf("on-path archive failed: %v", results[0].Err)
	}
	if results[1].Err == nil || !strings.Contains(results[1].Err.Error(), "not on the search path") {
		t.Errorf("off-path archive error = %v", results[1].Err)
	}
}

func TestVerifyExtensionUsage(t *testing.T) {
	if code := verifyExtension(context.Background(), environ.Env{}, nil); code != 2 {
		t.Errorf("verifyExtension() = %d, want 2", code)
	}
}

func TestParseVerifyOutput(t *testing.T) {
	digest := strings.Repeat("ab", 32)
	d, n, err := parseVerifyOutput(digest + " 7\n")
	if err != nil || d != digest || n != 7 {
		t.Errorf("parseVerifyOutput() = %q, %d, %v", d, n, err)
	}
	for _, bad := range []string{"", "short 1", digest + " x", digest} {
		if _, _, err := parseVerifyOutput(bad); err == nil {
			t.Errorf("parseVerifyOutput(%q) should fail", bad)
		}
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "run", "stoqserver.pid")
	cfg := &config.Config{}
	cfg.Server.Address = "127.0.0.1"

	bc := bootstrap.Context{Config: cfg, Mode: mode.Runtime{Server: true}}
	var out bytes.Buffer
	a := &App{Stdout: &out, Stderr: &out}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, err := a.Main(ctx, bc, []string{"run", "--no-database", "--port", "0", "--pid-file", pidFile})
	if code != 0 || err != nil {
		t.Fatalf("Main() = %d, %v", code, err)
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Errorf("PID file should be removed on exit, stat error = %v", err)
	}
}

func TestRunDatabaseConnected(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Address = "127.0.0.1"
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "stoq.db"), MaxOpen: 1}

	var logs bytes.Buffer
	a := &App{Stdout: io.Discard, Stderr: io.Discard, Logger: slog.New(slog.NewTextHandler(&logs, nil))}
	bc := bootstrap.Context{Config: cfg, Mode: mode.Runtime{Server: true}}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	code, err := a.Main(ctx, bc, []string{"run", "--port", "0", "--pid-file", filepath.Join(t.TempDir(), "x.pid")})
	if code != 0 || err != nil {
		t.Fatalf("Main() = %d, %v", code, err)
	}
	out := logs.String()
	if !strings.Contains(out, "server_version=3.") || !strings.Contains(out, "remote=false") {
		t.Errorf("connection log = %q", out)
	}
}

func TestRunDatabaseError(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Address = "127.0.0.1"
	cfg.Database.Driver = "oracle"

	bc := bootstrap.Context{Config: cfg, Mode: mode.Runtime{Server: true}}
	code, _, err := run(t, bc, "run", "--port", "0", "--pid-file", filepath.Join(t.TempDir(), "x.pid"))
	if code != 1 || err == nil || !strings.HasPrefix(err.Error(), "database:") {
		t.Errorf("Main() = %d, %v", code, err)
	}
}
