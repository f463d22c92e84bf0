package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/leadsync/internal/broker"
	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/server"
	"github.com/desertthunder/leadsync/internal/services"
	"github.com/desertthunder/leadsync/internal/shared"
	tu "github.com/desertthunder/leadsync/internal/testing"
	"github.com/desertthunder/leadsync/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
)

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "config.toml" {
				t.Errorf("expected configPath to be set, got %q", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
		})

		t.Run("with nil dependencies uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.config == nil {
				t.Error("expected default config")
			}
			if runner.logger == nil {
				t.Error("expected default logger")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected default http client")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]int{"total": 2}, true); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := output.String(); got != "{\n  \"total\": 2\n}\n" {
				t.Errorf("unexpected output %q", got)
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]int{"total": 2}, false); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := output.String(); got != "{\"total\":2}\n" {
				t.Errorf("unexpected output %q", got)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
			err := runner.writeJSON(map[string]any{"ch": make(chan int)}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
			err := runner.writeJSON(map[string]int{"a": 1}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			lw := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &lw})
			err := runner.writeJSON(map[string]int{"a": 1}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})
			if err := runner.writePlain("%s: %d\n", "total", 3); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if output.String() != "total: 3\n" {
				t.Errorf("unexpected output %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
			if err := runner.writePlain("x"); err == nil {
				t.Error("expected write error")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		names := map[string]bool{}
		for _, c := range runner.register() {
			names[c.Name] = true
		}
		for _, want := range []string{"setup", "serve", "agent", "collect", "watch", "stats", "export", "bulk-export", "clear"} {
			if !names[want] {
				t.Errorf("expected command %q to be registered", want)
			}
		}
	})
}

// cliFixture is a broker served over httptest plus a runner pointed at it.
type cliFixture struct {
	broker    *broker.Broker
	url       string
	downloads string
	output    *bytes.Buffer
	runner    *Runner
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	logger := shared.NewLogger(io.Discard)
	downloads := t.TempDir()

	b := broker.New(tu.NewMemoryStore(), broker.Options{
		FlushInterval: time.Hour,
		RetryDelay:    5 * time.Millisecond,
		Downloader:    services.NewFileDownloader(downloads, nil),
		Metrics:       broker.NewMetrics(prometheus.NewRegistry()),
		Logger:        logger,
	})
	t.Cleanup(func() { _ = b.Close(context.Background()) })

	s := server.New("", server.Options{Snapshots: b, Progress: b, Mux: transport.NewMux(b), Logger: logger})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub().Close()
		ts.Close()
	})

	output := &bytes.Buffer{}
	config := shared.DefaultConfig()
	config.Export.Timezone = "UTC"
	return &cliFixture{
		broker:    b,
		url:       "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		downloads: downloads,
		output:    output,
		runner:    NewRunner(RunnerOpts{Config: config, Logger: logger, Output: output}),
	}
}

func (f *cliFixture) run(t *testing.T, args ...string) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	f.output.Reset()
	full := append([]string{"leadsync", args[0], "--url", f.url}, args[1:]...)
	return newApp(f.runner).Run(ctx, full)
}

func (f *cliFixture) seed(t *testing.T, v models.Version, users ...models.UserRecord) {
	t.Helper()
	snap, _ := models.Merge(models.EmptySnapshot(), models.Snapshot{SavedUserList: users})
	if err := f.broker.SaveData(context.Background(), v, snap); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func phoneRecord(id string) models.UserRecord {
	r := tu.Record(id, "phone "+id)
	r.Phone = "13800000000"
	return r
}

func TestCommands(t *testing.T) {
	t.Run("stats", func(t *testing.T) {
		f := newCLIFixture(t)
		f.seed(t, models.VersionPro, tu.Record("u1", "plain"), phoneRecord("u2"))

		if err := f.run(t, "stats", "-n", "pro", "--json"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var out map[string]any
		if err := json.Unmarshal(f.output.Bytes(), &out); err != nil {
			t.Fatalf("invalid JSON %q: %v", f.output.String(), err)
		}
		if out["total"] != float64(2) || out["withPhone"] != float64(1) {
			t.Errorf("unexpected stats %v", out)
		}

		if err := f.run(t, "stats", "-n", "basic"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(f.output.String(), "共 0 条") {
			t.Errorf("unexpected plain output %q", f.output.String())
		}
	})

	t.Run("export", func(t *testing.T) {
		t.Run("local csv with filter", func(t *testing.T) {
			f := newCLIFixture(t)
			f.seed(t, models.VersionBasic, tu.Record("u1", "plain"), phoneRecord("u2"))
			path := filepath.Join(t.TempDir(), "out", "leads.csv")

			if err := f.run(t, "export", "--format", "csv", "--phone-only", "--output", path); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tu.AssertDirExists(t, filepath.Dir(path))
			content := tu.MustReadFile(t, path)
			if !strings.HasPrefix(content, "\uFEFF") {
				t.Error("expected BOM")
			}
			if !strings.Contains(content, "phone u2") || strings.Contains(content, "plain") {
				t.Errorf("unexpected export content %q", content)
			}
		})

		t.Run("through broker downloader", func(t *testing.T) {
			f := newCLIFixture(t)
			f.seed(t, models.VersionBasic, tu.Records(2)...)

			if err := f.run(t, "export", "--filename", "basic.txt"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(f.output.String(), "Download stored") {
				t.Errorf("unexpected output %q", f.output.String())
			}
			tu.AssertFileExists(t, filepath.Join(f.downloads, "basic.txt"))
		})

		t.Run("invalid expression", func(t *testing.T) {
			f := newCLIFixture(t)
			err := f.run(t, "export", "--expr", "fansCount >")
			if !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})

		t.Run("invalid format", func(t *testing.T) {
			f := newCLIFixture(t)
			err := f.run(t, "export", "--format", "xlsx")
			if !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	})

	t.Run("clear", func(t *testing.T) {
		f := newCLIFixture(t)
		f.seed(t, models.VersionBasic, tu.Records(2)...)

		if err := f.run(t, "clear"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Fatalf("expected confirmation to be required, got %v", err)
		}
		if err := f.run(t, "clear", "--yes"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(f.output.String(), "2 → 0") {
			t.Errorf("unexpected output %q", f.output.String())
		}
		snap, err := f.broker.GetSavedData(context.Background(), models.VersionBasic)
		if err != nil || !snap.IsEmpty() {
			t.Errorf("expected namespace to be empty, got %d records (%v)", snap.Len(), err)
		}
	})

	t.Run("collect", func(t *testing.T) {
		f := newCLIFixture(t)
		f.seed(t, models.VersionBasic, tu.Record("u1", "existing"))

		source := filepath.Join(t.TempDir(), "candidates.json")
		data, err := json.Marshal(tu.Records(3))
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(source, data, 0644); err != nil {
			t.Fatal(err)
		}

		if err := f.run(t, "collect", "--source", source, "--json"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var result struct {
			Added int
			Seen  int
			Total int
		}
		if err := json.Unmarshal(f.output.Bytes(), &result); err != nil {
			t.Fatalf("invalid JSON %q: %v", f.output.String(), err)
		}
		if result.Added != 2 || result.Seen != 1 || result.Total != 3 {
			t.Errorf("unexpected result %+v", result)
		}

		snap, err := f.broker.GetSavedData(context.Background(), models.VersionBasic)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if snap.Len() != 3 {
			t.Errorf("expected 3 stored records, got %d", snap.Len())
		}
	})

	t.Run("bulk-export", func(t *testing.T) {
		f := newCLIFixture(t)
		f.seed(t, models.VersionBasic, tu.Records(2)...)
		f.seed(t, models.VersionPro, tu.Records(1)...)
		dir := t.TempDir()

		if err := f.run(t, "bulk-export", "--output-dir", dir, "--formats", "txt", "--formats", "csv"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(f.output.String(), "4/4 succeeded") {
			t.Errorf("unexpected output %q", f.output.String())
		}
		for _, name := range []string{"basic.txt", "basic.csv", "pro.txt", "pro.csv", "export_manifest.json"} {
			tu.AssertFileExists(t, filepath.Join(dir, name))
		}
	})

	t.Run("unreachable broker", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})
		err := newApp(runner).Run(context.Background(), []string{"leadsync", "stats", "--url", "ws://127.0.0.1:1/ws"})
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}

func TestSetup(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: output})
	if err := newApp(runner).Run(context.Background(), []string{"leadsync", "setup", "--path", "config.toml"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tu.AssertFileExists(t, filepath.Join(dir, "config.toml"))
	tu.AssertFileExists(t, filepath.Join(dir, "leadsync.db"))
	if !strings.Contains(output.String(), "0 records") {
		t.Errorf("unexpected output %q", output.String())
	}

	t.Run("config flag", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})
		if err := newApp(runner).Run(context.Background(), []string{"leadsync", "--config", "config.toml", "--log-level", "debug", "setup"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if runner.configPath != "config.toml" {
			t.Errorf("expected configPath to be set, got %q", runner.configPath)
		}
	})

	t.Run("bad log level", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})
		err := newApp(runner).Run(context.Background(), []string{"leadsync", "--log-level", "loud", "setup"})
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}
