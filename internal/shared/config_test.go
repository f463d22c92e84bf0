package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Storage.DSN != "sqlite://./leadsync.db" {
			t.Errorf("expected storage dsn sqlite://./leadsync.db, got %s", config.Storage.DSN)
		}

		if config.Server.Port != 7420 {
			t.Errorf("expected server port 7420, got %d", config.Server.Port)
		}

		if config.Broker.FlushInterval.Duration != 30*time.Second {
			t.Errorf("expected flush interval 30s, got %s", config.Broker.FlushInterval)
		}

		if config.Broker.RetryDelay.Duration != time.Second {
			t.Errorf("expected retry delay 1s, got %s", config.Broker.RetryDelay)
		}

		if config.Agent.PollInterval.Duration != 5*time.Second {
			t.Errorf("expected agent poll interval 5s, got %s", config.Agent.PollInterval)
		}

		if config.Display.PollInterval.Duration != 2*time.Second {
			t.Errorf("expected display poll interval 2s, got %s", config.Display.PollInterval)
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Storage.DSN != defaultConfig.Storage.DSN {
			t.Errorf("created config storage dsn doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("DisplayVersion", func(t *testing.T) {
		config := DefaultConfig()
		if config.Display.Version != "" {
			t.Errorf("expected empty default display version, got %q", config.Display.Version)
		}

		config.Agent.Version = "pro"
		if got := config.DisplayVersion(); got != "pro" {
			t.Errorf("expected display to follow the agent namespace, got %q", got)
		}

		config.Display.Version = "basic"
		if got := config.DisplayVersion(); got != "basic" {
			t.Errorf("expected [display] version to win, got %q", got)
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[storage]
dsn = "file:///tmp/leads.json"

[broker]
flush_interval = "10s"
merge_policy = "replace"

[server]
host = "0.0.0.0"
port = 8080
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Storage.DSN != "file:///tmp/leads.json" {
			t.Errorf("expected storage dsn file:///tmp/leads.json, got %s", config.Storage.DSN)
		}

		if config.Server.Port != 8080 {
			t.Errorf("expected server port 8080, got %d", config.Server.Port)
		}

		if config.Broker.FlushInterval.Duration != 10*time.Second {
			t.Errorf("expected flush interval 10s, got %s", config.Broker.FlushInterval)
		}

		if config.Broker.RetryDelay.Duration != time.Second {
			t.Errorf("omitted retry delay should keep default 1s, got %s", config.Broker.RetryDelay)
		}

		if config.Broker.MergePolicy != "replace" {
			t.Errorf("expected merge policy replace, got %s", config.Broker.MergePolicy)
		}
	})

	t.Run("LoadConfig Invalid", func(t *testing.T) {
		tc := []struct {
			name string
			body string
		}{
			{"bad duration", "[broker]\nflush_interval = \"soon\"\n"},
			{"bad policy", "[broker]\nmerge_policy = \"latest\"\n"},
			{"bad port", "[server]\nport = 70000\n"},
			{"empty dsn", "[storage]\ndsn = \"\"\n"},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				configPath := filepath.Join(t.TempDir(), "config.toml")
				if err := os.WriteFile(configPath, []byte(tt.body), 0644); err != nil {
					t.Fatalf("failed to write test config: %v", err)
				}
				if _, err := LoadConfig(configPath); err == nil {
					t.Error("expected an error")
				}
			})
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
			t.Error("expected an error for a missing file")
		}
	})
}

func TestServerConfig(t *testing.T) {
	c := ServerConfig{Host: "0.0.0.0", Port: 7420}
	if got := c.Address(); got != "0.0.0.0:7420" {
		t.Errorf("Address() = %s", got)
	}
	if got := c.WebsocketURL(); got != "ws://127.0.0.1:7420/ws" {
		t.Errorf("WebsocketURL() = %s", got)
	}
}

func TestDuration(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Errorf("expected 90s, got %s", d.Duration)
	}

	err := d.UnmarshalText([]byte("later"))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestExportLocation(t *testing.T) {
	if loc := (ExportConfig{Timezone: "Asia/Shanghai"}).Location(); loc.String() != "Asia/Shanghai" {
		t.Errorf("expected Asia/Shanghai, got %s", loc)
	}
	if loc := (ExportConfig{Timezone: "Not/AZone"}).Location(); loc != time.Local {
		t.Errorf("expected fallback to local, got %s", loc)
	}
}
