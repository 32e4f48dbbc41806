package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"docflow/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("DOCFLOW_API_TOKEN", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "docflow")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "docflow.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.LockPath() != filepath.Join(wantData, "docflowd.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.WorkerCount("cpu") != 2 || cfg.WorkerCount("gpu") != 1 || cfg.WorkerCount("api") != 4 {
		t.Fatalf("unexpected worker defaults: %+v", cfg.Workers)
	}
	if cfg.WorkerCount("tpu") != 0 {
		t.Fatal("expected unknown device to have no workers")
	}
	if cfg.PollInterval() != 2*time.Second {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval())
	}
	if cfg.DefaultResultTTL() != 168*time.Hour {
		t.Fatalf("unexpected result ttl: %s", cfg.DefaultResultTTL())
	}
	if len(cfg.Classification.Labels) == 0 {
		t.Fatal("expected default classification labels")
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("DOCFLOW_API_TOKEN", "")

	configPath := filepath.Join(t.TempDir(), "docflow.toml")
	content := `
[paths]
data_dir = "~/data"
api_token = "  secret  "

[workers]
cpu = 1
gpu = 0
api = 0

[jobs]
poll_interval = 1
heartbeat_interval = 5
heartbeat_timeout = 30
default_result_ttl_hours = 0

[classification.labels]
Memo = [" Memo ", "memo", "note"]

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.APIToken != "secret" {
		t.Fatalf("expected trimmed token, got %q", cfg.Paths.APIToken)
	}
	if cfg.WorkerCount("gpu") != 0 {
		t.Fatalf("expected gpu lane disabled, got %d", cfg.WorkerCount("gpu"))
	}
	if cfg.DefaultResultTTL() != 0 {
		t.Fatalf("expected zero result ttl, got %s", cfg.DefaultResultTTL())
	}
	keywords := cfg.Classification.Labels["memo"]
	if len(keywords) != 2 || keywords[0] != "memo" || keywords[1] != "note" {
		t.Fatalf("unexpected normalized keywords: %v", keywords)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestEnvTokenOverridesConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DOCFLOW_API_TOKEN", "from-env")

	configPath := filepath.Join(t.TempDir(), "docflow.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\napi_token = \"from-file\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIToken != "from-env" {
		t.Fatalf("expected env token, got %q", cfg.Paths.APIToken)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "docflow.toml")
	if err := os.WriteFile(configPath, []byte("[workers]\ntpu = 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestCreateSample(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var parsed map[string]any
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample is not valid toml: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if !strings.Contains(string(data), "[workers]") {
		t.Fatal("expected workers section in sample")
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "negative workers",
			mutate:  func(c *config.Config) { c.Workers.CPU = -1 },
			wantErr: "workers.cpu",
		},
		{
			name: "no lanes",
			mutate: func(c *config.Config) {
				c.Workers = config.Workers{}
			},
			wantErr: "at least one",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *config.Config) { c.Jobs.PollInterval = 0 },
			wantErr: "jobs.poll_interval",
		},
		{
			name: "heartbeat timeout below interval",
			mutate: func(c *config.Config) {
				c.Jobs.HeartbeatInterval = 30
				c.Jobs.HeartbeatTimeout = 10
			},
			wantErr: "jobs.heartbeat_timeout",
		},
		{
			name:    "negative result ttl",
			mutate:  func(c *config.Config) { c.Jobs.DefaultResultTTLHours = -1 },
			wantErr: "default_result_ttl_hours",
		},
		{
			name:    "zero max file size",
			mutate:  func(c *config.Config) { c.Ingest.MaxFileBytes = 0 },
			wantErr: "ingest.max_file_bytes",
		},
		{
			name: "empty label keywords",
			mutate: func(c *config.Config) {
				c.Classification.Labels = map[string][]string{"memo": nil}
			},
			wantErr: "classification.labels.memo",
		},
		{
			name:    "bad log level",
			mutate:  func(c *config.Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.DataDir = t.TempDir()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.StagingDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
