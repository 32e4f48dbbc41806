package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	StagingDir string `toml:"staging_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Workers sizes each device lane. Zero disables the lane.
type Workers struct {
	CPU int `toml:"cpu"`
	GPU int `toml:"gpu"`
	API int `toml:"api"`
}

// Jobs contains daemon timing for job dispatch and maintenance. All
// intervals are seconds.
type Jobs struct {
	PollInterval          int `toml:"poll_interval"`
	ErrorRetryInterval    int `toml:"error_retry_interval"`
	HeartbeatInterval     int `toml:"heartbeat_interval"`
	HeartbeatTimeout      int `toml:"heartbeat_timeout"`
	MaintenanceInterval   int `toml:"maintenance_interval"`
	DefaultResultTTLHours int `toml:"default_result_ttl_hours"`
	EventHistory          int `toml:"event_history"`
}

// Ingest contains limits applied by the preprocessing pipelines.
type Ingest struct {
	MaxFileBytes    int64 `toml:"max_file_bytes"`
	MaxArchiveFiles int   `toml:"max_archive_files"`
	EmbeddingDims   int   `toml:"embedding_dims"`
}

// Classification configures the keyword classifier used by classify_documents.
type Classification struct {
	Labels map[string][]string `toml:"labels"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for docflow.
//
// Configuration sections by subsystem:
//   - Paths: data, log and staging directories plus the API bind address
//   - Workers: goroutines per device lane (cpu, gpu, api)
//   - Jobs: polling, heartbeat, maintenance and result retention timing
//   - Ingest: file size and archive limits, embedding dimensions
//   - Classification: keyword labels
//   - Logging: log format and level
type Config struct {
	Paths          Paths          `toml:"paths"`
	Workers        Workers        `toml:"workers"`
	Jobs           Jobs           `toml:"jobs"`
	Ingest         Ingest         `toml:"ingest"`
	Classification Classification `toml:"classification"`
	Logging        Logging        `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/docflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("docflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.StagingDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath is the SQLite file shared by the queue, tracker and document store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "docflow.db")
}

// LockPath is the flock file guarding single-daemon ownership of DataDir.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "docflowd.lock")
}

// WorkerCount returns the configured lane size for a device name.
func (c *Config) WorkerCount(device string) int {
	switch strings.ToLower(strings.TrimSpace(device)) {
	case "cpu":
		return c.Workers.CPU
	case "gpu":
		return c.Workers.GPU
	case "api":
		return c.Workers.API
	default:
		return 0
	}
}

// PollInterval is how long an idle worker waits before claiming again.
func (c *Config) PollInterval() time.Duration {
	return seconds(c.Jobs.PollInterval)
}

// ErrorRetryInterval is how long a worker backs off after a queue error.
func (c *Config) ErrorRetryInterval() time.Duration {
	return seconds(c.Jobs.ErrorRetryInterval)
}

func (c *Config) HeartbeatInterval() time.Duration {
	return seconds(c.Jobs.HeartbeatInterval)
}

func (c *Config) HeartbeatTimeout() time.Duration {
	return seconds(c.Jobs.HeartbeatTimeout)
}

func (c *Config) MaintenanceInterval() time.Duration {
	return seconds(c.Jobs.MaintenanceInterval)
}

// DefaultResultTTL applies to job types that do not set their own result TTL.
// Zero keeps results forever.
func (c *Config) DefaultResultTTL() time.Duration {
	return time.Duration(c.Jobs.DefaultResultTTLHours) * time.Hour
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
