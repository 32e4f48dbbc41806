package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateClassification(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	counts := map[string]int{
		"workers.cpu": c.Workers.CPU,
		"workers.gpu": c.Workers.GPU,
		"workers.api": c.Workers.API,
	}
	total := 0
	for _, key := range sortedKeys(counts) {
		if counts[key] < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
		total += counts[key]
	}
	if total == 0 {
		return errors.New("at least one of workers.cpu, workers.gpu, workers.api must be positive")
	}
	return nil
}

func (c *Config) validateJobs() error {
	if err := ensurePositiveMap(map[string]int{
		"jobs.poll_interval":        c.Jobs.PollInterval,
		"jobs.error_retry_interval": c.Jobs.ErrorRetryInterval,
		"jobs.maintenance_interval": c.Jobs.MaintenanceInterval,
	}); err != nil {
		return err
	}
	if c.Jobs.HeartbeatInterval <= 0 {
		return errors.New("jobs.heartbeat_interval must be positive")
	}
	if c.Jobs.HeartbeatTimeout <= 0 {
		return errors.New("jobs.heartbeat_timeout must be positive")
	}
	if c.Jobs.HeartbeatTimeout <= c.Jobs.HeartbeatInterval {
		return errors.New("jobs.heartbeat_timeout must be greater than jobs.heartbeat_interval")
	}
	if c.Jobs.DefaultResultTTLHours < 0 {
		return errors.New("jobs.default_result_ttl_hours must not be negative (0 keeps results forever)")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.MaxFileBytes <= 0 {
		return errors.New("ingest.max_file_bytes must be positive")
	}
	if c.Ingest.MaxArchiveFiles <= 0 {
		return errors.New("ingest.max_archive_files must be positive")
	}
	return nil
}

func (c *Config) validateClassification() error {
	for label, keywords := range c.Classification.Labels {
		if len(keywords) == 0 {
			return fmt.Errorf("classification.labels.%s must list at least one keyword", label)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for _, key := range sortedKeys(values) {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func sortedKeys(values map[string]int) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
