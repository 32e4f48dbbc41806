package preflight

import (
	"context"
	"fmt"
	"strings"

	"docflow/internal/config"
	"docflow/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckWorkers(cfg),
	}
	if ctx.Err() != nil {
		results = append(results, Result{Name: "Context", Detail: ctx.Err().Error()})
	}
	return results
}

// Err folds failed results into a single configuration error.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "run checks", strings.Join(failed, "; "), nil)
}
