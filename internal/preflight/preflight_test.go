package preflight_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docflow/internal/preflight"
	"docflow/internal/services"
	"docflow/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := preflight.CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := preflight.CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := preflight.CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckWorkers(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(0, 0, 0))
	if preflight.CheckWorkers(cfg).Passed {
		t.Fatal("expected failure with no workers")
	}
	cfg = testsupport.NewConfig(t, testsupport.WithWorkers(2, 0, 1))
	result := preflight.CheckWorkers(cfg)
	if !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	if result.Detail != "cpu=2 gpu=0 api=1" {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestRunAllReportsMissingDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := preflight.RunAll(context.Background(), cfg)
	err := preflight.Err(results)
	if err == nil {
		t.Fatal("expected failure before directories exist")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	results = preflight.RunAll(context.Background(), cfg)
	if err := preflight.Err(results); err != nil {
		t.Fatalf("expected all checks to pass: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
}
