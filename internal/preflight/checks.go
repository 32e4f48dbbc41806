package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"docflow/internal/config"
	"docflow/internal/queue"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckWorkers fails when no device lane has a worker.
func CheckWorkers(cfg *config.Config) Result {
	const name = "Workers"
	total := 0
	detail := ""
	for _, device := range queue.Devices() {
		n := cfg.WorkerCount(string(device))
		total += n
		if detail != "" {
			detail += " "
		}
		detail += fmt.Sprintf("%s=%d", device, n)
	}
	if total == 0 {
		return Result{Name: name, Detail: "no workers configured"}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}
