package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// WritePIDFile records the current process id in path, creating parent
// directories. The returned func removes the file.
func WritePIDFile(path string) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create PID directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}
	return func() error { return os.Remove(path) }, nil
}
