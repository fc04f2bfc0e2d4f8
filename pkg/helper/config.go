package helper

import (
	"os"
	"path/filepath"

	"github.com/amoylab/tokengate/internal/common/cnst"
)

// GetCfgPath returns the path to the configuration file.
//
// Priority:
// 1. If filename is an absolute path, return it directly.
// 2. Check ./{filename} and ./configs/{filename}
// 3. Otherwise, fallback to /etc/tokengate/{filename}
func GetCfgPath(filename string) string {
	if filename == "" {
		panic("filename cannot be empty")
	}

	if filepath.IsAbs(filename) {
		return filename
	}

	for _, dir := range []string{".", "configs"} {
		if p := existingAbs(filepath.Join(dir, filename)); p != "" {
			return p
		}
	}

	return filepath.Join("/etc", cnst.AppName, filename)
}

func existingAbs(candidate string) string {
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	absPath, err := filepath.Abs(candidate)
	if err != nil {
		return ""
	}
	return absPath
}
