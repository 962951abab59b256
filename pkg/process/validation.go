package process

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/core-tools/hsu-deploy/pkg/errors"
)

// ValidateCommandTemplate validates launch command configuration
func ValidateCommandTemplate(t CommandTemplate) error {
	if t.BinDir != "" && len(t.RunPrefix) > 0 {
		return errors.NewValidationError("bin_dir and run_prefix are mutually exclusive", nil)
	}

	if t.BinDir != "" {
		if info, err := os.Stat(t.BinDir); err != nil {
			return errors.NewValidationError("bin directory not accessible: "+t.BinDir, err)
		} else if !info.IsDir() {
			return errors.NewValidationError("bin directory is not a directory: "+t.BinDir, nil)
		}
	}

	if t.WorkingDirectory != "" {
		if !filepath.IsAbs(t.WorkingDirectory) {
			return errors.NewValidationError("working directory must be absolute path", nil)
		}
		if info, err := os.Stat(t.WorkingDirectory); err != nil {
			return errors.NewValidationError("working directory not accessible: "+t.WorkingDirectory, err)
		} else if !info.IsDir() {
			return errors.NewValidationError("working directory is not a directory: "+t.WorkingDirectory, nil)
		}
	}

	for _, env := range t.Environment {
		if !strings.Contains(env, "=") {
			return errors.NewValidationError("invalid environment variable format: "+env, nil)
		}
	}

	return nil
}
