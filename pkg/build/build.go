// Package build runs the external build step that produces the service binaries.
package build

import (
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/google/shlex"

	"github.com/core-tools/hsu-deploy/pkg/errors"
	"github.com/core-tools/hsu-deploy/pkg/logging"
)

// DefaultCommand builds every binary of the cargo workspace
const DefaultCommand = "cargo build --release --bins"

type Config struct {
	// Command is split like a POSIX shell would, without running a shell
	Command string `yaml:"command,omitempty"`

	// Dir is the directory the build runs in; empty inherits ours
	Dir string `yaml:"dir,omitempty"`

	Skip bool `yaml:"skip,omitempty"`
}

// ParseCommand splits a command line into argv
func ParseCommand(command string) ([]string, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, errors.NewValidationError("failed to parse command", err).WithContext("command", command)
	}
	if len(argv) == 0 {
		return nil, errors.NewValidationError("command cannot be empty", nil)
	}
	return argv, nil
}

// ValidateConfig validates build configuration
func ValidateConfig(config Config) error {
	if config.Skip {
		return nil
	}
	if _, err := ParseCommand(config.Command); err != nil {
		return err
	}
	if config.Dir != "" {
		if info, err := os.Stat(config.Dir); err != nil {
			return errors.NewValidationError("build directory not accessible: "+config.Dir, err)
		} else if !info.IsDir() {
			return errors.NewValidationError("build directory is not a directory: "+config.Dir, nil)
		}
	}
	return nil
}

type Builder struct {
	config Config
	logger logging.Logger

	Stdout io.Writer
	Stderr io.Writer
}

func NewBuilder(config Config, logger logging.Logger) *Builder {
	return &Builder{
		config: config,
		logger: logger,
	}
}

// Build runs the build command to completion. Any failure is fatal to the
// deployment: services must never start from stale or missing binaries.
func (b *Builder) Build(ctx context.Context) error {
	if b.config.Skip {
		b.logger.Infof("Build step skipped")
		return nil
	}

	argv, err := ParseCommand(b.config.Command)
	if err != nil {
		return err
	}

	b.logger.Infof("Building services, command: %v, dir: '%s'", argv, b.config.Dir)
	start := time.Now()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = b.config.Dir
	cmd.Stdout = b.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = b.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return errors.NewCancelledError("build was cancelled", ctx.Err())
		}
		return errors.NewBuildError("build command failed", err).WithContext("command", argv)
	}

	b.logger.Infof("Build finished in %v", time.Since(start).Round(time.Millisecond))
	return nil
}
