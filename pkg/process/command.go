package process

import (
	"path/filepath"

	"github.com/core-tools/hsu-deploy/pkg/errors"
)

// DefaultRunPrefix runs service binaries through cargo, as the services are
// Rust binaries of one cargo workspace.
var DefaultRunPrefix = []string{"cargo", "run", "--release", "--quiet", "--bin"}

// CommandTemplate turns a LaunchSpec into a concrete command line.
// Resolution is pure, so equal specs always yield identical command lines.
type CommandTemplate struct {
	// RunPrefix is prepended to "<name> <args...>", e.g. cargo run --bin.
	RunPrefix []string `yaml:"run_prefix,omitempty"`

	// BinDir, when set, runs "<bin_dir>/<name> <args...>" directly.
	BinDir string `yaml:"bin_dir,omitempty"`

	// WorkingDirectory of launched services; empty inherits ours.
	WorkingDirectory string `yaml:"working_directory,omitempty"`

	Environment []string `yaml:"environment,omitempty"`
}

// Resolve returns the full argv for spec
func (t CommandTemplate) Resolve(spec LaunchSpec) ([]string, error) {
	if spec.Name() == "" {
		return nil, errors.NewValidationError("program name cannot be empty", nil)
	}

	var command []string
	switch {
	case t.BinDir != "":
		command = append(command, filepath.Join(t.BinDir, spec.Name()))
	case len(t.RunPrefix) > 0:
		command = append(command, t.RunPrefix...)
		command = append(command, spec.Name())
	default:
		command = append(command, spec.Name())
	}

	return append(command, spec.Args()...), nil
}
