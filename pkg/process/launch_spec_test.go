package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLaunchSpec_Immutable(t *testing.T) {
	args := []string{"0.0.0.0:5004", "0.0.0.0:5000", "4"}
	spec := NewLaunchSpec("pfd", args...)

	args[0] = "mutated"
	assert.Equal(t, "0.0.0.0:5004", spec.Args()[0])

	got := spec.Args()
	got[1] = "mutated"
	assert.Equal(t, []string{"0.0.0.0:5004", "0.0.0.0:5000", "4"}, spec.Args())
}

func TestLaunchSpec_Equal(t *testing.T) {
	base := NewLaunchSpec("agent", "0.0.0.0:5001", "0.0.0.0:5000")

	tests := []struct {
		name     string
		other    LaunchSpec
		expected bool
	}{
		{"identical", NewLaunchSpec("agent", "0.0.0.0:5001", "0.0.0.0:5000"), true},
		{"different name", NewLaunchSpec("pfd", "0.0.0.0:5001", "0.0.0.0:5000"), false},
		{"different arg", NewLaunchSpec("agent", "0.0.0.0:5002", "0.0.0.0:5000"), false},
		{"fewer args", NewLaunchSpec("agent", "0.0.0.0:5001"), false},
		{"reordered args", NewLaunchSpec("agent", "0.0.0.0:5000", "0.0.0.0:5001"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, base.Equal(tt.other))
		})
	}
}

func TestLaunchSpec_NoArgs(t *testing.T) {
	spec := NewLaunchSpec("registry")

	assert.Equal(t, "registry", spec.Name())
	assert.Empty(t, spec.Args())
	assert.True(t, spec.Equal(NewLaunchSpec("registry")))
}
