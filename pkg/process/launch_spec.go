package process

import (
	"fmt"
)

// LaunchSpec fully determines how a service process is started and restarted.
// It is immutable: the argument slice is copied in and copied out.
type LaunchSpec struct {
	name string
	args []string
}

func NewLaunchSpec(name string, args ...string) LaunchSpec {
	return LaunchSpec{
		name: name,
		args: append([]string(nil), args...),
	}
}

// Name is the program name of the service (registry, agent, pfd, ...)
func (s LaunchSpec) Name() string {
	return s.name
}

// Args returns a copy of the ordered argument list
func (s LaunchSpec) Args() []string {
	return append([]string(nil), s.args...)
}

// Equal reports whether both specs produce the same invocation
func (s LaunchSpec) Equal(other LaunchSpec) bool {
	if s.name != other.name || len(s.args) != len(other.args) {
		return false
	}
	for i := range s.args {
		if s.args[i] != other.args[i] {
			return false
		}
	}
	return true
}

func (s LaunchSpec) String() string {
	return fmt.Sprintf("%s %v", s.name, s.args)
}
