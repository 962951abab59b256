package deploy

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/core-tools/hsu-deploy/pkg/address"
	"github.com/core-tools/hsu-deploy/pkg/build"
	"github.com/core-tools/hsu-deploy/pkg/errors"
	"github.com/core-tools/hsu-deploy/pkg/logging"
	"github.com/core-tools/hsu-deploy/pkg/process"
	"github.com/core-tools/hsu-deploy/pkg/supervisor"
)

const (
	DefaultPeersFile            = "/tmp/consensus-registry"
	DefaultRegistryStartupDelay = time.Second
)

// Config describes one deployment run
type Config struct {
	NumAgents int `yaml:"num_agents"`

	// HeartbeatTimeout in whole seconds; forwarded verbatim to the failure
	// detector and halved for the supervision interval.
	HeartbeatTimeout int `yaml:"heartbeat_timeout"`

	Host      string `yaml:"host,omitempty"`
	BasePort  int    `yaml:"base_port,omitempty"`
	PeersFile string `yaml:"peers_file,omitempty"`

	// RegistryStartupDelay stands in for a readiness handshake the registry
	// does not have.
	RegistryStartupDelay time.Duration `yaml:"registry_startup_delay,omitempty"`

	// SuperviseAgents also restarts crashed agents, tracked as agent-<i>.
	// Off by default: agents are launched and then left alone.
	SuperviseAgents bool `yaml:"supervise_agents,omitempty"`

	// KeepChildren leaves services running when the orchestrator stops
	KeepChildren         bool          `yaml:"keep_children,omitempty"`
	TerminateGracePeriod time.Duration `yaml:"terminate_grace_period,omitempty"`

	Build          build.Config             `yaml:"build,omitempty"`
	Launch         process.CommandTemplate  `yaml:"launch,omitempty"`
	RestartBackoff supervisor.BackoffConfig `yaml:"restart_backoff,omitempty"`
	Metrics        MetricsConfig            `yaml:"metrics,omitempty"`
	Logging        logging.ZapConfig        `yaml:"logging,omitempty"`
}

// MetricsConfig enables the Prometheus endpoint; port 0 disables it
type MetricsConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// HeartbeatTimeoutDuration returns the heartbeat timeout as a duration
func (c *Config) HeartbeatTimeoutDuration() time.Duration {
	return time.Duration(c.HeartbeatTimeout) * time.Second
}

// LoadConfigFromFile loads deployment configuration from a YAML file and
// applies defaults
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err).WithContext("filename", filename)
	}

	SetConfigDefaults(&config)
	return &config, nil
}

// SetConfigDefaults fills every unset field with its default
func SetConfigDefaults(config *Config) {
	if config.Host == "" {
		config.Host = address.DefaultHost
	}
	if config.BasePort == 0 {
		config.BasePort = address.DefaultBasePort
	}
	if config.PeersFile == "" {
		config.PeersFile = DefaultPeersFile
	}
	if config.RegistryStartupDelay == 0 {
		config.RegistryStartupDelay = DefaultRegistryStartupDelay
	}
	if config.TerminateGracePeriod == 0 {
		config.TerminateGracePeriod = process.DefaultTerminateGracePeriod
	}
	if config.Build.Command == "" {
		config.Build.Command = build.DefaultCommand
	}
	if config.Launch.BinDir == "" && len(config.Launch.RunPrefix) == 0 {
		config.Launch.RunPrefix = append([]string(nil), process.DefaultRunPrefix...)
	}
	if config.RestartBackoff.Enabled {
		defaults := supervisor.DefaultBackoffConfig()
		if config.RestartBackoff.InitialInterval == 0 {
			config.RestartBackoff.InitialInterval = defaults.InitialInterval
		}
		if config.RestartBackoff.MaxInterval == 0 {
			config.RestartBackoff.MaxInterval = defaults.MaxInterval
		}
		if config.RestartBackoff.Multiplier == 0 {
			config.RestartBackoff.Multiplier = defaults.Multiplier
		}
	}
	if config.Metrics.Host == "" {
		config.Metrics.Host = "127.0.0.1"
	}
}

// ValidateConfig validates the whole deployment configuration
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if config.NumAgents < 0 {
		return errors.NewValidationError("num_agents cannot be negative", nil).WithContext("num_agents", config.NumAgents)
	}
	if config.HeartbeatTimeout <= 0 {
		return errors.NewValidationError("heartbeat_timeout must be a positive number of seconds", nil).
			WithContext("heartbeat_timeout", config.HeartbeatTimeout)
	}
	if config.Host == "" {
		return errors.NewValidationError("host cannot be empty", nil)
	}
	if err := ValidatePort(config.BasePort); err != nil {
		return errors.NewValidationError("invalid base_port", err)
	}
	// registry + agents + pfd must fit below the port ceiling
	if last := config.BasePort + config.NumAgents + 1; last > 65535 {
		return errors.NewValidationError("not enough ports above base_port for all services", nil).
			WithContext("base_port", config.BasePort).WithContext("num_agents", config.NumAgents)
	}
	if config.PeersFile == "" {
		return errors.NewValidationError("peers_file cannot be empty", nil)
	}
	if config.RegistryStartupDelay < 0 {
		return errors.NewValidationError("registry_startup_delay cannot be negative", nil)
	}
	if config.TerminateGracePeriod < 0 {
		return errors.NewValidationError("terminate_grace_period cannot be negative", nil)
	}
	if err := build.ValidateConfig(config.Build); err != nil {
		return errors.NewValidationError("invalid build configuration", err)
	}
	if err := process.ValidateCommandTemplate(config.Launch); err != nil {
		return errors.NewValidationError("invalid launch configuration", err)
	}
	if config.RestartBackoff.Enabled {
		if err := supervisor.ValidateBackoffConfig(config.RestartBackoff); err != nil {
			return errors.NewValidationError("invalid restart_backoff configuration", err)
		}
	}
	if config.Metrics.Port != 0 {
		if err := ValidatePort(config.Metrics.Port); err != nil {
			return errors.NewValidationError("invalid metrics port", err)
		}
	}
	if _, err := logging.ParseLevel(config.Logging.Level); err != nil {
		return errors.NewValidationError("invalid log level", err)
	}

	return nil
}

// ValidatePort validates port number
func ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535", nil).WithContext("port", port)
	}
	return nil
}
