// Command hsu-deploy builds the consensus services, launches the registry,
// the agents and the failure detector, and keeps them running.
//
//	hsu-deploy [options] <num_agents> <heartbeat_timeout>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	flags "github.com/jessevdk/go-flags"

	"github.com/core-tools/hsu-deploy/pkg/build"
	"github.com/core-tools/hsu-deploy/pkg/deploy"
	"github.com/core-tools/hsu-deploy/pkg/logging"
)

type positionalArgs struct {
	NumAgents        int `positional-arg-name:"num_agents" description:"number of agents to launch"`
	HeartbeatTimeout int `positional-arg-name:"heartbeat_timeout" description:"failure detector heartbeat timeout in seconds"`
}

type flagOptions struct {
	Config          string `long:"config" description:"YAML deployment configuration; command line values take precedence"`
	Host            string `long:"host" description:"host part of every service address (default: 0.0.0.0)"`
	BasePort        int    `long:"base-port" description:"first port to allocate (default: 5000)"`
	PeersFile       string `long:"peers-file" description:"registry peers file, removed before the registry starts (default: /tmp/consensus-registry)"`
	BuildCmd        string `long:"build-cmd" description:"build command (default: cargo build --release --bins)"`
	NoBuild         bool   `long:"no-build" description:"skip the build step"`
	RunPrefix       string `long:"run-prefix" description:"command prepended to every service invocation (default: cargo run --release --quiet --bin)"`
	BinDir          string `long:"bin-dir" description:"run service binaries from this directory instead of through the run prefix"`
	SuperviseAgents bool   `long:"supervise-agents" description:"restart crashed agents too"`
	RestartBackoff  bool   `long:"restart-backoff" description:"delay repeated restarts of the same service exponentially"`
	KeepChildren    bool   `long:"keep-children" description:"leave services running when hsu-deploy stops"`
	MetricsPort     int    `long:"metrics-port" description:"serve Prometheus metrics on this port"`
	LogLevel        string `long:"log-level" description:"debug, info, warn or error"`

	Args positionalArgs `positional-args:"yes" required:"yes"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

// parseArgs turns the command line into a deployment configuration with
// defaults applied. Nothing is launched here.
func parseArgs(argv []string) (*deploy.Config, error) {
	var opts flagOptions
	parser := flags.NewParser(&opts, flags.HelpFlag)
	parser.Usage = "[OPTIONS] num_agents heartbeat_timeout"
	if _, err := parser.ParseArgs(argv); err != nil {
		return nil, err
	}

	config := &deploy.Config{}
	if opts.Config != "" {
		loaded, err := deploy.LoadConfigFromFile(opts.Config)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	config.NumAgents = opts.Args.NumAgents
	config.HeartbeatTimeout = opts.Args.HeartbeatTimeout

	if opts.Host != "" {
		config.Host = opts.Host
	}
	if opts.BasePort != 0 {
		config.BasePort = opts.BasePort
	}
	if opts.PeersFile != "" {
		config.PeersFile = opts.PeersFile
	}
	if opts.BuildCmd != "" {
		config.Build.Command = opts.BuildCmd
	}
	if opts.NoBuild {
		config.Build.Skip = true
	}
	if opts.RunPrefix != "" {
		prefix, err := build.ParseCommand(opts.RunPrefix)
		if err != nil {
			return nil, err
		}
		config.Launch.RunPrefix = prefix
		if opts.BinDir == "" {
			config.Launch.BinDir = ""
		}
	}
	if opts.BinDir != "" {
		config.Launch.BinDir = opts.BinDir
		if opts.RunPrefix == "" {
			config.Launch.RunPrefix = nil
		}
	}
	if opts.SuperviseAgents {
		config.SuperviseAgents = true
	}
	if opts.RestartBackoff {
		config.RestartBackoff.Enabled = true
	}
	if opts.KeepChildren {
		config.KeepChildren = true
	}
	if opts.MetricsPort != 0 {
		config.Metrics.Port = opts.MetricsPort
	}
	if opts.LogLevel != "" {
		config.Logging.Level = opts.LogLevel
	}

	deploy.SetConfigDefaults(config)
	return config, nil
}

func run() int {
	config, err := parseArgs(os.Args[1:])
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(flagsErr.Message)
			return 0
		}
		fmt.Fprintf(os.Stderr, "Command line flags parsing failed: %v\n", err)
		return 1
	}

	zapLogger, err := logging.NewZapLogger(config.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer zapLogger.Sync()

	logger := logging.WithPrefix(zapLogger, logPrefix("hsu-deploy"))

	deployment, err := deploy.NewDeployment(*config, deploy.Options{}, logger)
	if err != nil {
		logger.Errorf("Invalid deployment configuration: %v", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig, os.Interrupt)
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}
	defer signal.Stop(sig)

	go func() {
		select {
		case receivedSignal := <-sig:
			logger.Infof("Received signal: %v, stopping deployment", receivedSignal)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := deployment.Run(ctx); err != nil {
		logger.Errorf("Deployment failed: %v", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
