package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/SevenOfNine-ai/redditgw/internal/audit"
	"github.com/SevenOfNine-ai/redditgw/internal/bridge"
	"github.com/SevenOfNine-ai/redditgw/internal/config"
	"github.com/SevenOfNine-ai/redditgw/internal/gateway"
	"github.com/SevenOfNine-ai/redditgw/internal/observability"
)

// gatewayRuntime is everything a command needs to run tool calls.
type gatewayRuntime struct {
	cfg    *config.Config
	launch bridge.LaunchSpec
	gw     *gateway.Gateway
	ledger *audit.Store
}

// launchResolver looks for the upstream server above the working directory and
// the executable's directory, and for node on env's PATH.
func launchResolver(env map[string]string) bridge.Resolver {
	paths := bridge.SearchPaths{PATH: env["PATH"]}
	if wd, err := os.Getwd(); err == nil {
		paths.WorkDir = wd
	}
	if exe, err := os.Executable(); err == nil {
		paths.ExecDir = filepath.Dir(exe)
	}
	return bridge.DefaultResolver(paths)
}

// openRuntime resolves credentials and the launch command from the process
// environment and wires the bridge, the audit ledger and the gateway. The
// bridge connects lazily on the first call.
func openRuntime(ctx context.Context, cfg *config.Config, logger observability.Logger) (*gatewayRuntime, error) {
	env := config.Environ()
	creds := config.ResolveRedditEnv(cfg, env)

	launch, err := bridge.BuildLaunchSpec(cfg, creds, env, launchResolver(env))
	if err != nil {
		return nil, fmt.Errorf("resolve MCP server: %w", err)
	}
	logger.Debug("Resolved MCP server launch",
		zap.String("command", launch.Command),
		zap.Strings("args", launch.Args),
		zap.Strings("env_keys", launch.EnvKeys()))

	rt := &gatewayRuntime{cfg: cfg, launch: launch}
	deps := gateway.Deps{
		Bridge: bridge.New(launch, bridge.Options{StartupTimeout: cfg.StartupTimeout, Logger: logger}),
		Logger: logger,
	}

	if cfg.Audit.Enabled {
		ledger, err := audit.Open(ctx, cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("open audit ledger: %w", err)
		}
		rt.ledger = ledger
		deps.Recorder = ledger
	}

	rt.gw = gateway.New(cfg, creds, deps)
	return rt, nil
}

// Close stops the child process and closes the ledger.
func (rt *gatewayRuntime) Close() error {
	var errs []error
	if err := rt.gw.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bridge: %w", err))
	}
	if rt.ledger != nil {
		if err := rt.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit ledger: %w", err))
		}
	}
	return errors.Join(errs...)
}
