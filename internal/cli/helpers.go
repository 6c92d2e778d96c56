package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trdens-dev/trdens/internal/config"
	"github.com/trdens-dev/trdens/internal/density"
	"github.com/trdens-dev/trdens/internal/trace"
	"github.com/trdens-dev/trdens/internal/wfn"
)

// DefaultConfigNames are tried in the working directory when no config
// argument is given.
var DefaultConfigNames = []string{"trdens.yaml", "trdens.yml", "params.dat"}

func resolveWorkingDirectory() (string, error) {
	rootPath, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}
	return rootPath, nil
}

func resolveConfigPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	rootPath, err := resolveWorkingDirectory()
	if err != nil {
		return "", err
	}
	for _, name := range DefaultConfigNames {
		path := filepath.Join(rootPath, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no config given and none of %v found in %s", DefaultConfigNames, rootPath)
}

// loadRunConfig reads the config named by args and applies flag overrides.
func loadRunConfig(cmd *cobra.Command, args []string) (string, *config.Config, error) {
	path, err := resolveConfigPath(args)
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return "", nil, err
	}
	if err := ApplyFlagOverrides(cmd, cfg); err != nil {
		return "", nil, err
	}
	return path, cfg, nil
}

func requestFor(cfg *config.Config, logger *zap.Logger) density.Request {
	transitions := make([]trace.Transition, len(cfg.Transitions))
	for i, t := range cfg.Transitions {
		transitions[i] = trace.Transition{Initial: t.Initial, Final: t.Final}
	}
	return density.Request{
		Operator:    density.Operator{Body: cfg.Body, J: cfg.JOp, T: cfg.TOp},
		Transitions: transitions,
		Spectator:   cfg.Spectator,
		Truncate:    cfg.Truncate,
		Workers:     cfg.Workers,
		Logger:      logger,
	}
}

// inputPaths lists the config file and every .wfn/.bas it names, once each.
func inputPaths(configPath string, cfg *config.Config) []string {
	paths := []string{configPath}
	seen := map[string]bool{configPath: true}
	for _, base := range []string{cfg.InitialBase(), cfg.FinalBase()} {
		for _, ext := range []string{wfn.WavefunctionExt, wfn.BasisExt} {
			path := base + ext
			if !seen[path] {
				seen[path] = true
				paths = append(paths, path)
			}
		}
	}
	return paths
}
