package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trdens-dev/trdens/internal/config"
)

func OptionalStringFlag(cmd *cobra.Command, name string) (string, error) {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return "", nil
	}
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return strings.TrimSpace(value), nil
}

func OptionalBoolFlag(cmd *cobra.Command, name string) (bool, error) {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return false, nil
	}
	value, err := cmd.Flags().GetBool(name)
	if err != nil {
		return false, fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return value, nil
}

func OptionalIntFlag(cmd *cobra.Command, name string) (int, error) {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return 0, nil
	}
	value, err := cmd.Flags().GetInt(name)
	if err != nil {
		return 0, fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return value, nil
}

func changed(cmd *cobra.Command, name string) bool {
	return cmd != nil && cmd.Flags().Lookup(name) != nil && cmd.Flags().Changed(name)
}

func addOverrideFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", "", "Output format: text|jsonl (overrides config and "+config.EnvFormat+")")
	cmd.Flags().Bool("spectator", false, "Bin densities by spectator oscillator quanta")
	cmd.Flags().Bool("truncate", false, "Drop intermediate determinants above each side's w_max")
}

// ApplyFlagOverrides copies explicitly set flags onto cfg and revalidates.
func ApplyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	if changed(cmd, "format") {
		format, err := OptionalStringFlag(cmd, "format")
		if err != nil {
			return err
		}
		cfg.Format = strings.ToLower(format)
	}
	if changed(cmd, "workers") {
		workers, err := OptionalIntFlag(cmd, "workers")
		if err != nil {
			return err
		}
		cfg.Workers = workers
	}
	for name, dst := range map[string]*bool{"spectator": &cfg.Spectator, "truncate": &cfg.Truncate} {
		if !changed(cmd, name) {
			continue
		}
		value, err := OptionalBoolFlag(cmd, name)
		if err != nil {
			return err
		}
		*dst = value
	}
	return cfg.Validate()
}
