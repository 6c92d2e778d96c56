package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trdens-dev/trdens/internal/density"
	"github.com/trdens-dev/trdens/internal/manifest"
	"github.com/trdens-dev/trdens/internal/output"
	"github.com/trdens-dev/trdens/internal/wfn"
)

func RunDensities(cmd *cobra.Command, args []string) error {
	start := time.Now()
	logger := loggerFrom(cmd)
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return err
	}
	quiet, err := OptionalBoolFlag(cmd, "quiet")
	if err != nil {
		return err
	}
	forceSplit, err := OptionalBoolFlag(cmd, "force-split")
	if err != nil {
		return err
	}
	noManifest, err := OptionalBoolFlag(cmd, "no-manifest")
	if err != nil {
		return err
	}

	configPath, cfg, err := loadRunConfig(cmd, args)
	if err != nil {
		return err
	}
	d, err := wfn.LoadDataset(cfg.InitialBase(), cfg.FinalBase())
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	initial, final := d.Sides()
	protons, neutrons := determinants(initial.Rows)
	logger.Info("loaded dataset",
		zap.String("initial", cfg.InitialBase()),
		zap.String("final", cfg.FinalBase()),
		zap.Bool("same_basis", d.SameBasis),
		zap.Int("initial_states", len(initial.States)),
		zap.Int("final_states", len(final.States)),
		zap.Int("initial_rows", len(initial.Rows)),
		zap.Int("proton_determinants", protons),
		zap.Int("neutron_determinants", neutrons),
	)

	progress := newUnitProgressReporter("density", asJSON || quiet)
	req := requestFor(cfg, logger)
	req.ForceSplit = forceSplit
	req.Progress = progress.Update
	plan, err := density.Prepare(d, req)
	if err != nil {
		return err
	}
	for i, t := range req.Transitions {
		logger.Debug("reduction factor", zap.Int("initial", t.Initial), zap.Int("final", t.Final), zap.Float64("factor", plan.Factors[i]))
	}

	m := manifest.New(req.Operator, cfg.Format)
	m.Spectator, m.Truncate = cfg.Spectator, cfg.Truncate
	if !noManifest {
		if err := m.RecordInputs(inputPaths(configPath, cfg)); err != nil {
			return fmt.Errorf("failed to hash inputs: %w", err)
		}
	}

	w, err := output.New(output.Options{
		Base:      cfg.OutputBase(),
		Format:    cfg.Format,
		Operator:  req.Operator,
		Orbits:    d.Orbits,
		Spectator: cfg.Spectator,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	res, err := plan.Execute(commandContext(cmd), w)
	if err != nil {
		return err
	}
	progress.Done(res.Units)

	summary := RunSummary{
		Mode:        "run",
		RunID:       m.RunID,
		Config:      configPath,
		Operator:    req.Operator.String(),
		Format:      cfg.Format,
		JumpMode:    res.Mode,
		Workers:     cfg.Workers,
		Transitions: len(req.Transitions),
		Units:       res.Units,
		Hits:        res.Hits,
		Traces:      res.Traces,
		JumpBytes:   res.JumpBytes,
		Outputs:     w.Paths(),
	}
	for _, n := range res.Records {
		summary.Records += n
	}

	if !noManifest {
		if err := m.RecordOutputs(w.Paths()); err != nil {
			return fmt.Errorf("failed to hash outputs: %w", err)
		}
		m.Result = res
		summary.Manifest = manifest.Path(cfg.OutputBase())
		if err := m.Save(summary.Manifest); err != nil {
			return fmt.Errorf("failed to write manifest: %w", err)
		}
	}

	summary.DurationMS = time.Since(start).Milliseconds()
	return PrintRunSummary(summary, asJSON)
}
