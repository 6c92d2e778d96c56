package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trdens-dev/trdens/internal/basis"
	"github.com/trdens-dev/trdens/internal/density"
	"github.com/trdens-dev/trdens/internal/manifest"
	"github.com/trdens-dev/trdens/internal/trace"
	"github.com/trdens-dev/trdens/internal/wfn"
)

// RunCheck performs every fatal check of a run without opening output, and
// reports whether an earlier run's outputs are still current.
func RunCheck(cmd *cobra.Command, args []string) error {
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return err
	}
	configPath, cfg, err := loadRunConfig(cmd, args)
	if err != nil {
		return err
	}
	req := requestFor(cfg, loggerFrom(cmd))
	summary := CheckSummary{
		Mode:     "check",
		Config:   configPath,
		Operator: req.Operator.String(),
	}

	d, err := wfn.LoadDataset(cfg.InitialBase(), cfg.FinalBase())
	if err != nil {
		summary.Problems = append(summary.Problems, err.Error())
		summary.Suggestions = append(summary.Suggestions, "check the initial and final base names")
	} else {
		summary.SameBasis = d.SameBasis
		summary.Transitions, summary.Problems = checkTransitions(d, req)
	}

	rerun := true
	m, err := manifest.Load(manifest.Path(cfg.OutputBase()))
	switch {
	case err == nil:
		summary.Stale = append(m.ChangedInputs(), m.Stale()...)
		rerun = len(summary.Stale) > 0
	case !errors.Is(err, os.ErrNotExist):
		summary.Problems = append(summary.Problems, fmt.Sprintf("unreadable manifest: %v", err))
	}

	summary.Healthy = len(summary.Problems) == 0
	if summary.Healthy && rerun {
		summary.Suggestions = append(summary.Suggestions, "run trdens run "+configPath)
	}
	if err := PrintCheckSummary(summary, asJSON); err != nil {
		return err
	}
	if !summary.Healthy {
		return fmt.Errorf("check found %d problem(s)", len(summary.Problems))
	}
	return nil
}

// checkTransitions prepares the whole request and, when that fails, each
// transition alone so every failing transition is reported.
func checkTransitions(d *basis.Dataset, req density.Request) ([]TransitionCheck, []string) {
	if err := d.Validate(); err != nil {
		return nil, []string{err.Error()}
	}
	checks := make([]TransitionCheck, len(req.Transitions))
	for i, t := range req.Transitions {
		checks[i] = TransitionCheck{Initial: t.Initial, Final: t.Final}
	}
	plan, err := density.Prepare(d, req)
	if err == nil {
		for i := range checks {
			checks[i].Factor = plan.Factors[i]
		}
		return checks, nil
	}

	var problems []string
	for i, t := range req.Transitions {
		single := req
		single.Transitions = []trace.Transition{t}
		p, terr := density.Prepare(d, single)
		if terr != nil {
			checks[i].Error = terr.Error()
			problems = append(problems, fmt.Sprintf("%d -> %d: %v", t.Initial, t.Final, terr))
			continue
		}
		checks[i].Factor = p.Factors[0]
	}
	if len(problems) == 0 {
		problems = append(problems, err.Error())
	}
	return checks, problems
}
