package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trdens-dev/trdens/internal/basis"
	"github.com/trdens-dev/trdens/internal/wfn"
)

func RunInspect(cmd *cobra.Command, args []string) error {
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return err
	}
	base := strings.TrimSuffix(strings.TrimSuffix(args[0], wfn.WavefunctionExt), wfn.BasisExt)
	nuc, err := wfn.Load(base)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", base, err)
	}

	protons, neutrons := determinants(nuc.Rows)
	summary := InspectSummary{
		Mode:        "inspect",
		Base:        base,
		Z:           nuc.Z,
		N:           nuc.N,
		TwoM:        nuc.TwoM,
		Parity:      nuc.Parity,
		WMax:        nuc.WMax,
		Orbits:      nuc.Orbits,
		Shells:      len(nuc.Shells),
		Rows:        len(nuc.Rows),
		Protons:     protons,
		Neutrons:    neutrons,
		Eigenstates: nuc.States,
	}
	return PrintInspectSummary(summary, asJSON)
}

// determinants counts the distinct proton and neutron ranks used by rows.
func determinants(rows []basis.Row) (protons, neutrons int) {
	p := make(map[uint32]struct{})
	n := make(map[uint32]struct{})
	for _, r := range rows {
		p[r.P] = struct{}{}
		n[r.N] = struct{}{}
	}
	return len(p), len(n)
}
