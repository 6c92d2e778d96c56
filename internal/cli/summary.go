package cli

import (
	"fmt"
	"strings"

	"github.com/trdens-dev/trdens/internal/basis"
	"github.com/trdens-dev/trdens/internal/fileutil"
)

type RunSummary struct {
	Mode        string         `json:"mode"`
	RunID       string         `json:"run_id"`
	Config      string         `json:"config"`
	Operator    string         `json:"operator"`
	Format      string         `json:"format"`
	JumpMode    string         `json:"jump_mode"`
	Workers     int            `json:"workers"`
	Transitions int            `json:"transitions"`
	Units       int            `json:"units"`
	Records     int            `json:"records"`
	Hits        int            `json:"hits"`
	Traces      map[string]int `json:"traces,omitempty"`
	JumpBytes   int            `json:"jump_bytes"`
	Outputs     []string       `json:"outputs,omitempty"`
	Manifest    string         `json:"manifest,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
}

type TransitionCheck struct {
	Initial int     `json:"initial"`
	Final   int     `json:"final"`
	Factor  float64 `json:"factor,omitempty"`
	Error   string  `json:"error,omitempty"`
}

type CheckSummary struct {
	Mode        string            `json:"mode"`
	Config      string            `json:"config"`
	Operator    string            `json:"operator"`
	Healthy     bool              `json:"healthy"`
	SameBasis   bool              `json:"same_basis"`
	Transitions []TransitionCheck `json:"transitions"`
	Stale       []string          `json:"stale,omitempty"`
	Problems    []string          `json:"problems,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
}

type InspectSummary struct {
	Mode        string             `json:"mode"`
	Base        string             `json:"base"`
	Z           int                `json:"z"`
	N           int                `json:"n"`
	TwoM        int                `json:"2m"`
	Parity      int                `json:"parity"`
	WMax        int                `json:"w_max"`
	Orbits      []basis.Orbit      `json:"orbits"`
	Shells      int                `json:"shells"`
	Rows        int                `json:"rows"`
	Protons     int                `json:"proton_determinants"`
	Neutrons    int                `json:"neutron_determinants"`
	Eigenstates []basis.Eigenstate `json:"eigenstates"`
}

func PrintRunSummary(summary RunSummary, asJSON bool) error {
	if asJSON {
		return fileutil.PrintJSON(summary)
	}

	fmt.Printf("run complete in %dms (run %s)\n", summary.DurationMS, summary.RunID)
	fmt.Printf("operator: %s format=%s jumps=%s workers=%d\n", summary.Operator, summary.Format, summary.JumpMode, summary.Workers)
	fmt.Printf("work: transitions=%d units=%d records=%d hits=%d jump_bytes=%d\n",
		summary.Transitions,
		summary.Units,
		summary.Records,
		summary.Hits,
		summary.JumpBytes,
	)
	if len(summary.Outputs) > 0 {
		fmt.Printf("outputs (%d): %s\n", len(summary.Outputs), SummarizePaths(summary.Outputs, 8))
	}
	if summary.Manifest != "" {
		fmt.Printf("manifest: %s\n", summary.Manifest)
	}
	return nil
}

func PrintCheckSummary(summary CheckSummary, asJSON bool) error {
	if asJSON {
		return fileutil.PrintJSON(summary)
	}

	status := "issues"
	if summary.Healthy {
		status = "ok"
	}
	fmt.Printf("check: %s\n", status)
	fmt.Printf("operator: %s same_basis=%t\n", summary.Operator, summary.SameBasis)
	for _, t := range summary.Transitions {
		if t.Error != "" {
			fmt.Printf("  %d -> %d: %s\n", t.Initial, t.Final, t.Error)
			continue
		}
		fmt.Printf("  %d -> %d: factor=%g\n", t.Initial, t.Final, t.Factor)
	}
	if len(summary.Stale) > 0 {
		fmt.Printf("stale outputs (%d): %s\n", len(summary.Stale), SummarizePaths(summary.Stale, 8))
	}
	if len(summary.Problems) > 0 {
		fmt.Printf("problems (%d): %s\n", len(summary.Problems), strings.Join(summary.Problems, "; "))
	}
	for _, suggestion := range summary.Suggestions {
		fmt.Printf("next: %s\n", suggestion)
	}
	return nil
}

func PrintInspectSummary(summary InspectSummary, asJSON bool) error {
	if asJSON {
		return fileutil.PrintJSON(summary)
	}

	fmt.Printf("%s: Z=%d N=%d 2M=%d parity=%s w_max=%d\n", summary.Base, summary.Z, summary.N, summary.TwoM, parityName(summary.Parity), summary.WMax)
	fmt.Printf("basis: rows=%d proton_determinants=%d neutron_determinants=%d shells=%d\n", summary.Rows, summary.Protons, summary.Neutrons, summary.Shells)
	fmt.Printf("orbits (%d):\n", len(summary.Orbits))
	for i, o := range summary.Orbits {
		fmt.Printf("  %2d n=%d l=%d j=%d/2 w=%d\n", i, o.N, o.L, o.TwoJ, o.W)
	}
	fmt.Printf("eigenstates (%d):\n", len(summary.Eigenstates))
	for i, s := range summary.Eigenstates {
		fmt.Printf("  %2d E=%.5f J=%s T=%s\n", i, s.Energy, halfInteger(s.TwoJ), halfInteger(s.TwoT))
	}
	return nil
}

func SummarizePaths(paths []string, max int) string {
	if len(paths) <= max {
		return strings.Join(paths, ", ")
	}
	return fmt.Sprintf("%s ... (+%d more)", strings.Join(paths[:max], ", "), len(paths)-max)
}

func halfInteger(twice int) string {
	if twice%2 == 0 {
		return fmt.Sprintf("%d", twice/2)
	}
	return fmt.Sprintf("%d/2", twice)
}

func parityName(p int) string {
	switch p {
	case 1:
		return "+"
	case -1:
		return "-"
	default:
		return "mixed"
	}
}
