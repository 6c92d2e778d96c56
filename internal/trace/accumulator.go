package trace

import (
	"github.com/trdens-dev/trdens/internal/basis"
	"github.com/trdens-dev/trdens/internal/slater"
)

// Accumulator holds per-transition, per-bin sums for one caller. Values are
// laid out as values[transition*bins+bin].
type Accumulator struct {
	bins   int
	values []float64
	calls  [topologyCount]int
	hits   int
	pbuf   []entry
	nbuf   []entry
}

func newAccumulator(transitions, bins int) *Accumulator {
	return &Accumulator{bins: bins, values: make([]float64, transitions*bins)}
}

// Reset zeroes the sums and keeps the counters.
func (a *Accumulator) Reset() {
	for i := range a.values {
		a.values[i] = 0
	}
}

func (a *Accumulator) Value(transition, bin int) float64 {
	return a.values[transition*a.bins+bin]
}

func (a *Accumulator) Bins() int { return a.bins }

// Calls reports how many traces ran for topology t.
func (a *Accumulator) Calls(t Topology) int { return a.calls[t] }

// Hits reports how many determinant pairs were matched in both indexes.
func (a *Accumulator) Hits() int { return a.hits }

// Merge adds other's counters into a.
func (a *Accumulator) Merge(other *Accumulator) {
	for i := range a.calls {
		a.calls[i] += other.calls[i]
	}
	a.hits += other.hits
}

// SpectatorBins spans every spectator excitation an operator of the given
// body count can leave behind on the initial side.
func SpectatorBins(cat *slater.Catalog, initial *basis.Side, body int) Bins {
	lowP, _ := cat.QuantaRange(max(initial.Z-body, 0))
	lowN, _ := cat.QuantaRange(max(initial.N-body, 0))
	_, highP := cat.QuantaRange(initial.Z)
	_, highN := cat.QuantaRange(initial.N)
	return Bins{Min: lowP + lowN, Count: highP + highN - lowP - lowN + 1}
}
