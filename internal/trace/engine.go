// Package trace contracts jump maps of both species into M-scheme transition
// densities <f| O_p O_n |i> for factorized operator strings.
package trace

import (
	"fmt"

	"github.com/trdens-dev/trdens/internal/basis"
	"github.com/trdens-dev/trdens/internal/jumps"
)

// Transition selects an initial and a final eigenstate, 0-based.
type Transition struct {
	Initial int
	Final   int
}

// Bins describes spectator-quanta binning. Count 1 disables it.
type Bins struct {
	Min   int
	Count int
}

type Config struct {
	Maps         *jumps.Set
	Initial      *basis.Side
	Final        *basis.Side
	InitialIndex *basis.Index
	FinalIndex   *basis.Index
	Transitions  []Transition
	Bins         Bins
}

// Engine is read-only after construction and safe for concurrent use with
// one Accumulator per goroutine.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Maps == nil || cfg.Initial == nil || cfg.Final == nil || cfg.InitialIndex == nil || cfg.FinalIndex == nil {
		return nil, fmt.Errorf("trace engine needs maps, both sides and both indexes")
	}
	if cfg.Bins.Count < 1 {
		cfg.Bins = Bins{Count: 1}
	}
	for i, t := range cfg.Transitions {
		if t.Initial < 0 || t.Initial >= len(cfg.Initial.States) || t.Final < 0 || t.Final >= len(cfg.Final.States) {
			return nil, fmt.Errorf("transition %d (%d -> %d) outside eigenstate range", i, t.Initial, t.Final)
		}
	}
	return &Engine{cfg: cfg}, nil
}

func (e *Engine) Transitions() int { return len(e.cfg.Transitions) }
func (e *Engine) Bins() Bins       { return e.cfg.Bins }

// NewAccumulator returns an accumulator shaped for this engine.
func (e *Engine) NewAccumulator() *Accumulator {
	return newAccumulator(len(e.cfg.Transitions), e.cfg.Bins.Count)
}

// entry is one species' contribution: its initial and final determinant and
// the sign of the species string between them.
type entry struct {
	initial uint32
	final   uint32
	phase   int8
	quanta  int16
}

// Trace accumulates <f| O_p O_n |i> for every transition, where O_p and O_n
// are the proton and neutron legs. Strings that cannot connect the particle
// counts of the two sides contribute nothing.
func (e *Engine) Trace(p, n Leg, acc *Accumulator) {
	if !e.connects(basis.Proton, p) || !e.connects(basis.Neutron, n) {
		return
	}
	acc.calls[Classify(p, n)]++

	pm := e.cfg.Maps.Of(basis.Proton)
	nm := e.cfg.Maps.Of(basis.Neutron)
	for s := 0; s < pm.Sectors.Len(); s++ {
		acc.pbuf = resolve(pm, p, s, acc.pbuf[:0])
		if len(acc.pbuf) == 0 {
			continue
		}
		for _, ns := range pm.Sectors.Partners(s, nm.Sectors) {
			acc.nbuf = resolve(nm, n, ns, acc.nbuf[:0])
			if len(acc.nbuf) == 0 {
				continue
			}
			e.contract(acc)
		}
	}
}

func (e *Engine) connects(sp basis.Species, leg Leg) bool {
	gain := len(leg.Create) - len(leg.Annihilate)
	return e.cfg.Initial.Particles(sp)+gain == e.cfg.Final.Particles(sp)
}

func (e *Engine) contract(acc *Accumulator) {
	cfg := &e.cfg
	for _, pe := range acc.pbuf {
		for _, ne := range acc.nbuf {
			rowI, ok := cfg.InitialIndex.Lookup(pe.initial, ne.initial)
			if !ok {
				continue
			}
			rowF, ok := cfg.FinalIndex.Lookup(pe.final, ne.final)
			if !ok {
				continue
			}
			bin := 0
			if cfg.Bins.Count > 1 {
				bin = int(pe.quanta) + int(ne.quanta) - cfg.Bins.Min
				if bin < 0 || bin >= cfg.Bins.Count {
					continue
				}
			}
			phase := float64(int(pe.phase) * int(ne.phase))
			acc.hits++
			for t, tr := range cfg.Transitions {
				acc.values[t*acc.bins+bin] += phase * cfg.Initial.Amplitude(rowI, tr.Initial) * cfg.Final.Amplitude(rowF, tr.Final)
			}
		}
	}
}

// resolve lists the (initial, final) determinant pairs of one species in a
// sector of the initial-side partition connected by leg.
func resolve(m *jumps.Maps, leg Leg, sector int, buf []entry) []entry {
	kc, ka := len(leg.Create), len(leg.Annihilate)
	switch {
	case ka == 0 && kc == 0:
		for _, j := range m.Zero.Bucket(sector, 0) {
			buf = append(buf, entry{initial: j.Origin, final: j.Origin, phase: 1, quanta: j.Quanta})
		}
	case ka == 0:
		// The species only gains particles: walk final determinants whose
		// annihilation lands in this initial-side sector.
		table, key := m.Fwd1, 0
		if kc == 1 {
			key = leg.Create[0]
		} else {
			table, key = m.Fwd2, m.PairKey(leg.Create[0], leg.Create[1])
		}
		for _, j := range table.Bucket(sector, key) {
			buf = append(buf, entry{initial: j.Dest, final: j.Origin, phase: j.Phase, quanta: j.Quanta})
		}
	default:
		// Operators apply right to left, so the last annihilator acts first.
		table, key := m.One, leg.Annihilate[0]
		if ka == 2 {
			table, key = m.Two, m.PairKey(leg.Annihilate[1], leg.Annihilate[0])
		}
		for _, j := range table.Bucket(sector, key) {
			final, phase := j.Dest, 1
			switch kc {
			case 1:
				final, phase = m.Rev1.Lookup(j.Dest, leg.Create[0])
			case 2:
				final, phase = m.Rev2.Lookup(j.Dest, m.PairKey(leg.Create[0], leg.Create[1]))
			}
			if phase == 0 {
				continue
			}
			buf = append(buf, entry{initial: j.Origin, final: final, phase: j.Phase * int8(phase), quanta: j.Quanta})
		}
	}
	return buf
}
