package density

import (
	"math"

	"github.com/trdens-dev/trdens/internal/angular"
)

// oneBodyCutoff suppresses one-body records at or below this magnitude.
const oneBodyCutoff = 1e-12

// oneBody evaluates <f||[a†(o1) ã(o2)]^{J,T}||i> for every transition and
// spectator bin. The time-reversed annihilator carries the
// (-1)^(j2-m2 + 1/2-t2) phase.
func (r *runner) oneBody(o1, o2 int, w *worker) unitOutput {
	var out unitOutput
	oper := r.plan.Request.Operator
	jop, top, mtop := 2*oper.J, 2*oper.T, r.plan.TwoMT
	j1, j2 := r.orbits[o1].TwoJ, r.orbits[o2].TwoJ
	if !angular.Triangle(j1, j2, jop) || !angular.Triangle(1, 1, top) {
		return out
	}
	if !r.parityAllowed(r.orbits[o1].Parity() * r.orbits[o2].Parity()) {
		return out
	}

	nt, nb := len(r.plan.Factors), r.bins.Count
	vals := w.scratch(nt * nb)
	for _, a := range r.states[o1] {
		for _, b := range r.states[o2] {
			if a.twoJz != b.twoJz || a.twoTz()-b.twoTz() != mtop {
				continue
			}
			d2 := angular.CG(j1, j2, jop, a.twoJz, -b.twoJz, 0) *
				angular.CG(1, 1, top, a.twoTz(), -b.twoTz(), mtop) *
				angular.Sign(j2-b.twoJz+1-b.twoTz())
			if d2 == 0 {
				continue
			}
			p, n, sign := factorize([]op{{a, true}, {b, false}}, r.protons)
			hits := w.acc.Hits()
			w.acc.Reset()
			r.engine.Trace(p, n, w.acc)
			if w.acc.Hits() == hits {
				continue
			}
			for t, f := range r.plan.Factors {
				for bin := 0; bin < nb; bin++ {
					vals[t*nb+bin] += sign * d2 * w.acc.Value(t, bin) / f
				}
			}
		}
	}

	for t := range r.plan.Factors {
		for bin := 0; bin < nb; bin++ {
			v := vals[t*nb+bin]
			if math.Abs(v) <= oneBodyCutoff {
				continue
			}
			out.one = append(out.one, taggedOne{t: t, r: OneBodyRecord{
				Orbits: [2]int{o1, o2},
				Bin:    r.bins.Min + bin,
				Value:  v,
			}})
		}
	}
	return out
}

// scratch returns a zeroed slice of length n backed by the worker's store.
func (w *worker) scratch(n int) []float64 {
	if cap(w.store) < n {
		w.store = make([]float64, n)
	}
	s := w.store[:n]
	for i := range s {
		s[i] = 0
	}
	return s
}
