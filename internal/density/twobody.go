package density

import (
	"math"

	"github.com/trdens-dev/trdens/internal/angular"
)

// twoBodyCutoff suppresses two-body records below this magnitude.
const twoBodyCutoff = 1e-16

// coupling enumerates the doubled pair couplings |ja-jb|..ja+jb.
type coupling struct {
	lo, n int
}

func couple(ja, jb int) coupling {
	lo := ja - jb
	if lo < 0 {
		lo = -lo
	}
	return coupling{lo: lo, n: (ja+jb-lo)/2 + 1}
}

func (c coupling) at(i int) int { return c.lo + 2*i }
func (c coupling) hi() int      { return c.at(c.n - 1) }

// twoBody evaluates the coupled elements of a†(o1) a†(o2) a(o4) a(o3) for
// o1 >= o2 and o3 >= o4, then emits the orbit permutations the exchange
// symmetry implies.
func (r *runner) twoBody(u [4]int, w *worker) unitOutput {
	var out unitOutput
	o1, o2, o3, o4 := u[0], u[1], u[2], u[3]
	oper := r.plan.Request.Operator
	jop, top, mtop := 2*oper.J, 2*oper.T, r.plan.TwoMT
	j1, j2, j3, j4 := r.orbits[o1].TwoJ, r.orbits[o2].TwoJ, r.orbits[o3].TwoJ, r.orbits[o4].TwoJ

	parity := r.orbits[o1].Parity() * r.orbits[o2].Parity() * r.orbits[o3].Parity() * r.orbits[o4].Parity()
	if !r.parityAllowed(parity) {
		return out
	}
	c12, c34 := couple(j1, j2), couple(j3, j4)
	if jop > c12.hi()+c34.hi() || jop < c12.lo-c34.hi() || jop < c34.lo-c12.hi() {
		return out
	}

	// The guarded m-loop plus exchange weights sums every ordering once, so
	// only the normalized pair states contribute 1/sqrt2 per same-orbit pair.
	same12, same34 := o1 == o2, o3 == o4
	norm := 1.0
	if same12 {
		norm /= math.Sqrt2
	}
	if same34 {
		norm /= math.Sqrt2
	}

	nt, nb := len(r.plan.Factors), r.bins.Count
	idx := func(t, bin, it12, it34, i12, i34 int) int {
		return ((((t*nb+bin)*2+it12)*2+it34)*c12.n+i12)*c34.n + i34
	}
	store := w.scratch(nt * nb * 4 * c12.n * c34.n)
	touched := false

	for _, a := range r.states[o1] {
		for _, b := range r.states[o2] {
			if a == b || (same12 && a.species == b.species && a.shell < b.shell) {
				continue
			}
			m12, mt12 := a.twoJz+b.twoJz, a.twoTz()+b.twoTz()
			for _, c := range r.states[o3] {
				for _, d := range r.states[o4] {
					if c == d || (same34 && c.species == d.species && c.shell < d.shell) {
						continue
					}
					m34, mt34 := c.twoJz+d.twoJz, c.twoTz()+d.twoTz()
					if m12 != m34 || mt12-mt34 != mtop {
						continue
					}

					p, n, sign := factorize([]op{{a, true}, {b, true}, {d, false}, {c, false}}, r.protons)
					hits := w.acc.Hits()
					w.acc.Reset()
					r.engine.Trace(p, n, w.acc)
					if w.acc.Hits() == hits {
						continue
					}
					touched = true
					exchange12 := same12 && a.species == b.species
					exchange34 := same34 && c.species == d.species

					for it12 := 0; it12 < 2; it12++ {
						t12 := 2 * it12
						cgt12 := angular.CG(1, 1, t12, a.twoTz(), b.twoTz(), mt12)
						if cgt12 == 0 {
							continue
						}
						for it34 := 0; it34 < 2; it34++ {
							t34 := 2 * it34
							cgt34 := angular.CG(1, 1, t34, c.twoTz(), d.twoTz(), mt34)
							if cgt34 == 0 {
								continue
							}
							cgtop := angular.CG(top, t34, t12, mtop, mt34, mt12)
							if cgtop == 0 {
								continue
							}
							for i12 := 0; i12 < c12.n; i12++ {
								jj12 := c12.at(i12)
								cgj12 := angular.CG(j1, j2, jj12, a.twoJz, b.twoJz, m12)
								if cgj12 == 0 {
									continue
								}
								for i34 := 0; i34 < c34.n; i34++ {
									jj34 := c34.at(i34)
									cgj34 := angular.CG(j3, j4, jj34, c.twoJz, d.twoJz, m34)
									if cgj34 == 0 {
										continue
									}
									cgjop := angular.CG(jop, jj34, jj12, 0, m34, m12)
									if cgjop == 0 {
										continue
									}
									d2 := norm * angular.Sign(jj12-jj34+t12-t34) /
										math.Sqrt(float64((jj12+1)*(t12+1))) *
										cgj12 * cgt12 * cgj34 * cgt34 * cgjop * cgtop
									weight := 1.0
									ph12 := angular.Sign(j1 + j2 - jj12 - t12)
									ph34 := angular.Sign(j3 + j4 - jj34 - t34)
									if exchange12 {
										weight += ph12
									}
									if exchange34 {
										weight += ph34
									}
									if exchange12 && exchange34 {
										weight += ph12 * ph34
									}
									if weight == 0 {
										continue
									}
									for t, f := range r.plan.Factors {
										for bin := 0; bin < nb; bin++ {
											store[idx(t, bin, it12, it34, i12, i34)] += sign * d2 * weight * w.acc.Value(t, bin) / f
										}
									}
								}
							}
						}
					}
				}
			}
		}
	}
	if !touched {
		return out
	}

	for t := 0; t < nt; t++ {
		for it12 := 0; it12 < 2; it12++ {
			for it34 := 0; it34 < 2; it34++ {
				for i12 := 0; i12 < c12.n; i12++ {
					for i34 := 0; i34 < c34.n; i34++ {
						for bin := 0; bin < nb; bin++ {
							v := store[idx(t, bin, it12, it34, i12, i34)]
							if math.Abs(v) < twoBodyCutoff {
								continue
							}
							rec := TwoBodyRecord{
								Orbits: [4]int{o1, o2, o3, o4},
								TwoJ12: c12.at(i12),
								TwoT12: 2 * it12,
								TwoJ34: c34.at(i34),
								TwoT34: 2 * it34,
								Bin:    r.bins.Min + bin,
								Value:  v,
							}
							out.two = append(out.two, r.permutations(t, rec)...)
						}
					}
				}
			}
		}
	}
	return out
}

// permutations returns rec and its exchanged orbit orderings. Swapping a
// distinct pair (ab) -> (ba) costs (-1)^(ja+jb-J-T).
func (r *runner) permutations(t int, rec TwoBodyRecord) []taggedTwo {
	o := rec.Orbits
	list := []taggedTwo{{t: t, r: rec}}
	ph12 := angular.Sign(r.orbits[o[0]].TwoJ + r.orbits[o[1]].TwoJ - rec.TwoJ12 - rec.TwoT12)
	ph34 := angular.Sign(r.orbits[o[2]].TwoJ + r.orbits[o[3]].TwoJ - rec.TwoJ34 - rec.TwoT34)
	swap12, swap34 := o[0] != o[1], o[2] != o[3]
	add := func(orbits [4]int, phase float64) {
		p := rec
		p.Orbits = orbits
		p.Value = phase * rec.Value
		list = append(list, taggedTwo{t: t, r: p})
	}
	if swap12 {
		add([4]int{o[1], o[0], o[2], o[3]}, ph12)
	}
	if swap34 {
		add([4]int{o[0], o[1], o[3], o[2]}, ph34)
	}
	if swap12 && swap34 {
		add([4]int{o[1], o[0], o[3], o[2]}, ph12*ph34)
	}
	return list
}
