package density

import (
	"github.com/trdens-dev/trdens/internal/basis"
	"github.com/trdens-dev/trdens/internal/trace"
)

// state is one single-particle state of either species.
type state struct {
	species basis.Species
	shell   int
	twoJz   int
}

func (s state) twoTz() int { return s.species.TwoTz() }

// op is one creation or annihilation operator in a written product.
type op struct {
	state
	create bool
}

// factorize splits a normal-ordered operator product into its proton and
// neutron strings. Basis vectors are P†N†|0>, so the result must be
// multiplied by the returned sign: the permutation sign of moving every
// proton operator left of every neutron operator, times (-1)^(Z*k) for the
// k neutron operators passing the Z initial protons.
func factorize(ops []op, protons int) (trace.Leg, trace.Leg, float64) {
	var p, n trace.Leg
	inversions, neutronOps := 0, 0
	for _, o := range ops {
		leg := &p
		if o.species == basis.Neutron {
			leg = &n
			neutronOps++
		} else {
			inversions += neutronOps
		}
		if o.create {
			leg.Create = append(leg.Create, o.shell)
		} else {
			leg.Annihilate = append(leg.Annihilate, o.shell)
		}
	}
	sign := 1.0
	if (inversions+protons*neutronOps)%2 == 1 {
		sign = -1
	}
	return p, n, sign
}
