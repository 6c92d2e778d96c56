package trace

import "fmt"

// Leg is the operator string acting on one species, written left to right:
// a†(Create[0]) a†(Create[1]) a(Annihilate[0]) a(Annihilate[1]). Orbitals are
// shell indices within the species.
type Leg struct {
	Create     []int
	Annihilate []int
}

func (l Leg) ops() int { return len(l.Create) + len(l.Annihilate) }

// Topology names how the operator legs split between the species.
type Topology int

const (
	// OneBodySame is a†a on one species.
	OneBodySame Topology = iota
	// OneBodyCross is a† on one species and a on the other.
	OneBodyCross
	// A4 is a†a†aa on one species.
	A4
	// A22 is a†a† on one species and aa on the other.
	A22
	// A20 is a†a on each species.
	A20
	// A31 is three operators on one species and one on the other.
	A31
	topologyCount
)

var topologyNames = [...]string{"one-body", "one-body-cross", "a4", "a22", "a20", "a31"}

func (t Topology) String() string {
	if t < 0 || t >= topologyCount {
		return fmt.Sprintf("topology(%d)", int(t))
	}
	return topologyNames[t]
}

// Topologies lists every topology in declaration order.
func Topologies() []Topology {
	out := make([]Topology, topologyCount)
	for i := range out {
		out[i] = Topology(i)
	}
	return out
}

// Classify returns the topology of a proton and neutron leg pair.
func Classify(p, n Leg) Topology {
	total := p.ops() + n.ops()
	if total == 2 {
		if p.ops() == 0 || n.ops() == 0 {
			return OneBodySame
		}
		return OneBodyCross
	}
	switch {
	case p.ops() == 4 || n.ops() == 4:
		return A4
	case p.ops() == 2 && len(p.Create) == 1:
		return A20
	case p.ops() == 2:
		return A22
	default:
		return A31
	}
}
