// Package basis holds the in-memory shell-model dataset: shell and orbit
// catalogs, the factorized proton x neutron basis of each side, eigenstates
// with their coefficient tables, and the hash index from (proton rank,
// neutron rank) to basis row.
package basis

import "fmt"

type Species int

const (
	Proton Species = iota
	Neutron
)

// AllSpecies lists both species in storage order.
var AllSpecies = [2]Species{Proton, Neutron}

func (s Species) Other() Species {
	if s == Proton {
		return Neutron
	}
	return Proton
}

// TwoTz is twice the isospin projection: +1 for protons, -1 for neutrons.
func (s Species) TwoTz() int {
	if s == Proton {
		return 1
	}
	return -1
}

func (s Species) String() string {
	switch s {
	case Proton:
		return "proton"
	case Neutron:
		return "neutron"
	default:
		return fmt.Sprintf("species(%d)", int(s))
	}
}

// Shell is one single-particle magnetic substate.
type Shell struct {
	N     int `json:"n"`
	L     int `json:"l"`
	TwoJ  int `json:"2j"`
	TwoJz int `json:"2jz"`
	W     int `json:"w"`
}

func (s Shell) Parity() int { return parityOf(s.L) }
func (s Shell) Quanta() int { return 2*s.N + s.L }

// Orbit groups shells sharing (n, l, j).
type Orbit struct {
	N    int `json:"n"`
	L    int `json:"l"`
	TwoJ int `json:"2j"`
	W    int `json:"w"`
}

// Label is the oscillator shell label 2n+l.
func (o Orbit) Label() int  { return 2*o.N + o.L }
func (o Orbit) Parity() int { return parityOf(o.L) }

func (o Orbit) Contains(s Shell) bool {
	return o.N == s.N && o.L == s.L && o.TwoJ == s.TwoJ
}

func parityOf(l int) int {
	if l%2 == 0 {
		return 1
	}
	return -1
}

// Row addresses one basis vector by its species ranks.
type Row struct {
	P uint32
	N uint32
}

// Rank returns the rank of species s in the row.
func (r Row) Rank(s Species) uint32 {
	if s == Proton {
		return r.P
	}
	return r.N
}

// Eigenstate carries the labels of one eigenvector. J and T are stored doubled.
type Eigenstate struct {
	Energy float64 `json:"energy"`
	TwoJ   int     `json:"2J"`
	TwoT   int     `json:"2T"`
}

// Side is one nucleus (initial or final) with its basis and eigenvectors.
type Side struct {
	// Z and N are the valence proton and neutron counts.
	Z int
	N int
	// TwoM is twice the total angular-momentum projection of every basis row.
	TwoM int
	// Parity is +1, -1, or 0 for a basis that mixes both parities.
	Parity int
	// WMax is the largest excitation weight admitted in the basis.
	WMax   int
	Rows   []Row
	States []Eigenstate
	// Coeffs is row-major: Coeffs[row*len(States)+eig].
	Coeffs []float32
}

// Particles returns the particle count of species s.
func (s *Side) Particles(sp Species) int {
	if sp == Proton {
		return s.Z
	}
	return s.N
}

// TwoTz is twice the isospin projection (Z-N).
func (s *Side) TwoTz() int { return s.Z - s.N }

// Amplitude returns coefficient eig of basis row. Rows are 0-based.
func (s *Side) Amplitude(row uint32, eig int) float64 {
	return float64(s.Coeffs[int(row)*len(s.States)+eig])
}

// Dataset is a complete density-run input.
type Dataset struct {
	Shells  []Shell
	Orbits  []Orbit
	Initial *Side
	Final   *Side
	// SameBasis marks Final as an alias for Initial.
	SameBasis bool
}
