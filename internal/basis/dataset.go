package basis

import (
	"errors"
	"fmt"
	"math"

	"github.com/trdens-dev/trdens/internal/slater"
)

// NormTolerance bounds |sum c^2 - 1| for every eigenvector.
const NormTolerance = 1e-6

var (
	ErrNotNormalized = errors.New("eigenvector not normalized")
	ErrDuplicateKey  = errors.New("duplicate basis key")
	ErrInconsistent  = errors.New("inconsistent dataset")
)

// Catalog returns the per-shell sums used by the indexer.
func (d *Dataset) Catalog() *slater.Catalog {
	c := &slater.Catalog{
		TwoJz:  make([]int, len(d.Shells)),
		Parity: make([]int, len(d.Shells)),
		Quanta: make([]int, len(d.Shells)),
		Weight: make([]int, len(d.Shells)),
	}
	for i, s := range d.Shells {
		c.TwoJz[i] = s.TwoJz
		c.Parity[i] = s.Parity()
		c.Quanta[i] = s.Quanta()
		c.Weight[i] = s.W
	}
	return c
}

// OrbitShells lists, per orbit, the shells it contains in ascending order.
func (d *Dataset) OrbitShells() [][]int {
	out := make([][]int, len(d.Orbits))
	for si, s := range d.Shells {
		for oi, o := range d.Orbits {
			if o.Contains(s) {
				out[oi] = append(out[oi], si)
				break
			}
		}
	}
	return out
}

// Space returns the determinant space of species s on side.
func (d *Dataset) Space(side *Side, s Species) (*slater.Space, error) {
	return slater.NewSpace(len(d.Shells), side.Particles(s))
}

// Sides returns the initial and final side; the final side aliases the
// initial one when SameBasis is set.
func (d *Dataset) Sides() (*Side, *Side) {
	if d.SameBasis {
		return d.Initial, d.Initial
	}
	return d.Initial, d.Final
}

// Validate checks catalogs, ranks, table shapes and eigenvector norms.
func (d *Dataset) Validate() error {
	if len(d.Shells) == 0 || len(d.Shells) > slater.MaxShells {
		return fmt.Errorf("%w: %d shells, want 1..%d", ErrInconsistent, len(d.Shells), slater.MaxShells)
	}
	if d.Initial == nil || (!d.SameBasis && d.Final == nil) {
		return fmt.Errorf("%w: missing side", ErrInconsistent)
	}
	seen := 0
	for _, shells := range d.OrbitShells() {
		seen += len(shells)
	}
	if seen != len(d.Shells) {
		return fmt.Errorf("%w: %d of %d shells belong to no orbit", ErrInconsistent, len(d.Shells)-seen, len(d.Shells))
	}

	initial, final := d.Sides()
	if err := d.validateSide("initial", initial); err != nil {
		return err
	}
	if final != initial {
		if err := d.validateSide("final", final); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dataset) validateSide(name string, side *Side) error {
	if len(side.States) == 0 {
		return fmt.Errorf("%w: %s side has no eigenstates", ErrInconsistent, name)
	}
	if len(side.Coeffs) != len(side.Rows)*len(side.States) {
		return fmt.Errorf("%w: %s coefficient table has %d entries, want %d", ErrInconsistent, name, len(side.Coeffs), len(side.Rows)*len(side.States))
	}
	for _, s := range AllSpecies {
		space, err := d.Space(side, s)
		if err != nil {
			return fmt.Errorf("%w: %s %s space: %v", ErrInconsistent, name, s, err)
		}
		for i, row := range side.Rows {
			r := row.Rank(s)
			if r == 0 || r > space.Size() {
				return fmt.Errorf("%w: %s row %d has %s rank %d outside [1,%d]", ErrInconsistent, name, i, s, r, space.Size())
			}
		}
	}

	nEig := len(side.States)
	for eig := 0; eig < nEig; eig++ {
		sum := 0.0
		for row := range side.Rows {
			c := float64(side.Coeffs[row*nEig+eig])
			sum += c * c
		}
		if math.Abs(sum-1) > NormTolerance {
			return fmt.Errorf("%w: %s eigenstate %d has norm %.9f", ErrNotNormalized, name, eig, sum)
		}
	}
	return nil
}

// Totals returns 2M and parity of the side's basis as derived from its rows.
// Parity 0 means rows of both parities are present.
func (d *Dataset) Totals(side *Side) (twoM, parity int, err error) {
	if len(side.Rows) == 0 {
		return side.TwoM, side.Parity, nil
	}
	cat := d.Catalog()
	spaces := [2]*slater.Space{}
	for _, s := range AllSpecies {
		if spaces[s], err = d.Space(side, s); err != nil {
			return 0, 0, err
		}
	}
	for i, row := range side.Rows {
		pm, _ := spaces[Proton].Mask(row.P)
		nm, _ := spaces[Neutron].Mask(row.N)
		m := cat.TwoM(pm) + cat.TwoM(nm)
		p := cat.ParityOf(pm) * cat.ParityOf(nm)
		if i == 0 {
			twoM, parity = m, p
			continue
		}
		if m != twoM {
			return 0, 0, fmt.Errorf("%w: row %d has 2M=%d, row 0 has %d", ErrInconsistent, i, m, twoM)
		}
		if p != parity {
			parity = 0
		}
	}
	return twoM, parity, nil
}
