package basis

import (
	"fmt"

	"github.com/trdens-dev/trdens/internal/slater"
)

// Enumerate builds the complete M-scheme basis of z protons and n neutrons
// with total projection twoM. Parity 0 admits both parities. Rows are ordered
// by proton rank, then neutron rank.
func Enumerate(shells []Shell, z, n, twoM, parity int) ([]Row, error) {
	d := &Dataset{Shells: shells}
	cat := d.Catalog()
	ps, err := slater.NewSpace(len(shells), z)
	if err != nil {
		return nil, fmt.Errorf("failed to build proton space: %w", err)
	}
	ns, err := slater.NewSpace(len(shells), n)
	if err != nil {
		return nil, fmt.Errorf("failed to build neutron space: %w", err)
	}

	type class struct{ twoM, parity int }
	neutrons := make(map[class][]uint32)
	ns.Each(func(rank uint32, mask uint64) {
		k := class{cat.TwoM(mask), cat.ParityOf(mask)}
		neutrons[k] = append(neutrons[k], rank)
	})

	var rows []Row
	ps.Each(func(rank uint32, mask uint64) {
		pm, pp := cat.TwoM(mask), cat.ParityOf(mask)
		for _, np := range []int{1, -1} {
			if parity != 0 && pp*np != parity {
				continue
			}
			for _, nr := range neutrons[class{twoM - pm, np}] {
				rows = append(rows, Row{P: rank, N: nr})
			}
		}
	})
	return rows, nil
}

// OrbitCatalog expands orbits into shells, 2jz ascending within each orbit.
func OrbitCatalog(orbits []Orbit) []Shell {
	var shells []Shell
	for _, o := range orbits {
		for jz := -o.TwoJ; jz <= o.TwoJ; jz += 2 {
			shells = append(shells, Shell{N: o.N, L: o.L, TwoJ: o.TwoJ, TwoJz: jz, W: o.W})
		}
	}
	return shells
}
