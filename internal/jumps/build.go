package jumps

import (
	"fmt"
	"math/bits"

	"go.uber.org/zap"

	"github.com/trdens-dev/trdens/internal/basis"
	"github.com/trdens-dev/trdens/internal/slater"
)

type Mode int

const (
	// Combined builds every structure from one walk of a shared basis.
	Combined Mode = iota
	// Split walks the initial and final bases separately.
	Split
)

func (m Mode) String() string {
	if m == Combined {
		return "combined"
	}
	return "split"
}

type Options struct {
	// Body is the operator rank: 1 or 2.
	Body int
	// Spectator stores the remaining excitation quanta on every jump.
	Spectator bool
	// Truncate prunes determinants whose weight cannot fit under the side's WMax.
	Truncate bool
	// ForceSplit builds split maps even when the dataset shares one basis.
	ForceSplit bool
	Logger     *zap.Logger
}

// Maps holds every structure built for one species.
type Maps struct {
	Species basis.Species
	Shells  int
	Sectors Sectors

	// Initial side, bucketed by the origin determinant's sector.
	Zero *Table
	One  *Table
	Two  *Table

	// Final side. Rev tables resolve an intermediate back to the final
	// determinant; Fwd tables hold final determinants whose annihilation
	// lands on an initial-side determinant, bucketed by that determinant's sector.
	Rev1 *Reverse
	Rev2 *Reverse
	Fwd1 *Table
	Fwd2 *Table
}

// PairKey is the bucket key for annihilating first, then second.
func (m *Maps) PairKey(first, second int) int { return first*m.Shells + second }

// Records counts jumps across every table.
func (m *Maps) Records() int {
	return m.Zero.Len() + m.One.Len() + m.Two.Len() + m.Fwd1.Len() + m.Fwd2.Len()
}

func (m *Maps) Bytes() int {
	return m.Zero.Bytes() + m.One.Bytes() + m.Two.Bytes() + m.Fwd1.Bytes() + m.Fwd2.Bytes() + m.Rev1.Bytes() + m.Rev2.Bytes()
}

type Set struct {
	Mode      Mode
	Body      int
	Spectator bool
	species   [2]*Maps
}

func (s *Set) Of(sp basis.Species) *Maps { return s.species[sp] }

// Build constructs the jump maps for both species of d.
func Build(d *basis.Dataset, opts Options) (*Set, error) {
	if opts.Body != 1 && opts.Body != 2 {
		return nil, fmt.Errorf("operator body count %d, want 1 or 2", opts.Body)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	initial, final := d.Sides()
	mode := Split
	if d.SameBasis && !opts.ForceSplit {
		mode = Combined
	}

	twoM, parity, err := d.Totals(initial)
	if err != nil {
		return nil, fmt.Errorf("failed to derive basis totals: %w", err)
	}
	cat := d.Catalog()
	set := &Set{Mode: mode, Body: opts.Body, Spectator: opts.Spectator}

	for _, sp := range basis.AllSpecies {
		other := sp.Other()
		lo, hi := cat.TwoMRange(initial.Particles(sp))
		olo, ohi := cat.TwoMRange(initial.Particles(other))
		flo, fhi := fold(lo, hi, olo, ohi, twoM)
		b := &builder{
			cat:       cat,
			shells:    len(d.Shells),
			opts:      opts,
			spectator: opts.Spectator,
			maps: &Maps{
				Species: sp,
				Shells:  len(d.Shells),
				Sectors: Sectors{TwoMMin: flo, TwoMMax: fhi, TotalTwoM: twoM, TotalParity: parity},
			},
		}
		if err := b.build(initial, final, mode); err != nil {
			return nil, fmt.Errorf("failed to build %s jump maps: %w", sp, err)
		}
		set.species[sp] = b.maps
		logger.Info("built jump maps",
			zap.String("species", sp.String()),
			zap.String("mode", mode.String()),
			zap.Int("sectors", b.maps.Sectors.Len()),
			zap.Int("zero", b.maps.Zero.Len()),
			zap.Int("one", b.maps.One.Len()),
			zap.Int("two", b.maps.Two.Len()),
			zap.Int("fwd1", b.maps.Fwd1.Len()),
			zap.Int("fwd2", b.maps.Fwd2.Len()),
			zap.Int("bytes", b.maps.Bytes()),
		)
	}
	return set, nil
}

type builder struct {
	cat       *slater.Catalog
	shells    int
	opts      Options
	spectator bool
	maps      *Maps
}

// weightLimit is the largest species weight that still fits under side.WMax
// next to the lightest configuration of the other species.
func (b *builder) weightLimit(side *basis.Side) (int, bool) {
	if !b.opts.Truncate {
		return 0, false
	}
	otherMin, _ := b.cat.WeightRange(side.Particles(b.maps.Species.Other()))
	return side.WMax - otherMin, true
}

func (b *builder) quanta(q int) int16 {
	if !b.spectator {
		return 0
	}
	return int16(q)
}

func spaces(shells, particles, depth int) ([]*slater.Space, error) {
	out := make([]*slater.Space, depth+1)
	for k := 0; k <= depth && particles-k >= 0; k++ {
		s, err := slater.NewSpace(shells, particles-k)
		if err != nil {
			return nil, err
		}
		out[k] = s
	}
	return out, nil
}

func (b *builder) build(initial, final *basis.Side, mode Mode) error {
	sp := b.maps.Species
	ni := initial.Particles(sp)
	nf := final.Particles(sp)
	two := b.opts.Body == 2
	keys2 := b.shells * b.shells
	nSectors := b.maps.Sectors.Len()

	in, err := spaces(b.shells, ni, 2)
	if err != nil {
		return err
	}
	zero := newTableBuilder(nSectors, 1)
	var one, twoT *tableBuilder
	if ni >= 1 {
		one = newTableBuilder(nSectors, b.shells)
	}
	if two && ni >= 2 {
		twoT = newTableBuilder(nSectors, keys2)
	}

	var outSpaces []*slater.Space
	if mode == Split {
		if outSpaces, err = spaces(b.shells, nf, 2); err != nil {
			return err
		}
	} else {
		outSpaces = in
	}
	var rev1, rev2 *Reverse
	if nf >= 1 {
		rev1 = newReverse(outSpaces[1].Size(), b.shells)
	}
	if two && nf >= 2 {
		rev2 = newReverse(outSpaces[2].Size(), keys2)
	}

	limit, truncate := b.weightLimit(initial)
	walkInitial := func(fillRev bool) {
		in[0].Each(func(rank uint32, mask uint64) {
			twoM, parity, q, w := b.cat.Classify(mask)
			if truncate && w > limit {
				return
			}
			s, ok := b.maps.Sectors.Index(parity, twoM)
			if !ok {
				return
			}
			zero.add(s, 0, Jump{Origin: rank, Dest: rank, Phase: 1, Quanta: b.quanta(q)})
			for m := mask; m != 0; m &= m - 1 {
				x := trailing(m)
				m1, ph1 := slater.AnnihilateMask(mask, x)
				r1 := in[1].Rank(m1)
				q1 := q - b.cat.Quanta[x]
				one.add(s, x, Jump{Origin: rank, Dest: r1, Phase: int8(ph1), Quanta: b.quanta(q1)})
				if fillRev {
					rev1.set(r1, x, rank, ph1)
				}
				if twoT == nil && !(fillRev && rev2 != nil) {
					continue
				}
				for m2 := m1 & (uint64(1)<<uint(x) - 1); m2 != 0; m2 &= m2 - 1 {
					y := trailing(m2)
					m12, ph2 := slater.AnnihilateMask(m1, y)
					r2 := in[2].Rank(m12)
					q2 := b.quanta(q1 - b.cat.Quanta[y])
					ph := ph1 * ph2
					twoT.add(s, x*b.shells+y, Jump{Origin: rank, Dest: r2, Phase: int8(ph), Quanta: q2})
					twoT.add(s, y*b.shells+x, Jump{Origin: rank, Dest: r2, Phase: int8(-ph), Quanta: q2})
					if fillRev {
						rev2.set(r2, x*b.shells+y, rank, ph)
						rev2.set(r2, y*b.shells+x, rank, -ph)
					}
				}
			}
		})
	}

	walkInitial(false)
	zero.startFill()
	one.startFill()
	twoT.startFill()
	walkInitial(mode == Combined)
	b.maps.Zero = zero.table()
	b.maps.One = one.table()
	b.maps.Two = twoT.table()

	if mode == Split {
		b.buildFinal(final, outSpaces, nf-ni, rev1, rev2)
	}
	b.maps.Rev1 = rev1
	b.maps.Rev2 = rev2
	return nil
}

// buildFinal walks the final-side determinants of the species, filling the
// reverse tables and, when the species gains particles, the forward tables
// whose destinations are initial-side determinants.
func (b *builder) buildFinal(final *basis.Side, out []*slater.Space, gain int, rev1, rev2 *Reverse) {
	two := b.opts.Body == 2
	nSectors := b.maps.Sectors.Len()
	var fwd1, fwd2 *tableBuilder
	if gain == 1 {
		fwd1 = newTableBuilder(nSectors, b.shells)
	}
	if two && gain == 2 {
		fwd2 = newTableBuilder(nSectors, b.shells*b.shells)
	}

	limit, truncate := b.weightLimit(final)
	walk := func(fill bool) {
		out[0].Each(func(rank uint32, mask uint64) {
			if truncate && b.cat.WeightOf(mask) > limit {
				return
			}
			for m := mask; m != 0; m &= m - 1 {
				x := trailing(m)
				m1, ph1 := slater.AnnihilateMask(mask, x)
				r1 := out[1].Rank(m1)
				if fill {
					rev1.set(r1, x, rank, ph1)
				}
				if fwd1 != nil {
					twoM, parity, q, _ := b.cat.Classify(m1)
					if s, ok := b.maps.Sectors.Index(parity, twoM); ok {
						fwd1.add(s, x, Jump{Origin: rank, Dest: r1, Phase: int8(ph1), Quanta: b.quanta(q)})
					}
				}
				if rev2 == nil {
					continue
				}
				for m2 := m1 & (uint64(1)<<uint(x) - 1); m2 != 0; m2 &= m2 - 1 {
					y := trailing(m2)
					m12, ph2 := slater.AnnihilateMask(m1, y)
					r2 := out[2].Rank(m12)
					ph := ph1 * ph2
					if fill {
						rev2.set(r2, x*b.shells+y, rank, ph)
						rev2.set(r2, y*b.shells+x, rank, -ph)
					}
					if fwd2 != nil {
						twoM, parity, q, _ := b.cat.Classify(m12)
						if s, ok := b.maps.Sectors.Index(parity, twoM); ok {
							fwd2.add(s, x*b.shells+y, Jump{Origin: rank, Dest: r2, Phase: int8(ph), Quanta: b.quanta(q)})
							fwd2.add(s, y*b.shells+x, Jump{Origin: rank, Dest: r2, Phase: int8(-ph), Quanta: b.quanta(q)})
						}
					}
				}
			}
		})
	}

	walk(false)
	fwd1.startFill()
	fwd2.startFill()
	walk(true)
	b.maps.Fwd1 = fwd1.table()
	b.maps.Fwd2 = fwd2.table()
}

func trailing(m uint64) int { return bits.TrailingZeros64(m) }
