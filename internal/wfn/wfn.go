// Package wfn reads and writes BIGSTICK wavefunction (.wfn) and basis (.bas)
// files. Both are little-endian streams of 32-bit words; the basis file lists
// the occupied single-particle states of every determinant, protons first.
package wfn

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/trdens-dev/trdens/internal/basis"
	"github.com/trdens-dev/trdens/internal/slater"
)

const (
	WavefunctionExt = ".wfn"
	BasisExt        = ".bas"
)

var ErrFormat = errors.New("malformed BIGSTICK file")

// Nucleus is the decoded content of one .wfn/.bas pair.
type Nucleus struct {
	Z      int
	N      int
	Orbits []basis.Orbit
	Shells []basis.Shell
	TwoM   int
	Parity int
	WMax   int
	States []basis.Eigenstate
	Rows   []basis.Row
	// Coeffs is row-major: Coeffs[row*len(States)+eig].
	Coeffs []float32

	// shells is the single-particle count announced by the .wfn header.
	shells int
}

// Side converts the nucleus into one side of a dataset.
func (n *Nucleus) Side() *basis.Side {
	return &basis.Side{
		Z:      n.Z,
		N:      n.N,
		TwoM:   n.TwoM,
		Parity: n.Parity,
		WMax:   n.WMax,
		Rows:   n.Rows,
		States: n.States,
		Coeffs: n.Coeffs,
	}
}

// Load reads base.wfn and base.bas.
func Load(base string) (*Nucleus, error) {
	wf, err := os.Open(base + WavefunctionExt)
	if err != nil {
		return nil, fmt.Errorf("failed to open wavefunction: %w", err)
	}
	defer wf.Close()
	nuc, err := ReadWavefunction(wf)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", base+WavefunctionExt, err)
	}

	bf, err := os.Open(base + BasisExt)
	if err != nil {
		return nil, fmt.Errorf("failed to open basis: %w", err)
	}
	defer bf.Close()
	if err := ReadBasis(bf, nuc); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", base+BasisExt, err)
	}
	return nuc, nil
}

// LoadDataset loads both sides of a run. Identical base names share one
// decoded nucleus.
func LoadDataset(initialBase, finalBase string) (*basis.Dataset, error) {
	initial, err := Load(initialBase)
	if err != nil {
		return nil, err
	}
	d := &basis.Dataset{Shells: initial.Shells, Orbits: initial.Orbits, Initial: initial.Side()}
	if initialBase == finalBase {
		d.SameBasis = true
		return d, nil
	}
	final, err := Load(finalBase)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(initial.Orbits, final.Orbits) || !slices.Equal(initial.Shells, final.Shells) {
		return nil, fmt.Errorf("%w: %s and %s use different model spaces", ErrFormat, initialBase, finalBase)
	}
	if initial.Z+initial.N != final.Z+final.N {
		return nil, fmt.Errorf("%w: %s has %d nucleons, %s has %d", basis.ErrInconsistent, initialBase, initial.Z+initial.N, finalBase, final.Z+final.N)
	}
	d.Final = final.Side()
	return d, nil
}

func parityFromChar(c int) (int, bool) {
	switch c {
	case '+':
		return 1, true
	case '-':
		return -1, true
	case '0':
		return 0, true
	}
	return 0, false
}

func parityChar(p int) int {
	switch p {
	case 1:
		return '+'
	case -1:
		return '-'
	}
	return '0'
}

// isospin recovers 2T from the stored T(T+1).
func isospin(tt float32) int {
	t := -0.5 + 0.5*math.Sqrt(1+4*float64(tt))
	return int(math.Round(2 * t))
}

// ReadWavefunction decodes a .wfn stream. Shells and Rows stay empty until
// ReadBasis fills them.
func ReadWavefunction(r io.Reader) (*Nucleus, error) {
	d := newDecoder(r)
	nuc := &Nucleus{}

	d.skip(8)
	nuc.Z, nuc.N = d.int(), d.int()
	d.skip(1)
	nOrbP, nOrbN := d.int(), d.int()
	if d.err == nil && (nuc.Z < 0 || nuc.N < 0 || nOrbP <= 0 || nOrbP != nOrbN || nOrbP > slater.MaxShells) {
		d.fail("Z=%d N=%d with %d proton and %d neutron orbits", nuc.Z, nuc.N, nOrbP, nOrbN)
	}
	for i := 0; i < nOrbP && d.err == nil; i++ {
		o := basis.Orbit{N: d.int(), TwoJ: d.int(), L: d.int()}
		d.skip(1)
		o.W = d.int()
		nuc.Orbits = append(nuc.Orbits, o)
	}
	d.skip(5 * nOrbN)

	nSpsP, nSpsN := d.int(), d.int()
	if d.err == nil && (nSpsP <= 0 || nSpsP != nSpsN || nSpsP > slater.MaxShells) {
		d.fail("%d proton and %d neutron single-particle states", nSpsP, nSpsN)
	}
	nuc.shells = nSpsP
	d.skip(8 * (nSpsP + nSpsN))

	nuc.TwoM = d.int()
	pc := d.int()
	nuc.WMax = d.int()
	d.skip(3)
	if p, ok := parityFromChar(pc); ok {
		nuc.Parity = p
	} else {
		d.fail("parity character %q", rune(pc))
	}
	nStates := d.int64()
	nEig := d.int()
	if d.err == nil && (nStates <= 0 || nStates > math.MaxInt32 || nEig <= 0) {
		d.fail("%d basis states and %d eigenstates", nStates, nEig)
	}
	if d.err != nil {
		return nil, d.err
	}

	rows := int(nStates)
	nuc.Rows = make([]basis.Row, 0, rows)
	nuc.Coeffs = make([]float32, rows*nEig)
	for e := 0; e < nEig && d.err == nil; e++ {
		d.skip(2)
		st := basis.Eigenstate{Energy: float64(d.float())}
		st.TwoJ = int(math.Round(2 * float64(d.float())))
		st.TwoT = isospin(d.float())
		nuc.States = append(nuc.States, st)
		for row := 0; row < rows; row++ {
			nuc.Coeffs[row*nEig+e] = d.float()
			if d.err != nil {
				break
			}
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return nuc, nil
}

// ReadBasis decodes the .bas stream matching nuc and fills its shell catalog
// and determinant rows.
func ReadBasis(r io.Reader, nuc *Nucleus) error {
	d := newDecoder(r)
	ns := nuc.shells
	rows := len(nuc.Coeffs) / max(len(nuc.States), 1)

	d.skip(3)
	offset := d.int()
	if d.err == nil && offset < 0 {
		d.fail("negative catalog offset %d", offset)
	}
	d.discard(offset)

	nuc.Shells = make([]basis.Shell, 0, ns)
	for i := 0; i < ns && d.err == nil; i++ {
		d.skip(1)
		s := basis.Shell{N: d.int(), L: d.int(), TwoJ: d.int(), TwoJz: d.int(), W: d.int()}
		nuc.Shells = append(nuc.Shells, s)
	}
	d.skip(6 * ns)
	if d.err != nil {
		return d.err
	}

	ps, err := slater.NewSpace(ns, nuc.Z)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	nsp, err := slater.NewSpace(ns, nuc.N)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	a := nuc.Z + nuc.N
	pocc := make([]int, 0, nuc.Z)
	nocc := make([]int, 0, nuc.N)
	nuc.Rows = nuc.Rows[:0]
	for row := 0; row < rows; row++ {
		pocc, nocc = pocc[:0], nocc[:0]
		for k := 0; k < a; k++ {
			sp := d.int()
			switch {
			case sp >= 1 && sp <= ns:
				pocc = append(pocc, sp-1)
			case sp > ns && sp <= 2*ns:
				nocc = append(nocc, sp-ns-1)
			default:
				d.fail("row %d lists single-particle state %d outside [1,%d]", row, sp, 2*ns)
			}
		}
		if d.err != nil {
			return d.err
		}
		pr, nr := ps.RankOf(pocc), nsp.RankOf(nocc)
		if len(pocc) != nuc.Z || len(nocc) != nuc.N || pr == 0 || nr == 0 {
			return fmt.Errorf("%w: row %d occupies %v protons and %v neutrons, want %d and %d distinct", ErrFormat, row, pocc, nocc, nuc.Z, nuc.N)
		}
		nuc.Rows = append(nuc.Rows, basis.Row{P: pr, N: nr})
	}
	return nil
}
