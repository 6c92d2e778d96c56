package wfn

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/trdens-dev/trdens/internal/slater"
)

// Save writes base.wfn and base.bas.
func Save(base string, nuc *Nucleus) error {
	if err := writeFile(base+WavefunctionExt, nuc, WriteWavefunction); err != nil {
		return err
	}
	return writeFile(base+BasisExt, nuc, WriteBasis)
}

func writeFile(path string, nuc *Nucleus, write func(io.Writer, *Nucleus) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f, nuc); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// WriteWavefunction encodes nuc in the .wfn layout read by ReadWavefunction.
// Record markers and unused header words are written as zero.
func WriteWavefunction(w io.Writer, nuc *Nucleus) error {
	e := newEncoder(w)
	e.ints(0, 0, 0, 0, 0, 0, 0, 0)
	e.ints(nuc.Z, nuc.N, 0)
	e.ints(len(nuc.Orbits), len(nuc.Orbits))
	for k := 0; k < 2; k++ {
		for _, o := range nuc.Orbits {
			e.ints(o.N, o.TwoJ, o.L, o.Parity(), o.W)
		}
	}
	ns := len(nuc.Shells)
	e.ints(ns, ns)
	for species := 0; species < 2; species++ {
		for i, s := range nuc.Shells {
			id := species*ns + i + 1
			e.ints(s.N, s.TwoJ, s.TwoJz, s.L, s.W, s.Parity(), id, id)
		}
	}
	e.ints(nuc.TwoM, parityChar(nuc.Parity), nuc.WMax, 0, 0, 0)
	e.int64(int64(len(nuc.Rows)))
	nEig := len(nuc.States)
	e.int(nEig)
	for i, st := range nuc.States {
		t := float64(st.TwoT) / 2
		e.ints(0, i+1)
		e.float(float32(st.Energy))
		e.float(float32(st.TwoJ) / 2)
		e.float(float32(t * (t + 1)))
		for row := range nuc.Rows {
			e.float(nuc.Coeffs[row*nEig+i])
		}
	}
	return e.flush()
}

// WriteBasis encodes the shell catalog and per-row occupations of nuc.
func WriteBasis(w io.Writer, nuc *Nucleus) error {
	ns := len(nuc.Shells)
	ps, err := slater.NewSpace(ns, nuc.Z)
	if err != nil {
		return err
	}
	nsp, err := slater.NewSpace(ns, nuc.N)
	if err != nil {
		return err
	}
	if len(nuc.Rows) > math.MaxInt32 {
		return fmt.Errorf("%w: %d rows", ErrFormat, len(nuc.Rows))
	}

	e := newEncoder(w)
	e.ints(0, 0, 0, 0)
	for species := 0; species < 2; species++ {
		for i, s := range nuc.Shells {
			e.ints(species*ns+i+1, s.N, s.L, s.TwoJ, s.TwoJz, s.W)
		}
	}
	for i, row := range nuc.Rows {
		pocc, nocc := ps.Occupation(row.P), nsp.Occupation(row.N)
		if len(pocc) != nuc.Z || len(nocc) != nuc.N {
			return fmt.Errorf("%w: row %d has ranks outside the species spaces", ErrFormat, i)
		}
		for _, o := range pocc {
			e.int(o + 1)
		}
		for _, o := range nocc {
			e.int(ns + o + 1)
		}
	}
	return e.flush()
}
