// Package density drives a transition-density run: it validates the
// requested transitions, builds indexes and jump maps, loops over orbit
// pairs or quartets and recouples M-scheme traces into J,T-reduced elements.
package density

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/trdens-dev/trdens/internal/angular"
	"github.com/trdens-dev/trdens/internal/basis"
	"github.com/trdens-dev/trdens/internal/trace"
)

var (
	ErrIsospinMismatch = errors.New("operator isospin cannot connect the nuclides")
	ErrTriangle        = errors.New("transition violates the triangle rule")
	ErrRaisingLowering = errors.New("zero reduction coefficient; raising/lowering operators are not supported")
	ErrRequest         = errors.New("invalid density request")
)

// Operator is a spherical tensor of integer rank J and isospin rank T.
type Operator struct {
	Body int
	J    int
	T    int
}

func (o Operator) String() string {
	return fmt.Sprintf("%d-body J=%d T=%d", o.Body, o.J, o.T)
}

type Request struct {
	Operator    Operator
	Transitions []trace.Transition
	Spectator   bool
	Truncate    bool
	// Workers bounds concurrent orbit units; values below 2 run sequentially.
	Workers int
	// ForceSplit builds split jump maps even for a shared basis.
	ForceSplit bool
	Logger     *zap.Logger
	// Progress, when set, is called after each orbit unit.
	Progress func(done, total int)
}

// Plan is a validated request with its per-transition reduction factors.
type Plan struct {
	Request Request
	Dataset *basis.Dataset
	// Factors divide the raw M-scheme sums of each transition.
	Factors []float64
	// TwoM is twice the basis projection shared by both sides.
	TwoM int
	// TwoMT is twice the isospin projection carried by the operator.
	TwoMT int
	// Parity is the product of initial and final parity, 0 when either mixes.
	Parity int
}

// Prepare validates the dataset and every transition. It performs every
// fatal check of a run, so a nil error means Compute will only fail on I/O.
func Prepare(d *basis.Dataset, req Request) (*Plan, error) {
	op := req.Operator
	if op.Body != 1 && op.Body != 2 {
		return nil, fmt.Errorf("%w: body count %d, want 1 or 2", ErrRequest, op.Body)
	}
	if op.J < 0 || op.T < 0 || op.T > 2 || (op.Body == 1 && op.T > 1) {
		return nil, fmt.Errorf("%w: operator J=%d T=%d", ErrRequest, op.J, op.T)
	}
	if len(req.Transitions) == 0 {
		return nil, fmt.Errorf("%w: no transitions requested", ErrRequest)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate dataset: %w", err)
	}
	initial, final := d.Sides()
	for i, t := range req.Transitions {
		if t.Initial < 0 || t.Initial >= len(initial.States) {
			return nil, fmt.Errorf("%w: transition %d initial state %d outside [0,%d)", ErrRequest, i, t.Initial, len(initial.States))
		}
		if t.Final < 0 || t.Final >= len(final.States) {
			return nil, fmt.Errorf("%w: transition %d final state %d outside [0,%d)", ErrRequest, i, t.Final, len(final.States))
		}
	}

	twoM, pi, err := d.Totals(initial)
	if err != nil {
		return nil, err
	}
	twoMf, pf, err := d.Totals(final)
	if err != nil {
		return nil, err
	}
	if twoMf != twoM {
		return nil, fmt.Errorf("%w: initial 2M=%d, final 2M=%d", basis.ErrInconsistent, twoM, twoMf)
	}

	mti, mtf := initial.TwoTz(), final.TwoTz()
	mtop := mtf - mti
	if abs(mtop) > 2*op.T {
		return nil, fmt.Errorf("%w: T_op=%d cannot change 2Tz from %d to %d", ErrIsospinMismatch, op.T, mti, mtf)
	}
	if initial.Z+initial.N != final.Z+final.N {
		return nil, fmt.Errorf("%w: particle number changes from %d to %d", ErrIsospinMismatch, initial.Z+initial.N, final.Z+final.N)
	}

	plan := &Plan{Request: req, Dataset: d, TwoM: twoM, TwoMT: mtop, Parity: pi * pf}
	for i, t := range req.Transitions {
		f, err := reductionFactor(op, twoM, mti, mtf, initial.States[t.Initial], final.States[t.Final])
		if err != nil {
			return nil, fmt.Errorf("transition %d (%d -> %d): %w", i, t.Initial, t.Final, err)
		}
		plan.Factors = append(plan.Factors, f)
	}
	return plan, nil
}

// reductionFactor is the Wigner-Eckart factor in J and T that turns an
// M-scheme sum at projection twoM into a reduced matrix element.
func reductionFactor(op Operator, twoM, mti, mtf int, si, sf basis.Eigenstate) (float64, error) {
	jop, top := 2*op.J, 2*op.T
	mtop := mtf - mti
	if abs(mti) > si.TwoT || abs(mtf) > sf.TwoT {
		return 0, fmt.Errorf("%w: 2T=%d,%d cannot carry 2Tz=%d,%d", ErrIsospinMismatch, si.TwoT, sf.TwoT, mti, mtf)
	}
	if !angular.Triangle(jop, si.TwoJ, sf.TwoJ) {
		return 0, fmt.Errorf("%w: J_op=%d with 2J=%d -> 2J=%d", ErrTriangle, op.J, si.TwoJ, sf.TwoJ)
	}
	if !angular.Triangle(top, si.TwoT, sf.TwoT) {
		return 0, fmt.Errorf("%w: T_op=%d with 2T=%d -> 2T=%d", ErrTriangle, op.T, si.TwoT, sf.TwoT)
	}

	cgJ := angular.CG(jop, si.TwoJ, sf.TwoJ, 0, twoM, twoM)
	cgT := angular.CG(top, si.TwoT, sf.TwoT, mtop, mti, mtf)
	if op.Body == 1 {
		cgJ *= angular.Sign(jop+si.TwoJ+sf.TwoJ) * math.Sqrt(float64(jop+1))
		cgT *= angular.Sign(top+si.TwoT+sf.TwoT) * math.Sqrt(float64(top+1))
	} else {
		cgJ *= angular.Sign(sf.TwoJ - si.TwoJ)
		cgT *= angular.Sign(sf.TwoT - si.TwoT)
	}
	cgJ /= math.Sqrt(float64(sf.TwoJ + 1))
	cgT /= math.Sqrt(float64(sf.TwoT + 1))
	if cgJ == 0 || cgT == 0 {
		return 0, fmt.Errorf("%w: 2J=%d->%d at 2M=%d, 2T=%d->%d (J factor %g, T factor %g)", ErrRaisingLowering, si.TwoJ, sf.TwoJ, twoM, si.TwoT, sf.TwoT, cgJ, cgT)
	}
	return cgJ * cgT, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
