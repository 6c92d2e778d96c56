package density

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/trdens-dev/trdens/internal/basis"
	"github.com/trdens-dev/trdens/internal/jumps"
	"github.com/trdens-dev/trdens/internal/slater"
	"github.com/trdens-dev/trdens/internal/trace"
)

var sOrbits = []basis.Orbit{
	{N: 0, L: 0, TwoJ: 1},
	{N: 1, L: 0, TwoJ: 1},
}

var mixedOrbits = []basis.Orbit{
	{N: 0, L: 0, TwoJ: 1},
	{N: 0, L: 1, TwoJ: 3},
	{N: 0, L: 1, TwoJ: 1},
}

// closedShell holds two protons filling the lowest s1/2 orbit, J=0 T=1.
func closedShell(t *testing.T) *basis.Dataset {
	t.Helper()
	shells := basis.OrbitCatalog(sOrbits)
	rows, err := basis.Enumerate(shells, 2, 0, 0, 0)
	require.NoError(t, err)
	coeffs := make([]float32, len(rows))
	found := false
	for i, r := range rows {
		if r == (basis.Row{P: 1, N: 1}) {
			coeffs[i] = 1
			found = true
		}
	}
	require.True(t, found, "closed-shell determinant missing from basis")
	side := &basis.Side{
		Z: 2, N: 0, TwoM: 0, Parity: 1,
		Rows:   rows,
		States: []basis.Eigenstate{{Energy: -1, TwoJ: 0, TwoT: 2}},
		Coeffs: coeffs,
	}
	return &basis.Dataset{Shells: shells, Orbits: sOrbits, Initial: side, SameBasis: true}
}

func randomSide(t *testing.T, rng *rand.Rand, shells []basis.Shell, z, n, twoM int, states []basis.Eigenstate) *basis.Side {
	t.Helper()
	rows, err := basis.Enumerate(shells, z, n, twoM, 0)
	require.NoError(t, err)
	return randomStates(rng, rows, z, n, twoM, states)
}

// randomStates fills normalized random eigenvectors over rows.
func randomStates(rng *rand.Rand, rows []basis.Row, z, n, twoM int, states []basis.Eigenstate) *basis.Side {
	nEig := len(states)
	coeffs := make([]float32, len(rows)*nEig)
	for e := 0; e < nEig; e++ {
		raw := make([]float64, len(rows))
		norm := 0.0
		for i := range raw {
			raw[i] = rng.NormFloat64()
			norm += raw[i] * raw[i]
		}
		for i := range raw {
			coeffs[i*nEig+e] = float32(raw[i] / math.Sqrt(norm))
		}
	}
	return &basis.Side{Z: z, N: n, TwoM: twoM, Rows: rows, States: states, Coeffs: coeffs}
}

// randomDataset is a shared Z=2 N=2 basis whose states are labelled J=0 T=0.
func randomDataset(t *testing.T, seed int64) *basis.Dataset {
	t.Helper()
	shells := basis.OrbitCatalog(mixedOrbits)
	states := []basis.Eigenstate{{Energy: -3}, {Energy: -2}}
	side := randomSide(t, rand.New(rand.NewSource(seed)), shells, 2, 2, 0, states)
	return &basis.Dataset{Shells: shells, Orbits: mixedOrbits, Initial: side, SameBasis: true}
}

// weightedOrbits puts the p shell one excitation unit above 0s1/2.
var weightedOrbits = []basis.Orbit{
	{N: 0, L: 0, TwoJ: 1, W: 0},
	{N: 0, L: 1, TwoJ: 3, W: 1},
	{N: 0, L: 1, TwoJ: 1, W: 1},
}

// truncatedDataset keeps the Z=2 N=2 rows of weightedOrbits with total weight
// at most wMax.
func truncatedDataset(t *testing.T, seed int64, wMax int) *basis.Dataset {
	t.Helper()
	shells := basis.OrbitCatalog(weightedOrbits)
	all, err := basis.Enumerate(shells, 2, 2, 0, 0)
	require.NoError(t, err)
	space, err := slater.NewSpace(len(shells), 2)
	require.NoError(t, err)
	weight := func(rank uint32) int {
		mask, ok := space.Mask(rank)
		require.True(t, ok)
		w := 0
		for i, sh := range shells {
			if mask&(1<<uint(i)) != 0 {
				w += sh.W
			}
		}
		return w
	}
	var rows []basis.Row
	for _, r := range all {
		if weight(r.P)+weight(r.N) <= wMax {
			rows = append(rows, r)
		}
	}
	require.Less(t, len(rows), len(all), "weight limit should drop rows")

	states := []basis.Eigenstate{{Energy: -3}, {Energy: -2}}
	side := randomStates(rand.New(rand.NewSource(seed)), rows, 2, 2, 0, states)
	side.WMax = wMax
	return &basis.Dataset{Shells: shells, Orbits: weightedOrbits, Initial: side, SameBasis: true}
}

// chargeExchange connects Z=1 N=2 to Z=2 N=1, both with 2T=1 labels.
func chargeExchange(t *testing.T, seed int64) *basis.Dataset {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	shells := basis.OrbitCatalog(mixedOrbits)
	states := []basis.Eigenstate{{TwoJ: 1, TwoT: 1}, {TwoJ: 1, TwoT: 1}}
	return &basis.Dataset{
		Shells:  shells,
		Orbits:  mixedOrbits,
		Initial: randomSide(t, rng, shells, 1, 2, 1, states),
		Final:   randomSide(t, rng, shells, 2, 1, 1, states),
	}
}

var randomTransitions = []trace.Transition{{Initial: 0, Final: 0}, {Initial: 0, Final: 1}, {Initial: 1, Final: 0}}

func run(t *testing.T, d *basis.Dataset, req Request) (*MemorySink, *Result) {
	t.Helper()
	sink := &MemorySink{}
	res, err := Compute(context.Background(), d, req, sink)
	require.NoError(t, err)
	require.True(t, sink.Closed)
	return sink, res
}

func TestClosedShellOneBody(t *testing.T) {
	d := closedShell(t)
	sink, res := run(t, d, Request{
		Operator:    Operator{Body: 1, J: 0, T: 0},
		Transitions: []trace.Transition{{Initial: 0, Final: 0}},
	})

	require.Len(t, sink.One[0], 1)
	rec := sink.One[0][0]
	assert.Equal(t, [2]int{0, 0}, rec.Orbits)
	assert.InDelta(t, math.Sqrt(3), rec.Value, 1e-9)

	// Records are reduced elements: rho = N_a sqrt((2J+1)(2T+1)) / sqrt(2(2j+1)).
	// With J=0 T=1 labels that is sqrt(3) for a full s1/2 orbit.
	j := sOrbits[0].TwoJ
	occupation := rec.Value * math.Sqrt(float64(2*(j+1))) / math.Sqrt(3)
	assert.InDelta(t, 2.0, occupation, 1e-9, "both 0s1/2 protons occupied")
	assert.InDelta(t, 1.0, occupation/float64(j+1), 1e-9, "occupied diagonal")
	assert.Equal(t, []int{1}, res.Records)
	assert.Positive(t, res.Traces[trace.OneBodySame.String()])
}

func TestClosedShellTwoBody(t *testing.T) {
	d := closedShell(t)
	sink, _ := run(t, d, Request{
		Operator:    Operator{Body: 2, J: 0, T: 0},
		Transitions: []trace.Transition{{Initial: 0, Final: 0}},
	})

	want := []TwoBodyRecord{{Orbits: [4]int{0, 0, 0, 0}, TwoJ12: 0, TwoT12: 2, TwoJ34: 0, TwoT34: 2, Value: 1}}
	if diff := cmp.Diff(want, sink.Two[0], cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("closed-shell two-body records (-want +got):\n%s", diff)
	}
}

func TestOneBodySumRule(t *testing.T) {
	d := randomDataset(t, 11)
	sink, _ := run(t, d, Request{
		Operator:    Operator{Body: 1, J: 0, T: 0},
		Transitions: randomTransitions,
	})

	// With J=T=0 labels the reduction factor is 1 and each diagonal element
	// is N_a/sqrt(2(2j+1)).
	total := 0.0
	for _, rec := range sink.One[0] {
		if rec.Orbits[0] != rec.Orbits[1] {
			continue
		}
		j := mixedOrbits[rec.Orbits[0]].TwoJ
		total += rec.Value * math.Sqrt(float64(2*(j+1)))
	}
	assert.InDelta(t, 4.0, total, 1e-5)
}

func TestTwoBodyPairSumRule(t *testing.T) {
	d := randomDataset(t, 11)
	sink, _ := run(t, d, Request{
		Operator:    Operator{Body: 2, J: 0, T: 0},
		Transitions: randomTransitions,
	})

	// sum_{J,T} sqrt((2J+1)(2T+1)) rho(ab,ab;JT) counts the pairs in (a,b).
	type pair struct{ a, b int }
	got := make(map[pair]float64)
	for _, r := range sink.Two[0] {
		o := r.Orbits
		if o[0] < o[1] || o[2] != o[0] || o[3] != o[1] || r.TwoJ12 != r.TwoJ34 || r.TwoT12 != r.TwoT34 {
			continue
		}
		got[pair{o[0], o[1]}] += math.Sqrt(float64((r.TwoJ12+1)*(r.TwoT12+1))) * r.Value
	}

	var orbitStates [][]state
	for _, shells := range d.OrbitShells() {
		var list []state
		for _, sp := range basis.AllSpecies {
			for _, s := range shells {
				list = append(list, state{species: sp, shell: s, twoJz: d.Shells[s].TwoJz})
			}
		}
		orbitStates = append(orbitStates, list)
	}
	tr := randomTransitions[0]
	total := 0.0
	for a := range orbitStates {
		for b := 0; b <= a; b++ {
			want := 0.0
			for i, x := range orbitStates[a] {
				for k, y := range orbitStates[b] {
					if a == b && k <= i {
						continue
					}
					want += bruteForce(t, d, []op{{x, true}, {y, true}, {y, false}, {x, false}}, tr)
				}
			}
			total += want
			assert.InDelta(t, want, got[pair{a, b}], 1e-5, "orbits (%d,%d)", a, b)
		}
	}
	// Z=2 N=2 holds six pairs.
	assert.InDelta(t, 6.0, total, 1e-5)
}

func TestTruncationKeepsDensities(t *testing.T) {
	d := truncatedDataset(t, 37, 1)
	for _, body := range []int{1, 2} {
		req := Request{Operator: Operator{Body: body}, Transitions: randomTransitions}
		full, fres := run(t, d, req)
		req.Truncate = true
		trunc, tres := run(t, d, req)

		assert.Less(t, tres.JumpBytes, fres.JumpBytes, "body %d truncated tables", body)
		opts := cmpopts.EquateApprox(0, 1e-9)
		for tr := range randomTransitions {
			if body == 1 {
				require.NotEmpty(t, significant(full.One[tr]))
			} else {
				require.NotEmpty(t, significant(full.Two[tr]))
			}
			if diff := cmp.Diff(significant(full.One[tr]), significant(trunc.One[tr]), opts); diff != "" {
				t.Errorf("body %d one-body records differ (-full +truncated):\n%s", body, diff)
			}
			if diff := cmp.Diff(significant(full.Two[tr]), significant(trunc.Two[tr]), opts); diff != "" {
				t.Errorf("body %d two-body records differ (-full +truncated):\n%s", body, diff)
			}
		}
	}
}

func TestFatalChecksRunBeforeOpen(t *testing.T) {
	tests := []struct {
		name   string
		op     Operator
		labels basis.Eigenstate
		want   error
	}{
		{name: "triangle", op: Operator{Body: 1, J: 1}, labels: basis.Eigenstate{TwoJ: 0, TwoT: 2}, want: ErrTriangle},
		{name: "isospin labels", op: Operator{Body: 1}, labels: basis.Eigenstate{TwoJ: 0, TwoT: 0}, want: ErrIsospinMismatch},
		{name: "zero reduction coefficient", op: Operator{Body: 2, J: 1}, labels: basis.Eigenstate{TwoJ: 2, TwoT: 2}, want: ErrRaisingLowering},
		{name: "bad body", op: Operator{Body: 3}, labels: basis.Eigenstate{TwoT: 2}, want: ErrRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := closedShell(t)
			d.Initial.States[0] = tt.labels
			sink := &MemorySink{}
			_, err := Compute(context.Background(), d, Request{
				Operator:    tt.op,
				Transitions: []trace.Transition{{Initial: 0, Final: 0}},
			}, sink)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, sink.One, "sink must not be opened")
			assert.False(t, sink.Closed)
		})
	}
}

func TestOperatorIsospinCannotConnect(t *testing.T) {
	d := chargeExchange(t, 3)
	sink := &MemorySink{}
	_, err := Compute(context.Background(), d, Request{
		Operator:    Operator{Body: 1, J: 0, T: 0},
		Transitions: []trace.Transition{{Initial: 0, Final: 0}},
	}, sink)
	require.ErrorIs(t, err, ErrIsospinMismatch)
	assert.Nil(t, sink.One)
}

func TestTransitionRange(t *testing.T) {
	d := closedShell(t)
	_, err := Prepare(d, Request{Operator: Operator{Body: 1}, Transitions: []trace.Transition{{Initial: 0, Final: 1}}})
	require.ErrorIs(t, err, ErrRequest)
}

func TestSplitMatchesCombined(t *testing.T) {
	for _, body := range []int{1, 2} {
		d := randomDataset(t, 5)
		req := Request{Operator: Operator{Body: body}, Transitions: randomTransitions}
		combined, cres := run(t, d, req)
		req.ForceSplit = true
		split, sres := run(t, d, req)

		assert.Equal(t, jumps.Combined.String(), cres.Mode)
		assert.Equal(t, jumps.Split.String(), sres.Mode)
		opts := cmpopts.EquateApprox(0, 1e-9)
		for tr := range randomTransitions {
			if diff := cmp.Diff(significant(combined.One[tr]), significant(split.One[tr]), opts); diff != "" {
				t.Errorf("body %d one-body records differ (-combined +split):\n%s", body, diff)
			}
			if diff := cmp.Diff(significant(combined.Two[tr]), significant(split.Two[tr]), opts); diff != "" {
				t.Errorf("body %d two-body records differ (-combined +split):\n%s", body, diff)
			}
		}
	}
}

// significant drops records that only differ from zero by rounding, which
// depends on summation order.
func significant[R OneBodyRecord | TwoBodyRecord](records []R) []R {
	var out []R
	for _, r := range records {
		var v float64
		switch rec := any(r).(type) {
		case OneBodyRecord:
			v = rec.Value
		case TwoBodyRecord:
			v = rec.Value
		}
		if math.Abs(v) > 1e-10 {
			out = append(out, r)
		}
	}
	return out
}

func TestWorkersAreDeterministic(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := randomDataset(t, 7)
	req := Request{Operator: Operator{Body: 2, J: 0, T: 0}, Transitions: randomTransitions, Workers: 1}
	serial, _ := run(t, d, req)

	var calls int
	req.Workers = 4
	req.Progress = func(done, total int) {
		calls++
		assert.LessOrEqual(t, done, total)
	}
	parallel, res := run(t, d, req)

	assert.Equal(t, res.Units, calls)
	if diff := cmp.Diff(serial.Two, parallel.Two); diff != "" {
		t.Errorf("parallel run differs from serial (-serial +parallel):\n%s", diff)
	}
	require.NotEmpty(t, serial.Two[0])
}

func TestSpectatorBinsSumToTotal(t *testing.T) {
	d := randomDataset(t, 9)
	req := Request{Operator: Operator{Body: 2, J: 0, T: 0}, Transitions: randomTransitions}
	plain, _ := run(t, d, req)
	req.Spectator = true
	binned, res := run(t, d, req)
	require.Greater(t, res.Bins.Count, 1)

	type key struct {
		orbits                         [4]int
		twoJ12, twoT12, twoJ34, twoT34 int
	}
	for tr := range randomTransitions {
		sums := make(map[key]float64)
		for _, r := range binned.Two[tr] {
			sums[key{r.Orbits, r.TwoJ12, r.TwoT12, r.TwoJ34, r.TwoT34}] += r.Value
		}
		for _, r := range plain.Two[tr] {
			k := key{r.Orbits, r.TwoJ12, r.TwoT12, r.TwoJ34, r.TwoT34}
			assert.InDelta(t, r.Value, sums[k], 1e-9, "transition %d %+v", tr, k)
		}
	}
}

func TestExchangePermutations(t *testing.T) {
	d := randomDataset(t, 13)
	sink, _ := run(t, d, Request{Operator: Operator{Body: 2, J: 0, T: 0}, Transitions: randomTransitions})

	type key struct {
		orbits                         [4]int
		twoJ12, twoT12, twoJ34, twoT34 int
	}
	values := make(map[key]float64)
	for _, r := range sink.Two[0] {
		values[key{r.Orbits, r.TwoJ12, r.TwoT12, r.TwoJ34, r.TwoT34}] = r.Value
	}
	checked := 0
	for k, v := range values {
		o := k.orbits
		if o[0] == o[1] {
			continue
		}
		swapped := k
		swapped.orbits = [4]int{o[1], o[0], o[2], o[3]}
		phase := 1.0
		if (mixedOrbits[o[0]].TwoJ+mixedOrbits[o[1]].TwoJ-k.twoJ12-k.twoT12)/2%2 != 0 {
			phase = -1
		}
		assert.InDelta(t, phase*v, values[swapped], 1e-12)
		checked++
	}
	assert.Positive(t, checked)
}

func TestChargeChangingRun(t *testing.T) {
	d := chargeExchange(t, 17)
	for _, body := range []int{1, 2} {
		sink, res := run(t, d, Request{
			Operator:    Operator{Body: body, J: 0, T: 1},
			Transitions: []trace.Transition{{Initial: 0, Final: 0}, {Initial: 1, Final: 1}},
		})
		if body == 1 {
			assert.NotEmpty(t, sink.One[0])
			assert.Positive(t, res.Traces[trace.OneBodyCross.String()])
		} else {
			assert.NotEmpty(t, sink.Two[0])
			assert.Positive(t, res.Traces[trace.A31.String()])
		}
	}
}

func TestCancelledRunClosesSink(t *testing.T) {
	d := randomDataset(t, 19)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &MemorySink{}
	_, err := Compute(ctx, d, Request{Operator: Operator{Body: 2}, Transitions: randomTransitions}, sink)
	require.True(t, errors.Is(err, context.Canceled))
	assert.True(t, sink.Closed)
}

// bruteForce evaluates <f| ops |i> on combined proton+neutron determinants,
// protons in the low bits.
func bruteForce(t *testing.T, d *basis.Dataset, ops []op, tr trace.Transition) float64 {
	t.Helper()
	ns := len(d.Shells)
	initial, final := d.Sides()
	space := func(side *basis.Side, sp basis.Species) *slater.Space {
		s, err := d.Space(side, sp)
		require.NoError(t, err)
		return s
	}
	ip, in := space(initial, basis.Proton), space(initial, basis.Neutron)
	fi, err := basis.NewIndex(final.Rows)
	require.NoError(t, err)
	low := uint64(1)<<uint(ns) - 1

	sum := 0.0
	for row, r := range initial.Rows {
		pm, _ := ip.Mask(r.P)
		nm, _ := in.Mask(r.N)
		mask, phase := pm|nm<<uint(ns), 1
		for i := len(ops) - 1; i >= 0 && phase != 0; i-- {
			orb := int(ops[i].species)*ns + ops[i].shell
			var p int
			if ops[i].create {
				mask, p = slater.CreateMask(mask, orb)
			} else {
				mask, p = slater.AnnihilateMask(mask, orb)
			}
			phase *= p
		}
		if phase == 0 {
			continue
		}
		fp, fn := mask&low, mask>>uint(ns)
		if popcount(fp) != final.Z || popcount(fn) != final.N {
			continue
		}
		rowF, ok := fi.Lookup(space(final, basis.Proton).Rank(fp), space(final, basis.Neutron).Rank(fn))
		if !ok {
			continue
		}
		sum += float64(phase) * initial.Amplitude(uint32(row), tr.Initial) * final.Amplitude(rowF, tr.Final)
	}
	return sum
}

func popcount(m uint64) int {
	n := 0
	for ; m != 0; m &= m - 1 {
		n++
	}
	return n
}

func testEngine(t *testing.T, d *basis.Dataset, body int, transitions []trace.Transition) *trace.Engine {
	t.Helper()
	set, err := jumps.Build(d, jumps.Options{Body: body})
	require.NoError(t, err)
	initial, final := d.Sides()
	ii, err := basis.NewIndex(initial.Rows)
	require.NoError(t, err)
	fi, err := basis.NewIndex(final.Rows)
	require.NoError(t, err)
	e, err := trace.NewEngine(trace.Config{
		Maps: set, Initial: initial, Final: final,
		InitialIndex: ii, FinalIndex: fi,
		Transitions: transitions, Bins: trace.Bins{Count: 1},
	})
	require.NoError(t, err)
	return e
}

func TestFactorizeMatchesBruteForce(t *testing.T) {
	datasets := map[string]*basis.Dataset{
		"shared":          randomDataset(t, 23),
		"charge-exchange": chargeExchange(t, 29),
	}
	for name, d := range datasets {
		t.Run(name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(31))
			var all []state
			for _, sp := range basis.AllSpecies {
				for s, sh := range d.Shells {
					all = append(all, state{species: sp, shell: s, twoJz: sh.TwoJz})
				}
			}
			tr := trace.Transition{Initial: 0, Final: 1}
			nonzero := 0
			for _, body := range []int{1, 2} {
				e := testEngine(t, d, body, []trace.Transition{tr})
				acc := e.NewAccumulator()
				for trial := 0; trial < 400; trial++ {
					ops := randomString(rng, all, body)
					if ops == nil {
						continue
					}
					p, n, sign := factorize(ops, d.Initial.Z)
					acc.Reset()
					e.Trace(p, n, acc)
					got := sign * acc.Value(0, 0)
					want := bruteForce(t, d, ops, tr)
					require.InDelta(t, want, got, 1e-6, "ops %+v", ops)
					if math.Abs(want) > 1e-6 {
						nonzero++
					}
				}
			}
			assert.Positive(t, nonzero)
		})
	}
}

// randomString draws body creators then body annihilators conserving 2M,
// or nil when the draw repeats a state.
func randomString(rng *rand.Rand, all []state, body int) []op {
	var ops []op
	m := 0
	for i := 0; i < 2*body; i++ {
		s := all[rng.Intn(len(all))]
		create := i < body
		for _, prev := range ops {
			if prev.state == s && prev.create == create {
				return nil
			}
		}
		if create {
			m += s.twoJz
		} else {
			m -= s.twoJz
		}
		ops = append(ops, op{s, create})
	}
	if m != 0 {
		return nil
	}
	return ops
}
