package density

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trdens-dev/trdens/internal/basis"
	"github.com/trdens-dev/trdens/internal/jumps"
	"github.com/trdens-dev/trdens/internal/trace"
)

// Result summarizes a finished run.
type Result struct {
	Mode      string         `json:"mode"`
	Units     int            `json:"units"`
	Records   []int          `json:"records"`
	Traces    map[string]int `json:"traces"`
	Hits      int            `json:"hits"`
	JumpBytes int            `json:"jump_bytes"`
	Bins      trace.Bins     `json:"bins"`
	Elapsed   time.Duration  `json:"elapsed_ns"`
}

// Compute prepares and executes a run, streaming records into sink.
func Compute(ctx context.Context, d *basis.Dataset, req Request, sink Sink) (*Result, error) {
	plan, err := Prepare(d, req)
	if err != nil {
		return nil, err
	}
	return plan.Execute(ctx, sink)
}

// Execute builds the indexes and jump maps, opens sink and runs every orbit
// unit. Sink is closed before returning.
func (p *Plan) Execute(ctx context.Context, sink Sink) (res *Result, err error) {
	started := time.Now()
	req := p.Request
	logger := req.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	d := p.Dataset
	initial, final := d.Sides()

	set, err := jumps.Build(d, jumps.Options{
		Body:       req.Operator.Body,
		Spectator:  req.Spectator,
		Truncate:   req.Truncate,
		ForceSplit: req.ForceSplit,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build jump maps: %w", err)
	}
	ii, err := basis.NewIndex(initial.Rows)
	if err != nil {
		return nil, fmt.Errorf("failed to index initial basis: %w", err)
	}
	fi := ii
	if final != initial {
		if fi, err = basis.NewIndex(final.Rows); err != nil {
			return nil, fmt.Errorf("failed to index final basis: %w", err)
		}
	}
	logger.Info("indexed bases",
		zap.Int("initial_rows", ii.Len()),
		zap.Int("final_rows", fi.Len()),
		zap.Int("initial_max_chain", ii.MaxChain()),
	)

	bins := trace.Bins{Count: 1}
	if req.Spectator {
		bins = trace.SpectatorBins(d.Catalog(), initial, req.Operator.Body)
	}
	engine, err := trace.NewEngine(trace.Config{
		Maps:         set,
		Initial:      initial,
		Final:        final,
		InitialIndex: ii,
		FinalIndex:   fi,
		Transitions:  req.Transitions,
		Bins:         bins,
	})
	if err != nil {
		return nil, err
	}

	r := newRunner(p, engine)
	if err := sink.Open(req.Transitions); err != nil {
		return nil, fmt.Errorf("failed to open output: %w", err)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output: %w", cerr)
			res = nil
		}
	}()

	logger.Info("starting density loop",
		zap.String("operator", req.Operator.String()),
		zap.Int("units", len(r.units)),
		zap.Int("transitions", len(req.Transitions)),
		zap.Int("bins", bins.Count),
	)
	stats, err := r.run(ctx, sink, logger)
	if err != nil {
		return nil, err
	}

	res = &Result{
		Mode:      set.Mode.String(),
		Units:     len(r.units),
		Records:   r.records,
		Traces:    make(map[string]int),
		Hits:      stats.Hits(),
		JumpBytes: set.Of(basis.Proton).Bytes() + set.Of(basis.Neutron).Bytes(),
		Bins:      bins,
		Elapsed:   time.Since(started),
	}
	for _, t := range trace.Topologies() {
		if n := stats.Calls(t); n > 0 {
			res.Traces[t.String()] = n
		}
	}
	logger.Info("density loop finished", zap.Ints("records", r.records), zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// runner holds everything an orbit unit needs; it is read-only while units run.
type runner struct {
	plan    *Plan
	engine  *trace.Engine
	orbits  []basis.Orbit
	states  [][]state
	protons int
	bins    trace.Bins
	units   [][4]int
	records []int
}

func newRunner(p *Plan, engine *trace.Engine) *runner {
	d := p.Dataset
	r := &runner{
		plan:    p,
		engine:  engine,
		orbits:  d.Orbits,
		protons: d.Initial.Z,
		bins:    engine.Bins(),
		records: make([]int, len(p.Request.Transitions)),
	}
	for _, shells := range d.OrbitShells() {
		var list []state
		for _, sp := range basis.AllSpecies {
			for _, s := range shells {
				list = append(list, state{species: sp, shell: s, twoJz: d.Shells[s].TwoJz})
			}
		}
		r.states = append(r.states, list)
	}
	n := len(d.Orbits)
	if p.Request.Operator.Body == 1 {
		for o1 := 0; o1 < n; o1++ {
			for o2 := 0; o2 < n; o2++ {
				r.units = append(r.units, [4]int{o1, o2})
			}
		}
		return r
	}
	for o1 := 0; o1 < n; o1++ {
		for o2 := 0; o2 <= o1; o2++ {
			for o3 := 0; o3 < n; o3++ {
				for o4 := 0; o4 <= o3; o4++ {
					r.units = append(r.units, [4]int{o1, o2, o3, o4})
				}
			}
		}
	}
	return r
}

type worker struct {
	acc   *trace.Accumulator
	store []float64
}

type unitOutput struct {
	one []taggedOne
	two []taggedTwo
}

type taggedOne struct {
	t int
	r OneBodyRecord
}

type taggedTwo struct {
	t int
	r TwoBodyRecord
}

func (r *runner) unit(i int, w *worker) unitOutput {
	u := r.units[i]
	if r.plan.Request.Operator.Body == 1 {
		return r.oneBody(u[0], u[1], w)
	}
	return r.twoBody(u, w)
}

// run evaluates units in chunks; within a chunk, workers take interleaved
// units and results are emitted in unit order.
func (r *runner) run(ctx context.Context, sink Sink, logger *zap.Logger) (*trace.Accumulator, error) {
	workers := r.plan.Request.Workers
	if workers < 1 {
		workers = 1
	}
	pool := make([]*worker, workers)
	for i := range pool {
		pool[i] = &worker{acc: r.engine.NewAccumulator()}
	}
	total := len(r.units)
	chunk := workers * 8
	for start := 0; start < total; start += chunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+chunk, total)
		outs := make([]unitOutput, end-start)
		if workers == 1 {
			for i := start; i < end; i++ {
				outs[i-start] = r.unit(i, pool[0])
			}
		} else {
			g, gctx := errgroup.WithContext(ctx)
			for wi, w := range pool {
				wi, w := wi, w
				g.Go(func() error {
					for i := start + wi; i < end; i += workers {
						if err := gctx.Err(); err != nil {
							return err
						}
						outs[i-start] = r.unit(i, w)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}
		}
		for i, out := range outs {
			if err := r.emit(sink, out); err != nil {
				return nil, err
			}
			logger.Debug("orbit unit done", zap.Ints("orbits", r.units[start+i][:]), zap.Int("one", len(out.one)), zap.Int("two", len(out.two)))
			if r.plan.Request.Progress != nil {
				r.plan.Request.Progress(start+i+1, total)
			}
		}
	}

	stats := r.engine.NewAccumulator()
	for _, w := range pool {
		stats.Merge(w.acc)
	}
	return stats, nil
}

func (r *runner) emit(sink Sink, out unitOutput) error {
	for _, o := range out.one {
		if err := sink.OneBody(o.t, o.r); err != nil {
			return fmt.Errorf("failed to write one-body record: %w", err)
		}
		r.records[o.t]++
	}
	for _, o := range out.two {
		if err := sink.TwoBody(o.t, o.r); err != nil {
			return fmt.Errorf("failed to write two-body record: %w", err)
		}
		r.records[o.t]++
	}
	return nil
}

// parityAllowed reports whether orbitals of the given total parity can
// connect the two bases.
func (r *runner) parityAllowed(parity int) bool {
	return r.plan.Parity == 0 || parity == r.plan.Parity
}
