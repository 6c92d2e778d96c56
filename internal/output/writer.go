// Package output writes density records to one file per transition.
package output

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/trdens-dev/trdens/internal/basis"
	"github.com/trdens-dev/trdens/internal/config"
	"github.com/trdens-dev/trdens/internal/density"
	"github.com/trdens-dev/trdens/internal/fileutil"
	"github.com/trdens-dev/trdens/internal/trace"
)

// FileName is <base>_J<J>_T<T>_<i>_<f> with .dens for text and .jsonl for
// JSONL output.
func FileName(base, format string, op density.Operator, t trace.Transition) string {
	ext := ".dens"
	if format == config.FormatJSONL {
		ext = ".jsonl"
	}
	return fmt.Sprintf("%s_J%d_T%d_%d_%d%s", base, op.J, op.T, t.Initial, t.Final, ext)
}

// Writer is a density.Sink that keeps one buffered file per transition open
// for the whole run.
type Writer struct {
	base      string
	format    string
	op        density.Operator
	orbits    []basis.Orbit
	spectator bool
	logger    *zap.Logger

	paths   []string
	files   []*os.File
	bufs    []*bufio.Writer
	encs    []*json.Encoder
	records []int
	line    []byte
}

type Options struct {
	Base      string
	Format    string
	Operator  density.Operator
	Orbits    []basis.Orbit
	Spectator bool
	Logger    *zap.Logger
}

func New(opts Options) (*Writer, error) {
	if opts.Format != config.FormatText && opts.Format != config.FormatJSONL {
		return nil, fmt.Errorf("unknown output format %q", opts.Format)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		base:      opts.Base,
		format:    opts.Format,
		op:        opts.Operator,
		orbits:    opts.Orbits,
		spectator: opts.Spectator,
		logger:    logger,
	}, nil
}

// Paths lists the files created by Open, in transition order.
func (w *Writer) Paths() []string { return w.paths }

func (w *Writer) Open(transitions []trace.Transition) error {
	for _, t := range transitions {
		path := FileName(w.base, w.format, w.op, t)
		if err := fileutil.EnsureParent(path); err != nil {
			w.abort()
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		f, err := os.Create(path)
		if err != nil {
			w.abort()
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		buf := bufio.NewWriterSize(f, 1<<16)
		w.paths = append(w.paths, path)
		w.files = append(w.files, f)
		w.bufs = append(w.bufs, buf)
		if w.format == config.FormatJSONL {
			w.encs = append(w.encs, fileutil.NewJSONLEncoder(buf))
		}
	}
	w.records = make([]int, len(transitions))
	return nil
}

func (w *Writer) abort() {
	for _, f := range w.files {
		f.Close()
	}
	w.files, w.bufs, w.encs = nil, nil, nil
}

type orbitRef struct {
	N    int `json:"n"`
	L    int `json:"l"`
	TwoJ int `json:"2j"`
}

type oneBodyLine struct {
	Orbits [2]orbitRef `json:"orbits"`
	Bin    *int        `json:"bin,omitempty"`
	Value  float64     `json:"value"`
}

type twoBodyLine struct {
	Orbits [4]orbitRef `json:"orbits"`
	TwoJ12 int         `json:"2j12"`
	TwoT12 int         `json:"2t12"`
	TwoJ34 int         `json:"2j34"`
	TwoT34 int         `json:"2t34"`
	Bin    *int        `json:"bin,omitempty"`
	Value  float64     `json:"value"`
}

func (w *Writer) ref(i int) orbitRef {
	o := w.orbits[i]
	return orbitRef{N: o.N, L: o.L, TwoJ: o.TwoJ}
}

func (w *Writer) bin(b int) *int {
	if !w.spectator {
		return nil
	}
	return &b
}

// OneBody writes "n l j n l j [bin] value", j as a half-integer.
func (w *Writer) OneBody(t int, r density.OneBodyRecord) error {
	w.records[t]++
	if w.format == config.FormatJSONL {
		return w.encs[t].Encode(oneBodyLine{
			Orbits: [2]orbitRef{w.ref(r.Orbits[0]), w.ref(r.Orbits[1])},
			Bin:    w.bin(r.Bin),
			Value:  r.Value,
		})
	}
	b := w.line[:0]
	for _, i := range r.Orbits {
		o := w.orbits[i]
		b = strconv.AppendInt(b, int64(o.N), 10)
		b = append(b, ' ')
		b = strconv.AppendInt(b, int64(o.L), 10)
		b = append(b, ' ')
		b = strconv.AppendFloat(b, float64(o.TwoJ)/2, 'g', -1, 64)
		b = append(b, ' ')
	}
	if w.spectator {
		b = strconv.AppendInt(b, int64(r.Bin), 10)
		b = append(b, ' ')
	}
	b = strconv.AppendFloat(b, r.Value, 'g', -1, 64)
	b = append(b, '\n')
	w.line = b
	_, err := w.bufs[t].Write(b)
	return err
}

// TwoBody writes "label,2j,label,2j,2J12,2T12,label,2j,label,2j,2J34,2T34,[bin,]value"
// with label = 2n+l.
func (w *Writer) TwoBody(t int, r density.TwoBodyRecord) error {
	w.records[t]++
	if w.format == config.FormatJSONL {
		var refs [4]orbitRef
		for k, i := range r.Orbits {
			refs[k] = w.ref(i)
		}
		return w.encs[t].Encode(twoBodyLine{
			Orbits: refs,
			TwoJ12: r.TwoJ12, TwoT12: r.TwoT12,
			TwoJ34: r.TwoJ34, TwoT34: r.TwoT34,
			Bin:   w.bin(r.Bin),
			Value: r.Value,
		})
	}
	b := w.line[:0]
	pair := func(a, c, twoJ, twoT int) {
		for _, i := range [2]int{a, c} {
			o := w.orbits[i]
			b = strconv.AppendInt(b, int64(o.Label()), 10)
			b = append(b, ',')
			b = strconv.AppendInt(b, int64(o.TwoJ), 10)
			b = append(b, ',')
		}
		b = strconv.AppendInt(b, int64(twoJ), 10)
		b = append(b, ',')
		b = strconv.AppendInt(b, int64(twoT), 10)
		b = append(b, ',')
	}
	pair(r.Orbits[0], r.Orbits[1], r.TwoJ12, r.TwoT12)
	pair(r.Orbits[2], r.Orbits[3], r.TwoJ34, r.TwoT34)
	if w.spectator {
		b = strconv.AppendInt(b, int64(r.Bin), 10)
		b = append(b, ',')
	}
	b = strconv.AppendFloat(b, r.Value, 'g', -1, 64)
	b = append(b, '\n')
	w.line = b
	_, err := w.bufs[t].Write(b)
	return err
}

// Close flushes and closes every file, reporting all failures.
func (w *Writer) Close() error {
	var errs []error
	for i, f := range w.files {
		if err := w.bufs[i].Flush(); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush %s: %w", w.paths[i], err))
		}
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", w.paths[i], err))
		}
		w.logger.Info("wrote density file", zap.String("path", w.paths[i]), zap.Int("records", w.records[i]))
	}
	w.files, w.bufs, w.encs = nil, nil, nil
	return errors.Join(errs...)
}
