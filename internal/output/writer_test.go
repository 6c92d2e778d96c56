package output

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/trdens-dev/trdens/internal/basis"
	"github.com/trdens-dev/trdens/internal/config"
	"github.com/trdens-dev/trdens/internal/density"
	"github.com/trdens-dev/trdens/internal/trace"
)

var _ density.Sink = (*Writer)(nil)

var sdOrbits = []basis.Orbit{
	{N: 0, L: 2, TwoJ: 5},
	{N: 1, L: 0, TwoJ: 1},
	{N: 0, L: 2, TwoJ: 3},
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestFileName(t *testing.T) {
	op := density.Operator{Body: 2, J: 0, T: 1}
	tr := trace.Transition{Initial: 0, Final: 3}
	if got := FileName("out/ne20", config.FormatText, op, tr); got != "out/ne20_J0_T1_0_3.dens" {
		t.Fatalf("text name = %q", got)
	}
	if got := FileName("out/ne20", config.FormatJSONL, op, tr); got != "out/ne20_J0_T1_0_3.jsonl" {
		t.Fatalf("jsonl name = %q", got)
	}
}

func TestTextRecords(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "nested", "run")
	w, err := New(Options{Base: base, Format: config.FormatText, Operator: density.Operator{Body: 2}, Orbits: sdOrbits})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	transitions := []trace.Transition{{Initial: 0, Final: 0}, {Initial: 0, Final: 1}}
	if err := w.Open(transitions); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.TwoBody(1, density.TwoBodyRecord{Orbits: [4]int{0, 1, 2, 2}, TwoJ12: 4, TwoT12: 2, TwoJ34: 0, TwoT34: 0, Value: -0.125}); err != nil {
		t.Fatalf("TwoBody: %v", err)
	}
	if err := w.OneBody(0, density.OneBodyRecord{Orbits: [2]int{0, 1}, Value: 1.5}); err != nil {
		t.Fatalf("OneBody: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	paths := w.Paths()
	if len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}
	if got := readLines(t, paths[1]); len(got) != 1 || got[0] != "2,5,2,1,4,2,2,3,2,3,0,0,-0.125" {
		t.Fatalf("two-body lines = %q", got)
	}
	if got := readLines(t, paths[0]); len(got) != 1 || got[0] != "0 2 2.5 1 0 0.5 1.5" {
		t.Fatalf("one-body lines = %q", got)
	}
}

func TestSpectatorColumn(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Options{Base: filepath.Join(dir, "spec"), Format: config.FormatText, Operator: density.Operator{Body: 1}, Orbits: sdOrbits, Spectator: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Open([]trace.Transition{{Initial: 0, Final: 0}}); err != nil {
		t.Fatal(err)
	}
	if err := w.OneBody(0, density.OneBodyRecord{Orbits: [2]int{2, 2}, Bin: 4, Value: 0.25}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if got := readLines(t, w.Paths()[0]); got[0] != "0 2 1.5 0 2 1.5 4 0.25" {
		t.Fatalf("line = %q", got[0])
	}
}

func TestJSONLRecords(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Options{Base: filepath.Join(dir, "run"), Format: config.FormatJSONL, Operator: density.Operator{Body: 2, J: 2}, Orbits: sdOrbits})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Open([]trace.Transition{{Initial: 1, Final: 0}}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		rec := density.TwoBodyRecord{Orbits: [4]int{i, i, 0, 0}, TwoJ12: 0, TwoT12: 2, TwoJ34: 4, TwoT34: 2, Value: float64(i) + 0.5}
		if err := w.TwoBody(0, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if !strings.HasSuffix(w.Paths()[0], "run_J2_T0_1_0.jsonl") {
		t.Fatalf("path = %s", w.Paths()[0])
	}
	f, err := os.Open(w.Paths()[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		var line twoBodyLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("line %d: %v", n, err)
		}
		if line.Bin != nil {
			t.Fatalf("unbinned run wrote a bin")
		}
		if line.Orbits[0] != (orbitRef{N: sdOrbits[n].N, L: sdOrbits[n].L, TwoJ: sdOrbits[n].TwoJ}) || line.TwoJ34 != 4 {
			t.Fatalf("line %d = %+v", n, line)
		}
		n++
	}
	if n != 3 {
		t.Fatalf("read %d lines, want 3", n)
	}
}

func TestUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "csv"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestOpenNamesUncreatableFile(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "run")
	op := density.Operator{Body: 1}
	blocked := FileName(base, config.FormatText, op, trace.Transition{Initial: 0, Final: 1})
	if err := os.Mkdir(blocked, 0755); err != nil {
		t.Fatal(err)
	}

	w, err := New(Options{Base: base, Format: config.FormatText, Operator: op, Orbits: sdOrbits})
	if err != nil {
		t.Fatal(err)
	}
	err = w.Open([]trace.Transition{{Initial: 0, Final: 0}, {Initial: 0, Final: 1}})
	if err == nil {
		t.Fatal("expected Open to fail on a directory in the way")
	}
	if !strings.Contains(err.Error(), "failed to create "+blocked) {
		t.Fatalf("error %q does not name %s", err, blocked)
	}
}
