package cli

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const progressInterval = 100 * time.Millisecond

type unitProgressReporter struct {
	enabled  bool
	label    string
	start    time.Time
	lastDraw time.Time
	spinner  int
	lastLen  int
}

func newUnitProgressReporter(label string, quiet bool) *unitProgressReporter {
	stat, err := os.Stderr.Stat()
	enabled := err == nil && (stat.Mode()&os.ModeCharDevice) != 0 && !quiet
	return &unitProgressReporter{
		enabled: enabled,
		label:   label,
		start:   time.Now(),
	}
}

// Update redraws at most every progressInterval, except for the last unit.
func (r *unitProgressReporter) Update(done, total int) {
	if !r.enabled {
		return
	}
	now := time.Now()
	if done < total && now.Sub(r.lastDraw) < progressInterval {
		return
	}
	r.lastDraw = now
	frames := [4]string{"-", "\\", "|", "/"}
	frame := frames[r.spinner%len(frames)]
	r.spinner++

	status := fmt.Sprintf("%s %s %d/%d orbit units", frame, r.label, done, total)
	if total > 0 {
		status += fmt.Sprintf(" (%d%%)", done*100/total)
	}
	r.printStatus(status)
}

func (r *unitProgressReporter) Done(units int) {
	if !r.enabled {
		return
	}
	elapsed := time.Since(r.start).Round(time.Millisecond)
	status := fmt.Sprintf("%s complete (%d orbit units in %s)", r.label, units, elapsed)
	r.printStatus(status)
	fmt.Fprintln(os.Stderr)
}

func (r *unitProgressReporter) printStatus(status string) {
	if r.lastLen > len(status) {
		status = status + strings.Repeat(" ", r.lastLen-len(status))
	}
	r.lastLen = len(status)
	fmt.Fprintf(os.Stderr, "\r%s", status)
}
