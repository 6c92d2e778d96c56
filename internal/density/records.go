package density

import "github.com/trdens-dev/trdens/internal/trace"

// OneBodyRecord is one reduced element <f||[a†(o1) ã(o2)]^{J,T}||i>.
type OneBodyRecord struct {
	Orbits [2]int
	// Bin is the absolute spectator quanta; meaningful only for binned runs.
	Bin   int
	Value float64
}

// TwoBodyRecord is one reduced element with pair couplings (J12,T12) and
// (J34,T34); angular momenta are doubled.
type TwoBodyRecord struct {
	Orbits [4]int
	TwoJ12 int
	TwoT12 int
	TwoJ34 int
	TwoT34 int
	Bin    int
	Value  float64
}

// Sink receives records in a deterministic order. Open is called once,
// after every fatal check has passed.
type Sink interface {
	Open(transitions []trace.Transition) error
	OneBody(transition int, r OneBodyRecord) error
	TwoBody(transition int, r TwoBodyRecord) error
	Close() error
}

// MemorySink keeps every record in memory.
type MemorySink struct {
	Transitions []trace.Transition
	One         [][]OneBodyRecord
	Two         [][]TwoBodyRecord
	Closed      bool
}

func (m *MemorySink) Open(transitions []trace.Transition) error {
	m.Transitions = append([]trace.Transition(nil), transitions...)
	m.One = make([][]OneBodyRecord, len(transitions))
	m.Two = make([][]TwoBodyRecord, len(transitions))
	return nil
}

func (m *MemorySink) OneBody(t int, r OneBodyRecord) error {
	m.One[t] = append(m.One[t], r)
	return nil
}

func (m *MemorySink) TwoBody(t int, r TwoBodyRecord) error {
	m.Two[t] = append(m.Two[t], r)
	return nil
}

func (m *MemorySink) Close() error {
	m.Closed = true
	return nil
}
