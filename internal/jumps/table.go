// Package jumps precomputes the results of removing one or two particles
// from every determinant of a species, bucketed by (parity, 2M sector,
// annihilated orbital or ordered pair).
package jumps

import "unsafe"

// Jump is one annihilation result. Quanta is the excitation carried by the
// initial-side determinant left after annihilation; it is zero unless the
// set was built with spectator binning.
type Jump struct {
	Origin uint32
	Dest   uint32
	Phase  int8
	Quanta int16
}

// Table is an arena of jumps. Bucket (sector, key) is
// records[offsets[i]:offsets[i+1]] with i = sector*keys + key.
type Table struct {
	keys    int
	offsets []int
	records []Jump
}

func (t *Table) Bucket(sector, key int) []Jump {
	if t == nil {
		return nil
	}
	i := sector*t.keys + key
	if i < 0 || i+1 >= len(t.offsets) {
		return nil
	}
	return t.records[t.offsets[i]:t.offsets[i+1]]
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}

// Bytes approximates the resident size of the table.
func (t *Table) Bytes() int {
	if t == nil {
		return 0
	}
	return len(t.records)*int(unsafe.Sizeof(Jump{})) + len(t.offsets)*int(unsafe.Sizeof(int(0)))
}

// tableBuilder fills a Table in two walks: the first counts bucket sizes,
// the second places records.
type tableBuilder struct {
	keys    int
	offsets []int
	cursor  []int
	records []Jump
	filling bool
}

func newTableBuilder(sectors, keys int) *tableBuilder {
	return &tableBuilder{keys: keys, offsets: make([]int, sectors*keys+1)}
}

func (b *tableBuilder) add(sector, key int, j Jump) {
	if b == nil {
		return
	}
	i := sector*b.keys + key
	if !b.filling {
		b.offsets[i+1]++
		return
	}
	b.records[b.cursor[i]] = j
	b.cursor[i]++
}

func (b *tableBuilder) startFill() {
	if b == nil {
		return
	}
	for i := 1; i < len(b.offsets); i++ {
		b.offsets[i] += b.offsets[i-1]
	}
	b.records = make([]Jump, b.offsets[len(b.offsets)-1])
	b.cursor = append([]int(nil), b.offsets[:len(b.offsets)-1]...)
	b.filling = true
}

func (b *tableBuilder) table() *Table {
	if b == nil {
		return nil
	}
	return &Table{keys: b.keys, offsets: b.offsets, records: b.records}
}

// Reverse maps (intermediate rank, annihilated key) to the final-side
// determinant that produces it. Entries hold phase*rank; 0 is a miss.
type Reverse struct {
	keys    int
	entries []int32
}

func newReverse(intermediates uint32, keys int) *Reverse {
	return &Reverse{keys: keys, entries: make([]int32, int(intermediates)*keys)}
}

func (r *Reverse) set(inter uint32, key int, final uint32, phase int) {
	r.entries[int(inter-1)*r.keys+key] = int32(final) * int32(phase)
}

// Lookup returns the final rank and phase, or (0, 0).
func (r *Reverse) Lookup(inter uint32, key int) (uint32, int) {
	if r == nil || inter == 0 {
		return 0, 0
	}
	i := int(inter-1)*r.keys + key
	if i >= len(r.entries) {
		return 0, 0
	}
	v := r.entries[i]
	switch {
	case v > 0:
		return uint32(v), 1
	case v < 0:
		return uint32(-v), -1
	default:
		return 0, 0
	}
}

func (r *Reverse) Bytes() int {
	if r == nil {
		return 0
	}
	return len(r.entries) * 4
}
