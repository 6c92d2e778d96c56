package basis

import (
	"fmt"
	"math"
	"math/bits"
)

// Index maps (proton rank, neutron rank) to a basis row. Entries live in one
// arena sorted by bucket; a bucket is the contiguous range
// offsets[b]..offsets[b+1] and is scanned with an exact key compare.
type Index struct {
	shift   uint
	offsets []uint32
	keys    []uint64
	rows    []uint32
}

func indexKey(p, n uint32) uint64 { return uint64(p)<<32 | uint64(n) }

func (ix *Index) bucket(key uint64) uint64 {
	// Fibonacci hashing over the composite key.
	return (key * 0x9E3779B97F4A7C15) >> ix.shift
}

// NewIndex builds the index over rows. A repeated key is an error.
func NewIndex(rows []Row) (*Index, error) {
	if uint64(len(rows)) >= math.MaxUint32 {
		return nil, fmt.Errorf("%d basis rows exceed index capacity", len(rows))
	}
	logSize := bits.Len(uint(len(rows)))
	if logSize < 1 {
		logSize = 1
	}
	ix := &Index{shift: uint(64 - logSize)}
	nBuckets := 1 << uint(logSize)

	ix.offsets = make([]uint32, nBuckets+1)
	for _, r := range rows {
		ix.offsets[ix.bucket(indexKey(r.P, r.N))+1]++
	}
	for b := 0; b < nBuckets; b++ {
		ix.offsets[b+1] += ix.offsets[b]
	}

	ix.keys = make([]uint64, len(rows))
	ix.rows = make([]uint32, len(rows))
	cursor := append([]uint32(nil), ix.offsets[:nBuckets]...)
	for i, r := range rows {
		key := indexKey(r.P, r.N)
		b := ix.bucket(key)
		for j := ix.offsets[b]; j < cursor[b]; j++ {
			if ix.keys[j] == key {
				return nil, fmt.Errorf("%w: rows %d and %d share (p=%d, n=%d)", ErrDuplicateKey, ix.rows[j], i, r.P, r.N)
			}
		}
		ix.keys[cursor[b]] = key
		ix.rows[cursor[b]] = uint32(i)
		cursor[b]++
	}
	return ix, nil
}

// Lookup returns the row holding (p, n).
func (ix *Index) Lookup(p, n uint32) (uint32, bool) {
	key := indexKey(p, n)
	b := ix.bucket(key)
	for j := ix.offsets[b]; j < ix.offsets[b+1]; j++ {
		if ix.keys[j] == key {
			return ix.rows[j], true
		}
	}
	return 0, false
}

// LookupSpecies resolves a row from the rank of species s and the rank of
// the other species.
func (ix *Index) LookupSpecies(s Species, rank, other uint32) (uint32, bool) {
	if s == Proton {
		return ix.Lookup(rank, other)
	}
	return ix.Lookup(other, rank)
}

func (ix *Index) Len() int { return len(ix.rows) }

// MaxChain reports the longest bucket.
func (ix *Index) MaxChain() int {
	longest := 0
	for b := 0; b+1 < len(ix.offsets); b++ {
		if n := int(ix.offsets[b+1] - ix.offsets[b]); n > longest {
			longest = n
		}
	}
	return longest
}
