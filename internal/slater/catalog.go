package slater

import (
	"math/bits"
	"sort"
)

// Catalog holds the per-shell quantum numbers summed over a determinant.
type Catalog struct {
	TwoJz  []int
	Parity []int // +1 or -1
	Quanta []int // 2n+l
	Weight []int
}

func (c *Catalog) Len() int { return len(c.TwoJz) }

// TwoM is twice the total angular-momentum projection of mask.
func (c *Catalog) TwoM(mask uint64) int {
	sum := 0
	for m := mask; m != 0; m &= m - 1 {
		sum += c.TwoJz[bits.TrailingZeros64(m)]
	}
	return sum
}

func (c *Catalog) ParityOf(mask uint64) int {
	p := 1
	for m := mask; m != 0; m &= m - 1 {
		p *= c.Parity[bits.TrailingZeros64(m)]
	}
	return p
}

func (c *Catalog) QuantaOf(mask uint64) int {
	sum := 0
	for m := mask; m != 0; m &= m - 1 {
		sum += c.Quanta[bits.TrailingZeros64(m)]
	}
	return sum
}

func (c *Catalog) WeightOf(mask uint64) int {
	sum := 0
	for m := mask; m != 0; m &= m - 1 {
		sum += c.Weight[bits.TrailingZeros64(m)]
	}
	return sum
}

// Classify returns 2M, parity, quanta and weight of mask in one pass.
func (c *Catalog) Classify(mask uint64) (twoM, parity, quanta, weight int) {
	parity = 1
	for m := mask; m != 0; m &= m - 1 {
		o := bits.TrailingZeros64(m)
		twoM += c.TwoJz[o]
		parity *= c.Parity[o]
		quanta += c.Quanta[o]
		weight += c.Weight[o]
	}
	return twoM, parity, quanta, weight
}

// TwoMRange is the smallest and largest 2M reachable with n particles.
func (c *Catalog) TwoMRange(n int) (int, int) {
	return extremeSums(c.TwoJz, n)
}

// QuantaRange is the smallest and largest quanta reachable with n particles.
func (c *Catalog) QuantaRange(n int) (int, int) {
	return extremeSums(c.Quanta, n)
}

func extremeSums(values []int, n int) (int, int) {
	if n <= 0 {
		return 0, 0
	}
	if n > len(values) {
		n = len(values)
	}
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	lo, hi := 0, 0
	for i := 0; i < n; i++ {
		lo += sorted[i]
		hi += sorted[len(sorted)-1-i]
	}
	return lo, hi
}

// WeightRange is the smallest and largest excitation weight reachable with n particles.
func (c *Catalog) WeightRange(n int) (int, int) {
	return extremeSums(c.Weight, n)
}
