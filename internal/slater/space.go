// Package slater ranks single-species Slater determinants.
//
// A determinant over ns single-particle shells with np particles is an
// occupation mask with np bits set. Ranks are 1-based and follow the
// lexicographic order of the ascending occupied-shell tuple, so the first
// rank is {0,1,...,np-1} and the last is {ns-np,...,ns-1}. Rank 0 means
// "no such determinant".
package slater

import (
	"fmt"
	"math"
	"math/bits"
)

// MaxShells is the largest shell count a single-species mask can hold.
const MaxShells = 64

var binomial = buildBinomial()

func buildBinomial() *[MaxShells + 1][MaxShells + 1]uint64 {
	var t [MaxShells + 1][MaxShells + 1]uint64
	for n := 0; n <= MaxShells; n++ {
		t[n][0] = 1
		for k := 1; k <= n; k++ {
			t[n][k] = t[n-1][k-1] + t[n-1][k]
		}
	}
	return &t
}

// Choose returns C(n, k), or 0 when k is outside [0, n].
func Choose(n, k int) uint64 {
	if n < 0 || k < 0 || k > n || n > MaxShells {
		return 0
	}
	return binomial[n][k]
}

// Space is the set of np-particle determinants over ns shells.
type Space struct {
	shells    int
	particles int
	size      uint32
}

func NewSpace(shells, particles int) (*Space, error) {
	if shells < 0 || shells > MaxShells {
		return nil, fmt.Errorf("shell count %d outside [0, %d]", shells, MaxShells)
	}
	if particles < 0 || particles > shells {
		return nil, fmt.Errorf("particle count %d outside [0, %d]", particles, shells)
	}
	size := Choose(shells, particles)
	if size > math.MaxInt32 {
		return nil, fmt.Errorf("determinant space C(%d,%d)=%d exceeds %d", shells, particles, size, math.MaxInt32)
	}
	return &Space{shells: shells, particles: particles, size: uint32(size)}, nil
}

func (s *Space) Shells() int    { return s.shells }
func (s *Space) Particles() int { return s.particles }
func (s *Space) Size() uint32   { return s.size }

// Rank returns the rank of mask, or 0 when mask does not belong to the space.
func (s *Space) Rank(mask uint64) uint32 {
	return rankOf(mask, s.shells, s.particles)
}

func rankOf(mask uint64, shells, particles int) uint32 {
	if bits.OnesCount64(mask) != particles {
		return 0
	}
	if shells < MaxShells && mask>>uint(shells) != 0 {
		return 0
	}
	r := Choose(shells, particles)
	k := 0
	for m := mask; m != 0; m &= m - 1 {
		o := bits.TrailingZeros64(m)
		r -= Choose(shells-1-o, particles-k)
		k++
	}
	return uint32(r)
}

// Mask returns the occupation mask of rank.
func (s *Space) Mask(rank uint32) (uint64, bool) {
	if rank == 0 || rank > s.size {
		return 0, false
	}
	rem := uint64(s.size - rank)
	c := s.shells - 1
	var mask uint64
	for k := 0; k < s.particles; k++ {
		need := s.particles - k
		for c >= 0 && Choose(c, need) > rem {
			c--
		}
		if c < 0 {
			return 0, false
		}
		rem -= Choose(c, need)
		mask |= 1 << uint(s.shells-1-c)
		c--
	}
	return mask, true
}

// Occupation returns the ascending occupied shells of rank.
func (s *Space) Occupation(rank uint32) []int {
	mask, ok := s.Mask(rank)
	if !ok {
		return nil
	}
	return Orbitals(mask)
}

// RankOf returns the rank of an occupation list in any order. Duplicates or
// out-of-range shells yield 0.
func (s *Space) RankOf(occupation []int) uint32 {
	var mask uint64
	for _, o := range occupation {
		if o < 0 || o >= s.shells || mask&(1<<uint(o)) != 0 {
			return 0
		}
		mask |= 1 << uint(o)
	}
	return s.Rank(mask)
}

// Annihilate removes orbital from the determinant of rank. The result is a
// rank in the (np-1)-particle space over the same shells. An unoccupied
// orbital yields (0, 0).
func (s *Space) Annihilate(rank uint32, orbital int) (uint32, int) {
	mask, ok := s.Mask(rank)
	if !ok {
		return 0, 0
	}
	next, phase := AnnihilateMask(mask, orbital)
	if phase == 0 {
		return 0, 0
	}
	return rankOf(next, s.shells, s.particles-1), phase
}

// Create adds orbital to the determinant of rank. The result is a rank in the
// (np+1)-particle space. An occupied orbital yields (0, 0).
func (s *Space) Create(rank uint32, orbital int) (uint32, int) {
	mask, ok := s.Mask(rank)
	if !ok || orbital < 0 || orbital >= s.shells {
		return 0, 0
	}
	next, phase := CreateMask(mask, orbital)
	if phase == 0 {
		return 0, 0
	}
	return rankOf(next, s.shells, s.particles+1), phase
}

// Each calls fn for every rank in ascending order together with its mask.
func (s *Space) Each(fn func(rank uint32, mask uint64)) {
	if s.size == 0 {
		return
	}
	occ := make([]int, s.particles)
	for i := range occ {
		occ[i] = i
	}
	for rank := uint32(1); ; rank++ {
		var mask uint64
		for _, o := range occ {
			mask |= 1 << uint(o)
		}
		fn(rank, mask)
		if !nextCombination(occ, s.shells) {
			return
		}
	}
}

func nextCombination(occ []int, shells int) bool {
	np := len(occ)
	k := np - 1
	for k >= 0 && occ[k] == shells-np+k {
		k--
	}
	if k < 0 {
		return false
	}
	occ[k]++
	for j := k + 1; j < np; j++ {
		occ[j] = occ[j-1] + 1
	}
	return true
}

// Phase is the fermion sign of moving an operator on orbital past the occupied
// shells below it.
func Phase(mask uint64, orbital int) int {
	below := mask & (uint64(1)<<uint(orbital) - 1)
	if bits.OnesCount64(below)&1 == 1 {
		return -1
	}
	return 1
}

// AnnihilateMask applies a_orbital to mask. Phase 0 means the orbital was empty.
func AnnihilateMask(mask uint64, orbital int) (uint64, int) {
	bit := uint64(1) << uint(orbital)
	if mask&bit == 0 {
		return 0, 0
	}
	return mask &^ bit, Phase(mask, orbital)
}

// CreateMask applies a†_orbital to mask. Phase 0 means the orbital was occupied.
func CreateMask(mask uint64, orbital int) (uint64, int) {
	bit := uint64(1) << uint(orbital)
	if mask&bit != 0 {
		return 0, 0
	}
	return mask | bit, Phase(mask, orbital)
}

// Orbitals lists the set bits of mask in ascending order.
func Orbitals(mask uint64) []int {
	out := make([]int, 0, bits.OnesCount64(mask))
	for m := mask; m != 0; m &= m - 1 {
		out = append(out, bits.TrailingZeros64(m))
	}
	return out
}
