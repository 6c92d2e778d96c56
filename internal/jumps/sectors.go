package jumps

// Sectors partitions one species' initial-side determinants by parity and
// 2M. The 2M window is folded against the other species so only sectors
// that can pair into the total projection are kept.
type Sectors struct {
	TwoMMin int
	TwoMMax int
	// TotalTwoM and TotalParity describe the whole basis; TotalParity 0
	// means both parities occur.
	TotalTwoM   int
	TotalParity int
}

func (s Sectors) width() int {
	if s.TwoMMax < s.TwoMMin {
		return 0
	}
	return (s.TwoMMax-s.TwoMMin)/2 + 1
}

func (s Sectors) Len() int { return 2 * s.width() }

// Index returns the sector of (parity, 2M).
func (s Sectors) Index(parity, twoM int) (int, bool) {
	if twoM < s.TwoMMin || twoM > s.TwoMMax || (twoM-s.TwoMMin)%2 != 0 {
		return 0, false
	}
	slot := 0
	if parity > 0 {
		slot = 1
	}
	return slot*s.width() + (twoM-s.TwoMMin)/2, true
}

// Key is the inverse of Index.
func (s Sectors) Key(i int) (parity, twoM int) {
	w := s.width()
	parity = -1
	if i >= w {
		parity = 1
		i -= w
	}
	return parity, s.TwoMMin + 2*i
}

// Partners lists the sectors of other that pair with sector i of s.
func (s Sectors) Partners(i int, other Sectors) []int {
	parity, twoM := s.Key(i)
	rest := s.TotalTwoM - twoM
	out := make([]int, 0, 2)
	for _, p := range []int{-1, 1} {
		if s.TotalParity != 0 && p != parity*s.TotalParity {
			continue
		}
		if j, ok := other.Index(p, rest); ok {
			out = append(out, j)
		}
	}
	return out
}

func fold(ownMin, ownMax, otherMin, otherMax, total int) (int, int) {
	lo, hi := ownMin, ownMax
	if total-otherMax > lo {
		lo = total - otherMax
	}
	if total-otherMin < hi {
		hi = total - otherMin
	}
	return lo, hi
}
