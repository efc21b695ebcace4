package armrecon

import "sort"

// Interval is a half-open address range [Start, End).
type Interval struct {
	Start, End Address
}

// IntervalSet is an ordered, merged set of half-open address intervals. It
// is the walker's record of which parts of the address space have already
// been disassembled, so that a worklist entry reaching previously-explored
// code can stop instead of re-walking it (and, for a cyclic program,
// looping forever).
//
// Invariant: intervals are sorted by Start, pairwise disjoint, and no two
// adjacent intervals touch (Intervals[i].End < Intervals[i+1].Start) —
// touching intervals are always merged into one.
type IntervalSet struct {
	Intervals []Interval
}

// Add inserts [start, end), merging with any existing interval it overlaps
// or touches. Returns an *InvariantViolationError if start >= end: the
// caller is always expected to pass a well-formed range, so this signals a
// bug rather than bad input.
func (s *IntervalSet) Add(start, end Address) error {
	if start >= end {
		return &InvariantViolationError{Message: "IntervalSet.Add: start >= end"}
	}

	// Find the first interval whose End >= start (the left edge of the
	// merge run) and the last interval whose Start <= end (the right
	// edge), mirroring group_add_interval's two scans.
	first := -1
	for i := range s.Intervals {
		if s.Intervals[i].End >= start {
			first = i
			break
		}
	}
	if first == -1 {
		// Every existing interval ends before start: append at the end.
		s.Intervals = append(s.Intervals, Interval{start, end})
		return nil
	}

	last := first - 1
	for j := len(s.Intervals) - 1; j >= 0; j-- {
		if s.Intervals[j].Start <= end {
			last = j
			break
		}
	}

	if last < first {
		// No overlap or touch: insert the new interval in sorted position.
		s.Intervals = append(s.Intervals, Interval{})
		copy(s.Intervals[first+1:], s.Intervals[first:])
		s.Intervals[first] = Interval{start, end}
		return nil
	}

	// Collapse [first, last] into a single interval covering the union.
	merged := Interval{
		Start: minAddr(start, s.Intervals[first].Start),
		End:   maxAddr(end, s.Intervals[last].End),
	}
	s.Intervals = append(s.Intervals[:first], s.Intervals[last+1:]...)
	s.Intervals = append(s.Intervals, Interval{})
	copy(s.Intervals[first+1:], s.Intervals[first:])
	s.Intervals[first] = merged
	return nil
}

// Contains reports whether x falls within some interval. Intervals stays
// sorted and non-overlapping, so this binary-searches for the first
// interval whose End exceeds x and checks whether x is past its Start.
func (s *IntervalSet) Contains(x Address) bool {
	i := sort.Search(len(s.Intervals), func(i int) bool {
		return s.Intervals[i].End > x
	})
	if i == len(s.Intervals) {
		return false
	}
	return x >= s.Intervals[i].Start
}

func minAddr(a, b Address) Address {
	if a < b {
		return a
	}
	return b
}

func maxAddr(a, b Address) Address {
	if a > b {
		return a
	}
	return b
}
