package captions

import (
	"sort"
	"time"
)

// Cue is a single timed caption. The interval is half-open: a cue is
// active for positions in [Start, End).
type Cue struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// List is an ordered set of cues, sorted by start time.
type List []Cue

// NewList returns the cues sorted by start time so lookups can binary
// search. The input slice is not modified.
type byStart []Cue

func (c byStart) Len() int           { return len(c) }
func (c byStart) Swap(i, j int)      { c[i], c[j] = c[j], c[i] }
func (c byStart) Less(i, j int) bool { return c[i].Start < c[j].Start }

func NewList(cues []Cue) List {
	sorted := make([]Cue, len(cues))
	copy(sorted, cues)
	sort.Sort(byStart(sorted))
	return sorted
}

// At returns the text of the cue active at the given position, or the
// empty string when no cue covers it. Positions are offset-adjusted by
// the caller; At itself is a pure lookup.
func (l List) At(position time.Duration) string {
	// Find the first cue starting after position, then check its
	// predecessor for coverage.
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].Start > position
	})
	if idx == 0 {
		return ""
	}
	cue := l[idx-1]
	if position >= cue.Start && position < cue.End {
		return cue.Text
	}
	return ""
}
