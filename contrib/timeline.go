package contrib

import (
	"sort"
	"time"
)

// Timeline is the merged, deduplicated, chronologically
// sorted sequence of contributions across all instances.
type Timeline []Contribution

// dedupKey identifies a contribution by its full field
// tuple. UnixNano flattens the date so monotonic clock
// readings and locations never split equal instants.
type dedupKey struct {
	typ  Type
	msg  string
	pid  int64
	unix int64
	inst string
}

func keyOf(ctb Contribution) dedupKey {
	return dedupKey{
		typ:  ctb.Type,
		msg:  ctb.Message,
		pid:  ctb.ProjectID,
		unix: ctb.Date.UnixNano(),
		inst: ctb.Instance,
	}
}

// Merge combines per-instance contribution batches into
// one timeline: duplicates collapse to a single entry,
// then the whole set is sorted ascending by date. Equal
// timestamps order by instance label, and within one
// instance the sort is stable, so the result does not
// depend on which batch arrived first.
func Merge(batches ...[]Contribution) Timeline {
	total := 0
	for _, b := range batches {
		total += len(b)
	}

	seen := make(map[dedupKey]struct{}, total)
	merged := make(Timeline, 0, total)

	for _, b := range batches {
		for _, ctb := range b {
			k := keyOf(ctb)
			if _, ok := seen[k]; ok {
				continue
			}

			seen[k] = struct{}{}
			merged = append(merged, ctb)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].Date.Equal(merged[j].Date) {
			return merged[i].Date.Before(
				merged[j].Date,
			)
		}

		return merged[i].Instance < merged[j].Instance
	})

	return merged
}

// Counts returns the number of contributions per type.
func (tl Timeline) Counts() map[Type]int {
	counts := make(map[Type]int)

	for _, ctb := range tl {
		counts[ctb.Type]++
	}

	return counts
}

// CountByInstance returns the number of contributions per
// instance label.
func (tl Timeline) CountByInstance() map[string]int {
	counts := make(map[string]int)

	for _, ctb := range tl {
		counts[ctb.Instance]++
	}

	return counts
}

// Span returns the dates of the first and last
// contributions. Zero times for an empty timeline.
func (tl Timeline) Span() (time.Time, time.Time) {
	if len(tl) == 0 {
		return time.Time{}, time.Time{}
	}

	return tl[0].Date, tl[len(tl)-1].Date
}
