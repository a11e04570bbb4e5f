package contrib_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/contribgraph/contrib"
	"github.com/byte4ever/contribgraph/instance"
)

func at(day, hour int) time.Time {
	return time.Date(
		2024, 1, day, hour, 0, 0, 0, time.UTC,
	)
}

func TestMerge_sorts_ascending_by_date(t *testing.T) {
	t.Parallel()

	// Push on the 2nd, merge on the 1st: the merge must
	// come out first even though it was fetched second.
	events := []instance.Event{
		{
			ActionName: "pushed",
			ProjectID:  1,
			CreatedAt:  at(2, 10),
			Instance:   "gitlab.example.com",
		},
		{
			ActionName: "merged",
			ProjectID:  1,
			CreatedAt:  at(1, 9),
			Instance:   "gitlab.example.com",
		},
	}

	tl := contrib.Merge(contrib.Normalize(events, nil))

	require.Len(t, tl, 2)
	assert.Equal(
		t, contrib.TypeMergeRequest, tl[0].Type,
	)
	assert.Equal(t, contrib.TypeEvent, tl[1].Type)

	for i := 1; i < len(tl); i++ {
		assert.False(
			t, tl[i].Date.Before(tl[i-1].Date),
		)
	}
}

func TestMerge_deduplicates_identical_tuples(t *testing.T) {
	t.Parallel()

	ctb := contrib.Contribution{
		Type:      contrib.TypeEvent,
		Message:   "Pushed to project",
		ProjectID: 1,
		Date:      at(1, 9),
		Instance:  "gitlab.example.com",
	}

	tl := contrib.Merge(
		[]contrib.Contribution{ctb},
		[]contrib.Contribution{ctb},
	)

	assert.Len(t, tl, 1)
}

func TestMerge_keeps_distinct_instances(t *testing.T) {
	t.Parallel()

	a := contrib.Contribution{
		Type:      contrib.TypeEvent,
		Message:   "Pushed to project",
		ProjectID: 1,
		Date:      at(1, 9),
		Instance:  "a.example.com",
	}
	b := a
	b.Instance = "b.example.com"

	tl := contrib.Merge(
		[]contrib.Contribution{a},
		[]contrib.Contribution{b},
	)

	assert.Len(t, tl, 2)
}

func TestMerge_deterministic_across_batch_order(t *testing.T) {
	t.Parallel()

	batchA := []contrib.Contribution{
		{
			Type:     contrib.TypeEvent,
			Message:  "Pushed to project",
			Date:     at(1, 9),
			Instance: "a.example.com",
		},
		{
			Type:     contrib.TypeCommit,
			Message:  "Committed to project",
			Date:     at(2, 9),
			Instance: "a.example.com",
		},
	}
	batchB := []contrib.Contribution{
		{
			Type:     contrib.TypeEvent,
			Message:  "Pushed to project",
			Date:     at(1, 9),
			Instance: "b.example.com",
		},
	}

	first := contrib.Merge(batchA, batchB)
	second := contrib.Merge(batchB, batchA)

	require.Equal(t, first, second)

	// Equal timestamps order by instance label.
	assert.Equal(t, "a.example.com", first[0].Instance)
	assert.Equal(t, "b.example.com", first[1].Instance)
}

func TestMerge_stable_within_instance(t *testing.T) {
	t.Parallel()

	// Two distinct contributions at the same instant on
	// the same instance keep their fetch order.
	batch := []contrib.Contribution{
		{
			Type:     contrib.TypeMergeRequest,
			Message:  "Opened merge request",
			Date:     at(1, 9),
			Instance: "a.example.com",
		},
		{
			Type:     contrib.TypeIssue,
			Message:  "Opened issue",
			Date:     at(1, 9),
			Instance: "a.example.com",
		},
	}

	tl := contrib.Merge(batch)

	require.Len(t, tl, 2)
	assert.Equal(
		t, contrib.TypeMergeRequest, tl[0].Type,
	)
	assert.Equal(t, contrib.TypeIssue, tl[1].Type)
}

func TestTimeline_counts(t *testing.T) {
	t.Parallel()

	tl := contrib.Merge([]contrib.Contribution{
		{
			Type:     contrib.TypeEvent,
			Message:  "Pushed to project",
			Date:     at(1, 9),
			Instance: "a",
		},
		{
			Type:     contrib.TypeCommit,
			Message:  "Committed to project",
			Date:     at(2, 9),
			Instance: "a",
		},
		{
			Type:      contrib.TypeCommit,
			Message:   "Committed to project",
			ProjectID: 2,
			Date:      at(3, 9),
			Instance:  "b",
		},
	})

	counts := tl.Counts()
	assert.Equal(t, 1, counts[contrib.TypeEvent])
	assert.Equal(t, 2, counts[contrib.TypeCommit])

	byInstance := tl.CountByInstance()
	assert.Equal(t, 2, byInstance["a"])
	assert.Equal(t, 1, byInstance["b"])
}

func TestTimeline_span(t *testing.T) {
	t.Parallel()

	empty := contrib.Timeline{}
	first, last := empty.Span()
	assert.True(t, first.IsZero())
	assert.True(t, last.IsZero())

	tl := contrib.Merge([]contrib.Contribution{
		{
			Type:     contrib.TypeEvent,
			Message:  "Pushed to project",
			Date:     at(5, 9),
			Instance: "a",
		},
		{
			Type:     contrib.TypeEvent,
			Message:  "Pushed to project",
			Date:     at(1, 9),
			Instance: "a",
		},
	})

	first, last = tl.Span()
	assert.Equal(t, at(1, 9), first)
	assert.Equal(t, at(5, 9), last)
}
