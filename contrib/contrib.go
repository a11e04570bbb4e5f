// Package contrib turns raw instance records into the
// uniform contribution schema and merges per-instance
// batches into one deduplicated, chronologically sorted
// timeline.
package contrib

import (
	"time"

	"github.com/byte4ever/contribgraph/instance"
)

// Type classifies a contribution.
type Type string

// Contribution types. Commits and plain push events keep
// their own categories; richer events are classified by
// what they acted on.
const (
	TypeEvent          Type = "event"
	TypeCommit         Type = "commit"
	TypeProjectCreated Type = "project_created"
	TypeMergeRequest   Type = "merge_request"
	TypeIssue          Type = "issue"
)

// Contribution is one unit of user activity in the
// uniform schema. Value object: two contributions with
// equal fields are the same contribution.
type Contribution struct {
	Type      Type      `json:"contribution_type"`
	Message   string    `json:"message"`
	ProjectID int64     `json:"project_id"`
	Date      time.Time `json:"date"`
	Instance  string    `json:"instance"`
}

// FromEvent maps one raw event onto the uniform schema.
// Returns false for action or target combinations outside
// the supported set; those are dropped, never an error,
// so feed evolution on the remote side cannot break runs.
func FromEvent(ev instance.Event) (Contribution, bool) {
	typ, msg, ok := classifyEvent(
		ev.ActionName, ev.TargetType,
	)
	if !ok {
		return Contribution{}, false
	}

	return Contribution{
		Type:      typ,
		Message:   msg,
		ProjectID: ev.ProjectID,
		Date:      ev.CreatedAt.UTC(),
		Instance:  ev.Instance,
	}, true
}

// FromCommit maps one raw commit onto the uniform schema.
// The contribution date is the authored time: that is
// when the user did the work, while the committed time
// moves on every rebase.
func FromCommit(cm instance.Commit) Contribution {
	return Contribution{
		Type:      TypeCommit,
		Message:   "Committed to project",
		ProjectID: cm.ProjectID,
		Date:      cm.AuthoredAt.UTC(),
		Instance:  cm.Instance,
	}
}

// Normalize converts one instance's raw fetch results
// into contributions, preserving fetch order. Events
// outside the supported set are dropped.
func Normalize(
	events []instance.Event,
	commits []instance.Commit,
) []Contribution {
	out := make(
		[]Contribution, 0, len(events)+len(commits),
	)

	for _, ev := range events {
		ctb, ok := FromEvent(ev)
		if !ok {
			continue
		}

		out = append(out, ctb)
	}

	for _, cm := range commits {
		out = append(out, FromCommit(cm))
	}

	return out
}

// classifyEvent maps (action, target) onto a contribution
// type and message.
func classifyEvent(
	action string,
	target string,
) (Type, string, bool) {
	switch instance.CanonicalAction(action) {
	case "created":
		return TypeProjectCreated, "Created project", true

	case "opened":
		switch target {
		case "MergeRequest":
			return TypeMergeRequest,
				"Opened merge request", true
		case "Issue":
			return TypeIssue, "Opened issue", true
		default:
			return "", "", false
		}

	case "accepted":
		return TypeMergeRequest,
			"Accepted merge request", true

	case "merged":
		return TypeMergeRequest,
			"Merged merge request", true

	case "pushed":
		return TypeEvent, "Pushed to project", true

	default:
		return "", "", false
	}
}
