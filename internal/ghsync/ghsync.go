// Package ghsync synchronizes local work items and comments with GitHub
// issues.
//
// # Push
//
// Pusher.Push walks local items and writes what changed:
//
//	local items ──skip check──▶ create/update issue ──▶ upsert comments
//	                                                        │
//	                     parent/child pairs ◀───────────────┘
//	                            │
//	               query graph, add sub-issue, re-verify
//
// An item is skipped when it is linked to an issue, the recorded remote
// watermark is at least its updated_at, and none of its comments is newer
// than the watermark. A second push with no local changes therefore makes
// no remote writes.
//
// # Import
//
// Importer.Import lists issues, resolves each to a local item by body
// marker or linked issue number, translates labels back into fields and
// feeds the result through the merge engine. Parent links are applied
// afterwards from body hints and the sub-issue graph.
//
// # Error Handling
//
// Both passes are partial-failure tolerant. A failing item, comment or
// hierarchy link is recorded as a "<context>: <message>" string in the
// result and processing continues. Only configuration problems and
// context cancellation are returned as errors.
//
// Calls are made one at a time. An interrupted pass leaves committed
// remote writes in place and the next run's skip checks resume from there.
package ghsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/mschirtzinger/worklog/internal/github"
	"github.com/mschirtzinger/worklog/internal/marker"
)

// Tracker is the remote issue tracker surface used by the synchronizers.
// *github.Client implements it.
type Tracker interface {
	ListIssues(ctx context.Context, since time.Time) ([]github.Issue, error)
	GetIssue(ctx context.Context, number int) (github.Issue, error)
	CreateIssue(ctx context.Context, in github.IssueInput) (github.Issue, error)
	UpdateIssue(ctx context.Context, number int, in github.IssueInput) (github.Issue, error)

	ListComments(ctx context.Context, number int) ([]github.IssueComment, error)
	CreateComment(ctx context.Context, number int, body string) (github.IssueComment, error)
	UpdateComment(ctx context.Context, id int64, body string) (github.IssueComment, error)

	ListLabels(ctx context.Context) ([]github.Label, error)
	CreateLabel(ctx context.Context, l github.Label) error

	GetHierarchy(ctx context.Context, number int) (github.Hierarchy, error)
	AddSubIssue(ctx context.Context, parent, child int) error
}

var _ Tracker = (*github.Client)(nil)

// Phase names a progress checkpoint.
type Phase string

const (
	PhasePush       Phase = "push"
	PhaseImport     Phase = "import"
	PhaseHierarchy  Phase = "hierarchy"
	PhaseCloseCheck Phase = "close-check"
)

// Progress is reported at each checkpoint of a pass.
type Progress struct {
	Phase   Phase
	Current int
	Total   int
}

// ProgressFunc receives progress reports. It must not block for long.
type ProgressFunc func(Progress)

// Config is shared by Pusher and Importer.
type Config struct {
	// Codec maps fields to labels. The zero value uses marker.DefaultPrefix.
	Codec marker.Codec

	// Progress is optional.
	Progress ProgressFunc

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

func (c Config) codec() marker.Codec {
	if c.Codec.Prefix() != "" {
		return c.Codec
	}
	codec, _ := marker.NewCodec(marker.DefaultPrefix)
	return codec
}

func (c Config) report(phase Phase, current, total int) {
	if c.Progress != nil {
		c.Progress(Progress{Phase: phase, Current: current, Total: total})
	}
}

func maxTime(ts ...time.Time) time.Time {
	var m time.Time
	for _, t := range ts {
		if t.After(m) {
			m = t
		}
	}
	return m
}
