// Package merge reconciles two versions of a work item collection, or of a
// comment collection, into one.
//
// The functions here are pure: they never touch storage or the network and
// always return fresh copies, so calling them twice with the same inputs
// yields the same result.
//
// Work items are merged field by field:
//
//   - a field that is unset on one side takes the other side's value
//   - differing set values are resolved by updated_at, newest wins
//   - differing tag sets are unioned
//   - equal updated_at with differing set values is a tie, resolved by
//     Options.TieBreak, and the merged updated_at is bumped past the tie
//
// Every resolved disagreement is reported in Result.ConflictDetails.
package merge

import (
	"fmt"
	"strings"
	"time"

	"github.com/mschirtzinger/worklog/internal/types"
)

// ConflictKind classifies a conflict.
type ConflictKind string

const (
	// KindValueDiff means both sides held different values and updated_at
	// picked the winner.
	KindValueDiff ConflictKind = "value-diff"

	// KindSameTimestamp means content differed under identical updated_at.
	KindSameTimestamp ConflictKind = "same-timestamp"
)

// Source identifies where a chosen value came from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
	SourceMerged Source = "merged"
)

// FieldConflict records how one field was resolved.
type FieldConflict struct {
	Field        string `json:"field"`
	LocalValue   string `json:"local_value"`
	RemoteValue  string `json:"remote_value"`
	ChosenValue  string `json:"chosen_value"`
	ChosenSource Source `json:"chosen_source"`
	Reason       string `json:"reason"`
}

// ConflictDetail describes every field of one work item that needed a
// decision during the merge.
type ConflictDetail struct {
	ItemID          string          `json:"item_id"`
	Kind            ConflictKind    `json:"kind"`
	LocalUpdatedAt  time.Time       `json:"local_updated_at"`
	RemoteUpdatedAt time.Time       `json:"remote_updated_at"`
	Fields          []FieldConflict `json:"fields,omitempty"`
}

// Result is the outcome of WorkItems.
type Result struct {
	Merged          []*types.WorkItem
	Conflicts       []string
	ConflictDetails []ConflictDetail
}

type scalarField struct {
	name string
	get  func(*types.WorkItem) string
	set  func(*types.WorkItem, string)
}

var scalarFields = []scalarField{
	{FieldTitle, func(w *types.WorkItem) string { return w.Title }, func(w *types.WorkItem, v string) { w.Title = v }},
	{FieldDescription, func(w *types.WorkItem) string { return w.Description }, func(w *types.WorkItem, v string) { w.Description = v }},
	{FieldStatus, func(w *types.WorkItem) string { return string(w.Status) }, func(w *types.WorkItem, v string) { w.Status = types.Status(v) }},
	{FieldPriority, func(w *types.WorkItem) string { return string(w.Priority) }, func(w *types.WorkItem, v string) { w.Priority = types.Priority(v) }},
	{FieldStage, func(w *types.WorkItem) string { return w.Stage }, func(w *types.WorkItem, v string) { w.Stage = v }},
	{FieldIssueType, func(w *types.WorkItem) string { return w.IssueType }, func(w *types.WorkItem, v string) { w.IssueType = v }},
	{FieldRisk, func(w *types.WorkItem) string { return w.Risk }, func(w *types.WorkItem, v string) { w.Risk = v }},
	{FieldEffort, func(w *types.WorkItem) string { return w.Effort }, func(w *types.WorkItem, v string) { w.Effort = v }},
	{FieldAssignee, func(w *types.WorkItem) string { return w.Assignee }, func(w *types.WorkItem, v string) { w.Assignee = v }},
	{FieldParentID, func(w *types.WorkItem) string { return w.ParentID }, func(w *types.WorkItem, v string) { w.ParentID = v }},
}

// WorkItems merges the local and remote collections.
//
// Items present on one side only are copied unmodified. Merged items follow
// local order, then remote-only items in remote order.
func WorkItems(local, remote []*types.WorkItem, opts Options) Result {
	remoteByID := make(map[string]*types.WorkItem, len(remote))
	for _, r := range remote {
		if r != nil {
			remoteByID[r.ID] = r
		}
	}

	var res Result
	localIDs := make(map[string]bool, len(local))
	for _, l := range local {
		if l == nil {
			continue
		}
		localIDs[l.ID] = true

		r, ok := remoteByID[l.ID]
		if !ok {
			res.Merged = append(res.Merged, l.Clone())
			continue
		}

		merged, detail, conflicts := mergeItem(l, r, opts)
		res.Merged = append(res.Merged, merged)
		res.Conflicts = append(res.Conflicts, conflicts...)
		if detail != nil {
			res.ConflictDetails = append(res.ConflictDetails, *detail)
		}
	}

	for _, r := range remote {
		if r == nil || localIDs[r.ID] {
			continue
		}
		localIDs[r.ID] = true
		res.Merged = append(res.Merged, r.Clone())
	}

	return res
}

func mergeItem(l, r *types.WorkItem, opts Options) (*types.WorkItem, *ConflictDetail, []string) {
	merged := l.Clone()
	mergeLinkage(merged, l, r)

	if contentEqual(l, r) {
		return merged, nil, nil
	}

	var fields []FieldConflict
	var conflicts []string

	for _, f := range scalarFields {
		lv, rv := f.get(l), f.get(r)
		if lv == rv {
			continue
		}
		ld := lv == "" && !opts.neverDefault(f.name)
		rd := rv == "" && !opts.neverDefault(f.name)
		switch {
		case ld && !rd:
			f.set(merged, rv)
		case rd:
			// local already in place
		default:
			chosen, source, reason := opts.choose(lv, rv, l.UpdatedAt, r.UpdatedAt)
			f.set(merged, chosen)
			fields = append(fields, FieldConflict{
				Field:        f.name,
				LocalValue:   lv,
				RemoteValue:  rv,
				ChosenValue:  chosen,
				ChosenSource: source,
				Reason:       reason,
			})
			conflicts = append(conflicts, fmt.Sprintf("%s: %s differs (%s): local=%q remote=%q, kept %s",
				l.ID, f.name, reason, lv, rv, source))
		}
	}

	if !types.TagsEqual(l.Tags, r.Tags) {
		ld := len(l.Tags) == 0 && !opts.neverDefault(FieldTags)
		rd := len(r.Tags) == 0 && !opts.neverDefault(FieldTags)
		switch {
		case ld && !rd:
			merged.Tags = types.SortedTags(r.Tags)
		case rd:
		default:
			union := types.SortedTags(append(append([]string{}, l.Tags...), r.Tags...))
			merged.Tags = union
			fields = append(fields, FieldConflict{
				Field:        FieldTags,
				LocalValue:   joinTags(l.Tags),
				RemoteValue:  joinTags(r.Tags),
				ChosenValue:  joinTags(union),
				ChosenSource: SourceMerged,
				Reason:       "tag union",
			})
			conflicts = append(conflicts, fmt.Sprintf("%s: tags differ: local=[%s] remote=[%s], merged to [%s]",
				l.ID, joinTags(l.Tags), joinTags(r.Tags), joinTags(union)))
		}
	}

	// A tie needs a decision only when a field went through resolution;
	// differences settled by the default rule leave updated_at alone.
	tie := l.UpdatedAt.Equal(r.UpdatedAt) && len(fields) > 0

	merged.CreatedAt = l.CreatedAt
	if tie {
		merged.UpdatedAt = l.UpdatedAt.Add(TieBump)
		conflicts = append(conflicts, fmt.Sprintf("%s: Same updatedAt %s with differing content, resolved %s",
			l.ID, l.UpdatedAt.UTC().Format(time.RFC3339Nano), opts.tieBreak()))
	} else if r.UpdatedAt.After(l.UpdatedAt) {
		merged.UpdatedAt = r.UpdatedAt
	}

	if !tie && len(fields) == 0 {
		return merged, nil, conflicts
	}

	detail := &ConflictDetail{
		ItemID:          l.ID,
		Kind:            KindValueDiff,
		LocalUpdatedAt:  l.UpdatedAt,
		RemoteUpdatedAt: r.UpdatedAt,
		Fields:          fields,
	}
	if tie {
		detail.Kind = KindSameTimestamp
	}
	return merged, detail, conflicts
}

// choose resolves two differing non-default values.
func (o Options) choose(lv, rv string, lt, rt time.Time) (string, Source, string) {
	switch {
	case rt.After(lt):
		return rv, SourceRemote, "remote newer"
	case lt.After(rt):
		return lv, SourceLocal, "local newer"
	}

	switch o.tieBreak() {
	case PreferRemote:
		return rv, SourceRemote, "same updatedAt, prefer remote"
	case DeterministicBump:
		if rv > lv {
			return rv, SourceRemote, "same updatedAt, deterministic"
		}
		return lv, SourceLocal, "same updatedAt, deterministic"
	default:
		return lv, SourceLocal, "same updatedAt, prefer local"
	}
}

// mergeLinkage fills remote linkage: the remote side is authoritative for
// issue number and node id when it has them, and the later watermark wins.
func mergeLinkage(dst, l, r *types.WorkItem) {
	if r.ExternalIssueNumber != 0 {
		dst.ExternalIssueNumber = r.ExternalIssueNumber
	}
	if r.ExternalIssueID != "" {
		dst.ExternalIssueID = r.ExternalIssueID
	}
	switch {
	case r.ExternalIssueUpdatedAt == nil:
	case l.ExternalIssueUpdatedAt == nil || r.ExternalIssueUpdatedAt.After(*l.ExternalIssueUpdatedAt):
		ts := *r.ExternalIssueUpdatedAt
		dst.ExternalIssueUpdatedAt = &ts
	}
}

func contentEqual(l, r *types.WorkItem) bool {
	for _, f := range scalarFields {
		if f.get(l) != f.get(r) {
			return false
		}
	}
	return types.TagsEqual(l.Tags, r.Tags)
}

func joinTags(tags []string) string {
	return strings.Join(types.SortedTags(tags), ",")
}
