package merge

import (
	"slices"
	"time"
)

// TieBreak selects the winner when both sides hold different non-default
// values under exactly equal updated_at timestamps.
type TieBreak string

const (
	// PreferLocal keeps the local value. This is the default.
	PreferLocal TieBreak = "prefer-local"

	// PreferRemote keeps the remote value.
	PreferRemote TieBreak = "prefer-remote"

	// DeterministicBump keeps the lexicographically greater value so that
	// two replicas resolving the same tie independently converge.
	DeterministicBump TieBreak = "deterministic-bump"
)

// IsValid reports whether t names a known strategy. The empty value is
// valid and means PreferLocal.
func (t TieBreak) IsValid() bool {
	switch t {
	case "", PreferLocal, PreferRemote, DeterministicBump:
		return true
	}
	return false
}

// Field names understood by Options.DefaultValueFields and reported in
// FieldConflict.Field.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldStatus      = "status"
	FieldPriority    = "priority"
	FieldStage       = "stage"
	FieldIssueType   = "issueType"
	FieldRisk        = "risk"
	FieldEffort      = "effort"
	FieldTags        = "tags"
	FieldAssignee    = "assignee"
	FieldParentID    = "parentId"
)

// TieBump is how far past a same-timestamp tie the merged updated_at is
// moved, so the next sync round does not see the same tie again.
const TieBump = time.Millisecond

// Options configures a single merge.
type Options struct {
	// DefaultValueFields lists fields that are never treated as unset, even
	// when empty. Their values always go through timestamp resolution
	// instead of the default-wins shortcut.
	DefaultValueFields []string

	// TieBreak resolves equal-timestamp conflicts. Empty means PreferLocal.
	TieBreak TieBreak
}

func (o Options) neverDefault(field string) bool {
	return slices.Contains(o.DefaultValueFields, field)
}

func (o Options) tieBreak() TieBreak {
	if o.TieBreak == "" {
		return PreferLocal
	}
	return o.TieBreak
}
