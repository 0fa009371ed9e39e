package merge

import (
	"fmt"
	"slices"

	"github.com/mschirtzinger/worklog/internal/types"
)

// CommentResult is the outcome of Comments.
type CommentResult struct {
	Merged    []*types.Comment
	Conflicts []string
}

// Comments merges two comment collections keyed by comment id.
//
// Comments are append-mostly logs where local edits are authoritative: on an
// id collision the local author, body and references win in full, and only
// missing remote linkage is filled in from the remote copy. Remote-only
// comments are appended unmodified.
func Comments(local, remote []*types.Comment) CommentResult {
	remoteByID := make(map[string]*types.Comment, len(remote))
	for _, r := range remote {
		if r != nil {
			remoteByID[r.ID] = r
		}
	}

	var res CommentResult
	seen := make(map[string]bool, len(local))
	for _, l := range local {
		if l == nil {
			continue
		}
		seen[l.ID] = true

		merged := l.Clone()
		if r, ok := remoteByID[l.ID]; ok {
			if merged.ExternalCommentID == 0 && r.ExternalCommentID != 0 {
				merged.ExternalCommentID = r.ExternalCommentID
				merged.ExternalCommentUpdatedAt = r.Clone().ExternalCommentUpdatedAt
			}
			if !commentContentEqual(l, r) {
				res.Conflicts = append(res.Conflicts,
					fmt.Sprintf("comment %s on %s: content differs, kept local", l.ID, l.WorkItemID))
			}
		}
		res.Merged = append(res.Merged, merged)
	}

	for _, r := range remote {
		if r == nil || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		res.Merged = append(res.Merged, r.Clone())
	}

	return res
}

func commentContentEqual(a, b *types.Comment) bool {
	return a.Author == b.Author &&
		a.Body == b.Body &&
		a.WorkItemID == b.WorkItemID &&
		slices.Equal(a.References, b.References)
}
