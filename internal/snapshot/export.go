package snapshot

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/mschirtzinger/worklog/internal/types"
)

// Lister is the read side of the local record store.
type Lister interface {
	ListItems(ctx context.Context) ([]*types.WorkItem, error)
	ListComments(ctx context.Context, itemID string) ([]*types.Comment, error)
}

// ExportResult counts the records written by Export.
type ExportResult struct {
	Items    int
	Comments int
}

// Export writes every stored work item and comment to path in the snapshot
// format, replacing the file atomically. Records are ordered by id (comments
// by work item, then creation time) so unchanged data produces an identical
// file.
func Export(ctx context.Context, st Lister, path string) (*ExportResult, error) {
	items, err := st.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	comments, err := st.ListComments(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	items = slices.Clone(items)
	slices.SortFunc(items, func(a, b *types.WorkItem) int { return cmp.Compare(a.ID, b.ID) })
	comments = slices.Clone(comments)
	slices.SortFunc(comments, func(a, b *types.Comment) int {
		return cmp.Or(
			cmp.Compare(a.WorkItemID, b.WorkItemID),
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})

	var buf bytes.Buffer
	if err := Encode(&buf, items, comments); err != nil {
		return nil, err
	}
	if err := WriteCache(path, buf.Bytes()); err != nil {
		return nil, err
	}
	return &ExportResult{Items: len(items), Comments: len(comments)}, nil
}
