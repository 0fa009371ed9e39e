package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/mschirtzinger/worklog/internal/merge"
	"github.com/mschirtzinger/worklog/internal/types"
)

// Store is the part of the local record store a pull reads and writes.
type Store interface {
	Lister
	SaveItems(ctx context.Context, items []*types.WorkItem) error
	SaveComments(ctx context.Context, comments []*types.Comment) error
}

// Reader yields raw snapshot content. *Source implements it.
type Reader interface {
	Read(ctx context.Context) ([]byte, error)
}

// PullOptions configures a Puller.
type PullOptions struct {
	// CacheFile, when set, receives an atomic copy of the fetched snapshot.
	CacheFile string

	// Merge is passed to the work item merge.
	Merge merge.Options

	Logger *slog.Logger
}

// PullResult reports what a pull changed in the store.
type PullResult struct {
	Items    int // work items in the snapshot
	Comments int // comments in the snapshot
	Skipped  int // unknown record kinds

	Created         []string // work item ids new to the store
	Updated         []string // work item ids whose stored record changed
	CommentsCreated int
	CommentsUpdated int

	Conflicts       []string
	ConflictDetails []merge.ConflictDetail
	Warnings        []string
}

// Puller merges a snapshot into the local store.
type Puller struct {
	source Reader
	store  Store
	opts   PullOptions
	log    *slog.Logger
}

// NewPuller returns a Puller reading from source into store.
func NewPuller(source Reader, store Store, opts PullOptions) *Puller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Puller{source: source, store: store, opts: opts, log: logger}
}

// Pull reads the snapshot, merges it with the stored records and saves
// every record the merge created or changed. Local records are the local
// side of the merge, so an unchanged store plus an unchanged snapshot
// saves nothing.
func (p *Puller) Pull(ctx context.Context) (*PullResult, error) {
	data, err := p.source.Read(ctx)
	if err != nil {
		return nil, err
	}

	if p.opts.CacheFile != "" {
		if err := WriteCache(p.opts.CacheFile, data); err != nil {
			return nil, err
		}
		p.log.Debug("wrote snapshot cache", "path", p.opts.CacheFile)
	}

	snap, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	localItems, err := p.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list local work items: %w", err)
	}
	localComments, err := p.store.ListComments(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list local comments: %w", err)
	}

	res := &PullResult{
		Items:    len(snap.Items),
		Comments: len(snap.Comments),
		Skipped:  snap.Skipped,
	}

	merged := merge.WorkItems(localItems, snap.Items, p.opts.Merge)
	res.Conflicts = merged.Conflicts
	res.ConflictDetails = merged.ConflictDetails

	byID := make(map[string]*types.WorkItem, len(localItems))
	for _, w := range localItems {
		byID[w.ID] = w
	}

	var changedItems []*types.WorkItem
	known := make(map[string]bool, len(merged.Merged))
	for _, w := range merged.Merged {
		known[w.ID] = true
		old, ok := byID[w.ID]
		switch {
		case !ok:
			res.Created = append(res.Created, w.ID)
			changedItems = append(changedItems, w)
		case old.ContentKey() != w.ContentKey() || !types.LinkageEqual(old, w) || !old.UpdatedAt.Equal(w.UpdatedAt):
			res.Updated = append(res.Updated, w.ID)
			changedItems = append(changedItems, w)
		}
	}

	mergedComments := merge.Comments(localComments, snap.Comments)
	res.Conflicts = append(res.Conflicts, mergedComments.Conflicts...)

	commentByID := make(map[string]*types.Comment, len(localComments))
	for _, c := range localComments {
		commentByID[c.ID] = c
	}

	var changedComments []*types.Comment
	for _, c := range mergedComments.Merged {
		old, ok := commentByID[c.ID]
		switch {
		case !known[c.WorkItemID]:
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("comment %s: work item %s not found, skipped", c.ID, c.WorkItemID))
		case !ok:
			res.CommentsCreated++
			changedComments = append(changedComments, c)
		case old.ExternalCommentID != c.ExternalCommentID:
			res.CommentsUpdated++
			changedComments = append(changedComments, c)
		}
	}

	for _, w := range res.Warnings {
		p.log.Warn("snapshot pull", "warning", w)
	}

	if len(changedItems) > 0 {
		if err := p.store.SaveItems(ctx, changedItems); err != nil {
			return nil, fmt.Errorf("failed to save work items: %w", err)
		}
	}
	if len(changedComments) > 0 {
		if err := p.store.SaveComments(ctx, changedComments); err != nil {
			return nil, fmt.Errorf("failed to save comments: %w", err)
		}
	}

	p.log.Info("snapshot pulled",
		"items", res.Items,
		"comments", res.Comments,
		"created", len(res.Created),
		"updated", len(res.Updated),
		"comments_created", res.CommentsCreated,
		"conflicts", len(res.Conflicts))

	return res, nil
}
