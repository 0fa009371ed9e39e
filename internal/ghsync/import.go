package ghsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mschirtzinger/worklog/internal/github"
	"github.com/mschirtzinger/worklog/internal/marker"
	"github.com/mschirtzinger/worklog/internal/merge"
	"github.com/mschirtzinger/worklog/internal/types"
)

// ErrNoIDGenerator is returned when CreateNew is requested without a way to
// assign ids.
var ErrNoIDGenerator = errors.New("create-new import requires an id generator")

// IDGenerator assigns an id to a work item created from an unmarked issue.
type IDGenerator func() (string, error)

// ImportOptions configures one import.
type ImportOptions struct {
	// Since limits the listing to issues updated at or after it. Zero lists
	// every issue.
	Since time.Time

	// CreateNew imports issues that carry no marker and match no local
	// item, assigning ids from IDGenerator.
	CreateNew   bool
	IDGenerator IDGenerator
}

// ImportOutput is what Import returns.
type ImportOutput struct {
	// Updated are existing items whose content changed.
	Updated []*types.WorkItem

	// Created are items that did not exist locally.
	Created []*types.WorkItem

	// Relinked are existing items whose only change is remote linkage.
	Relinked []*types.WorkItem

	// Merged is the complete merged collection.
	Merged []*types.WorkItem

	Conflicts       []string
	ConflictDetails []merge.ConflictDetail

	// MarkersFound counts issues carrying a body marker.
	MarkersFound int

	// LatestUpdate is the newest issue updated_at seen, suitable as the next
	// incremental Since.
	LatestUpdate time.Time

	// Warnings are data integrity problems that were resolved by a fallback
	// rule, such as duplicate markers.
	Warnings []string

	// Errors are per-issue failures, as "<context>: <message>".
	Errors []string
}

// Importer reads issues from the tracker into local items.
type Importer struct {
	tracker Tracker
	cfg     Config
	codec   marker.Codec
	log     *slog.Logger
}

// NewImporter creates an Importer.
func NewImporter(tracker Tracker, cfg Config) *Importer {
	return &Importer{
		tracker: tracker,
		cfg:     cfg,
		codec:   cfg.codec(),
		log:     cfg.logger().With("component", "import"),
	}
}

// candidate is a remote issue translated into a local-shaped record.
type candidate struct {
	item  *types.WorkItem
	issue github.Issue
}

// Import lists issues, resolves them against local items and merges.
// Status never takes the default-wins shortcut and equal-timestamp ties
// keep the local value.
func (im *Importer) Import(ctx context.Context, local []*types.WorkItem, opts ImportOptions) (*ImportOutput, error) {
	if opts.CreateNew && opts.IDGenerator == nil {
		return nil, ErrNoIDGenerator
	}

	issues, err := im.tracker.ListIssues(ctx, opts.Since)
	if err != nil {
		return nil, err
	}
	im.log.Info("listed issues", "count", len(issues), "since", opts.Since)

	out := &ImportOutput{}
	layers := marker.NewLayers()
	im.loadHierarchy(ctx, issues, layers, out)

	byID := make(map[string]*types.WorkItem, len(local))
	byNumber := make(map[int]*types.WorkItem, len(local))
	for _, w := range local {
		if w == nil {
			continue
		}
		byID[w.ID] = w
		if w.ExternalIssueNumber > 0 {
			byNumber[w.ExternalIssueNumber] = w
		}
	}

	candidates := make(map[string]candidate)
	var order []string
	seen := make(map[int]bool, len(issues))

	accept := func(c candidate) {
		prev, dup := candidates[c.item.ID]
		if !dup {
			candidates[c.item.ID] = c
			order = append(order, c.item.ID)
			return
		}
		keep, drop := resolveDuplicate(prev, c)
		candidates[c.item.ID] = keep
		msg := fmt.Sprintf("duplicate marker %s on issues #%d and #%d: keeping #%d (updated %s), remove the marker from #%d",
			c.item.ID, prev.issue.Number, c.issue.Number, keep.issue.Number,
			keep.issue.UpdatedAt.Format(time.RFC3339), drop.issue.Number)
		im.log.Warn("duplicate marker",
			"marker", c.item.ID, "kept_issue", keep.issue.Number, "remove_issue", drop.issue.Number)
		out.Warnings = append(out.Warnings, msg)
	}

	for i, issue := range issues {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		im.cfg.report(PhaseImport, i+1, len(issues))
		seen[issue.Number] = true
		out.LatestUpdate = maxTime(out.LatestUpdate, issue.UpdatedAt)

		c, ok, err := im.resolve(issue, byID, byNumber, opts)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("#%d: %v", issue.Number, err))
			continue
		}
		if ok {
			accept(c)
		}
		if _, has := marker.Extract(issue.Body); has {
			out.MarkersFound++
		}
	}

	if err := im.closeCheck(ctx, local, seen, byID, byNumber, opts, accept, out); err != nil {
		return nil, err
	}

	remote := make([]*types.WorkItem, 0, len(order))
	for _, id := range order {
		c := candidates[id]
		remote = append(remote, c.item)
		layers.AddBody(id, c.issue.Body)
	}

	res := merge.WorkItems(local, remote, merge.Options{
		DefaultValueFields: []string{merge.FieldStatus},
		TieBreak:           merge.PreferLocal,
	})
	out.Merged = res.Merged
	out.Conflicts = res.Conflicts
	out.ConflictDetails = res.ConflictDetails

	_, warnings := layers.Apply(out.Merged)
	for _, msg := range warnings {
		im.log.Warn("hierarchy hint", "detail", msg)
	}
	out.Warnings = append(out.Warnings, warnings...)

	for _, w := range out.Merged {
		prev, existed := byID[w.ID]
		switch {
		case !existed:
			out.Created = append(out.Created, w)
		case prev.ContentKey() != w.ContentKey():
			out.Updated = append(out.Updated, w)
		case !types.LinkageEqual(prev, w):
			out.Relinked = append(out.Relinked, w)
		}
	}

	im.log.Info("import complete",
		"created", len(out.Created),
		"updated", len(out.Updated),
		"relinked", len(out.Relinked),
		"conflicts", len(out.ConflictDetails),
		"warnings", len(out.Warnings),
		"errors", len(out.Errors))
	return out, nil
}

// loadHierarchy queries the sub-issue graph of every issue that reports
// sub-issues, once per issue.
func (im *Importer) loadHierarchy(ctx context.Context, issues []github.Issue, layers *marker.Layers, out *ImportOutput) {
	var parents []int
	for _, issue := range issues {
		if issue.SubIssues > 0 {
			parents = append(parents, issue.Number)
		}
	}
	for i, number := range parents {
		im.cfg.report(PhaseHierarchy, i+1, len(parents))
		h, err := im.tracker.GetHierarchy(ctx, number)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("hierarchy #%d: %v", number, err))
			continue
		}
		layers.AddGraph(number, h.Children)
	}
}

// resolve maps an issue to a local id. It reports false for issues that are
// deliberately skipped.
func (im *Importer) resolve(issue github.Issue, byID map[string]*types.WorkItem, byNumber map[int]*types.WorkItem, opts ImportOptions) (candidate, bool, error) {
	id, hasMarker := marker.Extract(issue.Body)

	var match *types.WorkItem
	if hasMarker {
		match = byID[id]
	}
	if match == nil {
		if w, ok := byNumber[issue.Number]; ok {
			match = w
			id = w.ID
		}
	}

	if match == nil {
		if issue.Closed() {
			return candidate{}, false, nil
		}
		if !hasMarker {
			if !opts.CreateNew {
				return candidate{}, false, nil
			}
			newID, err := opts.IDGenerator()
			if err != nil {
				return candidate{}, false, fmt.Errorf("failed to generate id: %w", err)
			}
			id = newID
		}
	}

	return candidate{item: im.translate(issue, id, match), issue: issue}, true, nil
}

// translate builds the remote-shaped record for issue. Fields the tracker
// does not carry are left empty so the merge keeps the local values.
func (im *Importer) translate(issue github.Issue, id string, local *types.WorkItem) *types.WorkItem {
	f := im.codec.Decode(issue.Labels)
	updated := issue.UpdatedAt

	w := &types.WorkItem{
		ID:                     id,
		Title:                  issue.Title,
		Description:            marker.Strip(issue.Body),
		Priority:               f.Priority,
		Stage:                  f.Stage,
		IssueType:              f.IssueType,
		Risk:                   f.Risk,
		Effort:                 f.Effort,
		Tags:                   f.Tags,
		CreatedAt:              issue.CreatedAt,
		UpdatedAt:              updated,
		ExternalIssueNumber:    issue.Number,
		ExternalIssueID:        issue.ID,
		ExternalIssueUpdatedAt: &updated,
	}

	switch {
	case issue.Closed():
		w.Status = types.StatusCompleted
	case f.Status == types.StatusCompleted:
		// reopened on the tracker with a stale status label
		w.Status = types.StatusOpen
	case f.Status != "":
		w.Status = f.Status
	case local != nil && local.Status != types.StatusCompleted:
		w.Status = local.Status
	default:
		w.Status = types.StatusOpen
	}

	if local != nil {
		w.CreatedAt = local.CreatedAt
		w.Assignee = local.Assignee
		w.ParentID = local.ParentID
	} else {
		w.SetDefaults(issue.CreatedAt)
	}
	return w
}

// closeCheck re-fetches linked items whose issue was not in the listing,
// so issues closed outside the listing window are still noticed.
func (im *Importer) closeCheck(ctx context.Context, local []*types.WorkItem, seen map[int]bool,
	byID map[string]*types.WorkItem, byNumber map[int]*types.WorkItem, opts ImportOptions, accept func(candidate), out *ImportOutput) error {

	var pending []*types.WorkItem
	for _, w := range local {
		if w == nil || w.ExternalIssueNumber == 0 || seen[w.ExternalIssueNumber] {
			continue
		}
		if w.Status == types.StatusCompleted || w.Status == types.StatusDeleted {
			continue
		}
		pending = append(pending, w)
	}

	for i, w := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		im.cfg.report(PhaseCloseCheck, i+1, len(pending))

		issue, err := im.tracker.GetIssue(ctx, w.ExternalIssueNumber)
		if err != nil {
			if errors.Is(err, github.ErrIssueNotFound) {
				out.Warnings = append(out.Warnings,
					fmt.Sprintf("%s: linked issue #%d no longer exists", w.ID, w.ExternalIssueNumber))
				continue
			}
			out.Errors = append(out.Errors, fmt.Sprintf("%s: close-check of #%d: %v", w.ID, w.ExternalIssueNumber, err))
			continue
		}
		seen[issue.Number] = true
		if !issue.Closed() {
			continue
		}

		c, ok, err := im.resolve(issue, byID, byNumber, opts)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", w.ID, err))
			continue
		}
		if ok {
			im.log.Debug("issue closed outside listing window", "item", w.ID, "issue", issue.Number)
			accept(c)
		}
	}
	return nil
}

// resolveDuplicate keeps the more recently updated issue. Equal timestamps
// keep the lower issue number.
func resolveDuplicate(a, b candidate) (keep, drop candidate) {
	switch {
	case b.issue.UpdatedAt.After(a.issue.UpdatedAt):
		return b, a
	case a.issue.UpdatedAt.After(b.issue.UpdatedAt):
		return a, b
	case b.issue.Number < a.issue.Number:
		return b, a
	default:
		return a, b
	}
}
