package ghsync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mschirtzinger/worklog/internal/github"
	"github.com/mschirtzinger/worklog/internal/marker"
	"github.com/mschirtzinger/worklog/internal/types"
)

// PushOptions configures one push.
type PushOptions struct {
	// DryRun reports what would be written without writing. The skip check
	// still applies; hierarchy reconciliation is not attempted.
	DryRun bool
}

// PushResult holds the counters of a push.
type PushResult struct {
	Created         int      `json:"created"`
	Updated         int      `json:"updated"`
	Skipped         int      `json:"skipped"`
	CommentsCreated int      `json:"comments_created"`
	CommentsUpdated int      `json:"comments_updated"`
	LabelsCreated   int      `json:"labels_created"`
	HierarchyLinked int      `json:"hierarchy_linked"`
	HierarchyAdded  int      `json:"hierarchy_added"`
	Errors          []string `json:"errors,omitempty"`
}

// Writes returns the number of remote writes the push made.
func (r PushResult) Writes() int {
	return r.Created + r.Updated + r.CommentsCreated + r.CommentsUpdated + r.LabelsCreated + r.HierarchyAdded
}

// PushTiming aggregates time spent per phase.
type PushTiming struct {
	Labels          time.Duration `json:"labels"`
	IssueUpsert     time.Duration `json:"issue_upsert"`
	CommentList     time.Duration `json:"comment_list"`
	CommentUpsert   time.Duration `json:"comment_upsert"`
	HierarchyCheck  time.Duration `json:"hierarchy_check"`
	HierarchyLink   time.Duration `json:"hierarchy_link"`
	HierarchyVerify time.Duration `json:"hierarchy_verify"`
	Total           time.Duration `json:"total"`
}

// PushOutput is what Push returns.
type PushOutput struct {
	// Items are copies of the items whose remote linkage changed. The caller
	// persists them; content and updated_at are untouched.
	Items []*types.WorkItem

	// Comments are copies of the comments whose remote linkage changed.
	Comments []*types.Comment

	Result PushResult
	Timing PushTiming
}

// Pusher writes local items to the tracker.
type Pusher struct {
	tracker Tracker
	cfg     Config
	codec   marker.Codec
	log     *slog.Logger
}

// NewPusher creates a Pusher.
func NewPusher(tracker Tracker, cfg Config) *Pusher {
	return &Pusher{
		tracker: tracker,
		cfg:     cfg,
		codec:   cfg.codec(),
		log:     cfg.logger().With("component", "push"),
	}
}

// Push upserts items and their comments, then reconciles parent/child
// links. Items with status deleted are ignored entirely.
//
// The returned error is non-nil only when ctx is cancelled; per-item
// failures are collected in Result.Errors and the output is always usable.
func (p *Pusher) Push(ctx context.Context, items []*types.WorkItem, comments []*types.Comment, opts PushOptions) (*PushOutput, error) {
	start := time.Now()
	out := &PushOutput{}
	defer func() { out.Timing.Total = time.Since(start) }()

	byItem := commentsByItem(comments)

	var active []*types.WorkItem
	for _, w := range items {
		if w != nil && w.Status != types.StatusDeleted {
			active = append(active, w)
		}
	}

	var due []*types.WorkItem
	for _, w := range active {
		if needsSync(w, byItem[w.ID]) {
			due = append(due, w)
		}
	}
	out.Result.Skipped = len(active) - len(due)

	if opts.DryRun {
		for _, w := range due {
			if w.ExternalIssueNumber == 0 {
				out.Result.Created++
			} else {
				out.Result.Updated++
			}
		}
		p.log.Info("dry run", "due", len(due), "skipped", out.Result.Skipped)
		return out, nil
	}

	if len(due) > 0 {
		t := time.Now()
		p.ensureLabels(ctx, due, &out.Result)
		out.Timing.Labels += time.Since(t)
	}

	// linked holds the post-push view of every active item, for the
	// hierarchy phase.
	linked := make(map[string]*types.WorkItem, len(active))
	for _, w := range active {
		linked[w.ID] = w
	}

	for i, w := range due {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		p.cfg.report(PhasePush, i+1, len(due))

		updated, changedComments := p.pushItem(ctx, w, byItem[w.ID], out)
		out.Comments = append(out.Comments, changedComments...)
		if updated != nil {
			linked[w.ID] = updated
			if !types.LinkageEqual(updated, w) {
				out.Items = append(out.Items, updated)
			}
		}
	}

	if err := p.reconcileHierarchy(ctx, active, linked, out); err != nil {
		return out, err
	}

	p.log.Info("push complete",
		"created", out.Result.Created,
		"updated", out.Result.Updated,
		"skipped", out.Result.Skipped,
		"comments_created", out.Result.CommentsCreated,
		"comments_updated", out.Result.CommentsUpdated,
		"hierarchy_linked", out.Result.HierarchyLinked,
		"errors", len(out.Result.Errors))
	return out, nil
}

// needsSync is the skip check. An item is in sync when it is linked, its
// watermark is at least its updated_at, and no comment is newer than the
// watermark.
func needsSync(w *types.WorkItem, comments []*types.Comment) bool {
	if w.ExternalIssueNumber == 0 || w.ExternalIssueUpdatedAt == nil {
		return true
	}
	watermark := *w.ExternalIssueUpdatedAt
	if w.UpdatedAt.After(watermark) {
		return true
	}
	return commentsDue(comments, watermark)
}

func commentsDue(comments []*types.Comment, watermark time.Time) bool {
	for _, c := range comments {
		if c.CreatedAt.After(watermark) {
			return true
		}
	}
	return false
}

// pushItem upserts one item and its comments. It returns the item with its
// new linkage, or nil when the issue write failed.
func (p *Pusher) pushItem(ctx context.Context, w *types.WorkItem, comments []*types.Comment, out *PushOutput) (*types.WorkItem, []*types.Comment) {
	input := p.issueInput(w)
	issueChanged := w.ExternalIssueNumber == 0 || w.ExternalIssueUpdatedAt == nil ||
		w.UpdatedAt.After(*w.ExternalIssueUpdatedAt)

	next := w.Clone()
	var issueTS time.Time

	t := time.Now()
	switch {
	case w.ExternalIssueNumber == 0:
		issue, err := p.tracker.CreateIssue(ctx, input)
		out.Timing.IssueUpsert += time.Since(t)
		if err != nil {
			p.fail(out, w.ID, fmt.Errorf("failed to create issue: %w", err))
			return nil, nil
		}
		out.Result.Created++
		next.ExternalIssueNumber = issue.Number
		next.ExternalIssueID = issue.ID
		issueTS = issue.UpdatedAt
		p.log.Debug("created issue", "item", w.ID, "issue", issue.Number)

	case issueChanged:
		issue, err := p.tracker.UpdateIssue(ctx, w.ExternalIssueNumber, input)
		out.Timing.IssueUpsert += time.Since(t)
		if err != nil {
			p.fail(out, w.ID, fmt.Errorf("failed to update issue #%d: %w", w.ExternalIssueNumber, err))
			return nil, nil
		}
		out.Result.Updated++
		next.ExternalIssueID = issue.ID
		issueTS = issue.UpdatedAt
		p.log.Debug("updated issue", "item", w.ID, "issue", issue.Number)

	default:
		issueTS = *w.ExternalIssueUpdatedAt
	}

	watermark := maxTime(issueTS, w.UpdatedAt)

	var changed []*types.Comment
	if len(comments) > 0 && (issueChanged || commentsDue(comments, watermark)) {
		var latest, firstFailed time.Time
		changed, latest, firstFailed = p.pushComments(ctx, next, comments, out)
		watermark = maxTime(watermark, latest)
		if !firstFailed.IsZero() {
			// Keep failed comments newer than the watermark so the next
			// run retries them.
			watermark = firstFailed.Add(-time.Nanosecond)
		}
	}

	next.ExternalIssueUpdatedAt = &watermark
	return next, changed
}

// pushComments matches local comments to remote ones by marker and writes
// the differences. It returns copies of comments whose linkage changed, the
// newest timestamp of the synced comments, and the creation time of the
// oldest comment that failed (zero when all synced).
func (p *Pusher) pushComments(ctx context.Context, w *types.WorkItem, comments []*types.Comment, out *PushOutput) (changed []*types.Comment, latest, firstFailed time.Time) {
	number := w.ExternalIssueNumber

	t := time.Now()
	remote, err := p.tracker.ListComments(ctx, number)
	out.Timing.CommentList += time.Since(t)
	if err != nil {
		p.fail(out, w.ID, fmt.Errorf("failed to list comments on #%d: %w", number, err))
		return nil, time.Time{}, comments[0].CreatedAt
	}

	byMarker := make(map[string]github.IssueComment, len(remote))
	byRemoteID := make(map[int64]github.IssueComment, len(remote))
	for _, rc := range remote {
		if id, ok := marker.ExtractComment(rc.Body); ok {
			byMarker[id] = rc
		}
		byRemoteID[rc.ID] = rc
	}

	t = time.Now()
	defer func() { out.Timing.CommentUpsert += time.Since(t) }()

	failed := func(c *types.Comment, err error) {
		p.fail(out, c.ID, err)
		if firstFailed.IsZero() || c.CreatedAt.Before(firstFailed) {
			firstFailed = c.CreatedAt
		}
	}

	for _, c := range comments {
		body := marker.EmbedComment(c.Body, c.ID)

		rc, found := byMarker[c.ID]
		if !found && c.ExternalCommentID != 0 {
			rc, found = byRemoteID[c.ExternalCommentID]
		}

		var written github.IssueComment
		switch {
		case !found:
			written, err = p.tracker.CreateComment(ctx, number, body)
			if err != nil {
				failed(c, fmt.Errorf("failed to create comment on #%d: %w", number, err))
				continue
			}
			out.Result.CommentsCreated++
		case rc.Body != body:
			written, err = p.tracker.UpdateComment(ctx, rc.ID, body)
			if err != nil {
				failed(c, fmt.Errorf("failed to update comment %d on #%d: %w", rc.ID, number, err))
				continue
			}
			out.Result.CommentsUpdated++
		default:
			written = rc
		}

		latest = maxTime(latest, c.CreatedAt, written.UpdatedAt)
		if c.ExternalCommentID != written.ID || !types.TimePtrEqual(c.ExternalCommentUpdatedAt, &written.UpdatedAt) {
			cc := c.Clone()
			cc.ExternalCommentID = written.ID
			ts := written.UpdatedAt
			cc.ExternalCommentUpdatedAt = &ts
			changed = append(changed, cc)
		}
	}
	return changed, latest, firstFailed
}

func (p *Pusher) issueInput(w *types.WorkItem) github.IssueInput {
	state := github.StateOpen
	if w.Status == types.StatusCompleted {
		state = github.StateClosed
	}
	return github.IssueInput{
		Title:  w.Title,
		Body:   marker.Embed(w.Description, w.ID),
		Labels: p.codec.Encode(w),
		State:  state,
	}
}

// ensureLabels creates any namespaced label the due items need that the
// repository does not define yet.
func (p *Pusher) ensureLabels(ctx context.Context, due []*types.WorkItem, res *PushResult) {
	needed := make(map[string]bool)
	for _, w := range due {
		for _, l := range p.codec.Encode(w) {
			needed[l] = true
		}
	}

	existing, err := p.tracker.ListLabels(ctx)
	if err != nil {
		p.failResult(res, "labels", fmt.Errorf("failed to list labels: %w", err))
		return
	}
	for _, l := range existing {
		delete(needed, l.Name)
	}

	names := make([]string, 0, len(needed))
	for name := range needed {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		err := p.tracker.CreateLabel(ctx, github.Label{Name: name, Color: marker.LabelColor(name)})
		if err != nil {
			p.failResult(res, "label "+name, err)
			continue
		}
		res.LabelsCreated++
	}
}

type hierarchyPair struct {
	childID string
	parent  int
	child   int
}

// reconcileHierarchy makes sure every local parent/child pair between
// linked items is a sub-issue link on the tracker.
func (p *Pusher) reconcileHierarchy(ctx context.Context, active []*types.WorkItem, linked map[string]*types.WorkItem, out *PushOutput) error {
	var pairs []hierarchyPair
	for _, w := range active {
		child := linked[w.ID]
		if child.ParentID == "" || child.ExternalIssueNumber == 0 {
			continue
		}
		parent, ok := linked[child.ParentID]
		if !ok || parent.ExternalIssueNumber == 0 {
			continue
		}
		pairs = append(pairs, hierarchyPair{childID: w.ID, parent: parent.ExternalIssueNumber, child: child.ExternalIssueNumber})
	}

	for i, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.cfg.report(PhaseHierarchy, i+1, len(pairs))
		label := fmt.Sprintf("%s (#%d under #%d)", pair.childID, pair.child, pair.parent)

		t := time.Now()
		h, err := p.tracker.GetHierarchy(ctx, pair.child)
		out.Timing.HierarchyCheck += time.Since(t)
		if err != nil {
			p.fail(out, label, fmt.Errorf("failed to query hierarchy: %w", err))
			continue
		}
		if h.Parent == pair.parent {
			out.Result.HierarchyLinked++
			continue
		}

		t = time.Now()
		err = p.tracker.AddSubIssue(ctx, pair.parent, pair.child)
		out.Timing.HierarchyLink += time.Since(t)
		if err != nil {
			p.fail(out, label, fmt.Errorf("failed to add sub-issue: %w", err))
			continue
		}
		out.Result.HierarchyAdded++

		t = time.Now()
		h, err = p.tracker.GetHierarchy(ctx, pair.child)
		out.Timing.HierarchyVerify += time.Since(t)
		switch {
		case err != nil:
			p.fail(out, label, fmt.Errorf("failed to verify sub-issue link: %w", err))
		case h.Parent != pair.parent:
			p.fail(out, label, fmt.Errorf("sub-issue link not visible after add (parent is #%d)", h.Parent))
		default:
			out.Result.HierarchyLinked++
		}
	}
	return nil
}

func (p *Pusher) fail(out *PushOutput, where string, err error) {
	p.failResult(&out.Result, where, err)
}

func (p *Pusher) failResult(res *PushResult, where string, err error) {
	p.log.Warn("push error", "context", where, "error", err)
	res.Errors = append(res.Errors, where+": "+err.Error())
}

func commentsByItem(comments []*types.Comment) map[string][]*types.Comment {
	m := make(map[string][]*types.Comment)
	for _, c := range comments {
		if c != nil {
			m[c.WorkItemID] = append(m[c.WorkItemID], c)
		}
	}
	for _, list := range m {
		sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	}
	return m
}
