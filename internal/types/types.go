// Package types defines the work item and comment records shared by the
// merge engine, the tracker synchronizers, the snapshot transport and the
// local record store.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"slices"
	"sort"
	"time"
)

// Status is the lifecycle state of a work item.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in-progress"
	StatusBlocked    Status = "blocked"
	StatusCompleted  Status = "completed"
	StatusDeleted    Status = "deleted"
)

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusBlocked, StatusCompleted, StatusDeleted:
		return true
	}
	return false
}

// Priority ranks a work item.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IsValid reports whether p is one of the known priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// WorkItem is a trackable unit of work.
type WorkItem struct {
	// ===== Core Identification =====
	ID string `json:"id"`

	// ===== Content =====
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// ===== Classification =====
	Status    Status   `json:"status,omitempty"`
	Priority  Priority `json:"priority,omitempty"`
	Stage     string   `json:"stage,omitempty"` // empty = undefined
	IssueType string   `json:"issue_type,omitempty"`
	Risk      string   `json:"risk,omitempty"`
	Effort    string   `json:"effort,omitempty"`
	Tags      []string `json:"tags,omitempty"`

	// ===== Assignment & Hierarchy =====
	Assignee string `json:"assignee,omitempty"`
	ParentID string `json:"parent_id,omitempty"` // empty = no parent

	// ===== Timestamps =====
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ===== Remote Linkage =====
	ExternalIssueNumber    int        `json:"external_issue_number,omitempty"`
	ExternalIssueID        string     `json:"external_issue_id,omitempty"`
	ExternalIssueUpdatedAt *time.Time `json:"external_issue_updated_at,omitempty"`
}

// Comment is an append-mostly note attached to a work item.
type Comment struct {
	ID         string    `json:"id"`
	WorkItemID string    `json:"work_item_id"`
	Author     string    `json:"author,omitempty"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	References []string  `json:"references,omitempty"`

	ExternalCommentID        int64      `json:"external_comment_id,omitempty"`
	ExternalCommentUpdatedAt *time.Time `json:"external_comment_updated_at,omitempty"`
}

// Validate checks the fields a work item must carry before it is stored.
func (w *WorkItem) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("id is required")
	}
	if w.Title == "" {
		return fmt.Errorf("title is required")
	}
	if w.Status != "" && !w.Status.IsValid() {
		return fmt.Errorf("invalid status %q", w.Status)
	}
	if w.Priority != "" && !w.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", w.Priority)
	}
	if w.ParentID == w.ID {
		return fmt.Errorf("work item %s cannot be its own parent", w.ID)
	}
	return nil
}

// SetDefaults fills optional fields so freshly created records compare
// consistently.
func (w *WorkItem) SetDefaults(now time.Time) {
	if w.Status == "" {
		w.Status = StatusOpen
	}
	if w.Priority == "" {
		w.Priority = PriorityMedium
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	if w.UpdatedAt.IsZero() {
		w.UpdatedAt = w.CreatedAt
	}
}

// Validate checks the fields a comment must carry before it is stored.
func (c *Comment) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.WorkItemID == "" {
		return fmt.Errorf("work_item_id is required")
	}
	return nil
}

// Clone returns a deep copy of the work item.
func (w *WorkItem) Clone() *WorkItem {
	if w == nil {
		return nil
	}
	c := *w
	c.Tags = slices.Clone(w.Tags)
	if w.ExternalIssueUpdatedAt != nil {
		t := *w.ExternalIssueUpdatedAt
		c.ExternalIssueUpdatedAt = &t
	}
	return &c
}

// Clone returns a deep copy of the comment.
func (c *Comment) Clone() *Comment {
	if c == nil {
		return nil
	}
	cp := *c
	cp.References = slices.Clone(c.References)
	if c.ExternalCommentUpdatedAt != nil {
		t := *c.ExternalCommentUpdatedAt
		cp.ExternalCommentUpdatedAt = &t
	}
	return &cp
}

// SortedTags returns the tags deduplicated and sorted.
func SortedTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := slices.Clone(tags)
	sort.Strings(out)
	return slices.Compact(out)
}

// TagsEqual compares two tag lists as sets.
func TagsEqual(a, b []string) bool {
	return slices.Equal(SortedTags(a), SortedTags(b))
}

// ContentKey returns a stable hash of the work item's content. Bookkeeping
// fields (updated_at and remote linkage) are excluded so that a record whose
// only change is its linkage metadata keeps the same key.
func (w *WorkItem) ContentKey() string {
	h := sha256.New()
	writeField(h, w.ID)
	writeField(h, w.Title)
	writeField(h, w.Description)
	writeField(h, string(w.Status))
	writeField(h, string(w.Priority))
	writeField(h, w.Stage)
	writeField(h, w.IssueType)
	writeField(h, w.Risk)
	writeField(h, w.Effort)
	for _, tag := range SortedTags(w.Tags) {
		writeField(h, tag)
	}
	writeField(h, "|")
	writeField(h, w.Assignee)
	writeField(h, w.ParentID)
	writeField(h, w.CreatedAt.UTC().Format(time.RFC3339Nano))
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, s string) {
	h.Write([]byte(s))
	h.Write([]byte{0})
}

// LinkageEqual reports whether two work items carry the same remote linkage.
func LinkageEqual(a, b *WorkItem) bool {
	if a.ExternalIssueNumber != b.ExternalIssueNumber || a.ExternalIssueID != b.ExternalIssueID {
		return false
	}
	return TimePtrEqual(a.ExternalIssueUpdatedAt, b.ExternalIssueUpdatedAt)
}

// TimePtrEqual compares two optional timestamps.
func TimePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
