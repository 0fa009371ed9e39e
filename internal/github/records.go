package github

import (
	"encoding/json"
	"fmt"
	"time"
)

// Issue states.
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// Issue is a validated remote issue.
type Issue struct {
	ID        string
	Number    int
	Title     string
	Body      string
	State     string
	Labels    []string
	CreatedAt time.Time
	UpdatedAt time.Time

	// SubIssues is the sub-issue count reported by the list endpoint. Only
	// issues with sub-issues need a hierarchy query.
	SubIssues int
}

// Closed reports whether the issue is closed.
func (i Issue) Closed() bool {
	return i.State == StateClosed
}

// IssueComment is a validated remote issue comment.
type IssueComment struct {
	ID        int64
	Author    string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Label is a repository label.
type Label struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

// Hierarchy is an issue's position in the sub-issue graph.
type Hierarchy struct {
	ID       string
	Number   int
	Parent   int
	Children []int
}

// IssueInput is the writable part of an issue.
type IssueInput struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
	State  string   `json:"state,omitempty"`
}

// ===== Raw REST shapes =====

type restIssue struct {
	NodeID    string  `json:"node_id"`
	Number    int     `json:"number"`
	Title     string  `json:"title"`
	Body      *string `json:"body"`
	State     string  `json:"state"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
	Labels    []struct {
		Name string `json:"name"`
	} `json:"labels"`
	PullRequest      json.RawMessage `json:"pull_request"`
	SubIssuesSummary *struct {
		Total int `json:"total"`
	} `json:"sub_issues_summary"`
}

func (r restIssue) isPullRequest() bool {
	return len(r.PullRequest) > 0 && string(r.PullRequest) != "null"
}

func (r restIssue) toIssue() (Issue, error) {
	if r.Number <= 0 {
		return Issue{}, fmt.Errorf("%w: issue without a number", ErrInvalidRecord)
	}
	if r.NodeID == "" {
		return Issue{}, fmt.Errorf("%w: issue #%d has no node id", ErrInvalidRecord, r.Number)
	}
	if r.State != StateOpen && r.State != StateClosed {
		return Issue{}, fmt.Errorf("%w: issue #%d has unknown state %q", ErrInvalidRecord, r.Number, r.State)
	}
	updated, err := time.Parse(time.RFC3339, r.UpdatedAt)
	if err != nil {
		return Issue{}, fmt.Errorf("%w: issue #%d has bad updated_at %q", ErrInvalidRecord, r.Number, r.UpdatedAt)
	}

	created, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		created = updated
	}

	issue := Issue{
		ID:        r.NodeID,
		Number:    r.Number,
		Title:     r.Title,
		State:     r.State,
		CreatedAt: created.UTC(),
		UpdatedAt: updated.UTC(),
	}
	if r.Body != nil {
		issue.Body = *r.Body
	}
	for _, l := range r.Labels {
		if l.Name != "" {
			issue.Labels = append(issue.Labels, l.Name)
		}
	}
	if r.SubIssuesSummary != nil {
		issue.SubIssues = r.SubIssuesSummary.Total
	}
	return issue, nil
}

type restComment struct {
	ID   int64   `json:"id"`
	Body *string `json:"body"`
	User *struct {
		Login string `json:"login"`
	} `json:"user"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (r restComment) toComment() (IssueComment, error) {
	if r.ID <= 0 {
		return IssueComment{}, fmt.Errorf("%w: comment without an id", ErrInvalidRecord)
	}
	created, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		return IssueComment{}, fmt.Errorf("%w: comment %d has bad created_at %q", ErrInvalidRecord, r.ID, r.CreatedAt)
	}
	updated, err := time.Parse(time.RFC3339, r.UpdatedAt)
	if err != nil {
		updated = created
	}

	c := IssueComment{ID: r.ID, CreatedAt: created.UTC(), UpdatedAt: updated.UTC()}
	if r.Body != nil {
		c.Body = *r.Body
	}
	if r.User != nil {
		c.Author = r.User.Login
	}
	return c, nil
}
