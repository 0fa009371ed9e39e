// Package github is a typed client for GitHub issues, comments, labels and
// sub-issues, driven through the gh CLI.
//
// Every call goes through a transport.Runner, so failures arrive as
// *transport.Failure values (optionally wrapped with ErrIssueNotFound or
// ErrAuthRequired) and rate limiting is retried transparently. Response
// records are validated on the way in; records missing required fields are
// rejected with ErrInvalidRecord.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mschirtzinger/worklog/internal/transport"
)

const pageSize = 100

// Config configures a Client.
type Config struct {
	// Repo is the repository as owner/name.
	Repo string

	// Binary is the gh executable. Defaults to "gh".
	Binary string

	Runner *transport.Runner
	Logger *slog.Logger
}

// Client talks to one repository.
type Client struct {
	owner  string
	name   string
	binary string
	runner *transport.Runner
	log    *slog.Logger
}

// ParseRepo splits owner/name.
func ParseRepo(repo string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(repo), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%w: %q is not owner/name", ErrInvalidRepo, repo)
	}
	return owner, name, nil
}

// NewClient creates a client for cfg.Repo.
func NewClient(cfg Config) (*Client, error) {
	owner, name, err := ParseRepo(cfg.Repo)
	if err != nil {
		return nil, err
	}
	c := &Client{
		owner:  owner,
		name:   name,
		binary: cfg.Binary,
		runner: cfg.Runner,
		log:    cfg.Logger,
	}
	if c.binary == "" {
		c.binary = "gh"
	}
	if c.runner == nil {
		c.runner = transport.NewRunner(transport.Options{Logger: cfg.Logger})
	}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// Repo returns owner/name.
func (c *Client) Repo() string {
	return c.owner + "/" + c.name
}

func (c *Client) path(parts ...string) string {
	return "repos/" + c.owner + "/" + c.name + "/" + strings.Join(parts, "/")
}

func (c *Client) api(args ...string) transport.Command {
	return transport.Command{Name: c.binary, Args: append([]string{"api"}, args...)}
}

// call runs a single JSON request under the runner's hard timeout.
func (c *Client) call(ctx context.Context, cmd transport.Command, v any) error {
	_, err := c.runner.StartJSON(ctx, cmd, v).Wait()
	return classifyError(err)
}

// send runs a write request with payload as the JSON request body.
func (c *Client) send(ctx context.Context, method, path string, payload, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	cmd := c.api("-X", method, path, "--input", "-")
	cmd.Stdin = body
	return c.call(ctx, cmd, v)
}

// paginate streams every page of a list endpoint through decodePage. gh
// prints one JSON array per page, back to back.
func (c *Client) paginate(ctx context.Context, path string, decodePage func(json.RawMessage) error) error {
	cmd := c.api("--paginate", path)
	err := c.runner.Stream(ctx, cmd, func(r io.Reader) error {
		dec := json.NewDecoder(r)
		for dec.More() {
			var page []json.RawMessage
			if err := dec.Decode(&page); err != nil {
				return fmt.Errorf("failed to decode page: %w", err)
			}
			for _, raw := range page {
				if err := decodePage(raw); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return classifyError(err)
}

// ===== Issues =====

// ListIssues returns every issue (open and closed, pull requests excluded),
// oldest update first. A non-zero since limits the listing to issues
// updated at or after it.
//
// Records that fail validation are logged and skipped.
func (c *Client) ListIssues(ctx context.Context, since time.Time) ([]Issue, error) {
	q := url.Values{}
	q.Set("state", "all")
	q.Set("per_page", strconv.Itoa(pageSize))
	q.Set("sort", "updated")
	q.Set("direction", "asc")
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}

	var issues []Issue
	err := c.paginate(ctx, c.path("issues")+"?"+q.Encode(), func(raw json.RawMessage) error {
		var r restIssue
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("failed to decode issue: %w", err)
		}
		if r.isPullRequest() {
			return nil
		}
		issue, err := r.toIssue()
		if err != nil {
			c.log.Warn("skipping issue record", "error", err)
			return nil
		}
		issues = append(issues, issue)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return issues, nil
}

// GetIssue fetches one issue.
func (c *Client) GetIssue(ctx context.Context, number int) (Issue, error) {
	var r restIssue
	if err := c.call(ctx, c.api(c.path("issues", strconv.Itoa(number))), &r); err != nil {
		return Issue{}, fmt.Errorf("failed to get issue #%d: %w", number, err)
	}
	return r.toIssue()
}

// CreateIssue creates an issue. GitHub ignores state on creation, so a
// closed input is closed with a follow-up update.
func (c *Client) CreateIssue(ctx context.Context, in IssueInput) (Issue, error) {
	if in.Title == "" {
		return Issue{}, fmt.Errorf("issue title is required")
	}
	state := in.State
	in.State = ""
	if in.Labels == nil {
		in.Labels = []string{}
	}

	var r restIssue
	if err := c.send(ctx, "POST", c.path("issues"), in, &r); err != nil {
		return Issue{}, fmt.Errorf("failed to create issue: %w", err)
	}
	issue, err := r.toIssue()
	if err != nil {
		return Issue{}, err
	}
	if state != StateClosed {
		return issue, nil
	}
	return c.setState(ctx, issue.Number, StateClosed)
}

// UpdateIssue overwrites an issue's title, body, labels and state.
func (c *Client) UpdateIssue(ctx context.Context, number int, in IssueInput) (Issue, error) {
	if number <= 0 {
		return Issue{}, fmt.Errorf("issue number is required for update")
	}
	if in.Labels == nil {
		in.Labels = []string{}
	}
	var r restIssue
	if err := c.send(ctx, "PATCH", c.path("issues", strconv.Itoa(number)), in, &r); err != nil {
		return Issue{}, fmt.Errorf("failed to update issue #%d: %w", number, err)
	}
	return r.toIssue()
}

func (c *Client) setState(ctx context.Context, number int, state string) (Issue, error) {
	var r restIssue
	payload := map[string]string{"state": state}
	if err := c.send(ctx, "PATCH", c.path("issues", strconv.Itoa(number)), payload, &r); err != nil {
		return Issue{}, fmt.Errorf("failed to set issue #%d %s: %w", number, state, err)
	}
	return r.toIssue()
}

// ===== Comments =====

// ListComments returns every comment on an issue, oldest first.
func (c *Client) ListComments(ctx context.Context, number int) ([]IssueComment, error) {
	path := c.path("issues", strconv.Itoa(number), "comments") + "?per_page=" + strconv.Itoa(pageSize)

	var comments []IssueComment
	err := c.paginate(ctx, path, func(raw json.RawMessage) error {
		var r restComment
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("failed to decode comment: %w", err)
		}
		comment, err := r.toComment()
		if err != nil {
			c.log.Warn("skipping comment record", "issue", number, "error", err)
			return nil
		}
		comments = append(comments, comment)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list comments on #%d: %w", number, err)
	}
	return comments, nil
}

// CreateComment adds a comment to an issue.
func (c *Client) CreateComment(ctx context.Context, number int, body string) (IssueComment, error) {
	var r restComment
	path := c.path("issues", strconv.Itoa(number), "comments")
	if err := c.send(ctx, "POST", path, map[string]string{"body": body}, &r); err != nil {
		return IssueComment{}, fmt.Errorf("failed to comment on #%d: %w", number, err)
	}
	return r.toComment()
}

// UpdateComment replaces a comment's body.
func (c *Client) UpdateComment(ctx context.Context, id int64, body string) (IssueComment, error) {
	var r restComment
	path := c.path("issues", "comments", strconv.FormatInt(id, 10))
	if err := c.send(ctx, "PATCH", path, map[string]string{"body": body}, &r); err != nil {
		return IssueComment{}, fmt.Errorf("failed to update comment %d: %w", id, err)
	}
	return r.toComment()
}

// ===== Labels =====

// ListLabels returns every label defined in the repository.
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	var labels []Label
	err := c.paginate(ctx, c.path("labels")+"?per_page="+strconv.Itoa(pageSize), func(raw json.RawMessage) error {
		var l Label
		if err := json.Unmarshal(raw, &l); err != nil {
			return fmt.Errorf("failed to decode label: %w", err)
		}
		if l.Name != "" {
			labels = append(labels, l)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	return labels, nil
}

// CreateLabel defines a label. A label that already exists is not an error.
func (c *Client) CreateLabel(ctx context.Context, l Label) error {
	err := c.send(ctx, "POST", c.path("labels"), l, nil)
	if err == nil {
		return nil
	}
	// gh reports the 422 "already_exists" validation error on stderr
	if f, ok := transport.AsFailure(err); ok &&
		(strings.Contains(f.Stderr, "already_exists") || strings.Contains(f.Stderr, "HTTP 422")) {
		return nil
	}
	return fmt.Errorf("failed to create label %q: %w", l.Name, err)
}
