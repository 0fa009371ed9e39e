package github

import (
	"context"
	"fmt"
	"strconv"
)

const hierarchyQuery = `query($owner: String!, $name: String!, $number: Int!) {
  repository(owner: $owner, name: $name) {
    issue(number: $number) {
      id
      number
      parent { number }
      subIssues(first: 100) { nodes { number } }
    }
  }
}`

const addSubIssueMutation = `mutation($issueId: ID!, $subIssueId: ID!) {
  addSubIssue(input: {issueId: $issueId, subIssueId: $subIssueId}) {
    issue { number }
    subIssue { number }
  }
}`

type hierarchyResponse struct {
	Data struct {
		Repository *struct {
			Issue *struct {
				ID     string `json:"id"`
				Number int    `json:"number"`
				Parent *struct {
					Number int `json:"number"`
				} `json:"parent"`
				SubIssues struct {
					Nodes []struct {
						Number int `json:"number"`
					} `json:"nodes"`
				} `json:"subIssues"`
			} `json:"issue"`
		} `json:"repository"`
	} `json:"data"`
}

// GetHierarchy queries an issue's parent and direct sub-issues.
func (c *Client) GetHierarchy(ctx context.Context, number int) (Hierarchy, error) {
	cmd := c.api("graphql",
		"-f", "query="+hierarchyQuery,
		"-f", "owner="+c.owner,
		"-f", "name="+c.name,
		"-F", "number="+strconv.Itoa(number),
	)

	var resp hierarchyResponse
	if err := c.call(ctx, cmd, &resp); err != nil {
		return Hierarchy{}, fmt.Errorf("failed to query hierarchy of #%d: %w", number, err)
	}
	if resp.Data.Repository == nil || resp.Data.Repository.Issue == nil {
		return Hierarchy{}, fmt.Errorf("%w: #%d", ErrIssueNotFound, number)
	}

	issue := resp.Data.Repository.Issue
	if issue.ID == "" {
		return Hierarchy{}, fmt.Errorf("%w: issue #%d has no node id", ErrInvalidRecord, number)
	}
	h := Hierarchy{ID: issue.ID, Number: issue.Number}
	if issue.Parent != nil {
		h.Parent = issue.Parent.Number
	}
	for _, n := range issue.SubIssues.Nodes {
		if n.Number > 0 {
			h.Children = append(h.Children, n.Number)
		}
	}
	return h, nil
}

// AddSubIssue links child under parent.
func (c *Client) AddSubIssue(ctx context.Context, parent, child int) error {
	p, err := c.GetHierarchy(ctx, parent)
	if err != nil {
		return fmt.Errorf("failed to get parent issue node ID: %w", err)
	}
	ch, err := c.GetHierarchy(ctx, child)
	if err != nil {
		return fmt.Errorf("failed to get sub-issue node ID: %w", err)
	}

	cmd := c.api("graphql",
		"-f", "query="+addSubIssueMutation,
		"-f", "issueId="+p.ID,
		"-f", "subIssueId="+ch.ID,
	)
	if err := c.call(ctx, cmd, &struct{}{}); err != nil {
		return fmt.Errorf("failed to link #%d under #%d: %w", child, parent, err)
	}
	return nil
}
