package github

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mschirtzinger/worklog/internal/transport"
)

// Sentinel errors for tracker operations.
var (
	// ErrIssueNotFound indicates that the requested issue does not exist.
	ErrIssueNotFound = errors.New("issue not found")

	// ErrAuthRequired indicates that gh is not logged in.
	ErrAuthRequired = errors.New("authentication required")

	// ErrInvalidRepo indicates a repository name that is not owner/name.
	ErrInvalidRepo = errors.New("invalid repository")

	// ErrInvalidRecord indicates a response record missing required fields.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrVersionTooOld indicates a gh binary older than required.
	ErrVersionTooOld = errors.New("gh version too old")
)

// classifyError adds a more specific sentinel to transport failures whose
// output identifies the cause. The original error stays in the chain.
func classifyError(err error) error {
	f, ok := transport.AsFailure(err)
	if !ok {
		return err
	}

	text := strings.ToLower(f.Stderr + "\n" + strings.Join(f.Messages, "\n"))
	switch {
	case strings.Contains(text, "not logged in") ||
		strings.Contains(text, "authentication required") ||
		strings.Contains(text, "gh auth login"):
		return fmt.Errorf("%w: %w", ErrAuthRequired, err)

	case strings.Contains(text, "http 404") ||
		strings.Contains(text, "could not resolve to an issue") ||
		strings.Contains(text, "could not find issue"):
		// Only match issue-specific "not found" patterns to avoid false positives
		return fmt.Errorf("%w: %w", ErrIssueNotFound, err)
	}
	return err
}
