package github

import (
	"context"
	"fmt"
	"regexp"

	"golang.org/x/mod/semver"

	"github.com/mschirtzinger/worklog/internal/transport"
)

// DefaultMinVersion is the oldest gh release known to handle the sub-issue
// GraphQL schema.
const DefaultMinVersion = "2.40.0"

var versionPattern = regexp.MustCompile(`gh version (\d+\.\d+\.\d+)`)

// CheckVersion returns the installed gh version, failing with
// ErrVersionTooOld when it is older than minVersion.
func (c *Client) CheckVersion(ctx context.Context, minVersion string) (string, error) {
	out, err := c.runner.Run(ctx, transport.Command{Name: c.binary, Args: []string{"--version"}})
	if err != nil {
		return "", fmt.Errorf("failed to run %s --version: %w", c.binary, err)
	}
	m := versionPattern.FindSubmatch(out.Stdout)
	if m == nil {
		return "", fmt.Errorf("could not parse gh version from %q", out.Stdout)
	}
	got := string(m[1])

	if minVersion == "" {
		minVersion = DefaultMinVersion
	}
	want := "v" + minVersion
	if !semver.IsValid(want) {
		return got, fmt.Errorf("invalid minimum gh version %q", minVersion)
	}
	if semver.Compare("v"+got, want) < 0 {
		return got, fmt.Errorf("%w: have %s, need %s", ErrVersionTooOld, got, minVersion)
	}
	return got, nil
}
