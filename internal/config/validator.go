package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/mschirtzinger/worklog/internal/github"
	"github.com/mschirtzinger/worklog/internal/marker"
	"github.com/mschirtzinger/worklog/internal/snapshot"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "github.max_retries")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// idPrefixRegex matches store id prefixes such as "WL" or "proj".
var idPrefixRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found. An empty github.repo is valid here; the github commands
// require it themselves.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	errors = append(errors, c.validateGitHub()...)
	errors = append(errors, c.validateSnapshot()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateLogging()...)
	return errors
}

func (c *Config) validateGitHub() []ValidationError {
	var errors []ValidationError
	g := c.GitHub

	if g.Repo != "" {
		if _, _, err := github.ParseRepo(g.Repo); err != nil {
			errors = append(errors, ValidationError{
				Field:   "github.repo",
				Value:   g.Repo,
				Message: "must be owner/name",
			})
		}
	}

	if err := marker.ValidatePrefix(g.LabelPrefix); err != nil {
		errors = append(errors, ValidationError{
			Field:   "github.label_prefix",
			Value:   g.LabelPrefix,
			Message: "must be non-empty and end with one of : / - _ .",
		})
	}

	if strings.TrimSpace(g.Binary) == "" {
		errors = append(errors, ValidationError{
			Field:   "github.binary",
			Value:   g.Binary,
			Message: "must not be empty",
		})
	}

	if g.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "github.timeout",
			Value:   g.Timeout,
			Message: "must be positive",
		})
	}

	const maxRetries = 10
	if g.MaxRetries < 0 || g.MaxRetries > maxRetries {
		errors = append(errors, ValidationError{
			Field:   "github.max_retries",
			Value:   g.MaxRetries,
			Message: fmt.Sprintf("must be between 0 and %d", maxRetries),
		})
	}

	if g.InitialBackoff <= 0 || g.InitialBackoff > time.Minute {
		errors = append(errors, ValidationError{
			Field:   "github.initial_backoff",
			Value:   g.InitialBackoff,
			Message: "must be positive and at most 1m",
		})
	}

	if g.MinVersion != "" && !semver.IsValid("v"+strings.TrimPrefix(g.MinVersion, "v")) {
		errors = append(errors, ValidationError{
			Field:   "github.min_version",
			Value:   g.MinVersion,
			Message: "must be a semantic version such as 2.40.0",
		})
	}

	return errors
}

func (c *Config) validateSnapshot() []ValidationError {
	var errors []ValidationError
	s := c.Snapshot

	if _, err := snapshot.MapRef(s.Remote, s.Ref); err != nil {
		errors = append(errors, ValidationError{
			Field:   "snapshot.ref",
			Value:   s.Remote + " " + s.Ref,
			Message: "remote and ref must be valid git names",
		})
	}

	if s.Path == "" || strings.HasPrefix(s.Path, "/") || slices.Contains(strings.Split(s.Path, "/"), "..") {
		errors = append(errors, ValidationError{
			Field:   "snapshot.path",
			Value:   s.Path,
			Message: "must be a relative path inside the repository",
		})
	}

	return errors
}

func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	if c.Store.Path == "" {
		errors = append(errors, ValidationError{
			Field:   "store.path",
			Value:   c.Store.Path,
			Message: "must not be empty",
		})
	}

	if !idPrefixRegex.MatchString(c.Store.IDPrefix) {
		errors = append(errors, ValidationError{
			Field:   "store.id_prefix",
			Value:   c.Store.IDPrefix,
			Message: "must start with a letter and contain only letters and digits",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB <= 0 || c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("must be between 1 and %d", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	if c.Logging.MaxAgeDays < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_age_days",
			Value:   c.Logging.MaxAgeDays,
			Message: "must be non-negative",
		})
	}

	return errors
}
