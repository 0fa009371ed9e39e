package vcs

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DetectionResult contains information about the detected VCS
type DetectionResult struct {
	// Type is the detected VCS type
	Type Type

	// RepoRoot is the repository root directory path
	RepoRoot string

	// HasGit indicates a .git directory/file was found
	HasGit bool

	// HasJJ indicates a .jj directory was found
	HasJJ bool

	// Colocated indicates both git and jj are present
	Colocated bool
}

// Detect identifies the VCS type for a given directory, walking up parent
// directories until a .jj directory or a .git entry is found. A .git file
// (worktree) counts as git.
//
// Returns ErrNotInVCS if no VCS is found.
func Detect(path string) (*DetectionResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	current := absPath
	for {
		result := &DetectionResult{RepoRoot: current}

		if info, err := os.Stat(filepath.Join(current, ".jj")); err == nil && info.IsDir() {
			result.HasJJ = true
		}
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			result.HasGit = true
		}

		if result.HasJJ || result.HasGit {
			result.Colocated = result.HasJJ && result.HasGit
			switch {
			case result.Colocated:
				result.Type = TypeColocate
			case result.HasJJ:
				result.Type = TypeJJ
			default:
				result.Type = TypeGit
			}
			return result, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return nil, ErrNotInVCS
		}
		current = parent
	}
}

// PreferredVCS returns the preferred backend for colocated repositories.
// WL_VCS ("git" or "jj") overrides the default, which is git: snapshot refs
// live outside the bookmark namespace jj manages.
func PreferredVCS() Type {
	switch strings.ToLower(os.Getenv("WL_VCS")) {
	case "jj", "jujutsu":
		return TypeJJ
	default:
		return TypeGit
	}
}

// IsJJAvailable checks if the jj command is on PATH.
func IsJJAvailable() bool {
	_, err := exec.LookPath("jj")
	return err == nil
}

// IsGitAvailable checks if the git command is on PATH.
func IsGitAvailable() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// DetectWithAvailability performs detection and checks binary availability.
// Returns ErrVCSNotAvailable if no usable binary exists for the detected type.
func DetectWithAvailability(path string) (*DetectionResult, error) {
	result, err := Detect(path)
	if err != nil {
		return nil, err
	}

	switch result.Type {
	case TypeGit:
		if !IsGitAvailable() {
			return nil, ErrVCSNotAvailable
		}
	case TypeJJ:
		if !IsJJAvailable() {
			return nil, ErrVCSNotAvailable
		}
	case TypeColocate:
		if !IsGitAvailable() && !IsJJAvailable() {
			return nil, ErrVCSNotAvailable
		}
	}

	return result, nil
}
