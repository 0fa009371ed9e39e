// Package snapshot reads the shared line-delimited snapshot file from a
// version-control ref and merges it into the local record store.
//
// A snapshot ref is either an explicit ref path (anything under "refs/",
// e.g. refs/worklog/data) or a plain branch name. The two map to different
// local tracking refs:
//
//	refs/worklog/data  ->  refs/worklog/remotes/<remote>/worklog/data
//	snapshots          ->  refs/remotes/<remote>/snapshots
//
// Explicit refs get their own namespace so a fetch never clobbers a local
// ref of the same name or an ordinary remote-tracking branch.
package snapshot

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// RefPrefix marks an explicit ref path.
	RefPrefix = "refs/"

	// TrackingNamespace holds local copies of explicit remote refs.
	TrackingNamespace = "refs/worklog/remotes/"

	// DefaultRemote is used when no remote is configured.
	DefaultRemote = "origin"
)

// ErrInvalidRef is returned for refs or remotes that cannot be mapped.
var ErrInvalidRef = errors.New("invalid snapshot ref")

// Mapping pairs a remote ref with the local ref it is fetched into.
type Mapping struct {
	Remote string
	Source string // ref on the remote
	Local  string // ref the snapshot is read from
}

// Refspec returns the forced fetch refspec "+Source:Local".
func (m Mapping) Refspec() string {
	return "+" + m.Source + ":" + m.Local
}

// MapRef resolves ref on remote to its fetch mapping.
func MapRef(remote, ref string) (Mapping, error) {
	if remote == "" {
		remote = DefaultRemote
	}
	if err := checkName(remote); err != nil || strings.Contains(remote, "/") {
		return Mapping{}, fmt.Errorf("%w: remote %q", ErrInvalidRef, remote)
	}
	if err := checkName(ref); err != nil {
		return Mapping{}, fmt.Errorf("%w: %q: %v", ErrInvalidRef, ref, err)
	}

	if rest, ok := strings.CutPrefix(ref, RefPrefix); ok {
		if rest == "" {
			return Mapping{}, fmt.Errorf("%w: %q: empty ref path", ErrInvalidRef, ref)
		}
		return Mapping{
			Remote: remote,
			Source: ref,
			Local:  TrackingNamespace + remote + "/" + rest,
		}, nil
	}

	return Mapping{
		Remote: remote,
		Source: "refs/heads/" + ref,
		Local:  "refs/remotes/" + remote + "/" + ref,
	}, nil
}

// checkName rejects the ref name forms git refuses or that would break a
// refspec.
func checkName(name string) error {
	switch {
	case name == "":
		return errors.New("empty name")
	case strings.ContainsAny(name, " :~^?*[\\\t\n"):
		return errors.New("contains a forbidden character")
	case strings.Contains(name, ".."), strings.Contains(name, "//"), strings.Contains(name, "@{"):
		return errors.New("contains a forbidden sequence")
	case strings.HasPrefix(name, "/"), strings.HasSuffix(name, "/"),
		strings.HasPrefix(name, "-"), strings.HasSuffix(name, ".lock"), strings.HasSuffix(name, "."):
		return errors.New("malformed name")
	}
	return nil
}
