// Package marker maps local work item identity onto free-text issue tracker
// fields.
//
// Three concerns live here:
//
// Body markers are HTML comments appended to issue and comment bodies that
// carry the local id. They are invisible when the body is rendered and are
// stripped again whenever a body is turned back into a description.
//
// Labels encode structured work item fields as namespaced tracker labels
// (see Codec).
//
// Parent hints derive parent/child structure from body text and from the
// tracker's hierarchy graph (see Layers).
package marker

import (
	"regexp"
	"strings"
)

const (
	itemKey    = "worklog-id"
	commentKey = "worklog-comment-id"
)

var (
	itemPattern    = regexp.MustCompile(`<!--\s*worklog-id:\s*([^\s<>]+)\s*-->`)
	commentPattern = regexp.MustCompile(`<!--\s*worklog-comment-id:\s*([^\s<>]+)\s*-->`)

	// stripPattern also consumes the blank line Embed puts in front of a
	// marker, so Strip(Embed(s, id)) == s.
	stripPattern = regexp.MustCompile(`(?:\n\n)?<!--\s*worklog-(?:comment-)?id:\s*[^\s<>]*\s*-->\n?`)
)

// ValidID reports whether id can be carried in a marker. Ids may not be
// empty or contain whitespace or angle brackets.
func ValidID(id string) bool {
	return id != "" && !strings.ContainsAny(id, " \t\r\n<>")
}

// Embed returns body with exactly one work item marker for id, appended on
// its own line after any existing text.
func Embed(body, id string) string {
	return embed(body, itemKey, id)
}

// EmbedComment is Embed for comment bodies.
func EmbedComment(body, id string) string {
	return embed(body, commentKey, id)
}

func embed(body, key, id string) string {
	body = Strip(body)
	m := "<!-- " + key + ":" + id + " -->"
	if body == "" {
		return m
	}
	return body + "\n\n" + m
}

// Extract returns the work item id carried by body, if any. When a body
// carries more than one marker the last one wins.
func Extract(body string) (string, bool) {
	return extract(itemPattern, body)
}

// ExtractComment returns the comment id carried by body, if any.
func ExtractComment(body string) (string, bool) {
	return extract(commentPattern, body)
}

func extract(re *regexp.Regexp, body string) (string, bool) {
	matches := re.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return "", false
	}
	return matches[len(matches)-1][1], true
}

// Strip removes every item and comment marker from body.
func Strip(body string) string {
	return stripPattern.ReplaceAllString(body, "")
}
