package marker

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/mschirtzinger/worklog/internal/types"
)

// DefaultPrefix is the label namespace used when none is configured.
const DefaultPrefix = "wl:"

// prefixDelimiters are the characters a label prefix may end with.
const prefixDelimiters = ":/-_."

// ErrInvalidPrefix is returned by NewCodec for an unusable namespace.
var ErrInvalidPrefix = errors.New("invalid label prefix")

// Label field names, the part between the prefix and the value.
const (
	LabelStatus   = "status"
	LabelPriority = "priority"
	LabelStage    = "stage"
	LabelType     = "type"
	LabelRisk     = "risk"
	LabelEffort   = "effort"
	LabelTag      = "tag"
)

// Fields holds the structured work item fields carried by labels.
type Fields struct {
	Status    types.Status
	Priority  types.Priority
	Stage     string
	IssueType string
	Risk      string
	Effort    string
	Tags      []string
}

// Codec converts between work item fields and namespaced labels.
type Codec struct {
	prefix string
}

// ValidatePrefix checks that prefix is non-empty and ends with a delimiter.
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("%w: prefix is empty", ErrInvalidPrefix)
	}
	if strings.ContainsAny(prefix, " \t\r\n,") {
		return fmt.Errorf("%w: %q contains whitespace or comma", ErrInvalidPrefix, prefix)
	}
	if !strings.ContainsRune(prefixDelimiters, rune(prefix[len(prefix)-1])) {
		return fmt.Errorf("%w: %q must end with one of %q", ErrInvalidPrefix, prefix, prefixDelimiters)
	}
	return nil
}

// NewCodec creates a codec for the given namespace prefix.
func NewCodec(prefix string) (Codec, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return Codec{}, err
	}
	return Codec{prefix: prefix}, nil
}

// Prefix returns the codec's namespace.
func (c Codec) Prefix() string {
	return c.prefix
}

// Label builds one namespaced label.
func (c Codec) Label(field, value string) string {
	return c.prefix + field + ":" + value
}

// Encode returns the sorted label set for w. Empty fields produce no label.
func (c Codec) Encode(w *types.WorkItem) []string {
	var labels []string
	add := func(field, value string) {
		if value != "" {
			labels = append(labels, c.Label(field, value))
		}
	}
	add(LabelStatus, string(w.Status))
	add(LabelPriority, string(w.Priority))
	add(LabelStage, w.Stage)
	add(LabelType, w.IssueType)
	add(LabelRisk, w.Risk)
	add(LabelEffort, w.Effort)
	for _, tag := range types.SortedTags(w.Tags) {
		add(LabelTag, tag)
	}
	sort.Strings(labels)
	return labels
}

// Decode maps labels back onto fields.
//
// Namespaced labels are preferred. A bare status value ("blocked") or an
// unprefixed "status:blocked" is still accepted for issues labelled before
// the namespace existed, but only when no namespaced status is present.
// Unknown labels inside the namespace are ignored; labels outside it are
// kept as free-form tags.
func (c Codec) Decode(labels []string) Fields {
	var f Fields
	var legacyStatus types.Status
	var tags []string

	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}

		rest, ok := strings.CutPrefix(label, c.prefix)
		if !ok {
			if s, ok := legacyStatusLabel(label); ok {
				legacyStatus = s
				continue
			}
			tags = append(tags, label)
			continue
		}

		field, value, ok := strings.Cut(rest, ":")
		if !ok || value == "" {
			continue
		}
		switch field {
		case LabelStatus:
			if s := types.Status(value); s.IsValid() {
				f.Status = s
			}
		case LabelPriority:
			if p := types.Priority(value); p.IsValid() {
				f.Priority = p
			}
		case LabelStage:
			f.Stage = value
		case LabelType:
			f.IssueType = value
		case LabelRisk:
			f.Risk = value
		case LabelEffort:
			f.Effort = value
		case LabelTag:
			tags = append(tags, value)
		}
	}

	if f.Status == "" {
		f.Status = legacyStatus
	}
	f.Tags = types.SortedTags(tags)
	return f
}

// Managed reports whether label belongs to the codec's namespace.
func (c Codec) Managed(label string) bool {
	return strings.HasPrefix(label, c.prefix)
}

func legacyStatusLabel(label string) (types.Status, bool) {
	value := strings.TrimPrefix(label, LabelStatus+":")
	s := types.Status(strings.ToLower(value))
	return s, s.IsValid()
}

// reservedColor renders invisibly against the tracker's label background.
const reservedColor = "ffffff"

// LabelColor returns a deterministic 6-digit hex colour for label.
func LabelColor(label string) string {
	h := fnv.New32a()
	h.Write([]byte(label))
	color := fmt.Sprintf("%06x", h.Sum32()&0xffffff)
	if color == reservedColor {
		return "ededed"
	}
	return color
}
