package marker

import (
	"errors"
	"regexp"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/worklog/internal/types"
)

func TestNewCodec(t *testing.T) {
	tests := []struct {
		prefix  string
		wantErr bool
	}{
		{"wl:", false},
		{"team/", false},
		{"x-", false},
		{"x_", false},
		{"x.", false},
		{"", true},
		{"wl", true},
		{"w l:", true},
	}

	for _, tt := range tests {
		_, err := NewCodec(tt.prefix)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewCodec(%q) error = %v, wantErr %v", tt.prefix, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidPrefix) {
			t.Errorf("NewCodec(%q) error = %v, want ErrInvalidPrefix", tt.prefix, err)
		}
	}
}

func TestCodec_Encode(t *testing.T) {
	c, _ := NewCodec("wl:")
	w := &types.WorkItem{
		Status:    types.StatusInProgress,
		Priority:  types.PriorityHigh,
		Stage:     "review",
		IssueType: "bug",
		Effort:    "S",
		Tags:      []string{"ui", "api", "ui"},
	}

	want := []string{
		"wl:effort:S",
		"wl:priority:high",
		"wl:stage:review",
		"wl:status:in-progress",
		"wl:tag:api",
		"wl:tag:ui",
		"wl:type:bug",
	}
	if diff := cmp.Diff(want, c.Encode(w)); diff != "" {
		t.Errorf("Encode() mismatch (-want +got):\n%s", diff)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	c, _ := NewCodec("team/")
	w := &types.WorkItem{
		Status:    types.StatusBlocked,
		Priority:  types.PriorityCritical,
		Stage:     "design",
		IssueType: "feature",
		Risk:      "high",
		Effort:    "L",
		Tags:      []string{"b", "a"},
	}

	got := c.Decode(c.Encode(w))
	want := Fields{
		Status:    w.Status,
		Priority:  w.Priority,
		Stage:     w.Stage,
		IssueType: w.IssueType,
		Risk:      w.Risk,
		Effort:    w.Effort,
		Tags:      []string{"a", "b"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode(Encode()) mismatch (-want +got):\n%s", diff)
	}
}

func TestCodec_Decode(t *testing.T) {
	c, _ := NewCodec("wl:")

	tests := []struct {
		name   string
		labels []string
		want   Fields
	}{
		{
			name:   "legacy bare status",
			labels: []string{"blocked"},
			want:   Fields{Status: types.StatusBlocked},
		},
		{
			name:   "legacy unprefixed status field",
			labels: []string{"status:completed"},
			want:   Fields{Status: types.StatusCompleted},
		},
		{
			name:   "namespaced status beats legacy",
			labels: []string{"open", "wl:status:blocked"},
			want:   Fields{Status: types.StatusBlocked},
		},
		{
			name:   "unknown namespaced labels ignored",
			labels: []string{"wl:mystery:x", "wl:status:bogus", "wl:broken"},
			want:   Fields{},
		},
		{
			name:   "foreign labels become tags",
			labels: []string{"bug", "help wanted", "wl:tag:api"},
			want:   Fields{Tags: []string{"api", "bug", "help wanted"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, c.Decode(tt.labels)); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLabelColor(t *testing.T) {
	hex := regexp.MustCompile(`^[0-9a-f]{6}$`)
	for _, label := range []string{"wl:status:open", "wl:tag:api", "x", ""} {
		got := LabelColor(label)
		if !hex.MatchString(got) {
			t.Errorf("LabelColor(%q) = %q, want 6 hex digits", label, got)
		}
		if got == reservedColor {
			t.Errorf("LabelColor(%q) returned the reserved colour", label)
		}
		if again := LabelColor(label); again != got {
			t.Errorf("LabelColor(%q) not deterministic: %q then %q", label, got, again)
		}
	}
}
