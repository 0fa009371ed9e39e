package snapshot

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/worklog/internal/types"
)

var t0 = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func item(id, title string, updated time.Time) *types.WorkItem {
	return &types.WorkItem{
		ID:        id,
		Title:     title,
		Status:    types.StatusOpen,
		Priority:  types.PriorityMedium,
		CreatedAt: t0,
		UpdatedAt: updated,
	}
}

func TestEncodeDecode(t *testing.T) {
	items := []*types.WorkItem{item("WL-1", "first", t0), item("WL-2", "second", t0.Add(time.Hour))}
	items[1].Tags = []string{"a", "b"}
	items[1].ParentID = "WL-1"
	comments := []*types.Comment{{ID: "C-1", WorkItemID: "WL-1", Author: "ann", Body: "<b>hi</b>", CreatedAt: t0}}

	var buf bytes.Buffer
	if err := Encode(&buf, items, comments); err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if strings.Count(buf.String(), "\n") != 3 {
		t.Errorf("Encode() wrote %q, want 3 lines", buf.String())
	}
	if !strings.Contains(buf.String(), "<b>hi</b>") {
		t.Errorf("Encode() escaped HTML: %q", buf.String())
	}

	snap, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if diff := cmp.Diff(items, snap.Items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(comments, snap.Comments); diff != "" {
		t.Errorf("comments mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		items     int
		comments  int
		skipped   int
		errSubstr string
	}{
		{
			name:  "empty",
			input: "",
		},
		{
			name:    "blank lines and unknown kinds",
			input:   "\n{\"type\":\"workitem\",\"data\":{\"id\":\"a\",\"title\":\"A\"}}\n\n{\"type\":\"dependency\",\"data\":{}}\n",
			items:   1,
			skipped: 1,
		},
		{
			name:     "comment",
			input:    `{"type":"comment","data":{"id":"c","work_item_id":"a","body":"x"}}`,
			comments: 1,
		},
		{
			name:      "malformed line",
			input:     "{\"type\":\"workitem\",\"data\":{\"id\":\"a\",\"title\":\"A\"}}\n{not json\n",
			errSubstr: "invalid JSON at line 2",
		},
		{
			name:      "invalid work item",
			input:     `{"type":"workitem","data":{"id":"a"}}`,
			errSubstr: "invalid work item at line 1: title is required",
		},
		{
			name:      "invalid comment",
			input:     `{"type":"comment","data":{"id":"c"}}`,
			errSubstr: "invalid comment at line 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Decode(strings.NewReader(tt.input))
			if tt.errSubstr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errSubstr) {
					t.Fatalf("Decode() error = %v, want containing %q", err, tt.errSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() failed: %v", err)
			}
			if len(snap.Items) != tt.items || len(snap.Comments) != tt.comments || snap.Skipped != tt.skipped {
				t.Errorf("Decode() = %d items, %d comments, %d skipped; want %d, %d, %d",
					len(snap.Items), len(snap.Comments), snap.Skipped, tt.items, tt.comments, tt.skipped)
			}
		})
	}
}
