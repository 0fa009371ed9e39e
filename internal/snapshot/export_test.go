package snapshot

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/worklog/internal/types"
)

func TestExport(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	items := []*types.WorkItem{item("WL-2", "second", t0.Add(time.Hour)), item("WL-1", "a <b> & c", t0)}
	if err := s.SaveItems(ctx, items); err != nil {
		t.Fatal(err)
	}
	comments := []*types.Comment{
		{ID: "C-2", WorkItemID: "WL-1", Body: "later", CreatedAt: t0.Add(time.Minute)},
		{ID: "C-1", WorkItemID: "WL-1", Body: "<i>first</i>", CreatedAt: t0},
	}
	if err := s.SaveComments(ctx, comments); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), ".worklog", "worklog-data.jsonl")
	res, err := Export(ctx, s, path)
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if res.Items != 2 || res.Comments != 2 {
		t.Errorf("Export() = %+v, want 2 items, 2 comments", res)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"a <b> & c", "<i>first</i>"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("exported file missing %q unescaped:\n%s", want, data)
		}
	}

	snap, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	var ids []string
	for _, w := range snap.Items {
		ids = append(ids, w.ID)
	}
	for _, c := range snap.Comments {
		ids = append(ids, c.ID)
	}
	if diff := cmp.Diff([]string{"WL-1", "WL-2", "C-1", "C-2"}, ids); diff != "" {
		t.Errorf("record order mismatch (-want +got):\n%s", diff)
	}

	// Exporting unchanged data rewrites an identical file.
	if _, err := Export(ctx, s, path); err != nil {
		t.Fatal(err)
	}
	again, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, again) {
		t.Errorf("second export differs:\n%s\n---\n%s", data, again)
	}
}
