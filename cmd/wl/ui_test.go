package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		current, total, width int
		want                  string
	}{
		{0, 4, 4, "[----] 0/4"},
		{2, 4, 4, "[##--] 2/4"},
		{4, 4, 4, "[####] 4/4"},
		{9, 4, 4, "[####] 9/4"},
		{3, 0, 4, "3"},
	}
	for _, tt := range tests {
		if got := progressBar(tt.current, tt.total, tt.width); got != tt.want {
			t.Errorf("progressBar(%d, %d, %d) = %q, want %q", tt.current, tt.total, tt.width, got, tt.want)
		}
	}
}

func TestPrintList(t *testing.T) {
	plain := func(s string) string { return s }

	var buf bytes.Buffer
	printList(&buf, "Errors", plain, nil, 2)
	if buf.Len() != 0 {
		t.Errorf("printList(nil) wrote %q, want nothing", buf.String())
	}

	printList(&buf, "Errors", plain, []string{"WL-1: boom", "WL-2: boom", "WL-3: boom"}, 2)
	out := buf.String()
	for _, want := range []string{"Errors (3)", "- WL-1: boom", "- WL-2: boom", "and 1 more"} {
		if !strings.Contains(out, want) {
			t.Errorf("printList() output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "WL-3") {
		t.Errorf("printList() printed past the limit:\n%s", out)
	}
}

func TestProgressPrinter_NotTerminal(t *testing.T) {
	var buf bytes.Buffer
	report, done := progressPrinter(&buf)
	if report != nil {
		t.Error("progressPrinter(buffer) returned a callback, want nil")
	}
	done()
	if buf.Len() != 0 {
		t.Errorf("done() wrote %q", buf.String())
	}
}
