package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/mschirtzinger/worklog/internal/ghsync"
	"github.com/mschirtzinger/worklog/internal/merge"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// progressPrinter returns a ghsync progress callback that redraws one
// status line on w, or nil when w is not a terminal.
func progressPrinter(w io.Writer) (ghsync.ProgressFunc, func()) {
	if !isTerminal(w) {
		return nil, func() {}
	}

	drawn := false
	report := func(p ghsync.Progress) {
		drawn = true
		fmt.Fprintf(w, "\r\033[K%s %s", RenderAccent(string(p.Phase)), progressBar(p.Current, p.Total, 24))
	}
	done := func() {
		if drawn {
			fmt.Fprint(w, "\r\033[K")
		}
	}
	return report, done
}

// progressBar renders "[#####-----] 5/10".
func progressBar(current, total, width int) string {
	if total <= 0 {
		return fmt.Sprintf("%d", current)
	}
	filled := min(width, current*width/total)
	return fmt.Sprintf("[%s%s] %d/%d", strings.Repeat("#", filled), strings.Repeat("-", width-filled), current, total)
}

// printList prints a titled bullet list, truncated after limit entries.
func printList(w io.Writer, title string, render func(string) string, entries []string, limit int) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", render(fmt.Sprintf("%s (%d)", title, len(entries))))
	for i, e := range entries {
		if limit > 0 && i == limit {
			fmt.Fprintf(w, "  %s\n", RenderMuted(fmt.Sprintf("... and %d more", len(entries)-limit)))
			break
		}
		fmt.Fprintf(w, "  - %s\n", e)
	}
}

// printConflicts renders merge decisions when verbose is set.
func printConflicts(w io.Writer, details []merge.ConflictDetail, verbose bool) {
	if len(details) == 0 {
		return
	}
	if !verbose {
		fmt.Fprintf(w, "%s %d item(s) needed a merge decision (use --verbose to show)\n",
			RenderWarn("!"), len(details))
		return
	}
	fmt.Fprintf(w, "\n%s\n%s", headerStyle.Render("Merge decisions"), merge.FormatConflicts(details))
}
