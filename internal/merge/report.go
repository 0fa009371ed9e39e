package merge

import (
	"fmt"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// longFieldThreshold is the value length above which FormatConflicts shows
// an inline diff instead of both full values.
const longFieldThreshold = 60

// FormatConflicts renders conflict details as a plain-text audit report.
// Long values (typically descriptions) are shown as an inline word diff,
// with deletions as [-text-] and insertions as {+text+}.
func FormatConflicts(details []ConflictDetail) string {
	if len(details) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, d := range details {
		fmt.Fprintf(&sb, "%s [%s] local=%s remote=%s\n", d.ItemID, d.Kind,
			d.LocalUpdatedAt.UTC().Format(time.RFC3339), d.RemoteUpdatedAt.UTC().Format(time.RFC3339))
		if len(d.Fields) == 0 {
			sb.WriteString("  content differed only in unset fields\n")
		}
		for _, f := range d.Fields {
			fmt.Fprintf(&sb, "  %s: kept %s (%s)\n", f.Field, f.ChosenSource, f.Reason)
			if len(f.LocalValue) > longFieldThreshold || len(f.RemoteValue) > longFieldThreshold {
				fmt.Fprintf(&sb, "    diff: %s\n", inlineDiff(f.LocalValue, f.RemoteValue))
				continue
			}
			fmt.Fprintf(&sb, "    local:  %q\n    remote: %q\n", f.LocalValue, f.RemoteValue)
		}
	}
	return sb.String()
}

func inlineDiff(local, remote string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(local, remote, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var sb strings.Builder
	for _, d := range diffs {
		text := strings.ReplaceAll(d.Text, "\n", `\n`)
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			sb.WriteString("[-" + text + "-]")
		case diffmatchpatch.DiffInsert:
			sb.WriteString("{+" + text + "+}")
		default:
			sb.WriteString(text)
		}
	}
	return sb.String()
}
