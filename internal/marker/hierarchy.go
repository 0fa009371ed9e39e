package marker

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mschirtzinger/worklog/internal/types"
)

var (
	parentNumberPattern = regexp.MustCompile(`(?mi)^[ \t]*parent:[ \t]*#(\d+)[ \t]*$`)
	parentIDPattern     = regexp.MustCompile(`(?mi)^[ \t]*parent:[ \t]*([^\s#<>][^\s<>]*)[ \t]*$`)
)

// ParentID returns the local id named by a "Parent: ID" line in body.
func ParentID(body string) (string, bool) {
	m := parentIDPattern.FindStringSubmatch(Strip(body))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParentNumber returns the issue number named by a "Parent: #N" line in body.
func ParentNumber(body string) (int, bool) {
	m := parentNumberPattern.FindStringSubmatch(Strip(body))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Layers collects parent hints for a set of work items, one map per source,
// in ascending order of trust.
type Layers struct {
	// TextIDs maps item id to the parent id named in its body.
	TextIDs map[string]string

	// TextNumbers maps item id to the parent issue number named in its body.
	TextNumbers map[string]int

	// Graph maps child issue number to parent issue number, as queried from
	// the tracker.
	Graph map[int]int
}

// NewLayers returns empty layers ready for use.
func NewLayers() *Layers {
	return &Layers{
		TextIDs:     make(map[string]string),
		TextNumbers: make(map[string]int),
		Graph:       make(map[int]int),
	}
}

// AddBody records the text hints found in the body of itemID's issue.
func (l *Layers) AddBody(itemID, body string) {
	if id, ok := ParentID(body); ok {
		l.TextIDs[itemID] = id
	}
	if n, ok := ParentNumber(body); ok {
		l.TextNumbers[itemID] = n
	}
}

// AddGraph records that child is a sub-issue of parent.
func (l *Layers) AddGraph(parent int, children []int) {
	for _, c := range children {
		l.Graph[c] = parent
	}
}

// Apply sets ParentID on items from the hint layers. Each layer overwrites
// the assignment of the layer before it, so the tracker graph always wins
// when it knows the item. Items with no hint at all keep their ParentID.
//
// Assignments that would close a parent loop are dropped: within a loop the
// lowest-trust link goes first (a stored or text-derived parent before a
// graph edge), ties broken by the smallest item id.
//
// Apply returns the ids of the items whose ParentID changed, plus a warning
// for every hint that names an unknown issue, disagrees with the graph or
// was dropped to break a loop.
func (l *Layers) Apply(items []*types.WorkItem) (changed []string, warnings []string) {
	byID := make(map[string]*types.WorkItem, len(items))
	byNumber := make(map[int]string, len(items))
	orig := make(map[string]string, len(items))
	for _, w := range items {
		byID[w.ID] = w
		orig[w.ID] = w.ParentID
		if w.ExternalIssueNumber > 0 {
			byNumber[w.ExternalIssueNumber] = w.ID
		}
	}

	fromGraph := make(map[string]bool)
	for _, w := range items {
		parent, source, ok := "", "", false

		if id, has := l.TextIDs[w.ID]; has {
			if _, known := byID[id]; known && id != w.ID {
				parent, source, ok = id, "body id", true
			} else {
				warnings = append(warnings, fmt.Sprintf("%s: parent hint %q does not name a known work item", w.ID, id))
			}
		}
		if n, has := l.TextNumbers[w.ID]; has {
			if id, known := byNumber[n]; known && id != w.ID {
				parent, source, ok = id, "body issue number", true
			} else {
				warnings = append(warnings, fmt.Sprintf("%s: parent hint #%d is not linked to a work item", w.ID, n))
			}
		}
		if w.ExternalIssueNumber > 0 {
			if n, has := l.Graph[w.ExternalIssueNumber]; has {
				if id, known := byNumber[n]; known {
					if ok && parent != id {
						warnings = append(warnings, fmt.Sprintf("%s: %s names parent %s but issue #%d is a sub-issue of #%d, using #%d",
							w.ID, source, parent, w.ExternalIssueNumber, n, n))
					}
					parent, ok = id, true
					fromGraph[w.ID] = true
				} else {
					warnings = append(warnings, fmt.Sprintf("%s: parent issue #%d is not linked to a work item", w.ID, n))
				}
			}
		}

		if ok {
			w.ParentID = parent
		}
	}

	warnings = append(warnings, breakCycles(items, byID, fromGraph)...)

	for _, w := range items {
		if w.ParentID != orig[w.ID] {
			changed = append(changed, w.ID)
		}
	}
	sort.Strings(changed)
	return changed, warnings
}

// breakCycles clears one ParentID per parent loop until none remain.
func breakCycles(items []*types.WorkItem, byID map[string]*types.WorkItem, fromGraph map[string]bool) []string {
	ids := make([]string, 0, len(items))
	for _, w := range items {
		ids = append(ids, w.ID)
	}
	sort.Strings(ids)

	var warnings []string
	for {
		var loop []string
		for _, id := range ids {
			if loop = cycleFrom(id, byID); loop != nil {
				break
			}
		}
		if loop == nil {
			return warnings
		}

		drop := ""
		for _, id := range loop {
			switch {
			case drop == "":
				drop = id
			case fromGraph[drop] && !fromGraph[id]:
				drop = id
			case fromGraph[drop] == fromGraph[id] && id < drop:
				drop = id
			}
		}

		w := byID[drop]
		warnings = append(warnings, fmt.Sprintf("%s: parent %s would form a cycle (%s -> %s), dropped",
			drop, w.ParentID, strings.Join(loop, " -> "), loop[0]))
		w.ParentID = ""
	}
}

// cycleFrom returns the loop of ids reached by following parents from id
// back to id, or nil.
func cycleFrom(id string, byID map[string]*types.WorkItem) []string {
	path := []string{id}
	seen := map[string]bool{id: true}
	cur := byID[id]
	for cur != nil && cur.ParentID != "" {
		next := cur.ParentID
		if next == id {
			return path
		}
		if seen[next] {
			return nil
		}
		seen[next] = true
		path = append(path, next)
		cur = byID[next]
	}
	return nil
}
