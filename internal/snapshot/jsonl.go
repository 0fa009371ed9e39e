package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mschirtzinger/worklog/internal/types"
)

// Record kinds in the snapshot file.
const (
	KindWorkItem = "workitem"
	KindComment  = "comment"
)

// maxLineSize bounds a single snapshot line.
const maxLineSize = 16 * 1024 * 1024

// record is one line of the snapshot file.
type record struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Snapshot is the decoded content of a snapshot file.
type Snapshot struct {
	Items    []*types.WorkItem
	Comments []*types.Comment

	// Skipped counts lines of an unknown record kind.
	Skipped int
}

// Decode parses a snapshot file. Blank lines are ignored and unknown record
// kinds are counted in Skipped; malformed JSON or an invalid record is an
// error naming the line.
func Decode(r io.Reader) (*Snapshot, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	snap := &Snapshot{}
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}

		switch rec.Type {
		case KindWorkItem:
			var w types.WorkItem
			if err := json.Unmarshal(rec.Data, &w); err != nil {
				return nil, fmt.Errorf("invalid work item at line %d: %w", lineNum, err)
			}
			if err := w.Validate(); err != nil {
				return nil, fmt.Errorf("invalid work item at line %d: %w", lineNum, err)
			}
			snap.Items = append(snap.Items, &w)
		case KindComment:
			var c types.Comment
			if err := json.Unmarshal(rec.Data, &c); err != nil {
				return nil, fmt.Errorf("invalid comment at line %d: %w", lineNum, err)
			}
			if err := c.Validate(); err != nil {
				return nil, fmt.Errorf("invalid comment at line %d: %w", lineNum, err)
			}
			snap.Comments = append(snap.Comments, &c)
		default:
			snap.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	return snap, nil
}

// Encode writes items then comments in the snapshot line format. Record
// data keeps <, > and & unescaped.
func Encode(w io.Writer, items []*types.WorkItem, comments []*types.Comment) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for _, item := range items {
		data, err := marshalData(item)
		if err != nil {
			return fmt.Errorf("failed to encode work item %s: %w", item.ID, err)
		}
		if err := enc.Encode(record{Type: KindWorkItem, Data: data}); err != nil {
			return err
		}
	}
	for _, c := range comments {
		data, err := marshalData(c)
		if err != nil {
			return fmt.Errorf("failed to encode comment %s: %w", c.ID, err)
		}
		if err := enc.Encode(record{Type: KindComment, Data: data}); err != nil {
			return err
		}
	}
	return nil
}

// marshalData is json.Marshal without HTML escaping.
func marshalData(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
