package github

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/worklog/internal/transport"
)

type response struct {
	stdout string
	stderr string
	err    error
}

// fakeGH answers gh invocations by the first route whose key is a substring
// of the joined arguments, and records each call.
type fakeGH struct {
	t      *testing.T
	routes []route
	calls  []transport.Command
}

type route struct {
	match string
	resp  response
}

func (f *fakeGH) on(match string, resp response) *fakeGH {
	f.routes = append(f.routes, route{match, resp})
	return f
}

func (f *fakeGH) exec(ctx context.Context, cmd transport.Command) (transport.Output, error) {
	f.calls = append(f.calls, cmd)
	joined := strings.Join(cmd.Args, " ")
	for _, r := range f.routes {
		if strings.Contains(joined, r.match) {
			out := transport.Output{Stdout: []byte(r.resp.stdout), Stderr: []byte(r.resp.stderr)}
			if cmd.Stdout != nil {
				io.WriteString(cmd.Stdout, r.resp.stdout)
				out.Stdout = nil
			}
			if r.resp.err != nil {
				out.ExitCode = 1
			}
			return out, r.resp.err
		}
	}
	f.t.Errorf("unexpected gh call: %s", joined)
	return transport.Output{ExitCode: 1}, errors.New("exit status 1")
}

func newTestClient(t *testing.T) (*Client, *fakeGH) {
	t.Helper()
	f := &fakeGH{t: t}
	runner := transport.NewRunner(transport.Options{
		Executor: f.exec,
		Sleep:    func(context.Context, time.Duration) error { return nil },
		TempDir:  t.TempDir(),
	})
	c, err := NewClient(Config{Repo: "acme/widgets", Runner: runner})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c, f
}

const issueJSON = `{"node_id":"I_1","number":1,"title":"First","body":"hello\n\n<!-- worklog-id:WL-1 -->","state":"open","updated_at":"2024-03-01T10:00:00Z","labels":[{"name":"wl:status:open"}],"sub_issues_summary":{"total":2}}`

func TestParseRepo(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"acme/widgets", false},
		{" acme/widgets ", false},
		{"acme", true},
		{"/widgets", true},
		{"acme/", true},
		{"a/b/c", true},
	}

	for _, tt := range tests {
		_, _, err := ParseRepo(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRepo(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidRepo) {
			t.Errorf("ParseRepo(%q) error = %v, want ErrInvalidRepo", tt.in, err)
		}
	}
}

func TestListIssues(t *testing.T) {
	c, f := newTestClient(t)
	pr := `{"node_id":"PR_9","number":9,"title":"A PR","state":"open","updated_at":"2024-03-01T10:00:00Z","pull_request":{"url":"x"}}`
	broken := `{"node_id":"","number":3,"title":"no id","state":"open","updated_at":"2024-03-01T10:00:00Z"}`
	second := `{"node_id":"I_2","number":2,"title":"Second","body":null,"state":"closed","updated_at":"2024-03-02T10:00:00Z","labels":[]}`
	f.on("--paginate", response{stdout: "[" + issueJSON + "," + pr + "]\n[" + broken + "," + second + "]"})

	since := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	issues, err := c.ListIssues(context.Background(), since)
	if err != nil {
		t.Fatalf("ListIssues() error = %v", err)
	}

	want := []Issue{
		{
			ID:        "I_1",
			Number:    1,
			Title:     "First",
			Body:      "hello\n\n<!-- worklog-id:WL-1 -->",
			State:     StateOpen,
			Labels:    []string{"wl:status:open"},
			CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			SubIssues: 2,
		},
		{
			ID:        "I_2",
			Number:    2,
			Title:     "Second",
			State:     StateClosed,
			CreatedAt: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC),
		},
	}
	if diff := cmp.Diff(want, issues); diff != "" {
		t.Errorf("ListIssues() mismatch (-want +got):\n%s", diff)
	}

	args := strings.Join(f.calls[0].Args, " ")
	for _, part := range []string{"repos/acme/widgets/issues?", "state=all", "since=2024-02-01T00%3A00%3A00Z"} {
		if !strings.Contains(args, part) {
			t.Errorf("args %q missing %q", args, part)
		}
	}
}

func TestGetIssue_NotFound(t *testing.T) {
	c, _ := newTestClient(t)
	c.runner = transport.NewRunner(transport.Options{Executor: (&fakeGH{t: t}).on("issues/5", response{
		stderr: "gh: Not Found (HTTP 404)",
		err:    errors.New("exit status 1"),
	}).exec})

	_, err := c.GetIssue(context.Background(), 5)

	if !errors.Is(err, ErrIssueNotFound) {
		t.Errorf("GetIssue() error = %v, want ErrIssueNotFound", err)
	}
	if !errors.Is(err, transport.ErrExit) {
		t.Errorf("GetIssue() error = %v, want transport.ErrExit kept in chain", err)
	}
}

func TestGetIssue_AuthRequired(t *testing.T) {
	c, f := newTestClient(t)
	f.on("issues/5", response{stderr: "To get started with GitHub CLI, please run:  gh auth login", err: errors.New("exit status 4")})

	_, err := c.GetIssue(context.Background(), 5)

	if !errors.Is(err, ErrAuthRequired) {
		t.Errorf("GetIssue() error = %v, want ErrAuthRequired", err)
	}
}

func TestGetIssue_InvalidRecord(t *testing.T) {
	c, f := newTestClient(t)
	f.on("issues/5", response{stdout: `{"node_id":"I_5","number":5,"state":"weird","updated_at":"2024-03-01T10:00:00Z"}`})

	_, err := c.GetIssue(context.Background(), 5)

	if !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("GetIssue() error = %v, want ErrInvalidRecord", err)
	}
}

func TestCreateIssue(t *testing.T) {
	c, f := newTestClient(t)
	f.on("-X POST repos/acme/widgets/issues", response{stdout: issueJSON})

	issue, err := c.CreateIssue(context.Background(), IssueInput{Title: "First", Body: "hello"})
	if err != nil {
		t.Fatalf("CreateIssue() error = %v", err)
	}
	if issue.Number != 1 {
		t.Errorf("Number = %d, want 1", issue.Number)
	}

	var sent map[string]any
	if err := json.Unmarshal(f.calls[0].Stdin, &sent); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if sent["title"] != "First" || sent["body"] != "hello" {
		t.Errorf("request body = %v", sent)
	}
	if _, ok := sent["state"]; ok {
		t.Error("create request must not carry state")
	}
	if labels, ok := sent["labels"].([]any); !ok || len(labels) != 0 {
		t.Errorf("labels = %v, want empty array", sent["labels"])
	}
}

func TestCreateIssue_Closed(t *testing.T) {
	c, f := newTestClient(t)
	closed := strings.Replace(issueJSON, `"state":"open"`, `"state":"closed"`, 1)
	f.on("-X POST", response{stdout: issueJSON}).on("-X PATCH repos/acme/widgets/issues/1", response{stdout: closed})

	issue, err := c.CreateIssue(context.Background(), IssueInput{Title: "First", State: StateClosed})
	if err != nil {
		t.Fatalf("CreateIssue() error = %v", err)
	}
	if !issue.Closed() {
		t.Errorf("State = %q, want closed", issue.State)
	}
	if len(f.calls) != 2 {
		t.Errorf("calls = %d, want create then close", len(f.calls))
	}
}

func TestCreateIssue_RequiresTitle(t *testing.T) {
	c, f := newTestClient(t)

	if _, err := c.CreateIssue(context.Background(), IssueInput{}); err == nil {
		t.Error("CreateIssue() without title should fail")
	}
	if len(f.calls) != 0 {
		t.Errorf("calls = %d, want none", len(f.calls))
	}
}

func TestUpdateIssue(t *testing.T) {
	c, f := newTestClient(t)
	f.on("-X PATCH repos/acme/widgets/issues/1", response{stdout: issueJSON})

	_, err := c.UpdateIssue(context.Background(), 1, IssueInput{Title: "First", Labels: []string{"wl:status:open"}, State: StateOpen})
	if err != nil {
		t.Fatalf("UpdateIssue() error = %v", err)
	}

	var sent IssueInput
	json.Unmarshal(f.calls[0].Stdin, &sent)
	want := IssueInput{Title: "First", Labels: []string{"wl:status:open"}, State: StateOpen}
	if diff := cmp.Diff(want, sent); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}

	if _, err := c.UpdateIssue(context.Background(), 0, IssueInput{}); err == nil {
		t.Error("UpdateIssue(0) should fail")
	}
}

func TestComments(t *testing.T) {
	c, f := newTestClient(t)
	comment := `{"id":77,"body":"hi\n<!-- worklog-comment-id:C-1 -->","user":{"login":"octo"},"created_at":"2024-03-01T10:00:00Z","updated_at":"2024-03-01T11:00:00Z"}`
	f.on("--paginate repos/acme/widgets/issues/1/comments", response{stdout: "[" + comment + "]"}).
		on("-X POST repos/acme/widgets/issues/1/comments", response{stdout: comment}).
		on("-X PATCH repos/acme/widgets/issues/comments/77", response{stdout: comment})

	list, err := c.ListComments(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	want := []IssueComment{{
		ID:        77,
		Author:    "octo",
		Body:      "hi\n<!-- worklog-comment-id:C-1 -->",
		CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
	}}
	if diff := cmp.Diff(want, list); diff != "" {
		t.Errorf("ListComments() mismatch (-want +got):\n%s", diff)
	}

	if _, err := c.CreateComment(context.Background(), 1, "hi"); err != nil {
		t.Errorf("CreateComment() error = %v", err)
	}
	if _, err := c.UpdateComment(context.Background(), 77, "hi"); err != nil {
		t.Errorf("UpdateComment() error = %v", err)
	}
}

func TestLabels(t *testing.T) {
	c, f := newTestClient(t)
	f.on("--paginate repos/acme/widgets/labels", response{stdout: `[{"name":"bug","color":"d73a4a"}][{"name":"wl:status:open","color":"aabbcc"}]`}).
		on("-X POST repos/acme/widgets/labels", response{stderr: "gh: Validation Failed (HTTP 422)", err: errors.New("exit status 1")})

	labels, err := c.ListLabels(context.Background())
	if err != nil {
		t.Fatalf("ListLabels() error = %v", err)
	}
	if len(labels) != 2 || labels[1].Name != "wl:status:open" {
		t.Errorf("ListLabels() = %+v", labels)
	}

	if err := c.CreateLabel(context.Background(), Label{Name: "bug", Color: "d73a4a"}); err != nil {
		t.Errorf("CreateLabel() on existing label error = %v, want nil", err)
	}
}

func TestGetHierarchy(t *testing.T) {
	c, f := newTestClient(t)
	f.on("graphql", response{stdout: `{"data":{"repository":{"issue":{"id":"I_1","number":1,"parent":{"number":10},"subIssues":{"nodes":[{"number":2},{"number":3}]}}}}}`})

	h, err := c.GetHierarchy(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetHierarchy() error = %v", err)
	}
	want := Hierarchy{ID: "I_1", Number: 1, Parent: 10, Children: []int{2, 3}}
	if diff := cmp.Diff(want, h); diff != "" {
		t.Errorf("GetHierarchy() mismatch (-want +got):\n%s", diff)
	}

	args := strings.Join(f.calls[0].Args, " ")
	if !strings.Contains(args, "owner=acme") || !strings.Contains(args, "number=1") {
		t.Errorf("args %q missing variables", args)
	}
}

func TestGetHierarchy_NullIssue(t *testing.T) {
	c, f := newTestClient(t)
	f.on("graphql", response{stdout: `{"data":{"repository":{"issue":null}}}`})

	_, err := c.GetHierarchy(context.Background(), 4)

	if !errors.Is(err, ErrIssueNotFound) {
		t.Errorf("GetHierarchy() error = %v, want ErrIssueNotFound", err)
	}
}

func TestAddSubIssue(t *testing.T) {
	c, f := newTestClient(t)
	f.on("addSubIssue", response{stdout: `{"errors":[{"message":"Sub issue may only have one parent"}]}`}).
		on("number=1", response{stdout: `{"data":{"repository":{"issue":{"id":"I_1","number":1,"subIssues":{"nodes":[]}}}}}`}).
		on("number=2", response{stdout: `{"data":{"repository":{"issue":{"id":"I_2","number":2,"subIssues":{"nodes":[]}}}}}`})

	err := c.AddSubIssue(context.Background(), 1, 2)

	if !errors.Is(err, transport.ErrAPI) {
		t.Fatalf("AddSubIssue() error = %v, want transport.ErrAPI", err)
	}
	if !strings.Contains(err.Error(), "only have one parent") {
		t.Errorf("AddSubIssue() error = %v, want API message", err)
	}
	last := strings.Join(f.calls[len(f.calls)-1].Args, " ")
	if !strings.Contains(last, "issueId=I_1") || !strings.Contains(last, "subIssueId=I_2") {
		t.Errorf("mutation args %q missing node ids", last)
	}
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		min     string
		want    string
		wantErr error
	}{
		{"new enough", "gh version 2.45.0 (2024-03-04)\nhttps://github.com/cli/cli/releases/tag/v2.45.0\n", "2.40.0", "2.45.0", nil},
		{"default minimum", "gh version 2.40.0 (2023-12-07)\n", "", "2.40.0", nil},
		{"too old", "gh version 2.20.2 (2022-11-01)\n", "2.40.0", "2.20.2", ErrVersionTooOld},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, f := newTestClient(t)
			f.on("--version", response{stdout: tt.output})

			got, err := c.CheckVersion(context.Background(), tt.min)

			if got != tt.want {
				t.Errorf("CheckVersion() = %q, want %q", got, tt.want)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("CheckVersion() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckVersion() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
