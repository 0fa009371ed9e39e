package ghsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mschirtzinger/worklog/internal/github"
)

// fakeTracker is an in-memory issue tracker. Every write advances its clock
// by one minute and stamps the written record with the new time.
type fakeTracker struct {
	mu sync.Mutex

	now      time.Time
	nextNum  int
	nextCID  int64
	issues   map[int]*github.Issue
	comments map[int][]github.IssueComment
	labels   map[string]github.Label
	parents  map[int]int

	writes map[string]int
	reads  map[string]int

	// failure injection
	failList      error
	failComment   func(body string) error
	failAddSub    map[int]error
	silentAddSub  bool
	failGetIssue  map[int]error
	failHierarchy map[int]error
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		nextNum:  1,
		nextCID:  1000,
		issues:   make(map[int]*github.Issue),
		comments: make(map[int][]github.IssueComment),
		labels:   make(map[string]github.Label),
		parents:  make(map[int]int),
		writes:   make(map[string]int),
		reads:    make(map[string]int),
	}
}

var _ Tracker = (*fakeTracker)(nil)

func (f *fakeTracker) tick() time.Time {
	f.now = f.now.Add(time.Minute)
	return f.now
}

func (f *fakeTracker) totalWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.writes {
		n += c
	}
	return n
}

// seed adds an issue directly, without counting a write.
func (f *fakeTracker) seed(issue github.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue.Number == 0 {
		issue.Number = f.nextNum
	}
	if issue.Number >= f.nextNum {
		f.nextNum = issue.Number + 1
	}
	if issue.ID == "" {
		issue.ID = fmt.Sprintf("I_%d", issue.Number)
	}
	if issue.State == "" {
		issue.State = github.StateOpen
	}
	if issue.UpdatedAt.IsZero() {
		issue.UpdatedAt = f.now
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = issue.UpdatedAt
	}
	f.issues[issue.Number] = &issue
}

func (f *fakeTracker) ListIssues(_ context.Context, since time.Time) ([]github.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads["list-issues"]++
	if f.failList != nil {
		return nil, f.failList
	}
	var out []github.Issue
	for _, issue := range f.issues {
		if !since.IsZero() && issue.UpdatedAt.Before(since) {
			continue
		}
		cp := *issue
		cp.SubIssues = f.childCount(issue.Number)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (f *fakeTracker) childCount(parent int) int {
	n := 0
	for _, p := range f.parents {
		if p == parent {
			n++
		}
	}
	return n
}

func (f *fakeTracker) GetIssue(_ context.Context, number int) (github.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads["get-issue"]++
	if err := f.failGetIssue[number]; err != nil {
		return github.Issue{}, err
	}
	issue, ok := f.issues[number]
	if !ok {
		return github.Issue{}, fmt.Errorf("%w: #%d", github.ErrIssueNotFound, number)
	}
	return *issue, nil
}

func (f *fakeTracker) CreateIssue(_ context.Context, in github.IssueInput) (github.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes["create-issue"]++
	ts := f.tick()
	issue := &github.Issue{
		ID:        fmt.Sprintf("I_%d", f.nextNum),
		Number:    f.nextNum,
		Title:     in.Title,
		Body:      in.Body,
		State:     github.StateOpen,
		Labels:    append([]string(nil), in.Labels...),
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if in.State != "" {
		issue.State = in.State
	}
	f.nextNum++
	f.issues[issue.Number] = issue
	return *issue, nil
}

func (f *fakeTracker) UpdateIssue(_ context.Context, number int, in github.IssueInput) (github.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes["update-issue"]++
	issue, ok := f.issues[number]
	if !ok {
		return github.Issue{}, fmt.Errorf("%w: #%d", github.ErrIssueNotFound, number)
	}
	issue.Title = in.Title
	issue.Body = in.Body
	issue.Labels = append([]string(nil), in.Labels...)
	if in.State != "" {
		issue.State = in.State
	}
	issue.UpdatedAt = f.tick()
	return *issue, nil
}

func (f *fakeTracker) ListComments(_ context.Context, number int) ([]github.IssueComment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads["list-comments"]++
	return append([]github.IssueComment(nil), f.comments[number]...), nil
}

func (f *fakeTracker) CreateComment(_ context.Context, number int, body string) (github.IssueComment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failComment != nil {
		if err := f.failComment(body); err != nil {
			return github.IssueComment{}, err
		}
	}
	f.writes["create-comment"]++
	ts := f.tick()
	c := github.IssueComment{ID: f.nextCID, Author: "octocat", Body: body, CreatedAt: ts, UpdatedAt: ts}
	f.nextCID++
	f.comments[number] = append(f.comments[number], c)
	return c, nil
}

func (f *fakeTracker) UpdateComment(_ context.Context, id int64, body string) (github.IssueComment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failComment != nil {
		if err := f.failComment(body); err != nil {
			return github.IssueComment{}, err
		}
	}
	f.writes["update-comment"]++
	for number, list := range f.comments {
		for i := range list {
			if list[i].ID == id {
				list[i].Body = body
				list[i].UpdatedAt = f.tick()
				f.comments[number] = list
				return list[i], nil
			}
		}
	}
	return github.IssueComment{}, errors.New("comment not found")
}

func (f *fakeTracker) ListLabels(context.Context) ([]github.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads["list-labels"]++
	var out []github.Label
	for _, l := range f.labels {
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeTracker) CreateLabel(_ context.Context, l github.Label) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes["create-label"]++
	f.labels[l.Name] = l
	return nil
}

func (f *fakeTracker) GetHierarchy(_ context.Context, number int) (github.Hierarchy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads["hierarchy"]++
	if err := f.failHierarchy[number]; err != nil {
		return github.Hierarchy{}, err
	}
	issue, ok := f.issues[number]
	if !ok {
		return github.Hierarchy{}, fmt.Errorf("%w: #%d", github.ErrIssueNotFound, number)
	}
	h := github.Hierarchy{ID: issue.ID, Number: number, Parent: f.parents[number]}
	for child, parent := range f.parents {
		if parent == number {
			h.Children = append(h.Children, child)
		}
	}
	sort.Ints(h.Children)
	return h, nil
}

func (f *fakeTracker) AddSubIssue(_ context.Context, parent, child int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failAddSub[child]; err != nil {
		return err
	}
	f.writes["add-sub-issue"]++
	if !f.silentAddSub {
		f.parents[child] = parent
	}
	return nil
}

func hasError(errs []string, parts ...string) bool {
	for _, e := range errs {
		ok := true
		for _, p := range parts {
			if !strings.Contains(e, p) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}
