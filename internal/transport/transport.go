// Package transport runs remote tracker commands and turns every expected
// failure mode into a structured *Failure.
//
// A Runner wraps an Executor (by default os/exec) with:
//
//   - classification of non-zero exits, missing binaries and timeouts
//   - GraphQL error arrays treated as failures even on exit status 0
//   - retry with exponential backoff when a failure looks like rate limiting
//   - a hard per-call timeout for asynchronous calls, killing the whole
//     process group on expiry
//   - streaming of large paginated output through a temporary file
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single asynchronous call.
const DefaultTimeout = 60 * time.Second

// Command describes one process invocation.
type Command struct {
	Name string
	Args []string

	// Stdin, when non-nil, is fed to the process.
	Stdin []byte

	// Stdout, when non-nil, receives standard output instead of
	// Output.Stdout.
	Stdout io.Writer
}

// String renders the command for logs and error messages.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Output is what a finished process produced.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Executor runs a command. It returns a non-nil error when the process could
// not be started or exited non-zero; Output is filled in as far as possible
// either way. Tests inject their own Executor.
type Executor func(ctx context.Context, cmd Command) (Output, error)

// ExecExecutor runs commands with os/exec. The process is placed in its own
// process group so that cancelling ctx terminates any children too.
func ExecExecutor(ctx context.Context, cmd Command) (Output, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	configureProcess(c)

	var stdout, stderr bytes.Buffer
	if cmd.Stdout != nil {
		c.Stdout = cmd.Stdout
	} else {
		c.Stdout = &stdout
	}
	c.Stderr = &stderr
	if cmd.Stdin != nil {
		c.Stdin = bytes.NewReader(cmd.Stdin)
	}

	err := c.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if c.ProcessState != nil {
		out.ExitCode = c.ProcessState.ExitCode()
	}
	return out, err
}

// Options configures a Runner.
type Options struct {
	// Executor defaults to ExecExecutor.
	Executor Executor

	// Backoff defaults to DefaultBackoff.
	Backoff Backoff

	// Timeout bounds asynchronous calls. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Sleep defaults to Sleep. Tests inject a recorder.
	Sleep SleepFunc

	// TempDir is where Stream creates its buffer files. Empty means the
	// system default.
	TempDir string

	Logger *slog.Logger
}

// Runner executes commands with classification, retry and timeouts.
type Runner struct {
	exec    Executor
	backoff Backoff
	timeout time.Duration
	sleep   SleepFunc
	tempDir string
	log     *slog.Logger
}

// NewRunner creates a Runner, filling in defaults for unset options.
func NewRunner(opts Options) *Runner {
	r := &Runner{
		exec:    opts.Executor,
		backoff: opts.Backoff,
		timeout: opts.Timeout,
		sleep:   opts.Sleep,
		tempDir: opts.TempDir,
		log:     opts.Logger,
	}
	if r.exec == nil {
		r.exec = ExecExecutor
	}
	if r.backoff == (Backoff{}) {
		r.backoff = DefaultBackoff()
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.sleep == nil {
		r.sleep = Sleep
	}
	if r.log == nil {
		r.log = slog.New(slog.DiscardHandler)
	}
	return r
}

// Run executes cmd synchronously, retrying rate limited failures. It is
// bounded only by ctx.
func (r *Runner) Run(ctx context.Context, cmd Command) (Output, error) {
	return r.withRetry(ctx, cmd, func(ctx context.Context) (Output, error) {
		return r.attempt(ctx, cmd)
	})
}

// RunJSON runs cmd and decodes its stdout into v. A GraphQL style errors
// array in the response is reported as a KindAPI failure, or as
// KindRateLimited when the messages indicate rate limiting.
func (r *Runner) RunJSON(ctx context.Context, cmd Command, v any) error {
	out, err := r.withRetry(ctx, cmd, func(ctx context.Context) (Output, error) {
		out, err := r.attempt(ctx, cmd)
		if err != nil {
			return out, err
		}
		return out, checkAPIErrors(cmd, out.Stdout)
	})
	if err != nil {
		return err
	}
	return decodeJSON(cmd, out.Stdout, v)
}

// Call is an asynchronous call started by Start.
type Call struct {
	done chan struct{}
	out  Output
	err  error
}

// Done is closed when the call has finished.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call finishes and returns its result.
func (c *Call) Wait() (Output, error) {
	<-c.done
	return c.out, c.err
}

// Start runs cmd in the background under the Runner's hard timeout. On
// expiry the process group is killed and the call fails with KindTimeout.
func (r *Runner) Start(ctx context.Context, cmd Command) *Call {
	call := &Call{done: make(chan struct{})}
	go func() {
		defer close(call.done)
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		call.out, call.err = r.Run(ctx, cmd)
	}()
	return call
}

// StartJSON is the asynchronous form of RunJSON. v must not be read before
// the call is done.
func (r *Runner) StartJSON(ctx context.Context, cmd Command, v any) *Call {
	call := &Call{done: make(chan struct{})}
	go func() {
		defer close(call.done)
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		call.err = r.RunJSON(ctx, cmd, v)
	}()
	return call
}

func (r *Runner) withRetry(ctx context.Context, cmd Command, try func(context.Context) (Output, error)) (Output, error) {
	state := newRetryState(r.backoff)
	for {
		out, err := try(ctx)
		decision, delay := state.next(err)
		if decision == Done {
			if f, ok := AsFailure(err); ok {
				f.Attempts = state.attempts()
			}
			return out, err
		}

		r.log.Warn("rate limited, backing off",
			"command", cmd.Name, "attempt", state.attempts(), "delay", delay)
		if serr := r.sleep(ctx, delay); serr != nil {
			return out, r.contextFailure(ctx, cmd, serr, state.attempts())
		}
	}
}

func (r *Runner) attempt(ctx context.Context, cmd Command) (Output, error) {
	start := time.Now()
	out, err := r.exec(ctx, cmd)
	r.log.Debug("command finished",
		"command", cmd.Name, "args", len(cmd.Args), "duration", time.Since(start), "error", err)
	if err == nil {
		return out, nil
	}
	return out, classify(ctx, cmd, out, err)
}

func (r *Runner) contextFailure(ctx context.Context, cmd Command, err error, attempts int) error {
	kind := KindExit
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Failure{Kind: kind, Command: cmd.String(), Attempts: attempts, Err: err}
}

// classify turns an executor error into a *Failure.
func classify(ctx context.Context, cmd Command, out Output, err error) error {
	stderr := strings.TrimSpace(string(out.Stderr))
	f := &Failure{Command: cmd.String(), ExitCode: out.ExitCode, Stderr: stderr, Err: err}

	var execErr *exec.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		f.Kind = KindTimeout
	case errors.As(err, &execErr) || errors.Is(err, exec.ErrNotFound):
		f.Kind = KindUnavailable
	case IsRateLimitText(stderr) || IsRateLimitText(string(out.Stdout)):
		f.Kind = KindRateLimited
	default:
		f.Kind = KindExit
	}
	return f
}

type apiErrors struct {
	Errors []struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"errors"`
}

// checkAPIErrors inspects a successful response for an errors array.
// Responses that are not JSON objects are left for decodeJSON to judge.
func checkAPIErrors(cmd Command, data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var resp apiErrors
	if err := json.Unmarshal(trimmed, &resp); err != nil || len(resp.Errors) == 0 {
		return nil
	}

	f := &Failure{Kind: KindAPI, Command: cmd.String()}
	for _, e := range resp.Errors {
		f.Messages = append(f.Messages, e.Message)
		if e.Type == "RATE_LIMITED" || IsRateLimitText(e.Message) {
			f.Kind = KindRateLimited
		}
	}
	return f
}

func decodeJSON(cmd Command, data []byte, v any) error {
	if v == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &Failure{Kind: KindMalformed, Command: cmd.String(), Err: errors.New("empty response")}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &Failure{Kind: KindMalformed, Command: cmd.String(), Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
