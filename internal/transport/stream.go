package transport

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Stream runs cmd with its standard output spooled to a temporary file and
// hands the file to read once the command has succeeded. Large paginated
// responses therefore never sit in memory as one buffer.
//
// The file is removed when Stream returns, on success and failure alike.
// Retries truncate it before each attempt.
func (r *Runner) Stream(ctx context.Context, cmd Command, read func(io.Reader) error) (err error) {
	f, err := os.CreateTemp(r.tempDir, "worklog-stream-*.json")
	if err != nil {
		return fmt.Errorf("failed to create stream buffer: %w", err)
	}
	defer func() {
		f.Close()
		if rmErr := os.Remove(f.Name()); rmErr != nil && err == nil {
			err = fmt.Errorf("failed to remove stream buffer: %w", rmErr)
		}
	}()

	cmd.Stdout = f
	_, err = r.withRetry(ctx, cmd, func(ctx context.Context) (Output, error) {
		if err := rewind(f); err != nil {
			return Output{}, err
		}
		return r.attempt(ctx, cmd)
	})
	if err != nil {
		return err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind stream buffer: %w", err)
	}
	if err := read(f); err != nil {
		return &Failure{Kind: KindMalformed, Command: cmd.String(), Err: err}
	}
	return nil
}

func rewind(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate stream buffer: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind stream buffer: %w", err)
	}
	return nil
}
