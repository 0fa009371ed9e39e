package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/mschirtzinger/worklog/internal/vcs"
)

// Defaults for Config fields left empty.
const (
	DefaultRef  = "refs/worklog/data"
	DefaultPath = ".worklog/worklog-data.jsonl"
)

// Config names the snapshot location.
type Config struct {
	Remote string // default "origin"
	Ref    string // explicit ref path or branch name
	Path   string // file path inside the ref's tree
}

func (c Config) withDefaults() Config {
	if c.Remote == "" {
		c.Remote = DefaultRemote
	}
	if c.Ref == "" {
		c.Ref = DefaultRef
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	return c
}

// Source fetches the snapshot ref and reads the snapshot file from it.
type Source struct {
	vcs     vcs.VCS
	cfg     Config
	mapping Mapping
	log     *slog.Logger
}

// NewSource returns a Source reading cfg's snapshot through v.
func NewSource(v vcs.VCS, cfg Config, logger *slog.Logger) (*Source, error) {
	cfg = cfg.withDefaults()
	m, err := MapRef(cfg.Remote, cfg.Ref)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Source{vcs: v, cfg: cfg, mapping: m, log: logger}, nil
}

// Mapping returns the resolved fetch mapping.
func (s *Source) Mapping() Mapping {
	return s.mapping
}

// fetchRetries is how many times a timed-out fetch is repeated.
const fetchRetries = 2

// Read fetches the ref and returns the raw snapshot file as of that ref.
// The working tree and index are left untouched.
func (s *Source) Read(ctx context.Context) ([]byte, error) {
	if !s.vcs.HasRemote() {
		return nil, fmt.Errorf("%w: the %s repository has no remotes (expected %q)", vcs.ErrNoRemote, s.vcs.Name(), s.mapping.Remote)
	}

	if err := s.fetch(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch %s from %s: %w", s.mapping.Source, s.mapping.Remote, err)
	}

	data, err := s.vcs.ExtractFileFromRef(ctx, s.mapping.Local, s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s at %s: %w", s.cfg.Path, s.mapping.Local, err)
	}

	s.log.Debug("read snapshot", "ref", s.mapping.Local, "path", s.cfg.Path, "bytes", len(data))
	return data, nil
}

func (s *Source) fetch(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		s.log.Debug("fetching snapshot ref",
			"remote", s.mapping.Remote,
			"refspec", s.mapping.Refspec(),
			"vcs", s.vcs.Name(),
			"attempt", attempt+1)

		err := s.vcs.Fetch(ctx, s.mapping.Remote, s.mapping.Refspec())
		if err == nil || !vcs.IsRetryable(err) || attempt == fetchRetries || ctx.Err() != nil {
			return err
		}
		s.log.Warn("snapshot fetch timed out, retrying", "remote", s.mapping.Remote, "attempt", attempt+1)
	}
}

// WriteCache atomically replaces path with data, creating parent
// directories as needed.
func WriteCache(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot cache: %w", err)
	}
	return nil
}
