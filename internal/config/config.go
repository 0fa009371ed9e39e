// Package config loads worklog configuration through viper.
//
// Values come from, in increasing precedence: built-in defaults, the
// project file .worklog/config.yaml (TOML and JSON are accepted too), and
// WL_-prefixed environment variables with dots replaced by underscores
// (github.repo -> WL_GITHUB_REPO). Command-line flags bound by the CLI take
// precedence over all of these.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mschirtzinger/worklog/internal/github"
	"github.com/mschirtzinger/worklog/internal/marker"
	"github.com/mschirtzinger/worklog/internal/snapshot"
	"github.com/mschirtzinger/worklog/internal/store"
	"github.com/mschirtzinger/worklog/internal/transport"
)

const (
	// Dir is the project directory holding config, database and caches.
	Dir = ".worklog"

	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "WL"
)

// Config represents the complete worklog configuration
type Config struct {
	GitHub   GitHubConfig   `mapstructure:"github" yaml:"github"`
	Snapshot SnapshotConfig `mapstructure:"snapshot" yaml:"snapshot"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// GitHubConfig controls the issue tracker connection
type GitHubConfig struct {
	// Repo is owner/name. Required by the github commands.
	Repo string `mapstructure:"repo" yaml:"repo"`
	// LabelPrefix namespaces every managed label (default: "wl:")
	LabelPrefix string `mapstructure:"label_prefix" yaml:"label_prefix"`
	// Binary is the gh executable (default: "gh")
	Binary string `mapstructure:"binary" yaml:"binary"`
	// Timeout bounds each asynchronous tracker call (default: 60s)
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// MaxRetries is the number of retries of a rate limited call (default: 3)
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// InitialBackoff is the first retry delay, doubled per retry (default: 500ms)
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	// MinVersion is the oldest gh release accepted (default: 2.40.0)
	MinVersion string `mapstructure:"min_version" yaml:"min_version"`
	// TempDir holds streamed response buffers; empty uses the system default
	TempDir string `mapstructure:"temp_dir" yaml:"temp_dir"`
}

// SnapshotConfig locates the shared snapshot
type SnapshotConfig struct {
	Remote    string `mapstructure:"remote" yaml:"remote"`
	Ref       string `mapstructure:"ref" yaml:"ref"`
	Path      string `mapstructure:"path" yaml:"path"`
	CacheFile string `mapstructure:"cache_file" yaml:"cache_file"`
}

// StoreConfig controls the local record store
type StoreConfig struct {
	Path     string `mapstructure:"path" yaml:"path"`
	IDPrefix string `mapstructure:"id_prefix" yaml:"id_prefix"`
}

// LoggingConfig controls log output. An empty File logs to stderr.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		GitHub: GitHubConfig{
			LabelPrefix:    marker.DefaultPrefix,
			Binary:         "gh",
			Timeout:        transport.DefaultTimeout,
			MaxRetries:     transport.DefaultMaxRetries,
			InitialBackoff: transport.DefaultInitialBackoff,
			MinVersion:     github.DefaultMinVersion,
		},
		Snapshot: SnapshotConfig{
			Remote:    snapshot.DefaultRemote,
			Ref:       snapshot.DefaultRef,
			Path:      snapshot.DefaultPath,
			CacheFile: filepath.Join(Dir, "snapshot.jsonl"),
		},
		Store: StoreConfig{
			Path:     filepath.Join(Dir, "worklog.db"),
			IDPrefix: store.DefaultIDPrefix,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// SetDefaults registers every key's default on v. Keys without a default
// are invisible to environment overrides during Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("github.repo", d.GitHub.Repo)
	v.SetDefault("github.label_prefix", d.GitHub.LabelPrefix)
	v.SetDefault("github.binary", d.GitHub.Binary)
	v.SetDefault("github.timeout", d.GitHub.Timeout)
	v.SetDefault("github.max_retries", d.GitHub.MaxRetries)
	v.SetDefault("github.initial_backoff", d.GitHub.InitialBackoff)
	v.SetDefault("github.min_version", d.GitHub.MinVersion)
	v.SetDefault("github.temp_dir", d.GitHub.TempDir)

	v.SetDefault("snapshot.remote", d.Snapshot.Remote)
	v.SetDefault("snapshot.ref", d.Snapshot.Ref)
	v.SetDefault("snapshot.path", d.Snapshot.Path)
	v.SetDefault("snapshot.cache_file", d.Snapshot.CacheFile)

	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.id_prefix", d.Store.IDPrefix)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
}

// New returns a viper instance with defaults and environment overrides
// wired. When file is empty, dir/.worklog/config.{yaml,toml,json} is used if
// present; an explicit file must exist.
func New(dir, file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(dir, Dir))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Backoff returns the retry policy for tracker calls.
func (c GitHubConfig) Backoff() transport.Backoff {
	return transport.Backoff{MaxRetries: c.MaxRetries, Initial: c.InitialBackoff}
}

// ResolvePath makes a configured relative path relative to root.
func ResolvePath(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
