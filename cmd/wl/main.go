// Command wl keeps local work items in sync with GitHub issues and the
// shared git-ref snapshot.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mschirtzinger/worklog/internal/config"
	"github.com/mschirtzinger/worklog/internal/logging"
	"github.com/mschirtzinger/worklog/internal/store"
	"github.com/mschirtzinger/worklog/internal/vcs"
)

// app holds what every command needs once flags are parsed.
type app struct {
	root   string
	viper  *viper.Viper
	cfg    *config.Config
	log    *slog.Logger
	closer io.Closer
}

var (
	configFile string
	workDir    string
	logLevel   string

	cur *app
)

var rootCmd = &cobra.Command{
	Use:   "wl",
	Short: "Synchronize work items with GitHub issues and git snapshots",
	Long: `wl reconciles locally stored work items and comments with two shared copies:
GitHub issues (push and import) and a snapshot file published on a git ref.

Configuration is read from .worklog/config.yaml and WL_* environment variables.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cur != nil && cur.closer != nil {
			_ = cur.closer.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default .worklog/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", "", "run as if started in this directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// setup resolves the project root, loads configuration and builds the
// logger.
func setup(cmd *cobra.Command, args []string) error {
	dir := workDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		dir = wd
	}

	root := dir
	if det, err := vcs.Detect(dir); err == nil {
		root = det.RepoRoot
	} else if !errors.Is(err, vcs.ErrNotInVCS) {
		return err
	}

	v, err := config.New(root, configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		v.Set("logging.level", logLevel)
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg.Logging.File = config.ResolvePath(root, cfg.Logging.File)

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	cur = &app{root: root, viper: v, cfg: cfg, log: logger, closer: closer}
	logger.Debug("configuration loaded", "root", root, "config", v.ConfigFileUsed())
	return nil
}

// flagKeys maps command flag names to the config keys they override.
var flagKeys = map[string]string{
	"repo":         "github.repo",
	"label-prefix": "github.label_prefix",
	"remote":       "snapshot.remote",
	"ref":          "snapshot.ref",
}

// openStore opens the configured record store.
func (a *app) openStore() (*store.Store, error) {
	path := config.ResolvePath(a.root, a.cfg.Store.Path)
	s, err := store.Open(path, store.Options{IDPrefix: a.cfg.Store.IDPrefix, Logger: a.log})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}
	return s, nil
}

// relPath shortens p for display when it is under the project root.
func (a *app) relPath(p string) string {
	if rel, err := filepath.Rel(a.root, p); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return p
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", RenderFail("Error:"), err)
		os.Exit(1)
	}
}
