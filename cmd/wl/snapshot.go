package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/worklog/internal/config"
	"github.com/mschirtzinger/worklog/internal/snapshot"
	"github.com/mschirtzinger/worklog/internal/vcs"
	_ "github.com/mschirtzinger/worklog/internal/vcs/git"
	_ "github.com/mschirtzinger/worklog/internal/vcs/jj"
)

var snapshotCmd = &cobra.Command{
	Use:     "snapshot",
	GroupID: "sync",
	Short:   "Read the shared snapshot published on a git ref",
}

var snapshotPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch the snapshot ref and merge it into local work items",
	Long: `Fetch the configured snapshot ref from the remote and merge its records into
the local store.

The ref is fetched into a private tracking ref and the file is read from the
fetched tree, so the working copy and the current branch are never touched.

--ref takes either a full ref (refs/worklog/data) or a branch name (snapshots).
Explicit refs need git; with jj only branches are supported.`,
	RunE: runSnapshotPull,
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write local work items to the snapshot file",
	Long: `Write every local work item and comment to the snapshot file
(snapshot.path, relative to the project root) so it can be committed to the
snapshot ref and pulled by others.

The file is replaced atomically and records are written in a stable order,
so exporting unchanged data leaves the file byte-identical.`,
	Args: cobra.NoArgs,
	RunE: runSnapshotExport,
}

func init() {
	snapshotCmd.PersistentFlags().String("remote", "", "remote to fetch from (snapshot.remote)")
	snapshotCmd.PersistentFlags().String("ref", "", "ref or branch holding the snapshot (snapshot.ref)")
	snapshotPullCmd.Flags().BoolVarP(&syncVerbose, "verbose", "v", false, "show merge decisions")

	snapshotExportCmd.Flags().StringP("output", "o", "", "write here instead of snapshot.path")

	snapshotCmd.AddCommand(snapshotPullCmd)
	snapshotCmd.AddCommand(snapshotExportCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshotPull(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a := cur
	sc := a.cfg.Snapshot

	repo, err := vcs.GetForPath(a.root)
	if err != nil {
		return explainSnapshotError(err, sc.Remote)
	}
	if version, err := repo.Version(); err == nil {
		a.log.Debug("vcs ready", "vcs", repo.Name(), "version", version)
	}

	src, err := snapshot.NewSource(repo, snapshot.Config{Remote: sc.Remote, Ref: sc.Ref, Path: sc.Path}, a.log)
	if err != nil {
		return err
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	cache := ""
	if sc.CacheFile != "" {
		cache = config.ResolvePath(a.root, sc.CacheFile)
	}
	res, err := snapshot.NewPuller(src, st, snapshot.PullOptions{CacheFile: cache, Logger: a.log}).Pull(ctx)
	if err != nil {
		return explainSnapshotError(err, src.Mapping().Remote)
	}

	printPullResult(cmd.OutOrStdout(), a, src.Mapping(), sc.Path, cache, res)
	return nil
}

// explainSnapshotError adds a next step to the VCS failures a user can fix.
func explainSnapshotError(err error, remote string) error {
	switch {
	case vcs.IsFatal(err):
		return fmt.Errorf("snapshot pull needs a git or jj repository with its binary on PATH: %w", err)
	case errors.Is(err, vcs.ErrNoRemote):
		return fmt.Errorf("%w (add the remote or set snapshot.remote / --remote)", err)
	case errors.Is(err, vcs.ErrRefNotFound):
		return fmt.Errorf("%w (nothing published on %s yet? check snapshot.ref and snapshot.path)", err, remote)
	case errors.Is(err, vcs.ErrNotSupported):
		return fmt.Errorf("%w (jj can only fetch branches; use a branch for snapshot.ref or set WL_VCS=git)", err)
	}
	return err
}

func runSnapshotExport(cmd *cobra.Command, args []string) error {
	a := cur

	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		path = a.cfg.Snapshot.Path
	}
	path = config.ResolvePath(a.root, path)

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := snapshot.Export(cmd.Context(), st, path)
	if err != nil {
		return err
	}
	a.log.Info("exported snapshot", "path", path, "items", res.Items, "comments", res.Comments)

	fmt.Fprintf(cmd.OutOrStdout(), "%s Exported %d work item(s), %d comment(s) to %s\n",
		RenderPass("✓"), res.Items, res.Comments, a.relPath(path))
	return nil
}

func printPullResult(w io.Writer, a *app, m snapshot.Mapping, path, cache string, res *snapshot.PullResult) {
	fmt.Fprintf(w, "%s Pulled %s from %s %s\n", RenderPass("✓"), path, m.Remote, RenderAccent(m.Source))
	fmt.Fprintf(w, "   Snapshot:   %d work item(s), %d comment(s)", res.Items, res.Comments)
	if res.Skipped > 0 {
		fmt.Fprintf(w, ", %d unknown record(s) skipped", res.Skipped)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "   Work items: %d created, %d updated\n", len(res.Created), len(res.Updated))
	fmt.Fprintf(w, "   Comments:   %d created, %d updated\n", res.CommentsCreated, res.CommentsUpdated)
	if cache != "" {
		fmt.Fprintf(w, "   %s\n", RenderMuted("cached at "+a.relPath(cache)))
	}

	printConflicts(w, res.ConflictDetails, syncVerbose)
	printList(w, "Warnings", RenderWarn, res.Warnings, 20)
}
