package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/worklog/internal/ghsync"
	"github.com/mschirtzinger/worklog/internal/github"
	"github.com/mschirtzinger/worklog/internal/marker"
	"github.com/mschirtzinger/worklog/internal/store"
	"github.com/mschirtzinger/worklog/internal/transport"
	"github.com/mschirtzinger/worklog/internal/types"
)

var (
	pushDryRun bool

	importSince       string
	importIncremental bool
	importCreateNew   bool

	syncVerbose bool
)

var githubCmd = &cobra.Command{
	Use:     "github",
	GroupID: "sync",
	Short:   "Push to and import from GitHub issues",
	Long: `Synchronize work items with the issues of one GitHub repository through the gh CLI.

Each pushed issue carries an identity marker in its body so later pushes and
imports find it again. Structured fields travel as labels under the configured
prefix (github.label_prefix, default "wl:").`,
}

var githubPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Create or update issues for changed work items",
	Long: `Push local work items and comments to GitHub.

Items whose linked issue is already up to date are skipped, so running push
twice in a row makes no remote writes the second time. Parent/child links are
mirrored as sub-issues.`,
	RunE: runGitHubPush,
}

var githubImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Merge GitHub issues into local work items",
	Long: `Import issues from GitHub and merge them into local work items.

Issues are matched by identity marker, then by linked issue number. Unmatched
issues without a marker are ignored unless --create-new is given.

--since accepts a timestamp, a date, a duration (72h) or a phrase ("2 days ago").
--incremental starts from the newest issue update seen by the last import.`,
	RunE: runGitHubImport,
}

func init() {
	githubCmd.PersistentFlags().String("repo", "", "repository as owner/name (github.repo)")
	githubCmd.PersistentFlags().String("label-prefix", "", "label namespace prefix (github.label_prefix)")
	githubCmd.PersistentFlags().BoolVarP(&syncVerbose, "verbose", "v", false, "show merge decisions")

	githubPushCmd.Flags().BoolVar(&pushDryRun, "dry-run", false, "report what would be written without writing")

	githubImportCmd.Flags().StringVar(&importSince, "since", "", "only issues updated since this time")
	githubImportCmd.Flags().BoolVar(&importIncremental, "incremental", false, "continue from the last import")
	githubImportCmd.Flags().BoolVar(&importCreateNew, "create-new", false, "create work items for unmarked issues")
	githubImportCmd.MarkFlagsMutuallyExclusive("since", "incremental")

	githubCmd.AddCommand(githubPushCmd)
	githubCmd.AddCommand(githubImportCmd)
	rootCmd.AddCommand(githubCmd)
}

// trackerClient builds the gh-backed client and checks the gh version.
func (a *app) trackerClient(ctx context.Context) (*github.Client, marker.Codec, error) {
	g := a.cfg.GitHub
	if g.Repo == "" {
		return nil, marker.Codec{}, errors.New("github.repo is not set (use --repo, WL_GITHUB_REPO or .worklog/config.yaml)")
	}

	codec, err := marker.NewCodec(g.LabelPrefix)
	if err != nil {
		return nil, marker.Codec{}, err
	}

	runner := transport.NewRunner(transport.Options{
		Backoff: g.Backoff(),
		Timeout: g.Timeout,
		TempDir: g.TempDir,
		Logger:  a.log,
	})
	client, err := github.NewClient(github.Config{
		Repo:   g.Repo,
		Binary: g.Binary,
		Runner: runner,
		Logger: a.log,
	})
	if err != nil {
		return nil, marker.Codec{}, err
	}

	version, err := client.CheckVersion(ctx, g.MinVersion)
	if err != nil {
		return nil, marker.Codec{}, err
	}
	a.log.Debug("gh ready", "version", version, "repo", client.Repo())
	return client, codec, nil
}

func runGitHubPush(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a := cur

	client, codec, err := a.trackerClient(ctx)
	if err != nil {
		return err
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	items, err := st.ListItems(ctx)
	if err != nil {
		return err
	}
	comments, err := st.ListComments(ctx, "")
	if err != nil {
		return err
	}

	progress, clearProgress := progressPrinter(cmd.ErrOrStderr())
	pusher := ghsync.NewPusher(client, ghsync.Config{Codec: codec, Progress: progress, Logger: a.log})

	out, err := pusher.Push(ctx, items, comments, ghsync.PushOptions{DryRun: pushDryRun})
	clearProgress()
	if err != nil {
		return err
	}

	if !pushDryRun {
		if err := saveLinkage(ctx, st, out); err != nil {
			return err
		}
	}

	printPushResult(cmd.OutOrStdout(), client.Repo(), out, pushDryRun)
	if n := len(out.Result.Errors); n > 0 {
		return fmt.Errorf("push finished with %d error(s)", n)
	}
	return nil
}

// saveLinkage persists the linkage Push recorded on items and comments.
func saveLinkage(ctx context.Context, st *store.Store, out *ghsync.PushOutput) error {
	if len(out.Items) > 0 {
		if err := st.SaveItems(ctx, out.Items); err != nil {
			return fmt.Errorf("failed to save work item linkage: %w", err)
		}
	}
	if len(out.Comments) > 0 {
		if err := st.SaveComments(ctx, out.Comments); err != nil {
			return fmt.Errorf("failed to save comment linkage: %w", err)
		}
	}
	return nil
}

func printPushResult(w io.Writer, repo string, out *ghsync.PushOutput, dryRun bool) {
	r := out.Result
	title := "Pushed to " + repo
	if dryRun {
		title = "Dry run against " + repo + " (nothing written)"
	}

	fmt.Fprintf(w, "%s %s\n", RenderPass("✓"), title)
	fmt.Fprintf(w, "   Issues:    %d created, %d updated, %d unchanged\n", r.Created, r.Updated, r.Skipped)
	fmt.Fprintf(w, "   Comments:  %d created, %d updated\n", r.CommentsCreated, r.CommentsUpdated)
	if r.LabelsCreated > 0 {
		fmt.Fprintf(w, "   Labels:    %d created\n", r.LabelsCreated)
	}
	if r.HierarchyLinked > 0 || r.HierarchyAdded > 0 {
		fmt.Fprintf(w, "   Hierarchy: %d linked, %d added\n", r.HierarchyLinked, r.HierarchyAdded)
	}
	if syncVerbose {
		fmt.Fprintf(w, "   %s\n", RenderMuted(fmt.Sprintf("took %s (issues %s, comments %s, hierarchy %s)",
			out.Timing.Total.Round(time.Millisecond),
			out.Timing.IssueUpsert.Round(time.Millisecond),
			(out.Timing.CommentList+out.Timing.CommentUpsert).Round(time.Millisecond),
			(out.Timing.HierarchyCheck+out.Timing.HierarchyLink+out.Timing.HierarchyVerify).Round(time.Millisecond))))
	}
	printList(w, "Errors", RenderFail, r.Errors, 20)
}

func runGitHubImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a := cur

	client, codec, err := a.trackerClient(ctx)
	if err != nil {
		return err
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	opts := ghsync.ImportOptions{CreateNew: importCreateNew}
	switch {
	case importIncremental:
		if opts.Since, err = st.LastImport(ctx); err != nil {
			return err
		}
	case importSince != "":
		if opts.Since, err = parseSince(importSince, time.Now()); err != nil {
			return err
		}
	}
	if importCreateNew {
		opts.IDGenerator = func() (string, error) { return st.GenerateID(ctx) }
	}

	local, err := st.ListItems(ctx)
	if err != nil {
		return err
	}

	progress, clearProgress := progressPrinter(cmd.ErrOrStderr())
	importer := ghsync.NewImporter(client, ghsync.Config{Codec: codec, Progress: progress, Logger: a.log})

	out, err := importer.Import(ctx, local, opts)
	clearProgress()
	if err != nil {
		return err
	}

	if err := saveImport(ctx, st, out); err != nil {
		return err
	}
	if !out.LatestUpdate.IsZero() && len(out.Errors) == 0 {
		if err := st.SetLastImport(ctx, out.LatestUpdate); err != nil {
			return err
		}
	}

	printImportResult(cmd.OutOrStdout(), client.Repo(), opts, out)
	if n := len(out.Errors); n > 0 {
		return fmt.Errorf("import finished with %d error(s)", n)
	}
	return nil
}

// saveImport stores created, updated and relinked items in one transaction.
func saveImport(ctx context.Context, st *store.Store, out *ghsync.ImportOutput) error {
	var save []*types.WorkItem
	save = append(save, out.Created...)
	save = append(save, out.Updated...)
	save = append(save, out.Relinked...)
	if len(save) == 0 {
		return nil
	}
	if err := st.SaveItems(ctx, save); err != nil {
		return fmt.Errorf("failed to save imported work items: %w", err)
	}
	return nil
}

func printImportResult(w io.Writer, repo string, opts ghsync.ImportOptions, out *ghsync.ImportOutput) {
	title := "Imported from " + repo
	if !opts.Since.IsZero() {
		title += " since " + opts.Since.Local().Format(time.DateTime)
	}

	fmt.Fprintf(w, "%s %s\n", RenderPass("✓"), title)
	fmt.Fprintf(w, "   Work items: %d created, %d updated, %d relinked\n", len(out.Created), len(out.Updated), len(out.Relinked))
	fmt.Fprintf(w, "   Markers:    %d issue(s) carried a worklog marker\n", out.MarkersFound)

	printConflicts(w, out.ConflictDetails, syncVerbose)
	printList(w, "Warnings", RenderWarn, out.Warnings, 20)
	printList(w, "Errors", RenderFail, out.Errors, 20)
}
