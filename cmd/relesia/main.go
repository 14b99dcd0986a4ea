package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"relesia/internal/app"
	relerrors "relesia/internal/errors"
	"relesia/internal/scm"
	"relesia/internal/ui"
)

// version is set at build time via ldflags
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "relesia",
	Short:   "Relesia - keep a workspace of repositories in sync across SCM backends",
	Version: version,
	Long: `Relesia clones, updates, pins and commits to repositories through a pluggable
SCM connector layer. Git (including Bitbucket-hosted repositories) is supported;
Subversion and CVS are recognised but have no connector yet.

Credentials are read from the environment:
  RELESIA_SCM_USERNAME, RELESIA_SCM_PASSWORD, RELESIA_SCM_TOKEN,
  RELESIA_SCM_SSH_KEY, RELESIA_SCM_SSH_PASSPHRASE`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var connectorsCmd = &cobra.Command{
	Use:   "connectors",
	Short: "List recognised SCM kinds and whether they are supported",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		console := consoleFor(cmd)
		var supported, unsupported []string
		for _, status := range connectorResolver.Describe() {
			name := status.Kind.String()
			if status.AliasOf != "" {
				name = fmt.Sprintf("%s (via %s connector)", name, status.AliasOf)
			}
			if status.Supported {
				supported = append(supported, name)
			} else {
				unsupported = append(unsupported, name)
			}
		}
		console.PrintList("Supported:", supported, "(none)")
		console.PrintList("Recognised but unsupported:", unsupported, "(none)")
		return nil
	},
}

var cloneCmd = &cobra.Command{
	Use:   "clone <url> <destination>",
	Short: "Clone a repository into a local directory",
	Long: `Clone materialises a working copy of the remote at the destination. Cloning
again into a directory that already holds a clone of the same remote reuses it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConnector(cmd, func(ctx context.Context, conn scm.Connector) error {
			wc, err := conn.Clone(ctx, args[0], args[1], credentialsFromEnv())
			if err != nil {
				return err
			}
			consoleFor(cmd).PrintSuccess(fmt.Sprintf("Cloned %s into %s (branch %s)", args[0], wc.Path, wc.Branch))
			return nil
		})
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <path>",
	Short: "Fetch upstream changes without merging them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkingCopy(cmd, args[0], func(ctx context.Context, conn scm.Connector, wc *scm.WorkingCopy) error {
			changes, err := conn.FetchChanges(ctx, wc)
			if err != nil {
				return err
			}

			console := consoleFor(cmd)
			if changes.IsEmpty() {
				console.PrintSuccess("Up to date with upstream")
				return nil
			}
			summaries := make([]string, 0, len(changes.Changes))
			for _, change := range changes.Changes {
				summaries = append(summaries, change.Summary())
			}
			console.PrintList(fmt.Sprintf("%d upstream change(s) on %s not yet merged:", len(changes.Changes), changes.Ref), summaries, "")
			return nil
		})
	},
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout <path> <revision>",
	Short: "Switch a working copy to a branch, tag or commit",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkingCopy(cmd, args[0], func(ctx context.Context, conn scm.Connector, wc *scm.WorkingCopy) error {
			if err := conn.Checkout(ctx, wc, args[1]); err != nil {
				return err
			}
			consoleFor(cmd).PrintSuccess(fmt.Sprintf("Checked out %s", args[1]))
			return nil
		})
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit <path> [files...]",
	Short: "Stage files and commit them",
	Long: `Commit stages the listed files, or every change with --all, and records a
commit. It fails when nothing is staged.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		all, _ := cmd.Flags().GetBool("all")
		author := scm.Identity{
			Name:  viper.GetString("author_name"),
			Email: viper.GetString("author_email"),
		}

		paths := args[1:]
		if all {
			paths = []string{"."}
		}

		return withWorkingCopy(cmd, args[0], func(ctx context.Context, conn scm.Connector, wc *scm.WorkingCopy) error {
			if len(paths) > 0 {
				if err := conn.Stage(ctx, wc, paths...); err != nil {
					return err
				}
			}

			revision, err := conn.Commit(ctx, wc, message, author)
			if err != nil {
				return err
			}
			consoleFor(cmd).PrintSuccess(fmt.Sprintf("Committed %s", revision.Short()))
			return nil
		})
	},
}

var revisionCmd = &cobra.Command{
	Use:   "revision <path>",
	Short: "Print the revision a working copy is at",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkingCopy(cmd, args[0], func(ctx context.Context, conn scm.Connector, wc *scm.WorkingCopy) error {
			revision, err := conn.CurrentRevision(ctx, wc)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), revision)
			return nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync every repository in a workspace manifest",
	Long: `Sync brings each repository listed in the workspace manifest to its configured
state: cloned, checked out at the configured revision, fetched, and with its overlay
committed. Repositories sync concurrently; a failed run resumes where each
repository left off.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		retainState, _ := cmd.Flags().GetBool("retain-state")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		ctx, cancel := commandContext()
		defer cancel()

		report, err := app.Sync(ctx, file, app.SyncOptions{
			DryRun:      dryRun,
			RetainState: retainState,
			Concurrency: concurrency,
			Credentials: credentialsFromEnv(),
			Factory:     app.NewConnectorFactory(connectorResolver),
			Console:     consoleFor(cmd),
		})
		if err == nil || report == nil {
			return err
		}
		for _, result := range report.Repositories {
			if result.Err != nil {
				reportError(result.Err)
			}
		}
		return errReported
	},
}

// connectorResolver resolves the connector for every command.
var connectorResolver = scm.NewResolver(nil)

// errReported is returned once a command has already printed its failures.
var errReported = errors.New("errors already reported")

// commandContext bounds a command by --timeout when one is set.
func commandContext() (context.Context, context.CancelFunc) {
	timeout := viper.GetDuration("timeout")
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}

// withConnector resolves the connector named by --scm, runs fn and closes the
// connector however fn returns.
func withConnector(cmd *cobra.Command, fn func(ctx context.Context, conn scm.Connector) error) (err error) {
	kind, _ := cmd.Flags().GetString("scm")
	conn, err := connectorResolver.GetConnector(kind)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	ctx, cancel := commandContext()
	defer cancel()
	return fn(ctx, conn)
}

// withWorkingCopy is withConnector for commands acting on an existing
// working copy at path.
func withWorkingCopy(cmd *cobra.Command, path string, fn func(ctx context.Context, conn scm.Connector, wc *scm.WorkingCopy) error) error {
	return withConnector(cmd, func(ctx context.Context, conn scm.Connector) error {
		wc, err := conn.Open(ctx, path, credentialsFromEnv())
		if err != nil {
			return err
		}
		return fn(ctx, conn, wc)
	})
}

func consoleFor(cmd *cobra.Command) *ui.Console {
	if cmd.OutOrStdout() == os.Stdout {
		return ui.NewConsole()
	}
	return ui.NewConsoleWithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func credentialsFromEnv() scm.Credentials {
	return scm.Credentials{
		Username:      viper.GetString("scm_username"),
		Password:      viper.GetString("scm_password"),
		Token:         viper.GetString("scm_token"),
		SSHKeyPath:    viper.GetString("scm_ssh_key"),
		SSHPassphrase: viper.GetString("scm_ssh_passphrase"),
	}
}

func reportError(err error) {
	if !relerrors.HandleError(err) {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

func init() {
	viper.SetEnvPrefix("RELESIA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().Duration("timeout", 0, "Abort remote operations after this long (e.g. 2m); 0 waits indefinitely")
	if err := viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout")); err != nil {
		slog.Error("Failed to bind timeout flag", "error", err)
	}

	rootCmd.AddCommand(connectorsCmd)

	for _, cmd := range []*cobra.Command{cloneCmd, fetchCmd, checkoutCmd, commitCmd, revisionCmd} {
		cmd.Flags().String("scm", string(scm.KindGit), "SCM kind of the repository (git, bitbucket, svn, cvs)")
		rootCmd.AddCommand(cmd)
	}

	commitCmd.Flags().StringP("message", "m", "", "Commit message (required)")
	commitCmd.Flags().BoolP("all", "a", false, "Stage every change, including deletions, before committing")
	commitCmd.Flags().String("author-name", "", "Commit author name")
	commitCmd.Flags().String("author-email", "", "Commit author email")
	if err := commitCmd.MarkFlagRequired("message"); err != nil {
		slog.Error("Failed to mark message flag as required for commit command", "error", err)
	}
	if err := viper.BindPFlag("author_name", commitCmd.Flags().Lookup("author-name")); err != nil {
		slog.Error("Failed to bind author-name flag", "error", err)
	}
	if err := viper.BindPFlag("author_email", commitCmd.Flags().Lookup("author-email")); err != nil {
		slog.Error("Failed to bind author-email flag", "error", err)
	}

	syncCmd.Flags().StringP("file", "f", "relesia.yaml", "Path to the workspace manifest")
	syncCmd.Flags().Bool("dry-run", false, "Print what would happen without touching any repository")
	syncCmd.Flags().Bool("retain-state", false, "Keep the state file after successful completion for auditing purposes")
	syncCmd.Flags().Int("concurrency", app.DefaultConcurrency, "How many repositories to sync at once")
	rootCmd.AddCommand(syncCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			reportError(err)
		}
		os.Exit(1)
	}
}
