package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stchats/chatsync/internal/github"
	"github.com/stchats/chatsync/internal/logging"
	"github.com/stchats/chatsync/internal/store"
	chatsync "github.com/stchats/chatsync/internal/sync"
	"github.com/stchats/chatsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Load chats from GitHub into the local database",
	Long: `Run one full sync from the configured GitHub repository.

This performs:
  1. Lists the character folders at the repository root
  2. Lists the .jsonl files in each folder
  3. Downloads and stores files whose content hash changed
  4. Prints the refreshed chat list

Any error aborts the run. Chats already written are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		quiet, _ := cmd.Flags().GetBool("quiet")
		refresher := &consoleRefresher{out: os.Stdout, chats: database}
		if quiet {
			refresher.out = io.Discard
		}

		syncer, err := newSyncer(database, chatsync.Options{
			Refresher: refresher,
			Alerter:   consoleAlerter{},
		})
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Printf("%s Syncing from %s...\n", ui.RenderAccent("🔄"), repoLabel())

		result, err := syncer.LoadFromGitHub(ctx, chatsync.TriggerCLI)
		if errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "\n%s Sync cancelled\n", ui.RenderWarn("⚠"))
			return errAlerted
		}
		if err != nil {
			return errAlerted
		}

		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), result.Duration.Round(time.Millisecond))
		fmt.Printf("   Folders: %d\n", result.Folders)
		fmt.Printf("   Files: %d\n", result.Files)
		fmt.Printf("   Created: %d, Updated: %d, Unchanged: %d, Skipped: %d\n",
			result.Created, result.Updated, result.Unchanged, result.Skipped)
		fmt.Printf("   Database: %s\n", database.Path())
		return nil
	},
}

// newSyncer wires the GitHub client and database into a Syncer.
func newSyncer(database *store.DB, opts chatsync.Options) (chatsync.Syncer, error) {
	client, err := github.New(github.Options{
		Owner:  cfg.GitHub.Username,
		Repo:   cfg.GitHub.Repo,
		Branch: cfg.GitHub.Branch,
		Token:  cfg.GitHub.Token,
	})
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("sync")
	}
	return chatsync.New(client, database, opts), nil
}

func repoLabel() string {
	label := cfg.GitHub.Username + "/" + cfg.GitHub.Repo
	if cfg.GitHub.Branch != "" {
		label += "@" + cfg.GitHub.Branch
	}
	return label
}

// consoleRefresher prints the chat list after a run.
type consoleRefresher struct {
	out   io.Writer
	chats *store.DB
}

func (r *consoleRefresher) RefreshChatList(ctx context.Context) error {
	chats, err := r.chats.ListChats(ctx, store.ListFilter{})
	if err != nil {
		return err
	}
	printChatList(r.out, chats)
	return nil
}

// consoleAlerter prints sync failures to stderr.
type consoleAlerter struct{}

func (consoleAlerter) Alert(msg string) {
	fmt.Fprintf(os.Stderr, "\n%s %s\n\n", ui.RenderFail("✗"), ui.RenderFail(msg))
}

func init() {
	syncCmd.Flags().BoolP("quiet", "q", false, "Do not print the chat list")
	rootCmd.AddCommand(syncCmd)
}
