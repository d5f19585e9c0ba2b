package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stchats/chatsync/internal/backup"
	"github.com/stchats/chatsync/internal/logging"
	"github.com/stchats/chatsync/internal/ui"
	"github.com/stchats/chatsync/internal/vcs"
)

var backupCmd = &cobra.Command{
	Use:     "backup",
	GroupID: "sync",
	Short:   "Push local SillyTavern chats to the GitHub repository",
	Long: `Copy SillyTavern's chats directory into a local git repository,
commit and push it. This produces the repository layout the sync command reads.

With --watch the chats directory is monitored and new or changed chats are
pushed automatically:
  - a new chat file is pushed after backup.settle_delay milliseconds
  - writes to existing chats are pushed at most every backup.interval seconds`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateBackup(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		watch, _ := cmd.Flags().GetBool("watch")

		logger := logging.New("backup")
		manager, err := backup.NewManager(backup.Config{
			SourcePath: cfg.Backup.ChatsPath,
			RepoPath:   cfg.Backup.RepoPath,
			RemoteURL:  cfg.Backup.RemoteURL,
			Token:      cfg.GitHub.Token,
			Branch:     cfg.GitHub.Branch,
			Logger:     logger,
		})
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := manager.InitRepo(ctx); err != nil {
			return err
		}

		fmt.Printf("%s Backing up %s...\n", ui.RenderAccent("🔄"), cfg.Backup.ChatsPath)
		result, err := manager.SyncToGitHub(ctx)
		if err != nil {
			if vcs.IsRetryable(err) && watch {
				fmt.Fprintf(os.Stderr, "%s Initial backup failed, will retry on changes: %v\n", ui.RenderWarn("⚠"), err)
			} else {
				return err
			}
		} else {
			printBackupResult(result)
		}

		if !watch {
			return nil
		}

		watcher, err := backup.NewWatcher(manager, cfg.Backup.ChatsPath, backup.WatchOptions{
			Interval:    cfg.BackupInterval(),
			SettleDelay: cfg.SettleDelay(),
			Logger:      logger,
		})
		if err != nil {
			return err
		}

		fmt.Printf("\n%s Watching %s\n", ui.RenderAccent("👀"), cfg.Backup.ChatsPath)
		fmt.Printf("   Repository: %s\n", cfg.Backup.RepoPath)
		fmt.Printf("   Interval: %s\n", cfg.BackupInterval())
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		return watcher.Run(ctx)
	},
}

func printBackupResult(result *backup.Result) {
	switch {
	case result.Pushed:
		fmt.Printf("%s Pushed %d files\n", ui.RenderPass("✓"), result.Copied)
		fmt.Printf("   Commit: %s\n", result.Message)
	case result.Committed:
		fmt.Printf("%s Committed %d files but did not push\n", ui.RenderWarn("⚠"), result.Copied)
	default:
		fmt.Printf("%s Nothing to back up (%s)\n", ui.RenderPass("✓"), result.Reason)
	}
}

func init() {
	backupCmd.Flags().BoolP("watch", "w", false, "Keep running and push on every change")
	rootCmd.AddCommand(backupCmd)
}
