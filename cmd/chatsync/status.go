package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stchats/chatsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "view",
	Short:   "Show local database status",
	Long: `Display the current status of the local chat database.

Shows:
  - Database location and size
  - Number of chats and characters
  - The last sync run and its outcome`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Database.Path

		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			fmt.Printf("\n%s Database not initialized\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'chatsync sync' to create it\n\n")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to check database: %w", err)
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := cmd.Context()
		chatCount, err := database.GetChatCount(ctx)
		if err != nil {
			return err
		}
		characterCount, err := database.GetCharacterCount(ctx)
		if err != nil {
			return err
		}
		last, err := database.LastSyncRun(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("\n%s Chat Database Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Location: %s\n", path)
		fmt.Printf("Size: %s\n", formatSize(info.Size()))
		fmt.Printf("Chats: %d\n", chatCount)
		fmt.Printf("Characters: %d\n", characterCount)
		if cfg.GitHub.Repo != "" {
			fmt.Printf("Repository: %s\n", repoLabel())
		}

		if last == nil {
			fmt.Printf("Last sync: %s\n", ui.RenderMuted("never"))
			fmt.Println()
			return nil
		}

		fmt.Printf("Last sync: %s (%s, %v)\n",
			last.StartedAt.Local().Format("2006-01-02 15:04:05"),
			last.Trigger,
			last.FinishedAt.Sub(last.StartedAt).Round(time.Millisecond))
		if last.Failed() {
			fmt.Printf("   %s %s\n", ui.RenderFail("✗"), last.Error)
		} else {
			fmt.Printf("   %s created %d, updated %d, unchanged %d, skipped %d\n",
				ui.RenderPass("✓"), last.Created, last.Updated, last.Unchanged, last.Skipped)
		}
		fmt.Println()
		return nil
	},
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
