package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/stchats/chatsync/internal/store"
	"github.com/stchats/chatsync/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "view",
	Short:   "List synced chats",
	Long: `List the chats in the local database, most recently active first.

Examples:
  chatsync list
  chatsync list --character Aqua
  chatsync list --since "3 days ago"
  chatsync list --since 2024-05-01 --limit 20 --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		character, _ := cmd.Flags().GetString("character")
		since, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		if limit < 0 {
			return fmt.Errorf("--limit must be >= 0, got %d", limit)
		}

		filter := store.ListFilter{Character: character, Limit: limit}
		if since != "" {
			t, err := parseSince(since, time.Now())
			if err != nil {
				return err
			}
			filter.Since = t
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		chats, err := database.ListChats(cmd.Context(), filter)
		if err != nil {
			return err
		}

		if asJSON {
			if chats == nil {
				chats = []store.ChatSummary{}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(chats)
		}

		printChatList(os.Stdout, chats)
		return nil
	},
}

// parseSince accepts RFC3339, a plain date, or natural language relative to now.
func parseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: expected RFC3339, YYYY-MM-DD or a phrase like \"3 days ago\"", s)
	}
	return r.Time, nil
}

// printChatList writes a plain table of chats.
func printChatList(out io.Writer, chats []store.ChatSummary) {
	if len(chats) == 0 {
		fmt.Fprintf(out, "\n%s No chats\n\n", ui.RenderWarn("⚠"))
		return
	}

	fmt.Fprintf(out, "\n%s Chats (%d)\n\n", ui.RenderAccent("💬"), len(chats))
	for _, c := range chats {
		fmt.Fprintf(out, "  %s  %s  %s\n",
			c.Timestamp.Local().Format("2006-01-02 15:04"),
			c.Name,
			ui.RenderMuted(fmt.Sprintf("(%d messages, %s)", c.MessageCount, c.ID)),
		)
	}
	fmt.Fprintln(out)
}

func init() {
	listCmd.Flags().StringP("character", "c", "", "Only chats of this character folder")
	listCmd.Flags().String("since", "", "Only chats active since (RFC3339, YYYY-MM-DD, or \"3 days ago\")")
	listCmd.Flags().IntP("limit", "n", 0, "Maximum number of chats (0 = all)")
	listCmd.Flags().Bool("json", false, "Output JSON")
	rootCmd.AddCommand(listCmd)
}
