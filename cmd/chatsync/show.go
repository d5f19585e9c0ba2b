package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stchats/chatsync/internal/chatlog"
	"github.com/stchats/chatsync/internal/ui"
)

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "view",
	Short:   "Show the messages of one chat",
	Long: `Print every message of a synced chat.

The id is "<character folder>_<file name>" as printed by 'chatsync list'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		rec, err := database.MustGetChat(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}

		printChat(os.Stdout, rec)
		return nil
	},
}

func printChat(out io.Writer, rec *chatlog.ChatRecord) {
	fmt.Fprintf(out, "\n%s %s\n", ui.RenderAccent("💬"), rec.Name)
	fmt.Fprintf(out, "%s\n\n", ui.RenderMuted(fmt.Sprintf("%d messages, last active %s, sha %s",
		len(rec.Messages), rec.Timestamp.Local().Format("2006-01-02 15:04"), shortSHA(rec.SHA))))

	for _, m := range rec.Messages {
		speaker := m.Name
		switch {
		case m.IsSystem:
			speaker = ui.RenderMuted(speaker)
		case m.IsUser:
			speaker = ui.RenderPass(speaker)
		default:
			speaker = ui.RenderAccent(speaker)
		}

		header := speaker
		if m.SendDate != "" {
			header += " " + ui.RenderMuted(string(m.SendDate))
		}
		fmt.Fprintln(out, header)
		for _, line := range strings.Split(m.Content, "\n") {
			fmt.Fprintf(out, "  %s\n", line)
		}
		fmt.Fprintln(out)
	}
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func init() {
	showCmd.Flags().Bool("json", false, "Output JSON")
	rootCmd.AddCommand(showCmd)
}
