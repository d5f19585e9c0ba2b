// Command chatsync syncs SillyTavern chat logs from GitHub into a local database.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stchats/chatsync/internal/config"
	"github.com/stchats/chatsync/internal/logging"
	"github.com/stchats/chatsync/internal/store"
	"github.com/stchats/chatsync/internal/ui"
)

var (
	configPath string
	dbPath     string
	verbose    bool

	cfg *config.Config
)

// errAlerted means the failure was already shown to the user.
var errAlerted = errors.New("alert shown")

var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Sync SillyTavern chats between GitHub and a local database",
	Long: `chatsync mirrors SillyTavern chat logs stored in a GitHub repository
into a local database so they can be browsed offline.

The repository holds one folder per character with one .jsonl file per chat.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			loaded.Database.Path = dbPath
		}
		cfg = loaded

		logging.Setup(logging.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		}, verbose || forceVerbose(cmd))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Close()
	},
}

// forceVerbose reports whether cmd is long-running and always logs to stderr.
func forceVerbose(cmd *cobra.Command) bool {
	return cmd == daemonCmd || cmd == backupCmd
}

// openStore opens the configured database and ensures the schema exists.
func openStore() (*store.DB, error) {
	database, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := database.InitSchema(); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./chatsync.yaml or ~/.config/chatsync/chatsync.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides database.path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress to stderr")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "view", Title: "Viewing Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errAlerted) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}
