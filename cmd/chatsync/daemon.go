package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stchats/chatsync/internal/daemon"
	"github.com/stchats/chatsync/internal/dashboard"
	"github.com/stchats/chatsync/internal/logging"
	chatsync "github.com/stchats/chatsync/internal/sync"
	"github.com/stchats/chatsync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync loop and the chat viewer (foreground)",
	Long: `Start the sync daemon and the chat viewer dashboard.

The daemon will:
  1. Sync from GitHub on startup (when auto_load is enabled)
  2. Sync again every refresh_interval milliseconds (0 disables the timer)
  3. Serve the viewer at http://localhost:<port>/ with live updates over /ws
  4. Sync on demand when the viewer's refresh button is pressed

Failures are shown as alerts in the viewer and the daemon keeps running.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		noDashboard, _ := cmd.Flags().GetBool("no-dashboard")

		database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		opts := chatsync.Options{Alerter: consoleAlerter{}}

		var server *dashboard.Server
		if !noDashboard {
			server = dashboard.NewServer(&dashboard.Config{
				Port:   port,
				Chats:  database,
				Logger: logging.New("dashboard"),
			})
			handler := dashboard.NewHandler(server, database, logging.New("dashboard"))
			opts.Refresher = handler
			opts.Alerter = handler
			opts.Observer = handler
		}

		syncer, err := newSyncer(database, opts)
		if err != nil {
			return err
		}

		d, err := daemon.New(syncer, &daemon.Config{
			AutoLoad:        cfg.AutoLoad,
			RefreshInterval: cfg.RefreshInterval(),
			Logger:          logging.New("daemon"),
		})
		if err != nil {
			return err
		}

		if server != nil {
			server.SetTrigger(d.TriggerRefresh)
			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer func() {
				if err := server.Stop(); err != nil {
					fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
				}
			}()
		}

		fmt.Printf("%s Starting chatsync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Repository: %s\n", repoLabel())
		fmt.Printf("   Database: %s\n", database.Path())
		if cfg.AutoLoad && cfg.Refresh > 0 {
			fmt.Printf("   Refresh: every %s\n", cfg.RefreshInterval())
		} else {
			fmt.Printf("   Refresh: %s\n", ui.RenderMuted("manual only"))
		}
		if server != nil {
			fmt.Printf("   Viewer: http://%s/\n", displayAddr(server.GetAddr()))
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			return fmt.Errorf("daemon stopped with error: %w", err)
		}

		stats := d.Stats()
		fmt.Printf("\n%s Daemon stopped after %d runs (%d failed)\n", ui.RenderPass("✓"), stats.Runs, stats.Failures)
		return nil
	},
}

// displayAddr turns a wildcard listen address into a clickable one.
func displayAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "::" || host == "0.0.0.0" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

func init() {
	daemonCmd.Flags().IntP("port", "p", 8080, "Dashboard port (overrides dashboard.port)")
	daemonCmd.Flags().Bool("no-dashboard", false, "Run the sync loop without the viewer")
	rootCmd.AddCommand(daemonCmd)
}
