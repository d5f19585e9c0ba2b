package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stchats/chatsync/internal/config"
	"github.com/stchats/chatsync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Create or inspect the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a new configuration file",
	Long: `Write a configuration file for chatsync.

On a terminal an interactive form asks for the repository settings.
Otherwise the values come from flags:

  chatsync config init --username alice --repo st-chats
  chatsync config init --format toml --path ~/.config/chatsync/chatsync.toml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		format, _ := cmd.Flags().GetString("format")
		force, _ := cmd.Flags().GetBool("force")
		interactive, _ := cmd.Flags().GetBool("interactive")

		format = strings.ToLower(format)
		if format != "yaml" && format != "toml" {
			return fmt.Errorf("--format must be yaml or toml, got %q", format)
		}
		if path == "" {
			path = "chatsync." + format
		}

		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to check %s: %w", path, err)
		}

		out := *cfg
		applyInitFlags(cmd, &out)

		if interactive && term.IsTerminal(int(os.Stdin.Fd())) {
			if err := runConfigForm(&out); err != nil {
				return err
			}
		}

		if err := out.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if err := config.Write(path, &out); err != nil {
			return err
		}

		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		if out.GitHub.Token == "" {
			fmt.Printf("   %s\n", ui.RenderMuted("No token saved. Set GITHUB_TOKEN for private repositories."))
		}
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		source := cfg.Source()
		if source == "" {
			source = ui.RenderMuted("(defaults and environment)")
		}

		fmt.Printf("\n%s Configuration\n\n", ui.RenderAccent("⚙"))
		fmt.Printf("Source: %s\n\n", source)

		fmt.Println("GitHub:")
		fmt.Printf("  Username: %s\n", cfg.GitHub.Username)
		fmt.Printf("  Repo: %s\n", cfg.GitHub.Repo)
		fmt.Printf("  Branch: %s\n", cfg.GitHub.Branch)
		fmt.Printf("  Token: %s\n", cfg.MaskedToken())
		fmt.Printf("Auto load: %t\n", cfg.AutoLoad)
		fmt.Printf("Refresh interval: %s\n", cfg.RefreshInterval())
		fmt.Printf("Database: %s\n", cfg.Database.Path)
		fmt.Printf("Dashboard port: %d\n", cfg.Dashboard.Port)

		if cfg.Backup.ChatsPath != "" || cfg.Backup.RepoPath != "" {
			fmt.Println("Backup:")
			fmt.Printf("  Chats: %s\n", cfg.Backup.ChatsPath)
			fmt.Printf("  Repository: %s\n", cfg.Backup.RepoPath)
			fmt.Printf("  Remote: %s\n", cfg.Backup.RemoteURL)
			fmt.Printf("  Interval: %s\n", cfg.BackupInterval())
		}
		if cfg.Log.File != "" {
			fmt.Printf("Log file: %s\n", cfg.Log.File)
		}

		if err := cfg.Validate(); err != nil {
			fmt.Printf("\n%s %v\n", ui.RenderWarn("⚠"), err)
		}
		fmt.Println()
		return nil
	},
}

// applyInitFlags copies explicitly set flags onto c.
func applyInitFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("username") {
		c.GitHub.Username, _ = flags.GetString("username")
	}
	if flags.Changed("repo") {
		c.GitHub.Repo, _ = flags.GetString("repo")
	}
	if flags.Changed("branch") {
		c.GitHub.Branch, _ = flags.GetString("branch")
	}
	if flags.Changed("refresh") {
		c.Refresh, _ = flags.GetInt("refresh")
	}
	if flags.Changed("no-auto-load") {
		noAuto, _ := flags.GetBool("no-auto-load")
		c.AutoLoad = !noAuto
	}
	// Tokens from the environment are not persisted unless asked for.
	if save, _ := flags.GetBool("save-token"); !save {
		c.GitHub.Token = ""
	}
}

func runConfigForm(c *config.Config) error {
	refresh := strconv.Itoa(c.Refresh)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("GitHub username").
				Description("Owner of the repository holding the chats").
				Value(&c.GitHub.Username).
				Validate(required("username")),
			huh.NewInput().
				Title("Repository").
				Value(&c.GitHub.Repo).
				Validate(required("repository")),
			huh.NewInput().
				Title("Branch").
				Value(&c.GitHub.Branch),
			huh.NewInput().
				Title("Token").
				Description("Leave empty to use GITHUB_TOKEN at runtime").
				EchoMode(huh.EchoModePassword).
				Value(&c.GitHub.Token),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Load chats automatically?").
				Value(&c.AutoLoad),
			huh.NewInput().
				Title("Refresh interval (ms)").
				Description("0 disables periodic refresh").
				Value(&refresh).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 0 {
						return fmt.Errorf("enter a non-negative number")
					}
					return nil
				}),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("config form: %w", err)
	}

	n, err := strconv.Atoi(refresh)
	if err != nil {
		return fmt.Errorf("invalid refresh interval %q: %w", refresh, err)
	}
	c.Refresh = n
	if c.GitHub.Branch == "" {
		c.GitHub.Branch = "main"
	}
	return nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func init() {
	configInitCmd.Flags().String("path", "", "Output file (default: ./chatsync.<format>)")
	configInitCmd.Flags().String("format", "yaml", "File format for the default path: yaml or toml")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configInitCmd.Flags().Bool("interactive", true, "Prompt on a terminal")
	configInitCmd.Flags().String("username", "", "GitHub username")
	configInitCmd.Flags().String("repo", "", "GitHub repository name")
	configInitCmd.Flags().String("branch", "main", "Branch to read")
	configInitCmd.Flags().Int("refresh", 60000, "Refresh interval in milliseconds (0 disables)")
	configInitCmd.Flags().Bool("no-auto-load", false, "Disable loading on daemon startup")
	configInitCmd.Flags().Bool("save-token", false, "Persist the token from the environment")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
