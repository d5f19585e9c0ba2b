// Package backup pushes the local SillyTavern chat directory to GitHub.
//
// It is the producer side of the repository the sync routine reads:
// chats are mirrored into a local git repository with the same
// "<character>/<chat>.jsonl" layout, committed and pushed.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stchats/chatsync/internal/chatlog"
	"github.com/stchats/chatsync/internal/vcs"
	"github.com/stchats/chatsync/internal/vcs/git"
)

// Config configures a Manager.
type Config struct {
	// SourcePath is SillyTavern's chats directory (one folder per character).
	SourcePath string

	// RepoPath is the local git repository that mirrors SourcePath.
	RepoPath string

	// RemoteURL is the GitHub repository URL. Optional for local-only use.
	RemoteURL string

	// Token is embedded in https remote URLs when set.
	Token string

	// Branch defaults to "main".
	Branch string

	// Logger defaults to stderr with a "[backup] " prefix.
	Logger *log.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Result describes one SyncToGitHub call.
type Result struct {
	Copied    int
	Committed bool
	Pushed    bool
	Message   string

	// Reason explains why nothing was pushed.
	Reason string
}

// Manager mirrors chats into the backup repository and pushes them.
type Manager struct {
	cfg    Config
	git    *git.Git
	logger *log.Logger
}

// NewManager validates cfg and returns a Manager. Call InitRepo before syncing.
func NewManager(cfg Config) (*Manager, error) {
	if strings.TrimSpace(cfg.SourcePath) == "" {
		return nil, fmt.Errorf("backup chats path is required")
	}
	if strings.TrimSpace(cfg.RepoPath) == "" {
		return nil, fmt.Errorf("backup repo path is required")
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[backup] ", log.LstdFlags)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{cfg: cfg, logger: cfg.Logger}, nil
}

// AuthURL embeds token into an https remote URL. Other URLs are returned unchanged.
func AuthURL(remoteURL, token string) string {
	if token == "" {
		return remoteURL
	}
	u, err := url.Parse(remoteURL)
	if err != nil || u.Scheme != "https" {
		return remoteURL
	}
	u.User = url.User(token)
	return u.String()
}

// InitRepo opens the backup repository, creating and initializing it when
// RepoPath does not exist yet.
func (m *Manager) InitRepo(ctx context.Context) error {
	if _, err := os.Stat(m.cfg.RepoPath); err == nil {
		g, err := git.New(m.cfg.RepoPath)
		if err != nil {
			return fmt.Errorf("failed to open backup repository %s: %w", m.cfg.RepoPath, err)
		}
		m.git = g
		m.logger.Printf("Using existing repository: %s", m.cfg.RepoPath)

		if m.cfg.RemoteURL != "" && !g.HasRemote(ctx, "origin") {
			if err := g.AddRemote(ctx, "origin", AuthURL(m.cfg.RemoteURL, m.cfg.Token)); err != nil {
				return fmt.Errorf("failed to add remote: %w", m.redact(err))
			}
		}
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat backup repository: %w", err)
	}

	m.logger.Printf("Creating repository: %s", m.cfg.RepoPath)
	g, err := git.Init(ctx, m.cfg.RepoPath, m.cfg.Branch)
	if err != nil {
		return fmt.Errorf("failed to initialize backup repository: %w", err)
	}
	m.git = g

	if m.cfg.RemoteURL != "" {
		if err := g.AddRemote(ctx, "origin", AuthURL(m.cfg.RemoteURL, m.cfg.Token)); err != nil {
			return fmt.Errorf("failed to add remote: %w", m.redact(err))
		}
		m.logger.Printf("Remote origin: %s", vcs.RedactURL(m.cfg.RemoteURL))
	}

	return nil
}

// CopyChats mirrors every character's .jsonl files into the repository.
//
// A file is copied when the target is missing or older than the source.
// Modification times are preserved so unchanged files are not copied again.
func (m *Manager) CopyChats() (int, error) {
	entries, err := os.ReadDir(m.cfg.SourcePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read chats directory: %w", err)
	}

	copied := 0
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		srcDir := filepath.Join(m.cfg.SourcePath, entry.Name())
		dstDir := filepath.Join(m.cfg.RepoPath, entry.Name())

		files, err := os.ReadDir(srcDir)
		if err != nil {
			return copied, fmt.Errorf("failed to read character folder %s: %w", entry.Name(), err)
		}

		for _, f := range files {
			if f.IsDir() || !chatlog.IsChatFile(f.Name()) {
				continue
			}

			src := filepath.Join(srcDir, f.Name())
			dst := filepath.Join(dstDir, f.Name())

			newer, err := isNewer(src, dst)
			if err != nil {
				return copied, err
			}
			if !newer {
				continue
			}

			if err := os.MkdirAll(dstDir, 0755); err != nil {
				return copied, fmt.Errorf("failed to create %s: %w", dstDir, err)
			}
			if err := copyFile(src, dst); err != nil {
				return copied, err
			}
			copied++
		}
	}

	return copied, nil
}

// SyncToGitHub copies chats, commits them and pushes to origin.
func (m *Manager) SyncToGitHub(ctx context.Context) (*Result, error) {
	if m.git == nil {
		if err := m.InitRepo(ctx); err != nil {
			return nil, err
		}
	}

	m.logger.Println("Starting backup")

	copied, err := m.CopyChats()
	if err != nil {
		return nil, fmt.Errorf("failed to copy chats: %w", err)
	}

	result := &Result{Copied: copied}
	if copied == 0 {
		result.Reason = "no changes"
		m.logger.Println("No new changes, skipping")
		return result, nil
	}
	m.logger.Printf("Copied %d files", copied)

	if err := m.git.Add(ctx, "."); err != nil {
		return result, fmt.Errorf("failed to stage chats: %w", err)
	}

	changed, err := m.git.HasChanges(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to check status: %w", err)
	}
	if !changed {
		result.Reason = "nothing to commit"
		m.logger.Println("Nothing to commit")
		return result, nil
	}

	result.Message = "Auto sync: " + m.cfg.Now().Format("2006-01-02 15:04:05")
	if err := m.git.Commit(ctx, vcs.CommitOptions{Message: result.Message}); err != nil {
		return result, fmt.Errorf("failed to commit: %w", err)
	}
	result.Committed = true

	if err := m.git.Push(ctx, vcs.PushOptions{Remote: "origin", Ref: m.cfg.Branch, SetUpstream: true}); err != nil {
		return result, fmt.Errorf("failed to push: %w", m.redact(err))
	}
	result.Pushed = true

	m.logger.Printf("Backup complete: %d files", copied)
	return result, nil
}

// redact strips the token from git's error output.
func (m *Manager) redact(err error) error {
	if m.cfg.Token == "" || !strings.Contains(err.Error(), m.cfg.Token) {
		return err
	}
	return errors.New(vcs.RedactSecret(err.Error(), m.cfg.Token))
}

// isNewer reports whether src should be copied over dst.
func isNewer(src, dst string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", src, err)
	}

	dstInfo, err := os.Stat(dst)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", dst, err)
	}

	return srcInfo.ModTime().After(dstInfo.ModTime()), nil
}

// copyFile copies src to dst and preserves the modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}

	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("failed to preserve mtime of %s: %w", dst, err)
	}
	return nil
}
