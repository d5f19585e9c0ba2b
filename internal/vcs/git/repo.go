package git

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/stchats/chatsync/internal/vcs"
)

// detect populates git repository information
func (g *Git) detect(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	output, err := vcs.ExecContext(context.Background(), g.Timeout, absPath,
		"git", "rev-parse", "--git-dir", "--show-toplevel")
	if err != nil {
		return vcs.ErrNotInVCS
	}

	lines := vcs.ParseLines(output)
	if len(lines) < 2 {
		return fmt.Errorf("unexpected git rev-parse output: got %d lines, expected 2", len(lines))
	}

	gitDir := lines[0]
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(absPath, gitDir)
	}

	g.vcsDir = gitDir
	g.repoRoot = normalizeRepoRoot(lines[1])
	return nil
}

// normalizeRepoRoot normalizes the repository root path
// Resolves symlinks so paths compare equal across temp dir aliases
func normalizeRepoRoot(path string) string {
	path = filepath.FromSlash(strings.TrimSpace(path))

	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	return path
}
