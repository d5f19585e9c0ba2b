// Package git wraps the git command line for the chat backup.
//
// Every operation shells out to git in the repository root. Errors carry
// git's combined output, with known failure modes mapped to the sentinel
// errors in internal/vcs.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/stchats/chatsync/internal/vcs"
)

// DefaultTimeout bounds a single git invocation.
const DefaultTimeout = 2 * time.Minute

// Git operates on one repository.
type Git struct {
	// repoRoot is the repository root directory path
	repoRoot string

	// vcsDir is the .git directory path
	vcsDir string

	// Timeout bounds each git command. Zero means no limit.
	Timeout time.Duration
}

// Available returns vcs.ErrVCSNotAvailable when git is not on PATH.
func Available() error {
	if _, err := exec.LookPath("git"); err != nil {
		return vcs.ErrVCSNotAvailable
	}
	return nil
}

// New creates a Git instance for the repository containing path.
func New(path string) (*Git, error) {
	if err := Available(); err != nil {
		return nil, err
	}

	g := &Git{Timeout: DefaultTimeout}
	if err := g.detect(path); err != nil {
		return nil, err
	}
	return g, nil
}

// Version returns the git version string
func (g *Git) Version(ctx context.Context) (string, error) {
	output, err := vcs.ExecContext(ctx, g.Timeout, "", "git", "--version")
	if err != nil {
		return "", fmt.Errorf("failed to get git version: %w", err)
	}

	// Output format: "git version 2.39.0"
	version := strings.TrimSpace(string(output))
	return strings.TrimPrefix(version, "git version "), nil
}

// RepoRoot returns the repository root directory path
func (g *Git) RepoRoot() (string, error) {
	if g.repoRoot == "" {
		return "", vcs.ErrNotInVCS
	}
	return g.repoRoot, nil
}

// VCSDir returns the .git directory path
func (g *Git) VCSDir() (string, error) {
	if g.vcsDir == "" {
		return "", vcs.ErrNotInVCS
	}
	return g.vcsDir, nil
}

// Exec executes a raw git command in the repository root
func (g *Git) Exec(ctx context.Context, args ...string) ([]byte, error) {
	output, err := vcs.ExecContext(ctx, g.Timeout, g.repoRoot, "git", args...)
	if err != nil {
		return output, fmt.Errorf("git %s failed: %w\n%s",
			strings.Join(args, " "), err, string(output))
	}

	return output, nil
}
