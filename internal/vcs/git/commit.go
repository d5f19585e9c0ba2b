package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/stchats/chatsync/internal/vcs"
)

// HasChanges returns true if there are uncommitted changes
// If paths are specified, only checks those paths
func (g *Git) HasChanges(ctx context.Context, paths ...string) (bool, error) {
	args := []string{"status", "--porcelain"}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}

	output, err := g.Exec(ctx, args...)
	if err != nil {
		return false, err
	}

	return len(strings.TrimSpace(string(output))) > 0, nil
}

// Add stages files for commit
func (g *Git) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	args := append([]string{"add", "--"}, paths...)
	_, err := g.Exec(ctx, args...)
	return err
}

// Commit commits the staged changes
func (g *Git) Commit(ctx context.Context, opts vcs.CommitOptions) error {
	if opts.Message == "" {
		return fmt.Errorf("commit message is required")
	}

	output, err := g.Exec(ctx, "commit", "-m", opts.Message)
	if err != nil {
		if strings.Contains(string(output), "nothing to commit") {
			return vcs.ErrNothingToCommit
		}
		return err
	}

	return nil
}
