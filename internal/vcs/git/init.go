package git

import (
	"context"
	"fmt"
	"os"

	"github.com/stchats/chatsync/internal/vcs"
)

// Init creates path if needed, initializes a repository on branch and
// returns a Git for it. An empty branch uses git's default.
func Init(ctx context.Context, path, branch string) (*Git, error) {
	if err := Available(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create repository directory: %w", err)
	}

	args := []string{"init"}
	if branch != "" {
		args = append(args, "-b", branch)
	}

	output, err := vcs.ExecContext(ctx, DefaultTimeout, path, "git", args...)
	if err != nil {
		return nil, fmt.Errorf("git init failed: %w\n%s", err, string(output))
	}

	return New(path)
}
