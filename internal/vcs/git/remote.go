package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/stchats/chatsync/internal/vcs"
)

// HasRemote returns true if the named remote is configured
func (g *Git) HasRemote(ctx context.Context, name string) bool {
	output, err := g.Exec(ctx, "remote")
	if err != nil {
		return false
	}

	for _, remote := range vcs.ParseLines(output) {
		if remote == name {
			return true
		}
	}
	return false
}

// AddRemote adds a remote, or updates its URL when it already exists
func (g *Git) AddRemote(ctx context.Context, name, url string) error {
	if name == "" || url == "" {
		return fmt.Errorf("remote name and url are required")
	}

	verb := "add"
	if g.HasRemote(ctx, name) {
		verb = "set-url"
	}

	if output, err := vcs.ExecContext(ctx, g.Timeout, g.repoRoot, "git", "remote", verb, name, url); err != nil {
		// The URL may carry a token, keep it out of the error
		return fmt.Errorf("git remote %s %s failed: %w\n%s",
			verb, name, err, vcs.RedactSecret(string(output), url))
	}
	return nil
}

// Push pushes opts.Ref to the remote
func (g *Git) Push(ctx context.Context, opts vcs.PushOptions) error {
	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}
	if !g.HasRemote(ctx, remote) {
		return vcs.ErrNoRemote
	}

	if opts.Ref == "" {
		return fmt.Errorf("push ref is required")
	}

	args := []string{"push"}
	if opts.SetUpstream {
		args = append(args, "-u")
	}
	args = append(args, remote, opts.Ref)

	output, err := vcs.ExecContext(ctx, g.Timeout, g.repoRoot, "git", args...)
	if err != nil {
		outputStr := string(output)

		if strings.Contains(outputStr, "rejected") || strings.Contains(outputStr, "non-fast-forward") {
			return vcs.ErrPushRejected
		}

		return fmt.Errorf("git push failed: %w\n%s", err, outputStr)
	}

	return nil
}
