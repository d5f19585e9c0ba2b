// Package github reads SillyTavern chat files from a GitHub repository.
//
// The repository layout is one directory per character at the root, each
// holding that character's .jsonl chat files. The client lists directories
// through the contents API and downloads raw file content from the
// download_url each entry reports.
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	gogithub "github.com/google/go-github/v66/github"
)

// DefaultMaxFileSize caps a single download.
const DefaultMaxFileSize int64 = 32 << 20

// Entry types reported by the contents API.
const (
	TypeDir  = "dir"
	TypeFile = "file"
)

// Options configures a Client.
type Options struct {
	Owner  string
	Repo   string
	Branch string

	// Token is sent as a bearer token. Empty means anonymous access.
	Token string

	// BaseURL overrides the API endpoint (GitHub Enterprise or tests).
	BaseURL string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// MaxFileSize defaults to DefaultMaxFileSize.
	MaxFileSize int64
}

// Entry is one item of a directory listing.
type Entry struct {
	Name        string
	Path        string
	Type        string
	SHA         string
	Size        int
	DownloadURL string
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Type == TypeDir
}

// Client lists and downloads repository content.
type Client struct {
	gh      *gogithub.Client
	owner   string
	repo    string
	branch  string
	maxSize int64
}

// New creates a Client for the configured repository.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Owner) == "" {
		return nil, fmt.Errorf("github owner is required")
	}
	if strings.TrimSpace(opts.Repo) == "" {
		return nil, fmt.Errorf("github repo is required")
	}

	gh := gogithub.NewClient(opts.HTTPClient)
	if opts.Token != "" {
		gh = gh.WithAuthToken(opts.Token)
	}
	gh.UserAgent = "chatsync"

	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL %q: %w", opts.BaseURL, err)
		}
		gh.BaseURL = u
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	return &Client{
		gh:      gh,
		owner:   opts.Owner,
		repo:    opts.Repo,
		branch:  opts.Branch,
		maxSize: maxSize,
	}, nil
}

// Repository returns "owner/repo".
func (c *Client) Repository() string {
	return c.owner + "/" + c.repo
}

// ListDir lists the directory at path. The root is "".
//
// Any non-2xx response, including a rate-limit response, is returned as an
// error without retrying.
func (c *Client) ListDir(ctx context.Context, path string) ([]Entry, error) {
	var opts *gogithub.RepositoryContentGetOptions
	if c.branch != "" {
		opts = &gogithub.RepositoryContentGetOptions{Ref: c.branch}
	}

	file, dir, _, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", displayPath(path), err)
	}
	if file != nil {
		return nil, fmt.Errorf("failed to list %q: path is a file", displayPath(path))
	}

	entries := make([]Entry, 0, len(dir))
	for _, item := range dir {
		if item == nil {
			continue
		}
		entries = append(entries, Entry{
			Name:        item.GetName(),
			Path:        item.GetPath(),
			Type:        item.GetType(),
			SHA:         item.GetSHA(),
			Size:        item.GetSize(),
			DownloadURL: item.GetDownloadURL(),
		})
	}
	return entries, nil
}

// Download fetches the raw content of a file entry.
func (c *Client) Download(ctx context.Context, entry Entry) ([]byte, error) {
	if entry.DownloadURL == "" {
		return nil, fmt.Errorf("no download URL for %s", entry.Path)
	}

	req, err := c.gh.NewRequest(http.MethodGet, entry.DownloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", entry.Path, err)
	}

	resp, err := c.gh.BareDo(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", entry.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", entry.Path, err)
	}
	if int64(len(data)) > c.maxSize {
		return nil, fmt.Errorf("file %s exceeds %d bytes", entry.Path, c.maxSize)
	}
	return data, nil
}

func displayPath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
