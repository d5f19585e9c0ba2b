package sync

import (
	"context"
	"log"
	"time"

	"github.com/stchats/chatsync/internal/chatlog"
	"github.com/stchats/chatsync/internal/github"
	"github.com/stchats/chatsync/internal/store"
)

// Trigger names what started a sync run.
type Trigger string

const (
	TriggerStartup  Trigger = "startup"
	TriggerInterval Trigger = "interval"
	TriggerManual   Trigger = "manual"
	TriggerCLI      Trigger = "cli"
)

// Syncer loads chats from the remote repository into local storage.
type Syncer interface {
	// LoadFromGitHub performs one full pass over the repository.
	//
	// Character folders are the root entries of type "dir". Within each
	// folder only .jsonl files are considered. New or changed files are
	// downloaded, parsed and upserted; unchanged files are not touched.
	// After all folders are processed the chat list is refreshed once.
	//
	// Any error aborts the run. The error is alerted and returned.
	//
	// Example:
	//   result, err := syncer.LoadFromGitHub(ctx, sync.TriggerManual)
	LoadFromGitHub(ctx context.Context, trigger Trigger) (*Result, error)
}

// Source lists and downloads repository content.
type Source interface {
	ListDir(ctx context.Context, path string) ([]github.Entry, error)
	Download(ctx context.Context, entry github.Entry) ([]byte, error)
}

// Store persists chat records and sync history.
type Store interface {
	// GetChat returns nil, nil when the chat does not exist.
	GetChat(ctx context.Context, id string) (*chatlog.ChatRecord, error)
	SaveChat(ctx context.Context, rec *chatlog.ChatRecord) error
	RecordSyncRun(ctx context.Context, run *store.SyncRun) error
}

// Refresher re-renders the chat list after a run.
type Refresher interface {
	RefreshChatList(ctx context.Context) error
}

// Alerter shows a failure message to the user.
type Alerter interface {
	Alert(msg string)
}

// Observer is notified after each chat is written.
type Observer interface {
	OnChatSaved(rec *chatlog.ChatRecord, created bool)
}

// Parser turns raw file content into messages.
type Parser func(text string) (chatlog.ParsedChat, error)

// Options configures a Syncer. Every field is optional.
type Options struct {
	Refresher Refresher
	Alerter   Alerter
	Observer  Observer

	// Parser defaults to chatlog.ParseChatContent.
	Parser Parser

	// Logger defaults to stderr with a "[sync] " prefix.
	Logger *log.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Result summarizes a completed run.
type Result struct {
	RunID     string
	Folders   int
	Files     int
	Created   int
	Updated   int
	Unchanged int
	Skipped   int
	Duration  time.Duration
}

// Changed returns the number of chats written during the run.
func (r *Result) Changed() int {
	return r.Created + r.Updated
}
