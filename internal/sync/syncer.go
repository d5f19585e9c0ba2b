package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/stchats/chatsync/internal/chatlog"
	"github.com/stchats/chatsync/internal/github"
	"github.com/stchats/chatsync/internal/store"
)

// syncer implements the Syncer interface.
type syncer struct {
	source    Source
	store     Store
	refresher Refresher
	alerter   Alerter
	observer  Observer
	parse     Parser
	logger    *log.Logger
	now       func() time.Time
}

// New creates a new Syncer reading from source and writing to st.
//
// The store must have its schema initialized.
//
// Example:
//
//	database, err := store.Open(path)
//	if err != nil {
//	    return err
//	}
//	if err := database.InitSchema(); err != nil {
//	    return err
//	}
//	syncer := sync.New(client, database, sync.Options{})
func New(source Source, st Store, opts Options) Syncer {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if opts.Parser == nil {
		opts.Parser = chatlog.ParseChatContent
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &syncer{
		source:    source,
		store:     st,
		refresher: opts.Refresher,
		alerter:   opts.Alerter,
		observer:  opts.Observer,
		parse:     opts.Parser,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// LoadFromGitHub implements Syncer.LoadFromGitHub.
func (s *syncer) LoadFromGitHub(ctx context.Context, trigger Trigger) (*Result, error) {
	started := s.now()
	result := &Result{RunID: uuid.NewString()}

	s.logger.Printf("Starting sync %s (trigger=%s)", result.RunID, trigger)

	err := s.load(ctx, result)
	result.Duration = s.now().Sub(started)

	run := &store.SyncRun{
		ID:         result.RunID,
		Trigger:    string(trigger),
		StartedAt:  started,
		FinishedAt: started.Add(result.Duration),
		Folders:    result.Folders,
		Files:      result.Files,
		Created:    result.Created,
		Updated:    result.Updated,
		Unchanged:  result.Unchanged,
		Skipped:    result.Skipped,
	}
	if err != nil {
		run.Error = err.Error()
	}
	// A cancelled run is still recorded.
	if recErr := s.store.RecordSyncRun(context.WithoutCancel(ctx), run); recErr != nil {
		s.logger.Printf("WARNING: Failed to record sync run %s: %v", result.RunID, recErr)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Printf("Sync %s cancelled", result.RunID)
			return nil, err
		}
		s.logger.Printf("ERROR: Failed to load from GitHub: %v", err)
		if s.alerter != nil {
			s.alerter.Alert(fmt.Sprintf("Failed to load from GitHub: %v. Please check the configuration.", err))
		}
		return nil, err
	}

	s.logger.Printf("Sync complete: folders=%d files=%d created=%d updated=%d unchanged=%d skipped=%d (%s)",
		result.Folders, result.Files, result.Created, result.Updated,
		result.Unchanged, result.Skipped, result.Duration.Round(time.Millisecond))

	return result, nil
}

// load walks the repository and stops at the first error.
func (s *syncer) load(ctx context.Context, result *Result) error {
	root, err := s.source.ListDir(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list character folders: %w", err)
	}

	// seen maps chat ids to the file that produced them in this run.
	seen := make(map[string]string)

	for _, folder := range root {
		if !folder.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		result.Folders++
		if err := s.syncFolder(ctx, folder, result, seen); err != nil {
			return err
		}
	}

	if s.refresher != nil {
		if err := s.refresher.RefreshChatList(ctx); err != nil {
			return fmt.Errorf("failed to refresh chat list: %w", err)
		}
	}

	return nil
}

// syncFolder processes every chat file of one character folder.
func (s *syncer) syncFolder(ctx context.Context, folder github.Entry, result *Result, seen map[string]string) error {
	files, err := s.source.ListDir(ctx, folder.Path)
	if err != nil {
		return fmt.Errorf("failed to list folder %s: %w", folder.Name, err)
	}

	for _, file := range files {
		if file.Type != github.TypeFile || !chatlog.IsChatFile(file.Name) {
			continue
		}

		result.Files++
		id := chatlog.ChatID(folder.Name, file.Name)
		if prev, ok := seen[id]; ok {
			s.logger.Printf("WARNING: %s and %s share chat id %s; the later file overwrites the earlier", prev, file.Path, id)
		}
		seen[id] = file.Path

		if err := s.syncFile(ctx, folder.Name, file, result); err != nil {
			return err
		}
	}

	return nil
}

// syncFile downloads, parses and upserts one chat file unless its SHA is unchanged.
func (s *syncer) syncFile(ctx context.Context, folder string, file github.Entry, result *Result) error {
	id := chatlog.ChatID(folder, file.Name)

	existing, err := s.store.GetChat(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read chat %s: %w", id, err)
	}
	if !existing.Changed(file.SHA) {
		result.Unchanged++
		return nil
	}

	data, err := s.source.Download(ctx, file)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", file.Path, err)
	}

	parsed, err := s.parse(string(data))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", file.Path, err)
	}
	if len(parsed.Messages) == 0 {
		s.logger.Printf("Skipping %s: no messages", file.Path)
		result.Skipped++
		return nil
	}

	rec := chatlog.NewRecord(folder, file.Name, file.SHA, parsed, s.now())
	if err := s.store.SaveChat(ctx, rec); err != nil {
		return fmt.Errorf("failed to save chat %s: %w", id, err)
	}

	created := existing == nil
	if created {
		result.Created++
		s.logger.Printf("Created chat: %s (%d messages)", rec.Name, len(rec.Messages))
	} else {
		result.Updated++
		s.logger.Printf("Updated chat: %s (%d messages)", rec.Name, len(rec.Messages))
	}

	if s.observer != nil {
		s.observer.OnChatSaved(rec, created)
	}
	return nil
}
