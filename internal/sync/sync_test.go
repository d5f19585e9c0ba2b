package sync

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stchats/chatsync/internal/chatlog"
	"github.com/stchats/chatsync/internal/github"
	"github.com/stchats/chatsync/internal/store"
)

// fakeSource serves an in-memory repository: folder -> file name -> content.
type fakeSource struct {
	folders   map[string]map[string]string
	shas      map[string]string
	order     []string
	downloads []string
	listErr   map[string]error
	extra     map[string][]github.Entry
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		folders: make(map[string]map[string]string),
		shas:    make(map[string]string),
		listErr: make(map[string]error),
		extra:   make(map[string][]github.Entry),
	}
}

func (f *fakeSource) put(folder, file, sha, content string) {
	if _, ok := f.folders[folder]; !ok {
		f.folders[folder] = make(map[string]string)
		f.order = append(f.order, folder)
	}
	f.folders[folder][file] = content
	f.shas[folder+"/"+file] = sha
}

func (f *fakeSource) ListDir(ctx context.Context, path string) ([]github.Entry, error) {
	if err := f.listErr[path]; err != nil {
		return nil, err
	}

	var entries []github.Entry
	if path == "" {
		for _, folder := range f.order {
			entries = append(entries, github.Entry{Name: folder, Path: folder, Type: github.TypeDir})
		}
		return append(entries, f.extra[""]...), nil
	}

	files, ok := f.folders[path]
	if !ok {
		return nil, errors.New("404 Not Found")
	}
	for name := range files {
		p := path + "/" + name
		entries = append(entries, github.Entry{
			Name:        name,
			Path:        p,
			Type:        github.TypeFile,
			SHA:         f.shas[p],
			DownloadURL: "https://raw.example/" + p,
		})
	}
	return append(entries, f.extra[path]...), nil
}

func (f *fakeSource) Download(ctx context.Context, e github.Entry) ([]byte, error) {
	f.downloads = append(f.downloads, e.Path)
	folder, file, _ := strings.Cut(e.Path, "/")
	content, ok := f.folders[folder][file]
	if !ok {
		return nil, errors.New("404 Not Found")
	}
	return []byte(content), nil
}

type recorder struct {
	refreshes int
	alerts    []string
	saved     map[string]bool
	refErr    error
}

func (r *recorder) RefreshChatList(ctx context.Context) error {
	r.refreshes++
	return r.refErr
}

func (r *recorder) Alert(msg string) {
	r.alerts = append(r.alerts, msg)
}

func (r *recorder) OnChatSaved(rec *chatlog.ChatRecord, created bool) {
	if r.saved == nil {
		r.saved = make(map[string]bool)
	}
	r.saved[rec.ID] = created
}

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *store.DB {
	t.Helper()

	database, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := database.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return database
}

func newTestSyncer(src Source, st Store, rec *recorder) Syncer {
	return New(src, st, Options{
		Refresher: rec,
		Alerter:   rec,
		Observer:  rec,
		Logger:    log.New(io.Discard, "", 0),
		Now: func() time.Time {
			return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		},
	})
}

const sampleChat = `{"user_name":"You","character_name":"Aqua","create_date":"2024-5-30 @10h 00m 00s 000ms"}
{"name":"Aqua","is_user":false,"send_date":"June 5, 2024 2:30pm","mes":"Hello!"}
{"name":"You","is_user":true,"send_date":"June 5, 2024 2:31pm","mes":"Hi there"}
`

func TestLoadFromGitHub_CreatesChats(t *testing.T) {
	database := setupTestDB(t)
	src := newFakeSource()
	src.put("Aqua", "first.jsonl", "sha-a1", sampleChat)
	src.put("Aqua", "notes.txt", "sha-n", "not a chat")
	src.put("Seraphina", "forest.jsonl", "sha-s1", `{"name":"Seraphina","mes":"Welcome"}`)
	src.extra[""] = []github.Entry{{Name: "README.md", Path: "README.md", Type: github.TypeFile}}
	src.extra["Aqua"] = []github.Entry{{Name: "nested.jsonl", Path: "Aqua/nested.jsonl", Type: github.TypeDir}}

	rec := &recorder{}
	s := newTestSyncer(src, database, rec)

	result, err := s.LoadFromGitHub(context.Background(), TriggerManual)
	if err != nil {
		t.Fatalf("LoadFromGitHub() failed: %v", err)
	}

	if result.Folders != 2 || result.Files != 2 || result.Created != 2 || result.Updated != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.RunID == "" {
		t.Error("expected run id")
	}
	if rec.refreshes != 1 {
		t.Errorf("expected 1 refresh, got %d", rec.refreshes)
	}
	if len(rec.alerts) != 0 {
		t.Errorf("unexpected alerts: %v", rec.alerts)
	}
	if created, ok := rec.saved["Aqua_first.jsonl"]; !ok || !created {
		t.Errorf("observer not notified of creation: %v", rec.saved)
	}

	chat, err := database.GetChat(context.Background(), "Aqua_first.jsonl")
	if err != nil {
		t.Fatalf("GetChat() failed: %v", err)
	}
	if chat == nil {
		t.Fatal("chat was not saved")
	}
	if chat.Name != "Aqua - first" || chat.CharacterName != "Aqua" || chat.SHA != "sha-a1" {
		t.Errorf("unexpected chat: %+v", chat)
	}
	if len(chat.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(chat.Messages))
	}
	want := time.Date(2024, 6, 5, 14, 31, 0, 0, time.Local)
	if !chat.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", chat.Timestamp, want)
	}

	seraphina, _ := database.GetChat(context.Background(), "Seraphina_forest.jsonl")
	if seraphina == nil {
		t.Fatal("seraphina chat was not saved")
	}
	if !seraphina.Timestamp.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("expected sync time fallback, got %v", seraphina.Timestamp)
	}

	for _, p := range src.downloads {
		if !strings.HasSuffix(p, ".jsonl") {
			t.Errorf("downloaded non-chat file %s", p)
		}
	}

	last, err := database.LastSyncRun(context.Background())
	if err != nil {
		t.Fatalf("LastSyncRun() failed: %v", err)
	}
	if last == nil || last.ID != result.RunID || last.Trigger != "manual" || last.Created != 2 {
		t.Errorf("unexpected sync run: %+v", last)
	}
}

func TestLoadFromGitHub_UnchangedIsIdempotent(t *testing.T) {
	database := setupTestDB(t)
	src := newFakeSource()
	src.put("Aqua", "first.jsonl", "sha-a1", sampleChat)

	rec := &recorder{}
	s := newTestSyncer(src, database, rec)

	if _, err := s.LoadFromGitHub(context.Background(), TriggerStartup); err != nil {
		t.Fatalf("first LoadFromGitHub() failed: %v", err)
	}
	src.downloads = nil
	rec.saved = nil

	result, err := s.LoadFromGitHub(context.Background(), TriggerInterval)
	if err != nil {
		t.Fatalf("second LoadFromGitHub() failed: %v", err)
	}

	if result.Unchanged != 1 || result.Changed() != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(src.downloads) != 0 {
		t.Errorf("unchanged file was downloaded: %v", src.downloads)
	}
	if len(rec.saved) != 0 {
		t.Errorf("unchanged file was saved: %v", rec.saved)
	}
	if rec.refreshes != 2 {
		t.Errorf("expected refresh after every run, got %d", rec.refreshes)
	}
}

func TestLoadFromGitHub_ChangedSHAUpdates(t *testing.T) {
	database := setupTestDB(t)
	src := newFakeSource()
	src.put("Aqua", "first.jsonl", "sha-a1", sampleChat)

	rec := &recorder{}
	s := newTestSyncer(src, database, rec)

	if _, err := s.LoadFromGitHub(context.Background(), TriggerCLI); err != nil {
		t.Fatalf("first LoadFromGitHub() failed: %v", err)
	}

	src.put("Aqua", "first.jsonl", "sha-a2", sampleChat+`{"name":"Aqua","mes":"Again"}`+"\n")

	result, err := s.LoadFromGitHub(context.Background(), TriggerCLI)
	if err != nil {
		t.Fatalf("second LoadFromGitHub() failed: %v", err)
	}
	if result.Updated != 1 || result.Created != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	if created := rec.saved["Aqua_first.jsonl"]; created {
		t.Error("update reported as creation")
	}

	chat, _ := database.GetChat(context.Background(), "Aqua_first.jsonl")
	if chat.SHA != "sha-a2" || len(chat.Messages) != 3 {
		t.Errorf("chat not updated: sha=%s messages=%d", chat.SHA, len(chat.Messages))
	}

	count, _ := database.GetChatCount(context.Background())
	if count != 1 {
		t.Errorf("expected 1 chat, got %d", count)
	}
}

func TestLoadFromGitHub_SkipsEmptyFiles(t *testing.T) {
	database := setupTestDB(t)
	src := newFakeSource()
	src.put("Aqua", "header-only.jsonl", "sha-h", `{"user_name":"You","character_name":"Aqua"}`)
	src.put("Aqua", "blank.jsonl", "sha-b", "\n\n")

	rec := &recorder{}
	s := newTestSyncer(src, database, rec)

	result, err := s.LoadFromGitHub(context.Background(), TriggerManual)
	if err != nil {
		t.Fatalf("LoadFromGitHub() failed: %v", err)
	}
	if result.Skipped != 2 || result.Created != 0 {
		t.Errorf("unexpected result: %+v", result)
	}

	count, _ := database.GetChatCount(context.Background())
	if count != 0 {
		t.Errorf("expected no chats, got %d", count)
	}
}

func TestLoadFromGitHub_AbortsOnError(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(src *fakeSource, rec *recorder)
		wantErr string
	}{
		{
			name: "root listing fails",
			setup: func(src *fakeSource, rec *recorder) {
				src.listErr[""] = errors.New("403 rate limit exceeded")
			},
			wantErr: "rate limit",
		},
		{
			name: "folder listing fails",
			setup: func(src *fakeSource, rec *recorder) {
				src.listErr["Aqua"] = errors.New("boom")
			},
			wantErr: "failed to list folder Aqua",
		},
		{
			name: "invalid json",
			setup: func(src *fakeSource, rec *recorder) {
				src.put("Aqua", "broken.jsonl", "sha-x", "{\"mes\":\"ok\"}\n{not json")
			},
			wantErr: "line 2",
		},
		{
			name: "refresh fails",
			setup: func(src *fakeSource, rec *recorder) {
				rec.refErr = errors.New("render failed")
			},
			wantErr: "failed to refresh chat list",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			database := setupTestDB(t)
			src := newFakeSource()
			src.put("Aqua", "first.jsonl", "sha-a1", sampleChat)
			rec := &recorder{}
			tt.setup(src, rec)

			s := newTestSyncer(src, database, rec)
			result, err := s.LoadFromGitHub(context.Background(), TriggerManual)
			if err == nil {
				t.Fatal("expected error")
			}
			if result != nil {
				t.Errorf("expected nil result on failure, got %+v", result)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}

			if len(rec.alerts) != 1 {
				t.Fatalf("expected 1 alert, got %d", len(rec.alerts))
			}
			alert := rec.alerts[0]
			if !strings.HasPrefix(alert, "Failed to load from GitHub: ") ||
				!strings.HasSuffix(alert, ". Please check the configuration.") {
				t.Errorf("unexpected alert text: %q", alert)
			}

			last, _ := database.LastSyncRun(context.Background())
			if last == nil || !last.Failed() {
				t.Errorf("failed run not recorded: %+v", last)
			}
		})
	}
}

func TestLoadFromGitHub_CancelledRunIsRecordedWithoutAlert(t *testing.T) {
	database := setupTestDB(t)
	src := newFakeSource()
	src.put("Aqua", "first.jsonl", "sha-a1", sampleChat)

	rec := &recorder{}
	s := newTestSyncer(src, database, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.LoadFromGitHub(ctx, TriggerManual)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(rec.alerts) != 0 {
		t.Errorf("cancelled run raised alerts: %v", rec.alerts)
	}

	last, err := database.LastSyncRun(context.Background())
	if err != nil {
		t.Fatalf("LastSyncRun failed: %v", err)
	}
	if last == nil {
		t.Fatal("cancelled run was not recorded")
	}
	if !last.Failed() || !strings.Contains(last.Error, "canceled") {
		t.Errorf("run error = %q, want a cancellation", last.Error)
	}
}

func TestLoadFromGitHub_WarnsOnIDCollision(t *testing.T) {
	database := setupTestDB(t)
	src := newFakeSource()
	src.put("A_B", "c.jsonl", "sha-1", sampleChat)
	src.put("A", "B_c.jsonl", "sha-2", sampleChat)

	var logs bytes.Buffer
	rec := &recorder{}
	s := New(src, database, Options{
		Refresher: rec,
		Alerter:   rec,
		Logger:    log.New(&logs, "", 0),
	})

	if _, err := s.LoadFromGitHub(context.Background(), TriggerManual); err != nil {
		t.Fatalf("LoadFromGitHub failed: %v", err)
	}
	if !strings.Contains(logs.String(), "share chat id A_B_c.jsonl") {
		t.Errorf("collision not reported, logs:\n%s", logs.String())
	}
}

func TestLoadFromGitHub_NoRollback(t *testing.T) {
	database := setupTestDB(t)
	src := newFakeSource()
	src.put("Aqua", "first.jsonl", "sha-a1", sampleChat)
	src.put("Zed", "broken.jsonl", "sha-z", "{oops")

	rec := &recorder{}
	s := newTestSyncer(src, database, rec)

	if _, err := s.LoadFromGitHub(context.Background(), TriggerManual); err == nil {
		t.Fatal("expected error")
	}
	if rec.refreshes != 0 {
		t.Errorf("refresh ran after abort: %d", rec.refreshes)
	}

	chat, _ := database.GetChat(context.Background(), "Aqua_first.jsonl")
	if chat == nil {
		t.Error("chat saved before the failure was rolled back")
	}
}

func TestNew_Defaults(t *testing.T) {
	database := setupTestDB(t)
	src := newFakeSource()
	src.put("Aqua", "first.jsonl", "sha-a1", sampleChat)

	s := New(src, database, Options{Logger: log.New(io.Discard, "", 0)})

	result, err := s.LoadFromGitHub(context.Background(), TriggerCLI)
	if err != nil {
		t.Fatalf("LoadFromGitHub() without collaborators failed: %v", err)
	}
	if result.Created != 1 {
		t.Errorf("expected 1 created, got %d", result.Created)
	}
}
