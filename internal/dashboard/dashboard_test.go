package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/stchats/chatsync/internal/chatlog"
	"github.com/stchats/chatsync/internal/store"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "[test] ", log.LstdFlags)
}

// setupStore creates a store holding two chats for Aqua.
func setupStore(t *testing.T) *store.DB {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "chats.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}

	base := time.Date(2024, 6, 5, 14, 30, 0, 0, time.UTC)
	for i, file := range []string{"first.jsonl", "second.jsonl"} {
		rec := &chatlog.ChatRecord{
			ID:            chatlog.ChatID("Aqua", file),
			Name:          chatlog.DisplayName("Aqua", file),
			CharacterName: "Aqua",
			FileName:      file,
			Messages:      []chatlog.Message{{Name: "Aqua", Content: "Hello"}},
			SHA:           "sha",
			Timestamp:     base.Add(time.Duration(i) * time.Hour),
		}
		if err := db.SaveChat(context.Background(), rec); err != nil {
			t.Fatalf("Failed to save chat: %v", err)
		}
	}
	return db
}

// startServer starts a dashboard on a random port.
func startServer(t *testing.T, chats ChatReader) *Server {
	t.Helper()

	server := NewServer(&Config{
		Host:   "127.0.0.1",
		Port:   0,
		Chats:  chats,
		Logger: testLogger(),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })

	return server
}

// dial connects a WebSocket client and consumes the welcome message.
func dial(t *testing.T, ctx context.Context, server *Server) (*websocket.Conn, Message) {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	return conn, readMessage(t, ctx, conn)
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Host: "127.0.0.1", Port: 0, Logger: testLogger()})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	if addr := server.GetAddr(); addr == "" || addr == "127.0.0.1:0" {
		t.Fatalf("unexpected address %q", addr)
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketWelcome(t *testing.T) {
	server := startServer(t, setupStore(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, welcome := dial(t, ctx, server)
	if welcome.Type != MessageTypeStats {
		t.Fatalf("Expected welcome message type %s, got %s", MessageTypeStats, welcome.Type)
	}

	var stats StatsData
	if err := json.Unmarshal(welcome.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if stats.Chats != 2 || stats.Characters != 1 || stats.Clients != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestHandler_RefreshChatList(t *testing.T) {
	db := setupStore(t)
	server := startServer(t, db)
	handler := NewHandler(server, db, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, server)

	if err := handler.RefreshChatList(ctx); err != nil {
		t.Fatalf("RefreshChatList() failed: %v", err)
	}

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeChatList {
		t.Fatalf("Expected %s, got %s", MessageTypeChatList, msg.Type)
	}

	var list ChatListData
	if err := json.Unmarshal(msg.Data, &list); err != nil {
		t.Fatalf("Failed to unmarshal chat list: %v", err)
	}
	if list.Total != 2 || len(list.Chats) != 2 {
		t.Fatalf("unexpected chat list: %+v", list)
	}
	if list.Chats[0].ID != "Aqua_second.jsonl" {
		t.Errorf("expected newest chat first, got %s", list.Chats[0].ID)
	}
}

func TestHandler_AlertAndUpdate(t *testing.T) {
	db := setupStore(t)
	server := startServer(t, db)
	handler := NewHandler(server, db, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, server)

	handler.Alert("Failed to load from GitHub: boom. Please check the configuration.")

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeAlert {
		t.Fatalf("Expected %s, got %s", MessageTypeAlert, msg.Type)
	}
	var alert AlertData
	if err := json.Unmarshal(msg.Data, &alert); err != nil {
		t.Fatalf("Failed to unmarshal alert: %v", err)
	}
	if alert.Message != "Failed to load from GitHub: boom. Please check the configuration." {
		t.Errorf("unexpected alert %q", alert.Message)
	}
	if last, _ := handler.LastAlert(); last != alert.Message {
		t.Errorf("LastAlert() = %q", last)
	}

	rec := &chatlog.ChatRecord{
		ID:            "Aqua_third.jsonl",
		Name:          "Aqua - third",
		CharacterName: "Aqua",
		Messages:      []chatlog.Message{{Content: "a"}, {Content: "b"}},
	}
	handler.OnChatSaved(rec, true)

	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeChatUpdate {
		t.Fatalf("Expected %s, got %s", MessageTypeChatUpdate, msg.Type)
	}
	var update ChatUpdateData
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("Failed to unmarshal update: %v", err)
	}
	if update.ChatID != rec.ID || update.Action != "created" || update.MessageCount != 2 {
		t.Errorf("unexpected update: %+v", update)
	}
}

func TestHandler_RefreshWithoutStore(t *testing.T) {
	handler := NewHandler(NewServer(&Config{Logger: testLogger()}), nil, testLogger())
	if err := handler.RefreshChatList(context.Background()); err == nil {
		t.Error("expected error without a chat store")
	}
}

// sillyTavernFile is a file name as SillyTavern writes it, with spaces and '@'.
const sillyTavernFile = "Aqua - 2024-6-5 @14h 30m 12s 123ms.jsonl"

func TestAPI(t *testing.T) {
	db := setupStore(t)
	rec := &chatlog.ChatRecord{
		ID:            chatlog.ChatID("Aqua", sillyTavernFile),
		Name:          chatlog.DisplayName("Aqua", sillyTavernFile),
		CharacterName: "Aqua",
		FileName:      sillyTavernFile,
		Messages:      []chatlog.Message{{Name: "Aqua", Content: "Hi"}},
		SHA:           "sha",
		Timestamp:     time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC),
	}
	if err := db.SaveChat(context.Background(), rec); err != nil {
		t.Fatalf("Failed to save chat: %v", err)
	}

	server := NewServer(&Config{Chats: db, Logger: testLogger()})
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"health", http.MethodGet, "/health", http.StatusOK},
		{"root", http.MethodGet, "/", http.StatusOK},
		{"list", http.MethodGet, "/api/chats", http.StatusOK},
		{"list bad limit", http.MethodGet, "/api/chats?limit=abc", http.StatusBadRequest},
		{"get", http.MethodGet, "/api/chats/Aqua_first.jsonl", http.StatusOK},
		{"get missing", http.MethodGet, "/api/chats/Nobody_none.jsonl", http.StatusNotFound},
		{"get path escaped", http.MethodGet, "/api/chats/" + url.PathEscape(rec.ID), http.StatusOK},
		{"get component escaped", http.MethodGet,
			"/api/chats/Aqua_Aqua%20-%202024-6-5%20%4014h%2030m%2012s%20123ms.jsonl", http.StatusOK},
		{"refresh without trigger", http.MethodPost, "/api/refresh", http.StatusServiceUnavailable},
		{"refresh wrong method", http.MethodGet, "/api/refresh", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			if err != nil {
				t.Fatalf("Failed to build request: %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestViewerPage_OpensChats(t *testing.T) {
	server := NewServer(&Config{Logger: testLogger()})
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	for _, want := range []string{
		`fetch("/api/chats/" + encodeURIComponent(id))`,
		`li.onclick = () => openChat(c.id)`,
		`id="messages"`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("viewer page missing %q", want)
		}
	}
}

func TestGetChat_BadEscape(t *testing.T) {
	server := NewServer(&Config{Chats: setupStore(t), Logger: testLogger()})

	req := httptest.NewRequest(http.MethodGet, "/api/chats/x", nil)
	req.URL.RawPath = "/api/chats/bad%zz"
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "bad%zz")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	server.handleGetChat(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestAPI_ListFilters(t *testing.T) {
	server := NewServer(&Config{Chats: setupStore(t), Logger: testLogger()})
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/chats?character=Aqua&limit=1")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var list ChatListData
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if list.Total != 1 || list.Chats[0].ID != "Aqua_second.jsonl" {
		t.Errorf("unexpected list: %+v", list)
	}
}

func TestAPI_RefreshTrigger(t *testing.T) {
	server := NewServer(&Config{Logger: testLogger()})
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	calls := 0
	server.SetTrigger(func() bool {
		calls++
		return calls == 1
	})

	for i, wantQueued := range []bool{true, false} {
		resp, err := http.Post(ts.URL+"/api/refresh", "application/json", nil)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}

		var body map[string]bool
		_ = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusAccepted {
			t.Errorf("call %d: status = %d, want 202", i, resp.StatusCode)
		}
		if body["queued"] != wantQueued {
			t.Errorf("call %d: queued = %v, want %v", i, body["queued"], wantQueued)
		}
	}
}
