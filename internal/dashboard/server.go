// Package dashboard provides the chat viewer's HTTP surface.
//
// The dashboard serves the chat list over a small JSON API, exposes the
// "Refresh from GitHub" toolbar action, and pushes chat list updates, sync
// alerts and per-chat changes to connected WebSocket clients.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stchats/chatsync/internal/chatlog"
	"github.com/stchats/chatsync/internal/store"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeChatList carries the full chat list after a sync
	MessageTypeChatList MessageType = "chat_list"

	// MessageTypeChatUpdate indicates a chat was created or updated
	MessageTypeChatUpdate MessageType = "chat_update"

	// MessageTypeAlert carries a user-facing failure message
	MessageTypeAlert MessageType = "alert"

	// MessageTypeStats carries database totals
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ChatListData contains the rendered chat list
type ChatListData struct {
	Total int                 `json:"total"`
	Chats []store.ChatSummary `json:"chats"`
}

// ChatUpdateData contains chat change information
type ChatUpdateData struct {
	ChatID        string    `json:"chat_id"`
	Action        string    `json:"action"` // created, updated
	Name          string    `json:"name"`
	CharacterName string    `json:"character_name"`
	MessageCount  int       `json:"message_count"`
	Timestamp     time.Time `json:"timestamp"`
}

// AlertData contains an alert message
type AlertData struct {
	Message string `json:"message"`
}

// StatsData contains database totals
type StatsData struct {
	Chats      int `json:"chats"`
	Characters int `json:"characters"`
	Clients    int `json:"clients"`
}

// ChatReader is the read side of the chat store.
type ChatReader interface {
	ListChats(ctx context.Context, filter store.ListFilter) ([]store.ChatSummary, error)
	GetChat(ctx context.Context, id string) (*chatlog.ChatRecord, error)
	GetChatCount(ctx context.Context) (int, error)
	GetCharacterCount(ctx context.Context) (int, error)
}

// Server manages WebSocket connections and the chat API
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	chats    ChatReader

	// Manual refresh hook, normally Daemon.TriggerRefresh
	trigger   func() bool
	triggerMu sync.RWMutex

	// WebSocket client management
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	// Message broadcasting
	broadcast chan Message

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Logging
	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Host to bind (default: all interfaces)
	Host string

	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	// Chats backs the /api/chats routes
	Chats ChatReader

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Logger: log.Default(),
	}
}

// NewServer creates a new dashboard server
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		chats:     config.Chats,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// SetTrigger wires the manual refresh action.
func (s *Server) SetTrigger(trigger func() bool) {
	s.triggerMu.Lock()
	defer s.triggerMu.Unlock()
	s.trigger = trigger
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.logger, NoColor: true}))
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(api chi.Router) {
		api.Get("/chats", s.handleListChats)
		api.Get("/chats/{id}", s.handleGetChat)
		api.Post("/refresh", s.handleRefresh)
	})

	return r
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	// Create listener
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Start broadcast handler
	s.wg.Add(1)
	go s.broadcastLoop()

	// Start HTTP server
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard server")

	// Signal shutdown
	s.cancel()

	// Close all WebSocket connections
	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server == nil {
		return nil
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	// Wait for goroutines
	s.wg.Wait()

	s.logger.Println("Dashboard server stopped")
	return nil
}

// Broadcast sends a message to all connected clients.
// The message is dropped when the broadcast queue is full.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// broadcastLoop handles message broadcasting to all clients
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Send outside the read lock so a slow client doesn't block registration
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	// Greet with current totals
	welcome := Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
	}
	if stats, err := s.stats(r.Context()); err == nil {
		welcome.Data, _ = json.Marshal(stats)
	}
	welcomeData, _ := json.Marshal(welcome)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = conn.Write(ctx, websocket.MessageText, welcomeData)
	cancel()

	go s.readLoop(conn)
}

// readLoop keeps the WebSocket connection alive and handles client disconnects
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

// removeClient safely removes a client connection
func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

func (s *Server) stats(ctx context.Context) (StatsData, error) {
	stats := StatsData{Clients: s.ClientCount()}
	if s.chats == nil {
		return stats, nil
	}

	var err error
	if stats.Chats, err = s.chats.GetChatCount(ctx); err != nil {
		return stats, err
	}
	if stats.Characters, err = s.chats.GetCharacterCount(ctx); err != nil {
		return stats, err
	}
	return stats, nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// handleListChats returns chat summaries, newest first
func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	if s.chats == nil {
		writeError(w, http.StatusServiceUnavailable, "chat store unavailable")
		return
	}

	filter := store.ListFilter{Character: r.URL.Query().Get("character")}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	chats, err := s.chats.ListChats(r.Context(), filter)
	if err != nil {
		s.logger.Printf("Failed to list chats: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}
	if chats == nil {
		chats = []store.ChatSummary{}
	}

	writeJSON(w, http.StatusOK, ChatListData{Total: len(chats), Chats: chats})
}

// handleGetChat returns one chat with its messages
func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	if s.chats == nil {
		writeError(w, http.StatusServiceUnavailable, "chat store unavailable")
		return
	}

	id, err := chatIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	chat, err := s.chats.GetChat(r.Context(), id)
	if err != nil {
		s.logger.Printf("Failed to get chat %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to get chat")
		return
	}
	if chat == nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}

	writeJSON(w, http.StatusOK, chat)
}

// chatIDParam returns the decoded {id} segment. chi matches on RawPath when
// the client escaped characters such as '@', leaving the param escaped.
func chatIDParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if r.URL.RawPath == "" {
		return id, nil
	}
	return url.PathUnescape(id)
}

// handleRefresh queues a manual sync
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.triggerMu.RLock()
	trigger := s.trigger
	s.triggerMu.RUnlock()

	if trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh unavailable")
		return
	}

	queued := trigger()
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"queued": queued,
	})
}

// handleRoot serves the viewer page
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, viewerPage)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
