package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stchats/chatsync/internal/chatlog"
	"github.com/stchats/chatsync/internal/store"
)

// Handler turns sync events into dashboard messages.
//
// It implements the syncer's Refresher, Alerter and Observer hooks.
type Handler struct {
	server *Server
	chats  ChatReader
	logger *log.Logger

	mu        sync.Mutex
	lastAlert string
	alertedAt time.Time
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, chats ChatReader, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		server: server,
		chats:  chats,
		logger: logger,
	}
}

// RefreshChatList re-reads the chat list and broadcasts it.
func (h *Handler) RefreshChatList(ctx context.Context) error {
	if h.chats == nil {
		return fmt.Errorf("chat store unavailable")
	}

	chats, err := h.chats.ListChats(ctx, store.ListFilter{})
	if err != nil {
		return fmt.Errorf("failed to list chats: %w", err)
	}
	if chats == nil {
		chats = []store.ChatSummary{}
	}

	h.broadcast(MessageTypeChatList, ChatListData{Total: len(chats), Chats: chats})
	return nil
}

// Alert logs msg and pushes it to connected viewers.
func (h *Handler) Alert(msg string) {
	h.logger.Printf("ALERT: %s", msg)

	h.mu.Lock()
	h.lastAlert = msg
	h.alertedAt = time.Now()
	h.mu.Unlock()

	h.broadcast(MessageTypeAlert, AlertData{Message: msg})
}

// OnChatSaved broadcasts a chat_update for a written chat.
func (h *Handler) OnChatSaved(rec *chatlog.ChatRecord, created bool) {
	action := "updated"
	if created {
		action = "created"
	}

	h.broadcast(MessageTypeChatUpdate, ChatUpdateData{
		ChatID:        rec.ID,
		Action:        action,
		Name:          rec.Name,
		CharacterName: rec.CharacterName,
		MessageCount:  len(rec.Messages),
		Timestamp:     rec.Timestamp,
	})
}

// LastAlert returns the most recent alert and when it was raised.
func (h *Handler) LastAlert() (string, time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastAlert, h.alertedAt
}

func (h *Handler) broadcast(typ MessageType, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}

	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
