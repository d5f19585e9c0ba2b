// Package store provides the local chat database for chatsync.
//
// Chats are kept in an embedded SQLite database (ncruces/go-sqlite3) so the
// viewer can read them offline. The database runs in WAL mode so the daemon
// can write while the dashboard and CLI read.
//
// Schema:
//   - chats: one row per chat file, messages stored as a JSON array
//   - sync_runs: history of synchronization runs
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/stchats/chatsync/internal/chatlog"
)

// ErrNotFound is returned by lookups that require the chat to exist.
var ErrNotFound = errors.New("chat not found")

// DB wraps the SQLite connection with chat-specific queries.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// The parent directory is created if needed. The caller MUST call Close()
// when done.
func Open(path string) (*DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.conn.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to exec %q: %w", p, err)
		}
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// This is idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		character_name TEXT NOT NULL,
		file_name TEXT NOT NULL DEFAULT '',
		messages TEXT NOT NULL,  -- JSON array
		message_count INTEGER NOT NULL DEFAULT 0,
		sha TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		synced_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chats_character ON chats(character_name);
	CREATE INDEX IF NOT EXISTS idx_chats_timestamp ON chats(timestamp);

	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		trigger_kind TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		folders INTEGER NOT NULL DEFAULT 0,
		files INTEGER NOT NULL DEFAULT 0,
		created INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		unchanged INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// GetChat retrieves a chat by ID.
// Returns (nil, nil) if the chat doesn't exist.
func (db *DB) GetChat(ctx context.Context, id string) (*chatlog.ChatRecord, error) {
	query := `
	SELECT id, name, character_name, file_name, messages, sha, timestamp, synced_at
	FROM chats
	WHERE id = ?
	`

	var rec chatlog.ChatRecord
	var messagesJSON, timestamp, syncedAt string

	err := db.conn.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.Name,
		&rec.CharacterName,
		&rec.FileName,
		&messagesJSON,
		&rec.SHA,
		&timestamp,
		&syncedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &rec.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages for %s: %w", id, err)
	}
	rec.Timestamp = parseTime(timestamp)
	rec.SyncedAt = parseTime(syncedAt)

	return &rec, nil
}

// MustGetChat is GetChat but returns ErrNotFound for a missing chat.
func (db *DB) MustGetChat(ctx context.Context, id string) (*chatlog.ChatRecord, error) {
	rec, err := db.GetChat(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// SaveChat inserts or updates a chat.
//
// If a chat with the same ID exists, every field is replaced.
func (db *DB) SaveChat(ctx context.Context, rec *chatlog.ChatRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid chat: %w", err)
	}

	messagesJSON, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	syncedAt := rec.SyncedAt
	if syncedAt.IsZero() {
		syncedAt = time.Now()
	}

	query := `
	INSERT INTO chats (
		id, name, character_name, file_name, messages,
		message_count, sha, timestamp, synced_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		character_name = excluded.character_name,
		file_name = excluded.file_name,
		messages = excluded.messages,
		message_count = excluded.message_count,
		sha = excluded.sha,
		timestamp = excluded.timestamp,
		synced_at = excluded.synced_at
	`

	_, err = db.conn.ExecContext(ctx, query,
		rec.ID,
		rec.Name,
		rec.CharacterName,
		rec.FileName,
		string(messagesJSON),
		len(rec.Messages),
		rec.SHA,
		formatTime(rec.Timestamp),
		formatTime(syncedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save chat %s: %w", rec.ID, err)
	}

	return nil
}

// DeleteChat removes a chat from the database.
// Returns nil if the chat doesn't exist (idempotent).
func (db *DB) DeleteChat(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete chat %s: %w", id, err)
	}
	return nil
}

// ChatSummary is a chat without its message bodies.
type ChatSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CharacterName string    `json:"characterName"`
	MessageCount  int       `json:"messageCount"`
	SHA           string    `json:"sha"`
	Timestamp     time.Time `json:"timestamp"`
	SyncedAt      time.Time `json:"syncedAt"`
}

// ListFilter configures the ListChats query.
type ListFilter struct {
	// Character filters by character folder (empty = all)
	Character string
	// Since keeps chats active at or after this time (zero = no bound)
	Since time.Time
	// Limit restricts the number of results (0 = no limit)
	Limit int
	// Offset skips the first N results (for pagination)
	Offset int
}

// ListChats retrieves chat summaries matching the filter.
// Results are ordered by timestamp DESC (most recent first), then name.
func (db *DB) ListChats(ctx context.Context, filter ListFilter) ([]ChatSummary, error) {
	var conditions []string
	var args []interface{}

	if filter.Character != "" {
		conditions = append(conditions, "character_name = ?")
		args = append(args, filter.Character)
	}

	if !filter.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTime(filter.Since))
	}

	query := `
	SELECT id, name, character_name, message_count, sha, timestamp, synced_at
	FROM chats
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC, name ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}

	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var chats []ChatSummary
	for rows.Next() {
		var s ChatSummary
		var timestamp, syncedAt string
		if err := rows.Scan(&s.ID, &s.Name, &s.CharacterName, &s.MessageCount, &s.SHA, &timestamp, &syncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		s.Timestamp = parseTime(timestamp)
		s.SyncedAt = parseTime(syncedAt)
		chats = append(chats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chats: %w", err)
	}

	return chats, nil
}

// GetChatCount returns the total number of chats in the database.
func (db *DB) GetChatCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM chats").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get chat count: %w", err)
	}
	return count, nil
}

// GetCharacterCount returns the number of distinct characters with chats.
func (db *DB) GetCharacterCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(DISTINCT character_name) FROM chats").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get character count: %w", err)
	}
	return count, nil
}

// timeLayout is fixed-width so lexical order in SQLite matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
