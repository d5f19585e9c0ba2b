package chatlog

import (
	"fmt"
	"strings"
	"time"
)

// ChatExt is the only file extension recognized as a chat log.
const ChatExt = ".jsonl"

// ChatRecord is one parsed conversation file as persisted locally.
type ChatRecord struct {
	// ID is "<character folder>_<file name>" and is unique.
	ID string `json:"id"`

	// Name is the display name: "<character folder> - <file name without .jsonl>".
	Name string `json:"name"`

	CharacterName string `json:"characterName"`
	FileName      string `json:"fileName,omitempty"`

	// Messages in file order.
	Messages []Message `json:"messages"`

	// SHA is the remote content hash. A different SHA means the file changed.
	SHA string `json:"sha"`

	// Timestamp is when the chat was last active.
	Timestamp time.Time `json:"timestamp"`

	// SyncedAt is when this record was last written locally.
	SyncedAt time.Time `json:"syncedAt,omitempty"`
}

// Validate checks if the ChatRecord has valid field values.
func (c *ChatRecord) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.CharacterName == "" {
		return fmt.Errorf("character name is required")
	}
	if c.SHA == "" {
		return fmt.Errorf("sha is required")
	}
	if len(c.Messages) == 0 {
		return fmt.Errorf("at least one message is required")
	}
	if c.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// Changed reports whether a remote file with the given SHA differs from this record.
// A nil record is always changed.
func (c *ChatRecord) Changed(remoteSHA string) bool {
	return c == nil || c.SHA != remoteSHA
}

// IsChatFile reports whether name has the recognized chat extension.
func IsChatFile(name string) bool {
	return strings.HasSuffix(name, ChatExt)
}

// ChatID returns the identity key for a file inside a character folder.
//
// The key is not injective: folder "A_B" with file "c.jsonl" and folder "A"
// with file "B_c.jsonl" both map to "A_B_c.jsonl". The syncer logs a warning
// when one run sees such a collision.
func ChatID(folder, fileName string) string {
	return folder + "_" + fileName
}

// DisplayName returns the human-readable name for a chat file.
func DisplayName(folder, fileName string) string {
	return fmt.Sprintf("%s - %s", folder, strings.TrimSuffix(fileName, ChatExt))
}

// NewRecord builds a ChatRecord from a parsed file.
//
// The timestamp is taken from the last message with a parseable send date,
// then from the header's create date, and finally falls back to syncedAt.
func NewRecord(folder, fileName, sha string, parsed ParsedChat, syncedAt time.Time) *ChatRecord {
	return &ChatRecord{
		ID:            ChatID(folder, fileName),
		Name:          DisplayName(folder, fileName),
		CharacterName: folder,
		FileName:      fileName,
		Messages:      parsed.Messages,
		SHA:           sha,
		Timestamp:     parsed.LastActivity(syncedAt),
		SyncedAt:      syncedAt,
	}
}
