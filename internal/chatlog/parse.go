package chatlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Message is one SillyTavern chat message.
type Message struct {
	Name     string   `json:"name"`
	IsUser   bool     `json:"is_user"`
	IsSystem bool     `json:"is_system,omitempty"`
	SendDate SendDate `json:"send_date,omitempty"`
	Content  string   `json:"mes"`
	Swipes   []string `json:"swipes,omitempty"`
}

// Header is the metadata line at the top of a SillyTavern chat file.
type Header struct {
	UserName      string   `json:"user_name"`
	CharacterName string   `json:"character_name"`
	CreateDate    SendDate `json:"create_date,omitempty"`
}

// SendDate holds a date exactly as written in the file.
// SillyTavern has written both strings and epoch numbers over time.
type SendDate string

// UnmarshalJSON accepts a JSON string, number, or null.
func (d *SendDate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*d = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = SendDate(s)
		return nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("send date must be a string or number: %w", err)
	}
	*d = SendDate(n.String())
	return nil
}

// Time parses the date. ok is false when the format is not recognized.
func (d SendDate) Time() (time.Time, bool) {
	return ParseSendDate(string(d))
}

// ParsedChat is the result of parsing one chat file.
type ParsedChat struct {
	Header   *Header
	Messages []Message
}

// LastActivity returns the most recent recognizable date in the chat,
// or fallback when none can be parsed.
func (p ParsedChat) LastActivity(fallback time.Time) time.Time {
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if t, ok := p.Messages[i].SendDate.Time(); ok {
			return t
		}
	}
	if p.Header != nil {
		if t, ok := p.Header.CreateDate.Time(); ok {
			return t
		}
	}
	return fallback
}

// probe detects which kind of line is being parsed.
type probe struct {
	Mes           *string `json:"mes"`
	UserName      *string `json:"user_name"`
	CharacterName *string `json:"character_name"`
}

// ParseChatContent parses SillyTavern JSONL text into messages.
//
// Blank lines are skipped, the header line is captured, and objects that are
// neither a header nor a message are ignored. Invalid JSON is an error.
func ParseChatContent(text string) (ParsedChat, error) {
	var parsed ParsedChat

	lines := strings.Split(text, "\n")
	for i, raw := range lines {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if line == "" {
			continue
		}

		var p probe
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			return ParsedChat{}, fmt.Errorf("invalid JSON at line %d: %w", i+1, err)
		}

		switch {
		case p.Mes != nil:
			var msg Message
			if err := json.Unmarshal([]byte(line), &msg); err != nil {
				return ParsedChat{}, fmt.Errorf("invalid message at line %d: %w", i+1, err)
			}
			parsed.Messages = append(parsed.Messages, msg)

		case p.UserName != nil || p.CharacterName != nil:
			if parsed.Header != nil {
				continue
			}
			var h Header
			if err := json.Unmarshal([]byte(line), &h); err != nil {
				return ParsedChat{}, fmt.Errorf("invalid header at line %d: %w", i+1, err)
			}
			parsed.Header = &h
		}
	}

	return parsed, nil
}

// headerDateRe matches create_date values like "2024-6-5 @14h 30m 12s 123ms".
var headerDateRe = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2}) ?@(\d{1,2})h ?(\d{1,2})m ?(\d{1,2})s ?(\d{1,3})ms$`)

var sendDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"January 2, 2006 3:04pm",
	"January 2, 2006 3:04 pm",
	"January 2, 2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseSendDate parses the date formats found in SillyTavern chat files.
// SillyTavern writes dates in the user's local time, so dates without a
// zone are interpreted in time.Local.
func ParseSendDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return time.Time{}, false
		}
		// Anything below 1e11 is too small to be epoch milliseconds.
		if n < 1e11 {
			return time.Unix(n, 0).UTC(), true
		}
		return time.UnixMilli(n).UTC(), true
	}

	for _, layout := range sendDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}

	if m := headerDateRe.FindStringSubmatch(s); m != nil {
		var parts [7]int
		for i := range parts {
			parts[i], _ = strconv.Atoi(m[i+1])
		}
		t := time.Date(parts[0], time.Month(parts[1]), parts[2],
			parts[3], parts[4], parts[5], parts[6]*int(time.Millisecond), time.Local)
		return t, true
	}

	return time.Time{}, false
}
