package domain

import (
	"sort"
	"time"
)

// Timestamp is a Unix time in milliseconds, the unit persisted for every record.
type Timestamp int64

// At converts t to a Timestamp.
func At(t time.Time) Timestamp { return Timestamp(t.UnixMilli()) }

// Time converts the timestamp back to a time.Time.
func (ts Timestamp) Time() time.Time { return time.UnixMilli(int64(ts)) }

// Role classifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one chat message as observed on the page.
type Message struct {
	ID         string    `json:"id"`
	Role       Role      `json:"type"`
	Excerpt    string    `json:"content"`
	Color      string    `json:"color"`
	CapturedAt Timestamp `json:"timestamp"`
	Ordinal    int       `json:"index"`
}

// Chat is one tracked conversation. ID is the key of the chats collection and is
// not serialized inside the record itself.
type Chat struct {
	ID          string    `json:"-"`
	Title       string    `json:"title"`
	SiteName    string    `json:"siteName"`
	ThemeColor  string    `json:"themeColor"`
	URL         string    `json:"url"`
	FirstSeen   Timestamp `json:"timestamp"`
	LastUpdated Timestamp `json:"lastUpdated"`
	Messages    []Message `json:"messages"`
}

// EmptyChat is the placeholder returned for chat ids that are not stored.
func EmptyChat(id string) Chat {
	return Chat{ID: id, Messages: []Message{}}
}

// ChatSnapshot is the full-chat payload pushed by a tracker after each scan.
type ChatSnapshot struct {
	ChatID     string    `json:"chatId"`
	Messages   []Message `json:"messages"`
	Title      string    `json:"title"`
	SiteName   string    `json:"siteName"`
	ThemeColor string    `json:"themeColor"`
	URL        string    `json:"url"`
	Timestamp  Timestamp `json:"timestamp"`
}

// Chat converts the snapshot into a store record.
func (s ChatSnapshot) Chat() Chat {
	msgs := s.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	return Chat{
		ID:         s.ChatID,
		Title:      s.Title,
		SiteName:   s.SiteName,
		ThemeColor: s.ThemeColor,
		URL:        s.URL,
		FirstSeen:  s.Timestamp,
		Messages:   msgs,
	}
}

// Bookmark is the legacy single-reference-per-chat record.
type Bookmark struct {
	ChatID     string    `json:"chatId"`
	Title      string    `json:"title"`
	SiteName   string    `json:"siteName"`
	ThemeColor string    `json:"themeColor"`
	URL        string    `json:"url"`
	Timestamp  Timestamp `json:"timestamp"`
}

// SortByOrdinal returns a copy of msgs ordered by ordinal ascending. Ties keep
// their relative order.
func SortByOrdinal(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}
