package site

import (
	"net/url"
	"strings"
	"time"
)

// ChatGPT tracks conversations on chat.openai.com and chatgpt.com.
type ChatGPT struct{}

func (ChatGPT) Name() string                { return "ChatGPT" }
func (ChatGPT) Hostnames() []string         { return []string{"chat.openai.com", "chatgpt.com"} }
func (ChatGPT) DefaultThemeColor() string   { return "#10a37f" }
func (ChatGPT) IsValidPage(u *url.URL) bool { return strings.Contains(u.Path, "/c/") }

// ChatID is the last path segment of /c/<id>.
func (ChatGPT) ChatID(u *url.URL, _ time.Time) string { return lastPathSegment(u) }

func (ChatGPT) Selectors() Selectors {
	return Selectors{
		Message:        ".text-message-content",
		User:           ".text-message-content[data-message-author-role='user']",
		Assistant:      ".text-message-content[data-message-author-role='assistant']",
		IDAttribute:    "data-message-id",
		ObserverTarget: ".chat-container",
		ThemeElement:   "nav",
	}
}

// Gemini tracks conversations on gemini.google.com.
type Gemini struct{}

func (Gemini) Name() string              { return "Gemini" }
func (Gemini) Hostnames() []string       { return []string{"gemini.google.com"} }
func (Gemini) DefaultThemeColor() string { return "#8e44ad" }

// IsValidPage accepts every Gemini page.
func (Gemini) IsValidPage(*url.URL) bool { return true }

// ChatID uses the chatId query parameter. Gemini URLs often lack it, in which case
// every page load yields a new time-based id.
func (Gemini) ChatID(u *url.URL, now time.Time) string {
	if id := u.Query().Get("chatId"); id != "" {
		return id
	}
	return timeFallback("gemini", now)
}

func (Gemini) Selectors() Selectors {
	return Selectors{
		Message:        ".message-content",
		User:           ".user-message .message-content",
		Assistant:      ".model-response .message-content",
		IDAttribute:    "data-message-id",
		ObserverTarget: ".conversation-container",
		ThemeElement:   "header",
	}
}

// Builtin returns the adapters compiled into chatmark.
func Builtin() []Adapter {
	return []Adapter{ChatGPT{}, Gemini{}}
}
