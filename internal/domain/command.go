package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// Action names one command of the message-passing surface.
type Action string

const (
	ActionUpdateMessages  Action = "updateMessages"
	ActionGetActiveChat   Action = "getActiveChat"
	ActionGetAllChats     Action = "getAllChats"
	ActionGetMessages     Action = "getMessages"
	ActionDeleteChat      Action = "deleteChat"
	ActionScrollToMessage Action = "scrollToMessage"
	ActionSaveBookmark    Action = "saveBookmark"
	ActionGetBookmarks    Action = "getBookmarks"
	ActionDeleteBookmark  Action = "deleteBookmark"
)

// Request is one command. Data carries a ChatSnapshot for updateMessages and a
// Bookmark for saveBookmark.
type Request struct {
	Action    Action          `json:"action"`
	Data      json.RawMessage `json:"data,omitempty"`
	ChatID    string          `json:"chatId,omitempty"`
	TabID     int             `json:"tabId,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
}

// Response is the reply to a Request. Failures are reported in Success/Error,
// never as Go errors.
type Response struct {
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	NotFound  bool            `json:"notFound,omitempty"`
	ChatID    string          `json:"chatId,omitempty"`
	Chats     map[string]Chat `json:"chats,omitzero"`
	Messages  []Message       `json:"messages,omitzero"`
	Bookmarks []Bookmark      `json:"bookmarks,omitzero"`
}

// Failure builds an unsuccessful response.
func Failure(format string, args ...any) Response {
	return Response{Error: fmt.Sprintf(format, args...)}
}

// UpdateMessages builds an updateMessages request.
func UpdateMessages(s ChatSnapshot) Request {
	data, _ := json.Marshal(s)
	return Request{Action: ActionUpdateMessages, Data: data}
}

// SaveBookmark builds a saveBookmark request.
func SaveBookmark(b Bookmark) Request {
	data, _ := json.Marshal(b)
	return Request{Action: ActionSaveBookmark, Data: data}
}

// Snapshot decodes the updateMessages payload.
func (r Request) Snapshot() (ChatSnapshot, error) {
	var s ChatSnapshot
	if len(r.Data) == 0 {
		return s, fmt.Errorf("%s: missing data", r.Action)
	}
	if err := json.Unmarshal(r.Data, &s); err != nil {
		return s, fmt.Errorf("%s: decode data: %w", r.Action, err)
	}
	return s, nil
}

// Bookmark decodes the saveBookmark payload.
func (r Request) Bookmark() (Bookmark, error) {
	var b Bookmark
	if len(r.Data) == 0 {
		return b, fmt.Errorf("%s: missing data", r.Action)
	}
	if err := json.Unmarshal(r.Data, &b); err != nil {
		return b, fmt.Errorf("%s: decode data: %w", r.Action, err)
	}
	return b, nil
}

// Sender identifies the tab a request came from.
type Sender struct {
	TabID int
}

// Envelope carries a request across the bus together with its reply channel.
type Envelope struct {
	ID      string
	Request Request
	Sender  *Sender // nil for requests that do not come from a tab
	Reply   chan<- Response
}

// TabHandler answers requests forwarded to one tab.
type TabHandler func(ctx context.Context, req Request) Response

// MessageBus routes requests to the coordinator and forwards requests to tabs.
type MessageBus interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe() <-chan Envelope
	OnTab(tabID int, handler TabHandler)
	RemoveTab(tabID int)
	SendToTab(ctx context.Context, tabID int, req Request) (Response, error)
	Close()
}
