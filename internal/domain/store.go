package domain

import "context"

// ChatStore persists chats keyed by chat id. Every operation reads and writes the
// whole collection.
type ChatStore interface {
	// Upsert replaces any record stored under chatID and stamps LastUpdated.
	Upsert(ctx context.Context, chatID string, chat Chat) (Chat, error)

	// Get returns the stored chat, or EmptyChat(chatID) when there is none.
	Get(ctx context.Context, chatID string) (Chat, error)

	GetAll(ctx context.Context) (map[string]Chat, error)

	// Delete reports whether a record existed and was removed.
	Delete(ctx context.Context, chatID string) (bool, error)
}

// BookmarkStore persists the legacy bookmarks collection.
type BookmarkStore interface {
	SaveBookmark(ctx context.Context, b Bookmark) error
	Bookmarks(ctx context.Context) ([]Bookmark, error)
	DeleteBookmark(ctx context.Context, chatID string) (int, error)
}
