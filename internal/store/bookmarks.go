package store

import (
	"context"

	"chatmark/internal/domain"
)

// SaveBookmark replaces the bookmark with the same chat id in place, or appends it.
func (s *SQLiteStore) SaveBookmark(ctx context.Context, b domain.Bookmark) error {
	var bookmarks []domain.Bookmark
	return s.update(ctx, bookmarksCollection, &bookmarks, func() bool {
		for i := range bookmarks {
			if bookmarks[i].ChatID == b.ChatID {
				bookmarks[i] = b
				return true
			}
		}
		bookmarks = append(bookmarks, b)
		return true
	})
}

// Bookmarks returns the stored bookmarks in insertion order.
func (s *SQLiteStore) Bookmarks(ctx context.Context) ([]domain.Bookmark, error) {
	var bookmarks []domain.Bookmark
	if err := s.read(ctx, bookmarksCollection, &bookmarks); err != nil {
		return nil, err
	}
	if bookmarks == nil {
		bookmarks = []domain.Bookmark{}
	}
	return bookmarks, nil
}

// DeleteBookmark drops every bookmark for chatID and returns how many were removed.
func (s *SQLiteStore) DeleteBookmark(ctx context.Context, chatID string) (int, error) {
	var bookmarks []domain.Bookmark
	var removed int
	err := s.update(ctx, bookmarksCollection, &bookmarks, func() bool {
		kept := bookmarks[:0]
		for _, b := range bookmarks {
			if b.ChatID == chatID {
				removed++
				continue
			}
			kept = append(kept, b)
		}
		bookmarks = kept
		return removed > 0
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
