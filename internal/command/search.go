package command

import (
	"sort"
	"strings"

	"chatmark/internal/domain"
)

// FilterChats returns the chats whose title or site name contains term
// (case-insensitive), most recently updated first. An empty term matches all.
func FilterChats(chats map[string]domain.Chat, term string) []domain.Chat {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]domain.Chat, 0, len(chats))
	for id, c := range chats {
		if c.ID == "" {
			c.ID = id
		}
		if matches(term, c.Title, c.SiteName) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUpdated != out[j].LastUpdated {
			return out[i].LastUpdated > out[j].LastUpdated
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FilterBookmarks applies the same matching to bookmarks, newest first.
func FilterBookmarks(bookmarks []domain.Bookmark, term string) []domain.Bookmark {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]domain.Bookmark, 0, len(bookmarks))
	for _, b := range bookmarks {
		if matches(term, b.Title, b.SiteName) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out
}

func matches(term string, fields ...string) bool {
	if term == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}
