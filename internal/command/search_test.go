package command

import (
	"testing"

	"chatmark/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestFilterChats(t *testing.T) {
	chats := map[string]domain.Chat{
		"a": {Title: "Rust lifetimes", SiteName: "ChatGPT", LastUpdated: 10},
		"b": {Title: "Pasta recipes", SiteName: "Gemini", LastUpdated: 30},
		"c": {Title: "Borrow checker", SiteName: "ChatGPT", LastUpdated: 20},
	}

	all := FilterChats(chats, "")
	assert.Equal(t, []string{"b", "c", "a"}, ids(all))

	assert.Equal(t, []string{"c", "a"}, ids(FilterChats(chats, "chatgpt")))
	assert.Equal(t, []string{"a"}, ids(FilterChats(chats, "  RUST ")))
	assert.Empty(t, FilterChats(chats, "haskell"))
}

func TestFilterBookmarks(t *testing.T) {
	bookmarks := []domain.Bookmark{
		{ChatID: "a", Title: "one", SiteName: "ChatGPT", Timestamp: 1},
		{ChatID: "b", Title: "two", SiteName: "Gemini", Timestamp: 3},
		{ChatID: "c", Title: "three", SiteName: "Gemini", Timestamp: 2},
	}

	got := FilterBookmarks(bookmarks, "gemini")
	assert.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ChatID)
	assert.Equal(t, "c", got[1].ChatID)
	assert.Equal(t, "a", bookmarks[0].ChatID, "input is not reordered")
}

func ids(chats []domain.Chat) []string {
	out := make([]string, len(chats))
	for i, c := range chats {
		out[i] = c.ID
	}
	return out
}
