package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"chatmark/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chatmark.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleChat() domain.Chat {
	return domain.Chat{
		Title:      "Rust lifetimes",
		SiteName:   "ChatGPT",
		ThemeColor: "rgb(32, 33, 35)",
		URL:        "https://chat.openai.com/c/abc",
		FirstSeen:  1700000000000,
		Messages: []domain.Message{
			{ID: "m1", Role: domain.RoleUser, Excerpt: "why?", Color: "rgba(0, 0, 0, 0)", CapturedAt: 1700000000001, Ordinal: 0},
			{ID: "m2", Role: domain.RoleAssistant, Excerpt: "because", Color: "rgba(0, 0, 0, 0)", CapturedAt: 1700000000002, Ordinal: 1},
		},
	}
}

func TestInit_CreatesEmptyCollectionsOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Init(ctx))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = s.Upsert(ctx, "abc", sampleChat())
	require.NoError(t, err)
	require.NoError(t, s.Init(ctx))

	all, err = s.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "Init must not reset existing data")
}

func TestUpsert_IsIdempotentExceptLastUpdated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clock := time.UnixMilli(1700000100000)
	s.now = func() time.Time { return clock }

	want := sampleChat()
	_, err := s.Upsert(ctx, "abc", want)
	require.NoError(t, err)
	clock = clock.Add(time.Minute)
	_, err = s.Upsert(ctx, "abc", want)
	require.NoError(t, err)

	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, domain.At(clock), got.LastUpdated)

	got.LastUpdated = 0
	want.ID = "abc"
	assert.Equal(t, want, got)
}

func TestUpsert_ReplacesWholeRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Upsert(ctx, "abc", sampleChat())
	require.NoError(t, err)

	smaller := sampleChat()
	smaller.Messages = smaller.Messages[:1]
	smaller.Title = "renamed"
	_, err = s.Upsert(ctx, "abc", smaller)
	require.NoError(t, err)

	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Len(t, got.Messages, 1)
}

func TestGet_MissingReturnsPlaceholder(t *testing.T) {
	got, err := newTestStore(t).Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, "nope", got.ID)
	assert.NotNil(t, got.Messages)
	assert.Empty(t, got.Messages)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Upsert(ctx, "abc", sampleChat())
	require.NoError(t, err)
	_, err = s.Upsert(ctx, "def", sampleChat())
	require.NoError(t, err)

	existed, err := s.Delete(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, existed)

	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, got.Messages)

	before, err := s.GetAll(ctx)
	require.NoError(t, err)
	existed, err = s.Delete(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, existed)
	after, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Contains(t, after, "def")
	assert.Equal(t, "def", after["def"].ID)
}

func TestBookmarks_UpsertByChatID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := domain.Bookmark{ChatID: "abc", Title: "first", SiteName: "ChatGPT", Timestamp: 1}
	other := domain.Bookmark{ChatID: "xyz", Title: "other", SiteName: "Gemini", Timestamp: 2}
	second := domain.Bookmark{ChatID: "abc", Title: "second", SiteName: "ChatGPT", Timestamp: 3}
	require.NoError(t, s.SaveBookmark(ctx, first))
	require.NoError(t, s.SaveBookmark(ctx, other))
	require.NoError(t, s.SaveBookmark(ctx, second))

	got, err := s.Bookmarks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Bookmark{second, other}, got)

	removed, err := s.DeleteBookmark(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = s.DeleteBookmark(ctx, "abc")
	require.NoError(t, err)
	assert.Zero(t, removed)

	got, err = s.Bookmarks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Bookmark{other}, got)
}

func TestBookmarks_EmptyIsNotNil(t *testing.T) {
	got, err := newTestStore(t).Bookmarks(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestWriteFailureIsSurfaced(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.Upsert(context.Background(), "abc", sampleChat())
	require.Error(t, err)
	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, chatsCollection, serr.Collection)
}
