package command

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"chatmark/internal/bus"
	"chatmark/internal/domain"
	"chatmark/internal/site"
	"chatmark/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	bg     *Background
	client *Client
	bus    *bus.InMemoryBus
	store  *store.SQLiteStore
	events *bus.EventBus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "chatmark.db"), logger)
	require.NoError(t, err)
	require.NoError(t, st.Init(context.Background()))

	b := bus.New(16, logger)
	events := bus.NewEventBus(logger)
	bg := NewBackground(BackgroundConfig{
		Bus:       b,
		Chats:     st,
		Bookmarks: st,
		Sites:     site.NewRegistry(site.Builtin()...),
		Events:    events,
		Logger:    logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bg.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		b.Close()
		st.Close()
	})

	return &harness{bg: bg, client: NewClient(b), bus: b, store: st, events: events}
}

func send(t *testing.T, c *Client, req domain.Request) domain.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Send(ctx, req)
	require.NoError(t, err)
	return resp
}

func snapshot(chatID string, ordinals ...int) domain.ChatSnapshot {
	s := domain.ChatSnapshot{
		ChatID:     chatID,
		Title:      "Go generics",
		SiteName:   "ChatGPT",
		ThemeColor: "#10a37f",
		URL:        "https://chat.openai.com/c/" + chatID,
		Timestamp:  1700000000000,
	}
	for _, o := range ordinals {
		s.Messages = append(s.Messages, domain.Message{ID: "m" + string(rune('a'+o)), Role: domain.RoleUser, Ordinal: o})
	}
	return s
}

func TestUpdateMessages_RecordsActiveChatForSenderTab(t *testing.T) {
	h := newHarness(t)

	resp := send(t, h.client.ForTab(3), domain.UpdateMessages(snapshot("abc", 0, 1)))
	require.True(t, resp.Success, resp.Error)

	active := send(t, h.client, domain.Request{Action: domain.ActionGetActiveChat, TabID: 3})
	assert.True(t, active.Success)
	assert.Equal(t, "abc", active.ChatID)

	other := send(t, h.client, domain.Request{Action: domain.ActionGetActiveChat, TabID: 4})
	assert.True(t, other.Success)
	assert.Empty(t, other.ChatID)
}

func TestUpdateMessages_WithoutSenderStillStores(t *testing.T) {
	h := newHarness(t)

	resp := send(t, h.client, domain.UpdateMessages(snapshot("abc", 0)))
	require.True(t, resp.Success)

	all := send(t, h.client, domain.Request{Action: domain.ActionGetAllChats})
	require.True(t, all.Success)
	require.Contains(t, all.Chats, "abc")
	assert.Equal(t, "Go generics", all.Chats["abc"].Title)
	assert.NotZero(t, all.Chats["abc"].LastUpdated)
}

func TestUpdateMessages_MissingData(t *testing.T) {
	h := newHarness(t)

	resp := send(t, h.client, domain.Request{Action: domain.ActionUpdateMessages})
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)

	resp = send(t, h.client, domain.UpdateMessages(domain.ChatSnapshot{}))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "missing chatId")
}

func TestGetMessages_SortedByOrdinal(t *testing.T) {
	h := newHarness(t)

	require.True(t, send(t, h.client, domain.UpdateMessages(snapshot("abc", 2, 0, 1))).Success)

	resp := send(t, h.client, domain.Request{Action: domain.ActionGetMessages, ChatID: "abc"})
	require.True(t, resp.Success)
	require.Len(t, resp.Messages, 3)
	for i, m := range resp.Messages {
		assert.Equal(t, i, m.Ordinal)
	}
}

func TestGetMessages_UnknownChatIsEmpty(t *testing.T) {
	h := newHarness(t)

	resp := send(t, h.client, domain.Request{Action: domain.ActionGetMessages, ChatID: "missing"})
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Messages)
}

func TestReadActions_EmptyResultsKeepTheirKeys(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		req  domain.Request
		want string
	}{
		{domain.Request{Action: domain.ActionGetMessages, ChatID: "missing"}, `"messages":[]`},
		{domain.Request{Action: domain.ActionGetAllChats}, `"chats":{}`},
		{domain.Request{Action: domain.ActionGetBookmarks}, `"bookmarks":[]`},
	}
	for _, tc := range cases {
		data, err := json.Marshal(send(t, h.client, tc.req))
		require.NoError(t, err)
		assert.Contains(t, string(data), tc.want, tc.req.Action)
	}

	data, err := json.Marshal(send(t, h.client, domain.UpdateMessages(snapshot("abc", 0))))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(data))
}

func TestDeleteChat(t *testing.T) {
	h := newHarness(t)

	var deleted []string
	h.events.On(bus.EventChatDeleted, func(e bus.Event) { deleted = append(deleted, e.ChatID) })

	require.True(t, send(t, h.client, domain.UpdateMessages(snapshot("abc", 0))).Success)

	resp := send(t, h.client, domain.Request{Action: domain.ActionDeleteChat, ChatID: "abc"})
	assert.True(t, resp.Success)

	resp = send(t, h.client, domain.Request{Action: domain.ActionDeleteChat, ChatID: "abc"})
	assert.False(t, resp.Success)
	assert.True(t, resp.NotFound)

	all := send(t, h.client, domain.Request{Action: domain.ActionGetAllChats})
	assert.NotContains(t, all.Chats, "abc")
	assert.Equal(t, []string{"abc"}, deleted)
}

func TestBookmarks_UpsertAndDelete(t *testing.T) {
	h := newHarness(t)

	require.True(t, send(t, h.client, domain.SaveBookmark(domain.Bookmark{ChatID: "abc", Title: "first", Timestamp: 1})).Success)
	require.True(t, send(t, h.client, domain.SaveBookmark(domain.Bookmark{ChatID: "def", Title: "second", Timestamp: 2})).Success)
	require.True(t, send(t, h.client, domain.SaveBookmark(domain.Bookmark{ChatID: "abc", Title: "renamed", Timestamp: 3})).Success)

	resp := send(t, h.client, domain.Request{Action: domain.ActionGetBookmarks})
	require.True(t, resp.Success)
	require.Len(t, resp.Bookmarks, 2)
	assert.Equal(t, "abc", resp.Bookmarks[0].ChatID)
	assert.Equal(t, "renamed", resp.Bookmarks[0].Title)

	require.True(t, send(t, h.client, domain.Request{Action: domain.ActionDeleteBookmark, ChatID: "abc"}).Success)
	// Deleting an absent bookmark still succeeds.
	require.True(t, send(t, h.client, domain.Request{Action: domain.ActionDeleteBookmark, ChatID: "zzz"}).Success)

	resp = send(t, h.client, domain.Request{Action: domain.ActionGetBookmarks})
	require.Len(t, resp.Bookmarks, 1)
	assert.Equal(t, "def", resp.Bookmarks[0].ChatID)
}

func TestSaveBookmark_RequiresChatID(t *testing.T) {
	h := newHarness(t)
	resp := send(t, h.client, domain.SaveBookmark(domain.Bookmark{Title: "orphan"}))
	assert.False(t, resp.Success)
}

func TestScrollToMessage_RelaysTabResponse(t *testing.T) {
	h := newHarness(t)

	h.bus.OnTab(9, func(_ context.Context, req domain.Request) domain.Response {
		return domain.Response{Success: req.MessageID == "msg-1"}
	})

	resp := send(t, h.client, domain.Request{Action: domain.ActionScrollToMessage, TabID: 9, MessageID: "msg-1"})
	assert.True(t, resp.Success)

	resp = send(t, h.client, domain.Request{Action: domain.ActionScrollToMessage, TabID: 10, MessageID: "msg-1"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "no handler registered for tab")
}

func TestUnknownAction(t *testing.T) {
	h := newHarness(t)
	resp := send(t, h.client, domain.Request{Action: "reticulateSplines"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown action")
}

func TestStorageFailureIsReportedInResponse(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Close())

	resp := send(t, h.client, domain.UpdateMessages(snapshot("abc", 0)))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "save messages")

	resp = send(t, h.client, domain.Request{Action: domain.ActionGetAllChats})
	assert.False(t, resp.Success)
}

func TestTabUpdated_EnablesPanelOnSupportedSites(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.bg.TabUpdated(1, "https://chat.openai.com/c/abc", false), "loading tabs are ignored")
	assert.False(t, h.bg.PanelEnabled(1))

	assert.True(t, h.bg.TabUpdated(1, "https://chat.openai.com/c/abc", true))
	assert.True(t, h.bg.PanelEnabled(1))

	assert.False(t, h.bg.TabUpdated(2, "https://example.com/", true))
	assert.False(t, h.bg.PanelEnabled(2))

	assert.False(t, h.bg.TabUpdated(3, "://bad", true))

	h.bg.TabClosed(1)
	assert.False(t, h.bg.PanelEnabled(1))
}

func TestClient_SendHonoursContext(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := bus.New(1, logger)
	defer b.Close()

	// Nobody consumes the bus, so the reply never comes.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient(b).Send(ctx, domain.Request{Action: domain.ActionGetAllChats})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
