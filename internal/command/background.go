// Package command implements the request/response surface shared by trackers and
// the panel: the background coordinator that owns the store and the active-chat
// map, and the client used to reach it.
package command

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"chatmark/internal/bus"
	"chatmark/internal/domain"
	"chatmark/internal/metrics"
	"chatmark/internal/site"
)

// BackgroundConfig wires the coordinator to its collaborators.
type BackgroundConfig struct {
	Bus       domain.MessageBus
	Chats     domain.ChatStore
	Bookmarks domain.BookmarkStore
	Sites     *site.Registry
	Events    *bus.EventBus // optional
	Logger    *slog.Logger
}

// Background serves commands from the bus. Store operations run one at a time on
// the Run goroutine; scrollToMessage relays run on their own goroutines.
type Background struct {
	bus       domain.MessageBus
	chats     domain.ChatStore
	bookmarks domain.BookmarkStore
	sites     *site.Registry
	events    *bus.EventBus
	logger    *slog.Logger

	mu          sync.RWMutex
	activeChats map[int]string // tab id -> chat id, never persisted
	panelTabs   map[int]string // tab id -> hostname of the supported site
}

func NewBackground(cfg BackgroundConfig) *Background {
	return &Background{
		bus:         cfg.Bus,
		chats:       cfg.Chats,
		bookmarks:   cfg.Bookmarks,
		sites:       cfg.Sites,
		events:      cfg.Events,
		logger:      cfg.Logger,
		activeChats: make(map[int]string),
		panelTabs:   make(map[int]string),
	}
}

// Run consumes the bus until it is closed or ctx is done.
func (b *Background) Run(ctx context.Context) {
	b.logger.Info("background coordinator started")
	in := b.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("background coordinator stopped")
			return
		case env, ok := <-in:
			if !ok {
				b.logger.Info("bus closed, background coordinator stopped")
				return
			}
			if env.Request.Action == domain.ActionScrollToMessage {
				go func() { deliver(env, b.Handle(ctx, env)) }()
				continue
			}
			deliver(env, b.Handle(ctx, env))
		}
	}
}

func deliver(env domain.Envelope, resp domain.Response) {
	if env.Reply == nil {
		return
	}
	select {
	case env.Reply <- resp:
	default:
	}
}

// Handle executes one command and builds its response.
func (b *Background) Handle(ctx context.Context, env domain.Envelope) domain.Response {
	start := time.Now()
	req := env.Request
	b.logger.Debug("request received", "action", req.Action, "id", env.ID)

	var resp domain.Response
	switch req.Action {
	case domain.ActionUpdateMessages:
		resp = b.updateMessages(ctx, env)
	case domain.ActionGetActiveChat:
		resp = domain.Response{Success: true, ChatID: b.ActiveChat(req.TabID)}
	case domain.ActionGetAllChats:
		resp = b.getAllChats(ctx)
	case domain.ActionGetMessages:
		resp = b.getMessages(ctx, req.ChatID)
	case domain.ActionDeleteChat:
		resp = b.deleteChat(ctx, req.ChatID)
	case domain.ActionScrollToMessage:
		resp = b.scrollToMessage(ctx, req)
	case domain.ActionSaveBookmark:
		resp = b.saveBookmark(ctx, req)
	case domain.ActionGetBookmarks:
		resp = b.getBookmarks(ctx)
	case domain.ActionDeleteBookmark:
		resp = b.deleteBookmark(ctx, req.ChatID)
	default:
		resp = domain.Failure("unknown action %q", req.Action)
	}

	metrics.ObserveCommand(string(req.Action), resp.Success, time.Since(start))
	return resp
}

func (b *Background) updateMessages(ctx context.Context, env domain.Envelope) domain.Response {
	snap, err := env.Request.Snapshot()
	if err != nil {
		return domain.Failure("%v", err)
	}
	if snap.ChatID == "" {
		return domain.Failure("updateMessages: missing chatId")
	}

	if env.Sender != nil {
		b.mu.Lock()
		b.activeChats[env.Sender.TabID] = snap.ChatID
		b.mu.Unlock()
	}

	stored, err := b.chats.Upsert(ctx, snap.ChatID, snap.Chat())
	if err != nil {
		b.logger.Error("error saving messages", "chat_id", snap.ChatID, "err", err)
		return domain.Failure("save messages: %v", err)
	}

	b.logger.Info("saved messages", "chat_id", snap.ChatID, "count", len(stored.Messages))
	b.emit(bus.Event{Type: bus.EventChatUpdated, ChatID: snap.ChatID, Payload: stored})
	return domain.Response{Success: true}
}

func (b *Background) getAllChats(ctx context.Context) domain.Response {
	chats, err := b.chats.GetAll(ctx)
	if err != nil {
		b.logger.Error("error loading chats", "err", err)
		return domain.Failure("load chats: %v", err)
	}
	if chats == nil {
		chats = map[string]domain.Chat{}
	}
	return domain.Response{Success: true, Chats: chats}
}

func (b *Background) getMessages(ctx context.Context, chatID string) domain.Response {
	chat, err := b.chats.Get(ctx, chatID)
	if err != nil {
		b.logger.Error("error loading chat", "chat_id", chatID, "err", err)
		return domain.Failure("load chat: %v", err)
	}
	return domain.Response{Success: true, Messages: domain.SortByOrdinal(chat.Messages)}
}

func (b *Background) deleteChat(ctx context.Context, chatID string) domain.Response {
	if chatID == "" {
		return domain.Failure("deleteChat: missing chatId")
	}
	existed, err := b.chats.Delete(ctx, chatID)
	if err != nil {
		b.logger.Error("error deleting chat", "chat_id", chatID, "err", err)
		return domain.Failure("delete chat: %v", err)
	}
	if !existed {
		return domain.Response{NotFound: true, Error: "chat not found"}
	}
	b.emit(bus.Event{Type: bus.EventChatDeleted, ChatID: chatID})
	return domain.Response{Success: true}
}

// scrollToMessage forwards the request to the tab hosting the chat and relays
// whatever it answers.
func (b *Background) scrollToMessage(ctx context.Context, req domain.Request) domain.Response {
	resp, err := b.bus.SendToTab(ctx, req.TabID, domain.Request{
		Action:    domain.ActionScrollToMessage,
		MessageID: req.MessageID,
	})
	if err != nil {
		return domain.Response{Error: err.Error()}
	}
	return resp
}

func (b *Background) saveBookmark(ctx context.Context, req domain.Request) domain.Response {
	bm, err := req.Bookmark()
	if err != nil {
		return domain.Failure("%v", err)
	}
	if bm.ChatID == "" {
		return domain.Failure("saveBookmark: missing chatId")
	}
	if err := b.bookmarks.SaveBookmark(ctx, bm); err != nil {
		b.logger.Error("error saving bookmark", "chat_id", bm.ChatID, "err", err)
		return domain.Failure("save bookmark: %v", err)
	}
	b.emit(bus.Event{Type: bus.EventBookmarkSaved, ChatID: bm.ChatID, Payload: bm})
	return domain.Response{Success: true}
}

func (b *Background) getBookmarks(ctx context.Context) domain.Response {
	bookmarks, err := b.bookmarks.Bookmarks(ctx)
	if err != nil {
		b.logger.Error("error loading bookmarks", "err", err)
		return domain.Failure("load bookmarks: %v", err)
	}
	if bookmarks == nil {
		bookmarks = []domain.Bookmark{}
	}
	return domain.Response{Success: true, Bookmarks: bookmarks}
}

func (b *Background) deleteBookmark(ctx context.Context, chatID string) domain.Response {
	removed, err := b.bookmarks.DeleteBookmark(ctx, chatID)
	if err != nil {
		b.logger.Error("error deleting bookmark", "chat_id", chatID, "err", err)
		return domain.Failure("delete bookmark: %v", err)
	}
	if removed > 0 {
		b.emit(bus.Event{Type: bus.EventBookmarkDeleted, ChatID: chatID})
	}
	return domain.Response{Success: true}
}

// ActiveChat returns the chat last announced by tabID, or "".
func (b *Background) ActiveChat(tabID int) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.activeChats[tabID]
}

// TabUpdated is called by the browser driver on tab navigation. When a page on a
// supported site has finished loading, the panel is enabled for that tab.
func (b *Background) TabUpdated(tabID int, rawURL string, complete bool) bool {
	if !complete || rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		b.logger.Error("error processing tab URL", "tab_id", tabID, "url", rawURL, "err", err)
		return false
	}
	host := u.Hostname()
	if !b.sites.Supported(host) {
		return false
	}

	b.mu.Lock()
	b.panelTabs[tabID] = host
	b.mu.Unlock()

	b.logger.Info("supported AI chat site detected", "tab_id", tabID, "host", host)
	b.emit(bus.Event{Type: bus.EventTabDetected, TabID: tabID, Payload: host})
	return true
}

// PanelEnabled reports whether the panel surface is enabled for tabID.
func (b *Background) PanelEnabled(tabID int) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.panelTabs[tabID]
	return ok
}

// TabClosed disables the panel for tabID. The active-chat entry stays until the
// process exits, like the rest of the map.
func (b *Background) TabClosed(tabID int) {
	b.mu.Lock()
	delete(b.panelTabs, tabID)
	b.mu.Unlock()
}

func (b *Background) emit(e bus.Event) {
	if b.events == nil {
		return
	}
	e.Source = "background"
	b.events.Emit(e)
}
