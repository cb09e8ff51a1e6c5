package scanner

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"chatmark/internal/domain"
	"chatmark/internal/identity"
	"chatmark/internal/metrics"
	"chatmark/internal/site"
)

// ExcerptLimit is the number of characters kept from a message's text.
const ExcerptLimit = 150

// session is one Active phase: a chat id and the messages seen for it.
type session struct {
	adapter   site.Adapter
	url       string
	chatID    string
	firstSeen domain.Timestamp
	tracked   []domain.Message
	index     map[string]int // message id -> position in tracked
}

func newSession(a site.Adapter, rawURL, chatID string, firstSeen domain.Timestamp) *session {
	return &session{adapter: a, url: rawURL, chatID: chatID, firstSeen: firstSeen, index: make(map[string]int)}
}

// upsert stores m by id and reports whether it was not tracked before.
func (s *session) upsert(m domain.Message) bool {
	if i, ok := s.index[m.ID]; ok {
		s.tracked[i] = m
		return false
	}
	s.index[m.ID] = len(s.tracked)
	s.tracked = append(s.tracked, m)
	return true
}

// Excerpt trims text and caps it at ExcerptLimit characters, marking cut text
// with "...".
func Excerpt(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= ExcerptLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:ExcerptLimit]) + "..."
}

// scan enumerates the message nodes of the page, updates the tracked list and pushes
// the snapshot when there is anything to report. A node that fails is skipped.
func (t *Tracker) scan(ctx context.Context) {
	t.mu.Lock()
	s := t.session
	t.mu.Unlock()
	if s == nil {
		return
	}

	prev := t.State()
	t.setState(StateScanning)
	defer t.setState(prev)

	start := time.Now()
	sel := s.adapter.Selectors()
	nodes, err := t.page.QueryAll(ctx, sel.Message)
	if err != nil {
		t.logger.Error("querying messages failed", "selector", sel.Message, "err", err)
		return
	}

	var added int
	t.mu.Lock()
	for i, n := range nodes {
		m, err := t.extract(ctx, sel, n, i)
		if err != nil {
			metrics.ScanNodeErrors.Inc()
			t.logger.Warn("error processing message", "index", i, "err", err)
			continue
		}
		if s.upsert(m) {
			added++
		}
	}
	tracked := len(s.tracked)
	t.mu.Unlock()

	metrics.ScansTotal.Inc()
	metrics.MessagesTracked.Add(int64(added))
	metrics.ScanLatency.Observe(time.Since(start).Seconds())
	t.logger.Debug("scan complete", "chat_id", s.chatID, "nodes", len(nodes), "new", added, "tracked", tracked)

	if tracked == 0 {
		return
	}
	t.push(ctx, s)
}

func (t *Tracker) extract(ctx context.Context, sel site.Selectors, n domain.Node, ordinal int) (domain.Message, error) {
	now := t.now()
	id := identity.Identify(n, sel.IDAttribute, now)
	if err := identity.Stamp(ctx, n, id); err != nil {
		return domain.Message{}, fmt.Errorf("stamp %s: %w", id, err)
	}

	role, err := classify(ctx, sel, n)
	if err != nil {
		return domain.Message{}, fmt.Errorf("classify %s: %w", id, err)
	}

	return domain.Message{
		ID:         id,
		Role:       role,
		Excerpt:    Excerpt(n.Text()),
		Color:      n.BackgroundColor(),
		CapturedAt: domain.At(now),
		Ordinal:    ordinal,
	}, nil
}

// classify checks the user selector first, then the assistant selector.
func classify(ctx context.Context, sel site.Selectors, n domain.Node) (domain.Role, error) {
	if sel.User != "" {
		ok, err := n.Matches(ctx, sel.User)
		if err != nil {
			return "", err
		}
		if ok {
			return domain.RoleUser, nil
		}
	}
	if sel.Assistant != "" {
		ok, err := n.Matches(ctx, sel.Assistant)
		if err != nil {
			return "", err
		}
		if ok {
			return domain.RoleAssistant, nil
		}
	}
	return domain.RoleSystem, nil
}

// snapshot builds the full-chat payload for s.
func (t *Tracker) snapshot(ctx context.Context, s *session) domain.ChatSnapshot {
	title, err := t.page.Title(ctx)
	if err != nil {
		t.logger.Debug("reading page title failed", "err", err)
	}

	t.mu.Lock()
	msgs := domain.SortByOrdinal(s.tracked)
	t.mu.Unlock()

	return domain.ChatSnapshot{
		ChatID:     s.chatID,
		Messages:   msgs,
		Title:      site.Title(title, s.adapter),
		SiteName:   s.adapter.Name(),
		ThemeColor: site.ThemeColor(ctx, t.page, s.adapter),
		URL:        s.url,
		Timestamp:  s.firstSeen,
	}
}

func (t *Tracker) push(ctx context.Context, s *session) {
	if t.publisher == nil {
		return
	}
	snap := t.snapshot(ctx, s)

	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()
	resp, err := t.publisher.Send(ctx, domain.UpdateMessages(snap))
	if err != nil {
		t.logger.Error("sending messages failed", "chat_id", s.chatID, "err", err)
		return
	}
	if !resp.Success {
		t.logger.Warn("coordinator rejected messages", "chat_id", s.chatID, "error", resp.Error)
		return
	}
	metrics.SnapshotsPushed.Inc()
}

// Bookmark saves a single reference to the current chat through the coordinator.
func (t *Tracker) Bookmark(ctx context.Context) (domain.Bookmark, error) {
	t.mu.Lock()
	s := t.session
	t.mu.Unlock()
	if s == nil {
		return domain.Bookmark{}, fmt.Errorf("bookmark: %w", ErrInvalidPage)
	}

	snap := t.snapshot(ctx, s)
	b := domain.Bookmark{
		ChatID:     snap.ChatID,
		Title:      snap.Title,
		SiteName:   snap.SiteName,
		ThemeColor: snap.ThemeColor,
		URL:        snap.URL,
		Timestamp:  domain.At(t.now()),
	}
	if t.publisher == nil {
		return b, nil
	}

	resp, err := t.publisher.Send(ctx, domain.SaveBookmark(b))
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("bookmark %s: %w", b.ChatID, err)
	}
	if !resp.Success {
		return domain.Bookmark{}, fmt.Errorf("bookmark %s: %s", b.ChatID, resp.Error)
	}
	t.logger.Info("chat bookmarked", "chat_id", b.ChatID)
	return b, nil
}

// Snapshot returns the current chat snapshot without pushing it. ok is false when
// the tracker is not active.
func (t *Tracker) Snapshot(ctx context.Context) (domain.ChatSnapshot, bool) {
	t.mu.Lock()
	s := t.session
	t.mu.Unlock()
	if s == nil {
		return domain.ChatSnapshot{}, false
	}
	return t.snapshot(ctx, s), true
}
