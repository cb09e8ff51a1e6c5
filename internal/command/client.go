package command

import (
	"context"
	"fmt"

	"chatmark/internal/domain"

	"github.com/google/uuid"
)

// Client sends requests to the coordinator over the bus and waits for the reply.
// A client bound to a tab (see ForTab) stamps its requests with that tab as the
// sender, which is how the coordinator learns each tab's active chat.
type Client struct {
	bus    domain.MessageBus
	sender *domain.Sender
}

func NewClient(b domain.MessageBus) *Client {
	return &Client{bus: b}
}

// ForTab returns a copy of c that identifies itself as tabID.
func (c *Client) ForTab(tabID int) *Client {
	return &Client{bus: c.bus, sender: &domain.Sender{TabID: tabID}}
}

// Send publishes req and blocks until the coordinator answers or ctx is done.
func (c *Client) Send(ctx context.Context, req domain.Request) (domain.Response, error) {
	reply := make(chan domain.Response, 1)
	env := domain.Envelope{
		ID:      uuid.NewString(),
		Request: req,
		Sender:  c.sender,
		Reply:   reply,
	}
	if err := c.bus.Publish(ctx, env); err != nil {
		return domain.Response{}, fmt.Errorf("publish %s: %w", req.Action, err)
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		return domain.Response{}, fmt.Errorf("await %s: %w", req.Action, ctx.Err())
	}
}

func (c *Client) UpdateMessages(ctx context.Context, snap domain.ChatSnapshot) (domain.Response, error) {
	return c.Send(ctx, domain.UpdateMessages(snap))
}

func (c *Client) GetActiveChat(ctx context.Context, tabID int) (domain.Response, error) {
	return c.Send(ctx, domain.Request{Action: domain.ActionGetActiveChat, TabID: tabID})
}

func (c *Client) GetAllChats(ctx context.Context) (domain.Response, error) {
	return c.Send(ctx, domain.Request{Action: domain.ActionGetAllChats})
}

func (c *Client) GetMessages(ctx context.Context, chatID string) (domain.Response, error) {
	return c.Send(ctx, domain.Request{Action: domain.ActionGetMessages, ChatID: chatID})
}

func (c *Client) DeleteChat(ctx context.Context, chatID string) (domain.Response, error) {
	return c.Send(ctx, domain.Request{Action: domain.ActionDeleteChat, ChatID: chatID})
}

func (c *Client) ScrollToMessage(ctx context.Context, tabID int, messageID string) (domain.Response, error) {
	return c.Send(ctx, domain.Request{Action: domain.ActionScrollToMessage, TabID: tabID, MessageID: messageID})
}

func (c *Client) SaveBookmark(ctx context.Context, b domain.Bookmark) (domain.Response, error) {
	return c.Send(ctx, domain.SaveBookmark(b))
}

func (c *Client) GetBookmarks(ctx context.Context) (domain.Response, error) {
	return c.Send(ctx, domain.Request{Action: domain.ActionGetBookmarks})
}

func (c *Client) DeleteBookmark(ctx context.Context, chatID string) (domain.Response, error) {
	return c.Send(ctx, domain.Request{Action: domain.ActionDeleteBookmark, ChatID: chatID})
}
