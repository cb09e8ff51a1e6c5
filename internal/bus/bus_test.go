package bus

import (
	"context"
	"testing"

	"chatmark/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBus_PublishSubscribe(t *testing.T) {
	b := New(1, testLogger())
	defer b.Close()

	reply := make(chan domain.Response, 1)
	env := domain.Envelope{ID: "1", Request: domain.Request{Action: domain.ActionGetAllChats}, Reply: reply}
	require.NoError(t, b.Publish(context.Background(), env))

	got := <-b.Subscribe()
	assert.Equal(t, domain.ActionGetAllChats, got.Request.Action)
	got.Reply <- domain.Response{Success: true}
	assert.True(t, (<-reply).Success)
}

func TestInMemoryBus_PublishFullRespectsContext(t *testing.T) {
	b := New(1, testLogger())
	defer b.Close()

	require.NoError(t, b.Publish(context.Background(), domain.Envelope{ID: "fills"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Publish(ctx, domain.Envelope{ID: "blocked"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryBus_PublishAfterClose(t *testing.T) {
	b := New(1, testLogger())
	b.Close()
	b.Close()
	assert.ErrorIs(t, b.Publish(context.Background(), domain.Envelope{}), ErrClosed)
}

func TestInMemoryBus_TabRouting(t *testing.T) {
	ctx := context.Background()
	b := New(1, testLogger())
	defer b.Close()

	b.OnTab(7, func(_ context.Context, req domain.Request) domain.Response {
		return domain.Response{Success: req.MessageID == "m1"}
	})

	resp, err := b.SendToTab(ctx, 7, domain.Request{Action: domain.ActionScrollToMessage, MessageID: "m1"})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	b.RemoveTab(7)
	_, err = b.SendToTab(ctx, 7, domain.Request{Action: domain.ActionScrollToMessage})
	assert.ErrorIs(t, err, ErrNoTab)
}
