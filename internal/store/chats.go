package store

import (
	"context"

	"chatmark/internal/domain"
)

var (
	_ domain.ChatStore     = (*SQLiteStore)(nil)
	_ domain.BookmarkStore = (*SQLiteStore)(nil)
)

// Upsert replaces the chat stored under chatID in full and stamps LastUpdated.
func (s *SQLiteStore) Upsert(ctx context.Context, chatID string, chat domain.Chat) (domain.Chat, error) {
	chat.ID = chatID
	chat.LastUpdated = domain.At(s.now())
	if chat.Messages == nil {
		chat.Messages = []domain.Message{}
	}

	chats := map[string]domain.Chat{}
	err := s.update(ctx, chatsCollection, &chats, func() bool {
		chats[chatID] = chat
		return true
	})
	if err != nil {
		return domain.Chat{}, err
	}
	return chat, nil
}

// Get returns the chat stored under chatID, or an empty placeholder.
func (s *SQLiteStore) Get(ctx context.Context, chatID string) (domain.Chat, error) {
	chats := map[string]domain.Chat{}
	if err := s.read(ctx, chatsCollection, &chats); err != nil {
		return domain.Chat{}, err
	}
	chat, ok := chats[chatID]
	if !ok {
		return domain.EmptyChat(chatID), nil
	}
	chat.ID = chatID
	if chat.Messages == nil {
		chat.Messages = []domain.Message{}
	}
	return chat, nil
}

func (s *SQLiteStore) GetAll(ctx context.Context) (map[string]domain.Chat, error) {
	chats := map[string]domain.Chat{}
	if err := s.read(ctx, chatsCollection, &chats); err != nil {
		return nil, err
	}
	if chats == nil {
		chats = map[string]domain.Chat{}
	}
	for id, c := range chats {
		c.ID = id
		chats[id] = c
	}
	return chats, nil
}

// Delete removes the chat stored under chatID. Deleting an absent chat returns
// false and leaves the collection untouched.
func (s *SQLiteStore) Delete(ctx context.Context, chatID string) (bool, error) {
	chats := map[string]domain.Chat{}
	var existed bool
	err := s.update(ctx, chatsCollection, &chats, func() bool {
		if _, existed = chats[chatID]; !existed {
			return false
		}
		delete(chats, chatID)
		return true
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}
