package repositories

import (
	"chat-gateway/contract"
	"chat-gateway/domain"
	"context"
)

var _ contract.Store = (*BadgerStore)(nil)

// BadgerStore is the default durable side of the gateway.
type BadgerStore struct {
	Messages MessageRepository
	Chats    *ChatRepository
}

func NewBadgerStore(messages MessageRepository, chats *ChatRepository) *BadgerStore {
	return &BadgerStore{Messages: messages, Chats: chats}
}

func (s *BadgerStore) Save(ctx context.Context, message domain.Message) error {
	return s.Messages.Save(ctx, message)
}

func (s *BadgerStore) MembersOf(ctx context.Context, chatID domain.ChatID) ([]domain.UserID, error) {
	return s.Chats.MembersOf(ctx, chatID)
}

func (s *BadgerStore) IsMember(ctx context.Context, chatID domain.ChatID, userID domain.UserID) (bool, error) {
	return s.Chats.IsMember(ctx, chatID, userID)
}

func (s *BadgerStore) GetMessages(_ context.Context, chatID domain.ChatID, cursor *string, limit int) ([]domain.Message, *string, error) {
	return s.Messages.GetMessages(chatID, cursor, limit)
}
