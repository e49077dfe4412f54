package repositories

import (
	"chat-gateway/domain"
	"chat-gateway/errors"
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

const defaultPageSize = 50

type IMessageRepository interface {
	Save(ctx context.Context, message domain.Message) error
	GetMessages(chatID domain.ChatID, cursor *string, limit int) ([]domain.Message, *string, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

func messagePrefix(chatID domain.ChatID) string {
	return fmt.Sprintf("msg:%d:", chatID)
}

// messageKey is "msg:{chat_id}:{timestamp_padded}:{sender_id}".
// The 19-digit padding keeps keys in chronological order. Chat, timestamp and
// sender together identify a persistence task, so a replayed task overwrites
// its own row instead of adding a duplicate.
func messageKey(message domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s",
		messagePrefix(message.ChatID),
		message.Timestamp.UnixNano(),
		message.SenderID,
	))
}

func (m MessageRepository) Save(ctx context.Context, message domain.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	if message.ChatID <= 0 || message.SenderID == "" {
		return errors.Permanent(fmt.Errorf("%w: message without chat or sender", errors.ErrInvalidPayload))
	}
	err := m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message), encodeMessage(message))
	})
	if err != nil {
		return storeError(err)
	}
	return nil
}

// GetMessages returns up to limit messages of a chat, newest first.
// The returned cursor is the key suffix of the last message, pass it back to
// get the next older page. A nil cursor starts from the most recent message.
func (m MessageRepository) GetMessages(chatID domain.ChatID, cursor *string, limit int) ([]domain.Message, *string, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	var messages []domain.Message
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := messagePrefix(chatID)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// In reverse mode Seek lands on the greatest key <= seekKey.
		var seekKey []byte
		switch cursor {
		case nil:
			seekKey = append([]byte(prefixStr), 0xFF)
		default:
			seekKey = []byte(prefixStr + *cursor)
		}
		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()) == string(seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			err := item.Value(func(value []byte) error {
				message, err := decodeMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, storeError(err)
	}
	if len(messages) < limit {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

// storeError classifies badger failures. Only a closed database is final.
func storeError(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return errors.Permanent(err)
	}
	return fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
}
