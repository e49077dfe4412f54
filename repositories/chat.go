package repositories

import (
	"chat-gateway/domain"
	"chat-gateway/errors"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

const (
	chatSequenceKey       = "seq:chat"
	chatSequenceBandwidth = 100
)

type IChatRepository interface {
	CreateChat(ctx context.Context, chatType, name string) (domain.Chat, error)
	GetChat(ctx context.Context, id domain.ChatID) (domain.Chat, error)
	AddMember(ctx context.Context, id domain.ChatID, userID domain.UserID) error
	IsMember(ctx context.Context, id domain.ChatID, userID domain.UserID) (bool, error)
	MembersOf(ctx context.Context, id domain.ChatID) ([]domain.UserID, error)
	ChatsOf(ctx context.Context, userID domain.UserID) ([]domain.ChatID, error)
}

// ChatRepository keeps chats and memberships in both directions:
// "member:{chat_id}:{user_id}" answers fan-out, "membership:{user_id}:{chat_id}"
// answers a user's chat list.
type ChatRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	now func() time.Time
}

func NewChatRepository(db *badger.DB) (*ChatRepository, error) {
	seq, err := db.GetSequence([]byte(chatSequenceKey), chatSequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("chat id sequence: %w", err)
	}
	return &ChatRepository{db: db, seq: seq, now: time.Now}, nil
}

// Close hands unused ids of the leased band back to the database.
func (r *ChatRepository) Close() error {
	return r.seq.Release()
}

func chatKey(id domain.ChatID) []byte {
	return []byte(fmt.Sprintf("chat:%d", id))
}

func memberKey(id domain.ChatID, userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("member:%d:%s", id, userID))
}

func membershipKey(userID domain.UserID, id domain.ChatID) []byte {
	return []byte(fmt.Sprintf("membership:%s:%d", userID, id))
}

func (r *ChatRepository) CreateChat(_ context.Context, chatType, name string) (domain.Chat, error) {
	next, err := r.seq.Next()
	if err != nil {
		return domain.Chat{}, storeError(err)
	}
	// Sequences start at 0, chat ids start at 1.
	chat := domain.Chat{
		ID:        domain.ChatID(next + 1),
		Type:      chatType,
		Name:      name,
		CreatedAt: r.now().UTC(),
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chatKey(chat.ID), encodeChat(chat))
	})
	if err != nil {
		return domain.Chat{}, storeError(err)
	}
	return chat, nil
}

func (r *ChatRepository) GetChat(_ context.Context, id domain.ChatID) (domain.Chat, error) {
	var chat domain.Chat
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chatKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			chat, err = decodeChat(value)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Chat{}, fmt.Errorf("%w: %d", errors.ErrChatNotFound, id)
	}
	if err != nil {
		return domain.Chat{}, storeError(err)
	}
	return chat, nil
}

// AddMember writes both membership keys in one transaction. Adding twice is a no-op.
func (r *ChatRepository) AddMember(_ context.Context, id domain.ChatID, userID domain.UserID) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", errors.ErrInvalidPayload)
	}
	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(chatKey(id)); err != nil {
			return err
		}
		if err := txn.Set(memberKey(id, userID), nil); err != nil {
			return err
		}
		return txn.Set(membershipKey(userID, id), nil)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %d", errors.ErrChatNotFound, id)
	}
	if err != nil {
		return storeError(err)
	}
	return nil
}

func (r *ChatRepository) IsMember(_ context.Context, id domain.ChatID, userID domain.UserID) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(memberKey(id, userID))
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	case err != nil:
		return false, storeError(err)
	default:
		return true, nil
	}
}

func (r *ChatRepository) MembersOf(_ context.Context, id domain.ChatID) ([]domain.UserID, error) {
	suffixes, err := r.scanSuffixes(fmt.Sprintf("member:%d:", id))
	if err != nil {
		return nil, err
	}
	return lo.Map(suffixes, func(s string, _ int) domain.UserID { return domain.UserID(s) }), nil
}

func (r *ChatRepository) ChatsOf(_ context.Context, userID domain.UserID) ([]domain.ChatID, error) {
	suffixes, err := r.scanSuffixes(fmt.Sprintf("membership:%s:", userID))
	if err != nil {
		return nil, err
	}
	var ids []domain.ChatID
	for _, s := range suffixes {
		// Keys of user "al:ice" share the prefix of user "al".
		if strings.Contains(s, ":") {
			continue
		}
		var id int64
		if _, err := fmt.Sscanf(s, "%d", &id); err != nil {
			return nil, errors.Permanent(fmt.Errorf("corrupted membership key %q: %w", s, err))
		}
		ids = append(ids, domain.ChatID(id))
	}
	return ids, nil
}

// scanSuffixes lists what follows prefix in every matching key. Values are not read.
func (r *ChatRepository) scanSuffixes(prefix string) ([]string, error) {
	var suffixes []string
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			suffixes = append(suffixes, strings.TrimPrefix(string(it.Item().Key()), prefix))
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	return suffixes, nil
}
