package repositories

import (
	"chat-gateway/contract"
	"chat-gateway/domain"
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var _ contract.DeadLetterStore = (*DeadLetterRepository)(nil)

const deadLetterPrefix = "dlq:" + domain.PersistChannel + ":"

// DeadLetterRepository keeps tasks the pipeline gave up on, oldest first.
type DeadLetterRepository struct {
	db *badger.DB
}

func NewDeadLetterRepository(db *badger.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

func deadLetterKey(letter domain.DeadLetter) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", deadLetterPrefix, letter.FailedAt.UnixNano(), letter.Task.Key()))
}

func (r *DeadLetterRepository) Put(_ context.Context, letter domain.DeadLetter) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(deadLetterKey(letter), encodeDeadLetter(letter))
	})
	if err != nil {
		return storeError(err)
	}
	return nil
}

// List returns up to limit letters, limit <= 0 means all of them.
func (r *DeadLetterRepository) List(_ context.Context, limit int) ([]domain.DeadLetter, error) {
	var letters []domain.DeadLetter
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(deadLetterPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(letters) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				letter, err := decodeDeadLetter(value)
				if err != nil {
					return err
				}
				letters = append(letters, letter)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	return letters, nil
}

func (r *DeadLetterRepository) Delete(_ context.Context, letter domain.DeadLetter) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(deadLetterKey(letter))
	})
	if err != nil {
		return storeError(err)
	}
	return nil
}
