// Package domain contains core concepts of the chat gateway.
// This file defines Message and the persistence task that carries it.
// Messages are immutable once built by the chat service.
package domain

import (
	"fmt"
	"time"
)

type ChatID int64

type UserID string

// Message represents an immutable chat message.
type Message struct {
	ID        string // ULID, lexicographically sortable
	ChatID    ChatID
	SenderID  UserID
	Content   string
	Timestamp time.Time
}

// PersistenceTask wraps one message on its way to the store.
type PersistenceTask struct {
	Message    Message
	Attempts   int
	EnqueuedAt time.Time
}

func NewPersistenceTask(message Message, now time.Time) PersistenceTask {
	return PersistenceTask{Message: message, EnqueuedAt: now}
}

// Key identifies the task for de-duplication: replaying the same key
// must land on the same stored row.
func (t PersistenceTask) Key() string {
	return fmt.Sprintf("%d:%s:%d", t.Message.ChatID, t.Message.SenderID, t.Message.Timestamp.UnixNano())
}

// DeadLetter is a task that exhausted its attempts.
type DeadLetter struct {
	Task     PersistenceTask
	Reason   string
	FailedAt time.Time
}

type Chat struct {
	ID        ChatID
	Type      string
	Name      string
	CreatedAt time.Time
}
