package runtime

import (
	"chat-gateway/domain"
	"encoding/json"
	"time"
)

// MessagePayload is the JSON body delivered to subscribers.
type MessagePayload struct {
	ID        string    `json:"id"`
	ChatID    int64     `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	ChatID    int64  `json:"chatId"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error"`
}

func ToPayload(message domain.Message) MessagePayload {
	return MessagePayload{
		ID:        message.ID,
		ChatID:    int64(message.ChatID),
		SenderID:  string(message.SenderID),
		Content:   message.Content,
		Timestamp: message.Timestamp.UTC(),
	}
}

func EncodeMessage(message domain.Message) ([]byte, error) {
	return json.Marshal(ToPayload(message))
}
