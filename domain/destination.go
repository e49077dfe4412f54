package domain

import (
	"fmt"
	"strconv"
	"strings"

	"chat-gateway/errors"
)

const (
	AppChatPrefix    = "/app/chat/"
	TopicChatPrefix  = "/topic/chat/"
	UserPrefix       = "/user/"
	userQueuePrefix  = "/user/queue/"
	PersistChannel   = "message_persist"
	errorTopicSuffix = "/error"
)

func ChatTopic(chatID ChatID) string {
	return fmt.Sprintf("/topic/chat/%d", chatID)
}

func UserQueue(userID UserID, chatID ChatID) string {
	return fmt.Sprintf("/user/%s/queue/chat/%d", userID, chatID)
}

func ErrorTopic(chatID ChatID) string {
	return ChatTopic(chatID) + errorTopicSuffix
}

// ParseChatID extracts the chat id from a SEND destination "/app/chat/{chatId}".
func ParseChatID(destination string) (ChatID, error) {
	raw, ok := strings.CutPrefix(destination, AppChatPrefix)
	if !ok || raw == "" || strings.Contains(raw, "/") {
		return 0, fmt.Errorf("%w: %q", errors.ErrInvalidDestination, destination)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errors.ErrInvalidDestination, destination)
	}
	return ChatID(id), nil
}

// ResolveUserDestination rewrites the session relative "/user/queue/..." form
// into "/user/{subject}/queue/...". An explicit user destination is only
// accepted when it names the subscriber itself.
func ResolveUserDestination(identity *Identity, destination string) (string, error) {
	if !strings.HasPrefix(destination, UserPrefix) {
		return destination, nil
	}
	if identity == nil {
		return "", fmt.Errorf("%w: %q requires an identity", errors.ErrDenied, destination)
	}
	if rest, ok := strings.CutPrefix(destination, userQueuePrefix); ok {
		return fmt.Sprintf("/user/%s/queue/%s", identity.Subject, rest), nil
	}
	owner, _, _ := strings.Cut(strings.TrimPrefix(destination, UserPrefix), "/")
	if UserID(owner) != identity.Subject {
		return "", fmt.Errorf("%w: %q belongs to another user", errors.ErrDenied, destination)
	}
	return destination, nil
}
