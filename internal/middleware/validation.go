package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
)

// ValidateUserID validates an opaque client-supplied user ID.
func ValidateUserID(id string) error {
	if len(id) == 0 {
		return errors.New("userId is required")
	}
	if len(id) > 128 {
		return errors.New("userId exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("userId must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if len(id) == 0 {
		return errors.New("conversationId is required")
	}
	if len(id) > 128 {
		return errors.New("conversationId exceeds maximum length")
	}
	return nil
}

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateChatMessages validates a client-side history: non-empty and
// ending with a user turn, since that turn is what gets answered.
func ValidateChatMessages(messages []model.ChatMessage) error {
	if len(messages) == 0 {
		return errors.New("messages cannot be empty")
	}
	last := messages[len(messages)-1]
	if last.Role != model.RoleUser {
		return errors.New("final message must be a user turn")
	}
	return ValidateMessageContent(last.Content)
}

// ValidateTopicName validates a topic name survives normalization.
func ValidateTopicName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("topic name is required")
	}
	if model.NormalizeTopicName(name) == "" {
		return errors.New("topic name is invalid")
	}
	if len(name) > 256 {
		return errors.New("topic name exceeds maximum length")
	}
	return nil
}
