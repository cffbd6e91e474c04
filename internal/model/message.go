package model

// Role is the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single persisted turn in a conversation. Messages are
// append-only and immutable.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Role           Role   `json:"role"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"createdAt"`
}

// ChatMessage is a client-supplied history entry. Only the final element of
// a send request (a user turn) is authoritative for routing and analysis.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
