package model

// Conversation is an ordered exchange of user/assistant messages plus the
// verdict state stamped by the deferred processor.
type Conversation struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	Summary      string `json:"summary,omitempty"`
	MessageCount int    `json:"messageCount"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`

	// Processor verdict. IsUseful is tri-state: nil until classified.
	Processed        bool   `json:"processed"`
	IsUseful         *bool  `json:"isUseful"`
	UsefulnessReason string `json:"usefulnessReason,omitempty"`

	// True iff PII was detected and the user declined global sharing.
	GlobalSharingBlocked bool `json:"globalSharingBlocked"`

	Deleted   bool   `json:"deleted,omitempty"`
	DeletedAt *int64 `json:"deletedAt,omitempty"`
}

// ConversationSummary is the global-pool view of a processed conversation.
type ConversationSummary struct {
	ConversationID string `json:"conversationId"`
	Summary        string `json:"summary"`
	UpdatedAt      int64  `json:"updatedAt"`
}

// ConversationStatus is the payload of GET /api/chat/status/{conversationID}.
type ConversationStatus struct {
	ConversationID   string         `json:"conversationId"`
	Processed        bool           `json:"processed"`
	IsUseful         *bool          `json:"isUseful"`
	UsefulnessReason string         `json:"usefulnessReason,omitempty"`
	ProcessingLog    *ProcessingLog `json:"processingLog,omitempty"`
}
