package model

// Insight is a concrete takeaway extracted from a conversation. Insights
// are created by the processor or by external ingestion and never updated
// in place; ownership may be rewritten to AnonymousUserID on delete.
type Insight struct {
	ID              string  `json:"id"`
	ConversationID  string  `json:"conversationId"`
	UserID          string  `json:"userId"`
	Content         string  `json:"content"`
	ImportanceScore float64 `json:"importanceScore"`
	VectorID        string  `json:"vectorId,omitempty"`
	CreatedAt       int64   `json:"createdAt"`

	// Topic names linked to this insight, populated by queries that join
	// the link table.
	Topics []string `json:"topics,omitempty"`
}

// GlobalInsight is a user-consented, shareable summary derived from one
// conversation; its id is "global_" + conversationId.
type GlobalInsight struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	TopicIDs  string `json:"topicIds"`
	UseCount  int    `json:"useCount"`
	CreatedAt int64  `json:"createdAt"`
}

// GlobalInsightIDPrefix builds GlobalInsight identifiers from conversation
// ids, and is how the owning conversation is recovered in queries.
const GlobalInsightIDPrefix = "global_"

// Default importance scores. The processor and external ingestion write
// ImportanceScoreExtracted; the column default covers rows created without
// an explicit score.
const (
	ImportanceScoreDefault   = 0.5
	ImportanceScoreExtracted = 0.7
)
