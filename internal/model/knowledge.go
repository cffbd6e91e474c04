package model

// KnowledgeSearchRequest is the body of POST /api/knowledge/search. An empty
// UserID searches across all users.
type KnowledgeSearchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"userId,omitempty"`
	TopK   int    `json:"topK,omitempty"`
}

// KnowledgeSearchResponse carries the semantic matches for a query.
type KnowledgeSearchResponse struct {
	Results []SemanticMatch `json:"results"`
}

// KnowledgeAddRequest is the body of POST /api/knowledge/add: externally
// ingested knowledge attached to an existing conversation, or to a fresh
// anchor conversation when none is given.
type KnowledgeAddRequest struct {
	UserID         string   `json:"userId"`
	ConversationID string   `json:"conversationId,omitempty"`
	Content        string   `json:"content"`
	Topics         []string `json:"topics,omitempty"`
}

// KnowledgeAddResponse reports the created insight.
type KnowledgeAddResponse struct {
	Success   bool     `json:"success"`
	InsightID string   `json:"insightId"`
	TopicIDs  []string `json:"topicIds"`
}
