package model

// ProcessingLog is an append-only audit row recording one processor verdict.
type ProcessingLog struct {
	ID              string `json:"id"`
	ConversationID  string `json:"conversationId"`
	UserID          string `json:"userId"`
	ProcessedAt     int64  `json:"processedAt"`
	IsUseful        bool   `json:"isUseful"`
	Reason          string `json:"reason"`
	TopicsExtracted string `json:"topicsExtracted"`
	InsightsCount   int    `json:"insightsCount"`
}

// ProcessResult is the outcome for a single conversation within a
// processor run.
type ProcessResult struct {
	ConversationID string   `json:"conversationId"`
	IsUseful       bool     `json:"isUseful"`
	Reason         string   `json:"reason"`
	Topics         []string `json:"topics"`
	InsightsCount  int      `json:"insightsCount"`
}

// RunResult is the payload of POST /api/processor/run.
type RunResult struct {
	Processed int             `json:"processed"`
	Useful    int             `json:"useful"`
	NotUseful int             `json:"notUseful"`
	Results   []ProcessResult `json:"results"`
}

// ProcessorStats aggregates processing progress for the stats endpoint.
type ProcessorStats struct {
	TotalConversations int `json:"totalConversations"`
	Processed          int `json:"processed"`
	Pending            int `json:"pending"`
	Useful             int `json:"useful"`
	NotUseful          int `json:"notUseful"`
	Topics             int `json:"topics"`
	Insights           int `json:"insights"`
	GlobalInsights     int `json:"globalInsights"`
}

// KnowledgeStats summarizes one user's footprint in the graph.
type KnowledgeStats struct {
	UserID             string `json:"userId"`
	InsightCount       int    `json:"insightCount"`
	TopicCount         int    `json:"topicCount"`
	ConversationCount  int    `json:"conversationCount"`
	GlobalInsightCount int    `json:"globalInsightCount"`
}
