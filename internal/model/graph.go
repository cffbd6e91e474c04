package model

// GraphNode is a topic node in a visualization payload. Frequency counts
// the distinct conversations linked to the topic within the map's scope;
// NormalizedFrequency is frequency divided by the maximum frequency of the
// returned node set, used for size tiering.
type GraphNode struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Description         string  `json:"description,omitempty"`
	Frequency           int     `json:"frequency"`
	NormalizedFrequency float64 `json:"normalizedFrequency"`
}

// GraphEdge is a topic relation with both endpoints present in the node set.
type GraphEdge struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Strength float64 `json:"strength"`
	Type     string  `json:"type"`
}

// Graph pairs the node and edge lists of a map payload.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// GraphStats counts the entities behind a map payload.
type GraphStats struct {
	Topics        int `json:"topics"`
	Relations     int `json:"relations"`
	Insights      int `json:"insights"`
	Conversations int `json:"conversations"`
}

// KnowledgeMap is the payload of the global and per-user map endpoints.
type KnowledgeMap struct {
	Stats     GraphStats      `json:"stats"`
	Graph     Graph           `json:"graph"`
	Topics    []Topic         `json:"topics"`
	Relations []TopicRelation `json:"relations"`
	Insights  []Insight       `json:"insights"`

	// Conversations is scope-dependent: the user's active conversations on
	// the personal map, recent shareable summaries on the global map.
	Conversations []ConversationSummary `json:"conversations"`
}

// UserGraphFull is the payload of GET /api/graph/user/{userID}/full: the
// map plus the user's full conversation and insight rows.
type UserGraphFull struct {
	Map           KnowledgeMap   `json:"map"`
	Conversations []Conversation `json:"conversations"`
	Insights      []Insight      `json:"insights"`
}

// LinkTopicsRequest is the body of POST /api/graph/link-topics. Topics are
// referenced by name and created when missing.
type LinkTopicsRequest struct {
	Topic1   string  `json:"topic1"`
	Topic2   string  `json:"topic2"`
	Strength float64 `json:"strength,omitempty"`
}
