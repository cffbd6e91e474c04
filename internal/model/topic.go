package model

import "strings"

// Topic is a normalized conceptual tag shared across users. Names are
// lowercase and hyphen-joined; creation is idempotent on the name.
type Topic struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}

// TopicRelation is a weighted edge between two topics. Edges are directed
// in storage but undirected in queries.
type TopicRelation struct {
	ID            string  `json:"id"`
	SourceTopicID string  `json:"sourceTopicId"`
	TargetTopicID string  `json:"targetTopicId"`
	Strength      float64 `json:"strength"`
	RelationType  string  `json:"relationType"`
	CreatedAt     int64   `json:"createdAt"`
}

// TopicSuggestion is a neighbor topic ranked by edge strength.
type TopicSuggestion struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Strength float64 `json:"strength"`
}

// UserTopic is a topic the user has engaged with, with how many of their
// conversations touched it.
type UserTopic struct {
	Topic             Topic `json:"topic"`
	ConversationCount int   `json:"conversationCount"`
}

// DefaultRelationType is assigned to edges created without an explicit type.
const DefaultRelationType = "related"

// NormalizeTopicName lowercases a topic name and joins words with hyphens,
// so repeated creation requests resolve to the same row.
func NormalizeTopicName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(name), "-")
}
