package model

// SendRequest is the body of POST /api/chat/send and /api/chat/stream.
// Messages carry the full client-side history; only the final user turn is
// authoritative. GlobalSharingConsent is tri-state: nil means the client
// has not answered the PII consent question yet.
type SendRequest struct {
	UserID               string        `json:"userId"`
	ConversationID       string        `json:"conversationId,omitempty"`
	Messages             []ChatMessage `json:"messages"`
	GlobalSharingConsent *bool         `json:"globalSharingConsent,omitempty"`
}

// RelatedContext echoes one piece of personal-insight evidence used to
// ground the answer.
type RelatedContext struct {
	Topic string  `json:"topic"`
	Score float64 `json:"score"`
}

// PIIDetection is the wire form of a PII probe result.
type PIIDetection struct {
	Detected    bool     `json:"detected"`
	Types       []string `json:"types,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
}

// SendResponse is the body returned by POST /api/chat/send.
type SendResponse struct {
	Response             string           `json:"response"`
	ConversationID       string           `json:"conversationId"`
	RelatedContext       []RelatedContext `json:"relatedContext"`
	SuggestedTopics      []string         `json:"suggestedTopics"`
	PIIDetection         *PIIDetection    `json:"piiDetection,omitempty"`
	GlobalSharingBlocked bool             `json:"globalSharingBlocked"`
}

// StreamFrame is one SSE data record on the streaming path. Exactly one of
// the three shapes is populated: {text,conversationId}, {done:true,
// conversationId} or {error}.
type StreamFrame struct {
	Text           string `json:"text,omitempty"`
	Done           bool   `json:"done,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Error          string `json:"error,omitempty"`
}

// PIIConsentRequest is the body of POST /api/chat/pii-consent.
type PIIConsentRequest struct {
	ConversationID string `json:"conversationId"`
	Consent        bool   `json:"consent"`
}

// PIIConsentResponse reports the resulting sharing state.
type PIIConsentResponse struct {
	Success              bool `json:"success"`
	GlobalSharingBlocked bool `json:"globalSharingBlocked"`
}

// ContextBundle is the assembled prompt context, exposed verbatim by the
// debug endpoint GET /api/chat/context/{userID}.
type ContextBundle struct {
	PersonalInsights []Insight             `json:"personalInsights"`
	GlobalSummaries  []ConversationSummary `json:"globalSummaries"`
	GlobalInsights   []GlobalInsight       `json:"globalInsights"`
	RelatedInsights  []Insight             `json:"relatedInsights"`
	SemanticMatches  []SemanticMatch       `json:"semanticMatches"`
}

// SemanticMatch is one vector-index hit used for grounding.
type SemanticMatch struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Topics  []string `json:"topics,omitempty"`
	Score   float64  `json:"score"`
}
