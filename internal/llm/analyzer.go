package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
	"github.com/capitalize-ai/knowledge-graph/pkg/logger"
	"github.com/capitalize-ai/knowledge-graph/pkg/metrics"
)

// ResponseLength is the reply size suggested by the classifier.
type ResponseLength string

const (
	LengthShort  ResponseLength = "short"
	LengthMedium ResponseLength = "medium"
	LengthLong   ResponseLength = "long"
)

// MaxTokens maps the length to its completion token ceiling.
func (l ResponseLength) MaxTokens() int {
	switch l {
	case LengthShort:
		return 100
	case LengthLong:
		return 1024
	default:
		return 512
	}
}

func (l ResponseLength) directive() string {
	switch l {
	case LengthShort:
		return "Keep the reply to one or two sentences."
	case LengthLong:
		return "Give a thorough, well-structured reply."
	default:
		return "Keep the reply focused, a few short paragraphs at most."
	}
}

// Classification is the verdict on a single user turn.
type Classification struct {
	IsTrivial      bool           `json:"isTrivial"`
	ResponseLength ResponseLength `json:"suggestedResponseLength"`
}

// ConversationAnalysis is the processor-facing verdict on a finished
// conversation.
type ConversationAnalysis struct {
	IsUseful      bool
	Reason        string
	Summary       string
	Topics        []string
	Insights      []string
	RelatedTopics []string
	IsComplete    bool
}

const (
	maxAnalysisTopics   = 6
	maxAnalysisInsights = 4
)

const personaPrompt = `You are a knowledgeable assistant backed by a shared knowledge graph. Answer directly and concretely, drawing on the provided knowledge when it is relevant. Never invent facts about the user.`

const classifierPrompt = `You classify chat messages. Decide whether the message is trivial small talk (greetings, thanks, acknowledgements, filler) and suggest a reply length.
Respond with JSON only: {"isTrivial": boolean, "suggestedResponseLength": "short" | "medium" | "long"}`

const piiPrompt = `You detect personally identifiable information. Examine the exchange for: full names, email addresses, phone numbers, physical addresses, government identifiers, medical details, financial details, dates of birth, account numbers.
Respond with JSON only: {"containsPII": boolean, "piiTypes": string[], "explanation": string}`

const analysisPrompt = `You analyze finished conversations for a knowledge graph. Judge whether the conversation contains reusable knowledge (greetings, tests and empty chatter do not). Extract at most 6 short lowercase topic names and at most 4 standalone insight statements that make sense without the conversation.
Respond with JSON only: {"isUseful": boolean, "reason": string, "summary": string, "topics": string[], "insights": string[], "relatedTopics": string[], "isComplete": boolean}`

// Analyzer layers the typed knowledge-graph operations over a raw Client.
type Analyzer struct {
	client Client
	model  string
	log    *logger.Logger
}

// NewAnalyzer creates an analyzer that issues all calls against one model.
func NewAnalyzer(client Client, model string, log *logger.Logger) *Analyzer {
	return &Analyzer{client: client, model: model, log: log}
}

// ClassifyQuery asks whether a user turn needs a substantive reply. Failures
// come back as a non-trivial, medium-length classification.
func (a *Analyzer) ClassifyQuery(ctx context.Context, text string) Classification {
	fallback := Classification{IsTrivial: false, ResponseLength: LengthMedium}

	resp, err := a.complete(ctx, "classify", &CompletionRequest{
		Model:       a.model,
		System:      classifierPrompt,
		Messages:    []ChatMessage{{Role: "user", Content: text}},
		MaxTokens:   100,
		Temperature: 0.1,
	})
	if err != nil {
		a.log.Warn("query classification failed", zap.Error(err))
		return fallback
	}

	var c Classification
	if err := decodeReply(resp.Content, &c); err != nil {
		a.log.Warn("query classification unparseable", zap.Error(err))
		return fallback
	}
	switch c.ResponseLength {
	case LengthShort, LengthMedium, LengthLong:
	default:
		c.ResponseLength = LengthMedium
	}
	return c
}

// Chat produces one assistant reply grounded in the optional context block.
func (a *Analyzer) Chat(ctx context.Context, messages []ChatMessage, contextBlock string, length ResponseLength) (string, error) {
	resp, err := a.complete(ctx, "chat", &CompletionRequest{
		Model:       a.model,
		System:      chatSystemPrompt(contextBlock, length),
		Messages:    messages,
		MaxTokens:   length.MaxTokens(),
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return resp.Content, nil
}

// ChatStream is Chat with token-level delivery. It returns the concatenated
// reply once the stream ends.
func (a *Analyzer) ChatStream(ctx context.Context, messages []ChatMessage, contextBlock string, length ResponseLength, callback StreamCallback) (string, error) {
	start := time.Now()
	resp, err := a.client.CompleteStream(ctx, &CompletionRequest{
		Model:       a.model,
		System:      chatSystemPrompt(contextBlock, length),
		Messages:    messages,
		MaxTokens:   length.MaxTokens(),
		Temperature: 0.7,
		Stream:      true,
	}, callback)
	if err != nil {
		metrics.RecordLLMRequest("chat_stream", "error", time.Since(start).Seconds())
		return "", fmt.Errorf("streaming chat completion: %w", err)
	}
	metrics.RecordLLMRequest("chat_stream", "ok", time.Since(start).Seconds())
	metrics.RecordLLMTokens(resp.Model, resp.TokensIn, resp.TokensOut)
	return resp.Content, nil
}

// DetectPII probes one exchange for personal information. Failures report no
// detection so the sharing gate never trips on adapter trouble.
func (a *Analyzer) DetectPII(ctx context.Context, userQuery, assistantResponse string) model.PIIDetection {
	exchange := fmt.Sprintf("User message:\n%s\n\nAssistant response:\n%s", userQuery, assistantResponse)

	resp, err := a.complete(ctx, "detect_pii", &CompletionRequest{
		Model:       a.model,
		System:      piiPrompt,
		Messages:    []ChatMessage{{Role: "user", Content: exchange}},
		MaxTokens:   256,
		Temperature: 0.1,
	})
	if err != nil {
		a.log.Warn("pii detection failed", zap.Error(err))
		return model.PIIDetection{}
	}

	var raw struct {
		ContainsPII bool     `json:"containsPII"`
		PIITypes    []string `json:"piiTypes"`
		Explanation string   `json:"explanation"`
	}
	if err := decodeReply(resp.Content, &raw); err != nil {
		a.log.Warn("pii detection unparseable", zap.Error(err))
		return model.PIIDetection{}
	}
	return model.PIIDetection{
		Detected:    raw.ContainsPII,
		Types:       raw.PIITypes,
		Explanation: raw.Explanation,
	}
}

// AnalyzeConversation classifies a finished conversation and extracts graph
// material. Failures come back as a not-useful verdict, never an error.
func (a *Analyzer) AnalyzeConversation(ctx context.Context, messages []ChatMessage) ConversationAnalysis {
	neutral := ConversationAnalysis{
		Reason:     "Analysis failed",
		Topics:     []string{},
		Insights:   []string{},
		IsComplete: true,
	}

	resp, err := a.complete(ctx, "analyze", &CompletionRequest{
		Model:       a.model,
		System:      analysisPrompt,
		Messages:    []ChatMessage{{Role: "user", Content: renderTranscript(messages)}},
		MaxTokens:   600,
		Temperature: 0.2,
	})
	if err != nil {
		a.log.Warn("conversation analysis failed", zap.Error(err))
		return neutral
	}

	var raw struct {
		IsUseful      bool     `json:"isUseful"`
		Reason        string   `json:"reason"`
		Summary       string   `json:"summary"`
		Topics        []string `json:"topics"`
		Insights      []string `json:"insights"`
		RelatedTopics []string `json:"relatedTopics"`
		IsComplete    *bool    `json:"isComplete"`
	}
	if err := decodeReply(resp.Content, &raw); err != nil {
		a.log.Warn("conversation analysis unparseable", zap.Error(err))
		return neutral
	}

	out := ConversationAnalysis{
		IsUseful:      raw.IsUseful,
		Reason:        raw.Reason,
		Summary:       raw.Summary,
		Topics:        raw.Topics,
		Insights:      raw.Insights,
		RelatedTopics: raw.RelatedTopics,
		IsComplete:    true,
	}
	if raw.IsComplete != nil {
		out.IsComplete = *raw.IsComplete
	}
	if out.Topics == nil {
		out.Topics = []string{}
	}
	if out.Insights == nil {
		out.Insights = []string{}
	}
	if len(out.Topics) > maxAnalysisTopics {
		out.Topics = out.Topics[:maxAnalysisTopics]
	}
	if len(out.Insights) > maxAnalysisInsights {
		out.Insights = out.Insights[:maxAnalysisInsights]
	}
	return out
}

// complete runs one blocking call and records its metrics.
func (a *Analyzer) complete(ctx context.Context, operation string, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	resp, err := a.client.Complete(ctx, req)
	if err != nil {
		metrics.RecordLLMRequest(operation, "error", time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordLLMRequest(operation, "ok", time.Since(start).Seconds())
	metrics.RecordLLMTokens(resp.Model, resp.TokensIn, resp.TokensOut)
	return resp, nil
}

func chatSystemPrompt(contextBlock string, length ResponseLength) string {
	var b strings.Builder
	b.WriteString(personaPrompt)
	b.WriteString("\n\n")
	b.WriteString(length.directive())
	if contextBlock != "" {
		b.WriteString("\n\nRelevant knowledge:\n")
		b.WriteString(contextBlock)
	}
	return b.String()
}

func renderTranscript(messages []ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// decodeReply unmarshals a model reply that may wrap its JSON in a code fence
// or surround it with prose.
func decodeReply(raw string, v any) error {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			s = s[i : j+1]
		}
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decoding model reply: %w", err)
	}
	return nil
}
