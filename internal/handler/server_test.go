package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/knowledge-graph/internal/llm"
	"github.com/capitalize-ai/knowledge-graph/internal/model"
	"github.com/capitalize-ai/knowledge-graph/internal/pipeline"
	"github.com/capitalize-ai/knowledge-graph/internal/processor"
	"github.com/capitalize-ai/knowledge-graph/internal/store"
	"github.com/capitalize-ai/knowledge-graph/pkg/logger"
)

// fakeBrain scripts the whole LLM surface: chat completions for the
// pipeline and conversation verdicts for the processor. Verdicts are keyed
// by the first message of the conversation; the optional gate channels let
// a test hold a processor run open.
type fakeBrain struct {
	answer       string
	streamTokens []string
	detection    model.PIIDetection
	verdicts     map[string]llm.ConversationAnalysis
	started      chan struct{}
	release      chan struct{}
}

func newFakeBrain() *fakeBrain {
	return &fakeBrain{answer: "B-trees keep keys sorted so range scans stay cheap."}
}

func (f *fakeBrain) ClassifyQuery(context.Context, string) llm.Classification {
	return llm.Classification{ResponseLength: llm.LengthMedium}
}

func (f *fakeBrain) Chat(context.Context, []llm.ChatMessage, string, llm.ResponseLength) (string, error) {
	return f.answer, nil
}

func (f *fakeBrain) ChatStream(_ context.Context, _ []llm.ChatMessage, _ string, _ llm.ResponseLength, callback llm.StreamCallback) (string, error) {
	tokens := f.streamTokens
	if tokens == nil {
		tokens = []string{f.answer}
	}
	var full string
	for i, token := range tokens {
		if err := callback(token, i); err != nil {
			return "", err
		}
		full += token
	}
	return full, nil
}

func (f *fakeBrain) DetectPII(context.Context, string, string) model.PIIDetection {
	return f.detection
}

func (f *fakeBrain) AnalyzeConversation(_ context.Context, messages []llm.ChatMessage) llm.ConversationAnalysis {
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	if v, ok := f.verdicts[messages[0].Content]; ok {
		return v
	}
	return llm.ConversationAnalysis{IsUseful: false, Reason: "Nothing reusable"}
}

type vectorDoc struct {
	content string
	userID  string
	topics  []string
}

type fakeIndex struct {
	docs      map[string]vectorDoc
	matches   []model.SemanticMatch
	searchErr error
}

func newFakeIndex() *fakeIndex { return &fakeIndex{docs: map[string]vectorDoc{}} }

func (f *fakeIndex) Store(_ context.Context, id, content, userID string, topics []string) error {
	f.docs[id] = vectorDoc{content: content, userID: userID, topics: topics}
	return nil
}

func (f *fakeIndex) Search(context.Context, string, string, int) ([]model.SemanticMatch, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.matches, nil
}

func (f *fakeIndex) Delete(_ context.Context, id string) error {
	delete(f.docs, id)
	return nil
}

type testEnv struct {
	router http.Handler
	store  *store.Store
	brain  *fakeBrain
	index  *fakeIndex
}

func newTestEnv(t *testing.T) *testEnv {
	return newRateLimitedEnv(t, 0, 0)
}

func newRateLimitedEnv(t *testing.T, requests int, window time.Duration) *testEnv {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	log := logger.NewNop()
	brain := newFakeBrain()
	index := newFakeIndex()
	p := pipeline.New(s, brain, index, nil, pipeline.Config{}, log)
	proc := processor.New(s, brain, index, nil, processor.Config{IdleThreshold: -time.Hour}, log)

	router := NewRouter(RouterConfig{
		Chat:              NewChatHandler(p, s, log),
		Graph:             NewGraphHandler(s, log),
		Knowledge:         NewKnowledgeHandler(p, s, log),
		Processor:         NewProcessorHandler(proc, s, log),
		Health:            NewHealthHandler(s, nil, "openai", "disabled"),
		Log:               log,
		AllowedOrigins:    []string{"*"},
		RateLimitRequests: requests,
		RateLimitWindow:   window,
	})
	return &testEnv{router: router, store: s, brain: brain, index: index}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}

// sendMessage drives one blocking chat turn and returns the conversation id.
func (e *testEnv) sendMessage(t *testing.T, userID, content string) string {
	t.Helper()
	rec := e.request(t, http.MethodPost, "/api/chat/send", model.SendRequest{
		UserID:   userID,
		Messages: []model.ChatMessage{{Role: model.RoleUser, Content: content}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp model.SendResponse
	decodeJSON(t, rec, &resp)
	return resp.ConversationID
}

func TestPing(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/ping", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestHealthReportsChecks(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, rec, &body)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.Equal(t, "disabled", body.Checks["events"])
	assert.Equal(t, "openai", body.Checks["llm"])
	assert.Equal(t, "disabled", body.Checks["vector"])
}

func TestHealthReportsDatabaseDown(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Close())

	rec := env.request(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, rec, &body)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "down", body.Checks["database"])
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/ping", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
}

func TestCorrelationIDEchoedAndGenerated(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/ping", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("X-Correlation-ID", "corr-42")
	echo := httptest.NewRecorder()
	env.router.ServeHTTP(echo, req)
	assert.Equal(t, "corr-42", echo.Header().Get("X-Correlation-ID"))
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRateLimitAppliesToAPIButNotHealth(t *testing.T) {
	env := newRateLimitedEnv(t, 2, time.Minute)

	for i := 0; i < 2; i++ {
		rec := env.request(t, http.MethodGet, "/api/graph/global", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.request(t, http.MethodGet, "/api/graph/global", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var body map[string]interface{}
	decodeJSON(t, rec, &body)
	assert.Equal(t, "rate limit exceeded", body["error"])

	// Health endpoints sit outside the limited group.
	rec = env.request(t, http.MethodGet, "/api/ping", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
