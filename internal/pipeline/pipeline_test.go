package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/knowledge-graph/internal/llm"
	"github.com/capitalize-ai/knowledge-graph/internal/model"
	"github.com/capitalize-ai/knowledge-graph/internal/store"
	"github.com/capitalize-ai/knowledge-graph/pkg/logger"
)

// fakeLLM scripts the model surface. lastContext captures the context block
// of the most recent completion; piiProbes counts DetectPII calls.
type fakeLLM struct {
	classification llm.Classification
	answer         string
	chatErr        error
	streamTokens   []string
	streamErr      error
	streamErrAt    int // tokens emitted before streamErr fires
	blockStream    bool
	detection      model.PIIDetection

	piiProbes   int
	lastContext string
}

func newFakeLLM(answer string) *fakeLLM {
	return &fakeLLM{
		answer:         answer,
		classification: llm.Classification{ResponseLength: llm.LengthMedium},
	}
}

func (f *fakeLLM) ClassifyQuery(context.Context, string) llm.Classification {
	return f.classification
}

func (f *fakeLLM) Chat(_ context.Context, _ []llm.ChatMessage, contextBlock string, _ llm.ResponseLength) (string, error) {
	f.lastContext = contextBlock
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.answer, nil
}

func (f *fakeLLM) ChatStream(ctx context.Context, _ []llm.ChatMessage, contextBlock string, _ llm.ResponseLength, callback llm.StreamCallback) (string, error) {
	f.lastContext = contextBlock
	var b strings.Builder
	for i, token := range f.streamTokens {
		if f.streamErr != nil && i == f.streamErrAt {
			return "", f.streamErr
		}
		if err := callback(token, i); err != nil {
			return "", err
		}
		b.WriteString(token)
	}
	if f.blockStream {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return b.String(), nil
}

func (f *fakeLLM) DetectPII(context.Context, string, string) model.PIIDetection {
	f.piiProbes++
	return f.detection
}

type vectorDoc struct {
	content string
	userID  string
	topics  []string
}

// fakeIndex records writes and serves scripted search results.
type fakeIndex struct {
	docs      map[string]vectorDoc
	matches   []model.SemanticMatch
	storeErr  error
	searchErr error

	lastQuery string
	lastUser  string
	lastTopK  int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: map[string]vectorDoc{}}
}

func (f *fakeIndex) Store(_ context.Context, id, content, userID string, topics []string) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.docs[id] = vectorDoc{content: content, userID: userID, topics: topics}
	return nil
}

func (f *fakeIndex) Search(_ context.Context, query, userID string, topK int) ([]model.SemanticMatch, error) {
	f.lastQuery = query
	f.lastUser = userID
	f.lastTopK = topK
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.matches, nil
}

func (f *fakeIndex) Delete(_ context.Context, id string) error {
	delete(f.docs, id)
	return nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *store.Store, *fakeLLM, *fakeIndex) {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	fl := newFakeLLM("B-trees keep keys sorted so range scans stay cheap.")
	fi := newFakeIndex()
	return New(s, fl, fi, nil, Config{}, logger.NewNop()), s, fl, fi
}

func userTurn(userID, content string) *model.SendRequest {
	return &model.SendRequest{
		UserID:   userID,
		Messages: []model.ChatMessage{{Role: model.RoleUser, Content: content}},
	}
}

func TestSendCreatesConversationAndPersistsBothTurns(t *testing.T) {
	p, s, fl, _ := newTestPipeline(t)
	ctx := context.Background()

	resp, err := p.Send(ctx, userTurn("user-1", "Why do databases use B-trees?"))
	require.NoError(t, err)
	require.NotEmpty(t, resp.ConversationID)
	assert.Equal(t, fl.answer, resp.Response)
	assert.NotNil(t, resp.RelatedContext)
	assert.NotNil(t, resp.SuggestedTopics)

	msgs, err := s.GetMessages(ctx, resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "Why do databases use B-trees?", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, fl.answer, msgs[1].Content)

	conv, err := s.GetConversation(ctx, resp.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", conv.UserID)
	assert.Equal(t, 2, conv.MessageCount)
	assert.False(t, conv.Processed)
}

func TestSendReusesConversation(t *testing.T) {
	p, s, _, _ := newTestPipeline(t)
	ctx := context.Background()

	first, err := p.Send(ctx, userTurn("user-1", "Why do databases use B-trees?"))
	require.NoError(t, err)

	req := userTurn("user-1", "And what about LSM trees?")
	req.ConversationID = first.ConversationID
	second, err := p.Send(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	msgs, err := s.GetMessages(ctx, first.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
}

func TestSendValidation(t *testing.T) {
	p, _, _, _ := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.Send(ctx, &model.SendRequest{
		Messages: []model.ChatMessage{{Role: model.RoleUser, Content: "hi"}},
	})
	require.Error(t, err, "missing user id")

	_, err = p.Send(ctx, &model.SendRequest{UserID: "user-1"})
	require.Error(t, err, "no messages")

	_, err = p.Send(ctx, &model.SendRequest{
		UserID:   "user-1",
		Messages: []model.ChatMessage{{Role: model.RoleAssistant, Content: "hello there"}},
	})
	require.Error(t, err, "final message must be a user turn")
}

func TestSendRejectsForeignAndDeletedConversations(t *testing.T) {
	p, s, _, _ := newTestPipeline(t)
	ctx := context.Background()

	_, err := s.EnsureUser(ctx, "owner")
	require.NoError(t, err)
	conv, err := s.CreateConversation(ctx, "owner")
	require.NoError(t, err)

	req := userTurn("intruder", "Continue please")
	req.ConversationID = conv.ID
	_, err = p.Send(ctx, req)
	require.ErrorIs(t, err, store.ErrNotOwner)

	req = userTurn("owner", "Continue please")
	req.ConversationID = "conv-missing"
	_, err = p.Send(ctx, req)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.DeleteConversationFromUserGraph(ctx, conv.ID, "owner"))
	req = userTurn("owner", "Continue please")
	req.ConversationID = conv.ID
	_, err = p.Send(ctx, req)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSendUserMessageSurvivesCompletionFailure(t *testing.T) {
	p, s, fl, _ := newTestPipeline(t)
	ctx := context.Background()

	fl.chatErr = errors.New("model unavailable")
	_, err := p.Send(ctx, userTurn("user-1", "Why do databases use B-trees?"))
	require.Error(t, err)

	convs, err := s.ListUserConversations(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	msgs, err := s.GetMessages(ctx, convs[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
}

func TestSendEchoesPersonalEvidence(t *testing.T) {
	p, s, _, _ := newTestPipeline(t)
	ctx := context.Background()

	conv := seedOwnedConversation(t, s, "user-1")
	topic, err := s.GetOrCreateTopic(ctx, "databases", "")
	require.NoError(t, err)
	_, err = s.CreateInsight(ctx, conv.ID, "user-1", "Prefers Postgres over MySQL", model.ImportanceScoreExtracted, []string{topic.ID})
	require.NoError(t, err)

	resp, err := p.Send(ctx, userTurn("user-1", "Which database should I pick?"))
	require.NoError(t, err)
	require.Len(t, resp.RelatedContext, 1)
	assert.Equal(t, "databases", resp.RelatedContext[0].Topic)
	assert.InDelta(t, model.ImportanceScoreExtracted, resp.RelatedContext[0].Score, 1e-9)
}

func TestSendSuggestsNeighborTopics(t *testing.T) {
	p, s, _, _ := newTestPipeline(t)
	ctx := context.Background()

	conv := seedOwnedConversation(t, s, "user-1")
	databases, err := s.GetOrCreateTopic(ctx, "databases", "")
	require.NoError(t, err)
	indexing, err := s.GetOrCreateTopic(ctx, "indexing", "")
	require.NoError(t, err)
	require.NoError(t, s.LinkConversationToTopic(ctx, conv.ID, databases.ID))
	_, err = s.LinkTopics(ctx, databases.ID, indexing.ID, 0.8)
	require.NoError(t, err)

	resp, err := p.Send(ctx, userTurn("user-1", "Tell me more"))
	require.NoError(t, err)
	assert.Contains(t, resp.SuggestedTopics, "indexing")
	assert.NotContains(t, resp.SuggestedTopics, "databases", "already engaged")
}

func TestSendTrivialTurnSkipsPIIProbe(t *testing.T) {
	p, _, fl, _ := newTestPipeline(t)

	fl.classification = llm.Classification{IsTrivial: true, ResponseLength: llm.LengthShort}
	fl.detection = model.PIIDetection{Detected: true, Types: []string{"email"}}

	resp, err := p.Send(context.Background(), userTurn("user-1", "thanks!"))
	require.NoError(t, err)
	assert.Zero(t, fl.piiProbes)
	assert.Nil(t, resp.PIIDetection)
	assert.False(t, resp.GlobalSharingBlocked)
}

func TestSendPIIDeclineBlocksSharing(t *testing.T) {
	p, s, fl, _ := newTestPipeline(t)
	ctx := context.Background()

	fl.detection = model.PIIDetection{Detected: true, Types: []string{"email"}, Explanation: "address in query"}
	consent := false
	req := userTurn("user-1", "My email is sam@example.com, remember it")
	req.GlobalSharingConsent = &consent

	resp, err := p.Send(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, resp.PIIDetection)
	assert.Equal(t, []string{"email"}, resp.PIIDetection.Types)
	assert.True(t, resp.GlobalSharingBlocked)

	blocked, err := s.IsGlobalSharingBlocked(ctx, resp.ConversationID)
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestSendPIIUnansweredReturnsDetectionWithoutBlocking(t *testing.T) {
	p, s, fl, _ := newTestPipeline(t)
	ctx := context.Background()

	fl.detection = model.PIIDetection{Detected: true, Types: []string{"phone"}}
	resp, err := p.Send(ctx, userTurn("user-1", "Call me at 555-0100"))
	require.NoError(t, err)
	require.NotNil(t, resp.PIIDetection)
	assert.False(t, resp.GlobalSharingBlocked)

	blocked, err := s.IsGlobalSharingBlocked(ctx, resp.ConversationID)
	require.NoError(t, err)
	assert.False(t, blocked, "unanswered question must not block")
}

func TestSendPIIConsentGrantedKeepsSharing(t *testing.T) {
	p, s, fl, _ := newTestPipeline(t)
	ctx := context.Background()

	fl.detection = model.PIIDetection{Detected: true, Types: []string{"name"}}
	consent := true
	req := userTurn("user-1", "I'm Sam Harker, hi")
	req.GlobalSharingConsent = &consent

	resp, err := p.Send(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, resp.PIIDetection)
	assert.False(t, resp.GlobalSharingBlocked)

	blocked, err := s.IsGlobalSharingBlocked(ctx, resp.ConversationID)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestSendBlockedConversationSkipsProbe(t *testing.T) {
	p, s, fl, _ := newTestPipeline(t)
	ctx := context.Background()

	conv := seedOwnedConversation(t, s, "user-1")
	require.NoError(t, s.SetGlobalSharingBlocked(ctx, conv.ID, true))

	fl.detection = model.PIIDetection{Detected: true}
	req := userTurn("user-1", "More details please")
	req.ConversationID = conv.ID

	resp, err := p.Send(ctx, req)
	require.NoError(t, err)
	assert.Zero(t, fl.piiProbes)
	assert.Nil(t, resp.PIIDetection)
	assert.True(t, resp.GlobalSharingBlocked)
}

func TestApplyPIIConsent(t *testing.T) {
	p, s, _, _ := newTestPipeline(t)
	ctx := context.Background()

	conv := seedOwnedConversation(t, s, "user-1")

	blocked, err := p.ApplyPIIConsent(ctx, conv.ID, false)
	require.NoError(t, err)
	assert.True(t, blocked)

	// Consent after a decline reports the standing block, it does not lift it.
	blocked, err = p.ApplyPIIConsent(ctx, conv.ID, true)
	require.NoError(t, err)
	assert.True(t, blocked)

	fresh := seedOwnedConversation(t, s, "user-1")
	blocked, err = p.ApplyPIIConsent(ctx, fresh.ID, true)
	require.NoError(t, err)
	assert.False(t, blocked)

	_, err = p.ApplyPIIConsent(ctx, "conv-missing", false)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteConversationReattributesVectors(t *testing.T) {
	p, s, _, fi := newTestPipeline(t)
	ctx := context.Background()

	conv := seedOwnedConversation(t, s, "user-1")
	added, err := p.IngestKnowledge(ctx, &model.KnowledgeAddRequest{
		UserID:         "user-1",
		ConversationID: conv.ID,
		Content:        "Vacuum thresholds matter for bloat",
		Topics:         []string{"postgres"},
	})
	require.NoError(t, err)
	require.Equal(t, "user-1", fi.docs[added.InsightID].userID)

	require.NoError(t, p.DeleteConversation(ctx, conv.ID, "user-1"))

	doc, ok := fi.docs[added.InsightID]
	require.True(t, ok, "vector entry stays for global search")
	assert.Equal(t, model.AnonymousUserID, doc.userID)

	ins, err := s.GetInsight(ctx, added.InsightID)
	require.NoError(t, err)
	assert.Equal(t, model.AnonymousUserID, ins.UserID)

	require.ErrorIs(t, p.DeleteConversation(ctx, conv.ID, "user-1"), store.ErrNotFound)
}

func TestDeleteConversationChecksOwnership(t *testing.T) {
	p, s, _, _ := newTestPipeline(t)
	ctx := context.Background()

	conv := seedOwnedConversation(t, s, "user-1")
	require.ErrorIs(t, p.DeleteConversation(ctx, conv.ID, "user-2"), store.ErrNotOwner)
	require.ErrorIs(t, p.DeleteConversation(ctx, "conv-missing", "user-1"), store.ErrNotFound)
}

// seedOwnedConversation creates a user and one conversation with a first
// exchange already persisted.
func seedOwnedConversation(t *testing.T, s *store.Store, userID string) *model.Conversation {
	t.Helper()
	ctx := context.Background()

	_, err := s.EnsureUser(ctx, userID)
	require.NoError(t, err)
	conv, err := s.CreateConversation(ctx, userID)
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, conv.ID, model.RoleUser, "How do B-trees split?")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, conv.ID, model.RoleAssistant, "A full node splits around its median key.")
	require.NoError(t, err)
	return conv
}
