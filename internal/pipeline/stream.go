package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
	"github.com/capitalize-ai/knowledge-graph/pkg/metrics"
)

// streamBuffer bounds the in-flight frames between the LLM producer and the
// SSE writer, so a slow client applies backpressure instead of growing a
// queue.
const streamBuffer = 16

// SendStream handles one streaming chat turn. The returned channel carries
// zero or more text frames followed by exactly one done or error frame,
// then closes. Canceling the context stops the LLM stream; the partial
// assistant reply is discarded while the user message stays persisted.
func (p *Pipeline) SendStream(ctx context.Context, req *model.SendRequest) (<-chan model.StreamFrame, error) {
	t, err := p.beginTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	frames := make(chan model.StreamFrame, streamBuffer)

	go func() {
		defer close(frames)

		emit := func(f model.StreamFrame) bool {
			select {
			case frames <- f:
				return true
			case <-ctx.Done():
				return false
			}
		}

		answer, err := p.llm.ChatStream(ctx, t.history, t.block, t.class.ResponseLength,
			func(token string, _ int) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				if !emit(model.StreamFrame{Text: token, ConversationID: t.conv.ID}) {
					return ctx.Err()
				}
				return nil
			})
		if err != nil {
			metrics.RecordChatTurn("stream", "error")
			if ctx.Err() != nil {
				// Client went away; nothing to report and nothing to keep.
				return
			}
			p.log.Error("stream completion failed", zap.Error(err))
			emit(model.StreamFrame{Error: err.Error()})
			return
		}

		if _, err := p.store.AddMessage(ctx, t.conv.ID, model.RoleAssistant, answer); err != nil {
			metrics.RecordChatTurn("stream", "error")
			p.log.Error("persisting assistant message", zap.Error(err))
			emit(model.StreamFrame{Error: "failed to persist response"})
			return
		}

		// The gate runs here too, but the frame vocabulary has no slot for
		// a consent question: only an explicit decline sent with the
		// request can set the block. An unanswered detection is logged and
		// left for the blocking endpoint to surface.
		detection, _, err := p.piiGate(ctx, t, req.GlobalSharingConsent, answer)
		if err != nil {
			p.log.Warn("pii gate failed", zap.Error(err))
		} else if detection != nil {
			p.log.Info("pii detected on streaming turn",
				zap.String("conversation_id", t.conv.ID),
				zap.Strings("types", detection.Types))
		}

		emit(model.StreamFrame{Done: true, ConversationID: t.conv.ID})
		metrics.RecordChatTurn("stream", "ok")
	}()

	return frames, nil
}
