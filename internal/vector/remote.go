package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
	"github.com/capitalize-ai/knowledge-graph/pkg/metrics"
)

// RemoteIndex talks to an Upstash-style vector REST endpoint that embeds
// document text server-side.
type RemoteIndex struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewRemoteIndex creates a client for the index at baseURL authenticated with
// a bearer token.
func NewRemoteIndex(baseURL, token string) *RemoteIndex {
	return &RemoteIndex{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Store upserts one document; the index embeds the raw text itself.
func (r *RemoteIndex) Store(ctx context.Context, id, content, userID string, topics []string) error {
	payload := struct {
		ID       string            `json:"id"`
		Data     string            `json:"data"`
		Metadata map[string]string `json:"metadata"`
	}{
		ID:   id,
		Data: content,
		Metadata: map[string]string{
			"userId":    userID,
			"topics":    strings.Join(topics, ","),
			"createdAt": strconv.FormatInt(time.Now().Unix(), 10),
		},
	}
	if err := r.post(ctx, "/upsert-data", payload, nil); err != nil {
		metrics.RecordVectorOperation("store", "error")
		return fmt.Errorf("vector upsert: %w", err)
	}
	metrics.RecordVectorOperation("store", "ok")
	return nil
}

// Search embeds the query remotely and returns the nearest documents.
func (r *RemoteIndex) Search(ctx context.Context, query, userID string, topK int) ([]model.SemanticMatch, error) {
	payload := struct {
		Data            string `json:"data"`
		TopK            int    `json:"topK"`
		IncludeMetadata bool   `json:"includeMetadata"`
		IncludeData     bool   `json:"includeData"`
		Filter          string `json:"filter,omitempty"`
	}{
		Data:            query,
		TopK:            topK,
		IncludeMetadata: true,
		IncludeData:     true,
	}
	if userID != "" {
		payload.Filter = fmt.Sprintf("userId = '%s'", userID)
	}

	var out struct {
		Result []struct {
			ID       string            `json:"id"`
			Score    float64           `json:"score"`
			Data     string            `json:"data"`
			Metadata map[string]string `json:"metadata"`
		} `json:"result"`
	}
	if err := r.post(ctx, "/query-data", payload, &out); err != nil {
		metrics.RecordVectorOperation("search", "error")
		return nil, fmt.Errorf("vector query: %w", err)
	}
	metrics.RecordVectorOperation("search", "ok")

	matches := make([]model.SemanticMatch, 0, len(out.Result))
	for _, hit := range out.Result {
		m := model.SemanticMatch{ID: hit.ID, Content: hit.Data, Score: hit.Score}
		if ts := hit.Metadata["topics"]; ts != "" {
			m.Topics = strings.Split(ts, ",")
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Delete removes a document from the index.
func (r *RemoteIndex) Delete(ctx context.Context, id string) error {
	payload := struct {
		IDs []string `json:"ids"`
	}{IDs: []string{id}}

	if err := r.post(ctx, "/delete", payload, nil); err != nil {
		metrics.RecordVectorOperation("delete", "error")
		return fmt.Errorf("vector delete: %w", err)
	}
	metrics.RecordVectorOperation("delete", "ok")
	return nil
}

func (r *RemoteIndex) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
