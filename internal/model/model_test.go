package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTopicName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Databases", "databases"},
		{"  Query Planning  ", "query-planning"},
		{"B  Tree   Splits", "b-tree-splits"},
		{"already-normal", "already-normal"},
		{"MiXeD CaSe", "mixed-case"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeTopicName(tc.in), "input %q", tc.in)
	}
}

func TestSendRequestConsentTriState(t *testing.T) {
	var req SendRequest
	require.NoError(t, json.Unmarshal([]byte(`{"userId":"u","globalSharingConsent":false}`), &req))
	require.NotNil(t, req.GlobalSharingConsent)
	assert.False(t, *req.GlobalSharingConsent)

	req = SendRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"userId":"u","globalSharingConsent":true}`), &req))
	require.NotNil(t, req.GlobalSharingConsent)
	assert.True(t, *req.GlobalSharingConsent)

	req = SendRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"userId":"u"}`), &req))
	assert.Nil(t, req.GlobalSharingConsent)
}

func TestStreamFrameShapes(t *testing.T) {
	text, err := json.Marshal(StreamFrame{Text: "hel", ConversationID: "c1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hel","conversationId":"c1"}`, string(text))

	done, err := json.Marshal(StreamFrame{Done: true, ConversationID: "c1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"done":true,"conversationId":"c1"}`, string(done))

	fail, err := json.Marshal(StreamFrame{Error: "upstream reset"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"upstream reset"}`, string(fail))
}
