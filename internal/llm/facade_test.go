package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatJSONDecodesPlainJSON(t *testing.T) {
	mock := &MockClient{Responses: []string{`{"intent":"query_records","confidence":0.9}`}}

	var out IntentResult
	_, err := ChatJSON(context.Background(), mock, []Message{{Role: "user", Content: "查案子"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "query_records", out.Intent)
	assert.Equal(t, 0.9, out.Confidence)
}

func TestChatJSONStripsCodeFence(t *testing.T) {
	mock := &MockClient{Responses: []string{"```json\n{\"intent\":\"chitchat\",\"confidence\":0.8}\n```"}}

	var out IntentResult
	_, err := ChatJSON(context.Background(), mock, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "chitchat", out.Intent)
}

func TestChatJSONRepairsMalformedOutput(t *testing.T) {
	// trailing comma and single quotes, the usual model sloppiness
	mock := &MockClient{Responses: []string{`{'intent': 'create_record', 'confidence': 0.7,}`}}

	var out IntentResult
	_, err := ChatJSON(context.Background(), mock, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "create_record", out.Intent)
}

func TestClassifyIntent(t *testing.T) {
	mock := &MockClient{Responses: []string{`{"intent":"update_record","confidence":0.95,"table":"案件"}`}}

	result, completion, err := ClassifyIntent(context.Background(), mock, "把张三的案子改成已结案", nil)
	require.NoError(t, err)
	require.NotNil(t, completion)
	assert.Equal(t, "update_record", result.Intent)
	assert.Equal(t, "案件", result.Table)
}

func TestExtractSlots(t *testing.T) {
	mock := &MockClient{Responses: []string{`{"table":"案件","record_ref":"(2025)京01民初1号","fields":{"案件状态":"已结案"}}`}}

	result, _, err := ExtractSlots(context.Background(), mock, "把(2025)京01民初1号改成已结案")
	require.NoError(t, err)
	assert.Equal(t, "(2025)京01民初1号", result.RecordRef)
	assert.Equal(t, "已结案", result.Fields["案件状态"])
}
