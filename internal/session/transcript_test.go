package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptAppendAndReplay(t *testing.T) {
	tr := NewTranscript(10, 3800)
	tr.Append("u1", "user", "查一下张三的案子")
	tr.Append("u1", "assistant", "找到 2 条记录")

	msgs := tr.Messages("u1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
}

func TestTranscriptBoundsTurns(t *testing.T) {
	tr := NewTranscript(4, 3800)
	for i := 0; i < 10; i++ {
		tr.Append("u1", "user", "消息")
	}
	assert.Len(t, tr.Messages("u1"), 4)
}

func TestTranscriptTrimsToTokenBudget(t *testing.T) {
	tr := NewTranscript(20, 256)
	long := strings.Repeat("案件进展汇报内容。", 100)
	for i := 0; i < 6; i++ {
		tr.Append("u1", "user", long)
	}

	msgs := tr.Messages("u1")
	// oldest turns drop but the final exchange survives regardless of budget
	assert.GreaterOrEqual(t, len(msgs), 2)
	assert.Less(t, len(msgs), 6)
}

func TestTranscriptClear(t *testing.T) {
	tr := NewTranscript(10, 1000)
	tr.Append("u1", "user", "hello")
	tr.Clear("u1")
	assert.Empty(t, tr.Messages("u1"))
}

func TestTranscriptIsolatesUsers(t *testing.T) {
	tr := NewTranscript(10, 1000)
	tr.Append("u1", "user", "a")
	tr.Append("u2", "user", "b")
	require.Len(t, tr.Messages("u1"), 1)
	assert.Equal(t, "a", tr.Messages("u1")[0].Content)
}
