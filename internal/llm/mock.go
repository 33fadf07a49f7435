package llm

import (
	"context"
	"time"
)

// MockClient implements Client for tests. Responses are served in order; the
// last one repeats when the queue drains.
type MockClient struct {
	Responses []string
	Calls     []Message
	index     int
	Err       error
}

// Complete returns the next queued response.
func (m *MockClient) Complete(_ context.Context, messages []Message) (*Completion, error) {
	if len(messages) > 0 {
		m.Calls = append(m.Calls, messages[len(messages)-1])
	}
	if m.Err != nil {
		return nil, m.Err
	}
	content := "{}"
	if len(m.Responses) > 0 {
		if m.index < len(m.Responses) {
			content = m.Responses[m.index]
			m.index++
		} else {
			content = m.Responses[len(m.Responses)-1]
		}
	}
	return &Completion{
		Content: content,
		Model:   "mock",
		Usage:   Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
		Latency: time.Millisecond,
	}, nil
}
