// Package session keeps the short-term chat transcript per user and trims it
// to a token budget before it is replayed into model prompts.
package session

import (
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/llm"
)

const (
	minTokenBudget = 256
	maxTokenBudget = 3800
	// the most recent exchange always survives trimming
	keepRecent = 2
)

// Turn is one stored transcript entry.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Transcript is a bounded per-user turn history.
type Transcript struct {
	mu       sync.Mutex
	turns    map[string][]Turn
	maxTurns int
	budget   int
	encoder  *tiktoken.Tiktoken
}

// NewTranscript builds a store keeping at most maxTurns turns per user and
// trimming prompt replays to tokenBudget. The budget clamps to [256, 3800].
func NewTranscript(maxTurns, tokenBudget int) *Transcript {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	if tokenBudget < minTokenBudget {
		tokenBudget = minTokenBudget
	}
	if tokenBudget > maxTokenBudget {
		tokenBudget = maxTokenBudget
	}
	// cl100k_base ships embedded; the error path only fires for unknown names
	encoder, _ := tiktoken.GetEncoding("cl100k_base")
	return &Transcript{
		turns:    make(map[string][]Turn),
		maxTurns: maxTurns,
		budget:   tokenBudget,
		encoder:  encoder,
	}
}

// Append records one turn for userID.
func (t *Transcript) Append(userID, role, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	turns := append(t.turns[userID], Turn{Role: role, Content: content, At: time.Now()})
	if len(turns) > t.maxTurns {
		turns = turns[len(turns)-t.maxTurns:]
	}
	t.turns[userID] = turns
}

// Clear drops the user's transcript.
func (t *Transcript) Clear(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.turns, userID)
}

// Messages returns the user's transcript trimmed to the token budget, oldest
// turns dropped first. The most recent two turns always survive.
func (t *Transcript) Messages(userID string) []llm.Message {
	t.mu.Lock()
	turns := append([]Turn(nil), t.turns[userID]...)
	t.mu.Unlock()

	if len(turns) == 0 {
		return nil
	}

	total := 0
	counts := make([]int, len(turns))
	for i, turn := range turns {
		counts[i] = t.countTokens(turn.Content)
		total += counts[i]
	}

	start := 0
	for total > t.budget && start < len(turns)-keepRecent {
		total -= counts[start]
		start++
	}

	out := make([]llm.Message, 0, len(turns)-start)
	for _, turn := range turns[start:] {
		out = append(out, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	return out
}

func (t *Transcript) countTokens(text string) int {
	if t.encoder == nil {
		// 4 bytes per token is the usual fallback estimate
		return len(text)/4 + 1
	}
	return len(t.encoder.Encode(text, nil, nil))
}
