package intent

import (
	"context"
	"time"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/llm"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
)

// Plan is the routing decision for one utterance.
type Plan struct {
	Intent     string
	Skill      string
	Confidence float64
	Table      string
	// Method records how the decision was made: "planner" or "keyword".
	Method string
	Usage  *llm.Usage
}

// Planner decides the skill via the model, falling back to the keyword
// parser below the confidence threshold or on any model failure.
type Planner struct {
	client    llm.Client
	threshold float64
	timeout   time.Duration
	logger    logging.Logger
}

// NewPlanner builds a planner. A nil client routes everything through the
// keyword parser.
func NewPlanner(client llm.Client, threshold float64, timeout time.Duration, logger logging.Logger) *Planner {
	if threshold <= 0 {
		threshold = 0.65
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Planner{
		client:    client,
		threshold: threshold,
		timeout:   timeout,
		logger:    logging.OrNop(logger),
	}
}

// Plan classifies the utterance. transcript carries recent turns for
// context; it may be nil.
func (p *Planner) Plan(ctx context.Context, query string, transcript []llm.Message) *Plan {
	if p.client != nil {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		result, completion, err := llm.ClassifyIntent(ctx, p.client, query, transcript)
		if err != nil {
			p.logger.Warn("planner classification failed, falling back to keywords: %v", err)
		} else if skill := SkillFor(result.Intent); skill != "" && result.Confidence >= p.threshold {
			plan := &Plan{
				Intent:     result.Intent,
				Skill:      skill,
				Confidence: result.Confidence,
				Table:      result.Table,
				Method:     "planner",
			}
			if completion != nil {
				plan.Usage = &completion.Usage
			}
			return plan
		}
	}

	intent := ParseKeyword(query)
	return &Plan{
		Intent:     intent,
		Skill:      SkillFor(intent),
		Confidence: 0,
		Method:     "keyword",
	}
}
