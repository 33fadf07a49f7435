package skills

import (
	"context"
	"strings"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/llm"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
)

const chitchatPrompt = `你是律所团队的智能助理，名叫小助。闲聊时保持简短友好，
不编造案件信息；与工作相关的问题引导用户使用查询或新增指令。`

// ChitchatSkill answers small talk. Model failures degrade to a canned reply
// so the conversation never errors out on pleasantries.
type ChitchatSkill struct {
	model      llm.Client
	transcript []llm.Message
	logger     logging.Logger
}

// NewChitchatSkill builds the chit-chat skill. model may be nil.
func NewChitchatSkill(model llm.Client, logger logging.Logger) *ChitchatSkill {
	return &ChitchatSkill{model: model, logger: logging.OrNop(logger)}
}

func (s *ChitchatSkill) Name() string { return "chitchat" }

func (s *ChitchatSkill) Execute(ctx context.Context, sc *Context) (*Result, error) {
	if s.model == nil {
		return s.canned(sc), nil
	}
	messages := []llm.Message{{Role: "system", Content: chitchatPrompt}}
	if transcript, ok := sc.Extra["transcript"].([]llm.Message); ok {
		messages = append(messages, transcript...)
	}
	messages = append(messages, llm.Message{Role: "user", Content: sc.Query})

	completion, err := s.model.Complete(ctx, messages)
	if err != nil {
		s.logger.Warn("chitchat model call failed: %v", err)
		return s.canned(sc), nil
	}
	result := TextResult(s.Name(), strings.TrimSpace(completion.Content))
	result.Data["skip_personalization"] = true
	return result, nil
}

func (s *ChitchatSkill) canned(sc *Context) *Result {
	reply := "你好，我是团队的案件助理。可以让我查询案件、新增记录或设置提醒。"
	if containsAny(sc.Query, "谢谢", "感谢") {
		reply = "不客气，随时找我。"
	}
	result := TextResult(s.Name(), reply)
	result.Data["skip_personalization"] = true
	return result
}
