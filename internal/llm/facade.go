package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ChatJSON runs a completion and decodes the answer into out. Model output
// wrapped in code fences or mildly malformed is repaired before decoding.
func ChatJSON(ctx context.Context, client Client, messages []Message, out any) (*Completion, error) {
	completion, err := client.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}
	text := stripCodeFence(completion.Content)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(text)
		if repairErr != nil {
			return completion, fmt.Errorf("decode model json: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), out); err != nil {
			return completion, fmt.Errorf("decode repaired model json: %w", err)
		}
	}
	return completion, nil
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// IntentResult is the model's classification of one utterance.
type IntentResult struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Table      string  `json:"table,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

const classifyPrompt = `你是律所智能助理的意图分类器。根据用户消息判断意图，仅输出 JSON。
可选意图: query_records, create_record, update_record, close_record, delete_record, create_reminder, chitchat。
输出格式: {"intent": "...", "confidence": 0.0, "table": "案件|合同|招投标|", "reason": "..."}`

// ClassifyIntent asks the model which skill the utterance belongs to.
func ClassifyIntent(ctx context.Context, client Client, text string, transcript []Message) (*IntentResult, *Completion, error) {
	messages := make([]Message, 0, len(transcript)+2)
	messages = append(messages, Message{Role: "system", Content: classifyPrompt})
	messages = append(messages, transcript...)
	messages = append(messages, Message{Role: "user", Content: text})

	var result IntentResult
	completion, err := ChatJSON(ctx, client, messages, &result)
	if err != nil {
		return nil, completion, fmt.Errorf("classify intent: %w", err)
	}
	return &result, completion, nil
}

// SlotResult carries the structured fields extracted from an utterance.
type SlotResult struct {
	Table     string            `json:"table,omitempty"`
	RecordRef string            `json:"record_ref,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Keyword   string            `json:"keyword,omitempty"`
	TimeText  string            `json:"time_text,omitempty"`
}

const extractPrompt = `你是律所智能助理的槽位抽取器。从用户消息中抽取结构化信息，仅输出 JSON。
输出格式: {"table": "表名", "record_ref": "案号或项目标识", "fields": {"字段": "值"}, "keyword": "检索词", "time_text": "时间表达"}
没有的键省略。`

// ExtractSlots asks the model for the utterance's structured slots.
func ExtractSlots(ctx context.Context, client Client, text string) (*SlotResult, *Completion, error) {
	messages := []Message{
		{Role: "system", Content: extractPrompt},
		{Role: "user", Content: text},
	}
	var result SlotResult
	completion, err := ChatJSON(ctx, client, messages, &result)
	if err != nil {
		return nil, completion, fmt.Errorf("extract slots: %w", err)
	}
	return &result, completion, nil
}
