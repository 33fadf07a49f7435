package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/llm"
)

func TestKeywordParser(t *testing.T) {
	assert.Equal(t, IntentQuery, ParseKeyword("查所有案件"))
	assert.Equal(t, IntentCreate, ParseKeyword("新增一个案件"))
	assert.Equal(t, IntentUpdate, ParseKeyword("把委托人改成李四"))
	assert.Equal(t, IntentClose, ParseKeyword("这个案子办结了"))
	assert.Equal(t, IntentDelete, ParseKeyword("删除这条记录"))
	assert.Equal(t, IntentReminder, ParseKeyword("开庭前提醒我"))
	assert.Equal(t, IntentChitchat, ParseKeyword("今天天气不错"))

	// destructive verbs outrank query verbs
	assert.Equal(t, IntentDelete, ParseKeyword("删掉这条记录再查一下"))
}

func TestBuiltinRules(t *testing.T) {
	rules, err := NewRules(builtinRules(), nil)
	require.NoError(t, err)

	out := rules.Apply("帮助", StateView{})
	require.NotNil(t, out)
	assert.NotEmpty(t, out.Reply)

	// pagination continuation only fires with live pagination state
	assert.Nil(t, rules.Apply("下一页", StateView{}))
	out = rules.Apply("下一页", StateView{HasPagination: true})
	require.NotNil(t, out)
	assert.Equal(t, "query", out.Skill)

	out = rules.Apply("确认", StateView{HasPendingAction: true})
	require.NotNil(t, out)
	assert.Equal(t, "confirm", out.Skill)
	assert.Nil(t, rules.Apply("确认", StateView{}))

	out = rules.Apply("你好", StateView{})
	require.NotNil(t, out)
	assert.True(t, out.Chitchat)
}

func TestRulesReplace(t *testing.T) {
	rules, err := NewRules(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, rules.Apply("状态", StateView{}))

	err = rules.Replace([]Rule{{Name: "status", Patterns: []string{`^状态$`}, Reply: "运行中"}})
	require.NoError(t, err)
	out := rules.Apply("状态", StateView{})
	require.NotNil(t, out)
	assert.Equal(t, "运行中", out.Reply)
}

func TestRulesRejectBadPattern(t *testing.T) {
	_, err := NewRules([]Rule{{Name: "bad", Patterns: []string{`([`}}}, nil)
	assert.Error(t, err)
}

func TestPlannerHighConfidence(t *testing.T) {
	client := &llm.MockClient{Responses: []string{
		`{"intent": "query_records", "confidence": 0.92, "table": "案件"}`,
	}}
	p := NewPlanner(client, 0.65, time.Second, nil)

	plan := p.Plan(context.Background(), "查所有案件", nil)
	assert.Equal(t, "query", plan.Skill)
	assert.Equal(t, "planner", plan.Method)
	assert.Equal(t, "案件", plan.Table)
	require.NotNil(t, plan.Usage)
	assert.Equal(t, 150, plan.Usage.TotalTokens)
}

func TestPlannerLowConfidenceFallsBack(t *testing.T) {
	client := &llm.MockClient{Responses: []string{
		`{"intent": "delete_record", "confidence": 0.3}`,
	}}
	p := NewPlanner(client, 0.65, time.Second, nil)

	plan := p.Plan(context.Background(), "查所有案件", nil)
	assert.Equal(t, "query", plan.Skill)
	assert.Equal(t, "keyword", plan.Method)
}

func TestPlannerErrorFallsBack(t *testing.T) {
	client := &llm.MockClient{Err: errors.New("model down")}
	p := NewPlanner(client, 0.65, time.Second, nil)

	plan := p.Plan(context.Background(), "新增一个合同", nil)
	assert.Equal(t, "create", plan.Skill)
	assert.Equal(t, "keyword", plan.Method)
}

func TestPlannerNilClientUsesKeywords(t *testing.T) {
	p := NewPlanner(nil, 0, 0, nil)
	plan := p.Plan(context.Background(), "删除这条记录", nil)
	assert.Equal(t, "delete", plan.Skill)
	assert.Equal(t, "keyword", plan.Method)
}
