package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/skills"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/state"
)

func TestRenderFailureSelectsErrorNotice(t *testing.T) {
	r := NewRenderer(nil, nil)
	resp := r.Render(skills.FailResult("query", "timeout", "请求超时，请稍后重试"))

	assert.Equal(t, "请求超时，请稍后重试", resp.TextFallback)
	require.NotEmpty(t, resp.Blocks)
	assert.Equal(t, BlockParagraph, resp.Blocks[0].Type)
	require.NotNil(t, resp.Card)
	assert.Equal(t, "error.notice", resp.Card.TemplateID)
	assert.Equal(t, "general", resp.Card.Params["error_class"])
}

func TestErrorClassification(t *testing.T) {
	assert.Equal(t, "missing_params", errorClass("missing_params", ""))
	assert.Equal(t, "missing_params", errorClass("", "缺少案号，请补充"))
	assert.Equal(t, "record_not_found", errorClass("", "未找到目标记录，请先查询确认"))
	assert.Equal(t, "permission_denied", errorClass("", "权限不足，请联系管理员"))
	assert.Equal(t, "general", errorClass("timeout", "请求超时，请稍后重试"))
}

func TestRenderDeleteConfirm(t *testing.T) {
	r := NewRenderer(nil, nil)
	res := &skills.Result{
		Success:   true,
		SkillName: "delete",
		ReplyText: "将删除「(2025)京01民初1号」。该操作不可撤销，请再次确认。",
		Data: map[string]any{
			"pending_delete": true,
			"pending_action": map[string]any{
				"action": "delete_record",
				"payload": map[string]any{
					"summary":     "(2025)京01民初1号",
					"warning":     "该操作不可撤销，请再次确认。",
					"alternative": "建议优先使用办结而非删除",
				},
			},
		},
	}
	resp := r.Render(res)
	require.NotNil(t, resp.Card)
	assert.Equal(t, "delete.confirm", resp.Card.TemplateID)
	assert.Equal(t, "(2025)京01民初1号", resp.Card.Params["summary"])

	body, ok := resp.Meta["card_body"].(string)
	require.True(t, ok)
	assert.Contains(t, body, "删除确认")
	assert.Contains(t, body, "该操作不可撤销")
}

func TestRenderPendingActionConfirm(t *testing.T) {
	r := NewRenderer(nil, nil)
	res := &skills.Result{
		Success:   true,
		SkillName: "create",
		ReplyText: "将在「案件项目总库」新增一条记录，请确认",
		Data: map[string]any{
			"pending_action": map[string]any{
				"action":  "create_record",
				"payload": map[string]any{"table_name": "案件项目总库"},
			},
		},
	}
	resp := r.Render(res)
	require.NotNil(t, resp.Card)
	assert.Equal(t, "action.confirm", resp.Card.TemplateID)
}

func TestRenderUpdateGuide(t *testing.T) {
	r := NewRenderer(nil, nil)
	res := &skills.Result{
		Success:   true,
		SkillName: "update",
		ReplyText: "请告诉我要修改哪些字段",
		Data: map[string]any{
			"update_guide":   true,
			"pending_action": map[string]any{"action": "update_collect_fields", "payload": map[string]any{}},
		},
	}
	resp := r.Render(res)
	require.NotNil(t, resp.Card)
	assert.Equal(t, "update.guide", resp.Card.TemplateID)
}

func TestRenderQueryListAndDetail(t *testing.T) {
	r := NewRenderer(nil, nil)

	list := r.Render(&skills.Result{
		Success:   true,
		SkillName: "query",
		ReplyText: "案件项目总库查询结果（共 2 条）",
		Data: map[string]any{
			"table_name": "案件项目总库",
			"records":    []map[string]any{{"record_id": "r1"}, {"record_id": "r2"}},
			"pagination": map[string]any{"total": 2, "has_more": true},
		},
	})
	require.NotNil(t, list.Card)
	assert.Equal(t, "query.list", list.Card.TemplateID)
	assert.Equal(t, "v2", list.Card.Version)
	assert.Equal(t, "2", list.Card.Params["total"])
	assert.Equal(t, "true", list.Card.Params["has_more"])

	detail := r.Render(&skills.Result{
		Success:   true,
		SkillName: "query",
		ReplyText: "案件项目总库查询结果（共 1 条）",
		Data: map[string]any{
			"records":    []map[string]any{{"record_id": "r1"}},
			"pagination": map[string]any{"total": 1},
		},
	})
	require.NotNil(t, detail.Card)
	assert.Equal(t, "query.detail", detail.Card.TemplateID)
}

func TestRenderMutationSuccessEmitsKVList(t *testing.T) {
	r := NewRenderer(nil, nil)
	res := &skills.Result{
		Success:   true,
		SkillName: "create",
		ReplyText: "新增成功",
		Data: map[string]any{
			"record_id":  "rec_new",
			"table_name": "案件项目总库",
			"records":    []map[string]any{{"record_id": "rec_new"}},
		},
	}
	resp := r.Render(res)
	require.Len(t, resp.Blocks, 2)
	assert.Equal(t, BlockKVList, resp.Blocks[1].Type)
	keys := make([]string, 0, len(resp.Blocks[1].Items))
	for _, item := range resp.Blocks[1].Items {
		keys = append(keys, item.Key)
	}
	assert.Equal(t, []string{"record_id", "table_name"}, keys)
}

func TestRenderChitchatHasNoCard(t *testing.T) {
	r := NewRenderer(nil, nil)
	resp := r.Render(&skills.Result{
		Success:   true,
		SkillName: "chitchat",
		ReplyText: "你好呀",
		Data:      map[string]any{"skip_personalization": true},
	})
	assert.Nil(t, resp.Card)
	assert.Equal(t, "你好呀", resp.TextFallback)
}

func TestPersonalizeShortAndFriendly(t *testing.T) {
	resp := &RenderedResponse{
		TextFallback: "第一行\n第二行\n第三行",
		Blocks:       []Block{Paragraph("第一行\n第二行\n第三行")},
	}
	Personalize(resp, &state.ReplyPreferences{Length: "short", Tone: "friendly"})

	lines := 1
	for _, ch := range resp.TextFallback {
		if ch == '\n' {
			lines++
		}
	}
	assert.LessOrEqual(t, lines, 2)
	assert.NotContains(t, resp.TextFallback, "第三行")
	opener := false
	for _, o := range friendlyOpeners {
		if len(resp.TextFallback) >= len(o) && resp.TextFallback[:len(o)] == o {
			opener = true
		}
	}
	assert.True(t, opener)
	assert.Equal(t, resp.TextFallback, resp.Blocks[0].Text)
}

func TestPersonalizeNilPrefsNoop(t *testing.T) {
	resp := &RenderedResponse{TextFallback: "原文", Blocks: []Block{Paragraph("原文")}}
	Personalize(resp, nil)
	assert.Equal(t, "原文", resp.TextFallback)
}
