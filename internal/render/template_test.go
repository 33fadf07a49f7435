package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderStringSubstitution(t *testing.T) {
	out := RenderString("你好 {{name}}，共 {{ total }} 条", map[string]string{
		"name":  "张三",
		"total": "5",
	})
	assert.Equal(t, "你好 张三，共 5 条", out)
}

func TestRenderStringMissingVariableIsEmpty(t *testing.T) {
	out := RenderString("前{{missing}}后", nil)
	assert.Equal(t, "前后", out)
}

func TestRenderStringConditional(t *testing.T) {
	tpl := "头\n{{#if warn}}⚠️ {{warn}}\n{{/if}}尾"

	out := RenderString(tpl, map[string]string{"warn": "重复记录"})
	assert.Equal(t, "头\n⚠️ 重复记录\n尾", out)

	out = RenderString(tpl, map[string]string{"warn": ""})
	assert.Equal(t, "头\n尾", out)

	// the placeholder dash counts as blank
	out = RenderString(tpl, map[string]string{"warn": "—"})
	assert.Equal(t, "头\n尾", out)

	out = RenderString(tpl, map[string]string{"warn": "   "})
	assert.Equal(t, "头\n尾", out)
}

func TestRenderStringCollapsesBlankLines(t *testing.T) {
	out := RenderString("a\n\n\n\nb", nil)
	assert.Equal(t, "a\n\nb", out)
}

func TestEngineRegisteredFragmentAndCache(t *testing.T) {
	e := NewEngine("", nil)
	e.Register("action/greet.md", "你好 {{name}}")

	assert.Equal(t, "你好 甲", e.Render("action/greet.md", map[string]string{"name": "甲"}))
	// same (path, params) served from cache; different params re-render
	assert.Equal(t, "你好 甲", e.Render("action/greet.md", map[string]string{"name": "甲"}))
	assert.Equal(t, "你好 乙", e.Render("action/greet.md", map[string]string{"name": "乙"}))
}

func TestEngineUnknownFragmentRendersEmpty(t *testing.T) {
	e := NewEngine("", nil)
	assert.Equal(t, "", e.Render("query/nope.md", nil))
}

func TestEngineBuiltinErrorNotice(t *testing.T) {
	e := NewEngine("", nil)
	out := e.Render("action/error_notice.md", map[string]string{"message": "权限不足，请联系管理员"})
	assert.Contains(t, out, "处理失败")
	assert.Contains(t, out, "权限不足，请联系管理员")
	assert.NotContains(t, out, "事件编号")
}
