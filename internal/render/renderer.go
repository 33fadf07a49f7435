package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/skills"
)

// Renderer maps a skill result onto a RenderedResponse deterministically.
type Renderer struct {
	engine *Engine
	logger logging.Logger
}

// NewRenderer builds a renderer over the given template engine.
func NewRenderer(engine *Engine, logger logging.Logger) *Renderer {
	if engine == nil {
		engine = NewEngine("", logger)
	}
	return &Renderer{engine: engine, logger: logging.OrNop(logger)}
}

// data keys that never belong in a kv_list: large nested values and state
// sync sentinels.
var kvExcluded = map[string]bool{
	"pending_action":       true,
	"pending_delete":       true,
	"records":              true,
	"record_ids":           true,
	"pagination":           true,
	"resolution_trace":     true,
	"debug":                true,
	"diff":                 true,
	"fields":               true,
	"query_summary":        true,
	"need_confirm":         true,
	"skip_personalization": true,
	"error_code":           true,
	"update_guide":         true,
	"cancelled":            true,
	"executed":             true,
	"card_version":         true,
	"active_record":        true,
	"last_skill":           true,
}

var mutationSkills = map[string]bool{
	"create": true,
	"update": true,
	"close":  true,
	"delete": true,
}

// Render produces the terminal response for one skill result.
func (r *Renderer) Render(res *skills.Result) *RenderedResponse {
	fallback := strings.TrimSpace(res.ReplyText)
	if fallback == "" {
		fallback = strings.TrimSpace(res.Message)
	}
	if fallback == "" {
		if res.Success {
			fallback = "好的。"
		} else {
			fallback = "抱歉，处理出现问题，请稍后重试"
		}
	}

	resp := &RenderedResponse{
		TextFallback: fallback,
		Blocks:       []Block{Paragraph(fallback)},
		Meta: map[string]any{
			"skill":   res.SkillName,
			"success": res.Success,
		},
	}

	if res.Success && mutationSkills[res.SkillName] {
		if items := safeKV(res.Data); len(items) > 0 {
			resp.Blocks = append(resp.Blocks, Block{Type: BlockKVList, Items: items})
		}
	}

	id, version := selectTemplate(res)
	if id == "" {
		return resp
	}

	params := r.cardParams(res, fallback)
	if id == "error.notice" {
		params["error_class"] = errorClass(res.ErrorCode, fallback)
	}
	resp.Card = &CardTemplate{TemplateID: id, Version: version, Params: params}
	if body := r.engine.Render(templatePath(id), params); body != "" {
		resp.Meta["card_body"] = body
	}
	return resp
}

// selectTemplate picks a card template from (skill, success, pending state).
func selectTemplate(res *skills.Result) (id, version string) {
	if !res.Success {
		return "error.notice", "v1"
	}
	data := res.Data

	if res.SkillName == "delete" {
		switch {
		case truthy(data["cancelled"]):
			return "delete.cancelled", "v1"
		case truthy(data["executed"]):
			return "delete.success", "v1"
		case truthy(data["pending_delete"]) || data["pending_action"] != nil:
			return "delete.confirm", "v1"
		}
		return "delete.success", "v1"
	}
	if truthy(data["update_guide"]) {
		return "update.guide", "v1"
	}
	if data["pending_action"] != nil {
		return "action.confirm", "v1"
	}

	switch res.SkillName {
	case "query":
		if recs, ok := data["records"].([]map[string]any); ok && len(recs) == 1 && !truthy(data["need_confirm"]) {
			return "query.detail", "v1"
		}
		version = "v2"
		if v, ok := data["card_version"].(string); ok && v != "" {
			version = v
		}
		return "query.list", version
	case "create":
		return "create.success", "v1"
	case "update", "close":
		return "update.success", "v1"
	}
	return "", ""
}

func templatePath(id string) string {
	switch id {
	case "error.notice":
		return "action/error_notice.md"
	case "action.confirm":
		return "action/confirm.md"
	case "update.guide":
		return "action/update_guide.md"
	case "delete.confirm":
		return "action/delete_confirm.md"
	case "delete.success":
		return "action/delete_success.md"
	case "delete.cancelled":
		return "action/delete_cancelled.md"
	case "create.success":
		return "action/create_success.md"
	case "update.success":
		return "action/update_success.md"
	case "query.list":
		return "query/list.md"
	case "query.detail":
		return "query/detail.md"
	}
	return ""
}

// errorClass is a keyword matcher over the explicit code and the message.
func errorClass(code, message string) string {
	switch code {
	case "missing_params", "record_not_found", "permission_denied":
		return code
	}
	switch {
	case strings.Contains(message, "缺少") || strings.Contains(message, "请补充") || strings.Contains(message, "请说明"):
		return "missing_params"
	case strings.Contains(message, "未找到") || strings.Contains(message, "不存在"):
		return "record_not_found"
	case strings.Contains(message, "权限") || strings.Contains(message, "无权") || strings.Contains(message, "只读"):
		return "permission_denied"
	}
	return "general"
}

// cardParams flattens the scalar data surface, the pending payload, and
// pagination into template parameters.
func (r *Renderer) cardParams(res *skills.Result, fallback string) map[string]string {
	params := map[string]string{
		"title":   fallback,
		"message": fallback,
		"skill":   res.SkillName,
	}
	for key, value := range res.Data {
		if text, ok := scalarText(value); ok && !kvExcluded[key] {
			params[key] = text
		}
	}
	if pending, ok := res.Data["pending_action"].(map[string]any); ok {
		if payload, ok := pending["payload"].(map[string]any); ok {
			for key, value := range payload {
				if text, ok := scalarText(value); ok {
					params[key] = text
				}
			}
		}
	}
	if page, ok := res.Data["pagination"].(map[string]any); ok {
		if total, ok := scalarText(page["total"]); ok {
			params["total"] = total
		}
		if more, ok := page["has_more"].(bool); ok && more {
			params["has_more"] = "true"
		}
	}
	return params
}

func safeKV(data map[string]any) []KV {
	keys := make([]string, 0, len(data))
	for key := range data {
		if kvExcluded[key] {
			continue
		}
		if _, ok := scalarText(data[key]); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	items := make([]KV, 0, len(keys))
	for _, key := range keys {
		text, _ := scalarText(data[key])
		items = append(items, KV{Key: key, Value: text})
	}
	return items
}

func scalarText(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		if strings.TrimSpace(v) == "" {
			return "", false
		}
		return v, true
	case bool:
		if v {
			return "true", true
		}
		return "false", true
	case int, int32, int64:
		return fmt.Sprintf("%d", v), true
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v)), true
		}
		return fmt.Sprintf("%g", v), true
	}
	return "", false
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v != "" && v != "false"
	}
	return false
}
