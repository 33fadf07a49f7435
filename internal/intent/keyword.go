package intent

import "strings"

// Intent names shared with the model planner.
const (
	IntentQuery    = "query_records"
	IntentCreate   = "create_record"
	IntentUpdate   = "update_record"
	IntentClose    = "close_record"
	IntentDelete   = "delete_record"
	IntentReminder = "create_reminder"
	IntentChitchat = "chitchat"
)

// SkillFor maps an intent name onto the registered skill name.
func SkillFor(intent string) string {
	switch intent {
	case IntentQuery:
		return "query"
	case IntentCreate:
		return "create"
	case IntentUpdate:
		return "update"
	case IntentClose:
		return "close"
	case IntentDelete:
		return "delete"
	case IntentReminder:
		return "reminder"
	case IntentChitchat:
		return "chitchat"
	}
	return ""
}

// keyword groups checked in priority order: destructive verbs first so
// "删掉这条记录再查一下" routes to delete, not query.
var keywordGroups = []struct {
	intent   string
	keywords []string
}{
	{IntentDelete, []string{"删除", "删掉", "移除"}},
	{IntentClose, []string{"办结", "结案", "归档", "关闭", "终本", "执行终本"}},
	{IntentReminder, []string{"提醒我", "设置提醒", "创建提醒", "到期提醒"}},
	{IntentCreate, []string{"新增", "新建", "添加", "录入", "创建"}},
	{IntentUpdate, []string{"修改", "更新", "改成", "改为", "变更", "补充"}},
	{IntentQuery, []string{"查", "搜", "找", "看看", "列出", "多少", "哪些", "下一页"}},
}

// ParseKeyword is the deterministic intent floor used when the planner is
// unavailable or unsure.
func ParseKeyword(query string) string {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return IntentChitchat
	}
	for _, group := range keywordGroups {
		for _, kw := range group.keywords {
			if strings.Contains(trimmed, kw) {
				return group.intent
			}
		}
	}
	return IntentChitchat
}
