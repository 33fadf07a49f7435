package render

// builtinTemplates mirrors the fragments shipped under templates/ so the
// renderer works before any template root is configured.
var builtinTemplates = map[string]string{
	"wrapper/card.md": `{{#if title}}**{{title}}**

{{/if}}{{body}}`,

	"action/confirm.md": `**{{title}}**

{{#if summary}}目标记录：{{summary}}
{{/if}}{{#if table_name}}所在表：{{table_name}}
{{/if}}{{#if duplicate_warning}}⚠️ {{duplicate_warning}}
{{/if}}
请点击下方按钮确认或取消。`,

	"action/delete_confirm.md": `**删除确认**

目标记录：{{summary}}
{{#if warning}}⚠️ {{warning}}
{{/if}}{{#if alternative}}💡 {{alternative}}
{{/if}}
请点击下方按钮确认或取消。`,

	"action/delete_success.md": `🗑️ 已删除{{#if summary}}「{{summary}}」{{/if}}。`,

	"action/delete_cancelled.md": `已取消删除{{#if summary}}「{{summary}}」{{/if}}，记录未变更。`,

	"action/update_guide.md": `**修改指引**

请告诉我要修改{{#if summary}}「{{summary}}」{{/if}}的哪些字段。

例如：案件状态改为已结案`,

	"action/create_success.md": `✅ 新增成功{{#if summary}}：{{summary}}{{/if}}
{{#if record_url}}
[查看记录]({{record_url}})
{{/if}}{{#if reminders}}
已自动创建提醒：{{reminders}}
{{/if}}`,

	"action/update_success.md": `✅ 修改成功{{#if summary}}：{{summary}}{{/if}}
{{#if diff_text}}
{{diff_text}}
{{/if}}`,

	"action/error_notice.md": `**处理失败**

{{message}}
{{#if event_id}}
事件编号：{{event_id}}
{{/if}}`,

	"query/list.md": `**{{table_name}}查询结果（共 {{total}} 条）**
{{#if keyword}}
关键词：{{keyword}}
{{/if}}{{#if has_more}}
还有更多结果，回复「下一页」继续查看。
{{/if}}`,

	"query/detail.md": `**{{summary}}**

{{body}}`,
}
