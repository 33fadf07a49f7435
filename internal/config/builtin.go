package config

// builtinTableProfiles is the workspace layout shipped as the default. A
// config file overrides the whole map.
func builtinTableProfiles() map[string]any {
	return map[string]any{
		"case": map[string]any{
			"kind":            "case",
			"aliases":         []string{"案件", "案件表", "案子"},
			"identity_fields": []string{"案号"},
			"dedupe_fields":   []string{"案号"},
			"create_defaults": map[string]string{"案件状态": "未结"},
			"append_fields":   []string{"进展"},
			"close": map[string]any{
				"status_field":    "案件状态",
				"closed_value":    "已结案",
				"reminder_policy": "close_all",
			},
			"close_variants": map[string]any{
				"enforcement_end": map[string]any{
					"status_field":    "案件状态",
					"closed_value":    "执行终本",
					"reminder_policy": "preserve_seizure",
				},
			},
			"reminders": []map[string]any{
				{"field": "开庭日", "days_before": 3},
				{"field": "管辖权异议截止日", "days_before": 3},
				{"field": "举证截止日", "days_before": 3},
				{"field": "上诉截止日", "days_before": 3},
				{"field": "查封到期日", "days_before": 30},
			},
		},
		"contracts": map[string]any{
			"kind":            "contracts",
			"aliases":         []string{"合同", "合同表"},
			"identity_fields": []string{"合同编号", "合同名称"},
			"dedupe_fields":   []string{"合同编号"},
			"close": map[string]any{
				"status_field":    "合同状态",
				"closed_value":    "已归档",
				"reminder_policy": "close_all",
			},
			"reminders": []map[string]any{
				{"field": "合同结束日期", "days_before": 30},
			},
		},
		"bidding": map[string]any{
			"kind":            "bidding",
			"aliases":         []string{"招投标", "标书", "投标"},
			"identity_fields": []string{"项目ID", "项目名称"},
			"dedupe_fields":   []string{"项目ID"},
			"create_defaults": map[string]string{"标书领取状态": "未领取"},
			"close": map[string]any{
				"status_field":    "标书状态",
				"closed_value":    "已关闭",
				"reminder_policy": "close_all",
			},
			"reminders": []map[string]any{
				{"field": "标书购买截止时间", "days_before": 2},
				{"field": "截标时间", "days_before": 3},
				{"field": "保证金截止日期", "days_before": 2},
			},
		},
		"team_overview": map[string]any{
			"kind":      "team_overview",
			"aliases":   []string{"团队总览", "总览"},
			"read_only": true,
		},
	}
}

// builtinFieldAliases maps the shorthand users type onto schema candidates.
// Candidates are tried in order against the live schema.
func builtinFieldAliases() map[string][]string {
	return map[string][]string{
		"状态":   {"案件状态", "合同状态", "标书状态", "标书领取状态"},
		"律师":   {"主办律师", "协办律师"},
		"客户":   {"委托人", "客户名称"},
		"对方":   {"对方当事人"},
		"开庭":   {"开庭日", "开庭时间"},
		"进展":   {"进展", "案件进展"},
		"金额":   {"标的额", "合同金额", "保证金金额"},
		"截止":   {"截标时间", "举证截止日"},
		"法院":   {"受理法院", "管辖法院"},
		"编号":   {"案号", "合同编号", "项目ID"},
		"结束日期": {"合同结束日期"},
	}
}
