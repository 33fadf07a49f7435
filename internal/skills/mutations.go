package skills

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/backend"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/config"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/llm"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/schema"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/state"
)

// ReadOnlyTableMessage rejects mutations against view-only tables.
const ReadOnlyTableMessage = "该表为只读视图，禁止执行新增、修改、关闭或删除操作。"

// DeleteWarningMessage is carried on delete confirmation cards.
const DeleteWarningMessage = "该操作不可撤销，请再次确认。"

const (
	confirmTTL     = 60 * time.Second
	updateGuideTTL = 120 * time.Second
)

// ConfirmWords and CancelWords classify plain-text confirmation replies.
var (
	ConfirmWords = []string{"确认", "确定", "是", "对", "好", "ok", "OK", "yes", "y"}
	CancelWords  = []string{"取消", "算了", "不了", "不要", "不用", "否", "no", "n"}
)

// IsConfirmText reports whether text is an affirmative confirmation reply.
func IsConfirmText(text string) bool {
	return matchesWord(text, ConfirmWords)
}

// IsCancelText reports whether text is a cancellation reply.
func IsCancelText(text string) bool {
	return matchesWord(text, CancelWords)
}

func matchesWord(text string, words []string) bool {
	trimmed := strings.TrimSpace(text)
	for _, w := range words {
		if strings.EqualFold(trimmed, w) {
			return true
		}
	}
	return false
}

// mutationDeps bundles what every mutation skill needs.
type mutationDeps struct {
	client   backend.Client
	schemas  *schema.Cache
	model    llm.Client
	provider *config.Provider
	states   *state.Manager
	logger   logging.Logger
}

// NewMutationDeps wires the shared dependency bundle.
func NewMutationDeps(client backend.Client, schemas *schema.Cache, model llm.Client, provider *config.Provider, states *state.Manager, logger logging.Logger) *mutationDeps {
	return &mutationDeps{
		client:   client,
		schemas:  schemas,
		model:    model,
		provider: provider,
		states:   states,
		logger:   logging.OrNop(logger),
	}
}

// resolveTargetTable finds the table and its profile for a mutation, honoring
// the active table before falling back to names in the utterance.
func (d *mutationDeps) resolveTargetTable(ctx context.Context, sc *Context) (tableID, tableName string, profile config.TableProfile, err error) {
	cfg := d.provider.Current()
	tables, listErr := d.client.ListTables(ctx)
	if listErr != nil {
		return "", "", config.TableProfile{}, listErr
	}

	for _, t := range tables {
		if strings.Contains(sc.Query, t.TableName) {
			return t.TableID, t.TableName, profileForTable(cfg, t.TableName), nil
		}
	}
	for _, p := range cfg.Tables {
		for _, alias := range p.Aliases {
			if !strings.Contains(sc.Query, alias) {
				continue
			}
			for _, t := range tables {
				if strings.Contains(t.TableName, alias) {
					return t.TableID, t.TableName, p, nil
				}
			}
		}
	}

	if sc.ActiveTable != nil && sc.ActiveTable.TableID != "" {
		return sc.ActiveTable.TableID, sc.ActiveTable.TableName, profileForTable(cfg, sc.ActiveTable.TableName), nil
	}
	return "", "", config.TableProfile{}, fmt.Errorf("no target table resolvable")
}

// profileForTable resolves the profile for a concrete table name: exact key
// or alias first, then alias containment in the name.
func profileForTable(cfg *config.Config, tableName string) config.TableProfile {
	if p, ok := cfg.TableProfileFor(tableName); ok {
		return p
	}
	for _, p := range cfg.Tables {
		for _, alias := range p.Aliases {
			if strings.Contains(tableName, alias) {
				return p
			}
		}
	}
	return config.TableProfile{}
}

// resolveTargetRecord finds the record a mutation refers to: active record
// first, then a fresh point query by extracted reference.
func (d *mutationDeps) resolveTargetRecord(ctx context.Context, sc *Context, tableID string, recordRef string) (*backend.Record, error) {
	if sc.ActiveRecord != nil && sc.ActiveRecord.RecordID != "" &&
		(recordRef == "" || strings.Contains(sc.ActiveRecord.RecordSummary, recordRef)) {
		rec := &backend.Record{
			RecordID:  sc.ActiveRecord.RecordID,
			TableID:   sc.ActiveRecord.TableID,
			TableName: sc.ActiveRecord.TableName,
			Fields:    sc.ActiveRecord.Record,
		}
		return rec, nil
	}
	if recordRef == "" {
		return nil, backend.NewError(backend.KindRecordNotFound, "resolve_target", "no record reference", nil)
	}
	result, err := d.client.SearchKeyword(ctx, tableID, recordRef, identifierFields)
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, backend.NewError(backend.KindRecordNotFound, "resolve_target", recordRef, nil)
	}
	rec := result.Records[0]
	rec.TableID = tableID
	return &rec, nil
}

// extractFields asks the model for the utterance's field map and resolves the
// names against the live schema.
func (d *mutationDeps) extractFields(ctx context.Context, sc *Context, tableID string) (map[string]any, string, error) {
	slots, _, err := llm.ExtractSlots(ctx, d.model, sc.Query)
	if err != nil {
		return nil, "", err
	}
	tableSchema, err := d.schemas.Get(ctx, tableID)
	if err != nil {
		return nil, "", err
	}

	cfg := d.provider.Current()
	fields := make(map[string]any, len(slots.Fields))
	for name, value := range slots.Fields {
		resolved := schema.ResolveField(tableSchema, name, cfg.FieldAliases)
		if resolved == "" {
			// unknown field names surface on the confirmation card as-is
			fields[name] = value
			continue
		}
		meta, _ := tableSchema.FieldByName(resolved)
		coerced, err := schema.CoerceValue(meta, value)
		if err != nil {
			return nil, "", err
		}
		fields[resolved] = coerced
	}
	return fields, slots.RecordRef, nil
}

// CreateSkill proposes record creation.
type CreateSkill struct {
	deps *mutationDeps
}

// NewCreateSkill builds the create skill.
func NewCreateSkill(deps *mutationDeps) *CreateSkill { return &CreateSkill{deps: deps} }

func (s *CreateSkill) Name() string { return "create" }

// Execute builds a create_record pending action and asks for confirmation.
func (s *CreateSkill) Execute(ctx context.Context, sc *Context) (*Result, error) {
	d := s.deps
	tableID, tableName, profile, err := d.resolveTargetTable(ctx, sc)
	if err != nil {
		return FailResult(s.Name(), "missing_params", "请说明要在哪个表新增记录"), nil
	}
	if profile.ReadOnly {
		return FailResult(s.Name(), "permission_denied", ReadOnlyTableMessage), nil
	}

	fields, _, err := d.extractFields(ctx, sc, tableID)
	if err != nil {
		d.logger.Warn("create field extraction failed: %v", err)
		return FailResult(s.Name(), "missing_params", "未能识别新增内容，请按\"字段: 值\"的格式补充"), nil
	}
	if len(fields) == 0 {
		return FailResult(s.Name(), "missing_params", "缺少新增内容，请补充字段和值"), nil
	}

	for field, value := range profile.CreateDefaults {
		if _, ok := fields[field]; !ok {
			fields[field] = value
		}
	}

	payload := map[string]any{
		"table_id":   tableID,
		"table_name": tableName,
		"table_kind": profile.Kind,
		"fields":     fields,
	}

	// dedupe lookup: a hit keeps the proposal but flags the card
	if warn := s.duplicateWarning(ctx, tableID, profile, fields); warn != "" {
		payload["duplicate_warning"] = warn
	}

	pending := d.states.SetPendingAction(sc.UserID, state.ActionCreateRecord, payload, nil, confirmTTL)
	return &Result{
		Success:   true,
		SkillName: s.Name(),
		ReplyType: "card",
		ReplyText: fmt.Sprintf("将在「%s」新增一条记录，请确认", tableName),
		Data: map[string]any{
			"pending_action": pendingSnapshot(pending),
			"fields":         fields,
		},
	}, nil
}

func (s *CreateSkill) duplicateWarning(ctx context.Context, tableID string, profile config.TableProfile, fields map[string]any) string {
	for _, field := range profile.DedupeFields {
		value, ok := fields[field]
		if !ok {
			continue
		}
		text := strings.TrimSpace(fmt.Sprintf("%v", value))
		if text == "" {
			continue
		}
		result, err := s.deps.client.SearchExact(ctx, tableID, field, text)
		if err != nil {
			s.deps.logger.Warn("dedupe lookup failed for %s: %v", field, err)
			continue
		}
		if len(result.Records) > 0 {
			return fmt.Sprintf("已存在 %s 为「%s」的记录，确认后仍会新增", field, text)
		}
	}
	return ""
}

// DiffEntry is one changed field in an update proposal.
type DiffEntry struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
	Mode  string `json:"mode"` // "replace" or "append"
	Delta string `json:"delta,omitempty"`
	// Preview is an inline edit summary for long text replacements.
	Preview string `json:"preview,omitempty"`
}

// diffPreview summarizes a long-text replacement as inline edits, e.g.
// "[-原告撤诉][+原告胜诉]". Short values read fine as old → new and skip it.
func diffPreview(before, after string) string {
	if len([]rune(before)) < 20 && len([]rune(after)) < 20 {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))
	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("[+" + d.Text + "]")
		case diffmatchpatch.DiffEqual:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}

// UpdateSkill proposes record updates, including the guide sub-state.
type UpdateSkill struct {
	deps *mutationDeps
}

// NewUpdateSkill builds the update skill.
func NewUpdateSkill(deps *mutationDeps) *UpdateSkill { return &UpdateSkill{deps: deps} }

func (s *UpdateSkill) Name() string { return "update" }

// Execute builds an update_record pending action with a field diff.
func (s *UpdateSkill) Execute(ctx context.Context, sc *Context) (*Result, error) {
	d := s.deps
	tableID, tableName, profile, err := d.resolveTargetTable(ctx, sc)
	if err != nil {
		return FailResult(s.Name(), "missing_params", "请说明要修改哪个表的记录"), nil
	}
	if profile.ReadOnly {
		return FailResult(s.Name(), "permission_denied", ReadOnlyTableMessage), nil
	}

	fields, recordRef, err := d.extractFields(ctx, sc, tableID)
	if err != nil {
		d.logger.Warn("update field extraction failed: %v", err)
		fields = nil
	}

	target, err := d.resolveTargetRecord(ctx, sc, tableID, recordRef)
	if err != nil {
		return FailResult(s.Name(), "record_not_found", "未找到目标记录，请先查询确认"), nil
	}

	if len(fields) == 0 {
		return s.guideResult(sc, tableID, tableName, target), nil
	}

	diff, finalFields := buildDiff(target, fields, profile, time.Now().In(agentZone))
	payload := map[string]any{
		"table_id":   tableID,
		"table_name": tableName,
		"table_kind": profile.Kind,
		"record_id":  target.RecordID,
		"fields":     finalFields,
		"diff":       diff,
		"summary":    recordSummary(target),
	}

	pending := d.states.SetPendingAction(sc.UserID, state.ActionUpdateRecord, payload, nil, confirmTTL)
	return &Result{
		Success:   true,
		SkillName: s.Name(),
		ReplyType: "card",
		ReplyText: fmt.Sprintf("将修改「%s」的 %d 个字段，请确认", recordSummary(target), len(diff)),
		Data: map[string]any{
			"pending_action": pendingSnapshot(pending),
			"diff":           diff,
		},
	}, nil
}

// guideResult is the "please specify fields to change" sub-state, reachable
// from the card's edit button.
func (s *UpdateSkill) guideResult(sc *Context, tableID, tableName string, target *backend.Record) *Result {
	payload := map[string]any{
		"table_id":   tableID,
		"table_name": tableName,
		"record_id":  target.RecordID,
		"summary":    recordSummary(target),
		"guide":      true,
	}
	pending := s.deps.states.SetPendingAction(sc.UserID, state.ActionUpdateCollectFields, payload, nil, updateGuideTTL)
	return &Result{
		Success:   true,
		SkillName: s.Name(),
		ReplyType: "card",
		ReplyText: fmt.Sprintf("请告诉我要修改「%s」的哪些字段，例如：案件状态改为已结案", recordSummary(target)),
		Data: map[string]any{
			"pending_action": pendingSnapshot(pending),
			"update_guide":   true,
		},
	}
}

// buildDiff computes per-field changes. Configured append fields concatenate
// a dated line instead of replacing.
func buildDiff(target *backend.Record, fields map[string]any, profile config.TableProfile, now time.Time) ([]DiffEntry, map[string]any) {
	appendSet := make(map[string]bool, len(profile.AppendFields))
	for _, f := range profile.AppendFields {
		appendSet[f] = true
	}

	final := make(map[string]any, len(fields))
	diff := make([]DiffEntry, 0, len(fields))
	for field, value := range fields {
		oldText, _ := renderValue(target.Fields[field])
		newText := strings.TrimSpace(fmt.Sprintf("%v", value))

		if appendSet[field] {
			line := fmt.Sprintf("[%s] %s", now.Format("2006-01-02"), newText)
			merged := line
			if oldText != "" {
				merged = oldText + "\n" + line
			}
			final[field] = merged
			diff = append(diff, DiffEntry{Field: field, Old: oldText, New: merged, Mode: "append", Delta: line})
			continue
		}

		final[field] = value
		diff = append(diff, DiffEntry{
			Field: field, Old: oldText, New: newText, Mode: "replace",
			Preview: diffPreview(oldText, newText),
		})
	}
	return diff, final
}

// CloseSkill proposes record closure using the table's close profiles.
type CloseSkill struct {
	deps *mutationDeps
}

// NewCloseSkill builds the close skill.
func NewCloseSkill(deps *mutationDeps) *CloseSkill { return &CloseSkill{deps: deps} }

func (s *CloseSkill) Name() string { return "close" }

// enforcement-end phrasing; anything not listed resolves to the default
// profile rather than guessing
var enforcementEndKeywords = []string{"执行终本", "终本", "终结本次执行"}

func (s *CloseSkill) Execute(ctx context.Context, sc *Context) (*Result, error) {
	d := s.deps
	tableID, tableName, profile, err := d.resolveTargetTable(ctx, sc)
	if err != nil {
		return FailResult(s.Name(), "missing_params", "请说明要办结哪个表的记录"), nil
	}
	if profile.ReadOnly {
		return FailResult(s.Name(), "permission_denied", ReadOnlyTableMessage), nil
	}
	if profile.Close == nil {
		return FailResult(s.Name(), "missing_params", fmt.Sprintf("「%s」未配置办结方式", tableName)), nil
	}

	_, recordRef, _ := d.extractFields(ctx, sc, tableID)
	target, err := d.resolveTargetRecord(ctx, sc, tableID, recordRef)
	if err != nil {
		return FailResult(s.Name(), "record_not_found", "未找到目标记录，请先查询确认"), nil
	}

	semantic := "default"
	closeProfile := *profile.Close
	if containsAny(sc.Query, enforcementEndKeywords...) {
		if variant, ok := profile.CloseVariants["enforcement_end"]; ok {
			semantic = "enforcement_end"
			closeProfile = variant
		}
	}

	payload := map[string]any{
		"table_id":        tableID,
		"table_name":      tableName,
		"table_kind":      profile.Kind,
		"record_id":       target.RecordID,
		"summary":         recordSummary(target),
		"close_semantic":  semantic,
		"status_field":    closeProfile.StatusField,
		"closed_value":    closeProfile.ClosedValue,
		"reminder_policy": closeProfile.ReminderPolicy,
		"fields":          map[string]any{closeProfile.StatusField: closeProfile.ClosedValue},
	}

	pending := d.states.SetPendingAction(sc.UserID, state.ActionCloseRecord, payload, nil, confirmTTL)
	return &Result{
		Success:   true,
		SkillName: s.Name(),
		ReplyType: "card",
		ReplyText: fmt.Sprintf("将把「%s」标记为「%s」，请确认", recordSummary(target), closeProfile.ClosedValue),
		Data: map[string]any{
			"pending_action": pendingSnapshot(pending),
			"close_semantic": semantic,
		},
	}, nil
}

// DeleteSkill proposes record deletion with a danger confirmation.
type DeleteSkill struct {
	deps *mutationDeps
}

// NewDeleteSkill builds the delete skill.
func NewDeleteSkill(deps *mutationDeps) *DeleteSkill { return &DeleteSkill{deps: deps} }

func (s *DeleteSkill) Name() string { return "delete" }

func (s *DeleteSkill) Execute(ctx context.Context, sc *Context) (*Result, error) {
	d := s.deps
	tableID, tableName, profile, err := d.resolveTargetTable(ctx, sc)
	if err != nil {
		return FailResult(s.Name(), "missing_params", "请说明要删除哪个表的记录"), nil
	}
	if profile.ReadOnly {
		return FailResult(s.Name(), "permission_denied", ReadOnlyTableMessage), nil
	}

	_, recordRef, _ := d.extractFields(ctx, sc, tableID)
	target, err := d.resolveTargetRecord(ctx, sc, tableID, recordRef)
	if err != nil {
		return FailResult(s.Name(), "record_not_found", "未找到目标记录，请先查询确认"), nil
	}

	payload := map[string]any{
		"table_id":    tableID,
		"table_name":  tableName,
		"table_kind":  profile.Kind,
		"record_id":   target.RecordID,
		"summary":     recordSummary(target),
		"warning":     DeleteWarningMessage,
		"alternative": "建议优先使用办结而非删除",
		"button_type": "danger",
	}

	pending := d.states.SetPendingAction(sc.UserID, state.ActionDeleteRecord, payload, nil, confirmTTL)
	d.states.SetPendingDelete(sc.UserID, state.PendingDelete{
		RecordID: target.RecordID,
		Summary:  recordSummary(target),
		TableID:  tableID,
		Payload:  payload,
	})

	return &Result{
		Success:   true,
		SkillName: s.Name(),
		ReplyType: "card",
		ReplyText: fmt.Sprintf("将删除「%s」。%s", recordSummary(target), DeleteWarningMessage),
		Data: map[string]any{
			"pending_action": pendingSnapshot(pending),
			"pending_delete": true,
		},
	}, nil
}

func recordSummary(rec *backend.Record) string {
	for _, key := range []string{"案号", "项目ID", "合同编号", "项目名称", "合同名称"} {
		if text, _ := renderValue(rec.Fields[key]); text != "" {
			return text
		}
	}
	if rec.RecordID != "" {
		return rec.RecordID
	}
	return "该记录"
}

func pendingSnapshot(p *state.PendingAction) map[string]any {
	ops := make([]map[string]any, 0, len(p.Operations))
	for _, op := range p.Operations {
		ops = append(ops, map[string]any{
			"index":   op.Index,
			"status":  string(op.Status),
			"payload": op.Payload,
		})
	}
	return map[string]any{
		"action":     p.Action,
		"payload":    p.Payload,
		"operations": ops,
		"status":     string(p.Status),
		"expires_at": p.ExpiresAt,
	}
}
