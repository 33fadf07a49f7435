package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/backend"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/cache"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/render"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/skills"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/state"
)

const (
	ExpiredCallbackMessage   = "操作已过期，请重新发起"
	DuplicateCallbackMessage = "已处理"
)

// inflightGuard admits one concurrent dispatch per callback key.
type inflightGuard struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newInflightGuard() *inflightGuard {
	return &inflightGuard{keys: make(map[string]bool)}
}

func (g *inflightGuard) enter(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys[key] {
		return false
	}
	g.keys[key] = true
	return true
}

func (g *inflightGuard) leave(key string) {
	g.mu.Lock()
	delete(g.keys, key)
	g.mu.Unlock()
}

// HandleCallback dispatches one card callback. Callback failures never
// propagate: anything unexpected is logged and answered as expired so the
// card UI cannot hang.
func (o *Orchestrator) HandleCallback(ctx context.Context, userID, action string, value map[string]any) (resp *render.RenderedResponse) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("callback dispatch panicked: user=%s action=%s: %v", userID, action, r)
			resp = o.deps.Renderer.Render(expiredResult())
		}
	}()

	key := cache.CallbackKey(userID, action, value)
	if o.deps.CallbackDedup != nil && o.deps.CallbackDedup.IsDuplicate(key) {
		o.logger.Info("callback duplicated: user=%s action=%s", userID, action)
		o.recordCallback(ctx, action, "duplicated")
		o.recordDedup(ctx, "callback")
		return o.deps.Renderer.Render(skills.TextResult("callback", DuplicateCallbackMessage))
	}
	if !o.inflight.enter(key) {
		o.recordDedup(ctx, "callback_inflight")
		return o.deps.Renderer.Render(skills.TextResult("callback", DuplicateCallbackMessage))
	}
	defer o.inflight.leave(key)

	release := o.locks.Acquire(userID)
	defer release()

	result := o.dispatchCallback(ctx, userID, action, value)
	if result.Success && o.deps.CallbackDedup != nil {
		o.deps.CallbackDedup.Mark(key)
	}
	outcome := "ok"
	if !result.Success {
		outcome = result.ErrorCode
	}
	o.recordCallback(ctx, action, outcome)
	return o.deps.Renderer.Render(result)
}

func (o *Orchestrator) dispatchCallback(ctx context.Context, userID, action string, value map[string]any) *skills.Result {
	switch action {
	case "edit", "modify", "update_record_edit":
		return o.updateGuide(ctx, userID, value)
	}

	pending := o.deps.States.GetPendingAction(userID)
	if pending == nil {
		return expiredResult()
	}

	if pending.Action == state.ActionQueryListNavigation {
		return o.listNavigation(ctx, userID, action, value)
	}

	var callbackIntent string
	switch action {
	case pending.Action + "_confirm":
		callbackIntent = "confirm"
	case pending.Action + "_cancel":
		callbackIntent = "cancel"
	case pending.Action + "_retry":
		callbackIntent = "retry"
	default:
		// a stale card must never commit new state
		o.logger.Warn("callback %s does not match pending %s for user %s", action, pending.Action, userID)
		return expiredResult()
	}
	return o.commitPending(ctx, userID, callbackIntent)
}

// commitPending resolves a confirm/cancel/retry against the user's pending
// action. Shared by card callbacks and text confirmations.
func (o *Orchestrator) commitPending(ctx context.Context, userID, callbackIntent string) *skills.Result {
	d := o.deps
	pending := d.States.GetPendingAction(userID)
	if pending == nil {
		return expiredResult()
	}

	switch callbackIntent {
	case "cancel":
		if err := d.States.CancelPendingAction(userID); err != nil {
			o.logger.Warn("cancel pending for %s: %v", userID, err)
		}
		if pending.Action == state.ActionDeleteRecord {
			d.States.ClearPendingDelete(userID)
			summary, _ := pending.Payload["summary"].(string)
			result := skills.TextResult("delete", fmt.Sprintf("已取消删除「%s」，记录未变更", summary))
			result.Data["cancelled"] = true
			return result
		}
		return skills.TextResult(skillForAction(pending.Action), "已取消，未做任何变更")

	case "retry":
		if !pending.IsBatch() {
			return expiredResult()
		}
		reset := skills.ResetForRetry(pending.Operations)
		if err := d.States.UpdatePendingActionOperations(userID, reset); err != nil {
			o.logger.Warn("reset batch for retry: %v", err)
			return expiredResult()
		}
		pending.Operations = reset
		return o.commitBatch(ctx, userID, pending)

	case "confirm":
		if pending.IsBatch() {
			return o.commitBatch(ctx, userID, pending)
		}
		return o.commitSingle(ctx, userID, pending)
	}
	return expiredResult()
}

func (o *Orchestrator) commitSingle(ctx context.Context, userID string, pending *state.PendingAction) *skills.Result {
	d := o.deps
	outcome, err := d.Executor.Execute(ctx, pending.Action, pending.Payload)
	if err != nil {
		o.logger.Error("commit %s for %s failed: %v", pending.Action, userID, err)
		return skills.FailResult(skillForAction(pending.Action), string(backend.KindOf(err)), commitErrorMessage(err))
	}

	if err := d.States.ConfirmPendingAction(userID); err != nil {
		o.logger.Warn("mark pending executed for %s: %v", userID, err)
	}

	skillName := skillForAction(pending.Action)
	result := &skills.Result{
		Success:   true,
		SkillName: skillName,
		ReplyType: "card",
		Data:      map[string]any{"executed": true},
	}
	summary, _ := pending.Payload["summary"].(string)
	tableID, _ := pending.Payload["table_id"].(string)
	tableName, _ := pending.Payload["table_name"].(string)

	switch pending.Action {
	case state.ActionCreateRecord:
		result.ReplyText = "✅ 新增成功"
		result.Data["record_id"] = outcome.RecordID
		d.States.SetActiveRecord(userID, state.ActiveRecord{
			RecordID:  outcome.RecordID,
			TableID:   tableID,
			TableName: tableName,
			Source:    "create",
		})
	case state.ActionDeleteRecord:
		result.ReplyText = fmt.Sprintf("🗑️ 已删除「%s」", summary)
		d.States.ClearPendingDelete(userID)
		d.States.ClearActiveRecord(userID)
	case state.ActionCloseRecord:
		closedValue, _ := pending.Payload["closed_value"].(string)
		result.ReplyText = fmt.Sprintf("✅ 已将「%s」标记为「%s」", summary, closedValue)
	default:
		result.ReplyText = fmt.Sprintf("✅ 修改成功：%s", summary)
	}
	if summary != "" {
		result.Data["summary"] = summary
	}
	return result
}

func (o *Orchestrator) commitBatch(ctx context.Context, userID string, pending *state.PendingAction) *skills.Result {
	d := o.deps
	total := len(pending.Operations)
	emitProgress := d.Progress != nil && total >= 3
	if emitProgress {
		d.Progress.Start(userID, total)
	}

	ops, report := d.Executor.ExecuteBatch(ctx, pending.Action, pending.Operations,
		func(ops []state.OperationEntry) {
			if err := d.States.UpdatePendingActionOperations(userID, ops); err != nil {
				o.logger.Warn("persist batch progress for %s: %v", userID, err)
			}
		})

	if emitProgress {
		d.Progress.Complete(userID, report.Succeeded, report.Failed)
	}

	retryable := report.Retryable
	if !retryable {
		if err := d.States.ConfirmPendingAction(userID); err != nil {
			o.logger.Warn("mark batch executed for %s: %v", userID, err)
		}
	}

	lines := make([]string, 0, len(ops))
	for _, op := range ops {
		lines = append(lines, skills.OperationLine(op))
	}
	text := batchText(report.Code, report.Succeeded, report.Failed, report.Skipped)
	if retryable {
		text += "\n可点击重试按钮重新执行失败项"
	}

	result := &skills.Result{
		Success:   true,
		SkillName: skillForAction(pending.Action),
		ReplyType: "card",
		ReplyText: text + "\n" + strings.Join(lines, "\n"),
		Data: map[string]any{
			"batch_code":            report.Code,
			"batch_retry_available": retryable,
			"succeeded":             report.Succeeded,
			"failed":                report.Failed,
			"skipped":               report.Skipped,
		},
	}
	return result
}

// listNavigation serves in-card pagination callbacks for a query list.
func (o *Orchestrator) listNavigation(ctx context.Context, userID, action string, value map[string]any) *skills.Result {
	if action != "next_page" && action != "query_list_navigation" {
		return expiredResult()
	}
	st := o.deps.States.GetState(userID)
	if st.Pagination == nil {
		return expiredResult()
	}
	sc := &skills.Context{
		Query:       "下一页",
		UserID:      userID,
		ActiveTable: st.ActiveTable,
		Pagination:  st.Pagination,
		Extra:       map[string]any{"navigation": value},
	}
	result := o.dispatch(ctx, "query", sc)
	o.syncState(userID, result)
	return result
}

// updateGuide serves the card edit button: resolve the target record and
// enter the field collection sub-state.
func (o *Orchestrator) updateGuide(ctx context.Context, userID string, value map[string]any) *skills.Result {
	st := o.deps.States.GetState(userID)
	sc := &skills.Context{
		Query:        "修改",
		UserID:       userID,
		LastResult:   st.LastResult,
		ActiveTable:  st.ActiveTable,
		ActiveRecord: st.ActiveRecord,
		Extra:        map[string]any{},
	}
	if recordID, _ := value["record_id"].(string); recordID != "" && sc.ActiveRecord == nil {
		tableID, _ := value["table_id"].(string)
		tableName, _ := value["table_type"].(string)
		sc.ActiveRecord = &state.ActiveRecord{RecordID: recordID, TableID: tableID, TableName: tableName}
	}
	return o.dispatch(ctx, "update", sc)
}

func skillForAction(action string) string {
	switch action {
	case state.ActionCreateRecord:
		return "create"
	case state.ActionDeleteRecord, state.ActionBatchDeleteRecords:
		return "delete"
	case state.ActionCloseRecord, state.ActionBatchCloseRecords:
		return "close"
	case state.ActionCreateReminder:
		return "reminder"
	}
	return "update"
}

func batchText(code string, succeeded, failed, skipped int) string {
	switch code {
	case "batch_all_succeeded":
		return fmt.Sprintf("✅ 批量操作全部成功（%d 项）", succeeded)
	case "batch_all_failed":
		return fmt.Sprintf("❌ 批量操作全部失败（%d 项）", failed+skipped)
	}
	return fmt.Sprintf("⚠️ 批量操作部分成功：成功 %d，失败 %d，跳过 %d", succeeded, failed, skipped)
}

func commitErrorMessage(err error) string {
	switch backend.KindOf(err) {
	case backend.KindTimeout:
		return "请求超时，请稍后重试"
	case backend.KindConnection:
		return "服务连接异常，请稍后重试"
	case backend.KindRecordNotFound:
		return "未找到目标记录，请先查询确认"
	case backend.KindPermissionDenied:
		return "权限不足，请联系管理员"
	}
	return "操作失败，请稍后重试"
}

func expiredResult() *skills.Result {
	return skills.FailResult("callback", "pending_action_expired", ExpiredCallbackMessage)
}

func (o *Orchestrator) recordCallback(ctx context.Context, action, outcome string) {
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordCallback(ctx, action, outcome)
	}
}

func (o *Orchestrator) recordDedup(ctx context.Context, kind string) {
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordDedupHit(ctx, kind)
	}
}
