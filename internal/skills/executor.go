package skills

import (
	"context"
	"fmt"
	"time"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/backend"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/cache"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/config"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/schema"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/state"
)

// ExecOutcome is the result of committing one operation payload.
type ExecOutcome struct {
	RecordID  string
	RecordURL string
	Summary   string
}

// Executor commits confirmed mutation payloads against the record store. It
// is the single write path for the callback protocol, both single and batch.
type Executor struct {
	client    backend.Client
	schemas   *schema.Cache
	provider  *config.Provider
	business  *cache.IdempotencyStore
	reminders *ReminderScheduler
	logger    logging.Logger
}

// NewExecutor builds the executor. reminders may be nil.
func NewExecutor(client backend.Client, schemas *schema.Cache, provider *config.Provider, business *cache.IdempotencyStore, reminders *ReminderScheduler, logger logging.Logger) *Executor {
	return &Executor{
		client:    client,
		schemas:   schemas,
		provider:  provider,
		business:  business,
		reminders: reminders,
		logger:    logging.OrNop(logger),
	}
}

// Execute commits one payload for the given action name. The same payload
// with the same business key produces at most one backend write.
func (e *Executor) Execute(ctx context.Context, action string, payload map[string]any) (*ExecOutcome, error) {
	tableID, _ := payload["table_id"].(string)
	tableName, _ := payload["table_name"].(string)
	recordID, _ := payload["record_id"].(string)
	fields, _ := payload["fields"].(map[string]any)

	if profile := profileForTable(e.provider.Current(), tableName); profile.ReadOnly {
		return nil, backend.NewError(backend.KindPermissionDenied, action, ReadOnlyTableMessage, nil)
	}

	key := cache.BusinessKey(tableID, recordID, fields)
	if e.business != nil && e.business.IsDuplicate(key) {
		e.logger.Info("business key %s already executed, skipping write", key)
		summary, _ := payload["summary"].(string)
		return &ExecOutcome{RecordID: recordID, Summary: summary}, nil
	}

	coerced, err := e.coerce(ctx, tableID, fields)
	if err != nil {
		return nil, err
	}

	outcome, err := e.dispatch(ctx, action, tableID, recordID, coerced, key)
	if err != nil {
		if backend.KindOf(err) == backend.KindFieldNotFound && e.schemas != nil {
			e.schemas.Invalidate(tableID)
		}
		return nil, err
	}

	if e.business != nil {
		e.business.Mark(key)
	}
	if summary, ok := payload["summary"].(string); ok && outcome.Summary == "" {
		outcome.Summary = summary
	}

	e.scheduleReminders(action, payload, coerced, outcome)
	return outcome, nil
}

func (e *Executor) dispatch(ctx context.Context, action, tableID, recordID string, fields map[string]any, key string) (*ExecOutcome, error) {
	switch action {
	case state.ActionCreateRecord:
		result, err := e.client.CreateRecord(ctx, tableID, fields, key)
		if err != nil {
			return nil, err
		}
		return &ExecOutcome{RecordID: result.RecordID, RecordURL: result.RecordURL}, nil
	case state.ActionUpdateRecord, state.ActionCloseRecord,
		state.ActionBatchUpdateRecords, state.ActionBatchCloseRecords:
		result, err := e.client.UpdateRecord(ctx, tableID, recordID, fields, key)
		if err != nil {
			return nil, err
		}
		return &ExecOutcome{RecordID: result.RecordID, RecordURL: result.RecordURL}, nil
	case state.ActionDeleteRecord, state.ActionBatchDeleteRecords:
		if err := e.client.DeleteRecord(ctx, tableID, recordID, key); err != nil {
			return nil, err
		}
		return &ExecOutcome{RecordID: recordID}, nil
	default:
		return nil, backend.NewError(backend.KindGeneral, action, "unsupported action", nil)
	}
}

func (e *Executor) coerce(ctx context.Context, tableID string, fields map[string]any) (map[string]any, error) {
	if len(fields) == 0 || e.schemas == nil {
		return fields, nil
	}
	tableSchema, err := e.schemas.Get(ctx, tableID)
	if err != nil {
		// a stale schema must not block a confirmed write
		e.logger.Warn("schema unavailable for %s, writing fields uncoerced: %v", tableID, err)
		return fields, nil
	}
	return schema.CoerceFields(tableSchema, fields)
}

// scheduleReminders emits auto-reminders for date fields written by a create
// or update, per the table's reminder rules. Close with policy close_all
// cancels the record's reminders instead.
func (e *Executor) scheduleReminders(action string, payload, fields map[string]any, outcome *ExecOutcome) {
	if e.reminders == nil {
		return
	}
	tableName, _ := payload["table_name"].(string)
	profile := profileForTable(e.provider.Current(), tableName)

	switch action {
	case state.ActionCloseRecord, state.ActionBatchCloseRecords:
		policy, _ := payload["reminder_policy"].(string)
		e.reminders.CancelForRecord(outcome.RecordID, policy)
		return
	case state.ActionDeleteRecord, state.ActionBatchDeleteRecords:
		e.reminders.CancelForRecord(outcome.RecordID, "close_all")
		return
	}

	for _, rule := range profile.Reminders {
		value, ok := fields[rule.Field]
		if !ok {
			continue
		}
		due, ok := reminderTime(value, rule.DaysBefore)
		if !ok {
			continue
		}
		e.reminders.Schedule(Reminder{
			RecordID:  outcome.RecordID,
			TableName: tableName,
			Field:     rule.Field,
			Summary:   outcome.Summary,
			RemindAt:  due,
		})
	}
}

// reminderTime computes {date - daysBefore} at 09:00 local; past times are
// skipped.
func reminderTime(value any, daysBefore int) (time.Time, bool) {
	var ms int64
	switch v := value.(type) {
	case int64:
		ms = v
	case float64:
		ms = int64(v)
	default:
		return time.Time{}, false
	}
	if ms < 1e12 {
		return time.Time{}, false
	}
	day := time.UnixMilli(ms).In(agentZone).AddDate(0, 0, -daysBefore)
	due := time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, agentZone)
	if due.Before(time.Now().In(agentZone)) {
		return time.Time{}, false
	}
	return due, true
}

// BatchReport summarizes a batch commit pass.
type BatchReport struct {
	Succeeded int
	Failed    int
	Skipped   int
	Code      string // batch_all_succeeded | batch_partial_success | batch_all_failed
	Retryable bool
}

// ExecuteBatch runs the pending entries of a batch action strictly in order.
// The first failure marks its entry failed and all remaining pending entries
// skipped. persist is called after every entry so progress survives crashes.
func (e *Executor) ExecuteBatch(ctx context.Context, action string, operations []state.OperationEntry, persist func([]state.OperationEntry)) ([]state.OperationEntry, BatchReport) {
	failed := false
	for i := range operations {
		op := &operations[i]
		if op.Status != state.OpPending {
			continue
		}
		if failed {
			op.Status = state.OpSkipped
			persistOps(persist, operations)
			continue
		}
		outcome, err := e.Execute(ctx, action, op.Payload)
		op.ExecutedAt = time.Now()
		if err != nil {
			op.Status = state.OpFailed
			op.ErrorCode = string(backend.KindOf(err))
			op.ErrorDetail = err.Error()
			failed = true
			e.logger.Warn("batch %s op %d failed: %v", action, op.Index, err)
		} else {
			op.Status = state.OpSucceeded
			op.ErrorCode = ""
			op.ErrorDetail = ""
			if outcome.RecordID != "" {
				op.Payload["record_id"] = outcome.RecordID
			}
		}
		persistOps(persist, operations)
	}

	report := BatchReport{}
	for _, op := range operations {
		switch op.Status {
		case state.OpSucceeded:
			report.Succeeded++
		case state.OpFailed:
			report.Failed++
		case state.OpSkipped:
			report.Skipped++
		}
	}
	switch {
	case report.Failed == 0 && report.Skipped == 0:
		report.Code = "batch_all_succeeded"
	case report.Succeeded == 0:
		report.Code = "batch_all_failed"
	default:
		report.Code = "batch_partial_success"
	}
	report.Retryable = report.Failed > 0 || report.Skipped > 0
	return operations, report
}

// ResetForRetry resets failed and skipped entries to pending. Succeeded
// entries are never touched.
func ResetForRetry(operations []state.OperationEntry) []state.OperationEntry {
	for i := range operations {
		if operations[i].Status == state.OpFailed || operations[i].Status == state.OpSkipped {
			operations[i].Status = state.OpPending
			operations[i].ErrorCode = ""
			operations[i].ErrorDetail = ""
		}
	}
	return operations
}

func persistOps(persist func([]state.OperationEntry), ops []state.OperationEntry) {
	if persist != nil {
		persist(ops)
	}
}

// OperationLine renders one batch entry for progress cards.
func OperationLine(op state.OperationEntry) string {
	summary, _ := op.Payload["summary"].(string)
	if summary == "" {
		summary, _ = op.Payload["record_id"].(string)
	}
	return fmt.Sprintf("%d. %s [%s]", op.Index+1, summary, op.Status)
}
