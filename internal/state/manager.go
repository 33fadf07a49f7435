package state

import (
	"fmt"
	"strings"
	"time"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/cache"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
)

// TTLConfig carries the slot lifetimes. Zero values fall back to defaults.
type TTLConfig struct {
	Session       time.Duration
	LastResult    time.Duration
	PendingDelete time.Duration
	PendingAction time.Duration
	Pagination    time.Duration
}

func (c TTLConfig) withDefaults() TTLConfig {
	if c.Session <= 0 {
		c.Session = 30 * time.Minute
	}
	if c.LastResult <= 0 {
		c.LastResult = 10 * time.Minute
	}
	if c.PendingDelete <= 0 {
		c.PendingDelete = 5 * time.Minute
	}
	if c.PendingAction <= 0 {
		c.PendingAction = 5 * time.Minute
	}
	if c.Pagination <= 0 {
		c.Pagination = 10 * time.Minute
	}
	return c
}

const historyLimit = 8

// Manager wraps the store with slot-level operations. It is the sole writer
// of conversation state; skills read snapshots taken at request start.
type Manager struct {
	store  Store
	ttl    TTLConfig
	clock  cache.Clock
	logger logging.Logger
}

// NewManager builds a manager over store.
func NewManager(store Store, ttl TTLConfig, clock cache.Clock, logger logging.Logger) *Manager {
	if clock == nil {
		clock = cache.SystemClock()
	}
	return &Manager{
		store:  store,
		ttl:    ttl.withDefaults(),
		clock:  clock,
		logger: logging.OrNop(logger),
	}
}

// GetState loads (or lazily creates) the user's state with expired slots
// already cleared.
func (m *Manager) GetState(userID string) *ConversationState {
	now := m.clock.Now()
	st, ok := m.store.Get(userID)
	if !ok || (!st.ExpiresAt.IsZero() && now.After(st.ExpiresAt)) {
		st = &ConversationState{
			UserID:    userID,
			CreatedAt: now,
			Extras:    map[string]any{},
		}
	}
	m.expireSlots(st, now)
	st.UpdatedAt = now
	st.ExpiresAt = now.Add(m.ttl.Session)
	_ = m.store.Set(userID, st)
	return st
}

// expireSlots clears every slot past its expiry. An expired pending action is
// invalidated and appended to history before the slot is dropped.
func (m *Manager) expireSlots(st *ConversationState, now time.Time) {
	if st.PendingAction != nil && st.PendingAction.Expired(now) {
		if st.PendingAction.Status == StatusProposed {
			st.PendingAction.Status = StatusInvalidated
		}
		m.appendHistory(st, st.PendingAction, now)
		st.PendingAction = nil
	}
	if st.PendingDelete != nil && expired(st.PendingDelete.ExpiresAt, now) {
		st.PendingDelete = nil
	}
	if st.LastResult != nil && expired(st.LastResult.ExpiresAt, now) {
		st.LastResult = nil
	}
	if st.Pagination != nil && expired(st.Pagination.ExpiresAt, now) {
		st.Pagination = nil
	}
	if st.ActiveRecord != nil && expired(st.ActiveRecord.ExpiresAt, now) {
		st.ActiveRecord = nil
	}
	if st.ActiveTable != nil && expired(st.ActiveTable.ExpiresAt, now) {
		st.ActiveTable = nil
	}
	if st.ReplyPreferences != nil && expired(st.ReplyPreferences.ExpiresAt, now) {
		st.ReplyPreferences = nil
	}
}

func expired(at time.Time, now time.Time) bool {
	return !at.IsZero() && now.After(at)
}

func (m *Manager) appendHistory(st *ConversationState, pending *PendingAction, now time.Time) {
	st.History = append(st.History, HistoryEntry{
		Action:   pending.Action,
		Status:   pending.Status,
		ClosedAt: now,
	})
	if len(st.History) > historyLimit {
		st.History = st.History[len(st.History)-historyLimit:]
	}
}

func (m *Manager) save(userID string, st *ConversationState) {
	if st.Empty() {
		_ = m.store.Delete(userID)
		return
	}
	if err := m.store.Set(userID, st); err != nil {
		m.logger.Error("state save failed for %s: %v", userID, err)
	}
}

// SetPendingAction replaces the user's pending action with a new proposal.
// An unexpired previous proposal is invalidated into history first.
func (m *Manager) SetPendingAction(userID, action string, payload map[string]any, operations []OperationEntry, ttl time.Duration) *PendingAction {
	now := m.clock.Now()
	st := m.GetState(userID)
	if st.PendingAction != nil {
		if st.PendingAction.Status == StatusProposed {
			st.PendingAction.Status = StatusInvalidated
		}
		m.appendHistory(st, st.PendingAction, now)
	}
	if ttl <= 0 {
		ttl = m.ttl.PendingAction
	}
	for i := range operations {
		operations[i].Index = i
		if operations[i].Status == "" {
			operations[i].Status = OpPending
		}
	}
	pending := &PendingAction{
		Action:     action,
		Payload:    payload,
		Operations: operations,
		Status:     StatusProposed,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	st.PendingAction = pending
	m.save(userID, st)
	return pending
}

// GetPendingAction returns the live pending action, or nil after
// auto-invalidating an expired one.
func (m *Manager) GetPendingAction(userID string) *PendingAction {
	st := m.GetState(userID)
	return st.PendingAction
}

// ConfirmPendingAction transitions the pending action to executed and moves
// it to history.
func (m *Manager) ConfirmPendingAction(userID string) error {
	return m.closePendingAction(userID, StatusExecuted)
}

// CancelPendingAction transitions the pending action to invalidated and moves
// it to history.
func (m *Manager) CancelPendingAction(userID string) error {
	return m.closePendingAction(userID, StatusInvalidated)
}

func (m *Manager) closePendingAction(userID string, status PendingActionStatus) error {
	now := m.clock.Now()
	st := m.GetState(userID)
	if st.PendingAction == nil {
		return fmt.Errorf("no pending action for %s", userID)
	}
	if err := st.PendingAction.TransitionTo(status); err != nil {
		return err
	}
	m.appendHistory(st, st.PendingAction, now)
	st.PendingAction = nil
	m.save(userID, st)
	return nil
}

// UpdatePendingActionOperations persists batch progress without changing the
// proposal's lifecycle status.
func (m *Manager) UpdatePendingActionOperations(userID string, operations []OperationEntry) error {
	st := m.GetState(userID)
	if st.PendingAction == nil {
		return fmt.Errorf("no pending action for %s", userID)
	}
	st.PendingAction.Operations = operations
	m.save(userID, st)
	return nil
}

// SetActiveRecord stores the conversation's focused record. The summary is
// derived from identifier fields when absent.
func (m *Manager) SetActiveRecord(userID string, rec ActiveRecord) {
	now := m.clock.Now()
	st := m.GetState(userID)
	if rec.RecordSummary == "" && rec.Record != nil {
		rec.RecordSummary = deriveRecordSummary(rec.Record)
	}
	rec.ExpiresAt = now.Add(m.ttl.Session)
	st.ActiveRecord = &rec
	if rec.TableID != "" || rec.TableName != "" {
		st.ActiveTable = &ActiveTable{
			TableID:   rec.TableID,
			TableName: rec.TableName,
			ExpiresAt: now.Add(m.ttl.Session),
		}
	}
	m.save(userID, st)
}

// ClearActiveRecord drops the focused record.
func (m *Manager) ClearActiveRecord(userID string) {
	st := m.GetState(userID)
	st.ActiveRecord = nil
	m.save(userID, st)
}

// SetActiveTable stores the conversation's focused table.
func (m *Manager) SetActiveTable(userID, tableID, tableName string) {
	now := m.clock.Now()
	st := m.GetState(userID)
	st.ActiveTable = &ActiveTable{
		TableID:   tableID,
		TableName: tableName,
		ExpiresAt: now.Add(m.ttl.Session),
	}
	m.save(userID, st)
}

// SetLastResult stores the records of the latest successful query.
func (m *Manager) SetLastResult(userID string, records []map[string]any, querySummary string) {
	now := m.clock.Now()
	st := m.GetState(userID)
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if id, ok := rec["record_id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	st.LastResult = &LastResult{
		Records:      records,
		RecordIDs:    ids,
		QuerySummary: querySummary,
		ExpiresAt:    now.Add(m.ttl.LastResult),
	}
	m.save(userID, st)
}

// SetPagination stores a continuation cursor.
func (m *Manager) SetPagination(userID string, p Pagination) {
	now := m.clock.Now()
	st := m.GetState(userID)
	p.ExpiresAt = now.Add(m.ttl.Pagination)
	st.Pagination = &p
	m.save(userID, st)
}

// ClearPagination drops the continuation cursor.
func (m *Manager) ClearPagination(userID string) {
	st := m.GetState(userID)
	st.Pagination = nil
	m.save(userID, st)
}

// SetPendingDelete stores the legacy single-record delete slot.
func (m *Manager) SetPendingDelete(userID string, pd PendingDelete) {
	now := m.clock.Now()
	st := m.GetState(userID)
	pd.ExpiresAt = now.Add(m.ttl.PendingDelete)
	st.PendingDelete = &pd
	m.save(userID, st)
}

// ClearPendingDelete drops the delete slot.
func (m *Manager) ClearPendingDelete(userID string) {
	st := m.GetState(userID)
	st.PendingDelete = nil
	m.save(userID, st)
}

// SetReplyPreferences stores tone/length preferences.
func (m *Manager) SetReplyPreferences(userID, tone, length string) {
	now := m.clock.Now()
	st := m.GetState(userID)
	st.ReplyPreferences = &ReplyPreferences{
		Tone:      tone,
		Length:    length,
		ExpiresAt: now.Add(m.ttl.Session),
	}
	m.save(userID, st)
}

// SetLastSkill records the name of the last successfully invoked skill.
func (m *Manager) SetLastSkill(userID, skill string) {
	st := m.GetState(userID)
	st.LastSkill = skill
	m.save(userID, st)
}

// Sweep expires whole sessions and returns the number of active users left.
func (m *Manager) Sweep() int {
	now := m.clock.Now()
	SweepExpired(m.store, now)
	return len(m.store.UserIDs())
}

// deriveRecordSummary picks a human-readable identifier out of a record map.
func deriveRecordSummary(record map[string]any) string {
	for _, key := range []string{"案号", "项目ID", "合同编号", "标书编号"} {
		if v, ok := record[key]; ok {
			if text := strings.TrimSpace(fmt.Sprintf("%v", v)); text != "" && text != "<nil>" {
				return text
			}
		}
	}
	if fields, ok := record["fields"].(map[string]any); ok {
		return deriveRecordSummary(fields)
	}
	return ""
}
