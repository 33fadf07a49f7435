// Package state holds the per-user conversation state machine: the slotted
// state record, the pending-action confirmation model, and the manager that
// owns every slot transition.
package state

import (
	"fmt"
	"time"
)

// PendingActionStatus is the lifecycle of a proposed mutation.
type PendingActionStatus string

const (
	StatusProposed    PendingActionStatus = "proposed"
	StatusExecuted    PendingActionStatus = "executed"
	StatusInvalidated PendingActionStatus = "invalidated"
)

// OperationStatus is the per-entry execution state of a batch action.
type OperationStatus string

const (
	OpPending   OperationStatus = "pending"
	OpSucceeded OperationStatus = "succeeded"
	OpFailed    OperationStatus = "failed"
	OpSkipped   OperationStatus = "skipped"
)

// Pending action names understood by the callback protocol.
const (
	ActionCreateRecord        = "create_record"
	ActionUpdateRecord        = "update_record"
	ActionUpdateCollectFields = "update_collect_fields"
	ActionCloseRecord         = "close_record"
	ActionDeleteRecord        = "delete_record"
	ActionCreateReminder      = "create_reminder"
	ActionBatchUpdateRecords  = "batch_update_records"
	ActionBatchCloseRecords   = "batch_close_records"
	ActionBatchDeleteRecords  = "batch_delete_records"
	ActionQueryListNavigation = "query_list_navigation"
)

// OperationEntry is one unit of a batch pending action.
type OperationEntry struct {
	Index       int             `json:"index"`
	Payload     map[string]any  `json:"payload"`
	Status      OperationStatus `json:"status"`
	ErrorCode   string          `json:"error_code,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty"`
	ExecutedAt  time.Time       `json:"executed_at,omitempty"`
}

// PendingAction is a proposed mutation awaiting user confirmation.
type PendingAction struct {
	Action     string              `json:"action"`
	Payload    map[string]any      `json:"payload"`
	Operations []OperationEntry    `json:"operations,omitempty"`
	Status     PendingActionStatus `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
	ExpiresAt  time.Time           `json:"expires_at"`
}

// IsBatch reports whether the action carries a dense operation list.
func (p *PendingAction) IsBatch() bool {
	return len(p.Operations) > 0
}

// Expired reports whether the proposal outlived its TTL.
func (p *PendingAction) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// TransitionTo moves the proposal to a terminal status. Only a proposed
// action may transition; terminal states reject every further move.
func (p *PendingAction) TransitionTo(next PendingActionStatus) error {
	if p.Status != StatusProposed {
		return fmt.Errorf("pending action %q: invalid transition %s -> %s", p.Action, p.Status, next)
	}
	if next != StatusExecuted && next != StatusInvalidated {
		return fmt.Errorf("pending action %q: invalid target status %s", p.Action, next)
	}
	p.Status = next
	return nil
}

// PendingOperations returns the entries still awaiting execution.
func (p *PendingAction) PendingOperations() []OperationEntry {
	out := make([]OperationEntry, 0, len(p.Operations))
	for _, op := range p.Operations {
		if op.Status == OpPending {
			out = append(out, op)
		}
	}
	return out
}

// HistoryEntry is one closed pending action kept for auditing.
type HistoryEntry struct {
	Action   string              `json:"action"`
	Status   PendingActionStatus `json:"status"`
	ClosedAt time.Time           `json:"at"`
}

// ActiveTable is the table most recently queried or mutated.
type ActiveTable struct {
	TableID   string    `json:"table_id"`
	TableName string    `json:"table_name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ActiveRecord is the record the conversation currently focuses on.
type ActiveRecord struct {
	RecordID      string         `json:"record_id"`
	RecordSummary string         `json:"record_summary,omitempty"`
	TableID       string         `json:"table_id,omitempty"`
	TableName     string         `json:"table_name,omitempty"`
	Record        map[string]any `json:"record,omitempty"`
	Source        string         `json:"source,omitempty"`
	ExpiresAt     time.Time      `json:"expires_at"`
}

// LastResult keeps the records of the most recent successful query.
type LastResult struct {
	Records      []map[string]any `json:"records"`
	RecordIDs    []string         `json:"record_ids,omitempty"`
	QuerySummary string           `json:"query_summary,omitempty"`
	ExpiresAt    time.Time        `json:"expires_at"`
}

// PendingDelete is the legacy single-record delete slot.
type PendingDelete struct {
	RecordID  string         `json:"record_id"`
	Summary   string         `json:"summary,omitempty"`
	TableID   string         `json:"table_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Pagination is the continuation cursor of a paginated query.
type Pagination struct {
	Tool        string         `json:"tool"`
	Params      map[string]any `json:"params,omitempty"`
	PageToken   string         `json:"page_token,omitempty"`
	CurrentPage int            `json:"current_page"`
	Total       int            `json:"total"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

// ReplyPreferences tunes personalization of outbound text.
type ReplyPreferences struct {
	Tone      string    `json:"tone,omitempty"`
	Length    string    `json:"length,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ConversationState is the per-user slotted state record. Slots expire
// independently; the whole record expires with the session TTL.
type ConversationState struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`

	LastSkill        string            `json:"last_skill,omitempty"`
	LastResult       *LastResult       `json:"last_result,omitempty"`
	ActiveTable      *ActiveTable      `json:"active_table,omitempty"`
	ActiveRecord     *ActiveRecord     `json:"active_record,omitempty"`
	PendingDelete    *PendingDelete    `json:"pending_delete,omitempty"`
	PendingAction    *PendingAction    `json:"pending_action,omitempty"`
	Pagination       *Pagination       `json:"pagination,omitempty"`
	ReplyPreferences *ReplyPreferences `json:"reply_preferences,omitempty"`

	History []HistoryEntry `json:"pending_action_history,omitempty"`
	Extras  map[string]any `json:"extras,omitempty"`
}

// Empty reports whether every slot is cleared, so the record can be dropped.
func (s *ConversationState) Empty() bool {
	return s.LastSkill == "" &&
		s.LastResult == nil &&
		s.ActiveTable == nil &&
		s.ActiveRecord == nil &&
		s.PendingDelete == nil &&
		s.PendingAction == nil &&
		s.Pagination == nil &&
		s.ReplyPreferences == nil &&
		len(s.History) == 0 &&
		len(s.Extras) == 0
}
