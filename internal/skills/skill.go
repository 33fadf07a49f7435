// Package skills holds the agent's capability units: query, the mutation
// family, reminders, and chit-chat. Each skill consumes a Context snapshot
// and returns a Result the renderer and state sync consume.
package skills

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/state"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/timeparse"
)

// Context is the per-request snapshot a skill executes against.
type Context struct {
	Query  string
	UserID string

	UserName string
	OpenID   string

	LastSkill  string
	LastResult *state.LastResult

	ActiveTable   *state.ActiveTable
	ActiveRecord  *state.ActiveRecord
	PendingAction *state.PendingAction
	Pagination    *state.Pagination

	DateRange *timeparse.Range

	// Extra carries resolved routing context: planner plan, route label,
	// chat metadata.
	Extra map[string]any
}

// Result is the outcome of one skill invocation.
type Result struct {
	Success   bool
	SkillName string
	// Data is the structured payload: records, pagination, pending_action,
	// error_code.
	Data      map[string]any
	Message   string
	ReplyText string
	ReplyType string // "text" or "card"
	ErrorCode string
}

// TextResult builds a plain text success result.
func TextResult(skill, reply string) *Result {
	return &Result{
		Success:   true,
		SkillName: skill,
		ReplyText: reply,
		ReplyType: "text",
		Data:      map[string]any{},
	}
}

// FailResult builds a failure result with a stable error code.
func FailResult(skill, errorCode, reply string) *Result {
	return &Result{
		Success:   false,
		SkillName: skill,
		ReplyText: reply,
		ReplyType: "text",
		ErrorCode: errorCode,
		Data:      map[string]any{"error_code": errorCode},
	}
}

// Skill is one capability unit.
type Skill interface {
	Name() string
	Execute(ctx context.Context, sc *Context) (*Result, error)
}

// Registry maps skill names to implementations.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]Skill)}
}

// Register adds a skill, replacing any previous one with the same name.
func (r *Registry) Register(s Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[s.Name()] = s
}

// Get returns the skill registered under name.
func (r *Registry) Get(name string) (Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	if !ok {
		return nil, fmt.Errorf("unknown skill %q", name)
	}
	return s, nil
}

// Names lists the registered skill names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.skills))
	for name := range r.skills {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
