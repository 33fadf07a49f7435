// Package intent routes an inbound utterance to a skill: a declarative L0
// rule pass first, then the model planner, then the keyword parser as the
// deterministic floor.
package intent

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
)

// Rule is one declarative L0 entry. Patterns are regular expressions;
// keywords match by substring. A rule fires when any pattern or keyword
// matches and the state condition (if any) holds.
type Rule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns,omitempty"`
	Keywords []string `yaml:"keywords,omitempty"`
	// Requires gates the rule on conversation state:
	// "pending_action", "pending_delete", "pagination".
	Requires string `yaml:"requires,omitempty"`

	Reply    string `yaml:"reply,omitempty"`
	Skill    string `yaml:"skill,omitempty"`
	Chitchat bool   `yaml:"chitchat,omitempty"`

	compiled []*regexp.Regexp
}

// StateView is the slice of conversation state the rule engine can gate on.
type StateView struct {
	HasPendingAction bool
	HasPendingDelete bool
	HasPagination    bool
}

// Outcome is the result of an L0 pass.
type Outcome struct {
	RuleName string
	// Reply, when set, is final: the pipeline answers and stops.
	Reply string
	// Skill, when set, forces routing without consulting the planner.
	Skill string
	// Chitchat hints the router toward the chit-chat skill.
	Chitchat bool
}

// Rules is the compiled L0 rule set. Reloadable in place.
type Rules struct {
	mu     sync.RWMutex
	rules  []Rule
	logger logging.Logger
}

// NewRules compiles the given rule list.
func NewRules(rules []Rule, logger logging.Logger) (*Rules, error) {
	compiled, err := compile(rules)
	if err != nil {
		return nil, err
	}
	return &Rules{rules: compiled, logger: logging.OrNop(logger)}, nil
}

// LoadRules reads a YAML rule file. An empty path yields the built-in set.
func LoadRules(path string, logger logging.Logger) (*Rules, error) {
	rules := builtinRules()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rules file: %w", err)
		}
		var fileRules struct {
			Rules []Rule `yaml:"rules"`
		}
		if err := yaml.Unmarshal(raw, &fileRules); err != nil {
			return nil, fmt.Errorf("parse rules file: %w", err)
		}
		rules = append(rules, fileRules.Rules...)
	}
	return NewRules(rules, logger)
}

func compile(rules []Rule) ([]Rule, error) {
	out := make([]Rule, len(rules))
	copy(out, rules)
	for i := range out {
		out[i].compiled = out[i].compiled[:0]
		for _, pattern := range out[i].Patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %s pattern %q: %w", out[i].Name, pattern, err)
			}
			out[i].compiled = append(out[i].compiled, re)
		}
	}
	return out, nil
}

// Replace swaps in a new rule set atomically.
func (r *Rules) Replace(rules []Rule) error {
	compiled, err := compile(rules)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.rules = compiled
	r.mu.Unlock()
	r.logger.Info("l0 rules replaced, %d rules active", len(compiled))
	return nil
}

// Snapshot returns a copy of the active rule list.
func (r *Rules) Snapshot() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Apply runs the rule set in order and returns the first hit.
func (r *Rules) Apply(query string, view StateView) *Outcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	trimmed := strings.TrimSpace(query)
	for i := range r.rules {
		rule := &r.rules[i]
		if !stateAllows(rule.Requires, view) {
			continue
		}
		if !rule.matches(trimmed) {
			continue
		}
		return &Outcome{
			RuleName: rule.Name,
			Reply:    rule.Reply,
			Skill:    rule.Skill,
			Chitchat: rule.Chitchat,
		}
	}
	return nil
}

func (rule *Rule) matches(query string) bool {
	for _, re := range rule.compiled {
		if re.MatchString(query) {
			return true
		}
	}
	for _, kw := range rule.Keywords {
		if kw != "" && strings.Contains(query, kw) {
			return true
		}
	}
	return false
}

func stateAllows(requires string, view StateView) bool {
	switch requires {
	case "":
		return true
	case "pending_action":
		return view.HasPendingAction
	case "pending_delete":
		return view.HasPendingDelete
	case "pagination":
		return view.HasPagination
	}
	return false
}

// builtinRules is the shipped L0 set: cheap deterministic answers and
// forced routes that must never reach the model.
func builtinRules() []Rule {
	return []Rule{
		{
			Name:     "help",
			Patterns: []string{`^(帮助|help|你能做什么|使用说明)$`},
			Reply: "我可以帮你查询、新增、修改、办结和删除案件、合同与招投标记录，" +
				"也可以设置提醒。例如：查所有案件 / 新增一个案件 / 把某案标记为已结案。",
		},
		{
			Name:     "pagination-continue",
			Patterns: []string{`^(下一页|继续|更多|翻页)$`},
			Requires: "pagination",
			Skill:    "query",
		},
		{
			Name:     "pending-confirm",
			Patterns: []string{`^(确认|确定|是|好的|ok|OK|可以)$`},
			Requires: "pending_action",
			Skill:    "confirm",
		},
		{
			Name:     "pending-cancel",
			Patterns: []string{`^(取消|不要|算了|不用了?)$`},
			Requires: "pending_action",
			Skill:    "cancel",
		},
		{
			Name:     "greeting",
			Patterns: []string{`^(你好|您好|hi|hello|早上好|晚上好|在吗)[!！。~～]*$`},
			Chitchat: true,
		},
		{
			Name:     "thanks",
			Patterns: []string{`^(谢谢|多谢|辛苦了)[!！。~～]*$`},
			Chitchat: true,
		},
	}
}
