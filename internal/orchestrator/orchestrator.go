// Package orchestrator runs the message pipeline: per-user serialization,
// cost guard, L0 rules, planner routing, skill dispatch, state sync, and
// rendering. It also owns the card callback protocol.
package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/cache"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/config"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/costs"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/intent"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/llm"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/memory"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/render"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/session"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/skills"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/state"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/timeparse"
)

var agentZone = time.FixedZone("UTC+8", 8*3600)

// default per-1K token prices used when computing call cost from usage.
const (
	inputPricePerK  = 0.00015
	outputPricePerK = 0.0006
)

// Metrics is the slice of the collector the pipeline reports to.
type Metrics interface {
	RecordRequest(ctx context.Context, skill, status string, latency time.Duration)
	RecordLLMRequest(ctx context.Context, model, status string, latency time.Duration, inputTokens, outputTokens int, cost float64)
	RecordCallback(ctx context.Context, action, outcome string)
	RecordDedupHit(ctx context.Context, kind string)
	RecordIntentParse(ctx context.Context, method string, duration time.Duration, confidence float64)
}

// Progress emits batch execution progress to the channel.
type Progress interface {
	Start(userID string, total int)
	Complete(userID string, succeeded, failed int)
}

// Deps wires the pipeline's collaborators.
type Deps struct {
	Registry   *skills.Registry
	Executor   *skills.Executor
	States     *state.Manager
	Provider   *config.Provider
	Planner    *intent.Planner
	Rules      *intent.Rules
	Renderer   *render.Renderer
	Transcript *session.Transcript
	Journal    *memory.Journal
	Monitor    *costs.Monitor
	Usage      *costs.UsageLogger
	Metrics    Metrics
	// CallbackDedup is the 600s semantic dedup store for card callbacks.
	CallbackDedup *cache.IdempotencyStore
	Progress      Progress
	Clock         cache.Clock
	Logger        logging.Logger
}

// Orchestrator is the per-process message pipeline.
type Orchestrator struct {
	deps   Deps
	locks  *userLocks
	logger logging.Logger
	// inflight guards one concurrent dispatch per callback key.
	inflight *inflightGuard
	// sessions holds the live conversation count from the latest sweep.
	sessions atomic.Int64
}

// New builds the orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = cache.SystemClock()
	}
	return &Orchestrator{
		deps:     deps,
		locks:    newUserLocks(),
		logger:   logging.OrNop(deps.Logger),
		inflight: newInflightGuard(),
	}
}

// Inbound is one channel event addressed to the pipeline. OpenID is the
// sender's channel identity; ChatID/ChatType scope group conversations.
type Inbound struct {
	OpenID   string
	ChatID   string
	ChatType string
	UserName string
	Text     string
}

// HandleEvent routes a channel event into the pipeline. Group chats get a
// composite conversation key so each member keeps an isolated session.
func (o *Orchestrator) HandleEvent(ctx context.Context, in Inbound) *render.RenderedResponse {
	userID := in.OpenID
	if in.ChatType == "group" && in.ChatID != "" {
		userID = fmt.Sprintf("channel:group:%s:user:%s", in.ChatID, in.OpenID)
	}
	return o.handle(ctx, userID, in.OpenID, in.UserName, in.Text)
}

// HandleMessage runs the full pipeline for one inbound direct message. The
// user id doubles as the channel open id.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID, userName, query string) *render.RenderedResponse {
	return o.handle(ctx, userID, userID, userName, query)
}

func (o *Orchestrator) handle(ctx context.Context, userID, openID, userName, query string) *render.RenderedResponse {
	requestID := uuid.NewString()
	started := o.deps.Clock.Now()

	release := o.locks.Acquire(userID)
	defer release()

	o.sessions.Store(int64(o.deps.States.Sweep()))
	o.locks.Sweep(30 * time.Minute)

	d := o.deps
	if d.Monitor != nil && !d.Monitor.Allow() {
		o.logger.Warn("request %s blocked by cost guard", requestID)
		return o.finish(ctx, userID, requestID, started, nil,
			skills.FailResult("guard", "budget_exhausted", costs.CircuitBreakerMessage))
	}

	if d.Transcript != nil {
		d.Transcript.Append(userID, "user", query)
	}

	st := d.States.GetState(userID)

	// text confirm/cancel against a live proposal short-circuits routing
	if st.PendingAction != nil {
		if skills.IsConfirmText(query) {
			return o.finish(ctx, userID, requestID, started, st, o.commitPending(ctx, userID, "confirm"))
		}
		if skills.IsCancelText(query) {
			return o.finish(ctx, userID, requestID, started, st, o.commitPending(ctx, userID, "cancel"))
		}
	}

	skillName := ""
	var plan *intent.Plan
	if d.Rules != nil {
		view := intent.StateView{
			HasPendingAction: st.PendingAction != nil,
			HasPendingDelete: st.PendingDelete != nil,
			HasPagination:    st.Pagination != nil,
		}
		if out := d.Rules.Apply(query, view); out != nil {
			o.logger.Debug("request %s matched l0 rule %s", requestID, out.RuleName)
			switch {
			case out.Reply != "":
				return o.finish(ctx, userID, requestID, started, st, skills.TextResult("l0", out.Reply))
			case out.Skill == "confirm" || out.Skill == "cancel":
				return o.finish(ctx, userID, requestID, started, st, o.commitPending(ctx, userID, out.Skill))
			case out.Skill != "":
				skillName = out.Skill
			case out.Chitchat:
				skillName = "chitchat"
			}
		}
	}

	if skillName == "" {
		var transcript []llm.Message
		if d.Transcript != nil {
			transcript = d.Transcript.Messages(userID)
		}
		planStarted := d.Clock.Now()
		plan = d.Planner.Plan(ctx, query, transcript)
		skillName = plan.Skill
		if d.Metrics != nil {
			d.Metrics.RecordIntentParse(ctx, plan.Method, d.Clock.Now().Sub(planStarted), plan.Confidence)
		}
		o.recordPlanUsage(ctx, userID, plan)
	}

	sc := o.buildContext(userID, openID, userName, query, st, plan)
	result := o.dispatch(ctx, skillName, sc)
	o.syncState(userID, result)
	return o.finish(ctx, userID, requestID, started, st, result)
}

func (o *Orchestrator) buildContext(userID, openID, userName, query string, st *state.ConversationState, plan *intent.Plan) *skills.Context {
	sc := &skills.Context{
		Query:         query,
		UserID:        userID,
		OpenID:        openID,
		UserName:      userName,
		LastSkill:     st.LastSkill,
		LastResult:    st.LastResult,
		ActiveTable:   st.ActiveTable,
		ActiveRecord:  st.ActiveRecord,
		PendingAction: st.PendingAction,
		Pagination:    st.Pagination,
		DateRange:     timeparse.Parse(query, o.deps.Clock.Now().In(agentZone)),
		Extra:         map[string]any{},
	}
	if plan != nil {
		sc.Extra["intent"] = plan.Intent
		sc.Extra["intent_method"] = plan.Method
		if plan.Table != "" {
			sc.Extra["table_hint"] = plan.Table
		}
	}
	return sc
}

func (o *Orchestrator) dispatch(ctx context.Context, skillName string, sc *skills.Context) *skills.Result {
	if skillName == "" {
		skillName = "chitchat"
	}
	skill, err := o.deps.Registry.Get(skillName)
	if err != nil {
		o.logger.Error("no skill for route %s: %v", skillName, err)
		return skills.FailResult(skillName, "general", "抱歉，暂时无法处理这个请求")
	}
	result, err := skill.Execute(ctx, sc)
	if err != nil {
		o.logger.Error("skill %s failed: %v", skillName, err)
		return skills.FailResult(skillName, "general", "抱歉，处理出现问题，请稍后重试")
	}
	return result
}

// syncState persists the result's state surface: last_result, active table
// and record, pagination, last_skill. Pending slots are written by the
// mutation skills themselves.
func (o *Orchestrator) syncState(userID string, result *skills.Result) {
	if result == nil || !result.Success {
		return
	}
	d := o.deps
	data := result.Data

	if records, ok := data["records"].([]map[string]any); ok {
		summary, _ := data["query_summary"].(string)
		d.States.SetLastResult(userID, records, summary)

		tableID, _ := data["table_id"].(string)
		tableName, _ := data["table_name"].(string)
		if tableID != "" {
			d.States.SetActiveTable(userID, tableID, tableName)
		}
		if len(records) == 1 && summary != "table_disambiguation" {
			recordID, _ := records[0]["record_id"].(string)
			fields, _ := records[0]["fields"].(map[string]any)
			if recordID != "" {
				d.States.SetActiveRecord(userID, state.ActiveRecord{
					RecordID:  recordID,
					TableID:   tableID,
					TableName: tableName,
					Record:    fields,
					Source:    "query",
				})
			}
		}
	}

	if page, ok := data["pagination"].(map[string]any); ok {
		hasMore, _ := page["has_more"].(bool)
		token, _ := page["page_token"].(string)
		if hasMore && token != "" {
			tool, _ := page["tool"].(string)
			params, _ := page["params"].(map[string]any)
			total, _ := page["total"].(int)
			d.States.SetPagination(userID, state.Pagination{
				Tool:      tool,
				Params:    params,
				PageToken: token,
				Total:     total,
			})
		} else {
			d.States.ClearPagination(userID)
		}
	}

	d.States.SetLastSkill(userID, result.SkillName)
}

// finish renders, personalizes, and emits the trailing bookkeeping.
func (o *Orchestrator) finish(ctx context.Context, userID, requestID string, started time.Time, st *state.ConversationState, result *skills.Result) *render.RenderedResponse {
	d := o.deps
	resp := d.Renderer.Render(result)
	resp.Meta["request_id"] = requestID

	if st != nil && d.Provider != nil && d.Provider.Current().Render.Personalization {
		if skip, _ := result.Data["skip_personalization"].(bool); !skip {
			render.Personalize(resp, st.ReplyPreferences)
		}
	}

	if d.Transcript != nil {
		d.Transcript.Append(userID, "assistant", resp.TextFallback)
	}
	if d.Journal != nil {
		d.Journal.Append(memory.Event{
			UserID: userID,
			Kind:   "reply",
			Skill:  result.SkillName,
			Data:   map[string]any{"success": result.Success},
		})
	}

	latency := d.Clock.Now().Sub(started)
	status := "ok"
	if !result.Success {
		status = result.ErrorCode
		if status == "" {
			status = "error"
		}
	}
	if d.Metrics != nil {
		d.Metrics.RecordRequest(ctx, result.SkillName, status, latency)
	}
	o.logger.Info("request %s user=%s skill=%s status=%s latency=%s",
		requestID, userID, result.SkillName, status, latency)
	return resp
}

func (o *Orchestrator) recordPlanUsage(ctx context.Context, userID string, plan *intent.Plan) {
	if plan == nil || plan.Usage == nil {
		return
	}
	d := o.deps
	cost := callCost(plan.Usage)
	if d.Monitor != nil {
		d.Monitor.Record("planner", cost)
	}
	if d.Metrics != nil {
		d.Metrics.RecordLLMRequest(ctx, "planner", "ok", 0, plan.Usage.PromptTokens, plan.Usage.CompletionTokens, cost)
	}
	if d.Usage != nil {
		d.Usage.Write(costs.UsageRecord{
			UserID:       userID,
			Skill:        "planner",
			InputTokens:  plan.Usage.PromptTokens,
			OutputTokens: plan.Usage.CompletionTokens,
			Cost:         cost,
			Status:       "ok",
		})
	}
}

func callCost(usage *llm.Usage) float64 {
	if usage == nil {
		return 0
	}
	return float64(usage.PromptTokens)/1000*inputPricePerK +
		float64(usage.CompletionTokens)/1000*outputPricePerK
}

// ActiveSessions reports the stored conversation count observed by the most
// recent sweep. The sessions gauge reads it on each scrape.
func (o *Orchestrator) ActiveSessions() int64 { return o.sessions.Load() }
