package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/backend"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/cache"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/config"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/costs"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/intent"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/llm"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/render"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/schema"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/session"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/skills"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/state"
)

// stubBackend is a minimal backend.Client for pipeline tests.
type stubBackend struct {
	tables []backend.TableInfo
	fields []backend.FieldMeta

	createCalls int
	updateCalls int
	deleteCalls int
	updateFn    func(recordID string) (*backend.WriteResult, error)

	personFields []string
	personOpenID string
	personName   string
	personFn     func(field string) (*backend.SearchResult, error)
}

func (s *stubBackend) ListTables(context.Context) ([]backend.TableInfo, error) {
	return s.tables, nil
}

func (s *stubBackend) ListFields(context.Context, string) ([]backend.FieldMeta, error) {
	return s.fields, nil
}

func (s *stubBackend) Search(context.Context, backend.SearchOptions) (*backend.SearchResult, error) {
	return &backend.SearchResult{}, nil
}

func (s *stubBackend) SearchExact(context.Context, string, string, any) (*backend.SearchResult, error) {
	return &backend.SearchResult{}, nil
}

func (s *stubBackend) SearchKeyword(context.Context, string, string, []string) (*backend.SearchResult, error) {
	return &backend.SearchResult{}, nil
}

func (s *stubBackend) SearchPerson(_ context.Context, _, field, openID, userName string) (*backend.SearchResult, error) {
	s.personFields = append(s.personFields, field)
	s.personOpenID = openID
	s.personName = userName
	if s.personFn != nil {
		return s.personFn(field)
	}
	return &backend.SearchResult{}, nil
}

func (s *stubBackend) SearchDateRange(context.Context, string, string, string, string, string, string) (*backend.SearchResult, error) {
	return &backend.SearchResult{}, nil
}

func (s *stubBackend) SearchAdvanced(context.Context, string, []backend.Condition, backend.Conjunction) (*backend.SearchResult, error) {
	return &backend.SearchResult{}, nil
}

func (s *stubBackend) GetRecord(_ context.Context, _, recordID string) (*backend.Record, error) {
	return &backend.Record{RecordID: recordID}, nil
}

func (s *stubBackend) CreateRecord(context.Context, string, map[string]any, string) (*backend.WriteResult, error) {
	s.createCalls++
	return &backend.WriteResult{RecordID: "rec_new"}, nil
}

func (s *stubBackend) UpdateRecord(_ context.Context, _, recordID string, _ map[string]any, _ string) (*backend.WriteResult, error) {
	s.updateCalls++
	if s.updateFn != nil {
		return s.updateFn(recordID)
	}
	return &backend.WriteResult{RecordID: recordID}, nil
}

func (s *stubBackend) DeleteRecord(context.Context, string, string, string) error {
	s.deleteCalls++
	return nil
}

type testProgress struct {
	starts    int
	completes int
}

func (p *testProgress) Start(string, int)         { p.starts++ }
func (p *testProgress) Complete(string, int, int) { p.completes++ }

type harness struct {
	orch     *Orchestrator
	states   *state.Manager
	stub     *stubBackend
	monitor  *costs.Monitor
	progress *testProgress
}

func newHarness(t *testing.T, planner, slots []string) *harness {
	t.Helper()

	stub := &stubBackend{
		tables: []backend.TableInfo{{TableID: "tbl_case", TableName: "案件项目总库"}},
		fields: []backend.FieldMeta{
			{Name: "案号", Type: backend.FieldTypeText},
			{Name: "委托人", Type: backend.FieldTypeText},
			{Name: "案件状态", Type: backend.FieldTypeSingleSelect},
		},
	}

	cfg, err := config.Load("")
	require.NoError(t, err)
	provider := config.NewProvider(cfg, "", nil)

	states := state.NewManager(state.NewMemoryStore(), state.TTLConfig{}, nil, nil)
	schemas, err := schema.NewCache(stub, 16, time.Minute, nil, nil)
	require.NoError(t, err)

	business, err := cache.NewIdempotencyStore(10*time.Minute, 128, nil)
	require.NoError(t, err)
	callbackDedup, err := cache.NewIdempotencyStore(600*time.Second, 128, nil)
	require.NoError(t, err)

	slotClient := &llm.MockClient{Responses: slots}
	deps := skills.NewMutationDeps(stub, schemas, slotClient, provider, states, nil)

	reg := skills.NewRegistry()
	reg.Register(skills.NewQuerySkill(stub, schemas, nil, provider, nil, nil))
	reg.Register(skills.NewCreateSkill(deps))
	reg.Register(skills.NewUpdateSkill(deps))
	reg.Register(skills.NewCloseSkill(deps))
	reg.Register(skills.NewDeleteSkill(deps))
	reg.Register(skills.NewChitchatSkill(nil, nil))

	executor := skills.NewExecutor(stub, schemas, provider, business, nil, nil)
	monitor := costs.NewMonitor(costs.Thresholds{Hourly: 100, Daily: 100, CircuitBreaker: true}, nil, nil, nil)

	var plannerClient llm.Client
	if planner != nil {
		plannerClient = &llm.MockClient{Responses: planner}
	}
	rules, err := intent.LoadRules("", nil)
	require.NoError(t, err)

	progress := &testProgress{}
	orch := New(Deps{
		Registry:      reg,
		Executor:      executor,
		States:        states,
		Provider:      provider,
		Planner:       intent.NewPlanner(plannerClient, 0.65, time.Second, nil),
		Rules:         rules,
		Renderer:      render.NewRenderer(render.NewEngine("", nil), nil),
		Transcript:    session.NewTranscript(20, 2000),
		Monitor:       monitor,
		CallbackDedup: callbackDedup,
		Progress:      progress,
	})
	return &harness{orch: orch, states: states, stub: stub, monitor: monitor, progress: progress}
}

func TestL0RuleAnswersWithoutPlanner(t *testing.T) {
	h := newHarness(t, nil, nil)
	resp := h.orch.HandleMessage(context.Background(), "u1", "张律师", "帮助")
	assert.Contains(t, resp.TextFallback, "查询")
}

func TestCreateProposeConfirmCommit(t *testing.T) {
	h := newHarness(t,
		[]string{`{"intent": "create_record", "confidence": 0.95, "table": "案件"}`},
		[]string{`{"table": "案件", "fields": {"案号": "(2024)粤0101民初100号", "委托人": "张三"}}`},
	)

	resp := h.orch.HandleMessage(context.Background(), "u1", "张律师",
		"新增一个案件，案号 (2024)粤0101民初100号，委托人 张三")
	require.NotNil(t, resp.Card)
	assert.Equal(t, "action.confirm", resp.Card.TemplateID)

	pending := h.states.GetPendingAction("u1")
	require.NotNil(t, pending)
	assert.Equal(t, state.ActionCreateRecord, pending.Action)
	fields := pending.Payload["fields"].(map[string]any)
	assert.Equal(t, "(2024)粤0101民初100号", fields["案号"])
	// table defaults join the extracted fields
	assert.Equal(t, "未结", fields["案件状态"])

	resp = h.orch.HandleCallback(context.Background(), "u1", "create_record_confirm", map[string]any{})
	require.NotNil(t, resp.Card)
	assert.Equal(t, "create.success", resp.Card.TemplateID)
	assert.Equal(t, 1, h.stub.createCalls)

	assert.Nil(t, h.states.GetPendingAction("u1"))
	st := h.states.GetState("u1")
	require.NotEmpty(t, st.History)
	assert.Equal(t, state.StatusExecuted, st.History[len(st.History)-1].Status)
	require.NotNil(t, st.ActiveRecord)
	assert.Equal(t, "rec_new", st.ActiveRecord.RecordID)
}

func TestDoubleTapConfirmIsDeduplicated(t *testing.T) {
	h := newHarness(t,
		[]string{`{"intent": "create_record", "confidence": 0.95}`},
		[]string{`{"fields": {"案号": "(2024)粤0101民初200号"}}`},
	)

	h.orch.HandleMessage(context.Background(), "u1", "", "新增一个案件，案号 (2024)粤0101民初200号")
	value := map[string]any{"record_id": "", "table_type": "case"}

	first := h.orch.HandleCallback(context.Background(), "u1", "create_record_confirm", value)
	assert.Equal(t, 1, h.stub.createCalls)
	require.NotNil(t, first.Card)

	second := h.orch.HandleCallback(context.Background(), "u1", "create_record_confirm", value)
	assert.Equal(t, 1, h.stub.createCalls)
	assert.Equal(t, DuplicateCallbackMessage, second.TextFallback)
}

func TestCallbackWithoutPendingIsExpired(t *testing.T) {
	h := newHarness(t, nil, nil)
	resp := h.orch.HandleCallback(context.Background(), "u1", "update_record_confirm", nil)
	assert.Equal(t, ExpiredCallbackMessage, resp.TextFallback)
}

func TestStaleCallbackNameIsExpired(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.states.SetPendingAction("u1", state.ActionCreateRecord, map[string]any{
		"table_id": "tbl_case", "table_name": "案件项目总库",
		"fields": map[string]any{"案号": "x"},
	}, nil, time.Minute)

	resp := h.orch.HandleCallback(context.Background(), "u1", "delete_record_confirm", nil)
	assert.Equal(t, ExpiredCallbackMessage, resp.TextFallback)
	assert.Equal(t, 0, h.stub.createCalls)
	assert.Equal(t, 0, h.stub.deleteCalls)
}

func TestTextConfirmCommitsPending(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.states.SetPendingAction("u1", state.ActionCreateRecord, map[string]any{
		"table_id": "tbl_case", "table_name": "案件项目总库",
		"fields": map[string]any{"案号": "(2024)粤0101民初300号"},
	}, nil, time.Minute)

	resp := h.orch.HandleMessage(context.Background(), "u1", "", "确认")
	assert.Equal(t, 1, h.stub.createCalls)
	require.NotNil(t, resp.Card)
	assert.Equal(t, "create.success", resp.Card.TemplateID)
}

func TestTextCancelClearsPending(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.states.SetPendingAction("u1", state.ActionDeleteRecord, map[string]any{
		"table_id": "tbl_case", "table_name": "案件项目总库",
		"record_id": "rec1", "summary": "(2024)粤0101民初300号",
	}, nil, time.Minute)
	h.states.SetPendingDelete("u1", state.PendingDelete{RecordID: "rec1"})

	resp := h.orch.HandleMessage(context.Background(), "u1", "", "取消")
	assert.Contains(t, resp.TextFallback, "已取消删除")
	assert.Equal(t, 0, h.stub.deleteCalls)
	assert.Nil(t, h.states.GetPendingAction("u1"))
	assert.Nil(t, h.states.GetState("u1").PendingDelete)
}

func TestCostGuardShortCircuits(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.monitor.Record("planner", 500) // blow the daily budget

	resp := h.orch.HandleMessage(context.Background(), "u1", "", "查所有案件")
	assert.Equal(t, costs.CircuitBreakerMessage, resp.TextFallback)
}

func TestFirstPersonQuerySearchesByCallerIdentity(t *testing.T) {
	h := newHarness(t, []string{`{"intent": "query_records", "confidence": 0.9}`}, nil)
	h.stub.personFn = func(field string) (*backend.SearchResult, error) {
		if field != "主办律师" {
			return &backend.SearchResult{}, nil
		}
		return &backend.SearchResult{Records: []backend.Record{{
			RecordID: "rec1",
			Fields:   map[string]any{"案号": "(2024)粤0101民初100号", "主办律师": "张律师"},
		}}}, nil
	}

	resp := h.orch.HandleMessage(context.Background(), "ou_zhang", "张律师", "查一下我的案件")
	assert.Contains(t, resp.TextFallback, "查询结果")

	// the person search carries the sender's channel identity
	assert.Equal(t, "ou_zhang", h.stub.personOpenID)
	assert.Equal(t, "张律师", h.stub.personName)
	assert.Contains(t, h.stub.personFields, "主办律师")
}

func TestGroupEventScopesStatePerMember(t *testing.T) {
	h := newHarness(t, nil, nil)
	resp := h.orch.HandleEvent(context.Background(), Inbound{
		OpenID:   "ou_9f2",
		ChatID:   "oc_team",
		ChatType: "group",
		UserName: "张律师",
		Text:     "查所有案件",
	})
	assert.Contains(t, resp.TextFallback, "查询结果")

	st := h.states.GetState("channel:group:oc_team:user:ou_9f2")
	assert.Equal(t, "query", st.LastSkill)
	// the same open id in a direct chat keeps a separate session
	assert.Empty(t, h.states.GetState("ou_9f2").LastSkill)
}

func TestActiveSessionsTracksSweptStore(t *testing.T) {
	h := newHarness(t, nil, nil)
	assert.EqualValues(t, 0, h.orch.ActiveSessions())

	h.orch.HandleMessage(context.Background(), "u1", "", "查所有案件")
	h.orch.HandleMessage(context.Background(), "u2", "", "查所有案件")
	h.orch.HandleMessage(context.Background(), "u1", "", "查所有案件")

	// each request's sweep counts the sessions stored before it
	assert.EqualValues(t, 2, h.orch.ActiveSessions())
}

func TestQueryUpdatesStateAndPagination(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.stub.tables = []backend.TableInfo{{TableID: "tbl_case", TableName: "案件项目总库"}}
	// L0 does not match; planner nil falls to keyword parser → query
	resp := h.orch.HandleMessage(context.Background(), "u1", "", "查所有案件")
	assert.Contains(t, resp.TextFallback, "查询结果")

	st := h.states.GetState("u1")
	assert.Equal(t, "query", st.LastSkill)
	require.NotNil(t, st.ActiveTable)
	assert.Equal(t, "tbl_case", st.ActiveTable.TableID)
}
