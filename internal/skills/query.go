package skills

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/backend"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/config"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/llm"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/schema"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/timeparse"
)

// QueryMetrics is the observability surface the query skill emits to.
type QueryMetrics interface {
	RecordQueryResolution(ctx context.Context, path, outcome string)
	RecordSemanticFallback(ctx context.Context, reason string)
	RecordFieldFormat(ctx context.Context, status string)
	RecordBackendCall(ctx context.Context, op, errorKind string, latency time.Duration)
}

// table disambiguation confidence thresholds
const (
	tableAcceptConfidence = 0.85
	tableNoticeConfidence = 0.65
)

const defaultPageSize = 20

// queryPlan is one compiled backend call.
type queryPlan struct {
	Tool    string
	Source  string
	Params  map[string]any
	Keyword string
	// OrgKeyword triggers the party-field post-filter.
	OrgKeyword string
	Notice     string
}

// QuerySkill resolves a table, compiles the utterance into a backend search,
// executes it with fallbacks, and formats the result.
type QuerySkill struct {
	client   backend.Client
	schemas  *schema.Cache
	model    llm.Client
	provider *config.Provider
	metrics  QueryMetrics
	logger   logging.Logger
}

// NewQuerySkill builds the query skill. model and metrics may be nil.
func NewQuerySkill(client backend.Client, schemas *schema.Cache, model llm.Client, provider *config.Provider, metrics QueryMetrics, logger logging.Logger) *QuerySkill {
	return &QuerySkill{
		client:   client,
		schemas:  schemas,
		model:    model,
		provider: provider,
		metrics:  metrics,
		logger:   logging.OrNop(logger),
	}
}

func (s *QuerySkill) Name() string { return "query" }

// Execute runs the four query stages.
func (s *QuerySkill) Execute(ctx context.Context, sc *Context) (*Result, error) {
	table, result := s.resolveTable(ctx, sc)
	if result != nil {
		return result, nil
	}

	plan, trace := s.compile(ctx, sc, table)
	s.observeResolution(ctx, plan.Source, "selected")

	search, err := s.execute(ctx, sc, table, plan)
	if err != nil {
		return s.failFromBackend(err), nil
	}

	if len(search.Schema) == 0 && s.schemas != nil {
		if cached, err := s.schemas.Get(ctx, table.ID); err == nil {
			search.Schema = cached.Fields
		}
	}
	s.postProcess(ctx, search, plan)
	return s.buildResult(sc, table, plan, search, trace), nil
}

type resolvedTable struct {
	ID      string
	Name    string
	Profile config.TableProfile
}

// resolveTable runs stage 1. A non-nil *Result means disambiguation must be
// surfaced to the user instead of running a query.
func (s *QuerySkill) resolveTable(ctx context.Context, sc *Context) (*resolvedTable, *Result) {
	cfg := s.provider.Current()

	// a previous disambiguation turn: the reply names one candidate
	if sc.LastResult != nil && sc.LastResult.QuerySummary == "table_disambiguation" {
		for _, rec := range sc.LastResult.Records {
			name, _ := rec["table_name"].(string)
			if name != "" && strings.Contains(sc.Query, name) {
				id, _ := rec["table_id"].(string)
				return &resolvedTable{ID: id, Name: name, Profile: profileForTable(cfg, name)}, nil
			}
		}
	}

	if sc.ActiveTable != nil && sc.ActiveTable.TableID != "" && mentionsCurrentScope(sc.Query) {
		profile := profileForTable(cfg, sc.ActiveTable.TableName)
		return &resolvedTable{ID: sc.ActiveTable.TableID, Name: sc.ActiveTable.TableName, Profile: profile}, nil
	}

	tables, err := s.client.ListTables(ctx)
	if err != nil {
		s.logger.Warn("list tables failed: %v", err)
	}

	// direct substring of a known table name, then the registered alias map
	var candidates []backend.TableInfo
	for _, t := range tables {
		if strings.Contains(sc.Query, t.TableName) {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		var matched []string
		for _, p := range cfg.Tables {
			for _, alias := range p.Aliases {
				if strings.Contains(sc.Query, alias) {
					matched = append(matched, alias)
				}
			}
		}
		for _, t := range tables {
			for _, alias := range matched {
				if strings.Contains(t.TableName, alias) {
					candidates = append(candidates, t)
					break
				}
			}
		}
	}

	switch len(candidates) {
	case 1:
		profile := profileForTable(cfg, candidates[0].TableName)
		return &resolvedTable{ID: candidates[0].TableID, Name: candidates[0].TableName, Profile: profile}, nil
	case 0:
		// domain hints fall back to the case table
		if t := defaultTable(tables, cfg); t != nil {
			return &resolvedTable{ID: t.TableID, Name: t.TableName, Profile: profileForTable(cfg, t.TableName)}, nil
		}
		return nil, FailResult(s.Name(), "record_not_found", "未找到可查询的数据表，请先配置数据源")
	default:
		if picked := s.pickTableByModel(ctx, sc.Query, candidates); picked != nil {
			profile := profileForTable(cfg, picked.TableName)
			return &resolvedTable{ID: picked.TableID, Name: picked.TableName, Profile: profile}, nil
		}
		return nil, s.disambiguationResult(candidates)
	}
}

func (s *QuerySkill) pickTableByModel(ctx context.Context, query string, candidates []backend.TableInfo) *backend.TableInfo {
	if s.model == nil {
		return nil
	}
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.TableName)
	}
	messages := []llm.Message{
		{Role: "system", Content: "从候选表中为用户查询选择目标表，仅输出 JSON: {\"table_name\": \"...\", \"confidence\": 0.0}"},
		{Role: "user", Content: fmt.Sprintf("查询: %s\n候选表: %s", query, strings.Join(names, "、"))},
	}
	var picked struct {
		TableName  string  `json:"table_name"`
		Confidence float64 `json:"confidence"`
	}
	if _, err := llm.ChatJSON(ctx, s.model, messages, &picked); err != nil {
		s.logger.Warn("table disambiguation model call failed: %v", err)
		return nil
	}
	if picked.Confidence < tableNoticeConfidence {
		return nil
	}
	for i := range candidates {
		if candidates[i].TableName == picked.TableName {
			return &candidates[i]
		}
	}
	return nil
}

// disambiguationResult stores the candidates in last_result and asks the user
// to pick; the next turn matching a candidate name commits the choice.
func (s *QuerySkill) disambiguationResult(candidates []backend.TableInfo) *Result {
	records := make([]map[string]any, 0, len(candidates))
	lines := make([]string, 0, len(candidates))
	for i, c := range candidates {
		records = append(records, map[string]any{"table_id": c.TableID, "table_name": c.TableName})
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, c.TableName))
	}
	return &Result{
		Success:   true,
		SkillName: s.Name(),
		ReplyType: "card",
		ReplyText: "找到多个相关数据表，请确认要查询哪一个：\n" + strings.Join(lines, "\n"),
		Data: map[string]any{
			"need_confirm":  true,
			"records":       records,
			"query_summary": "table_disambiguation",
		},
	}
}

func defaultTable(tables []backend.TableInfo, cfg *config.Config) *backend.TableInfo {
	caseProfile, ok := cfg.Tables["case"]
	if ok {
		for i := range tables {
			for _, alias := range append([]string{caseProfile.Kind}, caseProfile.Aliases...) {
				if strings.Contains(tables[i].TableName, alias) {
					return &tables[i]
				}
			}
		}
	}
	if len(tables) > 0 {
		return &tables[0]
	}
	return nil
}

func mentionsCurrentScope(query string) bool {
	return containsAny(query, "这个表", "当前表", "这张表", "继续", "下一页", "还有")
}

var (
	identifierPattern     = regexp.MustCompile(`[A-Za-z]{2,}-\d{4,}`)
	labeledExactPattern   = regexp.MustCompile(`(案号|项目ID|编号)\s*(?:是|为|=|：|:)\s*(\S+)`)
	partyLabelPattern     = regexp.MustCompile(`(委托人|对方当事人|客户)\s*(?:是|为|：|:)?\s*([\p{Han}A-Za-z0-9（）()]+?)(?:的|$|，|。|？)`)
	namedEntityPattern    = regexp.MustCompile(`([\p{Han}A-Za-z0-9（）()]{2,})的(案件|案子|项目|合同|标书)`)
	firstPersonPossessive = regexp.MustCompile(`我的|我负责|我主办|我经办`)
	orgShapePattern       = regexp.MustCompile(`(公司|集团|银行|事务所|中心|局|院|厂|店)$`)
)

var identifierFields = []string{"案号", "项目ID", "合同编号"}
var partyFields = []string{"委托人", "对方当事人", "客户名称"}
var classificationAliases = map[string]string{
	"非诉": "非诉讼", "诉讼": "诉讼", "仲裁": "仲裁", "执行": "执行",
}

// compile runs the stage-2 ladder. The first source yielding a plan wins;
// every consulted source lands in the trace.
func (s *QuerySkill) compile(ctx context.Context, sc *Context, table *resolvedTable) (*queryPlan, []string) {
	var trace []string
	try := func(source string, plan *queryPlan) *queryPlan {
		if plan == nil {
			trace = append(trace, source+":miss")
			s.observeResolution(ctx, source, "miss")
			return nil
		}
		plan.Source = source
		trace = append(trace, source+":hit")
		return plan
	}

	if plan := try("pagination", s.fromPagination(sc)); plan != nil {
		return plan, trace
	}
	if plan := try("planner", s.fromPlanner(sc)); plan != nil {
		return plan, trace
	}
	if plan := try("classification", s.fromClassification(sc)); plan != nil {
		return plan, trace
	}
	if plan := try("semantic_slots", s.fromSemanticSlots(ctx, sc)); plan != nil {
		return plan, trace
	}
	if plan := try("structured_phrase", s.fromStructuredPhrase(sc)); plan != nil {
		return plan, trace
	}
	if plan := try("my_records", s.fromFirstPerson(sc, table)); plan != nil {
		return plan, trace
	}
	if plan := try("named_entity", s.fromNamedEntity(sc)); plan != nil {
		return plan, trace
	}
	if plan := try("date_range", s.fromDateRange(sc)); plan != nil {
		return plan, trace
	}
	if plan := try("identifier_token", s.fromIdentifierToken(sc)); plan != nil {
		return plan, trace
	}
	if plan := try("exact_match", s.fromLabeledExact(sc)); plan != nil {
		return plan, trace
	}
	if plan := try("bare_keyword", s.fromBareKeyword(sc, table)); plan != nil {
		return plan, trace
	}

	plan := &queryPlan{Tool: "search", Source: "full_scan", Params: map[string]any{
		"ignore_default_view": !containsAny(sc.Query, "当前视图", "这个视图"),
	}}
	trace = append(trace, "full_scan:hit")
	return plan, trace
}

func (s *QuerySkill) fromPagination(sc *Context) *queryPlan {
	if sc.Pagination == nil || !containsAny(sc.Query, "下一页", "继续", "还有", "更多") {
		return nil
	}
	params := map[string]any{}
	for k, v := range sc.Pagination.Params {
		params[k] = v
	}
	params["page_token"] = sc.Pagination.PageToken
	return &queryPlan{Tool: sc.Pagination.Tool, Params: params}
}

func (s *QuerySkill) fromPlanner(sc *Context) *queryPlan {
	plan, ok := sc.Extra["planner_plan"].(map[string]any)
	if !ok {
		return nil
	}
	tool, _ := plan["tool"].(string)
	switch tool {
	case "search_keyword":
		keyword, _ := plan["keyword"].(string)
		if keyword == "" {
			return nil
		}
		return &queryPlan{Tool: tool, Keyword: keyword, Params: map[string]any{"keyword": keyword}}
	case "search_date_range":
		field, _ := plan["field"].(string)
		from, _ := plan["date_from"].(string)
		to, _ := plan["date_to"].(string)
		if field == "" || (from == "" && to == "") {
			return nil
		}
		return &queryPlan{Tool: tool, Params: map[string]any{"field": field, "date_from": from, "date_to": to}}
	case "search":
		return &queryPlan{Tool: tool, Params: map[string]any{"ignore_default_view": true}}
	default:
		return nil
	}
}

func (s *QuerySkill) fromClassification(sc *Context) *queryPlan {
	if firstPersonPossessive.MatchString(sc.Query) {
		return nil
	}
	for alias, category := range classificationAliases {
		if strings.Contains(sc.Query, alias+"案") || strings.Contains(sc.Query, alias+"业务") {
			return &queryPlan{
				Tool:    "search_keyword",
				Keyword: category,
				Params:  map[string]any{"keyword": category, "fields": []string{"案件类别", "业务类型"}},
			}
		}
	}
	return nil
}

func (s *QuerySkill) fromSemanticSlots(ctx context.Context, sc *Context) *queryPlan {
	if m := labeledExactPattern.FindStringSubmatch(sc.Query); m != nil {
		// handled by the exact-match rung below
		s.observeSemanticFallback(ctx, "labeled_exact")
		return nil
	}
	if id := identifierPattern.FindString(sc.Query); id != "" {
		return &queryPlan{
			Tool:    "search_keyword",
			Keyword: id,
			Params:  map[string]any{"keyword": id, "fields": identifierFields},
		}
	}
	if m := partyLabelPattern.FindStringSubmatch(sc.Query); m != nil {
		party := strings.TrimSpace(m[2])
		plan := &queryPlan{
			Tool:    "search_keyword",
			Keyword: party,
			Params:  map[string]any{"keyword": party, "fields": partyFields},
		}
		if orgShapePattern.MatchString(party) {
			plan.OrgKeyword = party
		}
		return plan
	}
	s.observeSemanticFallback(ctx, "no_slots")
	return nil
}

func (s *QuerySkill) fromStructuredPhrase(sc *Context) *queryPlan {
	if strings.Contains(sc.Query, "已开过庭") || strings.Contains(sc.Query, "已经开庭") {
		today := time.Now().In(agentZone).Format("2006-01-02")
		return &queryPlan{Tool: "search_date_range", Params: map[string]any{
			"field": "开庭日", "date_to": today,
		}}
	}
	return nil
}

func (s *QuerySkill) fromFirstPerson(sc *Context, table *resolvedTable) *queryPlan {
	if sc.OpenID == "" || !firstPersonPossessive.MatchString(sc.Query) {
		return nil
	}
	// person identity fields configured per table kind; callTool falls
	// through the list until one matches
	return &queryPlan{Tool: "search_person", Params: map[string]any{
		"fields":    personFieldsFor(table),
		"open_id":   sc.OpenID,
		"user_name": sc.UserName,
	}}
}

func personFieldsFor(table *resolvedTable) []string {
	switch table.Profile.Kind {
	case "contracts":
		return []string{"负责人", "经办律师"}
	case "bidding":
		return []string{"负责人"}
	default:
		return []string{"主办律师", "协办律师"}
	}
}

func (s *QuerySkill) fromNamedEntity(sc *Context) *queryPlan {
	m := namedEntityPattern.FindStringSubmatch(sc.Query)
	if m == nil {
		return nil
	}
	entity := strings.TrimSpace(m[1])
	if entity == "" || firstPersonPossessive.MatchString(entity) || entity == "我" {
		return nil
	}
	plan := &queryPlan{
		Tool:    "search_keyword",
		Keyword: entity,
		Params:  map[string]any{"keyword": entity, "fields": append(append([]string{}, partyFields...), identifierFields...)},
	}
	if orgShapePattern.MatchString(entity) {
		plan.OrgKeyword = entity
	}
	return plan
}

func (s *QuerySkill) fromDateRange(sc *Context) *queryPlan {
	r := sc.DateRange
	if r == nil {
		r = timeparse.Parse(sc.Query, time.Now().In(agentZone))
	}
	if r == nil {
		return nil
	}
	field := "开庭日"
	if containsAny(sc.Query, "截止", "到期", "期限") {
		field = "举证截止日"
		if containsAny(sc.Query, "合同") {
			field = "合同结束日期"
		}
	}
	params := map[string]any{"field": field, "date_from": r.DateFrom, "date_to": r.DateTo}
	if r.TimeFrom != "" {
		params["time_from"] = r.TimeFrom
		params["time_to"] = r.TimeTo
	}
	return &queryPlan{Tool: "search_date_range", Params: params}
}

func (s *QuerySkill) fromIdentifierToken(sc *Context) *queryPlan {
	id := identifierPattern.FindString(sc.Query)
	if id == "" {
		return nil
	}
	return &queryPlan{
		Tool:    "search_keyword",
		Keyword: id,
		Params:  map[string]any{"keyword": id, "fields": identifierFields},
	}
}

func (s *QuerySkill) fromLabeledExact(sc *Context) *queryPlan {
	m := labeledExactPattern.FindStringSubmatch(sc.Query)
	if m == nil {
		return nil
	}
	field, value := m[1], strings.TrimRight(m[2], "，。？?")
	return &queryPlan{
		Tool:    "search_exact",
		Keyword: value,
		Params:  map[string]any{"field": field, "value": value},
	}
}

var queryStopwords = []string{
	"查询", "查一下", "查查", "查", "看看", "看一下", "找找", "找一下", "找",
	"搜索", "搜", "列出", "显示", "所有", "全部", "的", "案件", "案子", "项目",
	"合同", "标书", "记录", "请", "帮我", "吗", "呢", "？", "?", "。", "，",
}

func (s *QuerySkill) fromBareKeyword(sc *Context, table *resolvedTable) *queryPlan {
	residue := strings.ReplaceAll(sc.Query, table.Name, "")
	for _, alias := range table.Profile.Aliases {
		residue = strings.ReplaceAll(residue, alias, "")
	}
	for _, word := range queryStopwords {
		residue = strings.ReplaceAll(residue, word, "")
	}
	residue = strings.TrimSpace(residue)
	if residue == "" {
		return nil
	}
	return &queryPlan{
		Tool:    "search_keyword",
		Keyword: residue,
		Params:  map[string]any{"keyword": residue},
	}
}

// execute runs the chosen plan. filter_not_supported degrades to a bounded
// local scan-and-filter.
func (s *QuerySkill) execute(ctx context.Context, sc *Context, table *resolvedTable, plan *queryPlan) (*backend.SearchResult, error) {
	start := time.Now()
	result, err := s.callTool(ctx, table.ID, plan)
	s.observeBackend(ctx, plan.Tool, err, time.Since(start))
	if err == nil {
		return result, nil
	}
	if !backend.IsFilterNotSupported(err) {
		return nil, err
	}

	s.logger.Info("filter not supported for %s on %s, falling back to local scan", plan.Tool, table.ID)
	return s.localFallback(ctx, table, plan)
}

func (s *QuerySkill) callTool(ctx context.Context, tableID string, plan *queryPlan) (*backend.SearchResult, error) {
	p := plan.Params
	switch plan.Tool {
	case "search":
		opts := backend.SearchOptions{TableID: tableID, PageSize: defaultPageSize}
		if v, ok := p["ignore_default_view"].(bool); ok {
			opts.IgnoreDefaultView = v
		}
		if token, ok := p["page_token"].(string); ok {
			opts.PageToken = token
		}
		return s.client.Search(ctx, opts)
	case "search_exact":
		field, _ := p["field"].(string)
		return s.client.SearchExact(ctx, tableID, field, p["value"])
	case "search_keyword":
		keyword, _ := p["keyword"].(string)
		fields, _ := p["fields"].([]string)
		return s.client.SearchKeyword(ctx, tableID, keyword, fields)
	case "search_person":
		openID, _ := p["open_id"].(string)
		userName, _ := p["user_name"].(string)
		fields, _ := p["fields"].([]string)
		var lastErr error
		for _, field := range fields {
			result, err := s.client.SearchPerson(ctx, tableID, field, openID, userName)
			if err != nil {
				lastErr = err
				continue
			}
			if len(result.Records) > 0 {
				return result, nil
			}
		}
		if lastErr != nil {
			return nil, lastErr
		}
		return &backend.SearchResult{}, nil
	case "search_date_range":
		field, _ := p["field"].(string)
		from, _ := p["date_from"].(string)
		to, _ := p["date_to"].(string)
		timeFrom, _ := p["time_from"].(string)
		timeTo, _ := p["time_to"].(string)
		return s.client.SearchDateRange(ctx, tableID, field, from, to, timeFrom, timeTo)
	default:
		return nil, backend.NewError(backend.KindGeneral, plan.Tool, "unknown query tool", nil)
	}
}

// localFallback pages the table and filters in process, bounded to 5 pages.
func (s *QuerySkill) localFallback(ctx context.Context, table *resolvedTable, plan *queryPlan) (*backend.SearchResult, error) {
	const maxPages = 5
	keyword := plan.Keyword
	var out backend.SearchResult
	token := ""
	for page := 0; page < maxPages; page++ {
		result, err := s.client.Search(ctx, backend.SearchOptions{
			TableID:           table.ID,
			PageSize:          defaultPageSize,
			PageToken:         token,
			IgnoreDefaultView: true,
		})
		if err != nil {
			return nil, err
		}
		out.Schema = result.Schema
		for _, rec := range result.Records {
			if keyword == "" || recordContains(&rec, keyword) {
				out.Records = append(out.Records, rec)
			}
		}
		if !result.Pagination.HasMore {
			break
		}
		token = result.Pagination.PageToken
	}
	out.Pagination = backend.Pagination{Total: len(out.Records)}
	plan.Notice = "local_fallback"
	return &out, nil
}

func recordContains(rec *backend.Record, keyword string) bool {
	for _, value := range rec.Fields {
		text, _ := renderValue(value)
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// postProcess applies the org post-filter, relevance reordering, and the
// schema-aware formatter.
func (s *QuerySkill) postProcess(ctx context.Context, search *backend.SearchResult, plan *queryPlan) {
	if plan.OrgKeyword != "" {
		filtered := search.Records[:0]
		for _, rec := range search.Records {
			for _, field := range partyFields {
				text, _ := renderValue(rec.Fields[field])
				if strings.Contains(text, plan.OrgKeyword) {
					filtered = append(filtered, rec)
					break
				}
			}
		}
		search.Records = filtered
	}

	if plan.Keyword != "" {
		sort.SliceStable(search.Records, func(i, j int) bool {
			return relevanceScore(&search.Records[i], plan.Keyword) > relevanceScore(&search.Records[j], plan.Keyword)
		})
	}

	observe := func(status string) {
		if s.metrics != nil {
			s.metrics.RecordFieldFormat(ctx, status)
		}
	}
	for i := range search.Records {
		FormatRecord(&search.Records[i], search.Schema, observe)
	}
}

// relevanceScore weighs keyword hits in title and identifier fields at 3,
// anywhere else at 1.
func relevanceScore(rec *backend.Record, keyword string) int {
	score := 0
	for name, value := range rec.Fields {
		text, _ := renderValue(value)
		if !strings.Contains(text, keyword) {
			continue
		}
		if isHighPriorityField(name) {
			score += 3
		} else {
			score++
		}
	}
	return score
}

func isHighPriorityField(name string) bool {
	for _, f := range identifierFields {
		if f == name {
			return true
		}
	}
	return containsAny(name, "名称", "标题", "案由")
}

func (s *QuerySkill) buildResult(sc *Context, table *resolvedTable, plan *queryPlan, search *backend.SearchResult, trace []string) *Result {
	records := make([]map[string]any, 0, len(search.Records))
	for _, rec := range search.Records {
		records = append(records, map[string]any{
			"record_id":   rec.RecordID,
			"record_url":  rec.RecordURL,
			"fields":      rec.Fields,
			"fields_text": rec.FieldsText,
		})
	}

	data := map[string]any{
		"records":          records,
		"table_id":         table.ID,
		"table_name":       table.Name,
		"query_summary":    sc.Query,
		"resolution_trace": trace,
		"pagination": map[string]any{
			"tool":       plan.Tool,
			"params":     plan.Params,
			"page_token": search.Pagination.PageToken,
			"has_more":   search.Pagination.HasMore,
			"total":      search.Pagination.Total,
		},
	}
	if plan.Notice == "local_fallback" {
		data["debug"] = map[string]any{"fallback": "local_filter"}
	}

	total := search.Pagination.Total
	if total == 0 {
		total = len(records)
	}
	reply := fmt.Sprintf("%s查询结果（共 %d 条）", table.Name, total)
	if len(records) == 0 {
		reply = "未找到符合条件的记录"
	}

	return &Result{
		Success:   true,
		SkillName: s.Name(),
		ReplyType: "card",
		ReplyText: reply,
		Data:      data,
	}
}

func (s *QuerySkill) failFromBackend(err error) *Result {
	kind := backend.KindOf(err)
	reply := userMessageForKind(kind)
	return FailResult(s.Name(), string(kind), reply)
}

func userMessageForKind(kind backend.Kind) string {
	switch kind {
	case backend.KindTimeout:
		return "请求超时，请稍后重试"
	case backend.KindConnection:
		return "服务连接异常，请稍后重试"
	case backend.KindRecordNotFound:
		return "未找到目标记录，请先查询确认"
	case backend.KindPermissionDenied:
		return "权限不足，请联系管理员"
	default:
		return "查询失败，请稍后重试"
	}
}

func (s *QuerySkill) observeResolution(ctx context.Context, source, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordQueryResolution(ctx, source, outcome)
	}
}

func (s *QuerySkill) observeSemanticFallback(ctx context.Context, reason string) {
	if s.metrics != nil {
		s.metrics.RecordSemanticFallback(ctx, reason)
	}
}

func (s *QuerySkill) observeBackend(ctx context.Context, op string, err error, latency time.Duration) {
	if s.metrics == nil {
		return
	}
	kind := ""
	if err != nil {
		kind = string(backend.KindOf(err))
	}
	s.metrics.RecordBackendCall(ctx, op, kind, latency)
}

func containsAny(text string, tokens ...string) bool {
	for _, t := range tokens {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
