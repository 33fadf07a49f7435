package skills

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/backend"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/state"
)

func newTestQuerySkill(t *testing.T, mock *mockBackend) *QuerySkill {
	t.Helper()
	return NewQuerySkill(mock, nil, nil, testProvider(t), nil, nil)
}

func caseTable() []backend.TableInfo {
	return []backend.TableInfo{{TableID: "tbl_case", TableName: "案件项目总库"}}
}

func TestQueryFullScan(t *testing.T) {
	mock := &mockBackend{
		tables: caseTable(),
		searchFn: func(opts backend.SearchOptions) (*backend.SearchResult, error) {
			if !opts.IgnoreDefaultView {
				t.Fatal("full scan must ignore the default view")
			}
			return &backend.SearchResult{
				Records: []backend.Record{
					{RecordID: "r1", Fields: map[string]any{"案号": "(2025)京01民初1号"}},
					{RecordID: "r2", Fields: map[string]any{"案号": "(2025)京01民初2号"}},
				},
				Schema:     []backend.FieldMeta{{Name: "案号", Type: backend.FieldTypeText}},
				Pagination: backend.Pagination{Total: 2},
			}, nil
		},
	}
	s := newTestQuerySkill(t, mock)

	result, err := s.Execute(context.Background(), &Context{Query: "查所有案件", UserID: "u1"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "案件项目总库查询结果（共 2 条）", result.ReplyText)

	records := result.Data["records"].([]map[string]any)
	require.Len(t, records, 2)
	fieldsText := records[0]["fields_text"].(map[string]string)
	assert.Equal(t, "(2025)京01民初1号", fieldsText["案号"])
	assert.Contains(t, result.Data, "pagination")
	assert.Contains(t, result.Data, "resolution_trace")
}

type recordingQueryMetrics struct {
	resolutions []string
	fallbacks   []string
}

func (m *recordingQueryMetrics) RecordQueryResolution(_ context.Context, path, outcome string) {
	m.resolutions = append(m.resolutions, path+":"+outcome)
}

func (m *recordingQueryMetrics) RecordSemanticFallback(_ context.Context, reason string) {
	m.fallbacks = append(m.fallbacks, reason)
}

func (m *recordingQueryMetrics) RecordFieldFormat(context.Context, string) {}

func (m *recordingQueryMetrics) RecordBackendCall(context.Context, string, string, time.Duration) {}

func TestQuerySemanticFallbackReasons(t *testing.T) {
	mock := &mockBackend{tables: caseTable()}
	metrics := &recordingQueryMetrics{}
	s := NewQuerySkill(mock, nil, nil, testProvider(t), metrics, nil)

	// no slot pattern matches: the rung passes the query down the ladder
	_, err := s.Execute(context.Background(), &Context{Query: "查所有案件", UserID: "u1"})
	require.NoError(t, err)
	assert.Contains(t, metrics.fallbacks, "no_slots")
	assert.Contains(t, metrics.resolutions, "semantic_slots:miss")

	// a labeled identifier defers to the exact-match rung
	metrics.fallbacks = nil
	_, err = s.Execute(context.Background(), &Context{Query: "案号是(2025)京01民初1号", UserID: "u1"})
	require.NoError(t, err)
	assert.Contains(t, metrics.fallbacks, "labeled_exact")
}

func TestQueryIdentifierToken(t *testing.T) {
	var gotKeyword string
	mock := &mockBackend{
		tables: caseTable(),
		searchKeyword: func(_, keyword string, fields []string) (*backend.SearchResult, error) {
			gotKeyword = keyword
			assert.Equal(t, identifierFields, fields)
			return &backend.SearchResult{
				Records: []backend.Record{{RecordID: "r1", Fields: map[string]any{"项目ID": "FW-20250601"}}},
			}, nil
		},
	}
	s := newTestQuerySkill(t, mock)

	result, err := s.Execute(context.Background(), &Context{Query: "查一下 FW-20250601", UserID: "u1"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "FW-20250601", gotKeyword)
}

func TestQueryDisambiguation(t *testing.T) {
	mock := &mockBackend{
		tables: []backend.TableInfo{
			{TableID: "tbl_a", TableName: "合同管理表"},
			{TableID: "tbl_b", TableName: "合同归档表"},
		},
	}
	s := newTestQuerySkill(t, mock)

	result, err := s.Execute(context.Background(), &Context{Query: "看看合同", UserID: "u1"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, true, result.Data["need_confirm"])
	assert.Equal(t, "table_disambiguation", result.Data["query_summary"])
	records := result.Data["records"].([]map[string]any)
	assert.Len(t, records, 2)
	assert.Contains(t, result.ReplyText, "合同管理表")
}

func TestQueryDisambiguationFollowUp(t *testing.T) {
	searched := ""
	mock := &mockBackend{
		tables: []backend.TableInfo{
			{TableID: "tbl_a", TableName: "合同管理表"},
			{TableID: "tbl_b", TableName: "合同归档表"},
		},
		searchFn: func(opts backend.SearchOptions) (*backend.SearchResult, error) {
			searched = opts.TableID
			return &backend.SearchResult{}, nil
		},
	}
	s := newTestQuerySkill(t, mock)

	sc := &Context{
		Query:  "合同归档表",
		UserID: "u1",
		LastResult: &state.LastResult{
			QuerySummary: "table_disambiguation",
			Records: []map[string]any{
				{"table_id": "tbl_a", "table_name": "合同管理表"},
				{"table_id": "tbl_b", "table_name": "合同归档表"},
			},
		},
	}
	result, err := s.Execute(context.Background(), sc)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "tbl_b", searched)
}

func TestQueryFilterNotSupportedFallsBackLocally(t *testing.T) {
	pages := 0
	mock := &mockBackend{
		tables: caseTable(),
		searchKeyword: func(_, _ string, _ []string) (*backend.SearchResult, error) {
			return nil, backend.NewError(backend.KindFilterNotSupported, "search_keyword", "InvalidFilter", nil)
		},
		searchFn: func(opts backend.SearchOptions) (*backend.SearchResult, error) {
			pages++
			return &backend.SearchResult{
				Records: []backend.Record{
					{RecordID: "r1", Fields: map[string]any{"委托人": "华星集团", "备注": "无"}},
					{RecordID: "r2", Fields: map[string]any{"委托人": "张三", "备注": "华星集团相关"}},
				},
			}, nil
		},
	}
	s := newTestQuerySkill(t, mock)

	result, err := s.Execute(context.Background(), &Context{Query: "委托人是华星集团的案件", UserID: "u1"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, 1, pages)

	// org-shaped keyword post-filter keeps only party-field matches
	records := result.Data["records"].([]map[string]any)
	require.Len(t, records, 1)
	assert.Equal(t, "r1", records[0]["record_id"])
	debug := result.Data["debug"].(map[string]any)
	assert.Equal(t, "local_filter", debug["fallback"])
}

func TestQueryBackendTimeoutBecomesUserMessage(t *testing.T) {
	mock := &mockBackend{
		tables: caseTable(),
		searchFn: func(backend.SearchOptions) (*backend.SearchResult, error) {
			return nil, backend.NewError(backend.KindTimeout, "search", "deadline", nil)
		},
	}
	s := newTestQuerySkill(t, mock)

	result, err := s.Execute(context.Background(), &Context{Query: "查所有案件", UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "timeout", result.ErrorCode)
	assert.Equal(t, "请求超时，请稍后重试", result.ReplyText)
}

func TestQueryPaginationContinuation(t *testing.T) {
	var gotToken string
	mock := &mockBackend{
		tables: caseTable(),
		searchFn: func(opts backend.SearchOptions) (*backend.SearchResult, error) {
			gotToken = opts.PageToken
			return &backend.SearchResult{}, nil
		},
	}
	s := newTestQuerySkill(t, mock)

	sc := &Context{
		Query:  "下一页",
		UserID: "u1",
		ActiveTable: &state.ActiveTable{TableID: "tbl_case", TableName: "案件项目总库"},
		Pagination: &state.Pagination{
			Tool:      "search",
			Params:    map[string]any{"ignore_default_view": true},
			PageToken: "tok42",
		},
	}
	result, err := s.Execute(context.Background(), sc)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "tok42", gotToken)
}
