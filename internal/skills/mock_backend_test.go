package skills

import (
	"context"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/backend"
)

// mockBackend implements backend.Client with per-call hooks. Nil hooks return
// empty results.
type mockBackend struct {
	tables []backend.TableInfo
	fields []backend.FieldMeta

	searchFn       func(opts backend.SearchOptions) (*backend.SearchResult, error)
	searchExactFn  func(tableID, field string, value any) (*backend.SearchResult, error)
	searchKeyword  func(tableID, keyword string, fields []string) (*backend.SearchResult, error)
	createFn       func(tableID string, fields map[string]any, key string) (*backend.WriteResult, error)
	updateFn       func(tableID, recordID string, fields map[string]any, key string) (*backend.WriteResult, error)
	deleteFn       func(tableID, recordID, key string) error
	createCalls    int
	updateCalls    int
	deleteCalls    int
}

func (m *mockBackend) ListTables(context.Context) ([]backend.TableInfo, error) {
	return m.tables, nil
}

func (m *mockBackend) ListFields(_ context.Context, _ string) ([]backend.FieldMeta, error) {
	return m.fields, nil
}

func (m *mockBackend) Search(_ context.Context, opts backend.SearchOptions) (*backend.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(opts)
	}
	return &backend.SearchResult{}, nil
}

func (m *mockBackend) SearchExact(_ context.Context, tableID, field string, value any) (*backend.SearchResult, error) {
	if m.searchExactFn != nil {
		return m.searchExactFn(tableID, field, value)
	}
	return &backend.SearchResult{}, nil
}

func (m *mockBackend) SearchKeyword(_ context.Context, tableID, keyword string, fields []string) (*backend.SearchResult, error) {
	if m.searchKeyword != nil {
		return m.searchKeyword(tableID, keyword, fields)
	}
	return &backend.SearchResult{}, nil
}

func (m *mockBackend) SearchPerson(_ context.Context, _, _, _, _ string) (*backend.SearchResult, error) {
	return &backend.SearchResult{}, nil
}

func (m *mockBackend) SearchDateRange(_ context.Context, _, _, _, _, _, _ string) (*backend.SearchResult, error) {
	return &backend.SearchResult{}, nil
}

func (m *mockBackend) SearchAdvanced(_ context.Context, _ string, _ []backend.Condition, _ backend.Conjunction) (*backend.SearchResult, error) {
	return &backend.SearchResult{}, nil
}

func (m *mockBackend) GetRecord(_ context.Context, _, recordID string) (*backend.Record, error) {
	return &backend.Record{RecordID: recordID}, nil
}

func (m *mockBackend) CreateRecord(_ context.Context, tableID string, fields map[string]any, key string) (*backend.WriteResult, error) {
	m.createCalls++
	if m.createFn != nil {
		return m.createFn(tableID, fields, key)
	}
	return &backend.WriteResult{RecordID: "rec_new"}, nil
}

func (m *mockBackend) UpdateRecord(_ context.Context, tableID, recordID string, fields map[string]any, key string) (*backend.WriteResult, error) {
	m.updateCalls++
	if m.updateFn != nil {
		return m.updateFn(tableID, recordID, fields, key)
	}
	return &backend.WriteResult{RecordID: recordID}, nil
}

func (m *mockBackend) DeleteRecord(_ context.Context, tableID, recordID, key string) error {
	m.deleteCalls++
	if m.deleteFn != nil {
		return m.deleteFn(tableID, recordID, key)
	}
	return nil
}
