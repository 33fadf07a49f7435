package backend

import "context"

// Client is the typed operation set the skills consume. All operations honor
// the context deadline and surface typed *Error failures.
type Client interface {
	ListTables(ctx context.Context) ([]TableInfo, error)
	ListFields(ctx context.Context, tableID string) ([]FieldMeta, error)

	Search(ctx context.Context, opts SearchOptions) (*SearchResult, error)
	SearchExact(ctx context.Context, tableID, field string, value any) (*SearchResult, error)
	SearchKeyword(ctx context.Context, tableID, keyword string, fields []string) (*SearchResult, error)
	SearchPerson(ctx context.Context, tableID, field, openID, userName string) (*SearchResult, error)
	SearchDateRange(ctx context.Context, tableID, field, dateFrom, dateTo, timeFrom, timeTo string) (*SearchResult, error)
	SearchAdvanced(ctx context.Context, tableID string, conditions []Condition, conjunction Conjunction) (*SearchResult, error)

	GetRecord(ctx context.Context, tableID, recordID string) (*Record, error)
	CreateRecord(ctx context.Context, tableID string, fields map[string]any, idempotencyKey string) (*WriteResult, error)
	UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]any, idempotencyKey string) (*WriteResult, error)
	DeleteRecord(ctx context.Context, tableID, recordID string, idempotencyKey string) error
}
