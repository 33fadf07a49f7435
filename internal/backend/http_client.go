package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
)

// HTTPClient talks to the record store's HTTP bridge. Every operation is a
// POST of a JSON envelope to {base}/v1/bitable/{op}.
type HTTPClient struct {
	baseURL  string
	appToken string
	apiKey   string
	http     *http.Client
	logger   logging.Logger
}

// HTTPClientConfig configures the bridge client.
type HTTPClientConfig struct {
	BaseURL  string
	AppToken string
	APIKey   string
	Timeout  time.Duration
}

// NewHTTPClient builds the bridge client.
func NewHTTPClient(cfg HTTPClientConfig, logger logging.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		appToken: cfg.AppToken,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
		logger:   logging.OrNop(logger),
	}
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *HTTPClient) call(ctx context.Context, op string, params map[string]any, out any) error {
	if params == nil {
		params = map[string]any{}
	}
	if _, ok := params["app_token"]; !ok && c.appToken != "" {
		params["app_token"] = c.appToken
	}
	body, err := json.Marshal(params)
	if err != nil {
		return NewError(KindGeneral, op, "encode request", err)
	}
	url := fmt.Sprintf("%s/v1/bitable/%s", c.baseURL, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return NewError(KindGeneral, op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return NewError(KindConnection, op, "read response", err)
	}
	if kind := classifyStatus(resp.StatusCode); kind != "" {
		return NewError(kind, op, strings.TrimSpace(string(raw)), nil)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return NewError(KindGeneral, op, "decode envelope", err)
	}
	if env.Code != 0 {
		return NewError(classifyMessage(env.Msg), op, env.Msg, nil)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return NewError(KindGeneral, op, "decode payload", err)
		}
	}
	return nil
}

func classifyTransportError(op string, err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(KindTimeout, op, "deadline exceeded", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return NewError(KindTimeout, op, "request timed out", err)
	default:
		return NewError(KindConnection, op, "transport failure", err)
	}
}

func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusForbidden:
		return KindPermissionDenied
	case status == http.StatusNotFound:
		return KindRecordNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindConnection
	case status >= 400:
		return KindGeneral
	default:
		return ""
	}
}

// classifyMessage maps the bridge's error text onto a failure kind. The store
// reports filter and field problems only through msg tokens.
func classifyMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "invalidfilter") || strings.Contains(lower, "filter not supported"):
		return KindFilterNotSupported
	case strings.Contains(lower, "fieldnamenotfound") || strings.Contains(lower, "field not found"):
		return KindFieldNotFound
	case strings.Contains(lower, "recordidnotfound") || strings.Contains(lower, "record not found") || strings.Contains(lower, "已删除"):
		return KindRecordNotFound
	case strings.Contains(lower, "permission") || strings.Contains(lower, "forbidden") || strings.Contains(lower, "权限"):
		return KindPermissionDenied
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many"):
		return KindRateLimit
	default:
		return KindGeneral
	}
}

type tablesPayload struct {
	Tables []TableInfo `json:"tables"`
}

type fieldsPayload struct {
	Fields []FieldMeta `json:"fields"`
}

type searchPayload struct {
	Records   []Record    `json:"records"`
	Schema    []FieldMeta `json:"schema"`
	HasMore   bool        `json:"has_more"`
	PageToken string      `json:"page_token"`
	Total     int         `json:"total"`
}

func (p *searchPayload) toResult() *SearchResult {
	return &SearchResult{
		Records: p.Records,
		Schema:  p.Schema,
		Pagination: Pagination{
			HasMore:   p.HasMore,
			PageToken: p.PageToken,
			Total:     p.Total,
		},
	}
}

// ListTables enumerates the app's tables.
func (c *HTTPClient) ListTables(ctx context.Context) ([]TableInfo, error) {
	var payload tablesPayload
	if err := c.call(ctx, "list_tables", map[string]any{}, &payload); err != nil {
		return nil, err
	}
	return payload.Tables, nil
}

// ListFields returns the field metadata of one table.
func (c *HTTPClient) ListFields(ctx context.Context, tableID string) ([]FieldMeta, error) {
	var payload fieldsPayload
	if err := c.call(ctx, "list_fields", map[string]any{"table_id": tableID}, &payload); err != nil {
		return nil, err
	}
	return payload.Fields, nil
}

// Search runs the paginated full scan.
func (c *HTTPClient) Search(ctx context.Context, opts SearchOptions) (*SearchResult, error) {
	params := map[string]any{
		"table_id":            opts.TableID,
		"ignore_default_view": opts.IgnoreDefaultView,
	}
	if opts.ViewID != "" {
		params["view_id"] = opts.ViewID
	}
	if opts.PageSize > 0 {
		params["page_size"] = opts.PageSize
	}
	if opts.PageToken != "" {
		params["page_token"] = opts.PageToken
	}
	var payload searchPayload
	if err := c.call(ctx, "search", params, &payload); err != nil {
		return nil, err
	}
	return payload.toResult(), nil
}

// SearchExact matches one typed field by equality (contains for text fields).
func (c *HTTPClient) SearchExact(ctx context.Context, tableID, field string, value any) (*SearchResult, error) {
	var payload searchPayload
	err := c.call(ctx, "search_exact", map[string]any{
		"table_id": tableID,
		"field":    field,
		"value":    value,
	}, &payload)
	if err != nil {
		return nil, err
	}
	return payload.toResult(), nil
}

// SearchKeyword matches a keyword as a contains-disjunction over fields.
func (c *HTTPClient) SearchKeyword(ctx context.Context, tableID, keyword string, fields []string) (*SearchResult, error) {
	var payload searchPayload
	err := c.call(ctx, "search_keyword", map[string]any{
		"table_id": tableID,
		"keyword":  keyword,
		"fields":   fields,
	}, &payload)
	if err != nil {
		return nil, err
	}
	return payload.toResult(), nil
}

// SearchPerson matches a person-typed field by open id or display name.
func (c *HTTPClient) SearchPerson(ctx context.Context, tableID, field, openID, userName string) (*SearchResult, error) {
	params := map[string]any{
		"table_id": tableID,
		"field":    field,
	}
	if openID != "" {
		params["open_id"] = openID
	}
	if userName != "" {
		params["user_name"] = userName
	}
	var payload searchPayload
	if err := c.call(ctx, "search_person", params, &payload); err != nil {
		return nil, err
	}
	return payload.toResult(), nil
}

// SearchDateRange matches a date field inside a half-open window.
func (c *HTTPClient) SearchDateRange(ctx context.Context, tableID, field, dateFrom, dateTo, timeFrom, timeTo string) (*SearchResult, error) {
	params := map[string]any{
		"table_id": tableID,
		"field":    field,
	}
	if dateFrom != "" {
		params["date_from"] = dateFrom
	}
	if dateTo != "" {
		params["date_to"] = dateTo
	}
	if timeFrom != "" {
		params["time_from"] = timeFrom
	}
	if timeTo != "" {
		params["time_to"] = timeTo
	}
	var payload searchPayload
	if err := c.call(ctx, "search_date_range", params, &payload); err != nil {
		return nil, err
	}
	return payload.toResult(), nil
}

// SearchAdvanced runs an explicit conjunction of predicates.
func (c *HTTPClient) SearchAdvanced(ctx context.Context, tableID string, conditions []Condition, conjunction Conjunction) (*SearchResult, error) {
	if conjunction == "" {
		conjunction = ConjunctionAnd
	}
	var payload searchPayload
	err := c.call(ctx, "search_advanced", map[string]any{
		"table_id":    tableID,
		"conditions":  conditions,
		"conjunction": string(conjunction),
	}, &payload)
	if err != nil {
		return nil, err
	}
	return payload.toResult(), nil
}

type recordPayload struct {
	Record Record `json:"record"`
}

// GetRecord fetches one record by id.
func (c *HTTPClient) GetRecord(ctx context.Context, tableID, recordID string) (*Record, error) {
	var payload recordPayload
	err := c.call(ctx, "record_get", map[string]any{
		"table_id":  tableID,
		"record_id": recordID,
	}, &payload)
	if err != nil {
		return nil, err
	}
	return &payload.Record, nil
}

// CreateRecord inserts one record, carrying the caller's idempotency key.
func (c *HTTPClient) CreateRecord(ctx context.Context, tableID string, fields map[string]any, idempotencyKey string) (*WriteResult, error) {
	params := map[string]any{
		"table_id": tableID,
		"fields":   fields,
	}
	if idempotencyKey != "" {
		params["idempotency_key"] = idempotencyKey
	}
	var result WriteResult
	if err := c.call(ctx, "record_create", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateRecord patches one record's fields.
func (c *HTTPClient) UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]any, idempotencyKey string) (*WriteResult, error) {
	params := map[string]any{
		"table_id":  tableID,
		"record_id": recordID,
		"fields":    fields,
	}
	if idempotencyKey != "" {
		params["idempotency_key"] = idempotencyKey
	}
	var result WriteResult
	if err := c.call(ctx, "record_update", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteRecord removes one record.
func (c *HTTPClient) DeleteRecord(ctx context.Context, tableID, recordID string, idempotencyKey string) error {
	params := map[string]any{
		"table_id":  tableID,
		"record_id": recordID,
	}
	if idempotencyKey != "" {
		params["idempotency_key"] = idempotencyKey
	}
	return c.call(ctx, "record_delete", params, nil)
}
