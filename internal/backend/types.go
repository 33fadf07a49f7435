// Package backend is the typed client for the low-code record store. It
// exposes the narrow operation set the skills depend on and classifies
// transport failures into the error kinds the query fallback policy needs.
package backend

// Record is one row returned by the store. Fields carries backend-native
// value shapes; FieldsText is filled in later by the schema-aware formatter.
type Record struct {
	RecordID   string            `json:"record_id"`
	RecordURL  string            `json:"record_url,omitempty"`
	Fields     map[string]any    `json:"fields"`
	FieldsText map[string]string `json:"fields_text,omitempty"`
	TableID    string            `json:"table_id,omitempty"`
	TableName  string            `json:"table_name,omitempty"`
}

// FieldMeta describes one column of a table.
type FieldMeta struct {
	FieldID string `json:"field_id,omitempty"`
	Name    string `json:"name"`
	Type    int    `json:"type"`
}

// Field type codes as used by the store.
const (
	FieldTypeText         = 1
	FieldTypeNumber       = 2
	FieldTypeSingleSelect = 3
	FieldTypeMultiSelect  = 4
	FieldTypeDate         = 5
	FieldTypeCreatedTime  = 6
	FieldTypeCheckbox     = 7
	FieldTypePerson       = 11
	FieldTypeAttachment   = 17
	FieldTypeModifiedTime = 23
	FieldTypeCreatedBy    = 1001
	FieldTypeModifiedBy   = 1002
	FieldTypeAutoDate     = 1003
)

// TableInfo identifies one table of the app.
type TableInfo struct {
	TableID   string `json:"table_id"`
	TableName string `json:"table_name"`
}

// Pagination is the cursor triple attached to every paginated result.
type Pagination struct {
	HasMore   bool   `json:"has_more"`
	PageToken string `json:"page_token,omitempty"`
	Total     int    `json:"total"`
}

// SearchResult is the uniform response of every search variant.
type SearchResult struct {
	Records    []Record    `json:"records"`
	Schema     []FieldMeta `json:"schema,omitempty"`
	Pagination Pagination  `json:"pagination"`
}

// WriteResult is the response of a record mutation.
type WriteResult struct {
	RecordID  string `json:"record_id"`
	RecordURL string `json:"record_url,omitempty"`
}

// SearchOptions parametrizes the paginated full scan.
type SearchOptions struct {
	TableID           string
	ViewID            string
	IgnoreDefaultView bool
	PageSize          int
	PageToken         string
}

// Condition is one predicate of an advanced search.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Conjunction joins advanced-search conditions.
type Conjunction string

const (
	ConjunctionAnd Conjunction = "and"
	ConjunctionOr  Conjunction = "or"
)
