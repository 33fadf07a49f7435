package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/backend"
)

var cst = time.FixedZone("CST", 8*3600)

// CoerceValue converts a user-supplied value into the wire representation the
// field type expects. Unknown types pass through untouched.
func CoerceValue(field backend.FieldMeta, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch field.Type {
	case backend.FieldTypeDate, backend.FieldTypeCreatedTime, backend.FieldTypeModifiedTime:
		return coerceDate(field.Name, value)
	case backend.FieldTypeNumber:
		return coerceNumber(field.Name, value)
	case backend.FieldTypeCheckbox:
		return coerceCheckbox(value)
	case backend.FieldTypeSingleSelect:
		return fmt.Sprintf("%v", value), nil
	case backend.FieldTypeMultiSelect:
		return coerceMultiSelect(value), nil
	default:
		return value, nil
	}
}

// CoerceFields applies CoerceValue across a field map against the schema.
// Fields absent from the schema pass through.
func CoerceFields(s *TableSchema, fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for name, value := range fields {
		meta, ok := s.FieldByName(name)
		if !ok {
			out[name] = value
			continue
		}
		coerced, err := CoerceValue(meta, value)
		if err != nil {
			return nil, err
		}
		out[name] = coerced
	}
	return out, nil
}

// coerceDate accepts millisecond timestamps, numeric strings, and the date
// layouts users actually type. Dates resolve at midnight UTC+8.
func coerceDate(field string, value any) (any, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		text := strings.TrimSpace(v)
		if text == "" {
			return nil, nil
		}
		if ms, err := strconv.ParseInt(text, 10, 64); err == nil && ms > 1e12 {
			return ms, nil
		}
		for _, layout := range []string{"2006-01-02 15:04", "2006-01-02", "2006/01/02", "2006年01月02日", "2006年1月2日"} {
			if t, err := time.ParseInLocation(layout, text, cst); err == nil {
				return t.UnixMilli(), nil
			}
		}
		return nil, fmt.Errorf("field %q: unparseable date %q", field, text)
	default:
		return nil, fmt.Errorf("field %q: unsupported date value %T", field, value)
	}
}

func coerceNumber(field string, value any) (any, error) {
	switch v := value.(type) {
	case int, int64, float64:
		return v, nil
	case string:
		text := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
		if text == "" {
			return nil, nil
		}
		n, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("field %q: unparseable number %q", field, v)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("field %q: unsupported number value %T", field, value)
	}
}

func coerceCheckbox(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "是", "yes", "y":
			return true, nil
		case "false", "0", "否", "no", "n", "":
			return false, nil
		}
		return nil, fmt.Errorf("unparseable checkbox value %q", v)
	default:
		return nil, fmt.Errorf("unsupported checkbox value %T", value)
	}
}

func coerceMultiSelect(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		parts := strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == '，' || r == '、' || r == ';' || r == '；'
		})
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
		}
		return out
	default:
		return []string{fmt.Sprintf("%v", value)}
	}
}
