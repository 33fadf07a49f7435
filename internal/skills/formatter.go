package skills

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/backend"
)

// Formatting outcome statuses.
const (
	FormatOK          = "ok"
	FormatMissingMeta = "missing_meta"
	FormatMalformed   = "malformed"
)

// FormattedField is the text rendering of one record value.
type FormattedField struct {
	Text      string
	FieldType int
	Status    string
}

var agentZone = time.FixedZone("CST", 8*3600)

// FormatValue renders one backend value as display text. The backend's value
// shapes are a closed set: scalars, millisecond timestamps, option arrays,
// person arrays, and rich-text blobs.
func FormatValue(value any, meta *backend.FieldMeta) FormattedField {
	status := FormatOK
	fieldType := 0
	if meta == nil {
		status = FormatMissingMeta
	} else {
		fieldType = meta.Type
	}

	text, ok := renderValue(value)
	if !ok {
		status = FormatMalformed
	}
	return FormattedField{Text: text, FieldType: fieldType, Status: status}
}

// FormatRecord fills a record's FieldsText from its raw fields. observe is
// called once per field with the formatting status; it may be nil.
func FormatRecord(rec *backend.Record, schema []backend.FieldMeta, observe func(status string)) {
	metaByName := make(map[string]*backend.FieldMeta, len(schema))
	for i := range schema {
		metaByName[schema[i].Name] = &schema[i]
	}
	if rec.FieldsText == nil {
		rec.FieldsText = make(map[string]string, len(rec.Fields))
	}
	for name, value := range rec.Fields {
		formatted := FormatValue(value, metaByName[name])
		rec.FieldsText[name] = formatted.Text
		if observe != nil {
			observe(formatted.Status)
		}
	}
}

func renderValue(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", true
	case string:
		return v, true
	case bool:
		if v {
			return "✅", true
		}
		return "❌", true
	case float64:
		return renderNumber(v), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return renderNumber(float64(v)), true
	case map[string]any:
		return renderMap(v)
	case []any:
		return renderList(v)
	case []string:
		return strings.Join(v, "、"), true
	default:
		return fmt.Sprintf("%v", value), false
	}
}

// renderNumber formats millisecond timestamps as local datetimes and keeps
// other numerics compact.
func renderNumber(v float64) string {
	if v > 1e12 {
		t := time.UnixMilli(int64(v)).In(agentZone)
		if t.Hour() == 0 && t.Minute() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04")
	}
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// renderMap handles the nested shapes: {text: ...}, {name: ...}, and person
// objects carrying an id.
func renderMap(v map[string]any) (string, bool) {
	if text, ok := v["text"].(string); ok {
		return text, true
	}
	if name, ok := v["name"].(string); ok {
		if _, isPerson := v["id"]; isPerson {
			return "@" + name, true
		}
		return name, true
	}
	if link, ok := v["link"].(string); ok {
		return link, true
	}
	if fileName, ok := v["file_name"].(string); ok {
		return "📎" + fileName, true
	}
	return fmt.Sprintf("%v", v), false
}

func renderList(items []any) (string, bool) {
	parts := make([]string, 0, len(items))
	ok := true
	for _, item := range items {
		text, itemOK := renderValue(item)
		if !itemOK {
			ok = false
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "、"), ok
}
