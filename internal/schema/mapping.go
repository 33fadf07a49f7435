package schema

import "strings"

// ResolveField maps a user-supplied field name onto an actual schema field.
// Resolution tries, in order: exact match, configured aliases, normalized
// match, then compact / suffix / contains matching where only a unique hit
// counts. An ambiguous name resolves to "".
func ResolveField(s *TableSchema, name string, aliases map[string][]string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	if _, ok := s.FieldByName(name); ok {
		return name
	}

	for _, candidate := range aliases[name] {
		if _, ok := s.FieldByName(candidate); ok {
			return candidate
		}
	}

	normalized := normalizeFieldName(name)
	for _, actual := range s.FieldNames() {
		if normalizeFieldName(actual) == normalized {
			return actual
		}
	}

	compact := compactFieldName(name)
	if compact != "" {
		if hit := uniqueMatch(s, func(actual string) bool {
			return compactFieldName(actual) == compact
		}); hit != "" {
			return hit
		}
		if hit := uniqueMatch(s, func(actual string) bool {
			ac := compactFieldName(actual)
			return strings.HasSuffix(ac, compact) || strings.HasSuffix(compact, ac)
		}); hit != "" {
			return hit
		}
		if hit := uniqueMatch(s, func(actual string) bool {
			ac := compactFieldName(actual)
			return strings.Contains(ac, compact) || strings.Contains(compact, ac)
		}); hit != "" {
			return hit
		}
	}

	return ""
}

func uniqueMatch(s *TableSchema, match func(actual string) bool) string {
	hit := ""
	for _, actual := range s.FieldNames() {
		if !match(actual) {
			continue
		}
		if hit != "" {
			return ""
		}
		hit = actual
	}
	return hit
}

// normalizeFieldName lowercases and strips whitespace so casing and spacing
// differences do not block a match.
func normalizeFieldName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}

// compactFieldName additionally strips the punctuation users drop or add.
func compactFieldName(name string) string {
	normalized := normalizeFieldName(name)
	replacer := strings.NewReplacer(
		"（", "", "）", "", "(", "", ")", "",
		"：", "", ":", "", "、", "", "，", "", ",", "",
		"-", "", "_", "", "/", "",
	)
	return replacer.Replace(normalized)
}
