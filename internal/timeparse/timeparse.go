// Package timeparse turns the date and time expressions users type in Chinese
// into calendar ranges for date-field filters.
package timeparse

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Range is a resolved date window, optionally narrowed to a time-of-day band.
// Dates are ISO (YYYY-MM-DD), times HH:MM.
type Range struct {
	DateFrom string
	DateTo   string
	TimeFrom string
	TimeTo   string
}

var (
	ymdPattern      = regexp.MustCompile(`(\d{4})\s*(?:年|[\-/.])\s*(\d{1,2})\s*(?:月|[\-/.])\s*(\d{1,2})\s*(?:日|号)?`)
	mdPattern       = regexp.MustCompile(`(\d{1,2})\s*(?:月|[\-/.])\s*(\d{1,2})\s*(?:日|号)?`)
	rangeHint       = regexp.MustCompile(`(到|至|~|之间)`)
	weekdayPattern  = regexp.MustCompile(`(下周|本周|这周|周)([一二三四五六日天])`)
	clockPattern    = regexp.MustCompile(`(凌晨|早上|上午|中午|下午|傍晚|晚上|今晚|明晚|今早|明早)?\s*(\d{1,2})[:：](\d{1,2})`)
	hourWordPattern = regexp.MustCompile(`(凌晨|早上|上午|中午|下午|傍晚|晚上|今晚|明晚|今早|明早)?\s*(\d{1,2})点(?:\s*(半|\d{1,2}分?))?`)
)

var weekdayIndex = map[string]int{
	"一": 0, "二": 1, "三": 2, "四": 3, "五": 4, "六": 5, "日": 6, "天": 6,
}

// Parse resolves text against today. It returns nil when the text carries no
// recognizable date or time expression.
func Parse(text string, today time.Time) *Range {
	today = truncateDay(today)
	normalized := normalize(text)
	timeFrom, timeTo := extractTimeWindow(normalized)

	if dates := extractExplicitDates(normalized, today); len(dates) > 0 {
		if rangeHint.MatchString(normalized) && len(dates) >= 2 {
			start, end := dates[0], dates[1]
			if end.Before(start) {
				start, end = end, start
			}
			return &Range{DateFrom: isoDay(start), DateTo: isoDay(end), TimeFrom: timeFrom, TimeTo: timeTo}
		}
		return singleDay(dates[0], timeFrom, timeTo)
	}

	if day, ok := extractRelativeDay(normalized, today); ok {
		return singleDay(day, timeFrom, timeTo)
	}

	switch {
	case strings.Contains(normalized, "本周") || strings.Contains(normalized, "这周"):
		return weekRange(today, timeFrom, timeTo)
	case strings.Contains(normalized, "下周"):
		return weekRange(today.AddDate(0, 0, 7), timeFrom, timeTo)
	case strings.Contains(normalized, "本月") || strings.Contains(normalized, "这个月"):
		return monthRange(today, timeFrom, timeTo)
	case strings.Contains(normalized, "下个月"):
		anchor := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location()).AddDate(0, 1, 0)
		return monthRange(anchor, timeFrom, timeTo)
	}

	if timeFrom != "" || timeTo != "" {
		return singleDay(today, timeFrom, timeTo)
	}
	return nil
}

func singleDay(day time.Time, timeFrom, timeTo string) *Range {
	return &Range{DateFrom: isoDay(day), DateTo: isoDay(day), TimeFrom: timeFrom, TimeTo: timeTo}
}

func weekRange(anchor time.Time, timeFrom, timeTo string) *Range {
	start := anchor.AddDate(0, 0, -mondayOffset(anchor))
	end := start.AddDate(0, 0, 6)
	return &Range{DateFrom: isoDay(start), DateTo: isoDay(end), TimeFrom: timeFrom, TimeTo: timeTo}
}

func monthRange(anchor time.Time, timeFrom, timeTo string) *Range {
	start := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
	end := start.AddDate(0, 1, -1)
	return &Range{DateFrom: isoDay(start), DateTo: isoDay(end), TimeFrom: timeFrom, TimeTo: timeTo}
}

// extractRelativeDay resolves 今天/明天/后天/大后天 and weekday references.
// A bare 周X already past this week rolls to next week.
func extractRelativeDay(text string, today time.Time) (time.Time, bool) {
	if m := weekdayPattern.FindStringSubmatch(text); m != nil {
		weekday := weekdayIndex[m[2]]
		thisWeekStart := today.AddDate(0, 0, -mondayOffset(today))
		if m[1] == "下周" {
			return thisWeekStart.AddDate(0, 0, 7+weekday), true
		}
		target := thisWeekStart.AddDate(0, 0, weekday)
		if m[1] == "周" && target.Before(today) {
			target = target.AddDate(0, 0, 7)
		}
		return target, true
	}

	switch {
	case strings.Contains(text, "大后天"):
		return today.AddDate(0, 0, 3), true
	case strings.Contains(text, "后天"):
		return today.AddDate(0, 0, 2), true
	case containsAny(text, "明天", "明早", "明晚"):
		return today.AddDate(0, 0, 1), true
	case containsAny(text, "今天", "今早", "今晚"):
		return today, true
	}
	return time.Time{}, false
}

// extractTimeWindow resolves a concrete clock time first, then falls back to
// the named time-of-day bands.
func extractTimeWindow(text string) (string, string) {
	if m := clockPattern.FindStringSubmatch(text); m != nil {
		hour := adjustHour(atoi(m[2]), m[1])
		minute := atoi(m[3])
		if hour <= 23 && minute <= 59 {
			hm := fmt.Sprintf("%02d:%02d", hour, minute)
			return hm, hm
		}
	}

	if m := hourWordPattern.FindStringSubmatch(text); m != nil {
		hour := adjustHour(atoi(m[2]), m[1])
		if hour <= 23 {
			switch token := m[3]; {
			case token == "半":
				hm := fmt.Sprintf("%02d:30", hour)
				return hm, hm
			case token != "":
				minute := atoi(strings.TrimSuffix(token, "分"))
				if minute <= 59 {
					hm := fmt.Sprintf("%02d:%02d", hour, minute)
					return hm, hm
				}
			default:
				return fmt.Sprintf("%02d:00", hour), fmt.Sprintf("%02d:59", hour)
			}
		}
	}

	switch {
	case strings.Contains(text, "凌晨"):
		return "00:00", "05:59"
	case containsAny(text, "明早", "今早", "早上", "早晨", "上午"):
		return "06:00", "11:59"
	case strings.Contains(text, "中午"):
		return "11:00", "13:59"
	case strings.Contains(text, "下午"):
		return "13:00", "17:59"
	case strings.Contains(text, "傍晚"):
		return "17:00", "18:59"
	case containsAny(text, "晚上", "今晚", "夜里", "夜间", "明晚"):
		return "18:00", "23:59"
	}
	return "", ""
}

// adjustHour shifts afternoon/evening hours onto the 24h clock.
func adjustHour(hour int, period string) int {
	switch period {
	case "下午", "傍晚", "晚上", "今晚", "明晚":
		if hour >= 1 && hour <= 11 {
			return hour + 12
		}
	case "中午":
		if hour >= 1 && hour <= 11 {
			return hour + 12
		}
	case "凌晨":
		if hour == 12 {
			return 0
		}
	}
	return hour
}

type datedMatch struct {
	pos int
	day time.Time
}

// extractExplicitDates finds YYYY-MM-DD and M月D日 style dates in order of
// appearance. Year-qualified matches are masked before the month-day pass so
// their fragments are not re-matched.
func extractExplicitDates(text string, today time.Time) []time.Time {
	var matches []datedMatch
	masked := []rune(text)

	for _, loc := range ymdPattern.FindAllStringSubmatchIndex(text, -1) {
		year := atoi(text[loc[2]:loc[3]])
		month := atoi(text[loc[4]:loc[5]])
		day := atoi(text[loc[6]:loc[7]])
		if dt, ok := safeDate(year, month, day, today.Location()); ok {
			matches = append(matches, datedMatch{pos: loc[0], day: dt})
		}
		maskBytes(masked, text, loc[0], loc[1])
	}
	maskedText := string(masked)

	for _, loc := range mdPattern.FindAllStringSubmatchIndex(maskedText, -1) {
		if boundedByDigit(maskedText, loc[0], loc[1]) {
			continue
		}
		month := atoi(maskedText[loc[2]:loc[3]])
		day := atoi(maskedText[loc[4]:loc[5]])
		if dt, ok := safeDate(today.Year(), month, day, today.Location()); ok {
			matches = append(matches, datedMatch{pos: loc[0], day: dt})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].pos < matches[j].pos })
	out := make([]time.Time, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.day)
	}
	return out
}

func boundedByDigit(text string, start, end int) bool {
	if start > 0 && isDigitByte(text[start-1]) {
		return true
	}
	if end < len(text) && isDigitByte(text[end]) {
		return true
	}
	return false
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }

func maskBytes(masked []rune, original string, start, end int) {
	// byte offsets from regexp map onto rune positions via a prefix count
	runeStart := len([]rune(original[:start]))
	runeEnd := len([]rune(original[:end]))
	for i := runeStart; i < runeEnd && i < len(masked); i++ {
		masked[i] = ' '
	}
}

func safeDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	dt := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if int(dt.Month()) != month || dt.Day() != day {
		return time.Time{}, false
	}
	return dt, true
}

func normalize(text string) string {
	replacer := strings.NewReplacer(
		"／", "/", "－", "-", "—", "-", "–", "-",
		"．", ".", "：", ":", "～", "~",
	)
	return strings.TrimSpace(replacer.Replace(text))
}

func containsAny(text string, tokens ...string) bool {
	for _, t := range tokens {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func mondayOffset(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func isoDay(t time.Time) string { return t.Format("2006-01-02") }

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
