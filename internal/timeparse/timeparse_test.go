package timeparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday, June 2 2025.
var monday = time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

func TestParseExplicitDate(t *testing.T) {
	r := Parse("6月15日开庭", monday)
	require.NotNil(t, r)
	assert.Equal(t, "2025-06-15", r.DateFrom)
	assert.Equal(t, "2025-06-15", r.DateTo)
}

func TestParseExplicitYMD(t *testing.T) {
	r := Parse("2025年7月1日之前", monday)
	require.NotNil(t, r)
	assert.Equal(t, "2025-07-01", r.DateFrom)
}

func TestParseDateRange(t *testing.T) {
	r := Parse("6月10日到6月20日的开庭", monday)
	require.NotNil(t, r)
	assert.Equal(t, "2025-06-10", r.DateFrom)
	assert.Equal(t, "2025-06-20", r.DateTo)
}

func TestParseReversedRangeNormalizes(t *testing.T) {
	r := Parse("6月20日至6月10日", monday)
	require.NotNil(t, r)
	assert.Equal(t, "2025-06-10", r.DateFrom)
	assert.Equal(t, "2025-06-20", r.DateTo)
}

func TestParseRelativeDays(t *testing.T) {
	cases := map[string]string{
		"今天有什么安排": "2025-06-02",
		"明天的开庭":   "2025-06-03",
		"后天的开庭":   "2025-06-04",
		"大后天的开庭":  "2025-06-05",
	}
	for text, want := range cases {
		r := Parse(text, monday)
		require.NotNil(t, r, text)
		assert.Equal(t, want, r.DateFrom, text)
		assert.Equal(t, want, r.DateTo, text)
	}
}

func TestParseWeekdays(t *testing.T) {
	// base Monday 2025-06-02: 本周三 = 06-04, 下周三 = 06-11
	r := Parse("本周三开庭", monday)
	require.NotNil(t, r)
	assert.Equal(t, "2025-06-04", r.DateFrom)

	r = Parse("下周三开庭", monday)
	require.NotNil(t, r)
	assert.Equal(t, "2025-06-11", r.DateFrom)

	// bare 周一 on a Monday stays today; it has not passed yet
	r = Parse("周一的安排", monday)
	require.NotNil(t, r)
	assert.Equal(t, "2025-06-02", r.DateFrom)
}

func TestParseWeekAndMonthRanges(t *testing.T) {
	r := Parse("本周的开庭", monday)
	require.NotNil(t, r)
	assert.Equal(t, "2025-06-02", r.DateFrom)
	assert.Equal(t, "2025-06-08", r.DateTo)

	r = Parse("下周的开庭", monday)
	require.NotNil(t, r)
	assert.Equal(t, "2025-06-09", r.DateFrom)
	assert.Equal(t, "2025-06-15", r.DateTo)

	r = Parse("本月到期的合同", monday)
	require.NotNil(t, r)
	assert.Equal(t, "2025-06-01", r.DateFrom)
	assert.Equal(t, "2025-06-30", r.DateTo)

	r = Parse("下个月的标书", monday)
	require.NotNil(t, r)
	assert.Equal(t, "2025-07-01", r.DateFrom)
	assert.Equal(t, "2025-07-31", r.DateTo)
}

func TestParseTimeWindows(t *testing.T) {
	r := Parse("明天下午的开庭", monday)
	require.NotNil(t, r)
	assert.Equal(t, "2025-06-03", r.DateFrom)
	assert.Equal(t, "13:00", r.TimeFrom)
	assert.Equal(t, "17:59", r.TimeTo)

	r = Parse("今天晚上", monday)
	require.NotNil(t, r)
	assert.Equal(t, "18:00", r.TimeFrom)
	assert.Equal(t, "23:59", r.TimeTo)
}

func TestParseClockTime(t *testing.T) {
	r := Parse("明天下午3点的庭", monday)
	require.NotNil(t, r)
	assert.Equal(t, "15:00", r.TimeFrom)
	assert.Equal(t, "15:59", r.TimeTo)

	r = Parse("明天14:30开庭", monday)
	require.NotNil(t, r)
	assert.Equal(t, "14:30", r.TimeFrom)
	assert.Equal(t, "14:30", r.TimeTo)

	r = Parse("下午3点半", monday)
	require.NotNil(t, r)
	assert.Equal(t, "15:30", r.TimeFrom)
	assert.Equal(t, "15:30", r.TimeTo)
}

func TestParseTimeOnlyDefaultsToday(t *testing.T) {
	r := Parse("下午有什么安排", monday)
	require.NotNil(t, r)
	assert.Equal(t, "2025-06-02", r.DateFrom)
	assert.Equal(t, "13:00", r.TimeFrom)
}

func TestParseNoSignalReturnsNil(t *testing.T) {
	assert.Nil(t, Parse("查一下张三的案子", monday))
	assert.Nil(t, Parse("", monday))
}
