package skills

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/backend"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/config"
)

func TestConfirmAndCancelWords(t *testing.T) {
	assert.True(t, IsConfirmText("确认"))
	assert.True(t, IsConfirmText(" 是 "))
	assert.True(t, IsConfirmText("OK"))
	assert.True(t, IsConfirmText("ok"))
	assert.False(t, IsConfirmText("确认一下详情"))

	assert.True(t, IsCancelText("取消"))
	assert.True(t, IsCancelText("算了"))
	assert.False(t, IsCancelText("取消提醒怎么设置"))
}

func TestBuildDiffReplace(t *testing.T) {
	target := &backend.Record{
		RecordID: "r1",
		Fields:   map[string]any{"案件状态": "未结"},
	}
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	diff, final := buildDiff(target, map[string]any{"案件状态": "已结案"}, config.TableProfile{}, now)
	require.Len(t, diff, 1)
	assert.Equal(t, "replace", diff[0].Mode)
	assert.Equal(t, "未结", diff[0].Old)
	assert.Equal(t, "已结案", diff[0].New)
	assert.Equal(t, "已结案", final["案件状态"])
}

func TestBuildDiffAppendField(t *testing.T) {
	target := &backend.Record{
		RecordID: "r1",
		Fields:   map[string]any{"进展": "[2025-05-20] 立案"},
	}
	profile := config.TableProfile{AppendFields: []string{"进展"}}
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	diff, final := buildDiff(target, map[string]any{"进展": "开庭顺利"}, profile, now)
	require.Len(t, diff, 1)
	assert.Equal(t, "append", diff[0].Mode)
	assert.Equal(t, "[2025-06-02] 开庭顺利", diff[0].Delta)
	assert.Equal(t, "[2025-05-20] 立案\n[2025-06-02] 开庭顺利", final["进展"])
}

func TestDiffPreviewOnLongText(t *testing.T) {
	// short values read fine as old → new
	assert.Empty(t, diffPreview("未结", "已结案"))

	before := "本案一审原告撤诉，双方达成和解协议，等待履行。"
	after := "本案一审原告胜诉，双方达成和解协议，已经履行完毕。"
	preview := diffPreview(before, after)
	assert.Contains(t, preview, "[-")
	assert.Contains(t, preview, "[+")
	assert.Contains(t, preview, "双方达成和解协议")
}

func TestBuildDiffAppendToEmpty(t *testing.T) {
	target := &backend.Record{RecordID: "r1", Fields: map[string]any{}}
	profile := config.TableProfile{AppendFields: []string{"进展"}}
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	_, final := buildDiff(target, map[string]any{"进展": "首次沟通"}, profile, now)
	assert.Equal(t, "[2025-06-02] 首次沟通", final["进展"])
}

func TestRecordSummaryPrefersIdentifiers(t *testing.T) {
	rec := &backend.Record{
		RecordID: "rec_1",
		Fields:   map[string]any{"案号": "(2025)京01民初1号", "委托人": "张三"},
	}
	assert.Equal(t, "(2025)京01民初1号", recordSummary(rec))

	assert.Equal(t, "rec_2", recordSummary(&backend.Record{RecordID: "rec_2", Fields: map[string]any{}}))
}

func TestReminderTime(t *testing.T) {
	future := time.Now().AddDate(0, 0, 30)
	ms := time.Date(future.Year(), future.Month(), future.Day(), 0, 0, 0, 0, agentZone).UnixMilli()

	due, ok := reminderTime(float64(ms), 3)
	require.True(t, ok)
	assert.Equal(t, 9, due.Hour())
	assert.Equal(t, future.AddDate(0, 0, -3).Day(), due.Day())

	// past dates are skipped
	past := time.Now().AddDate(0, 0, -10).UnixMilli()
	_, ok = reminderTime(float64(past), 3)
	assert.False(t, ok)

	// non-timestamp values are ignored
	_, ok = reminderTime("2025-06-15", 3)
	assert.False(t, ok)
}

func TestReminderSchedulerCancelPolicies(t *testing.T) {
	s := NewReminderScheduler(nil, "u1", nil)
	future := time.Now().Add(time.Hour)
	s.Schedule(Reminder{RecordID: "r1", Field: "开庭日", RemindAt: future})
	s.Schedule(Reminder{RecordID: "r1", Field: "查封到期日", RemindAt: future})
	s.Schedule(Reminder{RecordID: "r2", Field: "开庭日", RemindAt: future})
	require.Equal(t, 3, s.Pending())

	s.CancelForRecord("r1", "preserve_seizure")
	assert.Equal(t, 2, s.Pending())

	s.CancelForRecord("r1", "close_all")
	assert.Equal(t, 1, s.Pending())
}
