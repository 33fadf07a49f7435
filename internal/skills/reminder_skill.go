package skills

import (
	"context"
	"fmt"
	"time"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/timeparse"
)

// ReminderSkill creates ad-hoc reminders for a record from an utterance like
// "开庭前三天提醒我". Automatic date-field reminders are the executor's job;
// this skill covers explicit requests.
type ReminderSkill struct {
	deps      *mutationDeps
	scheduler *ReminderScheduler
}

// NewReminderSkill builds the reminder skill.
func NewReminderSkill(deps *mutationDeps, scheduler *ReminderScheduler) *ReminderSkill {
	return &ReminderSkill{deps: deps, scheduler: scheduler}
}

func (s *ReminderSkill) Name() string { return "reminder" }

func (s *ReminderSkill) Execute(ctx context.Context, sc *Context) (*Result, error) {
	d := s.deps
	tableID, tableName, _, err := d.resolveTargetTable(ctx, sc)
	if err != nil {
		return FailResult(s.Name(), "missing_params", "请说明要对哪个表的记录设置提醒"), nil
	}

	_, recordRef, extractErr := d.extractFields(ctx, sc, tableID)
	if extractErr != nil {
		d.logger.Warn("reminder slot extraction failed: %v", extractErr)
	}
	target, err := d.resolveTargetRecord(ctx, sc, tableID, recordRef)
	if err != nil {
		return FailResult(s.Name(), "record_not_found", "未找到目标记录，请先查询确认"), nil
	}

	remindAt, ok := s.resolveTime(sc)
	if !ok {
		return FailResult(s.Name(), "missing_params", "请说明提醒时间，例如：明天上午 或 6月15日"), nil
	}
	if remindAt.Before(time.Now()) {
		return FailResult(s.Name(), "missing_params", "提醒时间已过，请换一个时间"), nil
	}

	s.scheduler.Schedule(Reminder{
		RecordID:  target.RecordID,
		TableName: tableName,
		Field:     "自定义提醒",
		Summary:   recordSummary(target),
		RemindAt:  remindAt,
		UserID:    sc.UserID,
	})

	return TextResult(s.Name(), fmt.Sprintf("⏰ 已设置提醒：%s 关于「%s」",
		remindAt.In(agentZone).Format("2006-01-02 15:04"), recordSummary(target))), nil
}

// resolveTime picks the reminder instant from the parsed date range:
// the range start at the requested hour, 09:00 when only a date was given.
func (s *ReminderSkill) resolveTime(sc *Context) (time.Time, bool) {
	r := sc.DateRange
	if r == nil {
		r = timeparse.Parse(sc.Query, time.Now().In(agentZone))
	}
	if r == nil || r.DateFrom == "" {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation("2006-01-02", r.DateFrom, agentZone)
	if err != nil {
		return time.Time{}, false
	}
	hour, min := 9, 0
	if r.TimeFrom != "" {
		if t, err := time.Parse("15:04", r.TimeFrom); err == nil {
			hour, min = t.Hour(), t.Minute()
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, min, 0, 0, agentZone), true
}
