package skills

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
)

// Reminder is one scheduled notification ahead of a date field.
type Reminder struct {
	ID        string
	RecordID  string
	TableName string
	Field     string
	Summary   string
	RemindAt  time.Time
	// UserID overrides the scheduler's default notification target.
	UserID string
}

// Notifier delivers due reminders to the chat channel.
type Notifier interface {
	Notify(userID, text string) error
}

// ReminderScheduler holds pending reminders and fires them on a cron tick.
// Reminders are per record; closing or deleting a record cancels them unless
// the close profile preserves seizure reminders.
type ReminderScheduler struct {
	mu        sync.Mutex
	reminders map[string]Reminder
	cron      *cron.Cron
	notifier  Notifier
	userID    string
	logger    logging.Logger
}

// NewReminderScheduler builds the scheduler. Call Start to begin ticking.
func NewReminderScheduler(notifier Notifier, notifyUserID string, logger logging.Logger) *ReminderScheduler {
	return &ReminderScheduler{
		reminders: make(map[string]Reminder),
		cron:      cron.New(cron.WithLocation(agentZone)),
		notifier:  notifier,
		userID:    notifyUserID,
		logger:    logging.OrNop(logger),
	}
}

// Start begins the minutely due-check.
func (s *ReminderScheduler) Start() error {
	if _, err := s.cron.AddFunc("* * * * *", s.fireDue); err != nil {
		return fmt.Errorf("schedule reminder tick: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for a running tick.
func (s *ReminderScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Schedule registers a reminder. Reminders already in the past are dropped.
func (s *ReminderScheduler) Schedule(r Reminder) {
	if r.RemindAt.Before(time.Now()) {
		return
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders[r.ID] = r
	s.logger.Debug("reminder scheduled: %s %s at %s", r.Summary, r.Field, r.RemindAt.Format(time.RFC3339))
}

// CancelForRecord removes the record's reminders. Policy preserve_seizure
// keeps the seizure-expiry reminder alive.
func (s *ReminderScheduler) CancelForRecord(recordID, policy string) {
	if recordID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.reminders {
		if r.RecordID != recordID {
			continue
		}
		if policy == "preserve_seizure" && r.Field == "查封到期日" {
			continue
		}
		delete(s.reminders, id)
	}
}

// Pending returns the number of scheduled reminders.
func (s *ReminderScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reminders)
}

func (s *ReminderScheduler) fireDue() {
	now := time.Now()
	var due []Reminder
	s.mu.Lock()
	for id, r := range s.reminders {
		if !r.RemindAt.After(now) {
			due = append(due, r)
			delete(s.reminders, id)
		}
	}
	s.mu.Unlock()

	for _, r := range due {
		text := fmt.Sprintf("⏰ 提醒：「%s」的 %s 即将到期（%s）", r.Summary, r.Field, r.RemindAt.Format("2006-01-02"))
		if s.notifier == nil {
			s.logger.Info("reminder due (no notifier): %s", text)
			continue
		}
		target := r.UserID
		if target == "" {
			target = s.userID
		}
		if err := s.notifier.Notify(target, text); err != nil {
			s.logger.Error("reminder delivery failed: %v", err)
		}
	}
}
