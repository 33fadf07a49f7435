// Package costs guards model spend: a windowed cost monitor with alerting and
// a circuit breaker, plus the JSONL usage logger.
package costs

import (
	"sort"
	"sync"
	"time"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/cache"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
)

// CircuitBreakerMessage is returned to users while the daily budget is spent.
const CircuitBreakerMessage = "当前服务预算已达到当日阈值，暂不支持新的智能调用，请稍后再试。"

// Thresholds configures the spend windows in USD.
type Thresholds struct {
	Hourly         float64
	Daily          float64
	CircuitBreaker bool
}

// Alert describes one threshold crossing.
type Alert struct {
	Window    string    // "hourly" or "daily"
	WindowKey string    // e.g. 2025-06-02T10 or 2025-06-02
	Spent     float64
	Threshold float64
	TopSkills []SkillSpend
	At        time.Time
}

// SkillSpend is one skill's share of a window's spend.
type SkillSpend struct {
	Skill string
	Cost  float64
}

type window struct {
	key     string
	total   float64
	bySkill map[string]float64
}

func newWindow(key string) *window {
	return &window{key: key, bySkill: make(map[string]float64)}
}

// Monitor tracks model spend per hour and per day. One alert fires per window
// key; when the circuit breaker is on, Allow reports false for the rest of a
// day whose threshold is crossed.
type Monitor struct {
	mu        sync.Mutex
	cfg       Thresholds
	clock     cache.Clock
	hourly    *window
	daily     *window
	alerted   map[string]bool
	onAlert   func(Alert)
	logger    logging.Logger
}

// NewMonitor builds a monitor. onAlert may be nil.
func NewMonitor(cfg Thresholds, clock cache.Clock, onAlert func(Alert), logger logging.Logger) *Monitor {
	if clock == nil {
		clock = cache.SystemClock()
	}
	return &Monitor{
		cfg:     cfg,
		clock:   clock,
		alerted: make(map[string]bool),
		onAlert: onAlert,
		logger:  logging.OrNop(logger),
	}
}

func hourKey(t time.Time) string { return t.Format("2006-01-02T15") }
func dayKey(t time.Time) string  { return t.Format("2006-01-02") }

// Record adds one call's cost attributed to skill.
func (m *Monitor) Record(skill string, cost float64) {
	if cost <= 0 {
		return
	}
	now := m.clock.Now()

	m.mu.Lock()
	m.roll(now)
	m.hourly.total += cost
	m.hourly.bySkill[skill] += cost
	m.daily.total += cost
	m.daily.bySkill[skill] += cost

	var alerts []Alert
	if m.cfg.Hourly > 0 && m.hourly.total >= m.cfg.Hourly {
		if key := "hourly:" + m.hourly.key; !m.alerted[key] {
			m.alerted[key] = true
			alerts = append(alerts, m.buildAlert("hourly", m.hourly, m.cfg.Hourly, now))
		}
	}
	if m.cfg.Daily > 0 && m.daily.total >= m.cfg.Daily {
		if key := "daily:" + m.daily.key; !m.alerted[key] {
			m.alerted[key] = true
			alerts = append(alerts, m.buildAlert("daily", m.daily, m.cfg.Daily, now))
		}
	}
	m.mu.Unlock()

	for _, alert := range alerts {
		m.logger.Warn("cost threshold crossed: %s window %s spent %.4f (threshold %.2f)",
			alert.Window, alert.WindowKey, alert.Spent, alert.Threshold)
		if m.onAlert != nil {
			m.onAlert(alert)
		}
	}
}

// Allow reports whether new model calls may proceed. It is false only when
// the circuit breaker is enabled and today's spend crossed the daily budget.
func (m *Monitor) Allow() bool {
	if !m.cfg.CircuitBreaker || m.cfg.Daily <= 0 {
		return true
	}
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roll(now)
	return m.daily.total < m.cfg.Daily
}

// Spent returns the current hourly and daily totals.
func (m *Monitor) Spent() (hourly, daily float64) {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roll(now)
	return m.hourly.total, m.daily.total
}

func (m *Monitor) roll(now time.Time) {
	if m.hourly == nil || m.hourly.key != hourKey(now) {
		m.hourly = newWindow(hourKey(now))
	}
	if m.daily == nil || m.daily.key != dayKey(now) {
		m.daily = newWindow(dayKey(now))
	}
}

func (m *Monitor) buildAlert(name string, w *window, threshold float64, now time.Time) Alert {
	return Alert{
		Window:    name,
		WindowKey: w.key,
		Spent:     w.total,
		Threshold: threshold,
		TopSkills: topSkills(w.bySkill, 3),
		At:        now,
	}
}

func topSkills(spend map[string]float64, n int) []SkillSpend {
	out := make([]SkillSpend, 0, len(spend))
	for skill, cost := range spend {
		out = append(out, SkillSpend{Skill: skill, Cost: cost})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cost > out[j].Cost })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
