package costs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestMonitorAlertsOncePerWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)}
	var alerts []Alert
	m := NewMonitor(Thresholds{Hourly: 1.0, Daily: 10.0}, clock, func(a Alert) {
		alerts = append(alerts, a)
	}, nil)

	m.Record("query", 0.6)
	assert.Empty(t, alerts)

	m.Record("update", 0.5)
	require.Len(t, alerts, 1)
	assert.Equal(t, "hourly", alerts[0].Window)

	// same window, no second alert
	m.Record("query", 0.3)
	assert.Len(t, alerts, 1)

	// new hour resets the window and the alert latch
	clock.now = clock.now.Add(time.Hour)
	m.Record("query", 1.2)
	require.Len(t, alerts, 2)
	assert.Equal(t, "hourly", alerts[1].Window)
}

func TestMonitorTopSkills(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)}
	var alerts []Alert
	m := NewMonitor(Thresholds{Hourly: 1.0}, clock, func(a Alert) { alerts = append(alerts, a) }, nil)

	m.Record("query", 0.4)
	m.Record("update", 0.3)
	m.Record("create", 0.2)
	m.Record("delete", 0.2)

	require.Len(t, alerts, 1)
	top := alerts[0].TopSkills
	require.Len(t, top, 3)
	assert.Equal(t, "query", top[0].Skill)
	assert.Equal(t, "update", top[1].Skill)
}

func TestMonitorCircuitBreaker(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)}
	m := NewMonitor(Thresholds{Daily: 1.0, CircuitBreaker: true}, clock, nil, nil)

	assert.True(t, m.Allow())
	m.Record("query", 1.5)
	assert.False(t, m.Allow())

	// next day the breaker resets
	clock.now = clock.now.Add(24 * time.Hour)
	assert.True(t, m.Allow())
}

func TestMonitorBreakerDisabled(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)}
	m := NewMonitor(Thresholds{Daily: 1.0, CircuitBreaker: false}, clock, nil, nil)
	m.Record("query", 5.0)
	assert.True(t, m.Allow())
}

func TestUsageLoggerWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.log")
	var statuses []string
	l := NewUsageLogger(path, nil, func(s string) { statuses = append(statuses, s) }, nil)

	l.Write(UsageRecord{UserID: "u1", Skill: "query", Model: "mock", Cost: 0.01, Status: "ok"})
	l.Write(UsageRecord{UserID: "u1", Skill: "update", Model: "mock", Cost: 0.02, Status: "ok"})

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(raw))
	assert.Equal(t, []string{"ok", "ok"}, statuses)
}

func TestUsageLoggerFallback(t *testing.T) {
	// a directory path makes the open fail
	dir := t.TempDir()
	var fellBack []UsageRecord
	var statuses []string
	l := NewUsageLogger(dir, func(r UsageRecord) { fellBack = append(fellBack, r) },
		func(s string) { statuses = append(statuses, s) }, nil)

	l.Write(UsageRecord{UserID: "u1", Skill: "query"})
	require.Len(t, fellBack, 1)
	assert.Equal(t, []string{"fallback"}, statuses)
}

func countLines(raw []byte) int {
	n := 0
	for _, b := range raw {
		if b == '\n' {
			n++
		}
	}
	return n
}
