package memory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJournalRecentFiltersByUser(t *testing.T) {
	j := NewJournal(100)
	j.Append(Event{UserID: "u1", Kind: "request", Skill: "query"})
	j.Append(Event{UserID: "u2", Kind: "request", Skill: "create"})
	j.Append(Event{UserID: "u1", Kind: "callback", Skill: "create"})

	events := j.Recent("u1", 10)
	assert.Len(t, events, 2)
	assert.Equal(t, "request", events[0].Kind)
	assert.Equal(t, "callback", events[1].Kind)
}

func TestJournalBound(t *testing.T) {
	j := NewJournal(5)
	for i := 0; i < 10; i++ {
		j.Append(Event{UserID: "u1", Kind: fmt.Sprintf("k%d", i)})
	}

	snap := j.Snapshot()
	assert.Equal(t, 5, snap.Total)
	// oldest entries fell off
	assert.Zero(t, snap.ByKind["k0"])
	assert.Equal(t, 1, snap.ByKind["k9"])
}

func TestJournalSnapshotCounts(t *testing.T) {
	j := NewJournal(0)
	j.Append(Event{UserID: "u1", Kind: "request"})
	j.Append(Event{UserID: "u1", Kind: "request"})
	j.Append(Event{UserID: "u1", Kind: "callback"})

	snap := j.Snapshot()
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 2, snap.ByKind["request"])
	assert.Equal(t, 1, snap.ByKind["callback"])
	assert.False(t, snap.Newest.Before(snap.Oldest))
}
