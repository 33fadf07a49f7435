package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists conversation state across restarts. Each user maps to
// one row holding the JSON-serialized state record.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the state database at path. Use
// ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	// Single writer; the manager serializes per-user access above us.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS conversation_state (
			user_id    TEXT PRIMARY KEY,
			state      TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate state db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get loads the state for userID.
func (s *SQLiteStore) Get(userID string) (*ConversationState, bool) {
	var raw string
	err := s.db.QueryRow(
		`SELECT state FROM conversation_state WHERE user_id = ?`, userID,
	).Scan(&raw)
	if err != nil {
		return nil, false
	}
	var st ConversationState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, false
	}
	return &st, true
}

// Set upserts the state row for userID.
func (s *SQLiteStore) Set(userID string, state *ConversationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state for %s: %w", userID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO conversation_state (user_id, state, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			state = excluded.state,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		userID, string(raw), state.ExpiresAt.UnixMilli(), state.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("persist state for %s: %w", userID, err)
	}
	return nil
}

// Delete removes the state row for userID.
func (s *SQLiteStore) Delete(userID string) error {
	if _, err := s.db.Exec(`DELETE FROM conversation_state WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete state for %s: %w", userID, err)
	}
	return nil
}

// UserIDs lists every stored user.
func (s *SQLiteStore) UserIDs() []string {
	rows, err := s.db.Query(`SELECT user_id FROM conversation_state`)
	if err != nil {
		return nil
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// PurgeExpired removes rows whose session expiry is at or before now. It
// backs the periodic sweep so restarts do not resurrect stale sessions.
func (s *SQLiteStore) PurgeExpired(now time.Time) (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM conversation_state WHERE expires_at > 0 AND expires_at <= ?`,
		now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge expired state: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
