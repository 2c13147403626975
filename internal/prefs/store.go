// Package prefs provides durable cross-session user memory: structured
// preference facts, free-text preference sets, and conversation thread
// metadata. One live fact per (user, key); writes are last-write-wins.
package prefs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Fact source tags. Explicit facts come straight from a user statement;
// inferred facts are derived from extracted free-text preferences.
const (
	SourceExplicit = "explicit"
	SourceInferred = "inferred"
)

// Fact is a durable, keyed, confidence-scored user attribute.
type Fact struct {
	UserID     string    `json:"user_id"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Source     string    `json:"source"`     // explicit or inferred
	Confidence float64   `json:"confidence"` // 0-1
	Evidence   string    `json:"evidence,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Thread is conversation metadata. Ownership is fixed at first write.
type Thread struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store manages preference persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a preference store using the given database path.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewStoreWithDB creates a preference store using an existing database
// connection.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS preference_facts (
			user_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			source TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 1.0,
			evidence TEXT,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, key)
		);

		CREATE INDEX IF NOT EXISTS idx_facts_updated ON preference_facts(user_id, updated_at DESC);

		CREATE TABLE IF NOT EXISTS user_preferences (
			user_id TEXT PRIMARY KEY,
			preferences_json TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_threads_user ON threads(user_id, updated_at DESC);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertFact creates or replaces the fact for (user, key) as one atomic
// conditional write. Confidence and evidence travel together with the
// value; nothing is merged.
func (s *Store) UpsertFact(f Fact) error {
	return upsertFact(s.db, f)
}

// execer abstracts *sql.DB and *sql.Tx so the same statements serve
// standalone writes and the extractor's single-transaction apply.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func upsertFact(e execer, f Fact) error {
	now := f.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	_, err := e.Exec(`
		INSERT INTO preference_facts (user_id, key, value, source, confidence, evidence, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET
			value = excluded.value,
			source = excluded.source,
			confidence = excluded.confidence,
			evidence = excluded.evidence,
			updated_at = excluded.updated_at
	`, f.UserID, f.Key, f.Value, f.Source, f.Confidence, f.Evidence, now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert fact %s/%s: %w", f.UserID, f.Key, err)
	}
	return nil
}

// getFact retrieves the live fact for (user, key).
func (s *Store) getFact(userID, key string) (*Fact, error) {
	row := s.db.QueryRow(`
		SELECT user_id, key, value, source, confidence, evidence, updated_at
		FROM preference_facts WHERE user_id = ? AND key = ?
	`, userID, key)
	return scanFact(row)
}

// TopFacts returns the user's n most-recently-updated facts.
func (s *Store) TopFacts(userID string, n int) ([]Fact, error) {
	rows, err := s.db.Query(`
		SELECT user_id, key, value, source, confidence, evidence, updated_at
		FROM preference_facts
		WHERE user_id = ?
		ORDER BY updated_at DESC, key
		LIMIT ?
	`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		var evidence sql.NullString
		var updated string
		if err := rows.Scan(&f.UserID, &f.Key, &f.Value, &f.Source, &f.Confidence, &evidence, &updated); err != nil {
			return nil, err
		}
		if evidence.Valid {
			f.Evidence = evidence.String
		}
		f.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// TextPreferences returns the user's deduplicated free-text preference
// statements, sorted for stable output.
func (s *Store) TextPreferences(userID string) ([]string, error) {
	return textPreferences(s.db, userID)
}

func textPreferences(e execer, userID string) ([]string, error) {
	var raw string
	err := e.QueryRow(`SELECT preferences_json FROM user_preferences WHERE user_id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}

	var prefs []string
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	return prefs, nil
}

// MergeTextPreferences folds new statements into the stored set,
// deduplicating. The write recomputes the full set from what is stored
// now, so a previously failed write cannot corrupt future merges.
func (s *Store) MergeTextPreferences(userID string, newPrefs []string) error {
	return mergeTextPreferences(s.db, userID, newPrefs)
}

func mergeTextPreferences(e execer, userID string, newPrefs []string) error {
	existing, err := textPreferences(e, userID)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(existing)+len(newPrefs))
	merged := make([]string, 0, len(existing)+len(newPrefs))
	for _, p := range append(existing, newPrefs...) {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		merged = append(merged, p)
	}
	sort.Strings(merged)

	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	_, err = e.Exec(`
		INSERT INTO user_preferences (user_id, preferences_json) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET preferences_json = excluded.preferences_json
	`, userID, string(raw))
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}

// UpsertThread creates a thread or refreshes its title. Ownership is
// fixed at first write: a conflicting write from a different user
// updates the title but never transfers the thread.
func (s *Store) UpsertThread(threadID, userID, title string) error {
	return upsertThread(s.db, threadID, userID, title)
}

func upsertThread(e execer, threadID, userID, title string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := e.Exec(`
		INSERT INTO threads (id, user_id, title, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at
	`, threadID, userID, title, now)
	if err != nil {
		return fmt.Errorf("upsert thread %s: %w", threadID, err)
	}
	return nil
}

// Thread retrieves thread metadata by id. A missing thread is nil, not
// an error.
func (s *Store) Thread(threadID string) (*Thread, error) {
	var t Thread
	var updated string
	err := s.db.QueryRow(`SELECT id, user_id, title, updated_at FROM threads WHERE id = ?`, threadID).
		Scan(&t.ID, &t.UserID, &t.Title, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &t, nil
}

// Threads lists a user's threads, most recently updated first.
func (s *Store) Threads(userID string) ([]Thread, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, title, updated_at FROM threads
		WHERE user_id = ? ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		var t Thread
		var updated string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &updated); err != nil {
			return nil, err
		}
		t.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// ApplyExtraction applies one turn's knowledge-extraction output as a
// single atomic unit: text preference merge, fact upserts, and the
// thread title refresh either all land or none do.
func (s *Store) ApplyExtraction(userID, threadID, title string, textPrefs []string, facts []Fact) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if len(textPrefs) > 0 {
		if err := mergeTextPreferences(tx, userID, textPrefs); err != nil {
			return err
		}
	}
	for _, f := range facts {
		if err := upsertFact(tx, f); err != nil {
			return err
		}
	}
	if title != "" {
		if err := upsertThread(tx, threadID, userID, title); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func scanFact(row *sql.Row) (*Fact, error) {
	var f Fact
	var evidence sql.NullString
	var updated string
	if err := row.Scan(&f.UserID, &f.Key, &f.Value, &f.Source, &f.Confidence, &evidence, &updated); err != nil {
		return nil, err
	}
	if evidence.Valid {
		f.Evidence = evidence.String
	}
	f.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &f, nil
}
