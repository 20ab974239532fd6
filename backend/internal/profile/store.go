// Package profile aggregates per-(user, concept) mastery state. Every
// learning event contributes a bounded three-dimensional increment, and the
// store keeps the durable row per concept plus conversation lineage and the
// user's learning plan.
package profile

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"mindcoach/backend/pkg/errors"
	"mindcoach/backend/pkg/logger"

	_ "modernc.org/sqlite"
)

// AnonymousUserID is the default user for single-user deployments
const AnonymousUserID = "anonymous"

// ConceptProfile is one mastery row per (concept_key, user_id)
type ConceptProfile struct {
	ConceptKey   string
	UserID       string
	U            float64
	R            float64
	A            float64
	Times        int
	LastPractice time.Time
}

// Score is the composite mastery score used for ranking, the plain average
// of the three dimensions.
func (p ConceptProfile) Score() float64 {
	return (p.U + p.R + p.A) / 3.0
}

// Store is the SQLite-backed profile store
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore opens (or creates) the profile database at dbPath and runs
// migrations. Pass ":memory:" for in-memory databases (testing).
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory sqlite database exists per connection, so the pool must
	// stay at one connection for tests to see a single database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &Store{
		db:     db,
		logger: logger.Named("profile"),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("Profile store opened", zap.String("path", dbPath))
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS concept_profiles (
		concept_key   TEXT NOT NULL,
		user_id       TEXT NOT NULL,
		u             REAL NOT NULL DEFAULT 0,
		r             REAL NOT NULL DEFAULT 0,
		a             REAL NOT NULL DEFAULT 0,
		times         INTEGER NOT NULL DEFAULT 0,
		last_practice TEXT,
		PRIMARY KEY (concept_key, user_id)
	);

	CREATE TABLE IF NOT EXISTS conversation_concepts (
		conversation_id TEXT NOT NULL,
		concept_key     TEXT NOT NULL,
		user_id         TEXT NOT NULL,
		PRIMARY KEY (conversation_id, concept_key, user_id)
	);

	CREATE TABLE IF NOT EXISTS learning_plan (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id     TEXT NOT NULL,
		concept_key TEXT NOT NULL,
		UNIQUE (user_id, concept_key)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}

// clamp01 clips a value to [0, 1]
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// normalizeUser substitutes the anonymous user for empty ids
func normalizeUser(userID string) string {
	if strings.TrimSpace(userID) == "" {
		return AnonymousUserID
	}
	return userID
}

// Upsert folds one learning-event increment into a concept's profile row:
// each dimension becomes clamp01(old + delta), times increases by exactly
// one, and last_practice moves to now. A missing row is created with
// times = 1.
//
// This is a read-modify-write sequence without serializable isolation.
// Concurrent upserts against the same key can race and lose an increment
// (last writer wins on the read snapshot); callers needing stronger
// accounting must serialize per key.
func (s *Store) Upsert(ctx context.Context, conceptKey string, delta ActivityVector, userID string) error {
	if conceptKey == "" {
		return nil
	}
	userID = normalizeUser(userID)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	row := s.db.QueryRowContext(ctx, `
		SELECT u, r, a, times FROM concept_profiles
		WHERE concept_key = ? AND user_id = ?`,
		conceptKey, userID)

	var u, r, a float64
	var times int
	err := row.Scan(&u, &r, &a, &times)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO concept_profiles (concept_key, user_id, u, r, a, times, last_practice)
			VALUES (?, ?, ?, ?, ?, 1, ?)`,
			conceptKey, userID,
			clamp01(delta.U), clamp01(delta.R), clamp01(delta.A), now)
		if err != nil {
			return fmt.Errorf("inserting profile %s/%s: %w", userID, conceptKey, err)
		}
	case err != nil:
		return fmt.Errorf("reading profile %s/%s: %w", userID, conceptKey, err)
	default:
		_, err = s.db.ExecContext(ctx, `
			UPDATE concept_profiles
			SET u = ?, r = ?, a = ?, times = ?, last_practice = ?
			WHERE concept_key = ? AND user_id = ?`,
			clamp01(u+delta.U), clamp01(r+delta.R), clamp01(a+delta.A), times+1, now,
			conceptKey, userID)
		if err != nil {
			return fmt.Errorf("updating profile %s/%s: %w", userID, conceptKey, err)
		}
	}

	return nil
}

// Get returns a single profile row. A missing row yields an
// ErrProfileNotFound, which callers can detect with errors.IsProfileNotFound.
func (s *Store) Get(ctx context.Context, conceptKey, userID string) (*ConceptProfile, error) {
	userID = normalizeUser(userID)

	row := s.db.QueryRowContext(ctx, `
		SELECT concept_key, user_id, u, r, a, times, last_practice
		FROM concept_profiles
		WHERE concept_key = ? AND user_id = ?`,
		conceptKey, userID)

	p, err := scanProfile(row.Scan)
	if err == sql.ErrNoRows {
		return nil, errors.NewProfileNotFound(conceptKey, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile %s/%s: %w", userID, conceptKey, err)
	}
	return p, nil
}

// Delete removes the profile row only; lineage records are preserved so an
// ancestor lookup still finds concepts from deleted profiles.
func (s *Store) Delete(ctx context.Context, conceptKey, userID string) error {
	if conceptKey == "" {
		return nil
	}
	userID = normalizeUser(userID)

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM concept_profiles WHERE concept_key = ? AND user_id = ?`,
		conceptKey, userID)
	if err != nil {
		return fmt.Errorf("deleting profile %s/%s: %w", userID, conceptKey, err)
	}
	return nil
}

// ListAll returns every profile row for a user, sorted by composite score
// descending. Ties keep insertion order.
func (s *Store) ListAll(ctx context.Context, userID string) ([]ConceptProfile, error) {
	profiles, err := s.listInsertionOrder(ctx, userID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Score() > profiles[j].Score()
	})
	return profiles, nil
}

// ListWeakest returns up to limit rows sorted by understanding ascending,
// the concepts a user most needs to revisit. Limit has a floor of 1, and
// ties keep insertion order.
func (s *Store) ListWeakest(ctx context.Context, userID string, limit int) ([]ConceptProfile, error) {
	if limit < 1 {
		limit = 1
	}

	profiles, err := s.listInsertionOrder(ctx, userID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].U < profiles[j].U
	})
	if len(profiles) > limit {
		profiles = profiles[:limit]
	}
	return profiles, nil
}

func (s *Store) listInsertionOrder(ctx context.Context, userID string) ([]ConceptProfile, error) {
	userID = normalizeUser(userID)

	rows, err := s.db.QueryContext(ctx, `
		SELECT concept_key, user_id, u, r, a, times, last_practice
		FROM concept_profiles
		WHERE user_id = ?
		ORDER BY rowid`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("listing profiles for %s: %w", userID, err)
	}
	defer rows.Close()

	var profiles []ConceptProfile
	for rows.Next() {
		p, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning profile row: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profiles: %w", err)
	}
	return profiles, nil
}

func scanProfile(scan func(dest ...any) error) (*ConceptProfile, error) {
	var p ConceptProfile
	var lastPractice sql.NullString

	if err := scan(&p.ConceptKey, &p.UserID, &p.U, &p.R, &p.A, &p.Times, &lastPractice); err != nil {
		return nil, err
	}

	if lastPractice.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastPractice.String); err == nil {
			p.LastPractice = t
		}
	}
	return &p, nil
}

// RecordLineage records which concepts one conversation touched, so ancestor
// lookups can recover them later. Duplicate triples are ignored.
func (s *Store) RecordLineage(ctx context.Context, conversationID string, conceptKeys []string, userID string) error {
	if conversationID == "" || len(conceptKeys) == 0 {
		return nil
	}
	userID = normalizeUser(userID)

	for _, key := range conceptKeys {
		if key == "" {
			continue
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO conversation_concepts (conversation_id, concept_key, user_id)
			VALUES (?, ?, ?)`,
			conversationID, key, userID)
		if err != nil {
			return fmt.Errorf("recording lineage %s/%s: %w", conversationID, key, err)
		}
	}
	return nil
}

// LineageConcepts returns the distinct concept keys ever recorded under any
// of the given conversation ids.
func (s *Store) LineageConcepts(ctx context.Context, conversationIDs []string, userID string) ([]string, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}
	userID = normalizeUser(userID)

	placeholders := strings.Repeat("?,", len(conversationIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(conversationIDs)+1)
	for _, id := range conversationIDs {
		args = append(args, id)
	}
	args = append(args, userID)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT DISTINCT concept_key FROM conversation_concepts
		WHERE conversation_id IN (%s) AND user_id = ?`, placeholders),
		args...)
	if err != nil {
		return nil, fmt.Errorf("querying lineage: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning lineage row: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lineage: %w", err)
	}
	return keys, nil
}

// AddToPlan adds a concept to the user's learning plan; already present is a no-op
func (s *Store) AddToPlan(ctx context.Context, conceptKey, userID string) error {
	if conceptKey == "" {
		return nil
	}
	userID = normalizeUser(userID)

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO learning_plan (user_id, concept_key) VALUES (?, ?)`,
		userID, conceptKey)
	if err != nil {
		return fmt.Errorf("adding %s to plan: %w", conceptKey, err)
	}
	return nil
}

// RemoveFromPlan removes a concept from the user's learning plan
func (s *Store) RemoveFromPlan(ctx context.Context, conceptKey, userID string) error {
	if conceptKey == "" {
		return nil
	}
	userID = normalizeUser(userID)

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM learning_plan WHERE user_id = ? AND concept_key = ?`,
		userID, conceptKey)
	if err != nil {
		return fmt.Errorf("removing %s from plan: %w", conceptKey, err)
	}
	return nil
}

// Plan returns the user's learning-plan concepts in insertion order
func (s *Store) Plan(ctx context.Context, userID string) ([]string, error) {
	userID = normalizeUser(userID)

	rows, err := s.db.QueryContext(ctx, `
		SELECT concept_key FROM learning_plan WHERE user_id = ? ORDER BY id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("listing plan for %s: %w", userID, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning plan row: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plan: %w", err)
	}
	return keys, nil
}
