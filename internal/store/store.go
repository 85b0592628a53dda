// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/keyprint/internal/features"
	"github.com/verte-zerg/keyprint/internal/model"
	"github.com/verte-zerg/keyprint/internal/profile"

	_ "modernc.org/sqlite" // SQLite driver.
)

var (
	// ErrUserNotFound is returned when deleting a user that does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrSampleExists is returned when inserting a sample id that is already stored.
	ErrSampleExists = errors.New("sample already exists")
)

// Store wraps SQLite access for users and samples.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Writes are serialised through a single connection.
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS samples (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			source TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sample_features (
			sample_id TEXT NOT NULL REFERENCES samples(id) ON DELETE CASCADE,
			feature TEXT NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (sample_id, feature)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_samples_user ON samples(user_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertSample stores a sample, creating its user on first use. Empty ID and
// CreatedAt are filled in. It returns the sample id.
func (s *Store) InsertSample(ctx context.Context, sample model.Sample) (string, error) {
	samples := []model.Sample{sample}
	if _, err := s.InsertSamples(ctx, samples, false); err != nil {
		return "", err
	}
	return samples[0].ID, nil
}

// InsertSamples stores samples in a single transaction, so either all of them
// are written or none. Empty IDs and CreatedAt values are filled in place.
// A sample whose ID is already stored fails the whole batch with
// ErrSampleExists, unless skipExisting is set, in which case it is left out.
// It returns the number of samples written.
func (s *Store) InsertSamples(ctx context.Context, samples []model.Sample, skipExisting bool) (n int, err error) {
	for i := range samples {
		if samples[i].UserID == "" {
			return 0, fmt.Errorf("sample has no user id")
		}
		if samples[i].ID == "" {
			samples[i].ID = uuid.NewString()
		}
		if samples[i].CreatedAt.IsZero() {
			samples[i].CreatedAt = time.Now()
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	featureStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sample_features (sample_id, feature, value) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := featureStmt.Close(); cerr != nil {
			// Best-effort statement close.
			_ = cerr
		}
	}()

	var existing []string
	for _, sample := range samples {
		var found int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM samples WHERE id = ?`, sample.ID).Scan(&found)
		if err != nil {
			return 0, err
		}
		if found > 0 {
			existing = append(existing, sample.ID)
			continue
		}
		if err = insertSample(ctx, tx, featureStmt, sample); err != nil {
			return 0, err
		}
		n++
	}
	if len(existing) > 0 && !skipExisting {
		err = fmt.Errorf("%w: %s", ErrSampleExists, strings.Join(existing, ", "))
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func insertSample(ctx context.Context, tx *sql.Tx, featureStmt *sql.Stmt, sample model.Sample) error {
	display := sample.DisplayName
	if display == "" {
		display = sample.UserID
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (user_id, display_name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		sample.UserID, display, sample.CreatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO samples (id, user_id, seq, created_at, source)
		 VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM samples), ?, ?)`,
		sample.ID, sample.UserID, sample.CreatedAt.Format(time.RFC3339Nano), sample.Source,
	); err != nil {
		return err
	}
	for name, value := range sample.Features.Record() {
		if _, err := featureStmt.ExecContext(ctx, sample.ID, name, value); err != nil {
			return err
		}
	}
	return nil
}

// ListUsers returns registered users in registration order.
func (s *Store) ListUsers(ctx context.Context) ([]model.UserSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.user_id, u.display_name, u.created_at, COUNT(sm.id)
		 FROM users u
		 LEFT JOIN samples sm ON sm.user_id = u.user_id
		 GROUP BY u.id
		 ORDER BY u.id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var users []model.UserSummary
	for rows.Next() {
		var u model.UserSummary
		var createdAt string
		if err := rows.Scan(&u.UserID, &u.DisplayName, &createdAt, &u.Samples); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		u.CreatedAt = parsed
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// ListSamples returns samples in registration order, optionally for the
// given users only.
func (s *Store) ListSamples(ctx context.Context, userIDs ...string) ([]model.Sample, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if len(userIDs) > 0 {
		placeholders := make([]string, len(userIDs))
		for i, id := range userIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		clauses = append(clauses, fmt.Sprintf("sm.user_id IN (%s)", strings.Join(placeholders, ",")))
	}
	query := fmt.Sprintf(`SELECT sm.id, sm.user_id, u.display_name, sm.created_at, sm.source, f.feature, f.value
		FROM samples sm
		JOIN users u ON u.user_id = sm.user_id
		LEFT JOIN sample_features f ON f.sample_id = sm.id
		WHERE %s
		ORDER BY u.id ASC, sm.seq ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var samples []model.Sample
	records := map[string]features.Record{}
	for rows.Next() {
		var (
			id, userID, display, createdAt, source string
			feature                                sql.NullString
			value                                  sql.NullFloat64
		)
		if err := rows.Scan(&id, &userID, &display, &createdAt, &source, &feature, &value); err != nil {
			return nil, err
		}
		if _, ok := records[id]; !ok {
			parsed, err := time.Parse(time.RFC3339Nano, createdAt)
			if err != nil {
				return nil, err
			}
			records[id] = features.Record{}
			samples = append(samples, model.Sample{
				ID:          id,
				UserID:      userID,
				DisplayName: display,
				CreatedAt:   parsed,
				Source:      source,
			})
		}
		if feature.Valid && value.Valid {
			records[id][feature.String] = value.Float64
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range samples {
		fv, err := features.FromRecord(records[samples[i].ID])
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", samples[i].ID, err)
		}
		samples[i].Features = fv
	}
	return samples, nil
}

// DeleteUser removes a user and all their samples.
func (s *Store) DeleteUser(ctx context.Context, userID string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM sample_features WHERE sample_id IN (SELECT id FROM samples WHERE user_id = ?)`,
		userID,
	); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM samples WHERE user_id = ?`, userID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = fmt.Errorf("%w: %q", ErrUserNotFound, userID)
		return err
	}
	return tx.Commit()
}

// LoadProfiles builds an in-memory profile store from every stored sample.
func (s *Store) LoadProfiles(ctx context.Context) (*profile.Store, error) {
	samples, err := s.ListSamples(ctx)
	if err != nil {
		return nil, err
	}
	profiles := profile.NewStore()
	for _, sm := range samples {
		if err := profiles.AddSample(sm.UserID, sm.Features); err != nil {
			return nil, err
		}
	}
	return profiles, nil
}
