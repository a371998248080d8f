package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/specerr"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on sessions.updated_at
const currentSchemaVersion = 1

const timeLayout = time.RFC3339Nano

// SQLiteStore stores sessions in SQLite with WAL mode for concurrent reads.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens a SQLite database at path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, specerr.Wrap(specerr.IOError, err, "open database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, specerr.Wrap(specerr.IOError, err, "connect to database")
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, specerr.Wrap(specerr.IOError, err, "apply pragmas")
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, specerr.Wrap(specerr.IOError, err, "apply schema")
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create inserts a new session and its history rows in one transaction.
func (s *SQLiteStore) Create(ctx context.Context, sess *ir.SpecSession) error {
	data, err := encodeSession(sess)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, template_id, status, document, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			sess.SessionID, sess.TemplateID, string(sess.Status), string(data),
			sess.CreatedAt.UTC().Format(timeLayout), sess.UpdatedAt.UTC().Format(timeLayout))
		if err != nil {
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
				return alreadyExists(sess.SessionID)
			}
			return specerr.Wrap(specerr.IOError, err, "insert session "+sess.SessionID)
		}
		return insertHistory(ctx, tx, sess)
	})
}

// Get loads a session document.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*ir.SpecSession, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM sessions WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, specerr.Wrap(specerr.IOError, err, "read session "+id)
	}
	return decodeSession(id, []byte(doc))
}

// Put replaces an existing session and appends any new history rows.
func (s *SQLiteStore) Put(ctx context.Context, sess *ir.SpecSession) error {
	data, err := encodeSession(sess)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE sessions SET template_id = ?, status = ?, document = ?, updated_at = ?
			WHERE id = ?`,
			sess.TemplateID, string(sess.Status), string(data),
			sess.UpdatedAt.UTC().Format(timeLayout), sess.SessionID)
		if err != nil {
			return specerr.Wrap(specerr.IOError, err, "update session "+sess.SessionID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return specerr.Wrap(specerr.IOError, err, "update session "+sess.SessionID)
		}
		if n == 0 {
			return notFound(sess.SessionID)
		}
		return insertHistory(ctx, tx, sess)
	})
}

// List returns session summaries ordered by id.
func (s *SQLiteStore) List(ctx context.Context) ([]ir.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, template_id, status, updated_at
		FROM sessions
		ORDER BY id ASC`)
	if err != nil {
		return nil, specerr.Wrap(specerr.IOError, err, "list sessions")
	}
	defer rows.Close()

	out := []ir.SessionSummary{}
	for rows.Next() {
		var sum ir.SessionSummary
		var status, updated string
		if err := rows.Scan(&sum.SessionID, &sum.TemplateID, &status, &updated); err != nil {
			return nil, specerr.Wrap(specerr.IOError, err, "scan session")
		}
		sum.Status = ir.SessionStatus(status)
		if sum.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
			return nil, specerr.Wrap(specerr.IOError, err, "parse updated_at of "+sum.SessionID)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, specerr.Wrap(specerr.IOError, err, "list sessions")
	}
	return out, nil
}

// History reads the mirrored history rows of a session in seq order.
func (s *SQLiteStore) History(ctx context.Context, id string) ([]ir.StepHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, step, at, input_hash, output_hash
		FROM session_history
		WHERE session_id = ?
		ORDER BY seq ASC`, id)
	if err != nil {
		return nil, specerr.Wrap(specerr.IOError, err, "read history of "+id)
	}
	defer rows.Close()

	out := []ir.StepHistory{}
	for rows.Next() {
		var h ir.StepHistory
		var at string
		if err := rows.Scan(&h.Seq, &h.Step, &at, &h.InputHash, &h.OutputHash); err != nil {
			return nil, specerr.Wrap(specerr.IOError, err, "scan history")
		}
		if h.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, specerr.Wrap(specerr.IOError, err, "parse history time")
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, specerr.Wrap(specerr.IOError, err, "read history of "+id)
	}
	return out, nil
}

// insertHistory mirrors history entries. Existing (session_id, seq) rows are
// kept as they are since history is append-only.
func insertHistory(ctx context.Context, tx *sql.Tx, sess *ir.SpecSession) error {
	for _, h := range sess.History {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO session_history (session_id, seq, step, at, input_hash, output_hash)
			VALUES (?, ?, ?, ?, ?, ?)`,
			sess.SessionID, h.Seq, h.Step, h.At.UTC().Format(timeLayout), h.InputHash, h.OutputHash)
		if err != nil {
			return specerr.Wrap(specerr.IOError, err, fmt.Sprintf("insert history %d of %s", h.Seq, sess.SessionID))
		}
	}
	return nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return specerr.Wrap(specerr.IOError, err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return specerr.Wrap(specerr.IOError, err, "commit")
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes sessions by update time for recency listings.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_sessions_updated_at
		ON sessions(updated_at)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLiteStore) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
