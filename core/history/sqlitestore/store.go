// Package sqlitestore persists completed turns in a SQLite database so the
// history survives restarts.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/koscakluka/ema-assistant/core/history"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	_ "modernc.org/sqlite"
)

const (
	scopeName = "github.com/koscakluka/ema-assistant/core/history/sqlitestore"

	// DefaultLimit is the number of most recent turns Load returns.
	DefaultLimit = 100
)

var logger = otelslog.NewLogger(scopeName)

type Store struct {
	db    *sql.DB
	limit int
}

type Option func(*Store)

// WithLimit caps how many of the most recent turns Load returns. A limit
// of zero or less loads everything.
func WithLimit(limit int) Option {
	return func(s *Store) { s.limit = limit }
}

// Open creates the database at path if needed. Parent directories are
// created as well.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, limit: DefaultLimit}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("history store initialized", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS turns (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			query TEXT NOT NULL,
			screen_format TEXT NOT NULL,
			screen_data BLOB,
			supplemental_text TEXT NOT NULL DEFAULT '',
			volume INTEGER NOT NULL DEFAULT 0,
			is_follow_up INTEGER NOT NULL DEFAULT 0,
			voice INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save appends turn. Saving a turn whose ID is already stored is a no-op.
func (s *Store) Save(ctx context.Context, turn history.Turn) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (id, query, screen_format, screen_data, supplemental_text, volume, is_follow_up, voice, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		turn.ID,
		turn.Query,
		turn.Screen.Format,
		turn.Screen.Data,
		turn.SupplementalText,
		turn.Volume,
		turn.IsFollowUp,
		turn.Voice,
		turn.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving turn %s: %w", turn.ID, err)
	}
	return nil
}

// Load returns the most recent turns, oldest first.
func (s *Store) Load(ctx context.Context) ([]history.Turn, error) {
	limit := s.limit
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, screen_format, screen_data, supplemental_text, volume, is_follow_up, voice, created_at
		FROM (SELECT * FROM turns ORDER BY seq DESC LIMIT ?)
		ORDER BY seq ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []history.Turn
	for rows.Next() {
		var (
			turn      history.Turn
			createdAt string
		)
		if err := rows.Scan(
			&turn.ID,
			&turn.Query,
			&turn.Screen.Format,
			&turn.Screen.Data,
			&turn.SupplementalText,
			&turn.Volume,
			&turn.IsFollowUp,
			&turn.Voice,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		if turn.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing timestamp of turn %s: %w", turn.ID, err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}
	return turns, nil
}

// Clear removes every stored turn.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM turns"); err != nil {
		return fmt.Errorf("clearing turns: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
