package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/commentscope/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at dsn and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	user_id      TEXT NOT NULL,
	name         TEXT NOT NULL,
	chat         TEXT NOT NULL,
	schema       TEXT,
	sample_text  TEXT NOT NULL DEFAULT '',
	comments_csv BLOB,
	videos_csv   BLOB,
	turns        INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (user_id, name)
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(user_id, updated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, user, name string, b *model.SessionBundle) error {
	row, err := encodeBundle(b)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, name, chat, schema, sample_text, comments_csv, videos_csv, turns, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, name) DO UPDATE SET
			chat = excluded.chat,
			schema = excluded.schema,
			sample_text = excluded.sample_text,
			comments_csv = excluded.comments_csv,
			videos_csv = excluded.videos_csv,
			turns = excluded.turns,
			updated_at = excluded.updated_at`,
		user, name, row.chat, row.schema, b.SampleText, b.CommentsCSV, b.VideosCSV, len(b.Chat), now, now,
	)
	return eris.Wrapf(err, "sqlite: save session %s/%s", user, name)
}

func (s *SQLiteStore) Load(ctx context.Context, user, name string) (*model.SessionBundle, error) {
	var (
		chat, sample string
		schema       sql.NullString
		b            model.SessionBundle
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT chat, schema, sample_text, comments_csv, videos_csv FROM sessions WHERE user_id = ? AND name = ?`,
		user, name,
	).Scan(&chat, &schema, &sample, &b.CommentsCSV, &b.VideosCSV)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: load session %s/%s", user, name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load session %s/%s", user, name)
	}
	b.SampleText = sample
	if err := decodeBundle(&b, chat, schema.String); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *SQLiteStore) List(ctx context.Context, user string) ([]model.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, turns, updated_at FROM sessions WHERE user_id = ? ORDER BY updated_at DESC, name`,
		user,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SessionSummary
	for rows.Next() {
		sum := model.SessionSummary{User: user}
		if err := rows.Scan(&sum.Name, &sum.Turns, &sum.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sessions")
}

func (s *SQLiteStore) Rename(ctx context.Context, user, oldName, newName string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET name = ?, updated_at = ? WHERE user_id = ? AND name = ?`,
		newName, time.Now().UTC(), user, oldName,
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return eris.Wrapf(ErrExists, "sqlite: rename session %s/%s", user, newName)
		}
		return eris.Wrapf(err, "sqlite: rename session %s/%s", user, oldName)
	}
	return checkRowsAffected(res, user, oldName)
}

func (s *SQLiteStore) Delete(ctx context.Context, user, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ? AND name = ?`, user, name)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete session %s/%s", user, name)
	}
	return checkRowsAffected(res, user, name)
}

func (s *SQLiteStore) NextName(ctx context.Context, user, base string) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sessions WHERE user_id = ? AND substr(name, 1, ?) = ?`,
		user, utf8.RuneCountInString(base), base,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: list session names")
	}
	defer rows.Close() //nolint:errcheck

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return "", eris.Wrap(err, "sqlite: scan session name")
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return "", eris.Wrap(err, "sqlite: list session names")
	}
	return nextName(names, base), nil
}

func checkRowsAffected(res sql.Result, user, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "session %s/%s", user, name)
	}
	return nil
}

type bundleRow struct {
	chat   string
	schema *string
}

func encodeBundle(b *model.SessionBundle) (bundleRow, error) {
	if b == nil {
		return bundleRow{}, eris.New("session: nil bundle")
	}
	chat, err := json.Marshal(b.Chat)
	if err != nil {
		return bundleRow{}, eris.Wrap(err, "session: marshal chat")
	}
	row := bundleRow{chat: string(chat)}
	if b.Schema != nil {
		schema, err := json.Marshal(b.Schema)
		if err != nil {
			return bundleRow{}, eris.Wrap(err, "session: marshal schema")
		}
		s := string(schema)
		row.schema = &s
	}
	return row, nil
}

func decodeBundle(b *model.SessionBundle, chat, schema string) error {
	if err := json.Unmarshal([]byte(chat), &b.Chat); err != nil {
		return eris.Wrap(err, "session: unmarshal chat")
	}
	if schema != "" {
		b.Schema = &model.QuerySchema{}
		if err := json.Unmarshal([]byte(schema), b.Schema); err != nil {
			return eris.Wrap(err, "session: unmarshal schema")
		}
	}
	return nil
}
