package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/commentscope/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns, minConns := int32(4), int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	user_id      TEXT NOT NULL,
	name         TEXT NOT NULL,
	chat         JSONB NOT NULL,
	schema       JSONB,
	sample_text  TEXT NOT NULL DEFAULT '',
	comments_csv BYTEA,
	videos_csv   BYTEA,
	turns        INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, name)
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(user_id, updated_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, user, name string, b *model.SessionBundle) error {
	row, err := encodeBundle(b)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (user_id, name, chat, schema, sample_text, comments_csv, videos_csv, turns, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		 ON CONFLICT (user_id, name) DO UPDATE SET
			chat = EXCLUDED.chat,
			schema = EXCLUDED.schema,
			sample_text = EXCLUDED.sample_text,
			comments_csv = EXCLUDED.comments_csv,
			videos_csv = EXCLUDED.videos_csv,
			turns = EXCLUDED.turns,
			updated_at = EXCLUDED.updated_at`,
		user, name, row.chat, row.schema, b.SampleText, b.CommentsCSV, b.VideosCSV, len(b.Chat), now,
	)
	return eris.Wrapf(err, "postgres: save session %s/%s", user, name)
}

func (s *PostgresStore) Load(ctx context.Context, user, name string) (*model.SessionBundle, error) {
	var (
		chat, schema string
		b            model.SessionBundle
	)
	err := s.pool.QueryRow(ctx,
		`SELECT chat::text, COALESCE(schema::text, ''), sample_text, comments_csv, videos_csv FROM sessions WHERE user_id = $1 AND name = $2`,
		user, name,
	).Scan(&chat, &schema, &b.SampleText, &b.CommentsCSV, &b.VideosCSV)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: load session %s/%s", user, name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load session %s/%s", user, name)
	}
	if err := decodeBundle(&b, chat, schema); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) List(ctx context.Context, user string) ([]model.SessionSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, turns, updated_at FROM sessions WHERE user_id = $1 ORDER BY updated_at DESC, name`,
		user,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var out []model.SessionSummary
	for rows.Next() {
		sum := model.SessionSummary{User: user}
		if err := rows.Scan(&sum.Name, &sum.Turns, &sum.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sessions")
}

func (s *PostgresStore) Rename(ctx context.Context, user, oldName, newName string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET name = $1, updated_at = $2 WHERE user_id = $3 AND name = $4`,
		newName, time.Now().UTC(), user, oldName,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return eris.Wrapf(ErrExists, "postgres: rename session %s/%s", user, newName)
		}
		return eris.Wrapf(err, "postgres: rename session %s/%s", user, oldName)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "session %s/%s", user, oldName)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, user, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1 AND name = $2`, user, name)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete session %s/%s", user, name)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "session %s/%s", user, name)
	}
	return nil
}

func (s *PostgresStore) NextName(ctx context.Context, user, base string) (string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name FROM sessions WHERE user_id = $1 AND starts_with(name, $2)`,
		user, base,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: list session names")
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return "", eris.Wrap(err, "postgres: scan session names")
	}
	return nextName(names, base), nil
}
