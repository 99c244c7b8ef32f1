package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSessionTokens = `
CREATE TABLE IF NOT EXISTS session_tokens (
	session TEXT PRIMARY KEY,
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists session tokens in a session_tokens table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, schemaSessionTokens); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) GetToken(ctx context.Context, session string) (*TokenData, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM session_tokens WHERE session = $1`, session).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var data TokenData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (s *PostgresStore) SetToken(ctx context.Context, session string, data *TokenData) error {
	if data == nil {
		data = &TokenData{}
	}
	data.UpdatedAt = time.Now()

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO session_tokens (session, data, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (session) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		session, raw)
	return err
}

func (s *PostgresStore) RemoveToken(ctx context.Context, session string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM session_tokens WHERE session = $1`, session)
	return err
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT session FROM session_tokens ORDER BY session`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var session string
		if err := rows.Scan(&session); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}
