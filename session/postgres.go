package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"videodocs/core"
)

// PostgresStore persists sessions as jsonb rows, with documentation in
// a separate column so history listings stay cheap.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			record JSONB NOT NULL,
			documentation TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensuring sessions table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Upsert(sess core.Session) error {
	record, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	_, err = s.pool.Exec(context.Background(), `
		INSERT INTO sessions (id, record, created_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record, updated_at = now()`,
		sess.ID, record, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(id string) (core.Session, bool, error) {
	var record []byte
	err := s.pool.QueryRow(context.Background(),
		`SELECT record FROM sessions WHERE id = $1`, id).Scan(&record)
	if err == pgx.ErrNoRows {
		return core.Session{}, false, nil
	}
	if err != nil {
		return core.Session{}, false, fmt.Errorf("loading session %s: %w", id, err)
	}
	var sess core.Session
	if err := json.Unmarshal(record, &sess); err != nil {
		return core.Session{}, false, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return sess, true, nil
}

func (s *PostgresStore) GetAll() ([]core.Session, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT record FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []core.Session
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		var sess core.Session
		if err := json.Unmarshal(record, &sess); err != nil {
			return nil, fmt.Errorf("decoding session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *PostgresStore) SaveDocumentation(id, doc string) (string, error) {
	_, err := s.pool.Exec(context.Background(),
		`UPDATE sessions SET documentation = $2, updated_at = now() WHERE id = $1`, id, doc)
	if err != nil {
		return "", fmt.Errorf("saving documentation for %s: %w", id, err)
	}
	return "postgres://sessions/" + id, nil
}

func (s *PostgresStore) LoadDocumentation(id string) (string, error) {
	var doc *string
	err := s.pool.QueryRow(context.Background(),
		`SELECT documentation FROM sessions WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		return "", fmt.Errorf("loading documentation for %s: %w", id, err)
	}
	if doc == nil {
		return "", fmt.Errorf("no documentation stored for %s", id)
	}
	return *doc, nil
}
