package docindex

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorIndex stores documentation sections in Postgres with the
// pgvector extension and searches by cosine distance.
type PgVectorIndex struct {
	pool     *pgxpool.Pool
	embedder Embedder
}

func NewPgVectorIndex(ctx context.Context, connString string, embedder Embedder) (*PgVectorIndex, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	idx := &PgVectorIndex{pool: pool, embedder: embedder}
	if err := idx.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (p *PgVectorIndex) ensureTable(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("enabling pgvector extension: %w", err)
	}
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS doc_sections (
			session_id TEXT NOT NULL,
			section_id TEXT NOT NULL,
			start_time DOUBLE PRECISION NOT NULL,
			end_time DOUBLE PRECISION NOT NULL,
			text TEXT NOT NULL,
			embedding vector(%d),
			PRIMARY KEY (session_id, section_id)
		)`, p.embedder.Dim()))
	if err != nil {
		return fmt.Errorf("ensuring doc_sections table: %w", err)
	}
	return nil
}

func (p *PgVectorIndex) Close() {
	p.pool.Close()
}

func (p *PgVectorIndex) Upsert(ctx context.Context, sessionID string, entries []Entry) (int, error) {
	count := 0
	for _, e := range entries {
		embedding, err := p.embedder.Embed(ctx, e.Text)
		if err != nil {
			log.Printf("docindex: embedding section at %.0fs failed, skipping: %v", e.Start, err)
			continue
		}
		_, err = p.pool.Exec(ctx, `
			INSERT INTO doc_sections (session_id, section_id, start_time, end_time, text, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (session_id, section_id) DO UPDATE SET
				start_time = EXCLUDED.start_time,
				end_time = EXCLUDED.end_time,
				text = EXCLUDED.text,
				embedding = EXCLUDED.embedding`,
			sessionID, fmt.Sprintf("%s_%.2f", sessionID, e.Start),
			e.Start, e.End, e.Text, pgvector.NewVector(embedding))
		if err != nil {
			log.Printf("docindex: upserting section at %.0fs failed, skipping: %v", e.Start, err)
			continue
		}
		count++
	}
	return count, nil
}

func (p *PgVectorIndex) Search(ctx context.Context, sessionID, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	embedding, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	vec := pgvector.NewVector(embedding)
	rows, err := p.pool.Query(ctx, `
		SELECT start_time, end_time, text, 1 - (embedding <=> $1) AS similarity
		FROM doc_sections
		WHERE session_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`, vec, sessionID, topK)
	if err != nil {
		return nil, fmt.Errorf("searching sections: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Start, &h.End, &h.Text, &h.Score); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
