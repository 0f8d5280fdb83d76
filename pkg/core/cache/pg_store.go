package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists entries in the extraction_cache table.
type PGStore struct {
	pool *pgxpool.Pool
}

const createExtractionCacheTable = `
CREATE TABLE IF NOT EXISTS extraction_cache (
	key        TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// NewPGStore ensures the table exists.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool) (*PGStore, error) {
	if pool == nil {
		return nil, errors.New("nil database pool")
	}
	if _, err := pool.Exec(ctx, createExtractionCacheTable); err != nil {
		return nil, fmt.Errorf("create extraction_cache table: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Load(ctx context.Context, key string) (*Entry, error) {
	e := Entry{Key: key}
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT kind, payload, created_at FROM extraction_cache WHERE key = $1`, key,
	).Scan(&e.Kind, &payload, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}

func (s *PGStore) Save(ctx context.Context, e *Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO extraction_cache (key, kind, payload, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			kind = EXCLUDED.kind,
			payload = EXCLUDED.payload,
			created_at = EXCLUDED.created_at
	`, e.Key, e.Kind, []byte(e.Payload), e.CreatedAt)
	return err
}

func (s *PGStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM extraction_cache WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
