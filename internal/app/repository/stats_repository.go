package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Totals is the read-only aggregate projection consumed by the dashboard
// and status commands.
type Totals struct {
	Users       int64 `json:"users"`
	Links       int64 `json:"links"`
	Files       int64 `json:"files"`
	Clicks      int64 `json:"clicks"`
	StoredBytes int64 `json:"stored_bytes"`
}

// StatsRepository computes aggregate counts straight from Postgres. It runs
// raw SQL over the pgx pool rather than going through the ORM; the queries
// are plain aggregates and the pool is cheaper for them.
type StatsRepository interface {
	Totals(ctx context.Context, since *time.Time) (Totals, error)
}

type statsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository returns a pgx-backed StatsRepository.
func NewStatsRepository(pool *pgxpool.Pool) StatsRepository {
	return &statsRepository{pool: pool}
}

func (r *statsRepository) Totals(ctx context.Context, since *time.Time) (Totals, error) {
	var t Totals

	cutoff := time.Time{}
	if since != nil {
		cutoff = *since
	}

	row := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users WHERE joined_at >= $1),
			(SELECT COUNT(*) FROM short_links WHERE created_at >= $1),
			(SELECT COALESCE(SUM(click_count), 0) FROM short_links WHERE created_at >= $1),
			(SELECT COUNT(*) FROM file_objects WHERE complete = true AND created_at >= $1),
			(SELECT COALESCE(SUM(declared_size), 0) FROM file_objects WHERE complete = true AND created_at >= $1)
	`, cutoff)

	if err := row.Scan(&t.Users, &t.Links, &t.Clicks, &t.Files, &t.StoredBytes); err != nil {
		return Totals{}, fmt.Errorf("stats: query totals: %w", err)
	}

	return t, nil
}
