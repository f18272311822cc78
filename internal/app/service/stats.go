package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mraprguild/vaultlink/internal/app/repository"
)

// StatsAggregator exposes read-only aggregate projections for the
// dashboard and status commands.
type StatsAggregator struct {
	stats repository.StatsRepository
}

// NewStatsAggregator returns an aggregator over the stats repository.
func NewStatsAggregator(stats repository.StatsRepository) *StatsAggregator {
	return &StatsAggregator{stats: stats}
}

// Totals returns overall counts, optionally restricted to records created
// at or after since.
func (a *StatsAggregator) Totals(ctx context.Context, since *time.Time) (repository.Totals, error) {
	totals, err := a.stats.Totals(ctx, since)
	if err != nil {
		return repository.Totals{}, fmt.Errorf("stats: totals: %w", err)
	}
	return totals, nil
}
