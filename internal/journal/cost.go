package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type CostEntry struct {
	GenerationID string
	SessionID    string
	Provider     string
	Model        string
	Cost         float64
	ImageCount   int
	Timestamp    time.Time
}

type CostSummary struct {
	TotalCost  float64 `json:"total_cost"`
	ImageCount int     `json:"image_count"`
	EntryCount int     `json:"entry_count"`
}

type ProviderCostSummary struct {
	Provider   string  `json:"provider"`
	TotalCost  float64 `json:"total_cost"`
	ImageCount int     `json:"image_count"`
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) LogCost(ctx context.Context, entry *CostEntry) error {
	return logCost(ctx, s.db, entry)
}

func logCost(ctx context.Context, db execer, entry *CostEntry) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO cost_log (generation_id, session_id, provider, model, cost, image_count, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.GenerationID, entry.SessionID, entry.Provider, entry.Model,
		entry.Cost, entry.ImageCount, entry.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to log cost: %w", err)
	}
	return nil
}

// GetCostByDateRange sums entries in [start, end).
func (s *Store) GetCostByDateRange(ctx context.Context, start, end time.Time) (*CostSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0), COALESCE(SUM(image_count), 0), COUNT(*)
		 FROM cost_log WHERE timestamp >= ? AND timestamp < ?`,
		start.UTC(), end.UTC())
	return scanSummary(row)
}

func (s *Store) GetCostByProvider(ctx context.Context) ([]ProviderCostSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, COALESCE(SUM(cost), 0), COALESCE(SUM(image_count), 0)
		 FROM cost_log GROUP BY provider ORDER BY provider`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []ProviderCostSummary
	for rows.Next() {
		var ps ProviderCostSummary
		if err := rows.Scan(&ps.Provider, &ps.TotalCost, &ps.ImageCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, ps)
	}
	return summaries, rows.Err()
}

func (s *Store) GetTotalCost(ctx context.Context) (*CostSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0), COALESCE(SUM(image_count), 0), COUNT(*)
		 FROM cost_log`)
	return scanSummary(row)
}

func (s *Store) GetSessionCost(ctx context.Context, sessionID string) (*CostSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0), COALESCE(SUM(image_count), 0), COUNT(*)
		 FROM cost_log WHERE session_id = ?`,
		sessionID)
	return scanSummary(row)
}

func scanSummary(row *sql.Row) (*CostSummary, error) {
	var summary CostSummary
	if err := row.Scan(&summary.TotalCost, &summary.ImageCount, &summary.EntryCount); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Period names a reporting window for cost summaries.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodTotal Period = "total"
)

// Range returns the [start, end) window of p relative to now. ok is false for
// PeriodTotal and unknown periods.
func (p Period) Range(now time.Time) (start, end time.Time, ok bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end = today.AddDate(0, 0, 1)
	switch p {
	case PeriodToday:
		return today, end, true
	case PeriodWeek:
		return today.AddDate(0, 0, -6), end, true
	case PeriodMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), end, true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// Summary returns the cost summary for p.
func (s *Store) Summary(ctx context.Context, p Period, now time.Time) (*CostSummary, error) {
	start, end, ok := p.Range(now)
	if !ok {
		if p != PeriodTotal {
			return nil, fmt.Errorf("unknown period %q", p)
		}
		return s.GetTotalCost(ctx)
	}
	return s.GetCostByDateRange(ctx, start, end)
}
