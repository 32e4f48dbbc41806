package queue

import (
	"context"
	"fmt"
	"time"

	"docflow/internal/sqlitedb"
)

// Stats returns job counts per status for every device lane.
func (s *Store) Stats(ctx context.Context) ([]LaneStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT device, status, COUNT(1) FROM jobs GROUP BY device, status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	byDevice := make(map[Device]map[Status]int)
	for rows.Next() {
		var (
			device Device
			status Status
			count  int
		)
		if err := rows.Scan(&device, &status, &count); err != nil {
			return nil, err
		}
		if byDevice[device] == nil {
			byDevice[device] = make(map[Status]int)
		}
		byDevice[device][status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats := make([]LaneStats, 0, len(Devices()))
	for _, device := range Devices() {
		counts := byDevice[device]
		if counts == nil {
			counts = make(map[Status]int)
		}
		stats = append(stats, LaneStats{Device: device, Counts: counts})
	}
	return stats, nil
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for _, lane := range stats {
		for status, count := range lane.Counts {
			health.Total += count
			switch status {
			case StatusWaiting:
				health.Waiting += count
			case StatusRunning:
				health.Running += count
			case StatusFinished:
				health.Finished += count
			case StatusError:
				health.Failed += count
			case StatusAborted:
				health.Aborted += count
			}
		}
	}
	return health, nil
}

// PurgeExpired deletes terminal jobs whose result TTL elapsed before now.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.exec(ctx,
		`DELETE FROM jobs WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		sqlitedb.FormatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("purge expired jobs: %w", err)
	}
	return res.RowsAffected()
}

// PurgeTerminal deletes every finished, failed or aborted job regardless of TTL.
func (s *Store) PurgeTerminal(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx,
		`DELETE FROM jobs WHERE status IN (?, ?, ?)`,
		StatusFinished, StatusError, StatusAborted,
	)
	if err != nil {
		return 0, fmt.Errorf("purge terminal jobs: %w", err)
	}
	return res.RowsAffected()
}
