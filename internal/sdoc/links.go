package sdoc

import (
	"context"
	"database/sql"
	"fmt"

	"docflow/internal/sqlitedb"
)

// ReplaceLinks sets the outgoing links of sourceID to exactly targetIDs.
func (s *Store) ReplaceLinks(ctx context.Context, sourceID int64, targetIDs []int64) error {
	return sqlitedb.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sdoc_links WHERE source_id = ?`, sourceID); err != nil {
			return fmt.Errorf("clear links: %w", err)
		}
		for _, target := range targetIDs {
			if target == sourceID {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO sdoc_links (source_id, target_id) VALUES (?, ?)`,
				sourceID, target,
			); err != nil {
				return fmt.Errorf("insert link %d->%d: %w", sourceID, target, err)
			}
		}
		return nil
	})
}

// Links returns the outgoing link targets of sourceID in ascending order.
func (s *Store) Links(ctx context.Context, sourceID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT target_id FROM sdoc_links WHERE source_id = ? ORDER BY target_id`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()
	var targets []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		targets = append(targets, id)
	}
	return targets, rows.Err()
}
