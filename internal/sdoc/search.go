package sdoc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"docflow/internal/services"
	"docflow/internal/sqlitedb"
)

// IndexContent stores or replaces the searchable body of a document.
func (s *Store) IndexContent(ctx context.Context, sdocID, projectID int64, body string) error {
	_, err := sqlitedb.Exec(ctx, s.db,
		`INSERT INTO sdoc_search (sdoc_id, project_id, body) VALUES (?, ?, ?)
        ON CONFLICT (sdoc_id) DO UPDATE SET project_id = excluded.project_id, body = excluded.body`,
		sdocID, projectID, body,
	)
	if err != nil {
		return fmt.Errorf("index document %d: %w", sdocID, err)
	}
	return nil
}

// Content returns the indexed body of a document.
func (s *Store) Content(ctx context.Context, sdocID int64) (string, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM sdoc_search WHERE sdoc_id = ?`, sdocID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", services.Wrap(services.ErrNotFound, "sdoc", "content", fmt.Sprintf("document %d has no indexed content", sdocID), nil)
	}
	if err != nil {
		return "", fmt.Errorf("load content %d: %w", sdocID, err)
	}
	return body, nil
}

// Search returns the IDs of project documents whose body contains every term
// of query, case-insensitively.
func (s *Store) Search(ctx context.Context, projectID int64, query string, limit int) ([]int64, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}
	clauses := make([]string, 0, len(terms))
	args := []any{projectID}
	for _, term := range terms {
		clauses = append(clauses, `lower(body) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(term)+"%")
	}
	q := `SELECT sdoc_id FROM sdoc_search WHERE project_id = ? AND ` + strings.Join(clauses, " AND ") + ` ORDER BY sdoc_id`
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}
