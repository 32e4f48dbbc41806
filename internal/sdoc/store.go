package sdoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"docflow/internal/services"
	"docflow/internal/sqlitedb"
)

const (
	StatusProcessing = "processing"
	StatusFinished   = "finished"
)

// Document is a source document row.
type Document struct {
	ID         int64          `json:"id"`
	ProjectID  int64          `json:"project_id"`
	Filename   string         `json:"filename"`
	DocType    string         `json:"doc_type"`
	MIMEType   string         `json:"mime_type,omitempty"`
	SourcePath string         `json:"source_path,omitempty"`
	Status     string         `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Store persists documents and their side tables.
type Store struct {
	db *sql.DB
}

// New attaches a store to db, creating its tables on first use.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("sdoc: database handle is required")
	}
	if err := sqlitedb.EnsureSchema(ctx, db, "sdoc", schemaVersion, schemaSQL); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

const documentColumns = "id, project_id, filename, doc_type, mime_type, source_path, status, metadata_json, created_at, updated_at"

// Upsert inserts the document or refreshes the existing row with the same
// (project_id, filename). The row keeps its ID and is put back in processing
// state; metadata is left untouched on conflict.
func (s *Store) Upsert(ctx context.Context, doc Document) (Document, error) {
	doc.Filename = strings.TrimSpace(doc.Filename)
	if doc.Filename == "" {
		return Document{}, services.Wrap(services.ErrValidation, "sdoc", "upsert", "filename is required", nil)
	}
	if doc.Status == "" {
		doc.Status = StatusProcessing
	}
	metadata, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return Document{}, err
	}
	now := sqlitedb.Now()

	var stored Document
	err = sqlitedb.RetryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`INSERT INTO sdocs (project_id, filename, doc_type, mime_type, source_path, status, metadata_json, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT (project_id, filename) DO UPDATE SET
                doc_type = excluded.doc_type,
                mime_type = excluded.mime_type,
                source_path = excluded.source_path,
                status = excluded.status,
                updated_at = excluded.updated_at
            RETURNING `+documentColumns,
			doc.ProjectID, doc.Filename, doc.DocType,
			sqlitedb.NullableString(doc.MIMEType), sqlitedb.NullableString(doc.SourcePath),
			doc.Status, metadata, now, now,
		)
		var scanErr error
		stored, scanErr = scanDocument(row)
		return scanErr
	})
	if err != nil {
		return Document{}, fmt.Errorf("upsert document %s: %w", doc.Filename, err)
	}
	return stored, nil
}

// Get returns a document by ID.
func (s *Store) Get(ctx context.Context, id int64) (Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM sdocs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, services.Wrap(services.ErrNotFound, "sdoc", "get", fmt.Sprintf("document %d not found", id), nil)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %d: %w", id, err)
	}
	return doc, nil
}

// ListProject returns the documents of a project ordered by filename.
func (s *Store) ListProject(ctx context.Context, projectID int64) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM sdocs WHERE project_id = ? ORDER BY filename`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list project documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// MergeMetadata adds values to the document metadata, replacing existing keys.
func (s *Store) MergeMetadata(ctx context.Context, id int64, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	return sqlitedb.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var raw string
		if err := tx.QueryRowContext(ctx, `SELECT metadata_json FROM sdocs WHERE id = ?`, id).Scan(&raw); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return services.Wrap(services.ErrNotFound, "sdoc", "merge metadata", fmt.Sprintf("document %d not found", id), nil)
			}
			return fmt.Errorf("load metadata: %w", err)
		}
		current := map[string]any{}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &current); err != nil {
				return fmt.Errorf("decode metadata for document %d: %w", id, err)
			}
		}
		for k, v := range values {
			current[k] = v
		}
		encoded, err := encodeMetadata(current)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE sdocs SET metadata_json = ?, updated_at = ? WHERE id = ?`,
			encoded, sqlitedb.Now(), id,
		); err != nil {
			return fmt.Errorf("update metadata: %w", err)
		}
		return nil
	})
}

// SetStatus updates the document processing status.
func (s *Store) SetStatus(ctx context.Context, id int64, status string) error {
	res, err := sqlitedb.Exec(ctx, s.db,
		`UPDATE sdocs SET status = ?, updated_at = ? WHERE id = ?`,
		status, sqlitedb.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("set document status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrNotFound, "sdoc", "set status", fmt.Sprintf("document %d not found", id), nil)
	}
	return nil
}

func encodeMetadata(values map[string]any) (string, error) {
	if len(values) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

func scanDocument(scanner interface{ Scan(dest ...any) error }) (Document, error) {
	var (
		doc        Document
		mimeType   sql.NullString
		sourcePath sql.NullString
		metadata   string
		created    string
		updated    string
	)
	if err := scanner.Scan(&doc.ID, &doc.ProjectID, &doc.Filename, &doc.DocType, &mimeType, &sourcePath,
		&doc.Status, &metadata, &created, &updated); err != nil {
		return Document{}, err
	}
	doc.MIMEType = mimeType.String
	doc.SourcePath = sourcePath.String
	if metadata != "" && metadata != "{}" {
		doc.Metadata = map[string]any{}
		if err := json.Unmarshal([]byte(metadata), &doc.Metadata); err != nil {
			return Document{}, fmt.Errorf("decode metadata for document %d: %w", doc.ID, err)
		}
	}
	if ts, err := sqlitedb.ParseTime(created); err == nil {
		doc.CreatedAt = ts
	}
	if ts, err := sqlitedb.ParseTime(updated); err == nil {
		doc.UpdatedAt = ts
	}
	return doc, nil
}
