package sdoc

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"docflow/internal/services"
	"docflow/internal/sqlitedb"
)

// Match is a nearest-neighbour result.
type Match struct {
	SdocID int64   `json:"sdoc_id"`
	Score  float64 `json:"score"`
}

// StoreEmbedding stores or replaces the embedding of a document.
func (s *Store) StoreEmbedding(ctx context.Context, sdocID int64, vector []float32) error {
	if len(vector) == 0 {
		return services.Wrap(services.ErrValidation, "sdoc", "store embedding", "empty vector", nil)
	}
	_, err := sqlitedb.Exec(ctx, s.db,
		`INSERT INTO sdoc_embeddings (sdoc_id, dims, vector) VALUES (?, ?, ?)
        ON CONFLICT (sdoc_id) DO UPDATE SET dims = excluded.dims, vector = excluded.vector`,
		sdocID, len(vector), encodeVector(vector),
	)
	if err != nil {
		return fmt.Errorf("store embedding %d: %w", sdocID, err)
	}
	return nil
}

// Embedding returns the stored vector of a document.
func (s *Store) Embedding(ctx context.Context, sdocID int64) ([]float32, error) {
	var (
		dims int
		blob []byte
	)
	err := s.db.QueryRowContext(ctx, `SELECT dims, vector FROM sdoc_embeddings WHERE sdoc_id = ?`, sdocID).Scan(&dims, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "sdoc", "embedding", fmt.Sprintf("document %d has no embedding", sdocID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load embedding %d: %w", sdocID, err)
	}
	return decodeVector(blob, dims)
}

// Nearest returns up to k documents ranked by cosine similarity to vector.
// Vectors with a different dimension are skipped.
func (s *Store) Nearest(ctx context.Context, vector []float32, k int) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sdoc_id, dims, vector FROM sdoc_embeddings WHERE dims = ?`, len(vector))
	if err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			id   int64
			dims int
			blob []byte
		)
		if err := rows.Scan(&id, &dims, &blob); err != nil {
			return nil, err
		}
		candidate, err := decodeVector(blob, dims)
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{SdocID: id, Score: cosine(vector, candidate)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte, dims int) ([]float32, error) {
	if len(blob) != dims*4 {
		return nil, fmt.Errorf("embedding blob has %d bytes, want %d", len(blob), dims*4)
	}
	out := make([]float32, dims)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
