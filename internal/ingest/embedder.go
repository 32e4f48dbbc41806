package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"

	"docflow/internal/textutil"
)

// HashingEmbedder projects word tokens into a fixed number of buckets and
// L2-normalises the result. It stands in for a model-backed embedder.
type HashingEmbedder struct {
	Dims int
}

// Embed implements Embedder.
func (h HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if h.Dims <= 0 {
		return nil, errors.New("hashing embedder: dims must be positive")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vector := make([]float32, h.Dims)
	for _, token := range textutil.Tokenize(text, 1) {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(token))
		sum := hasher.Sum32()
		bucket := int(sum % uint32(h.Dims))
		if sum&(1<<31) != 0 {
			vector[bucket]--
		} else {
			vector[bucket]++
		}
	}
	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vector, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
	return vector, nil
}
