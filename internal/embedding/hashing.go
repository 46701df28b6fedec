package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

var _ Embedder = (*HashingEmbedder)(nil)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// HashingEmbedder is an offline embedder using the hashing trick over
// lowercase word tokens. Texts sharing words get positive cosine
// similarity; it needs no corpus and no network, which makes it suitable
// for development and tests.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder creates a hashing embedder of the given size.
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Embed implements Embedder.
func (e *HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[sum%uint64(e.dimensions)] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// EmbedBatch implements Embedder.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

// Dimensions implements Embedder.
func (e *HashingEmbedder) Dimensions() int { return e.dimensions }

// ModelName implements Embedder.
func (e *HashingEmbedder) ModelName() string { return "hashing" }
