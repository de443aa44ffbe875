package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimension matches the default Ollama model so fallback vectors
// share the index with real ones.
const DefaultHashDimension = 384

// HashEmbedder produces deterministic feature-hashed vectors without any
// network dependency. It never fails.
type HashEmbedder struct {
	dimension int
}

var _ Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder returns a hash embedder; dimension <= 0 uses DefaultHashDimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultHashDimension
	}
	return &HashEmbedder{dimension: dimension}
}

func (h *HashEmbedder) Name() string   { return string(ProviderHash) }
func (h *HashEmbedder) Model() string  { return "fnv1a-feature-hash" }
func (h *HashEmbedder) Dimension() int { return h.dimension }

// Embed hashes each lowercase letter/digit token into one slot. The sign
// comes from the hash's top bit and earlier tokens weigh more (1/(pos+1)).
// The result is L2-normalized; text without tokens yields the zero vector.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dimension)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for pos, tok := range tokens {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(tok))
		sum := hasher.Sum32()

		weight := float32(1.0 / float64(pos+1))
		if sum&0x80000000 != 0 {
			weight = -weight
		}
		vec[sum%uint32(h.dimension)] += weight
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = h.Embed(ctx, t)
	}
	return out, nil
}
