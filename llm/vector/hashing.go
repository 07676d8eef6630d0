package vector

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/components/embedding"
)

// HashingEmbedder is an offline embedding model based on feature hashing of word tokens.
// Texts sharing words get similar vectors, which is enough for local runs and tests.
type HashingEmbedder struct {
	dim int
}

var _ embedding.Embedder = (*HashingEmbedder)(nil)

// NewHashingEmbedder creates a hashing embedder producing vectors of length dim
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashingEmbedder{dim: dim}
}

// EmbedStrings implements embedding.Embedder
func (h *HashingEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = h.vector(text)
	}
	return vectors, nil
}

func (h *HashingEmbedder) vector(text string) []float64 {
	vec := make([]float64, h.dim)

	for _, token := range Tokenize(text) {
		f := fnv.New64a()
		f.Write([]byte(token))
		sum := f.Sum64()

		slot := int(sum % uint64(h.dim))
		if sum&(1<<63) != 0 {
			vec[slot]--
		} else {
			vec[slot]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		// a text with no word tokens still needs a valid direction
		vec[0] = 1
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Tokenize lowercases text and splits it into letter and digit runs
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
