package embedding

import (
	"context"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/floats"
)

const DefaultDimensions = 384

// HashingEmbedder is a local signed feature-hashing bag of words. It needs no
// network and is deterministic, which makes it the offline and test backend.
type HashingEmbedder struct {
	dims int
}

func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashingEmbedder{dims: dims}
}

func (h *HashingEmbedder) Dimensions() int {
	return h.dims
}

// Embed hashes every lower-cased token and adjacent token pair into the vector,
// then scales it to unit length. Text without tokens maps to the zero vector.
func (h *HashingEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, h.dims)

	tokens := tokenize(text)
	for i, tok := range tokens {
		h.add(vec, tok)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok)
		}
	}

	if norm := floats.Norm(vec, 2); norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec, nil
}

func (h *HashingEmbedder) add(vec []float64, feature string) {
	sum := xxhash.Sum64String(feature)
	idx := sum % uint64(h.dims)
	// top bit picks the sign
	if sum>>63 == 1 {
		vec[idx]--
	} else {
		vec[idx]++
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
