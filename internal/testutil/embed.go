package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// FakeEmbedding returns a deterministic embedding function for tests.
// Tokens hash into dims buckets and the vector is L2-normalized, so
// texts sharing words come out cosine-similar without any API calls.
func FakeEmbedding(dims int) func(ctx context.Context, text string) ([]float32, error) {
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dims)
		for _, tok := range strings.Fields(strings.ToLower(text)) {
			tok = strings.Trim(tok, ".,!?:;\"'()")
			if tok == "" {
				continue
			}
			h := fnv.New32a()
			h.Write([]byte(tok))
			vec[int(h.Sum32())%dims]++
		}

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm == 0 {
			vec[0] = 1
			return vec, nil
		}
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
		return vec, nil
	}
}
