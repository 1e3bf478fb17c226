package embedding

import (
	"hash/fnv"
	"math/rand/v2"
)

// fallbackVector returns a pseudo-random vector in [-0.5, 0.5)^dim seeded by the text.
// The same text always yields the same vector, so a degraded run is reproducible,
// but the values carry no meaning.
func fallbackVector(text string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rng.Float64() - 0.5)
	}
	return v
}
