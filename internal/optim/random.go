package optim

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/born-ml/optix/internal/tensor"
)

// PCG stream selectors. A key seeds the PCG state; the stream separates key
// derivation from sampling so a key is never used for both.
const (
	splitStream  = 0x9e3779b97f4a7c15
	sampleStream = 0xbf58476d1ce4e5b9
)

// splitKey derives n fresh keys from key. The same key always yields the
// same keys.
func splitKey(key uint64, n int) []uint64 {
	src := rand.NewPCG(key, splitStream)
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = src.Uint64()
	}
	return keys
}

// normalLike samples N(0, std^2) noise with the shape and dtype of like.
// Sampling is sequential so the draw order, and with it the result, is
// fixed by key.
func normalLike(like *tensor.RawTensor, key uint64, std float64) *tensor.RawTensor {
	dist := distuv.Normal{Mu: 0, Sigma: std, Src: rand.NewPCG(key, sampleStream)}
	values := make([]float64, like.NumElements())
	for i := range values {
		values[i] = dist.Rand()
	}
	out, err := tensor.FromFloat64s(values, like.Shape(), like.DType())
	if err != nil {
		panic(err)
	}
	return out
}
