package tree

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/optix/internal/tensor"
)

func sample() Node {
	return Seq{
		Floats([]float64{1, 2}),
		Dict(map[string]Node{
			"b": Scalar(4),
			"a": Floats([]float64{1, 2, 3, 4}, 2, 2),
		}),
	}
}

func TestRecordSortedAndLookup(t *testing.T) {
	r := Dict(map[string]Node{"z": Scalar(1), "a": Scalar(2), "m": Empty{}})
	assert.Equal(t, []string{"a", "m", "z"}, r.Keys())

	v, ok := r.Get("z")
	require.True(t, ok)
	assert.Equal(t, 1.0, v.(Leaf).Item())

	_, ok = r.Get("missing")
	assert.False(t, ok)

	r2 := r.With("b", Scalar(3))
	assert.Equal(t, []string{"a", "b", "m", "z"}, r2.Keys())
	assert.Equal(t, 3, r.Len(), "With must not modify the receiver")
}

func TestNewRecordRejectsBadKeys(t *testing.T) {
	assert.Panics(t, func() { NewRecord(Field{Key: "a.b", Value: Empty{}}) })
	assert.Panics(t, func() {
		NewRecord(Field{Key: "a", Value: Empty{}}, Field{Key: "a", Value: Empty{}})
	})
}

func TestLeavesAndPathsOrder(t *testing.T) {
	n := sample()
	assert.Equal(t, []string{"0", "1.a", "1.b"}, Paths(n))
	assert.Equal(t, 3, NumLeaves(n))

	leaves := Leaves(n)
	require.Len(t, leaves, 3)
	assert.Equal(t, tensor.Shape{2, 2}, leaves[1].Shape())
	assert.Equal(t, []string{""}, Paths(Scalar(1)))
	assert.Empty(t, Leaves(Empty{}))
}

func TestMapKeepsStructure(t *testing.T) {
	n := sample()
	doubled := Map(n, func(x *tensor.RawTensor) *tensor.RawTensor { return tensor.Scale(x, 2) })
	require.True(t, SameStructure(n, doubled))
	assert.Equal(t, []float64{2, 4, 6, 8}, Leaves(doubled)[1].Float64s())
	assert.Equal(t, []float64{1, 2, 3, 4}, Leaves(n)[1].Float64s())
	assert.Nil(t, Map(nil, tensor.ZerosLike))
}

func TestZipStructureErrors(t *testing.T) {
	a := Seq{Scalar(1), Scalar(2)}

	_, err := Zip2(a, Seq{Scalar(1)}, func(x, _ *tensor.RawTensor) *tensor.RawTensor { return x })
	assert.True(t, errors.Is(err, ErrStructureMismatch))

	_, err = Zip2(a, Seq{Scalar(1), Floats([]float64{1, 2})}, func(x, _ *tensor.RawTensor) *tensor.RawTensor { return x })
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	assert.Contains(t, err.Error(), `"1"`)

	_, err = Zip2(a, nil, func(x, _ *tensor.RawTensor) *tensor.RawTensor { return x })
	assert.True(t, errors.Is(err, ErrStructureMismatch))

	_, err = Zip2(Dict(map[string]Node{"a": Scalar(1)}), Dict(map[string]Node{"b": Scalar(1)}),
		func(x, _ *tensor.RawTensor) *tensor.RawTensor { return x })
	assert.True(t, errors.Is(err, ErrStructureMismatch))
}

func TestZip3(t *testing.T) {
	out, err := Zip3(Scalar(1), Scalar(2), Scalar(3), func(x, y, z *tensor.RawTensor) *tensor.RawTensor {
		return tensor.Map3(x, y, z, func(a, b, c float64) float64 { return a + b*c })
	})
	require.NoError(t, err)
	assert.Equal(t, 7.0, out.(Leaf).Item())
}

func TestUnflattenRoundTrip(t *testing.T) {
	n := sample()
	rebuilt, err := Unflatten(n, Leaves(n))
	require.NoError(t, err)
	assert.True(t, AllClose(n, rebuilt, 0, 0))

	_, err = Unflatten(n, Leaves(n)[:2])
	assert.True(t, errors.Is(err, ErrLeafCount))
}

func TestZerosAndFullLike(t *testing.T) {
	n := Seq{Float32s([]float64{1, 2}), Int32(7)}
	z := ZerosLike(n)
	leaves := Leaves(z)
	assert.Equal(t, tensor.Float32, leaves[0].DType())
	assert.Equal(t, tensor.Int32, leaves[1].DType())
	assert.Equal(t, []float64{0, 0}, leaves[0].Float64s())

	f := FullLike(n, 3)
	assert.Equal(t, []float64{3, 3}, Leaves(f)[0].Float64s())
}

func TestAllFiniteAndAllClose(t *testing.T) {
	assert.True(t, AllFinite(sample()))
	assert.True(t, AllFinite(Empty{}))
	assert.False(t, AllFinite(Seq{Floats([]float64{1, 0}), Scalar(math.NaN())}))

	assert.False(t, AllClose(Scalar(1), Floats([]float64{1}), 0, 1), "shape differs")
	assert.True(t, AllClose(Scalar(1), Scalar(1+1e-9), 0, 1e-6))
}

func TestSelectAndMergeWithPrefixMask(t *testing.T) {
	params := Seq{
		Scalar(1),
		Dict(map[string]Node{"a": Scalar(2), "b": Scalar(3)}),
	}
	mask := Seq{Bool(true), Dict(map[string]Node{"a": Bool(true), "b": Bool(false)})}

	sel, err := Select(mask, params)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1.a"}, Paths(sel))
	b, _ := sel.(Seq)[1].(Record).Get("b")
	assert.Equal(t, KindEmpty, b.Kind())

	changed := Map(sel, func(x *tensor.RawTensor) *tensor.RawTensor { return tensor.Scale(x, 10) })
	merged, err := Merge(mask, changed, params)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 3}, flatten(merged))

	// A single bool covers the whole record.
	prefix := Seq{Bool(false), Bool(true)}
	sel, err = Select(prefix, params)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.a", "1.b"}, Paths(sel))
}

func TestSelectErrors(t *testing.T) {
	params := Seq{Scalar(1), Scalar(2)}

	_, err := Select(Seq{Bool(true)}, params)
	assert.True(t, errors.Is(err, ErrStructureMismatch))

	_, err = Select(Seq{Bool(true), Scalar(1)}, params)
	assert.True(t, errors.Is(err, ErrInvalidMask))
}

func TestMaskFromPaths(t *testing.T) {
	mask := MaskFromPaths(sample(), func(p string) bool { return p != "1.b" })
	sel, err := Select(mask, sample())
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1.a"}, Paths(sel))
}

func flatten(n Node) []float64 {
	var out []float64
	for _, l := range Leaves(n) {
		out = append(out, l.Float64s()...)
	}
	return out
}
