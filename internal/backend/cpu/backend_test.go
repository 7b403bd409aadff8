package cpu

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/weakvae/internal/tensor"
)

var approx = cmpopts.EquateApprox(0, 1e-5)

func raw(t *testing.T, data []float32, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.RawFromSlice(data, tensor.Shape(shape), tensor.CPU)
	require.NoError(t, err)
	return r
}

func TestBinaryOpsSameShape(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3, 4}, 2, 2)
	y := raw(t, []float32{5, 6, 7, 8}, 2, 2)

	assert.Equal(t, []float32{6, 8, 10, 12}, b.Add(x, y).Data())
	assert.Equal(t, []float32{-4, -4, -4, -4}, b.Sub(x, y).Data())
	assert.Equal(t, []float32{5, 12, 21, 32}, b.Mul(x, y).Data())
	assert.Empty(t, cmp.Diff([]float32{0.2, 1.0 / 3, 3.0 / 7, 0.5}, b.Div(x, y).Data(), approx))

	// Inputs are never modified.
	assert.Equal(t, []float32{1, 2, 3, 4}, x.Data())
}

func TestBinaryOpsBroadcast(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)

	row := raw(t, []float32{10, 20, 30}, 1, 3)
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, b.Add(x, row).Data())

	col := raw(t, []float32{100, 200}, 2, 1)
	assert.Equal(t, []float32{101, 102, 103, 204, 205, 206}, b.Add(x, col).Data())

	scalar := raw(t, []float32{2}, 1)
	assert.Equal(t, []float32{2, 4, 6, 8, 10, 12}, b.Mul(x, scalar).Data())

	out := b.Sub(col, x)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.Equal(t, []float32{99, 98, 97, 196, 195, 194}, out.Data())
}

func TestBroadcastIncompatiblePanics(t *testing.T) {
	b := New()
	assert.PanicsWithValue(t,
		"add: shapes not compatible for broadcasting: [2 3] vs [2 4] (dimension 1: 3 vs 4)",
		func() {
			b.Add(tensor.MustRaw(tensor.Shape{2, 3}, tensor.CPU), tensor.MustRaw(tensor.Shape{2, 4}, tensor.CPU))
		})
}

func TestUnaryOps(t *testing.T) {
	b := New()
	x := raw(t, []float32{-2, 0, 1}, 3)

	assert.Equal(t, []float32{-4, 0, 2}, b.MulScalar(x, 2).Data())
	assert.Equal(t, []float32{-1, 1, 2}, b.AddScalar(x, 1).Data())
	assert.Empty(t, cmp.Diff([]float32{float32(math.Exp(-2)), 1, float32(math.E)}, b.Exp(x).Data(), approx))
	assert.Empty(t, cmp.Diff([]float32{float32(math.Tanh(-2)), 0, float32(math.Tanh(1))}, b.Tanh(x).Data(), approx))
	assert.Empty(t, cmp.Diff([]float32{-0.02, 0, 1}, b.LeakyReLU(x, 0.01).Data(), approx))

	logs := b.Log(raw(t, []float32{1, float32(math.E)}, 2)).Data()
	assert.Empty(t, cmp.Diff([]float32{0, 1}, logs, approx))
}

func TestMatMul(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := raw(t, []float32{7, 8, 9, 10, 11, 12}, 3, 2)

	out := b.MatMul(x, y)
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{58, 64, 139, 154}, out.Data())

	assert.Panics(t, func() { b.MatMul(x, x) })
}

func TestMatMulLargeParallel(t *testing.T) {
	b := New()
	const m, k, n = 64, 32, 48
	x := tensor.MustRaw(tensor.Shape{m, k}, tensor.CPU)
	y := tensor.MustRaw(tensor.Shape{k, n}, tensor.CPU)
	x.Fill(1)
	y.Fill(0.5)

	for _, v := range b.MatMul(x, y).Data() {
		require.InDelta(t, float32(k)*0.5, v, 1e-4)
	}
}

func TestTranspose(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)

	out := b.Transpose(x)
	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, out.Data())

	cube := raw(t, []float32{0, 1, 2, 3, 4, 5, 6, 7}, 2, 2, 2)
	perm := b.Transpose(cube, 2, 0, 1)
	assert.Equal(t, tensor.Shape{2, 2, 2}, perm.Shape())
	// perm[i,j,k] = cube[j,k,i]
	assert.Equal(t, []float32{0, 2, 4, 6, 1, 3, 5, 7}, perm.Data())

	assert.Panics(t, func() { b.Transpose(cube, 0, 0, 1) })
}

func TestReshape(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3, 4}, 4)
	out := b.Reshape(x, tensor.Shape{2, 2})
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	out.Data()[0] = 9
	assert.Equal(t, float32(1), x.Data()[0])

	assert.Panics(t, func() { b.Reshape(x, tensor.Shape{3}) })
}

func TestReductions(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)

	sum := b.Sum(x)
	assert.Equal(t, tensor.Shape{}, sum.Shape())
	assert.Equal(t, float32(21), sum.Data()[0])

	rows := b.SumDim(x, 1, false)
	assert.Equal(t, tensor.Shape{2}, rows.Shape())
	assert.Equal(t, []float32{6, 15}, rows.Data())

	cols := b.SumDim(x, 0, true)
	assert.Equal(t, tensor.Shape{1, 3}, cols.Shape())
	assert.Equal(t, []float32{5, 7, 9}, cols.Data())

	mean := b.MeanDim(x, -1, true)
	assert.Equal(t, tensor.Shape{2, 1}, mean.Shape())
	assert.Equal(t, []float32{2, 5}, mean.Data())
}

func TestCatChunkRoundTrip(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := raw(t, []float32{7, 8, 9}, 1, 3)

	rows := b.Cat([]*tensor.RawTensor{x, y}, 0)
	assert.Equal(t, tensor.Shape{3, 3}, rows.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, rows.Data())

	cols := b.Cat([]*tensor.RawTensor{x, x}, 1)
	assert.Equal(t, tensor.Shape{2, 6}, cols.Shape())
	assert.Equal(t, []float32{1, 2, 3, 1, 2, 3, 4, 5, 6, 4, 5, 6}, cols.Data())

	parts := b.Chunk(cols, 2, 1)
	require.Len(t, parts, 2)
	assert.Equal(t, x.Data(), parts[0].Data())
	assert.Equal(t, x.Data(), parts[1].Data())

	halves := b.Chunk(x, 2, 0)
	assert.Equal(t, []float32{1, 2, 3}, halves[0].Data())
	assert.Equal(t, []float32{4, 5, 6}, halves[1].Data())

	assert.Panics(t, func() { b.Chunk(x, 2, 1) })
}

func TestWhere(t *testing.T) {
	b := New()
	cond := raw(t, []float32{1, 0, 0, 1}, 2, 2)
	x := raw(t, []float32{1, 2, 3, 4}, 2, 2)
	y := raw(t, []float32{-1, -2, -3, -4}, 2, 2)
	assert.Equal(t, []float32{1, -2, -3, 4}, b.Where(cond, x, y).Data())

	rowCond := raw(t, []float32{0, 1}, 1, 2)
	assert.Equal(t, []float32{-1, 2, -3, 4}, b.Where(rowCond, x, y).Data())
}
