package cpu

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/weakvae/internal/parallel"
	"github.com/born-ml/weakvae/internal/tensor"
)

func randRaw(rng *rand.Rand, shape ...int) *tensor.RawTensor {
	r := tensor.MustRaw(tensor.Shape(shape), tensor.CPU)
	for i := range r.Data() {
		r.Data()[i] = float32(rng.NormFloat64())
	}
	return r
}

func dot(a, b *tensor.RawTensor) float64 {
	var s float64
	for i, v := range a.Data() {
		s += float64(v) * float64(b.Data()[i])
	}
	return s
}

func TestConv2DKnownValues(t *testing.T) {
	b := New()
	// 1x1x3x3 input, 1x1x2x2 kernel of ones, stride 1, no padding.
	input := raw(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 1, 3, 3)
	kernel := raw(t, []float32{1, 1, 1, 1}, 1, 1, 2, 2)

	out := b.Conv2D(input, kernel, 1, 0)
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, out.Shape())
	assert.Equal(t, []float32{12, 16, 24, 28}, out.Data())
}

func TestConv2DStridePaddingShape(t *testing.T) {
	b := New()
	rng := rand.New(rand.NewSource(1))
	input := randRaw(rng, 2, 3, 16, 16)
	kernel := randRaw(rng, 5, 3, 4, 4)

	out := b.Conv2D(input, kernel, 2, 1)
	assert.Equal(t, tensor.Shape{2, 5, 8, 8}, out.Shape())

	assert.Panics(t, func() { b.Conv2D(input, randRaw(rng, 5, 2, 4, 4), 2, 1) })
}

func TestConvTranspose2DKnownValues(t *testing.T) {
	b := New()
	// A single pixel spreads the kernel into the output at stride offsets.
	input := raw(t, []float32{1, 2}, 1, 1, 1, 2)
	kernel := raw(t, []float32{1, 2, 3, 4}, 1, 1, 2, 2)

	out := b.ConvTranspose2D(input, kernel, 2, 0)
	assert.Equal(t, tensor.Shape{1, 1, 2, 4}, out.Shape())
	assert.Equal(t, []float32{1, 2, 2, 4, 3, 4, 6, 8}, out.Data())
}

func TestConvTranspose2DDoublesSpatialSize(t *testing.T) {
	b := New()
	rng := rand.New(rand.NewSource(2))
	input := randRaw(rng, 2, 8, 4, 4)
	kernel := randRaw(rng, 8, 3, 4, 4)

	out := b.ConvTranspose2D(input, kernel, 2, 1)
	assert.Equal(t, tensor.Shape{2, 3, 8, 8}, out.Shape())
}

// The backward kernels must be the adjoints of the forward convolution:
// <conv(x, w), g> == <x, dInput(g)> == <w, dKernel(g)>.
func TestConv2DBackwardAdjoint(t *testing.T) {
	for name, cfg := range map[string]parallel.Config{
		"sequential": parallel.Sequential(),
		"parallel":   {Enabled: true, NumWorkers: 4, MinChunkSize: 1},
	} {
		t.Run(name, func(t *testing.T) {
			b := NewWithConfig(cfg)
			rng := rand.New(rand.NewSource(3))
			x := randRaw(rng, 2, 3, 8, 8)
			w := randRaw(rng, 4, 3, 4, 4)

			y := b.Conv2D(x, w, 2, 1)
			g := randRaw(rng, y.Shape()...)

			lhs := dot(y, g)
			dx := b.Conv2DInputBackward(x, w, g, 2, 1)
			dw := b.Conv2DKernelBackward(x, w, g, 2, 1)
			require.Equal(t, x.Shape(), dx.Shape())
			require.Equal(t, w.Shape(), dw.Shape())

			assert.InDelta(t, lhs, dot(x, dx), 1e-2)
			assert.InDelta(t, lhs, dot(w, dw), 1e-2)
		})
	}
}

// A transposed convolution is the adjoint of the convolution with the same kernel:
// <convT(y, w), x> == <y, conv(x, w)>.
func TestConvTranspose2DAdjoint(t *testing.T) {
	b := New()
	rng := rand.New(rand.NewSource(4))
	y := randRaw(rng, 2, 4, 4, 4)
	w := randRaw(rng, 4, 3, 4, 4) // [C_in=4, C_out=3] for the transposed conv

	out := b.ConvTranspose2D(y, w, 2, 1)
	x := randRaw(rng, out.Shape()...)

	assert.InDelta(t, dot(out, x), dot(y, b.Conv2D(x, w, 2, 1)), 1e-2)
}

func TestConvGradShapeMismatchPanics(t *testing.T) {
	b := New()
	rng := rand.New(rand.NewSource(5))
	x := randRaw(rng, 1, 1, 4, 4)
	w := randRaw(rng, 1, 1, 2, 2)
	assert.Panics(t, func() { b.Conv2DInputBackward(x, w, randRaw(rng, 1, 1, 2, 2), 1, 0) })
}
