package vae

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/weakvae/internal/backend/cpu"
	"github.com/born-ml/weakvae/internal/tensor"
)

var approx = cmpopts.EquateApprox(0, 1e-5)

func fromSlice(t *testing.T, b *cpu.CPUBackend, data []float32, shape ...int) *tensor.Tensor[*cpu.CPUBackend] {
	t.Helper()
	x, err := tensor.FromSlice(data, tensor.Shape(shape), b)
	require.NoError(t, err)
	return x
}

func TestComputeKL(t *testing.T) {
	b := cpu.New()
	zero := fromSlice(t, b, []float32{0, 0}, 1, 2)
	mean2 := fromSlice(t, b, []float32{1, 0}, 1, 2)
	logVar2 := fromSlice(t, b, []float32{0, float32(math.Log(2))}, 1, 2)

	assert.Empty(t, cmp.Diff([]float32{0, 0}, ComputeKL(zero, zero, zero, zero).Data(), approx))

	// dim 0: 1 + 1 - 1 + 0 = 1; dim 1: 1/2 + 0 - 1 + log 2
	want := []float32{1, float32(0.5 - 1 + math.Log(2))}
	assert.Empty(t, cmp.Diff(want, ComputeKL(zero, mean2, zero, logVar2).Data(), approx))
}

func TestSymmetricKLIsSymmetric(t *testing.T) {
	b := cpu.New()
	rng := rand.New(rand.NewSource(1))
	mu1 := tensor.Randn(tensor.Shape{3, 4}, rng, b)
	mu2 := tensor.Randn(tensor.Shape{3, 4}, rng, b)
	lv1 := tensor.Randn(tensor.Shape{3, 4}, rng, b)
	lv2 := tensor.Randn(tensor.Shape{3, 4}, rng, b)

	ab := SymmetricKL(mu1, mu2, lv1, lv2).Data()
	ba := SymmetricKL(mu2, mu1, lv2, lv1).Data()
	assert.Empty(t, cmp.Diff(ab, ba, approx))
	for _, v := range ab {
		assert.GreaterOrEqual(t, v, float32(-1e-6))
	}
}

func TestAverageMoments(t *testing.T) {
	b := cpu.New()
	mu1 := fromSlice(t, b, []float32{0, 2}, 1, 2)
	mu2 := fromSlice(t, b, []float32{2, 2}, 1, 2)
	lv1 := fromSlice(t, b, []float32{0, 0}, 1, 2)
	lv2 := fromSlice(t, b, []float32{float32(math.Log(3)), 0}, 1, 2)

	mean, logVar := AverageMoments(mu1, mu2, lv1, lv2)
	assert.Empty(t, cmp.Diff([]float32{1, 2}, mean.Data(), approx))
	assert.Empty(t, cmp.Diff([]float32{float32(math.Log(2)), 0}, logVar.Data(), approx))
}

func TestKLDivergenceStandardNormalIsZero(t *testing.T) {
	b := cpu.New()
	zeros := tensor.Zeros(tensor.Shape{2, 3}, b)
	kl := KLDivergence(zeros, zeros)
	assert.Equal(t, tensor.Shape{2}, kl.Shape())
	assert.Empty(t, cmp.Diff([]float32{0, 0}, kl.Data(), approx))

	ones := tensor.Ones(tensor.Shape{1, 2}, b)
	// 0.5 * (1 + 1 - 1 - 0) per dim, two dims.
	assert.Empty(t, cmp.Diff([]float32{1}, KLDivergence(ones, tensor.Zeros(tensor.Shape{1, 2}, b)).Data(), approx))
}

func TestReparameterizeIsSeeded(t *testing.T) {
	b := cpu.New()
	mean := tensor.Full(tensor.Shape{2, 2}, 3, b)
	logVar := tensor.Full(tensor.Shape{2, 2}, float32(math.Log(4)), b)

	z1 := Reparameterize(mean, logVar, rand.New(rand.NewSource(9))).Data()
	z2 := Reparameterize(mean, logVar, rand.New(rand.NewSource(9))).Data()
	assert.Equal(t, z1, z2)

	eps := tensor.Randn(tensor.Shape{2, 2}, rand.New(rand.NewSource(9)), b).Data()
	for i, v := range z1 {
		assert.InDelta(t, 3+2*eps[i], v, 1e-5)
	}
}

func TestReconstruction(t *testing.T) {
	b := cpu.New()
	x := tensor.Ones(tensor.Shape{2, 1, 2, 2}, b)
	half := tensor.Full(tensor.Shape{2, 1, 2, 2}, 0.5, b)

	r, err := Reconstruction(Bernoulli, half, nil, x)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2}, r.Shape())
	assert.InDelta(t, 4*math.Log(0.5), r.Data()[0], 1e-4)

	logScale := tensor.Zeros(tensor.Shape{1}, b)
	g, err := Reconstruction(Gaussian, x, logScale, x)
	require.NoError(t, err)
	assert.InDelta(t, -4*0.5*math.Log(2*math.Pi), g.Data()[1], 1e-4)

	_, err = Reconstruction(Gaussian, x, nil, x)
	assert.Error(t, err)

	_, err = Reconstruction(Bernoulli, tensor.Ones(tensor.Shape{2, 1, 4, 4}, b), nil, x)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Reconstruction(Distribution("laplace"), x, nil, x)
	assert.Error(t, err)
}
