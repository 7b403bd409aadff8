package optim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/weakvae/internal/autodiff"
	"github.com/born-ml/weakvae/internal/backend/cpu"
	"github.com/born-ml/weakvae/internal/nn"
	"github.com/born-ml/weakvae/internal/optim"
	"github.com/born-ml/weakvae/internal/tensor"
)

type backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func TestAdamDefaults(t *testing.T) {
	b := autodiff.New(cpu.New())
	opt := optim.NewAdam[backend](nil, optim.AdamConfig{}, b)
	assert.InDelta(t, 0.001, opt.GetLR(), 1e-9)
	opt.SetLR(0.01)
	assert.InDelta(t, 0.01, opt.GetLR(), 1e-9)
}

func TestAdamFirstStepMovesBySignLR(t *testing.T) {
	b := autodiff.New(cpu.New())
	p := nn.NewParameter("w", tensor.Ones(tensor.Shape{2}, b))
	opt := optim.NewAdam([]*nn.Parameter[backend]{p}, optim.AdamConfig{LR: 0.1}, b)

	g, err := tensor.RawFromSlice([]float32{5, -0.5}, tensor.Shape{2}, tensor.CPU)
	require.NoError(t, err)
	opt.Step(map[*tensor.RawTensor]*tensor.RawTensor{p.Tensor().Raw(): g})

	// With bias correction the first update is lr * g/|g|.
	assert.InDelta(t, 0.9, p.Tensor().Data()[0], 1e-5)
	assert.InDelta(t, 1.1, p.Tensor().Data()[1], 1e-5)
	assert.Equal(t, 1, opt.Timestep())
}

func TestAdamSkipsParamsWithoutGrad(t *testing.T) {
	b := autodiff.New(cpu.New())
	p := nn.NewParameter("w", tensor.Ones(tensor.Shape{1}, b))
	opt := optim.NewAdam([]*nn.Parameter[backend]{p}, optim.AdamConfig{}, b)
	opt.Step(map[*tensor.RawTensor]*tensor.RawTensor{})
	assert.Equal(t, []float32{1}, p.Tensor().Data())
}

func TestAdamMinimizesQuadratic(t *testing.T) {
	b := autodiff.New(cpu.New())
	x, err := tensor.FromSlice([]float32{3, -2}, tensor.Shape{2}, b)
	require.NoError(t, err)
	p := nn.NewParameter("x", x)
	opt := optim.NewAdam([]*nn.Parameter[backend]{p}, optim.AdamConfig{LR: 0.1}, b)

	b.Tape().StartRecording()
	for range 300 {
		b.Tape().Clear()
		loss := p.Tensor().Square().Sum()
		opt.Step(autodiff.Backward(loss, b))
	}

	for _, v := range p.Tensor().Data() {
		assert.Less(t, math.Abs(float64(v)), 0.1)
	}
}

func TestAdamStateRoundTrip(t *testing.T) {
	b := autodiff.New(cpu.New())
	p := nn.NewParameter("w", tensor.Ones(tensor.Shape{2}, b))
	opt := optim.NewAdam([]*nn.Parameter[backend]{p}, optim.AdamConfig{}, b)

	g, _ := tensor.RawFromSlice([]float32{1, 2}, tensor.Shape{2}, tensor.CPU)
	opt.Step(map[*tensor.RawTensor]*tensor.RawTensor{p.Tensor().Raw(): g})
	state := opt.State()
	require.Contains(t, state.M, "w")

	fresh := optim.NewAdam([]*nn.Parameter[backend]{p}, optim.AdamConfig{}, b)
	require.NoError(t, fresh.LoadState(state))
	assert.Equal(t, 1, fresh.Timestep())
	assert.Equal(t, state.M["w"].Data(), fresh.State().M["w"].Data())

	bad := optim.AdamState{M: map[string]*tensor.RawTensor{"w": tensor.MustRaw(tensor.Shape{3}, tensor.CPU)}}
	assert.Error(t, fresh.LoadState(bad))

	unknown := optim.AdamState{V: map[string]*tensor.RawTensor{"nope": tensor.MustRaw(tensor.Shape{2}, tensor.CPU)}}
	assert.Error(t, fresh.LoadState(unknown))
}
