package vae

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/weakvae/internal/autodiff"
	"github.com/born-ml/weakvae/internal/backend/cpu"
	"github.com/born-ml/weakvae/internal/tensor"
)

func TestHistogramFixedWidthBins(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		lo, hi float64
		nbins  int
		want   []int
	}{
		{"two bins", []float64{0, 0.4, 0.5, 1}, 0, 1, 2, []int{0, 0, 1, 1}},
		{"clamped", []float64{-5, 5}, 0, 1, 2, []int{0, 1}},
		{"four bins", []float64{0.1, 0.3, 0.6, 0.9}, 0, 1, 4, []int{0, 1, 2, 3}},
		{"empty range", []float64{2, 2, 2}, 2, 2, 2, []int{0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HistogramFixedWidthBins(tt.values, tt.lo, tt.hi, tt.nbins))
		})
	}
}

func TestDiscretizeInBinsUsesGlobalRange(t *testing.T) {
	assert.Equal(t, []int{0, 1, 0, 1}, DiscretizeInBins([]float32{0, 10, 1, 9}))
	assert.Equal(t, []int{0, 0}, DiscretizeInBins([]float32{3, 3}))
	assert.Nil(t, DiscretizeInBins(nil))
}

func TestAggregateArgmax(t *testing.T) {
	b := cpu.New()
	mean := fromSlice(t, b, []float32{1, 2, 3, 4}, 2, 2)
	logVar := fromSlice(t, b, []float32{-1, -2, -3, -4}, 2, 2)
	newMean := fromSlice(t, b, []float32{10, 20, 30, 40}, 2, 2)
	newLogVar := fromSlice(t, b, []float32{-10, -20, -30, -40}, 2, 2)
	kl := fromSlice(t, b, []float32{0, 10, 1, 9}, 2, 2)

	m, lv := AggregateArgmax(mean, logVar, newMean, newLogVar, kl)
	assert.Equal(t, []float32{10, 2, 30, 4}, m.Data())
	assert.Equal(t, []float32{-10, -2, -30, -4}, lv.Data())
}

func TestAggregateArgmaxDegenerateRangeAveragesEverything(t *testing.T) {
	b := cpu.New()
	mean := fromSlice(t, b, []float32{1, 2}, 1, 2)
	newMean := fromSlice(t, b, []float32{5, 6}, 1, 2)
	kl := fromSlice(t, b, []float32{0.5, 0.5}, 1, 2)

	m, lv := AggregateArgmax(mean, mean, newMean, newMean, kl)
	assert.Equal(t, []float32{5, 6}, m.Data())
	assert.Equal(t, []float32{5, 6}, lv.Data())
}

func TestAggregateLabels(t *testing.T) {
	b := cpu.New()
	mean := fromSlice(t, b, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	newMean := fromSlice(t, b, []float32{0, 0, 0, 0, 0, 0}, 2, 3)
	labels := fromSlice(t, b, []float32{0, 1, 0, 0, 0, 0}, 2, 3)

	m, _ := AggregateLabels(mean, mean, newMean, newMean, labels)
	// Row 0 keeps only dimension 1; an all-zero row keeps everything.
	assert.Equal(t, []float32{0, 2, 0, 4, 5, 6}, m.Data())
}

func TestAggregateDispatch(t *testing.T) {
	b := cpu.New()
	x := fromSlice(t, b, []float32{1, 2}, 1, 2)
	avg := fromSlice(t, b, []float32{7, 7}, 1, 2)
	labels := tensor.OneHot([]int{0}, 2, b)
	kl := fromSlice(t, b, []float32{5, 1}, 1, 2)

	m, _, err := Aggregate(AggregatorLabels, x, x, avg, avg, labels, kl)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 7}, m.Data())

	m, _, err = Aggregate(AggregatorArgmax, x, x, avg, avg, labels, kl)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 7}, m.Data())

	_, _, err = Aggregate(Aggregator("mean"), x, x, avg, avg, labels, kl)
	assert.ErrorIs(t, err, ErrUnknownAggregator)
}

// Gradients reach the kept positions directly and the averaged positions
// through both posteriors; the mask itself contributes nothing.
func TestAggregateArgmaxGradients(t *testing.T) {
	b := autodiff.New(cpu.New())
	b.Tape().StartRecording()

	mu1, err := tensor.FromSlice([]float32{0, 0}, tensor.Shape{1, 2}, b)
	require.NoError(t, err)
	mu2, err := tensor.FromSlice([]float32{3, 0}, tensor.Shape{1, 2}, b)
	require.NoError(t, err)
	lv := tensor.Zeros(tensor.Shape{1, 2}, b)

	kl := SymmetricKL(mu1, mu2, lv, lv)
	newMean, newLogVar := AverageMoments(mu1, mu2, lv, lv)
	m1, _ := AggregateArgmax(mu1, lv, newMean, newLogVar, kl)

	grads := autodiff.Backward(m1.Sum(), b)
	// dim 0 has the larger KL and is kept; dim 1 is averaged.
	assert.Equal(t, []float32{1, 0.5}, grads[mu1.Raw()].Data())
	assert.Equal(t, []float32{0, 0.5}, grads[mu2.Raw()].Data())
}
