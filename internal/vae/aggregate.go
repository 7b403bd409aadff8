package vae

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/weakvae/internal/tensor"
)

// HistogramFixedWidthBins returns, for every value, the index of the
// equal-width bin over [lo, hi] it falls into, clamped to [0, nbins-1].
//
// When the range is empty (hi == lo) every value lands in bin 0.
func HistogramFixedWidthBins(values []float64, lo, hi float64, nbins int) []int {
	indices := make([]int, len(values))
	width := (hi - lo) / float64(nbins)
	if !(width > 0) {
		return indices
	}
	for i, v := range values {
		idx := math.Floor((v - lo) / width)
		switch {
		case idx < 0 || math.IsNaN(idx):
			idx = 0
		case idx > float64(nbins-1):
			idx = float64(nbins - 1)
		}
		indices[i] = int(idx)
	}
	return indices
}

// DiscretizeInBins splits values into two equal-width bins over their
// global minimum and maximum.
func DiscretizeInBins(values []float32) []int {
	if len(values) == 0 {
		return nil
	}
	vs := make([]float64, len(values))
	for i, v := range values {
		vs[i] = float64(v)
	}
	return HistogramFixedWidthBins(vs, floats.Min(vs), floats.Max(vs), 2)
}

// ArgmaxMask returns a constant mask that is 1 where the per-point KL falls
// in the upper bin. It is computed from values only and carries no gradient.
func ArgmaxMask[B tensor.Backend](klPerPoint *tensor.Tensor[B]) *tensor.Tensor[B] {
	bins := DiscretizeInBins(klPerPoint.Data())
	mask := tensor.MustRaw(klPerPoint.Shape(), klPerPoint.Backend().Device())
	data := mask.Data()
	for i, b := range bins {
		if b == 1 {
			data[i] = 1
		}
	}
	return tensor.New(mask, klPerPoint.Backend())
}

// LabelsMask returns a constant mask that is 1 where a label row equals its
// own maximum. A row of all zeros is therefore all ones.
func LabelsMask[B tensor.Backend](labels *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := labels.Shape()
	rows, cols := shape[0], shape[1]
	src := labels.Data()
	mask := tensor.MustRaw(shape, labels.Backend().Device())
	data := mask.Data()
	for r := 0; r < rows; r++ {
		row := src[r*cols : (r+1)*cols]
		maxV := row[0]
		for _, v := range row[1:] {
			maxV = max(maxV, v)
		}
		for c, v := range row {
			if v == maxV {
				data[r*cols+c] = 1
			}
		}
	}
	return tensor.New(mask, labels.Backend())
}

// AggregateArgmax keeps an observation's own moments for the dimensions in
// the upper KL bin and substitutes the averaged moments elsewhere.
func AggregateArgmax[B tensor.Backend](mean, logVar, newMean, newLogVar, klPerPoint *tensor.Tensor[B]) (*tensor.Tensor[B], *tensor.Tensor[B]) {
	mask := ArgmaxMask(klPerPoint)
	return mean.Where(mask, newMean), logVar.Where(mask, newLogVar)
}

// AggregateLabels keeps an observation's own moments for the dimension
// flagged by the one-hot labels and substitutes the averaged moments elsewhere.
func AggregateLabels[B tensor.Backend](mean, logVar, newMean, newLogVar, labels *tensor.Tensor[B]) (*tensor.Tensor[B], *tensor.Tensor[B]) {
	mask := LabelsMask(labels)
	return mean.Where(mask, newMean), logVar.Where(mask, newLogVar)
}

// Aggregate dispatches to the aggregator. Argmax ignores labels and labels
// ignores klPerPoint.
func Aggregate[B tensor.Backend](
	agg Aggregator,
	mean, logVar, newMean, newLogVar, labels, klPerPoint *tensor.Tensor[B],
) (*tensor.Tensor[B], *tensor.Tensor[B], error) {
	switch agg {
	case AggregatorArgmax:
		m, lv := AggregateArgmax(mean, logVar, newMean, newLogVar, klPerPoint)
		return m, lv, nil
	case AggregatorLabels:
		m, lv := AggregateLabels(mean, logVar, newMean, newLogVar, labels)
		return m, lv, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownAggregator, agg)
	}
}
