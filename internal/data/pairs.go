package data

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/weakvae/internal/tensor"
)

// Batch is a batch of weak pairs stored as flat NCHW data.
type Batch struct {
	X1     []float32
	X2     []float32
	Labels []int
	Shape  tensor.Shape
}

// Size returns the number of pairs.
func (b *Batch) Size() int { return len(b.Labels) }

// PairSampler draws weak pairs: x2 differs from x1 in exactly one factor,
// chosen uniformly, and the label is that factor's index.
type PairSampler struct {
	renderer *Renderer
	rng      *rand.Rand
}

// NewPairSampler creates a sampler that is deterministic for a seed.
func NewPairSampler(renderer *Renderer, seed int64) *PairSampler {
	return &PairSampler{renderer: renderer, rng: rand.New(rand.NewSource(seed))}
}

// SamplePair draws the factors of one pair and the changed factor.
func (s *PairSampler) SamplePair() (f1, f2 Factors, label int) {
	f1 = RandomFactors(s.rng)
	label = s.rng.Intn(NumFactors)
	f2 = f1
	n := FactorSizes[label]
	f2[label] = (f1[label] + 1 + s.rng.Intn(n-1)) % n
	return f1, f2, label
}

// NextBatch renders n pairs.
func (s *PairSampler) NextBatch(n int) (*Batch, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidDataset, n)
	}
	size := s.renderer.ImageLen()
	b := &Batch{
		X1:     make([]float32, n*size),
		X2:     make([]float32, n*size),
		Labels: make([]int, n),
		Shape:  tensor.Shape{n, s.renderer.Channels(), s.renderer.Size(), s.renderer.Size()},
	}
	for i := 0; i < n; i++ {
		f1, f2, label := s.SamplePair()
		if err := s.renderer.Render(f1, b.X1[i*size:(i+1)*size]); err != nil {
			return nil, err
		}
		if err := s.renderer.Render(f2, b.X2[i*size:(i+1)*size]); err != nil {
			return nil, err
		}
		b.Labels[i] = label
	}
	return b, nil
}

// Tensors converts a batch into tensors on backend.
func Tensors[B tensor.Backend](b *Batch, backend B) (x1, x2 *tensor.Tensor[B], err error) {
	x1, err = tensor.FromSlice(b.X1, b.Shape, backend)
	if err != nil {
		return nil, nil, fmt.Errorf("x1: %w", err)
	}
	x2, err = tensor.FromSlice(b.X2, b.Shape, backend)
	if err != nil {
		return nil, nil, fmt.Errorf("x2: %w", err)
	}
	return x1, x2, nil
}
