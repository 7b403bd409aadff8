package data

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/weakvae/internal/backend/cpu"
	"github.com/born-ml/weakvae/internal/tensor"
)

func TestFactorsValidate(t *testing.T) {
	assert.NoError(t, Factors{0, 5, 7, 7, 3}.Validate())

	err := Factors{3, 0, 8, 0, 0}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shape = 3")
	assert.Contains(t, err.Error(), "pos_x = 8")

	assert.Equal(t, "intensity", FactorIntensity.String())
	assert.Equal(t, "Factor(9)", Factor(9).String())
}

func TestRendererRejectsBadGeometry(t *testing.T) {
	_, err := NewRenderer(8, 1)
	assert.ErrorIs(t, err, ErrInvalidDataset)
	_, err = NewRenderer(32, 0)
	assert.ErrorIs(t, err, ErrInvalidDataset)
}

func TestRenderDrawsInsideUnitRange(t *testing.T) {
	r, err := NewRenderer(32, 3)
	require.NoError(t, err)
	dst := make([]float32, r.ImageLen())

	rng := rand.New(rand.NewSource(1))
	for range 20 {
		f := RandomFactors(rng)
		require.NoError(t, r.Render(f, dst))
		lit := 0
		for _, v := range dst {
			assert.True(t, v >= 0 && v <= 1)
			if v > 0 {
				lit++
			}
		}
		assert.Positive(t, lit, "factors %v drew nothing", f)
	}

	assert.Error(t, r.Render(Factors{}, dst[:10]))
	assert.Error(t, r.Render(Factors{0, 0, 0, 0, 9}, dst))
}

func TestRenderFactorsChangeImage(t *testing.T) {
	r, err := NewRenderer(32, 1)
	require.NoError(t, err)
	base := Factors{ShapeSquare, 2, 3, 3, 2}
	a := make([]float32, r.ImageLen())
	require.NoError(t, r.Render(base, a))

	for i := range NumFactors {
		changed := base
		changed[i] = (base[i] + 1) % FactorSizes[i]
		b := make([]float32, r.ImageLen())
		require.NoError(t, r.Render(changed, b))
		assert.NotEqual(t, a, b, "changing %s must change the image", Factor(i))
	}
}

func TestSamplePairChangesExactlyOneFactor(t *testing.T) {
	r, err := NewRenderer(32, 1)
	require.NoError(t, err)
	s := NewPairSampler(r, 7)

	seen := map[int]bool{}
	for range 200 {
		f1, f2, label := s.SamplePair()
		require.NoError(t, f2.Validate())
		for i := range NumFactors {
			if i == label {
				assert.NotEqual(t, f1[i], f2[i])
			} else {
				assert.Equal(t, f1[i], f2[i])
			}
		}
		seen[label] = true
	}
	assert.Len(t, seen, NumFactors)
}

func TestNextBatchIsDeterministic(t *testing.T) {
	r, err := NewRenderer(16, 1)
	require.NoError(t, err)

	b1, err := NewPairSampler(r, 3).NextBatch(4)
	require.NoError(t, err)
	b2, err := NewPairSampler(r, 3).NextBatch(4)
	require.NoError(t, err)

	assert.Equal(t, b1.Labels, b2.Labels)
	assert.Equal(t, b1.X1, b2.X1)
	assert.Equal(t, tensor.Shape{4, 1, 16, 16}, b1.Shape)
	assert.Equal(t, 4, b1.Size())

	_, err = NewPairSampler(r, 3).NextBatch(0)
	assert.ErrorIs(t, err, ErrInvalidDataset)
}

func TestTensors(t *testing.T) {
	r, err := NewRenderer(16, 2)
	require.NoError(t, err)
	batch, err := NewPairSampler(r, 1).NextBatch(3)
	require.NoError(t, err)

	x1, x2, err := Tensors(batch, cpu.New())
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 2, 16, 16}, x1.Shape())
	assert.Equal(t, batch.X2, x2.Data())
}

func TestGrid(t *testing.T) {
	pixels := make([]float32, 3*1*2*2)
	for i := range pixels {
		pixels[i] = 1
	}
	img, err := Grid(pixels, 3, 1, 2, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 12, img.Bounds().Dx())
	assert.Equal(t, 12, img.Bounds().Dy())

	// Tile (0,0) is white; the unused fourth tile stays black.
	assert.Equal(t, uint8(255), img.RGBAAt(1, 1).R)
	assert.Equal(t, uint8(0), img.RGBAAt(10, 10).R)

	_, err = Grid(pixels, 4, 1, 2, 2, 1)
	assert.Error(t, err)
}
