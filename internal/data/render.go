package data

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidDataset is returned for unsupported image geometry.
var ErrInvalidDataset = errors.New("invalid dataset")

// Renderer draws factor tuples into [Channels, Size, Size] float32 images in [0, 1].
type Renderer struct {
	size     int
	channels int
}

// NewRenderer creates a renderer. Size must be at least 16 pixels.
func NewRenderer(size, channels int) (*Renderer, error) {
	if size < 16 {
		return nil, fmt.Errorf("%w: image size %d is smaller than 16", ErrInvalidDataset, size)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channels must be positive, got %d", ErrInvalidDataset, channels)
	}
	return &Renderer{size: size, channels: channels}, nil
}

// Size returns the image side length.
func (r *Renderer) Size() int { return r.size }

// Channels returns the number of channels.
func (r *Renderer) Channels() int { return r.channels }

// ImageLen returns the number of float32 values per image.
func (r *Renderer) ImageLen() int { return r.channels * r.size * r.size }

// Render draws f into dst, which must hold ImageLen values. Channel c is
// drawn at intensity * (1 - 0.2*c) so colour images are not grey.
func (r *Renderer) Render(f Factors, dst []float32) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if len(dst) != r.ImageLen() {
		return fmt.Errorf("render: destination holds %d values, want %d", len(dst), r.ImageLen())
	}
	clear(dst)

	s := float64(r.size)
	radius := s * (0.08 + 0.03*float64(f[FactorScale]))
	cx := s * (0.25 + 0.5*float64(f[FactorPosX])/float64(FactorSizes[FactorPosX]-1))
	cy := s * (0.25 + 0.5*float64(f[FactorPosY])/float64(FactorSizes[FactorPosY]-1))
	value := 0.4 + 0.2*float64(f[FactorIntensity])

	plane := r.size * r.size
	for y := 0; y < r.size; y++ {
		dy := float64(y) + 0.5 - cy
		for x := 0; x < r.size; x++ {
			dx := float64(x) + 0.5 - cx
			if !inside(f[FactorShape], dx, dy, radius) {
				continue
			}
			for c := 0; c < r.channels; c++ {
				v := value * (1 - 0.2*float64(c%4))
				dst[c*plane+y*r.size+x] = float32(v)
			}
		}
	}
	return nil
}

func inside(shape int, dx, dy, radius float64) bool {
	switch shape {
	case ShapeSquare:
		return math.Abs(dx) <= radius && math.Abs(dy) <= radius
	case ShapeEllipse:
		ry := 0.6 * radius
		return (dx*dx)/(radius*radius)+(dy*dy)/(ry*ry) <= 1
	default:
		// Upward-pointing triangle with apex at -radius.
		if dy < -radius || dy > radius {
			return false
		}
		return math.Abs(dx) <= (dy+radius)/2
	}
}
