// Package data generates the synthetic image dataset used for weakly
// supervised training.
//
// Every image is rendered from five discrete generative factors. A weak pair
// shares all factors but one, and its label is the index of that factor.
package data

import (
	"errors"
	"fmt"
	"math/rand"
)

// Factor indexes a generative factor.
type Factor int

// Generative factors, in label order.
const (
	FactorShape Factor = iota
	FactorScale
	FactorPosX
	FactorPosY
	FactorIntensity

	// NumFactors is the number of generative factors.
	NumFactors = 5
)

var factorNames = [NumFactors]string{"shape", "scale", "pos_x", "pos_y", "intensity"}

// String returns the factor name.
func (f Factor) String() string {
	if f < 0 || int(f) >= NumFactors {
		return fmt.Sprintf("Factor(%d)", int(f))
	}
	return factorNames[f]
}

// Shapes drawn for FactorShape.
const (
	ShapeSquare = iota
	ShapeEllipse
	ShapeTriangle
)

// FactorSizes is the number of values each factor takes.
var FactorSizes = [NumFactors]int{3, 6, 8, 8, 4}

// Factors is one value per generative factor.
type Factors [NumFactors]int

// Validate checks every factor is in range.
func (f Factors) Validate() error {
	var errs []error
	for i, v := range f {
		if v < 0 || v >= FactorSizes[i] {
			errs = append(errs, fmt.Errorf("%s = %d, want [0, %d)", Factor(i), v, FactorSizes[i]))
		}
	}
	return errors.Join(errs...)
}

// RandomFactors draws every factor uniformly.
func RandomFactors(rng *rand.Rand) Factors {
	var f Factors
	for i := range f {
		f[i] = rng.Intn(FactorSizes[i])
	}
	return f
}
