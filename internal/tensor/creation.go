package tensor

import "math/rand"

// Zeros creates a tensor filled with zeros.
func Zeros[B Backend](shape Shape, b B) *Tensor[B] {
	return New(MustRaw(shape, b.Device()), b)
}

// Ones creates a tensor filled with ones.
func Ones[B Backend](shape Shape, b B) *Tensor[B] {
	return Full(shape, 1, b)
}

// Full creates a tensor filled with value.
func Full[B Backend](shape Shape, value float32, b B) *Tensor[B] {
	t := Zeros(shape, b)
	t.raw.Fill(value)
	return t
}

// Randn creates a tensor with values drawn from N(0, 1) using rng.
//
// Passing the generator explicitly keeps sampling reproducible per model:
//
//	rng := rand.New(rand.NewSource(42))
//	eps := tensor.Randn(Shape{32, 10}, rng, backend)
func Randn[B Backend](shape Shape, rng *rand.Rand, b B) *Tensor[B] {
	t := Zeros(shape, b)
	data := t.Data()
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	return t
}

// Uniform creates a tensor with values drawn from U(low, high) using rng.
func Uniform[B Backend](shape Shape, low, high float64, rng *rand.Rand, b B) *Tensor[B] {
	t := Zeros(shape, b)
	data := t.Data()
	for i := range data {
		data[i] = float32(low + rng.Float64()*(high-low))
	}
	return t
}

// OneHot expands class indices into a [len(indices), depth] one-hot tensor.
// Indices outside [0, depth) produce all-zero rows.
func OneHot[B Backend](indices []int, depth int, b B) *Tensor[B] {
	t := Zeros(Shape{len(indices), depth}, b)
	data := t.Data()
	for row, idx := range indices {
		if idx >= 0 && idx < depth {
			data[row*depth+idx] = 1
		}
	}
	return t
}
