package tensor

// Add performs element-wise addition with broadcasting.
//
// Example:
//
//	a := tensor.Ones(Shape{3, 1}, backend)
//	b := tensor.Ones(Shape{3, 5}, backend)
//	c := a.Add(b) // Shape: [3, 5]
func (t *Tensor[B]) Add(other *Tensor[B]) *Tensor[B] {
	return New(t.backend.Add(t.raw, other.raw), t.backend)
}

// Sub performs element-wise subtraction with broadcasting.
func (t *Tensor[B]) Sub(other *Tensor[B]) *Tensor[B] {
	return New(t.backend.Sub(t.raw, other.raw), t.backend)
}

// Mul performs element-wise multiplication with broadcasting.
func (t *Tensor[B]) Mul(other *Tensor[B]) *Tensor[B] {
	return New(t.backend.Mul(t.raw, other.raw), t.backend)
}

// Div performs element-wise division with broadcasting.
func (t *Tensor[B]) Div(other *Tensor[B]) *Tensor[B] {
	return New(t.backend.Div(t.raw, other.raw), t.backend)
}

// Square returns t*t.
func (t *Tensor[B]) Square() *Tensor[B] {
	return t.Mul(t)
}

// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) → (M, N).
func (t *Tensor[B]) MatMul(other *Tensor[B]) *Tensor[B] {
	return New(t.backend.MatMul(t.raw, other.raw), t.backend)
}

// Reshape returns a tensor with the same data but a different shape.
// A single -1 dimension is inferred from the element count.
//
// Example:
//
//	t := tensor.Zeros(Shape{4, 8, 2, 2}, backend)
//	flat := t.Reshape(4, -1) // Shape: [4, 32]
func (t *Tensor[B]) Reshape(newShape ...int) *Tensor[B] {
	shape := inferShape(Shape(newShape), t.NumElements())
	return New(t.backend.Reshape(t.raw, shape), t.backend)
}

// Transpose permutes the tensor's dimensions. With no axes it reverses them.
func (t *Tensor[B]) Transpose(axes ...int) *Tensor[B] {
	return New(t.backend.Transpose(t.raw, axes...), t.backend)
}

// T is a shortcut for 2D transpose.
func (t *Tensor[B]) T() *Tensor[B] {
	if len(t.Shape()) != 2 {
		panic("T() only works for 2D tensors")
	}
	return t.Transpose(1, 0)
}

// MulScalar multiplies every element by s.
func (t *Tensor[B]) MulScalar(s float32) *Tensor[B] {
	return New(t.backend.MulScalar(t.raw, s), t.backend)
}

// AddScalar adds s to every element.
func (t *Tensor[B]) AddScalar(s float32) *Tensor[B] {
	return New(t.backend.AddScalar(t.raw, s), t.backend)
}

// Neg returns -t.
func (t *Tensor[B]) Neg() *Tensor[B] {
	return t.MulScalar(-1)
}

// Exp computes e^x element-wise.
func (t *Tensor[B]) Exp() *Tensor[B] {
	return New(t.backend.Exp(t.raw), t.backend)
}

// Log computes the natural logarithm element-wise.
func (t *Tensor[B]) Log() *Tensor[B] {
	return New(t.backend.Log(t.raw), t.backend)
}

// Tanh computes the hyperbolic tangent element-wise.
func (t *Tensor[B]) Tanh() *Tensor[B] {
	return New(t.backend.Tanh(t.raw), t.backend)
}

// LeakyReLU computes max(x, slope*x) element-wise.
func (t *Tensor[B]) LeakyReLU(slope float32) *Tensor[B] {
	return New(t.backend.LeakyReLU(t.raw, slope), t.backend)
}

// Sum reduces all elements to a scalar.
func (t *Tensor[B]) Sum() *Tensor[B] {
	return New(t.backend.Sum(t.raw), t.backend)
}

// Mean reduces all elements to their scalar mean.
func (t *Tensor[B]) Mean() *Tensor[B] {
	return t.Sum().MulScalar(1 / float32(t.NumElements()))
}

// SumDim sums along dim.
func (t *Tensor[B]) SumDim(dim int, keepDim bool) *Tensor[B] {
	return New(t.backend.SumDim(t.raw, dim, keepDim), t.backend)
}

// MeanDim averages along dim.
func (t *Tensor[B]) MeanDim(dim int, keepDim bool) *Tensor[B] {
	return New(t.backend.MeanDim(t.raw, dim, keepDim), t.backend)
}

// Chunk splits the tensor into n equal parts along dim.
func (t *Tensor[B]) Chunk(n, dim int) []*Tensor[B] {
	raws := t.backend.Chunk(t.raw, n, dim)
	out := make([]*Tensor[B], len(raws))
	for i, r := range raws {
		out[i] = New(r, t.backend)
	}
	return out
}

// Where selects t where condition is non-zero and other elsewhere.
func (t *Tensor[B]) Where(condition, other *Tensor[B]) *Tensor[B] {
	return New(t.backend.Where(condition.raw, t.raw, other.raw), t.backend)
}

// Cat concatenates tensors along dim.
func Cat[B Backend](tensors []*Tensor[B], dim int) *Tensor[B] {
	if len(tensors) == 0 {
		panic("cat: no tensors")
	}
	raws := make([]*RawTensor, len(tensors))
	for i, t := range tensors {
		raws[i] = t.raw
	}
	b := tensors[0].backend
	return New(b.Cat(raws, dim), b)
}

// inferShape resolves a single -1 entry in shape.
func inferShape(shape Shape, numElements int) Shape {
	shape = shape.Clone()
	inferred := -1
	known := 1
	for i, d := range shape {
		if d == -1 {
			if inferred >= 0 {
				panic("reshape: only one dimension can be inferred")
			}
			inferred = i
			continue
		}
		known *= d
	}
	if inferred >= 0 {
		if known == 0 || numElements%known != 0 {
			panic("reshape: cannot infer dimension")
		}
		shape[inferred] = numElements / known
	}
	return shape
}
