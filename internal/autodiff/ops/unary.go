package ops

import "github.com/born-ml/weakvae/internal/tensor"

// ExpOp represents output = exp(x).
//
// Backward: grad_x = grad * output.
type ExpOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewExpOp creates a new ExpOp.
func NewExpOp(input, output *tensor.RawTensor) *ExpOp {
	return &ExpOp{input: input, output: output}
}

// Backward computes the input gradient.
func (op *ExpOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Mul(outputGrad, op.output)}
}

// Inputs returns [x].
func (op *ExpOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns exp(x).
func (op *ExpOp) Output() *tensor.RawTensor { return op.output }

// LogOp represents output = log(x).
//
// Backward: grad_x = grad / x.
type LogOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewLogOp creates a new LogOp.
func NewLogOp(input, output *tensor.RawTensor) *LogOp {
	return &LogOp{input: input, output: output}
}

// Backward computes the input gradient.
func (op *LogOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Div(outputGrad, op.input)}
}

// Inputs returns [x].
func (op *LogOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns log(x).
func (op *LogOp) Output() *tensor.RawTensor { return op.output }

// TanhOp represents output = tanh(x).
//
// Backward: grad_x = grad * (1 - output²).
type TanhOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewTanhOp creates a new TanhOp.
func NewTanhOp(input, output *tensor.RawTensor) *TanhOp {
	return &TanhOp{input: input, output: output}
}

// Backward computes the input gradient.
func (op *TanhOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	sq := backend.Mul(op.output, op.output)
	deriv := backend.AddScalar(backend.MulScalar(sq, -1), 1)
	return []*tensor.RawTensor{backend.Mul(outputGrad, deriv)}
}

// Inputs returns [x].
func (op *TanhOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns tanh(x).
func (op *TanhOp) Output() *tensor.RawTensor { return op.output }

// LeakyReLUOp represents output = x if x > 0 else slope*x.
//
// Backward: grad_x = grad where x > 0, slope*grad elsewhere.
type LeakyReLUOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	slope  float32
}

// NewLeakyReLUOp creates a new LeakyReLUOp.
func NewLeakyReLUOp(input, output *tensor.RawTensor, slope float32) *LeakyReLUOp {
	return &LeakyReLUOp{input: input, output: output, slope: slope}
}

// Backward computes the input gradient.
func (op *LeakyReLUOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	mask := tensor.MustRaw(op.input.Shape(), backend.Device())
	m := mask.Data()
	for i, v := range op.input.Data() {
		if v > 0 {
			m[i] = 1
		}
	}
	return []*tensor.RawTensor{backend.Where(mask, outputGrad, backend.MulScalar(outputGrad, op.slope))}
}

// Inputs returns [x].
func (op *LeakyReLUOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns leaky_relu(x).
func (op *LeakyReLUOp) Output() *tensor.RawTensor { return op.output }
