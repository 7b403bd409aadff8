package ops

import "github.com/born-ml/weakvae/internal/tensor"

// WhereOp represents output = where(condition, x, y).
//
// The condition is a constant mask and receives no gradient.
//
// Backward:
//
//	grad_x = where(condition, grad, 0)
//	grad_y = where(condition, 0, grad)
type WhereOp struct {
	condition *tensor.RawTensor
	x, y      *tensor.RawTensor
	output    *tensor.RawTensor
}

// NewWhereOp creates a new WhereOp.
func NewWhereOp(condition, x, y, output *tensor.RawTensor) *WhereOp {
	return &WhereOp{condition: condition, x: x, y: y, output: output}
}

// Backward computes input gradients for x and y.
func (op *WhereOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	zeros := tensor.MustRaw(outputGrad.Shape(), backend.Device())
	gradX := backend.Where(op.condition, outputGrad, zeros)
	gradY := backend.Where(op.condition, zeros, outputGrad)
	return []*tensor.RawTensor{
		reduceBroadcast(gradX, op.x.Shape(), backend),
		reduceBroadcast(gradY, op.y.Shape(), backend),
	}
}

// Inputs returns [x, y].
func (op *WhereOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.x, op.y} }

// Output returns the selection.
func (op *WhereOp) Output() *tensor.RawTensor { return op.output }
