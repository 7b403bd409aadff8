package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/weakvae/internal/tensor"
)

// binaryOp applies f element-wise with NumPy-style broadcasting.
func (cpu *CPUBackend) binaryOp(name string, a, b *tensor.RawTensor, f func(x, y float32) float32) *tensor.RawTensor {
	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	result := tensor.MustRaw(outShape, cpu.device)
	out := result.Data()
	aData, bData := a.Data(), b.Data()

	if !needsBroadcast {
		// Fast path: identical shapes
		for i := range out {
			out[i] = f(aData[i], bData[i])
		}
		return result
	}

	forEachBroadcast(a.Shape(), b.Shape(), outShape, func(o, i, j int) {
		out[o] = f(aData[i], bData[j])
	})
	return result
}

// Add performs element-wise addition with broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("add", a, b, func(x, y float32) float32 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("sub", a, b, func(x, y float32) float32 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("mul", a, b, func(x, y float32) float32 { return x * y })
}

// Div performs element-wise division with broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("div", a, b, func(x, y float32) float32 { return x / y })
}

// unaryOp applies f to every element.
func (cpu *CPUBackend) unaryOp(x *tensor.RawTensor, f func(v float32) float32) *tensor.RawTensor {
	result := tensor.MustRaw(x.Shape(), cpu.device)
	out := result.Data()
	for i, v := range x.Data() {
		out[i] = f(v)
	}
	return result
}

// MulScalar multiplies every element by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return cpu.unaryOp(x, func(v float32) float32 { return v * scalar })
}

// AddScalar adds scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return cpu.unaryOp(x, func(v float32) float32 { return v + scalar })
}

// Exp computes e^x element-wise.
func (cpu *CPUBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp(x, func(v float32) float32 { return float32(math.Exp(float64(v))) })
}

// Log computes the natural logarithm element-wise.
// Non-positive inputs follow math.Log (-Inf or NaN).
func (cpu *CPUBackend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp(x, func(v float32) float32 { return float32(math.Log(float64(v))) })
}

// Tanh computes the hyperbolic tangent element-wise.
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp(x, func(v float32) float32 { return float32(math.Tanh(float64(v))) })
}

// LeakyReLU computes x for x > 0 and slope*x otherwise.
func (cpu *CPUBackend) LeakyReLU(x *tensor.RawTensor, slope float32) *tensor.RawTensor {
	return cpu.unaryOp(x, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return slope * v
	})
}

// Where selects x where condition is non-zero and y elsewhere.
// All three tensors broadcast to a common shape.
func (cpu *CPUBackend) Where(condition, x, y *tensor.RawTensor) *tensor.RawTensor {
	shape, _, err := tensor.BroadcastShapes(x.Shape(), y.Shape())
	if err != nil {
		panic(fmt.Sprintf("where: %v", err))
	}
	shape, _, err = tensor.BroadcastShapes(condition.Shape(), shape)
	if err != nil {
		panic(fmt.Sprintf("where: %v", err))
	}

	result := tensor.MustRaw(shape, cpu.device)
	out := result.Data()
	cond := condition.Data()
	xData, yData := x.Data(), y.Data()

	condStrides := broadcastStrides(condition.Shape(), shape)
	xStrides := broadcastStrides(x.Shape(), shape)
	yStrides := broadcastStrides(y.Shape(), shape)
	counter := make([]int, len(shape))

	for o := range out {
		ci, xi, yi := 0, 0, 0
		for d, c := range counter {
			ci += c * condStrides[d]
			xi += c * xStrides[d]
			yi += c * yStrides[d]
		}
		if cond[ci] != 0 {
			out[o] = xData[xi]
		} else {
			out[o] = yData[yi]
		}
		for d := len(counter) - 1; d >= 0; d-- {
			counter[d]++
			if counter[d] < shape[d] {
				break
			}
			counter[d] = 0
		}
	}
	return result
}
