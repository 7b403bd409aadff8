package cpu

import (
	"fmt"

	"github.com/born-ml/weakvae/internal/parallel"
	"github.com/born-ml/weakvae/internal/tensor"
)

// convDims holds the geometry of a 2D convolution.
type convDims struct {
	N, CIn, H, W    int // input
	COut, KH, KW    int // kernel
	HOut, WOut      int // output
	stride, padding int
}

// newConvDims validates conv2d operands and computes the output geometry.
//
// Input shape:  [N, C_in, H, W]
// Kernel shape: [C_out, C_in, K_h, K_w]
// Output:       out_h = (H + 2*padding - K_h) / stride + 1
func newConvDims(op string, inputShape, kernelShape tensor.Shape, stride, padding int) convDims {
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,C,H,W], got %dD", op, len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("%s: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", op, len(kernelShape)))
	}
	if inputShape[1] != kernelShape[1] {
		panic(fmt.Sprintf("%s: input channels %d != kernel channels %d", op, inputShape[1], kernelShape[1]))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("%s: invalid stride %d / padding %d", op, stride, padding))
	}

	d := convDims{
		N: inputShape[0], CIn: inputShape[1], H: inputShape[2], W: inputShape[3],
		COut: kernelShape[0], KH: kernelShape[2], KW: kernelShape[3],
		stride: stride, padding: padding,
	}
	d.HOut = (d.H+2*padding-d.KH)/stride + 1
	d.WOut = (d.W+2*padding-d.KW)/stride + 1
	if d.HOut <= 0 || d.WOut <= 0 {
		panic(fmt.Sprintf("%s: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", op, d.HOut, d.WOut))
	}
	return d
}

// Conv2D performs a direct 2D cross-correlation.
//
// Input shape:  [N, C_in, H, W]
// Kernel shape: [C_out, C_in, K_h, K_w]
// Output shape: [N, C_out, H_out, W_out]
//
// Each (n, c_out) output plane is computed independently, in parallel.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	d := newConvDims("conv2d", input.Shape(), kernel.Shape(), stride, padding)

	output := tensor.MustRaw(tensor.Shape{d.N, d.COut, d.HOut, d.WOut}, cpu.device)
	in, w, out := input.Data(), kernel.Data(), output.Data()

	parallel.ForBatch(d.N, d.COut, func(n, co int) {
		plane := out[(n*d.COut+co)*d.HOut*d.WOut : (n*d.COut+co+1)*d.HOut*d.WOut]
		for ci := 0; ci < d.CIn; ci++ {
			inPlane := in[(n*d.CIn+ci)*d.H*d.W:]
			wPlane := w[(co*d.CIn+ci)*d.KH*d.KW:]
			for kh := 0; kh < d.KH; kh++ {
				for kw := 0; kw < d.KW; kw++ {
					wv := wPlane[kh*d.KW+kw]
					for oh := 0; oh < d.HOut; oh++ {
						ih := oh*d.stride - d.padding + kh
						if ih < 0 || ih >= d.H {
							continue
						}
						row := inPlane[ih*d.W:]
						for ow := 0; ow < d.WOut; ow++ {
							iw := ow*d.stride - d.padding + kw
							if iw < 0 || iw >= d.W {
								continue
							}
							plane[oh*d.WOut+ow] += wv * row[iw]
						}
					}
				}
			}
		}
	}, cpu.par)

	return output
}

// Conv2DInputBackward computes ∂L/∂input of Conv2D given ∂L/∂output.
func (cpu *CPUBackend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	d := newConvDims("conv2d_input_backward", input.Shape(), kernel.Shape(), stride, padding)
	checkGradShape("conv2d_input_backward", grad.Shape(), d)
	return cpu.scatterConvGrad(d, kernel, grad)
}

// scatterConvGrad accumulates grad back through the kernel onto an input-shaped
// tensor. It is both the input gradient of Conv2D and the forward pass of
// ConvTranspose2D.
func (cpu *CPUBackend) scatterConvGrad(d convDims, kernel, grad *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.MustRaw(tensor.Shape{d.N, d.CIn, d.H, d.W}, cpu.device)
	w, g, out := kernel.Data(), grad.Data(), result.Data()

	parallel.ForBatch(d.N, d.CIn, func(n, ci int) {
		plane := out[(n*d.CIn+ci)*d.H*d.W : (n*d.CIn+ci+1)*d.H*d.W]
		for co := 0; co < d.COut; co++ {
			gPlane := g[(n*d.COut+co)*d.HOut*d.WOut:]
			wPlane := w[(co*d.CIn+ci)*d.KH*d.KW:]
			for kh := 0; kh < d.KH; kh++ {
				for kw := 0; kw < d.KW; kw++ {
					wv := wPlane[kh*d.KW+kw]
					for oh := 0; oh < d.HOut; oh++ {
						ih := oh*d.stride - d.padding + kh
						if ih < 0 || ih >= d.H {
							continue
						}
						for ow := 0; ow < d.WOut; ow++ {
							iw := ow*d.stride - d.padding + kw
							if iw < 0 || iw >= d.W {
								continue
							}
							plane[ih*d.W+iw] += wv * gPlane[oh*d.WOut+ow]
						}
					}
				}
			}
		}
	}, cpu.par)

	return result
}

// Conv2DKernelBackward computes ∂L/∂kernel of Conv2D given ∂L/∂output.
func (cpu *CPUBackend) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	d := newConvDims("conv2d_kernel_backward", input.Shape(), kernel.Shape(), stride, padding)
	checkGradShape("conv2d_kernel_backward", grad.Shape(), d)

	result := tensor.MustRaw(kernel.Shape(), cpu.device)
	in, g, out := input.Data(), grad.Data(), result.Data()

	parallel.ForBatch(d.COut, d.CIn, func(co, ci int) {
		kPlane := out[(co*d.CIn+ci)*d.KH*d.KW : (co*d.CIn+ci+1)*d.KH*d.KW]
		for n := 0; n < d.N; n++ {
			inPlane := in[(n*d.CIn+ci)*d.H*d.W:]
			gPlane := g[(n*d.COut+co)*d.HOut*d.WOut:]
			for kh := 0; kh < d.KH; kh++ {
				for kw := 0; kw < d.KW; kw++ {
					var sum float32
					for oh := 0; oh < d.HOut; oh++ {
						ih := oh*d.stride - d.padding + kh
						if ih < 0 || ih >= d.H {
							continue
						}
						for ow := 0; ow < d.WOut; ow++ {
							iw := ow*d.stride - d.padding + kw
							if iw < 0 || iw >= d.W {
								continue
							}
							sum += gPlane[oh*d.WOut+ow] * inPlane[ih*d.W+iw]
						}
					}
					kPlane[kh*d.KW+kw] += sum
				}
			}
		}
	}, cpu.par)

	return result
}

// ConvTranspose2D performs a transposed 2D convolution.
//
// Input shape:  [N, C_in, H, W]
// Kernel shape: [C_in, C_out, K_h, K_w]
// Output shape: [N, C_out, (H-1)*stride - 2*padding + K_h, ...]
//
// A transposed convolution is the input gradient of a Conv2D whose kernel is
// read as [C_out_conv=C_in, C_in_conv=C_out], so the scatter kernel is reused.
func (cpu *CPUBackend) ConvTranspose2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	inShape, kShape := input.Shape(), kernel.Shape()
	if len(inShape) != 4 || len(kShape) != 4 {
		panic(fmt.Sprintf("conv_transpose2d: expected 4D input and kernel, got %v and %v", inShape, kShape))
	}
	if inShape[1] != kShape[0] {
		panic(fmt.Sprintf("conv_transpose2d: input channels %d != kernel channels %d", inShape[1], kShape[0]))
	}

	hOut := (inShape[2]-1)*stride - 2*padding + kShape[2]
	wOut := (inShape[3]-1)*stride - 2*padding + kShape[3]
	outShape := tensor.Shape{inShape[0], kShape[1], hOut, wOut}

	d := newConvDims("conv_transpose2d", outShape, kShape, stride, padding)
	checkGradShape("conv_transpose2d", inShape, d)
	return cpu.scatterConvGrad(d, kernel, input)
}

func checkGradShape(op string, grad tensor.Shape, d convDims) {
	want := tensor.Shape{d.N, d.COut, d.HOut, d.WOut}
	if !grad.Equal(want) {
		panic(fmt.Sprintf("%s: gradient shape %v, expected %v", op, grad, want))
	}
}
