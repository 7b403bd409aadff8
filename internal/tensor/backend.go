package tensor

// Backend defines the interface that compute backends implement.
//
// Implementations:
//   - cpu.CPUBackend: pure Go kernels
//   - autodiff.AutodiffBackend: decorator recording a gradient tape
//
// Every method returns a new RawTensor; inputs are never modified.
type Backend interface {
	// Element-wise binary operations with broadcasting
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// MatMul multiplies 2D matrices: [M, K] @ [K, N] -> [M, N].
	MatMul(a, b *RawTensor) *RawTensor

	// Convolutions. Conv2D kernels are [C_out, C_in, K_h, K_w];
	// ConvTranspose2D kernels are [C_in, C_out, K_h, K_w].
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor
	Conv2DInputBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor
	Conv2DKernelBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor
	ConvTranspose2D(input, kernel *RawTensor, stride, padding int) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Scalar operations
	MulScalar(x *RawTensor, scalar float32) *RawTensor
	AddScalar(x *RawTensor, scalar float32) *RawTensor

	// Element-wise math
	Exp(x *RawTensor) *RawTensor
	Log(x *RawTensor) *RawTensor
	Tanh(x *RawTensor) *RawTensor
	LeakyReLU(x *RawTensor, slope float32) *RawTensor

	// Reductions
	Sum(x *RawTensor) *RawTensor
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor

	// Manipulation
	Cat(tensors []*RawTensor, dim int) *RawTensor
	Chunk(x *RawTensor, n, dim int) []*RawTensor

	// Where selects x where condition is non-zero and y elsewhere.
	// condition carries no gradient.
	Where(condition, x, y *RawTensor) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
