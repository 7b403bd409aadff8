package checkpoint

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/weakvae/internal/autodiff"
	"github.com/born-ml/weakvae/internal/backend/cpu"
	"github.com/born-ml/weakvae/internal/tensor"
	"github.com/born-ml/weakvae/internal/vae"
)

type adBackend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func raw(t *testing.T, data []float32, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.RawFromSlice(data, tensor.Shape(shape), tensor.CPU)
	require.NoError(t, err)
	return r
}

func TestWriteReadF32(t *testing.T) {
	in := map[string]*tensor.RawTensor{
		"b.weight": raw(t, []float32{1, -2, 3.5, 4, 5, 6}, 2, 3),
		"a.bias":   raw(t, []float32{0.25}, 1),
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, in, map[string]string{"k": "v"}, F32))

	f, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, "v", f.Metadata["k"])
	assert.NotEmpty(t, f.Metadata[checksumKey])
	require.Len(t, f.Tensors, 2)
	for name, want := range in {
		got := f.Tensors[name]
		require.NotNil(t, got, name)
		assert.Equal(t, want.Shape(), got.Shape())
		assert.Equal(t, want.Data(), got.Data())
	}
}

func TestHeaderIsAligned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, map[string]*tensor.RawTensor{"x": raw(t, []float32{1}, 1)}, nil, F32))
	size := binary.LittleEndian.Uint64(buf.Bytes()[:8])
	assert.Zero(t, size%8)
}

func TestWriteReadF16(t *testing.T) {
	in := map[string]*tensor.RawTensor{"w": raw(t, []float32{0.1, -1.5, 1000, 3.14159}, 4)}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, in, nil, F16))

	f, err := Read(&buf)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(in["w"].Data(), f.Tensors["w"].Data(), cmpopts.EquateApprox(1e-3, 0)))
}

func TestWriteReadBF16(t *testing.T) {
	in := map[string]*tensor.RawTensor{"w": raw(t, []float32{1, -2, 0.5, 256}, 4)}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, in, nil, BF16))

	f, err := Read(&buf)
	require.NoError(t, err)
	// These values are exact in bfloat16.
	assert.Equal(t, in["w"].Data(), f.Tensors["w"].Data())
}

func TestReadDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, map[string]*tensor.RawTensor{"w": raw(t, []float32{1, 2, 3}, 3)}, nil, F32))
	b := buf.Bytes()
	b[len(b)-1] ^= 0xff

	_, err := Read(bytes.NewReader(b))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func rawFile(t *testing.T, header string, data []byte) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(header))))
	buf.WriteString(header)
	buf.Write(data)
	return bytes.NewReader(buf.Bytes())
}

func TestReadValidatesLayout(t *testing.T) {
	data := make([]byte, 16)
	tests := []struct {
		name   string
		header string
		kind   string
	}{
		{
			name:   "overlap",
			header: `{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]},"b":{"dtype":"F32","shape":[2],"data_offsets":[4,12]}}`,
			kind:   "offset_overlap",
		},
		{
			name:   "out of bounds",
			header: `{"a":{"dtype":"F32","shape":[8],"data_offsets":[0,32]}}`,
			kind:   "out_of_bounds",
		},
		{
			name:   "size mismatch",
			header: `{"a":{"dtype":"F32","shape":[3],"data_offsets":[0,8]}}`,
			kind:   "size_mismatch",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(rawFile(t, tt.header, data))
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.kind, ve.Type)
			assert.ErrorIs(t, err, ErrBadHeader)
		})
	}

	_, err := Read(rawFile(t, `{"a":{"dtype":"I64","shape":[2],"data_offsets":[0,16]}}`, data))
	assert.ErrorIs(t, err, ErrUnsupportedDType)

	_, err = Read(rawFile(t, `not json`, nil))
	assert.ErrorIs(t, err, ErrBadHeader)
}

func TestWriteRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", "../w", "a\x00b", metadataKey} {
		err := Write(&bytes.Buffer{}, map[string]*tensor.RawTensor{name: raw(t, []float32{1}, 1)}, nil, F32)
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve, "name %q", name)
	}
	assert.ErrorIs(t, Write(&bytes.Buffer{}, nil, nil, DType("I8")), ErrUnsupportedDType)
}

func smallConfig() vae.Config {
	cfg := vae.DefaultConfig()
	cfg.LatentDim = 3
	cfg.HiddenDim = 8
	cfg.NFilters = 2
	cfg.ImageSize = 32
	cfg.WarmUpIterations = 10
	cfg.LearningRate = 1e-3
	return cfg
}

func trainedModel(t *testing.T, seed int64) *vae.WeakVAE[adBackend] {
	t.Helper()
	m, err := vae.New(smallConfig(), autodiff.New(cpu.New()), rand.New(rand.NewSource(seed)))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(seed + 1))
	shape := tensor.Shape{2, 1, 32, 32}
	x1 := tensor.Uniform(shape, 0, 1, rng, m.Backend())
	x2 := tensor.Uniform(shape, 0, 1, rng, m.Backend())
	for range 2 {
		_, err := vae.TrainStep(m, x1, x2, []int{0, 1})
		require.NoError(t, err)
	}
	return m
}

func TestSaveLoadRestore(t *testing.T) {
	src := trainedModel(t, 1)
	path := filepath.Join(t.TempDir(), "run.safetensors")

	require.NoError(t, Save(path, Capture("run-1", src), F32))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", c.RunID)
	assert.Equal(t, 2, c.Iteration)
	assert.Equal(t, src.Beta(), c.Beta)
	assert.Equal(t, src.Config(), c.Config)
	assert.Equal(t, 2, c.Optimizer.Timestep)
	assert.Len(t, c.Optimizer.M, len(src.Parameters()))

	dst, err := vae.New(c.Config, autodiff.New(cpu.New()), rand.New(rand.NewSource(99)))
	require.NoError(t, err)
	require.NoError(t, Restore(c, dst))

	want := src.StateDict()
	for name, got := range dst.StateDict() {
		assert.Equal(t, want[name].Data(), got.Data(), name)
	}
	assert.Equal(t, src.Schedule().Iteration(), dst.Schedule().Iteration())
	assert.Equal(t, src.Beta(), dst.Beta())
	assert.Equal(t, src.Optimizer().Timestep(), dst.Optimizer().Timestep())

	// The restored optimizer state is usable for further training.
	x := tensor.Uniform(tensor.Shape{2, 1, 32, 32}, 0, 1, rand.New(rand.NewSource(7)), dst.Backend())
	res, err := vae.TrainStep(dst, x, x, []int{0, 2})
	require.NoError(t, err)
	assert.Equal(t, 3, dst.Optimizer().Timestep())
	assert.Equal(t, src.Schedule().At(2), res.Beta)
}

func TestCaptureIsIndependentOfTraining(t *testing.T) {
	m := trainedModel(t, 2)
	c := Capture("r", m)
	before := append([]float32(nil), c.Params["fc_mu.weight"].Data()...)

	rng := rand.New(rand.NewSource(3))
	x := tensor.Uniform(tensor.Shape{2, 1, 32, 32}, 0, 1, rng, m.Backend())
	_, err := vae.TrainStep(m, x, x, []int{1, 1})
	require.NoError(t, err)

	assert.Equal(t, before, c.Params["fc_mu.weight"].Data())
}

func TestSaveHalfPrecisionExportsParametersOnly(t *testing.T) {
	m := trainedModel(t, 3)
	for dtype, tol := range map[DType]float64{F16: 1e-3, BF16: 1e-2} {
		path := filepath.Join(t.TempDir(), "half.safetensors")
		require.NoError(t, Save(path, Capture("r", m), dtype))

		c, err := Load(path)
		require.NoError(t, err)
		assert.Empty(t, c.Optimizer.M, dtype)
		assert.Zero(t, c.Optimizer.Timestep, dtype)
		assert.Empty(t, cmp.Diff(m.StateDict()["fc_mu.weight"].Data(), c.Params["fc_mu.weight"].Data(),
			cmpopts.EquateApprox(tol, 1e-3)), dtype)
	}
}

func TestLoadRejectsForeignFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.safetensors")
	require.NoError(t, WriteFile(path, map[string]*tensor.RawTensor{"w": raw(t, []float32{1}, 1)}, nil, F32))
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Load(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRestoreRejectsMismatchedModel(t *testing.T) {
	c := Capture("r", trainedModel(t, 4))

	cfg := smallConfig()
	cfg.LatentDim = 4
	other, err := vae.New(cfg, autodiff.New(cpu.New()), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.ErrorIs(t, Restore(c, other), ErrShapeMismatch)

	delete(c.Params, "log_scale")
	same, err := vae.New(smallConfig(), autodiff.New(cpu.New()), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.ErrorIs(t, Restore(c, same), ErrMissingTensor)
}
