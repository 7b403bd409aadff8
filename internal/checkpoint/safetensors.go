// Package checkpoint saves and restores model and optimizer state in the
// SafeTensors format.
//
// Layout:
//
//	[8 bytes: header size, uint64 little-endian]
//	[header: JSON object of tensor entries plus "__metadata__"]
//	[data: raw little-endian tensor bytes, in sorted name order]
package checkpoint

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/born-ml/weakvae/internal/tensor"
)

// DType is an on-disk element type.
type DType string

// Supported dtypes. F16 and BF16 are export formats; tensors are widened
// to float32 when read.
const (
	F32  DType = "F32"
	F16  DType = "F16"
	BF16 DType = "BF16"
)

// Valid reports whether d is a supported dtype.
func (d DType) Valid() bool {
	return d == F32 || d == F16 || d == BF16
}

// Size returns the width of one element in bytes.
func (d DType) Size() int {
	if d == F32 {
		return 4
	}
	return 2
}

const (
	// MaxHeaderSize bounds the JSON header.
	MaxHeaderSize = 100 * 1024 * 1024
	// MaxTensorNameLen bounds tensor names.
	MaxTensorNameLen = 4096

	metadataKey = "__metadata__"
	checksumKey = "sha256"
)

type tensorHeader struct {
	DType       DType    `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// File is the decoded content of a SafeTensors file.
type File struct {
	Tensors  map[string]*tensor.RawTensor
	Metadata map[string]string
}

// Write encodes tensors and metadata to w, storing elements as dtype.
// A sha256 of the data section is added to the metadata.
func Write(w io.Writer, tensors map[string]*tensor.RawTensor, metadata map[string]string, dtype DType) error {
	if !dtype.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedDType, dtype)
	}

	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if err := validateName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var data bytes.Buffer
	header := make(map[string]any, len(names)+1)
	for _, name := range names {
		raw := tensors[name]
		start := int64(data.Len())
		encode(&data, raw.Data(), dtype)

		shape := make([]int64, len(raw.Shape()))
		for i, d := range raw.Shape() {
			shape[i] = int64(d)
		}
		header[name] = tensorHeader{DType: dtype, Shape: shape, DataOffsets: [2]int64{start, int64(data.Len())}}
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	sum := sha256.Sum256(data.Bytes())
	meta[checksumKey] = hex.EncodeToString(sum[:])
	header[metadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	// Pad with spaces to keep the data section 8-byte aligned.
	if pad := (8 - len(headerJSON)%8) % 8; pad > 0 {
		headerJSON = append(headerJSON, bytes.Repeat([]byte{' '}, pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(data.Bytes()); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// WriteFile writes atomically: data goes to a temporary file in the same
// directory which is then renamed over path.
func WriteFile(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string, dtype DType) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, tensors, metadata, dtype); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename checkpoint: %w", err)
	}
	return nil
}

// Read decodes a SafeTensors stream and verifies its checksum when present.
func Read(r io.Reader) (*File, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("%w: reading header size: %w", ErrBadHeader, err)
	}
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", ErrBadHeader, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadHeader, err)
	}

	f := &File{Tensors: make(map[string]*tensor.RawTensor, len(entries)), Metadata: map[string]string{}}
	if raw, ok := entries[metadataKey]; ok {
		if err := json.Unmarshal(raw, &f.Metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata: %w", ErrBadHeader, err)
		}
		delete(entries, metadataKey)
	}

	if want, ok := f.Metadata[checksumKey]; ok {
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != want {
			return nil, ErrChecksumMismatch
		}
	}

	metas := make([]tensorMeta, 0, len(entries))
	headers := make(map[string]tensorHeader, len(entries))
	for name, raw := range entries {
		var h tensorHeader
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, fmt.Errorf("%w: tensor %q: %w", ErrBadHeader, name, err)
		}
		if !h.DType.Valid() {
			return nil, fmt.Errorf("%w: tensor %q has dtype %q", ErrUnsupportedDType, name, h.DType)
		}
		headers[name] = h
		metas = append(metas, tensorMeta{Name: name, Offset: h.DataOffsets[0], Size: h.DataOffsets[1] - h.DataOffsets[0]})
	}
	if err := validateOffsets(metas, int64(len(data))); err != nil {
		return nil, err
	}

	for name, h := range headers {
		shape := make(tensor.Shape, len(h.Shape))
		for i, d := range h.Shape {
			shape[i] = int(d)
		}
		n := shape.NumElements()
		if int64(n*h.DType.Size()) != h.DataOffsets[1]-h.DataOffsets[0] {
			return nil, &ValidationError{
				Type:    "size_mismatch",
				Tensor:  name,
				Details: fmt.Sprintf("shape %v needs %d bytes, header spans %d", shape, n*h.DType.Size(), h.DataOffsets[1]-h.DataOffsets[0]),
			}
		}
		raw, err := tensor.NewRaw(shape, tensor.CPU)
		if err != nil {
			return nil, fmt.Errorf("%w: tensor %q: %w", ErrBadHeader, name, err)
		}
		decode(raw.Data(), data[h.DataOffsets[0]:h.DataOffsets[1]], h.DType)
		f.Tensors[name] = raw
	}
	return f, nil
}

// ReadFile reads a SafeTensors file from disk.
func ReadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer fh.Close()
	return Read(fh)
}

func encode(buf *bytes.Buffer, values []float32, dtype DType) {
	if dtype == BF16 {
		buf.Write(bfloat16.EncodeFloat32(values))
		return
	}
	var scratch [4]byte
	for _, v := range values {
		if dtype == F16 {
			binary.LittleEndian.PutUint16(scratch[:2], float16.Fromfloat32(v).Bits())
			buf.Write(scratch[:2])
			continue
		}
		binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(v))
		buf.Write(scratch[:])
	}
}

func decode(dst []float32, src []byte, dtype DType) {
	if dtype == BF16 {
		copy(dst, bfloat16.DecodeFloat32(src))
		return
	}
	for i := range dst {
		if dtype == F16 {
			dst[i] = float16.Frombits(binary.LittleEndian.Uint16(src[2*i:])).Float32()
			continue
		}
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
	}
}

type tensorMeta struct {
	Name   string
	Offset int64
	Size   int64
}

// validateOffsets checks that every tensor lies inside the data section
// and that no two tensors overlap.
func validateOffsets(tensors []tensorMeta, dataSize int64) error {
	sort.Slice(tensors, func(i, j int) bool { return tensors[i].Offset < tensors[j].Offset })

	for i, t := range tensors {
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset=%d, size=%d", t.Offset, t.Size),
			}
		}
		if t.Offset+t.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize),
			}
		}
		if i < len(tensors)-1 {
			next := tensors[i+1]
			if t.Offset+t.Size > next.Offset {
				return &ValidationError{
					Type:    "offset_overlap",
					Tensor:  t.Name,
					Tensor2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}
	return nil
}

func validateName(name string) error {
	switch {
	case name == "" || name == metadataKey:
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "reserved or empty"}
	case len(name) > MaxTensorNameLen:
		return &ValidationError{Type: "name_too_long", Tensor: name, Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen)}
	case strings.ContainsAny(name, "/\\\x00"):
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "contains a path separator or null byte"}
	}
	return nil
}
