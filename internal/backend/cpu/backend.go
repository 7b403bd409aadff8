// Package cpu implements the CPU backend in pure Go.
package cpu

import (
	"github.com/born-ml/weakvae/internal/parallel"
	"github.com/born-ml/weakvae/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// New creates a new CPU backend using every available core for heavy kernels.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with an explicit parallelism config.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Parallel returns the parallelism config used by the kernels.
func (cpu *CPUBackend) Parallel() parallel.Config {
	return cpu.par
}

var _ tensor.Backend = (*CPUBackend)(nil)
