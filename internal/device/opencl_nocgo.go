//go:build !cgo

package device

import (
	"errors"

	"flood-platform/pkg/metrics"
)

// OpenCLProgram is unavailable without cgo; NewOpenCLProgram always fails so
// callers take their existing fallback path.
type OpenCLProgram struct{}

func NewOpenCLProgram(source string, precision Precision, metricsCollector *metrics.Collector) (*OpenCLProgram, error) {
	return nil, errors.New("OpenCL backend requires cgo (built with CGO_ENABLED=0)")
}

func (p *OpenCLProgram) DeviceName() string { return "" }

func (p *OpenCLProgram) Precision() Precision { return Single }

func (p *OpenCLProgram) CreateBuffer(name string, size int) (Buffer, error) {
	return nil, errors.New("OpenCL backend requires cgo")
}

func (p *OpenCLProgram) Kernel(name string) (Kernel, error) {
	return nil, errors.New("OpenCL backend requires cgo")
}

func (p *OpenCLProgram) Release() {}
