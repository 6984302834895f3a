package boundary

import (
	"encoding/binary"
	"fmt"
	"math"

	"flood-platform/internal/device"
)

// Entry is one time-stamped grid-valued sample of boundary forcing data.
// A boundary keeps at most one entry at a time; it is a working cache for
// the currently staged sample, not a history.
type Entry struct {
	Time   float64
	Values []float64
}

// NewEntry wraps a raw sample array loaded at simulation time t. The entry
// takes ownership of the array.
func NewEntry(t float64, values []float64) *Entry {
	return &Entry{Time: t, Values: values}
}

// EncodeInto converts the sample to the given precision and writes it into
// dst as packed little-endian elements. Double precision is an identity
// encoding of the raw values; single precision narrows each value.
func (e *Entry) EncodeInto(dst []byte, p device.Precision) error {
	need := len(e.Values) * p.ElementBytes()
	if len(dst) < need {
		return fmt.Errorf("destination is %d bytes, sample needs %d", len(dst), need)
	}

	if p == device.Double {
		for i, v := range e.Values {
			binary.LittleEndian.PutUint64(dst[i*8:], math.Float64bits(v))
		}
		return nil
	}

	for i, v := range e.Values {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(float32(v)))
	}
	return nil
}
