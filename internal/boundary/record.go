package boundary

import (
	"encoding/binary"
	"math"

	"flood-platform/internal/device"
	"flood-platform/internal/grid"
)

// Byte sizes of the packed configuration record per precision: four
// float-width geometry fields followed by four uint64 fields. Float fields
// come first so the layout stays tightly packed without padding at either
// width.
const (
	configRecordSizeSingle = 4*4 + 4*8
	configRecordSizeDouble = 4*8 + 4*8
)

// configRecordSize returns the packed record size for a precision.
func configRecordSize(p device.Precision) int {
	if p == device.Double {
		return configRecordSizeDouble
	}
	return configRecordSizeSingle
}

// encodeConfigRecord packs the boundary configuration for the device in
// little-endian order: interval, grid resolution, west offset, south
// offset at float width, then entry count, value-kind code, grid rows and
// grid columns as uint64. One routine serves both precisions so the two
// layouts cannot drift apart.
func encodeConfigRecord(p device.Precision, interval float64, entries uint64, kind ValueKind, t *grid.Transform) []byte {
	rec := make([]byte, configRecordSize(p))

	floats := []float64{interval, t.TargetResolution, t.OffsetWest, t.OffsetSouth}
	offset := 0
	if p == device.Double {
		for _, v := range floats {
			binary.LittleEndian.PutUint64(rec[offset:], math.Float64bits(v))
			offset += 8
		}
	} else {
		for _, v := range floats {
			binary.LittleEndian.PutUint32(rec[offset:], math.Float32bits(float32(v)))
			offset += 4
		}
	}

	for _, v := range []uint64{entries, uint64(kind), t.Rows, t.Cols} {
		binary.LittleEndian.PutUint64(rec[offset:], v)
		offset += 8
	}
	return rec
}
