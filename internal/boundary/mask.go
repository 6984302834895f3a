package boundary

import (
	"fmt"
	"strings"
	"time"
)

// ExpandMask resolves a filename mask against an absolute timestamp. Masks
// use strftime-style tokens, matching the naming convention of radar
// rainfall products: rain_%Y%m%d_%H%M.asc for 2026-03-01 09:15 becomes
// rain_20260301_0915.asc.
//
// Supported tokens: %Y %y %m %d %H %M %S %j and %% for a literal percent.
// Unrecognized tokens are kept verbatim.
func ExpandMask(mask string, ts time.Time) string {
	var b strings.Builder
	b.Grow(len(mask) + 8)

	for i := 0; i < len(mask); i++ {
		if mask[i] != '%' || i+1 == len(mask) {
			b.WriteByte(mask[i])
			continue
		}

		i++
		switch mask[i] {
		case 'Y':
			fmt.Fprintf(&b, "%04d", ts.Year())
		case 'y':
			fmt.Fprintf(&b, "%02d", ts.Year()%100)
		case 'm':
			fmt.Fprintf(&b, "%02d", int(ts.Month()))
		case 'd':
			fmt.Fprintf(&b, "%02d", ts.Day())
		case 'H':
			fmt.Fprintf(&b, "%02d", ts.Hour())
		case 'M':
			fmt.Fprintf(&b, "%02d", ts.Minute())
		case 'S':
			fmt.Fprintf(&b, "%02d", ts.Second())
		case 'j':
			fmt.Fprintf(&b, "%03d", ts.YearDay())
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(mask[i])
		}
	}
	return b.String()
}
