// Package chunking splits a media timeline into bounded windows and exports
// one audio artifact per window.
package chunking

import (
	"math"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/failure"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// Segment partitions [0, total) into ceil(total/chunk) contiguous windows of
// length chunk. The last window is clamped to total. A zero total yields the
// single window [0, 0).
func Segment(total, chunk float64) ([]types.Window, error) {
	if chunk <= 0 || math.IsNaN(chunk) || math.IsInf(chunk, 0) {
		return nil, failure.Invalid("chunk duration must be positive, got %v", chunk)
	}
	if total < 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, failure.Invalid("total duration must be non-negative, got %v", total)
	}

	count := int(math.Ceil(total / chunk))
	// float division can overshoot an exact multiple by one ulp
	if count > 1 && float64(count-1)*chunk >= total {
		count--
	}
	if count < 1 {
		count = 1
	}

	windows := make([]types.Window, count)
	for i := range windows {
		// multiply rather than accumulate so boundaries do not drift
		start := float64(i) * chunk
		end := float64(i+1) * chunk
		if end > total || i == count-1 {
			end = total
		}
		windows[i] = types.Window{Index: i, Start: start, End: end}
	}
	return windows, nil
}
