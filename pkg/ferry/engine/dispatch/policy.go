package dispatch

import "github.com/tigerroll/ferry/pkg/ferry/core/config"

// Aggregate decides the batch continue flag from the number of successful
// jobs. An empty batch never continues.
//
//   - any: at least one job succeeded
//   - all: every job succeeded
//   - threshold: succeeded/total >= threshold
func Aggregate(policy string, threshold float64, succeeded, total int) bool {
	if total == 0 {
		return false
	}
	switch policy {
	case config.AggregationAll:
		return succeeded == total
	case config.AggregationThreshold:
		return float64(succeeded)/float64(total) >= threshold
	default:
		return succeeded > 0
	}
}
