package pack

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseSplitRatios parses a comma- or slash-separated ratio string such as
// "969,30,1" into a normalized train/validation/test triple. Missing entries
// default to zero; extra entries are dropped.
func ParseSplitRatios(s string) ([3]float64, error) {
	var fields []string
	switch {
	case strings.Contains(s, ","):
		fields = strings.Split(s, ",")
	case strings.Contains(s, "/"):
		fields = strings.Split(s, "/")
	default:
		fields = []string{s}
	}

	var splits [3]float64
	for i := 0; i < len(fields) && i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		if err != nil {
			return splits, fmt.Errorf("%w: %q", ErrInvalidSplits, s)
		}
		splits[i] = v
	}

	var sum float64
	for _, v := range splits {
		if v < 0 {
			return splits, fmt.Errorf("%w: negative ratio in %q", ErrInvalidSplits, s)
		}
		sum += v
	}
	if sum <= 0 {
		return splits, fmt.Errorf("%w: ratios in %q sum to %g", ErrInvalidSplits, s, sum)
	}
	for i := range splits {
		splits[i] /= sum
	}
	return splits, nil
}

// PartitionDocuments converts normalized ratios into cumulative document
// boundaries [0, b1, b2, size]. Boundaries come from rounding the cumulative
// fractions; any rounding surplus is subtracted from every boundary after
// the first, so the first split absorbs the remainder and the sizes always
// sum to size.
func PartitionDocuments(ratios [3]float64, size int) [4]int {
	var bounds [4]int
	for i, r := range ratios {
		bounds[i+1] = bounds[i] + int(math.Round(r*float64(size)))
	}
	diff := bounds[3] - size
	for i := 1; i < 4; i++ {
		bounds[i] -= diff
	}
	return bounds
}

// splitRange returns the [start, end) document range of the named split.
func splitRange(bounds [4]int, split Split) (int, int) {
	return bounds[split], bounds[split+1]
}
