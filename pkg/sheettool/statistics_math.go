package sheettool

import (
	"math"
	"sort"
)

// nullableFloat wraps a float64 measure so a missing/undefined value
// (no data, a degenerate sample, a non-finite result) marshals to JSON
// null instead of tripping encoding/json on NaN or Inf.
func nullableFloat(v float64, ok bool) any {
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func sumOf(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func meanOf(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	return sumOf(values) / float64(len(values)), true
}

func varianceOf(values []float64, mean float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	total := 0.0
	for _, v := range values {
		d := v - mean
		total += d * d
	}
	return total / float64(len(values)), true
}

func stdDevOf(values []float64, mean float64) (float64, bool) {
	variance, ok := varianceOf(values, mean)
	if !ok {
		return 0, false
	}
	return math.Sqrt(variance), true
}

// medianOf expects values already sorted ascending.
func medianOf(sorted []float64) (float64, bool) {
	n := len(sorted)
	if n == 0 {
		return 0, false
	}
	if n%2 == 1 {
		return sorted[n/2], true
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2, true
}

// modeOf returns the most frequent value, breaking ties by the
// smallest value among those tied for the highest count.
func modeOf(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	counts := make(map[float64]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	best, bestCount := 0.0, 0
	first := true
	for v, c := range counts {
		if c > bestCount || (c == bestCount && v < best) || first {
			best, bestCount, first = v, c, false
		}
	}
	return best, true
}

// quartilesOf expects values already sorted ascending and computes
// q1/q2/q3 via linear interpolation between closest ranks.
func quartilesOf(sorted []float64) (q1, q2, q3 float64, ok bool) {
	n := len(sorted)
	if n == 0 {
		return 0, 0, 0, false
	}
	q1 = percentileOf(sorted, 0.25)
	q2, _ = medianOf(sorted)
	q3 = percentileOf(sorted, 0.75)
	return q1, q2, q3, true
}

func percentileOf(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// correlationOf computes the Pearson correlation coefficient between
// the two columns of rows, skipping rows where either column fails to
// coerce to a number. ok is false when fewer than two paired samples
// remain or either column has zero variance.
func correlationOf(rows [][]float64) (float64, bool) {
	var xs, ys []float64
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		xs = append(xs, row[0])
		ys = append(ys, row[1])
	}
	if len(xs) < 2 {
		return 0, false
	}

	meanX, _ := meanOf(xs)
	meanY, _ := meanOf(ys)

	var cov, varX, varY float64
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varX*varY), true
}

func sortedCopy(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted
}
