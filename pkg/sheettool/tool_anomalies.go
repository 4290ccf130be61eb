package sheettool

import (
	"context"
	"math"
	"math/rand"

	"github.com/cellwarden/cellwarden/pkg/sheet"
)

type detectAnomaliesTool struct{}

func (detectAnomaliesTool) Name() string { return "detect_anomalies" }

// anomalyHit is one flagged row, scored by whichever detection method
// the call requested.
type anomalyHit struct {
	Row   int
	Value float64
	Score float64
}

// Execute flags numeric values in the selection's single column using
// the requested detection method: zscore (default), iqr, or
// isolation_forest.
func (detectAnomaliesTool) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	rng, ok2 := ec.Metadata["selection"].(sheet.Range)
	if !ok2 {
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "missing or malformed range parameter"), nil
	}

	method := stringParam(ec.Params, "method", "zscore")

	rows, err := ec.API.ReadRange(rng)
	if err != nil {
		return failf(ec.ToolName, ec.StartTime, ErrRuntime, "read range: %v", err), nil
	}

	gate, _ := ec.Metadata["dlp_gate"].(dlpGate)
	for r, row := range rows {
		redactRow(gate, rng, r, row, false)
	}

	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if v, ok2 := cellToFloat(row[0]); ok2 {
			values = append(values, v)
		}
	}
	if ec.Config.MaxDetectAnomalies > 0 && len(values) > ec.Config.MaxDetectAnomalies {
		return failf(ec.ToolName, ec.StartTime, ErrPermissionDenied,
			"selection contains %d numeric values, exceeding the %d cap; request a smaller range", len(values), ec.Config.MaxDetectAnomalies), nil
	}

	var hits []anomalyHit
	switch method {
	case "iqr":
		multiplier, ok2 := floatParam(ec.Params, "iqr_multiplier")
		if !ok2 || multiplier <= 0 {
			multiplier = 1.5
		}
		hits = detectByIQR(values, multiplier)
	case "isolation_forest":
		threshold, ok2 := floatParam(ec.Params, "score_threshold")
		if !ok2 || threshold <= 0 {
			threshold = 0.6
		}
		hits = detectByIsolationForest(values, threshold)
	case "zscore", "":
		threshold, ok2 := floatParam(ec.Params, "z_score_threshold")
		if !ok2 || threshold <= 0 {
			threshold = 3.0
		}
		hits = detectByZScore(values, threshold)
	default:
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "unknown detect_anomalies method %q", method), nil
	}

	totalAnomalies := len(hits)

	anomaliesAny := make([]any, len(hits))
	for i, h := range hits {
		anomaliesAny[i] = map[string]any{"row": h.Row, "value": h.Value, "score": h.Score}
	}

	data := map[string]any{
		"range":           FormatA1Range(rng, ec.Config.SheetNameResolver),
		"method":          method,
		"anomalies":       anomaliesAny,
		"total_anomalies": totalAnomalies,
		"dlp_decision":    string(gate.decision),
	}
	return ok(ec.ToolName, ec.StartTime, data), nil
}

func floatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// detectByZScore flags values whose distance from the sample mean, in
// standard deviations, meets or exceeds threshold.
func detectByZScore(values []float64, threshold float64) []anomalyHit {
	mean, _ := meanOf(values)
	stddev, ok := stdDevOf(values, mean)
	if !ok || stddev == 0 {
		return nil
	}
	var hits []anomalyHit
	for i, v := range values {
		z := (v - mean) / stddev
		if math.Abs(z) >= threshold {
			hits = append(hits, anomalyHit{Row: i + 1, Value: v, Score: z})
		}
	}
	return hits
}

// detectByIQR flags values outside Tukey's fences:
// [q1 - multiplier*iqr, q3 + multiplier*iqr].
func detectByIQR(values []float64, multiplier float64) []anomalyHit {
	sorted := sortedCopy(values)
	q1, _, q3, ok := quartilesOf(sorted)
	if !ok {
		return nil
	}
	iqr := q3 - q1
	lower := q1 - multiplier*iqr
	upper := q3 + multiplier*iqr

	var hits []anomalyHit
	for i, v := range values {
		if v < lower || v > upper {
			dist := math.Max(lower-v, v-upper)
			hits = append(hits, anomalyHit{Row: i + 1, Value: v, Score: dist})
		}
	}
	return hits
}

const (
	isolationForestTrees = 64
	eulerGamma           = 0.5772156649
)

// isolationNode is one node of an isolation tree: an internal split on
// a single feature value, or a leaf recording how many training points
// reached it.
type isolationNode struct {
	isLeaf    bool
	size      int
	splitAt   float64
	left      *isolationNode
	right     *isolationNode
}

// detectByIsolationForest flags values whose average isolation-tree
// path length, normalized by averagePathLengthBST, yields an anomaly
// score at or above threshold. The forest uses a fixed seed so audit
// results reproduce deterministically across runs.
func detectByIsolationForest(values []float64, threshold float64) []anomalyHit {
	n := len(values)
	if n < 2 {
		return nil
	}

	rng := rand.New(rand.NewSource(1))
	heightLimit := int(math.Ceil(math.Log2(float64(n))))

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	trees := make([]*isolationNode, isolationForestTrees)
	for t := 0; t < isolationForestTrees; t++ {
		sample := sampleIndices(rng, indices, n)
		trees[t] = buildIsolationTree(values, sample, 0, heightLimit, rng)
	}

	c := averagePathLengthBST(n)
	var hits []anomalyHit
	for i, v := range values {
		total := 0.0
		for _, tree := range trees {
			total += pathLength(tree, v, 0)
		}
		avgPath := total / float64(isolationForestTrees)
		score := math.Pow(2, -avgPath/c)
		if score >= threshold {
			hits = append(hits, anomalyHit{Row: i + 1, Value: v, Score: score})
		}
	}
	return hits
}

func sampleIndices(rng *rand.Rand, indices []int, n int) []int {
	sampleSize := n
	if sampleSize > 256 {
		sampleSize = 256
	}
	shuffled := append([]int(nil), indices...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:sampleSize]
}

func buildIsolationTree(values []float64, indices []int, depth, heightLimit int, rng *rand.Rand) *isolationNode {
	if depth >= heightLimit || len(indices) <= 1 {
		return &isolationNode{isLeaf: true, size: len(indices)}
	}

	min, max := values[indices[0]], values[indices[0]]
	for _, i := range indices {
		if values[i] < min {
			min = values[i]
		}
		if values[i] > max {
			max = values[i]
		}
	}
	if min == max {
		return &isolationNode{isLeaf: true, size: len(indices)}
	}

	split := min + rng.Float64()*(max-min)
	var left, right []int
	for _, i := range indices {
		if values[i] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isolationNode{isLeaf: true, size: len(indices)}
	}

	return &isolationNode{
		splitAt: split,
		left:    buildIsolationTree(values, left, depth+1, heightLimit, rng),
		right:   buildIsolationTree(values, right, depth+1, heightLimit, rng),
	}
}

func pathLength(node *isolationNode, v float64, depth int) float64 {
	if node.isLeaf {
		return float64(depth) + averagePathLengthBST(node.size)
	}
	if v < node.splitAt {
		return pathLength(node.left, v, depth+1)
	}
	return pathLength(node.right, v, depth+1)
}

// averagePathLengthBST estimates the average unsuccessful-search path
// length of a binary search tree of n nodes, used to normalize
// isolation-tree depth into a bounded anomaly score.
func averagePathLengthBST(n int) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(float64(n-1))+eulerGamma) - 2*float64(n-1)/float64(n)
}
