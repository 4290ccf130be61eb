package sheettool

import (
	"context"

	"github.com/cellwarden/cellwarden/pkg/dlp"
	"github.com/cellwarden/cellwarden/pkg/sheet"
)

type computeStatisticsTool struct{}

func (computeStatisticsTool) Name() string { return "compute_statistics" }

func (computeStatisticsTool) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	rng, ok2 := ec.Metadata["selection"].(sheet.Range)
	if !ok2 {
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "missing or malformed range parameter"), nil
	}

	rows, err := ec.API.ReadRange(rng)
	if err != nil {
		return failf(ec.ToolName, ec.StartTime, ErrRuntime, "read range: %v", err), nil
	}

	gate, _ := ec.Metadata["dlp_gate"].(dlpGate)
	for r, row := range rows {
		redactRow(gate, rng, r, row, false)
	}

	values := make([]float64, 0, rng.Cells())
	paired := make([][]float64, 0, len(rows))
	for _, row := range rows {
		var rowFloats []float64
		for _, cell := range row {
			if v, ok2 := cellToFloat(cell); ok2 {
				values = append(values, v)
				rowFloats = append(rowFloats, v)
			}
		}
		paired = append(paired, rowFloats)
	}

	sorted := sortedCopy(values)
	mean, hasMean := meanOf(values)
	stdev, hasStdev := stdDevOf(values, mean)
	variance, hasVariance := varianceOf(values, mean)
	median, hasMedian := medianOf(sorted)
	mode, hasMode := modeOf(values)
	q1, q2, q3, hasQuartiles := quartilesOf(sorted)

	statistics := map[string]any{
		"count":    len(values),
		"sum":      sumOf(values),
		"mean":     nullableFloat(mean, hasMean),
		"stdev":    nullableFloat(stdev, hasStdev),
		"variance": nullableFloat(variance, hasVariance),
		"median":   nullableFloat(median, hasMedian),
		"mode":     nullableFloat(mode, hasMode),
	}
	if len(sorted) > 0 {
		statistics["min"] = sorted[0]
		statistics["max"] = sorted[len(sorted)-1]
	} else {
		statistics["min"] = nil
		statistics["max"] = nil
	}
	if hasQuartiles {
		statistics["quartiles"] = map[string]any{"q1": q1, "q2": q2, "q3": q3}
	} else {
		statistics["quartiles"] = nil
	}

	var warnings []string
	if rng.Cols() == 2 {
		if gate.decision == dlp.ActionRedact {
			statistics["correlation"] = nil
			warnings = append(warnings, "correlation suppressed by dlp")
		} else if corr, hasCorr := correlationOf(paired); hasCorr {
			statistics["correlation"] = corr
		} else {
			statistics["correlation"] = nil
		}
	} else {
		statistics["correlation"] = nil
	}

	data := map[string]any{
		"range":               FormatA1Range(rng, ec.Config.SheetNameResolver),
		"statistics":          statistics,
		"redacted_cell_count": redactedCellCount(gate, rng, rows),
		"dlp_decision":        string(gate.decision),
	}
	return ok(ec.ToolName, ec.StartTime, data, warnings...), nil
}

// redactedCellCount re-tallies how many cells in rows currently hold
// the redaction placeholder, after redactRow has already run in place.
func redactedCellCount(gate dlpGate, rng sheet.Range, rows [][]sheet.CellData) int {
	if gate.decision != dlp.ActionRedact {
		return 0
	}
	count := 0
	for _, row := range rows {
		for _, cell := range row {
			if s, isStr := cell.Value.(string); isStr && s == redactedPlaceholder {
				count++
			}
		}
	}
	return count
}
