package sheettool

import (
	"context"
	"strings"

	"github.com/cellwarden/cellwarden/pkg/sheet"
)

type filterRangeTool struct{}

func (filterRangeTool) Name() string { return "filter_range" }

// Execute returns the rows within the selection whose key_column value
// contains contains_text (case-insensitive), without mutating the
// sheet. It is read-shaped, so structured REDACT enforcement applies
// per cell rather than refusing the whole call.
func (filterRangeTool) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	rng, ok2 := ec.Metadata["selection"].(sheet.Range)
	if !ok2 {
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "missing or malformed range parameter"), nil
	}
	keyCol, ok2 := intParam(ec.Params, "key_column")
	if !ok2 {
		keyCol = 0
	}
	if keyCol < 0 || keyCol >= rng.Cols() {
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "key_column %d is outside the selection's column range", keyCol), nil
	}
	contains, _ := ec.Params["contains_text"].(string)

	rows, err := ec.API.ReadRange(rng)
	if err != nil {
		return failf(ec.ToolName, ec.StartTime, ErrRuntime, "read range: %v", err), nil
	}

	gate, _ := ec.Metadata["dlp_gate"].(dlpGate)
	redacted := 0

	matched := make([][]any, 0)
	for r, row := range rows {
		redacted += redactRow(gate, rng, r, row, false)
		if contains != "" && !strings.Contains(strings.ToLower(cellToString(row[keyCol])), strings.ToLower(contains)) {
			continue
		}
		line := make([]any, len(row))
		for c, cell := range row {
			line[c] = cell.Value
		}
		matched = append(matched, line)
		if ec.Config.MaxFilterRangeMatchingRows > 0 && len(matched) >= ec.Config.MaxFilterRangeMatchingRows {
			break
		}
	}

	truncated := ec.Config.MaxFilterRangeMatchingRows > 0 && len(matched) >= ec.Config.MaxFilterRangeMatchingRows

	data := map[string]any{
		"range":               FormatA1Range(rng, ec.Config.SheetNameResolver),
		"matching_rows":       matched,
		"count":               len(matched),
		"redacted_cell_count": redacted,
		"dlp_decision":        string(gate.decision),
	}
	var warnings []string
	if truncated {
		data["truncated"] = true
		warnings = append(warnings, "result truncated at max_filter_range_matching_rows")
	}
	return ok(ec.ToolName, ec.StartTime, data, warnings...), nil
}
