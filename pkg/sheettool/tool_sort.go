package sheettool

import (
	"context"
	"sort"

	"github.com/cellwarden/cellwarden/pkg/sheet"
)

type sortRangeTool struct{}

func (sortRangeTool) Name() string { return "sort_range" }

func (sortRangeTool) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
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
	descending, _ := ec.Params["descending"].(bool)

	rows, err := ec.API.ReadRange(rng)
	if err != nil {
		return failf(ec.ToolName, ec.StartTime, ErrRuntime, "read range: %v", err), nil
	}

	sort.SliceStable(rows, func(i, j int) bool {
		c := compareCells(rows[i][keyCol], rows[j][keyCol])
		if descending {
			return c > 0
		}
		return c < 0
	})

	if err := ec.API.WriteRange(rng, rows); err != nil {
		return failf(ec.ToolName, ec.StartTime, ErrRuntime, "write sorted range: %v", err), nil
	}
	ec.Metadata["written_range"] = rng

	sortedRows := make([][]any, len(rows))
	for r, row := range rows {
		line := make([]any, len(row))
		for c, cell := range row {
			line[c] = cell.Value
		}
		sortedRows[r] = line
	}

	data := map[string]any{
		"range":       FormatA1Range(rng, ec.Config.SheetNameResolver),
		"sorted_rows": sortedRows,
	}
	return ok(ec.ToolName, ec.StartTime, data), nil
}

func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
