package sheettool

import (
	"context"
	"strconv"
	"strings"

	"github.com/cellwarden/cellwarden/pkg/sheet"
)

type applyFormulaColumnTool struct{}

func (applyFormulaColumnTool) Name() string { return "apply_formula_column" }

// Execute writes template into every row of the selection's leftmost
// column, substituting the literal token "{row}" with each row's
// 1-based spreadsheet row number.
func (applyFormulaColumnTool) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	rng, ok2 := ec.Metadata["selection"].(sheet.Range)
	if !ok2 {
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "missing or malformed range parameter"), nil
	}
	template, ok2 := ec.Params["formula"].(string)
	if !ok2 || template == "" {
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "missing formula parameter"), nil
	}

	column := sheet.Range{Sheet: rng.Sheet, StartRow: rng.StartRow, EndRow: rng.EndRow, StartCol: rng.StartCol, EndCol: rng.StartCol}
	cells := make([][]sheet.CellData, column.Rows())
	for r := 0; r < column.Rows(); r++ {
		row := column.StartRow + r
		formula := strings.ReplaceAll(template, "{row}", strconv.Itoa(row+1))
		cells[r] = []sheet.CellData{{Formula: formula}}
	}

	if err := ec.API.WriteRange(column, cells); err != nil {
		return failf(ec.ToolName, ec.StartTime, ErrRuntime, "write formula column: %v", err), nil
	}
	ec.Metadata["written_range"] = column

	sheetName := rng.Sheet
	if ec.Config.SheetNameResolver != nil {
		if display, ok2 := ec.Config.SheetNameResolver.ToDisplayName(rng.Sheet); ok2 {
			sheetName = display
		}
	}

	data := map[string]any{
		"sheet":         sheetName,
		"column":        colToLetters(rng.StartCol),
		"start_row":     rng.StartRow + 1,
		"end_row":       rng.EndRow + 1,
		"updated_cells": column.Cells(),
	}
	return ok(ec.ToolName, ec.StartTime, data), nil
}
