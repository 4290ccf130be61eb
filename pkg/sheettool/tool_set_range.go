package sheettool

import (
	"context"

	"github.com/cellwarden/cellwarden/pkg/sheet"
)

type setRangeTool struct{}

func (setRangeTool) Name() string { return "set_range" }

func (setRangeTool) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	rng, ok := ec.Metadata["selection"].(sheet.Range)
	if !ok {
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "missing or malformed range parameter"), nil
	}

	rawRows, okRows := ec.Params["values"].([]any)
	if !okRows {
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "missing or malformed values parameter"), nil
	}
	if len(rawRows) != rng.Rows() {
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "values has %d rows, expected %d for the given range", len(rawRows), rng.Rows()), nil
	}

	cells := make([][]sheet.CellData, len(rawRows))
	for r, rawRow := range rawRows {
		row, okRow := rawRow.([]any)
		if !okRow || len(row) != rng.Cols() {
			return failf(ec.ToolName, ec.StartTime, ErrValidation, "row %d has the wrong column count for the given range", r), nil
		}
		cells[r] = make([]sheet.CellData, len(row))
		for c, v := range row {
			cells[r][c] = sheet.CellData{Value: v}
		}
	}

	if err := ec.API.WriteRange(rng, cells); err != nil {
		return failf(ec.ToolName, ec.StartTime, ErrRuntime, "write range: %v", err), nil
	}
	ec.Metadata["written_range"] = rng

	data := map[string]any{
		"range":         FormatA1Range(rng, ec.Config.SheetNameResolver),
		"updated_cells": len(rawRows) * rng.Cols(),
	}
	return ok(ec.ToolName, ec.StartTime, data), nil
}
