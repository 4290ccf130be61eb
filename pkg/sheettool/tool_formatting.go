package sheettool

import (
	"context"

	"github.com/cellwarden/cellwarden/pkg/sheet"
)

type applyFormattingTool struct{}

func (applyFormattingTool) Name() string { return "apply_formatting" }

func (applyFormattingTool) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	rng, ok2 := ec.Metadata["selection"].(sheet.Range)
	if !ok2 {
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "missing or malformed range parameter"), nil
	}

	format := sheet.CellFormat{}
	if v, ok2 := ec.Params["bold"].(bool); ok2 {
		format.Bold = v
	}
	if v, ok2 := ec.Params["italic"].(bool); ok2 {
		format.Italic = v
	}
	if v, ok2 := ec.Params["number_format"].(string); ok2 {
		format.NumberFormat = v
	}
	if v, ok2 := ec.Params["background_color"].(string); ok2 {
		format.BackgroundColor = v
	}

	count, err := ec.API.ApplyFormatting(rng, format)
	if err != nil {
		return failf(ec.ToolName, ec.StartTime, ErrRuntime, "apply formatting: %v", err), nil
	}
	ec.Metadata["written_range"] = rng

	data := map[string]any{
		"range":           FormatA1Range(rng, ec.Config.SheetNameResolver),
		"formatted_cells": count,
	}
	return ok(ec.ToolName, ec.StartTime, data), nil
}
