package sheettool

import (
	"context"
	"errors"

	"github.com/cellwarden/cellwarden/pkg/sheet"
)

type createChartTool struct{}

func (createChartTool) Name() string { return "create_chart" }

func (createChartTool) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	dataRange, ok2 := ec.Metadata["selection"].(sheet.Range)
	if !ok2 {
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "missing or malformed data_range parameter"), nil
	}
	chartType := sheet.ChartType(stringParam(ec.Params, "type", string(sheet.ChartBar)))
	title, _ := ec.Params["title"].(string)

	var position *sheet.Address
	if posRef, ok2 := ec.Params["position"].(string); ok2 && posRef != "" {
		addr, err := ParseA1Address(posRef, ec.Config.DefaultSheet, ec.Config.SheetNameResolver)
		if err != nil {
			return failf(ec.ToolName, ec.StartTime, ErrValidation, "malformed position: %v", err), nil
		}
		position = &addr
	}

	handle, err := ec.API.CreateChart(sheet.ChartSpec{
		Sheet:     dataRange.Sheet,
		DataRange: dataRange,
		Type:      chartType,
		Title:     title,
		Position:  position,
	})
	if errors.Is(err, sheet.ErrNotImplemented) {
		return failf(ec.ToolName, ec.StartTime, ErrNotImplemented, "chart creation is not supported by this spreadsheet backend"), nil
	}
	if err != nil {
		return failf(ec.ToolName, ec.StartTime, ErrRuntime, "create chart: %v", err), nil
	}

	data := map[string]any{
		"status":     "ok",
		"chart_id":   handle.ID,
		"chart_type": string(chartType),
		"data_range": FormatA1Range(dataRange, ec.Config.SheetNameResolver),
	}
	if position != nil {
		data["position"] = FormatA1Address(*position, ec.Config.SheetNameResolver)
	}
	if title != "" {
		data["title"] = title
	}
	return ok(ec.ToolName, ec.StartTime, data), nil
}
