package sheettool

import (
	"context"

	"github.com/cellwarden/cellwarden/pkg/sheet"
)

type createPivotTableTool struct{ pivots *PivotRegistry }

func (createPivotTableTool) Name() string { return "create_pivot_table" }

func (t createPivotTableTool) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	source, ok2 := ec.Metadata["selection"].(sheet.Range)
	if !ok2 {
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "missing or malformed source_range parameter"), nil
	}
	groupByCol, _ := intParam(ec.Params, "group_by_column")
	valueCol, _ := intParam(ec.Params, "value_column")
	if groupByCol < source.StartCol || groupByCol > source.EndCol || valueCol < source.StartCol || valueCol > source.EndCol {
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "group_by_column/value_column must be within the source range"), nil
	}
	aggregate := PivotAggregate(stringParam(ec.Params, "aggregate", "sum"))

	destRef, ok2 := ec.Params["destination_cell"].(string)
	if !ok2 || destRef == "" {
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "missing destination_cell parameter"), nil
	}
	destAddr, err := ParseA1Address(destRef, ec.Config.DefaultSheet, ec.Config.SheetNameResolver)
	if err != nil {
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "malformed destination_cell: %v", err), nil
	}

	spec := PivotSpec{
		GroupByCol: groupByCol - source.StartCol,
		ValueCol:   valueCol - source.StartCol,
		Aggregate:  aggregate,
		DestSheet:  destAddr.Sheet,
		DestRow:    destAddr.Row,
		DestCol:    destAddr.Col,
	}

	destination, err := recomputePivot(ec.API, spec, source, sheet.Range{Sheet: destAddr.Sheet, StartRow: destAddr.Row, EndRow: destAddr.Row, StartCol: destAddr.Col, EndCol: destAddr.Col})
	if err != nil {
		return failf(ec.ToolName, ec.StartTime, ErrRuntime, "build pivot: %v", err), nil
	}
	ec.Metadata["written_range"] = destination

	_ = t.pivots.Register(spec, source, destination)

	data := map[string]any{
		"status":           "ok",
		"source_range":     FormatA1Range(source, ec.Config.SheetNameResolver),
		"destination_range": FormatA1Range(destination, ec.Config.SheetNameResolver),
		"written_cells":    destination.Cells(),
		"shape": map[string]any{
			"rows": destination.Rows(),
			"cols": destination.Cols(),
		},
	}
	return ok(ec.ToolName, ec.StartTime, data), nil
}

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
