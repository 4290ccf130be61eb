package sheettool

import (
	"context"

	"github.com/cellwarden/cellwarden/pkg/sheet"
)

type writeCellTool struct{}

func (writeCellTool) Name() string { return "write_cell" }

func (writeCellTool) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	addr, err := addressParam(ec)
	if err != nil || addr == nil {
		return failf(ec.ToolName, ec.StartTime, ErrValidation, "missing or malformed cell parameter"), nil
	}

	cell := sheet.CellData{}
	if v, ok := ec.Params["value"]; ok {
		cell.Value = v
	}
	if f, ok := ec.Params["formula"].(string); ok && f != "" {
		cell.Formula = f
	}

	before, _ := ec.API.GetCell(*addr)

	if err := ec.API.SetCell(*addr, cell); err != nil {
		return failf(ec.ToolName, ec.StartTime, ErrRuntime, "write cell: %v", err), nil
	}

	written := sheet.Range{Sheet: addr.Sheet, StartRow: addr.Row, EndRow: addr.Row, StartCol: addr.Col, EndCol: addr.Col}
	ec.Metadata["written_range"] = written

	changed := before.Value != cell.Value || before.Formula != cell.Formula
	data := map[string]any{
		"cell":    FormatA1Address(*addr, ec.Config.SheetNameResolver),
		"changed": changed,
	}
	return ok(ec.ToolName, ec.StartTime, data), nil
}

func addressParam(ec *ExecutionContext) (*sheet.Address, error) {
	raw, ok := ec.Params["cell"].(string)
	if !ok || raw == "" {
		return nil, nil
	}
	addr, err := ParseA1Address(raw, ec.Config.DefaultSheet, ec.Config.SheetNameResolver)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}
