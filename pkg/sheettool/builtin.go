package sheettool

// builtinTools returns one instance of every tool in the fixed
// catalogue, wiring the shared pivot registry into create_pivot_table,
// the one tool that registers pivots.
func builtinTools(pivots *PivotRegistry) []Tool {
	return []Tool{
		readRangeTool{},
		writeCellTool{},
		setRangeTool{},
		applyFormulaColumnTool{},
		createPivotTableTool{pivots: pivots},
		createChartTool{},
		sortRangeTool{},
		filterRangeTool{},
		applyFormattingTool{},
		detectAnomaliesTool{},
		computeStatisticsTool{},
		fetchExternalDataTool{},
	}
}
