package sheettool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellwarden/cellwarden/pkg/memapi"
	"github.com/cellwarden/cellwarden/pkg/sheet"
)

func TestPivotRegistry_RefreshAffectedBy_SkipsUnrelatedWrites(t *testing.T) {
	wb := memapi.New("Sheet1")
	_ = wb.SetCell(sheet.Address{Sheet: "Sheet1", Row: 0, Col: 0}, sheet.CellData{Value: "a"})
	_ = wb.SetCell(sheet.Address{Sheet: "Sheet1", Row: 0, Col: 1}, sheet.CellData{Value: 1.0})

	pivots := NewPivotRegistry()
	source := sheet.Range{Sheet: "Sheet1", StartRow: 0, EndRow: 0, StartCol: 0, EndCol: 1}
	initialDest := sheet.Range{Sheet: "Sheet1", StartRow: 5, EndRow: 5, StartCol: 5, EndCol: 5}
	dest, err := recomputePivot(wb, PivotSpec{GroupByCol: 0, ValueCol: 1, Aggregate: PivotSum, DestSheet: "Sheet1", DestRow: 5, DestCol: 5}, source, initialDest)
	require.NoError(t, err)
	pivots.Register(PivotSpec{GroupByCol: 0, ValueCol: 1, Aggregate: PivotSum, DestSheet: "Sheet1", DestRow: 5, DestCol: 5}, source, dest)
	_ = wb.SetCell(sheet.Address{Sheet: "Sheet1", Row: 0, Col: 1}, sheet.CellData{Value: 2.0})

	unrelated := sheet.Range{Sheet: "Sheet1", StartRow: 10, EndRow: 10, StartCol: 0, EndCol: 0}
	pivots.RefreshAffectedBy(wb, unrelated, 1000)

	assert.Equal(t, 1, pivots.Count())
	cell, err := wb.GetCell(sheet.Address{Sheet: "Sheet1", Row: 6, Col: 6})
	require.NoError(t, err)
	assert.Equal(t, 1.0, cell.Value)
}

func TestPivotRegistry_RefreshAffectedBy_SkipsWhenOverBudget(t *testing.T) {
	wb := memapi.New("Sheet1")
	_ = wb.SetCell(sheet.Address{Sheet: "Sheet1", Row: 0, Col: 0}, sheet.CellData{Value: "a"})
	_ = wb.SetCell(sheet.Address{Sheet: "Sheet1", Row: 0, Col: 1}, sheet.CellData{Value: 1.0})
	pivots := NewPivotRegistry()
	source := sheet.Range{Sheet: "Sheet1", StartRow: 0, EndRow: 0, StartCol: 0, EndCol: 1}
	dest := sheet.Range{Sheet: "Sheet1", StartRow: 5, EndRow: 5, StartCol: 5, EndCol: 6}
	pivots.Register(PivotSpec{GroupByCol: 0, ValueCol: 1, Aggregate: PivotSum, DestSheet: "Sheet1", DestRow: 5, DestCol: 5}, source, dest)

	pivots.RefreshAffectedBy(wb, source, 1)
	assert.Equal(t, 1, pivots.Count())
	cell, err := wb.GetCell(sheet.Address{Sheet: "Sheet1", Row: 5, Col: 5})
	require.NoError(t, err)
	assert.Nil(t, cell.Value)
}

func TestAggregatePivot_CountAndAvg(t *testing.T) {
	rows := [][]sheet.CellData{
		{{Value: "x"}, {Value: 2.0}},
		{{Value: "x"}, {Value: 4.0}},
		{{Value: "y"}, {Value: 10.0}},
	}
	groups := aggregatePivot(rows, PivotSpec{GroupByCol: 0, ValueCol: 1, Aggregate: PivotAvg})
	byKey := map[string]float64{}
	for _, g := range groups {
		byKey[g.key] = g.value
	}
	assert.Equal(t, 3.0, byKey["x"])
	assert.Equal(t, 10.0, byKey["y"])

	counts := aggregatePivot(rows, PivotSpec{GroupByCol: 0, ValueCol: 1, Aggregate: PivotCount})
	countByKey := map[string]float64{}
	for _, g := range counts {
		countByKey[g.key] = g.value
	}
	assert.Equal(t, 2.0, countByKey["x"])
	assert.Equal(t, 1.0, countByKey["y"])
}
