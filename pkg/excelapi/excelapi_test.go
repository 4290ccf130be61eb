package excelapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cellwarden/cellwarden/pkg/sheet"
)

func newWorkbook(t *testing.T) *Workbook {
	t.Helper()
	f := excelize.NewFile()
	return New(f)
}

func TestWorkbook_SetThenGetCell(t *testing.T) {
	w := newWorkbook(t)
	addr := sheet.Address{Sheet: "Sheet1", Row: 0, Col: 0}
	require.NoError(t, w.SetCell(addr, sheet.CellData{Value: "hello"}))

	got, err := w.GetCell(addr)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Value)
}

func TestWorkbook_SetCell_Formula(t *testing.T) {
	w := newWorkbook(t)
	require.NoError(t, w.SetCell(sheet.Address{Sheet: "Sheet1", Row: 0, Col: 0}, sheet.CellData{Value: float64(1)}))
	require.NoError(t, w.SetCell(sheet.Address{Sheet: "Sheet1", Row: 0, Col: 1}, sheet.CellData{Value: float64(2)}))
	require.NoError(t, w.SetCell(sheet.Address{Sheet: "Sheet1", Row: 0, Col: 2}, sheet.CellData{Formula: "=A1+B1"}))

	got, err := w.GetCell(sheet.Address{Sheet: "Sheet1", Row: 0, Col: 2})
	require.NoError(t, err)
	assert.Equal(t, "=A1+B1", got.Formula)
}

func TestWorkbook_WriteRangeThenReadRange(t *testing.T) {
	w := newWorkbook(t)
	rng := sheet.Range{Sheet: "Sheet1", StartRow: 0, EndRow: 0, StartCol: 0, EndCol: 1}
	require.NoError(t, w.WriteRange(rng, [][]sheet.CellData{{{Value: "a"}, {Value: "b"}}}))

	rows, err := w.ReadRange(rng)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0][0].Value)
	assert.Equal(t, "b", rows[0][1].Value)
}

func TestWorkbook_ApplyFormatting_CountsCells(t *testing.T) {
	w := newWorkbook(t)
	rng := sheet.Range{Sheet: "Sheet1", StartRow: 0, EndRow: 1, StartCol: 0, EndCol: 1}
	n, err := w.ApplyFormatting(rng, sheet.CellFormat{Bold: true, BackgroundColor: "#FFFF00"})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestWorkbook_ApplyFormatting_CachesIdenticalStyle(t *testing.T) {
	w := newWorkbook(t)
	rng := sheet.Range{Sheet: "Sheet1", StartRow: 0, EndRow: 0, StartCol: 0, EndCol: 0}
	_, err := w.ApplyFormatting(rng, sheet.CellFormat{Bold: true})
	require.NoError(t, err)
	_, err = w.ApplyFormatting(rng, sheet.CellFormat{Bold: true})
	require.NoError(t, err)
	assert.Len(t, w.styleCache, 1)
}

func TestWorkbook_CreateChart_UnsupportedTypeErrors(t *testing.T) {
	w := newWorkbook(t)
	require.NoError(t, w.SetCell(sheet.Address{Sheet: "Sheet1", Row: 0, Col: 0}, sheet.CellData{Value: float64(1)}))
	_, err := w.CreateChart(sheet.ChartSpec{
		Sheet:     "Sheet1",
		DataRange: sheet.Range{Sheet: "Sheet1", StartRow: 0, EndRow: 0, StartCol: 0, EndCol: 0},
		Type:      "radar",
	})
	assert.Error(t, err)
}

func TestWorkbook_CreateChart_Bar(t *testing.T) {
	w := newWorkbook(t)
	require.NoError(t, w.SetCell(sheet.Address{Sheet: "Sheet1", Row: 0, Col: 0}, sheet.CellData{Value: float64(1)}))
	require.NoError(t, w.SetCell(sheet.Address{Sheet: "Sheet1", Row: 1, Col: 0}, sheet.CellData{Value: float64(2)}))
	handle, err := w.CreateChart(sheet.ChartSpec{
		Sheet:     "Sheet1",
		DataRange: sheet.Range{Sheet: "Sheet1", StartRow: 0, EndRow: 1, StartCol: 0, EndCol: 0},
		Type:      sheet.ChartBar,
		Title:     "Totals",
	})
	require.NoError(t, err)
	assert.Equal(t, "Sheet1", handle.Sheet)
}

func TestWorkbook_GetLastUsedRow(t *testing.T) {
	w := newWorkbook(t)
	require.NoError(t, w.SetCell(sheet.Address{Sheet: "Sheet1", Row: 3, Col: 0}, sheet.CellData{Value: "x"}))
	row, err := w.GetLastUsedRow("Sheet1")
	require.NoError(t, err)
	assert.Equal(t, 3, row)
}

func TestWorkbook_Clone_IsIndependentCopy(t *testing.T) {
	w := newWorkbook(t)
	addr := sheet.Address{Sheet: "Sheet1", Row: 0, Col: 0}
	require.NoError(t, w.SetCell(addr, sheet.CellData{Value: "original"}))

	clone := w.Clone()
	require.NoError(t, clone.SetCell(addr, sheet.CellData{Value: "mutated"}))

	original, err := w.GetCell(addr)
	require.NoError(t, err)
	assert.Equal(t, "original", original.Value)
}

func TestWorkbook_ListNonEmptyCells(t *testing.T) {
	w := newWorkbook(t)
	require.NoError(t, w.SetCell(sheet.Address{Sheet: "Sheet1", Row: 0, Col: 0}, sheet.CellData{Value: "a"}))
	require.NoError(t, w.SetCell(sheet.Address{Sheet: "Sheet1", Row: 2, Col: 1}, sheet.CellData{Value: "b"}))

	cells, err := w.ListNonEmptyCells("Sheet1")
	require.NoError(t, err)
	assert.Len(t, cells, 2)
}
