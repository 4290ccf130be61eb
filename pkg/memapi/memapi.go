// Package memapi implements an in-memory sheet.SpreadsheetApi backed by
// plain Go maps, used by the tool executor's own tests and by any
// caller that wants a cheap fake instead of wiring excelapi.
package memapi

import (
	"fmt"
	"sort"

	"github.com/cellwarden/cellwarden/pkg/sheet"
)

// Workbook is a minimal in-memory spreadsheet. Sheets are created
// implicitly on first write; cells absent from the map read as empty.
type Workbook struct {
	order []string
	cells map[string]map[sheet.Address]sheet.CellData
	seq   int
}

// New returns an empty workbook with one default sheet.
func New(defaultSheet string) *Workbook {
	w := &Workbook{cells: map[string]map[sheet.Address]sheet.CellData{}}
	w.ensureSheet(defaultSheet)
	return w
}

func (w *Workbook) ensureSheet(name string) {
	if _, ok := w.cells[name]; !ok {
		w.cells[name] = map[sheet.Address]sheet.CellData{}
		w.order = append(w.order, name)
	}
}

// ListSheets returns sheet names in creation order.
func (w *Workbook) ListSheets() []string {
	out := make([]string, len(w.order))
	copy(out, w.order)
	return out
}

// ListNonEmptyCells returns every cell holding a value or formula,
// sorted row-major for deterministic test assertions.
func (w *Workbook) ListNonEmptyCells(sheetName string) ([]sheet.AddressedCell, error) {
	cells, ok := w.cells[sheetName]
	if !ok {
		return nil, fmt.Errorf("memapi: unknown sheet %q", sheetName)
	}
	out := make([]sheet.AddressedCell, 0, len(cells))
	for addr, cell := range cells {
		if cell.Value == nil && !cell.IsFormula() {
			continue
		}
		out = append(out, sheet.AddressedCell{Address: addr, Cell: cell})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Address.Row != out[j].Address.Row {
			return out[i].Address.Row < out[j].Address.Row
		}
		return out[i].Address.Col < out[j].Address.Col
	})
	return out, nil
}

// GetCell returns the cell at addr, or a zero CellData if it was never
// set.
func (w *Workbook) GetCell(addr sheet.Address) (sheet.CellData, error) {
	cells, ok := w.cells[addr.Sheet]
	if !ok {
		return sheet.CellData{}, fmt.Errorf("memapi: unknown sheet %q", addr.Sheet)
	}
	return cells[addr], nil
}

// SetCell writes one cell, creating its sheet if necessary.
func (w *Workbook) SetCell(addr sheet.Address, cell sheet.CellData) error {
	w.ensureSheet(addr.Sheet)
	w.cells[addr.Sheet][addr] = cell
	return nil
}

// ReadRange materializes rng as a dense 2D slice, one row per entry.
func (w *Workbook) ReadRange(rng sheet.Range) ([][]sheet.CellData, error) {
	cells, ok := w.cells[rng.Sheet]
	if !ok {
		return nil, fmt.Errorf("memapi: unknown sheet %q", rng.Sheet)
	}
	out := make([][]sheet.CellData, rng.Rows())
	for r := 0; r < rng.Rows(); r++ {
		row := make([]sheet.CellData, rng.Cols())
		for c := 0; c < rng.Cols(); c++ {
			addr := sheet.Address{Sheet: rng.Sheet, Row: rng.StartRow + r, Col: rng.StartCol + c}
			row[c] = cells[addr]
		}
		out[r] = row
	}
	return out, nil
}

// WriteRange writes cells into rng, row-major, ignoring any row/column
// beyond rng's bounds.
func (w *Workbook) WriteRange(rng sheet.Range, cells [][]sheet.CellData) error {
	w.ensureSheet(rng.Sheet)
	for r, row := range cells {
		if r >= rng.Rows() {
			break
		}
		for c, cell := range row {
			if c >= rng.Cols() {
				break
			}
			addr := sheet.Address{Sheet: rng.Sheet, Row: rng.StartRow + r, Col: rng.StartCol + c}
			w.cells[rng.Sheet][addr] = cell
		}
	}
	return nil
}

// ApplyFormatting records format onto every cell in rng, creating empty
// cells as needed so the format sticks, and returns the count touched.
func (w *Workbook) ApplyFormatting(rng sheet.Range, format sheet.CellFormat) (int, error) {
	w.ensureSheet(rng.Sheet)
	count := 0
	for r := rng.StartRow; r <= rng.EndRow; r++ {
		for c := rng.StartCol; c <= rng.EndCol; c++ {
			addr := sheet.Address{Sheet: rng.Sheet, Row: r, Col: c}
			cell := w.cells[rng.Sheet][addr]
			cell.Format = map[string]any{
				"bold":            format.Bold,
				"italic":          format.Italic,
				"numberFormat":    format.NumberFormat,
				"backgroundColor": format.BackgroundColor,
				"fontColor":       format.FontColor,
			}
			w.cells[rng.Sheet][addr] = cell
			count++
		}
	}
	return count, nil
}

// CreateChart records a chart handle; memapi does not render anything,
// it only tracks that the call happened, which is sufficient for
// exercising the tool executor's chart tool against a fake backend.
func (w *Workbook) CreateChart(spec sheet.ChartSpec) (sheet.ChartHandle, error) {
	w.seq++
	return sheet.ChartHandle{ID: fmt.Sprintf("chart-%d", w.seq), Sheet: spec.Sheet}, nil
}

// GetLastUsedRow returns the highest row index holding a non-empty
// cell, or -1 if the sheet is empty.
func (w *Workbook) GetLastUsedRow(sheetName string) (int, error) {
	cells, ok := w.cells[sheetName]
	if !ok {
		return -1, fmt.Errorf("memapi: unknown sheet %q", sheetName)
	}
	last := -1
	for addr, cell := range cells {
		if cell.Value == nil && !cell.IsFormula() {
			continue
		}
		if addr.Row > last {
			last = addr.Row
		}
	}
	return last, nil
}

// Clone returns a deep copy, isolating the two workbooks from each
// other's subsequent mutations.
func (w *Workbook) Clone() sheet.SpreadsheetApi {
	clone := &Workbook{cells: map[string]map[sheet.Address]sheet.CellData{}, seq: w.seq}
	clone.order = append(clone.order, w.order...)
	for sheetName, cells := range w.cells {
		cloned := make(map[sheet.Address]sheet.CellData, len(cells))
		for addr, cell := range cells {
			cloned[addr] = cell
		}
		clone.cells[sheetName] = cloned
	}
	return clone
}

var _ sheet.SpreadsheetApi = (*Workbook)(nil)
