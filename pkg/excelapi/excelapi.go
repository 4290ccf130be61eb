// Package excelapi implements sheet.SpreadsheetApi over a live
// *excelize.File, adapted from the teacher's excel tool (which opened,
// mutated, and saved a workbook per call) into a handle the tool
// executor can hold open across many calls within one session.
package excelapi

import (
	"fmt"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/cellwarden/cellwarden/pkg/sheet"
)

// Workbook adapts an in-memory *excelize.File to sheet.SpreadsheetApi.
// Addresses are 0-based; excelize is 1-based, so every boundary
// crossing goes through toCellName/fromCellName.
type Workbook struct {
	mu   sync.Mutex
	file *excelize.File
	// styleCache avoids re-registering an identical CellFormat as a new
	// style id on every ApplyFormatting call.
	styleCache map[string]int
}

// New wraps an existing *excelize.File (e.g. from excelize.OpenFile).
func New(file *excelize.File) *Workbook {
	return &Workbook{file: file, styleCache: map[string]int{}}
}

// Open reads path into a new Workbook. The returned Workbook owns the
// file handle; call Close when done.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("excelapi: open %s: %w", path, err)
	}
	return New(f), nil
}

// SaveAs persists the workbook's current state to path.
func (w *Workbook) SaveAs(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.SaveAs(path)
}

// Close releases the underlying file's resources.
func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func toCellName(row, col int) (string, error) {
	return excelize.CoordinatesToCellName(col+1, row+1)
}

func fromCellName(name string) (row, col int, err error) {
	col1, row1, err := excelize.CellNameToCoordinates(name)
	if err != nil {
		return 0, 0, err
	}
	return row1 - 1, col1 - 1, nil
}

// ListSheets returns every sheet name in workbook order.
func (w *Workbook) ListSheets() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.GetSheetList()
}

// ListNonEmptyCells returns every cell in sheetName holding a value or
// formula.
func (w *Workbook) ListNonEmptyCells(sheetName string) ([]sheet.AddressedCell, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows, err := w.file.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("excelapi: list cells on %s: %w", sheetName, err)
	}
	out := []sheet.AddressedCell{}
	for r, row := range rows {
		for c, raw := range row {
			if raw == "" {
				continue
			}
			name, err := toCellName(r, c)
			if err != nil {
				continue
			}
			formula, _ := w.file.GetCellFormula(sheetName, name)
			out = append(out, sheet.AddressedCell{
				Address: sheet.Address{Sheet: sheetName, Row: r, Col: c},
				Cell:    sheet.CellData{Value: raw, Formula: formula},
			})
		}
	}
	return out, nil
}

// GetCell returns the value and formula (if any) at addr.
func (w *Workbook) GetCell(addr sheet.Address) (sheet.CellData, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	name, err := toCellName(addr.Row, addr.Col)
	if err != nil {
		return sheet.CellData{}, fmt.Errorf("excelapi: invalid address %+v: %w", addr, err)
	}
	value, err := w.file.GetCellValue(addr.Sheet, name)
	if err != nil {
		return sheet.CellData{}, fmt.Errorf("excelapi: get cell %s!%s: %w", addr.Sheet, name, err)
	}
	formula, _ := w.file.GetCellFormula(addr.Sheet, name)
	var v sheet.Scalar
	if value != "" || formula == "" {
		v = value
	}
	return sheet.CellData{Value: v, Formula: formula}, nil
}

// SetCell writes cell.Formula when present, otherwise cell.Value, to
// addr.
func (w *Workbook) SetCell(addr sheet.Address, cell sheet.CellData) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	name, err := toCellName(addr.Row, addr.Col)
	if err != nil {
		return fmt.Errorf("excelapi: invalid address %+v: %w", addr, err)
	}
	if cell.IsFormula() {
		if err := w.file.SetCellFormula(addr.Sheet, name, cell.Formula); err != nil {
			return fmt.Errorf("excelapi: set formula %s!%s: %w", addr.Sheet, name, err)
		}
		return nil
	}
	if err := w.file.SetCellValue(addr.Sheet, name, cell.Value); err != nil {
		return fmt.Errorf("excelapi: set cell %s!%s: %w", addr.Sheet, name, err)
	}
	return nil
}

// ReadRange materializes rng as a dense 2D slice of CellData.
func (w *Workbook) ReadRange(rng sheet.Range) ([][]sheet.CellData, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([][]sheet.CellData, rng.Rows())
	for r := 0; r < rng.Rows(); r++ {
		row := make([]sheet.CellData, rng.Cols())
		for c := 0; c < rng.Cols(); c++ {
			name, err := toCellName(rng.StartRow+r, rng.StartCol+c)
			if err != nil {
				return nil, err
			}
			value, err := w.file.GetCellValue(rng.Sheet, name)
			if err != nil {
				return nil, fmt.Errorf("excelapi: read range cell %s!%s: %w", rng.Sheet, name, err)
			}
			formula, _ := w.file.GetCellFormula(rng.Sheet, name)
			var v sheet.Scalar
			if value != "" || formula == "" {
				v = value
			}
			row[c] = sheet.CellData{Value: v, Formula: formula}
		}
		out[r] = row
	}
	return out, nil
}

// WriteRange writes cells into rng row-major, bounded by rng's extent.
func (w *Workbook) WriteRange(rng sheet.Range, cells [][]sheet.CellData) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for r, row := range cells {
		if r >= rng.Rows() {
			break
		}
		for c, cell := range row {
			if c >= rng.Cols() {
				break
			}
			name, err := toCellName(rng.StartRow+r, rng.StartCol+c)
			if err != nil {
				return err
			}
			if cell.IsFormula() {
				if err := w.file.SetCellFormula(rng.Sheet, name, cell.Formula); err != nil {
					return fmt.Errorf("excelapi: write range formula %s!%s: %w", rng.Sheet, name, err)
				}
				continue
			}
			if err := w.file.SetCellValue(rng.Sheet, name, cell.Value); err != nil {
				return fmt.Errorf("excelapi: write range cell %s!%s: %w", rng.Sheet, name, err)
			}
		}
	}
	return nil
}

// ApplyFormatting applies format to every cell in rng via a style,
// caching style ids across calls that request an identical format.
func (w *Workbook) ApplyFormatting(rng sheet.Range, format sheet.CellFormat) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	styleID, err := w.styleFor(format)
	if err != nil {
		return 0, fmt.Errorf("excelapi: build style: %w", err)
	}

	startName, err := toCellName(rng.StartRow, rng.StartCol)
	if err != nil {
		return 0, err
	}
	endName, err := toCellName(rng.EndRow, rng.EndCol)
	if err != nil {
		return 0, err
	}
	if err := w.file.SetCellStyle(rng.Sheet, startName, endName, styleID); err != nil {
		return 0, fmt.Errorf("excelapi: apply style to %s!%s:%s: %w", rng.Sheet, startName, endName, err)
	}
	return rng.Cells(), nil
}

func (w *Workbook) styleFor(format sheet.CellFormat) (int, error) {
	key := fmt.Sprintf("%v|%v|%s|%s|%s", format.Bold, format.Italic, format.NumberFormat, format.BackgroundColor, format.FontColor)
	if id, ok := w.styleCache[key]; ok {
		return id, nil
	}

	style := &excelize.Style{
		Font: &excelize.Font{Bold: format.Bold, Italic: format.Italic},
	}
	if format.NumberFormat != "" {
		style.CustomNumFmt = &format.NumberFormat
	}
	if format.BackgroundColor != "" {
		style.Fill = excelize.Fill{Type: "pattern", Color: []string{format.BackgroundColor}, Pattern: 1}
	}
	if format.FontColor != "" {
		style.Font.Color = format.FontColor
	}

	id, err := w.file.NewStyle(style)
	if err != nil {
		return 0, err
	}
	w.styleCache[key] = id
	return id, nil
}

// CreateChart builds a chart of spec.Type over spec.DataRange.
func (w *Workbook) CreateChart(spec sheet.ChartSpec) (sheet.ChartHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	chartType, err := excelizeChartType(spec.Type)
	if err != nil {
		return sheet.ChartHandle{}, err
	}

	startName, err := toCellName(spec.DataRange.StartRow, spec.DataRange.StartCol)
	if err != nil {
		return sheet.ChartHandle{}, err
	}
	endName, err := toCellName(spec.DataRange.EndRow, spec.DataRange.EndCol)
	if err != nil {
		return sheet.ChartHandle{}, err
	}
	dataRange := fmt.Sprintf("%s!%s:%s", spec.DataRange.Sheet, startName, endName)

	anchor := "A1"
	if spec.Position != nil {
		anchorName, err := toCellName(spec.Position.Row, spec.Position.Col)
		if err == nil {
			anchor = anchorName
		}
	}

	chart := &excelize.Chart{
		Type:   chartType,
		Series: []excelize.ChartSeries{{Name: spec.Title, Categories: dataRange, Values: dataRange}},
		Title:  []excelize.RichTextRun{{Text: spec.Title}},
	}
	if err := w.file.AddChart(spec.Sheet, anchor, chart); err != nil {
		return sheet.ChartHandle{}, fmt.Errorf("excelapi: add chart: %w", err)
	}
	return sheet.ChartHandle{ID: anchor, Sheet: spec.Sheet}, nil
}

func excelizeChartType(t sheet.ChartType) (excelize.ChartType, error) {
	switch t {
	case sheet.ChartBar:
		return excelize.Bar, nil
	case sheet.ChartLine:
		return excelize.Line, nil
	case sheet.ChartPie:
		return excelize.Pie, nil
	default:
		return "", fmt.Errorf("excelapi: unsupported chart type %q", t)
	}
}

// GetLastUsedRow returns the highest 0-based row index with any
// non-empty cell in sheetName.
func (w *Workbook) GetLastUsedRow(sheetName string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows, err := w.file.GetRows(sheetName)
	if err != nil {
		return -1, fmt.Errorf("excelapi: get rows for %s: %w", sheetName, err)
	}
	last := -1
	for i, row := range rows {
		for _, v := range row {
			if v != "" {
				last = i
				break
			}
		}
	}
	return last, nil
}

// Clone duplicates the workbook's current in-memory bytes, so a caller
// can take a snapshot to compare before/after a mutating tool.
func (w *Workbook) Clone() sheet.SpreadsheetApi {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf, err := w.file.WriteToBuffer()
	if err != nil {
		return New(excelize.NewFile())
	}
	cloned, err := excelize.OpenReader(buf)
	if err != nil {
		return New(excelize.NewFile())
	}
	return New(cloned)
}

var _ sheet.SpreadsheetApi = (*Workbook)(nil)
